// Package mltest provides a small fitted pipeline for tests.
package mltest

import "exitforecast/ml"

var (
	NumericColumns = []string{
		"satisfaction_level",
		"last_evaluation",
		"number_project",
		"average_montly_hours",
		"time_spend_company",
	}
	Departments = []string{"IT", "RandD", "accounting", "hr", "management", "marketing", "product_mng", "sales", "support", "technical"}
	Salaries    = []string{"high", "low", "medium"}
	Classes     = []string{"High", "Low", "Medium"}
)

// NumFeatures is the width of the encoded feature vector:
// 5 numeric, 10 departments, 3 salary bands.
const NumFeatures = 18

const (
	featSatisfaction = 0
	featHours        = 3
	featTenure       = 4
	featSalaryLow    = 16
)

func leaf(value ...float64) ml.TreeNode {
	return ml.TreeNode{FeatureIdx: -2, LeftChild: -1, RightChild: -1, Value: value, Samples: sumOf(value), Impurity: gini(value)}
}

func split(feature int, threshold float64, left, right int, value ...float64) ml.TreeNode {
	return ml.TreeNode{FeatureIdx: feature, Threshold: threshold, LeftChild: left, RightChild: right, Value: value, Samples: sumOf(value), Impurity: gini(value)}
}

// Artifact returns a three-tree forest. Tree 0 splits on satisfaction and
// tenure, tree 1 on salary and monthly hours, tree 2 never splits.
func Artifact() ml.Artifact {
	return ml.Artifact{
		Format: ml.ArtifactFormat,
		Info: ml.ArtifactInfo{
			Name:        "test forest",
			Description: "hand-built fixture",
		},
		Steps: []ml.StepSpec{
			{
				Name: ml.StepPreprocessing,
				Type: "column_transformer",
				Transformers: []ml.TransformerSpec{
					{Name: "num", Type: "passthrough", Columns: NumericColumns},
					{
						Name:          "cat",
						Type:          "one_hot_encoder",
						Columns:       []string{"Department", "salary"},
						Categories:    [][]string{Departments, Salaries},
						HandleUnknown: ml.HandleUnknownError,
					},
				},
			},
			{
				Name:        ml.StepClassifier,
				Type:        "random_forest",
				Classes:     Classes,
				NumFeatures: NumFeatures,
				Trees: []ml.TreeSpec{
					{Nodes: []ml.TreeNode{
						split(featSatisfaction, 0.465, 1, 4, 75, 67, 43),
						split(featTenure, 4.5, 2, 3, 70, 7, 23),
						leaf(30, 5, 15),
						leaf(40, 2, 8),
						leaf(5, 60, 20),
					}},
					{Nodes: []ml.TreeNode{
						split(featSalaryLow, 0.5, 1, 4, 50, 85, 65),
						split(featHours, 215.5, 2, 3, 15, 70, 40),
						leaf(5, 50, 10),
						leaf(10, 20, 30),
						leaf(35, 15, 25),
					}},
					{Nodes: []ml.TreeNode{
						leaf(30, 30, 40),
					}},
				},
			},
		},
	}
}

// PriorArtifact returns a pipeline whose classifier cannot report feature
// importances.
func PriorArtifact() ml.Artifact {
	a := Artifact()
	a.Steps[1] = ml.StepSpec{
		Name:        ml.StepClassifier,
		Type:        "prior",
		Classes:     Classes,
		NumFeatures: NumFeatures,
		ClassPrior:  []float64{1, 2, 1},
	}
	return a
}

// Model builds Artifact and panics if it does not validate.
func Model() *ml.Pipeline {
	return mustBuild(Artifact())
}

func PriorModel() *ml.Pipeline {
	return mustBuild(PriorArtifact())
}

func mustBuild(a ml.Artifact) *ml.Pipeline {
	model, err := ml.BuildModel(a)
	if err != nil {
		panic(err)
	}
	return model
}

// ExampleRow is the reference employee used across tests, in the column
// order of ExampleColumns.
var (
	ExampleColumns = []string{"satisfaction_level", "last_evaluation", "number_project", "average_montly_hours", "time_spend_company", "Department", "salary"}
	ExampleRow     = []string{"0.77", "0.98", "3", "286", "3", "technical", "low"}
)

func sumOf(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func gini(values []float64) float64 {
	total := sumOf(values)
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, v := range values {
		p := v / total
		impurity -= p * p
	}
	return impurity
}
