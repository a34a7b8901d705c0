package ml

const (
	StepPreprocessing = "preprocessing"
	StepClassifier    = "classifier"
)

// Model is the capability set the prediction service relies on. Inputs are
// whole tables; outputs are aligned with the table rows.
type Model interface {
	Classes() []string
	Predict(t *Table) ([]string, error)
	PredictProba(t *Table) ([][]float64, error)
}

// Transformer turns a table into the numeric matrix a classifier consumes.
type Transformer interface {
	Transform(t *Table) ([][]float64, error)
}

type Classifier interface {
	Classes() []string
	NumFeatures() int
	PredictProba(x [][]float64) ([][]float64, error)
}

type FeatureNamer interface {
	OutputFeatureNames() ([]string, error)
}

type ImportanceReporter interface {
	FeatureImportances() ([]float64, error)
}

// StepLookup is implemented by models built from named steps.
type StepLookup interface {
	NamedStep(name string) (interface{}, bool)
}

type FeatureWeight struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

type FeatureImportance []FeatureWeight

// ArgMax returns the first index holding the largest value.
func ArgMax(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}

// ImportanceOf pairs the output feature names of the preprocessing step with
// the importances of the classifier step. Any missing capability or failure
// is reported as ErrFeatureImportanceUnavailable.
func ImportanceOf(model Model) (FeatureImportance, error) {
	steps, ok := model.(StepLookup)
	if !ok {
		return nil, unavailable(nil)
	}
	clf, ok := steps.NamedStep(StepClassifier)
	if !ok {
		return nil, unavailable(nil)
	}
	pre, ok := steps.NamedStep(StepPreprocessing)
	if !ok {
		return nil, unavailable(nil)
	}
	reporter, ok := clf.(ImportanceReporter)
	if !ok {
		return nil, unavailable(nil)
	}
	namer, ok := pre.(FeatureNamer)
	if !ok {
		return nil, unavailable(nil)
	}

	importances, err := reporter.FeatureImportances()
	if err != nil {
		return nil, unavailable(err)
	}
	names, err := namer.OutputFeatureNames()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(names) != len(importances) {
		return nil, unavailable(errMismatchedImportances(len(names), len(importances)))
	}

	result := make(FeatureImportance, len(names))
	for i := range names {
		result[i] = FeatureWeight{Feature: names[i], Importance: importances[i]}
	}
	return result, nil
}
