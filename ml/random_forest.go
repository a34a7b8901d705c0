package ml

import (
	"errors"
	"fmt"
)

// RandomForest averages the class distributions of its trees.
type RandomForest struct {
	trees       []*DecisionTree
	classes     []string
	numFeatures int
	importances []float64
}

// NewRandomForest builds a forest from fitted trees. importances may be nil,
// in which case they are derived from the trees on demand.
func NewRandomForest(classes []string, numFeatures int, trees []*DecisionTree, importances []float64) (*RandomForest, error) {
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	for i, tree := range trees {
		if tree.NumFeatures() != numFeatures {
			return nil, fmt.Errorf("tree %d expects %d features, forest expects %d", i, tree.NumFeatures(), numFeatures)
		}
		if len(tree.Classes()) != len(classes) {
			return nil, fmt.Errorf("tree %d has %d classes, forest has %d", i, len(tree.Classes()), len(classes))
		}
	}
	if importances != nil && len(importances) != numFeatures {
		return nil, fmt.Errorf("%d importances for %d features", len(importances), numFeatures)
	}
	return &RandomForest{
		trees:       trees,
		classes:     classes,
		numFeatures: numFeatures,
		importances: importances,
	}, nil
}

func (rf *RandomForest) Classes() []string {
	return rf.classes
}

func (rf *RandomForest) NumFeatures() int {
	return rf.numFeatures
}

func (rf *RandomForest) PredictProba(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i := range out {
		out[i] = make([]float64, len(rf.classes))
	}
	for t, tree := range rf.trees {
		proba, err := tree.PredictProba(x)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", t, err)
		}
		for i := range proba {
			for c, p := range proba[i] {
				out[i][c] += p
			}
		}
	}
	n := float64(len(rf.trees))
	for i := range out {
		for c := range out[i] {
			out[i][c] /= n
		}
	}
	return out, nil
}

// FeatureImportances is the normalized mean of the per-tree importances,
// ignoring trees that never split.
func (rf *RandomForest) FeatureImportances() ([]float64, error) {
	if rf.importances != nil {
		return append([]float64(nil), rf.importances...), nil
	}

	mean := make([]float64, rf.numFeatures)
	used := 0
	for i, tree := range rf.trees {
		if tree.NodeCount() <= 1 {
			continue
		}
		importances, err := tree.FeatureImportances()
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		for f, v := range importances {
			mean[f] += v
		}
		used++
	}
	if used == 0 {
		return mean, nil
	}
	for f := range mean {
		mean[f] /= float64(used)
	}
	normalize(mean)
	return mean, nil
}

// PriorClassifier always predicts the class distribution it was fitted
// with. It does not report feature importances.
type PriorClassifier struct {
	classes     []string
	numFeatures int
	prior       []float64
}

func NewPriorClassifier(classes []string, numFeatures int, prior []float64) (*PriorClassifier, error) {
	if len(classes) == 0 {
		return nil, errors.New("prior classifier has no classes")
	}
	if len(prior) != len(classes) {
		return nil, fmt.Errorf("%d prior weights for %d classes", len(prior), len(classes))
	}
	if sum(prior) <= 0 {
		return nil, errors.New("prior weights sum to zero")
	}
	p := append([]float64(nil), prior...)
	normalize(p)
	return &PriorClassifier{classes: classes, numFeatures: numFeatures, prior: p}, nil
}

func (pc *PriorClassifier) Classes() []string {
	return pc.classes
}

func (pc *PriorClassifier) NumFeatures() int {
	return pc.numFeatures
}

func (pc *PriorClassifier) PredictProba(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if pc.numFeatures > 0 && len(row) != pc.numFeatures {
			return nil, fmt.Errorf("row %d: got %d features, expected %d", i, len(row), pc.numFeatures)
		}
		out[i] = append([]float64(nil), pc.prior...)
	}
	return out, nil
}
