package ml

import (
	"math"
	"testing"
)

func stumpTree(t *testing.T) *DecisionTree {
	t.Helper()
	nodes := []TreeNode{
		{FeatureIdx: 1, Threshold: 0.5, LeftChild: 1, RightChild: 2, Value: []float64{6, 4}, Impurity: 0.48, Samples: 10},
		{FeatureIdx: -2, LeftChild: -1, RightChild: -1, Value: []float64{6, 0}, Impurity: 0, Samples: 6},
		{FeatureIdx: -2, LeftChild: -1, RightChild: -1, Value: []float64{0, 4}, Impurity: 0, Samples: 4},
	}
	tree, err := NewDecisionTree([]string{"stay", "leave"}, 2, nodes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree
}

func TestDecisionTreePredictProba(t *testing.T) {
	tree := stumpTree(t)
	proba, err := tree.PredictProba([][]float64{{9, 0.2}, {9, 0.9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proba[0][0] != 1 || proba[0][1] != 0 {
		t.Fatalf("unexpected left distribution: %v", proba[0])
	}
	if proba[1][0] != 0 || proba[1][1] != 1 {
		t.Fatalf("unexpected right distribution: %v", proba[1])
	}

	if _, err := tree.PredictProba([][]float64{{1}}); err == nil {
		t.Fatal("expected error for short feature vector")
	}
}

func TestDecisionTreeFeatureImportances(t *testing.T) {
	tree := stumpTree(t)
	importances, err := tree.FeatureImportances()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if importances[0] != 0 {
		t.Fatalf("expected unused feature to have zero importance, got %f", importances[0])
	}
	if math.Abs(importances[1]-1) > 1e-9 {
		t.Fatalf("expected all importance on feature 1, got %f", importances[1])
	}
}

func TestNewDecisionTreeValidation(t *testing.T) {
	leafNode := TreeNode{FeatureIdx: -2, LeftChild: -1, RightChild: -1, Value: []float64{1, 1}}
	tests := []struct {
		name    string
		nodes   []TreeNode
		wantErr bool
	}{
		{
			name:  "single leaf",
			nodes: []TreeNode{leafNode},
		},
		{
			name:    "no nodes",
			nodes:   nil,
			wantErr: true,
		},
		{
			name:    "leaf with wrong class count",
			nodes:   []TreeNode{{LeftChild: -1, RightChild: -1, Value: []float64{1}}},
			wantErr: true,
		},
		{
			name:    "empty leaf",
			nodes:   []TreeNode{{LeftChild: -1, RightChild: -1, Value: []float64{0, 0}}},
			wantErr: true,
		},
		{
			name:    "feature out of range",
			nodes:   []TreeNode{{FeatureIdx: 5, LeftChild: 1, RightChild: 2}, leafNode, leafNode},
			wantErr: true,
		},
		{
			name:    "child points backwards",
			nodes:   []TreeNode{{FeatureIdx: 0, LeftChild: 0, RightChild: 2}, leafNode, leafNode},
			wantErr: true,
		},
		{
			name:    "child out of range",
			nodes:   []TreeNode{{FeatureIdx: 0, LeftChild: 1, RightChild: 3}, leafNode, leafNode},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecisionTree([]string{"a", "b"}, 2, tt.nodes)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDecisionTree() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArgMaxPrefersFirst(t *testing.T) {
	if got := ArgMax([]float64{0.4, 0.4, 0.2}); got != 0 {
		t.Fatalf("expected first maximum, got %d", got)
	}
	if got := ArgMax(nil); got != -1 {
		t.Fatalf("expected -1 for empty input, got %d", got)
	}
}
