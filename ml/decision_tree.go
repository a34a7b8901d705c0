package ml

import (
	"errors"
	"fmt"
)

// leafChild marks a node without children.
const leafChild = -1

type DecisionTree struct {
	nodes       []TreeNode
	classes     []string
	numFeatures int
}

// TreeNode is one node of a fitted tree, stored depth-first so that every
// child index is greater than its parent's. Value holds the per-class
// training weight that reached the node.
type TreeNode struct {
	FeatureIdx int       `json:"feature" yaml:"feature"`
	Threshold  float64   `json:"threshold" yaml:"threshold"`
	LeftChild  int       `json:"left" yaml:"left"`
	RightChild int       `json:"right" yaml:"right"`
	Value      []float64 `json:"value" yaml:"value"`
	Impurity   float64   `json:"impurity" yaml:"impurity"`
	Samples    float64   `json:"samples" yaml:"samples"`
}

func (n TreeNode) IsLeaf() bool {
	return n.LeftChild == leafChild
}

func NewDecisionTree(classes []string, numFeatures int, nodes []TreeNode) (*DecisionTree, error) {
	if len(classes) == 0 {
		return nil, errors.New("tree has no classes")
	}
	if numFeatures <= 0 {
		return nil, errors.New("tree must use at least one feature")
	}
	if len(nodes) == 0 {
		return nil, errors.New("tree has no nodes")
	}
	for idx, node := range nodes {
		if node.IsLeaf() {
			if node.RightChild != leafChild {
				return nil, fmt.Errorf("node %d: leaf with a right child", idx)
			}
			if len(node.Value) != len(classes) {
				return nil, fmt.Errorf("node %d: %d class weights for %d classes", idx, len(node.Value), len(classes))
			}
			if sum(node.Value) <= 0 {
				return nil, fmt.Errorf("node %d: leaf without weight", idx)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= numFeatures {
			return nil, fmt.Errorf("node %d: feature index %d out of range", idx, node.FeatureIdx)
		}
		if node.LeftChild <= idx || node.LeftChild >= len(nodes) || node.RightChild <= idx || node.RightChild >= len(nodes) {
			return nil, fmt.Errorf("node %d: invalid children %d/%d", idx, node.LeftChild, node.RightChild)
		}
	}
	return &DecisionTree{nodes: nodes, classes: classes, numFeatures: numFeatures}, nil
}

func (dt *DecisionTree) Classes() []string {
	return dt.classes
}

func (dt *DecisionTree) NumFeatures() int {
	return dt.numFeatures
}

func (dt *DecisionTree) NodeCount() int {
	return len(dt.nodes)
}

func (dt *DecisionTree) PredictProba(x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, features := range x {
		proba, err := dt.distribution(features)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = proba
	}
	return out, nil
}

// FeatureImportances returns the normalized total impurity decrease
// contributed by each feature.
func (dt *DecisionTree) FeatureImportances() ([]float64, error) {
	root := dt.nodes[0].Samples
	if root <= 0 {
		return nil, errors.New("tree has no sample weights")
	}
	importances := make([]float64, dt.numFeatures)
	for _, node := range dt.nodes {
		if node.IsLeaf() {
			continue
		}
		left := dt.nodes[node.LeftChild]
		right := dt.nodes[node.RightChild]
		importances[node.FeatureIdx] += node.Samples*node.Impurity -
			left.Samples*left.Impurity -
			right.Samples*right.Impurity
	}
	for i := range importances {
		importances[i] /= root
	}
	normalize(importances)
	return importances, nil
}

func (dt *DecisionTree) distribution(features []float64) ([]float64, error) {
	if len(features) != dt.numFeatures {
		return nil, fmt.Errorf("got %d features, tree expects %d", len(features), dt.numFeatures)
	}
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf() {
			proba := append([]float64(nil), node.Value...)
			normalize(proba)
			return proba, nil
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
	}
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func normalize(values []float64) {
	total := sum(values)
	if total <= 0 {
		return
	}
	for i := range values {
		values[i] /= total
	}
}
