package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

const ArtifactFormat = "exitforecast-pipeline/v1"

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ArtifactInfo is free-form metadata shown next to the forms.
type ArtifactInfo struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Author      string `json:"author" yaml:"author"`
}

type Artifact struct {
	Format string       `json:"format" yaml:"format"`
	Info   ArtifactInfo `json:"info" yaml:"info"`
	Steps  []StepSpec   `json:"steps" yaml:"steps"`
}

type StepSpec struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`

	// column_transformer
	Transformers []TransformerSpec `json:"transformers,omitempty" yaml:"transformers,omitempty"`

	// classifiers
	Classes            []string   `json:"classes,omitempty" yaml:"classes,omitempty"`
	NumFeatures        int        `json:"n_features,omitempty" yaml:"n_features,omitempty"`
	Trees              []TreeSpec `json:"trees,omitempty" yaml:"trees,omitempty"`
	FeatureImportances []float64  `json:"feature_importances,omitempty" yaml:"feature_importances,omitempty"`
	ClassPrior         []float64  `json:"class_prior,omitempty" yaml:"class_prior,omitempty"`
}

type TransformerSpec struct {
	Name          string     `json:"name" yaml:"name"`
	Type          string     `json:"type" yaml:"type"`
	Columns       []string   `json:"columns" yaml:"columns"`
	Mean          []float64  `json:"mean,omitempty" yaml:"mean,omitempty"`
	Scale         []float64  `json:"scale,omitempty" yaml:"scale,omitempty"`
	Categories    [][]string `json:"categories,omitempty" yaml:"categories,omitempty"`
	HandleUnknown string     `json:"handle_unknown,omitempty" yaml:"handle_unknown,omitempty"`
}

type TreeSpec struct {
	Nodes []TreeNode `json:"nodes" yaml:"nodes"`
}

// LoadModel reads a pipeline artifact, choosing the decoder from the file
// extension.
func LoadModel(path string) (*Pipeline, error) {
	return LoadModelFormat(FormatFromPath(path), path)
}

func LoadModelFormat(format, path string) (*Pipeline, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	model, err := DecodeModel(format, payload)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	return model, nil
}

func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func DecodeModel(format string, payload []byte) (*Pipeline, error) {
	var artifact Artifact
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&artifact); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.UnmarshalStrict(payload, &artifact); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported artifact format %q", format)
	}
	return BuildModel(artifact)
}

func BuildModel(artifact Artifact) (*Pipeline, error) {
	if artifact.Format != ArtifactFormat {
		return nil, fmt.Errorf("unexpected artifact format %q", artifact.Format)
	}
	if len(artifact.Steps) == 0 {
		return nil, errors.New("artifact has no steps")
	}

	steps := make([]Step, len(artifact.Steps))
	for i, spec := range artifact.Steps {
		component, err := buildStep(spec)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", spec.Name, err)
		}
		steps[i] = Step{Name: spec.Name, Component: component}
	}
	pipeline, err := NewPipeline(steps...)
	if err != nil {
		return nil, err
	}
	pipeline.info = artifact.Info
	return pipeline, nil
}

func buildStep(spec StepSpec) (interface{}, error) {
	switch spec.Type {
	case "column_transformer":
		return buildColumnTransformer(spec.Transformers)
	case "random_forest":
		if len(spec.Trees) == 0 {
			return nil, errors.New("random forest has no trees")
		}
		trees := make([]*DecisionTree, len(spec.Trees))
		for i, ts := range spec.Trees {
			tree, err := NewDecisionTree(spec.Classes, spec.NumFeatures, ts.Nodes)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", i, err)
			}
			trees[i] = tree
		}
		return NewRandomForest(spec.Classes, spec.NumFeatures, trees, spec.FeatureImportances)
	case "decision_tree":
		if len(spec.Trees) != 1 {
			return nil, fmt.Errorf("decision tree needs exactly one tree, got %d", len(spec.Trees))
		}
		return NewDecisionTree(spec.Classes, spec.NumFeatures, spec.Trees[0].Nodes)
	case "prior":
		return NewPriorClassifier(spec.Classes, spec.NumFeatures, spec.ClassPrior)
	default:
		return nil, fmt.Errorf("unsupported step type %q", spec.Type)
	}
}

func buildColumnTransformer(specs []TransformerSpec) (*ColumnTransformer, error) {
	encoders := make([]ColumnEncoder, 0, len(specs))
	for _, spec := range specs {
		var (
			enc ColumnEncoder
			err error
		)
		switch spec.Type {
		case "standard_scaler":
			enc, err = NewStandardScaler(spec.Name, spec.Columns, spec.Mean, spec.Scale)
		case "passthrough":
			enc, err = NewPassthrough(spec.Name, spec.Columns)
		case "one_hot_encoder":
			enc, err = NewOneHotEncoder(spec.Name, spec.Columns, spec.Categories, spec.HandleUnknown)
		default:
			err = fmt.Errorf("unsupported transformer type %q", spec.Type)
		}
		if err != nil {
			return nil, err
		}
		encoders = append(encoders, enc)
	}
	return NewColumnTransformer(encoders...)
}
