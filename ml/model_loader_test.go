package ml_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"exitforecast/ml"
	"exitforecast/ml/mltest"
	"gopkg.in/yaml.v2"
)

func writeArtifact(t *testing.T, name string, payload []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return path
}

func TestLoadModelJSONAndYAML(t *testing.T) {
	artifact := mltest.Artifact()
	jsonPayload, err := json.Marshal(artifact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	yamlPayload, err := yaml.Marshal(artifact)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fromJSON, err := ml.LoadModel(writeArtifact(t, "model.json", jsonPayload))
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	fromYAML, err := ml.LoadModel(writeArtifact(t, "model.yml", yamlPayload))
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}

	if fromJSON.Info().Name != "test forest" {
		t.Fatalf("unexpected info: %+v", fromJSON.Info())
	}

	a, err := fromJSON.PredictProba(exampleTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := fromYAML.PredictProba(exampleTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("json and yaml models disagree: %v vs %v", a, b)
	}
}

func TestLoadModelErrors(t *testing.T) {
	valid, err := json.Marshal(mltest.Artifact())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	broken := mltest.Artifact()
	broken.Steps[1].NumFeatures = 4
	brokenPayload, err := json.Marshal(broken)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "absent.json")},
		{name: "truncated json", path: writeArtifact(t, "truncated.json", valid[:len(valid)/2])},
		{name: "unknown field", path: writeArtifact(t, "extra.json", []byte(`{"format":"exitforecast-pipeline/v1","pickle":true}`))},
		{name: "wrong format tag", path: writeArtifact(t, "tag.json", []byte(`{"format":"sklearn","steps":[]}`))},
		{name: "inconsistent widths", path: writeArtifact(t, "widths.json", brokenPayload)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ml.LoadModel(tt.path)
			if !errors.Is(err, ml.ErrArtifactLoad) {
				t.Fatalf("expected artifact load error, got %v", err)
			}
			var loadErr *ml.ArtifactLoadError
			if !errors.As(err, &loadErr) || loadErr.Path != tt.path {
				t.Fatalf("expected error to carry path %s, got %v", tt.path, err)
			}
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	cases := map[string]string{
		"model.json": ml.FormatJSON,
		"model.YAML": ml.FormatYAML,
		"model.yml":  ml.FormatYAML,
		"model":      ml.FormatJSON,
	}
	for path, want := range cases {
		if got := ml.FormatFromPath(path); got != want {
			t.Fatalf("FormatFromPath(%q) = %s, want %s", path, got, want)
		}
	}
}
