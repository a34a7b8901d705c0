package ml_test

import (
	"errors"
	"math"
	"testing"

	"exitforecast/ml"
	"exitforecast/ml/mltest"
)

func exampleTable() *ml.Table {
	table := ml.NewTable(mltest.ExampleColumns)
	table.Rows = append(table.Rows, append([]string(nil), mltest.ExampleRow...))
	return table
}

func TestPipelinePredictExample(t *testing.T) {
	model := mltest.Model()
	proba, err := model.PredictProba(exampleTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proba) != 1 || len(proba[0]) != len(mltest.Classes) {
		t.Fatalf("unexpected shape: %v", proba)
	}

	// Tree 0 lands on [5,60,20], tree 1 on [35,15,25], tree 2 is [30,30,40].
	wantLow := (60.0/85 + 15.0/75 + 0.3) / 3
	if math.Abs(proba[0][1]-wantLow) > 1e-9 {
		t.Fatalf("expected P(Low)=%f, got %f", wantLow, proba[0][1])
	}
	total := proba[0][0] + proba[0][1] + proba[0][2]
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("expected probabilities to sum to 1, got %f", total)
	}

	labels, err := model.Predict(exampleTable())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if labels[0] != "Low" {
		t.Fatalf("expected Low, got %s", labels[0])
	}
}

func TestPipelineEmptyTable(t *testing.T) {
	model := mltest.Model()
	labels, err := model.Predict(ml.NewTable(mltest.ExampleColumns))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(labels) != 0 {
		t.Fatalf("expected no labels, got %v", labels)
	}
}

func TestPipelineMissingColumn(t *testing.T) {
	model := mltest.Model()
	table := exampleTable()
	idx := table.Index("Department")
	table.Columns = append(table.Columns[:idx:idx], table.Columns[idx+1:]...)
	table.Rows[0] = append(table.Rows[0][:idx:idx], table.Rows[0][idx+1:]...)

	if _, err := model.Predict(table); !errors.Is(err, ml.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestImportanceOfForest(t *testing.T) {
	importance, err := ml.ImportanceOf(mltest.Model())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(importance) != mltest.NumFeatures {
		t.Fatalf("expected %d features, got %d", mltest.NumFeatures, len(importance))
	}
	if importance[0].Feature != "num__satisfaction_level" {
		t.Fatalf("unexpected first feature: %s", importance[0].Feature)
	}

	total := 0.0
	used := map[string]bool{}
	for _, fw := range importance {
		if fw.Importance < 0 {
			t.Fatalf("negative importance for %s", fw.Feature)
		}
		if fw.Importance > 0 {
			used[fw.Feature] = true
		}
		total += fw.Importance
	}
	if math.Abs(total-1) > 1e-9 {
		t.Fatalf("expected importances to sum to 1, got %f", total)
	}
	for _, name := range []string{"num__satisfaction_level", "num__time_spend_company", "num__average_montly_hours", "cat__salary_low"} {
		if !used[name] {
			t.Fatalf("expected %s to carry importance", name)
		}
	}
	if len(used) != 4 {
		t.Fatalf("expected 4 features with importance, got %d", len(used))
	}
}

func TestImportanceOfUnavailable(t *testing.T) {
	if _, err := ml.ImportanceOf(mltest.PriorModel()); !errors.Is(err, ml.ErrFeatureImportanceUnavailable) {
		t.Fatalf("expected unavailable for prior classifier, got %v", err)
	}

	var bare bareModel
	if _, err := ml.ImportanceOf(bare); !errors.Is(err, ml.ErrFeatureImportanceUnavailable) {
		t.Fatalf("expected unavailable for model without steps, got %v", err)
	}
}

func TestNewPipelineRejectsWidthMismatch(t *testing.T) {
	pre, err := ml.NewPassthrough("num", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ct, err := ml.NewColumnTransformer(pre)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clf, err := ml.NewPriorClassifier([]string{"x", "y"}, 3, []float64{1, 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ml.NewPipeline(ml.Step{Name: ml.StepPreprocessing, Component: ct}, ml.Step{Name: ml.StepClassifier, Component: clf}); err == nil {
		t.Fatal("expected width mismatch error")
	}
	if _, err := ml.NewPipeline(ml.Step{Name: ml.StepClassifier, Component: clf}); err == nil {
		t.Fatal("expected error for pipeline without preprocessing")
	}
}

type bareModel struct{}

func (bareModel) Classes() []string                          { return []string{"a"} }
func (bareModel) Predict(t *ml.Table) ([]string, error)      { return nil, nil }
func (bareModel) PredictProba(t *ml.Table) ([][]float64, error) { return nil, nil }
