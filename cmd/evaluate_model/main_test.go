package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"exitforecast/batch"
	"exitforecast/ml"
	"exitforecast/ml/mltest"
	"exitforecast/predict"
)

const labelled = `satisfaction_level,last_evaluation,number_project,average_montly_hours,time_spend_company,Department,salary,label
0.77,0.98,3,286,3,technical,low,Low
0.1,0.9,6,280,6,sales,medium,High
0.1,0.9,6,280,6,sales,medium,Medium
0.77,0.98,3,286,3,technical,low,High
`

func TestEvaluateModel(t *testing.T) {
	svc, err := predict.NewService(mltest.Model(), predict.Options{})
	if err != nil {
		t.Fatal(err)
	}
	table, err := batch.ReadCSV(strings.NewReader(labelled), batch.Options{})
	if err != nil {
		t.Fatal(err)
	}

	r, err := evaluateModel(context.Background(), svc, table, "label")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Rows != 4 || r.Accuracy != 0.5 {
		t.Fatalf("unexpected report: %+v", r)
	}
	high := r.Classes["High"]
	if high.Precision != 0.5 || high.Recall != 0.5 || high.Support != 2 {
		t.Fatalf("unexpected High stats: %+v", high)
	}
	if r.Classes["Medium"].Recall != 0 || r.Classes["Medium"].Support != 1 {
		t.Fatalf("unexpected Medium stats: %+v", r.Classes["Medium"])
	}

	var out bytes.Buffer
	r.Print(&out)
	if !strings.HasPrefix(out.String(), "rows=4 accuracy=0.5000") {
		t.Fatalf("unexpected output: %s", out.String())
	}
}

func TestEvaluateModelMissingLabel(t *testing.T) {
	svc, err := predict.NewService(mltest.Model(), predict.Options{})
	if err != nil {
		t.Fatal(err)
	}
	table, err := batch.ReadCSV(strings.NewReader(labelled), batch.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := evaluateModel(context.Background(), svc, table, "outcome"); !errors.Is(err, ml.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}
