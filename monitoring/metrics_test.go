package monitoring

import (
	"errors"
	"strings"
	"testing"
	"time"

	"exitforecast/ml"
)

func TestObservePrediction(t *testing.T) {
	mc := NewMetricsCollector()
	mc.ObservePrediction("single", 1, 2*time.Millisecond, nil)
	mc.ObservePrediction("single", 1, 4*time.Millisecond, &ml.SchemaMismatchError{Column: "salary", Reason: "unknown category"})
	mc.ObservePrediction("table", 5, 10*time.Millisecond, errors.New("boom"))

	requests, err := mc.GetMetricSummary("prediction_requests_total", map[string]string{"kind": "single"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if requests.Sum != 2 {
		t.Fatalf("expected 2 single requests, got %f", requests.Sum)
	}

	rows, err := mc.GetMetricSummary("prediction_rows_total", map[string]string{"kind": "table"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rows.Sum != 5 {
		t.Fatalf("expected 5 rows, got %f", rows.Sum)
	}

	mismatch, err := mc.GetMetricSummary("prediction_errors_total", map[string]string{"kind": "single", "reason": "schema_mismatch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mismatch.Count != 1 {
		t.Fatalf("expected 1 schema mismatch, got %d", mismatch.Count)
	}

	latency, err := mc.GetMetricSummary("prediction_latency_seconds", map[string]string{"kind": "single"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latency.Max != 0.004 || latency.Min != 0.002 {
		t.Fatalf("unexpected latency range: %+v", latency)
	}

	if _, err := mc.GetMetricSummary("prediction_errors_total", nil); err == nil {
		t.Fatal("expected error for unknown series")
	}
}

func TestRecordMetricKeepsBoundedHistory(t *testing.T) {
	mc := NewMetricsCollector()
	for i := 0; i < maxSamples+50; i++ {
		mc.SetGauge("queue_depth", float64(i), nil)
	}
	summary, err := mc.GetMetricSummary("queue_depth", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Count != maxSamples+50 {
		t.Fatalf("expected full count, got %d", summary.Count)
	}
	if summary.Latest != float64(maxSamples+49) {
		t.Fatalf("unexpected latest value: %f", summary.Latest)
	}
	if got := len(mc.series["queue_depth"].samples); got != maxSamples {
		t.Fatalf("expected %d retained samples, got %d", maxSamples, got)
	}
}

func TestExportPrometheus(t *testing.T) {
	mc := NewMetricsCollector()
	mc.ObservePrediction("single", 1, time.Millisecond, nil)
	mc.ObservePrediction("single", 1, time.Millisecond, nil)

	out := mc.ExportPrometheus()
	for _, want := range []string{
		"# TYPE prediction_requests_total counter",
		`prediction_requests_total{kind="single"} 2`,
		`prediction_latency_seconds_count{kind="single"} 2`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}
