// Package predict adapts a loaded pipeline into the single-record and
// batch prediction operations served to users.
package predict

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"exitforecast/ml"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	PredictionColumn = "Prediction"
	ConfidenceColumn = "Confidence"
)

const (
	KindSingle  = "single"
	KindRecords = "records"
	KindTable   = "table"
)

// Recorder receives one observation per service call.
type Recorder interface {
	ObservePrediction(kind string, rows int, elapsed time.Duration, err error)
}

type Options struct {
	// CacheSize bounds the memoised single-record results; 0 disables it.
	CacheSize int
	Logger    *zap.Logger
	Recorder  Recorder
}

type BatchOptions struct {
	IncludeConfidence bool
}

type Result struct {
	PredictedClass string             `json:"predicted_class"`
	Confidence     float64            `json:"confidence"`
	Probabilities  map[string]float64 `json:"probabilities"`
}

func (r Result) clone() Result {
	probs := make(map[string]float64, len(r.Probabilities))
	for k, v := range r.Probabilities {
		probs[k] = v
	}
	r.Probabilities = probs
	return r
}

// Service is safe for concurrent use. The model is never mutated after
// construction.
type Service struct {
	model    ml.Model
	cache    *lru.Cache[string, Result]
	logger   *zap.Logger
	recorder Recorder
}

func NewService(model ml.Model, opts Options) (*Service, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if len(model.Classes()) == 0 {
		return nil, errors.New("model has no classes")
	}
	s := &Service{
		model:    model,
		logger:   opts.Logger,
		recorder: opts.Recorder,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if opts.CacheSize > 0 {
		cache, err := lru.New[string, Result](opts.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

func (s *Service) Classes() []string {
	return append([]string(nil), s.model.Classes()...)
}

func (s *Service) Info() ml.ArtifactInfo {
	if described, ok := s.model.(interface{ Info() ml.ArtifactInfo }); ok {
		return described.Info()
	}
	return ml.ArtifactInfo{}
}

// PredictOne classifies a single record. Confidence is the largest class
// probability.
func (s *Service) PredictOne(ctx context.Context, record InputRecord) (result Result, err error) {
	start := time.Now()
	defer func() { s.observe(KindSingle, 1, start, err) }()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	cacheable := s.cache != nil
	key, keyErr := record.key()
	if keyErr != nil {
		s.logger.Debug("record bypasses prediction cache", zap.Error(keyErr))
		cacheable = false
	}
	if cacheable {
		if cached, ok := s.cache.Get(key); ok {
			return cached.clone(), nil
		}
	}

	results, err := s.classify(RecordsTable(record))
	if err != nil {
		return Result{}, err
	}
	if cacheable {
		s.cache.Add(key, results[0].clone())
	}
	return results[0], nil
}

// PredictRecords classifies records in order. It fails as a whole when any
// record is rejected by the model.
func (s *Service) PredictRecords(ctx context.Context, records []InputRecord) (results []Result, err error) {
	start := time.Now()
	defer func() { s.observe(KindRecords, len(records), start, err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []Result{}, nil
	}
	return s.classify(RecordsTable(records...))
}

// PredictTable returns a copy of t with a trailing Prediction column (and a
// Confidence column when requested). All original columns and values are
// kept as-is.
func (s *Service) PredictTable(ctx context.Context, t *ml.Table, opts BatchOptions) (out *ml.Table, err error) {
	start := time.Now()
	defer func() { s.observe(KindTable, t.Len(), start, err) }()

	if t == nil {
		return nil, errors.New("table is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The model runs even for a header-only table so missing columns are
	// still reported.
	labels, err := s.model.Predict(t)
	if err != nil {
		return nil, err
	}
	if len(labels) != t.Len() {
		return nil, fmt.Errorf("model returned %d labels for %d rows", len(labels), t.Len())
	}

	out, err = t.WithColumn(PredictionColumn, labels)
	if err != nil {
		return nil, err
	}
	if opts.IncludeConfidence {
		proba, err := s.model.PredictProba(t)
		if err != nil {
			return nil, err
		}
		confidences := make([]string, len(proba))
		for i, row := range proba {
			confidences[i] = strconv.FormatFloat(maxOf(row), 'f', 4, 64)
		}
		out, err = out.WithColumn(ConfidenceColumn, confidences)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FeatureImportance pairs output feature names with classifier importances.
// It returns an error wrapping ml.ErrFeatureImportanceUnavailable when the
// model cannot provide them; callers treat that as a notice.
func (s *Service) FeatureImportance() (ml.FeatureImportance, error) {
	importance, err := ml.ImportanceOf(s.model)
	if err != nil {
		s.logger.Debug("feature importance unavailable", zap.Error(err))
		return nil, err
	}
	return importance, nil
}

func (s *Service) classify(t *ml.Table) ([]Result, error) {
	labels, err := s.model.Predict(t)
	if err != nil {
		return nil, err
	}
	proba, err := s.model.PredictProba(t)
	if err != nil {
		return nil, err
	}
	if len(labels) != t.Len() || len(proba) != t.Len() {
		return nil, fmt.Errorf("model returned %d labels and %d distributions for %d rows", len(labels), len(proba), t.Len())
	}

	classes := s.model.Classes()
	results := make([]Result, len(labels))
	for i := range labels {
		if len(proba[i]) != len(classes) {
			return nil, fmt.Errorf("row %d: %d probabilities for %d classes", i, len(proba[i]), len(classes))
		}
		probs := make(map[string]float64, len(classes))
		for c, class := range classes {
			probs[class] = proba[i][c]
		}
		results[i] = Result{
			PredictedClass: labels[i],
			Confidence:     maxOf(proba[i]),
			Probabilities:  probs,
		}
	}
	return results, nil
}

func (s *Service) observe(kind string, rows int, start time.Time, err error) {
	if s.recorder == nil {
		return
	}
	s.recorder.ObservePrediction(kind, rows, time.Since(start), err)
}

func maxOf(values []float64) float64 {
	idx := ml.ArgMax(values)
	if idx < 0 {
		return 0
	}
	return values[idx]
}
