package ml

import (
	"errors"
	"fmt"
)

var (
	ErrSchemaMismatch               = errors.New("schema mismatch")
	ErrFeatureImportanceUnavailable = errors.New("feature importance not available for this pipeline")
	ErrArtifactLoad                 = errors.New("model artifact could not be loaded")
)

// SchemaMismatchError reports input that the preprocessing step cannot align
// with what it was fitted on: a missing column, an unseen category or a
// value that does not parse as a number.
type SchemaMismatchError struct {
	Column string
	Value  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("schema mismatch: column %q value %q: %s", e.Column, e.Value, e.Reason)
	}
	return fmt.Sprintf("schema mismatch: column %q: %s", e.Column, e.Reason)
}

func (e *SchemaMismatchError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	return fmt.Sprintf("load model %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

func (e *ArtifactLoadError) Is(target error) bool {
	return target == ErrArtifactLoad
}

func unavailable(cause error) error {
	if cause == nil {
		return ErrFeatureImportanceUnavailable
	}
	return fmt.Errorf("%w: %v", ErrFeatureImportanceUnavailable, cause)
}

func errMismatchedImportances(names, weights int) error {
	return fmt.Errorf("%d feature names but %d importances", names, weights)
}
