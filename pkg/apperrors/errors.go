package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrRetrieval         = errors.New("retrieval failed")
	ErrShape             = errors.New("inconsistent record shape")
	ErrTransform         = errors.New("transform failed")
	ErrDegenerateFeature = errors.New("degenerate feature")
	ErrPersistence       = errors.New("persistence failed")
	ErrEmptyBatch        = errors.New("empty batch")
	ErrUnknownStore      = errors.New("unknown store type")
)

// RetrievalError reports a failed call to the product source.
// StatusCode is zero when no HTTP response was received.
type RetrievalError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retrieve %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("retrieve %s: %v", e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

func (e *RetrievalError) Is(target error) bool { return target == ErrRetrieval }

// ShapeError lists the records whose attribute set differs from the batch.
// Missing maps record index to the attributes that record lacked.
type ShapeError struct {
	Missing map[int][]string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%d record(s) with missing attributes", len(e.Missing))
}

func (e *ShapeError) Is(target error) bool { return target == ErrShape }

// TransformError reports a row that could not be transformed.
type TransformError struct {
	Row    int
	Column string
	Err    error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform row %d column %q: %v", e.Row, e.Column, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// DegenerateFeatureError reports a feature whose imputed values have zero variance.
type DegenerateFeatureError struct {
	Feature string
	Mean    float64
}

func (e *DegenerateFeatureError) Error() string {
	return fmt.Sprintf("feature %q has zero variance (mean %g)", e.Feature, e.Mean)
}

func (e *DegenerateFeatureError) Is(target error) bool { return target == ErrDegenerateFeature }

// PersistenceError reports a failed write to the store.
type PersistenceError struct {
	Table string
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s table %q: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
