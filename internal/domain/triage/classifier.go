package triage

import (
	"context"
	"errors"
)

var (
	// ErrClassifierUnavailable wraps any failure of the external risk model.
	// Visit creation aborts on it; nothing is persisted.
	ErrClassifierUnavailable = errors.New("risk classifier unavailable")

	// ErrInvalidInput rejects malformed or out-of-range scoring inputs
	// before any mutation happens.
	ErrInvalidInput = errors.New("invalid triage input")

	ErrAssessmentNotFound = errors.New("assessment not found")
)

// Classifier is the external risk model. It may be slow; it must never be
// silently degraded — callers surface ErrClassifierUnavailable loudly.
type Classifier interface {
	Classify(ctx context.Context, in Intake) (*Classification, error)
}
