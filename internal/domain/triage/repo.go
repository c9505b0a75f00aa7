package triage

import (
	"context"

	"github.com/google/uuid"
)

// AssessmentRepository persists risk assessments. Rows are append-only.
type AssessmentRepository interface {
	Create(ctx context.Context, a *Assessment) error
	LatestByVisit(ctx context.Context, visitID uuid.UUID) (*Assessment, error)
	ListByVisit(ctx context.Context, visitID uuid.UUID) ([]*Assessment, error)
}
