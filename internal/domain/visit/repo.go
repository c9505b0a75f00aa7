package visit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVisitNotFound = errors.New("visit not found")

	// ErrInvalidTransition rejects lifecycle moves the state machine does
	// not allow, e.g. completing a visit that was never started.
	ErrInvalidTransition = errors.New("invalid visit status transition")

	ErrAssignmentNotFound = errors.New("assignment not found")
)

// Repository is the persistence surface for visits and their satellite
// rows (assignments, preferences, events, alerts).
type Repository interface {
	Create(ctx context.Context, v *Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status, completedAt *time.Time) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Visit, int, error)

	CreateAssignment(ctx context.Context, a *Assignment) error
	ActiveAssignment(ctx context.Context, visitID uuid.UUID) (*Assignment, error)
	DeactivateAssignment(ctx context.Context, visitID uuid.UUID) error

	UpsertPreference(ctx context.Context, patientID, doctorID uuid.UUID, usedAt time.Time) error

	AppendEvent(ctx context.Context, e *Event) error
	CreateAlert(ctx context.Context, a *EmergencyAlert) error
}
