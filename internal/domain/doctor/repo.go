package doctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrDoctorNotFound = errors.New("doctor not found")

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	Create(ctx context.Context, p *Profile) error
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) error
	List(ctx context.Context, limit, offset int) ([]*Profile, int, error)

	// Candidates returns available doctors in the specialty with their
	// current active-assignment load.
	Candidates(ctx context.Context, specialty string) ([]*Candidate, error)

	// PreferredDoctor returns the patient's most recently used preferred
	// doctor who is in the specialty and currently available, or
	// ErrDoctorNotFound.
	PreferredDoctor(ctx context.Context, patientID uuid.UUID, specialty string) (*Profile, error)
}
