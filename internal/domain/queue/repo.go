package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEntryNotFound = errors.New("queue entry not found")

	// ErrQueueInvariant flags a should-never-happen state: a duplicate
	// entry for a visit, or a gapped/duplicated position sequence. It is
	// logged and repaired by a forced renumber, never a crash.
	ErrQueueInvariant = errors.New("queue invariant violation")
)

// Repository is the persistence surface for queue entries. Only the Store
// and the Reconciler call it; nothing else writes queue rows.
type Repository interface {
	GetByVisit(ctx context.Context, visitID uuid.UUID) (*Entry, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*Entry, error)
	Insert(ctx context.Context, e *Entry) error
	Delete(ctx context.Context, visitID uuid.UUID) error

	// MaxPosition returns the highest position for the doctor, 0 when the
	// queue is empty.
	MaxPosition(ctx context.Context, doctorID uuid.UUID) (int, error)

	// ShiftPositions increments every position for the doctor by one,
	// making room at the front for an emergency insertion.
	ShiftPositions(ctx context.Context, doctorID uuid.UUID) error

	// UpdateOrdering persists position, boost, and dynamic score for the
	// given entries.
	UpdateOrdering(ctx context.Context, entries []*Entry) error

	// UpdateStaticScore rewrites an entry's static score and resets its
	// aging base.
	UpdateStaticScore(ctx context.Context, visitID uuid.UUID, score int, scoredAt time.Time) error

	// DoctorsWithEntries returns the distinct doctors that currently have
	// queue entries.
	DoctorsWithEntries(ctx context.Context) ([]uuid.UUID, error)
}
