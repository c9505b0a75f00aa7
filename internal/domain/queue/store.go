package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/triage/internal/platform/lock"
)

// TxRunner runs fn as one atomic unit. Production wiring uses the database
// transaction helper with bounded serialization-conflict retries; tests use
// PassthroughTx.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn directly, with no transaction.
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Store is the only component that mutates queue membership and positions.
// It owns the invariant that a doctor's positions form a dense 1..N
// sequence and that a visit holds at most one slot.
type Store struct {
	repo   Repository
	locks  lock.Keyed
	tx     TxRunner
	now    func() time.Time
	logger zerolog.Logger
}

func NewStore(repo Repository, locks lock.Keyed, tx TxRunner, logger zerolog.Logger) *Store {
	return &Store{
		repo:   repo,
		locks:  locks,
		tx:     tx,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock overrides the store's time source for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Enqueue inserts a visit into a doctor's queue and returns its position.
// It is idempotent against retries: if the visit already holds a slot the
// call is a no-op returning position 0. Emergency entries take position 1
// and shift everyone else down by exactly one; the shift and the insert
// commit as one atomic unit.
func (s *Store) Enqueue(ctx context.Context, visitID, doctorID uuid.UUID, staticScore int, emergency bool) (int, error) {
	position := 0

	err := s.locks.WithLock(ctx, doctorID, func(ctx context.Context) error {
		return s.tx(ctx, func(ctx context.Context) error {
			_, err := s.repo.GetByVisit(ctx, visitID)
			if err == nil {
				s.logger.Debug().
					Str("visit_id", visitID.String()).
					Msg("visit already queued, enqueue ignored")
				position = 0
				return nil
			}
			if !errors.Is(err, ErrEntryNotFound) {
				return fmt.Errorf("check existing entry: %w", err)
			}

			if emergency {
				if err := s.repo.ShiftPositions(ctx, doctorID); err != nil {
					return fmt.Errorf("shift positions: %w", err)
				}
				position = 1
			} else {
				max, err := s.repo.MaxPosition(ctx, doctorID)
				if err != nil {
					return fmt.Errorf("max position: %w", err)
				}
				position = max + 1
			}

			now := s.now()
			entry := &Entry{
				ID:           uuid.New(),
				VisitID:      visitID,
				DoctorID:     doctorID,
				StaticScore:  staticScore,
				DynamicScore: staticScore,
				Position:     position,
				Emergency:    emergency,
				ScoredAt:     now,
				EnqueuedAt:   now,
			}
			if err := s.repo.Insert(ctx, entry); err != nil {
				return fmt.Errorf("insert entry: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return position, nil
}

// Dequeue removes the visit's entry and reports which doctor's queue it
// left. Remaining positions are not renumbered here: renumbering is the
// reconciler's job. A missing entry is not an error — the visit may never
// have been queued.
func (s *Store) Dequeue(ctx context.Context, visitID uuid.UUID) (uuid.UUID, bool, error) {
	entry, err := s.repo.GetByVisit(ctx, visitID)
	if errors.Is(err, ErrEntryNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("load entry: %w", err)
	}

	doctorID := entry.DoctorID
	removed := false

	err = s.locks.WithLock(ctx, doctorID, func(ctx context.Context) error {
		return s.tx(ctx, func(ctx context.Context) error {
			err := s.repo.Delete(ctx, visitID)
			if errors.Is(err, ErrEntryNotFound) {
				return nil // removed concurrently
			}
			if err != nil {
				return fmt.Errorf("delete entry: %w", err)
			}
			removed = true
			return nil
		})
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return doctorID, removed, nil
}

// Rescore rewrites an entry's static score after a manual risk override and
// resets its aging base. Returns the owning doctor so the caller can
// reconcile.
func (s *Store) Rescore(ctx context.Context, visitID uuid.UUID, staticScore int) (uuid.UUID, error) {
	entry, err := s.repo.GetByVisit(ctx, visitID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("load entry: %w", err)
	}

	doctorID := entry.DoctorID
	err = s.locks.WithLock(ctx, doctorID, func(ctx context.Context) error {
		return s.tx(ctx, func(ctx context.Context) error {
			return s.repo.UpdateStaticScore(ctx, visitID, staticScore, s.now())
		})
	})
	if err != nil {
		return uuid.Nil, err
	}
	return doctorID, nil
}
