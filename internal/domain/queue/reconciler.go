package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/triage/internal/platform/lock"
)

const (
	boostGraceMinutes = 30
	boostStepMinutes  = 15
	boostStepPoints   = 2
	maxDynamicScore   = 100
)

// WaitBoost returns the aging bonus for an entry scored at scoredAt as of
// now: nothing for the first 30 minutes, then +2 per full 15 minutes.
func WaitBoost(scoredAt, now time.Time) int {
	waited := int(now.Sub(scoredAt).Minutes()) - boostGraceMinutes
	if waited < 0 {
		return 0
	}
	return (waited / boostStepMinutes) * boostStepPoints
}

// Reconciler recomputes a doctor's queue ordering: it refreshes each
// entry's wait boost, re-sorts by dynamic score, renumbers positions back
// to a dense 1..N, and publishes the resulting snapshot. Running it twice
// in a row without intervening changes leaves the queue untouched.
type Reconciler struct {
	repo      Repository
	locks     lock.Keyed
	tx        TxRunner
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReconciler(repo Repository, locks lock.Keyed, tx TxRunner, publisher Publisher, logger zerolog.Logger) *Reconciler {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Reconciler{
		repo:      repo,
		locks:     locks,
		tx:        tx,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock overrides the reconciler's time source for tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile recomputes one doctor's queue under that doctor's lock and
// returns the ordered snapshot it published.
func (r *Reconciler) Reconcile(ctx context.Context, doctorID uuid.UUID) (*Snapshot, error) {
	var snapshot *Snapshot

	err := r.locks.WithLock(ctx, doctorID, func(ctx context.Context) error {
		return r.tx(ctx, func(ctx context.Context) error {
			var err error
			snapshot, err = r.reconcileLocked(ctx, doctorID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	r.publish(doctorID, snapshot)
	return snapshot, nil
}

// ReconcileAll runs Reconcile for every doctor that currently has queued
// entries. A failure on one doctor is logged and does not stop the sweep.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	doctorIDs, err := r.repo.DoctorsWithEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list queued doctors: %w", err)
	}

	reconciled := 0
	for _, doctorID := range doctorIDs {
		if _, err := r.Reconcile(ctx, doctorID); err != nil {
			r.logger.Error().Err(err).
				Str("doctor_id", doctorID.String()).
				Msg("queue reconcile failed")
			continue
		}
		reconciled++
	}
	return reconciled, nil
}

func (r *Reconciler) reconcileLocked(ctx context.Context, doctorID uuid.UUID) (*Snapshot, error) {
	entries, err := r.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	now := r.now()
	if err := r.checkDense(doctorID, entries); err != nil {
		// Positions have gaps (a dequeue without a follow-up reconcile,
		// or a crash between the two). The renumbering below repairs it.
		r.logger.Warn().Err(err).
			Str("doctor_id", doctorID.String()).
			Msg("queue positions not dense, repairing")
	}

	for _, e := range entries {
		e.WaitBoost = WaitBoost(e.ScoredAt, now)
		e.DynamicScore = e.StaticScore + e.WaitBoost
		if e.DynamicScore > maxDynamicScore {
			e.DynamicScore = maxDynamicScore
		}
	}

	// Higher dynamic score first; enqueue time breaks ties so equal
	// scores keep first-come-first-served order. Position cannot serve
	// as the tie-break: reconciliation rewrites it, so after any
	// reordering it no longer reflects arrival.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DynamicScore != entries[j].DynamicScore {
			return entries[i].DynamicScore > entries[j].DynamicScore
		}
		if !entries[i].EnqueuedAt.Equal(entries[j].EnqueuedAt) {
			return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
		}
		return entries[i].Position < entries[j].Position
	})
	for i, e := range entries {
		e.Position = i + 1
	}

	if err := r.repo.UpdateOrdering(ctx, entries); err != nil {
		return nil, fmt.Errorf("update ordering: %w", err)
	}

	return &Snapshot{DoctorID: doctorID, GeneratedAt: now, Entries: entries}, nil
}

func (r *Reconciler) checkDense(doctorID uuid.UUID, entries []*Entry) error {
	for i, e := range entries {
		if e.Position != i+1 {
			return fmt.Errorf("%w: doctor %s has position %d at rank %d",
				ErrQueueInvariant, doctorID, e.Position, i+1)
		}
	}
	return nil
}

func (r *Reconciler) publish(doctorID uuid.UUID, snapshot *Snapshot) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).
				Str("doctor_id", doctorID.String()).
				Msg("queue publish panicked")
		}
	}()
	r.publisher.PublishQueue(doctorID, *snapshot)
}
