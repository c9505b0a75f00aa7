// Package lock serializes queue mutations per doctor. Different doctors'
// queues are independent, so there is no global lock; callers hold the lock
// for one doctor while enqueueing, dequeueing, or reconciling that doctor's
// entries.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when a distributed lock cannot be obtained
// within the locker's retry budget.
var ErrNotAcquired = errors.New("doctor lock not acquired")

// Keyed guards a critical section keyed by doctor id.
type Keyed interface {
	WithLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// MutexKeyed is an in-process Keyed implementation backed by one mutex per
// doctor. It is the default for single-node deployments.
type MutexKeyed struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewMutexKeyed() *MutexKeyed {
	return &MutexKeyed{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (k *MutexKeyed) WithLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	k.mu.Lock()
	m, ok := k.locks[doctorID]
	if !ok {
		m = &sync.Mutex{}
		k.locks[doctorID] = m
	}
	k.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}
