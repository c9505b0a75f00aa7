package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/triage/internal/platform/lock"
)

type mockRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*Entry // keyed by visit ID
}

func newMockRepo() *mockRepo {
	return &mockRepo{entries: make(map[uuid.UUID]*Entry)}
}

func (m *mockRepo) GetByVisit(_ context.Context, visitID uuid.UUID) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[visitID]
	if !ok {
		return nil, ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Entry
	for _, e := range m.entries {
		if e.DoctorID == doctorID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *mockRepo) Insert(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.VisitID]; ok {
		return ErrQueueInvariant
	}
	cp := *e
	m.entries[e.VisitID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, visitID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[visitID]; !ok {
		return ErrEntryNotFound
	}
	delete(m.entries, visitID)
	return nil
}

func (m *mockRepo) MaxPosition(_ context.Context, doctorID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, e := range m.entries {
		if e.DoctorID == doctorID && e.Position > max {
			max = e.Position
		}
	}
	return max, nil
}

func (m *mockRepo) ShiftPositions(_ context.Context, doctorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.DoctorID == doctorID {
			e.Position++
		}
	}
	return nil
}

func (m *mockRepo) UpdateOrdering(_ context.Context, entries []*Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		stored, ok := m.entries[e.VisitID]
		if !ok {
			return ErrEntryNotFound
		}
		stored.Position = e.Position
		stored.WaitBoost = e.WaitBoost
		stored.DynamicScore = e.DynamicScore
	}
	return nil
}

func (m *mockRepo) UpdateStaticScore(_ context.Context, visitID uuid.UUID, score int, scoredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[visitID]
	if !ok {
		return ErrEntryNotFound
	}
	e.StaticScore = score
	e.ScoredAt = scoredAt
	return nil
}

func (m *mockRepo) DoctorsWithEntries(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	var out []uuid.UUID
	for _, e := range m.entries {
		if !seen[e.DoctorID] {
			seen[e.DoctorID] = true
			out = append(out, e.DoctorID)
		}
	}
	return out, nil
}

func newTestStore(repo Repository) *Store {
	return NewStore(repo, lock.NewMutexKeyed(), PassthroughTx, zerolog.Nop())
}

func TestStoreEnqueueAppendsToTail(t *testing.T) {
	repo := newMockRepo()
	store := newTestStore(repo)
	doctorID := uuid.New()

	pos1, err := store.Enqueue(context.Background(), uuid.New(), doctorID, 40, false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if pos1 != 1 {
		t.Fatalf("expected position 1, got %d", pos1)
	}

	pos2, err := store.Enqueue(context.Background(), uuid.New(), doctorID, 80, false)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if pos2 != 2 {
		t.Fatalf("expected position 2, got %d", pos2)
	}
}

func TestStoreEnqueueIdempotent(t *testing.T) {
	repo := newMockRepo()
	store := newTestStore(repo)
	doctorID := uuid.New()
	visitID := uuid.New()

	if _, err := store.Enqueue(context.Background(), visitID, doctorID, 40, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pos, err := store.Enqueue(context.Background(), visitID, doctorID, 40, false)
	if err != nil {
		t.Fatalf("repeat enqueue: %v", err)
	}
	if pos != 0 {
		t.Fatalf("expected no-op position 0, got %d", pos)
	}

	entries, _ := repo.ListByDoctor(context.Background(), doctorID)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestStoreEnqueueEmergencyTakesFront(t *testing.T) {
	repo := newMockRepo()
	store := newTestStore(repo)
	doctorID := uuid.New()

	first := uuid.New()
	second := uuid.New()
	if _, err := store.Enqueue(context.Background(), first, doctorID, 40, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.Enqueue(context.Background(), second, doctorID, 50, false); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	emergency := uuid.New()
	pos, err := store.Enqueue(context.Background(), emergency, doctorID, 95, true)
	if err != nil {
		t.Fatalf("emergency enqueue: %v", err)
	}
	if pos != 1 {
		t.Fatalf("expected emergency at position 1, got %d", pos)
	}

	entries, _ := repo.ListByDoctor(context.Background(), doctorID)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := map[uuid.UUID]int{emergency: 1, first: 2, second: 3}
	for _, e := range entries {
		if want[e.VisitID] != e.Position {
			t.Errorf("visit %s: expected position %d, got %d", e.VisitID, want[e.VisitID], e.Position)
		}
	}
}

func TestStoreDequeueLeavesGap(t *testing.T) {
	repo := newMockRepo()
	store := newTestStore(repo)
	doctorID := uuid.New()

	first := uuid.New()
	second := uuid.New()
	store.Enqueue(context.Background(), first, doctorID, 40, false)
	store.Enqueue(context.Background(), second, doctorID, 50, false)

	gotDoctor, removed, err := store.Dequeue(context.Background(), first)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if !removed {
		t.Fatal("expected entry removed")
	}
	if gotDoctor != doctorID {
		t.Fatalf("expected doctor %s, got %s", doctorID, gotDoctor)
	}

	// Dequeue does not renumber; the reconciler does.
	entries, _ := repo.ListByDoctor(context.Background(), doctorID)
	if len(entries) != 1 || entries[0].Position != 2 {
		t.Fatalf("expected remaining entry at position 2, got %+v", entries)
	}
}

func TestStoreDequeueMissingIsNoop(t *testing.T) {
	store := newTestStore(newMockRepo())

	doctorID, removed, err := store.Dequeue(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if removed {
		t.Fatal("expected nothing removed")
	}
	if doctorID != uuid.Nil {
		t.Fatalf("expected nil doctor, got %s", doctorID)
	}
}

func TestStoreRescoreResetsAgingBase(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	doctorID := uuid.New()
	visitID := uuid.New()

	store.Enqueue(context.Background(), visitID, doctorID, 30, false)

	later := base.Add(45 * time.Minute)
	store.WithClock(func() time.Time { return later })

	gotDoctor, err := store.Rescore(context.Background(), visitID, 100)
	if err != nil {
		t.Fatalf("rescore: %v", err)
	}
	if gotDoctor != doctorID {
		t.Fatalf("expected doctor %s, got %s", doctorID, gotDoctor)
	}

	entry, _ := repo.GetByVisit(context.Background(), visitID)
	if entry.StaticScore != 100 {
		t.Fatalf("expected static score 100, got %d", entry.StaticScore)
	}
	if !entry.ScoredAt.Equal(later) {
		t.Fatalf("expected scored_at reset to %v, got %v", later, entry.ScoredAt)
	}
}

func TestStoreRescoreMissingEntry(t *testing.T) {
	store := newTestStore(newMockRepo())

	if _, err := store.Rescore(context.Background(), uuid.New(), 60); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}
