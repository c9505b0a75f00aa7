package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/triage/internal/platform/lock"
)

type capturePublisher struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (p *capturePublisher) PublishQueue(_ uuid.UUID, s Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, s)
}

func (p *capturePublisher) last() *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return &p.snapshots[len(p.snapshots)-1]
}

func TestWaitBoostSchedule(t *testing.T) {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	cases := []struct {
		waited time.Duration
		want   int
	}{
		{0, 0},
		{29 * time.Minute, 0},
		{30 * time.Minute, 0},
		{44 * time.Minute, 0},
		{45 * time.Minute, 2},
		{59 * time.Minute, 2},
		{60 * time.Minute, 4},
		{90 * time.Minute, 8},
		{3 * time.Hour, 20},
	}
	for _, tc := range cases {
		if got := WaitBoost(base, base.Add(tc.waited)); got != tc.want {
			t.Errorf("waited %v: expected boost %d, got %d", tc.waited, tc.want, got)
		}
	}
}

func TestReconcileOrdersByDynamicScore(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	pub := &capturePublisher{}
	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, pub, zerolog.Nop()).
		WithClock(func() time.Time { return base })

	doctorID := uuid.New()
	low := uuid.New()
	high := uuid.New()
	store.Enqueue(context.Background(), low, doctorID, 30, false)
	store.Enqueue(context.Background(), high, doctorID, 80, false)

	snapshot, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(snapshot.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snapshot.Entries))
	}
	if snapshot.Entries[0].VisitID != high || snapshot.Entries[0].Position != 1 {
		t.Fatalf("expected high-score visit first, got %+v", snapshot.Entries[0])
	}
	if snapshot.Entries[1].VisitID != low || snapshot.Entries[1].Position != 2 {
		t.Fatalf("expected low-score visit second, got %+v", snapshot.Entries[1])
	}
	if pub.last() == nil {
		t.Fatal("expected a published snapshot")
	}
}

func TestReconcileEqualScoresKeepArrivalOrder(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, nil, zerolog.Nop()).
		WithClock(func() time.Time { return base })

	doctorID := uuid.New()
	first := uuid.New()
	second := uuid.New()
	store.Enqueue(context.Background(), first, doctorID, 55, false)
	store.Enqueue(context.Background(), second, doctorID, 55, false)

	snapshot, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if snapshot.Entries[0].VisitID != first || snapshot.Entries[1].VisitID != second {
		t.Fatal("expected first-come-first-served order for equal scores")
	}
}

func TestReconcileTieBreakSurvivesReordering(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	doctorID := uuid.New()

	earlier := uuid.New()
	store.Enqueue(context.Background(), earlier, doctorID, 50, false)

	arrival2 := base.Add(15 * time.Minute)
	later := uuid.New()
	store.WithClock(func() time.Time { return arrival2 })
	store.Enqueue(context.Background(), later, doctorID, 52, false)

	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, nil, zerolog.Nop()).
		WithClock(func() time.Time { return arrival2 })

	// First reconcile puts the higher static score in front, rewriting
	// both positions.
	snapshot, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if snapshot.Entries[0].VisitID != later {
		t.Fatalf("expected higher static score first, got %+v", snapshot.Entries[0])
	}

	// 45 minutes after the first arrival its boost reaches 2, so both
	// sit at dynamic 52. The earlier arrival must come out in front.
	rec.WithClock(func() time.Time { return base.Add(45 * time.Minute) })
	snapshot, err = rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if snapshot.Entries[0].DynamicScore != snapshot.Entries[1].DynamicScore {
		t.Fatalf("expected a dynamic-score tie, got %d vs %d",
			snapshot.Entries[0].DynamicScore, snapshot.Entries[1].DynamicScore)
	}
	if snapshot.Entries[0].VisitID != earlier {
		t.Fatal("expected the earlier arrival to win the tie after reordering")
	}
}

func TestReconcileAppliesWaitBoost(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	doctorID := uuid.New()

	patient := uuid.New()
	store.Enqueue(context.Background(), patient, doctorID, 50, false)

	later := base.Add(46 * time.Minute) // 16 past the grace window
	walkIn := uuid.New()
	store.WithClock(func() time.Time { return later })
	store.Enqueue(context.Background(), walkIn, doctorID, 51, false)

	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, nil, zerolog.Nop()).
		WithClock(func() time.Time { return later })

	snapshot, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// 50 static + 2 boost beats 51 static with no boost.
	if snapshot.Entries[0].VisitID != patient {
		t.Fatalf("expected boosted visit first, got %+v", snapshot.Entries[0])
	}
	if snapshot.Entries[0].WaitBoost != 2 || snapshot.Entries[0].DynamicScore != 52 {
		t.Fatalf("expected boost 2 / dynamic 52, got %+v", snapshot.Entries[0])
	}
}

func TestReconcileCapsDynamicScore(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	doctorID := uuid.New()
	visitID := uuid.New()
	store.Enqueue(context.Background(), visitID, doctorID, 99, false)

	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, nil, zerolog.Nop()).
		WithClock(func() time.Time { return base.Add(2 * time.Hour) })

	snapshot, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if snapshot.Entries[0].DynamicScore != 100 {
		t.Fatalf("expected dynamic score capped at 100, got %d", snapshot.Entries[0].DynamicScore)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	doctorID := uuid.New()
	store.Enqueue(context.Background(), uuid.New(), doctorID, 30, false)
	store.Enqueue(context.Background(), uuid.New(), doctorID, 80, false)
	store.Enqueue(context.Background(), uuid.New(), doctorID, 55, false)

	at := base.Add(50 * time.Minute)
	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, nil, zerolog.Nop()).
		WithClock(func() time.Time { return at })

	first, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	if len(first.Entries) != len(second.Entries) {
		t.Fatalf("entry count changed: %d vs %d", len(first.Entries), len(second.Entries))
	}
	for i := range first.Entries {
		a, b := first.Entries[i], second.Entries[i]
		if a.VisitID != b.VisitID || a.Position != b.Position || a.DynamicScore != b.DynamicScore {
			t.Fatalf("ordering changed between reconciles: %+v vs %+v", a, b)
		}
	}
}

func TestReconcileRepairsGappedPositions(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })
	doctorID := uuid.New()

	first := uuid.New()
	second := uuid.New()
	third := uuid.New()
	store.Enqueue(context.Background(), first, doctorID, 50, false)
	store.Enqueue(context.Background(), second, doctorID, 50, false)
	store.Enqueue(context.Background(), third, doctorID, 50, false)

	// Dequeue the middle entry and skip the usual follow-up reconcile,
	// leaving positions 1 and 3.
	store.Dequeue(context.Background(), second)

	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, nil, zerolog.Nop()).
		WithClock(func() time.Time { return base })

	snapshot, err := rec.Reconcile(context.Background(), doctorID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(snapshot.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(snapshot.Entries))
	}
	for i, e := range snapshot.Entries {
		if e.Position != i+1 {
			t.Fatalf("expected dense positions, got %d at rank %d", e.Position, i+1)
		}
	}
	if snapshot.Entries[0].VisitID != first || snapshot.Entries[1].VisitID != third {
		t.Fatal("expected surviving entries in original order")
	}
}

func TestReconcileAllSweepsEveryDoctor(t *testing.T) {
	repo := newMockRepo()
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newTestStore(repo).WithClock(func() time.Time { return base })

	docA := uuid.New()
	docB := uuid.New()
	store.Enqueue(context.Background(), uuid.New(), docA, 40, false)
	store.Enqueue(context.Background(), uuid.New(), docB, 70, false)

	pub := &capturePublisher{}
	rec := NewReconciler(repo, lock.NewMutexKeyed(), PassthroughTx, pub, zerolog.Nop()).
		WithClock(func() time.Time { return base })

	n, err := rec.ReconcileAll(context.Background())
	if err != nil {
		t.Fatalf("reconcile all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 doctors reconciled, got %d", n)
	}
	if len(pub.snapshots) != 2 {
		t.Fatalf("expected 2 snapshots published, got %d", len(pub.snapshots))
	}
}
