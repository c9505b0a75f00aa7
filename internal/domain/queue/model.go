package queue

import (
	"time"

	"github.com/google/uuid"
)

// Entry maps to the queue_entry table: one visit's slot in one doctor's
// waiting line. There is at most one entry per waiting visit; the row is
// removed, not archived, when the visit leaves the queue.
type Entry struct {
	ID           uuid.UUID `db:"id" json:"id"`
	VisitID      uuid.UUID `db:"visit_id" json:"visit_id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	StaticScore  int       `db:"static_score" json:"static_score"`
	WaitBoost    int       `db:"wait_boost" json:"wait_boost"`
	DynamicScore int       `db:"dynamic_score" json:"dynamic_score"`
	Position     int       `db:"position" json:"position"`
	Emergency    bool      `db:"emergency" json:"emergency"`
	// ScoredAt is when the static score was last computed (enqueue or risk
	// override). The wait boost ages from this instant.
	ScoredAt   time.Time `db:"scored_at" json:"scored_at"`
	EnqueuedAt time.Time `db:"enqueued_at" json:"enqueued_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Snapshot is the full ordered queue for one doctor, broadcast to
// doctor-facing clients after every reconciliation.
type Snapshot struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Entries     []*Entry  `json:"entries"`
}

// Publisher delivers queue snapshots to doctor-facing clients. Delivery is
// at-most-once and best-effort: failures must never roll back the
// reconciliation that produced the snapshot.
type Publisher interface {
	PublishQueue(doctorID uuid.UUID, snapshot Snapshot)
}

// NopPublisher discards snapshots.
type NopPublisher struct{}

func (NopPublisher) PublishQueue(uuid.UUID, Snapshot) {}
