package visit

import (
	"time"

	"github.com/google/uuid"
)

// Status is the visit lifecycle state. Completed and Cancelled are
// terminal; a return encounter needs a new visit.
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusInConsultation Status = "in_consultation"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// CanTransition reports whether moving from s to next is a legal lifecycle
// step. No transition skips a state: waiting visits must be started before
// completion, and only waiting visits can be cancelled.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusWaiting:
		return next == StatusInConsultation || next == StatusCancelled
	case StatusInConsultation:
		return next == StatusCompleted
	default:
		return false
	}
}

// VisitType distinguishes how the patient presented.
type VisitType string

const (
	TypeWalkIn VisitType = "walk_in"
	TypeRemote VisitType = "remote"
)

// Visit maps to the visit table: one clinical encounter from arrival to
// completion. Rows are never deleted, only transitioned.
type Visit struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	PatientID   uuid.UUID  `db:"patient_id" json:"patient_id"`
	Type        VisitType  `db:"visit_type" json:"visit_type"`
	Status      Status     `db:"status" json:"status"`
	Emergency   bool       `db:"emergency" json:"emergency"`
	ArrivedAt   time.Time  `db:"arrived_at" json:"arrived_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Assignment links a visit to its chosen doctor. At most one active
// assignment exists per visit; completion deactivates it rather than
// deleting the row.
type Assignment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Preference remembers which doctor last treated a patient, biasing future
// selection toward continuity of care. Upserted on completion.
type Preference struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID   uuid.UUID `db:"doctor_id" json:"doctor_id"`
	LastUsedAt time.Time `db:"last_used_at" json:"last_used_at"`
}

// EventType tags event_log rows.
type EventType string

const (
	EventVisitCreated          EventType = "VISIT_CREATED"
	EventConsultationStarted   EventType = "CONSULTATION_STARTED"
	EventConsultationCompleted EventType = "CONSULTATION_COMPLETED"
	EventVisitCancelled        EventType = "VISIT_CANCELLED"
	EventRiskOverridden        EventType = "RISK_OVERRIDDEN"
)

// Event is one append-only audit row. Writing it must never fail the
// operation that produced it.
type Event struct {
	ID        uuid.UUID `db:"id" json:"id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	Type      EventType `db:"event_type" json:"event_type"`
	Detail    string    `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmergencyAlert records a High-risk classification for follow-up. There
// is no paging integration; the row plus a warn log is the whole alert.
type EmergencyAlert struct {
	ID        uuid.UUID `db:"id" json:"id"`
	VisitID   uuid.UUID `db:"visit_id" json:"visit_id"`
	RiskLevel string    `db:"risk_level" json:"risk_level"`
	Message   string    `db:"message" json:"message"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
