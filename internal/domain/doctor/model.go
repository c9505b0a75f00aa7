package doctor

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Profile maps to the doctor table. Availability and shift windows are
// external configuration from this engine's point of view; the engine only
// reads them.
type Profile struct {
	ID              uuid.UUID `db:"id" json:"id"`
	FullName        string    `db:"full_name" json:"full_name"`
	Specialty       string    `db:"specialty" json:"specialty"`
	ExperienceYears int       `db:"experience_years" json:"experience_years"`
	Available       bool      `db:"available" json:"available"`
	ShiftStart      string    `db:"shift_start" json:"shift_start"` // "HH:MM"
	ShiftEnd        string    `db:"shift_end" json:"shift_end"`     // "HH:MM"
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// OnShift reports whether the doctor's shift window contains the given
// time-of-day. Comparison is same-day only; overnight wraps are not
// supported and such windows simply never match.
func (p *Profile) OnShift(now time.Time) bool {
	start, err := minuteOfDay(p.ShiftStart)
	if err != nil {
		return false
	}
	end, err := minuteOfDay(p.ShiftEnd)
	if err != nil {
		return false
	}

	current := now.Hour()*60 + now.Minute()
	return start <= current && current <= end
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, fmt.Errorf("parse shift time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Candidate is a doctor under consideration for assignment, with the
// derived active-assignment load attached.
type Candidate struct {
	Profile
	ActiveLoad int `db:"active_load" json:"active_load"`
}
