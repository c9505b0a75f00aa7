package doctor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/triage/internal/domain/triage"
)

// ErrNoDoctorAvailable means every fallback tier was exhausted. Callers
// treat it as a normal outcome: the visit is created unassigned.
var ErrNoDoctorAvailable = errors.New("no doctor available")

// Selection is the selector's decision. The selector never mutates state;
// it only reads profiles and returns this.
type Selection struct {
	Doctor *Profile
	// Continuity is set when the patient's remembered preferred doctor
	// was chosen ahead of load-balancing.
	Continuity bool
	// OffShift is set when the shift filter eliminated every candidate
	// and an off-shift doctor was picked as a fallback.
	OffShift bool
	// FallbackSpecialty is set when the requested specialty had no
	// doctors and the configured default specialty was used instead.
	FallbackSpecialty bool
}

// Selector chooses one doctor for a patient. It is a greedy single-pass
// allocator: one patient at a time, no global reoptimization.
type Selector struct {
	repo             Repository
	defaultSpecialty string
	now              func() time.Time
	logger           zerolog.Logger
}

func NewSelector(repo Repository, defaultSpecialty string, logger zerolog.Logger) *Selector {
	return &Selector{
		repo:             repo,
		defaultSpecialty: defaultSpecialty,
		now:              time.Now,
		logger:           logger,
	}
}

// WithClock overrides the selector's time source. Tests use this to pin
// shift-window checks.
func (s *Selector) WithClock(now func() time.Time) *Selector {
	s.now = now
	return s
}

// Select picks a doctor for the given specialty and risk level. When
// patientID is non-nil, continuity of care is checked first: a remembered
// preferred doctor in the specialty who is available wins outright.
func (s *Selector) Select(ctx context.Context, specialty string, level triage.RiskLevel, patientID *uuid.UUID) (*Selection, error) {
	if patientID != nil {
		preferred, err := s.repo.PreferredDoctor(ctx, *patientID, specialty)
		if err == nil {
			return &Selection{Doctor: preferred, Continuity: true}, nil
		}
		if !errors.Is(err, ErrDoctorNotFound) {
			return nil, fmt.Errorf("look up preferred doctor: %w", err)
		}
	}

	sel, err := s.selectFromSpecialty(ctx, specialty, level)
	if err == nil {
		return sel, nil
	}
	if !errors.Is(err, ErrNoDoctorAvailable) {
		return nil, err
	}

	if s.defaultSpecialty != "" && !strings.EqualFold(specialty, s.defaultSpecialty) {
		sel, err = s.selectFromSpecialty(ctx, s.defaultSpecialty, level)
		if err == nil {
			sel.FallbackSpecialty = true
			return sel, nil
		}
		if !errors.Is(err, ErrNoDoctorAvailable) {
			return nil, err
		}
	}

	return nil, ErrNoDoctorAvailable
}

func (s *Selector) selectFromSpecialty(ctx context.Context, specialty string, level triage.RiskLevel) (*Selection, error) {
	candidates, err := s.repo.Candidates(ctx, specialty)
	if err != nil {
		return nil, fmt.Errorf("list candidates for %s: %w", specialty, err)
	}
	if len(candidates) == 0 {
		return nil, ErrNoDoctorAvailable
	}

	now := s.now()
	onShift := make([]*Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.OnShift(now) {
			onShift = append(onShift, c)
		}
	}

	pool := onShift
	offShift := false
	if len(pool) == 0 {
		// Nobody is inside their shift window. Fall back to any available
		// doctor in the specialty rather than turning the patient away.
		pool = candidates
		offShift = true
		s.logger.Warn().
			Str("specialty", specialty).
			Msg("no on-shift doctor available, ignoring shift windows")
	}

	rank(pool, level)
	return &Selection{Doctor: &pool[0].Profile, OffShift: offShift}, nil
}

// rank orders candidates in place. High risk favors seniority with load as
// the tie-break; everything else favors throughput with seniority as the
// tie-break.
func rank(pool []*Candidate, level triage.RiskLevel) {
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		if level == triage.RiskHigh {
			if a.ExperienceYears != b.ExperienceYears {
				return a.ExperienceYears > b.ExperienceYears
			}
			return a.ActiveLoad < b.ActiveLoad
		}
		if a.ActiveLoad != b.ActiveLoad {
			return a.ActiveLoad < b.ActiveLoad
		}
		return a.ExperienceYears > b.ExperienceYears
	})
}
