package triage

import (
	"fmt"
	"strings"
)

// WeightTable resolves a condition or symptom name to an integer weight.
// The found flag lets the scorer apply its explicit default instead of a
// silent zero for names the table does not know.
type WeightTable interface {
	Resolve(name string) (weight int, found bool)
}

// MapWeights is a WeightTable backed by a case-insensitive map. Build it
// once at startup and share it; it is immutable after construction.
type MapWeights struct {
	weights map[string]int
}

func NewMapWeights(weights map[string]int) *MapWeights {
	normalized := make(map[string]int, len(weights))
	for name, w := range weights {
		normalized[normalize(name)] = w
	}
	return &MapWeights{weights: normalized}
}

func (t *MapWeights) Resolve(name string) (int, bool) {
	w, ok := t.weights[normalize(name)]
	return w, ok
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Rule is a named trigger set contributing a weighted bonus to the priority
// score. A rule with EmergencyOverride set forces the emergency boost even
// when intake did not flag the visit as an emergency.
type Rule struct {
	Name              string
	Triggers          []string
	BasePriority      int
	EmergencyOverride bool
}

func (r Rule) matches(names []string) bool {
	for _, trigger := range r.Triggers {
		t := normalize(trigger)
		for _, n := range names {
			if normalize(n) == t {
				return true
			}
		}
	}
	return false
}

// ScorerConfig fixes the lookup tables, fallback weights, and rule set for
// a Scorer. Defaults are deliberately nonzero so an unrecognized but
// reported symptom still raises urgency.
type ScorerConfig struct {
	ChronicWeights       WeightTable
	SymptomWeights       WeightTable
	DefaultChronicWeight int
	DefaultSymptomWeight int
	Rules                []Rule
}

// Scorer converts a risk classification plus patient attributes into a
// static urgency score in [0,100]. It is pure: same input, same output,
// no side effects.
type Scorer struct {
	cfg ScorerConfig
}

func NewScorer(cfg ScorerConfig) *Scorer {
	if cfg.ChronicWeights == nil {
		cfg.ChronicWeights = NewMapWeights(nil)
	}
	if cfg.SymptomWeights == nil {
		cfg.SymptomWeights = NewMapWeights(nil)
	}
	if cfg.DefaultChronicWeight == 0 {
		cfg.DefaultChronicWeight = 5
	}
	if cfg.DefaultSymptomWeight == 0 {
		cfg.DefaultSymptomWeight = 3
	}
	return &Scorer{cfg: cfg}
}

// ScoreInput is one visit's scoring context.
type ScoreInput struct {
	RiskScore         int // 1-10, from the classifier
	Age               int
	ChronicConditions []string
	Symptoms          []string
	Emergency         bool // external emergency flag from intake
}

// ScoreResult carries the clamped total plus the effective emergency bit
// (intake flag or any matched rule's override).
type ScoreResult struct {
	Score        int
	Emergency    bool
	MatchedRules []string
}

// Score computes the weighted-sum urgency score. Each term is computed
// independently, then the total is clamped to [0,100].
func (s *Scorer) Score(in ScoreInput) (ScoreResult, error) {
	if in.RiskScore < 1 || in.RiskScore > 10 {
		return ScoreResult{}, fmt.Errorf("%w: risk score %d out of range 1-10", ErrInvalidInput, in.RiskScore)
	}
	if in.Age < 0 {
		return ScoreResult{}, fmt.Errorf("%w: negative age %d", ErrInvalidInput, in.Age)
	}

	total := in.RiskScore * 3
	total += ageTerm(in.Age)

	for _, cond := range in.ChronicConditions {
		w, ok := s.cfg.ChronicWeights.Resolve(cond)
		if !ok {
			w = s.cfg.DefaultChronicWeight
		}
		total += w
	}

	for _, sym := range in.Symptoms {
		w, ok := s.cfg.SymptomWeights.Resolve(sym)
		if !ok {
			w = s.cfg.DefaultSymptomWeight
		}
		total += w
	}

	names := make([]string, 0, len(in.Symptoms)+len(in.ChronicConditions))
	names = append(names, in.Symptoms...)
	names = append(names, in.ChronicConditions...)

	emergency := in.Emergency
	var matched []string
	for _, rule := range s.cfg.Rules {
		if !rule.matches(names) {
			continue
		}
		matched = append(matched, rule.Name)
		total += rule.BasePriority * 5
		if rule.EmergencyOverride {
			emergency = true
		}
	}

	if emergency {
		total += 50
	}

	return ScoreResult{Score: clamp(total), Emergency: emergency, MatchedRules: matched}, nil
}

func ageTerm(age int) int {
	switch {
	case age > 70 || age < 2:
		return 15
	case (age > 50 && age <= 70) || (age >= 2 && age < 12):
		return 10
	default:
		return 0
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
