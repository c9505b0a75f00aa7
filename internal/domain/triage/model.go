package triage

import (
	"time"

	"github.com/google/uuid"
)

// RiskLevel is the categorical outcome of classification.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// Valid reports whether the level is one of the three known labels.
func (l RiskLevel) Valid() bool {
	return l == RiskLow || l == RiskMedium || l == RiskHigh
}

// Intake carries the patient attributes handed to the classifier and the
// priority scorer on arrival.
type Intake struct {
	Age               int      `json:"age"`
	Gender            string   `json:"gender,omitempty"`
	SystolicBP        float64  `json:"systolic_bp"`
	HeartRate         float64  `json:"heart_rate"`
	Temperature       float64  `json:"temperature"`
	Symptoms          []string `json:"symptoms"`
	ChronicConditions []string `json:"chronic_conditions"`
}

// Classification is the classifier's verdict for one intake.
type Classification struct {
	Level                RiskLevel `json:"risk_level"`
	Score                int       `json:"risk_score"` // 1-10
	Confidence           float64   `json:"confidence"` // 0-1
	RecommendedSpecialty string    `json:"recommended_specialty"`
	ModelVersion         string    `json:"model_version,omitempty"`
	Explanation          string    `json:"explanation,omitempty"`
}

// Assessment maps to the risk_assessment table. Assessments are append-only:
// a manual override inserts a new row with Overridden set and leaves the
// original in place.
type Assessment struct {
	ID                   uuid.UUID `db:"id" json:"id"`
	VisitID              uuid.UUID `db:"visit_id" json:"visit_id"`
	Level                RiskLevel `db:"risk_level" json:"risk_level"`
	Score                int       `db:"risk_score" json:"risk_score"`
	Confidence           float64   `db:"confidence" json:"confidence"`
	RecommendedSpecialty string    `db:"recommended_specialty" json:"recommended_specialty"`
	ModelVersion         *string   `db:"model_version" json:"model_version,omitempty"`
	Overridden           bool      `db:"overridden" json:"overridden"`
	OverriddenBy         *string   `db:"overridden_by" json:"overridden_by,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// OverridePriority maps a manually assigned risk label to a static priority
// score. Overrides bypass the full scorer on purpose: the clinician has
// already made the call, so the label alone decides.
func OverridePriority(level RiskLevel) int {
	switch level {
	case RiskHigh:
		return 100
	case RiskMedium:
		return 60
	default:
		return 30
	}
}
