package triage

import (
	"context"
	"fmt"
)

// Specialty routing: each symptom maps to the department best placed to
// treat it, and when several departments match, the earlier entry in
// specialtyPriority wins.
var symptomSpecialty = map[string]string{
	"chest pain":          "Cardiology",
	"palpitations":        "Cardiology",
	"shortness of breath": "Pulmonology",
	"cough":               "Pulmonology",
	"headache":            "Neurology",
	"dizziness":           "Neurology",
	"numbness":            "Neurology",
	"abdominal pain":      "Gastroenterology",
	"vomiting":            "Gastroenterology",
	"diarrhea":            "Gastroenterology",
	"fever":               "General Medicine",
	"weakness":            "General Medicine",
}

var specialtyPriority = []string{
	"Cardiology", "Neurology", "Pulmonology", "Gastroenterology", "General Medicine",
}

// redFlagSymptoms force a High classification regardless of vitals.
var redFlagSymptoms = map[string]bool{
	"chest pain":          true,
	"shortness of breath": true,
	"unconsciousness":     true,
	"seizure":             true,
	"severe bleeding":     true,
}

// RuleClassifier is a deterministic, threshold-based Classifier used when
// no external risk model is wired in. It grades vitals derangement and
// red-flag symptoms into the same label/score/specialty shape the model
// returns.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

func (rc *RuleClassifier) Classify(_ context.Context, in Intake) (*Classification, error) {
	if in.Age < 0 {
		return nil, fmt.Errorf("%w: negative age %d", ErrInvalidInput, in.Age)
	}

	points := vitalsPoints(in)
	for _, s := range in.Symptoms {
		if redFlagSymptoms[normalize(s)] {
			points += 4
		}
	}

	cls := &Classification{
		RecommendedSpecialty: RecommendSpecialty(in.Symptoms),
		ModelVersion:         "rules-v1",
	}
	switch {
	case points >= 6:
		cls.Level = RiskHigh
		cls.Score = clampRisk(6 + points/2)
		cls.Confidence = 0.9
	case points >= 3:
		cls.Level = RiskMedium
		cls.Score = clampRisk(3 + points/2)
		cls.Confidence = 0.75
	default:
		cls.Level = RiskLow
		cls.Score = clampRisk(1 + points)
		cls.Confidence = 0.7
	}
	return cls, nil
}

// RecommendSpecialty picks the highest-priority department matched by the
// symptom list, defaulting to General Medicine.
func RecommendSpecialty(symptoms []string) string {
	hits := make(map[string]bool)
	for _, s := range symptoms {
		if dept, ok := symptomSpecialty[normalize(s)]; ok {
			hits[dept] = true
		}
	}
	for _, dept := range specialtyPriority {
		if hits[dept] {
			return dept
		}
	}
	return "General Medicine"
}

// vitalsPoints grades how deranged the vitals are. Zero-valued vitals are
// treated as unmeasured, not pathological.
func vitalsPoints(in Intake) int {
	points := 0

	if in.SystolicBP > 0 {
		switch {
		case in.SystolicBP < 90 || in.SystolicBP > 180:
			points += 3
		case in.SystolicBP > 160:
			points += 1
		}
	}
	if in.HeartRate > 0 {
		switch {
		case in.HeartRate > 130 || in.HeartRate < 45:
			points += 3
		case in.HeartRate > 110 || in.HeartRate < 55:
			points += 1
		}
	}
	if in.Temperature > 0 {
		switch {
		case in.Temperature >= 39.5 || in.Temperature < 35:
			points += 2
		case in.Temperature >= 38:
			points += 1
		}
	}
	if in.Age > 70 || in.Age < 2 {
		points += 1
	}
	return points
}

func clampRisk(score int) int {
	if score < 1 {
		return 1
	}
	if score > 10 {
		return 10
	}
	return score
}
