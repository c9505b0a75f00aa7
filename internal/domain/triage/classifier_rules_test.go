package triage

import (
	"context"
	"errors"
	"testing"
)

func TestRuleClassifierUnremarkableIntakeIsLow(t *testing.T) {
	cls, err := NewRuleClassifier().Classify(context.Background(), Intake{
		Age:         30,
		SystolicBP:  120,
		HeartRate:   72,
		Temperature: 36.8,
		Symptoms:    []string{"sore throat"},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cls.Level != RiskLow {
		t.Fatalf("expected Low, got %s", cls.Level)
	}
	if cls.Score != 1 {
		t.Fatalf("expected score 1, got %d", cls.Score)
	}
	if cls.RecommendedSpecialty != "General Medicine" {
		t.Fatalf("expected General Medicine fallback, got %s", cls.RecommendedSpecialty)
	}
}

func TestRuleClassifierRedFlagSymptomIsHigh(t *testing.T) {
	cls, err := NewRuleClassifier().Classify(context.Background(), Intake{
		Age:         45,
		SystolicBP:  125,
		HeartRate:   88,
		Temperature: 37.0,
		Symptoms:    []string{"Chest Pain", "shortness of breath"},
	})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	// two red flags at 4 points each
	if cls.Level != RiskHigh {
		t.Fatalf("expected High, got %s", cls.Level)
	}
	if cls.Score != 10 {
		t.Fatalf("expected score 10, got %d", cls.Score)
	}
	if cls.RecommendedSpecialty != "Cardiology" {
		t.Fatalf("expected Cardiology, got %s", cls.RecommendedSpecialty)
	}
}

func TestRuleClassifierDerangedVitals(t *testing.T) {
	cases := []struct {
		name string
		in   Intake
		want RiskLevel
	}{
		{"hypotensive tachycardic", Intake{Age: 50, SystolicBP: 82, HeartRate: 140}, RiskHigh},
		{"mild hypertension", Intake{Age: 50, SystolicBP: 165, HeartRate: 80}, RiskLow},
		{"febrile elderly", Intake{Age: 78, Temperature: 39.8}, RiskMedium},
		{"low-grade fever", Intake{Age: 40, Temperature: 38.2}, RiskLow},
		{"bradycardic", Intake{Age: 40, HeartRate: 42}, RiskMedium},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls, err := NewRuleClassifier().Classify(context.Background(), tc.in)
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if cls.Level != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, cls.Level)
			}
		})
	}
}

func TestRuleClassifierUnmeasuredVitalsAddNothing(t *testing.T) {
	cls, err := NewRuleClassifier().Classify(context.Background(), Intake{Age: 30})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if cls.Level != RiskLow || cls.Score != 1 {
		t.Fatalf("expected Low/1 for blank vitals, got %s/%d", cls.Level, cls.Score)
	}
}

func TestRuleClassifierRejectsNegativeAge(t *testing.T) {
	_, err := NewRuleClassifier().Classify(context.Background(), Intake{Age: -1})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRecommendSpecialtyPriorityOrder(t *testing.T) {
	cases := []struct {
		name     string
		symptoms []string
		want     string
	}{
		{"cardiac beats neuro", []string{"headache", "chest pain"}, "Cardiology"},
		{"neuro beats gastro", []string{"vomiting", "dizziness"}, "Neurology"},
		{"pulmonary alone", []string{"cough"}, "Pulmonology"},
		{"gastro alone", []string{"Diarrhea"}, "Gastroenterology"},
		{"unknown falls back", []string{"itchy elbow"}, "General Medicine"},
		{"empty falls back", nil, "General Medicine"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RecommendSpecialty(tc.symptoms); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestOverridePriorityMapping(t *testing.T) {
	if got := OverridePriority(RiskHigh); got != 100 {
		t.Fatalf("High: expected 100, got %d", got)
	}
	if got := OverridePriority(RiskMedium); got != 60 {
		t.Fatalf("Medium: expected 60, got %d", got)
	}
	if got := OverridePriority(RiskLow); got != 30 {
		t.Fatalf("Low: expected 30, got %d", got)
	}
}
