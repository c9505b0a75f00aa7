package triage

// DefaultSymptomWeights returns the clinic's stock symptom severity table.
// Deployments load their own table from configuration data; this one covers
// the common intake vocabulary.
func DefaultSymptomWeights() *MapWeights {
	return NewMapWeights(map[string]int{
		// Critical
		"chest pain":           9,
		"difficulty breathing": 9,
		"shortness of breath":  9,
		"unconsciousness":      10,
		"severe bleeding":      10,
		"stroke symptoms":      10,
		"seizure":              9,
		// High
		"high fever":            8,
		"severe abdominal pain": 8,
		"head injury":           8,
		"palpitations":          7,
		// Medium
		"fever":               5,
		"persistent headache": 5,
		"vomiting":            5,
		"abdominal pain":      5,
		"dizziness":           5,
		"numbness":            5,
		"diarrhea":            4,
		"body aches":          4,
		"headache":            4,
		// Low
		"cough":       2,
		"sore throat": 2,
		"fatigue":     2,
		"weakness":    2,
		"runny nose":  1,
		"minor cut":   1,
	})
}

// DefaultChronicWeights returns the stock chronic-condition risk table.
func DefaultChronicWeights() *MapWeights {
	return NewMapWeights(map[string]int{
		"heart disease":          9,
		"chronic kidney disease": 8,
		"ckd":                    8,
		"copd":                   7,
		"diabetes":               6,
		"hypertension":           5,
		"asthma":                 5,
		"cancer":                 8,
		"immunocompromised":      7,
	})
}

// DefaultRules returns the stock escalation rules applied on top of the
// weighted sums. The cardiac and respiratory rules carry the emergency
// override: those presentations jump the queue regardless of the intake
// emergency checkbox.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:              "cardiac-presentation",
			Triggers:          []string{"chest pain", "palpitations", "heart attack symptoms"},
			BasePriority:      2,
			EmergencyOverride: true,
		},
		{
			Name:              "respiratory-distress",
			Triggers:          []string{"difficulty breathing", "shortness of breath"},
			BasePriority:      2,
			EmergencyOverride: true,
		},
		{
			Name:         "neuro-presentation",
			Triggers:     []string{"stroke symptoms", "seizure", "numbness"},
			BasePriority: 2,
		},
		{
			Name:         "sepsis-watch",
			Triggers:     []string{"high fever", "fever"},
			BasePriority: 1,
		},
	}
}
