package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medtriage-server/internal/domain"
)

func synthesisOf(diagnosis string, confidence float64, severity domain.Severity, specialist string) *domain.Synthesis {
	return &domain.Synthesis{
		FinalDiagnosis:  diagnosis,
		FinalConfidence: confidence,
		Severity:        severity,
		Specialist:      specialist,
	}
}

func TestDetermineCarePathway(t *testing.T) {
	rules := NewRecommendationRules()

	tests := []struct {
		name     string
		syn      *domain.Synthesis
		wantType domain.RecommendationType
		wantUrg  domain.Urgency
	}{
		{
			name:     "emergency keyword in diagnosis",
			syn:      synthesisOf("Suspected heart attack", 0.9, domain.SeverityModerate, "cardiologist"),
			wantType: domain.RecommendEmergencyCare,
			wantUrg:  domain.UrgencyImmediate,
		},
		{
			name:     "emergency specialist",
			syn:      synthesisOf("Polytrauma", 0.8, domain.SeverityModerate, "trauma surgeon"),
			wantType: domain.RecommendEmergencyCare,
			wantUrg:  domain.UrgencyImmediate,
		},
		{
			name:     "critical severity",
			syn:      synthesisOf("Sepsis", 0.85, domain.SeverityCritical, "infectious disease specialist"),
			wantType: domain.RecommendSeeSpecialist,
			wantUrg:  domain.UrgencyImmediate,
		},
		{
			name:     "severe severity",
			syn:      synthesisOf("Pneumonia", 0.8, domain.SeveritySevere, "pulmonologist"),
			wantType: domain.RecommendSeeSpecialist,
			wantUrg:  domain.UrgencyWithinWeek,
		},
		{
			name:     "moderate high confidence",
			syn:      synthesisOf("Gastritis", 0.75, domain.SeverityModerate, "gastroenterologist"),
			wantType: domain.RecommendSeeSpecialist,
			wantUrg:  domain.UrgencyWithinWeek,
		},
		{
			name:     "moderate low confidence",
			syn:      synthesisOf("Gastritis", 0.5, domain.SeverityModerate, "gastroenterologist"),
			wantType: domain.RecommendSeeSpecialist,
			wantUrg:  domain.UrgencyWithinMonth,
		},
		{
			name:     "mild with dermatologist still refers",
			syn:      synthesisOf("Benign nevus", 0.8, domain.SeverityMild, "dermatologist"),
			wantType: domain.RecommendSeeSpecialist,
			wantUrg:  domain.UrgencyWithinMonth,
		},
		{
			name:     "mild general practitioner is self care",
			syn:      synthesisOf("Common cold", 0.8, domain.SeverityMild, "general practitioner"),
			wantType: domain.RecommendSelfCare,
			wantUrg:  domain.UrgencyWithinMonth,
		},
		{
			name:     "unknown severity low confidence refers",
			syn:      synthesisOf("Unclear presentation", 0.3, domain.Severity("unknown"), "general practitioner"),
			wantType: domain.RecommendSeeSpecialist,
			wantUrg:  domain.UrgencyWithinMonth,
		},
		{
			name:     "unknown severity decent confidence self care",
			syn:      synthesisOf("Seasonal allergy", 0.6, domain.Severity("unknown"), "general practitioner"),
			wantType: domain.RecommendSelfCare,
			wantUrg:  domain.UrgencyWithinMonth,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotUrg := rules.Determine(tt.syn)
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantUrg, gotUrg)
		})
	}
}

func TestFallbackSelfCareAdviceNonEmpty(t *testing.T) {
	assert.Len(t, FallbackSelfCareAdvice, 5)
	for _, advice := range FallbackSelfCareAdvice {
		assert.NotEmpty(t, advice)
	}
}
