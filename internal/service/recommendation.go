package service

import (
	"strings"

	"github.com/medtriage-server/internal/domain"
)

// emergencyKeywords in a diagnosis force the emergency care pathway
// regardless of severity.
var emergencyKeywords = []string{
	"heart attack", "myocardial infarction", "stroke", "severe bleeding",
	"difficulty breathing", "chest pain", "severe injury", "unconscious",
	"seizure", "anaphylaxis", "severe trauma", "cardiac arrest",
}

// emergencySpecialists route to emergency care when they appear in the
// recommended specialist field.
var emergencySpecialists = []string{
	"emergency", "trauma", "critical care", "intensive care",
}

// specialistIndicators force a specialist referral even for mild findings.
var specialistIndicators = []string{
	"oncologist", "cardiologist", "neurologist", "dermatologist",
}

// FallbackSelfCareAdvice is used when advice generation fails or returns
// nothing usable.
var FallbackSelfCareAdvice = []string{
	"Monitor symptoms closely",
	"Rest and stay hydrated",
	"Take over-the-counter medications as needed",
	"Seek medical attention if symptoms worsen",
	"Follow up with healthcare provider as recommended",
}

// RecommendationRules maps a synthesis result to a care pathway and
// urgency. Pure and total; self-care advice text is generated separately.
type RecommendationRules struct{}

// NewRecommendationRules creates the care-pathway rule set.
func NewRecommendationRules() *RecommendationRules {
	return &RecommendationRules{}
}

// Determine selects the recommendation type and appointment urgency from
// the final diagnosis, its confidence, the severity, and the recommended
// specialist.
func (r *RecommendationRules) Determine(syn *domain.Synthesis) (domain.RecommendationType, domain.Urgency) {
	diagLower := strings.ToLower(syn.FinalDiagnosis)
	specLower := strings.ToLower(syn.Specialist)

	if containsAny(diagLower, emergencyKeywords) || strings.ToLower(string(syn.Severity)) == "emergency" {
		return domain.RecommendEmergencyCare, domain.UrgencyImmediate
	}
	if containsAny(specLower, emergencySpecialists) {
		return domain.RecommendEmergencyCare, domain.UrgencyImmediate
	}

	switch syn.Severity {
	case domain.SeverityCritical:
		return domain.RecommendSeeSpecialist, domain.UrgencyImmediate
	case domain.SeveritySevere:
		return domain.RecommendSeeSpecialist, domain.UrgencyWithinWeek
	case domain.SeverityModerate:
		if syn.FinalConfidence >= 0.7 {
			return domain.RecommendSeeSpecialist, domain.UrgencyWithinWeek
		}
		return domain.RecommendSeeSpecialist, domain.UrgencyWithinMonth
	case domain.SeverityMild:
		if strings.Contains(specLower, "specialist") || containsAny(specLower, specialistIndicators) {
			return domain.RecommendSeeSpecialist, domain.UrgencyWithinMonth
		}
		return domain.RecommendSelfCare, domain.UrgencyWithinMonth
	}

	// Unknown severity: low confidence or a named specialist still gets a
	// referral, otherwise self care.
	if syn.FinalConfidence < 0.4 || strings.Contains(specLower, "specialist") {
		return domain.RecommendSeeSpecialist, domain.UrgencyWithinMonth
	}
	return domain.RecommendSelfCare, domain.UrgencyWithinMonth
}
