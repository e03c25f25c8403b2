package workflow

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/medtriage-server/internal/domain"
)

// Regular expressions for pulling structured fields out of free-form
// synthesis output. Each field has ordered fallbacks; the first match with
// enough substance wins.
var (
	severityRe = regexp.MustCompile(`(?im)(?:^|\n)\s*-?\s*Severity:\s*(\w+)`)

	explanationRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:^|\n)\s*-?\s*User Explanation:\s*(.+?)(?:\n\s*-?\s*Clinical Reasoning|\n\s*-?\s*Specialist|$)`),
		regexp.MustCompile(`(?is)User Explanation:\s*(.+?)(?:Clinical Reasoning|Specialist|$)`),
	}

	reasoningRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)(?:^|\n)\s*-?\s*Clinical Reasoning:\s*(.+?)(?:\n\s*-?\s*Specialist|$)`),
		regexp.MustCompile(`(?is)Clinical Reasoning:\s*(.+?)(?:Specialist|$)`),
	}

	specialistRe = regexp.MustCompile(`(?im)(?:^|\n)\s*-?\s*Specialist:\s*([^\n]+)`)

	skinDiagnosisRes = []*regexp.Regexp{
		regexp.MustCompile(`(?im)(?:^|\n)\s*-?\s*Final Diagnosis:\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?im)Final Diagnosis:\s*(.+?)(?:\n|$)`),
		regexp.MustCompile(`(?im)(?:^|\n)\s*-?\s*Diagnosis:\s*(.+?)(?:\n|$)`),
	}

	skinConfidenceRes = []*regexp.Regexp{
		regexp.MustCompile(`(?im)(?:^|\n)\s*-?\s*Confidence:\s*([\d.]+)`),
		regexp.MustCompile(`(?im)Confidence:\s*([\d.]+)`),
		regexp.MustCompile(`(?im)certainty[:\s]*([\d.]+)`),
	}

	whitespaceRe     = regexp.MustCompile(`\s+`)
	leadingNonWordRe = regexp.MustCompile(`^[^\w]*`)
	specialistCharRe = regexp.MustCompile(`[^a-z\s/]`)
	specialistOrRe   = regexp.MustCompile(`\s+or\s+`)
)

// parseSynthesis extracts the enrichment fields for the textual and
// follow-up strategies. The diagnosis and confidence stay pinned to the
// primary candidate; only severity, explanations, and specialist come
// from the generated text.
func parseSynthesis(text, diagnosis string, confidence float64) *domain.Synthesis {
	severity := domain.SeverityModerate
	if m := severityRe.FindStringSubmatch(text); m != nil {
		candidate := domain.Severity(strings.ToLower(strings.TrimSpace(m[1])))
		if candidate.IsValid() {
			severity = candidate
		}
	}

	explanation := extractProse(text, explanationRes, 10)
	if explanation == "" {
		explanation = "Enhanced analysis performed based on available data"
	}

	reasoning := extractProse(text, reasoningRes, 20)
	if reasoning == "" {
		reasoning = fmt.Sprintf("The diagnosis %s was determined based on systematic analysis of the provided symptoms and clinical evidence. The confidence level reflects diagnostic certainty based on available data.", diagnosis)
	}

	return &domain.Synthesis{
		FinalDiagnosis:    diagnosis,
		FinalConfidence:   confidence,
		Severity:          severity,
		UserExplanation:   explanation,
		ClinicalReasoning: reasoning,
		Specialist:        extractSpecialist(text, "general_practitioner"),
	}
}

// parseSkinSynthesis extracts the full synthesis for the lesion workflow,
// where the generated text also decides the final diagnosis and
// confidence. Parse failures fall back to the image diagnosis with a
// concordance-adjusted confidence.
func parseSkinSynthesis(text string, findings *domain.ImageFindings, metrics *domain.RiskMetrics) *domain.Synthesis {
	var diagnosis string
	for _, re := range skinDiagnosisRes {
		if m := re.FindStringSubmatch(text); m != nil {
			candidate := leadingNonWordRe.ReplaceAllString(strings.TrimSpace(m[1]), "")
			if len(candidate) > 5 {
				diagnosis = candidate
				break
			}
		}
	}

	confidence := -1.0
	for _, re := range skinConfidenceRes {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil && v >= 0 && v <= 1 {
				confidence = v
				break
			}
		}
	}

	if diagnosis == "" || confidence < 0 {
		diagnosis, confidence = concordanceFallback(findings, metrics)
	}

	severity := domain.SeverityModerate
	if m := severityRe.FindStringSubmatch(text); m != nil {
		candidate := domain.Severity(strings.ToLower(strings.TrimSpace(m[1])))
		if candidate.IsValid() {
			severity = candidate
		}
	}

	explanation := extractProse(text, explanationRes, 15)
	if explanation == "" {
		explanation = fmt.Sprintf("%s has been identified through comprehensive skin analysis including ABCDE screening and image evaluation.", diagnosis)
	}

	reasoning := extractProse(text, reasoningRes, 25)
	if reasoning == "" {
		coreScore, riskTier := 0.0, domain.RiskTier("unknown")
		if metrics != nil {
			coreScore, riskTier = metrics.CoreScore, metrics.RiskTier
		}
		reasoning = fmt.Sprintf("Diagnosis %s determined through integration of ABCDE screening (score: %.1f/9.0, risk: %s) and image analysis findings. Evidence concordance supports this assessment.", diagnosis, coreScore, riskTier)
	}

	return &domain.Synthesis{
		FinalDiagnosis:    diagnosis,
		FinalConfidence:   confidence,
		Severity:          severity,
		UserExplanation:   explanation,
		ClinicalReasoning: reasoning,
		Specialist:        extractSpecialist(text, "dermatologist"),
	}
}

// concordanceFallback derives diagnosis and confidence from the image
// classifier, adjusted by agreement with the ABCDE risk tier.
func concordanceFallback(findings *domain.ImageFindings, metrics *domain.RiskMetrics) (string, float64) {
	diagnosis := "Unknown"
	imageConfidence := 0.5
	if findings != nil {
		if findings.Label != "" {
			diagnosis = findings.Label
		}
		best := 0.0
		for _, p := range findings.ClassProbabilities {
			if p > best {
				best = p
			}
		}
		if best > 0 {
			imageConfidence = best
		}
	}

	riskTier := domain.RiskTier("unknown")
	if metrics != nil {
		riskTier = metrics.RiskTier
	}

	diagLower := strings.ToLower(diagnosis)
	switch {
	case riskTier == domain.RiskHigh && strings.Contains(diagLower, "melanoma"):
		return diagnosis, math.Min(0.9, imageConfidence+0.2)
	case riskTier == domain.RiskLow && strings.Contains(diagLower, "benign"):
		return diagnosis, math.Min(0.85, imageConfidence+0.15)
	default:
		return diagnosis, math.Max(0.4, imageConfidence-0.1)
	}
}

// extractProse runs the ordered patterns and returns the first match
// longer than minLen after whitespace collapsing.
func extractProse(text string, patterns []*regexp.Regexp, minLen int) string {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.TrimSpace(m[1])
		candidate = whitespaceRe.ReplaceAllString(candidate, " ")
		candidate = leadingNonWordRe.ReplaceAllString(candidate, "")
		if len(candidate) > minLen {
			return candidate
		}
	}
	return ""
}

// extractSpecialist normalizes the specialist field to lowercase letters,
// spaces, and slashes, joining alternatives with " / ".
func extractSpecialist(text, fallback string) string {
	m := specialistRe.FindStringSubmatch(text)
	if m == nil {
		return fallback
	}
	specialist := strings.ToLower(strings.TrimSpace(m[1]))
	specialist = specialistCharRe.ReplaceAllString(specialist, "")
	specialist = specialistOrRe.ReplaceAllString(specialist, " / ")
	specialist = strings.TrimSpace(specialist)
	if len(specialist) <= 3 {
		return fallback
	}
	return specialist
}
