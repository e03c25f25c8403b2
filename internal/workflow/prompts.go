package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/medtriage-server/internal/domain"
)

// Generation token limits per prompt kind.
const (
	diagnosisMaxTokens      = 65
	synthesisTextualTokens  = 400
	synthesisSkinTokens     = 600
	synthesisFollowUpTokens = 300
	guidanceMaxTokens       = 200
	selfCareMaxTokens       = 300
	synthesisTemperature    = 0.3
	guidanceTemperature     = 0.2
)

// diagnosisPrompt asks for a fixed-format differential list.
func diagnosisPrompt(symptoms string) string {
	return fmt.Sprintf(`Symptoms: %s
List 5 most possible diagnoses in this exact format ONLY:
- diagnosis: <name>
`, symptoms)
}

// textualSynthesisPrompt enriches a confirmed textual-only diagnosis with
// severity, explanation, reasoning, and a specialist recommendation.
func textualSynthesisPrompt(symptoms, diagnosis string, confidence float64) string {
	return fmt.Sprintf(`MEDICAL ANALYSIS

CONFIRMED DIAGNOSIS: %s (Confidence: %.2f)
Original Symptoms: %s

Based on the confirmed diagnosis above, provide output in this EXACT format:
- Severity: <mild/moderate/severe/critical>
- User Explanation: <Simple definition of %s and its main causes>
- Clinical Reasoning: <detailed medical justification based on user's original symptom (%s) & confirmed diagnosis (%s)>
- Specialist: <choose MOST appropriate specialist type (separate with " / " if there is more than one)>

Keep User Explanation around 50 words. Keep Clinical Reasoning under 60 words and focused on main symptoms only.`,
		diagnosis, confidence, symptoms, diagnosis, symptoms, diagnosis)
}

// followUpSynthesisPrompt enriches a follow-up-refined diagnosis.
func followUpSynthesisPrompt(followUpNarrative, diagnosis string, confidence float64) string {
	if followUpNarrative == "" {
		followUpNarrative = "No follow-up information available"
	}
	if diagnosis == "" {
		diagnosis = "Unknown condition"
	}
	return fmt.Sprintf(`ENHANCED MEDICAL ANALYSIS

Follow-up Information:
%s

CONFIRMED DIAGNOSIS: %s (Confidence: %.2f)

Based on the confirmed diagnosis above, provide output in this EXACT format:
- Severity: <mild/moderate/severe/critical>
- User Explanation: <Simple definition of %s and its main causes>
- Clinical Reasoning: <detailed medical justification based on user's follow-up information & confirmed diagnosis stated above>
- Specialist: <choose MOST appropriate specialist type (separate with " / " if there is more than one)>

Keep User Explanation around 50 words. Keep Clinical Reasoning under 60 words and focused on main symptoms only.`,
		followUpNarrative, diagnosis, confidence, diagnosis)
}

// skinSynthesisPrompt asks the model to reconcile screening answers, the
// risk assessment, and the image classifier before settling on a
// diagnosis.
func skinSynthesisPrompt(screeningNarrative, riskContext string, findings *domain.ImageFindings) string {
	maxConfidence := 0.0
	for _, p := range findings.ClassProbabilities {
		if p > maxConfidence {
			maxConfidence = p
		}
	}

	return fmt.Sprintf(`COMPREHENSIVE SKIN LESION ANALYSIS

PATIENT SCREENING RESPONSES:
%s

%s

IMAGE ANALYSIS RESULTS:
- AI Image Diagnosis: %s
- Image Confidence: %.1f%%
- All Image Predictions: %s

INTEGRATION INSTRUCTIONS:
Synthesize the ABCDE screening responses, risk assessment, and image analysis to determine the most appropriate diagnosis. Consider:
1. Do the ABCDE findings support the image diagnosis?
2. Does patient history/symptoms align with image findings?
3. Are there any contradictions that need resolution?
4. What is the most clinically appropriate diagnosis considering all evidence?

Provide output in this EXACT format:
- Final Diagnosis: <most appropriate diagnosis considering ALL evidence>
- Confidence: <0.0-1.0 based on evidence concordance>
- Severity: <mild/moderate/severe/critical>
- User Explanation: <Explanation of the diagnosed skin condition>
- Clinical Reasoning: <detailed justification integrating screening, ABCDE, and image findings>
- Specialist: <appropriate specialist>

Keep explanations under 30 words, reasoning under 80 words.`,
		screeningNarrative, riskContext, findings.Label, maxConfidence*100,
		formatProbabilities(findings.ClassProbabilities))
}

// riskContextBlock summarizes the ABCDE assessment for the synthesis
// prompt.
func riskContextBlock(metrics *domain.RiskMetrics) string {
	if metrics == nil {
		return ""
	}

	var findings []string
	for _, d := range metrics.Details {
		if !d.Adjunct && d.Value > 0.5 {
			findings = append(findings, fmt.Sprintf("%s: %s", d.Category, d.Answer))
		}
	}
	findingsText := "None significant"
	if len(findings) > 0 {
		findingsText = strings.Join(findings, ", ")
	}
	adjunct := "No"
	if metrics.AnyAdjunctYes {
		adjunct = "Yes"
	}

	return fmt.Sprintf(`ABCDE Risk Assessment Context:
- Core ABCDE Score: %.1f/9.0 (max 9.0)
- Risk Level: %s
- Specific Findings: %s
- Excessive Sun Exposure / Family History Concerns: %s`,
		metrics.CoreScore, metrics.RiskTier, findingsText, adjunct)
}

// formatProbabilities renders the class probabilities sorted descending.
func formatProbabilities(probs map[string]float64) string {
	type entry struct {
		label string
		value float64
	}
	entries := make([]entry, 0, len(probs))
	for label, value := range probs {
		entries = append(entries, entry{label, value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value > entries[j].value })

	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("%s: %.3f", e.label, e.value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// selfCareAdvicePrompt asks for actionable home-care recommendations.
func selfCareAdvicePrompt(diagnosis string, severity domain.Severity) string {
	return fmt.Sprintf(`Generate 5-7 practical self-care recommendations for:
Diagnosis: %s
Severity: %s

Focus on:
1. Immediate symptom relief
2. Home treatment options
3. When to seek medical attention
4. Lifestyle modifications
5. Warning signs to watch for

Keep advice practical, safe, and actionable.`, diagnosis, severity)
}

// followUpGuidancePrompt asks for the report's forward-looking guidance.
func followUpGuidancePrompt(syn *domain.Synthesis) string {
	return fmt.Sprintf(`Generate follow-up guidance for:
Diagnosis: %s
Severity: %s
Confidence: %.2f
Specialist: %s

The patient has NOT yet seen the specialist. provide in this EXACT format:
IMMEDIATE (24-48h): [scheduling specialist appointment and urgent self-care]
SHORT-TERM (1-2 weeks): [monitoring/appointments]
WATCH FOR: [warning signs]
LIFESTYLE: [safe modifications until specialist consultation]

Keep each section under 30 words.`,
		syn.FinalDiagnosis, syn.Severity, syn.FinalConfidence, syn.Specialist)
}
