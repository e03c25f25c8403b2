package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/medtriage-server/internal/domain"
)

const reportSeparator = "═══════════════════════════════════════════════════════════════════"

// urgencyTemplate pairs the executive-summary line with the safety
// warnings block for a severity tier.
type urgencyTemplate struct {
	summary  string
	warnings string
}

var urgencyTemplates = map[domain.Severity]urgencyTemplate{
	domain.SeverityCritical: {
		summary:  "URGENT: This condition requires immediate medical attention. Seek emergency care or contact your healthcare provider immediately.",
		warnings: "IMMEDIATE ACTION REQUIRED:\n• Contact emergency services if experiencing severe symptoms\n• Do not delay seeking professional medical care\n• Monitor symptoms closely and seek help if they worsen",
	},
	domain.SeveritySevere: {
		summary:  "HIGH PRIORITY: This condition requires prompt medical evaluation within 24-48 hours.",
		warnings: "PROMPT CARE NEEDED:\n• Schedule urgent appointment with healthcare provider\n• Monitor symptoms closely for any worsening\n• Seek emergency care if symptoms become severe",
	},
	domain.SeverityModerate: {
		summary:  "MODERATE PRIORITY: Schedule medical consultation within 1-2 weeks for proper evaluation.",
		warnings: "MONITORING REQUIRED:\n• Schedule appointment with healthcare provider\n• Watch for symptom progression or new symptoms\n• Seek prompt care if condition worsens",
	},
	domain.SeverityMild: {
		summary:  "ROUTINE FOLLOW-UP: Consider scheduling regular check-up with healthcare provider.",
		warnings: "GENERAL MONITORING:\n• Continue observing symptoms\n• Schedule routine follow-up as appropriate\n• Contact healthcare provider if symptoms persist or worsen",
	},
}

var referralTimings = map[domain.Severity]string{
	domain.SeverityCritical: "Immediate - Seek emergency care now",
	domain.SeveritySevere:   "Urgent - Within 24-48 hours",
	domain.SeverityModerate: "Prompt - Within 1-2 weeks",
	domain.SeverityMild:     "Routine - Within 4-6 weeks or as convenient",
}

// buildReport assembles the final patient report from the session and the
// generated follow-up guidance.
func buildReport(state *domain.SessionState, followUpGuidance string, now time.Time) string {
	syn := state.Synthesis
	urgency, ok := urgencyTemplates[syn.Severity]
	if !ok {
		urgency = urgencyTemplates[domain.SeverityModerate]
	}
	timing, ok := referralTimings[syn.Severity]
	if !ok {
		timing = "As recommended by primary care provider"
	}
	if followUpGuidance == "" {
		followUpGuidance = "Follow standard care protocols for this condition."
	}

	specialistDisplay := titleCase(strings.ReplaceAll(syn.Specialist, "_", " "))

	var b strings.Builder
	fmt.Fprintf(&b, `MEDICAL ANALYSIS REPORT
%[1]s
Generated: %[2]s
Session ID: %[3]s
Analysis Method: %[4]s

%[1]s
        EXECUTIVE SUMMARY
%[1]s
Primary Diagnosis: %[5]s
Diagnostic Confidence: %.1[6]f%%
Severity Level: %[7]s
Recommended Specialist: %[8]s

%[9]s

%[1]s
        AI CLINICAL ASSESSMENT
%[1]s
CONDITION OVERVIEW:
%[10]s

CLINICAL REASONING:
%[11]s

DIAGNOSTIC CONFIDENCE:
Based on the available evidence, this diagnosis has a confidence level of %.1[6]f%%.
%[12]s

ALTERNATIVE DIAGNOSES:
%[13]s

%[1]s
        FOLLOW-UP GUIDANCE
%[1]s
%[14]s

%[1]s
        SPECIALIST REFERRAL
%[1]s
RECOMMENDED SPECIALIST: %[8]s

REFERRAL TIMING: %[15]s

PREPARATION FOR APPOINTMENT:
• Bring this report and any previous medical records
• List all current medications and supplements
• Prepare a detailed symptom timeline
• Note any family history of similar conditions
• Bring insurance information and identification

%[1]s
        SAFETY WARNINGS
%[1]s
%[16]s

GENERAL EMERGENCY SIGNS - Seek immediate medical attention for:
• Severe difficulty breathing or shortness of breath
• Chest pain or pressure lasting more than a few minutes
• Severe bleeding that won't stop
• Loss of consciousness or severe confusion
• Signs of severe allergic reaction (swelling, difficulty swallowing)
• Sudden severe headache with vision changes
• High fever (over 103°F/39.4°C) with severe symptoms

%[1]s
        MEDICAL DISCLAIMERS
%[1]s
AI ANALYSIS LIMITATIONS:
This report is generated by an AI medical analysis system and is intended for
informational and educational purposes only. It does not constitute professional
medical advice, diagnosis, or treatment recommendations.

PROFESSIONAL CONSULTATION REQUIRED:
• This analysis cannot replace professional medical examination
• Physical examination, laboratory tests, and imaging may be necessary
• A qualified healthcare provider should review all symptoms
• Treatment decisions should only be made by licensed medical professionals

ACCURACY CONSIDERATIONS:
• Analysis accuracy depends on completeness of provided information
• Some conditions require specialized testing for proper diagnosis
• AI systems may not detect all possible conditions or complications
• Second medical opinions are recommended for complex cases

EMERGENCY DISCLAIMER:
If you are experiencing a medical emergency, do not rely on this report.
Call emergency services (911) or go to the nearest emergency room immediately.

DATA PRIVACY:
This analysis is confidential and should be shared only with your healthcare
providers. Maintain privacy of medical information according to applicable laws.

%[1]s
Report ID: %[3]s | Medical Analysis System
%[1]s
`,
		reportSeparator,
		now.Format("January 2, 2006 at 3:04 PM"),
		state.SessionID,
		analysisTypeDisplay(state),
		syn.FinalDiagnosis,
		syn.FinalConfidence*100,
		titleCase(string(syn.Severity)),
		specialistDisplay,
		urgency.summary,
		syn.UserExplanation,
		syn.ClinicalReasoning,
		confidenceInterpretation(syn.FinalConfidence),
		alternativeDiagnoses(state),
		followUpGuidance,
		timing,
		urgency.warnings,
	)
	return b.String()
}

// analysisTypeDisplay names the analysis method for the report header.
func analysisTypeDisplay(state *domain.SessionState) string {
	hasFollowUp := state.FollowUp != nil && len(state.FollowUp.Answers) > 0
	hasImage := state.ImageFindings.Usable()

	switch {
	case hasFollowUp && hasImage:
		return "Comprehensive Multi-Modal Analysis (Symptoms + Follow-up + Image)"
	case hasImage:
		return "Visual + Symptom Analysis (Dermatological Screening)"
	case hasFollowUp:
		return "Enhanced Symptom Analysis (with Follow-up Questions)"
	default:
		return "Standard Symptom Analysis"
	}
}

// confidenceInterpretation maps the final confidence to reader guidance.
func confidenceInterpretation(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "This represents high diagnostic confidence based on clear symptom patterns."
	case confidence >= 0.6:
		return "This represents moderate diagnostic confidence. Additional evaluation may be helpful."
	case confidence >= 0.4:
		return "This represents preliminary assessment. Professional evaluation is recommended for confirmation."
	default:
		return "This represents initial screening only. Comprehensive medical evaluation is strongly recommended."
	}
}

// alternativeDiagnoses lists up to three non-primary candidates.
func alternativeDiagnoses(state *domain.SessionState) string {
	var alternatives []string

	if len(state.DiagnosisCandidates) > 1 {
		for i, c := range state.DiagnosisCandidates[1:] {
			if i >= 3 {
				break
			}
			conf := 0.0
			if c.Confidence != nil {
				conf = *c.Confidence
			}
			alternatives = append(alternatives, fmt.Sprintf("• %d. %s (%.1f%% confidence)", i+1, c.Label, conf*100))
		}
	} else if state.ImageFindings.Usable() && len(state.ImageFindings.ClassProbabilities) > 1 {
		entries := sortedProbabilities(state.ImageFindings.ClassProbabilities)
		for i, e := range entries[1:] {
			if i >= 3 {
				break
			}
			alternatives = append(alternatives, fmt.Sprintf("• %d. %s (%.1f%% confidence)", i+1, e.label, e.value*100))
		}
	}

	if len(alternatives) == 0 {
		return "No significant alternative diagnoses identified based on current analysis. Additional testing may reveal other possibilities."
	}
	return "The following alternative diagnoses were also considered:\n" +
		strings.Join(alternatives, "\n") +
		"\n\nThese alternatives may warrant further evaluation if primary diagnosis is ruled out."
}

type probEntry struct {
	label string
	value float64
}

func sortedProbabilities(probs map[string]float64) []probEntry {
	entries := make([]probEntry, 0, len(probs))
	for label, value := range probs {
		entries = append(entries, probEntry{label, value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].value > entries[j].value })
	return entries
}

// titleCase uppercases the first letter of each space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
