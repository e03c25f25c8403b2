// Package service contains the deterministic diagnostic algorithms: the
// generation parser, the confidence scorer, the lesion risk engine, the
// fixed question banks, and the care-pathway recommendation rules.
package service

import (
	"strings"
)

// GenericFollowUpQuestions is the fixed question set asked when the
// textual analysis is too uncertain to conclude. Order matters: answers
// are folded back into the narrative in this order.
var GenericFollowUpQuestions = []string{
	"How long have you been experiencing these symptoms? (hours, days, weeks, months)",
	"Have your symptoms gotten worse, better, or stayed the same since they started?",
	"On a scale of 0-10, what is your current pain level? (0 = no pain, 10 = worst pain imaginable)",
	"Do you have any other symptoms that you haven't mentioned yet?",
	"Are you currently taking any medications, supplements, or have any known allergies?",
}

// LesionScreeningQuestions is the fixed ABCDE screening set asked when the
// symptom text suggests a skin lesion. The index of each question binds it
// to a risk category and weight in the risk engine; reordering breaks the
// assessment.
var LesionScreeningQuestions = []string{
	"Is the mole or lesion asymmetrical? (One half doesn't match the other)",
	"Does the border of the mole or lesion appear irregular, ragged, or blurred?",
	"Does it contain more than one color (e.g., black, brown, red)?",
	"Is the diameter of the mole or lesion larger than 6mm (about the size of a pencil eraser)?",
	"Has the mole or lesion changed in size, shape, or color over time?",
	"Does it bleed, itch, or cause pain?",
	"Do you have a personal or family history of skin cancer or high sun exposure?",
}

// skinCancerKeywords flag symptom text for the lesion screening branch.
var skinCancerKeywords = []string{
	"mole", "lesion", "growth", "bump", "spot", "rash", "patch", "scab",
	"discoloration", "freckle", "birthmark", "wart", "cyst", "lump",
	"melanoma", "cancer", "tumor", "nevus", "seborrheic", "keratosis",
}

// generalSkinKeywords flag broader dermatological complaints that also
// route through lesion screening.
var generalSkinKeywords = []string{
	"skin", "dermatitis", "eczema", "psoriasis", "acne", "hives",
	"rosacea", "fungal", "bacterial", "viral", "infection",
}

// DetectSkinConcern reports whether the symptom text matches any lesion or
// general dermatological keyword. Matching is case-insensitive substring
// containment over the whole text.
func DetectSkinConcern(symptomText string) bool {
	lower := strings.ToLower(symptomText)
	for _, kw := range skinCancerKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, kw := range generalSkinKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FoldAnswers combines the original symptom narrative with a completed
// question round into a single enriched narrative.
func FoldAnswers(original string, questions []string, answers map[string]string) string {
	var b strings.Builder
	b.WriteString("Initial user symptom input: ")
	b.WriteString(original)
	b.WriteString("\n\nFollow-up information:\n")
	for _, q := range questions {
		a, ok := answers[q]
		if !ok {
			continue
		}
		b.WriteString("Q: ")
		b.WriteString(q)
		b.WriteString("\nA: ")
		b.WriteString(a)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}
