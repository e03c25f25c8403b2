package service

import (
	"math"
	"strings"
)

// ConfidenceScorer assigns a heuristic confidence to a diagnosis candidate
// when the generator does not emit one. The score is a weighted blend of
// six factors over the candidate's list position, the sampling
// temperature, and the text of the diagnosis and symptoms. Deterministic:
// identical inputs always produce identical scores.
type ConfidenceScorer struct{}

// NewConfidenceScorer creates a confidence scorer.
func NewConfidenceScorer() *ConfidenceScorer {
	return &ConfidenceScorer{}
}

// medicalSpecificityTerms mark a diagnosis label as clinically specific.
var medicalSpecificityTerms = []string{
	"syndrome", "disease", "disorder", "condition", "infection",
	"deficiency", "inflammation", "acute", "chronic", "primary", "secondary",
}

// granularityTerms mark a label as carrying staging or grading detail.
var granularityTerms = []string{
	"stage", "grade", "type", "variant", "sub", "mild", "severe", "moderate",
}

// symptomAlignmentPhrases maps a symptom phrase to diagnosis terms it
// supports.
var symptomAlignmentPhrases = map[string][]string{
	"chest pain": {"heart", "cardiac", "angina", "myocardial", "coronary"},
	"headache":   {"migraine", "tension", "cluster", "neurological"},
	"fever":      {"infection", "inflammatory", "viral", "bacterial"},
	"cough":      {"respiratory", "bronchitis", "pneumonia", "asthma"},
	"fatigue":    {"anemia", "thyroid", "depression", "chronic"},
	"skin":       {"dermatitis", "eczema", "psoriasis", "rash", "lesion"},
}

// commonConditions raise the commonality factor.
var commonConditions = []string{
	"common cold", "flu", "hypertension", "diabetes", "migraine",
	"tension headache", "gastritis", "bronchitis", "pneumonia",
	"urinary tract infection", "allergic rhinitis", "asthma", "eczema",
	"anemia", "depression", "anxiety", "otitis media", "sinusitis",
	"conjunctivitis",
}

// rareConditions lower the commonality factor.
var rareConditions = []string{
	"lupus", "multiple sclerosis", "rare genetic", "exotic",
	"zebra diagnosis", "uncommon", "atypical",
}

// vagueTerms penalize the quality factor; confidentTerms raise it.
var (
	vagueTerms     = []string{"possible", "maybe", "could be", "might be", "uncertain", "unclear"}
	confidentTerms = []string{"definitely", "certain", "verified", "confirmed", "definitive"}
)

// Score computes a confidence for the diagnosis at the given zero-based
// list position, generated with the given sampling temperature against
// the given symptom text. The result is clamped to [0.25, 0.92].
func (s *ConfidenceScorer) Score(diagnosis string, position int, temperature float64, symptoms string) float64 {
	positionFactor := math.Pow(0.95, float64(position))
	temperatureFactor := math.Max(0.6, 1.0-temperature*1.5)
	specificity := s.specificityFactor(diagnosis)
	alignment := s.alignmentFactor(diagnosis, symptoms)
	commonality := s.commonalityFactor(diagnosis)
	quality := s.qualityFactor(diagnosis)

	score := 0.25*positionFactor +
		0.20*temperatureFactor +
		0.20*specificity +
		0.15*alignment +
		0.10*commonality +
		0.10*quality

	// Later candidates get a compounding discount beyond the position
	// factor itself.
	if position >= 2 {
		score *= math.Pow(0.85, float64(position-1))
	}

	return clamp(score, 0.25, 0.92)
}

// specificityFactor scores how clinically specific the label reads.
func (s *ConfidenceScorer) specificityFactor(diagnosis string) float64 {
	lower := strings.ToLower(diagnosis)
	words := len(strings.Fields(lower))

	factor := 0.5 + math.Min(0.3, float64(words)*0.05)
	if containsAny(lower, medicalSpecificityTerms) {
		factor += 0.15
	}
	if containsAny(lower, granularityTerms) {
		factor += 0.1
	}
	return math.Min(factor, 1.0)
}

// alignmentFactor scores how well the label matches the symptom text.
func (s *ConfidenceScorer) alignmentFactor(diagnosis, symptoms string) float64 {
	symLower := strings.ToLower(strings.TrimSpace(symptoms))
	if symLower == "" {
		return 0.5
	}
	diagLower := strings.ToLower(diagnosis)

	factor := 0.5
	diagWords := strings.Fields(diagLower)
	for _, sw := range strings.Fields(symLower) {
		for _, dw := range diagWords {
			if strings.Contains(dw, sw) {
				factor += 0.1
				break
			}
		}
	}
	for phrase, terms := range symptomAlignmentPhrases {
		if !strings.Contains(symLower, phrase) {
			continue
		}
		if containsAny(diagLower, terms) {
			factor += 0.15
		}
	}
	return math.Min(factor, 1.0)
}

// commonalityFactor scores epidemiological plausibility.
func (s *ConfidenceScorer) commonalityFactor(diagnosis string) float64 {
	lower := strings.ToLower(diagnosis)
	if containsAny(lower, commonConditions) {
		return 0.8
	}
	if containsAny(lower, rareConditions) {
		return 0.4
	}
	return 0.6
}

// qualityFactor penalizes hedging language and rewards definitive phrasing.
func (s *ConfidenceScorer) qualityFactor(diagnosis string) float64 {
	lower := strings.ToLower(diagnosis)
	factor := 0.7
	if containsAny(lower, vagueTerms) {
		factor -= 0.2
	}
	if containsAny(lower, confidentTerms) {
		factor += 0.15
	}
	return clamp(factor, 0.3, 1.0)
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
