package service

import (
	"strings"

	"github.com/medtriage-server/internal/domain"
)

// questionWeight binds a lesion screening question index to its risk
// category and scoring weight. Core categories feed the ABCDE score;
// adjunct categories only break ties.
type questionWeight struct {
	category string
	weight   float64
	adjunct  bool
}

// positional weights for LesionScreeningQuestions, by index.
var lesionQuestionWeights = []questionWeight{
	{category: "A", weight: 2, adjunct: false},
	{category: "B", weight: 2, adjunct: false},
	{category: "C", weight: 2, adjunct: false},
	{category: "D", weight: 1, adjunct: false},
	{category: "E", weight: 2, adjunct: false},
	{category: "SYMPTOMS", weight: 1, adjunct: true},
	{category: "HISTORY", weight: 1, adjunct: true},
}

const (
	maxCoreScore    = 9.0
	maxAdjunctScore = 2.0
)

// RiskAssessmentEngine turns lesion screening answers into a risk tier.
// Pure and total: any answer list produces a result, never an error.
type RiskAssessmentEngine struct{}

// NewRiskAssessmentEngine creates a risk assessment engine.
func NewRiskAssessmentEngine() *RiskAssessmentEngine {
	return &RiskAssessmentEngine{}
}

// answerValue maps an answer to its numeric contribution factor. "yes"
// counts fully, "neutral" counts half, anything else (including "no" and
// unparseable text) counts zero.
func answerValue(answer string) float64 {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes":
		return 1.0
	case "neutral":
		return 0.5
	default:
		return 0.0
	}
}

// Assess scores the answered question round. Answers are matched to
// weights by position; indices beyond the known table score zero under an
// OTHER category.
func (e *RiskAssessmentEngine) Assess(questions []string, answers map[string]string) *domain.RiskMetrics {
	var coreScore, adjunctScore float64
	anyAdjunctYes := false
	details := make([]domain.QuestionContribution, 0, len(questions))

	for i, q := range questions {
		qw := questionWeight{category: "OTHER", weight: 0, adjunct: true}
		if i < len(lesionQuestionWeights) {
			qw = lesionQuestionWeights[i]
		}

		answer := answers[q]
		value := answerValue(answer)
		contribution := qw.weight * value

		if qw.adjunct {
			adjunctScore += contribution
			if value == 1.0 && qw.weight > 0 {
				anyAdjunctYes = true
			}
		} else {
			coreScore += contribution
		}

		details = append(details, domain.QuestionContribution{
			Index:        i,
			Question:     q,
			Answer:       answer,
			Category:     qw.category,
			Weight:       qw.weight,
			Value:        value,
			Contribution: contribution,
			Adjunct:      qw.adjunct,
		})
	}

	tier := riskTier(coreScore, anyAdjunctYes)
	imageRecommended := tier == domain.RiskHigh ||
		(tier == domain.RiskModerate && anyAdjunctYes)

	return &domain.RiskMetrics{
		CoreScore:        coreScore,
		AdjunctScore:     adjunctScore,
		RiskTier:         tier,
		ImageRecommended: imageRecommended,
		AnyAdjunctYes:    anyAdjunctYes,
		Details:          details,
	}
}

// riskTier stratifies the core ABCDE score; adjunct findings bump
// borderline scores up one tier.
func riskTier(coreScore float64, anyAdjunctYes bool) domain.RiskTier {
	switch {
	case coreScore >= 6:
		return domain.RiskHigh
	case coreScore >= 5 && anyAdjunctYes:
		return domain.RiskHigh
	case coreScore >= 4 && coreScore <= 5:
		return domain.RiskModerate
	case coreScore == 3 && anyAdjunctYes:
		return domain.RiskModerate
	default:
		return domain.RiskLow
	}
}
