package workflow

import (
	"github.com/medtriage-server/internal/domain"
)

// Suggested operation names returned in navigation directives. The
// transport layer maps them to endpoints.
const (
	OpSubmitAnswers     = "submit_followup_answers"
	OpUploadImage       = "upload_image"
	OpRunSynthesis      = "run_overall_analysis"
	OpRunRecommendation = "run_recommendation"
	OpGenerateReport    = "generate_report"
)

// directiveFor maps the session's stage to what the caller should do
// next. Total over all defined stages; an undefined stage degrades to
// suggesting synthesis, mirroring the engine's fallback behavior.
func directiveFor(state *domain.SessionState) domain.NavigationDirective {
	d := domain.NavigationDirective{
		CurrentStage:   state.Stage,
		NextActionHint: domain.HintNone,
	}

	switch state.Stage {
	case domain.StageAwaitingFollowUp:
		d.NextActionHint = domain.HintAwaitingAnswers
		d.SuggestedNextOperation = OpSubmitAnswers
	case domain.StageAwaitingImageUpload:
		d.NextActionHint = domain.HintAwaitingImage
		d.SuggestedNextOperation = OpUploadImage
	case domain.StageTextualAnalysisComplete,
		domain.StageFollowUpComplete,
		domain.StageImageAnalysisComplete:
		d.SuggestedNextOperation = OpRunSynthesis
	case domain.StageOverallAnalysisComplete:
		d.SuggestedNextOperation = OpRunRecommendation
	case domain.StageRecommendationComplete:
		d.SuggestedNextOperation = OpGenerateReport
	case domain.StageWorkflowComplete:
		d.NextActionHint = domain.HintTerminal
	default:
		d.SuggestedNextOperation = OpRunSynthesis
	}
	return d
}
