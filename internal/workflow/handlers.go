package workflow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
	"github.com/medtriage-server/internal/service"
)

// Placeholder candidates carried with nil confidence through the lesion
// screening branch.
const (
	skinScreeningPlaceholder = "Possible Skin Cancer Condition (Further Evaluation Required)"
	skinImagePlaceholder     = "Skin Cancer Risk Detected - Image Analysis Required"
)

// runTextualAnalysis performs the first diagnostic pass. Dermatological
// narratives skip text generation entirely and are routed into lesion
// screening with a placeholder candidate.
func (e *Engine) runTextualAnalysis(ctx context.Context, state *domain.SessionState) error {
	if service.DetectSkinConcern(state.OriginalSymptomText) {
		state.ScreeningRequired = true
		state.LesionSymptomText = state.OriginalSymptomText
		state.DiagnosisCandidates = []domain.DiagnosisCandidate{{Label: skinScreeningPlaceholder}}
		state.RecomputeAverageConfidence()
		state.Stage = domain.StageTextualAnalysisComplete
		return nil
	}

	candidates, err := e.generateDiagnoses(ctx, state.OriginalSymptomText)
	if err != nil {
		return err
	}

	state.DiagnosisCandidates = candidates
	state.RecomputeAverageConfidence()
	state.Stage = domain.StageTextualAnalysisComplete
	return nil
}

// generateDiagnoses runs the differential prompt, parses the result, and
// scores any candidate the generator left unscored.
func (e *Engine) generateDiagnoses(ctx context.Context, symptoms string) ([]domain.DiagnosisCandidate, error) {
	text, err := e.textGen.Generate(ctx, diagnosisPrompt(symptoms), diagnosisMaxTokens, e.cfg.SamplingTemperature)
	if err != nil {
		return nil, fmt.Errorf("diagnosis generation failed: %w", err)
	}

	candidates := e.parser.Parse(text)
	for i := range candidates {
		if candidates[i].Confidence == nil {
			score := e.scorer.Score(candidates[i].Label, i, e.cfg.SamplingTemperature, symptoms)
			candidates[i].Confidence = &score
		}
	}
	// Heuristic scores can overtake generator-emitted ones; restore the
	// descending order so index 0 stays the primary candidate.
	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i].Confidence, candidates[j].Confidence
		switch {
		case ci != nil && cj != nil:
			return *ci > *cj
		case ci != nil:
			return true
		default:
			return false
		}
	})
	return candidates, nil
}

// routeAfterTextual decides the stage following textual analysis.
// Screening wins over everything; low average confidence triggers generic
// follow-up; otherwise the session is ready for synthesis.
func (e *Engine) routeAfterTextual(state *domain.SessionState) {
	switch {
	case state.ScreeningRequired:
		state.AppendPath(domain.PathTextualToScreening)
		state.FollowUp = &domain.FollowUpState{
			Kind:      domain.ScreeningLesion,
			Questions: service.LesionScreeningQuestions,
		}
		state.Stage = domain.StageAwaitingFollowUp

	case state.AverageConfidence < e.cfg.ConfidenceThreshold:
		state.AppendPath(domain.PathTextualToFollowUp)
		state.FollowUp = &domain.FollowUpState{
			Kind:      domain.ScreeningGeneric,
			Questions: service.GenericFollowUpQuestions,
		}
		state.Stage = domain.StageAwaitingFollowUp

	case state.ImageRequired:
		state.AppendPath(domain.PathTextualToImage)
		state.Stage = domain.StageAwaitingImageUpload

	default:
		state.AppendPath(domain.PathTextualOnly)
	}
}

// handleAnswers processes a completed follow-up round.
func (e *Engine) handleAnswers(ctx context.Context, state *domain.SessionState, answers map[string]string) error {
	if state.FollowUp == nil || len(state.FollowUp.Questions) == 0 {
		return fmt.Errorf("%w: no follow-up round in flight", domain.ErrInvalidTransition)
	}
	if len(answers) == 0 {
		return domain.NewValidationError("answers", "at least one answer is required")
	}

	fu := state.FollowUp
	fu.Answers = make(map[string]string, len(answers))
	fu.AnswerOrder = fu.AnswerOrder[:0]
	for _, q := range fu.Questions {
		if a, ok := answers[q]; ok {
			fu.Answers[q] = a
			fu.AnswerOrder = append(fu.AnswerOrder, q)
		}
	}
	if len(fu.Answers) == 0 {
		return domain.NewValidationError("answers", "answers must reference the questions that were asked")
	}

	if fu.Kind == domain.ScreeningLesion {
		return e.handleScreeningAnswers(state)
	}
	return e.handleGenericAnswers(ctx, state)
}

// handleScreeningAnswers scores the ABCDE round. A positive result routes
// to image upload; a negative result discharges the screening branch into
// a one-time generic follow-up round.
func (e *Engine) handleScreeningAnswers(state *domain.SessionState) error {
	fu := state.FollowUp
	metrics := e.risk.Assess(fu.Questions, fu.Answers)
	state.RiskMetrics = metrics
	fu.CombinedNarrative = service.FoldAnswers(state.OriginalSymptomText, fu.Questions, fu.Answers)
	state.LesionSymptomText = fu.CombinedNarrative

	e.logger.WithFields(logrus.Fields{
		"session_id":        state.SessionID,
		"core_score":        metrics.CoreScore,
		"risk_tier":         metrics.RiskTier.String(),
		"image_recommended": metrics.ImageRecommended,
	}).Info("Lesion screening assessed")

	if metrics.ImageRecommended {
		state.ImageRequired = true
		state.DiagnosisCandidates = append(state.DiagnosisCandidates,
			domain.DiagnosisCandidate{Label: skinImagePlaceholder})
		state.RecomputeAverageConfidence()
		state.AppendPath(domain.PathScreeningToImage)
		state.Stage = domain.StageAwaitingImageUpload
		return nil
	}

	// Negative screening keeps the risk metrics for synthesis context and
	// discharges into the generic question round, once.
	state.AppendPath(domain.PathScreeningToGeneric)
	state.FollowUp = &domain.FollowUpState{
		Kind:                domain.ScreeningGeneric,
		Questions:           service.GenericFollowUpQuestions,
		ScreeningDischarged: true,
	}
	state.Stage = domain.StageAwaitingFollowUp
	return nil
}

// handleGenericAnswers folds the answers into an enriched narrative and
// re-runs diagnosis over it.
func (e *Engine) handleGenericAnswers(ctx context.Context, state *domain.SessionState) error {
	fu := state.FollowUp
	fu.CombinedNarrative = service.FoldAnswers(state.OriginalSymptomText, fu.Questions, fu.Answers)

	candidates, err := e.generateDiagnoses(ctx, fu.CombinedNarrative)
	if err != nil {
		return err
	}
	state.DiagnosisCandidates = candidates
	state.RecomputeAverageConfidence()
	state.Stage = domain.StageFollowUpComplete

	e.routeAfterFollowUp(state)
	return nil
}

// routeAfterFollowUp decides the stage following a generic follow-up
// round.
func (e *Engine) routeAfterFollowUp(state *domain.SessionState) {
	if state.RiskMetrics != nil && state.RiskMetrics.ImageRecommended && !state.ImageFindings.Usable() {
		state.ImageRequired = true
		state.AppendPath(domain.PathFollowUpToImage)
		state.Stage = domain.StageAwaitingImageUpload
		return
	}
	state.AppendPath(domain.PathFollowUpOnly)
}

// handleImage classifies the uploaded image. A collaborator failure is
// recorded as unusable findings so synthesis can fall back to textual
// evidence, rather than wedging the session.
func (e *Engine) handleImage(ctx context.Context, state *domain.SessionState, imageBytes []byte) error {
	result, err := e.imager.Classify(ctx, imageBytes)
	if err != nil {
		e.logger.WithError(err).WithField("session_id", state.SessionID).
			Warn("Image classification failed, continuing with textual evidence")
		state.ImageFindings = &domain.ImageFindings{Err: err.Error()}
	} else {
		state.ImageFindings = &domain.ImageFindings{
			Label:              result.Label,
			ClassProbabilities: result.ClassProbabilities,
		}
	}
	state.Stage = domain.StageImageAnalysisComplete
	return nil
}

// handleSynthesis runs the strategy selected by the recorded workflow
// path and stores the combined assessment.
func (e *Engine) handleSynthesis(ctx context.Context, state *domain.SessionState) error {
	syn, err := e.synthesize(ctx, state)
	if err != nil {
		return err
	}
	state.Synthesis = syn
	state.Stage = domain.StageOverallAnalysisComplete
	return nil
}

// synthesize picks the synthesis strategy from the workflow path.
func (e *Engine) synthesize(ctx context.Context, state *domain.SessionState) (*domain.Synthesis, error) {
	primary := state.PrimaryCandidate()
	diagnosis := "Unknown"
	confidence := 0.0
	if primary != nil {
		diagnosis = primary.Label
		if primary.Confidence != nil {
			confidence = *primary.Confidence
		}
	}

	switch {
	case len(state.WorkflowPath) == 1 && state.WorkflowPath[0] == domain.PathTextualOnly:
		text, err := e.textGen.Generate(ctx,
			textualSynthesisPrompt(state.OriginalSymptomText, diagnosis, confidence),
			synthesisTextualTokens, synthesisTemperature)
		if err != nil {
			return nil, fmt.Errorf("synthesis generation failed: %w", err)
		}
		return parseSynthesis(text, diagnosis, confidence), nil

	case state.HasPath(domain.PathScreeningToImage) && state.ImageFindings.Usable():
		narrative := state.LesionSymptomText
		if state.FollowUp != nil && state.FollowUp.CombinedNarrative != "" {
			narrative = state.FollowUp.CombinedNarrative
		}
		text, err := e.textGen.Generate(ctx,
			skinSynthesisPrompt(narrative, riskContextBlock(state.RiskMetrics), state.ImageFindings),
			synthesisSkinTokens, synthesisTemperature)
		if err != nil {
			return nil, fmt.Errorf("synthesis generation failed: %w", err)
		}
		return parseSkinSynthesis(text, state.ImageFindings, state.RiskMetrics), nil

	case state.HasPath(domain.PathFollowUpOnly) || state.HasPath(domain.PathScreeningToGeneric):
		narrative := ""
		if state.FollowUp != nil {
			narrative = state.FollowUp.CombinedNarrative
		}
		text, err := e.textGen.Generate(ctx,
			followUpSynthesisPrompt(narrative, diagnosis, confidence),
			synthesisFollowUpTokens, synthesisTemperature)
		if err != nil {
			return nil, fmt.Errorf("synthesis generation failed: %w", err)
		}
		return parseSynthesis(text, diagnosis, confidence), nil

	default:
		// Unrecognized path combination, including image uploads whose
		// classification failed. Degrade to the primary candidate.
		e.logger.WithFields(logrus.Fields{
			"session_id":    state.SessionID,
			"workflow_path": state.WorkflowPath,
		}).Warn("No synthesis strategy matched workflow path, using fallback")
		return &domain.Synthesis{
			FinalDiagnosis:    diagnosis,
			FinalConfidence:   confidence,
			Severity:          domain.SeverityModerate,
			UserExplanation:   "Enhanced analysis performed based on available data",
			ClinicalReasoning: "Fallback analysis - comprehensive analysis could not be completed",
			Specialist:        "general_practitioner",
		}, nil
	}
}

// handleRecommendation maps the synthesis to a care pathway. Self-care
// pathways also get generated advice, with a deterministic fallback.
func (e *Engine) handleRecommendation(ctx context.Context, state *domain.SessionState) error {
	recType, urgency := e.rules.Determine(state.Synthesis)
	rec := &domain.Recommendation{
		Type:           recType,
		SpecialistType: state.Synthesis.Specialist,
		Urgency:        urgency,
	}

	if recType == domain.RecommendSelfCare {
		rec.SelfCareAdvice = e.generateSelfCareAdvice(ctx, state.Synthesis)
	}

	state.Recommendation = rec
	state.Stage = domain.StageRecommendationComplete
	return nil
}

var adviceLineRe = regexp.MustCompile(`^[-•0-9.\s]+`)

// generateSelfCareAdvice asks the generator for advice bullets, falling
// back to the static list on any failure.
func (e *Engine) generateSelfCareAdvice(ctx context.Context, syn *domain.Synthesis) []string {
	text, err := e.textGen.Generate(ctx,
		selfCareAdvicePrompt(syn.FinalDiagnosis, syn.Severity),
		selfCareMaxTokens, synthesisTemperature)
	if err != nil {
		e.logger.WithError(err).Warn("Self-care advice generation failed, using fallback")
		return service.FallbackSelfCareAdvice
	}

	var advice []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "•") &&
			(line[0] < '0' || line[0] > '9') {
			continue
		}
		cleaned := strings.TrimSpace(adviceLineRe.ReplaceAllString(line, ""))
		if cleaned != "" {
			advice = append(advice, cleaned)
		}
	}
	if len(advice) == 0 {
		return service.FallbackSelfCareAdvice
	}
	return advice
}

// handleReport builds the final report, archives it, and completes the
// workflow.
func (e *Engine) handleReport(ctx context.Context, state *domain.SessionState) error {
	guidance, err := e.textGen.Generate(ctx, followUpGuidancePrompt(state.Synthesis),
		guidanceMaxTokens, guidanceTemperature)
	if err != nil {
		e.logger.WithError(err).Warn("Follow-up guidance generation failed, using static guidance")
		guidance = ""
	}

	now := time.Now().UTC()
	report := buildReport(state, guidance, now)
	state.Report = report
	state.Stage = domain.StageWorkflowComplete

	pathTags := make([]string, len(state.WorkflowPath))
	for i, p := range state.WorkflowPath {
		pathTags[i] = p.String()
	}
	record := &domain.ReportRecord{
		SessionID:      state.SessionID,
		Title:          fmt.Sprintf("Medical Report - %s", now.Format("2006-01-02 15:04")),
		FinalDiagnosis: state.Synthesis.FinalDiagnosis,
		Confidence:     state.Synthesis.FinalConfidence,
		Severity:       state.Synthesis.Severity.String(),
		Specialist:     state.Synthesis.Specialist,
		WorkflowPath:   strings.Join(pathTags, ","),
		Content:        report,
		CreatedAt:      now,
	}
	if err := e.reports.Save(ctx, record); err != nil {
		return fmt.Errorf("failed to archive report: %w", err)
	}
	return nil
}
