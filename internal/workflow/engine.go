// Package workflow implements the staged diagnostic pipeline: textual
// analysis, follow-up questioning, lesion screening, image analysis,
// overall synthesis, care recommendation, and report generation. The
// Engine owns all stage transitions; collaborators never mutate state.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medtriage-server/internal/domain"
	"github.com/medtriage-server/internal/service"
)

// Engine orchestrates diagnostic sessions.
type Engine struct {
	textGen   domain.TextGenerator
	imager    domain.ImageClassifier
	sessions  domain.SessionStore
	reports   domain.ReportStore
	publisher domain.StagePublisher
	cfg       domain.WorkflowConfig
	logger    *logrus.Logger

	parser *service.DiagnosisParser
	scorer *service.ConfidenceScorer
	risk   *service.RiskAssessmentEngine
	rules  *service.RecommendationRules
}

// NewEngine wires the workflow engine.
func NewEngine(
	textGen domain.TextGenerator,
	imager domain.ImageClassifier,
	sessions domain.SessionStore,
	reports domain.ReportStore,
	publisher domain.StagePublisher,
	cfg domain.WorkflowConfig,
	logger *logrus.Logger,
) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.75
	}
	if cfg.SamplingTemperature <= 0 {
		cfg.SamplingTemperature = 0.1
	}
	return &Engine{
		textGen:   textGen,
		imager:    imager,
		sessions:  sessions,
		reports:   reports,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		parser:    service.NewDiagnosisParser(),
		scorer:    service.NewConfidenceScorer(),
		risk:      service.NewRiskAssessmentEngine(),
		rules:     service.NewRecommendationRules(),
	}
}

// Result is the outcome of one engine operation.
type Result struct {
	State     *domain.SessionState
	Directive domain.NavigationDirective
}

// GetSession returns the current state of a session.
func (e *Engine) GetSession(ctx context.Context, sessionID string) (*domain.SessionState, error) {
	return e.sessions.Get(ctx, sessionID)
}

// StartTriage creates a session from the symptom narrative, runs the
// textual analysis stage, and routes to the next stage.
func (e *Engine) StartTriage(ctx context.Context, symptomText string) (*Result, error) {
	symptomText = strings.TrimSpace(symptomText)
	if symptomText == "" {
		return nil, domain.NewValidationError("symptom_text", "symptom description must not be empty")
	}

	state := domain.NewSessionState(uuid.New().String(), symptomText)

	if err := e.runTextualAnalysis(ctx, state); err != nil {
		return nil, err
	}
	e.routeAfterTextual(state)

	if err := e.sessions.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return e.finish(state), nil
}

// SubmitAnswers records a completed follow-up round and advances the
// session. Lesion screening rounds run the risk engine; generic rounds
// re-run diagnosis over the enriched narrative.
func (e *Engine) SubmitAnswers(ctx context.Context, sessionID string, answers map[string]string) (*Result, error) {
	return e.withSession(ctx, sessionID, domain.StageAwaitingFollowUp, func(state *domain.SessionState) error {
		return e.handleAnswers(ctx, state, answers)
	})
}

// SubmitImage classifies an uploaded lesion image. Classifier failures
// are recorded on the session rather than aborting it; synthesis falls
// back to text-only evidence.
func (e *Engine) SubmitImage(ctx context.Context, sessionID string, imageBytes []byte) (*Result, error) {
	if len(imageBytes) == 0 {
		return nil, domain.NewValidationError("image", "image payload must not be empty")
	}
	return e.withSession(ctx, sessionID, domain.StageAwaitingImageUpload, func(state *domain.SessionState) error {
		return e.handleImage(ctx, state, imageBytes)
	})
}

// RunSynthesis performs the overall analysis stage.
func (e *Engine) RunSynthesis(ctx context.Context, sessionID string) (*Result, error) {
	return e.withSession(ctx, sessionID, "", func(state *domain.SessionState) error {
		switch state.Stage {
		case domain.StageTextualAnalysisComplete, domain.StageFollowUpComplete, domain.StageImageAnalysisComplete:
		default:
			return fmt.Errorf("%w: synthesis not allowed from %s", domain.ErrInvalidTransition, state.Stage)
		}
		return e.handleSynthesis(ctx, state)
	})
}

// RunRecommendation performs the care-pathway recommendation stage.
func (e *Engine) RunRecommendation(ctx context.Context, sessionID string) (*Result, error) {
	return e.withSession(ctx, sessionID, domain.StageOverallAnalysisComplete, func(state *domain.SessionState) error {
		return e.handleRecommendation(ctx, state)
	})
}

// GenerateReport builds and archives the final report, completing the
// workflow.
func (e *Engine) GenerateReport(ctx context.Context, sessionID string) (*Result, error) {
	return e.withSession(ctx, sessionID, domain.StageRecommendationComplete, func(state *domain.SessionState) error {
		return e.handleReport(ctx, state)
	})
}

// withSession runs one stage handler under the session lock. An empty
// requiredStage skips the precondition check (the handler validates).
func (e *Engine) withSession(ctx context.Context, sessionID string, requiredStage domain.Stage, fn func(*domain.SessionState) error) (*Result, error) {
	release, err := e.sessions.Acquire(sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	state, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if requiredStage != "" && state.Stage != requiredStage {
		return nil, fmt.Errorf("%w: session at %s, operation requires %s",
			domain.ErrInvalidTransition, state.Stage, requiredStage)
	}

	if err := fn(state); err != nil {
		return nil, err
	}

	if err := e.sessions.Put(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return e.finish(state), nil
}

// finish computes the navigation directive and publishes the new stage.
func (e *Engine) finish(state *domain.SessionState) *Result {
	directive := directiveFor(state)
	if e.publisher != nil {
		e.publisher.PublishStage(state.SessionID, state.Stage, directive.NextActionHint)
	}
	e.logger.WithFields(logrus.Fields(state.LogFields())).Info("Stage complete")
	return &Result{State: state, Directive: directive}
}
