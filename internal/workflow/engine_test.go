package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtriage-server/internal/domain"
	"github.com/medtriage-server/internal/service"
	"github.com/medtriage-server/internal/session"
)

// scriptedGenerator returns canned responses in order and records the
// prompts it saw.
type scriptedGenerator struct {
	responses []string
	err       error
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	if len(g.responses) == 0 {
		return "", domain.ErrEmptyGeneration
	}
	next := g.responses[0]
	g.responses = g.responses[1:]
	return next, nil
}

type stubClassifier struct {
	result *domain.ClassificationResult
	err    error
	calls  int
}

func (c *stubClassifier) Classify(ctx context.Context, imageBytes []byte) (*domain.ClassificationResult, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.result, nil
}

type recordingReportStore struct {
	saved []*domain.ReportRecord
}

func (s *recordingReportStore) Save(ctx context.Context, record *domain.ReportRecord) error {
	s.saved = append(s.saved, record)
	return nil
}

func (s *recordingReportStore) GetBySession(ctx context.Context, sessionID string) (*domain.ReportRecord, error) {
	for _, r := range s.saved {
		if r.SessionID == sessionID {
			return r, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *recordingReportStore) List(ctx context.Context, limit, offset int) ([]*domain.ReportRecord, error) {
	return s.saved, nil
}

func (s *recordingReportStore) Close() error { return nil }

type recordingPublisher struct {
	stages []domain.Stage
}

func (p *recordingPublisher) PublishStage(sessionID string, stage domain.Stage, hint domain.NextActionHint) {
	p.stages = append(p.stages, stage)
}

type engineFixture struct {
	engine     *Engine
	gen        *scriptedGenerator
	classifier *stubClassifier
	reports    *recordingReportStore
	publisher  *recordingPublisher
}

func newFixture(t *testing.T, gen *scriptedGenerator, classifier *stubClassifier) *engineFixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	sessions := session.NewMemoryStore(domain.SessionConfig{
		MaxSessions:  100,
		TTL:          time.Hour,
		TombstoneTTL: time.Hour,
	}, logger)
	reports := &recordingReportStore{}
	publisher := &recordingPublisher{}

	engine := NewEngine(gen, classifier, sessions, reports, publisher,
		domain.WorkflowConfig{ConfidenceThreshold: 0.75, SamplingTemperature: 0.1}, logger)

	return &engineFixture{
		engine:     engine,
		gen:        gen,
		classifier: classifier,
		reports:    reports,
		publisher:  publisher,
	}
}

const confidentDifferential = `- diagnosis: Tension Headache
- confidence: 0.85
- diagnosis: Migraine
- confidence: 0.80
- diagnosis: Cluster Headache
- confidence: 0.78`

const uncertainDifferential = `- diagnosis: Tension Headache
- confidence: 0.55
- diagnosis: Migraine
- confidence: 0.45`

const textualSynthesisResponse = `- Severity: mild
- User Explanation: A tension headache is the most common headache type, caused by muscle tightness in the head and neck, often triggered by stress or poor posture.
- Clinical Reasoning: The bilateral pressing quality without nausea or photophobia matches tension-type headache rather than migraine in this presentation.
- Specialist: general practitioner`

func TestStartTriageTextualOnly(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{responses: []string{confidentDifferential}}, &stubClassifier{})

	result, err := f.engine.StartTriage(context.Background(), "dull pressure headache for two days")
	require.NoError(t, err)

	state := result.State
	assert.Equal(t, domain.StageTextualAnalysisComplete, state.Stage)
	assert.Equal(t, []domain.PathTag{domain.PathTextualOnly}, state.WorkflowPath)
	require.Len(t, state.DiagnosisCandidates, 3)
	assert.InDelta(t, 0.81, state.AverageConfidence, 0.001)
	assert.Equal(t, OpRunSynthesis, result.Directive.SuggestedNextOperation)
	assert.Equal(t, []domain.Stage{domain.StageTextualAnalysisComplete}, f.publisher.stages)
}

func TestStartTriageLowConfidenceRoutesToFollowUp(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{responses: []string{uncertainDifferential}}, &stubClassifier{})

	result, err := f.engine.StartTriage(context.Background(), "vague abdominal discomfort")
	require.NoError(t, err)

	state := result.State
	assert.Equal(t, domain.StageAwaitingFollowUp, state.Stage)
	assert.Equal(t, []domain.PathTag{domain.PathTextualToFollowUp}, state.WorkflowPath)
	require.NotNil(t, state.FollowUp)
	assert.Equal(t, domain.ScreeningGeneric, state.FollowUp.Kind)
	assert.Equal(t, service.GenericFollowUpQuestions, state.FollowUp.Questions)
	assert.Equal(t, domain.HintAwaitingAnswers, result.Directive.NextActionHint)
}

func TestStartTriageSkinConcernSkipsGeneration(t *testing.T) {
	gen := &scriptedGenerator{}
	f := newFixture(t, gen, &stubClassifier{})

	result, err := f.engine.StartTriage(context.Background(), "a dark mole on my back has grown")
	require.NoError(t, err)

	state := result.State
	assert.Empty(t, gen.prompts, "skin concerns must not call the generator")
	assert.True(t, state.ScreeningRequired)
	assert.Equal(t, domain.StageAwaitingFollowUp, state.Stage)
	assert.Equal(t, []domain.PathTag{domain.PathTextualToScreening}, state.WorkflowPath)
	require.NotNil(t, state.FollowUp)
	assert.Equal(t, domain.ScreeningLesion, state.FollowUp.Kind)

	require.Len(t, state.DiagnosisCandidates, 1)
	assert.Nil(t, state.DiagnosisCandidates[0].Confidence)
	assert.Zero(t, state.AverageConfidence)
}

func TestStartTriageRestoresDescendingOrderAfterScoring(t *testing.T) {
	// The second candidate arrives unscored; the heuristic score it gets
	// can exceed a generator-emitted confidence, so the list must be
	// re-sorted before the primary candidate is read.
	partial := `- diagnosis: Viral Infection
- confidence: 0.3
- diagnosis: Migraine`
	f := newFixture(t, &scriptedGenerator{responses: []string{partial}}, &stubClassifier{})

	result, err := f.engine.StartTriage(context.Background(), "throbbing headache since yesterday")
	require.NoError(t, err)

	candidates := result.State.DiagnosisCandidates
	require.Len(t, candidates, 2)
	for i := 1; i < len(candidates); i++ {
		require.NotNil(t, candidates[i].Confidence)
		assert.GreaterOrEqual(t, *candidates[i-1].Confidence, *candidates[i].Confidence)
	}
	assert.Equal(t, "Migraine", result.State.PrimaryCandidate().Label)
}

func TestFailedAnswersLeaveStoredSessionUnchanged(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{uncertainDifferential}}
	f := newFixture(t, gen, &stubClassifier{})
	ctx := context.Background()

	started, err := f.engine.StartTriage(ctx, "vague abdominal discomfort")
	require.NoError(t, err)
	sessionID := started.State.SessionID

	gen.err = domain.ErrCollaboratorUnavailable
	_, err = f.engine.SubmitAnswers(ctx, sessionID, map[string]string{
		service.GenericFollowUpQuestions[0]: "about a week",
	})
	require.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)

	// The stored state must not carry the half-applied round.
	state, err := f.engine.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageAwaitingFollowUp, state.Stage)
	assert.Empty(t, state.FollowUp.Answers)
	assert.Empty(t, state.FollowUp.CombinedNarrative)

	// A retry with a working generator succeeds from the pre-failure state.
	gen.err = nil
	gen.responses = []string{confidentDifferential}
	result, err := f.engine.SubmitAnswers(ctx, sessionID, map[string]string{
		service.GenericFollowUpQuestions[0]: "about a week",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StageFollowUpComplete, result.State.Stage)
}

func TestImageRoutingBranches(t *testing.T) {
	// Neither branch is reachable through the public operations today:
	// screening routes to image directly, and an image-recommending
	// screening never reaches the generic round. The router still covers
	// the transitions.
	f := newFixture(t, &scriptedGenerator{}, &stubClassifier{})

	state := domain.NewSessionState("route-1", "symptoms")
	state.AverageConfidence = 0.9
	state.ImageRequired = true
	f.engine.routeAfterTextual(state)
	assert.Equal(t, []domain.PathTag{domain.PathTextualToImage}, state.WorkflowPath)
	assert.Equal(t, domain.StageAwaitingImageUpload, state.Stage)

	state = domain.NewSessionState("route-2", "symptoms")
	state.RiskMetrics = &domain.RiskMetrics{ImageRecommended: true}
	f.engine.routeAfterFollowUp(state)
	assert.Equal(t, []domain.PathTag{domain.PathFollowUpToImage}, state.WorkflowPath)
	assert.Equal(t, domain.StageAwaitingImageUpload, state.Stage)
	assert.True(t, state.ImageRequired)
}

func TestStartTriageRejectsEmptyInput(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{}, &stubClassifier{})

	_, err := f.engine.StartTriage(context.Background(), "   ")
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func lesionAnswers(replies []string) map[string]string {
	answers := make(map[string]string)
	for i, r := range replies {
		answers[service.LesionScreeningQuestions[i]] = r
	}
	return answers
}

func TestScreeningPositiveRoutesToImage(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{}, &stubClassifier{})

	started, err := f.engine.StartTriage(context.Background(), "irregular mole changing color")
	require.NoError(t, err)

	result, err := f.engine.SubmitAnswers(context.Background(), started.State.SessionID,
		lesionAnswers([]string{"yes", "yes", "yes", "no", "yes", "no", "no"}))
	require.NoError(t, err)

	state := result.State
	assert.Equal(t, domain.StageAwaitingImageUpload, state.Stage)
	assert.True(t, state.ImageRequired)
	assert.True(t, state.HasPath(domain.PathScreeningToImage))
	require.NotNil(t, state.RiskMetrics)
	assert.Equal(t, domain.RiskHigh, state.RiskMetrics.RiskTier)

	last := state.DiagnosisCandidates[len(state.DiagnosisCandidates)-1]
	assert.Equal(t, "Skin Cancer Risk Detected - Image Analysis Required", last.Label)
	assert.Nil(t, last.Confidence)
	assert.Equal(t, domain.HintAwaitingImage, result.Directive.NextActionHint)
}

func TestScreeningNegativeDischargesToGeneric(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{confidentDifferential}}
	f := newFixture(t, gen, &stubClassifier{})

	started, err := f.engine.StartTriage(context.Background(), "small flat freckle, no changes")
	require.NoError(t, err)

	result, err := f.engine.SubmitAnswers(context.Background(), started.State.SessionID,
		lesionAnswers([]string{"no", "no", "no", "no", "no", "no", "no"}))
	require.NoError(t, err)

	state := result.State
	assert.Equal(t, domain.StageAwaitingFollowUp, state.Stage)
	assert.True(t, state.HasPath(domain.PathScreeningToGeneric))
	require.NotNil(t, state.FollowUp)
	assert.Equal(t, domain.ScreeningGeneric, state.FollowUp.Kind)
	assert.True(t, state.FollowUp.ScreeningDischarged)
	// Risk metrics survive for synthesis context.
	require.NotNil(t, state.RiskMetrics)
	assert.Equal(t, domain.RiskLow, state.RiskMetrics.RiskTier)

	// Completing the generic round re-runs diagnosis over the enriched
	// narrative.
	answers := map[string]string{
		service.GenericFollowUpQuestions[0]: "about two weeks",
		service.GenericFollowUpQuestions[1]: "stayed the same",
	}
	result, err = f.engine.SubmitAnswers(context.Background(), state.SessionID, answers)
	require.NoError(t, err)

	state = result.State
	assert.Equal(t, domain.StageFollowUpComplete, state.Stage)
	assert.True(t, state.HasPath(domain.PathFollowUpOnly))
	require.Len(t, state.DiagnosisCandidates, 3)
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Initial user symptom input: small flat freckle")
	assert.Contains(t, gen.prompts[0], "about two weeks")
}

func TestSubmitAnswersWrongStage(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{responses: []string{confidentDifferential}}, &stubClassifier{})

	started, err := f.engine.StartTriage(context.Background(), "dull headache")
	require.NoError(t, err)

	_, err = f.engine.SubmitAnswers(context.Background(), started.State.SessionID,
		map[string]string{"anything": "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestSubmitAnswersUnknownSession(t *testing.T) {
	f := newFixture(t, &scriptedGenerator{}, &stubClassifier{})

	_, err := f.engine.SubmitAnswers(context.Background(), "missing", map[string]string{"q": "a"})
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFullTextualOnlyFlow(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		confidentDifferential,
		textualSynthesisResponse,
		"- Monitor symptoms closely\n- Rest in a dark quiet room",
		"IMMEDIATE (24-48h): Schedule an appointment.\nSHORT-TERM (1-2 weeks): Keep a headache diary.\nWATCH FOR: Sudden severe headache.\nLIFESTYLE: Reduce screen time.",
	}}
	f := newFixture(t, gen, &stubClassifier{})
	ctx := context.Background()

	started, err := f.engine.StartTriage(ctx, "dull pressure headache for two days")
	require.NoError(t, err)
	sessionID := started.State.SessionID

	synth, err := f.engine.RunSynthesis(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, synth.State.Synthesis)
	assert.Equal(t, "Tension Headache", synth.State.Synthesis.FinalDiagnosis)
	assert.Equal(t, domain.SeverityMild, synth.State.Synthesis.Severity)
	assert.Equal(t, OpRunRecommendation, synth.Directive.SuggestedNextOperation)

	rec, err := f.engine.RunRecommendation(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, rec.State.Recommendation)
	assert.Equal(t, domain.RecommendSelfCare, rec.State.Recommendation.Type)
	assert.Equal(t, []string{"Monitor symptoms closely", "Rest in a dark quiet room"},
		rec.State.Recommendation.SelfCareAdvice)

	report, err := f.engine.GenerateReport(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StageWorkflowComplete, report.State.Stage)
	assert.Equal(t, domain.HintTerminal, report.Directive.NextActionHint)
	assert.Contains(t, report.State.Report, "MEDICAL ANALYSIS REPORT")
	assert.Contains(t, report.State.Report, "Tension Headache")
	assert.Contains(t, report.State.Report, "Keep a headache diary")
	assert.Contains(t, report.State.Report, "Standard Symptom Analysis")

	require.Len(t, f.reports.saved, 1)
	assert.Equal(t, sessionID, f.reports.saved[0].SessionID)
	assert.Equal(t, "textual_only", f.reports.saved[0].WorkflowPath)
}

func TestSkinImageFlowSynthesis(t *testing.T) {
	skinSynthesis := `- Final Diagnosis: Melanoma
- Confidence: 0.88
- Severity: severe
- User Explanation: Melanoma is a serious skin cancer developing from pigment cells, often appearing as a changing mole.
- Clinical Reasoning: The high ABCDE score with asymmetry and color change is strongly concordant with the image classification of melanoma at high confidence.
- Specialist: Dermatologist`

	gen := &scriptedGenerator{responses: []string{skinSynthesis}}
	classifier := &stubClassifier{result: &domain.ClassificationResult{
		Label:              "melanoma",
		ClassProbabilities: map[string]float64{"melanoma": 0.9, "benign": 0.1},
	}}
	f := newFixture(t, gen, classifier)
	ctx := context.Background()

	started, err := f.engine.StartTriage(ctx, "irregular mole changing color")
	require.NoError(t, err)
	sessionID := started.State.SessionID

	_, err = f.engine.SubmitAnswers(ctx, sessionID,
		lesionAnswers([]string{"yes", "yes", "yes", "yes", "yes", "yes", "yes"}))
	require.NoError(t, err)

	uploaded, err := f.engine.SubmitImage(ctx, sessionID, []byte{0xFF, 0xD8, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, domain.StageImageAnalysisComplete, uploaded.State.Stage)
	assert.Equal(t, 1, classifier.calls)

	synth, err := f.engine.RunSynthesis(ctx, sessionID)
	require.NoError(t, err)

	syn := synth.State.Synthesis
	require.NotNil(t, syn)
	assert.Equal(t, "Melanoma", syn.FinalDiagnosis)
	assert.InDelta(t, 0.88, syn.FinalConfidence, 1e-9)
	assert.Equal(t, "dermatologist", syn.Specialist)

	// The synthesis prompt carries the screening narrative and risk
	// context.
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "COMPREHENSIVE SKIN LESION ANALYSIS")
	assert.Contains(t, gen.prompts[0], "Core ABCDE Score: 9.0/9.0")
	assert.Contains(t, gen.prompts[0], "melanoma")
}

func TestImageFailureFallsBackToTextualEvidence(t *testing.T) {
	classifier := &stubClassifier{err: errors.New("service down")}
	f := newFixture(t, &scriptedGenerator{}, classifier)
	ctx := context.Background()

	started, err := f.engine.StartTriage(ctx, "irregular mole changing color")
	require.NoError(t, err)
	sessionID := started.State.SessionID

	_, err = f.engine.SubmitAnswers(ctx, sessionID,
		lesionAnswers([]string{"yes", "yes", "yes", "yes", "yes", "yes", "yes"}))
	require.NoError(t, err)

	uploaded, err := f.engine.SubmitImage(ctx, sessionID, []byte{0x01})
	require.NoError(t, err)
	require.NotNil(t, uploaded.State.ImageFindings)
	assert.False(t, uploaded.State.ImageFindings.Usable())

	// No usable image evidence: synthesis degrades to the primary
	// candidate without a generation call.
	synth, err := f.engine.RunSynthesis(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, "Possible Skin Cancer Condition (Further Evaluation Required)",
		synth.State.Synthesis.FinalDiagnosis)
	assert.Equal(t, domain.SeverityModerate, synth.State.Synthesis.Severity)
}

func TestCollaboratorFailureLeavesSessionRetryable(t *testing.T) {
	gen := &scriptedGenerator{err: domain.ErrCollaboratorUnavailable}
	f := newFixture(t, gen, &stubClassifier{})

	_, err := f.engine.StartTriage(context.Background(), "persistent cough")
	assert.ErrorIs(t, err, domain.ErrCollaboratorUnavailable)
}

func TestDirectiveTotality(t *testing.T) {
	stages := []domain.Stage{
		domain.StageInitial,
		domain.StageTextualAnalysisComplete,
		domain.StageAwaitingFollowUp,
		domain.StageFollowUpComplete,
		domain.StageAwaitingImageUpload,
		domain.StageImageAnalysisComplete,
		domain.StageOverallAnalysisComplete,
		domain.StageRecommendationComplete,
		domain.StageWorkflowComplete,
		domain.Stage("bogus"),
	}

	for _, stage := range stages {
		d := directiveFor(&domain.SessionState{Stage: stage})
		assert.Equal(t, stage, d.CurrentStage)
		if stage == domain.StageWorkflowComplete {
			assert.Equal(t, domain.HintTerminal, d.NextActionHint)
		} else if stage == domain.StageAwaitingFollowUp {
			assert.Equal(t, domain.HintAwaitingAnswers, d.NextActionHint)
		} else if stage == domain.StageAwaitingImageUpload {
			assert.Equal(t, domain.HintAwaitingImage, d.NextActionHint)
		} else {
			assert.NotEmpty(t, d.SuggestedNextOperation, "stage %s", stage)
		}
	}
}

func TestReportBuilderSections(t *testing.T) {
	conf := 0.82
	state := &domain.SessionState{
		SessionID:           "sess-report",
		Stage:               domain.StageRecommendationComplete,
		OriginalSymptomText: "headache",
		DiagnosisCandidates: []domain.DiagnosisCandidate{
			{Label: "Tension Headache", Confidence: &conf},
			{Label: "Migraine", Confidence: floatPtr(0.6)},
			{Label: "Cluster Headache", Confidence: floatPtr(0.4)},
		},
		Synthesis: &domain.Synthesis{
			FinalDiagnosis:    "Tension Headache",
			FinalConfidence:   0.82,
			Severity:          domain.SeverityMild,
			UserExplanation:   "A common headache caused by muscle tension.",
			ClinicalReasoning: "Bilateral pressing pain without aura supports this diagnosis.",
			Specialist:        "general_practitioner",
		},
	}

	report := buildReport(state, "IMMEDIATE (24-48h): Book an appointment.", time.Date(2026, 3, 14, 15, 4, 0, 0, time.UTC))

	assert.Contains(t, report, "Session ID: sess-report")
	assert.Contains(t, report, "Diagnostic Confidence: 82.0%")
	assert.Contains(t, report, "Severity Level: Mild")
	assert.Contains(t, report, "Recommended Specialist: General Practitioner")
	assert.Contains(t, report, "ROUTINE FOLLOW-UP")
	assert.Contains(t, report, "1. Migraine (60.0% confidence)")
	assert.Contains(t, report, "2. Cluster Headache (40.0% confidence)")
	assert.Contains(t, report, "Routine - Within 4-6 weeks or as convenient")
	assert.Contains(t, report, "high diagnostic confidence")
	assert.Contains(t, report, "MEDICAL DISCLAIMERS")
}

func floatPtr(v float64) *float64 { return &v }
