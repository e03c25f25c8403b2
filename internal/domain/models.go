package domain

import (
	"time"
)

// DiagnosisCandidate is one (label, confidence) hypothesis from a single
// text-generation call. A nil Confidence is a meaningful state: it marks a
// lesion-screening placeholder whose confidence is pending risk evaluation,
// and it must never be coerced to 0.
type DiagnosisCandidate struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// HasConfidence reports whether the candidate carries a concrete score.
func (c DiagnosisCandidate) HasConfidence() bool {
	return c.Confidence != nil
}

// FollowUpState holds the question round currently in flight for a session.
type FollowUpState struct {
	Kind              ScreeningKind     `json:"kind"`
	Questions         []string          `json:"questions"`
	Answers           map[string]string `json:"answers,omitempty"`
	AnswerOrder       []string          `json:"answer_order,omitempty"`
	CombinedNarrative string            `json:"combined_narrative,omitempty"`
	// ScreeningDischarged marks the one-time lesion-screening to generic
	// transition; a discharged session never re-enters lesion screening.
	ScreeningDischarged bool `json:"screening_discharged,omitempty"`
}

// QuestionContribution is the per-question breakdown of a risk assessment.
type QuestionContribution struct {
	Index        int     `json:"index"`
	Question     string  `json:"question"`
	Answer       string  `json:"answer"`
	Category     string  `json:"category"`
	Weight       float64 `json:"weight"`
	Value        float64 `json:"value"`
	Contribution float64 `json:"contribution"`
	Adjunct      bool    `json:"adjunct"`
}

// RiskMetrics is the output of the lesion screening risk engine.
type RiskMetrics struct {
	CoreScore        float64                `json:"core_score"`
	AdjunctScore     float64                `json:"adjunct_score"`
	RiskTier         RiskTier               `json:"risk_tier"`
	ImageRecommended bool                   `json:"image_recommended"`
	AnyAdjunctYes    bool                   `json:"any_adjunct_yes"`
	Details          []QuestionContribution `json:"details"`
}

// ImageFindings holds the classifier output for an uploaded lesion image.
// An Err label means the image yielded no usable evidence; downstream
// stages must not treat it as a diagnosis.
type ImageFindings struct {
	Label              string             `json:"label"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
	Err                string             `json:"error,omitempty"`
}

// Usable reports whether the findings carry real classifier evidence.
func (f *ImageFindings) Usable() bool {
	return f != nil && f.Err == "" && f.Label != ""
}

// Synthesis is the final combined assessment produced by the overall
// analysis stage. Every field is always populated; parse failures are
// replaced with deterministic fallback text before the record is stored.
type Synthesis struct {
	FinalDiagnosis    string   `json:"final_diagnosis"`
	FinalConfidence   float64  `json:"final_confidence"`
	Severity          Severity `json:"severity"`
	UserExplanation   string   `json:"user_explanation"`
	ClinicalReasoning string   `json:"clinical_reasoning"`
	Specialist        string   `json:"specialist"`
}

// Recommendation is the care-pathway decision derived from the synthesis.
type Recommendation struct {
	Type           RecommendationType `json:"recommendation_type"`
	SpecialistType string             `json:"specialist_type"`
	Urgency        Urgency            `json:"appointment_urgency"`
	SelfCareAdvice []string           `json:"self_care_advice,omitempty"`
}

// SessionState is the single mutable record threaded through every stage.
// Handlers build replacement sub-records and swap them in whole; partial
// field-by-field mutation is not allowed (see the orchestrator contract).
type SessionState struct {
	SessionID string `json:"session_id"`
	Stage     Stage  `json:"stage"`
	// WorkflowPath is append-only; its order is the authoritative
	// transition history used for synthesis branching.
	WorkflowPath []PathTag `json:"workflow_path"`

	OriginalSymptomText string `json:"original_symptom_text"`
	LesionSymptomText   string `json:"lesion_symptom_text,omitempty"`

	DiagnosisCandidates []DiagnosisCandidate `json:"diagnosis_candidates,omitempty"`
	AverageConfidence   float64              `json:"average_confidence"`

	ScreeningRequired bool `json:"screening_required"`
	ImageRequired     bool `json:"image_required"`

	FollowUp       *FollowUpState  `json:"follow_up,omitempty"`
	RiskMetrics    *RiskMetrics    `json:"risk_metrics,omitempty"`
	ImageFindings  *ImageFindings  `json:"image_findings,omitempty"`
	Synthesis      *Synthesis      `json:"synthesis,omitempty"`
	Recommendation *Recommendation `json:"recommendation,omitempty"`
	Report         string          `json:"report,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState creates a fresh session at the initial stage.
func NewSessionState(sessionID, symptomText string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:           sessionID,
		Stage:               StageInitial,
		OriginalSymptomText: symptomText,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// HasPath reports whether the given transition tag was recorded.
func (s *SessionState) HasPath(tag PathTag) bool {
	for _, p := range s.WorkflowPath {
		if p == tag {
			return true
		}
	}
	return false
}

// AppendPath records a transition tag. The path list is append-only.
func (s *SessionState) AppendPath(tag PathTag) {
	s.WorkflowPath = append(s.WorkflowPath, tag)
}

// PrimaryCandidate returns the highest-confidence candidate, or nil when
// the session has none.
func (s *SessionState) PrimaryCandidate() *DiagnosisCandidate {
	if len(s.DiagnosisCandidates) == 0 {
		return nil
	}
	return &s.DiagnosisCandidates[0]
}

// RecomputeAverageConfidence recalculates the derived average. Candidates
// with unset confidence are excluded from the mean rather than counted as
// zero; a list with no scored candidates yields 0.
func (s *SessionState) RecomputeAverageConfidence() {
	var sum float64
	var n int
	for _, c := range s.DiagnosisCandidates {
		if c.Confidence != nil {
			sum += *c.Confidence
			n++
		}
	}
	if n == 0 {
		s.AverageConfidence = 0
		return
	}
	s.AverageConfidence = sum / float64(n)
}

// LogFields returns structured logging fields for the session.
func (s *SessionState) LogFields() map[string]any {
	return map[string]any{
		"session_id":         s.SessionID,
		"stage":              s.Stage.String(),
		"workflow_path":      s.WorkflowPath,
		"candidate_count":    len(s.DiagnosisCandidates),
		"average_confidence": s.AverageConfidence,
		"screening_required": s.ScreeningRequired,
		"image_required":     s.ImageRequired,
	}
}

// NavigationDirective is returned to the caller after every operation. The
// transport layer decides whether to auto-continue or wait on the client.
type NavigationDirective struct {
	CurrentStage           Stage          `json:"current_stage"`
	NextActionHint         NextActionHint `json:"next_action_hint"`
	SuggestedNextOperation string         `json:"suggested_next_operation,omitempty"`
}

// ClassificationResult is what the image classifier collaborator returns.
type ClassificationResult struct {
	Label              string             `json:"label"`
	ClassProbabilities map[string]float64 `json:"class_probabilities"`
}

// ReportRecord is the archived form of a completed session report.
type ReportRecord struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	Title          string    `json:"title"`
	FinalDiagnosis string    `json:"final_diagnosis"`
	Confidence     float64   `json:"confidence"`
	Severity       string    `json:"severity"`
	Specialist     string    `json:"specialist"`
	WorkflowPath   string    `json:"workflow_path"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
