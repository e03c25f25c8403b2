// Package domain contains the core entities for the patient diagnostic
// workflow: the session state machine, diagnosis candidates, lesion risk
// metrics, and the configuration and error types shared across the engine.
package domain

// Stage identifies where a session sits in the diagnostic pipeline.
// Stages are mutated only by stage handlers and the router, never by
// collaborators.
type Stage string

const (
	StageInitial                 Stage = "initial"
	StageTextualAnalysisComplete Stage = "textual_analysis_complete"
	StageAwaitingFollowUp        Stage = "awaiting_followup_responses"
	StageFollowUpComplete        Stage = "followup_analysis_complete"
	StageAwaitingImageUpload     Stage = "awaiting_image_upload"
	StageImageAnalysisComplete   Stage = "image_analysis_complete"
	StageOverallAnalysisComplete Stage = "overall_analysis_complete"
	StageRecommendationComplete  Stage = "healthcare_recommendation_complete"
	StageWorkflowComplete        Stage = "workflow_complete"
)

// IsValid reports whether the stage is one the engine defines.
func (s Stage) IsValid() bool {
	switch s {
	case StageInitial, StageTextualAnalysisComplete, StageAwaitingFollowUp,
		StageFollowUpComplete, StageAwaitingImageUpload, StageImageAnalysisComplete,
		StageOverallAnalysisComplete, StageRecommendationComplete, StageWorkflowComplete:
		return true
	default:
		return false
	}
}

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions exist from this stage.
func (s Stage) IsTerminal() bool {
	return s == StageWorkflowComplete
}

// LogFields returns structured logging fields for audit trails.
func (s Stage) LogFields() map[string]any {
	return map[string]any{
		"stage":       string(s),
		"is_valid":    s.IsValid(),
		"is_terminal": s.IsTerminal(),
	}
}

// PathTag records one transition taken by a session. The ordered list of
// tags is the authoritative history the synthesis stage branches on.
type PathTag string

const (
	PathTextualOnly        PathTag = "textual_only"
	PathTextualToFollowUp  PathTag = "textual_to_followup"
	PathTextualToImage     PathTag = "textual_to_image"
	PathTextualToScreening PathTag = "textual_to_screening"
	PathScreeningToImage   PathTag = "screening_to_image"
	PathScreeningToGeneric PathTag = "screening_to_followup"
	PathFollowUpOnly       PathTag = "followup_only"
	PathFollowUpToImage    PathTag = "followup_to_image"
)

// IsValid reports whether the tag is one the router can emit.
func (p PathTag) IsValid() bool {
	switch p {
	case PathTextualOnly, PathTextualToFollowUp, PathTextualToImage,
		PathTextualToScreening, PathScreeningToImage, PathScreeningToGeneric,
		PathFollowUpOnly, PathFollowUpToImage:
		return true
	default:
		return false
	}
}

func (p PathTag) String() string {
	return string(p)
}

// ScreeningKind distinguishes the two fixed follow-up question sets.
type ScreeningKind string

const (
	ScreeningGeneric ScreeningKind = "generic"
	ScreeningLesion  ScreeningKind = "lesion_screening"
)

// IsValid reports whether the kind names a known question set.
func (k ScreeningKind) IsValid() bool {
	return k == ScreeningGeneric || k == ScreeningLesion
}

func (k ScreeningKind) String() string {
	return string(k)
}

// RiskTier is the lesion screening risk stratification result.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskModerate RiskTier = "moderate"
	RiskHigh     RiskTier = "high"
)

// IsValid reports whether the tier is a defined stratum.
func (r RiskTier) IsValid() bool {
	return r == RiskLow || r == RiskModerate || r == RiskHigh
}

func (r RiskTier) String() string {
	return string(r)
}

// Severity is the synthesis-stage clinical severity assessment.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether the severity is one of the four defined tiers.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere, SeverityCritical:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

// RecommendationType is the care pathway the recommendation stage selects.
type RecommendationType string

const (
	RecommendSelfCare      RecommendationType = "self_care"
	RecommendSeeSpecialist RecommendationType = "see_specialist"
	RecommendEmergencyCare RecommendationType = "emergency_care"
)

// IsValid reports whether the type names a defined care pathway.
func (r RecommendationType) IsValid() bool {
	switch r {
	case RecommendSelfCare, RecommendSeeSpecialist, RecommendEmergencyCare:
		return true
	default:
		return false
	}
}

func (r RecommendationType) String() string {
	return string(r)
}

// Urgency is how soon the recommended care should happen.
type Urgency string

const (
	UrgencyImmediate   Urgency = "immediate"
	UrgencyWithinWeek  Urgency = "within_week"
	UrgencyWithinMonth Urgency = "within_month"
)

// IsValid reports whether the urgency is a defined timeline.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyImmediate, UrgencyWithinWeek, UrgencyWithinMonth:
		return true
	default:
		return false
	}
}

func (u Urgency) String() string {
	return string(u)
}

// NextActionHint tells the caller what the engine is waiting for.
type NextActionHint string

const (
	HintNone            NextActionHint = "none"
	HintAwaitingAnswers NextActionHint = "awaiting_followup_answers"
	HintAwaitingImage   NextActionHint = "awaiting_image"
	HintTerminal        NextActionHint = "terminal"
)

func (h NextActionHint) String() string {
	return string(h)
}
