package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/medtriage-server/internal/domain"
)

func TestParseSynthesisExtractsAllFields(t *testing.T) {
	text := `- Severity: severe
- User Explanation: Pneumonia is an infection that inflames the air sacs in one or both lungs, commonly caused by bacteria or viruses.
- Clinical Reasoning: The combination of productive cough, high fever, and pleuritic chest pain strongly supports a diagnosis of bacterial pneumonia in this presentation.
- Specialist: Pulmonologist`

	syn := parseSynthesis(text, "Pneumonia", 0.82)

	assert.Equal(t, "Pneumonia", syn.FinalDiagnosis)
	assert.InDelta(t, 0.82, syn.FinalConfidence, 1e-9)
	assert.Equal(t, domain.SeveritySevere, syn.Severity)
	assert.Contains(t, syn.UserExplanation, "inflames the air sacs")
	assert.Contains(t, syn.ClinicalReasoning, "productive cough")
	assert.Equal(t, "pulmonologist", syn.Specialist)
}

func TestParseSynthesisDefaults(t *testing.T) {
	syn := parseSynthesis("no structured fields here", "Gastritis", 0.6)

	assert.Equal(t, domain.SeverityModerate, syn.Severity)
	assert.Equal(t, "general_practitioner", syn.Specialist)
	assert.Contains(t, syn.ClinicalReasoning, "The diagnosis Gastritis was determined")
	// Diagnosis and confidence stay pinned to the candidate regardless of
	// what the text says.
	assert.Equal(t, "Gastritis", syn.FinalDiagnosis)
}

func TestParseSynthesisSpecialistNormalization(t *testing.T) {
	text := `- Severity: moderate
- Specialist: Cardiologist or Neurologist!`

	syn := parseSynthesis(text, "Migraine", 0.5)
	assert.Equal(t, "cardiologist / neurologist", syn.Specialist)
}

func TestParseSynthesisShortProseRejected(t *testing.T) {
	text := `- Severity: mild
- User Explanation: ok
- Clinical Reasoning: fine`

	syn := parseSynthesis(text, "Eczema", 0.7)
	assert.Equal(t, "Enhanced analysis performed based on available data", syn.UserExplanation)
	assert.Contains(t, syn.ClinicalReasoning, "The diagnosis Eczema")
}

func TestParseSkinSynthesisFullOutput(t *testing.T) {
	text := `- Final Diagnosis: Melanoma in situ
- Confidence: 0.85
- Severity: severe
- User Explanation: A melanoma in situ is an early-stage skin cancer confined to the top layer of skin.
- Clinical Reasoning: The asymmetric irregular bordered lesion with recent changes aligns with the high-confidence image classification and elevated ABCDE score.
- Specialist: Dermatologist`

	findings := &domain.ImageFindings{
		Label:              "melanoma",
		ClassProbabilities: map[string]float64{"melanoma": 0.7, "benign": 0.3},
	}
	metrics := &domain.RiskMetrics{CoreScore: 7, RiskTier: domain.RiskHigh}

	syn := parseSkinSynthesis(text, findings, metrics)
	assert.Equal(t, "Melanoma in situ", syn.FinalDiagnosis)
	assert.InDelta(t, 0.85, syn.FinalConfidence, 1e-9)
	assert.Equal(t, domain.SeveritySevere, syn.Severity)
	assert.Equal(t, "dermatologist", syn.Specialist)
}

func TestParseSkinSynthesisConcordanceFallback(t *testing.T) {
	findings := &domain.ImageFindings{
		Label:              "melanoma",
		ClassProbabilities: map[string]float64{"melanoma": 0.6, "benign": 0.4},
	}

	tests := []struct {
		name     string
		tier     domain.RiskTier
		label    string
		wantConf float64
	}{
		{"high risk melanoma concordance", domain.RiskHigh, "melanoma", 0.8},
		{"low risk benign concordance", domain.RiskLow, "benign keratosis", 0.75},
		{"discordant evidence", domain.RiskLow, "melanoma", 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &domain.ImageFindings{
				Label:              tt.label,
				ClassProbabilities: map[string]float64{tt.label: 0.6},
			}
			metrics := &domain.RiskMetrics{CoreScore: 5, RiskTier: tt.tier}

			syn := parseSkinSynthesis("unparseable output", f, metrics)
			assert.Equal(t, tt.label, syn.FinalDiagnosis)
			assert.InDelta(t, tt.wantConf, syn.FinalConfidence, 1e-9)
		})
	}

	// Fallback reasoning names the screening evidence.
	metrics := &domain.RiskMetrics{CoreScore: 7, RiskTier: domain.RiskHigh}
	syn := parseSkinSynthesis("garbage", findings, metrics)
	assert.Contains(t, syn.ClinicalReasoning, "7.0/9.0")
	assert.Equal(t, "dermatologist", syn.Specialist)
}
