package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/medtriage-server/internal/domain"
)

var (
	diagnosisLineRe   = regexp.MustCompile(`(?i)^\s*-\s*diagnosis\s*:\s*(.+)$`)
	confidenceLineRe  = regexp.MustCompile(`(?i)^\s*-\s*confidence\s*:\s*([0-9]*\.?[0-9]+)$`)
	fusedConfidenceRe = regexp.MustCompile(`(?i)[-,;(\s]*confidence\s*:\s*([0-9]*\.?[0-9]+)\)?\s*$`)
)

// DiagnosisParser extracts diagnosis candidates from generated text.
// The expected shape is repeating "- diagnosis: <name>" lines, each
// optionally followed by a "- confidence: <0..1>" line; the confidence
// may also arrive fused onto the diagnosis line. Lines that match
// neither pattern are ignored; models pad output with prose and the parser
// must survive it.
type DiagnosisParser struct{}

// NewDiagnosisParser creates a diagnosis parser.
func NewDiagnosisParser() *DiagnosisParser {
	return &DiagnosisParser{}
}

// Parse scans the generated text for candidates. A diagnosis with no
// confidence line keeps a nil confidence. Candidates are returned sorted
// by confidence descending, unscored candidates last. Text with no
// matching lines yields an empty list, not an error.
func (p *DiagnosisParser) Parse(text string) []domain.DiagnosisCandidate {
	var candidates []domain.DiagnosisCandidate

	for _, line := range strings.Split(text, "\n") {
		if m := diagnosisLineRe.FindStringSubmatch(line); m != nil {
			label := strings.TrimSpace(m[1])
			var confidence *float64
			// The label and confidence may arrive fused on one line.
			if fm := fusedConfidenceRe.FindStringSubmatchIndex(label); fm != nil {
				v, err := strconv.ParseFloat(label[fm[2]:fm[3]], 64)
				if err == nil && v >= 0 && v <= 1 {
					confidence = &v
				}
				label = strings.TrimSpace(label[:fm[0]])
			}
			if label == "" {
				continue
			}
			candidates = append(candidates, domain.DiagnosisCandidate{Label: label, Confidence: confidence})
			continue
		}
		if m := confidenceLineRe.FindStringSubmatch(line); m != nil && len(candidates) > 0 {
			last := &candidates[len(candidates)-1]
			if last.Confidence != nil {
				continue
			}
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil || v < 0 || v > 1 {
				continue
			}
			last.Confidence = &v
		}
	}

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

	return candidates
}
