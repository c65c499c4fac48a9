package analysis

import (
	"encoding/json"
	"strings"

	"github.com/valtric/dealbrain/internal/domain"
)

var requiredFields = []string{
	"conclusion", "implied_multiple", "range", "reasoning",
	"comps_used", "risk_flags", "confidence",
}

// ValidateAnswer parses raw model output against the answer contract:
// exactly the seven required fields, a well-ordered range, bounded
// confidence, and citations that reference chunks actually present in the
// evidence pack. An empty citation list is not a violation; the result is
// flagged no_citable_evidence and its confidence clamped to at most 0.50.
// Violations come back as *domain.ValidationError with a terse reason that
// never quotes evidence or output content.
func ValidateAnswer(raw string, pack domain.EvidencePack) (domain.AnalysisResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripFences(raw)), &fields); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("output is not a JSON object")
	}

	for _, name := range requiredFields {
		if _, ok := fields[name]; !ok {
			return domain.AnalysisResult{}, domain.NewValidationError("missing field %q", name)
		}
	}
	if len(fields) != len(requiredFields) {
		for name := range fields {
			if !isRequiredField(name) {
				return domain.AnalysisResult{}, domain.NewValidationError("extraneous field %q", name)
			}
		}
	}

	var result domain.AnalysisResult

	if err := json.Unmarshal(fields["conclusion"], &result.Conclusion); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("conclusion must be a string")
	}
	if err := json.Unmarshal(fields["implied_multiple"], &result.ImpliedMultiple); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("implied_multiple must be a number")
	}

	var rng []float64
	if err := json.Unmarshal(fields["range"], &rng); err != nil || len(rng) != 2 {
		return domain.AnalysisResult{}, domain.NewValidationError("range must be an array of exactly two numbers")
	}
	if rng[0] > rng[1] {
		return domain.AnalysisResult{}, domain.NewValidationError("range must be ordered low to high")
	}
	result.Range = [2]float64{rng[0], rng[1]}

	if err := json.Unmarshal(fields["reasoning"], &result.Reasoning); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("reasoning must be a string")
	}

	if err := json.Unmarshal(fields["comps_used"], &result.CompsUsed); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("comps_used must be an array of citation objects")
	}
	known := pack.ChunkIDs()
	for i, comp := range result.CompsUsed {
		chunkID := comp.ChunkID()
		if chunkID == "" {
			return domain.AnalysisResult{}, domain.NewValidationError(
				"comps_used[%d] source_id must match %q followed by a chunk id", i, domain.SourceIDPrefix)
		}
		if _, ok := known[chunkID]; !ok {
			return domain.AnalysisResult{}, domain.NewValidationError(
				"comps_used[%d] cites a chunk absent from the evidence", i)
		}
	}

	if err := json.Unmarshal(fields["risk_flags"], &result.RiskFlags); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("risk_flags must be an array of strings")
	}
	if err := json.Unmarshal(fields["confidence"], &result.Confidence); err != nil {
		return domain.AnalysisResult{}, domain.NewValidationError("confidence must be a number")
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return domain.AnalysisResult{}, domain.NewValidationError("confidence must be within [0,1]")
	}

	if len(result.CompsUsed) == 0 {
		result.AddRiskFlag(domain.RiskNoCitableEvidence)
		if result.Confidence > 0.5 {
			result.Confidence = 0.5
		}
	}
	return result, nil
}

func isRequiredField(name string) bool {
	for _, f := range requiredFields {
		if f == name {
			return true
		}
	}
	return false
}

// stripFences removes a markdown code fence wrapper, with or without a
// language tag, that chat models like to add around JSON.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 && !strings.HasPrefix(s, "{") {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
