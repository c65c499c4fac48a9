package analysis

import (
	"errors"
	"strings"
	"testing"

	"github.com/valtric/dealbrain/internal/domain"
)

func assertViolation(t *testing.T, raw string, pack domain.EvidencePack, wantReason string) {
	t.Helper()
	_, err := ValidateAnswer(raw, pack)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if !strings.Contains(ve.Reason, wantReason) {
		t.Fatalf("expected reason containing %q, got %q", wantReason, ve.Reason)
	}
}

func TestValidateAnswer_Valid(t *testing.T) {
	result, err := ValidateAnswer(answerJSON(0.8, "c1", "c2"), strongPack())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ImpliedMultiple != 10.0 || result.Confidence != 0.8 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.CompsUsed) != 2 || result.CompsUsed[0].SourceID != "chunk:c1" {
		t.Fatalf("unexpected citations: %+v", result.CompsUsed)
	}
	if result.Range[0] != 8.5 || result.Range[1] != 11.5 {
		t.Fatalf("unexpected range: %v", result.Range)
	}
}

func TestValidateAnswer_FencedOutput(t *testing.T) {
	raw := "```json\n" + answerJSON(0.7, "c1") + "\n```"
	result, err := ValidateAnswer(raw, strongPack())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 0.7 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestValidateAnswer_NotJSON(t *testing.T) {
	assertViolation(t, "the deal looks fairly valued", strongPack(), "not a JSON object")
}

func TestValidateAnswer_MissingField(t *testing.T) {
	raw := `{"conclusion":"x","implied_multiple":10,"range":[8,12],"reasoning":"y","comps_used":[],"risk_flags":[]}`
	assertViolation(t, raw, strongPack(), `missing field "confidence"`)
}

func TestValidateAnswer_ExtraneousField(t *testing.T) {
	raw := strings.Replace(answerJSON(0.8, "c1"), `"confidence"`, `"extra": 1, "confidence"`, 1)
	assertViolation(t, raw, strongPack(), `extraneous field "extra"`)
}

func TestValidateAnswer_RangeArity(t *testing.T) {
	raw := strings.Replace(answerJSON(0.8, "c1"), "[8.5, 11.5]", "[8.5]", 1)
	assertViolation(t, raw, strongPack(), "exactly two numbers")
}

func TestValidateAnswer_RangeOrder(t *testing.T) {
	raw := strings.Replace(answerJSON(0.8, "c1"), "[8.5, 11.5]", "[11.5, 8.5]", 1)
	assertViolation(t, raw, strongPack(), "ordered low to high")
}

func TestValidateAnswer_ConfidenceBounds(t *testing.T) {
	assertViolation(t, answerJSON(1.2, "c1"), strongPack(), "within [0,1]")
	assertViolation(t, answerJSON(-0.1, "c1"), strongPack(), "within [0,1]")
}

func TestValidateAnswer_BadSourceIDPattern(t *testing.T) {
	raw := strings.Replace(answerJSON(0.8, "c1"), "chunk:c1", "doc:c1", 1)
	assertViolation(t, raw, strongPack(), "source_id")
}

func TestValidateAnswer_FabricatedCitation(t *testing.T) {
	assertViolation(t, answerJSON(0.8, "c999"), strongPack(), "absent from the evidence")
}

func TestValidateAnswer_EmptyCompsClampsConfidence(t *testing.T) {
	result, err := ValidateAnswer(answerJSON(0.9), strongPack())
	if err != nil {
		t.Fatalf("empty comps_used must not be a violation, got %v", err)
	}
	if result.Confidence != 0.5 {
		t.Fatalf("expected confidence clamped to 0.5, got %v", result.Confidence)
	}
	found := false
	for _, f := range result.RiskFlags {
		if f == domain.RiskNoCitableEvidence {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected %s flag, got %v", domain.RiskNoCitableEvidence, result.RiskFlags)
	}
}

func TestValidateAnswer_ClampNeverRaises(t *testing.T) {
	result, err := ValidateAnswer(answerJSON(0.3), strongPack())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 0.3 {
		t.Fatalf("clamp must not raise confidence, got %v", result.Confidence)
	}
}
