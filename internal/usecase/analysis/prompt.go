package analysis

import (
	"fmt"
	"strings"

	"github.com/valtric/dealbrain/internal/domain"
	"github.com/valtric/dealbrain/internal/usecase/routing"
)

const schemaFields = `"conclusion" (string), "implied_multiple" (number), ` +
	`"range" (array of exactly two numbers, low then high), "reasoning" (string), ` +
	`"comps_used" (array of objects, each with a "source_id" copied verbatim from the evidence), ` +
	`"risk_flags" (array of strings), "confidence" (number in [0,1])`

// BuildPrompt renders the inference prompt: deal facts, the heuristic
// baseline when available, the evidence chunks with their citable ids, and
// the output schema. Evidence ids are the only valid citation targets.
func BuildPrompt(deal domain.Deal, question string, baseline routing.Baseline, pack domain.EvidencePack) string {
	var b strings.Builder

	b.WriteString("You are a deal valuation analyst. Answer the question about the deal below, ")
	b.WriteString("grounding every claim in the numbered evidence.\n\n")

	fmt.Fprintf(&b, "Deal: %s\nIndustry: %s\nAsking price: %.2f %s\nEBITDA: %.2f %s\n",
		deal.Name, deal.Industry, deal.Price, deal.Currency, deal.EBITDA, deal.Currency)

	if baseline.OK {
		fmt.Fprintf(&b, "Heuristic baseline: %s (range %.1f-%.1f)\n",
			baseline.Conclusion, baseline.Range[0], baseline.Range[1])
	}

	b.WriteString("\nEvidence:\n")
	if len(pack.Items) == 0 {
		b.WriteString("(none retrieved)\n")
	}
	for _, it := range pack.Items {
		fmt.Fprintf(&b, "- %s%s", domain.SourceIDPrefix, it.ChunkID)
		if it.Source != "" {
			fmt.Fprintf(&b, " [%s]", it.Source)
		}
		fmt.Fprintf(&b, ": %s\n", it.Text)
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\n", question)
	b.WriteString("Respond with ONLY a JSON object containing exactly these fields: ")
	b.WriteString(schemaFields)
	b.WriteString(". Cite only evidence ids listed above in comps_used; ")
	b.WriteString("if nothing above supports an answer, return an empty comps_used array.")

	return b.String()
}

// BuildRepairPrompt appends a terse corrective instruction after a
// structural schema violation. Used exactly once per attempt chain.
func BuildRepairPrompt(original, reason string) string {
	return original + fmt.Sprintf(
		"\n\nYour previous output was rejected: %s. Return ONLY a valid JSON object with exactly the fields listed above, nothing else.",
		reason)
}
