package domain

import "context"

// Completer is the opaque inference contract: a prompt in, raw text out.
// The raw text is expected to parse as an AnalysisResult but is treated as
// untrusted until validated.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// TierCompleter resolves a completer per inference tier.
type TierCompleter interface {
	Tier(tier Tier) Completer
}
