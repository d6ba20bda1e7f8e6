// Package extract implements the three-tier extractor family: rule-based,
// small/large LLM, and PRIME.
package extract

import (
	"context"

	"memengine/internal/memengine/model"
)

// Extractor is the shared contract across all extraction tiers (spec §4.2).
type Extractor interface {
	Extract(ctx context.Context, msg model.MemoryMessage, rules []model.ExtractionRule) ([]model.Memory, error)
	EstimateCost(messages []model.MemoryMessage) float64
	GetType() string
}

// ruleGuidance renders up to five rule snippets for prompt context. User
// content is never treated as instructions, only as data (spec §4.2).
func ruleGuidance(rules []model.ExtractionRule) []string {
	var out []string
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		out = append(out, string(r.Type)+": "+r.Pattern)
		if len(out) == 5 {
			break
		}
	}
	return out
}

