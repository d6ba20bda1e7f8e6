// Package noise drops low-quality messages before extraction runs over them.
package noise

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

// Config recognises the noiseFiltering {...} keys from spec §4.1.
type Config struct {
	MinMessageLength    int
	CustomPatterns      []string
	HeuristicBased      bool
	PerplexityThreshold float64 // 0 means unset
	LanguageAgnostic    bool
	LLMProvider         string
	LLMModel            string
	// LLMRatePerSecond paces llmRejects calls per process. 0 means unlimited.
	LLMRatePerSecond float64
}

// Filter drops short, pattern-matched, repetitive (words/uniqueWords above
// PerplexityThreshold), or (optionally) LLM-judged-meaningless messages.
// Grounded on the extraction service's
// existing-memories dedupe/quality framing; the config shape is new
// (spec §4.1 has no teacher analogue).
type Filter struct {
	cfg     Config
	llm     ports.LLMPort // optional, nil disables the LLM fallback check
	timeout time.Duration
	limiter *rate.Limiter // optional, nil disables rate limiting
}

// New builds a Filter. llm may be nil to skip the optional LLM check.
func New(cfg Config, llm ports.LLMPort) *Filter {
	f := &Filter{cfg: cfg, llm: llm, timeout: 2 * time.Second}
	if cfg.LLMRatePerSecond > 0 {
		burst := int(cfg.LLMRatePerSecond * 2)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(cfg.LLMRatePerSecond), burst)
	}
	return f
}

// Apply returns the subset of messages that survive filtering, in order.
func (f *Filter) Apply(ctx context.Context, messages []string) []string {
	out := make([]string, 0, len(messages))
	for _, content := range messages {
		if f.shouldDrop(ctx, content) {
			continue
		}
		out = append(out, content)
	}
	return out
}

// ApplyMessages filters a slice of typed messages by their content, keeping
// the order and the full record of survivors.
func (f *Filter) ApplyMessages(ctx context.Context, messages []model.MemoryMessage) []model.MemoryMessage {
	out := make([]model.MemoryMessage, 0, len(messages))
	for _, m := range messages {
		if f.shouldDrop(ctx, m.Content) {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (f *Filter) shouldDrop(ctx context.Context, content string) bool {
	if f.cfg.MinMessageLength > 0 && len(content) < f.cfg.MinMessageLength {
		return true
	}

	for _, pat := range f.cfg.CustomPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			log.Printf("⚠️ [NOISE] Malformed custom pattern %q: %v", pat, err)
			continue
		}
		if re.MatchString(content) {
			return true
		}
	}

	if f.cfg.HeuristicBased && f.cfg.PerplexityThreshold > 0 {
		if perplexity(content) > f.cfg.PerplexityThreshold {
			return true
		}
	}

	if f.llm != nil {
		return f.llmRejects(ctx, content)
	}

	return false
}

// perplexity is words / uniqueWords, a cheap repetitiveness proxy (spec §4.4).
func perplexity(content string) float64 {
	words := strings.Fields(content)
	if len(words) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[strings.ToLower(w)] = struct{}{}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(len(words)) / float64(len(seen))
}

// llmRejects asks the LLM whether content is meaningful. Fails open: any
// error or ambiguous answer keeps the message (spec §4.4).
func (f *Filter) llmRejects(ctx context.Context, content string) bool {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			log.Printf("⚠️ [NOISE] LLM rate limiter wait failed, keeping message: %v", err)
			return false
		}
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"answer": map[string]any{
				"type": "string",
				"enum": []string{"YES", "NO"},
			},
		},
		"required":             []string{"answer"},
		"additionalProperties": false,
	}

	result, err := f.llm.GenerateObject(ctx, ports.GenerateObjectRequest{
		Schema: schema,
		Messages: []ports.LLMMessage{
			{Role: "system", Content: "Answer YES if the following message carries meaningful information worth remembering, otherwise NO."},
			{Role: "user", Content: content},
		},
		Temperature: 0,
	})
	if err != nil {
		log.Printf("⚠️ [NOISE] LLM quality check failed, keeping message: %v", err)
		return false
	}

	answer, _ := result.Object["answer"].(string)
	if !strings.EqualFold(answer, "NO") {
		return false
	}
	return true
}
