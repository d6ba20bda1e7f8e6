package extract

import (
	"context"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

const (
	redosTimeout  = 100 * time.Millisecond
	maxMatchChars = 10000
)

// RuleBasedExtractor matches ExtractionRule patterns with ReDoS-safe
// execution: a wall-clock timeout per pattern and a character cap on the
// content searched (spec §4.5). Zero cost, no teacher analogue (ClaraVerse's
// extraction is pure-LLM) — grounded on the goroutine+timeout idiom every
// outbound HTTP call in the teacher uses, applied to a regex match instead.
type RuleBasedExtractor struct {
	warned map[string]bool
}

// NewRuleBasedExtractor builds a RuleBasedExtractor.
func NewRuleBasedExtractor() *RuleBasedExtractor {
	return &RuleBasedExtractor{warned: make(map[string]bool)}
}

func (e *RuleBasedExtractor) GetType() string { return "rules" }

// EstimateCost is always zero: rule matching never calls a paid provider.
func (e *RuleBasedExtractor) EstimateCost(messages []model.MemoryMessage) float64 { return 0 }

func (e *RuleBasedExtractor) Extract(ctx context.Context, msg model.MemoryMessage, rules []model.ExtractionRule) ([]model.Memory, error) {
	content := msg.Content
	if len(content) > maxMatchChars {
		content = content[:maxMatchChars]
	}

	var out []model.Memory
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}

		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			if !e.warned[rule.ID] {
				log.Printf("⚠️ [RULES] Invalid pattern for rule %s: %v", rule.ID, err)
				e.warned[rule.ID] = true
			}
			continue
		}

		match, ok := matchWithTimeout(re, content, redosTimeout)
		if !ok {
			log.Printf("⚠️ [RULES] Pattern for rule %s timed out", rule.ID)
			continue
		}
		if match == nil {
			continue
		}

		extracted := extractedContent(match)
		if extracted == "" {
			continue
		}

		now := ports.Now()
		mem := model.Memory{
			ID:               uuid.New().String(),
			UserID:           "", // filled in by the caller, which knows the (userId, agentId)
			AgentID:          msg.AgentID,
			Content:          extracted,
			Type:             rule.Type,
			Importance:       rule.Importance,
			Resonance:        1.0,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
			LastAccessedAt:   now,
			Keywords:         rule.Tags,
			SourceMessageIDs: []string{msg.ID},
			Metadata: map[string]any{
				"ruleId": rule.ID,
			},
		}
		if rule.NeverDecay {
			mem.Metadata["neverDecay"] = true
		}
		if rule.CustomHalfLife != nil {
			mem.Metadata["customHalfLife"] = *rule.CustomHalfLife
		}
		if rule.Reinforceable {
			mem.Metadata["reinforceable"] = true
		}

		out = append(out, mem)
	}

	return out, nil
}

// matchWithTimeout runs re.FindStringSubmatch on content with a hard
// wall-clock cap. ok is false on timeout; match stays nil in that case.
func matchWithTimeout(re *regexp.Regexp, content string, timeout time.Duration) (match []string, ok bool) {
	resultCh := make(chan []string, 1)
	go func() {
		resultCh <- re.FindStringSubmatch(content)
	}()

	select {
	case res := <-resultCh:
		return res, true
	case <-time.After(timeout):
		return nil, false
	}
}

// extractedContent prefers the first capture group, normalised, falling
// back to the full match (spec §4.5).
func extractedContent(match []string) string {
	raw := match[0]
	if len(match) > 1 && match[1] != "" {
		raw = match[1]
	}
	return normalize(raw)
}

var nonAlnumEdge = regexp.MustCompile(`^[^a-zA-Z0-9]+|[^a-zA-Z0-9]+$`)

func normalize(s string) string {
	fields := strings.Fields(s)
	collapsed := strings.Join(fields, " ")
	return nonAlnumEdge.ReplaceAllString(collapsed, "")
}
