// Package decay applies exponential resonance decay and rule-based overrides
// to stored memories, grounded on memory_decay_service.go's RunDecayJobForUser
// but replacing its MongoDB-aggregation scoring with the spec's per-memory
// rule evaluation (§4.6).
package decay

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

// Config carries the engine-wide defaults used when no rule matches a memory.
type Config struct {
	DefaultDecayRate float64
	MinImportance    float64
	DeleteThreshold  float64
	Archive          ports.ArchiveConfig
}

// RuleResult summarises one rule's effect across a decay cycle.
type RuleResult struct {
	RuleID           string  `json:"ruleId"`
	RuleName         string  `json:"ruleName"`
	MemoriesAffected int     `json:"memoriesAffected"`
	AvgDecayApplied  float64 `json:"avgDecayApplied"`
}

// Report is returned by ApplyDecay.
type Report struct {
	Processed   int          `json:"processed"`
	Updated     int          `json:"updated"`
	Deleted     int          `json:"deleted"`
	Timestamp   time.Time    `json:"timestamp"`
	RuleResults []RuleResult `json:"ruleResults"`
}

// Engine applies decay cycles for one agent's memory population at a time.
type Engine struct {
	cfg     Config
	storage ports.StoragePort
}

// New builds an Engine.
func New(cfg Config, storage ports.StoragePort) *Engine {
	return &Engine{cfg: cfg, storage: storage}
}

type ruleAccum struct {
	rule     model.DecayRule
	affected int
	decaySum float64
}

// ApplyDecay runs one decay cycle for (userId, agentId): enumerates every
// memory, applies the first matching enabled rule (or the engine default),
// writes updated memories back, and deletes any whose post-decay resonance
// falls below deleteThreshold (spec §4.6).
func (e *Engine) ApplyDecay(ctx context.Context, userID, agentID string, rules []model.DecayRule) (Report, error) {
	memories, err := e.storage.MemoryList(ctx, userID, agentID)
	if err != nil {
		return Report{}, fmt.Errorf("listing memories for decay: %w", err)
	}

	now := ports.Now()
	report := Report{Timestamp: now}
	accum := make(map[string]*ruleAccum)

	for _, mem := range memories {
		report.Processed++

		lastAccessed := mem.LastAccessedAt
		if lastAccessed.IsZero() {
			lastAccessed = mem.CreatedAt
		}
		daysSince := now.Sub(lastAccessed).Hours() / 24

		matched, matchedRule := firstMatchingRule(rules, *mem, now)

		neverDecay := matched && matchedRule.NeverDecay
		if !neverDecay {
			if nd, ok := mem.Metadata["neverDecay"].(bool); ok && nd {
				neverDecay = true
			}
		}

		before := mem.Resonance
		var after float64

		switch {
		case neverDecay:
			floor := e.cfg.MinImportance
			if matched {
				floor = matchedRule.MinImportance
			}
			after = math.Max(before, floor)
		case matched:
			after = math.Max(matchedRule.MinImportance, before*math.Exp(-matchedRule.DecayRate*daysSince))
		default:
			after = math.Max(e.cfg.MinImportance, before*math.Exp(-e.cfg.DefaultDecayRate*daysSince))
		}

		mem.Resonance = after
		mem.UpdatedAt = now
		mem.Version++

		if matched {
			a := accum[matchedRule.ID]
			if a == nil {
				a = &ruleAccum{rule: matchedRule}
				accum[matchedRule.ID] = a
			}
			a.affected++
			a.decaySum += before - after
		}

		if after < e.cfg.DeleteThreshold {
			if err := ports.ArchiveAndDelete(ctx, e.storage, e.cfg.Archive, userID, agentID, mem, "decay_threshold"); err != nil {
				log.Printf("⚠️ [DECAY] Failed to archive/delete decayed memory %s: %v", mem.ID, err)
				continue
			}
			report.Deleted++
			continue
		}

		if err := e.storage.MemoryStore(ctx, userID, agentID, mem); err != nil {
			log.Printf("⚠️ [DECAY] Failed to write back decayed memory %s: %v", mem.ID, err)
			continue
		}
		report.Updated++
	}

	for _, a := range accum {
		avg := 0.0
		if a.affected > 0 {
			avg = a.decaySum / float64(a.affected)
		}
		report.RuleResults = append(report.RuleResults, RuleResult{
			RuleID:           a.rule.ID,
			RuleName:         a.rule.Name,
			MemoriesAffected: a.affected,
			AvgDecayApplied:  avg,
		})
	}

	return report, nil
}

// firstMatchingRule returns the first enabled rule whose condition evaluates
// true for mem, in slice order (spec §4.6 "first enabled rule wins").
func firstMatchingRule(rules []model.DecayRule, mem model.Memory, now time.Time) (bool, model.DecayRule) {
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if Evaluate(r.Condition, mem, now) {
			return true, r
		}
	}
	return false, model.DecayRule{}
}
