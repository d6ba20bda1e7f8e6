// Package lifecycle runs the decay -> promote -> cleanup -> enforce-limit
// pipeline per agent and schedules it, grounded on scheduler_service.go's
// per-job execution shape but driving memengine's own stages instead of
// workflow executions.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/google/uuid"

	"memengine/internal/memengine/decay"
	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

// PromotionConfig controls episodic-to-semantic promotion (spec §4.7).
type PromotionConfig struct {
	EpisodicToSemanticDays     float64
	MinImportanceForPromotion  float64
	MinAccessCountForPromotion int64
	PreserveOriginal           bool
}

// LimitConfig caps the number of live memories retained per agent.
type LimitConfig struct {
	MaxMemoriesPerAgent int
}

// Config bundles the per-stage configuration for one lifecycle run. Archive
// is shared with decay.Config.Archive — both stages archive-then-delete
// through the same keyspace, and cleanup sweeps that same keyspace for
// entries past their TTL.
type Config struct {
	Promotion PromotionConfig
	Archive   ports.ArchiveConfig
	Limit     LimitConfig
}

// RunReport summarises one full pipeline pass for (userId, agentId).
type RunReport struct {
	Decay    decay.Report
	Promoted int
	Archived int
	Trimmed  int
}

// Manager runs decay, promotion, cleanup, and limit enforcement in that
// fixed order (spec §4.7) for a single agent's memory population.
type Manager struct {
	cfg     Config
	storage ports.StoragePort
	decay   *decay.Engine
	rules   DecayRuleProvider
}

// DecayRuleProvider resolves the DecayRule set for an agent.
type DecayRuleProvider interface {
	DecayRules(ctx context.Context, userID, agentID string) ([]model.DecayRule, error)
}

// New builds a Manager.
func New(cfg Config, storage ports.StoragePort, decayEngine *decay.Engine, rules DecayRuleProvider) *Manager {
	return &Manager{cfg: cfg, storage: storage, decay: decayEngine, rules: rules}
}

// loadRules resolves the decay rule set for an agent, logging and continuing
// with none on failure rather than failing the whole pipeline.
func (m *Manager) loadRules(ctx context.Context, userID, agentID string) []model.DecayRule {
	rules, err := m.rules.DecayRules(ctx, userID, agentID)
	if err != nil {
		log.Printf("⚠️ [LIFECYCLE] Failed to load decay rules for %s/%s, continuing with none: %v", userID, agentID, err)
		return nil
	}
	return rules
}

// RunDecay executes the decay stage in isolation, for schedulers that drive
// each lifecycle operation on its own cadence.
func (m *Manager) RunDecay(ctx context.Context, userID, agentID string) (decay.Report, error) {
	rules := m.loadRules(ctx, userID, agentID)
	report, err := m.decay.ApplyDecay(ctx, userID, agentID, rules)
	if err != nil {
		return decay.Report{}, fmt.Errorf("decay stage: %w", err)
	}
	return report, nil
}

// RunPromotion executes the promotion stage in isolation.
func (m *Manager) RunPromotion(ctx context.Context, userID, agentID string) (int, error) {
	return m.promote(ctx, userID, agentID)
}

// RunCleanup executes the cleanup and limit-enforcement stages in isolation
// — these two stay paired since limit enforcement depends on an accurate
// live-memory count, which cleanup's archive sweep never changes but a
// shared invocation keeps both under one retry/backoff policy.
func (m *Manager) RunCleanup(ctx context.Context, userID, agentID string) (archived, trimmed int, err error) {
	archived, err = m.cleanup(ctx, userID, agentID)
	if err != nil {
		return archived, 0, fmt.Errorf("cleanup stage: %w", err)
	}
	trimmed, err = m.enforceLimit(ctx, userID, agentID)
	if err != nil {
		return archived, trimmed, fmt.Errorf("limit enforcement: %w", err)
	}
	return archived, trimmed, nil
}

// Run executes one full lifecycle pass for (userId, agentId). Kept as a
// convenience wrapper around the per-stage methods for callers — tests, a
// manual admin trigger — that want every stage in one call.
func (m *Manager) Run(ctx context.Context, userID, agentID string) (RunReport, error) {
	decayReport, err := m.RunDecay(ctx, userID, agentID)
	if err != nil {
		return RunReport{}, err
	}

	promoted, err := m.RunPromotion(ctx, userID, agentID)
	if err != nil {
		log.Printf("⚠️ [LIFECYCLE] Promotion stage failed for %s/%s: %v", userID, agentID, err)
	}

	archived, trimmed, err := m.RunCleanup(ctx, userID, agentID)
	if err != nil {
		log.Printf("⚠️ [LIFECYCLE] Cleanup/limit stage failed for %s/%s: %v", userID, agentID, err)
	}

	return RunReport{Decay: decayReport, Promoted: promoted, Archived: archived, Trimmed: trimmed}, nil
}

// promote converts episodic memories old, important, and accessed enough
// into semantic memories (spec §4.7, end-to-end scenario 5). Promoted
// memories reset resonance to 1.0 — a pinned Open Question; the source
// preserves the episodic value instead, but a freshly promoted fact reads
// more naturally as fully "alive".
func (m *Manager) promote(ctx context.Context, userID, agentID string) (int, error) {
	memories, err := m.storage.MemoryList(ctx, userID, agentID)
	if err != nil {
		return 0, err
	}

	now := ports.Now()
	count := 0

	for _, mem := range memories {
		if mem.Type != model.TypeEpisodic {
			continue
		}

		ageDays := now.Sub(mem.CreatedAt).Hours() / 24
		if ageDays < m.cfg.Promotion.EpisodicToSemanticDays {
			continue
		}
		if mem.Importance < m.cfg.Promotion.MinImportanceForPromotion {
			continue
		}
		if mem.AccessCount < m.cfg.Promotion.MinAccessCountForPromotion {
			continue
		}

		semantic := &model.Memory{
			ID:             uuid.New().String(),
			UserID:         mem.UserID,
			AgentID:        mem.AgentID,
			Content:        mem.Content,
			Type:           model.TypeSemantic,
			Importance:     mem.Importance,
			Resonance:      1.0,
			AccessCount:    0,
			CreatedAt:      now,
			UpdatedAt:      now,
			LastAccessedAt: now,
			Keywords:       append([]string(nil), mem.Keywords...),
			Metadata:       cloneMetadata(mem.Metadata, mem.ID),
			Version:        1,
		}

		if err := m.storage.MemoryStore(ctx, userID, agentID, semantic); err != nil {
			log.Printf("⚠️ [LIFECYCLE] Failed to store promoted memory for %s: %v", mem.ID, err)
			continue
		}

		if !m.cfg.Promotion.PreserveOriginal {
			if err := m.storage.MemoryDelete(ctx, userID, agentID, mem.ID); err != nil {
				log.Printf("⚠️ [LIFECYCLE] Failed to delete promoted episodic memory %s: %v", mem.ID, err)
			}
		}

		count++
	}

	return count, nil
}

func cloneMetadata(src map[string]any, originalID string) map[string]any {
	out := make(map[string]any, len(src)+1)
	for k, v := range src {
		out[k] = v
	}
	out["originalId"] = originalID
	return out
}

// cleanup sweeps the archive keyspace itself for entries past their TTL.
// memengine archives and deletes eagerly in decay and limit enforcement, so
// this stage is a defensive pass redundant with the backing store's native
// TTL eviction (a Mongo TTL index, go-cache's own expiry) — it exists for
// backends that don't expire keys on their own.
func (m *Manager) cleanup(ctx context.Context, userID, agentID string) (int, error) {
	if !m.cfg.Archive.Enabled || m.cfg.Archive.TTLSeconds <= 0 {
		return 0, nil
	}

	keys, err := m.storage.List(ctx, m.cfg.Archive.Prefix(agentID))
	if err != nil {
		return 0, err
	}

	now := ports.Now()
	count := 0
	for _, key := range keys {
		payload, ok, err := m.storage.Get(ctx, key)
		if err != nil || !ok {
			continue
		}
		var rec ports.ArchiveRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			continue
		}
		if now.Sub(rec.ArchivedAt).Seconds() < float64(m.cfg.Archive.TTLSeconds) {
			continue
		}
		if _, err := m.storage.Delete(ctx, key); err != nil {
			log.Printf("⚠️ [LIFECYCLE] Failed to purge archive key %s: %v", key, err)
			continue
		}
		count++
	}
	return count, nil
}

// enforceLimit trims the lowest-resonance memories once an agent exceeds
// MaxMemoriesPerAgent.
func (m *Manager) enforceLimit(ctx context.Context, userID, agentID string) (int, error) {
	if m.cfg.Limit.MaxMemoriesPerAgent <= 0 {
		return 0, nil
	}

	memories, err := m.storage.MemoryList(ctx, userID, agentID)
	if err != nil {
		return 0, err
	}

	over := len(memories) - m.cfg.Limit.MaxMemoriesPerAgent
	if over <= 0 {
		return 0, nil
	}

	sort.Slice(memories, func(i, j int) bool {
		if memories[i].Resonance != memories[j].Resonance {
			return memories[i].Resonance < memories[j].Resonance
		}
		return memories[i].CreatedAt.Before(memories[j].CreatedAt)
	})

	trimmed := 0
	for i := 0; i < over && i < len(memories); i++ {
		if err := ports.ArchiveAndDelete(ctx, m.storage, m.cfg.Archive, userID, agentID, memories[i], "limit_enforcement"); err != nil {
			log.Printf("⚠️ [LIFECYCLE] Failed to trim memory %s over agent limit: %v", memories[i].ID, err)
			continue
		}
		trimmed++
	}
	return trimmed, nil
}
