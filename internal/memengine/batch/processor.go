// Package batch implements the per-(userId,agentId) message buffer and the
// three-tier extraction pipeline that drains it (spec §4.1).
package batch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"memengine/internal/memengine/cost"
	"memengine/internal/memengine/errkind"
	"memengine/internal/memengine/extract"
	"memengine/internal/memengine/model"
	"memengine/internal/memengine/noise"
	"memengine/internal/memengine/ports"
)

// Config recognises the keys listed in spec §4.1.
type Config struct {
	MaxBatchSize       int
	MinBatchSize       int
	TimeoutMinutes     float64
	ExtractionRate     float64
	EnableSmallModel   bool
	EnablePremiumModel bool
	CostBudget         *float64
	PerAgentRateLimit  float64 // extractor calls/sec, see cost.Optimizer.Wait

	// Extractors carries per-tier provider/model/credential and cost/quality
	// overrides (spec §4.1's `extractors[]`), keyed by Type ("small-llm",
	// "large-llm", "prime") against the matching tier at construction.
	Extractors []cost.ExtractorConfig
}

// RuleProvider resolves the ExtractionRule set for an agent. Implemented by
// rules.Store.
type RuleProvider interface {
	Rules(ctx context.Context, userID, agentID string) ([]model.ExtractionRule, error)
}

// DistributedLocker extends the in-process buffer lock across instances.
// Implemented by adapters/redisstore. Optional: a nil Locker keeps batching
// correct within a single process only.
type DistributedLocker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) (bool, error)
}

type bufferEntry struct {
	mu            sync.Mutex
	messages      []model.MemoryMessage
	lastMessageAt time.Time
}

// Processor buffers messages per (userId, agentId), decides when a buffer is
// ripe, and runs the tiered extraction pipeline over it. Grounded on
// EnqueueExtraction/ProcessPendingJobs/processJob's control flow in the
// teacher's memory_extraction_service.go, restructured from an async
// Mongo-job-queue shape into the spec's synchronous buffer-then-drain shape.
type Processor struct {
	cfg Config

	storage      ports.StoragePort
	rules        RuleProvider
	noiseFilter  *noise.Filter
	ruleExtract  *extract.RuleBasedExtractor
	small, large extract.Extractor
	prime        extract.Extractor
	tracker      *cost.Tracker
	optimizer    *cost.Optimizer
	locker       DistributedLocker
	instanceID   string

	extractorCfg map[string]cost.ExtractorConfig // Type -> config, from cfg.Extractors

	buffers sync.Map // key string -> *bufferEntry
}

// New builds a Processor. small/large/prime may be nil when that tier is
// disabled in cfg; locker may be nil for single-instance deployments.
func New(
	cfg Config,
	storage ports.StoragePort,
	rules RuleProvider,
	noiseFilter *noise.Filter,
	ruleExtract *extract.RuleBasedExtractor,
	small, large, prime extract.Extractor,
	tracker *cost.Tracker,
	optimizer *cost.Optimizer,
	locker DistributedLocker,
) *Processor {
	extractorCfg := make(map[string]cost.ExtractorConfig, len(cfg.Extractors))
	for _, ec := range cfg.Extractors {
		extractorCfg[ec.Type] = ec
	}

	return &Processor{
		cfg:          cfg,
		storage:      storage,
		rules:        rules,
		noiseFilter:  noiseFilter,
		ruleExtract:  ruleExtract,
		small:        small,
		large:        large,
		prime:        prime,
		tracker:      tracker,
		optimizer:    optimizer,
		locker:       locker,
		instanceID:   uuid.New().String(),
		extractorCfg: extractorCfg,
	}
}

// extractorEnabled reports whether extractorType has an enabled entry in
// cfg.Extractors. A type absent from Extractors is treated as enabled, so
// existing deployments that never set Extractors keep working unchanged.
func (p *Processor) extractorEnabled(extractorType string) bool {
	ec, ok := p.extractorCfg[extractorType]
	if !ok {
		return true
	}
	return ec.Enabled
}

func bufferKey(userID, agentID string) string { return userID + "|" + agentID }

// AddMessage appends msg to the (userId, agentId) buffer. If the buffer
// becomes ripe, it is drained and processed synchronously; otherwise
// AddMessage returns an empty, nil-error result.
func (p *Processor) AddMessage(ctx context.Context, userID, agentID string, msg model.MemoryMessage) ([]model.Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", errkind.InvalidArgument)
	}

	key := bufferKey(userID, agentID)
	v, _ := p.buffers.LoadOrStore(key, &bufferEntry{})
	entry := v.(*bufferEntry)

	now := ports.Now()

	entry.mu.Lock()
	prevLen := len(entry.messages)
	var gap time.Duration
	if prevLen > 0 {
		gap = now.Sub(entry.lastMessageAt)
	}
	entry.messages = append(entry.messages, msg)
	entry.lastMessageAt = now
	newLen := len(entry.messages)

	ripe := newLen >= p.cfg.MaxBatchSize ||
		(prevLen > 0 && gap > time.Duration(p.cfg.TimeoutMinutes*float64(time.Minute)) && newLen >= p.cfg.MinBatchSize)

	var drained []model.MemoryMessage
	if ripe {
		drained = entry.messages
		entry.messages = nil
	}
	entry.mu.Unlock()

	if !ripe {
		return nil, nil
	}

	return p.runPipeline(ctx, userID, agentID, drained)
}

// Process runs the extraction pipeline over caller-supplied messages
// directly, bypassing the buffer (spec §4.1 "process").
func (p *Processor) Process(ctx context.Context, userID, agentID string, msgs []model.MemoryMessage) ([]model.Memory, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", errkind.InvalidArgument)
	}
	return p.runPipeline(ctx, userID, agentID, msgs)
}

// runPipeline holds the distributed lock (if configured) for the duration of
// one batch's extraction, satisfying the cross-process half of "batch N
// completes before batch N+1 begins" (spec §5).
func (p *Processor) runPipeline(ctx context.Context, userID, agentID string, msgs []model.MemoryMessage) ([]model.Memory, error) {
	if p.locker != nil {
		lockKey := "batch-lock:" + bufferKey(userID, agentID)
		acquired, err := p.locker.AcquireLock(ctx, lockKey, p.instanceID, 2*time.Minute)
		if err != nil {
			log.Printf("⚠️ [BATCH] Failed to acquire distributed lock for %s: %v", lockKey, err)
		} else if acquired {
			defer func() {
				if _, err := p.locker.ReleaseLock(ctx, lockKey, p.instanceID); err != nil {
					log.Printf("⚠️ [BATCH] Failed to release distributed lock for %s: %v", lockKey, err)
				}
			}()
		}
	}

	return p.process(ctx, userID, agentID, msgs)
}

func (p *Processor) process(ctx context.Context, userID, agentID string, msgs []model.MemoryMessage) ([]model.Memory, error) {
	start := ports.Now()
	sourceIDs := messageIDs(msgs)
	fp := fingerprint(userID, agentID, msgs)
	value, batchID := sample(fp)

	if value >= p.cfg.ExtractionRate {
		p.writeBatchMetadata(ctx, batchID, sourceIDs, start, ports.Now(), len(msgs), 0, []string{"skipped"}, "")
		return nil, nil
	}

	rules, err := p.rules.Rules(ctx, userID, agentID)
	if err != nil {
		log.Printf("⚠️ [BATCH] Failed to load rules for %s/%s, continuing with none: %v", userID, agentID, err)
		rules = nil
	}

	filtered := msgs
	if p.noiseFilter != nil {
		filtered = p.noiseFilter.ApplyMessages(ctx, msgs)
	}

	results, methods := p.extractTiers(ctx, agentID, filtered, rules)

	deduped := dedupe(results)
	for i := range deduped {
		deduped[i].BatchID = batchID
		deduped[i].SourceMessageIDs = sourceIDs
		deduped[i].UserID = userID
	}

	for _, mem := range deduped {
		mem := mem
		if err := p.storage.MemoryStore(ctx, userID, agentID, &mem); err != nil {
			p.writeBatchMetadata(ctx, batchID, sourceIDs, start, ports.Now(), len(msgs), len(deduped), []string{"error"}, err.Error())
			return nil, fmt.Errorf("%w: %v", errkind.Fatal, err)
		}
	}

	p.writeBatchMetadata(ctx, batchID, sourceIDs, start, ports.Now(), len(msgs), len(deduped), methods, "")
	return deduped, nil
}

// extractTiers runs rules on every filtered message, then small/large
// extractors on messages rule-tier left untouched, honouring the filtered-
// length gates and cost budget from spec §4.1.
func (p *Processor) extractTiers(ctx context.Context, agentID string, filtered []model.MemoryMessage, rules []model.ExtractionRule) ([]model.Memory, []string) {
	var results []model.Memory
	methods := map[string]bool{}
	tier1Hit := make(map[string]bool, len(filtered))

	for _, m := range filtered {
		mems, _ := p.ruleExtract.Extract(ctx, m, rules)
		if len(mems) > 0 {
			tier1Hit[m.ID] = true
			methods["rules"] = true
			results = append(results, mems...)
		}
	}

	if p.cfg.EnableSmallModel && p.small != nil && p.extractorEnabled("small-llm") && len(filtered) > 3 {
		p.runTier(ctx, agentID, filtered, rules, tier1Hit, p.small, "small-llm", methods, &results)
	}

	if p.cfg.EnablePremiumModel && p.large != nil && p.extractorEnabled("large-llm") && len(filtered) > 5 {
		p.runTier(ctx, agentID, filtered, rules, tier1Hit, p.large, "large-llm", methods, &results)
	}

	if p.prime != nil && p.extractorEnabled("prime") && len(filtered) > 0 {
		p.runTier(ctx, agentID, filtered, rules, tier1Hit, p.prime, "prime", methods, &results)
	}

	return results, methodList(methods)
}

func (p *Processor) runTier(
	ctx context.Context,
	agentID string,
	filtered []model.MemoryMessage,
	rules []model.ExtractionRule,
	tier1Hit map[string]bool,
	extractor extract.Extractor,
	methodName string,
	methods map[string]bool,
	results *[]model.Memory,
) {
	ec := p.extractorCfg[methodName]

	budget := p.cfg.CostBudget
	if ec.MaxCost != nil {
		budget = ec.MaxCost
	}

	for _, m := range filtered {
		if tier1Hit[m.ID] {
			continue
		}

		estimated := extractor.EstimateCost([]model.MemoryMessage{m})
		if !p.optimizer.Allow(agentID, estimated, budget) {
			continue
		}

		if p.cfg.PerAgentRateLimit > 0 {
			if err := p.optimizer.Wait(ctx, agentID, p.cfg.PerAgentRateLimit); err != nil {
				log.Printf("⚠️ [BATCH] Rate limiter wait cancelled for agent %s: %v", agentID, err)
				return
			}
		}

		mems, err := extractor.Extract(ctx, m, rules)
		if err != nil {
			log.Printf("⚠️ [BATCH] %s extraction error for message %s: %v", methodName, m.ID, err)
			continue
		}
		if ec.QualityThreshold != nil {
			kept := mems[:0]
			for _, mem := range mems {
				if mem.Importance >= *ec.QualityThreshold {
					kept = append(kept, mem)
				}
			}
			mems = kept
		}
		if len(mems) > 0 {
			methods[methodName] = true
			*results = append(*results, mems...)
		}
	}
}

func (p *Processor) writeBatchMetadata(
	ctx context.Context,
	batchID string,
	sourceIDs []string,
	start, end time.Time,
	processed, created int,
	methods []string,
	errMsg string,
) {
	meta := &model.BatchMetadata{
		BatchID:           batchID,
		SourceMessageIDs:  sourceIDs,
		StartTime:         start,
		EndTime:           end,
		MessagesProcessed: processed,
		MemoriesCreated:   created,
		ExtractionMethods: methods,
		Error:             errMsg,
	}
	if err := p.storage.BatchMetadataStore(ctx, meta); err != nil {
		log.Printf("⚠️ [BATCH] Failed to store batch metadata %s: %v", batchID, err)
	}
}

func messageIDs(msgs []model.MemoryMessage) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// dedupe keeps the first occurrence of each lower(trim(content)) (spec §4.1
// step 5 / §8 "Dedup invariant").
func dedupe(mems []model.Memory) []model.Memory {
	seen := make(map[string]bool, len(mems))
	out := make([]model.Memory, 0, len(mems))
	for _, m := range mems {
		key := strings.ToLower(strings.TrimSpace(m.Content))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, m)
	}
	return out
}

func methodList(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
