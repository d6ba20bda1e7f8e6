package cost

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"memengine/internal/memengine/model"
)

// ExtractorConfig mirrors one entry of the batch processor's `extractors[]`
// configuration (spec §4.1).
type ExtractorConfig struct {
	Type             string
	Enabled          bool
	CostPerMemory    float64
	Provider         string
	Model            string
	APIKey           string
	MaxCost          *float64
	QualityThreshold *float64
	// Extra carries provider-specific knobs (spec §4.2's per-tier config
	// surface) that don't warrant a dedicated field — e.g. PRIME's
	// balancedModels list when Type == "prime".
	Extra map[string]any
}

// EstimateCost approximates USD cost as totalChars/4 (token approximation)
// times the extractor's per-memory cost (spec §4.2 "estimateCost").
func EstimateCost(messages []model.MemoryMessage, costPerMemory float64) float64 {
	totalChars := 0
	for _, m := range messages {
		totalChars += len(m.Content)
	}
	return float64(totalChars) / 4.0 * costPerMemory
}

// Optimizer decides whether a tier may run against the remaining budget, and
// paces outbound extractor calls per agent. The pacing half is grounded on
// the teacher's three-tier scraper rate limiter (scraper_ratelimit.go),
// narrowed here to a single per-agent tier.
type Optimizer struct {
	tracker  *Tracker
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewOptimizer builds an Optimizer backed by tracker for spend accounting.
func NewOptimizer(tracker *Tracker) *Optimizer {
	return &Optimizer{
		tracker:  tracker,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether spending estimatedCost for agentID would still fit
// under budget (spec §4.1 "Tier 2/3 are skipped per message when spent +
// estimatedCost > costBudget"). A nil budget means unlimited.
func (o *Optimizer) Allow(agentID string, estimatedCost float64, budget *float64) bool {
	if budget == nil {
		return true
	}
	return o.tracker.Spent(agentID)+estimatedCost <= *budget
}

// Wait blocks until agentID may make another extractor call, paced at
// perAgentRate requests/sec with a burst of 2×rate.
func (o *Optimizer) Wait(ctx context.Context, agentID string, perAgentRate float64) error {
	return o.limiterFor(agentID, perAgentRate).Wait(ctx)
}

func (o *Optimizer) limiterFor(agentID string, perAgentRate float64) *rate.Limiter {
	o.mu.RLock()
	l, ok := o.limiters[agentID]
	o.mu.RUnlock()
	if ok {
		return l
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.limiters[agentID]; ok {
		return l
	}
	burst := int(perAgentRate * 2)
	if burst < 1 {
		burst = 1
	}
	l = rate.NewLimiter(rate.Limit(perAgentRate), burst)
	o.limiters[agentID] = l
	return l
}
