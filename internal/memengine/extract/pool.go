package extract

import (
	"fmt"
	"log"
	"sync"
)

// ModelCandidate is one model eligible for a given tier's round robin.
type ModelCandidate struct {
	ModelID string
	SpeedMs int
}

// HealthChecker reports and records model health. Callers that don't track
// health can pass nil; ModelPool then treats every candidate as healthy.
// Generalized from memory_model_pool.go's concrete *health.Service coupling
// (that package carried no spec counterpart and was removed).
type HealthChecker interface {
	IsHealthy(modelID string) bool
	MarkHealthy(modelID string)
	MarkUnhealthy(modelID string, reason string)
}

// ModelPool round-robins over a fixed candidate list, fastest first,
// skipping unhealthy candidates, falling back to the fastest as a last
// resort when every candidate is unhealthy. Directly adapted from
// memory_model_pool.go's round-robin-with-failover, with the MySQL/
// providers.json discovery stripped: candidates are supplied by config.
type ModelPool struct {
	mu     sync.Mutex
	models []ModelCandidate
	index  int
	health HealthChecker
}

// NewModelPool builds a pool sorted by SpeedMs ascending.
func NewModelPool(models []ModelCandidate, health HealthChecker) *ModelPool {
	sorted := make([]ModelCandidate, len(models))
	copy(sorted, models)
	sortBySpeed(sorted)
	return &ModelPool{models: sorted, health: health}
}

// Next returns the next healthy candidate in round-robin order.
func (p *ModelPool) Next() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.models) == 0 {
		return "", fmt.Errorf("no models available in pool")
	}

	for attempts := 0; attempts < len(p.models); attempts++ {
		candidate := p.models[p.index]
		p.index = (p.index + 1) % len(p.models)

		if p.health != nil && !p.health.IsHealthy(candidate.ModelID) {
			log.Printf("⏭️ [MODEL-POOL] Skipping unhealthy model: %s", candidate.ModelID)
			continue
		}
		return candidate.ModelID, nil
	}

	log.Printf("⚠️ [MODEL-POOL] All models unhealthy, using fastest: %s", p.models[0].ModelID)
	return p.models[0].ModelID, nil
}

// MarkSuccess records a successful call for modelID.
func (p *ModelPool) MarkSuccess(modelID string) {
	if p.health != nil {
		p.health.MarkHealthy(modelID)
	}
}

// MarkFailure records a failed call for modelID.
func (p *ModelPool) MarkFailure(modelID string) {
	if p.health != nil {
		p.health.MarkUnhealthy(modelID, "memory operation failed")
	}
}

func sortBySpeed(models []ModelCandidate) {
	n := len(models)
	for i := 0; i < n-1; i++ {
		for j := 0; j < n-i-1; j++ {
			if models[j].SpeedMs > models[j+1].SpeedMs {
				models[j], models[j+1] = models[j+1], models[j]
			}
		}
	}
}
