// Package cost tracks per-agent extraction spend and decides which tier a
// message may use under a budget.
package cost

import (
	"context"
	"log"
	"sync"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

// Tracker is an append-only cost ledger. Safe for concurrent writers
// (spec §5 "CostTracker: append-only; tolerates concurrent writers").
type Tracker struct {
	mu      sync.Mutex
	spent   map[string]float64 // agentID -> cumulative cost this process
	storage ports.StoragePort  // optional flush target, nil disables persistence
}

// NewTracker builds a Tracker. storage may be nil (as in unit tests): the
// Tracker then keeps only the per-agent running totals, and the records
// themselves are not kept anywhere.
func NewTracker(storage ports.StoragePort) *Tracker {
	return &Tracker{
		spent:   make(map[string]float64),
		storage: storage,
	}
}

// Record logs a cost record and adds cost to the agent's running total.
func (t *Tracker) Record(ctx context.Context, rec model.CostRecord) {
	t.mu.Lock()
	t.spent[rec.AgentID] += rec.Cost
	t.mu.Unlock()

	if t.storage == nil {
		return
	}
	if err := t.storage.CostRecordAppend(ctx, &rec); err != nil {
		log.Printf("⚠️ [COST] Failed to append cost record for agent %s: %v", rec.AgentID, err)
	}
}

// Spent returns the cumulative cost recorded for an agent this process.
func (t *Tracker) Spent(agentID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.spent[agentID]
}

// Reset zeroes the running total for an agent, used between cost-budget windows.
func (t *Tracker) Reset(agentID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.spent, agentID)
}
