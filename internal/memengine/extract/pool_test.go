package extract

import "testing"

type fakeHealth struct {
	unhealthy map[string]bool
}

func newFakeHealth(unhealthy ...string) *fakeHealth {
	h := &fakeHealth{unhealthy: make(map[string]bool)}
	for _, m := range unhealthy {
		h.unhealthy[m] = true
	}
	return h
}

func (h *fakeHealth) IsHealthy(modelID string) bool        { return !h.unhealthy[modelID] }
func (h *fakeHealth) MarkHealthy(modelID string)           { delete(h.unhealthy, modelID) }
func (h *fakeHealth) MarkUnhealthy(modelID, reason string) { h.unhealthy[modelID] = true }

func TestModelPoolSortsBySpeedAndRoundRobins(t *testing.T) {
	pool := NewModelPool([]ModelCandidate{
		{ModelID: "slow", SpeedMs: 900},
		{ModelID: "fast", SpeedMs: 100},
		{ModelID: "mid", SpeedMs: 400},
	}, nil)

	first, err := pool.Next()
	if err != nil || first != "fast" {
		t.Fatalf("expected first candidate to be the fastest, got %q, %v", first, err)
	}
	second, _ := pool.Next()
	if second != "mid" {
		t.Errorf("expected round robin order mid next, got %q", second)
	}
	third, _ := pool.Next()
	if third != "slow" {
		t.Errorf("expected round robin order slow next, got %q", third)
	}
	fourth, _ := pool.Next()
	if fourth != "fast" {
		t.Errorf("expected round robin to wrap back to fastest, got %q", fourth)
	}
}

func TestModelPoolSkipsUnhealthyCandidates(t *testing.T) {
	health := newFakeHealth("fast")
	pool := NewModelPool([]ModelCandidate{
		{ModelID: "fast", SpeedMs: 100},
		{ModelID: "mid", SpeedMs: 400},
	}, health)

	got, err := pool.Next()
	if err != nil || got != "mid" {
		t.Fatalf("expected unhealthy fastest model skipped in favor of mid, got %q, %v", got, err)
	}
}

func TestModelPoolFallsBackToFastestWhenAllUnhealthy(t *testing.T) {
	health := newFakeHealth("fast", "mid")
	pool := NewModelPool([]ModelCandidate{
		{ModelID: "fast", SpeedMs: 100},
		{ModelID: "mid", SpeedMs: 400},
	}, health)

	got, err := pool.Next()
	if err != nil || got != "fast" {
		t.Fatalf("expected fastest candidate as last resort when all unhealthy, got %q, %v", got, err)
	}
}

func TestModelPoolEmptyReturnsError(t *testing.T) {
	pool := NewModelPool(nil, nil)
	if _, err := pool.Next(); err == nil {
		t.Error("expected error from an empty pool")
	}
}

func TestModelPoolMarkSuccessAndFailureDelegateToHealth(t *testing.T) {
	health := newFakeHealth()
	pool := NewModelPool([]ModelCandidate{{ModelID: "m1", SpeedMs: 100}}, health)

	pool.MarkFailure("m1")
	if health.IsHealthy("m1") {
		t.Error("expected MarkFailure to mark the model unhealthy")
	}
	pool.MarkSuccess("m1")
	if !health.IsHealthy("m1") {
		t.Error("expected MarkSuccess to mark the model healthy again")
	}
}
