package extract

import (
	"context"
	"testing"

	"memengine/internal/memengine/model"
)

func TestRuleBasedExtractorExtractsCaptureGroup(t *testing.T) {
	e := NewRuleBasedExtractor()
	msg := model.MemoryMessage{ID: "msg1", AgentID: "agent1", Content: "my name is Alex Rivera"}
	rules := []model.ExtractionRule{
		{ID: "name-rule", Pattern: `my name is (.+)`, Type: model.TypeSemantic, Importance: 0.7, IsActive: true},
	}

	mems, err := e.Extract(context.Background(), msg, rules)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(mems) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(mems))
	}
	if mems[0].Content != "Alex Rivera" {
		t.Errorf("Content = %q, want %q", mems[0].Content, "Alex Rivera")
	}
	if mems[0].Resonance != 1.0 {
		t.Errorf("new memories should start at Resonance 1.0, got %v", mems[0].Resonance)
	}
	if mems[0].Metadata["ruleId"] != "name-rule" {
		t.Errorf("expected ruleId metadata to be set")
	}
}

func TestRuleBasedExtractorSkipsInactiveRules(t *testing.T) {
	e := NewRuleBasedExtractor()
	msg := model.MemoryMessage{ID: "msg1", Content: "my name is Alex"}
	rules := []model.ExtractionRule{
		{ID: "r1", Pattern: `my name is (.+)`, IsActive: false},
	}

	mems, err := e.Extract(context.Background(), msg, rules)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(mems) != 0 {
		t.Errorf("expected inactive rule to be skipped, got %d memories", len(mems))
	}
}

func TestRuleBasedExtractorSkipsInvalidPattern(t *testing.T) {
	e := NewRuleBasedExtractor()
	msg := model.MemoryMessage{ID: "msg1", Content: "hello"}
	rules := []model.ExtractionRule{
		{ID: "bad", Pattern: `(unclosed`, IsActive: true},
	}

	mems, err := e.Extract(context.Background(), msg, rules)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(mems) != 0 {
		t.Errorf("expected invalid regex to be skipped without error, got %d memories", len(mems))
	}
}

func TestRuleBasedExtractorNoMatchYieldsNoMemory(t *testing.T) {
	e := NewRuleBasedExtractor()
	msg := model.MemoryMessage{ID: "msg1", Content: "just chatting"}
	rules := []model.ExtractionRule{
		{ID: "r1", Pattern: `my name is (.+)`, IsActive: true},
	}

	mems, err := e.Extract(context.Background(), msg, rules)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(mems) != 0 {
		t.Errorf("expected no match to yield no memories, got %d", len(mems))
	}
}

func TestRuleBasedExtractorEstimateCostIsZero(t *testing.T) {
	e := NewRuleBasedExtractor()
	if e.EstimateCost([]model.MemoryMessage{{Content: "x"}}) != 0 {
		t.Error("rule-based extraction must always cost 0")
	}
}
