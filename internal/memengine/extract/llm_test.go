package extract

import (
	"context"
	"testing"

	"memengine/internal/memengine/cost"
	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

type fakeLLM struct {
	result *ports.GenerateObjectResult
	err    error
}

func (f *fakeLLM) GenerateObject(ctx context.Context, req ports.GenerateObjectRequest) (*ports.GenerateObjectResult, error) {
	return f.result, f.err
}
func (f *fakeLLM) StreamText(ctx context.Context, messages []ports.LLMMessage, temperature float64) (*ports.StreamTextResult, error) {
	return nil, nil
}

func TestLLMExtractorParsesMemoriesAndRecordsCost(t *testing.T) {
	llm := &fakeLLM{result: &ports.GenerateObjectResult{
		Object: map[string]any{
			"memories": []any{
				map[string]any{"content": "likes hiking", "type": "semantic", "importance": 0.6},
			},
		},
	}}
	tracker := cost.NewTracker(nil)
	e := NewSmall(llm, tracker, 0.001)

	msg := model.MemoryMessage{ID: "m1", AgentID: "agent1", Content: "I really enjoy hiking on weekends"}
	mems, err := e.Extract(context.Background(), msg, nil)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if len(mems) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(mems))
	}
	if mems[0].Content != "likes hiking" {
		t.Errorf("Content = %q, want %q", mems[0].Content, "likes hiking")
	}
	if mems[0].Type != model.TypeSemantic {
		t.Errorf("Type = %q, want semantic", mems[0].Type)
	}
	if tracker.Spent("agent1") <= 0 {
		t.Error("expected a nonzero cost to be recorded for agent1")
	}
}

func TestLLMExtractorFailsOpenOnProviderError(t *testing.T) {
	llm := &fakeLLM{err: context.DeadlineExceeded}
	tracker := cost.NewTracker(nil)
	e := NewLarge(llm, tracker, 0.01)

	msg := model.MemoryMessage{ID: "m1", AgentID: "agent1", Content: "hello"}
	mems, err := e.Extract(context.Background(), msg, nil)
	if err != nil {
		t.Fatalf("expected Extract to never return an error, got %v", err)
	}
	if mems != nil {
		t.Errorf("expected nil memories on provider error, got %v", mems)
	}
}

func TestLLMExtractorBindsMatchingRule(t *testing.T) {
	llm := &fakeLLM{result: &ports.GenerateObjectResult{
		Object: map[string]any{
			"memories": []any{
				map[string]any{"content": "fact", "type": "semantic", "importance": 0.5},
			},
		},
	}}
	tracker := cost.NewTracker(nil)
	e := NewSmall(llm, tracker, 0.001)

	rules := []model.ExtractionRule{
		{ID: "r1", Type: model.TypeSemantic, IsActive: true, NeverDecay: true},
	}
	msg := model.MemoryMessage{ID: "m1", AgentID: "agent1", Content: "x"}
	mems, err := e.Extract(context.Background(), msg, rules)
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if mems[0].Metadata["ruleId"] != "r1" {
		t.Errorf("expected ruleId=r1 bound, got %v", mems[0].Metadata["ruleId"])
	}
	if mems[0].Metadata["neverDecay"] != true {
		t.Error("expected neverDecay propagated from bound rule")
	}
}
