package rules

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"memengine/internal/memengine/model"
)

func sampleExtractionRules() []model.ExtractionRule {
	return []model.ExtractionRule{
		{ID: "r1", Pattern: "my name is (.+)", Type: model.TypeSemantic, Importance: 0.8, IsActive: true},
	}
}

func writeDefs(t *testing.T, path string, defs definitions) {
	t.Helper()
	data, err := json.Marshal(defs)
	if err != nil {
		t.Fatalf("marshal defs: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write defs: %v", err)
	}
}

func TestNewStoreToleratesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore with missing file: %v", err)
	}
	rules, err := s.Rules(context.Background(), "u1", "a1")
	if err != nil || len(rules) != 0 {
		t.Errorf("expected empty rules for missing file, got %v err=%v", rules, err)
	}
}

func TestNewStoreRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewStore(path); err == nil {
		t.Error("expected NewStore to reject malformed JSON")
	}
}

func TestStoreLoadsRulesByAgent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	writeDefs(t, path, definitions{
		Agents: map[string]agentRules{
			"agent-1": {
				ExtractionRules: sampleExtractionRules(),
			},
		},
	})

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	rules, err := s.Rules(context.Background(), "u1", "agent-1")
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
}

func TestStoreHotReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	writeDefs(t, path, definitions{Agents: map[string]agentRules{}})

	s, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer s.Close()

	writeDefs(t, path, definitions{
		Agents: map[string]agentRules{
			"agent-1": {ExtractionRules: sampleExtractionRules()},
		},
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rules, _ := s.Rules(context.Background(), "u1", "agent-1")
		if len(rules) == 1 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("expected hot-reload to pick up the rewritten rules file within the debounce window")
}
