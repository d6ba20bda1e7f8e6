package decay

import (
	"testing"
	"time"

	"memengine/internal/memengine/model"
)

func TestEvaluateProperty(t *testing.T) {
	mem := model.Memory{Importance: 0.8, Resonance: 0.4, AccessCount: 5, Type: model.TypeEpisodic}
	now := time.Now()

	cases := []struct {
		name      string
		condition string
		want      bool
	}{
		{"importance gt", "importance > 0.5", true},
		{"importance lt false", "importance < 0.5", false},
		{"resonance eq", "resonance == 0.4", true},
		{"accessCount gte", "accessCount >= 5", true},
		{"type eq", `type == "episodic"`, true},
		{"type neq", `type != "semantic"`, true},
		{"combined and true", "importance > 0.5 && accessCount >= 5", true},
		{"combined and false", "importance > 0.5 && accessCount >= 10", false},
		{"combined or true", "importance < 0.1 || accessCount >= 5", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Evaluate(tc.condition, mem, now); got != tc.want {
				t.Errorf("Evaluate(%q) = %v, want %v", tc.condition, got, tc.want)
			}
		})
	}
}

func TestEvaluateKeywordsAndMetadata(t *testing.T) {
	mem := model.Memory{
		Keywords: []string{"project-x", "deadline"},
		Metadata: map[string]any{"priority": "high", "score": 7.0},
	}
	now := time.Now()

	if !Evaluate(`keywords.includes("deadline")`, mem, now) {
		t.Error("expected keywords.includes to match existing keyword")
	}
	if Evaluate(`keywords.includes("missing")`, mem, now) {
		t.Error("expected keywords.includes to not match absent keyword")
	}
	if !Evaluate(`metadata.priority == "high"`, mem, now) {
		t.Error("expected metadata.priority == high to match")
	}
	if !Evaluate("metadata.score > 5", mem, now) {
		t.Error("expected metadata.score > 5 to match")
	}
}

func TestEvaluateDaysSince(t *testing.T) {
	now := time.Now()
	mem := model.Memory{
		CreatedAt:      now.Add(-10 * 24 * time.Hour),
		LastAccessedAt: now.Add(-3 * 24 * time.Hour),
	}

	if !Evaluate("daysSinceCreated() >= 9", mem, now) {
		t.Error("expected daysSinceCreated() >= 9 to match")
	}
	if !Evaluate("daysSinceAccessed() <= 4", mem, now) {
		t.Error("expected daysSinceAccessed() <= 4 to match")
	}
}

func TestEvaluateDaysSinceAccessedDefaultsToCreatedAt(t *testing.T) {
	now := time.Now()
	mem := model.Memory{CreatedAt: now.Add(-5 * 24 * time.Hour)}

	if !Evaluate("daysSinceAccessed() >= 4", mem, now) {
		t.Error("expected daysSinceAccessed() to fall back to CreatedAt when LastAccessedAt is zero")
	}
}

func TestEvaluateUnsupportedShapeIsAlwaysFalse(t *testing.T) {
	mem := model.Memory{Importance: 999}
	now := time.Now()

	cases := []string{
		"importance > notANumber",
		"unknownProperty > 1",
		"importance > 1 && (resonance < 1)",
		"1 == 1",
	}
	for _, cond := range cases {
		if Evaluate(cond, mem, now) {
			t.Errorf("Evaluate(%q) = true, want false for unsupported shape", cond)
		}
	}
}

func TestEvaluateEmptyConditionMatchesAll(t *testing.T) {
	if !Evaluate("", model.Memory{}, time.Now()) {
		t.Error("expected empty condition to always match")
	}
}
