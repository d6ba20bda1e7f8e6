package memstore

import (
	"context"
	"testing"

	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

func TestKVSetGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, ok, _ := s.Get(ctx, "k1"); ok {
		t.Fatal("expected missing key to report not found")
	}

	if err := s.Set(ctx, "k1", []byte("v1"), ports.SetOptions{}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "k1")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("Get = %q, %v, %v; want v1, true, nil", v, ok, err)
	}

	existed, err := s.Delete(ctx, "k1")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v; want true, nil", existed, err)
	}
	if _, ok, _ := s.Get(ctx, "k1"); ok {
		t.Error("expected key to be gone after Delete")
	}
}

func TestListByPrefix(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Set(ctx, "batch:1", []byte("a"), ports.SetOptions{})
	s.Set(ctx, "batch:2", []byte("b"), ports.SetOptions{})
	s.Set(ctx, "other:1", []byte("c"), ports.SetOptions{})

	keys, err := s.List(ctx, "batch:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys with prefix batch:, got %v", keys)
	}
}

func TestMemoryStoreGetListDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	mem := &model.Memory{ID: "m1", Content: "hello", Type: model.TypeEpisodic}
	if err := s.MemoryStore(ctx, "u1", "a1", mem); err != nil {
		t.Fatalf("MemoryStore: %v", err)
	}

	got, ok, err := s.MemoryGet(ctx, "u1", "a1", "m1")
	if err != nil || !ok || got.Content != "hello" {
		t.Fatalf("MemoryGet = %+v, %v, %v", got, ok, err)
	}

	// MemoryGet must return a defensive copy, not the stored pointer.
	got.Content = "mutated"
	got2, _, _ := s.MemoryGet(ctx, "u1", "a1", "m1")
	if got2.Content != "hello" {
		t.Error("expected MemoryGet to return an independent copy")
	}

	if _, ok, _ := s.MemoryGet(ctx, "other", "a1", "m1"); ok {
		t.Error("expected memory scoped to userId/agentId, not visible under a different userId")
	}

	list, err := s.MemoryList(ctx, "u1", "a1")
	if err != nil || len(list) != 1 {
		t.Fatalf("MemoryList = %v, %v; want 1 item", list, err)
	}

	if err := s.MemoryDelete(ctx, "u1", "a1", "m1"); err != nil {
		t.Fatalf("MemoryDelete: %v", err)
	}
	list, _ = s.MemoryList(ctx, "u1", "a1")
	if len(list) != 0 {
		t.Errorf("expected memory list empty after delete, got %v", list)
	}
}

func TestConnectionStoreUpsertsByCompoundKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	c1 := &model.Connection{SourceID: "a", TargetID: "b", Type: "related", Strength: 0.5}
	if err := s.ConnectionStore(ctx, "agent1", c1); err != nil {
		t.Fatalf("ConnectionStore: %v", err)
	}

	c1Updated := &model.Connection{SourceID: "a", TargetID: "b", Type: "related", Strength: 0.9}
	if err := s.ConnectionStore(ctx, "agent1", c1Updated); err != nil {
		t.Fatalf("ConnectionStore update: %v", err)
	}

	c2 := &model.Connection{SourceID: "b", TargetID: "c", Type: "related", Strength: 0.3}
	if err := s.ConnectionStore(ctx, "agent1", c2); err != nil {
		t.Fatalf("ConnectionStore: %v", err)
	}

	conns, err := s.ConnectionList(ctx, "agent1")
	if err != nil {
		t.Fatalf("ConnectionList: %v", err)
	}
	if len(conns) != 2 {
		t.Fatalf("expected 2 distinct connections after upsert, got %d (%+v)", len(conns), conns)
	}
	for _, c := range conns {
		if c.SourceID == "a" && c.TargetID == "b" && c.Strength != 0.9 {
			t.Errorf("expected (a,b) connection strength updated to 0.9, got %v", c.Strength)
		}
	}
}

func TestBatchMetadataStoreAndAccessor(t *testing.T) {
	s := New()
	ctx := context.Background()

	meta := &model.BatchMetadata{BatchID: "b1", MessagesProcessed: 5, MemoriesCreated: 2}
	if err := s.BatchMetadataStore(ctx, meta); err != nil {
		t.Fatalf("BatchMetadataStore: %v", err)
	}

	batches := s.Batches()
	if len(batches) != 1 || batches["b1"].MessagesProcessed != 5 {
		t.Errorf("expected stored batch metadata retrievable via Batches(), got %+v", batches)
	}
}

func TestCostRecordAppend(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CostRecordAppend(ctx, &model.CostRecord{AgentID: "a1", Cost: 0.1}); err != nil {
		t.Fatalf("CostRecordAppend: %v", err)
	}
	if err := s.CostRecordAppend(ctx, &model.CostRecord{AgentID: "a1", Cost: 0.2}); err != nil {
		t.Fatalf("CostRecordAppend: %v", err)
	}
	if len(s.costs) != 2 {
		t.Errorf("expected 2 appended cost records, got %d", len(s.costs))
	}
}

func TestEvolutionAppendAndAccessor(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.EvolutionAppend(ctx, &model.Evolution{MemoryID: "m1", ChangeType: model.EvolutionDeletion, Reason: "decay_threshold"}); err != nil {
		t.Fatalf("EvolutionAppend: %v", err)
	}

	evolutions := s.Evolutions()
	if len(evolutions) != 1 || evolutions[0].MemoryID != "m1" {
		t.Errorf("expected appended evolution retrievable via Evolutions(), got %+v", evolutions)
	}
}
