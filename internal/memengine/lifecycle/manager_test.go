package lifecycle

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"memengine/internal/memengine/decay"
	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

type fakeStorage struct {
	memories   map[string]*model.Memory
	archive    map[string][]byte
	evolutions []*model.Evolution
}

func newFakeStorage(mems ...*model.Memory) *fakeStorage {
	s := &fakeStorage{memories: make(map[string]*model.Memory), archive: make(map[string][]byte)}
	for _, m := range mems {
		s.memories[m.ID] = m
	}
	return s
}

func (f *fakeStorage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.archive[key]
	return v, ok, nil
}
func (f *fakeStorage) Set(ctx context.Context, key string, value []byte, opts ports.SetOptions) error {
	f.archive[key] = value
	return nil
}
func (f *fakeStorage) Delete(ctx context.Context, key string) (bool, error) {
	_, ok := f.archive[key]
	delete(f.archive, key)
	return ok, nil
}
func (f *fakeStorage) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range f.archive {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStorage) MemoryStore(ctx context.Context, userID, agentID string, mem *model.Memory) error {
	f.memories[mem.ID] = mem
	return nil
}
func (f *fakeStorage) MemoryDelete(ctx context.Context, userID, agentID, id string) error {
	delete(f.memories, id)
	return nil
}
func (f *fakeStorage) MemoryGet(ctx context.Context, userID, agentID, id string) (*model.Memory, bool, error) {
	m, ok := f.memories[id]
	return m, ok, nil
}
func (f *fakeStorage) MemoryList(ctx context.Context, userID, agentID string) ([]*model.Memory, error) {
	var out []*model.Memory
	for _, m := range f.memories {
		out = append(out, m)
	}
	return out, nil
}
func (f *fakeStorage) ConnectionList(ctx context.Context, agentID string) ([]*model.Connection, error) {
	return nil, nil
}
func (f *fakeStorage) ConnectionStore(ctx context.Context, agentID string, conn *model.Connection) error {
	return nil
}
func (f *fakeStorage) BatchMetadataStore(ctx context.Context, meta *model.BatchMetadata) error {
	return nil
}
func (f *fakeStorage) CostRecordAppend(ctx context.Context, rec *model.CostRecord) error { return nil }
func (f *fakeStorage) EvolutionAppend(ctx context.Context, rec *model.Evolution) error {
	f.evolutions = append(f.evolutions, rec)
	return nil
}

type noRules struct{}

func (noRules) DecayRules(ctx context.Context, userID, agentID string) ([]model.DecayRule, error) {
	return nil, nil
}

func TestManagerPromotesEligibleEpisodicMemory(t *testing.T) {
	now := time.Now()
	origNow := ports.Now
	ports.Now = func() time.Time { return now }
	defer func() { ports.Now = origNow }()

	mem := &model.Memory{
		ID:          "ep1",
		Type:        model.TypeEpisodic,
		Importance:  0.9,
		Resonance:   0.5,
		AccessCount: 5,
		CreatedAt:   now.Add(-30 * 24 * time.Hour),
	}
	storage := newFakeStorage(mem)

	cfg := Config{
		Promotion: PromotionConfig{
			EpisodicToSemanticDays:     7,
			MinImportanceForPromotion:  0.6,
			MinAccessCountForPromotion: 3,
		},
	}
	decayEngine := decay.New(decay.Config{DefaultDecayRate: 0, MinImportance: 0, DeleteThreshold: -1}, storage)
	mgr := New(cfg, storage, decayEngine, noRules{})

	report, err := mgr.Run(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Promoted != 1 {
		t.Fatalf("expected 1 promotion, got %d (report=%+v)", report.Promoted, report)
	}

	if _, ok := storage.memories["ep1"]; ok {
		t.Error("expected original episodic memory to be deleted after promotion")
	}

	var promoted *model.Memory
	for _, m := range storage.memories {
		if m.Type == model.TypeSemantic {
			promoted = m
		}
	}
	if promoted == nil {
		t.Fatal("expected a semantic memory to exist after promotion")
	}
	if promoted.Resonance != 1.0 {
		t.Errorf("promoted memory resonance = %v, want 1.0 (reset on promotion)", promoted.Resonance)
	}
	if promoted.Metadata["originalId"] != "ep1" {
		t.Errorf("expected Metadata[originalId]=ep1, got %v", promoted.Metadata["originalId"])
	}
}

func TestManagerSkipsPromotionBelowThresholds(t *testing.T) {
	now := time.Now()
	origNow := ports.Now
	ports.Now = func() time.Time { return now }
	defer func() { ports.Now = origNow }()

	mem := &model.Memory{
		ID:          "ep1",
		Type:        model.TypeEpisodic,
		Importance:  0.2, // below threshold
		Resonance:   0.5,
		AccessCount: 5,
		CreatedAt:   now.Add(-30 * 24 * time.Hour),
	}
	storage := newFakeStorage(mem)

	cfg := Config{
		Promotion: PromotionConfig{
			EpisodicToSemanticDays:     7,
			MinImportanceForPromotion:  0.6,
			MinAccessCountForPromotion: 3,
		},
	}
	decayEngine := decay.New(decay.Config{DefaultDecayRate: 0, MinImportance: 0, DeleteThreshold: -1}, storage)
	mgr := New(cfg, storage, decayEngine, noRules{})

	report, err := mgr.Run(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Promoted != 0 {
		t.Errorf("expected 0 promotions below importance threshold, got %d", report.Promoted)
	}
	if _, ok := storage.memories["ep1"]; !ok {
		t.Error("expected original episodic memory to survive when not promoted")
	}
}

func TestManagerEnforceLimitTrimsLowestResonance(t *testing.T) {
	now := time.Now()
	mems := []*model.Memory{
		{ID: "low", Type: model.TypeSemantic, Resonance: 0.1, CreatedAt: now},
		{ID: "mid", Type: model.TypeSemantic, Resonance: 0.5, CreatedAt: now},
		{ID: "high", Type: model.TypeSemantic, Resonance: 0.9, CreatedAt: now},
	}
	storage := newFakeStorage(mems...)

	cfg := Config{Limit: LimitConfig{MaxMemoriesPerAgent: 2}}
	decayEngine := decay.New(decay.Config{DefaultDecayRate: 0, MinImportance: 0, DeleteThreshold: -1}, storage)
	mgr := New(cfg, storage, decayEngine, noRules{})

	report, err := mgr.Run(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Trimmed != 1 {
		t.Fatalf("expected 1 trimmed memory, got %d", report.Trimmed)
	}
	if _, ok := storage.memories["low"]; ok {
		t.Error("expected lowest-resonance memory to be trimmed first")
	}
}

func TestManagerEnforceLimitTiebreaksOnCreatedAt(t *testing.T) {
	now := time.Now()
	mems := []*model.Memory{
		{ID: "older", Type: model.TypeSemantic, Resonance: 0.5, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "newer", Type: model.TypeSemantic, Resonance: 0.5, CreatedAt: now.Add(-1 * time.Hour)},
		{ID: "safe", Type: model.TypeSemantic, Resonance: 0.9, CreatedAt: now},
	}
	storage := newFakeStorage(mems...)

	cfg := Config{Limit: LimitConfig{MaxMemoriesPerAgent: 2}}
	decayEngine := decay.New(decay.Config{DefaultDecayRate: 0, MinImportance: 0, DeleteThreshold: -1}, storage)
	mgr := New(cfg, storage, decayEngine, noRules{})

	report, err := mgr.Run(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Trimmed != 1 {
		t.Fatalf("expected 1 trimmed memory, got %d", report.Trimmed)
	}
	if _, ok := storage.memories["older"]; ok {
		t.Error("expected the older of two equal-resonance memories to be trimmed first")
	}
	if _, ok := storage.memories["newer"]; !ok {
		t.Error("expected the newer of two equal-resonance memories to survive")
	}
}

func TestManagerCleanupPurgesExpiredArchiveEntries(t *testing.T) {
	now := time.Now()
	origNow := ports.Now
	ports.Now = func() time.Time { return now }
	defer func() { ports.Now = origNow }()

	archiveCfg := ports.ArchiveConfig{Enabled: true, TTLSeconds: 3600}
	storage := newFakeStorage()

	expired, _ := json.Marshal(ports.ArchiveRecord{
		Memory:     &model.Memory{ID: "expired"},
		ArchivedAt: now.Add(-2 * time.Hour),
	})
	fresh, _ := json.Marshal(ports.ArchiveRecord{
		Memory:     &model.Memory{ID: "fresh"},
		ArchivedAt: now.Add(-10 * time.Minute),
	})
	storage.archive[archiveCfg.Key("a1", "expired")] = expired
	storage.archive[archiveCfg.Key("a1", "fresh")] = fresh

	cfg := Config{Archive: archiveCfg}
	decayEngine := decay.New(decay.Config{DefaultDecayRate: 0, MinImportance: 0, DeleteThreshold: -1}, storage)
	mgr := New(cfg, storage, decayEngine, noRules{})

	archived, trimmed, err := mgr.RunCleanup(context.Background(), "u1", "a1")
	if err != nil {
		t.Fatalf("RunCleanup error: %v", err)
	}
	if archived != 1 {
		t.Errorf("expected 1 purged archive entry, got %d (trimmed=%d)", archived, trimmed)
	}
	if _, ok := storage.archive[archiveCfg.Key("a1", "expired")]; ok {
		t.Error("expected expired archive entry to be purged")
	}
	if _, ok := storage.archive[archiveCfg.Key("a1", "fresh")]; !ok {
		t.Error("expected fresh archive entry to survive")
	}
}

func TestManagerEnforceLimitAppendsEvolutionRecord(t *testing.T) {
	now := time.Now()
	mems := []*model.Memory{
		{ID: "low", Type: model.TypeSemantic, Resonance: 0.1, CreatedAt: now},
		{ID: "high", Type: model.TypeSemantic, Resonance: 0.9, CreatedAt: now},
	}
	storage := newFakeStorage(mems...)

	cfg := Config{Limit: LimitConfig{MaxMemoriesPerAgent: 1}}
	decayEngine := decay.New(decay.Config{DefaultDecayRate: 0, MinImportance: 0, DeleteThreshold: -1}, storage)
	mgr := New(cfg, storage, decayEngine, noRules{})

	if _, err := mgr.Run(context.Background(), "u1", "a1"); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(storage.evolutions) != 1 {
		t.Fatalf("expected 1 evolution record appended, got %d", len(storage.evolutions))
	}
	rec := storage.evolutions[0]
	if rec.MemoryID != "low" || rec.ChangeType != model.EvolutionDeletion || rec.Reason != "limit_enforcement" {
		t.Errorf("unexpected evolution record: %+v", rec)
	}
}
