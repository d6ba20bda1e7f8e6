// Package ports declares the external capabilities the engine consumes:
// storage, LLM text/object generation, and embeddings. Concrete
// implementations live under adapters/.
package ports

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"memengine/internal/memengine/model"
)

// SetOptions configures an optional TTL on StoragePort.Set.
type SetOptions struct {
	TTLSeconds int64
}

// ArchiveConfig controls the archive-then-delete policy applied before any
// memory is permanently removed (spec §4.7): archive to a TTL-bounded key,
// then delete from primary storage.
type ArchiveConfig struct {
	Enabled bool
	// KeyPattern substitutes {agentId} and {memoryId}; defaults to
	// "archive:{agentId}:{memoryId}" when empty.
	KeyPattern string
	TTLSeconds int64
}

func (c ArchiveConfig) pattern() string {
	if c.KeyPattern == "" {
		return "archive:{agentId}:{memoryId}"
	}
	return c.KeyPattern
}

// Key renders the archive key for one memory.
func (c ArchiveConfig) Key(agentID, memoryID string) string {
	key := strings.ReplaceAll(c.pattern(), "{agentId}", agentID)
	return strings.ReplaceAll(key, "{memoryId}", memoryID)
}

// Prefix renders the literal portion of the archive key pattern preceding
// {memoryId}, for enumerating one agent's archived entries via List.
func (c ArchiveConfig) Prefix(agentID string) string {
	pattern := c.pattern()
	cut := strings.Index(pattern, "{memoryId}")
	if cut < 0 {
		cut = len(pattern)
	}
	return strings.ReplaceAll(pattern[:cut], "{agentId}", agentID)
}

// ArchiveRecord is the JSON envelope written to an archive key.
type ArchiveRecord struct {
	Memory     *model.Memory `json:"memory"`
	ArchivedAt time.Time     `json:"archivedAt"`
}

// ArchiveAndDelete archives mem (if cfg.Enabled) to its TTL-bounded archive
// key, deletes it from primary storage, then appends a deletion Evolution
// record — the exact sequence spec §4.7 requires before any memory deletion.
// Called by the decay engine's threshold deletion and by limit enforcement.
func ArchiveAndDelete(ctx context.Context, storage StoragePort, cfg ArchiveConfig, userID, agentID string, mem *model.Memory, reason string) error {
	now := Now()

	if cfg.Enabled {
		payload, err := json.Marshal(ArchiveRecord{Memory: mem, ArchivedAt: now})
		if err != nil {
			return fmt.Errorf("encode archive record for %s: %w", mem.ID, err)
		}
		if err := storage.Set(ctx, cfg.Key(agentID, mem.ID), payload, SetOptions{TTLSeconds: cfg.TTLSeconds}); err != nil {
			return fmt.Errorf("archive memory %s: %w", mem.ID, err)
		}
	}

	if err := storage.MemoryDelete(ctx, userID, agentID, mem.ID); err != nil {
		return fmt.Errorf("delete memory %s: %w", mem.ID, err)
	}

	if err := storage.EvolutionAppend(ctx, &model.Evolution{
		MemoryID:   mem.ID,
		UserID:     userID,
		AgentID:    agentID,
		ChangeType: model.EvolutionDeletion,
		Reason:     reason,
		Timestamp:  now,
	}); err != nil {
		return fmt.Errorf("append evolution record for %s: %w", mem.ID, err)
	}

	return nil
}

// StoragePort is the abstract KV + memory + list capability consumed by
// every layer of the engine. Adapters must preserve at-least-once
// durability for Set and idempotency for MemoryStore by id.
type StoragePort interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)

	MemoryStore(ctx context.Context, userID, agentID string, mem *model.Memory) error
	MemoryDelete(ctx context.Context, userID, agentID, id string) error
	MemoryGet(ctx context.Context, userID, agentID, id string) (*model.Memory, bool, error)
	MemoryList(ctx context.Context, userID, agentID string) ([]*model.Memory, error)

	ConnectionList(ctx context.Context, agentID string) ([]*model.Connection, error)
	ConnectionStore(ctx context.Context, agentID string, conn *model.Connection) error

	BatchMetadataStore(ctx context.Context, meta *model.BatchMetadata) error

	CostRecordAppend(ctx context.Context, rec *model.CostRecord) error
	EvolutionAppend(ctx context.Context, rec *model.Evolution) error
}

// GenerateObjectRequest asks the LLM to produce a schema-validated object.
type GenerateObjectRequest struct {
	Schema      map[string]any
	Messages    []LLMMessage
	Temperature float64
}

// LLMMessage is a single chat turn sent to an LLMPort.
type LLMMessage struct {
	Role    string
	Content string
}

// Usage reports token accounting for a single LLM call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// GenerateObjectResult is the structured response from LLMPort.GenerateObject.
type GenerateObjectResult struct {
	Object map[string]any
	Usage  Usage
}

// StreamTextResult is the response from LLMPort.StreamText.
type StreamTextResult struct {
	Text  string
	Usage Usage
}

// LLMPort abstracts text generation, structured-object generation. Schema
// validation is the adapter's responsibility; on validation failure the
// adapter must return an error.
type LLMPort interface {
	GenerateObject(ctx context.Context, req GenerateObjectRequest) (*GenerateObjectResult, error)
	StreamText(ctx context.Context, messages []LLMMessage, temperature float64) (*StreamTextResult, error)
}

// EmbedResult is the response from EmbeddingPort.Embed.
type EmbedResult struct {
	Embedding []float64
	Usage     Usage
}

// EmbeddingPort abstracts text embedding. Used by evaluation and connection
// features, not by the batch pipeline itself.
type EmbeddingPort interface {
	Embed(ctx context.Context, text string) (*EmbedResult, error)
}

// Now is the hook every component uses instead of calling time.Now directly,
// so tests can pin a clock. Defaults to the wall clock.
var Now = time.Now
