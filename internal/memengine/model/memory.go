// Package model holds the data entities shared by every memengine package.
package model

import "time"

// Type classifies a Memory's place in the working/episodic/semantic/procedural lifecycle.
type Type string

const (
	TypeWorking    Type = "working"
	TypeEpisodic   Type = "episodic"
	TypeSemantic   Type = "semantic"
	TypeProcedural Type = "procedural"
)

// Memory is a durable fact extracted from conversation.
//
// ID is unique within (UserID, AgentID), not globally. Resonance starts at
// 1.0. A decay pass never takes it below the floor (the matched rule's
// MinImportance, else the engine's), and raises it to that floor when it was
// already lower; under neverDecay it is never lowered.
type Memory struct {
	ID             string         `bson:"_id" json:"id"`
	UserID         string         `bson:"userId" json:"userId"`
	AgentID        string         `bson:"agentId" json:"agentId"`
	Content        string         `bson:"content" json:"content"`
	Type           Type           `bson:"type" json:"type"`
	Importance     float64        `bson:"importance" json:"importance"`
	Resonance      float64        `bson:"resonance" json:"resonance"`
	AccessCount    int64          `bson:"accessCount" json:"accessCount"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updatedAt" json:"updatedAt"`
	LastAccessedAt time.Time      `bson:"lastAccessedAt" json:"lastAccessedAt"`
	Keywords       []string       `bson:"keywords,omitempty" json:"keywords,omitempty"`
	Metadata       map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`

	SourceMessageIDs []string `bson:"sourceMessageIds,omitempty" json:"sourceMessageIds,omitempty"`
	BatchID          string   `bson:"batchId,omitempty" json:"batchId,omitempty"`

	// Version is set to 1 on extraction and promotion and incremented by
	// each decay write-back. No store checks it: concurrent writes to the
	// same id are last-writer-wins.
	Version int `bson:"version" json:"version"`
}

// Touch records an access: bumps AccessCount and LastAccessedAt.
func (m *Memory) Touch(now time.Time) {
	m.AccessCount++
	m.LastAccessedAt = now
	m.UpdatedAt = now
}

// MessageRole is the speaker of a MemoryMessage.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MemoryMessage is an inbound conversational unit. Immutable once constructed.
type MemoryMessage struct {
	ID        string      `json:"id"`
	AgentID   string      `json:"agentId"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
}

// ExtractionRule is a user-defined pattern feeding the rule-based extractor.
type ExtractionRule struct {
	ID             string   `bson:"_id" json:"id"`
	Pattern        string   `bson:"pattern" json:"pattern"`
	Type           Type     `bson:"type" json:"type"`
	Importance     float64  `bson:"importance" json:"importance"`
	Tags           []string `bson:"tags,omitempty" json:"tags,omitempty"`
	IsActive       bool     `bson:"isActive" json:"isActive"`
	NeverDecay     bool     `bson:"neverDecay,omitempty" json:"neverDecay,omitempty"`
	CustomHalfLife *float64 `bson:"customHalfLife,omitempty" json:"customHalfLife,omitempty"`
	Reinforceable  bool     `bson:"reinforceable,omitempty" json:"reinforceable,omitempty"`
}

// DecayRule picks a decay rate for memories matching Condition. The first
// enabled rule whose condition evaluates true for a memory wins.
type DecayRule struct {
	ID            string  `bson:"_id" json:"id"`
	Name          string  `bson:"name" json:"name"`
	Condition     string  `bson:"condition" json:"condition"`
	DecayRate     float64 `bson:"decayRate" json:"decayRate"`
	MinImportance float64 `bson:"minImportance" json:"minImportance"`
	NeverDecay    bool    `bson:"neverDecay" json:"neverDecay"`
	Enabled       bool    `bson:"enabled" json:"enabled"`
}

// BatchMetadata is written exactly once per batch decision, even a skipped one.
type BatchMetadata struct {
	BatchID           string    `bson:"_id" json:"batchId"`
	SourceMessageIDs  []string  `bson:"sourceMessageIds" json:"sourceMessageIds"`
	StartTime         time.Time `bson:"startTime" json:"startTime"`
	EndTime           time.Time `bson:"endTime" json:"endTime"`
	MessagesProcessed int       `bson:"messagesProcessed" json:"messagesProcessed"`
	MemoriesCreated   int       `bson:"memoriesCreated" json:"memoriesCreated"`
	ExtractionMethods []string  `bson:"extractionMethods" json:"extractionMethods"`
	Error             string    `bson:"error,omitempty" json:"error,omitempty"`
}

// Connection is a directed edge between two memories. Graph algorithms treat
// it as undirected (§4.8); never embed Memory objects here, ids only.
type Connection struct {
	SourceID string         `bson:"sourceId" json:"sourceId"`
	TargetID string         `bson:"targetId" json:"targetId"`
	Type     string         `bson:"type" json:"type"`
	Strength float64        `bson:"strength" json:"strength"`
	Metadata map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Evolution change types.
const (
	EvolutionDeletion = "deletion"
)

// Evolution is an append-only record of a structural change to a memory,
// written whenever a memory is archived and deleted (decay threshold,
// limit enforcement).
type Evolution struct {
	MemoryID   string    `bson:"memoryId" json:"memoryId"`
	UserID     string    `bson:"userId" json:"userId"`
	AgentID    string    `bson:"agentId" json:"agentId"`
	ChangeType string    `bson:"changeType" json:"changeType"`
	Reason     string    `bson:"reason" json:"reason"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
}

// CostRecord is an append-only per-extraction ledger entry.
type CostRecord struct {
	AgentID           string         `bson:"agentId" json:"agentId"`
	ExtractorType     string         `bson:"extractorType" json:"extractorType"`
	Cost              float64        `bson:"cost" json:"cost"`
	MemoriesExtracted int            `bson:"memoriesExtracted" json:"memoriesExtracted"`
	MessagesProcessed int            `bson:"messagesProcessed" json:"messagesProcessed"`
	Metadata          map[string]any `bson:"metadata,omitempty" json:"metadata,omitempty"`
	RecordedAt        time.Time      `bson:"recordedAt" json:"recordedAt"`
}
