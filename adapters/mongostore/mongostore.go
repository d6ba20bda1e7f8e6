// Package mongostore implements ports.StoragePort over MongoDB, grounded on
// the teacher's internal/database.MongoDB connection wrapper and its
// collection/index conventions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"memengine/internal/database"
	"memengine/internal/memengine/model"
	"memengine/internal/memengine/ports"
)

// kvDoc is the generic key/value document backing StoragePort.Get/Set.
type kvDoc struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	ExpiresAt time.Time `bson:"expiresAt,omitempty"`
}

// Store adapts a *database.MongoDB connection to ports.StoragePort.
// MemoryStore's upsert-by-id gives the idempotency StoragePort requires
// (spec §6); Set is similarly an upsert.
type Store struct {
	db *database.MongoDB
}

// New builds a Store over an already-connected MongoDB handle.
func New(db *database.MongoDB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var doc kvDoc
	err := s.db.Collection(database.CollectionKV).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return doc.Value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, opts ports.SetOptions) error {
	doc := kvDoc{Key: key, Value: value}
	if opts.TTLSeconds > 0 {
		doc.ExpiresAt = ports.Now().Add(time.Duration(opts.TTLSeconds) * time.Second)
	}
	_, err := s.db.Collection(database.CollectionKV).ReplaceOne(
		ctx,
		bson.M{"_id": key},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res, err := s.db.Collection(database.CollectionKV).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return false, fmt.Errorf("kv delete %s: %w", key, err)
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	cur, err := s.db.Collection(database.CollectionKV).Find(ctx, bson.M{
		"_id": bson.M{"$regex": "^" + regexpQuote(prefix)},
	})
	if err != nil {
		return nil, fmt.Errorf("kv list %s: %w", prefix, err)
	}
	defer cur.Close(ctx)

	var keys []string
	for cur.Next(ctx) {
		var doc kvDoc
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		keys = append(keys, doc.Key)
	}
	return keys, cur.Err()
}

func (s *Store) MemoryStore(ctx context.Context, userID, agentID string, mem *model.Memory) error {
	mem.UserID = userID
	mem.AgentID = agentID
	_, err := s.db.Collection(database.CollectionMemories).ReplaceOne(
		ctx,
		bson.M{"_id": mem.ID},
		mem,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("memory store %s: %w", mem.ID, err)
	}
	return nil
}

func (s *Store) MemoryDelete(ctx context.Context, userID, agentID, id string) error {
	_, err := s.db.Collection(database.CollectionMemories).DeleteOne(ctx, bson.M{
		"_id": id, "userId": userID, "agentId": agentID,
	})
	if err != nil {
		return fmt.Errorf("memory delete %s: %w", id, err)
	}
	return nil
}

func (s *Store) MemoryGet(ctx context.Context, userID, agentID, id string) (*model.Memory, bool, error) {
	var mem model.Memory
	err := s.db.Collection(database.CollectionMemories).FindOne(ctx, bson.M{
		"_id": id, "userId": userID, "agentId": agentID,
	}).Decode(&mem)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("memory get %s: %w", id, err)
	}
	return &mem, true, nil
}

func (s *Store) MemoryList(ctx context.Context, userID, agentID string) ([]*model.Memory, error) {
	cur, err := s.db.Collection(database.CollectionMemories).Find(ctx, bson.M{
		"userId": userID, "agentId": agentID,
	})
	if err != nil {
		return nil, fmt.Errorf("memory list %s/%s: %w", userID, agentID, err)
	}
	defer cur.Close(ctx)

	var out []*model.Memory
	for cur.Next(ctx) {
		var mem model.Memory
		if err := cur.Decode(&mem); err != nil {
			continue
		}
		out = append(out, &mem)
	}
	return out, cur.Err()
}

func (s *Store) ConnectionList(ctx context.Context, agentID string) ([]*model.Connection, error) {
	cur, err := s.db.Collection(database.CollectionConnections).Find(ctx, bson.M{"agentId": agentID})
	if err != nil {
		return nil, fmt.Errorf("connection list %s: %w", agentID, err)
	}
	defer cur.Close(ctx)

	var out []*model.Connection
	for cur.Next(ctx) {
		var conn model.Connection
		if err := cur.Decode(&conn); err != nil {
			continue
		}
		out = append(out, &conn)
	}
	return out, cur.Err()
}

func (s *Store) ConnectionStore(ctx context.Context, agentID string, conn *model.Connection) error {
	doc := bson.M{
		"agentId":  agentID,
		"sourceId": conn.SourceID,
		"targetId": conn.TargetID,
		"type":     conn.Type,
		"strength": conn.Strength,
		"metadata": conn.Metadata,
	}
	_, err := s.db.Collection(database.CollectionConnections).ReplaceOne(
		ctx,
		bson.M{"agentId": agentID, "sourceId": conn.SourceID, "targetId": conn.TargetID, "type": conn.Type},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("connection store %s->%s: %w", conn.SourceID, conn.TargetID, err)
	}
	return nil
}

func (s *Store) BatchMetadataStore(ctx context.Context, meta *model.BatchMetadata) error {
	_, err := s.db.Collection(database.CollectionBatchMetadata).ReplaceOne(
		ctx,
		bson.M{"_id": meta.BatchID},
		meta,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("batch metadata store %s: %w", meta.BatchID, err)
	}
	return nil
}

func (s *Store) CostRecordAppend(ctx context.Context, rec *model.CostRecord) error {
	_, err := s.db.Collection(database.CollectionCostRecords).InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("cost record append: %w", err)
	}
	return nil
}

func (s *Store) EvolutionAppend(ctx context.Context, rec *model.Evolution) error {
	_, err := s.db.Collection(database.CollectionEvolutions).InsertOne(ctx, rec)
	if err != nil {
		return fmt.Errorf("evolution append: %w", err)
	}
	return nil
}

func regexpQuote(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isRegexSpecial(c) {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}

func isRegexSpecial(c byte) bool {
	switch c {
	case '.', '*', '+', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
		return true
	}
	return false
}
