package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database.
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names, matching the key layout in spec §6.
const (
	CollectionMemories      = "memories"
	CollectionBatchMetadata = "batch_metadata"
	CollectionConnections   = "connections"
	CollectionCostRecords   = "cost_records"
	CollectionEvolutions    = "evolutions"
	CollectionKV            = "kv_store"
)

// NewMongoDB creates a new MongoDB connection with connection pooling.
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "memengine"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName extracts the database name from a MongoDB URI.
func extractDBName(uri string) string {
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			if dbName := uri[start:end]; dbName != "" {
				return dbName
			}
		}
	}

	return "memengine"
}

// Initialize creates indexes for every collection the engine writes to.
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	if err := m.createIndexes(ctx, CollectionMemories, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "agentId", Value: 1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "agentId", Value: 1}, {Key: "resonance", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "agentId", Value: 1}, {Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "batchId", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create memories indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionBatchMetadata, []mongo.IndexModel{
		{Keys: bson.D{{Key: "startTime", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create batch_metadata indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionConnections, []mongo.IndexModel{
		{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "sourceId", Value: 1}}},
		{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "targetId", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create connections indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionCostRecords, []mongo.IndexModel{
		{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "recordedAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create cost_records indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionEvolutions, []mongo.IndexModel{
		{Keys: bson.D{{Key: "agentId", Value: 1}, {Key: "timestamp", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create evolutions indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionKV, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	}); err != nil {
		return fmt.Errorf("failed to create kv_store indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized successfully")
	return nil
}

// createIndexes creates indexes for a collection.
func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	collection := m.database.Collection(collectionName)
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection handle.
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Client returns the underlying MongoDB client.
func (m *MongoDB) Client() *mongo.Client {
	return m.client
}

// Database returns the underlying MongoDB database.
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close closes the MongoDB connection.
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive.
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

// WithTransaction executes fn within a transaction.
func (m *MongoDB) WithTransaction(ctx context.Context, fn func(sessCtx mongo.SessionContext) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
