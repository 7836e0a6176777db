package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
)

type replacer interface {
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error)
}

// Mongo upserts one document per key: {_id: key, value, document, content_type, updated_at}.
// document holds the decoded JSON object so it can be queried; value keeps the exact bytes.
type Mongo struct {
	coll       replacer
	disconnect func(context.Context) error
	now        func() time.Time
}

// NewMongo connects to cfg.URI and pings the primary.
func NewMongo(ctx context.Context, cfg config.MongoDBConfig) (*Mongo, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Mongo{
		coll:       client.Database(cfg.Database).Collection(cfg.Collection),
		disconnect: client.Disconnect,
		now:        time.Now,
	}, nil
}

func (m *Mongo) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}

	doc := bson.M{
		"_id":          key,
		"value":        string(value),
		"content_type": contentType,
		"updated_at":   m.now().UTC(),
	}
	var decoded bson.M
	if err := bson.UnmarshalExtJSON(value, false, &decoded); err == nil {
		doc["document"] = decoded
	}

	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo upsert %s: %w", key, err)
	}
	return nil
}

func (m *Mongo) Close() error {
	if m.disconnect == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.disconnect(ctx)
}
