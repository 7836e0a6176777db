// Package store persists the final enrichment record under a key (OUTPUT by default).
package store

import (
	"context"
	"fmt"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
)

// ContentTypeJSON is the content type of every record this module writes.
const ContentTypeJSON = "application/json; charset=utf-8"

// Store is a key-value record store.
type Store interface {
	SetValue(ctx context.Context, key string, value []byte, contentType string) error
	Close() error
}

// Deps are shared clients some backends need.
type Deps struct {
	Foundry    *foundry.Client
	FoundryEnv foundry.Env
}

// New opens the backend named by cfg.OutputStore.
func New(ctx context.Context, cfg config.Config, deps Deps) (Store, error) {
	switch cfg.OutputStore {
	case config.StoreLocal:
		return NewLocal(cfg.Local.Dir)
	case config.StoreFoundry:
		if deps.Foundry == nil {
			return nil, fmt.Errorf("foundry store requires a foundry client")
		}
		ref, err := deps.FoundryEnv.Resolve(cfg.Foundry.OutputAlias)
		if err != nil {
			return nil, err
		}
		return NewFoundry(deps.Foundry, ref), nil
	case config.StoreRedis:
		return NewRedis(ctx, cfg.Redis)
	case config.StoreDynamoDB:
		return NewDynamoDB(cfg.DynamoDB)
	case config.StoreMongoDB:
		return NewMongo(ctx, cfg.MongoDB)
	case config.StorePostgres:
		return NewPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported output store: %s", cfg.OutputStore)
	}
}
