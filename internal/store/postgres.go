package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres upserts each key into a key/value table, created on open if missing.
type Postgres struct {
	db    execer
	close func()
	table string
}

// NewPostgres opens a pool and creates the key-value table if it is missing.
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	p := &Postgres{db: pool, close: pool.Close, table: cfg.Table}
	if err := p.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// InitSchema creates the key/value table.
func (p *Postgres) InitSchema(ctx context.Context) error {
	schema := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        content_type TEXT NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`, p.table)
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (p *Postgres) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := validKey(key); err != nil {
		return err
	}
	q := fmt.Sprintf(`
    INSERT INTO %s (key, value, content_type, updated_at)
    VALUES ($1, $2, $3, NOW())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value, content_type = EXCLUDED.content_type, updated_at = NOW()`, p.table)
	if _, err := p.db.Exec(ctx, q, key, string(value), contentType); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
