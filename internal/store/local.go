package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local writes each key to <dir>/<key>.json, the layout of an actor's default key-value store.
type Local struct {
	dir string
}

// NewLocal creates dir if needed and returns a store writing into it.
func NewLocal(dir string) (*Local, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// Path returns the file a key is written to.
func (l *Local) Path(key string, contentType string) string {
	name := key
	if strings.HasPrefix(contentType, "application/json") {
		name += ".json"
	}
	return filepath.Join(l.dir, name)
}

func (l *Local) SetValue(ctx context.Context, key string, value []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validKey(key); err != nil {
		return err
	}

	dst := l.Path(key, contentType)
	tmp, err := os.CreateTemp(l.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (l *Local) Close() error { return nil }

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("invalid store key %q", key)
	}
	return nil
}
