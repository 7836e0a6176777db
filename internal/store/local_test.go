package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SetValueWritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "kv")
	l, err := NewLocal(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.SetValue(ctx, "OUTPUT", []byte(`{"a":1}`), ContentTypeJSON))
	require.NoError(t, l.SetValue(ctx, "OUTPUT", []byte(`{"a":2}`), ContentTypeJSON))

	b, err := os.ReadFile(filepath.Join(dir, "OUTPUT.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestLocal_RejectsPathKeys(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "..", "a/b", `a\b`} {
		assert.Error(t, l.SetValue(context.Background(), key, []byte("{}"), ContentTypeJSON), key)
	}
}

func TestLocal_CancelledContext(t *testing.T) {
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.SetValue(ctx, "OUTPUT", []byte("{}"), ContentTypeJSON), context.Canceled)
}
