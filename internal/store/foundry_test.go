package store

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
	"github.com/shpitdev/leads-enrichment-module/pkg/mockfoundry"
)

const outputRID = "ri.foundry.main.dataset.output"

func newFoundryStore(t *testing.T) (*mockfoundry.Server, Deps) {
	t.Helper()
	srv := mockfoundry.New("")
	srv.RequireBearerToken("build-token")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := foundry.NewClient(foundry.Services{
		APIGateway:  ts.URL + "/api",
		StreamProxy: ts.URL + "/stream-proxy/api",
	}, "build-token", "")
	require.NoError(t, err)

	return srv, Deps{
		Foundry: client,
		FoundryEnv: foundry.Env{Aliases: map[string]foundry.DatasetRef{
			"output": {RID: outputRID},
		}},
	}
}

func foundryConfig() config.Config {
	return config.Config{OutputStore: config.StoreFoundry, Foundry: config.FoundryConfig{OutputAlias: "output"}}
}

func TestFoundry_CreatesAndCommitsTransaction(t *testing.T) {
	srv, deps := newFoundryStore(t)
	ctx := context.Background()

	s, err := New(ctx, foundryConfig(), deps)
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, "OUTPUT", []byte(`{"enriched_records":"42"}`), ContentTypeJSON))

	got, ok := srv.Committed(outputRID, "OUTPUT.json")
	require.True(t, ok)
	assert.JSONEq(t, `{"enriched_records":"42"}`, string(got))
}

func TestFoundry_JoinsBuildTransaction(t *testing.T) {
	srv, deps := newFoundryStore(t)
	ctx := context.Background()
	buildTxn := srv.OpenTransaction(outputRID, "master")

	s, err := New(ctx, foundryConfig(), deps)
	require.NoError(t, err)
	require.NoError(t, s.SetValue(ctx, "OUTPUT", []byte(`{}`), ContentTypeJSON))

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, buildTxn, uploads[0].TxnID)

	_, committed := srv.Committed(outputRID, "OUTPUT.json")
	assert.False(t, committed, "the build owns the commit")
}

func TestNew_FoundryUnknownAlias(t *testing.T) {
	_, deps := newFoundryStore(t)
	cfg := foundryConfig()
	cfg.Foundry.OutputAlias = "elsewhere"

	_, err := New(context.Background(), cfg, deps)
	assert.ErrorContains(t, err, `no alias "elsewhere"`)
}

func TestNew_Local(t *testing.T) {
	s, err := New(context.Background(), config.Config{OutputStore: config.StoreLocal, Local: config.LocalConfig{Dir: t.TempDir()}}, Deps{})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)
	assert.NoError(t, s.Close())
}

func TestNew_Unsupported(t *testing.T) {
	_, err := New(context.Background(), config.Config{OutputStore: "s3"}, Deps{})
	assert.ErrorContains(t, err, "unsupported output store")
}
