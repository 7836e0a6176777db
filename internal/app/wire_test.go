package app

import (
	"context"
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
	"github.com/shpitdev/leads-enrichment-module/pkg/mocksearchleads"
	"github.com/shpitdev/leads-enrichment-module/pkg/searchleads"
)

func localConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		PollInterval:    time.Millisecond,
		PollMaxAttempts: 1,
		RequestTimeout:  5 * time.Second,
		OutputStore:     config.StoreLocal,
		OutputKey:       "OUTPUT",
		UsageSinks:      []string{config.SinkLog},
		Local:           config.LocalConfig{Dir: t.TempDir()},
	}
}

func TestBuild_SearchLeadsClientTrustsDefaultCA(t *testing.T) {
	mock := mocksearchleads.New("rec-tls")
	ts := httptest.NewTLSServer(mock.Handler())
	defer ts.Close()

	caPath := filepath.Join(t.TempDir(), "ca.pem")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ts.Certificate().Raw})
	require.NoError(t, os.WriteFile(caPath, caPEM, 0o600))

	slEnv := searchleads.Env{
		Services:      searchleads.Services{SubmitURL: ts.URL + "/submit", StatusURL: ts.URL + "/status"},
		APIKey:        "k",
		DefaultCAPath: caPath,
	}
	runner, closeFn, err := Build(context.Background(), localConfig(t), slEnv, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	job, err := runner.Submitter.Submit(context.Background(), enrich.Request{SourceLink: "https://x", LeadCount: 1, OutputName: "f.csv"})
	require.NoError(t, err, "the test server's self-signed cert is only trusted through DefaultCAPath")
	assert.Equal(t, "rec-tls", job.JobID)
}

func TestBuild_RejectsUnreadableDefaultCA(t *testing.T) {
	slEnv := searchleads.Env{
		Services:      searchleads.Services{SubmitURL: "https://a.example/submit", StatusURL: "https://a.example/status"},
		APIKey:        "k",
		DefaultCAPath: filepath.Join(t.TempDir(), "missing.pem"),
	}
	_, _, err := Build(context.Background(), localConfig(t), slEnv, zerolog.Nop())
	assert.ErrorContains(t, err, "read DEFAULT_CA_PATH file")
}
