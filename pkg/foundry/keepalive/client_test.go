package keepalive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runtimeMock struct {
	mu      sync.Mutex
	jobs    []Job
	results map[string]string
	tokens  []string
	done    chan struct{}
	want    int
}

func (m *runtimeMock) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/job", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.tokens = append(m.tokens, r.Header.Get("Module-Auth-Token"))
		if len(m.jobs) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		job := m.jobs[0]
		m.jobs = m.jobs[1:]
		_ = json.NewEncoder(w).Encode(computeModuleJobEnvelope{ComputeModuleJobV1: job})
	})
	mux.HandleFunc("/result/", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		defer m.mu.Unlock()
		m.results[strings.TrimPrefix(r.URL.Path, "/result/")] = string(b)
		if len(m.results) == m.want {
			close(m.done)
		}
	})
	return mux
}

func TestRunLoop_PostsResultsAndErrors(t *testing.T) {
	m := &runtimeMock{
		jobs: []Job{
			{JobID: "job-1", QueryType: "enrich", Query: json.RawMessage(`{"noOfLeads":5}`)},
			{JobID: "job-2", QueryType: "enrich", Query: json.RawMessage(`{}`)},
		},
		results: map[string]string{},
		done:    make(chan struct{}),
		want:    2,
	}
	ts := httptest.NewServer(m.handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- RunLoop(ctx, Config{
			GetJobURI:       ts.URL + "/job",
			PostResultURI:   ts.URL + "/result",
			ModuleAuthToken: "mod-tok",
			IdleWait:        time.Millisecond,
		}, func(_ context.Context, job Job) ([]byte, error) {
			if job.JobID == "job-2" {
				return nil, errors.New("bad request: Authorization: Bearer sekret")
			}
			return []byte(`{"ok":true}`), nil
		})
	}()

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for results")
	}
	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, `{"ok":true}`, m.results["job-1"])
	assert.Contains(t, m.results["job-2"], "bad request")
	assert.NotContains(t, m.results["job-2"], "sekret")
	for _, tok := range m.tokens {
		assert.Equal(t, "mod-tok", tok)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GET_JOB_URI", "")
	t.Setenv("POST_RESULT_URI", "")
	_, ok, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.False(t, ok)

	t.Setenv("GET_JOB_URI", "https://localhost:8945/job")
	t.Setenv("POST_RESULT_URI", "https://localhost:8945/result")
	t.Setenv("MODULE_AUTH_TOKEN", "")
	_, _, err = LoadConfigFromEnv()
	assert.ErrorContains(t, err, "MODULE_AUTH_TOKEN is required")

	t.Setenv("MODULE_AUTH_TOKEN", "tok")
	t.Setenv("DEFAULT_CA_PATH", "")
	cfg, ok, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://127.0.0.1:8945/job", cfg.GetJobURI)
	assert.Equal(t, "tok", cfg.ModuleAuthToken)
}
