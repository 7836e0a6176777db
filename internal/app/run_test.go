package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
	"github.com/shpitdev/leads-enrichment-module/internal/enrich/poller"
	"github.com/shpitdev/leads-enrichment-module/internal/metrics"
	"github.com/shpitdev/leads-enrichment-module/internal/store"
	"github.com/shpitdev/leads-enrichment-module/internal/usage"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry/keepalive"
	"github.com/shpitdev/leads-enrichment-module/pkg/mocksearchleads"
	"github.com/shpitdev/leads-enrichment-module/pkg/searchleads"
)

type recordingUsage struct {
	events []usage.Event
	err    error
}

func (r *recordingUsage) AddUsage(_ context.Context, ev usage.Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingUsage) Close() error { return nil }

type harness struct {
	mock   *mocksearchleads.Server
	runner *Runner
	usage  *recordingUsage
	dir    string
	sleeps int
}

func newHarness(t *testing.T, recordID string, replies ...mocksearchleads.Reply) *harness {
	t.Helper()

	mock := mocksearchleads.New(recordID, replies...)
	mock.RequireBearerToken("sl-key")
	ts := httptest.NewServer(mock.Handler())
	t.Cleanup(ts.Close)

	client, err := searchleads.NewClient(searchleads.Config{
		Services: searchleads.Services{SubmitURL: ts.URL + "/submit", StatusURL: ts.URL + "/status"},
		APIKey:   "sl-key",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	st, err := store.NewLocal(dir)
	require.NoError(t, err)

	h := &harness{mock: mock, usage: &recordingUsage{}, dir: dir}
	h.runner = &Runner{
		Submitter: client,
		Status:    client,
		Store:     st,
		Usage:     h.usage,
		Metrics:   metrics.New(),
		Logger:    zerolog.Nop(),
		Poll: poller.Options{
			MaxAttempts: 60,
			Interval:    10 * time.Second,
			Sleep: func(context.Context, time.Duration) error {
				h.sleeps++
				return nil
			},
		},
	}
	return h
}

func (h *harness) output(t *testing.T) ([]byte, bool) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(h.dir, "OUTPUT.json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false
	}
	require.NoError(t, err)
	return b, true
}

var sampleRequest = enrich.Request{SourceLink: "https://app.apollo.io/#/people?q=cto", LeadCount: 2500, OutputName: "ctos"}

func TestRun_CompletedReportsUsageAndPersists(t *testing.T) {
	h := newHarness(t, "rec-1",
		mocksearchleads.Pending(),
		mocksearchleads.Reply{Body: `{"enrichment_status":"processing"}`},
		mocksearchleads.StatusArray("Completed", 2001),
	)

	sum, err := h.runner.Run(context.Background(), sampleRequest)
	require.NoError(t, err)

	assert.Equal(t, "rec-1", sum.JobID)
	assert.Equal(t, int64(2001), sum.Records)
	assert.Equal(t, int64(3), sum.Units)
	assert.Equal(t, 3, sum.Attempts)
	assert.Equal(t, "leads.csv", sum.FileName)
	assert.True(t, sum.UsageReported)
	assert.Equal(t, 2, h.sleeps)

	require.Len(t, h.usage.events, 1)
	ev := h.usage.events[0]
	assert.Equal(t, enrich.DefaultUsageUnit, ev.Unit)
	assert.Equal(t, int64(3), ev.Quantity)
	assert.Equal(t, sum.RunID, ev.RunID)

	out, ok := h.output(t)
	require.True(t, ok)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "Completed", rec["enrichment_status"])
	assert.Equal(t, float64(2001), rec["enriched_records"])

	subs := h.mock.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, 2500, subs[0].NoOfLeads)

	assertOutcome(t, h.runner.Metrics, metrics.OutcomeSucceeded)
}

func assertOutcome(t *testing.T, m *metrics.Metrics, outcome string) {
	t.Helper()
	want := `
# HELP leads_enrichment_job_outcomes_total Finished enrichment jobs by outcome.
# TYPE leads_enrichment_job_outcomes_total counter
leads_enrichment_job_outcomes_total{outcome="` + outcome + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "leads_enrichment_job_outcomes_total"))
}

func TestRun_ZeroRecordsSkipsUsageButPersists(t *testing.T) {
	h := newHarness(t, "rec-2", mocksearchleads.Reply{Body: `{"enrichment_status":"completed","enriched_records":"abc"}`})

	sum, err := h.runner.Run(context.Background(), sampleRequest)
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Records)
	assert.Equal(t, int64(0), sum.Units)
	assert.False(t, sum.UsageReported)
	assert.Empty(t, h.usage.events)

	out, ok := h.output(t)
	require.True(t, ok)
	assert.JSONEq(t, `{"enrichment_status":"completed","enriched_records":"abc"}`, string(out))
}

func TestRun_FailedJobHasNoSideEffects(t *testing.T) {
	for _, token := range []string{"failed", "CANCELLED"} {
		t.Run(token, func(t *testing.T) {
			h := newHarness(t, "rec-3", mocksearchleads.Pending(), mocksearchleads.Status(token, 900))

			_, err := h.runner.Run(context.Background(), sampleRequest)
			var fe *enrich.EnrichmentFailedError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, token, fe.RawStatus)

			assert.Empty(t, h.usage.events)
			_, ok := h.output(t)
			assert.False(t, ok)
			assertOutcome(t, h.runner.Metrics, metrics.OutcomeFailed)
		})
	}
}

func TestRun_TimeoutHasNoSideEffects(t *testing.T) {
	h := newHarness(t, "rec-4", mocksearchleads.Pending())
	h.runner.Poll.MaxAttempts = 4

	_, err := h.runner.Run(context.Background(), sampleRequest)
	var te *enrich.PollingTimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 4, te.Attempts)
	assert.Equal(t, enrich.StatusPending, te.LastStatus)
	assert.Equal(t, 4, h.mock.Polls())
	assert.Equal(t, 3, h.sleeps)

	assert.Empty(t, h.usage.events)
	_, ok := h.output(t)
	assert.False(t, ok)
	assertOutcome(t, h.runner.Metrics, metrics.OutcomeTimedOut)
}

func TestRun_SubmissionWithoutRecordIDNeverPolls(t *testing.T) {
	h := newHarness(t, "rec-5", mocksearchleads.Status("completed", 10))
	h.mock.SetSubmitBody(`{"message":"accepted"}`)

	_, err := h.runner.Run(context.Background(), sampleRequest)
	var se *enrich.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, h.mock.Polls())
	_, ok := h.output(t)
	assert.False(t, ok)
}

func TestRun_UsageFailureSkipsPersist(t *testing.T) {
	h := newHarness(t, "rec-6", mocksearchleads.Status("completed", 10))
	h.usage.err = errors.New("billing unavailable")

	_, err := h.runner.Run(context.Background(), sampleRequest)
	assert.ErrorContains(t, err, "report usage: billing unavailable")
	_, ok := h.output(t)
	assert.False(t, ok)
}

func TestRun_SoftMissesConsumeAttempts(t *testing.T) {
	h := newHarness(t, "rec-7",
		mocksearchleads.Reply{Body: `[]`},
		mocksearchleads.Reply{StatusCode: 503, Body: "upstream down"},
		mocksearchleads.Reply{Body: `null`},
		mocksearchleads.Status("completed", 1000),
	)

	sum, err := h.runner.Run(context.Background(), sampleRequest)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Attempts)
	assert.Equal(t, int64(1), sum.Units)
}

func TestHandleJob(t *testing.T) {
	h := newHarness(t, "rec-8", mocksearchleads.Status("completed", 1))

	out, err := h.runner.HandleJob(context.Background(), keepalive.Job{
		JobID: "job-1",
		Query: json.RawMessage(`{"apolloLink":"https://a.example","noOfLeads":1,"fileName":"one"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"enrichment_status":"completed"`)

	_, err = h.runner.HandleJob(context.Background(), keepalive.Job{JobID: "job-2", Query: json.RawMessage(`{"noOfLeads":1}`)})
	assert.ErrorContains(t, err, "apolloLink is required")
	assert.Len(t, h.mock.Submissions(), 1)
}
