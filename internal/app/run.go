package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
	"github.com/shpitdev/leads-enrichment-module/internal/enrich/poller"
	"github.com/shpitdev/leads-enrichment-module/internal/metrics"
	"github.com/shpitdev/leads-enrichment-module/internal/store"
	"github.com/shpitdev/leads-enrichment-module/internal/usage"
	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
)

// Submitter starts an enrichment job.
type Submitter interface {
	Submit(ctx context.Context, req enrich.Request) (enrich.JobHandle, error)
}

// Runner executes one enrichment job end to end: submit, poll, charge usage, persist.
type Runner struct {
	Submitter Submitter
	Status    poller.StatusSource
	Store     store.Store
	Usage     usage.Reporter
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  zerolog.Logger

	Poll      poller.Options
	OutputKey string
	UsageUnit string
}

// Summary describes a completed run.
type Summary struct {
	RunID          string
	JobID          string
	RawStatus      string
	Records        int64
	Units          int64
	CreditsUsed    *float64
	FileName       string
	SpreadsheetURL string
	Attempts       int
	UsageReported  bool
	Payload        []byte
}

// Run processes one request. Usage is reported and the record persisted only after the job
// completes; any earlier failure returns without either side effect.
func (r *Runner) Run(ctx context.Context, req enrich.Request) (Summary, error) {
	runID := uuid.NewString()
	log := r.Logger.With().Str("run", runID).Logger()
	runStart := time.Now()

	outputKey := r.OutputKey
	if outputKey == "" {
		outputKey = "OUTPUT"
	}
	unit := r.UsageUnit
	if unit == "" {
		unit = enrich.DefaultUsageUnit
	}

	log.Info().
		Int("noOfLeads", req.LeadCount).
		Str("fileName", req.OutputName).
		Msg("submitting enrichment request")

	job, err := r.Submitter.Submit(ctx, req)
	if err != nil {
		r.observeJob(metrics.OutcomeSubmitError, runStart)
		return Summary{}, err
	}
	log = log.With().Str("job", job.JobID).Logger()
	log.Info().Msg("enrichment job submitted")

	opts := r.Poll
	opts.Logger = &log
	if r.Metrics != nil {
		next := opts.OnAttempt
		opts.OnAttempt = func(a poller.Attempt) {
			r.Metrics.ObserveAttempt(a)
			if next != nil {
				next(a)
			}
		}
	}

	result, err := poller.New(r.Status, opts).Poll(ctx, job)
	if err != nil {
		r.observeJob(outcomeOf(err), runStart)
		return Summary{}, err
	}
	log.Info().Int("attempts", result.Attempts).Msg("enrichment completed successfully")
	log.Debug().RawJSON("result", result.Payload()).Msg("complete result data")

	snap := result.Snapshot
	records := snap.RecordCount()
	units := enrich.UsageUnits(records)
	sum := Summary{
		RunID:       runID,
		JobID:       job.JobID,
		Records:     records,
		Units:       units,
		CreditsUsed: snap.CreditsUsed,
		Attempts:    result.Attempts,
		Payload:     result.Payload(),
	}
	if snap.RawStatus != nil {
		sum.RawStatus = *snap.RawStatus
	}
	if snap.FileName != nil {
		sum.FileName = *snap.FileName
	}
	if snap.SpreadsheetURL != nil {
		sum.SpreadsheetURL = *snap.SpreadsheetURL
	}
	if r.Metrics != nil {
		r.Metrics.SetRecords(records)
	}

	ev := log.Info().
		Str("status", sum.RawStatus).
		Str("file", sum.FileName).
		Int64("records", records).
		Str("spreadsheet", sum.SpreadsheetURL).
		Int64("units", units).
		Int("recordsPerUnit", enrich.RecordsPerUnit)
	if sum.CreditsUsed != nil {
		ev = ev.Float64("credits", *sum.CreditsUsed)
	}
	ev.Msg("final enrichment summary")

	if units > 0 {
		if err := r.Usage.AddUsage(ctx, usage.Event{
			Unit:     unit,
			Quantity: units,
			JobID:    job.JobID,
			Records:  records,
			RunID:    runID,
			At:       time.Now().UTC(),
		}); err != nil {
			r.observeJob(metrics.OutcomeError, runStart)
			return Summary{}, fmt.Errorf("report usage: %w", err)
		}
		sum.UsageReported = true
	} else {
		log.Warn().Msg("no records enriched; no usage charged")
	}

	if err := r.Store.SetValue(ctx, outputKey, sum.Payload, store.ContentTypeJSON); err != nil {
		r.observeJob(metrics.OutcomeError, runStart)
		return Summary{}, fmt.Errorf("persist %s: %w", outputKey, err)
	}

	r.observeJob(metrics.OutcomeSucceeded, runStart)
	log.Info().
		Str("key", outputKey).
		Dur("duration", time.Since(runStart).Round(time.Millisecond)).
		Msg("run complete")
	return sum, nil
}

func (r *Runner) observeJob(outcome string, start time.Time) {
	if r.Metrics != nil {
		r.Metrics.ObserveJob(outcome, time.Since(start))
	}
}

func outcomeOf(err error) string {
	var failed *enrich.EnrichmentFailedError
	var timeout *enrich.PollingTimeoutError
	switch {
	case errors.As(err, &failed):
		return metrics.OutcomeFailed
	case errors.As(err, &timeout):
		return metrics.OutcomeTimedOut
	default:
		return metrics.OutcomeError
	}
}

// LogFailure writes a run error with credentials scrubbed.
func LogFailure(log zerolog.Logger, err error) {
	ev := log.Error().Str("error", redact.Secrets(err.Error()))

	var failed *enrich.EnrichmentFailedError
	var timeout *enrich.PollingTimeoutError
	var submit *enrich.SubmissionError
	switch {
	case errors.As(err, &failed):
		ev = ev.Str("job", failed.JobID).Str("status", failed.RawStatus)
	case errors.As(err, &timeout):
		ev = ev.Str("job", timeout.JobID).Int("attempts", timeout.Attempts).Str("lastStatus", string(timeout.LastStatus))
	case errors.As(err, &submit):
		ev = ev.Str("stage", "submit")
	}
	ev.Msg("run failed")
}
