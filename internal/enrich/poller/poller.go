package poller

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
)

const (
	DefaultMaxAttempts = 60
	DefaultInterval    = 10 * time.Second
)

// StatusSource answers one status query for a job. A nil error with an empty body is a valid
// answer; the poller treats it as "no data yet".
type StatusSource interface {
	Status(ctx context.Context, jobID string) ([]byte, error)
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func(ctx context.Context, jobID string) ([]byte, error)

func (f StatusFunc) Status(ctx context.Context, jobID string) ([]byte, error) {
	return f(ctx, jobID)
}

// State is the poller's position in its state machine.
type State string

const (
	StatePolling   State = "POLLING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateTimedOut  State = "TIMED_OUT"
)

// Attempt describes one finished poll. State is the state the poller moved to afterwards.
type Attempt struct {
	Number    int
	JobID     string
	Status    enrich.Status
	RawStatus string
	SoftMiss  bool
	Err       error
	State     State
	Duration  time.Duration
}

// Options configures a Poller. Zero values take the defaults (60 attempts, 10s interval).
type Options struct {
	// MaxAttempts is the poll budget. Each soft miss or non-terminal answer consumes one attempt.
	MaxAttempts int
	// Interval is the fixed wait between attempts.
	Interval time.Duration

	// Sleep waits between attempts. Tests swap in an instantaneous version.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnAttempt, when set, is called once per attempt after the transition is decided.
	OnAttempt func(Attempt)

	Logger *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// Poller drives the status loop for one job at a time.
type Poller struct {
	source StatusSource
	opts   Options
}

// New returns a Poller reading status from source.
func New(source StatusSource, opts Options) *Poller {
	return &Poller{source: source, opts: opts.withDefaults()}
}

// Poll queries the job until it completes, fails, or the attempt budget runs out.
//
// Returns the completed snapshot, *enrich.EnrichmentFailedError, *enrich.PollingTimeoutError,
// *enrich.StatusQueryError, or the context error if ctx ends first.
func (p *Poller) Poll(ctx context.Context, job enrich.JobHandle) (enrich.Result, error) {
	log := p.opts.Logger.With().Str("job", job.JobID).Logger()
	maxAttempts := p.opts.MaxAttempts
	last := enrich.StatusUnknown
	warned := make(map[string]struct{})

	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return enrich.Result{}, err
		}

		start := time.Now()
		body, err := p.source.Status(ctx, job.JobID)
		a := Attempt{Number: n, JobID: job.JobID, State: StatePolling, Duration: time.Since(start)}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return enrich.Result{}, ctxErr
			}
			a.Err = err
			if !isTransient(err) {
				a.State = StateFailed
				p.observe(a)
				return enrich.Result{}, &enrich.StatusQueryError{JobID: job.JobID, Attempt: n, Err: err}
			}
			a.SoftMiss = true
			log.Warn().
				Int("attempt", n).
				Int("maxAttempts", maxAttempts).
				Str("error", redact.Secrets(err.Error())).
				Msg("status query failed transiently; will poll again")
		} else if snap, ok := enrich.ParseStatus(body); !ok {
			a.SoftMiss = true
			log.Warn().Int("attempt", n).Int("maxAttempts", maxAttempts).Msg("no data received in status response")
		} else {
			status := snap.Status()
			last = status
			a.Status = status
			if snap.RawStatus != nil {
				a.RawStatus = *snap.RawStatus
			}
			if n == 1 {
				log.Debug().RawJSON("response", snap.Raw).Msg("raw status response")
			}
			log.Info().
				Str("status", a.RawStatus).
				Str("canonical", string(status)).
				Int("attempt", n).
				Int("maxAttempts", maxAttempts).
				Msg("status polled")

			switch {
			case status == enrich.StatusCompleted:
				a.State = StateSucceeded
				p.observe(a)
				return enrich.Result{JobID: job.JobID, Snapshot: snap, Attempts: n}, nil
			case status.Failed():
				a.State = StateFailed
				p.observe(a)
				return enrich.Result{}, &enrich.EnrichmentFailedError{JobID: job.JobID, Status: status, RawStatus: a.RawStatus}
			case status == enrich.StatusUnknown && snap.RawStatus != nil:
				token := strings.ToLower(strings.TrimSpace(a.RawStatus))
				if _, seen := warned[token]; !seen {
					warned[token] = struct{}{}
					log.Warn().Str("status", a.RawStatus).Msg("unrecognized status token; treating as pending")
				}
			}
		}

		if n == maxAttempts {
			a.State = StateTimedOut
			p.observe(a)
			break
		}
		p.observe(a)

		if err := p.opts.Sleep(ctx, p.opts.Interval); err != nil {
			return enrich.Result{}, err
		}
	}

	return enrich.Result{}, &enrich.PollingTimeoutError{JobID: job.JobID, Attempts: maxAttempts, LastStatus: last}
}

func (p *Poller) observe(a Attempt) {
	if p.opts.OnAttempt != nil {
		p.opts.OnAttempt(a)
	}
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *enrich.TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}
