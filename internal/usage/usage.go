// Package usage reports billable usage for a completed enrichment job.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
)

// Event is one usage charge.
type Event struct {
	Unit     string    `json:"unit"`
	Quantity int64     `json:"quantity"`
	JobID    string    `json:"jobId"`
	Records  int64     `json:"records"`
	RunID    string    `json:"runId"`
	At       time.Time `json:"at"`
}

// Reporter records usage with one billing backend.
type Reporter interface {
	AddUsage(ctx context.Context, ev Event) error
	Close() error
}

// Deps are shared clients some sinks need.
type Deps struct {
	Logger     zerolog.Logger
	Registerer prometheus.Registerer
	Foundry    *foundry.Client
	FoundryEnv foundry.Env
}

// New builds a reporter fanning out to every sink in cfg.UsageSinks. Remote sinks are called
// before in-process ones, so a failed remote charge leaves the log and counters untouched.
func New(cfg config.Config, deps Deps) (Reporter, error) {
	var reporters []Reporter
	closeAll := func() { _ = Multi(reporters).Close() }

	for _, sink := range orderSinks(cfg.UsageSinks) {
		switch sink {
		case config.SinkLog:
			reporters = append(reporters, NewLogReporter(deps.Logger))
		case config.SinkPrometheus:
			r, err := NewPrometheusReporter(deps.Registerer)
			if err != nil {
				closeAll()
				return nil, err
			}
			reporters = append(reporters, r)
		case config.SinkFoundryStream:
			if deps.Foundry == nil {
				closeAll()
				return nil, fmt.Errorf("foundry-stream usage sink requires a foundry client")
			}
			ref, err := deps.FoundryEnv.Resolve(cfg.Foundry.UsageAlias)
			if err != nil {
				closeAll()
				return nil, err
			}
			reporters = append(reporters, NewFoundryStreamReporter(deps.Foundry, ref))
		case config.SinkRabbitMQ:
			r, err := DialRabbitMQ(cfg.RabbitMQ)
			if err != nil {
				closeAll()
				return nil, err
			}
			reporters = append(reporters, r)
		default:
			closeAll()
			return nil, fmt.Errorf("unsupported usage sink: %s", sink)
		}
	}
	if len(reporters) == 1 {
		return reporters[0], nil
	}
	return Multi(reporters), nil
}

// orderSinks moves remote sinks ahead of in-process ones, keeping the configured order within each group.
func orderSinks(sinks []string) []string {
	out := make([]string, 0, len(sinks))
	for _, s := range sinks {
		if config.IsRemoteSink(s) {
			out = append(out, s)
		}
	}
	for _, s := range sinks {
		if !config.IsRemoteSink(s) {
			out = append(out, s)
		}
	}
	return out
}

// Multi reports to each reporter in order and stops at the first failure; later reporters are
// not charged.
type Multi []Reporter

func (m Multi) AddUsage(ctx context.Context, ev Event) error {
	for _, r := range m {
		if err := r.AddUsage(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
