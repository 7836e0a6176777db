package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
	"github.com/shpitdev/leads-enrichment-module/internal/enrich/poller"
	"github.com/shpitdev/leads-enrichment-module/internal/metrics"
	"github.com/shpitdev/leads-enrichment-module/internal/store"
	"github.com/shpitdev/leads-enrichment-module/internal/usage"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
	"github.com/shpitdev/leads-enrichment-module/pkg/searchleads"
)

// Build wires a Runner from configuration. The returned close func releases backend connections.
func Build(ctx context.Context, cfg config.Config, slEnv searchleads.Env, log zerolog.Logger) (*Runner, func(), error) {
	client, err := searchleads.NewClient(searchleads.Config{
		Services:       slEnv.Services,
		APIKey:         slEnv.APIKey,
		RequestTimeout: cfg.RequestTimeout,
		RateLimitRPS:   cfg.RateLimitRPS,
		DefaultCAPath:  slEnv.DefaultCAPath,
	})
	if err != nil {
		return nil, nil, err
	}

	var fc *foundry.Client
	var fenv foundry.Env
	if cfg.NeedsFoundry() {
		fenv, err = foundry.LoadEnv()
		if err != nil {
			return nil, nil, fmt.Errorf("foundry env: %w", err)
		}
		fc, err = foundry.NewClient(fenv.Services, fenv.Token, fenv.DefaultCAPath)
		if err != nil {
			return nil, nil, err
		}
	}

	m := metrics.New()

	st, err := store.New(ctx, cfg, store.Deps{Foundry: fc, FoundryEnv: fenv})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s store: %w", cfg.OutputStore, err)
	}
	rep, err := usage.New(cfg, usage.Deps{
		Logger:     log,
		Registerer: m.Registry,
		Foundry:    fc,
		FoundryEnv: fenv,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("usage sinks: %w", err)
	}

	closeFn := func() {
		if err := rep.Close(); err != nil {
			log.Warn().Str("error", redact.Secrets(err.Error())).Msg("close usage sinks")
		}
		if err := st.Close(); err != nil {
			log.Warn().Str("error", redact.Secrets(err.Error())).Msg("close store")
		}
		if cfg.MetricsTextfile != "" {
			if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
				log.Warn().Str("error", redact.Secrets(err.Error())).Str("path", cfg.MetricsTextfile).Msg("write metrics textfile")
			}
		}
	}

	return &Runner{
		Submitter: client,
		Status:    client,
		Store:     st,
		Usage:     rep,
		Metrics:   m,
		Logger:    log,
		Poll: poller.Options{
			MaxAttempts: cfg.PollMaxAttempts,
			Interval:    cfg.PollInterval,
		},
		OutputKey: cfg.OutputKey,
		UsageUnit: cfg.UsageUnit,
	}, closeFn, nil
}
