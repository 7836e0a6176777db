package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/shpitdev/leads-enrichment-module/internal/app"
	"github.com/shpitdev/leads-enrichment-module/internal/config"
	"github.com/shpitdev/leads-enrichment-module/internal/input"
	"github.com/shpitdev/leads-enrichment-module/internal/logging"
	"github.com/shpitdev/leads-enrichment-module/internal/version"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry/keepalive"
	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
	"github.com/shpitdev/leads-enrichment-module/pkg/searchleads"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	var code int
	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
	case "version", "--version":
		_, _ = fmt.Fprintln(os.Stdout, version.Current)
	case "run":
		code = runOnce(ctx, os.Args[2:])
	case "serve":
		code = runServe(ctx, os.Args[2:])
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		code = 2
	}
	stop()
	os.Exit(code)
}

// loadConfig reads env configuration and applies the flags shared by run and serve.
func loadConfig(fs *flag.FlagSet, args []string) (config.Config, []string, bool) {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return config.Config{}, nil, false
	}

	fs.SetOutput(os.Stderr)
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Delay between status checks (env: POLL_INTERVAL)")
	fs.IntVar(&cfg.PollMaxAttempts, "max-attempts", cfg.PollMaxAttempts, "Status checks before giving up (env: POLL_MAX_ATTEMPTS)")
	fs.StringVar(&cfg.OutputStore, "output-store", cfg.OutputStore, "Output backend (env: OUTPUT_STORE)")
	fs.StringVar(&cfg.OutputKey, "output-key", cfg.OutputKey, "Key the result is stored under (env: OUTPUT_KEY)")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, nil, false
	}
	cfg.OutputStore = config.NormalizeStore(cfg.OutputStore)
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", redact.Secrets(err.Error()))
		return config.Config{}, nil, false
	}
	return cfg, fs.Args(), true
}

func build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app.Runner, func(), bool) {
	slEnv, err := searchleads.LoadEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "searchleads env error: %s\n", redact.Secrets(err.Error()))
		return nil, nil, false
	}
	runner, closeFn, err := app.Build(ctx, cfg, slEnv, log)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "setup error: %s\n", redact.Secrets(err.Error()))
		return nil, nil, false
	}
	return runner, closeFn, true
}

func runOnce(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var ov input.Overrides
	fs.StringVar(&ov.SourceLink, "source-link", "", "Lead search URL; overrides apolloLink from the input file")
	fs.IntVar(&ov.LeadCount, "lead-count", 0, "Number of leads to enrich; overrides noOfLeads")
	fs.StringVar(&ov.OutputName, "output-name", "", "Output file name; overrides fileName")
	inputPath := fs.String("input", "", "Input JSON/YAML file (env: INPUT_PATH)")

	cfg, _, ok := loadConfig(fs, args)
	if !ok {
		return 2
	}
	if *inputPath != "" {
		cfg.InputPath = *inputPath
	}

	req, err := input.Load(cfg.InputPath, ov)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "input error: %s\n", redact.Secrets(err.Error()))
		return 2
	}

	log := logging.New("enricher")
	runner, closeFn, ok := build(ctx, cfg, log)
	if !ok {
		return 2
	}
	defer closeFn()

	log.Info().Str("version", version.Current).Str("store", cfg.OutputStore).Strs("sinks", cfg.UsageSinks).Msg("starting run")
	if _, err := runner.Run(ctx, req); err != nil {
		app.LogFailure(log, err)
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	cfg, _, ok := loadConfig(fs, args)
	if !ok {
		return 2
	}

	kaCfg, enabled, err := keepalive.LoadConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "compute module config error: %s\n", redact.Secrets(err.Error()))
		return 2
	}
	if !enabled {
		_, _ = fmt.Fprintln(os.Stderr, "serve requires GET_JOB_URI and POST_RESULT_URI")
		return 2
	}

	log := logging.New("enricher")
	runner, closeFn, ok := build(ctx, cfg, log)
	if !ok {
		return 2
	}
	defer closeFn()

	kaLog := logging.New("keepalive")
	kaCfg.Logger = &kaLog

	log.Info().Str("version", version.Current).Str("store", cfg.OutputStore).Msg("serving compute module jobs")
	if err := keepalive.RunLoop(ctx, kaCfg, runner.HandleJob); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Str("error", redact.Secrets(err.Error())).Msg("job loop stopped")
		return 1
	}
	return 0
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `enricher: submit a lead-enrichment job, wait for it, charge usage and persist the result

Usage:
  enricher <command> [flags]

Commands:
  run      Process one request read from INPUT_PATH (or flags) and exit
  serve    Process compute-module jobs (GET_JOB_URI + POST_RESULT_URI)
  version  Print the version

Examples:
  enricher run --source-link 'https://app.apollo.io/#/people?...' --lead-count 2500 --output-name leads.csv
  enricher run --input INPUT.json --poll-interval 5s --max-attempts 120

Environment (enrichment service):
  SEARCHLEADS_API_KEY            API key, or a file path containing it (required)
  SEARCHLEADS_API_URL            Submit endpoint
  SEARCHLEADS_STATUS_URL         Status endpoint
  SEARCHLEADS_SERVICE_DISCOVERY  YAML file with submit/status URLs (replaces the two above)

Environment (run):
  POLL_INTERVAL      Delay between status checks (default 10s)
  POLL_MAX_ATTEMPTS  Status checks before timing out (default 60)
  REQUEST_TIMEOUT    Per-request HTTP timeout (default 30s)
  RATE_LIMIT_RPS     Request rate limit, 0 disables
  INPUT_PATH         Input record (default %s)

Environment (output):
  OUTPUT_STORE   local | foundry | redis | dynamodb | mongodb | postgres (default local)
  OUTPUT_KEY     Key for the stored record (default OUTPUT)
  USAGE_SINKS    Comma list of log, prometheus, foundry-stream, rabbitmq (default log)
  USAGE_UNIT_NAME  Usage unit name (default ENRICHED_RECORDS)
  METRICS_TEXTFILE  Optional Prometheus textfile path

Environment (Foundry):
  FOUNDRY_URL         Foundry base URL (e.g. https://<stack>.palantirfoundry.com)
  BUILD2_TOKEN        Bearer token, or a file path containing it
  RESOURCE_ALIAS_MAP  File path containing alias -> {rid, branch} JSON

`, config.DefaultInputPath)
}
