package main

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/leads-enrichment-module/internal/config"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	for _, v := range []string{"OUTPUT_STORE", "USAGE_SINKS", "POLL_INTERVAL", "POLL_MAX_ATTEMPTS", "REQUEST_TIMEOUT", "RATE_LIMIT_RPS", "OUTPUT_KEY"} {
		t.Setenv(v, "")
	}
	t.Setenv("REDIS_ADDR", "localhost:6379")
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	setBaseEnv(t)

	cfg, _, ok := loadConfig(flag.NewFlagSet("run", flag.ContinueOnError), []string{
		"--output-store", "Redis", "--poll-interval", "2s", "--max-attempts", "5",
	})
	require.True(t, ok)
	assert.Equal(t, config.StoreRedis, cfg.OutputStore)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5, cfg.PollMaxAttempts)
}

func TestLoadConfig_InvalidFlagValue(t *testing.T) {
	setBaseEnv(t)

	_, _, ok := loadConfig(flag.NewFlagSet("run", flag.ContinueOnError), []string{"--output-store", "s3"})
	assert.False(t, ok)

	_, _, ok = loadConfig(flag.NewFlagSet("run", flag.ContinueOnError), []string{"--max-attempts", "0"})
	assert.False(t, ok)
}
