package usage

import (
	"context"

	"github.com/rs/zerolog"
)

// LogReporter writes each charge as a structured log line.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter writes each charge to logger at info level.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger}
}

func (l *LogReporter) AddUsage(_ context.Context, ev Event) error {
	l.logger.Info().
		Str("unit", ev.Unit).
		Int64("quantity", ev.Quantity).
		Int64("records", ev.Records).
		Str("job_id", ev.JobID).
		Str("run", ev.RunID).
		Msg("usage tracked")
	return nil
}

func (l *LogReporter) Close() error { return nil }
