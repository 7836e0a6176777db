package usage

import (
	"context"
	"time"

	"github.com/shpitdev/leads-enrichment-module/pkg/foundry"
)

// FoundryStreamReporter publishes each charge as a JSON record on a Foundry stream.
type FoundryStreamReporter struct {
	client *foundry.Client
	ref    foundry.DatasetRef
}

// NewFoundryStreamReporter publishes to the stream ref names.
func NewFoundryStreamReporter(client *foundry.Client, ref foundry.DatasetRef) *FoundryStreamReporter {
	return &FoundryStreamReporter{client: client, ref: ref}
}

func (f *FoundryStreamReporter) AddUsage(ctx context.Context, ev Event) error {
	rec := map[string]any{
		"unit":     ev.Unit,
		"quantity": ev.Quantity,
		"records":  ev.Records,
		"jobId":    ev.JobID,
		"runId":    ev.RunID,
		"at":       ev.At.UTC().Format(time.RFC3339),
	}
	return foundry.RetryTransient(ctx, 8, 200*time.Millisecond, func() error {
		return f.client.PublishStreamJSONRecord(ctx, f.ref.RID, f.ref.Branch, rec)
	})
}

func (f *FoundryStreamReporter) Close() error { return nil }
