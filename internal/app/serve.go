package app

import (
	"context"
	"fmt"

	"github.com/shpitdev/leads-enrichment-module/internal/input"
	"github.com/shpitdev/leads-enrichment-module/pkg/foundry/keepalive"
)

// HandleJob runs one compute-module job whose query is an enrichment request document.
// The persisted record is returned as the job result.
func (r *Runner) HandleJob(ctx context.Context, job keepalive.Job) ([]byte, error) {
	req, err := input.Decode(job.Query)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.JobID, err)
	}
	if err := input.Validate(req); err != nil {
		return nil, fmt.Errorf("job %s: %w", job.JobID, err)
	}
	sum, err := r.Run(ctx, req)
	if err != nil {
		return nil, err
	}
	return sum.Payload, nil
}
