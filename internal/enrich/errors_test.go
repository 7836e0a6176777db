package enrich_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
)

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	sub := &enrich.SubmissionError{Reason: "response missing record_id"}
	assert.Equal(t, "enrichment submission failed: response missing record_id", sub.Error())

	cause := errors.New("status=502")
	wrapped := &enrich.SubmissionError{Reason: "submit request", Err: cause}
	assert.ErrorIs(t, wrapped, cause)

	failed := &enrich.EnrichmentFailedError{JobID: "42", Status: enrich.StatusCancelled, RawStatus: "Cancelled"}
	assert.Equal(t, `enrichment cancelled: job=42 status="Cancelled"`, failed.Error())

	timeout := &enrich.PollingTimeoutError{JobID: "42", Attempts: 60, LastStatus: enrich.StatusPending}
	assert.Contains(t, timeout.Error(), "attempts=60")

	var asFailed *enrich.EnrichmentFailedError
	assert.False(t, errors.As(timeout, &asFailed))
}
