package enrich

import (
	"fmt"
	"strings"
)

// SubmissionError means the service did not hand back a usable job id. It is never retried.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e == nil {
		return "enrichment submission failed"
	}
	msg := "enrichment submission failed"
	if strings.TrimSpace(e.Reason) != "" {
		msg += ": " + strings.TrimSpace(e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SubmissionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// EnrichmentFailedError means the service reported the job as failed or cancelled.
type EnrichmentFailedError struct {
	JobID     string
	Status    Status
	RawStatus string
}

func (e *EnrichmentFailedError) Error() string {
	if e == nil {
		return "enrichment failed"
	}
	return fmt.Sprintf("enrichment %s: job=%s status=%q", strings.ToLower(string(e.Status)), e.JobID, e.RawStatus)
}

// PollingTimeoutError means the attempt budget ran out while the job was still pending.
type PollingTimeoutError struct {
	JobID      string
	Attempts   int
	LastStatus Status
}

func (e *PollingTimeoutError) Error() string {
	if e == nil {
		return "timed out waiting for enrichment result"
	}
	return fmt.Sprintf("timed out waiting for enrichment result: job=%s attempts=%d lastStatus=%s", e.JobID, e.Attempts, e.LastStatus)
}

// StatusQueryError is a status call that failed in a way polling again would not fix.
type StatusQueryError struct {
	JobID   string
	Attempt int
	Err     error
}

func (e *StatusQueryError) Error() string {
	if e == nil || e.Err == nil {
		return "status query failed"
	}
	return fmt.Sprintf("status query failed: job=%s attempt=%d: %s", e.JobID, e.Attempt, e.Err.Error())
}

func (e *StatusQueryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TransientError marks an error as safe to retry on the next poll.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
