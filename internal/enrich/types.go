package enrich

import (
	"encoding/json"
)

// Request is one enrichment job as configured for a run.
type Request struct {
	SourceLink string `json:"apolloLink" yaml:"apolloLink"`
	LeadCount  int    `json:"noOfLeads" yaml:"noOfLeads"`
	OutputName string `json:"fileName" yaml:"fileName"`
}

// JobHandle identifies a submitted job. Every status query uses JobID.
type JobHandle struct {
	JobID string
}

// Snapshot is the normalized view of one status response.
//
// Pointer fields are nil when the service omitted them. Raw keeps the status object exactly
// as received; it is what gets persisted once the job completes.
type Snapshot struct {
	RawStatus       *string
	EnrichedRecords json.RawMessage
	CreditsUsed     *float64
	FileName        *string
	SpreadsheetURL  *string

	Raw json.RawMessage
}

// Status returns the canonical status of the snapshot.
func (s Snapshot) Status() Status {
	return Canonicalize(s.RawStatus)
}

// RecordCount returns the enriched-record count coerced to a non-negative integer.
func (s Snapshot) RecordCount() int64 {
	return ParseRecordCount(s.EnrichedRecords)
}

// Result is the snapshot captured when the job reached COMPLETED.
type Result struct {
	JobID    string
	Snapshot Snapshot
	Attempts int
}

// Payload returns the bytes to persist for the completed job.
func (r Result) Payload() []byte {
	if len(r.Snapshot.Raw) == 0 {
		return []byte("{}")
	}
	return r.Snapshot.Raw
}
