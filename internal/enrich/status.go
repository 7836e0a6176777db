package enrich

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Status is the canonical job status derived from the service's raw status token.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// Terminal reports whether the status ends polling.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Failed reports whether the service explicitly rejected the job.
func (s Status) Failed() bool {
	return s == StatusFailed || s == StatusCancelled
}

// Tokens the service reports while a job is still moving. They behave exactly like UNKNOWN for
// polling; they only keep logs and metrics honest.
var pendingTokens = map[string]struct{}{
	"pending":     {},
	"queued":      {},
	"processing":  {},
	"in_progress": {},
	"running":     {},
}

// Canonicalize maps a raw status token to a Status, ignoring letter case. Tokens are otherwise
// matched exactly: surrounding whitespace makes a token unrecognized.
func Canonicalize(raw *string) Status {
	if raw == nil {
		return StatusUnknown
	}
	token := strings.ToLower(*raw)
	switch token {
	case "completed":
		return StatusCompleted
	case "failed":
		return StatusFailed
	case "cancelled":
		return StatusCancelled
	}
	if _, ok := pendingTokens[token]; ok {
		return StatusPending
	}
	return StatusUnknown
}

type statusDoc struct {
	EnrichmentStatus json.RawMessage `json:"enrichment_status"`
	EnrichedRecords  json.RawMessage `json:"enriched_records"`
	CreditsInvolved  json.RawMessage `json:"credits_involved"`
	FileName         json.RawMessage `json:"file_name"`
	SpreadsheetURL   json.RawMessage `json:"spreadsheet_url"`
}

// ParseStatus normalizes a status response body into a Snapshot.
//
// The service answers either with a single object or with a sequence whose first element is
// the object. ok is false when the body carries no usable data: empty, null, an empty
// sequence, a null first element, or something that is not a JSON object at all.
func ParseStatus(body []byte) (Snapshot, bool) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Snapshot{}, false
	}

	var top any
	if err := json.Unmarshal(body, &top); err != nil {
		return Snapshot{}, false
	}

	obj := body
	if arr, ok := top.([]any); ok {
		if len(arr) == 0 {
			return Snapshot{}, false
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(body, &elems); err != nil {
			return Snapshot{}, false
		}
		obj = bytes.TrimSpace(elems[0])
		top = arr[0]
	}
	if _, ok := top.(map[string]any); !ok {
		return Snapshot{}, false
	}

	var doc statusDoc
	if err := json.Unmarshal(obj, &doc); err != nil {
		return Snapshot{}, false
	}

	raw := make(json.RawMessage, len(obj))
	copy(raw, obj)
	return Snapshot{
		RawStatus:       jsonString(doc.EnrichmentStatus),
		EnrichedRecords: nonNull(doc.EnrichedRecords),
		CreditsUsed:     jsonNumber(doc.CreditsInvolved),
		FileName:        jsonString(doc.FileName),
		SpreadsheetURL:  jsonString(doc.SpreadsheetURL),
		Raw:             raw,
	}, true
}

func nonNull(v json.RawMessage) json.RawMessage {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

// jsonString accepts JSON strings and scalars; a numeric token is kept in its literal form.
func jsonString(v json.RawMessage) *string {
	v = nonNull(v)
	if v == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return &s
	}
	var f json.Number
	if err := json.Unmarshal(v, &f); err == nil {
		s = f.String()
		return &s
	}
	return nil
}

func jsonNumber(v json.RawMessage) *float64 {
	v = nonNull(v)
	if v == nil {
		return nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}
