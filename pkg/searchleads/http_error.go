package searchleads

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
)

// errorEnvelope is the JSON error body the enrichment API returns on most failures.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// HTTPError is a sanitized summary of a non-2xx enrichment API response.
//
// Raw bodies are never kept: they can echo lead data or credentials back.
type HTTPError struct {
	Op         string
	StatusCode int
	Status     string
	Code       string
	Message    string

	// Snippet is a redacted, truncated hint for bodies that are not the JSON envelope.
	Snippet string
}

func (e *HTTPError) Error() string {
	if e == nil {
		return "searchleads http error"
	}
	parts := []string{
		fmt.Sprintf("searchleads api error: op=%s status=%s", strings.TrimSpace(e.Op), strings.TrimSpace(e.Status)),
	}
	if strings.TrimSpace(e.Code) != "" {
		parts = append(parts, "code="+strings.TrimSpace(e.Code))
	}
	if strings.TrimSpace(e.Message) != "" {
		parts = append(parts, fmt.Sprintf("message=%q", strings.TrimSpace(e.Message)))
	}
	if strings.TrimSpace(e.Snippet) != "" {
		parts = append(parts, "body="+strings.TrimSpace(e.Snippet))
	}
	return strings.Join(parts, " ")
}

// Retryable reports whether the same request may succeed later.
func (e *HTTPError) Retryable() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode/100 == 5
}

func newHTTPError(op string, resp *http.Response, body []byte) *HTTPError {
	h := &HTTPError{Op: op}
	if resp != nil {
		h.StatusCode = resp.StatusCode
		h.Status = resp.Status
	}

	var env errorEnvelope
	if len(body) > 0 && json.Unmarshal(body, &env) == nil {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = strings.TrimSpace(env.Error)
		}
		h.Message = truncate(redact.Secrets(msg), 200)
		h.Code = strings.TrimSpace(env.Code)
		if h.Message != "" || h.Code != "" {
			return h
		}
	}

	h.Snippet = redact.Snippet(body, 256)
	return h
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
