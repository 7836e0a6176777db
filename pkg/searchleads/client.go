package searchleads

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/shpitdev/leads-enrichment-module/internal/enrich"
)

// Config configures a Client.
type Config struct {
	Services Services
	APIKey   string

	// RequestTimeout bounds each HTTP call. Defaults to 30s.
	RequestTimeout time.Duration
	// RateLimitRPS caps outbound requests per second. Set to <=0 to disable.
	RateLimitRPS float64
	// DefaultCAPath optionally points at a PEM bundle used as the TLS trust store.
	DefaultCAPath string
}

// Client talks to the enrichment API: one submit endpoint and one status endpoint.
type Client struct {
	submitURL *url.URL
	statusURL *url.URL
	apiKey    string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient validates cfg and builds a client with its timeout, rate limit and trust store applied.
func NewClient(cfg Config) (*Client, error) {
	submitURL, err := parseEndpoint(cfg.Services.SubmitURL, "submit")
	if err != nil {
		return nil, err
	}
	statusURL, err := parseEndpoint(cfg.Services.StatusURL, "status")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("SEARCHLEADS_API_KEY is required")
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	hc, err := newHTTPClient(cfg.DefaultCAPath, timeout)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &Client{
		submitURL: submitURL,
		statusURL: statusURL,
		apiKey:    strings.TrimSpace(cfg.APIKey),
		http:      hc,
		limiter:   limiter,
	}, nil
}

func parseEndpoint(raw, name string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s URL is required", name)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s URL: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s URL must include a host (got %q)", name, raw)
	}
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(defaultCAPath string, timeout time.Duration) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(defaultCAPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(defaultCAPath))
		if err != nil {
			return nil, fmt.Errorf("read DEFAULT_CA_PATH file: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse DEFAULT_CA_PATH PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{Transport: tr, Timeout: timeout}, nil
}

type submitRequest struct {
	ApolloLink string `json:"apolloLink"`
	NoOfLeads  int    `json:"noOfLeads"`
	FileName   string `json:"fileName"`
}

type submitResponse struct {
	RecordID json.RawMessage `json:"record_id"`
}

// Submit starts one enrichment job and returns its handle.
//
// Every failure is a *enrich.SubmissionError: without a job id there is nothing to poll, and
// resubmitting would start a second paid job.
func (c *Client) Submit(ctx context.Context, req enrich.Request) (enrich.JobHandle, error) {
	body, err := json.Marshal(submitRequest{
		ApolloLink: req.SourceLink,
		NoOfLeads:  req.LeadCount,
		FileName:   req.OutputName,
	})
	if err != nil {
		return enrich.JobHandle{}, &enrich.SubmissionError{Reason: "encode request", Err: err}
	}

	rb, err := c.post(ctx, "submit", c.submitURL, body)
	if err != nil {
		return enrich.JobHandle{}, &enrich.SubmissionError{Reason: "submit request", Err: err}
	}

	var out submitResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return enrich.JobHandle{}, &enrich.SubmissionError{Reason: "parse submit response", Err: err}
	}
	id := recordID(out.RecordID)
	if id == "" {
		return enrich.JobHandle{}, &enrich.SubmissionError{Reason: "response missing record_id"}
	}
	return enrich.JobHandle{JobID: id}, nil
}

type statusRequest struct {
	RecordID string `json:"record_id"`
}

// Status fetches the raw status body for a job. Rate-limited and 5xx responses come back
// wrapped in *enrich.TransientError.
func (c *Client) Status(ctx context.Context, jobID string) ([]byte, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	body, err := json.Marshal(statusRequest{RecordID: jobID})
	if err != nil {
		return nil, err
	}

	rb, err := c.post(ctx, "status", c.statusURL, body)
	if err != nil {
		var he *HTTPError
		if errors.As(err, &he) && he.Retryable() {
			return nil, &enrich.TransientError{Err: he}
		}
		return nil, err
	}
	return rb, nil
}

func (c *Client) post(ctx context.Context, op string, u *url.URL, body []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, newHTTPError(op, resp, rb)
	}
	return rb, nil
}

// recordID accepts both string and numeric ids.
func recordID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
