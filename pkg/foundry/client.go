package foundry

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"
)

// Client covers the dataset transaction and stream-proxy endpoints used to publish enrichment output
// and usage records.
type Client struct {
	apiBaseURL    *url.URL
	streamBaseURL *url.URL
	token         string
	http          *http.Client
}

// NewClient constructs a client for Foundry service base URLs.
//
// apiGatewayURL should look like "https://<stack>.palantirfoundry.com/api".
// streamProxyURL should look like "https://<stack>.palantirfoundry.com/stream-proxy/api".
func NewClient(services Services, token, defaultCAPath string) (*Client, error) {
	apiBase, err := parseBaseURL(services.APIGateway, "api gateway")
	if err != nil {
		return nil, err
	}
	streamBase, err := parseBaseURL(services.StreamProxy, "stream-proxy")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("foundry token is required")
	}

	hc, err := newHTTPClient(defaultCAPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		apiBaseURL:    apiBase,
		streamBaseURL: streamBase,
		token:         strings.TrimSpace(token),
		http:          hc,
	}, nil
}

func parseBaseURL(raw string, name string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s base URL is required", name)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s base URL: %w", name, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%s base URL must include a host (got %q)", name, raw)
	}
	// ResolveReference treats the base as a directory only with a trailing slash.
	u.Path = strings.TrimRight(u.Path, "/") + "/"
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func newHTTPClient(defaultCAPath string) (*http.Client, error) {
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
	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// request is one call against either base URL.
type request struct {
	op          string
	method      string
	u           *url.URL
	body        []byte
	contentType string
}

func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

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
		return nil, newHTTPError(r.op, resp, rb)
	}
	return rb, nil
}

// PublishStreamJSONRecord publishes one JSON object to a stream branch via stream-proxy.
func (c *Client) PublishStreamJSONRecord(ctx context.Context, streamRID, branch string, record map[string]any) error {
	streamRID = strings.TrimSpace(streamRID)
	if streamRID == "" {
		return fmt.Errorf("stream rid is required")
	}
	b, err := json.Marshal(record)
	if err != nil {
		return err
	}

	u := c.resolveStream(fmt.Sprintf(
		"streams/%s/branches/%s/jsonRecord",
		url.PathEscape(streamRID),
		url.PathEscape(defaultBranch(branch)),
	))
	_, err = c.do(ctx, request{
		op:          "publishStreamJSONRecord",
		method:      http.MethodPost,
		u:           u,
		body:        b,
		contentType: "application/json",
	})
	return err
}

type createTxnRequest struct {
	TransactionType string `json:"transactionType"`
}

type createTxnResponse struct {
	RID string `json:"rid"`

	// Older mocks return transactionId.
	TransactionID string `json:"transactionId"`
}

// CreateTransaction opens a dataset transaction of the given type (SNAPSHOT, APPEND, UPDATE) and
// returns its id.
func (c *Client) CreateTransaction(ctx context.Context, datasetRID, branch, txnType string) (string, error) {
	if strings.TrimSpace(txnType) == "" {
		txnType = "SNAPSHOT"
	}
	b, err := json.Marshal(createTxnRequest{TransactionType: txnType})
	if err != nil {
		return "", err
	}

	u := c.resolveAPI(fmt.Sprintf("v2/datasets/%s/transactions", url.PathEscape(datasetRID)))
	q := url.Values{}
	q.Set("branchName", defaultBranch(branch))
	u.RawQuery = q.Encode()

	rb, err := c.do(ctx, request{
		op:          "createTransaction",
		method:      http.MethodPost,
		u:           u,
		body:        b,
		contentType: "application/json",
	})
	if err != nil {
		return "", err
	}

	var out createTxnResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return "", fmt.Errorf("parse create transaction response: %w", err)
	}
	txnID := strings.TrimSpace(out.TransactionID)
	if txnID == "" {
		txnID = strings.TrimSpace(out.RID)
	}
	if txnID == "" {
		return "", fmt.Errorf("create transaction response missing rid")
	}
	return txnID, nil
}

// Transaction is one entry of a dataset transaction listing.
type Transaction struct {
	TransactionType string  `json:"transactionType"`
	CreatedTime     string  `json:"createdTime"`
	RID             string  `json:"rid"`
	ClosedTime      *string `json:"closedTime,omitempty"`
	Status          string  `json:"status"`
}

type listTxnsResponse struct {
	Data          []Transaction `json:"data"`
	NextPageToken string        `json:"nextPageToken"`
}

// ListTransactions lists transactions for a dataset, newest first.
//
// Note: This endpoint is documented as preview and requires `preview=true`.
func (c *Client) ListTransactions(ctx context.Context, datasetRID string, pageSize int, pageToken string) ([]Transaction, string, error) {
	u := c.resolveAPI(fmt.Sprintf("v2/datasets/%s/transactions", url.PathEscape(datasetRID)))
	q := url.Values{}
	q.Set("preview", "true")
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if strings.TrimSpace(pageToken) != "" {
		q.Set("pageToken", strings.TrimSpace(pageToken))
	}
	u.RawQuery = q.Encode()

	rb, err := c.do(ctx, request{op: "listTransactions", method: http.MethodGet, u: u})
	if err != nil {
		return nil, "", err
	}

	var out listTxnsResponse
	if err := json.Unmarshal(rb, &out); err != nil {
		return nil, "", fmt.Errorf("parse list transactions response: %w", err)
	}
	return out.Data, strings.TrimSpace(out.NextPageToken), nil
}

// FindLatestOpenTransaction returns the RID of the latest OPEN transaction for the dataset.
// Compute modules running inside a build get their output transaction opened for them.
func (c *Client) FindLatestOpenTransaction(ctx context.Context, datasetRID string) (string, bool, error) {
	pageToken := ""
	for i := 0; i < 5; i++ {
		txns, next, err := c.ListTransactions(ctx, datasetRID, 100, pageToken)
		if err != nil {
			return "", false, err
		}
		for _, t := range txns {
			if strings.EqualFold(strings.TrimSpace(t.Status), "OPEN") && strings.TrimSpace(t.RID) != "" {
				return strings.TrimSpace(t.RID), true, nil
			}
		}
		if next == "" {
			break
		}
		pageToken = next
	}
	return "", false, nil
}

// UploadFile uploads file bytes to a transaction path.
func (c *Client) UploadFile(ctx context.Context, datasetRID, txnID, filePath string, contentType string, b []byte) error {
	u := c.resolveAPI(fmt.Sprintf(
		"v2/datasets/%s/files/%s/upload",
		url.PathEscape(datasetRID),
		escapeURLPath(filePath),
	))
	q := url.Values{}
	if strings.TrimSpace(txnID) != "" {
		q.Set("transactionRid", strings.TrimSpace(txnID))
	}
	u.RawQuery = q.Encode()

	if b == nil {
		b = []byte{}
	}
	_, err := c.do(ctx, request{
		op:          "uploadFile",
		method:      http.MethodPost,
		u:           u,
		body:        b,
		contentType: contentType,
	})
	return err
}

// CommitTransaction commits a transaction.
func (c *Client) CommitTransaction(ctx context.Context, datasetRID, txnID string) error {
	u := c.resolveAPI(fmt.Sprintf(
		"v2/datasets/%s/transactions/%s/commit",
		url.PathEscape(datasetRID),
		url.PathEscape(txnID),
	))
	_, err := c.do(ctx, request{op: "commitTransaction", method: http.MethodPost, u: u})
	return err
}

func (c *Client) resolveAPI(relPath string) *url.URL {
	return c.apiBaseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(relPath, "/")})
}

func (c *Client) resolveStream(relPath string) *url.URL {
	return c.streamBaseURL.ResolveReference(&url.URL{Path: strings.TrimPrefix(relPath, "/")})
}

func defaultBranch(branch string) string {
	branch = strings.TrimSpace(branch)
	if branch == "" {
		return "master"
	}
	return branch
}

func escapeURLPath(p string) string {
	// Keep "/" separators, escape each segment.
	cleaned := path.Clean("/" + p)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "." {
		return ""
	}
	parts := strings.Split(cleaned, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
