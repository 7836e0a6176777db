package keepalive

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
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/shpitdev/leads-enrichment-module/pkg/redact"
	"github.com/shpitdev/leads-enrichment-module/pkg/svcenv"
)

type computeModuleJobEnvelope struct {
	ComputeModuleJobV1 Job `json:"computeModuleJobV1"`
}

// Job is one compute-module job handed out by the Foundry runtime.
type Job struct {
	JobID     string          `json:"jobId"`
	QueryType string          `json:"queryType"`
	Query     json.RawMessage `json:"query"`
}

// HandlerFunc processes one job and returns the bytes posted back as its result.
type HandlerFunc func(ctx context.Context, job Job) ([]byte, error)

// Config controls compute-module keepalive polling.
type Config struct {
	GetJobURI       string
	PostResultURI   string
	ModuleAuthToken string
	// DefaultCAPath is required inside Foundry. Local runs against the mock may leave it empty.
	DefaultCAPath string

	// IdleWait is the pause after an empty GET job. Defaults to 500ms.
	IdleWait time.Duration
	Logger   *zerolog.Logger
}

// LoadConfigFromEnv returns ok=false when the keepalive endpoints are not configured.
func LoadConfigFromEnv() (Config, bool, error) {
	getJob, err := normalizeLocalhostURI(os.Getenv("GET_JOB_URI"))
	if err != nil {
		return Config{}, false, fmt.Errorf("invalid GET_JOB_URI: %w", err)
	}
	postRes, err := normalizeLocalhostURI(os.Getenv("POST_RESULT_URI"))
	if err != nil {
		return Config{}, false, fmt.Errorf("invalid POST_RESULT_URI: %w", err)
	}
	if getJob == "" || postRes == "" {
		return Config{}, false, nil
	}

	modTok, err := svcenv.ValueOrFile(os.Getenv("MODULE_AUTH_TOKEN"), "MODULE_AUTH_TOKEN")
	if err != nil {
		return Config{}, false, err
	}
	if modTok == "" {
		return Config{}, false, fmt.Errorf("MODULE_AUTH_TOKEN is required when GET_JOB_URI/POST_RESULT_URI are set")
	}

	return Config{
		GetJobURI:       getJob,
		PostResultURI:   postRes,
		ModuleAuthToken: modTok,
		DefaultCAPath:   strings.TrimSpace(os.Getenv("DEFAULT_CA_PATH")),
	}, true, nil
}

func normalizeLocalhostURI(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	// The runtime sidecar binds IPv4 loopback only; "localhost" may resolve to ::1 first.
	host := strings.TrimSpace(u.Hostname())
	if host == "localhost" || host == "::1" {
		if port := strings.TrimSpace(u.Port()); port != "" {
			u.Host = "127.0.0.1:" + port
		} else {
			u.Host = "127.0.0.1"
		}
	}
	return u.String(), nil
}

// RunLoop polls the runtime for jobs, one at a time, until ctx is cancelled.
// Handler errors are posted back as the (redacted) job result.
func RunLoop(ctx context.Context, cfg Config, handle HandlerFunc) error {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	idle := cfg.IdleWait
	if idle <= 0 {
		idle = 500 * time.Millisecond
	}

	hc, err := newHTTPClient(cfg.DefaultCAPath)
	if err != nil {
		return err
	}

	logger.Info().Str("get_job_uri", cfg.GetJobURI).Msg("compute module client enabled")

	backoff := idle
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, ok, err := getNextJob(ctx, hc, cfg.GetJobURI, cfg.ModuleAuthToken)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn().Str("error", redact.Secrets(err.Error())).Msg("get job failed")
			if err := sleepCtx(ctx, backoff); err != nil {
				return err
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = idle
		if !ok {
			if err := sleepCtx(ctx, idle); err != nil {
				return err
			}
			continue
		}

		jobID := strings.TrimSpace(job.JobID)
		if jobID == "" {
			logger.Warn().Msg("received job without jobId; skipping")
			if err := sleepCtx(ctx, idle); err != nil {
				return err
			}
			continue
		}

		jl := logger.With().Str("job_id", jobID).Str("query_type", strings.TrimSpace(job.QueryType)).Logger()
		jl.Info().Msg("received job")

		result, jobErr := handle(ctx, job)
		if jobErr != nil {
			jl.Error().Str("error", redact.Secrets(jobErr.Error())).Msg("job failed")
			if len(result) == 0 {
				result = []byte(redact.Secrets(jobErr.Error()))
			}
		} else if len(result) == 0 {
			result = []byte("ok")
		}

		var postErr error
		for i := 0; i < 6; i++ {
			if i > 0 {
				if err := sleepCtx(ctx, time.Duration(i)*time.Second); err != nil {
					return err
				}
			}
			if postErr = postResult(ctx, hc, cfg.PostResultURI, cfg.ModuleAuthToken, jobID, result); postErr == nil {
				break
			}
			jl.Warn().Int("attempt", i+1).Str("error", redact.Secrets(postErr.Error())).Msg("post result failed")
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func newHTTPClient(caPath string) (*http.Client, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if strings.TrimSpace(caPath) != "" {
		b, err := os.ReadFile(strings.TrimSpace(caPath))
		if err != nil {
			return nil, fmt.Errorf("read DEFAULT_CA_PATH: %w", err)
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(b); !ok {
			return nil, fmt.Errorf("parse DEFAULT_CA_PATH PEM: no certs found")
		}
		tr.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return &http.Client{Transport: tr, Timeout: 30 * time.Second}, nil
}

func getNextJob(ctx context.Context, hc *http.Client, getJobURI, moduleAuthToken string) (Job, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, getJobURI, nil)
	if err != nil {
		return Job{}, false, err
	}
	req.Header.Set("Module-Auth-Token", moduleAuthToken)
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return Job{}, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNoContent {
		return Job{}, false, nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Job{}, false, err
	}
	if resp.StatusCode/100 != 2 {
		return Job{}, false, fmt.Errorf("GET job: status=%d body=%s", resp.StatusCode, redact.Snippet(b, 200))
	}

	var env computeModuleJobEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Job{}, false, fmt.Errorf("parse GET job response: %w", err)
	}
	return env.ComputeModuleJobV1, true, nil
}

func postResult(ctx context.Context, hc *http.Client, postResultURI, moduleAuthToken, jobID string, result []byte) error {
	base := strings.TrimRight(strings.TrimSpace(postResultURI), "/")
	u := base + "/" + path.Clean("/" + jobID)[1:]

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(result))
	if err != nil {
		return err
	}
	req.Header.Set("Module-Auth-Token", moduleAuthToken)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("POST result: status=%d body=%s", resp.StatusCode, redact.Snippet(b, 200))
	}
	return nil
}

