// Package remote provides a client for the DataForSEO v3 task API.
//
// SERP and search-volume data are fetched through the asynchronous
// task_post / task_get lifecycle. Keyword difficulty and search intent come
// from synchronous "live" endpoints.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/metrics"
)

const (
	DefaultBaseURL = "https://api.dataforseo.com"
	SandboxBaseURL = "https://sandbox.dataforseo.com"
)

// Batch limits per request.
const (
	MaxSERPBatch   = 100
	MaxVolumeBatch = 1000
	MaxLiveBatch   = 1000
)

// DefaultSERPDepth is the number of organic results requested per keyword.
const DefaultSERPDepth = 100

// Config holds client settings.
type Config struct {
	BaseURL  string
	Login    string
	Password string

	// Timeout bounds a single HTTP round trip. Default 60s.
	Timeout   time.Duration
	SERPDepth int

	HTTPClient *http.Client
	Metrics    *metrics.Collector
	Logger     *slog.Logger
}

// Client talks to the DataForSEO API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	login      string
	password   string
	depth      int
	httpClient *http.Client
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.SERPDepth <= 0 {
		cfg.SERPDepth = DefaultSERPDepth
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		login:      cfg.Login,
		password:   cfg.Password,
		depth:      cfg.SERPDepth,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// envelope is the outer shape of every API response.
type envelope struct {
	StatusCode    int            `json:"status_code"`
	StatusMessage string         `json:"status_message"`
	Tasks         []taskEnvelope `json:"tasks"`
}

type taskEnvelope struct {
	ID            string          `json:"id"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message"`
	Data          taskData        `json:"data"`
	Result        json.RawMessage `json:"result"`
}

type taskData struct {
	Keyword  string   `json:"keyword"`
	Keywords []string `json:"keywords"`
	Tag      string   `json:"tag"`
}

func (t taskEnvelope) hasResult() bool {
	r := bytes.TrimSpace(t.Result)
	return len(r) > 0 && !bytes.Equal(r, []byte("null")) && !bytes.Equal(r, []byte("[]"))
}

// do sends a request and decodes the envelope. The envelope status is checked;
// per-task statuses are left to the caller.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (*envelope, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &PermanentError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, &PermanentError{Op: op, Err: fmt.Errorf("create request: %w", err)}
	}
	req.SetBasicAuth(c.login, c.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(op, resp.StatusCode, string(raw))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &TransientError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if !isSuccessStatus(env.StatusCode) {
		return nil, classifyAPI(op, env.StatusCode, env.StatusMessage)
	}
	return &env, nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.metrics.Observe(op, start, err)
}
