// Package client provides an HTTP client for the serpcluster server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/serpcluster/internal/service"
)

// Client talks to the serpcluster REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// New creates a client.
// If baseURL is empty, uses SERPCLUSTER_SERVER_URL or defaults to localhost:8484.
// Timeout can be configured via SERPCLUSTER_CLIENT_TIMEOUT (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SERPCLUSTER_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8484"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("SERPCLUSTER_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error"`
}

// Health is the server's /health payload.
type Health struct {
	Version  string `json:"version"`
	CanFetch bool   `json:"can_fetch"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if resp.StatusCode >= 300 || env.Status == "error" {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

// Health returns the server version and whether it can fetch remote data.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// StartRun queues a fetch-and-cluster run.
func (c *Client) StartRun(ctx context.Context, req service.RunRequest) (*service.RunSnapshot, error) {
	var snap service.RunSnapshot
	if err := c.do(ctx, http.MethodPost, "/v1/runs", req, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetRun returns a run including its report once completed.
func (c *Client) GetRun(ctx context.Context, id string) (*service.RunSnapshot, error) {
	var snap service.RunSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/runs/"+id, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListRuns returns all runs, newest first, without reports.
func (c *Client) ListRuns(ctx context.Context) ([]service.RunSnapshot, error) {
	var runs []service.RunSnapshot
	if err := c.do(ctx, http.MethodGet, "/v1/runs", nil, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// ClusterCached clusters keywords using only what the server has cached.
func (c *Client) ClusterCached(ctx context.Context, req service.RunRequest) (*service.Report, error) {
	var report service.Report
	if err := c.do(ctx, http.MethodPost, "/v1/cluster", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// WaitRun polls a run every interval until it finishes or ctx ends.
// onUpdate, if set, sees every snapshot including the last. On cancellation
// the last snapshot seen is returned with the context error.
func (c *Client) WaitRun(ctx context.Context, id string, interval time.Duration, onUpdate func(service.RunSnapshot)) (*service.RunSnapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *service.RunSnapshot
	for {
		snap, err := c.GetRun(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && last != nil {
				return last, ctxErr
			}
			return nil, err
		}
		last = snap
		if onUpdate != nil {
			onUpdate(*snap)
		}
		if snap.Done() {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}
