// Package remote provides a JSON-over-HTTP client for an external parse and
// execution service.
//
// Endpoints, relative to the configured base URL:
//
//	POST /parse            {"versions":[{version_id, code}]} -> {"failures":[...]}
//	POST /execute          Job -> UnitResult
//	POST /runs/{id}/stop   advisory stop for a run
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leapstack-labs/testide/internal/backend"
	"github.com/leapstack-labs/testide/pkg/core"
)

// Client talks to a remote backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds client configuration.
type Config struct {
	// URL is the service base URL, e.g. http://localhost:9090
	URL string
	// Timeout bounds each request (default 30s)
	Timeout time.Duration
	// HTTPClient overrides the default client (optional)
	HTTPClient *http.Client
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates a remote client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote backend url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid remote backend url: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

var _ backend.Backend = (*Client)(nil)
var _ backend.Stopper = (*Client)(nil)

type parseRequest struct {
	Versions []backend.Source `json:"versions"`
}

type parseResponse struct {
	Failures []backend.ParseFailure `json:"failures"`
}

// Parse sends one batch. Any transport or status failure is returned as
// *core.ParseServiceError.
func (c *Client) Parse(ctx context.Context, batch []backend.Source) ([]backend.ParseFailure, error) {
	var resp parseResponse
	if err := c.post(ctx, "/parse", parseRequest{Versions: batch}, &resp); err != nil {
		return nil, &core.ParseServiceError{Message: "remote parse failed", Cause: err}
	}
	return resp.Failures, nil
}

// Execute runs one version remotely. The stop channel is not watched:
// stopping is advisory and reported by the service via StopRun.
func (c *Client) Execute(ctx context.Context, job backend.Job) (core.UnitResult, error) {
	var res core.UnitResult
	if err := c.post(ctx, "/execute", job, &res); err != nil {
		return core.UnitResult{}, err
	}
	if res.VersionID == "" {
		res.VersionID = job.VersionID
	}
	if res.VersionID != job.VersionID {
		return core.UnitResult{}, fmt.Errorf("response for version %q, expected %q", res.VersionID, job.VersionID)
	}
	if !res.Status.Valid() {
		return core.UnitResult{}, fmt.Errorf("invalid unit status %q", res.Status)
	}
	return res, nil
}

// StopRun tells the service that runID was stopped.
func (c *Client) StopRun(ctx context.Context, runID string) error {
	return c.post(ctx, "/runs/"+url.PathEscape(runID)+"/stop", struct{}{}, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("backend request", "path", path, "bytes", len(body))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
