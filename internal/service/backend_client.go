package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/smartcity/trafficops/internal/domain"
)

var (
	// ErrMissingAPIKey is returned without sending a request when no key is configured
	ErrMissingAPIKey = errors.New("backend: missing API key")
	// ErrUnauthorized is returned when the backend rejects the key
	ErrUnauthorized = errors.New("backend: unauthorized")
	// ErrUnexpectedStatus wraps any other non-2xx answer
	ErrUnexpectedStatus = errors.New("backend: unexpected status")
)

// APIKeyHeader carries the backend API key
const APIKeyHeader = "X-API-Key"

// BackendClient fetches real traffic data from the operations backend.
// Requests fail closed: there is no fallback data on any error.
type BackendClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewBackendClient creates a backend client. retryMax bounds transport-level
// retries inside one request; authentication failures are never retried.
func NewBackendClient(baseURL, apiKey string, timeout time.Duration, retryMax int) *BackendClient {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = retryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second

	httpClient := rc.StandardClient()
	httpClient.Timeout = timeout

	return &BackendClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type densityResponse struct {
	Points []domain.HeatmapPoint `json:"points"`
}

type closureSearchRequest struct {
	Statuses []domain.ClosureStatus `json:"statuses,omitempty"`
}

type closureSearchResponse struct {
	Closures []domain.LaneClosure `json:"closures"`
}

// FetchHeatmap returns the current traffic density samples
func (c *BackendClient) FetchHeatmap(ctx context.Context) ([]domain.HeatmapPoint, error) {
	var resp densityResponse
	if err := c.do(ctx, http.MethodGet, "/api/traffic/density", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Points, nil
}

// FetchLaneClosures returns every known lane closure
func (c *BackendClient) FetchLaneClosures(ctx context.Context) ([]domain.LaneClosure, error) {
	return c.SearchLaneClosures(ctx, nil)
}

// SearchLaneClosures returns the lane closures in the given statuses; none means all
func (c *BackendClient) SearchLaneClosures(ctx context.Context, statuses []domain.ClosureStatus) ([]domain.LaneClosure, error) {
	var resp closureSearchResponse
	if err := c.do(ctx, http.MethodPost, "/api/lane-closures/search", closureSearchRequest{Statuses: statuses}, &resp); err != nil {
		return nil, err
	}
	return resp.Closures, nil
}

// Health checks backend connectivity
func (c *BackendClient) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *BackendClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c.apiKey == "" {
		return ErrMissingAPIKey
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: failed to create request: %w", err)
	}
	req.Header.Set(APIKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnauthorized, method, path, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s %s returned %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: failed to decode response: %w", err)
	}
	return nil
}

// IsAuthError reports whether err came from a missing or rejected API key
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingAPIKey) || errors.Is(err, ErrUnauthorized)
}
