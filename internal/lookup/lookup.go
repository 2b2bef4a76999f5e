// Package lookup wraps the external threat-intelligence services queried
// during a turn: email breach search, IP reputation, URL/IP quality scoring
// and DNS resolution.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrNoResult means the service answered without usable data.
	ErrNoResult = errors.New("lookup: no result")
	// ErrTimedOut means the service reported an upstream timeout.
	ErrTimedOut = errors.New("lookup: service timed out")
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "Cyberdesk-Chatbot"
	maxBodyBytes     = 4 << 20
)

// Config is shared by the RapidAPI-hosted clients.
type Config struct {
	// APIKey is sent as x-rapidapi-key (or embedded in the path for quality scoring).
	APIKey string
	// BaseURL overrides the service endpoint. Tests point it at httptest.
	BaseURL string
	// Timeout bounds one HTTP request. Defaults to 20s.
	Timeout time.Duration
}

func (c Config) httpClient() *http.Client {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return &http.Client{Timeout: c.Timeout}
}

// getJSON performs req and returns the body when it is valid JSON.
func getJSON(client *http.Client, req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Accept", "application/json")
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON payload (HTTP %d)", resp.StatusCode)
	}
	return json.RawMessage(body), nil
}

func rapidRequest(ctx context.Context, cfg Config, host, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("x-rapidapi-key", cfg.APIKey)
	req.Header.Set("x-rapidapi-host", host)
	return req, nil
}
