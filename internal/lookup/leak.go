package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const leakHost = "email-data-leak-checker.p.rapidapi.com"

// LeakClient queries the email data-leak checker.
type LeakClient struct {
	cfg    Config
	client *http.Client
}

// NewLeakClient returns a client for the breach search service.
func NewLeakClient(cfg Config) *LeakClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + leakHost
	}
	return &LeakClient{cfg: cfg, client: cfg.httpClient()}
}

// CheckEmail returns the raw breach report for email. The payload is left
// unparsed: its shape is validated by the caller.
func (c *LeakClient) CheckEmail(ctx context.Context, email string) (json.RawMessage, error) {
	endpoint := c.cfg.BaseURL + "/emaild?email=" + url.QueryEscape(email)
	req, err := rapidRequest(ctx, c.cfg, leakHost, endpoint)
	if err != nil {
		return nil, fmt.Errorf("leak check: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := getJSON(c.client, req)
	if err != nil {
		return nil, fmt.Errorf("leak check %s: %w", email, err)
	}
	return raw, nil
}
