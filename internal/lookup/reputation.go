package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const reputationHost = "netdetective.p.rapidapi.com"

// ReputationClient queries the IP reputation service.
type ReputationClient struct {
	cfg    Config
	client *http.Client
}

// NewReputationClient returns a client for the IP reputation service.
func NewReputationClient(cfg Config) *ReputationClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + reputationHost
	}
	return &ReputationClient{cfg: cfg, client: cfg.httpClient()}
}

// CheckIP returns the raw reputation record for ip.
func (c *ReputationClient) CheckIP(ctx context.Context, ip string) (json.RawMessage, error) {
	req, err := rapidRequest(ctx, c.cfg, reputationHost, c.cfg.BaseURL+"/query?ip="+url.QueryEscape(ip))
	if err != nil {
		return nil, fmt.Errorf("reputation check: %w", err)
	}
	raw, err := getJSON(c.client, req)
	if err != nil {
		return nil, fmt.Errorf("reputation check %s: %w", ip, err)
	}
	return raw, nil
}
