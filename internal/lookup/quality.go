package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/cyberdesk/internal/retry"
)

const (
	defaultQualityBase = "https://www.ipqualityscore.com/api/json/url"

	// DefaultQualityAttempts and DefaultQualityDelay bound the retries on
	// "timed out" answers.
	DefaultQualityAttempts = 3
	DefaultQualityDelay    = 2 * time.Second
)

// TimeoutResult is returned in place of a report once every attempt timed out.
var TimeoutResult = json.RawMessage(`{"error":"Timeout error. Unable to get information after multiple attempts."}`)

// QualityConfig configures the URL/IP quality scanner.
type QualityConfig struct {
	Config
	// Strictness is forwarded as the strictness query parameter (0-2).
	Strictness int
	// Attempts and RetryDelay control retries on timed-out answers.
	Attempts   int
	RetryDelay time.Duration
}

// QualityClient queries the malicious URL scanner.
type QualityClient struct {
	cfg    QualityConfig
	client *http.Client
}

// NewQualityClient returns a quality scanner client.
func NewQualityClient(cfg QualityConfig) *QualityClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultQualityBase
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultQualityAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultQualityDelay
	}
	return &QualityClient{cfg: cfg, client: cfg.httpClient()}
}

type qualityStatus struct {
	Success *bool  `json:"success"`
	Message string `json:"message"`
}

// CheckQuality scores target (an IP address or URL).
//
// A successful report is returned as is. When every attempt answers with a
// "timed out" message, TimeoutResult is returned with a nil error. Any other
// unsuccessful answer yields ErrNoResult.
func (c *QualityClient) CheckQuality(ctx context.Context, target string) (json.RawMessage, error) {
	var report json.RawMessage
	policy := retry.Fixed(c.cfg.Attempts, c.cfg.RetryDelay, func(err error) bool {
		return errors.Is(err, ErrTimedOut)
	})
	policy.Name = "quality check"

	err := retry.Do(ctx, policy, func() error {
		raw, err := c.checkOnce(ctx, target)
		if err != nil {
			return err
		}
		report = raw
		return nil
	})
	switch {
	case err == nil:
		return report, nil
	case errors.Is(err, ErrTimedOut) && ctx.Err() == nil:
		slog.Error("quality check exhausted retries", "target", target, "attempts", c.cfg.Attempts)
		return TimeoutResult, nil
	default:
		return nil, fmt.Errorf("quality check %s: %w", target, err)
	}
}

func (c *QualityClient) checkOnce(ctx context.Context, target string) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/%s/%s?strictness=%s",
		c.cfg.BaseURL, c.cfg.APIKey, url.QueryEscape(target), strconv.Itoa(c.cfg.Strictness))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	raw, err := getJSON(c.client, req)
	if err != nil {
		return nil, err
	}
	slog.Debug("quality check response", "target", target, "bytes", len(raw))

	var status qualityStatus
	if err := json.Unmarshal(raw, &status); err != nil || status.Success == nil {
		slog.Error("unexpected quality check response", "target", target)
		return nil, ErrNoResult
	}
	if *status.Success {
		return raw, nil
	}
	if strings.Contains(strings.ToLower(status.Message), "timed out") {
		return nil, ErrTimedOut
	}
	slog.Error("quality check failed", "target", target, "message", status.Message)
	return nil, ErrNoResult
}
