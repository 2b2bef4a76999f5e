package store

import (
	"context"
	"strings"
	"time"

	"github.com/ashureev/cyberdesk/internal/retry"
)

// IsBusyError reports whether err is a SQLITE_BUSY or "database is locked"
// failure. Both are concurrency errors worth retrying.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// busyRetry backs off 100ms, 200ms between attempts.
var busyRetry = retry.Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     400 * time.Millisecond,
	ShouldRetry:  IsBusyError,
}

func withBusyRetry(ctx context.Context, op string, fn func() error) error {
	cfg := busyRetry
	cfg.Name = op
	return retry.Do(ctx, cfg, fn)
}
