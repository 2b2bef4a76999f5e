// Package transcript writes chat turns as NDJSON, one file per user plus an
// optional global file. Writes happen on a background goroutine fed by a
// bounded queue; events are dropped when the queue is full.
package transcript

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Channels and directions recorded on events.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebsocket = "chat_ws"

	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Config controls transcript logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Event is one logged message.
type Event struct {
	Timestamp  string         `json:"timestamp"`
	User       string         `json:"user"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	Topic      string         `json:"topic,omitempty"`
	Escalated  bool           `json:"escalated,omitempty"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records chat events.
type Logger interface {
	Log(Event)
	Close() error
}

type noopLogger struct{}

func (noopLogger) Log(Event)    {}
func (noopLogger) Close() error { return nil }

// Nop returns a Logger that discards everything.
func Nop() Logger { return noopLogger{} }

type fileLogger struct {
	cfg    Config
	logger *slog.Logger
	queue  chan Event

	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
	done    chan struct{}
}

// New returns a Logger for cfg. A disabled config yields Nop.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return Nop(), nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("transcript: directory is required")
	}
	if cfg.GlobalEnabled && cfg.GlobalPath == "" {
		return nil, errors.New("transcript: global path is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	l := &fileLogger{
		cfg:    cfg,
		logger: logger.With("component", "transcript"),
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

// Log enqueues ev without blocking.
func (l *fileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" {
		ev.Content = Readable(ev.ContentRaw)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("transcript queue full, dropping events", "dropped", n)
		}
	}
}

// Close stops accepting events and waits for the queue to drain.
func (l *fileLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		line, err := json.Marshal(ev)
		if err != nil {
			l.logger.Error("transcript encode failed", "error", err)
			continue
		}
		line = append(line, '\n')
		if err := appendLine(filepath.Join(l.cfg.Dir, FileName(ev.User)), line); err != nil {
			l.logger.Error("transcript write failed", "error", err, "user", ev.User)
		}
		if l.cfg.GlobalEnabled {
			if err := appendLine(l.cfg.GlobalPath, line); err != nil {
				l.logger.Error("global transcript write failed", "error", err)
			}
		}
	}
}

func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileName maps a user name to its transcript file name. The readable stem
// is sanitized; the suffix hashes the raw name so distinct users never share
// a file.
func FileName(user string) string {
	name := strings.Trim(unsafeName.ReplaceAllString(user, "_"), "._")
	if name == "" {
		name = "anonymous"
	}
	sum := sha256.Sum256([]byte(user))
	return name + "-" + hex.EncodeToString(sum[:4]) + ".ndjson"
}

var breakTag = regexp.MustCompile(`(?i)<br\s*/?>`)

// Readable turns a rendered reply back into plain text lines.
func Readable(s string) string {
	return strings.TrimSpace(breakTag.ReplaceAllString(s, "\n"))
}
