// Package knowledge loads the local knowledge base and static documents used
// to ground assistant answers.
package knowledge

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultReloadInterval is how long a loaded index stays fresh.
	DefaultReloadInterval = time.Hour
	// DefaultMaxResults caps the entries returned by Search.
	DefaultMaxResults = 5

	minKeywordLen = 4
)

// ErrUnsupportedFile is returned by Save for anything but .json and .csv.
var ErrUnsupportedFile = errors.New("knowledge: only .json and .csv files are accepted")

// Entry is one searchable record of the knowledge base.
type Entry struct {
	Source string
	Key    string
	Text   string
}

func (e Entry) String() string {
	if e.Key != "" {
		return e.Key + ": " + e.Text
	}
	return e.Text
}

// Options tunes a Base.
type Options struct {
	ReloadInterval time.Duration
	MaxResults     int
	Logger         *slog.Logger
}

// Base is a directory of .json and .csv files indexed in memory. The index is
// rebuilt lazily once it is older than the reload interval or after
// Invalidate. Concurrent reloads collapse into one.
type Base struct {
	dir      string
	interval time.Duration
	max      int
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.RWMutex
	entries  []Entry
	loadedAt time.Time

	group singleflight.Group
}

// NewBase returns a knowledge base rooted at dir. Nothing is read until the
// first Search.
func NewBase(dir string, opts Options) *Base {
	if opts.ReloadInterval <= 0 {
		opts.ReloadInterval = DefaultReloadInterval
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Base{
		dir:      dir,
		interval: opts.ReloadInterval,
		max:      opts.MaxResults,
		logger:   opts.Logger.With("component", "knowledge"),
		now:      time.Now,
	}
}

// Dir returns the directory backing the base.
func (b *Base) Dir() string { return b.dir }

// Invalidate forces a reload on the next Search.
func (b *Base) Invalidate() {
	b.mu.Lock()
	b.loadedAt = time.Time{}
	b.mu.Unlock()
}

// Len returns the number of indexed entries.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Search returns the entries most relevant to query. An entry matches when it
// contains the whole query or any of its words of at least four letters;
// entries with more matching words rank first.
func (b *Base) Search(ctx context.Context, query string) ([]Entry, error) {
	if err := b.ensureFresh(ctx); err != nil {
		return nil, err
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	keywords := keywordsOf(query)

	b.mu.RLock()
	defer b.mu.RUnlock()

	type scored struct {
		entry Entry
		score int
		order int
	}
	var hits []scored
	for i, e := range b.entries {
		haystack := strings.ToLower(e.Key + " " + e.Text)
		score := 0
		if strings.Contains(haystack, query) {
			score += len(keywords) + 1
		}
		for _, kw := range keywords {
			if strings.Contains(haystack, kw) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{entry: e, score: score, order: i})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].order < hits[j].order
	})
	if len(hits) > b.max {
		hits = hits[:b.max]
	}
	out := make([]Entry, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.entry)
	}
	return out, nil
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}]+`)

func keywordsOf(query string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range wordRe.FindAllString(query, -1) {
		if len([]rune(w)) < minKeywordLen {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

func (b *Base) ensureFresh(ctx context.Context) error {
	b.mu.RLock()
	fresh := !b.loadedAt.IsZero() && b.now().Sub(b.loadedAt) <= b.interval
	b.mu.RUnlock()
	if fresh {
		return nil
	}

	ch := b.group.DoChan("reload", func() (any, error) {
		return nil, b.Reload()
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reload rebuilds the index from disk immediately. Unreadable files are
// skipped with a warning.
func (b *Base) Reload() error {
	dirEntries, err := os.ReadDir(b.dir)
	if err != nil {
		return fmt.Errorf("read knowledge directory: %w", err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".json" && ext != ".csv" {
			continue
		}
		loaded, err := loadFile(filepath.Join(b.dir, name), ext)
		if err != nil {
			b.logger.Warn("skipping knowledge file", "file", name, "error", err)
			continue
		}
		entries = append(entries, loaded...)
	}

	b.mu.Lock()
	b.entries = entries
	b.loadedAt = b.now()
	b.mu.Unlock()

	b.logger.Info("knowledge base loaded", "dir", b.dir, "entries", len(entries))
	return nil
}

func loadFile(path, ext string) ([]Entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text, err := DecodeText(raw)
	if err != nil {
		return nil, err
	}
	source := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if ext == ".csv" {
		return parseCSV(source, strings.NewReader(text))
	}
	return parseJSON(source, []byte(text))
}

func parseJSON(source string, data []byte) ([]Entry, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	switch v := doc.(type) {
	case []any:
		out := make([]Entry, 0, len(v))
		for _, item := range v {
			out = append(out, Entry{Source: source, Text: render(item)})
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Entry, 0, len(v))
		for _, k := range keys {
			out = append(out, Entry{Source: source, Key: k, Text: render(v[k])})
		}
		return out, nil
	default:
		return []Entry{{Source: source, Text: render(v)}}, nil
	}
}

func parseCSV(source string, r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var out []Entry
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		out = append(out, Entry{Source: source, Text: render(row)})
	}
	return out, nil
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFilename reduces name to a safe base name.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeName.ReplaceAllString(name, "_")
	return strings.TrimLeft(name, "._")
}

// Save validates and stores an uploaded knowledge file, then invalidates the
// index. It returns the stored file name.
func (b *Base) Save(name string, r io.Reader) (string, error) {
	name = SanitizeFilename(name)
	ext := strings.ToLower(filepath.Ext(name))
	if name == "" || (ext != ".json" && ext != ".csv") {
		return "", ErrUnsupportedFile
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	text, err := DecodeText(data)
	if err != nil {
		return "", err
	}
	source := strings.TrimSuffix(name, filepath.Ext(name))
	if ext == ".json" {
		_, err = parseJSON(source, []byte(text))
	} else {
		_, err = parseCSV(source, strings.NewReader(text))
	}
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", name, err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("create knowledge directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(b.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	b.Invalidate()
	b.logger.Info("knowledge file stored", "file", name, "bytes", len(data))
	return name, nil
}
