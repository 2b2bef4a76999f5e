package classifier

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// LoadDataset reads a labelled CSV file with a header row. The message column
// is named "message" or "text"; the label column "topic" or "label".
func LoadDataset(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("failed to close dataset", "path", path, "error", closeErr)
		}
	}()
	return ReadDataset(f)
}

// ReadDataset parses labelled CSV rows. Rows with unknown topics are skipped.
func ReadDataset(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read dataset header: %w", err)
	}
	msgCol, topicCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "message", "text":
			msgCol = i
		case "topic", "label":
			topicCol = i
		}
	}
	if msgCol < 0 || topicCol < 0 {
		return nil, errors.New("dataset header must name a message and a topic column")
	}

	var samples []Sample
	skipped := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset row: %w", err)
		}
		if msgCol >= len(rec) || topicCol >= len(rec) {
			skipped++
			continue
		}
		topic, ok := domain.ParseTopic(strings.TrimSpace(rec[topicCol]))
		msg := strings.TrimSpace(rec[msgCol])
		if !ok || msg == "" {
			skipped++
			continue
		}
		samples = append(samples, Sample{Message: msg, Topic: topic})
	}
	if skipped > 0 {
		slog.Warn("skipped dataset rows", "count", skipped)
	}
	return samples, nil
}
