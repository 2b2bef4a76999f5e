package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// Retrainer keeps a Model trained on a dataset file and retrains it when the
// file changes. It implements Strategy; until the first successful training
// it has no opinion.
type Retrainer struct {
	path     string
	interval time.Duration
	opts     TrainOptions

	model   atomic.Pointer[Model]
	mu      sync.Mutex
	modTime time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRetrainer returns a Retrainer for the CSV dataset at path.
func NewRetrainer(path string, interval time.Duration, opts TrainOptions) *Retrainer {
	return &Retrainer{
		path:     path,
		interval: interval,
		opts:     opts,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Predict implements Strategy.
func (r *Retrainer) Predict(message string) (domain.Topic, bool) {
	return r.model.Load().Predict(message)
}

// Reload trains a new model if the dataset changed since the last training.
// It reports whether a new model was installed.
func (r *Retrainer) Reload() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		return false, fmt.Errorf("stat dataset: %w", err)
	}
	if !info.ModTime().After(r.modTime) && r.model.Load() != nil {
		return false, nil
	}

	samples, err := LoadDataset(r.path)
	if err != nil {
		return false, err
	}
	m, err := Train(samples, r.opts)
	if err != nil {
		return false, fmt.Errorf("train classifier: %w", err)
	}
	r.model.Store(m)
	r.modTime = info.ModTime()
	slog.Info("statistical classifier trained", "path", r.path, "samples", len(samples), "topics", len(m.Labels()))
	return true, nil
}

// Start trains once and then checks the dataset every interval until ctx is
// done or Stop is called. A non-positive interval disables periodic checks.
func (r *Retrainer) Start(ctx context.Context) error {
	r.started.Store(true)
	if _, err := r.Reload(); err != nil {
		close(r.doneCh)
		return err
	}
	if r.interval <= 0 {
		close(r.doneCh)
		return nil
	}
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stopCh:
				return
			case <-ticker.C:
				if _, err := r.Reload(); err != nil {
					slog.Warn("classifier retraining failed, keeping previous model", "error", err)
				}
			}
		}
	}()
	return nil
}

// Stop ends periodic retraining and waits for the loop to exit.
func (r *Retrainer) Stop() {
	if !r.started.Load() {
		return
	}
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}
