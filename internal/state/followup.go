package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/google/uuid"
)

// FollowUpQueue is the ordered list of users waiting for a human operator.
// It does not deduplicate: callers check Contains before Add.
type FollowUpQueue struct {
	mu      sync.RWMutex
	entries []domain.FollowUpEntry
	repo    FollowUpRepository
	now     func() time.Time
}

// NewFollowUpQueue loads persisted entries from repo. A nil repo keeps the
// queue in memory only.
func NewFollowUpQueue(ctx context.Context, repo FollowUpRepository) (*FollowUpQueue, error) {
	q := &FollowUpQueue{repo: repo, now: time.Now}
	if repo == nil {
		return q, nil
	}
	entries, err := repo.LoadFollowUps(ctx)
	if err != nil {
		return nil, fmt.Errorf("load follow-ups: %w", err)
	}
	q.entries = entries
	return q, nil
}

// Add appends an entry for user.
func (q *FollowUpQueue) Add(ctx context.Context, user, issue string) error {
	entry := domain.FollowUpEntry{
		ID:        uuid.New().String(),
		Name:      user,
		Issue:     issue,
		Timestamp: q.now(),
	}

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()

	if q.repo != nil {
		if err := q.repo.AppendFollowUp(ctx, entry); err != nil {
			return fmt.Errorf("persist follow-up: %w", err)
		}
	}
	return nil
}

// Contains reports whether any entry belongs to user.
func (q *FollowUpQueue) Contains(user string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, e := range q.entries {
		if e.Name == user {
			return true
		}
	}
	return false
}

// Names returns the user names in queue order.
func (q *FollowUpQueue) Names() []string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	names := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		names = append(names, e.Name)
	}
	return names
}

// Entries returns a copy of the full entries.
func (q *FollowUpQueue) Entries() []domain.FollowUpEntry {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]domain.FollowUpEntry(nil), q.entries...)
}

// Remove deletes every entry for user.
func (q *FollowUpQueue) Remove(ctx context.Context, user string) error {
	q.mu.Lock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.Name != user {
			kept = append(kept, e)
		}
	}
	q.entries = kept
	q.mu.Unlock()

	if q.repo != nil {
		if err := q.repo.DeleteFollowUps(ctx, user); err != nil {
			return fmt.Errorf("delete follow-ups: %w", err)
		}
	}
	return nil
}
