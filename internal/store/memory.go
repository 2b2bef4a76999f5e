package store

import (
	"context"
	"sync"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// MemoryStore is a process-local Repository used when no database path is
// configured and in tests.
type MemoryStore struct {
	mu        sync.Mutex
	messages  map[string][]domain.Message
	followups []domain.FollowUpEntry
	feedback  []domain.Feedback
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]domain.Message)}
}

func (m *MemoryStore) LoadConversations(context.Context) (map[string][]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]domain.Message, len(m.messages))
	for user, msgs := range m.messages {
		out[user] = append([]domain.Message(nil), msgs...)
	}
	return out, nil
}

func (m *MemoryStore) AppendMessage(_ context.Context, user string, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[user] = append(m.messages[user], msg)
	return nil
}

func (m *MemoryStore) DeleteConversation(_ context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, user)
	return nil
}

func (m *MemoryStore) LoadFollowUps(context.Context) ([]domain.FollowUpEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.FollowUpEntry(nil), m.followups...), nil
}

func (m *MemoryStore) AppendFollowUp(_ context.Context, e domain.FollowUpEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.followups = append(m.followups, e)
	return nil
}

func (m *MemoryStore) DeleteFollowUps(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]domain.FollowUpEntry, 0, len(m.followups))
	for _, e := range m.followups {
		if e.Name != name {
			kept = append(kept, e)
		}
	}
	m.followups = kept
	return nil
}

func (m *MemoryStore) SaveFeedback(_ context.Context, fb domain.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, fb)
	return nil
}

func (m *MemoryStore) ListFeedback(context.Context) ([]domain.Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Feedback(nil), m.feedback...), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
