package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/google/uuid"
)

// ConversationStore keeps every user's full message log and the counter of
// consecutive unresolved-issue messages.
type ConversationStore struct {
	mu     sync.RWMutex
	logs   map[string][]domain.Message
	failed map[string]int
	repo   ConversationRepository
	now    func() time.Time
}

// NewConversationStore loads persisted logs from repo. A nil repo keeps the
// store in memory only.
func NewConversationStore(ctx context.Context, repo ConversationRepository) (*ConversationStore, error) {
	s := &ConversationStore{
		logs:   make(map[string][]domain.Message),
		failed: make(map[string]int),
		repo:   repo,
		now:    time.Now,
	}
	if repo == nil {
		return s, nil
	}
	logs, err := repo.LoadConversations(ctx)
	if err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	for user, msgs := range logs {
		s.logs[user] = msgs
	}
	return s, nil
}

// AddMessage appends a message to user's log, creating it if needed.
func (s *ConversationStore) AddMessage(ctx context.Context, user, text string, isUser bool) (domain.Message, error) {
	msg := domain.Message{
		ID:        uuid.New().String(),
		Content:   text,
		IsUser:    isUser,
		Timestamp: s.now(),
	}

	s.mu.Lock()
	s.logs[user] = append(s.logs[user], msg)
	if _, ok := s.failed[user]; !ok {
		s.failed[user] = 0
	}
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.AppendMessage(ctx, user, msg); err != nil {
			return msg, fmt.Errorf("persist message: %w", err)
		}
	}
	return msg, nil
}

// Conversation returns a copy of user's log in insertion order.
func (s *ConversationStore) Conversation(user string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.logs[user]...)
}

// Recent returns at most n of the newest messages of user's log.
func (s *ConversationStore) Recent(user string, n int) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.logs[user]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]domain.Message(nil), msgs...)
}

// Clear deletes user's log and failure counter.
func (s *ConversationStore) Clear(ctx context.Context, user string) error {
	s.mu.Lock()
	delete(s.logs, user)
	delete(s.failed, user)
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.DeleteConversation(ctx, user); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
	}
	return nil
}

// IncrementFailedAttempts bumps user's counter and returns the new value.
func (s *ConversationStore) IncrementFailedAttempts(user string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[user]++
	return s.failed[user]
}

// FailedAttempts returns user's counter, 0 when unknown.
func (s *ConversationStore) FailedAttempts(user string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failed[user]
}

// ResetFailedAttempts sets user's counter to 0.
func (s *ConversationStore) ResetFailedAttempts(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[user] = 0
}

// FailedAttemptsSnapshot copies the raw counter map for debugging.
func (s *ConversationStore) FailedAttemptsSnapshot() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.failed))
	for k, v := range s.failed {
		out[k] = v
	}
	return out
}
