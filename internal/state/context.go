package state

import (
	"sync"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// DefaultRepeatClearAfter is the number of consecutive classifications on the
// same topic after which the topic buffer is emptied.
const DefaultRepeatClearAfter = 3

// ContextStore holds each user's current topic, its message buffer and the
// repetition counter. Contexts are created lazily and live in memory only.
type ContextStore struct {
	mu         sync.Mutex
	contexts   map[string]*domain.TopicContext
	clearAfter int
}

// NewContextStore returns a store that auto-clears a topic buffer after
// clearAfter consecutive identical classifications.
func NewContextStore(clearAfter int) *ContextStore {
	if clearAfter <= 0 {
		clearAfter = DefaultRepeatClearAfter
	}
	return &ContextStore{
		contexts:   make(map[string]*domain.TopicContext),
		clearAfter: clearAfter,
	}
}

// SetContext records a classification for user and returns the resulting context.
//
// A new or different topic replaces the context with an empty one. The same
// topic increments RepeatCount; once the topic has been seen clearAfter times
// in a row the buffer is emptied and RepeatCount restarts at 0 while the
// topic is kept.
func (s *ContextStore) SetContext(user string, topic domain.Topic) domain.TopicContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[user]
	if !ok || c.Topic != topic {
		c = &domain.TopicContext{Topic: topic}
		s.contexts[user] = c
		return snapshot(c)
	}

	c.RepeatCount++
	if c.Occurrences() >= s.clearAfter {
		c.Messages = nil
		c.RepeatCount = 0
	}
	return snapshot(c)
}

// AddMessage appends text to user's topic buffer. No-op without a context.
func (s *ContextStore) AddMessage(user, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[user]; ok {
		c.Messages = append(c.Messages, text)
	}
}

// Context returns user's context. The zero TopicContext is returned with
// false when the user has none.
func (s *ContextStore) Context(user string) (domain.TopicContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[user]
	if !ok {
		return domain.TopicContext{}, false
	}
	return snapshot(c), true
}

// ClearMessages empties user's buffer, keeping topic and RepeatCount.
func (s *ContextStore) ClearMessages(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[user]; ok {
		c.Messages = nil
	}
}

// ResetRepeats empties user's buffer and restarts RepeatCount, keeping the topic.
func (s *ContextStore) ResetRepeats(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[user]; ok {
		c.Messages = nil
		c.RepeatCount = 0
	}
}

// Clear removes user's context entirely.
func (s *ContextStore) Clear(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.contexts, user)
}

func snapshot(c *domain.TopicContext) domain.TopicContext {
	return domain.TopicContext{
		Topic:       c.Topic,
		Messages:    append([]string{}, c.Messages...),
		RepeatCount: c.RepeatCount,
	}
}
