// Package state owns the per-user dialogue state: conversation logs, failure
// counters, topic contexts and the follow-up queue. Stores are safe for
// concurrent use; callers serialize turns for one user with KeyLocks.
package state

import (
	"context"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// ConversationRepository persists conversation logs. Every mutation is
// written through; the full state is loaded once at startup.
type ConversationRepository interface {
	LoadConversations(ctx context.Context) (map[string][]domain.Message, error)
	AppendMessage(ctx context.Context, user string, msg domain.Message) error
	DeleteConversation(ctx context.Context, user string) error
}

// FollowUpRepository persists the follow-up queue.
type FollowUpRepository interface {
	LoadFollowUps(ctx context.Context) ([]domain.FollowUpEntry, error)
	AppendFollowUp(ctx context.Context, entry domain.FollowUpEntry) error
	DeleteFollowUps(ctx context.Context, name string) error
}
