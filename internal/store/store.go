// Package store persists conversations, the follow-up queue and feedback.
package store

import (
	"context"

	"github.com/ashureev/cyberdesk/internal/domain"
	"github.com/ashureev/cyberdesk/internal/state"
)

// Repository is the full persistence surface of the service.
type Repository interface {
	state.ConversationRepository
	state.FollowUpRepository

	// SaveFeedback stores a user rating.
	SaveFeedback(ctx context.Context, fb domain.Feedback) error

	// ListFeedback returns every stored rating, oldest first.
	ListFeedback(ctx context.Context) ([]domain.Feedback, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
