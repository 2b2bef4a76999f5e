package domain

import (
	"strings"
	"time"
)

// AnonymousUser is the shared identity for callers that do not supply a name.
const AnonymousUser = "Anonymous"

// NormalizeUser collapses empty or blank identities into AnonymousUser.
func NormalizeUser(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return AnonymousUser
	}
	return name
}

// Message is one entry of a user's conversation log. Immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"is_user"`
	Timestamp time.Time `json:"timestamp"`
}

// Role returns the Italian speaker label used when a log is rendered into a prompt.
func (m Message) Role() string {
	if m.IsUser {
		return "Utente"
	}
	return "Assistente"
}

// TopicContext is the per-user topic scratch buffer.
type TopicContext struct {
	Topic       Topic    `json:"topic"`
	Messages    []string `json:"messages"`
	RepeatCount int      `json:"repeat_count"`
}

// Occurrences is the number of consecutive classifications that landed on Topic.
func (c TopicContext) Occurrences() int {
	if c.Topic == TopicNone {
		return 0
	}
	return c.RepeatCount + 1
}

// FollowUpEntry records a user waiting for a human operator.
type FollowUpEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Issue     string    `json:"issue"`
	Timestamp time.Time `json:"timestamp"`
}

// Feedback is a user rating of the assistant.
type Feedback struct {
	ID        string    `json:"id"`
	UserName  string    `json:"user_name"`
	Text      string    `json:"feedback"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}
