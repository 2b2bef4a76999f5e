package llm

import (
	"context"
	"sync"
)

// Mock is a scripted Completer for tests and offline runs. Replies are
// returned in order; the last one repeats. Without replies it echoes a fixed
// Italian acknowledgement.
type Mock struct {
	mu      sync.Mutex
	Replies []string
	Err     error
	calls   []Request
}

// Complete records req and returns the next scripted reply.
func (m *Mock) Complete(_ context.Context, req Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Replies) == 0 {
		return "Ho ricevuto la tua richiesta.", nil
	}
	reply := m.Replies[0]
	if len(m.Replies) > 1 {
		m.Replies = m.Replies[1:]
	}
	return reply, nil
}

// Calls returns the requests seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}
