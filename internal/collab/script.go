package collab

import (
	"context"
	"sync"
)

// Scripted is a collaborator that replays canned replies in order. Used by
// tests and by the "test" provider for dry runs without an API key. Once the
// script is exhausted it keeps returning the last reply.
type Scripted struct {
	mu      sync.Mutex
	replies []string
	next    int
	history []Message
}

// NewScripted creates a scripted collaborator.
func NewScripted(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Ask records the prompt and returns the next scripted reply.
func (s *Scripted) Ask(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := ""
	if len(s.replies) > 0 {
		idx := s.next
		if idx >= len(s.replies) {
			idx = len(s.replies) - 1
		}
		reply = s.replies[idx]
		s.next++
	}

	s.history = append(s.history,
		Message{Role: RoleUser, Content: prompt},
		Message{Role: RoleAssistant, Content: reply},
	)
	return reply, nil
}

// DeleteHistory discards the transcript but not the script position, so a
// scripted conversation can span the reset at the start of a run.
func (s *Scripted) DeleteHistory() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// History returns a copy of the transcript so far.
func (s *Scripted) History() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.history))
	copy(out, s.history)
	return out
}
