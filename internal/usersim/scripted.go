package usersim

import (
	"context"
	"sync"

	"taubench/internal/task"
)

// DefaultConfirmation is the reply Confirming gives to each agent question.
const DefaultConfirmation = "Yes, please go ahead."

// Scripted replies with a fixed list of utterances and stops once the list
// is exhausted.
type Scripted struct {
	mu      sync.Mutex
	opening string
	replies []string
	next    int
	heard   []string
}

// NewScripted creates a simulator that opens with opening, or with the task
// instruction when opening is empty, and then answers with replies in order.
func NewScripted(opening string, replies ...string) *Scripted {
	return &Scripted{opening: opening, replies: append([]string(nil), replies...)}
}

// Confirming builds a scripted user for replaying t: it confirms every
// respond action of the ground truth and stops on the message after that.
func Confirming(t task.Task) *Scripted {
	var replies []string
	for _, action := range t.Actions {
		if action.IsRespond() {
			replies = append(replies, DefaultConfirmation)
		}
	}
	return NewScripted(t.Instruction, replies...)
}

func (s *Scripted) Reset(_ context.Context, instruction string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = 0
	s.heard = nil
	if s.opening != "" {
		return s.opening, nil
	}
	return instruction, nil
}

func (s *Scripted) Step(ctx context.Context, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heard = append(s.heard, content)
	if s.next >= len(s.replies) {
		return StopSentinel, nil
	}
	reply := s.replies[s.next]
	s.next++
	return reply, nil
}

// Heard returns the agent messages received since the last Reset.
func (s *Scripted) Heard() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.heard...)
}

func (s *Scripted) Cost() float64 { return 0 }
