// Package usersim provides the simulated customers an agent converses with.
package usersim

import (
	"context"
	"strings"
)

// StopSentinel ends an episode when it appears in a user utterance.
const StopSentinel = "###STOP###"

// Simulator plays the customer side of an episode.
type Simulator interface {
	// Reset starts a conversation for instruction and returns the opening
	// utterance.
	Reset(ctx context.Context, instruction string) (string, error)
	// Step answers the agent's message.
	Step(ctx context.Context, content string) (string, error)
	// Cost is the accumulated spend of the simulator, zero for non-LLM ones.
	Cost() float64
}

// IsStop reports whether utterance ends the conversation.
func IsStop(utterance string) bool {
	return strings.Contains(utterance, StopSentinel)
}
