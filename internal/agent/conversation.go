package agent

import (
	"strings"

	"taubench/internal/task"
	"taubench/internal/toolregistry"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation.
type Message struct {
	Role    Role         `json:"role"`
	Content string       `json:"content"`
	Action  *task.Action `json:"action,omitempty"`
}

// Conversation is everything a policy may condition on.
type Conversation struct {
	Domain   string
	Tools    []toolregistry.Definition
	Messages []Message
	// Task is the scenario being solved. Policies under evaluation must not
	// look at it; it exists for ground-truth replay.
	Task task.Task
}

// Steps returns the number of actions the policy has taken so far.
func (c Conversation) Steps() int {
	n := 0
	for _, msg := range c.Messages {
		if msg.Role == RoleAssistant {
			n++
		}
	}
	return n
}

// LastObservation returns the content of the latest non-assistant message.
func (c Conversation) LastObservation() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role != RoleAssistant {
			return c.Messages[i].Content
		}
	}
	return ""
}

// SystemPrompt renders the domain wiki and rules as the opening system
// message.
func SystemPrompt(wiki string, rules []string) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(wiki))
	if len(rules) > 0 {
		sb.WriteString("\n\n# Rules\n")
		for _, rule := range rules {
			sb.WriteString("- ")
			sb.WriteString(rule)
			sb.WriteByte('\n')
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
