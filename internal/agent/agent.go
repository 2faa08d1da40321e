// Package agent drives episodes with a policy and collects the trajectory.
package agent

import (
	"context"
	"fmt"

	"taubench/internal/episode"
	"taubench/internal/logging"
	"taubench/internal/reward"
	"taubench/internal/task"
)

// DefaultMaxSteps bounds the number of actions per episode.
const DefaultMaxSteps = 30

// SolveResult is the outcome of one episode.
type SolveResult struct {
	Reward     float64        `json:"reward"`
	RewardInfo *reward.Result `json:"reward_info,omitempty"`
	Messages   []Message      `json:"messages"`
	TotalCost  float64        `json:"total_cost"`
	Steps      int            `json:"steps"`
	Done       bool           `json:"done"`
}

// Agent solves a single task of an environment.
type Agent interface {
	Solve(ctx context.Context, env *episode.Env, taskIndex int) (SolveResult, error)
}

// PolicyAgent runs a Policy until the episode terminates or MaxSteps actions
// have been taken.
type PolicyAgent struct {
	policy   Policy
	maxSteps int
	logger   logging.Logger
}

// NewPolicyAgent wraps policy. A non-positive maxSteps uses DefaultMaxSteps.
func NewPolicyAgent(policy Policy, maxSteps int, logger logging.Logger) *PolicyAgent {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &PolicyAgent{policy: policy, maxSteps: maxSteps, logger: logging.OrNop(logger)}
}

// Solve resets env to taskIndex and alternates policy decisions with
// environment steps. On error the partial trajectory is returned alongside.
func (a *PolicyAgent) Solve(ctx context.Context, env *episode.Env, taskIndex int) (SolveResult, error) {
	var result SolveResult
	reset, err := env.Reset(ctx, taskIndex)
	if err != nil {
		return result, err
	}
	conv := Conversation{
		Domain: env.Domain(),
		Tools:  env.ToolDefinitions(),
		Task:   reset.Info.Task,
		Messages: []Message{
			{Role: RoleSystem, Content: SystemPrompt(env.Wiki(), env.Rules())},
			{Role: RoleUser, Content: reset.Observation},
		},
	}

	for result.Steps < a.maxSteps {
		if err := ctx.Err(); err != nil {
			result.Messages = conv.Messages
			return result, err
		}
		action, err := a.policy.Next(ctx, conv)
		if err != nil {
			result.Messages = conv.Messages
			return result, fmt.Errorf("policy step %d: %w", result.Steps, err)
		}
		conv.Messages = append(conv.Messages, assistantMessage(action))
		result.Steps++

		resp, err := env.Step(ctx, action)
		result.TotalCost = resp.Info.UserCost
		if resp.Observation != "" || err == nil {
			conv.Messages = append(conv.Messages, observationMessage(action, resp.Observation))
		}
		if err != nil {
			result.Messages = conv.Messages
			result.Done = resp.Done
			return result, err
		}
		if resp.Done {
			result.Done = true
			result.Reward = resp.Reward
			result.RewardInfo = resp.Info.RewardInfo
			break
		}
	}
	if !result.Done {
		a.logger.Debug("task %s stopped after %d steps without terminating", conv.Task.ID, result.Steps)
	}
	result.Messages = conv.Messages
	return result, nil
}

func assistantMessage(action task.Action) Message {
	msg := Message{Role: RoleAssistant}
	if action.IsRespond() {
		msg.Content = action.Content()
		return msg
	}
	a := action
	msg.Action = &a
	return msg
}

func observationMessage(action task.Action, observation string) Message {
	if action.IsRespond() {
		return Message{Role: RoleUser, Content: observation}
	}
	return Message{Role: RoleTool, Content: observation}
}
