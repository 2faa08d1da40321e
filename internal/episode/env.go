// Package episode runs one simulated customer-service conversation: it owns
// the world state, routes agent actions to the user simulator or the tool
// registry, and scores the episode once it terminates.
package episode

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"taubench/internal/logging"
	"taubench/internal/observability"
	"taubench/internal/reward"
	"taubench/internal/task"
	"taubench/internal/toolregistry"
	"taubench/internal/usersim"
	"taubench/internal/worldstate"
)

var (
	// ErrEpisodeTerminated is returned by Step once the episode has ended.
	ErrEpisodeTerminated = errors.New("episode already terminated")
	// ErrNotReset is returned by Step until a Reset succeeds.
	ErrNotReset = errors.New("episode has not been reset")
)

// SourceUser tags observations produced by the user simulator at reset.
const SourceUser = "user"

// Status is the lifecycle state of an Env.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Evaluator scores a finished episode.
type Evaluator interface {
	Evaluate(ctx context.Context, t task.Task, data worldstate.Document, actions []task.Action) (reward.Result, error)
}

// Config wires an Env.
type Config struct {
	Domain    string
	Loader    worldstate.Loader
	Registry  *toolregistry.Registry
	Tasks     []task.Task
	Wiki      string
	Rules     []string
	User      usersim.Simulator
	Evaluator Evaluator
	Tracer    *observability.TracerProvider
	Logger    logging.Logger
}

// ResetInfo accompanies the opening observation.
type ResetInfo struct {
	Task   task.Task `json:"task"`
	Source string    `json:"source"`
}

// ResetResponse is the result of Reset.
type ResetResponse struct {
	Observation string    `json:"observation"`
	Info        ResetInfo `json:"info"`
}

// StepInfo accompanies a step observation. RewardInfo is set only on the
// step that terminated the episode.
type StepInfo struct {
	Task       task.Task      `json:"task"`
	Source     string         `json:"source"`
	UserCost   float64        `json:"user_cost"`
	RewardInfo *reward.Result `json:"reward_info,omitempty"`
}

// StepResponse is the result of Step.
type StepResponse struct {
	Observation string   `json:"observation"`
	Reward      float64  `json:"reward"`
	Done        bool     `json:"done"`
	Info        StepInfo `json:"info"`
}

// Env is a single-episode state machine. It is not shared between trials;
// the mutex only guards accessors called from other goroutines.
type Env struct {
	cfg    Config
	logger logging.Logger

	mu      sync.Mutex
	store   *worldstate.Store
	current task.Task
	actions []task.Action
	status  Status
	result  *reward.Result
}

// New validates cfg and returns an idle Env.
func New(cfg Config) (*Env, error) {
	switch {
	case cfg.Loader == nil:
		return nil, errors.New("episode: loader is required")
	case cfg.Registry == nil:
		return nil, errors.New("episode: registry is required")
	case cfg.User == nil:
		return nil, errors.New("episode: user simulator is required")
	case cfg.Evaluator == nil:
		return nil, errors.New("episode: evaluator is required")
	case len(cfg.Tasks) == 0:
		return nil, errors.New("episode: no tasks")
	}
	return &Env{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
		store:  worldstate.NewStore(cfg.Loader),
	}, nil
}

// Reset starts an episode for the task at index with a pristine state.
func (e *Env) Reset(ctx context.Context, index int) (ResetResponse, error) {
	if index < 0 || index >= len(e.cfg.Tasks) {
		return ResetResponse{}, fmt.Errorf("task index %d out of range [0, %d)", index, len(e.cfg.Tasks))
	}
	t := e.cfg.Tasks[index]

	e.mu.Lock()
	_, err := e.store.Reset()
	if err == nil {
		e.current = t
		e.actions = nil
		e.result = nil
	}
	e.status = StatusIdle
	e.mu.Unlock()
	if err != nil {
		return ResetResponse{}, fmt.Errorf("reset task %s: %w", t.ID, err)
	}

	opening, err := e.cfg.User.Reset(ctx, t.Instruction)
	if err != nil {
		return ResetResponse{}, fmt.Errorf("user simulator reset: %w", err)
	}
	e.mu.Lock()
	e.status = StatusRunning
	e.mu.Unlock()
	e.logger.Debug("episode reset: domain=%s task=%s", e.cfg.Domain, t.ID)
	return ResetResponse{Observation: opening, Info: ResetInfo{Task: t, Source: SourceUser}}, nil
}

// ResetRandom resets to a task drawn uniformly from rng and reports its index.
// A nil rng draws from the process-wide source.
func (e *Env) ResetRandom(ctx context.Context, rng *rand.Rand) (ResetResponse, int, error) {
	var index int
	if rng == nil {
		index = rand.IntN(len(e.cfg.Tasks))
	} else {
		index = rng.IntN(len(e.cfg.Tasks))
	}
	resp, err := e.Reset(ctx, index)
	return resp, index, err
}

// Step applies one agent action.
//
// A respond action is forwarded to the user simulator and ends the episode
// when the reply carries the stop sentinel. A registered tool is dispatched
// and ends the episode when it is terminal, whether or not it failed. Any
// other name yields an "Unknown action" observation. Tool failures are shown
// to the agent and never returned as errors; the returned error is reserved
// for user simulator and reward failures.
func (e *Env) Step(ctx context.Context, action task.Action) (resp StepResponse, err error) {
	e.mu.Lock()
	switch e.status {
	case StatusIdle:
		e.mu.Unlock()
		return StepResponse{}, ErrNotReset
	case StatusTerminated:
		e.mu.Unlock()
		return StepResponse{}, ErrEpisodeTerminated
	}
	e.actions = append(e.actions, action)
	current := e.current
	data := e.store.Data()
	e.mu.Unlock()

	ctx, span := e.cfg.Tracer.StartSpan(ctx, observability.SpanEpisodeStep)
	defer func() {
		span.SetAttributes(observability.ActionAttrs(action.Name, resp.Done)...)
		observability.EndSpan(span, err)
	}()

	resp.Info = StepInfo{Task: current, Source: action.Name}
	switch e.cfg.Registry.Resolve(action.Name) {
	case toolregistry.KindRespond:
		reply, userErr := e.cfg.User.Step(ctx, action.Content())
		if userErr != nil {
			return resp, fmt.Errorf("user simulator step: %w", userErr)
		}
		resp.Observation = reply
		resp.Done = usersim.IsStop(reply)
	case toolregistry.KindTool:
		observation, dispatchErr := e.cfg.Registry.Dispatch(ctx, data, action)
		if dispatchErr != nil {
			e.logger.Debug("task %s: %v", current.ID, dispatchErr)
		}
		resp.Observation = observation
		resp.Done = e.cfg.Registry.IsTerminal(action.Name)
	default:
		unknown := &toolregistry.UnknownActionError{Name: action.Name}
		resp.Observation = unknown.Observation()
	}
	resp.Info.UserCost = e.cfg.User.Cost()

	if !resp.Done {
		return resp, nil
	}

	e.mu.Lock()
	e.status = StatusTerminated
	actions := append([]task.Action(nil), e.actions...)
	e.mu.Unlock()

	result, err := e.cfg.Evaluator.Evaluate(ctx, current, data, actions)
	if err != nil {
		return resp, err
	}
	e.mu.Lock()
	e.result = &result
	e.mu.Unlock()
	resp.Reward = result.Reward
	resp.Info.RewardInfo = &result
	return resp, nil
}

// Task returns the task of the current episode.
func (e *Env) Task() task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Actions returns a copy of the actions taken so far.
func (e *Env) Actions() []task.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]task.Action(nil), e.actions...)
}

// Status returns the lifecycle state.
func (e *Env) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Result returns the reward once the episode has terminated successfully.
func (e *Env) Result() (reward.Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return reward.Result{}, false
	}
	return *e.result, true
}

// Data returns the live world state.
func (e *Env) Data() worldstate.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Data()
}

// Domain returns the configured domain name.
func (e *Env) Domain() string { return e.cfg.Domain }

// Tasks returns the number of tasks the env can reset to.
func (e *Env) Tasks() int { return len(e.cfg.Tasks) }

// ToolDefinitions lists the tools offered to the policy.
func (e *Env) ToolDefinitions() []toolregistry.Definition {
	return e.cfg.Registry.Definitions()
}

// Wiki returns the domain policy text.
func (e *Env) Wiki() string { return e.cfg.Wiki }

// Rules returns the domain rules.
func (e *Env) Rules() []string { return append([]string(nil), e.cfg.Rules...) }
