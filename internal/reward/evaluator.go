// Package reward scores a finished episode against its task, either by
// matching expected outputs in the agent's responses or by replaying the
// ground-truth actions and comparing world-state fingerprints.
package reward

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taubench/internal/diff"
	tauerrors "taubench/internal/errors"
	"taubench/internal/logging"
	"taubench/internal/observability"
	"taubench/internal/task"
	"taubench/internal/toolregistry"
	"taubench/internal/worldstate"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of memoized ground-truth states.
const DefaultCacheSize = 256

// Stages reported in RewardError.
const (
	StageLoad   = "load"
	StageReplay = "replay"
	StageHash   = "hash"
)

// groundTruth is the replayed end state of a task.
type groundTruth struct {
	digest    worldstate.Digest
	canonical worldstate.Value
}

// Evaluator computes rewards. It is safe for concurrent use; one evaluator
// serves every episode of a domain.
type Evaluator struct {
	loader    worldstate.Loader
	registry  *toolregistry.Registry
	cache     *lru.Cache[string, groundTruth]
	differ    *diff.Generator
	stateDiff bool
	tracer    *observability.TracerProvider
	logger    logging.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCacheSize sets the ground-truth memo size. Zero disables memoization.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		if n <= 0 {
			e.cache = nil
			return
		}
		cache, err := lru.New[string, groundTruth](n)
		if err == nil {
			e.cache = cache
		}
	}
}

// WithStateDiff toggles the diff attached to failed action rewards.
func WithStateDiff(enabled bool) Option {
	return func(e *Evaluator) { e.stateDiff = enabled }
}

// WithTracer records a span per reward computation.
func WithTracer(tp *observability.TracerProvider) Option {
	return func(e *Evaluator) { e.tracer = tp }
}

// WithLogger sets the evaluator logger.
func WithLogger(logger logging.Logger) Option {
	return func(e *Evaluator) { e.logger = logging.OrNop(logger) }
}

// NewEvaluator builds an evaluator that replays ground truths on documents
// from loader using the tools in registry.
func NewEvaluator(loader worldstate.Loader, registry *toolregistry.Registry, opts ...Option) (*Evaluator, error) {
	if loader == nil {
		return nil, errors.New("reward: loader is required")
	}
	if registry == nil {
		return nil, errors.New("reward: registry is required")
	}
	cache, err := lru.New[string, groundTruth](DefaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("reward: create cache: %w", err)
	}
	e := &Evaluator{
		loader:    loader,
		registry:  registry,
		cache:     cache,
		differ:    diff.NewGenerator(3, false),
		stateDiff: true,
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate scores an episode of t that ended with final state data after the
// agent took actions.
//
// A task with expected outputs is scored by output matching only; any other
// task is scored by replaying its ground truth. A replay failure is returned
// as *errors.RewardError and never turned into a zero reward.
func (e *Evaluator) Evaluate(ctx context.Context, t task.Task, data worldstate.Document, actions []task.Action) (res Result, err error) {
	if e.tracer != nil {
		spanCtx, s := e.tracer.StartSpan(ctx, observability.SpanReward)
		ctx = spanCtx
		defer func() {
			if err == nil {
				s.SetAttributes(observability.RewardAttrs(res.Reward)...)
			}
			observability.EndSpan(s, err)
		}()
	}

	if t.ScoresOutputs() {
		return e.scoreOutputs(t, actions), nil
	}
	return e.scoreActions(ctx, t, data)
}

func (e *Evaluator) scoreOutputs(t task.Task, actions []task.Action) Result {
	info := &OutputInfo{ROutputs: 1, Outputs: make(map[string]bool, len(t.Outputs))}
	for _, expected := range t.Outputs {
		found := outputFound(expected, actions)
		info.Outputs[expected] = found
		if !found {
			info.ROutputs = 0
		}
	}
	return Result{Reward: info.ROutputs, Info: info, Actions: t.Actions}
}

// outputFound reports whether some respond action mentions expected. The
// comparison ignores case, and commas are removed from the response first so
// "1,234" matches "1234".
func outputFound(expected string, actions []task.Action) bool {
	needle := strings.ToLower(expected)
	for _, action := range actions {
		if !action.IsRespond() {
			continue
		}
		content := strings.ReplaceAll(strings.ToLower(action.Content()), ",", "")
		if strings.Contains(content, needle) {
			return true
		}
	}
	return false
}

func (e *Evaluator) scoreActions(ctx context.Context, t task.Task, data worldstate.Document) (Result, error) {
	actual, err := worldstate.Canonicalize(data)
	if err != nil {
		return Result{}, tauerrors.NewRewardError(t.ID, StageHash, err)
	}
	gt, err := e.groundTruth(ctx, t)
	if err != nil {
		return Result{}, err
	}

	info := &ActionInfo{GTDataHash: gt.digest.String()}
	if actual.Digest() == gt.digest {
		info.RActions = 1
	} else if e.stateDiff {
		info.StateDiff = e.differ.Unified(gt.canonical.Indent("  "), actual.Indent("  "), "ground_truth", "agent").Unified
	}
	return Result{Reward: info.RActions, Info: info, Actions: t.Actions}, nil
}

// GroundTruthHash replays the ground truth of t and returns its fingerprint.
func (e *Evaluator) GroundTruthHash(ctx context.Context, t task.Task) (worldstate.Digest, error) {
	gt, err := e.groundTruth(ctx, t)
	if err != nil {
		return "", err
	}
	return gt.digest, nil
}

func (e *Evaluator) groundTruth(ctx context.Context, t task.Task) (groundTruth, error) {
	key, err := cacheKey(t)
	if err != nil {
		return groundTruth{}, tauerrors.NewRewardError(t.ID, StageHash, err)
	}
	if e.cache != nil {
		if gt, ok := e.cache.Get(key); ok {
			return gt, nil
		}
	}

	gt, err := e.replay(ctx, t)
	if err != nil {
		return groundTruth{}, err
	}
	if e.cache != nil {
		e.cache.Add(key, gt)
	}
	return gt, nil
}

func (e *Evaluator) replay(ctx context.Context, t task.Task) (groundTruth, error) {
	data, err := e.loader()
	if err != nil {
		return groundTruth{}, tauerrors.NewRewardError(t.ID, StageLoad, err)
	}
	for _, action := range t.Actions {
		if action.IsRespond() || e.registry.IsTerminal(action.Name) {
			continue
		}
		if _, err := e.registry.Dispatch(ctx, data, action); err != nil {
			rewardErr := tauerrors.NewRewardError(t.ID, StageReplay, err)
			rewardErr.Action = action.Name
			e.logger.Error("ground truth replay of task %s failed at %s: %v", t.ID, action.Name, err)
			return groundTruth{}, rewardErr
		}
	}
	canonical, err := worldstate.Canonicalize(data)
	if err != nil {
		return groundTruth{}, tauerrors.NewRewardError(t.ID, StageHash, err)
	}
	return groundTruth{digest: canonical.Digest(), canonical: canonical}, nil
}

// cacheKey ties a memoized ground truth to the task id and its exact action
// list, so two fixtures reusing an id never share an entry.
func cacheKey(t task.Task) (string, error) {
	actions := make([]any, len(t.Actions))
	for i, action := range t.Actions {
		actions[i] = map[string]any{"name": action.Name, "kwargs": action.Kwargs}
	}
	digest, err := worldstate.Hash(actions)
	if err != nil {
		return "", err
	}
	return t.ID + "@" + digest.String(), nil
}
