// Package runner executes (task, trial) pairs on a bounded worker pool, each
// against its own environment, and appends every finished trial to a
// checkpoint so an interrupted batch can resume.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"taubench/evaluation/metrics"
	"taubench/internal/agent"
	"taubench/internal/async"
	"taubench/internal/episode"
	tauerrors "taubench/internal/errors"
	"taubench/internal/logging"
	"taubench/internal/observability"
	"taubench/internal/reward"
	jsonx "taubench/internal/shared/json"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// MaxConcurrency caps the worker pool.
const MaxConcurrency = 64

// Config selects the trials of a batch and how they run.
type Config struct {
	// AgentStrategy, Model, Temperature, UserModel and UserStrategy only name
	// the checkpoint file.
	AgentStrategy string
	Model         string
	Temperature   float64
	UserModel     string
	UserStrategy  string

	// StartIndex and EndIndex bound the task range [start, end). An EndIndex
	// of -1 runs to the last task. TaskIDs, when set, replaces the range.
	StartIndex int
	EndIndex   int
	TaskIDs    []int

	NumTrials int
	// Shuffle permutes the task order of every trial, seeded by Seed and the
	// trial index.
	Shuffle bool
	Seed    uint64

	MaxConcurrency int
	// StartRate limits how many trials start per second. Zero is unlimited.
	StartRate float64

	LogDir string
	// CheckpointPath overrides the name derived from the fields above.
	CheckpointPath string
}

// EnvFactory builds the isolated environment of one trial. Each call must
// return an environment that shares no mutable state with any other.
type EnvFactory func(ctx context.Context, taskIndex, trial int) (*episode.Env, error)

// Unit is one planned (task, trial) pair.
type Unit struct {
	TaskIndex int
	Trial     int
}

// Runner executes batches.
type Runner struct {
	numTasks int
	newEnv   EnvFactory
	agent    agent.Agent

	logger  logging.Logger
	metrics *Metrics
	tracer  *observability.TracerProvider
	out     io.Writer
	outMu   sync.Mutex
	now     func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) { r.logger = logging.OrNop(logger) }
}

// WithMetrics reports batch progress to m.
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithTracer records a span per batch and per trial.
func WithTracer(tp *observability.TracerProvider) Option {
	return func(r *Runner) { r.tracer = tp }
}

// WithProgress writes one line per finished trial to w.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithClock overrides the clock used to name checkpoints.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New builds a runner over numTasks tasks.
func New(numTasks int, newEnv EnvFactory, ag agent.Agent, opts ...Option) (*Runner, error) {
	if numTasks <= 0 {
		return nil, errors.New("runner: no tasks")
	}
	if newEnv == nil {
		return nil, errors.New("runner: env factory is required")
	}
	if ag == nil {
		return nil, errors.New("runner: agent is required")
	}
	r := &Runner{
		numTasks: numTasks,
		newEnv:   newEnv,
		agent:    ag,
		logger:   logging.Nop(),
		tracer:   observability.NoopTracerProvider(),
		out:      io.Discard,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func clampConcurrency(n int) int {
	if n <= 0 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// Plan lists the (task, trial) pairs cfg selects, trial by trial. Repeated
// task ids are planned once.
func (r *Runner) Plan(cfg Config) ([]Unit, error) {
	if cfg.NumTrials <= 0 {
		return nil, fmt.Errorf("num_trials must be positive, got %d", cfg.NumTrials)
	}
	var indices []int
	if len(cfg.TaskIDs) > 0 {
		seen := make(map[int]struct{}, len(cfg.TaskIDs))
		for _, id := range cfg.TaskIDs {
			if id < 0 || id >= r.numTasks {
				return nil, fmt.Errorf("task id %d out of range [0, %d)", id, r.numTasks)
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			indices = append(indices, id)
		}
	} else {
		end := cfg.EndIndex
		if end < 0 || end > r.numTasks {
			end = r.numTasks
		}
		if cfg.StartIndex < 0 || cfg.StartIndex >= end {
			return nil, fmt.Errorf("empty task range [%d, %d) over %d tasks", cfg.StartIndex, end, r.numTasks)
		}
		for i := cfg.StartIndex; i < end; i++ {
			indices = append(indices, i)
		}
	}

	units := make([]Unit, 0, len(indices)*cfg.NumTrials)
	for trial := 0; trial < cfg.NumTrials; trial++ {
		order := append([]int(nil), indices...)
		if cfg.Shuffle {
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(trial)))
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		for _, idx := range order {
			units = append(units, Unit{TaskIndex: idx, Trial: trial})
		}
	}
	return units, nil
}

// CheckpointPath returns where a batch with cfg records its results.
func (r *Runner) CheckpointPath(cfg Config) string {
	if cfg.CheckpointPath != "" {
		return cfg.CheckpointPath
	}
	return filepath.Join(cfg.LogDir, CheckpointName(cfg, r.now()))
}

// Run executes every planned trial missing from the checkpoint and returns
// the report over all checkpointed rows.
//
// A failing trial becomes a zero-reward row and never stops the batch. A
// checkpoint failure stops scheduling and is returned as
// *errors.CheckpointError. When ctx is cancelled no further trials start,
// in-flight trials record whatever they end with, and the partial report is
// returned together with the context error.
func (r *Runner) Run(ctx context.Context, cfg Config) (report *metrics.Report, err error) {
	units, err := r.Plan(cfg)
	if err != nil {
		return nil, err
	}
	cp := NewCheckpoint(r.CheckpointPath(cfg))
	done, err := cp.Load()
	if err != nil {
		return nil, err
	}
	pending := Pending(units, done)
	r.metrics.AddSkipped(len(units) - len(pending))

	runID := uuid.NewString()
	ctx = observability.ContextWithRunID(ctx, runID)
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanBatchRun)
	defer func() { observability.EndSpan(span, err) }()

	workers := clampConcurrency(cfg.MaxConcurrency)
	r.logger.Info("run %s: %d trials planned, %d resumed from %s, %d workers",
		runID, len(units), len(units)-len(pending), cp.Path(), workers)

	var limiter *rate.Limiter
	if cfg.StartRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.StartRate), 1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, unit := range pending {
		if gctx.Err() != nil {
			break
		}
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			// g.Go may have waited for a slot while a sibling failed.
			if gctx.Err() != nil {
				return nil
			}
			result := r.runTrial(ctx, unit)
			appendErr := cp.Append(result)
			r.metrics.ObserveCheckpointWrite(appendErr)
			if appendErr != nil {
				r.logger.Error("run %s: %v", runID, appendErr)
				return appendErr
			}
			r.progress(result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rows, err := cp.Load()
	if err != nil {
		return nil, err
	}
	report = metrics.BuildReport(rows)
	report.RunID = runID
	r.logger.Info("run %s: %d results, average reward %.4f", runID, len(rows), report.AvgReward)
	return report, ctx.Err()
}

// Pending drops the units whose (task, trial) pair already has a row.
func Pending(units []Unit, done []metrics.EpisodeResult) []Unit {
	seen := make(map[metrics.Key]struct{}, len(done))
	for _, row := range done {
		seen[row.Key()] = struct{}{}
	}
	out := make([]Unit, 0, len(units))
	for _, u := range units {
		if _, ok := seen[metrics.Key{TaskID: u.TaskIndex, Trial: u.Trial}]; ok {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (r *Runner) runTrial(ctx context.Context, unit Unit) metrics.EpisodeResult {
	start := time.Now()
	r.metrics.IncActiveTrials()
	defer r.metrics.DecActiveTrials()

	ctx = observability.ContextWithTrial(ctx, strconv.Itoa(unit.TaskIndex), unit.Trial)
	ctx, span := r.tracer.StartSpan(ctx, observability.SpanTrial)

	var (
		solved agent.SolveResult
		env    *episode.Env
	)
	name := fmt.Sprintf("task %d trial %d", unit.TaskIndex, unit.Trial)
	err := async.Run(r.logger, name, func() error {
		var err error
		env, err = r.newEnv(ctx, unit.TaskIndex, unit.Trial)
		if err != nil {
			return fmt.Errorf("build environment: %w", err)
		}
		solved, err = r.agent.Solve(ctx, env, unit.TaskIndex)
		return err
	})

	result := metrics.EpisodeResult{TaskID: unit.TaskIndex, Trial: unit.Trial, Traj: solved.Messages}
	if err == nil {
		result.Reward = solved.Reward
		result.Info, err = infoMap(map[string]any{
			metrics.InfoTask:       env.Task(),
			metrics.InfoRewardInfo: solved.RewardInfo,
			metrics.InfoUserCost:   solved.TotalCost,
			metrics.InfoSteps:      solved.Steps,
			metrics.InfoDone:       solved.Done,
		})
	}
	if err != nil {
		r.logger.Warn("%s failed: %v", name, err)
		result.Reward = 0
		result.Info = map[string]any{
			metrics.InfoError:     err.Error(),
			metrics.InfoTraceback: tauerrors.Traceback(err),
		}
	}

	outcome := OutcomeFailed
	switch {
	case err != nil:
		outcome = OutcomeErrored
	case reward.Succeeded(result.Reward):
		outcome = OutcomePassed
	}
	r.metrics.ObserveTrial(outcome, time.Since(start))
	span.SetAttributes(observability.RewardAttrs(result.Reward)...)
	observability.EndSpan(span, err)
	return result
}

// infoMap flattens fields to plain JSON values so rows built in memory and
// rows read back from the checkpoint look the same.
func infoMap(fields map[string]any) (map[string]any, error) {
	data, err := jsonx.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode trial info: %w", err)
	}
	var out map[string]any
	if err := jsonx.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode trial info: %w", err)
	}
	return out, nil
}

var (
	passLabel = color.New(color.FgGreen).SprintFunc()
	failLabel = color.New(color.FgRed).SprintFunc()
)

func (r *Runner) progress(result metrics.EpisodeResult) {
	mark := passLabel("✅")
	if !reward.Succeeded(result.Reward) {
		mark = failLabel("❌")
	}
	line := fmt.Sprintf("%s task_id=%d trial=%d reward=%s", mark, result.TaskID, result.Trial,
		strconv.FormatFloat(result.Reward, 'f', -1, 64))
	if msg, ok := result.Info[metrics.InfoError]; ok {
		line += fmt.Sprintf(" error=%q", fmt.Sprint(msg))
	}

	r.outMu.Lock()
	defer r.outMu.Unlock()
	fmt.Fprintln(r.out, line)
}
