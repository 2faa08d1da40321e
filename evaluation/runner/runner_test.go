package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"taubench/evaluation/metrics"
	"taubench/internal/agent"
	"taubench/internal/domains"
	"taubench/internal/domains/airline"
	"taubench/internal/episode"
	tauerrors "taubench/internal/errors"
	"taubench/internal/reward"
	"taubench/internal/task"
	"taubench/internal/usersim"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	domain domains.Domain
	tasks  []task.Task
	builds atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := airline.New()
	require.NoError(t, err)
	tasks, err := d.Tasks("")
	require.NoError(t, err)
	return &fixture{domain: d, tasks: tasks}
}

func (f *fixture) factory(ctx context.Context, taskIndex, _ int) (*episode.Env, error) {
	f.builds.Add(1)
	registry, err := f.domain.NewRegistry(nil)
	if err != nil {
		return nil, err
	}
	evaluator, err := reward.NewEvaluator(f.domain.Loader, registry)
	if err != nil {
		return nil, err
	}
	return episode.New(episode.Config{
		Domain:    f.domain.Name,
		Loader:    f.domain.Loader,
		Registry:  registry,
		Tasks:     f.tasks,
		Wiki:      f.domain.Wiki,
		Rules:     f.domain.Rules,
		User:      usersim.Confirming(f.tasks[taskIndex]),
		Evaluator: evaluator,
	})
}

type agentFunc func(ctx context.Context, env *episode.Env, taskIndex int) (agent.SolveResult, error)

func (f agentFunc) Solve(ctx context.Context, env *episode.Env, taskIndex int) (agent.SolveResult, error) {
	return f(ctx, env, taskIndex)
}

func baseConfig(t *testing.T) Config {
	return Config{
		EndIndex:       -1,
		NumTrials:      2,
		MaxConcurrency: 4,
		CheckpointPath: filepath.Join(t.TempDir(), "checkpoint.json"),
	}
}

func TestRunSolvesEveryTrialConcurrently(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	var progress bytes.Buffer

	r, err := New(len(f.tasks), f.factory, agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil),
		WithMetrics(m), WithProgress(&progress))
	require.NoError(t, err)

	cfg := baseConfig(t)
	report, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)

	want := 2 * len(f.tasks)
	require.Len(t, report.Results, want)
	assert.Equal(t, 1.0, report.AvgReward)
	assert.Equal(t, 2, report.NumTrials)
	assert.Equal(t, map[int]float64{1: 1, 2: 1}, report.PassK)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int32(want), f.builds.Load())

	for _, row := range report.Results {
		assert.False(t, row.Failed(), "%s", row.Key())
		assert.NotEmpty(t, row.Traj)
		assert.Contains(t, row.Info, metrics.InfoRewardInfo)
	}

	rows, err := NewCheckpoint(cfg.CheckpointPath).Load()
	require.NoError(t, err)
	assert.Len(t, rows, want)

	assert.Equal(t, float64(want), testutil.ToFloat64(m.trialsTotal.WithLabelValues(OutcomePassed)))
	assert.Equal(t, float64(want), testutil.ToFloat64(m.checkpointWrites.WithLabelValues("ok")))
	assert.Zero(t, testutil.ToFloat64(m.trialsActive))
	assert.Equal(t, want, bytes.Count(progress.Bytes(), []byte("✅")))
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig(t)
	cfg.NumTrials = 1

	earlier := metrics.EpisodeResult{TaskID: 0, Trial: 0, Reward: 0, Info: map[string]any{"note": "from an earlier run"}}
	require.NoError(t, NewCheckpoint(cfg.CheckpointPath).Append(earlier))

	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	r, err := New(len(f.tasks), f.factory, agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil), WithMetrics(m))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, report.Results, len(f.tasks))
	assert.Equal(t, int32(len(f.tasks)-1), f.builds.Load())
	assert.Equal(t, "from an earlier run", report.Results[0].Info["note"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.trialsSkipped))

	// A second run has nothing left to do.
	report, err = r.Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, report.Results, len(f.tasks))
	assert.Equal(t, int32(len(f.tasks)-1), f.builds.Load())
}

func TestFailingTrialsAreIsolated(t *testing.T) {
	f := newFixture(t)
	replay := agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil)
	flaky := agentFunc(func(ctx context.Context, env *episode.Env, taskIndex int) (agent.SolveResult, error) {
		switch taskIndex {
		case 1:
			panic("policy blew up")
		case 2:
			return agent.SolveResult{}, tauerrors.NewRewardError("2", reward.StageReplay, os.ErrNotExist)
		}
		return replay.Solve(ctx, env, taskIndex)
	})
	var progress bytes.Buffer
	r, err := New(len(f.tasks), f.factory, flaky, WithProgress(&progress))
	require.NoError(t, err)

	cfg := baseConfig(t)
	cfg.NumTrials = 1
	report, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, report.Results, len(f.tasks))

	for _, row := range report.Results {
		switch row.TaskID {
		case 1:
			assert.Zero(t, row.Reward)
			assert.Contains(t, row.Info[metrics.InfoError], "policy blew up")
			assert.Contains(t, row.Info[metrics.InfoTraceback], "goroutine")
		case 2:
			assert.Zero(t, row.Reward)
			assert.Contains(t, row.Info[metrics.InfoError], "replay")
			assert.Contains(t, row.Info[metrics.InfoTraceback], "*errors.RewardError")
		default:
			assert.Equal(t, 1.0, row.Reward, "%s", row.Key())
		}
	}
	assert.Equal(t, 2, bytes.Count(progress.Bytes(), []byte("❌")))
	assert.Contains(t, progress.String(), "error=")
}

func TestCheckpointFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	cfg := baseConfig(t)
	cfg.MaxConcurrency = 1

	// The first trial corrupts the checkpoint, so its own append fails.
	corrupting := agentFunc(func(ctx context.Context, env *episode.Env, taskIndex int) (agent.SolveResult, error) {
		if err := os.WriteFile(cfg.CheckpointPath, []byte("not json"), 0o644); err != nil {
			return agent.SolveResult{}, err
		}
		return agent.SolveResult{Reward: 1, Done: true}, nil
	})
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)
	r, err := New(len(f.tasks), f.factory, corrupting, WithMetrics(m))
	require.NoError(t, err)

	report, err := r.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, report)
	var cpErr *tauerrors.CheckpointError
	require.ErrorAs(t, err, &cpErr)
	assert.Equal(t, "decode", cpErr.Op)
	assert.Equal(t, tauerrors.SeverityFatal, tauerrors.SeverityOf(err))
	assert.Equal(t, int32(1), f.builds.Load(), "no trial may start after a checkpoint failure")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpointWrites.WithLabelValues("error")))
}

func TestRunStopsSchedulingWhenCancelled(t *testing.T) {
	f := newFixture(t)
	r, err := New(len(f.tasks), f.factory, agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.Run(ctx, baseConfig(t))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
	assert.Zero(t, f.builds.Load())
}

func TestPlan(t *testing.T) {
	f := newFixture(t)
	n := len(f.tasks)
	r, err := New(n, f.factory, agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil))
	require.NoError(t, err)

	units, err := r.Plan(Config{StartIndex: 1, EndIndex: 3, NumTrials: 2})
	require.NoError(t, err)
	assert.Equal(t, []Unit{{1, 0}, {2, 0}, {1, 1}, {2, 1}}, units)

	units, err = r.Plan(Config{EndIndex: -1, NumTrials: 1})
	require.NoError(t, err)
	assert.Len(t, units, n)

	units, err = r.Plan(Config{EndIndex: n + 10, NumTrials: 1})
	require.NoError(t, err)
	assert.Len(t, units, n)

	units, err = r.Plan(Config{TaskIDs: []int{4, 0}, NumTrials: 1})
	require.NoError(t, err)
	assert.Equal(t, []Unit{{4, 0}, {0, 0}}, units)

	_, err = r.Plan(Config{TaskIDs: []int{n}, NumTrials: 1})
	assert.ErrorContains(t, err, "out of range")
	_, err = r.Plan(Config{StartIndex: 3, EndIndex: 3, NumTrials: 1})
	assert.ErrorContains(t, err, "empty task range")
	_, err = r.Plan(Config{EndIndex: -1})
	assert.ErrorContains(t, err, "num_trials")
}

func TestRepeatedTaskIDsRunOnce(t *testing.T) {
	f := newFixture(t)
	r, err := New(len(f.tasks), f.factory, agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil))
	require.NoError(t, err)

	units, err := r.Plan(Config{TaskIDs: []int{2, 0, 2, 0}, NumTrials: 1})
	require.NoError(t, err)
	assert.Equal(t, []Unit{{2, 0}, {0, 0}}, units)

	cfg := baseConfig(t)
	cfg.TaskIDs = []int{0, 0}
	cfg.NumTrials = 1
	report, err := r.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, int32(1), f.builds.Load())
	assert.Equal(t, map[int]float64{1: 1}, report.PassK)
}

func TestPlanShuffleIsSeededPermutation(t *testing.T) {
	f := newFixture(t)
	r, err := New(len(f.tasks), f.factory, agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil))
	require.NoError(t, err)

	cfg := Config{EndIndex: -1, NumTrials: 3, Shuffle: true, Seed: 42}
	first, err := r.Plan(cfg)
	require.NoError(t, err)
	second, err := r.Plan(cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for trial := 0; trial < cfg.NumTrials; trial++ {
		var got []int
		for _, u := range first {
			if u.Trial == trial {
				got = append(got, u.TaskIndex)
			}
		}
		sort.Ints(got)
		want := make([]int, len(f.tasks))
		for i := range want {
			want[i] = i
		}
		assert.Equal(t, want, got)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	f := newFixture(t)
	ag := agent.NewPolicyAgent(agent.ReplayPolicy{}, 0, nil)
	_, err := New(0, f.factory, ag)
	assert.Error(t, err)
	_, err = New(1, nil, ag)
	assert.Error(t, err)
	_, err = New(1, f.factory, nil)
	assert.Error(t, err)
}

func TestClampConcurrency(t *testing.T) {
	assert.Equal(t, 1, clampConcurrency(0))
	assert.Equal(t, 1, clampConcurrency(-3))
	assert.Equal(t, 8, clampConcurrency(8))
	assert.Equal(t, MaxConcurrency, clampConcurrency(1000))
}

func TestConcurrentAppendsKeepEveryRow(t *testing.T) {
	cp := NewCheckpoint(filepath.Join(t.TempDir(), "cp.json"))
	const writers = 40

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, cp.Append(metrics.EpisodeResult{TaskID: i, Trial: 0, Reward: 1}))
		}()
	}
	wg.Wait()

	rows, err := cp.Load()
	require.NoError(t, err)
	require.Len(t, rows, writers)
	seen := map[int]bool{}
	for _, row := range rows {
		seen[row.TaskID] = true
	}
	assert.Len(t, seen, writers)
}

func TestCheckpointLoadMissingAndEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	rows, err := NewCheckpoint(path).Load()
	require.NoError(t, err)
	assert.Empty(t, rows)

	require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o644))
	rows, err = NewCheckpoint(path).Load()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestCheckpointName(t *testing.T) {
	at := time.Date(2024, 5, 20, 13, 4, 5, 0, time.UTC)
	cfg := Config{
		AgentStrategy: "tool-calling",
		Model:         "openai/gpt-4o",
		Temperature:   0.0,
		StartIndex:    0,
		EndIndex:      -1,
		UserModel:     "gpt-4o",
		UserStrategy:  "llm",
	}
	assert.Equal(t, "tool-calling-openai_gpt-4o-0_range_0--1_user-gpt-4o-llm_0520130405.json", CheckpointName(cfg, at))

	r, err := New(1, func(context.Context, int, int) (*episode.Env, error) { return nil, errors.New("unused") },
		agentFunc(func(context.Context, *episode.Env, int) (agent.SolveResult, error) { return agent.SolveResult{}, nil }),
		WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	cfg.LogDir = "results"
	assert.Equal(t, filepath.Join("results", CheckpointName(cfg, at)), r.CheckpointPath(cfg))
	cfg.CheckpointPath = "explicit.json"
	assert.Equal(t, "explicit.json", r.CheckpointPath(cfg))
}

func TestMustNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)
	second.ObserveTrial(OutcomePassed, time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(first.trialsTotal.WithLabelValues(OutcomePassed)))

	var nilMetrics *Metrics
	nilMetrics.ObserveTrial(OutcomeFailed, time.Second)
	nilMetrics.AddSkipped(3)
	nilMetrics.ObserveCheckpointWrite(fmt.Errorf("x"))
}
