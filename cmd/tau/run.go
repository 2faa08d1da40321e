package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"taubench/evaluation/metrics"
	"taubench/evaluation/runner"
	"taubench/internal/agent"
	"taubench/internal/async"
	"taubench/internal/config"
	"taubench/internal/episode"
	"taubench/internal/logging"
	"taubench/internal/observability"
	"taubench/internal/reward"
	"taubench/internal/task"
	"taubench/internal/usersim"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of (task, trial) episodes and write the report",
		Example: `  tau run --domain retail --num-trials 4 --max-concurrency 8
  tau run --checkpoint results/previous.json   # resume an interrupted batch
  TAU_AGENT_MODEL=oracle tau run --task-ids 0,3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("config")
			cfg, meta, err := config.Load(config.LoadOptions{File: file, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if meta.File() != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", gray("config:"), meta.File())
			}
			b := batch{cfg: cfg, in: cmd.InOrStdin(), out: cmd.OutOrStdout()}
			report, reportPath, err := b.run(ctx)
			if report != nil {
				fmt.Fprint(cmd.OutOrStdout(), report.Format())
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", cyan("📄 Report:"), reportPath)
			}
			return err
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// batch wires one run of the configured domain.
type batch struct {
	cfg config.RunConfig
	in  io.Reader
	out io.Writer
}

func (b batch) run(ctx context.Context) (*metrics.Report, string, error) {
	cfg := b.cfg
	obsLogger := cfg.Observability.Logger()
	logger := logging.FromObservabilityWithComponent(obsLogger, "runner")

	tracer, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return nil, "", fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("flush traces: %v", err)
		}
	}()

	reg := prometheus.NewRegistry()
	runMetrics := runner.MustNewMetrics(reg)
	if cfg.Observability.Metrics.Enabled {
		stopMetrics := serveMetrics(cfg.Observability.Metrics.Addr, reg, logger)
		defer stopMetrics()
	}

	d, err := newCatalog().Get(cfg.Domain)
	if err != nil {
		return nil, "", err
	}
	var tasks []task.Task
	if cfg.TasksFile != "" {
		tasks, err = task.LoadFile(cfg.TasksFile)
	} else {
		tasks, err = d.Tasks(cfg.TaskSplit)
	}
	if err != nil {
		return nil, "", err
	}

	evalRegistry, err := d.NewRegistry(logging.FromObservabilityWithComponent(obsLogger, "reward"))
	if err != nil {
		return nil, "", err
	}
	evaluator, err := reward.NewEvaluator(d.Loader, evalRegistry,
		reward.WithCacheSize(cfg.Reward.CacheSize),
		reward.WithStateDiff(cfg.Reward.StateDiff),
		reward.WithTracer(tracer),
		reward.WithLogger(logging.FromObservabilityWithComponent(obsLogger, "reward")),
	)
	if err != nil {
		return nil, "", err
	}

	newEnv := func(ctx context.Context, taskIndex, trial int) (*episode.Env, error) {
		registry, err := d.NewRegistry(logging.FromObservabilityWithComponent(obsLogger, "tools"))
		if err != nil {
			return nil, err
		}
		return episode.New(episode.Config{
			Domain:    d.Name,
			Loader:    d.Loader,
			Registry:  registry,
			Tasks:     tasks,
			Wiki:      d.Wiki,
			Rules:     d.Rules,
			User:      b.userFor(tasks[taskIndex]),
			Evaluator: evaluator,
			Tracer:    tracer,
			Logger:    logging.FromObservabilityWithComponent(obsLogger, "episode"),
		})
	}
	solver := agent.NewPolicyAgent(agent.ReplayPolicy{}, cfg.Agent.MaxSteps,
		logging.FromObservabilityWithComponent(obsLogger, "agent"))

	r, err := runner.New(len(tasks), newEnv, solver,
		runner.WithLogger(logger),
		runner.WithMetrics(runMetrics),
		runner.WithTracer(tracer),
		runner.WithProgress(b.out),
	)
	if err != nil {
		return nil, "", err
	}

	rcfg := runnerConfig(cfg)
	rcfg.CheckpointPath = r.CheckpointPath(rcfg)
	report, runErr := r.Run(ctx, rcfg)
	if report == nil {
		return nil, "", runErr
	}

	reportPath := reportPathFor(rcfg.CheckpointPath)
	if err := metrics.WriteReport(reportPath, report); err != nil {
		return report, "", errors.Join(runErr, err)
	}
	return report, reportPath, runErr
}

func (b batch) userFor(t task.Task) usersim.Simulator {
	if b.cfg.User.Strategy == config.UserHuman {
		return usersim.NewHuman(b.in, b.out)
	}
	return usersim.Confirming(t)
}

func runnerConfig(cfg config.RunConfig) runner.Config {
	return runner.Config{
		AgentStrategy:  cfg.Agent.Strategy,
		Model:          cfg.Agent.Model,
		Temperature:    cfg.Agent.Temperature,
		UserModel:      cfg.User.Model,
		UserStrategy:   cfg.User.Strategy,
		StartIndex:     cfg.StartIndex,
		EndIndex:       cfg.EndIndex,
		TaskIDs:        cfg.TaskIDs,
		NumTrials:      cfg.NumTrials,
		Shuffle:        cfg.Shuffle,
		Seed:           cfg.Seed,
		MaxConcurrency: cfg.MaxConcurrency,
		StartRate:      cfg.StartRate,
		LogDir:         cfg.LogDir,
		CheckpointPath: cfg.Checkpoint,
	}
}

// reportPathFor places the report next to its checkpoint.
func reportPathFor(checkpoint string) string {
	return strings.TrimSuffix(checkpoint, filepath.Ext(checkpoint)) + "_report.json"
}

// serveMetrics exposes reg on addr until the returned stop function runs.
func serveMetrics(addr string, reg *prometheus.Registry, logger logging.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	async.Go(logger, "metrics-server", func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	})
	logger.Info("serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
