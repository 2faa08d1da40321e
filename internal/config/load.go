package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. TAU_AGENT_MODEL.
const EnvPrefix = "TAU"

// DefaultConfigName is looked up in the working directory when no file is
// given explicitly.
const DefaultConfigName = "tau"

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"domain":          "domain",
	"task-split":      "task_split",
	"tasks-file":      "tasks_file",
	"agent":           "agent.strategy",
	"model":           "agent.model",
	"temperature":     "agent.temperature",
	"max-steps":       "agent.max_steps",
	"user":            "user.strategy",
	"user-model":      "user.model",
	"start-index":     "start_index",
	"end-index":       "end_index",
	"task-ids":        "task_ids",
	"num-trials":      "num_trials",
	"shuffle":         "shuffle",
	"seed":            "seed",
	"max-concurrency": "max_concurrency",
	"start-rate":      "start_rate",
	"log-dir":         "log_dir",
	"checkpoint":      "checkpoint",
	"state-diff":      "reward.state_diff",
	"log-level":       "observability.logging.level",
	"log-format":      "observability.logging.format",
	"metrics":         "observability.metrics.enabled",
	"metrics-addr":    "observability.metrics.addr",
	"trace":           "observability.tracing.enabled",
}

// RegisterFlags adds the run flags to fs. Their defaults are only used for
// help output; unset flags never override the file or the environment.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("domain", d.Domain, "Domain to evaluate (airline, retail)")
	fs.String("task-split", d.TaskSplit, "Task split of the domain")
	fs.String("tasks-file", "", "JSON or YAML task fixtures replacing the built-in split")
	fs.String("agent", d.Agent.Strategy, "Agent strategy")
	fs.String("model", d.Agent.Model, "Agent model name, recorded in the checkpoint name")
	fs.Float64("temperature", d.Agent.Temperature, "Agent temperature, recorded in the checkpoint name")
	fs.Int("max-steps", d.Agent.MaxSteps, "Maximum agent actions per episode")
	fs.String("user", d.User.Strategy, "User simulator strategy (confirming, human)")
	fs.String("user-model", d.User.Model, "User model name, recorded in the checkpoint name")
	fs.Int("start-index", d.StartIndex, "First task index")
	fs.Int("end-index", d.EndIndex, "Task index to stop before; -1 runs to the last task")
	fs.IntSlice("task-ids", nil, "Explicit task indices, overriding the range")
	fs.Int("num-trials", d.NumTrials, "Trials per task")
	fs.Bool("shuffle", d.Shuffle, "Shuffle the task order of every trial")
	fs.Uint64("seed", d.Seed, "Shuffle seed")
	fs.Int("max-concurrency", d.MaxConcurrency, "Trials run in parallel")
	fs.Float64("start-rate", d.StartRate, "Maximum trial starts per second; 0 is unlimited")
	fs.String("log-dir", d.LogDir, "Directory for checkpoints and reports")
	fs.String("checkpoint", "", "Explicit checkpoint path, used to resume a batch")
	fs.Bool("state-diff", d.Reward.StateDiff, "Attach a state diff to failed action rewards")
	fs.String("log-level", d.Observability.Logging.Level, "Log level (debug, info, warn, error)")
	fs.String("log-format", d.Observability.Logging.Format, "Log format (text, json)")
	fs.Bool("metrics", d.Observability.Metrics.Enabled, "Serve Prometheus metrics while the batch runs")
	fs.String("metrics-addr", d.Observability.Metrics.Addr, "Address of the metrics endpoint")
	fs.Bool("trace", d.Observability.Tracing.Enabled, "Export OpenTelemetry traces")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// File is an explicit config file. When empty, tau.yaml (or .json) in
	// the working directory is used if present.
	File string
	// Flags holds parsed flags registered with RegisterFlags.
	Flags *pflag.FlagSet
	// SearchPaths overrides where the default config file is looked up.
	SearchPaths []string
}

// Load layers defaults, the config file, the environment and flags, then
// validates the result.
func Load(opts LoadOptions) (RunConfig, Metadata, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return RunConfig{}, Metadata{}, fmt.Errorf("read config %s: %w", opts.File, err)
		}
	} else {
		v.SetConfigName(DefaultConfigName)
		paths := opts.SearchPaths
		if len(paths) == 0 {
			paths = []string{"."}
		}
		for _, p := range paths {
			v.AddConfigPath(p)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return RunConfig{}, Metadata{}, fmt.Errorf("read config: %w", err)
			}
		}
	}
	meta.file = v.ConfigFileUsed()

	if opts.Flags != nil {
		for name, key := range flagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return RunConfig{}, Metadata{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfg := RunConfig{}
	if err := v.Unmarshal(&cfg); err != nil {
		return RunConfig{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, Metadata{}, fmt.Errorf("invalid config: %w", err)
	}

	for _, key := range v.AllKeys() {
		meta.sources[key] = sourceOf(v, key, opts.Flags)
	}
	return cfg, meta, nil
}

func sourceOf(v *viper.Viper, key string, flags *pflag.FlagSet) ValueSource {
	if flags != nil {
		for name, k := range flagKeys {
			if k == key {
				if f := flags.Lookup(name); f != nil && f.Changed {
					return SourceFlag
				}
			}
		}
	}
	env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	if _, ok := os.LookupEnv(env); ok {
		return SourceEnv
	}
	if v.InConfig(key) {
		return SourceFile
	}
	return SourceDefault
}

func setDefaults(v *viper.Viper, d RunConfig) {
	v.SetDefault("domain", d.Domain)
	v.SetDefault("task_split", d.TaskSplit)
	v.SetDefault("tasks_file", d.TasksFile)
	v.SetDefault("agent.strategy", d.Agent.Strategy)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.temperature", d.Agent.Temperature)
	v.SetDefault("agent.max_steps", d.Agent.MaxSteps)
	v.SetDefault("user.strategy", d.User.Strategy)
	v.SetDefault("user.model", d.User.Model)
	v.SetDefault("start_index", d.StartIndex)
	v.SetDefault("end_index", d.EndIndex)
	v.SetDefault("task_ids", []int{})
	v.SetDefault("num_trials", d.NumTrials)
	v.SetDefault("shuffle", d.Shuffle)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("max_concurrency", d.MaxConcurrency)
	v.SetDefault("start_rate", d.StartRate)
	v.SetDefault("log_dir", d.LogDir)
	v.SetDefault("checkpoint", d.Checkpoint)
	v.SetDefault("reward.cache_size", d.Reward.CacheSize)
	v.SetDefault("reward.state_diff", d.Reward.StateDiff)

	o := d.Observability
	v.SetDefault("observability.logging.level", o.Logging.Level)
	v.SetDefault("observability.logging.format", o.Logging.Format)
	v.SetDefault("observability.metrics.enabled", o.Metrics.Enabled)
	v.SetDefault("observability.metrics.addr", o.Metrics.Addr)
	v.SetDefault("observability.tracing.enabled", o.Tracing.Enabled)
	v.SetDefault("observability.tracing.exporter", o.Tracing.Exporter)
	v.SetDefault("observability.tracing.otlp_endpoint", o.Tracing.OTLPEndpoint)
	v.SetDefault("observability.tracing.zipkin_endpoint", o.Tracing.ZipkinEndpoint)
	v.SetDefault("observability.tracing.sample_rate", o.Tracing.SampleRate)
	v.SetDefault("observability.tracing.service_name", o.Tracing.ServiceName)
	v.SetDefault("observability.tracing.service_version", o.Tracing.ServiceVersion)
}
