// Package config loads the settings of a batch run. Values are layered as
// defaults, then the config file, then TAU_* environment variables, then
// command-line flags.
package config

import (
	"fmt"
	"time"

	"taubench/internal/observability"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault ValueSource = "default"
	SourceFile    ValueSource = "file"
	SourceEnv     ValueSource = "environment"
	SourceFlag    ValueSource = "flag"
)

// Agent strategies.
const (
	AgentReplay = "replay"
)

// User simulator strategies.
const (
	UserConfirming = "confirming"
	UserHuman      = "human"
)

// MaxConcurrency bounds max_concurrency.
const MaxConcurrency = 64

// RunConfig is everything a batch needs.
type RunConfig struct {
	Domain    string `json:"domain" yaml:"domain" mapstructure:"domain"`
	TaskSplit string `json:"task_split" yaml:"task_split" mapstructure:"task_split"`
	// TasksFile replaces the domain's built-in fixtures with a JSON or YAML
	// file.
	TasksFile string `json:"tasks_file" yaml:"tasks_file" mapstructure:"tasks_file"`

	Agent AgentConfig `json:"agent" yaml:"agent" mapstructure:"agent"`
	User  UserConfig  `json:"user" yaml:"user" mapstructure:"user"`

	StartIndex int   `json:"start_index" yaml:"start_index" mapstructure:"start_index"`
	EndIndex   int   `json:"end_index" yaml:"end_index" mapstructure:"end_index"` // -1 runs to the last task
	TaskIDs    []int `json:"task_ids" yaml:"task_ids" mapstructure:"task_ids"`
	NumTrials  int   `json:"num_trials" yaml:"num_trials" mapstructure:"num_trials"`

	Shuffle bool   `json:"shuffle" yaml:"shuffle" mapstructure:"shuffle"`
	Seed    uint64 `json:"seed" yaml:"seed" mapstructure:"seed"`

	MaxConcurrency int     `json:"max_concurrency" yaml:"max_concurrency" mapstructure:"max_concurrency"`
	StartRate      float64 `json:"start_rate" yaml:"start_rate" mapstructure:"start_rate"`

	LogDir     string `json:"log_dir" yaml:"log_dir" mapstructure:"log_dir"`
	Checkpoint string `json:"checkpoint" yaml:"checkpoint" mapstructure:"checkpoint"`

	Reward        RewardConfig         `json:"reward" yaml:"reward" mapstructure:"reward"`
	Observability observability.Config `json:"observability" yaml:"observability" mapstructure:"observability"`
}

// AgentConfig selects the policy under evaluation.
type AgentConfig struct {
	Strategy    string  `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	Model       string  `json:"model" yaml:"model" mapstructure:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxSteps    int     `json:"max_steps" yaml:"max_steps" mapstructure:"max_steps"`
}

// UserConfig selects the user simulator.
type UserConfig struct {
	Strategy string `json:"strategy" yaml:"strategy" mapstructure:"strategy"`
	Model    string `json:"model" yaml:"model" mapstructure:"model"`
}

// RewardConfig tunes the reward evaluator.
type RewardConfig struct {
	CacheSize int  `json:"cache_size" yaml:"cache_size" mapstructure:"cache_size"`
	StateDiff bool `json:"state_diff" yaml:"state_diff" mapstructure:"state_diff"`
}

// Default returns the configuration used when nothing else is set.
func Default() RunConfig {
	return RunConfig{
		Domain:    "airline",
		TaskSplit: "test",
		Agent: AgentConfig{
			Strategy: AgentReplay,
			Model:    "ground-truth",
			MaxSteps: 30,
		},
		User: UserConfig{
			Strategy: UserConfirming,
			Model:    "scripted",
		},
		EndIndex:       -1,
		NumTrials:      1,
		MaxConcurrency: 1,
		LogDir:         "results",
		Reward: RewardConfig{
			CacheSize: 256,
			StateDiff: true,
		},
		Observability: observability.DefaultConfig(),
	}
}

// Validate normalises c and reports the first invalid setting.
// max_concurrency is clamped to [1, MaxConcurrency].
func (c *RunConfig) Validate() error {
	if c.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	switch c.Agent.Strategy {
	case AgentReplay:
	default:
		return fmt.Errorf("agent.strategy %q is not supported (have %s)", c.Agent.Strategy, AgentReplay)
	}
	switch c.User.Strategy {
	case UserConfirming, UserHuman:
	default:
		return fmt.Errorf("user.strategy %q is not supported (have %s, %s)", c.User.Strategy, UserConfirming, UserHuman)
	}
	if c.NumTrials < 1 {
		return fmt.Errorf("num_trials must be at least 1, got %d", c.NumTrials)
	}
	if c.StartIndex < 0 {
		return fmt.Errorf("start_index must not be negative, got %d", c.StartIndex)
	}
	if c.EndIndex >= 0 && c.EndIndex <= c.StartIndex {
		return fmt.Errorf("end_index %d must be -1 or greater than start_index %d", c.EndIndex, c.StartIndex)
	}
	for _, id := range c.TaskIDs {
		if id < 0 {
			return fmt.Errorf("task_ids must not be negative, got %d", id)
		}
	}
	if c.StartRate < 0 {
		return fmt.Errorf("start_rate must not be negative, got %v", c.StartRate)
	}
	if c.Agent.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be at least 1, got %d", c.Agent.MaxSteps)
	}
	if c.Reward.CacheSize < 0 {
		return fmt.Errorf("reward.cache_size must not be negative, got %d", c.Reward.CacheSize)
	}
	if c.User.Strategy == UserHuman && c.MaxConcurrency > 1 {
		return fmt.Errorf("user.strategy %s needs max_concurrency 1", UserHuman)
	}
	c.MaxConcurrency = max(1, min(c.MaxConcurrency, MaxConcurrency))
	return c.Observability.Validate()
}

// Metadata contains provenance details for loaded configuration.
type Metadata struct {
	sources  map[string]ValueSource
	file     string
	loadedAt time.Time
}

// Sources returns a copy of the provenance map.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for key, value := range m.sources {
		out[key] = value
	}
	return out
}

// Source returns the origin of key, such as "agent.model".
func (m Metadata) Source(key string) ValueSource {
	if src, ok := m.sources[key]; ok {
		return src
	}
	return SourceDefault
}

// File returns the config file that was read, if any.
func (m Metadata) File() string { return m.file }

// LoadedAt returns the timestamp when the configuration was constructed.
func (m Metadata) LoadedAt() time.Time { return m.loadedAt }
