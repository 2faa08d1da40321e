package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func parsedFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(LoadOptions{SearchPaths: []string{t.TempDir()}, Flags: parsedFlags(t)})
	require.NoError(t, err)

	want := Default()
	want.TaskIDs = []int{}
	assert.Equal(t, want, cfg)
	assert.Empty(t, meta.File())
	assert.Equal(t, SourceDefault, meta.Source("num_trials"))
	assert.Equal(t, SourceDefault, meta.Source("unknown.key"))
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tau.yaml", `
domain: retail
num_trials: 2
max_concurrency: 3
agent:
  model: from-file
  temperature: 0.5
user:
  model: from-file
`)
	t.Setenv("TAU_NUM_TRIALS", "3")
	t.Setenv("TAU_AGENT_MODEL", "from-env")
	t.Setenv("TAU_TASK_IDS", "4,1")

	cfg, meta, err := Load(LoadOptions{SearchPaths: []string{dir}, Flags: parsedFlags(t, "--num-trials", "4", "--seed", "9")})
	require.NoError(t, err)

	assert.Equal(t, path, meta.File())
	assert.Equal(t, "retail", cfg.Domain)
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, 0.5, cfg.Agent.Temperature)
	assert.Equal(t, "from-file", cfg.User.Model)
	assert.Equal(t, "from-env", cfg.Agent.Model)
	assert.Equal(t, []int{4, 1}, cfg.TaskIDs)
	assert.Equal(t, 4, cfg.NumTrials)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.Equal(t, "test", cfg.TaskSplit)

	assert.Equal(t, SourceFlag, meta.Source("num_trials"))
	assert.Equal(t, SourceEnv, meta.Source("agent.model"))
	assert.Equal(t, SourceFile, meta.Source("domain"))
	assert.Equal(t, SourceDefault, meta.Source("task_split"))
}

func TestLoadExplicitJSONFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "batch.json", `{"domain": "retail", "end_index": 3, "task_ids": [0, 2], "reward": {"state_diff": false}}`)

	cfg, meta, err := Load(LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, path, meta.File())
	assert.Equal(t, 3, cfg.EndIndex)
	assert.Equal(t, []int{0, 2}, cfg.TaskIDs)
	assert.False(t, cfg.Reward.StateDiff)
	assert.Equal(t, 256, cfg.Reward.CacheSize)
}

func TestLoadErrors(t *testing.T) {
	_, _, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.ErrorContains(t, err, "read config")

	path := writeFile(t, t.TempDir(), "tau.yaml", "num_trials: 0\n")
	_, _, err = Load(LoadOptions{File: path})
	assert.ErrorContains(t, err, "num_trials")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*RunConfig){
		"domain is required":          func(c *RunConfig) { c.Domain = "" },
		"agent.strategy":              func(c *RunConfig) { c.Agent.Strategy = "llm" },
		"user.strategy":               func(c *RunConfig) { c.User.Strategy = "llm" },
		"start_index must not be":     func(c *RunConfig) { c.StartIndex = -1 },
		"must be -1 or greater":       func(c *RunConfig) { c.StartIndex, c.EndIndex = 4, 4 },
		"task_ids must not be":        func(c *RunConfig) { c.TaskIDs = []int{-2} },
		"start_rate":                  func(c *RunConfig) { c.StartRate = -1 },
		"agent.max_steps":             func(c *RunConfig) { c.Agent.MaxSteps = 0 },
		"reward.cache_size":           func(c *RunConfig) { c.Reward.CacheSize = -1 },
		"needs max_concurrency 1":     func(c *RunConfig) { c.User.Strategy, c.MaxConcurrency = UserHuman, 2 },
		"logging.format must be text": func(c *RunConfig) { c.Observability.Logging.Format = "xml" },
	}
	for want, mutate := range cases {
		t.Run(want, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), want)
		})
	}
}

func TestValidateClampsConcurrency(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrency = 500
	require.NoError(t, cfg.Validate())
	assert.Equal(t, MaxConcurrency, cfg.MaxConcurrency)

	cfg.MaxConcurrency = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.MaxConcurrency)
}
