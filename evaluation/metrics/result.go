// Package metrics aggregates finished trials into rewards, the pass^k
// estimator and the final batch report.
package metrics

import (
	"fmt"
	"sort"

	"taubench/internal/agent"
)

// Keys of EpisodeResult.Info.
const (
	InfoError      = "error"
	InfoTraceback  = "traceback"
	InfoRewardInfo = "reward_info"
	InfoTask       = "task"
	InfoUserCost   = "user_cost"
	InfoSteps      = "steps"
	InfoDone       = "done"
)

// EpisodeResult is one finished (task, trial) pair. TaskID is the index of
// the task in the run's task list.
type EpisodeResult struct {
	TaskID int             `json:"task_id"`
	Reward float64         `json:"reward"`
	Info   map[string]any  `json:"info"`
	Traj   []agent.Message `json:"traj"`
	Trial  int             `json:"trial"`
}

// Key identifies a result within a batch.
type Key struct {
	TaskID int
	Trial  int
}

func (k Key) String() string {
	return fmt.Sprintf("task %d trial %d", k.TaskID, k.Trial)
}

// Key returns the (task, trial) pair of r.
func (r EpisodeResult) Key() Key {
	return Key{TaskID: r.TaskID, Trial: r.Trial}
}

// Failed reports whether the trial ended with an error instead of a reward.
func (r EpisodeResult) Failed() bool {
	_, ok := r.Info[InfoError]
	return ok
}

// Sort orders results by task, then trial.
func Sort(results []EpisodeResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TaskID != results[j].TaskID {
			return results[i].TaskID < results[j].TaskID
		}
		return results[i].Trial < results[j].Trial
	})
}
