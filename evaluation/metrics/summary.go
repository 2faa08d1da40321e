package metrics

import (
	"fmt"
	"sort"
	"strings"

	"taubench/internal/reward"
)

// Outcome classifies a single result.
type Outcome string

const (
	OutcomePassed        Outcome = "passed"
	OutcomeErrored       Outcome = "errored"
	OutcomeIncomplete    Outcome = "incomplete"
	OutcomeOutputMiss    Outcome = "output_miss"
	OutcomeStateMismatch Outcome = "state_mismatch"
)

// Failure is one non-passing result with the evidence behind it.
type Failure struct {
	Key     Key
	Outcome Outcome
	// Detail is the error message, the missing outputs or the state diff.
	Detail string
}

// Summary breaks results down by outcome.
type Summary struct {
	Counts   map[Outcome]int
	Failures []Failure
}

// Summarize classifies every result. Reward info is decoded from the generic
// maps found in checkpoint rows, so results read back from disk summarize the
// same way as results still in memory.
func Summarize(results []EpisodeResult) (Summary, error) {
	sorted := append([]EpisodeResult(nil), results...)
	Sort(sorted)

	summary := Summary{Counts: make(map[Outcome]int)}
	for _, r := range sorted {
		outcome, detail, err := classify(r)
		if err != nil {
			return Summary{}, fmt.Errorf("%s: %w", r.Key(), err)
		}
		summary.Counts[outcome]++
		if outcome != OutcomePassed {
			summary.Failures = append(summary.Failures, Failure{Key: r.Key(), Outcome: outcome, Detail: detail})
		}
	}
	return summary, nil
}

func classify(r EpisodeResult) (Outcome, string, error) {
	if msg, ok := r.Info[InfoError]; ok {
		return OutcomeErrored, fmt.Sprint(msg), nil
	}
	if reward.Succeeded(r.Reward) {
		return OutcomePassed, "", nil
	}
	raw, ok := r.Info[InfoRewardInfo].(map[string]any)
	if !ok {
		return OutcomeIncomplete, "episode did not terminate", nil
	}
	info, err := reward.InfoFromMap(raw["info"])
	if err != nil {
		return "", "", err
	}
	switch v := info.(type) {
	case *reward.OutputInfo:
		var missing []string
		for output, found := range v.Outputs {
			if !found {
				missing = append(missing, output)
			}
		}
		sort.Strings(missing)
		return OutcomeOutputMiss, "missing outputs: " + strings.Join(missing, ", "), nil
	case *reward.ActionInfo:
		return OutcomeStateMismatch, v.StateDiff, nil
	default:
		return OutcomeIncomplete, "no reward info", nil
	}
}
