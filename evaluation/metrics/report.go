package metrics

import (
	"fmt"
	"sort"
	"strings"

	"taubench/internal/fsutil"
	jsonx "taubench/internal/shared/json"
)

// Report is the final artifact of a batch.
type Report struct {
	RunID        string          `json:"run_id,omitempty"`
	TotalRewards float64         `json:"total_rewards"`
	NumTrials    int             `json:"num_trials"`
	AvgReward    float64         `json:"avg_reward"`
	PassK        map[int]float64 `json:"pass_k"`
	Results      []EpisodeResult `json:"results"`
}

// BuildReport aggregates results. The results are copied and sorted by task
// and trial.
func BuildReport(results []EpisodeResult) *Report {
	sorted := append([]EpisodeResult(nil), results...)
	Sort(sorted)

	var total float64
	for _, r := range sorted {
		total += r.Reward
	}
	if sorted == nil {
		sorted = []EpisodeResult{}
	}
	return &Report{
		TotalRewards: total,
		NumTrials:    NumTrials(sorted),
		AvgReward:    AverageReward(sorted),
		PassK:        PassHatK(sorted),
		Results:      sorted,
	}
}

// WriteReport stores report as indented JSON at path.
func WriteReport(path string, report *Report) error {
	data, err := jsonx.MarshalStable(report, "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// ReadReport loads a report written by WriteReport.
func ReadReport(data []byte) (*Report, error) {
	var report Report
	if err := jsonx.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}

// Format renders the headline numbers of report for a terminal.
func (r *Report) Format() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🏆 Average reward: %.4f (%d results, %d trials)\n", r.AvgReward, len(r.Results), r.NumTrials)
	sb.WriteString("📈 Pass^k\n")
	ks := make([]int, 0, len(r.PassK))
	for k := range r.PassK {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	for _, k := range ks {
		fmt.Fprintf(&sb, "  k=%d: %.4f\n", k, r.PassK[k])
	}
	return sb.String()
}
