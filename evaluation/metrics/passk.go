package metrics

import "taubench/internal/reward"

// AverageReward is the mean reward over results, or 0 for none.
func AverageReward(results []EpisodeResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var total float64
	for _, r := range results {
		total += r.Reward
	}
	return total / float64(len(results))
}

// NumTrials counts the distinct trial indices in results.
func NumTrials(results []EpisodeResult) int {
	trials := make(map[int]struct{})
	for _, r := range results {
		trials[r.Trial] = struct{}{}
	}
	return len(trials)
}

// PassHatK estimates, for every k in [1, N], the probability that k
// independent trials of a task all succeed, averaged over tasks. N is the
// number of distinct trials and a task with c successful trials contributes
// C(c, k) / C(N, k).
func PassHatK(results []EpisodeResult) map[int]float64 {
	n := NumTrials(results)
	out := make(map[int]float64, n)
	if n == 0 {
		return out
	}

	// A pair recorded more than once counts once, and succeeds if any of its
	// rows did, so c never exceeds N.
	passed := make(map[Key]bool, len(results))
	for _, r := range results {
		passed[r.Key()] = passed[r.Key()] || reward.Succeeded(r.Reward)
	}
	successes := make(map[int]int)
	for key, ok := range passed {
		if ok {
			successes[key.TaskID]++
		} else if _, seen := successes[key.TaskID]; !seen {
			successes[key.TaskID] = 0
		}
	}

	for k := 1; k <= n; k++ {
		var sum float64
		for _, c := range successes {
			sum += combRatio(c, n, k)
		}
		out[k] = sum / float64(len(successes))
	}
	return out
}

// combRatio returns C(c, k) / C(n, k) as a running product, which stays
// within float range for any trial count.
func combRatio(c, n, k int) float64 {
	if c < k {
		return 0
	}
	ratio := 1.0
	for i := 0; i < k; i++ {
		ratio *= float64(c-i) / float64(n-i)
	}
	return ratio
}
