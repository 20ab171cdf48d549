package service

import (
	"math"
	"time"

	"github.com/samber/lo"

	"feed_updater/internal/domain"
)

// Summarize reduces the outcomes of one run into its RunStat. Durations
// are aggregated over outcomes only, so skipped and failed sources count
// towards the totals but not the timing figures. The result does not
// depend on the order of outcomes.
func Summarize(timestamp time.Time, total int, outcomes []domain.Outcome, failures int, elapsed time.Duration) *domain.RunStat {
	stat := &domain.RunStat{
		Timestamp:      timestamp,
		SourcesTotal:   total,
		SourcesFetched: len(outcomes),
		SourcesChanged: lo.CountBy(outcomes, func(o domain.Outcome) bool { return o.CacheMiss }),
		SourcesFailed:  failures,
		EntriesNew:     lo.SumBy(outcomes, func(o domain.Outcome) int { return o.NewEntries }),
		DurTotal:       elapsed.Seconds(),
	}

	if len(outcomes) == 0 {
		return stat
	}

	fastest := lo.MinBy(outcomes, func(a, b domain.Outcome) bool {
		return a.Duration < b.Duration || (a.Duration == b.Duration && a.SourceID < b.SourceID)
	})
	slowest := lo.MaxBy(outcomes, func(a, b domain.Outcome) bool {
		return a.Duration > b.Duration || (a.Duration == b.Duration && a.SourceID < b.SourceID)
	})

	stat.DurMin = fastest.Duration
	stat.DurMinSourceID = lo.ToPtr(fastest.SourceID)
	stat.DurMax = slowest.Duration
	stat.DurMaxSourceID = lo.ToPtr(slowest.SourceID)

	durations := lo.Map(outcomes, func(o domain.Outcome, _ int) float64 { return o.Duration })
	stat.DurAvg, stat.DurStd = meanStd(durations)

	return stat
}

// meanStd returns the mean and population standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	n := float64(len(xs))
	mean := lo.Sum(xs) / n

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(sq / n)
}
