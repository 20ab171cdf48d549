package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"feed_updater/internal/domain"
)

const (
	DefaultWindowDays      = 30
	DefaultPerSourceCap    = 6
	DefaultDownrankPenalty = 100.0

	linearDecay = 0.01
)

type Config struct {
	WindowDays      int
	PerSourceCap    int
	DownrankPenalty float64
}

func (c Config) withDefaults() Config {
	if c.WindowDays <= 0 {
		c.WindowDays = DefaultWindowDays
	}
	if c.PerSourceCap <= 0 {
		c.PerSourceCap = DefaultPerSourceCap
	}
	if c.DownrankPenalty == 0 {
		c.DownrankPenalty = DefaultDownrankPenalty
	}
	return c
}

// Window is the trailing period entries are considered in.
func (c Config) Window() time.Duration {
	return time.Duration(c.withDefaults().WindowDays) * 24 * time.Hour
}

// Ranked is one source in presentation order.
type Ranked struct {
	Source  domain.Source
	Entries []domain.Entry
	Count   int
	Newest  time.Time
	Rank    float64
}

// Score is the decay curve over the age of a source's newest entry.
func Score(ageDays float64, windowDays int) float64 {
	return math.Cos(ageDays*2*math.Pi/float64(windowDays)) - ageDays*linearDecay
}

// Rank groups unvisited entries by source and orders the sources by score,
// best first. Entries outside the window and sources without any entry in
// it are left out. Downranked sources are penalised below every other
// source and show half as many entries.
func Rank(sources []domain.Source, entries []domain.Entry, now time.Time, cfg Config) []Ranked {
	cfg = cfg.withDefaults()
	since := now.Add(-cfg.Window())

	bySource := lo.GroupBy(
		lo.Filter(entries, func(e domain.Entry, _ int) bool {
			return e.Visited == nil && !e.Published.Before(since)
		}),
		func(e domain.Entry) int64 { return e.SourceID },
	)

	ranked := make([]Ranked, 0, len(bySource))
	for _, src := range sources {
		group, ok := bySource[src.ID]
		if !ok {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Published.After(group[j].Published)
		})

		newest := group[0].Published
		ageDays := max(now.Sub(newest).Hours()/24, 0)

		rank := Score(ageDays, cfg.WindowDays)
		limit := cfg.PerSourceCap
		if src.Downrank {
			rank -= cfg.DownrankPenalty
			limit = max(cfg.PerSourceCap/2, 1)
		}

		ranked = append(ranked, Ranked{
			Source:  src,
			Entries: lo.Slice(group, 0, limit),
			Count:   len(group),
			Newest:  newest,
			Rank:    rank,
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Rank != b.Rank {
			return a.Rank > b.Rank
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Source.ID < b.Source.ID
	})

	return ranked
}
