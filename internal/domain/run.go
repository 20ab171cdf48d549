package domain

import "time"

// Outcome is the per-source result of one fetch-and-merge.
type Outcome struct {
	SourceID   int64
	NewEntries int
	Duration   float64 // milliseconds
	CacheMiss  bool
}

// RunStat summarises one update run. It is written once and never updated.
type RunStat struct {
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	SourcesTotal   int       `db:"sources_total" json:"sources_total"`
	SourcesFetched int       `db:"sources_fetched" json:"sources_fetched"`
	SourcesChanged int       `db:"sources_changed" json:"sources_changed"`
	SourcesFailed  int       `db:"sources_failed" json:"sources_failed"`
	EntriesNew     int       `db:"entries_new" json:"entries_new"`
	DurTotal       float64   `db:"dur_total" json:"dur_total"` // seconds
	DurMin         float64   `db:"dur_min" json:"dur_min"`     // milliseconds
	DurMinSourceID *int64    `db:"dur_min_source_id" json:"dur_min_source_id,omitempty"`
	DurAvg         float64   `db:"dur_avg" json:"dur_avg"`
	DurStd         float64   `db:"dur_std" json:"dur_std"`
	DurMax         float64   `db:"dur_max" json:"dur_max"`
	DurMaxSourceID *int64    `db:"dur_max_source_id" json:"dur_max_source_id,omitempty"`
}

// RunStatRow is a RunStat joined with the addresses of its fastest and
// slowest sources.
type RunStatRow struct {
	RunStat
	MinSourceURL *string `db:"min_source_url" json:"min_source_url,omitempty"`
	MaxSourceURL *string `db:"max_source_url" json:"max_source_url,omitempty"`
}
