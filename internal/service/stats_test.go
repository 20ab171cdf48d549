package service

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_updater/internal/domain"
)

func TestSummarize_Example(t *testing.T) {
	ts := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	outcomes := []domain.Outcome{
		{SourceID: 2, Duration: 20, NewEntries: 1, CacheMiss: true},
		{SourceID: 3, Duration: 30, NewEntries: 4, CacheMiss: true},
		{SourceID: 1, Duration: 10},
	}

	stat := Summarize(ts, 4, outcomes, 0, 1500*time.Millisecond)

	assert.Equal(t, ts, stat.Timestamp)
	assert.Equal(t, 4, stat.SourcesTotal)
	assert.Equal(t, 3, stat.SourcesFetched)
	assert.Equal(t, 2, stat.SourcesChanged)
	assert.Equal(t, 0, stat.SourcesFailed)
	assert.Equal(t, 5, stat.EntriesNew)
	assert.InDelta(t, 1.5, stat.DurTotal, 1e-9)
	assert.Equal(t, 10.0, stat.DurMin)
	require.NotNil(t, stat.DurMinSourceID)
	assert.Equal(t, int64(1), *stat.DurMinSourceID)
	assert.Equal(t, 30.0, stat.DurMax)
	require.NotNil(t, stat.DurMaxSourceID)
	assert.Equal(t, int64(3), *stat.DurMaxSourceID)
	assert.InDelta(t, 20.0, stat.DurAvg, 1e-9)
	assert.InDelta(t, math.Sqrt(200.0/3.0), stat.DurStd, 1e-9)
}

func TestSummarize_OrderIndependent(t *testing.T) {
	ts := time.Now()
	a := []domain.Outcome{{SourceID: 1, Duration: 5}, {SourceID: 2, Duration: 50, CacheMiss: true}, {SourceID: 3, Duration: 8}}
	b := []domain.Outcome{a[2], a[0], a[1]}

	assert.Equal(t, Summarize(ts, 3, a, 1, time.Second), Summarize(ts, 3, b, 1, time.Second))
}

func TestSummarize_NothingFetched(t *testing.T) {
	stat := Summarize(time.Now(), 3, nil, 3, time.Second)

	assert.Equal(t, 3, stat.SourcesTotal)
	assert.Equal(t, 0, stat.SourcesFetched)
	assert.Equal(t, 3, stat.SourcesFailed)
	assert.Zero(t, stat.EntriesNew)
	assert.Zero(t, stat.DurMin)
	assert.Zero(t, stat.DurMax)
	assert.Zero(t, stat.DurAvg)
	assert.Zero(t, stat.DurStd)
	assert.Nil(t, stat.DurMinSourceID)
	assert.Nil(t, stat.DurMaxSourceID)
}

func TestSummarize_SingleOutcome(t *testing.T) {
	stat := Summarize(time.Now(), 1, []domain.Outcome{{SourceID: 9, Duration: 42}}, 0, time.Second)

	assert.Equal(t, 42.0, stat.DurMin)
	assert.Equal(t, 42.0, stat.DurMax)
	assert.Equal(t, 42.0, stat.DurAvg)
	assert.Zero(t, stat.DurStd)
	assert.Equal(t, int64(9), *stat.DurMinSourceID)
	assert.Equal(t, int64(9), *stat.DurMaxSourceID)
}
