package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_updater/internal/domain"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveFetch(domain.Outcome{SourceID: 1, NewEntries: 3, Duration: 120, CacheMiss: true})
	c.ObserveFetch(domain.Outcome{SourceID: 2, Duration: 40})
	c.ObserveFailure()

	ts := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	c.ObserveRun(&domain.RunStat{Timestamp: ts, DurTotal: 1.2})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.sourcesFetched))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sourcesChanged))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sourcesFailed))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.entriesNew))
	assert.Equal(t, float64(ts.Unix()), testutil.ToFloat64(c.lastRun))
	assert.Equal(t, 1, testutil.CollectAndCount(c.fetchDuration))
}

func TestServer_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)
	c.ObserveFailure()
	c.ObserveFetch(domain.Outcome{Duration: 250})
	c.ObserveFetch(domain.Outcome{Duration: 250})

	srv := httptest.NewServer(Server(":0", reg).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "feed_updater_sources_failed_total 1")
	assert.Contains(t, string(body), "feed_updater_fetch_duration_seconds_count 2")
	assert.Contains(t, string(body), "feed_updater_fetch_duration_seconds_sum 0.5")
}
