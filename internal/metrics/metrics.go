package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"feed_updater/internal/domain"
)

// Collector records update runs as Prometheus metrics.
type Collector struct {
	runs           prometheus.Counter
	sourcesFetched prometheus.Counter
	sourcesChanged prometheus.Counter
	sourcesFailed  prometheus.Counter
	entriesNew     prometheus.Counter
	fetchDuration  prometheus.Histogram
	runDuration    prometheus.Histogram
	lastRun        prometheus.Gauge
}

func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		runs: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_updater_runs_total",
			Help: "The total number of completed update runs",
		}),
		sourcesFetched: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_updater_sources_fetched_total",
			Help: "The total number of sources fetched without error",
		}),
		sourcesChanged: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_updater_sources_changed_total",
			Help: "The total number of fetches that returned a new document",
		}),
		sourcesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_updater_sources_failed_total",
			Help: "The total number of failed source updates",
		}),
		entriesNew: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_updater_entries_new_total",
			Help: "The total number of entries inserted",
		}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feed_updater_fetch_duration_seconds",
			Help:    "Duration of a single source fetch and merge",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feed_updater_run_duration_seconds",
			Help:    "Wall time of a whole update run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feed_updater_last_run_timestamp_seconds",
			Help: "Unix time of the last completed update run",
		}),
	}
}

func (c *Collector) ObserveFetch(outcome domain.Outcome) {
	c.sourcesFetched.Inc()
	if outcome.CacheMiss {
		c.sourcesChanged.Inc()
	}
	c.entriesNew.Add(float64(outcome.NewEntries))
	c.fetchDuration.Observe(outcome.Duration / 1000)
}

func (c *Collector) ObserveFailure() {
	c.sourcesFailed.Inc()
}

func (c *Collector) ObserveRun(stat *domain.RunStat) {
	c.runs.Inc()
	c.runDuration.Observe(stat.DurTotal)
	c.lastRun.Set(float64(stat.Timestamp.Unix()))
}

// Server exposes the registry on /metrics.
func Server(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}

// ListenAndServe runs srv until it is shut down.
func ListenAndServe(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
