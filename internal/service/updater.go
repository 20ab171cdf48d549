package service

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"feed_updater/internal/config"
	"feed_updater/internal/domain"
)

const minConcurrency = 4

// Updater runs the update across all sources.
type Updater struct {
	sources   SourceStore
	runs      RunStatStore
	worker    *Worker
	mirror    Mirror
	publisher Publisher
	observer  Observer
	logger    *slog.Logger
	config    config.UpdateConfig

	now func() time.Time
}

// NewUpdater wires the orchestrator. mirror, publisher and observer are
// optional and may be nil.
func NewUpdater(
	sources SourceStore,
	runs RunStatStore,
	worker *Worker,
	mirror Mirror,
	publisher Publisher,
	observer Observer,
	logger *slog.Logger,
	cfg config.UpdateConfig,
) *Updater {
	if cfg.Cooldown == 0 {
		cfg.Cooldown = DefaultCooldown
	}
	return &Updater{
		sources:   sources,
		runs:      runs,
		worker:    worker,
		mirror:    mirror,
		publisher: publisher,
		observer:  observer,
		logger:    logger.With("component", "updater"),
		config:    cfg,
		now:       time.Now,
	}
}

type workResult struct {
	source  domain.Source
	outcome *domain.Outcome
	err     error
}

// Run performs one update run and persists its RunStat. Per-source
// failures are counted in the result; only an *OrchestrationError is
// returned as an error.
//
// A deadline or cancellation on ctx bounds the run only up to dispatch.
// Workers, the RunStat insert and the post-run hooks run detached from it,
// so each fetch is bounded by the transport timeout alone and a started
// run always records its RunStat.
func (u *Updater) Run(ctx context.Context) (*domain.RunStat, error) {
	if u.mirror != nil {
		if err := u.mirror.EnsureLocal(ctx); err != nil {
			return nil, &OrchestrationError{Op: "ensure local copy", Err: err}
		}
	}

	timestamp := u.now().UTC()

	sources, err := u.sources.List(ctx)
	if err != nil {
		return nil, &OrchestrationError{Op: "list sources", Err: err}
	}
	if len(sources) == 0 {
		return nil, &OrchestrationError{Op: "list sources", Err: ErrNoSources}
	}

	toFetch := lo.Reject(sources, func(src domain.Source, _ int) bool {
		return ShouldSkip(src, timestamp, u.config.Cooldown)
	})

	u.logger.Info("starting update run",
		"sources", len(sources),
		"to_fetch", len(toFetch),
		"skipped", len(sources)-len(toFetch),
		"concurrency", u.concurrency(),
	)

	workCtx := context.WithoutCancel(ctx)

	start := time.Now()
	outcomes, failures := u.dispatch(workCtx, toFetch)
	elapsed := time.Since(start)

	stat := Summarize(timestamp, len(sources), outcomes, failures, elapsed)

	if err := u.runs.Insert(workCtx, stat); err != nil {
		return nil, &OrchestrationError{Op: "persist run stat", Err: err}
	}

	u.logger.Info("update run completed",
		"fetched", stat.SourcesFetched,
		"changed", stat.SourcesChanged,
		"failed", stat.SourcesFailed,
		"new_entries", stat.EntriesNew,
		"duration", elapsed,
	)

	u.afterRun(workCtx, stat)

	return stat, nil
}

// dispatch fetches every source on a bounded pool and collects the results
// on the calling goroutine. Workers are never cancelled by their siblings.
func (u *Updater) dispatch(ctx context.Context, sources []domain.Source) ([]domain.Outcome, int) {
	results := make(chan workResult, len(sources))

	var g errgroup.Group
	g.SetLimit(u.concurrency())

	go func() {
		for _, src := range sources {
			g.Go(func() error {
				outcome, err := u.worker.FetchAndMerge(ctx, src.ID)
				results <- workResult{source: src, outcome: outcome, err: err}
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	var (
		outcomes []domain.Outcome
		failures int
	)
	for res := range results {
		switch {
		case res.err != nil:
			failures++
			u.logger.Warn("source update failed",
				"source_id", res.source.ID,
				"url", res.source.URL,
				"error", res.err,
			)
			if u.observer != nil {
				u.observer.ObserveFailure()
			}
		case res.outcome != nil:
			outcomes = append(outcomes, *res.outcome)
			if u.observer != nil {
				u.observer.ObserveFetch(*res.outcome)
			}
		}
	}

	return outcomes, failures
}

func (u *Updater) afterRun(ctx context.Context, stat *domain.RunStat) {
	if u.observer != nil {
		u.observer.ObserveRun(stat)
	}

	if u.mirror != nil {
		u.mirror.MarkDirty()
		if err := u.mirror.SyncIfNeeded(ctx, "update job complete"); err != nil {
			u.logger.Error("failed to sync mirror", "error", err)
		}
	}

	if u.publisher != nil {
		if err := u.publisher.PublishRun(ctx, stat); err != nil {
			u.logger.Error("failed to publish run", "error", err)
		}
	}
}

func (u *Updater) concurrency() int {
	if u.config.Concurrency > 0 {
		return u.config.Concurrency
	}
	return max(runtime.NumCPU(), minConcurrency)
}
