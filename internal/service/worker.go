package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"feed_updater/internal/domain"
)

// Worker fetches one source and merges its new entries.
type Worker struct {
	sources   SourceStore
	entries   EntryStore
	txManager TransactionManager
	fetcher   Fetcher
	logger    *slog.Logger

	lookbackMonths int
	now            func() time.Time
}

func NewWorker(
	sources SourceStore,
	entries EntryStore,
	txManager TransactionManager,
	fetcher Fetcher,
	logger *slog.Logger,
	lookbackMonths int,
) *Worker {
	if lookbackMonths <= 0 {
		lookbackMonths = 2
	}
	return &Worker{
		sources:        sources,
		entries:        entries,
		txManager:      txManager,
		fetcher:        fetcher,
		logger:         logger.With("component", "worker"),
		lookbackMonths: lookbackMonths,
		now:            time.Now,
	}
}

// FetchAndMerge updates a single source. It returns a nil outcome and nil
// error when the source no longer exists. Any other failure is a
// *FetchError, and nothing it wrote is kept.
//
// The source row is loaded outside the merge transaction and the fetch
// runs between the two, so no transaction is held open across network
// I/O. Only the watermark read, the entry insert and the source update
// share a transaction.
func (w *Worker) FetchAndMerge(ctx context.Context, sourceID int64) (*domain.Outcome, error) {
	start := time.Now()

	src, err := w.sources.Get(ctx, sourceID)
	if errors.Is(err, domain.ErrNotFound) {
		w.logger.Debug("source vanished before fetch", "source_id", sourceID)
		return nil, nil
	}
	if err != nil {
		return nil, &FetchError{SourceID: sourceID, Stage: StageMerge, Err: fmt.Errorf("load source: %w", err)}
	}

	res, err := w.fetcher.Fetch(ctx, src.URL, src.ETag, src.Modified)
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, URL: src.URL, Stage: StageTransport, Err: err}
	}

	if res.NotModified {
		return &domain.Outcome{
			SourceID: src.ID,
			Duration: millisSince(start),
		}, nil
	}

	var inserted int
	err = w.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := w.merge(txCtx, src, res)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	})
	if err != nil {
		return nil, &FetchError{SourceID: src.ID, URL: src.URL, Stage: StageMerge, Err: err}
	}

	w.logger.Debug("source merged", "source_id", src.ID, "new_entries", inserted)

	return &domain.Outcome{
		SourceID:   src.ID,
		NewEntries: inserted,
		Duration:   millisSince(start),
		CacheMiss:  true,
	}, nil
}

func (w *Worker) merge(ctx context.Context, src *domain.Source, res *domain.FetchResult) (int, error) {
	if res.Document == nil {
		return 0, errors.New("empty document")
	}
	doc := res.Document
	now := w.now().UTC()

	if src.Title == nil {
		title := src.URL
		if t := nonBlank(doc.Title); t != "" {
			title = t
		}
		src.Title = &title
	}
	src.ETag = res.ETag
	src.Modified = res.Modified
	src.LastUpdated = &now

	watermark, err := w.watermark(ctx, src.ID, now)
	if err != nil {
		return 0, fmt.Errorf("load watermark: %w", err)
	}

	fresh := make([]domain.Entry, 0, len(doc.Entries))
	for _, item := range doc.Entries {
		entry := buildEntry(src.ID, doc, item, now)
		if entry.Published.After(watermark) {
			fresh = append(fresh, entry)
		}
	}

	if err := w.entries.InsertBatch(ctx, fresh); err != nil {
		return 0, err
	}

	if err := w.sources.UpdateFetched(ctx, src); err != nil {
		return 0, fmt.Errorf("update source: %w", err)
	}

	return len(fresh), nil
}

// watermark is the newest stored published time for the source, or the
// lookback horizon when nothing is stored yet.
func (w *Worker) watermark(ctx context.Context, sourceID int64, now time.Time) (time.Time, error) {
	latest, err := w.entries.LatestPublished(ctx, sourceID)
	if err != nil {
		return time.Time{}, err
	}
	if latest == nil {
		return now.AddDate(0, -w.lookbackMonths, 0), nil
	}
	return *latest, nil
}

func millisSince(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
