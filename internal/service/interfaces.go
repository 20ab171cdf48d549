package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"feed_updater/internal/domain"
)

type SourceStore interface {
	List(ctx context.Context) ([]domain.Source, error)
	ListByLastUpdated(ctx context.Context) ([]domain.Source, error)
	Get(ctx context.Context, id int64) (*domain.Source, error)
	Create(ctx context.Context, url string) (*domain.Source, error)
	UpdateFetched(ctx context.Context, src *domain.Source) error
	Rename(ctx context.Context, id int64, title *string) error
	SetDownrank(ctx context.Context, id int64, downrank bool) error
	Delete(ctx context.Context, id int64) error
}

type EntryStore interface {
	LatestPublished(ctx context.Context, sourceID int64) (*time.Time, error)
	InsertBatch(ctx context.Context, entries []domain.Entry) error
}

type RunStatStore interface {
	Insert(ctx context.Context, stat *domain.RunStat) error
	Latest(ctx context.Context) (*domain.RunStatRow, error)
	Since(ctx context.Context, since time.Time) ([]domain.RunStatRow, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Fetcher performs a conditional fetch of one syndication document.
type Fetcher interface {
	Fetch(ctx context.Context, url string, etag, modified *string) (*domain.FetchResult, error)
}

// Mirror keeps the local database file in step with a remote copy.
type Mirror interface {
	EnsureLocal(ctx context.Context) error
	MarkDirty()
	SyncIfNeeded(ctx context.Context, reason string) error
}

type Publisher interface {
	PublishRun(ctx context.Context, stat *domain.RunStat) error
	Close() error
}

type Observer interface {
	ObserveFetch(outcome domain.Outcome)
	ObserveFailure()
	ObserveRun(stat *domain.RunStat)
}
