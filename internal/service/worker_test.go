package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"feed_updater/internal/domain"
	"feed_updater/internal/service/mocks"
)

type WorkerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	sources   *mocks.MockSourceStore
	entries   *mocks.MockEntryStore
	txManager *mocks.MockTransactionManager
	fetcher   *mocks.MockFetcher

	worker *Worker
	now    time.Time
}

func (s *WorkerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.sources = mocks.NewMockSourceStore(s.ctrl)
	s.entries = mocks.NewMockEntryStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.fetcher = mocks.NewMockFetcher(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	s.worker = NewWorker(s.sources, s.entries, s.txManager, s.fetcher, logger, 2)
	s.worker.now = func() time.Time { return s.now }
}

func (s *WorkerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) passThroughTx() {
	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	)
}

func (s *WorkerTestSuite) TestFetchAndMerge_NotModifiedIsIdempotent() {
	ctx := context.Background()
	src := &domain.Source{ID: 1, URL: "https://example.com/feed", ETag: lo.ToPtr(`"v1"`)}

	s.sources.EXPECT().Get(ctx, int64(1)).Return(src, nil).Times(3)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, src.ETag, src.Modified).
		Return(&domain.FetchResult{NotModified: true}, nil).Times(3)

	for range 3 {
		outcome, err := s.worker.FetchAndMerge(ctx, 1)
		s.Require().NoError(err)
		s.Equal(int64(1), outcome.SourceID)
		s.Equal(0, outcome.NewEntries)
		s.False(outcome.CacheMiss)
	}
}

func (s *WorkerTestSuite) TestFetchAndMerge_FirstFetch() {
	ctx := context.Background()
	src := &domain.Source{ID: 7, URL: "https://example.com/feed"}

	doc := &domain.Document{
		Title: lo.ToPtr("Example Feed"),
		Entries: []domain.DocumentEntry{
			{Title: lo.ToPtr("recent"), Link: lo.ToPtr("https://example.com/1"), Published: lo.ToPtr(s.now.AddDate(0, -1, 0))},
			{Title: lo.ToPtr("too old"), Link: lo.ToPtr("https://example.com/2"), Published: lo.ToPtr(s.now.AddDate(0, -3, 0))},
		},
	}

	s.sources.EXPECT().Get(ctx, int64(7)).Return(src, nil)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, nil, nil).Return(&domain.FetchResult{
		Document: doc,
		ETag:     lo.ToPtr(`"abc"`),
	}, nil)
	s.passThroughTx()
	s.entries.EXPECT().LatestPublished(ctx, int64(7)).Return(nil, nil)
	s.entries.EXPECT().InsertBatch(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, entries []domain.Entry) error {
			s.Require().Len(entries, 1)
			s.Equal("recent", entries[0].Title)
			s.Equal(int64(7), entries[0].SourceID)
			return nil
		},
	)
	s.sources.EXPECT().UpdateFetched(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal("Example Feed", *updated.Title)
			s.Equal(`"abc"`, *updated.ETag)
			s.Nil(updated.Modified)
			s.Require().NotNil(updated.LastUpdated)
			s.True(s.now.Equal(*updated.LastUpdated))
			return nil
		},
	)

	outcome, err := s.worker.FetchAndMerge(ctx, 7)
	s.Require().NoError(err)
	s.Equal(1, outcome.NewEntries)
	s.True(outcome.CacheMiss)
	s.GreaterOrEqual(outcome.Duration, 0.0)
}

func (s *WorkerTestSuite) TestFetchAndMerge_OnlyEntriesAfterWatermark() {
	ctx := context.Background()
	watermark := s.now.Add(-24 * time.Hour)
	src := &domain.Source{ID: 2, URL: "https://example.com/feed", Title: lo.ToPtr("Kept title")}

	doc := &domain.Document{
		Title: lo.ToPtr("Remote title"),
		Entries: []domain.DocumentEntry{
			{Title: lo.ToPtr("older"), Published: lo.ToPtr(watermark.Add(-time.Hour))},
			{Title: lo.ToPtr("equal"), Published: lo.ToPtr(watermark)},
			{Title: lo.ToPtr("newer"), Published: lo.ToPtr(watermark.Add(time.Second))},
		},
	}

	s.sources.EXPECT().Get(ctx, int64(2)).Return(src, nil)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, nil, nil).Return(&domain.FetchResult{Document: doc}, nil)
	s.passThroughTx()
	s.entries.EXPECT().LatestPublished(ctx, int64(2)).Return(&watermark, nil)
	s.entries.EXPECT().InsertBatch(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, entries []domain.Entry) error {
			s.Equal([]string{"newer"}, lo.Map(entries, func(e domain.Entry, _ int) string { return e.Title }))
			for _, e := range entries {
				s.True(e.Published.After(watermark))
			}
			return nil
		},
	)
	s.sources.EXPECT().UpdateFetched(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal("Kept title", *updated.Title)
			return nil
		},
	)

	outcome, err := s.worker.FetchAndMerge(ctx, 2)
	s.Require().NoError(err)
	s.Equal(1, outcome.NewEntries)
}

// An upstream edit that keeps the original timestamp is not picked up:
// novelty is decided by published time alone.
func (s *WorkerTestSuite) TestFetchAndMerge_RepublishedEntryWithSameTimestampIsDropped() {
	ctx := context.Background()
	watermark := s.now.Add(-time.Hour)
	src := &domain.Source{ID: 3, URL: "https://example.com/feed", Title: lo.ToPtr("t")}

	doc := &domain.Document{
		Entries: []domain.DocumentEntry{
			{Title: lo.ToPtr("edited headline"), Link: lo.ToPtr("https://example.com/same"), Published: lo.ToPtr(watermark)},
		},
	}

	s.sources.EXPECT().Get(ctx, int64(3)).Return(src, nil)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, nil, nil).Return(&domain.FetchResult{Document: doc}, nil)
	s.passThroughTx()
	s.entries.EXPECT().LatestPublished(ctx, int64(3)).Return(&watermark, nil)
	s.entries.EXPECT().InsertBatch(ctx, gomock.Len(0)).Return(nil)
	s.sources.EXPECT().UpdateFetched(ctx, gomock.Any()).Return(nil)

	outcome, err := s.worker.FetchAndMerge(ctx, 3)
	s.Require().NoError(err)
	s.Equal(0, outcome.NewEntries)
	s.True(outcome.CacheMiss)
}

func (s *WorkerTestSuite) TestFetchAndMerge_ClearsStaleValidatorsAndFallsBackToURL() {
	ctx := context.Background()
	src := &domain.Source{
		ID:       4,
		URL:      "https://example.com/feed",
		ETag:     lo.ToPtr(`"old"`),
		Modified: lo.ToPtr("Mon, 01 Jan 2024 00:00:00 GMT"),
	}

	s.sources.EXPECT().Get(ctx, int64(4)).Return(src, nil)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, src.ETag, src.Modified).
		Return(&domain.FetchResult{Document: &domain.Document{}}, nil)
	s.passThroughTx()
	s.entries.EXPECT().LatestPublished(ctx, int64(4)).Return(nil, nil)
	s.entries.EXPECT().InsertBatch(ctx, gomock.Len(0)).Return(nil)
	s.sources.EXPECT().UpdateFetched(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, updated *domain.Source) error {
			s.Equal("https://example.com/feed", *updated.Title)
			s.Nil(updated.ETag)
			s.Nil(updated.Modified)
			return nil
		},
	)

	_, err := s.worker.FetchAndMerge(ctx, 4)
	s.Require().NoError(err)
}

func (s *WorkerTestSuite) TestFetchAndMerge_TransportFailure() {
	ctx := context.Background()
	src := &domain.Source{ID: 5, URL: "https://broken.example/feed"}
	errDial := errors.New("dial tcp: connection refused")

	s.sources.EXPECT().Get(ctx, int64(5)).Return(src, nil)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, nil, nil).Return(nil, errDial)

	outcome, err := s.worker.FetchAndMerge(ctx, 5)
	s.Nil(outcome)

	var fetchErr *FetchError
	s.Require().ErrorAs(err, &fetchErr)
	s.Equal(StageTransport, fetchErr.Stage)
	s.Equal(int64(5), fetchErr.SourceID)
	s.Equal(src.URL, fetchErr.URL)
	s.ErrorIs(err, errDial)
}

func (s *WorkerTestSuite) TestFetchAndMerge_MergeFailureIsReturnedFromTransaction() {
	ctx := context.Background()
	src := &domain.Source{ID: 6, URL: "https://example.com/feed"}
	errInsert := errors.New("constraint failed")

	doc := &domain.Document{Entries: []domain.DocumentEntry{{Title: lo.ToPtr("a")}}}

	s.sources.EXPECT().Get(ctx, int64(6)).Return(src, nil)
	s.fetcher.EXPECT().Fetch(ctx, src.URL, nil, nil).Return(&domain.FetchResult{Document: doc}, nil)

	var txErr error
	s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			txErr = fn(ctx)
			return txErr
		},
	)
	s.entries.EXPECT().LatestPublished(ctx, int64(6)).Return(nil, nil)
	s.entries.EXPECT().InsertBatch(ctx, gomock.Any()).Return(errInsert)

	outcome, err := s.worker.FetchAndMerge(ctx, 6)
	s.Nil(outcome)
	s.ErrorIs(txErr, errInsert)

	var fetchErr *FetchError
	s.Require().ErrorAs(err, &fetchErr)
	s.Equal(StageMerge, fetchErr.Stage)
	s.ErrorIs(err, errInsert)
}

func (s *WorkerTestSuite) TestFetchAndMerge_VanishedSource() {
	ctx := context.Background()
	s.sources.EXPECT().Get(ctx, int64(9)).Return(nil, domain.ErrNotFound)

	outcome, err := s.worker.FetchAndMerge(ctx, 9)
	s.NoError(err)
	s.Nil(outcome)
}

func (s *WorkerTestSuite) TestFetchAndMerge_NetworkPhaseRunsOutsideTransaction() {
	ctx := context.Background()
	src := &domain.Source{ID: 3, URL: "https://example.com/feed"}
	inTx := false

	gomock.InOrder(
		s.sources.EXPECT().Get(ctx, int64(3)).DoAndReturn(func(context.Context, int64) (*domain.Source, error) {
			s.False(inTx)
			return src, nil
		}),
		s.fetcher.EXPECT().Fetch(ctx, src.URL, nil, nil).DoAndReturn(
			func(context.Context, string, *string, *string) (*domain.FetchResult, error) {
				s.False(inTx)
				return &domain.FetchResult{Document: &domain.Document{}}, nil
			},
		),
		s.txManager.EXPECT().WithTransaction(ctx, gomock.Any()).DoAndReturn(
			func(ctx context.Context, fn func(context.Context) error) error {
				inTx = true
				defer func() { inTx = false }()
				return fn(ctx)
			},
		),
	)
	s.entries.EXPECT().LatestPublished(ctx, int64(3)).DoAndReturn(func(context.Context, int64) (*time.Time, error) {
		s.True(inTx)
		return nil, nil
	})
	s.entries.EXPECT().InsertBatch(ctx, gomock.Len(0)).Return(nil)
	s.sources.EXPECT().UpdateFetched(ctx, src).DoAndReturn(func(context.Context, *domain.Source) error {
		s.True(inTx)
		return nil
	})

	outcome, err := s.worker.FetchAndMerge(ctx, 3)
	s.Require().NoError(err)
	s.True(outcome.CacheMiss)
}
