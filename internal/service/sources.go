package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"feed_updater/internal/domain"
)

// SourceService manages the set of subscribed sources.
type SourceService struct {
	sources SourceStore
	worker  *Worker
	mirror  Mirror
	logger  *slog.Logger
}

func NewSourceService(sources SourceStore, worker *Worker, mirror Mirror, logger *slog.Logger) *SourceService {
	return &SourceService{
		sources: sources,
		worker:  worker,
		mirror:  mirror,
		logger:  logger.With("component", "sources"),
	}
}

// Add subscribes to rawURL and fetches it right away. The source is kept
// even when that first fetch fails; the fetch error is returned alongside
// it.
func (s *SourceService) Add(ctx context.Context, rawURL string) (*domain.Source, *domain.Outcome, error) {
	addr := strings.TrimSpace(rawURL)
	u, err := url.Parse(addr)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, nil, fmt.Errorf("invalid source url %q", rawURL)
	}

	src, err := s.sources.Create(ctx, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("create source: %w", err)
	}
	s.logger.Info("source added", "source_id", src.ID, "url", src.URL)
	defer s.markDirty(ctx, "source added")

	outcome, fetchErr := s.worker.FetchAndMerge(ctx, src.ID)
	if fetchErr != nil {
		s.logger.Warn("initial fetch failed", "source_id", src.ID, "url", src.URL, "error", fetchErr)
		return src, nil, fetchErr
	}

	if fresh, err := s.sources.Get(ctx, src.ID); err == nil {
		src = fresh
	}
	return src, outcome, nil
}

// Rename sets the display title. A blank title clears it so the next
// successful fetch fills it in again.
func (s *SourceService) Rename(ctx context.Context, id int64, title string) error {
	var t *string
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		t = &trimmed
	}
	if err := s.sources.Rename(ctx, id, t); err != nil {
		return fmt.Errorf("rename source %d: %w", id, err)
	}
	s.markDirty(ctx, "source renamed")
	return nil
}

func (s *SourceService) SetDownrank(ctx context.Context, id int64, downrank bool) error {
	if err := s.sources.SetDownrank(ctx, id, downrank); err != nil {
		return fmt.Errorf("set downrank for source %d: %w", id, err)
	}
	s.markDirty(ctx, "source downranked")
	return nil
}

// Delete removes the source together with its entries.
func (s *SourceService) Delete(ctx context.Context, id int64) error {
	if err := s.sources.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	s.logger.Info("source deleted", "source_id", id)
	s.markDirty(ctx, "source deleted")
	return nil
}

// List returns all sources, most recently updated first.
func (s *SourceService) List(ctx context.Context) ([]domain.Source, error) {
	sources, err := s.sources.ListByLastUpdated(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (s *SourceService) markDirty(ctx context.Context, reason string) {
	if s.mirror == nil {
		return
	}
	s.mirror.MarkDirty()
	if err := s.mirror.SyncIfNeeded(ctx, reason); err != nil {
		s.logger.Error("failed to sync mirror", "error", err)
	}
}
