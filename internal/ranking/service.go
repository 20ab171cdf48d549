package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feed_updater/internal/domain"
)

type SourceLister interface {
	List(ctx context.Context) ([]domain.Source, error)
}

type EntryReader interface {
	RecentUnvisited(ctx context.Context, since time.Time) ([]domain.Entry, error)
}

// Service serves the ranked overview from storage.
type Service struct {
	sources SourceLister
	entries EntryReader
	config  Config
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(sources SourceLister, entries EntryReader, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		sources: sources,
		entries: entries,
		config:  cfg.withDefaults(),
		logger:  logger.With("component", "ranking"),
		now:     time.Now,
	}
}

// RankSources ranks sources over the trailing windowDays. Zero or less
// uses the configured window.
func (s *Service) RankSources(ctx context.Context, windowDays int) ([]Ranked, error) {
	now := s.now().UTC()

	cfg := s.config
	if windowDays > 0 {
		cfg.WindowDays = windowDays
	}

	sources, err := s.sources.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	entries, err := s.entries.RecentUnvisited(ctx, now.Add(-cfg.Window()))
	if err != nil {
		return nil, fmt.Errorf("load recent entries: %w", err)
	}

	ranked := Rank(sources, entries, now, cfg)
	s.logger.Debug("ranked sources", "sources", len(ranked), "entries", len(entries))

	return ranked, nil
}
