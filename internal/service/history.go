package service

import (
	"context"
	"fmt"
	"time"

	"feed_updater/internal/domain"
)

type Timeframe string

const (
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// ParseTimeframe accepts day, week or month.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(s); tf {
	case TimeframeDay, TimeframeWeek, TimeframeMonth:
		return tf, nil
	default:
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
}

func (tf Timeframe) since(now time.Time) time.Time {
	switch tf {
	case TimeframeWeek:
		return now.AddDate(0, 0, -7)
	case TimeframeMonth:
		return now.AddDate(0, -1, 0)
	default:
		return now.AddDate(0, 0, -1)
	}
}

// HistoryService reads back the recorded runs.
type HistoryService struct {
	runs RunStatStore
	now  func() time.Time
}

func NewHistoryService(runs RunStatStore) *HistoryService {
	return &HistoryService{runs: runs, now: time.Now}
}

// Latest returns the most recent run or domain.ErrNotFound.
func (h *HistoryService) Latest(ctx context.Context) (*domain.RunStatRow, error) {
	row, err := h.runs.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest run stat: %w", err)
	}
	return row, nil
}

func (h *HistoryService) Since(ctx context.Context, tf Timeframe) ([]domain.RunStatRow, error) {
	rows, err := h.runs.Since(ctx, tf.since(h.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("run stats for %s: %w", tf, err)
	}
	return rows, nil
}
