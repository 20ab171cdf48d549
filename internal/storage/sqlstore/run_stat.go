package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"feed_updater/internal/domain"
)

const runStatColumns = `timestamp, sources_total, sources_fetched, sources_changed, sources_failed, entries_new,
	dur_total, dur_min, dur_min_source_id, dur_avg, dur_std, dur_max, dur_max_source_id`

const runStatRowQuery = `
	SELECT r.timestamp, r.sources_total, r.sources_fetched, r.sources_changed, r.sources_failed, r.entries_new,
		r.dur_total, r.dur_min, r.dur_min_source_id, r.dur_avg, r.dur_std, r.dur_max, r.dur_max_source_id,
		smin.url AS min_source_url, smax.url AS max_source_url
	FROM run_stats r
	LEFT JOIN sources smin ON smin.id = r.dur_min_source_id
	LEFT JOIN sources smax ON smax.id = r.dur_max_source_id`

type RunStatStore struct {
	db *sqlx.DB
}

func NewRunStatStore(db *sqlx.DB) *RunStatStore {
	return &RunStatStore{db: db}
}

func (s *RunStatStore) Insert(ctx context.Context, stat *domain.RunStat) error {
	exec := GetExecutor(ctx, s.db)

	row := *stat
	row.Timestamp = dbTime(stat.Timestamp)

	_, err := sqlx.NamedExecContext(ctx, exec, `
		INSERT INTO run_stats (`+runStatColumns+`)
		VALUES (:timestamp, :sources_total, :sources_fetched, :sources_changed, :sources_failed, :entries_new,
			:dur_total, :dur_min, :dur_min_source_id, :dur_avg, :dur_std, :dur_max, :dur_max_source_id)`,
		row,
	)
	if err != nil {
		return fmt.Errorf("insert run stat: %w", err)
	}
	return nil
}

// Latest returns the most recent run, or ErrNotFound before the first run.
func (s *RunStatStore) Latest(ctx context.Context) (*domain.RunStatRow, error) {
	exec := GetExecutor(ctx, s.db)

	var row domain.RunStatRow
	err := sqlx.GetContext(ctx, exec, &row, runStatRowQuery+` ORDER BY r.timestamp DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	row.Timestamp = row.Timestamp.UTC()
	return &row, nil
}

// Since returns the runs recorded at or after since, oldest first.
func (s *RunStatStore) Since(ctx context.Context, since time.Time) ([]domain.RunStatRow, error) {
	exec := GetExecutor(ctx, s.db)

	var rows []domain.RunStatRow
	err := sqlx.SelectContext(ctx, exec, &rows,
		exec.Rebind(runStatRowQuery+` WHERE r.timestamp >= ? ORDER BY r.timestamp`),
		dbTime(since),
	)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Timestamp = rows[i].Timestamp.UTC()
	}
	return rows, nil
}
