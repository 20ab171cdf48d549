package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"feed_updater/internal/domain"
)

const (
	entryColumns   = `id, source_id, title, link, published, description, author, visited, liked, dismissed`
	insertChunkLen = 100
)

type EntryStore struct {
	db *sqlx.DB
}

func NewEntryStore(db *sqlx.DB) *EntryStore {
	return &EntryStore{db: db}
}

// LatestPublished returns the newest published timestamp stored for a
// source, or nil when the source has no entries yet.
func (s *EntryStore) LatestPublished(ctx context.Context, sourceID int64) (*time.Time, error) {
	exec := GetExecutor(ctx, s.db)

	var published time.Time
	err := exec.QueryRowxContext(ctx,
		exec.Rebind(`SELECT published FROM entries WHERE source_id = ? ORDER BY published DESC LIMIT 1`),
		sourceID,
	).Scan(&published)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	published = published.UTC()
	return &published, nil
}

// InsertBatch inserts new entries. User-state columns start out NULL.
func (s *EntryStore) InsertBatch(ctx context.Context, entries []domain.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	exec := GetExecutor(ctx, s.db)

	rows := lo.Map(entries, func(e domain.Entry, _ int) domain.Entry {
		return domain.Entry{
			SourceID:    e.SourceID,
			Title:       e.Title,
			Link:        e.Link,
			Published:   dbTime(e.Published),
			Description: e.Description,
			Author:      e.Author,
		}
	})

	for _, chunk := range lo.Chunk(rows, insertChunkLen) {
		_, err := sqlx.NamedExecContext(ctx, exec, `
			INSERT INTO entries (source_id, title, link, published, description, author)
			VALUES (:source_id, :title, :link, :published, :description, :author)`,
			chunk,
		)
		if err != nil {
			return fmt.Errorf("insert entries: %w", err)
		}
	}

	return nil
}

// ListBySource returns a source's entries, newest first.
func (s *EntryStore) ListBySource(ctx context.Context, sourceID int64) ([]domain.Entry, error) {
	exec := GetExecutor(ctx, s.db)

	var entries []domain.Entry
	err := sqlx.SelectContext(ctx, exec, &entries,
		exec.Rebind(`SELECT `+entryColumns+` FROM entries WHERE source_id = ? ORDER BY published DESC, id DESC`),
		sourceID,
	)
	if err != nil {
		return nil, err
	}
	return normalizeEntries(entries), nil
}

// RecentUnvisited returns entries published at or after since that were
// never visited, grouped by source and newest first within a source.
func (s *EntryStore) RecentUnvisited(ctx context.Context, since time.Time) ([]domain.Entry, error) {
	exec := GetExecutor(ctx, s.db)

	var entries []domain.Entry
	err := sqlx.SelectContext(ctx, exec, &entries,
		exec.Rebind(`
			SELECT `+entryColumns+`
			FROM entries
			WHERE published >= ? AND visited IS NULL
			ORDER BY source_id, published DESC, id DESC`),
		dbTime(since),
	)
	if err != nil {
		return nil, err
	}
	return normalizeEntries(entries), nil
}

// MarkVisited records the first visit of an entry; later visits keep the
// original timestamp.
func (s *EntryStore) MarkVisited(ctx context.Context, id int64, at time.Time) error {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx,
		exec.Rebind(`UPDATE entries SET visited = COALESCE(visited, ?) WHERE id = ?`),
		dbTime(at), id,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func normalizeEntries(entries []domain.Entry) []domain.Entry {
	for i := range entries {
		e := &entries[i]
		e.Published = e.Published.UTC()
		e.Visited = utcPtr(e.Visited)
		e.Liked = utcPtr(e.Liked)
		e.Dismissed = utcPtr(e.Dismissed)
	}
	return entries
}
