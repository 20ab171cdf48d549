package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"feed_updater/internal/domain"
)

const sourceColumns = `id, url, title, etag, modified, last_updated, downrank`

type SourceStore struct {
	db *sqlx.DB
}

func NewSourceStore(db *sqlx.DB) *SourceStore {
	return &SourceStore{db: db}
}

// List returns every source ordered by id.
func (s *SourceStore) List(ctx context.Context) ([]domain.Source, error) {
	exec := GetExecutor(ctx, s.db)

	var sources []domain.Source
	err := sqlx.SelectContext(ctx, exec, &sources, `SELECT `+sourceColumns+` FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return normalizeSources(sources), nil
}

// ListByLastUpdated returns every source, most recently updated first and
// never-updated sources last.
func (s *SourceStore) ListByLastUpdated(ctx context.Context) ([]domain.Source, error) {
	exec := GetExecutor(ctx, s.db)

	var sources []domain.Source
	err := sqlx.SelectContext(ctx, exec, &sources,
		`SELECT `+sourceColumns+` FROM sources ORDER BY last_updated IS NULL, last_updated DESC, id`)
	if err != nil {
		return nil, err
	}
	return normalizeSources(sources), nil
}

func (s *SourceStore) Get(ctx context.Context, id int64) (*domain.Source, error) {
	exec := GetExecutor(ctx, s.db)

	var src domain.Source
	err := sqlx.GetContext(ctx, exec, &src, exec.Rebind(`SELECT `+sourceColumns+` FROM sources WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	normalizeSource(&src)
	return &src, nil
}

func (s *SourceStore) Create(ctx context.Context, url string) (*domain.Source, error) {
	exec := GetExecutor(ctx, s.db)

	var id int64
	err := exec.QueryRowxContext(ctx,
		exec.Rebind(`INSERT INTO sources (url, downrank) VALUES (?, ?) RETURNING id`),
		url, false,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert source: %w", err)
	}

	return &domain.Source{ID: id, URL: url}, nil
}

// UpdateFetched stores the metadata a successful fetch refreshes.
func (s *SourceStore) UpdateFetched(ctx context.Context, src *domain.Source) error {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx, exec.Rebind(`
		UPDATE sources
		SET title = ?, etag = ?, modified = ?, last_updated = ?
		WHERE id = ?`),
		src.Title,
		src.ETag,
		src.Modified,
		dbTimePtr(src.LastUpdated),
		src.ID,
	)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Rename sets the display title; nil clears it.
func (s *SourceStore) Rename(ctx context.Context, id int64, title *string) error {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx, exec.Rebind(`UPDATE sources SET title = ? WHERE id = ?`), title, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (s *SourceStore) SetDownrank(ctx context.Context, id int64, downrank bool) error {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx, exec.Rebind(`UPDATE sources SET downrank = ? WHERE id = ?`), downrank, id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// Delete removes a source; its entries go with it.
func (s *SourceStore) Delete(ctx context.Context, id int64) error {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx, exec.Rebind(`DELETE FROM sources WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizeSources(sources []domain.Source) []domain.Source {
	for i := range sources {
		normalizeSource(&sources[i])
	}
	return sources
}

func normalizeSource(src *domain.Source) {
	src.LastUpdated = utcPtr(src.LastUpdated)
}
