package ranking_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed_updater/internal/config"
	"feed_updater/internal/domain"
	"feed_updater/internal/ranking"
	"feed_updater/internal/storage/sqlstore"
)

func TestService_RankSources(t *testing.T) {
	ctx := context.Background()

	db, err := sqlstore.Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "rank.db"),
	})
	require.NoError(t, err)
	defer db.Close()

	sources := sqlstore.NewSourceStore(db)
	entries := sqlstore.NewEntryStore(db)

	quiet, err := sources.Create(ctx, "https://quiet.example/feed")
	require.NoError(t, err)
	busy, err := sources.Create(ctx, "https://busy.example/feed")
	require.NoError(t, err)
	demoted, err := sources.Create(ctx, "https://demoted.example/feed")
	require.NoError(t, err)
	require.NoError(t, sources.SetDownrank(ctx, demoted.ID, true))

	now := time.Now().UTC()
	require.NoError(t, entries.InsertBatch(ctx, []domain.Entry{
		{SourceID: quiet.ID, Title: "q", Link: "q", Published: now.Add(-5 * 24 * time.Hour)},
		{SourceID: busy.ID, Title: "b1", Link: "b1", Published: now.Add(-time.Hour)},
		{SourceID: busy.ID, Title: "b2", Link: "b2", Published: now.Add(-2 * time.Hour)},
		{SourceID: demoted.ID, Title: "d", Link: "d", Published: now.Add(-time.Minute)},
		{SourceID: quiet.ID, Title: "ancient", Link: "a", Published: now.Add(-90 * 24 * time.Hour)},
	}))

	svc := ranking.NewService(sources, entries, ranking.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ranked, err := svc.RankSources(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ranked, 3)

	assert.Equal(t, busy.ID, ranked[0].Source.ID)
	assert.Equal(t, 2, ranked[0].Count)
	assert.Equal(t, quiet.ID, ranked[1].Source.ID)
	assert.Equal(t, 1, ranked[1].Count)
	assert.Equal(t, demoted.ID, ranked[2].Source.ID)
	assert.True(t, ranked[2].Source.Downrank)
	assert.Less(t, ranked[2].Rank, -90.0)

	narrow, err := svc.RankSources(ctx, 3)
	require.NoError(t, err)
	require.Len(t, narrow, 2)
	assert.Equal(t, busy.ID, narrow[0].Source.ID)
	assert.Equal(t, demoted.ID, narrow[1].Source.ID)

	wide, err := svc.RankSources(ctx, 120)
	require.NoError(t, err)
	require.Len(t, wide, 3)
	quietRanked, ok := lo.Find(wide, func(r ranking.Ranked) bool { return r.Source.ID == quiet.ID })
	require.True(t, ok)
	assert.Equal(t, 2, quietRanked.Count)
}
