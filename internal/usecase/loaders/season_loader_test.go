package loaders_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore/pgstoretest"
	"github.com/kinocat/catalog-seeder/internal/usecase/loaders"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

func newSeasonLoader() (*loaders.SeasonLoader, *run.Stats) {
	stats := run.NewStats()
	return loaders.NewSeasonLoader(stats, logger.GetNopLogger()), stats
}

func TestSeasonLoaderSkipsOrphan(t *testing.T) {
	sl, stats := newSeasonLoader()
	db := &pgstoretest.DB{}
	db.EnqueueRowErr(pgx.ErrNoRows)

	seasonID, err := sl.Load(context.Background(), db, &catalog.SeasonRecord{MovieID: 999, Number: 1})
	require.NoError(t, err)
	require.Zero(t, seasonID)
	require.Equal(t, int64(0), stats.Get(run.StatSeasonsUpserted))
	require.Len(t, db.Calls, 1)
}

func TestSeasonLoaderUpsertsSeasonAndEpisodes(t *testing.T) {
	sl, stats := newSeasonLoader()
	db := &pgstoretest.DB{}

	name := "Пилот"
	rec := &catalog.SeasonRecord{
		MovieID: 42,
		Number:  2,
		Episodes: []catalog.EpisodeRecord{
			{Number: 1, Title: &name},
			{Number: 2},
		},
	}

	db.EnqueueRow(int64(42))  // parent exists
	db.EnqueueRow(int64(505)) // season id

	seasonID, err := sl.Load(context.Background(), db, rec)
	require.NoError(t, err)
	require.Equal(t, int64(505), seasonID)
	require.Equal(t, int64(1), stats.Get(run.StatSeasonsUpserted))
	require.Equal(t, int64(2), stats.Get(run.StatEpisodesUpserted))

	require.Contains(t, db.Calls[1].SQL, "ON CONFLICT (movie_id, season_number)")

	require.Len(t, db.Batches, 1)
	episodes := db.Batches[0].QueuedQueries
	require.Len(t, episodes, 2)
	require.Contains(t, episodes[0].SQL, "ON CONFLICT (season_id, episode_number)")
	require.Equal(t, int64(505), episodes[0].Arguments[0])
	require.Equal(t, int64(1), episodes[0].Arguments[1])
	require.Equal(t, int64(2), episodes[1].Arguments[1])
}

func TestSeasonLoaderNoEpisodes(t *testing.T) {
	sl, stats := newSeasonLoader()
	db := &pgstoretest.DB{}

	db.EnqueueRow(int64(42))
	db.EnqueueRow(int64(1))

	_, err := sl.Load(context.Background(), db, &catalog.SeasonRecord{MovieID: 42, Number: 1})
	require.NoError(t, err)
	require.Empty(t, db.Batches)
	require.Equal(t, int64(0), stats.Get(run.StatEpisodesUpserted))
}
