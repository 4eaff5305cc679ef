package seeder_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore/pgstoretest"
	"github.com/kinocat/catalog-seeder/internal/infra/trendcache"
	"github.com/kinocat/catalog-seeder/internal/usecase/seeder"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

type fakeCursor struct {
	docs []catalog.Document
	pos  int
}

func (c *fakeCursor) Next(ctx context.Context) bool { return c.pos < len(c.docs) }

func (c *fakeCursor) Decode(val any) error {
	doc, ok := val.(*catalog.Document)
	if !ok {
		return errors.New("unexpected decode target")
	}
	*doc = c.docs[c.pos]
	c.pos++
	return nil
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Close(ctx context.Context) error { return nil }

type fakeSource struct {
	collections map[string][]catalog.Document
	streamed    []string
}

func (s *fakeSource) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	return int64(len(s.collections[collection])), nil
}

func (s *fakeSource) Stream(ctx context.Context, collection string, batchSize int32) (seeder.Cursor, error) {
	s.streamed = append(s.streamed, collection)
	return &fakeCursor{docs: s.collections[collection]}, nil
}

type fakeStore struct {
	db      *pgstoretest.DB
	batches []*pgstoretest.BatchTx
	// scripted per-batch overrides, consumed in order
	queue []*pgstoretest.BatchTx
}

func newFakeStore() *fakeStore {
	return &fakeStore{db: &pgstoretest.DB{}}
}

func (s *fakeStore) BeginBatch(ctx context.Context) (pgstore.BatchTx, error) {
	var tx *pgstoretest.BatchTx
	if len(s.queue) > 0 {
		tx = s.queue[0]
		s.queue = s.queue[1:]
	} else {
		tx = &pgstoretest.BatchTx{DB: s.db}
	}
	s.batches = append(s.batches, tx)
	return tx, nil
}

func (s *fakeStore) DB() pgstore.DBTX { return s.db }

type fakeSearch struct {
	indexed map[int64]map[string]any
	flushes int
}

func (f *fakeSearch) Index(ctx context.Context, id int64, doc map[string]any) error {
	if f.indexed == nil {
		f.indexed = map[int64]map[string]any{}
	}
	f.indexed[id] = doc
	return nil
}

func (f *fakeSearch) Flush(ctx context.Context) error {
	f.flushes++
	return nil
}

type fakeTrend struct {
	movies  []trendcache.Movie
	flushes int
}

func (f *fakeTrend) CacheMovie(ctx context.Context, m trendcache.Movie) (bool, error) {
	f.movies = append(f.movies, m)
	return true, nil
}

func (f *fakeTrend) Flush(ctx context.Context) error {
	f.flushes++
	return nil
}

func peopleOnly() seeder.Config {
	return seeder.Config{
		PeopleCollection: "people",
		SkipMovies:       true,
		SkipSeasons:      true,
	}
}

func moviesOnly() seeder.Config {
	return seeder.Config{
		MoviesCollection: "movies",
		SkipPeople:       true,
		SkipSeasons:      true,
	}
}

func seasonsOnly() seeder.Config {
	return seeder.Config{
		SeasonsCollection: "seasons",
		SkipPeople:        true,
		SkipMovies:        true,
	}
}

func TestRunPeopleStageSkipsUnusableDocuments(t *testing.T) {
	source := &fakeSource{collections: map[string][]catalog.Document{
		"people": {
			{"name": "Иван Иванов"},
			{"photo": "https://img.example/no-name.jpg"}, // no usable name
			{"enName": "John Smith"},
		},
	}}
	store := newFakeStore()
	stats := run.NewStats()

	// two resolvable people: miss+insert each
	store.db.EnqueueRowErr(pgx.ErrNoRows)
	store.db.EnqueueRow(int64(1))
	store.db.EnqueueRowErr(pgx.ErrNoRows)
	store.db.EnqueueRow(int64(2))

	s := seeder.New(peopleOnly(), source, store, nil, nil, stats, logger.GetNopLogger())
	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, int64(2), stats.Get(run.StatPeopleInserted))
	require.Equal(t, int64(1), stats.Get(run.StatPeopleSkipped))

	require.Len(t, store.batches, 1)
	tx := store.batches[0]
	require.True(t, tx.Committed)
	require.Len(t, tx.Records, 3)
	require.True(t, tx.Records[0].Committed)
	require.True(t, tx.Records[1].RolledBack)
	require.True(t, tx.Records[2].Committed)
}

func TestRunMovieFailureIsolatedToItsBoundary(t *testing.T) {
	source := &fakeSource{collections: map[string][]catalog.Document{
		"movies": {
			{"name": "Хороший фильм"},
			{"name": "Плохой фильм"},
		},
	}}
	store := newFakeStore()
	store.db.RowsNext = &pgstoretest.Rows{} // empty roles preload
	stats := run.NewStats()
	search := &fakeSearch{}
	trend := &fakeTrend{}

	store.db.EnqueueRow(int64(1)) // first movie upsert
	store.db.EnqueueRowErr(errors.New("deadlock detected"))

	s := seeder.New(moviesOnly(), source, store, search, trend, stats, logger.GetNopLogger())
	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, int64(1), stats.Get(run.StatMoviesInserted))
	require.Equal(t, int64(1), stats.Get(run.StatMoviesSkipped))

	tx := store.batches[0]
	require.True(t, tx.Committed)
	require.True(t, tx.Records[0].Committed)
	require.True(t, tx.Records[1].RolledBack)

	// Only the committed movie reaches the sinks.
	require.Len(t, search.indexed, 1)
	require.Contains(t, search.indexed, int64(1))
	require.Len(t, trend.movies, 1)
	require.Equal(t, "Хороший фильм", trend.movies[0].Title)
	require.Equal(t, 1, search.flushes)
	require.Equal(t, 1, trend.flushes)
	require.Equal(t, int64(1), stats.Get(run.StatSearchIndexed))
	require.Equal(t, int64(1), stats.Get(run.StatTrendingCached))
}

func TestRunBatchCommitFailureIsFatal(t *testing.T) {
	source := &fakeSource{collections: map[string][]catalog.Document{
		"movies": {{"name": "Обречённый"}},
	}}
	store := newFakeStore()
	store.db.RowsNext = &pgstoretest.Rows{}
	store.queue = []*pgstoretest.BatchTx{
		{DB: store.db, CommitErr: errors.New("connection reset")},
	}
	store.db.EnqueueRow(int64(1))

	s := seeder.New(moviesOnly(), source, store, nil, nil, run.NewStats(), logger.GetNopLogger())
	err := s.Run(context.Background())
	require.ErrorIs(t, err, seeder.ErrBatchCommit)
	require.True(t, store.batches[0].RolledBack)
}

func TestRunRecordCommitFailureSkipsDocumentOnly(t *testing.T) {
	source := &fakeSource{collections: map[string][]catalog.Document{
		"people": {
			{"name": "Первый"},
			{"name": "Второй"},
		},
	}}
	store := newFakeStore()
	store.queue = []*pgstoretest.BatchTx{
		{DB: store.db, RecordCommitErrs: []error{errors.New("boundary lost"), nil}},
	}
	stats := run.NewStats()

	store.db.EnqueueRowErr(pgx.ErrNoRows)
	store.db.EnqueueRow(int64(1))
	store.db.EnqueueRowErr(pgx.ErrNoRows)
	store.db.EnqueueRow(int64(2))

	s := seeder.New(peopleOnly(), source, store, nil, nil, stats, logger.GetNopLogger())
	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, int64(1), stats.Get(run.StatPeopleSkipped))
	tx := store.batches[0]
	require.True(t, tx.Committed)
	require.True(t, tx.Records[0].RolledBack)
	require.True(t, tx.Records[1].Committed)
}

func TestRunSeasonOrphanCountsAsSkipped(t *testing.T) {
	source := &fakeSource{collections: map[string][]catalog.Document{
		"seasons": {
			{"movieId": int64(42), "number": int64(1)},
			{"movieId": int64(999), "number": int64(1)}, // unknown movie
		},
	}}
	store := newFakeStore()
	stats := run.NewStats()

	store.db.EnqueueRow(int64(42))        // parent exists
	store.db.EnqueueRow(int64(7))         // season id
	store.db.EnqueueRowErr(pgx.ErrNoRows) // orphan parent check

	s := seeder.New(seasonsOnly(), source, store, nil, nil, stats, logger.GetNopLogger())
	require.NoError(t, s.Run(context.Background()))

	require.Equal(t, int64(1), stats.Get(run.StatSeasonsUpserted))
	require.Equal(t, int64(1), stats.Get(run.StatSeasonsSkipped))

	// The orphan is a skip, not an error: its boundary still commits.
	tx := store.batches[0]
	require.True(t, tx.Records[1].Committed)
}

func TestRunHonorsSkipFlags(t *testing.T) {
	source := &fakeSource{collections: map[string][]catalog.Document{}}
	store := newFakeStore()

	cfg := seeder.Config{
		PeopleCollection:  "people",
		MoviesCollection:  "movies",
		SeasonsCollection: "seasons",
		SkipPeople:        true,
		SkipMovies:        true,
		SkipSeasons:       true,
	}
	s := seeder.New(cfg, source, store, nil, nil, run.NewStats(), logger.GetNopLogger())
	require.NoError(t, s.Run(context.Background()))
	require.Empty(t, source.streamed)
	require.Empty(t, store.batches)
}

func TestRunSplitsIntoBatches(t *testing.T) {
	docs := make([]catalog.Document, 0, 5)
	for _, name := range []string{"А", "Б", "В", "Г", "Д"} {
		docs = append(docs, catalog.Document{"name": name})
	}
	source := &fakeSource{collections: map[string][]catalog.Document{"people": docs}}
	store := newFakeStore()
	stats := run.NewStats()

	for i := 0; i < 5; i++ {
		store.db.EnqueueRowErr(pgx.ErrNoRows)
		store.db.EnqueueRow(int64(i + 1))
	}

	cfg := peopleOnly()
	cfg.BatchSize = 2
	s := seeder.New(cfg, source, store, nil, nil, stats, logger.GetNopLogger())
	require.NoError(t, s.Run(context.Background()))

	// 5 documents with batch size 2: two full batches plus the tail.
	require.Len(t, store.batches, 3)
	for _, tx := range store.batches {
		require.True(t, tx.Committed)
	}
	require.Equal(t, int64(5), stats.Get(run.StatPeopleInserted))
}
