package resolvers_test

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore/pgstoretest"
	"github.com/kinocat/catalog-seeder/internal/usecase/resolvers"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

func errNoRows() error { return pgx.ErrNoRows }

func newResolver() (*resolvers.Resolver, *run.Stats) {
	stats := run.NewStats()
	return resolvers.New(resolvers.NewCache(), stats, logger.GetNopLogger()), stats
}

func TestCountryCreatesOnFirstSightAndCaches(t *testing.T) {
	r, stats := newResolver()
	db := &pgstoretest.DB{}
	ctx := context.Background()

	// First call misses the SELECT and inserts.
	db.EnqueueRowErr(errNoRows())
	db.EnqueueRow(int64(42))

	id, err := r.Country(ctx, db, "Франция")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.Equal(t, int64(1), stats.Get(run.StatCountriesCreated))
	require.Len(t, db.Calls, 2)
	require.Contains(t, db.Calls[1].SQL, "INSERT INTO countries")

	// Second call is served from the cache without touching the store.
	id, err = r.Country(ctx, db, "Франция")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
	require.Len(t, db.Calls, 2)
}

func TestCountryFindsExistingRow(t *testing.T) {
	r, stats := newResolver()
	db := &pgstoretest.DB{}
	db.EnqueueRow(int64(7))

	id, err := r.Country(context.Background(), db, "Япония")
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
	require.Equal(t, int64(0), stats.Get(run.StatCountriesCreated))
}

func TestCountryEmptyNameResolvesToZero(t *testing.T) {
	r, _ := newResolver()
	db := &pgstoretest.DB{}

	id, err := r.Country(context.Background(), db, "")
	require.NoError(t, err)
	require.Zero(t, id)
	require.Empty(t, db.Calls)
}

func TestRoleIDSynonyms(t *testing.T) {
	tests := []struct {
		profession string
		canonical  string
	}{
		{"actor", "actor"},
		{"operator", "cinematographer"},
		{"cinematographer", "cinematographer"},
		{"designer", "production_designer"},
		{"production designer", "production_designer"},
	}

	for _, tc := range tests {
		t.Run(tc.profession, func(t *testing.T) {
			r, _ := newResolver()
			db := &pgstoretest.DB{}
			db.EnqueueRow(int64(3))

			id, err := r.RoleID(context.Background(), db, tc.profession)
			require.NoError(t, err)
			require.Equal(t, int64(3), id)
			require.Len(t, db.Calls, 1)
			require.Equal(t, []any{tc.canonical}, db.Calls[0].Args)
		})
	}
}

func TestRoleIDUnknownProfessionResolvesToZero(t *testing.T) {
	r, _ := newResolver()
	db := &pgstoretest.DB{}

	id, err := r.RoleID(context.Background(), db, "stunt coordinator")
	require.NoError(t, err)
	require.Zero(t, id)
	require.Empty(t, db.Calls)
}

func TestPreloadRolesWarmsCache(t *testing.T) {
	r, _ := newResolver()
	db := &pgstoretest.DB{
		RowsNext: &pgstoretest.Rows{Data: [][]any{
			{int64(1), "actor"},
			{int64(2), "director"},
		}},
	}

	require.NoError(t, r.PreloadRoles(context.Background(), db))

	// Preloaded roles must resolve without another query.
	calls := len(db.Calls)
	id, err := r.RoleID(context.Background(), db, "director")
	require.NoError(t, err)
	require.Equal(t, int64(2), id)
	require.Len(t, db.Calls, calls)
}

func TestPersonInsertsNewAndCachesByPair(t *testing.T) {
	r, stats := newResolver()
	db := &pgstoretest.DB{}
	ctx := context.Background()

	en := "Ivan Ivanov"
	rec := &catalog.PersonRecord{Name: "Иван Иванов", EnName: &en}

	db.EnqueueRowErr(errNoRows())
	db.EnqueueRow(int64(11))

	id, err := r.Person(ctx, db, rec)
	require.NoError(t, err)
	require.Equal(t, int64(11), id)
	require.Equal(t, int64(1), stats.Get(run.StatPeopleInserted))

	// Same pair comes straight from the cache.
	id, err = r.Person(ctx, db, rec)
	require.NoError(t, err)
	require.Equal(t, int64(11), id)
	require.Len(t, db.Calls, 2)

	// A different english name is a different person.
	other := "I. Ivanov"
	rec2 := &catalog.PersonRecord{Name: "Иван Иванов", EnName: &other}
	db.EnqueueRowErr(errNoRows())
	db.EnqueueRow(int64(12))

	id, err = r.Person(ctx, db, rec2)
	require.NoError(t, err)
	require.Equal(t, int64(12), id)
}

func TestPersonUpdatesExistingFillIfNull(t *testing.T) {
	r, stats := newResolver()
	db := &pgstoretest.DB{}
	photo := "https://img.example/p.jpg"
	rec := &catalog.PersonRecord{Name: "Акира Куросава", PhotoURL: &photo}

	db.EnqueueRow(int64(5))

	id, err := r.Person(context.Background(), db, rec)
	require.NoError(t, err)
	require.Equal(t, int64(5), id)
	require.Equal(t, int64(1), stats.Get(run.StatPeopleUpdated))
	require.Equal(t, int64(0), stats.Get(run.StatPeopleInserted))

	update := db.Calls[1]
	require.Contains(t, update.SQL, "UPDATE people")
	// Fill-if-null: existing values win over incoming ones.
	require.Contains(t, update.SQL, "COALESCE(photo_url, $1)")
	require.Contains(t, update.SQL, "COALESCE(birth_date, $2)")
}

func TestDistributorResolvesPair(t *testing.T) {
	r, stats := newResolver()
	db := &pgstoretest.DB{}
	ctx := context.Background()

	name := "Централ Партнершип"
	rel := "ЦПШ"

	db.EnqueueRowErr(errNoRows())
	db.EnqueueRow(int64(9))

	id, err := r.Distributor(ctx, db, &name, &rel)
	require.NoError(t, err)
	require.Equal(t, int64(9), id)
	require.Equal(t, int64(1), stats.Get(run.StatDistributorsCreated))

	id, err = r.Distributor(ctx, db, &name, &rel)
	require.NoError(t, err)
	require.Equal(t, int64(9), id)
	require.Len(t, db.Calls, 2)
}

func TestDistributorNilNameResolvesToZero(t *testing.T) {
	r, _ := newResolver()
	db := &pgstoretest.DB{}

	id, err := r.Distributor(context.Background(), db, nil, nil)
	require.NoError(t, err)
	require.Zero(t, id)
	require.Empty(t, db.Calls)
}

func TestDistributorNameTruncated(t *testing.T) {
	r, _ := newResolver()
	db := &pgstoretest.DB{}
	long := strings.Repeat("д", 300)

	db.EnqueueRowErr(errNoRows())
	db.EnqueueRow(int64(2))

	_, err := r.Distributor(context.Background(), db, &long, nil)
	require.NoError(t, err)

	inserted, ok := db.Calls[1].Args[0].(string)
	require.True(t, ok)
	require.Equal(t, catalog.MaxNameLen, len([]rune(inserted)))
}
