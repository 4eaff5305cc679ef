// Package resolvers maps normalized lookup values (countries, genres,
// roles, people, distributors) to their relational ids, creating rows on
// first sight and memoizing results for the run.
package resolvers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

// roleSynonyms maps the lowercased source profession to the canonical role
// name. Professions outside this table link with no role.
var roleSynonyms = map[string]string{
	"actor":               "actor",
	"director":            "director",
	"producer":            "producer",
	"writer":              "writer",
	"composer":            "composer",
	"operator":            "cinematographer",
	"cinematographer":     "cinematographer",
	"editor":              "editor",
	"production designer": "production_designer",
	"designer":            "production_designer",
}

// Cache memoizes resolved ids for the lifetime of one run. It is not safe
// for concurrent use; each worker owns its own cache.
type Cache struct {
	countries    map[string]int64
	genres       map[string]int64
	roles        map[string]int64
	people       map[string]int64
	distributors map[string]int64
}

func NewCache() *Cache {
	return &Cache{
		countries:    map[string]int64{},
		genres:       map[string]int64{},
		roles:        map[string]int64{},
		people:       map[string]int64{},
		distributors: map[string]int64{},
	}
}

// Resolver resolves lookup entities against the target store. Statements
// run on whichever transaction the caller passes so resolved rows share
// the document's rollback boundary.
type Resolver struct {
	cache *Cache
	stats *run.Stats
	l     logger.Logger
}

func New(cache *Cache, stats *run.Stats, l logger.Logger) *Resolver {
	return &Resolver{cache: cache, stats: stats, l: l}
}

// PreloadRoles warms the role cache so movie loading never queries roles
// row by row.
func (r *Resolver) PreloadRoles(ctx context.Context, db pgstore.DBTX) error {
	rows, err := db.Query(ctx, "SELECT id, name FROM roles")
	if err != nil {
		return fmt.Errorf("resolvers: preloading roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return fmt.Errorf("resolvers: scanning role: %w", err)
		}
		r.cache.roles[name] = id
	}
	return rows.Err()
}

// Country returns the id for a country name, inserting it on first sight.
// Empty names resolve to 0 with no error.
func (r *Resolver) Country(ctx context.Context, db pgstore.DBTX, name string) (int64, error) {
	return r.lookupOrCreate(ctx, db, r.cache.countries, name,
		"SELECT id FROM countries WHERE name = $1",
		"INSERT INTO countries(name) VALUES ($1) RETURNING id",
		run.StatCountriesCreated)
}

// Genre returns the id for a genre name, inserting it on first sight.
func (r *Resolver) Genre(ctx context.Context, db pgstore.DBTX, name string) (int64, error) {
	return r.lookupOrCreate(ctx, db, r.cache.genres, name,
		"SELECT id FROM genres WHERE name = $1",
		"INSERT INTO genres(name) VALUES ($1) RETURNING id",
		run.StatGenresCreated)
}

// RoleID maps a source profession through the synonym table to a role id.
// Unknown professions and roles missing from the table resolve to 0.
func (r *Resolver) RoleID(ctx context.Context, db pgstore.DBTX, profession string) (int64, error) {
	canonical, ok := roleSynonyms[profession]
	if !ok {
		return 0, nil
	}
	if id, ok := r.cache.roles[canonical]; ok {
		return id, nil
	}

	var id int64
	err := db.QueryRow(ctx, "SELECT id FROM roles WHERE name = $1", canonical).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolvers: looking up role %q: %w", canonical, err)
	}
	r.cache.roles[canonical] = id
	return id, nil
}

// Person resolves a person record to an id, deduplicating by the
// (name, english-name) pair. Existing rows are updated fill-if-null: a
// field already set is never overwritten.
func (r *Resolver) Person(ctx context.Context, db pgstore.DBTX, rec *catalog.PersonRecord) (int64, error) {
	key := rec.Key()
	if id, ok := r.cache.people[key]; ok {
		return id, nil
	}

	var id int64
	err := db.QueryRow(ctx,
		"SELECT id FROM people WHERE name = $1 AND COALESCE(en_name,'') = COALESCE($2,'')",
		rec.Name, rec.EnName,
	).Scan(&id)

	switch {
	case err == nil:
		_, err = db.Exec(ctx, `
			UPDATE people
			SET photo_url = COALESCE(photo_url, $1),
			    birth_date = COALESCE(birth_date, $2),
			    death_date = COALESCE(death_date, $3),
			    birth_place = COALESCE(birth_place, $4),
			    updated_at = CURRENT_TIMESTAMP
			WHERE id = $5`,
			rec.PhotoURL, rec.BirthDate, rec.DeathDate, rec.BirthPlace, id,
		)
		if err != nil {
			return 0, fmt.Errorf("resolvers: updating person %d: %w", id, err)
		}
		r.stats.Inc(run.StatPeopleUpdated)

	case errors.Is(err, pgx.ErrNoRows):
		err = db.QueryRow(ctx, `
			INSERT INTO people(name, en_name, birth_date, death_date, birth_place, photo_url)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id`,
			rec.Name, rec.EnName, rec.BirthDate, rec.DeathDate, rec.BirthPlace, rec.PhotoURL,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("resolvers: inserting person %q: %w", rec.Name, err)
		}
		r.stats.Inc(run.StatPeopleInserted)

	default:
		return 0, fmt.Errorf("resolvers: looking up person %q: %w", rec.Name, err)
	}

	r.cache.people[key] = id
	return id, nil
}

// Distributor resolves a (name, release-name) pair to an id, inserting it
// on first sight. A nil name resolves to 0.
func (r *Resolver) Distributor(ctx context.Context, db pgstore.DBTX, name, releaseName *string) (int64, error) {
	if name == nil {
		return 0, nil
	}
	n := *catalog.Truncate(name, catalog.MaxNameLen)
	rel := catalog.Truncate(releaseName, catalog.MaxNameLen)

	key := n + "\x00"
	if rel != nil {
		key += *rel
	}
	if id, ok := r.cache.distributors[key]; ok {
		return id, nil
	}

	var id int64
	err := db.QueryRow(ctx,
		"SELECT id FROM distributors WHERE name = $1 AND COALESCE(release_name,'') = COALESCE($2,'')",
		n, rel,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = db.QueryRow(ctx,
			"INSERT INTO distributors(name, release_name) VALUES ($1, $2) RETURNING id",
			n, rel,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("resolvers: inserting distributor %q: %w", n, err)
		}
		r.stats.Inc(run.StatDistributorsCreated)
	} else if err != nil {
		return 0, fmt.Errorf("resolvers: looking up distributor %q: %w", n, err)
	}

	r.cache.distributors[key] = id
	return id, nil
}

func (r *Resolver) lookupOrCreate(
	ctx context.Context,
	db pgstore.DBTX,
	cache map[string]int64,
	name string,
	selectStmt, insertStmt, stat string,
) (int64, error) {
	if name == "" {
		return 0, nil
	}
	if id, ok := cache[name]; ok {
		return id, nil
	}

	var id int64
	err := db.QueryRow(ctx, selectStmt, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = db.QueryRow(ctx, insertStmt, name).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("resolvers: inserting %q: %w", name, err)
		}
		r.stats.Inc(stat)
	} else if err != nil {
		return 0, fmt.Errorf("resolvers: looking up %q: %w", name, err)
	}

	cache[name] = id
	return id, nil
}
