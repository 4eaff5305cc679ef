// Package seeder coordinates the batch migration: it streams source
// documents, isolates each document in its own rollback boundary inside a
// batch transaction, and mirrors committed movies into the search index
// and trending cache.
package seeder

import (
	"context"
	"errors"
	"fmt"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore"
	"github.com/kinocat/catalog-seeder/internal/infra/trendcache"
	"github.com/kinocat/catalog-seeder/internal/usecase/loaders"
	"github.com/kinocat/catalog-seeder/internal/usecase/resolvers"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const (
	ERR_BATCH_COMMIT = "seeder: batch commit failed"
)

var ErrBatchCommit = errors.New(ERR_BATCH_COMMIT)

// Cursor is the forward-only document stream the stages consume.
// *mongo.Cursor satisfies it.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

// Source yields document streams per collection.
type Source interface {
	EstimatedCount(ctx context.Context, collection string) (int64, error)
	Stream(ctx context.Context, collection string, batchSize int32) (Cursor, error)
}

// Store opens batch transactions against the target database.
type Store interface {
	BeginBatch(ctx context.Context) (pgstore.BatchTx, error)
	DB() pgstore.DBTX
}

// SearchSink receives committed movies for indexing. Implementations are
// best-effort: errors are logged, never escalated.
type SearchSink interface {
	Index(ctx context.Context, id int64, doc map[string]any) error
	Flush(ctx context.Context) error
}

// TrendSink receives committed movies for trending-cache admission.
type TrendSink interface {
	CacheMovie(ctx context.Context, m trendcache.Movie) (bool, error)
	Flush(ctx context.Context) error
}

type Config struct {
	PeopleCollection  string
	MoviesCollection  string
	SeasonsCollection string

	BatchSize      int
	CommitInterval int

	SkipPeople  bool
	SkipMovies  bool
	SkipSeasons bool
}

// Seeder runs the three load stages in order: people, movies, seasons.
// Sinks may be nil when their backends are unavailable; the relational
// load proceeds without them.
type Seeder struct {
	cfg    Config
	source Source
	store  Store

	resolver     *resolvers.Resolver
	movieLoader  *loaders.MovieLoader
	seasonLoader *loaders.SeasonLoader

	search SearchSink
	trend  TrendSink

	stats *run.Stats
	l     logger.Logger
}

func New(
	cfg Config,
	source Source,
	store Store,
	search SearchSink,
	trend TrendSink,
	stats *run.Stats,
	l logger.Logger,
) *Seeder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.CommitInterval <= 0 {
		cfg.CommitInterval = 500
	}
	resolver := resolvers.New(resolvers.NewCache(), stats, l)
	return &Seeder{
		cfg:          cfg,
		source:       source,
		store:        store,
		resolver:     resolver,
		movieLoader:  loaders.NewMovieLoader(resolver, stats, l),
		seasonLoader: loaders.NewSeasonLoader(stats, l),
		search:       search,
		trend:        trend,
		stats:        stats,
		l:            l,
	}
}

// Run executes the enabled stages in dependency order. A stage error is
// fatal for the run; per-document errors are not.
func (s *Seeder) Run(ctx context.Context) error {
	if !s.cfg.SkipPeople {
		if err := s.runStage(ctx, "people", s.cfg.PeopleCollection, s.cfg.BatchSize, s.handlePerson); err != nil {
			return err
		}
	}

	if !s.cfg.SkipMovies {
		if err := s.resolver.PreloadRoles(ctx, s.store.DB()); err != nil {
			return err
		}
		if err := s.runStage(ctx, "movies", s.cfg.MoviesCollection, s.cfg.BatchSize, s.handleMovie); err != nil {
			return err
		}
	}

	if !s.cfg.SkipSeasons {
		if err := s.runStage(ctx, "seasons", s.cfg.SeasonsCollection, s.cfg.CommitInterval, s.handleSeason); err != nil {
			return err
		}
	}

	for _, entry := range s.stats.Snapshot() {
		s.l.Info("seeder: final count", "name", entry.Name, "value", entry.Value)
	}
	return nil
}

// handler processes one document on the given transaction. The returned
// hook, if any, runs after the document's writes are durable in the batch.
type handler func(ctx context.Context, db pgstore.DBTX, doc catalog.Document) (after func(context.Context), err error)

func (s *Seeder) runStage(ctx context.Context, name, collection string, batchSize int, h handler) error {
	total, err := s.source.EstimatedCount(ctx, collection)
	if err != nil {
		s.l.Warn("seeder: count unavailable", "stage", name, "error", err.Error())
		total = -1
	}
	s.l.Info("seeder: stage starting", "stage", name, "collection", collection, "estimated", total)

	cur, err := s.source.Stream(ctx, collection, int32(batchSize))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	batch := make([]catalog.Document, 0, batchSize)
	processed := int64(0)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.processBatch(ctx, name, batch, h); err != nil {
			return err
		}
		processed += int64(len(batch))
		s.l.Info("seeder: stage progress", "stage", name, "processed", processed, "estimated", total)
		batch = batch[:0]
		return nil
	}

	for cur.Next(ctx) {
		var doc catalog.Document
		if err := cur.Decode(&doc); err != nil {
			s.stats.Inc(skipStat(name))
			s.l.Warn("seeder: undecodable document", "stage", name, "error", err.Error())
			continue
		}
		batch = append(batch, doc)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("seeder: streaming %s: %w", collection, err)
	}
	if err := flush(); err != nil {
		return err
	}

	s.l.Info("seeder: stage finished", "stage", name, "processed", processed)
	return nil
}

// processBatch isolates each document inside its own rollback boundary and
// commits the batch as a unit. A failed boundary skips that document only;
// a failed batch commit loses the batch and fails the run.
func (s *Seeder) processBatch(ctx context.Context, stage string, docs []catalog.Document, h handler) error {
	tx, err := s.store.BeginBatch(ctx)
	if err != nil {
		return err
	}

	afters := make([]func(context.Context), 0, len(docs))
	for _, doc := range docs {
		rec, err := tx.BeginRecord(ctx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return err
		}

		after, err := h(ctx, rec, doc)
		if err != nil {
			if rbErr := rec.Rollback(ctx); rbErr != nil {
				s.l.Warn("seeder: record rollback failed", "stage", stage, "error", rbErr.Error())
			}
			s.stats.Inc(skipStat(stage))
			s.l.Warn("seeder: document skipped", "stage", stage, "error", pgstore.Diagnostic(err))
			continue
		}

		if err := rec.Commit(ctx); err != nil {
			_ = rec.Rollback(ctx)
			s.stats.Inc(skipStat(stage))
			s.l.Warn("seeder: record commit failed, document skipped", "stage", stage, "error", pgstore.Diagnostic(err))
			continue
		}
		if after != nil {
			afters = append(afters, after)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: %v", ErrBatchCommit, err)
	}

	// Sink mirroring happens only for documents that are now durable.
	for _, after := range afters {
		after(ctx)
	}
	s.flushSinks(ctx)
	return nil
}

func (s *Seeder) handlePerson(ctx context.Context, db pgstore.DBTX, doc catalog.Document) (func(context.Context), error) {
	rec, err := catalog.PersonFromDocument(doc)
	if err != nil {
		return nil, err
	}
	_, err = s.resolver.Person(ctx, db, rec)
	return nil, err
}

func (s *Seeder) handleMovie(ctx context.Context, db pgstore.DBTX, doc catalog.Document) (func(context.Context), error) {
	rec, err := catalog.MovieFromDocument(doc)
	if err != nil {
		return nil, err
	}
	movieID, err := s.movieLoader.Load(ctx, db, rec)
	if err != nil {
		return nil, err
	}

	after := func(ctx context.Context) {
		if s.search != nil {
			if err := s.search.Index(ctx, movieID, loaders.SearchDocument(movieID, doc)); err != nil {
				s.l.Warn("seeder: search index write failed", "movie_id", movieID, "error", err.Error())
			} else {
				s.stats.Inc(run.StatSearchIndexed)
			}
		}
		if s.trend != nil {
			cached, err := s.trend.CacheMovie(ctx, trendcache.Movie{
				ID:        movieID,
				Title:     rec.Title,
				Rating:    rec.MaxRating(),
				Year:      rec.Year,
				PosterURL: rec.PosterURL,
				Genres:    rec.Genres,
			})
			if err != nil {
				s.l.Warn("seeder: trending cache write failed", "movie_id", movieID, "error", err.Error())
			} else if cached {
				s.stats.Inc(run.StatTrendingCached)
			}
		}
	}
	return after, nil
}

func (s *Seeder) handleSeason(ctx context.Context, db pgstore.DBTX, doc catalog.Document) (func(context.Context), error) {
	rec, err := catalog.SeasonFromDocument(doc)
	if err != nil {
		return nil, err
	}
	seasonID, err := s.seasonLoader.Load(ctx, db, rec)
	if err != nil {
		return nil, err
	}
	if seasonID == 0 {
		s.stats.Inc(run.StatSeasonsSkipped)
	}
	return nil, nil
}

func (s *Seeder) flushSinks(ctx context.Context) {
	if s.search != nil {
		if err := s.search.Flush(ctx); err != nil {
			s.l.Warn("seeder: search index flush failed", "error", err.Error())
		}
	}
	if s.trend != nil {
		if err := s.trend.Flush(ctx); err != nil {
			s.l.Warn("seeder: trending cache flush failed", "error", err.Error())
		}
	}
}

func skipStat(stage string) string {
	switch stage {
	case "people":
		return run.StatPeopleSkipped
	case "movies":
		return run.StatMoviesSkipped
	default:
		return run.StatSeasonsSkipped
	}
}
