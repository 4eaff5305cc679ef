package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kinocat/catalog-seeder/internal/config"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/mongostore"
	"github.com/kinocat/catalog-seeder/internal/infra/observability"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore"
	"github.com/kinocat/catalog-seeder/internal/infra/searchindex"
	"github.com/kinocat/catalog-seeder/internal/infra/trendcache"
	"github.com/kinocat/catalog-seeder/internal/usecase/seeder"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const searchIndexName = "movies"

func main() {
	fmt.Println("Starting catalog seeder - setting up logger instance")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	l := logger.NewZapLogger(cfg.VerboseLogs)
	runID := uuid.NewString()
	// MAX_WORKERS is accepted for forward compatibility; loading is single-worker.
	l.Info("catalog seeder starting", "run_id", runID, "batch_size", cfg.BatchSize, "max_workers", cfg.MaxWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := run.NewStats()
	metrics := observability.NewMetrics(runID)
	stats.SetObserver(metrics.Observe)
	if cfg.MetricsAddr != "" {
		metrics.Serve(cfg.MetricsAddr, l)
	}

	// source document store, required
	source, err := mongostore.NewStore(mongostore.Config{URI: cfg.MongoURI, DBName: cfg.MongoDB}, l)
	if err != nil {
		l.Error("error building document store", "error", err.Error())
		panic(err)
	}
	if err := source.Connect(ctx); err != nil {
		l.Error("error connecting document store", "error", err.Error())
		panic(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := source.Close(closeCtx); err != nil {
			l.Error("error closing document store", "error", err.Error())
		}
	}()

	// target relational store, required
	store, err := pgstore.NewStore(pgstore.Config{DSN: cfg.PostgresDSN()}, l)
	if err != nil {
		l.Error("error building relational store", "error", err.Error())
		panic(err)
	}
	if err := store.Connect(ctx); err != nil {
		l.Error("error connecting relational store", "error", err.Error())
		panic(err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			l.Error("error closing relational store", "error", err.Error())
		}
	}()

	// search index, best-effort
	var search seeder.SearchSink
	var esWriter *searchindex.Writer
	if cfg.EnableES {
		esWriter, err = searchindex.NewWriter(searchindex.Config{
			Addr:     cfg.ElasticsearchURL,
			Index:    searchIndexName,
			BulkSize: cfg.ESBulkSize,
		}, l)
		if err != nil {
			l.Error("error building search index writer", "error", err.Error())
			panic(err)
		}
		if err := esWriter.Connect(ctx); err != nil {
			l.Warn("search index unavailable, continuing without it", "error", err.Error())
			esWriter = nil
		} else {
			search = esWriter
		}
	}

	// trending cache, best-effort
	var trend seeder.TrendSink
	var cacheWriter *trendcache.Writer
	if cfg.EnableRedis {
		cacheWriter, err = trendcache.NewWriter(trendcache.Config{
			URL:               cfg.RedisURL,
			PipelineSize:      cfg.RedisPipelineSize,
			MinRating:         cfg.TrendingMinRating,
			MinYear:           cfg.TrendingMinYear,
			AlwaysCacheRecent: cfg.AlwaysCacheRecent,
		}, l)
		if err != nil {
			l.Error("error building trending cache writer", "error", err.Error())
			panic(err)
		}
		if err := cacheWriter.Connect(ctx); err != nil {
			l.Warn("trending cache unavailable, continuing without it", "error", err.Error())
			cacheWriter = nil
		} else {
			trend = cacheWriter
			defer func() {
				if err := cacheWriter.Close(); err != nil {
					l.Error("error closing trending cache", "error", err.Error())
				}
			}()
		}
	}

	if cfg.FullClean {
		l.Info("full clean requested, resetting targets")
		if err := store.Reset(ctx); err != nil {
			l.Error("error resetting relational store", "error", err.Error())
			panic(err)
		}
		if esWriter != nil {
			if err := esWriter.DeleteIndex(ctx); err != nil {
				l.Warn("error dropping search index", "error", err.Error())
			}
		}
		if cacheWriter != nil {
			if err := cacheWriter.Reset(ctx); err != nil {
				l.Warn("error flushing trending cache", "error", err.Error())
			}
		}
	}

	s := seeder.New(seeder.Config{
		PeopleCollection:  cfg.PeopleCollection,
		MoviesCollection:  cfg.MoviesCollection,
		SeasonsCollection: cfg.SeasonsCollection,
		BatchSize:         cfg.BatchSize,
		CommitInterval:    cfg.CommitInterval,
		SkipPeople:        cfg.SkipPeople,
		SkipMovies:        cfg.SkipMovies,
		SkipSeasons:       cfg.SkipSeasons,
	}, seeder.NewMongoSource(source), store, search, trend, stats, l)

	started := time.Now()
	if err := s.Run(ctx); err != nil {
		l.Error("seeding failed", "run_id", runID, "error", err.Error())
		panic(err)
	}

	if cacheWriter != nil {
		highRated, recent, err := cacheWriter.Summary(ctx)
		if err != nil {
			l.Warn("error reading trending cache summary", "error", err.Error())
		} else {
			l.Info("trending cache summary", "high_rated", highRated, "recent", recent)
		}
	}

	l.Info("catalog seeder finished", "run_id", runID, "took", time.Since(started).String())
}
