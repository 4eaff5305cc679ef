package trendcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const (
	ERR_MISSING_REDIS_URL   = "trendcache: redis URL is required"
	ERR_REDIS_BAD_URL       = "trendcache: invalid redis URL"
	ERR_REDIS_UNREACHABLE   = "trendcache: server unreachable after retries"
	ERR_REDIS_NOT_CONNECTED = "trendcache: writer is not connected"
)

var (
	ErrMissingURL   = errors.New(ERR_MISSING_REDIS_URL)
	ErrBadURL       = errors.New(ERR_REDIS_BAD_URL)
	ErrUnreachable  = errors.New(ERR_REDIS_UNREACHABLE)
	ErrNotConnected = errors.New(ERR_REDIS_NOT_CONNECTED)
)

const (
	connectAttempts = 12
	connectBackoff  = 5 * time.Second

	movieKeyPrefix = "movie:trending:"
	highRatedKey   = "movies:trending:high_rated"
	recentKey      = "movies:trending:recent"

	entryTTL = 30 * 24 * time.Hour
)

type Config struct {
	URL               string
	PipelineSize      int
	MinRating         float64
	MinYear           int64
	AlwaysCacheRecent bool
}

// Movie is the slice of a catalog record the trending cache stores.
type Movie struct {
	ID        int64
	Title     string
	Rating    *float64
	Year      *int64
	PosterURL *string
	Genres    []string
}

// Eligible reports whether a movie belongs in the trending cache: it must
// be recent, and either rated highly or admitted by the recency override.
func Eligible(m Movie, cfg Config) bool {
	if m.Year == nil || *m.Year < cfg.MinYear {
		return false
	}
	if m.Rating != nil && *m.Rating >= cfg.MinRating {
		return true
	}
	return cfg.AlwaysCacheRecent
}

// Writer batches trending cache writes through a Redis pipeline. Like the
// search index, the cache is best-effort and never fails the run.
type Writer struct {
	cfg    Config
	client *redis.Client
	pipe   redis.Pipeliner
	queued int
	l      logger.Logger
}

func NewWriter(cfg Config, l logger.Logger) (*Writer, error) {
	if cfg.URL == "" {
		return nil, ErrMissingURL
	}
	if cfg.PipelineSize <= 0 {
		cfg.PipelineSize = 1000
	}
	return &Writer{cfg: cfg, l: l}, nil
}

func (w *Writer) Connect(ctx context.Context) error {
	opts, err := redis.ParseURL(w.cfg.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	client := redis.NewClient(opts)

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if err := client.Ping(ctx).Err(); err == nil {
			w.client = client
			w.pipe = client.Pipeline()
			w.l.Info("trendcache: connected", "attempt", attempt)
			return nil
		} else {
			lastErr = err
			w.l.Warn("trendcache: ping attempt failed", "attempt", attempt, "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectBackoff):
		}
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, lastErr)
}

// CacheMovie queues the hash, ranking and expiry writes for one eligible
// movie and executes the pipeline when it reaches the configured size.
// Ineligible movies are reported as not cached with a nil error.
func (w *Writer) CacheMovie(ctx context.Context, m Movie) (bool, error) {
	if w.client == nil {
		return false, ErrNotConnected
	}
	if !Eligible(m, w.cfg) {
		return false, nil
	}

	key := movieKeyPrefix + strconv.FormatInt(m.ID, 10)
	fields := map[string]any{
		"id":    m.ID,
		"title": m.Title,
		"year":  *m.Year,
	}
	if m.Rating != nil {
		fields["rating"] = *m.Rating
	}
	if m.PosterURL != nil {
		fields["poster_url"] = *m.PosterURL
	}
	if len(m.Genres) > 0 {
		fields["genres"] = strings.Join(m.Genres, ",")
	}

	w.pipe.HSet(ctx, key, fields)
	if m.Rating != nil && *m.Rating >= w.cfg.MinRating {
		w.pipe.ZAdd(ctx, highRatedKey, &redis.Z{Score: *m.Rating, Member: m.ID})
	}
	w.pipe.ZAdd(ctx, recentKey, &redis.Z{Score: float64(*m.Year), Member: m.ID})
	w.pipe.Expire(ctx, key, entryTTL)
	w.pipe.Expire(ctx, highRatedKey, entryTTL)
	w.pipe.Expire(ctx, recentKey, entryTTL)
	w.queued++

	if w.queued >= w.cfg.PipelineSize {
		return true, w.Flush(ctx)
	}
	return true, nil
}

// Flush executes the queued pipeline. The queue is reset regardless of the
// outcome.
func (w *Writer) Flush(ctx context.Context) error {
	if w.queued == 0 {
		return nil
	}
	n := w.queued
	w.queued = 0

	if _, err := w.pipe.Exec(ctx); err != nil {
		w.l.Warn("trendcache: pipeline flush failed", "movies", n, "error", err.Error())
		return err
	}
	w.l.Debug("trendcache: pipeline flushed", "movies", n)
	return nil
}

// Reset clears the cache database ahead of a full clean run.
func (w *Writer) Reset(ctx context.Context) error {
	if w.client == nil {
		return ErrNotConnected
	}
	return w.client.FlushDB(ctx).Err()
}

// Summary returns the sizes of the two trending rankings.
func (w *Writer) Summary(ctx context.Context) (highRated, recent int64, err error) {
	if w.client == nil {
		return 0, 0, ErrNotConnected
	}
	highRated, err = w.client.ZCard(ctx, highRatedKey).Result()
	if err != nil {
		return 0, 0, err
	}
	recent, err = w.client.ZCard(ctx, recentKey).Result()
	if err != nil {
		return 0, 0, err
	}
	return highRated, recent, nil
}

func (w *Writer) Close() error {
	if w.client == nil {
		return nil
	}
	err := w.client.Close()
	w.client = nil
	return err
}
