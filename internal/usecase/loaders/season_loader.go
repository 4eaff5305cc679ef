package loaders

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

const seasonUpsert = `
	INSERT INTO seasons(movie_id, season_number, episodes_count, air_date, poster_url, description)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (movie_id, season_number) DO UPDATE SET
		episodes_count = EXCLUDED.episodes_count,
		air_date = EXCLUDED.air_date,
		poster_url = EXCLUDED.poster_url,
		description = EXCLUDED.description
	RETURNING id`

const episodeUpsert = `
	INSERT INTO episodes(
		season_id, episode_number, title, en_title, synopsis, air_date, runtime, still_url, still_preview_url
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (season_id, episode_number) DO UPDATE SET
		title = EXCLUDED.title,
		en_title = EXCLUDED.en_title,
		synopsis = EXCLUDED.synopsis,
		air_date = EXCLUDED.air_date,
		runtime = EXCLUDED.runtime,
		still_url = EXCLUDED.still_url,
		still_preview_url = EXCLUDED.still_preview_url`

// SeasonLoader writes season aggregates. Seasons referencing a movie the
// catalog never loaded are orphans and are skipped, not failed.
type SeasonLoader struct {
	stats *run.Stats
	l     logger.Logger
}

func NewSeasonLoader(stats *run.Stats, l logger.Logger) *SeasonLoader {
	return &SeasonLoader{stats: stats, l: l}
}

// Load upserts the season keyed by (movie, season number) and bulk-upserts
// its embedded episodes keyed by (season, episode number). It returns the
// season id, or 0 when the parent movie does not exist.
func (sl *SeasonLoader) Load(ctx context.Context, db pgstore.DBTX, rec *catalog.SeasonRecord) (int64, error) {
	var parentID int64
	err := db.QueryRow(ctx, "SELECT id FROM movies WHERE id = $1", rec.MovieID).Scan(&parentID)
	if errors.Is(err, pgx.ErrNoRows) {
		sl.l.Debug("loaders: skipping season for unknown movie", "movie_id", rec.MovieID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loaders: checking movie %d for season: %w", rec.MovieID, err)
	}

	var seasonID int64
	err = db.QueryRow(ctx, seasonUpsert,
		rec.MovieID, rec.Number, rec.EpisodesCount, rec.AirDate, rec.PosterURL, rec.Description,
	).Scan(&seasonID)
	if err != nil {
		return 0, fmt.Errorf("loaders: upserting season %d of movie %d: %w", rec.Number, rec.MovieID, err)
	}
	sl.stats.Inc(run.StatSeasonsUpserted)

	batch := &pgx.Batch{}
	for _, ep := range rec.Episodes {
		batch.Queue(episodeUpsert,
			seasonID, ep.Number, ep.Title, ep.EnTitle, ep.Synopsis, ep.AirDate,
			ep.Runtime, ep.StillURL, ep.StillPreviewURL,
		)
	}
	if err := sendBatch(ctx, db, batch); err != nil {
		return 0, fmt.Errorf("loaders: upserting episodes for season %d: %w", seasonID, err)
	}
	sl.stats.Add(run.StatEpisodesUpserted, int64(batch.Len()))

	return seasonID, nil
}
