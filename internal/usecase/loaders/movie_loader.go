// Package loaders writes normalized catalog records into the relational
// store, resolving lookup entities through the resolvers package.
package loaders

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
	"github.com/kinocat/catalog-seeder/internal/domain/run"
	"github.com/kinocat/catalog-seeder/internal/infra/pgstore"
	"github.com/kinocat/catalog-seeder/internal/usecase/resolvers"
	"github.com/kinocat/catalog-seeder/pkg/utils/logger"
)

const movieUpsertWithID = `
	INSERT INTO movies (
		id,
		title, alternative_name, en_name, description, age_rating, movie_length,
		slogan, type, year, premiere_world, premiere_russia,
		rating_kp, rating_imdb, rating_film_critics, rating_russian_film_critics,
		votes_kp, votes_imdb, votes_film_critics, votes_russian_film_critics,
		budget_value, budget_currency,
		fees_world_value, fees_world_currency,
		fees_russia_value, fees_russia_currency,
		fees_usa_value, fees_usa_currency,
		poster_url, poster_preview_url,
		backdrop_url, backdrop_preview_url,
		external_id_imdb, external_id_tmdb, external_id_kphd
	) VALUES (
		$1,
		$2, $3, $4, $5, $6, $7,
		$8, $9, $10, $11, $12,
		$13, $14, $15, $16,
		$17, $18, $19, $20,
		$21, $22,
		$23, $24,
		$25, $26,
		$27, $28,
		$29, $30,
		$31, $32,
		$33, $34, $35
	)
	ON CONFLICT (id) DO UPDATE SET
		title = EXCLUDED.title,
		alternative_name = EXCLUDED.alternative_name,
		en_name = EXCLUDED.en_name,
		description = EXCLUDED.description,
		age_rating = EXCLUDED.age_rating,
		movie_length = EXCLUDED.movie_length,
		slogan = EXCLUDED.slogan,
		type = EXCLUDED.type,
		year = EXCLUDED.year,
		premiere_world = EXCLUDED.premiere_world,
		premiere_russia = EXCLUDED.premiere_russia,
		rating_kp = EXCLUDED.rating_kp,
		rating_imdb = EXCLUDED.rating_imdb,
		rating_film_critics = EXCLUDED.rating_film_critics,
		rating_russian_film_critics = EXCLUDED.rating_russian_film_critics,
		votes_kp = EXCLUDED.votes_kp,
		votes_imdb = EXCLUDED.votes_imdb,
		votes_film_critics = EXCLUDED.votes_film_critics,
		votes_russian_film_critics = EXCLUDED.votes_russian_film_critics,
		budget_value = EXCLUDED.budget_value,
		budget_currency = EXCLUDED.budget_currency,
		fees_world_value = EXCLUDED.fees_world_value,
		fees_world_currency = EXCLUDED.fees_world_currency,
		fees_russia_value = EXCLUDED.fees_russia_value,
		fees_russia_currency = EXCLUDED.fees_russia_currency,
		fees_usa_value = EXCLUDED.fees_usa_value,
		fees_usa_currency = EXCLUDED.fees_usa_currency,
		poster_url = EXCLUDED.poster_url,
		poster_preview_url = EXCLUDED.poster_preview_url,
		backdrop_url = EXCLUDED.backdrop_url,
		backdrop_preview_url = EXCLUDED.backdrop_preview_url,
		external_id_imdb = EXCLUDED.external_id_imdb,
		external_id_tmdb = EXCLUDED.external_id_tmdb,
		external_id_kphd = EXCLUDED.external_id_kphd,
		updated_at = CURRENT_TIMESTAMP
	RETURNING id`

const movieInsertAutoID = `
	INSERT INTO movies (
		title, alternative_name, en_name, description, age_rating, movie_length,
		slogan, type, year, premiere_world, premiere_russia,
		rating_kp, rating_imdb, rating_film_critics, rating_russian_film_critics,
		votes_kp, votes_imdb, votes_film_critics, votes_russian_film_critics,
		budget_value, budget_currency,
		fees_world_value, fees_world_currency,
		fees_russia_value, fees_russia_currency,
		fees_usa_value, fees_usa_currency,
		poster_url, poster_preview_url,
		backdrop_url, backdrop_preview_url,
		external_id_imdb, external_id_tmdb, external_id_kphd
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11,
		$12, $13, $14, $15,
		$16, $17, $18, $19,
		$20, $21,
		$22, $23,
		$24, $25,
		$26, $27,
		$28, $29,
		$30, $31,
		$32, $33, $34
	) RETURNING id`

const moviePersonInsert = `
	INSERT INTO movie_people(movie_id, person_id, role_id, character_name, order_index)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT DO NOTHING`

// MovieLoader writes one movie aggregate per call. All statements run on
// the transaction the caller passes, so a failure anywhere in the aggregate
// rolls back the whole document.
type MovieLoader struct {
	resolver *resolvers.Resolver
	stats    *run.Stats
	l        logger.Logger
}

func NewMovieLoader(resolver *resolvers.Resolver, stats *run.Stats, l logger.Logger) *MovieLoader {
	return &MovieLoader{resolver: resolver, stats: stats, l: l}
}

// Load upserts the movie row and its satellite rows in a fixed order:
// movie, countries, genres, people links, facts, videos, distributor.
// It returns the relational movie id.
func (ml *MovieLoader) Load(ctx context.Context, db pgstore.DBTX, rec *catalog.MovieRecord) (int64, error) {
	movieID, err := ml.upsertMovie(ctx, db, rec)
	if err != nil {
		return 0, err
	}

	if err := ml.linkCountries(ctx, db, movieID, rec.Countries); err != nil {
		return 0, err
	}
	if err := ml.linkGenres(ctx, db, movieID, rec.Genres); err != nil {
		return 0, err
	}
	if err := ml.linkPeople(ctx, db, movieID, rec.Cast); err != nil {
		return 0, err
	}
	if err := ml.insertFacts(ctx, db, movieID, rec.Facts); err != nil {
		return 0, err
	}
	if err := ml.insertVideos(ctx, db, movieID, rec.Videos); err != nil {
		return 0, err
	}
	if err := ml.linkDistributor(ctx, db, movieID, rec); err != nil {
		return 0, err
	}
	return movieID, nil
}

func (ml *MovieLoader) upsertMovie(ctx context.Context, db pgstore.DBTX, rec *catalog.MovieRecord) (int64, error) {
	args := []any{
		rec.Title, rec.AlternativeName, rec.EnName, rec.Description, rec.AgeRating, rec.MovieLength,
		rec.Slogan, rec.Type, rec.Year, rec.PremiereWorld, rec.PremiereRussia,
		rec.RatingKP, rec.RatingIMDB, rec.RatingFilmCritics, rec.RatingRussianFilmCritics,
		rec.VotesKP, rec.VotesIMDB, rec.VotesFilmCritics, rec.VotesRussianFilmCritics,
		rec.BudgetValue, rec.BudgetCurrency,
		rec.FeesWorldValue, rec.FeesWorldCurrency,
		rec.FeesRussiaValue, rec.FeesRussiaCurrency,
		rec.FeesUSAValue, rec.FeesUSACurrency,
		rec.PosterURL, rec.PosterPreviewURL,
		rec.BackdropURL, rec.BackdropPreviewURL,
		rec.ExternalIDIMDB, rec.ExternalIDTMDB, rec.ExternalIDKPHD,
	}

	var movieID int64
	if rec.ExplicitID != nil {
		withID := append([]any{*rec.ExplicitID}, args...)
		if err := db.QueryRow(ctx, movieUpsertWithID, withID...).Scan(&movieID); err != nil {
			return 0, fmt.Errorf("loaders: upserting movie %q: %w", rec.Title, err)
		}
		ml.stats.Inc(run.StatMoviesUpdated)
	} else {
		if err := db.QueryRow(ctx, movieInsertAutoID, args...).Scan(&movieID); err != nil {
			return 0, fmt.Errorf("loaders: inserting movie %q: %w", rec.Title, err)
		}
		ml.stats.Inc(run.StatMoviesInserted)
	}
	return movieID, nil
}

func (ml *MovieLoader) linkCountries(ctx context.Context, db pgstore.DBTX, movieID int64, names []string) error {
	batch := &pgx.Batch{}
	for _, name := range names {
		id, err := ml.resolver.Country(ctx, db, name)
		if err != nil {
			return err
		}
		if id == 0 {
			continue
		}
		batch.Queue("INSERT INTO movie_countries(movie_id, country_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", movieID, id)
	}
	if err := sendBatch(ctx, db, batch); err != nil {
		return fmt.Errorf("loaders: linking countries to movie %d: %w", movieID, err)
	}
	ml.stats.Add(run.StatCountriesLinked, int64(batch.Len()))
	return nil
}

func (ml *MovieLoader) linkGenres(ctx context.Context, db pgstore.DBTX, movieID int64, names []string) error {
	batch := &pgx.Batch{}
	for _, name := range names {
		id, err := ml.resolver.Genre(ctx, db, name)
		if err != nil {
			return err
		}
		if id == 0 {
			continue
		}
		batch.Queue("INSERT INTO movie_genres(movie_id, genre_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", movieID, id)
	}
	if err := sendBatch(ctx, db, batch); err != nil {
		return fmt.Errorf("loaders: linking genres to movie %d: %w", movieID, err)
	}
	ml.stats.Add(run.StatGenresLinked, int64(batch.Len()))
	return nil
}

type personLink struct {
	personID  int64
	roleID    *int64
	character *string
	order     int
}

// linkPeople resolves every cast member and bulk-inserts the link rows.
// The display order is the 1-based position in the source document,
// counting entries that were skipped. If the bulk insert fails, rows are
// retried one by one inside their own rollback boundaries so a single bad
// link cannot sink the movie.
func (ml *MovieLoader) linkPeople(ctx context.Context, db pgstore.DBTX, movieID int64, cast []catalog.CastMember) error {
	links := make([]personLink, 0, len(cast))
	seen := map[string]struct{}{}

	for i, member := range cast {
		order := i + 1
		if member.Person == nil {
			continue
		}
		personID, err := ml.resolver.Person(ctx, db, member.Person)
		if err != nil {
			return err
		}

		var roleID *int64
		if member.Profession != "" {
			id, err := ml.resolver.RoleID(ctx, db, member.Profession)
			if err != nil {
				return err
			}
			if id != 0 {
				roleID = &id
			}
		}

		key := dedupKey(personID, roleID, member.Character)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, personLink{personID: personID, roleID: roleID, character: member.Character, order: order})
	}

	if len(links) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, link := range links {
		batch.Queue(moviePersonInsert, movieID, link.personID, link.roleID, link.character, link.order)
	}

	if _, err := db.Exec(ctx, "SAVEPOINT movie_links"); err != nil {
		return err
	}
	if err := sendBatch(ctx, db, batch); err == nil {
		if _, err := db.Exec(ctx, "RELEASE SAVEPOINT movie_links"); err != nil {
			return err
		}
		ml.stats.Add(run.StatPeopleLinked, int64(len(links)))
		return nil
	} else {
		ml.l.Warn("loaders: bulk people link failed, retrying per row",
			"movie_id", movieID, "links", len(links), "error", pgstore.Diagnostic(err))
		if _, err := db.Exec(ctx, "ROLLBACK TO SAVEPOINT movie_links"); err != nil {
			return err
		}
	}

	linked := int64(0)
	for _, link := range links {
		if _, err := db.Exec(ctx, "SAVEPOINT movie_link_row"); err != nil {
			return err
		}
		_, err := db.Exec(ctx, moviePersonInsert, movieID, link.personID, link.roleID, link.character, link.order)
		if err != nil {
			ml.l.Warn("loaders: skipping people link",
				"movie_id", movieID, "person_id", link.personID, "error", pgstore.Diagnostic(err))
			if _, err := db.Exec(ctx, "ROLLBACK TO SAVEPOINT movie_link_row"); err != nil {
				return err
			}
			continue
		}
		if _, err := db.Exec(ctx, "RELEASE SAVEPOINT movie_link_row"); err != nil {
			return err
		}
		linked++
	}
	if _, err := db.Exec(ctx, "RELEASE SAVEPOINT movie_links"); err != nil {
		return err
	}
	ml.stats.Add(run.StatPeopleLinked, linked)
	return nil
}

func (ml *MovieLoader) insertFacts(ctx context.Context, db pgstore.DBTX, movieID int64, facts []catalog.FactRecord) error {
	batch := &pgx.Batch{}
	for _, fact := range facts {
		batch.Queue(
			"INSERT INTO movie_facts(movie_id, fact_text, fact_type, is_spoiler) VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING",
			movieID, fact.Text, fact.Type, fact.Spoiler,
		)
	}
	if err := sendBatch(ctx, db, batch); err != nil {
		return fmt.Errorf("loaders: inserting facts for movie %d: %w", movieID, err)
	}
	ml.stats.Add(run.StatFactsInserted, int64(batch.Len()))
	return nil
}

func (ml *MovieLoader) insertVideos(ctx context.Context, db pgstore.DBTX, movieID int64, videos []catalog.VideoRecord) error {
	batch := &pgx.Batch{}
	for _, video := range videos {
		batch.Queue(
			"INSERT INTO movie_videos(movie_id, video_url, video_name, video_site, video_type) VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING",
			movieID, video.URL, video.Name, video.Site, video.Type,
		)
	}
	if err := sendBatch(ctx, db, batch); err != nil {
		return fmt.Errorf("loaders: inserting videos for movie %d: %w", movieID, err)
	}
	ml.stats.Add(run.StatVideosInserted, int64(batch.Len()))
	return nil
}

func (ml *MovieLoader) linkDistributor(ctx context.Context, db pgstore.DBTX, movieID int64, rec *catalog.MovieRecord) error {
	distributorID, err := ml.resolver.Distributor(ctx, db, rec.DistributorName, rec.DistributorRelease)
	if err != nil {
		return err
	}
	if distributorID == 0 {
		return nil
	}

	_, err = db.Exec(ctx, `
		INSERT INTO movie_distributors(movie_id, distributor_id, distribution_type, release_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`,
		movieID, distributorID, "theatrical", rec.ReleaseDate(),
	)
	if err != nil {
		return fmt.Errorf("loaders: linking distributor to movie %d: %w", movieID, err)
	}
	ml.stats.Inc(run.StatDistributorsLinked)
	return nil
}

// sendBatch runs a queued batch and surfaces the first per-statement error.
func sendBatch(ctx context.Context, db pgstore.DBTX, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := db.SendBatch(ctx, batch)
	defer results.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func dedupKey(personID int64, roleID *int64, character *string) string {
	key := strconv.FormatInt(personID, 10) + "\x00"
	if roleID != nil {
		key += strconv.FormatInt(*roleID, 10)
	}
	key += "\x00"
	if character != nil {
		key += *character
	}
	return key
}
