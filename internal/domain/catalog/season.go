package catalog

import (
	"errors"
	"time"
)

const (
	ERR_SEASON_NO_MOVIE = "season document carries no movie reference"
)

var (
	ErrSeasonNoMovie = errors.New(ERR_SEASON_NO_MOVIE)
)

// Defaults when the source omits the numbering fields.
const (
	DefaultSeasonNumber  = 1
	DefaultEpisodeNumber = 0
)

// SeasonRecord is the typed intermediate form of a season document with its
// embedded episodes.
type SeasonRecord struct {
	MovieID       int64
	Number        int64
	EpisodesCount *int64
	AirDate       *time.Time
	PosterURL     *string
	Description   *string
	Episodes      []EpisodeRecord
}

// EpisodeRecord is one embedded episode.
type EpisodeRecord struct {
	Number          int64
	Title           *string
	EnTitle         *string
	Synopsis        *string
	AirDate         *time.Time
	Runtime         *int64
	StillURL        *string
	StillPreviewURL *string
}

// SeasonFromDocument normalizes a season document. A season without a parent
// movie reference cannot be placed and yields ErrSeasonNoMovie.
func SeasonFromDocument(doc Document) (*SeasonRecord, error) {
	movieID := AsInt(doc.Get("movieId"))
	if movieID == nil || *movieID == 0 {
		return nil, ErrSeasonNoMovie
	}

	number := int64(DefaultSeasonNumber)
	if n := AsInt(doc.Get("number")); n != nil && *n != 0 {
		number = *n
	}

	poster := doc.Sub("poster")
	rec := &SeasonRecord{
		MovieID:       *movieID,
		Number:        number,
		EpisodesCount: AsInt(doc.Get("episodesCount")),
		AirDate:       ParseDate(doc.Get("airDate")),
		PosterURL:     NormalizeText(poster.Get("url")),
		Description:   NormalizeText(doc.Get("description")),
	}

	episodes := doc.Documents("episodes")
	if len(episodes) > 0 {
		rec.Episodes = make([]EpisodeRecord, 0, len(episodes))
		for _, ep := range episodes {
			rec.Episodes = append(rec.Episodes, episodeFromDocument(ep))
		}
	}
	return rec, nil
}

func episodeFromDocument(doc Document) EpisodeRecord {
	number := int64(DefaultEpisodeNumber)
	if n := AsInt(doc.Get("number")); n != nil {
		number = *n
	}

	still := doc.Sub("still")
	return EpisodeRecord{
		Number:          number,
		Title:           NormalizeText(doc.Get("name")),
		EnTitle:         NormalizeText(doc.Get("enName")),
		Synopsis:        NormalizeText(doc.Get("description")),
		AirDate:         ParseDate(doc.Get("airDate")),
		Runtime:         AsInt(doc.Get("duration")),
		StillURL:        NormalizeText(still.Get("url")),
		StillPreviewURL: NormalizeText(still.Get("previewUrl")),
	}
}
