package loaders

import (
	"time"

	"github.com/kinocat/catalog-seeder/internal/domain/catalog"
)

// SearchDocument flattens a movie document into the search index shape.
// Values are projected raw from the source document: the index rides the
// source representation, not the sanitized relational one.
func SearchDocument(movieID int64, doc catalog.Document) map[string]any {
	rating := doc.Sub("rating")
	votes := doc.Sub("votes")
	poster := doc.Sub("poster")
	backdrop := doc.Sub("backdrop")

	mtype := doc.Get("type")
	if mtype == nil {
		mtype = catalog.DefaultMovieType
	}

	genres := make([]map[string]any, 0, 4)
	for _, g := range doc.Documents("genres") {
		genres = append(genres, map[string]any{"name": g.Get("name")})
	}
	countries := make([]map[string]any, 0, 4)
	for _, c := range doc.Documents("countries") {
		countries = append(countries, map[string]any{"name": c.Get("name")})
	}

	people := make([]map[string]any, 0, 8)
	for _, p := range doc.Documents("persons") {
		role := p.Get("enProfession")
		if role == nil {
			role = p.Get("profession")
		}
		people = append(people, map[string]any{
			"name":           p.Get("name"),
			"role":           role,
			"character_name": p.Get("description"),
		})
	}

	return map[string]any{
		"movie_id":         movieID,
		"title":            doc.Get("name"),
		"alternative_name": doc.Get("alternativeName"),
		"en_name":          doc.Get("enName"),
		"description":      doc.Get("description"),
		"year":             doc.Get("year"),
		"genres":           genres,
		"countries":        countries,
		"people":           people,
		"ratings": map[string]any{
			"kp":   rating.Get("kp"),
			"imdb": rating.Get("imdb"),
		},
		"votes": map[string]any{
			"kp":   votes.Get("kp"),
			"imdb": votes.Get("imdb"),
		},
		"movie_length": doc.Get("movieLength"),
		"age_rating":   doc.Get("ageRating"),
		"type":         mtype,
		"poster_url":   poster.Get("url"),
		"backdrop_url": backdrop.Get("url"),
		"created_at":   time.Now().UTC().Format(time.RFC3339),
	}
}
