package catalog

import (
	"errors"
	"strings"
	"time"
)

const (
	ERR_MOVIE_NO_TITLE = "movie document carries no usable title"
)

var (
	ErrMovieNoTitle = errors.New(ERR_MOVIE_NO_TITLE)
)

// DefaultMovieType is used when the source document carries no type code.
const DefaultMovieType = "movie"

// DefaultFactType tags fact rows whose source entry carries no type.
const DefaultFactType = "FACT"

// MovieRecord is the typed intermediate form of a movie document. Scalars
// are independently sanitized; absence of everything but Title is legal.
type MovieRecord struct {
	ExplicitID *int64

	Title           string
	AlternativeName *string
	EnName          *string
	Description     *string
	Slogan          *string
	Type            string
	AgeRating       *int64
	MovieLength     *int64
	Year            *int64

	PremiereWorld  *time.Time
	PremiereRussia *time.Time

	RatingKP                 *float64
	RatingIMDB               *float64
	RatingFilmCritics        *float64
	RatingRussianFilmCritics *float64

	VotesKP                 *int64
	VotesIMDB               *int64
	VotesFilmCritics        *int64
	VotesRussianFilmCritics *int64

	BudgetValue    *int64
	BudgetCurrency *string

	FeesWorldValue     *int64
	FeesWorldCurrency  *string
	FeesRussiaValue    *int64
	FeesRussiaCurrency *string
	FeesUSAValue       *int64
	FeesUSACurrency    *string

	PosterURL          *string
	PosterPreviewURL   *string
	BackdropURL        *string
	BackdropPreviewURL *string

	ExternalIDIMDB *string
	ExternalIDTMDB *int64
	ExternalIDKPHD *string

	Countries []string
	Genres    []string
	Cast      []CastMember
	Facts     []FactRecord
	Videos    []VideoRecord

	DistributorName    *string
	DistributorRelease *string
}

// CastMember is one person reference embedded in a movie document, in
// document order. Person is nil when the reference carries no usable name;
// such entries still occupy a display-order slot.
type CastMember struct {
	Person     *PersonRecord
	Profession string  // lower-cased english profession label; "" when absent
	Role       string  // raw label kept for the search projection
	Character  *string // truncated character/description text
}

// FactRecord is one trivia entry. Entries with empty text are dropped at
// parse time.
type FactRecord struct {
	Text    string
	Type    string
	Spoiler bool
}

// VideoRecord is one trailer entry, keyed by URL. Entries without a URL are
// dropped at parse time.
type VideoRecord struct {
	URL  string
	Name *string
	Site *string
	Type *string
}

// MaxRating returns the highest available rating across sources, or nil.
func (m *MovieRecord) MaxRating() *float64 {
	var max *float64
	for _, r := range []*float64{m.RatingKP, m.RatingIMDB} {
		if r == nil {
			continue
		}
		if max == nil || *r > *max {
			max = r
		}
	}
	return max
}

// ReleaseDate returns the preferred distribution date: russia premiere first,
// world premiere as fallback, nil when neither is present.
func (m *MovieRecord) ReleaseDate() *time.Time {
	if m.PremiereRussia != nil {
		return m.PremiereRussia
	}
	return m.PremiereWorld
}

// MovieFromDocument normalizes a movie document into a MovieRecord. The title
// is the first non-empty of name, alternativeName and enName; when all three
// are absent the document is unusable and ErrMovieNoTitle is returned.
func MovieFromDocument(doc Document) (*MovieRecord, error) {
	title := Truncate(firstText(doc.Get("name"), doc.Get("alternativeName"), doc.Get("enName")), MaxTitleLen)
	if title == nil {
		return nil, ErrMovieNoTitle
	}

	mtype := DefaultMovieType
	if t := Truncate(NormalizeText(doc.Get("type")), MaxTypeCodeLen); t != nil {
		mtype = *t
	}

	rec := &MovieRecord{
		ExplicitID:      AsInt(doc.Get("id")),
		Title:           *title,
		AlternativeName: Truncate(NormalizeText(doc.Get("alternativeName")), MaxTitleLen),
		EnName:          Truncate(NormalizeText(doc.Get("enName")), MaxTitleLen),
		Description:     NormalizeText(doc.Get("description")),
		Slogan:          NormalizeText(doc.Get("slogan")),
		Type:            mtype,
		AgeRating:       SanitizeAgeRating(AsInt(doc.Get("ageRating"))),
		MovieLength:     AsInt(doc.Get("movieLength")),
		Year:            SanitizeYear(AsInt(doc.Get("year"))),
		PremiereWorld:   ParseDate(doc.Lookup("premiere", "world")),
		PremiereRussia:  ParseDate(doc.Lookup("premiere", "russia")),
	}

	rating := doc.Sub("rating")
	rec.RatingKP = SanitizeRating(AsFloat(rating.Get("kp")))
	rec.RatingIMDB = SanitizeRating(AsFloat(rating.Get("imdb")))
	rec.RatingFilmCritics = SanitizeRating(AsFloat(rating.Get("filmCritics")))
	rec.RatingRussianFilmCritics = SanitizeRating(AsFloat(rating.Get("russianFilmCritics")))

	votes := doc.Sub("votes")
	rec.VotesKP = AsInt(votes.Get("kp"))
	rec.VotesIMDB = AsInt(votes.Get("imdb"))
	rec.VotesFilmCritics = AsInt(votes.Get("filmCritics"))
	rec.VotesRussianFilmCritics = AsInt(votes.Get("russianFilmCritics"))

	budget := doc.Sub("budget")
	rec.BudgetValue = AsInt(budget.Get("value"))
	rec.BudgetCurrency = Truncate(NormalizeText(budget.Get("currency")), MaxCurrencyLen)

	fees := doc.Sub("fees")
	rec.FeesWorldValue, rec.FeesWorldCurrency = feeFields(fees.Sub("world"))
	rec.FeesRussiaValue, rec.FeesRussiaCurrency = feeFields(fees.Sub("russia"))
	rec.FeesUSAValue, rec.FeesUSACurrency = feeFields(fees.Sub("usa"))

	poster := doc.Sub("poster")
	rec.PosterURL = NormalizeText(poster.Get("url"))
	rec.PosterPreviewURL = NormalizeText(poster.Get("previewUrl"))

	backdrop := doc.Sub("backdrop")
	rec.BackdropURL = NormalizeText(backdrop.Get("url"))
	rec.BackdropPreviewURL = NormalizeText(backdrop.Get("previewUrl"))

	external := doc.Sub("externalId")
	rec.ExternalIDIMDB = Truncate(NormalizeText(external.Get("imdb")), MaxExternalIDLen)
	rec.ExternalIDTMDB = AsInt(external.Get("tmdb"))
	rec.ExternalIDKPHD = Truncate(NormalizeText(external.Get("kpHD")), MaxTypeCodeLen)

	rec.Countries = lookupNames(doc, "countries")
	rec.Genres = lookupNames(doc, "genres")
	rec.Cast = castMembers(doc)
	rec.Facts = factRecords(doc)
	rec.Videos = videoRecords(doc)

	distributors := doc.Sub("distributors")
	rec.DistributorName = Truncate(NormalizeText(distributors.Get("distributor")), MaxNameLen)
	rec.DistributorRelease = Truncate(NormalizeText(distributors.Get("distributorRelease")), MaxNameLen)

	return rec, nil
}

// lookupNames extracts the normalized, truncated name field of each entry in
// a lookup-entity array (countries, genres).
func lookupNames(doc Document, key string) []string {
	entries := doc.Documents(key)
	if len(entries) == 0 {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name := Truncate(NormalizeText(entry.Get("name")), MaxLookupNameLen); name != nil {
			names = append(names, *name)
		}
	}
	return names
}

func castMembers(doc Document) []CastMember {
	persons := doc.Documents("persons")
	if len(persons) == 0 {
		return nil
	}
	members := make([]CastMember, 0, len(persons))
	for _, p := range persons {
		member := CastMember{
			Character: Truncate(NormalizeText(p.Get("description")), MaxNameLen),
		}
		if prof := NormalizeText(p.Get("enProfession")); prof != nil {
			member.Profession = strings.ToLower(*prof)
			member.Role = *prof
		}
		if member.Role == "" {
			if prof := NormalizeText(p.Get("profession")); prof != nil {
				member.Role = *prof
			}
		}
		if rec, err := PersonFromDocument(p); err == nil {
			member.Person = rec
		}
		members = append(members, member)
	}
	return members
}

func factRecords(doc Document) []FactRecord {
	entries := doc.Documents("facts")
	if len(entries) == 0 {
		return nil
	}
	facts := make([]FactRecord, 0, len(entries))
	for _, entry := range entries {
		text := NormalizeText(entry.Get("value"))
		if text == nil {
			continue
		}
		ftype := DefaultFactType
		if t := NormalizeText(entry.Get("type")); t != nil {
			ftype = strings.ToUpper(*t)
		}
		spoiler, _ := entry.Get("spoiler").(bool)
		facts = append(facts, FactRecord{Text: *text, Type: ftype, Spoiler: spoiler})
	}
	return facts
}

func videoRecords(doc Document) []VideoRecord {
	trailers, ok := AsDocument(doc.Get("videos"))
	if !ok {
		return nil
	}
	entries := trailers.Documents("trailers")
	if len(entries) == 0 {
		return nil
	}
	videos := make([]VideoRecord, 0, len(entries))
	for _, entry := range entries {
		url := NormalizeText(entry.Get("url"))
		if url == nil {
			continue
		}
		video := VideoRecord{
			URL:  *url,
			Name: NormalizeText(entry.Get("name")),
			Site: NormalizeText(entry.Get("site")),
		}
		if vtype := NormalizeText(entry.Get("type")); vtype != nil {
			lowered := strings.ToLower(*vtype)
			video.Type = &lowered
		}
		videos = append(videos, video)
	}
	return videos
}

func feeFields(fee Document) (*int64, *string) {
	return AsInt(fee.Get("value")), Truncate(NormalizeText(fee.Get("currency")), MaxCurrencyLen)
}
