package catalog

import (
	"errors"
	"strings"
	"time"
)

const (
	ERR_PERSON_NO_NAME = "person document carries no usable name"
)

var (
	ErrPersonNoName = errors.New(ERR_PERSON_NO_NAME)
)

// PersonRecord is the typed intermediate form of a person document.
// Name is always set; every other field may be absent.
type PersonRecord struct {
	Name       string
	EnName     *string
	PhotoURL   *string
	BirthDate  *time.Time
	DeathDate  *time.Time
	BirthPlace *string
}

// Key returns the natural deduplication key: the (name, english-name) pair.
func (p *PersonRecord) Key() string {
	en := ""
	if p.EnName != nil {
		en = *p.EnName
	}
	return p.Name + "\x00" + en
}

// PersonFromDocument normalizes a person document into a PersonRecord.
// The localized name is preferred, falling back to the english name; when
// neither survives normalization the document is unusable and
// ErrPersonNoName is returned.
func PersonFromDocument(doc Document) (*PersonRecord, error) {
	name := Truncate(firstText(doc.Get("name"), doc.Get("enName")), MaxNameLen)
	if name == nil {
		return nil, ErrPersonNoName
	}

	rec := &PersonRecord{
		Name:      *name,
		EnName:    Truncate(NormalizeText(doc.Get("enName")), MaxNameLen),
		PhotoURL:  NormalizeText(doc.Get("photo")),
		BirthDate: ParseDate(doc.Get("birthday")),
		DeathDate: ParseDate(doc.Get("death")),
	}

	if place := birthPlace(doc); place != nil {
		rec.BirthPlace = Truncate(place, MaxNameLen)
	}
	return rec, nil
}

// birthPlace joins the value fields of the birthPlace array.
func birthPlace(doc Document) *string {
	parts := make([]string, 0, 4)
	for _, entry := range doc.Documents("birthPlace") {
		if v := NormalizeText(entry.Get("value")); v != nil {
			parts = append(parts, *v)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, ", ")
	return &joined
}

// firstText returns the first value that survives text normalization.
func firstText(values ...any) *string {
	for _, v := range values {
		if s := NormalizeText(v); s != nil {
			return s
		}
	}
	return nil
}
