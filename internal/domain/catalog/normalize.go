package catalog

import (
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Schema-imposed column widths. Truncation to these is silent, never an error.
const (
	MaxTitleLen      = 500
	MaxNameLen       = 200
	MaxLookupNameLen = 100
	MaxTypeCodeLen   = 50
	MaxExternalIDLen = 20
	MaxCurrencyLen   = 10
)

// Bounds for range sanitizers. Out-of-range values become absent, not clamped.
const (
	MinYear      = 1800
	MaxYear      = 2100
	MinAgeRating = 0
	MaxAgeRating = 21
	MinRating    = 0.0
	MaxRating    = 10.0
)

// extendedNumberKeys are the extended-encoding wrapper keys a numeric value
// may arrive under when the source collection was loaded from a JSON dump.
var extendedNumberKeys = []string{"$numberInt", "$numberLong", "$numberDouble", "$numberDecimal"}

// AsInt converts any supported numeric representation to an int64.
// Values outside the int64 range, and NaN, are absent rather than
// wrapped. Returns nil for unsupported shapes; never panics.
func AsInt(v any) *int64 {
	f := AsFloat(v)
	if f == nil {
		return nil
	}
	if math.IsNaN(*f) || *f >= float64(math.MaxInt64) || *f < float64(math.MinInt64) {
		return nil
	}
	n := int64(*f)
	return &n
}

// AsFloat converts any supported numeric representation to a float64:
// native numerics, numeric strings with comma or dot decimal separator, and
// extended-encoding wrapper documents. Returns nil for anything else.
func AsFloat(v any) *float64 {
	switch n := v.(type) {
	case nil:
		return nil
	case float64:
		return &n
	case float32:
		f := float64(n)
		return &f
	case int:
		f := float64(n)
		return &f
	case int32:
		f := float64(n)
		return &f
	case int64:
		f := float64(n)
		return &f
	case string:
		return parseDecimalString(n)
	case primitive.Decimal128:
		return parseDecimalString(n.String())
	default:
		doc, ok := AsDocument(v)
		if !ok {
			return nil
		}
		for _, key := range extendedNumberKeys {
			inner, present := doc[key]
			if !present {
				continue
			}
			switch iv := inner.(type) {
			case string:
				return parseDecimalString(iv)
			default:
				return AsFloat(iv)
			}
		}
		return nil
	}
}

func parseDecimalString(s string) *float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// isoLayouts are the ISO-8601 variants the source is known to carry. Layouts
// without a zone designator are interpreted as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate converts any supported date representation into a UTC instant:
// native timestamps, ISO-8601 strings (a trailing Z is an explicit UTC
// offset), and extended-encoding wrappers carrying either an ISO string or
// epoch milliseconds. Returns nil for anything else.
func ParseDate(v any) *time.Time {
	switch d := v.(type) {
	case nil:
		return nil
	case time.Time:
		t := d.UTC()
		return &t
	case primitive.DateTime:
		t := d.Time().UTC()
		return &t
	case string:
		return parseISODate(d)
	default:
		doc, ok := AsDocument(v)
		if !ok {
			return nil
		}
		inner, present := doc["$date"]
		if !present {
			return nil
		}
		switch iv := inner.(type) {
		case string:
			return parseISODate(iv)
		default:
			if innerDoc, ok := AsDocument(inner); ok {
				millis := AsInt(innerDoc["$numberLong"])
				if millis == nil {
					return nil
				}
				t := time.UnixMilli(*millis).UTC()
				return &t
			}
			return nil
		}
	}
}

func parseISODate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// NormalizeText trims whitespace and treats the empty result as absent.
// Numeric scalars are rendered as text first; any other shape is absent.
func NormalizeText(v any) *string {
	var str string
	switch s := v.(type) {
	case nil:
		return nil
	case string:
		str = s
	case int:
		str = strconv.FormatInt(int64(s), 10)
	case int32:
		str = strconv.FormatInt(int64(s), 10)
	case int64:
		str = strconv.FormatInt(s, 10)
	case float32:
		str = strconv.FormatFloat(float64(s), 'f', -1, 32)
	case float64:
		str = strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return nil
	}
	str = strings.TrimSpace(str)
	if str == "" {
		return nil
	}
	return &str
}

// Truncate hard-caps a text value to the given rune budget. The cap is
// schema-defined; exceeding it is expected and silent.
func Truncate(s *string, maxLen int) *string {
	if s == nil {
		return nil
	}
	runes := []rune(*s)
	if len(runes) <= maxLen {
		return s
	}
	capped := string(runes[:maxLen])
	return &capped
}

// SanitizeYear accepts years in [1800, 2100], boundaries included.
func SanitizeYear(v *int64) *int64 {
	if v == nil || *v < MinYear || *v > MaxYear {
		return nil
	}
	return v
}

// SanitizeAgeRating accepts age ratings in [0, 21], boundaries included.
func SanitizeAgeRating(v *int64) *int64 {
	if v == nil || *v < MinAgeRating || *v > MaxAgeRating {
		return nil
	}
	return v
}

// SanitizeRating accepts rating scores in [0.0, 10.0], boundaries included.
func SanitizeRating(v *float64) *float64 {
	if v == nil || *v < MinRating || *v > MaxRating {
		return nil
	}
	return v
}
