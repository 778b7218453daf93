// Package schema defines the canonical board game record fields.
package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind is the value type of a record field.
type Kind int

const (
	KindIdentifier Kind = iota
	KindImage
	KindText
	KindInteger
	KindDecimal
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindIdentifier:
		return "identifier"
	case KindImage:
		return "image"
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindDecimal:
		return "decimal"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Field describes one record column.
type Field struct {
	Name   string // archive key
	Header string // display header
	Kind   Kind
}

const (
	KeyField   = "bgg_id"
	ImageField = "image"

	Name               = "name"
	Version            = "version"
	Author             = "author"
	Artist             = "artist"
	Publisher          = "publisher"
	ReleaseYear        = "release_year"
	Category           = "category"
	Description        = "description"
	MinPlayers         = "min_players"
	MaxPlayers         = "max_players"
	RecommendedPlayers = "recommended_players"
	Age                = "age"
	MinPlayTime        = "min_play_time"
	MaxPlayTime        = "max_play_time"
	Rating             = "bgg_rating"
	Rank               = "bgg_rank"
	Complexity         = "complexity"
	RelatedGames       = "related_games"
)

var fields = []Field{
	{KeyField, "BGG Id", KindIdentifier},
	{ImageField, "Image", KindImage},
	{Name, "Name", KindText},
	{Version, "Version", KindMapping},
	{Author, "Author", KindText},
	{Artist, "Artist", KindText},
	{Publisher, "Publisher", KindMapping},
	{ReleaseYear, "Release Year", KindInteger},
	{Category, "Category", KindText},
	{Description, "Description", KindText},
	{MinPlayers, "Minimum Players", KindInteger},
	{MaxPlayers, "Maximum Players", KindInteger},
	{RecommendedPlayers, "Recommended Players", KindInteger},
	{Age, "Age", KindInteger},
	{MinPlayTime, "Minimum Play Time", KindInteger},
	{MaxPlayTime, "Maximum Play Time", KindInteger},
	{Rating, "BGG Rating", KindDecimal},
	{Rank, "BGG Rank", KindInteger},
	{Complexity, "Complexity", KindDecimal},
	{RelatedGames, "Related Games", KindMapping},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(fields))
	for _, f := range fields {
		m[f.Name] = f
	}
	return m
}()

// Fields returns the ordered field list. The returned slice is a copy.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// ValueFields returns the ordered fields carried in Record.Fields, i.e.
// everything except the identifier and the image.
func ValueFields() []Field {
	out := make([]Field, 0, len(fields)-2)
	for _, f := range fields {
		if f.Kind != KindIdentifier && f.Kind != KindImage {
			out = append(out, f)
		}
	}
	return out
}

// Lookup returns the field with the given name.
func Lookup(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// Conforms reports whether every name is a recognized field. Archives and
// callers may omit fields but never invent them.
func Conforms(names []string) bool {
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			return false
		}
	}
	return true
}

// Unknown returns the names that are not recognized fields, in input order.
func Unknown(names []string) []string {
	var out []string
	for _, n := range names {
		if _, ok := byName[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// ValidID reports whether id is a usable catalog identifier.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Normalize converts v to the canonical Go type of the named value field:
// string for text, int64 for integer, float64 for decimal and
// map[string]string for mapping. nil is always accepted and means absent.
func Normalize(name string, v any) (any, error) {
	f, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	if f.Kind == KindIdentifier || f.Kind == KindImage {
		return nil, fmt.Errorf("field %q is not a value field", name)
	}
	if v == nil {
		return nil, nil
	}

	switch f.Kind {
	case KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInteger:
		if n, ok := toInt(v); ok {
			return n, nil
		}
	case KindDecimal:
		if x, ok := toFloat(v); ok {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return nil, fmt.Errorf("field %q: non-finite value", name)
			}
			return x, nil
		}
	case KindMapping:
		switch m := v.(type) {
		case map[string]string:
			out := make(map[string]string, len(m))
			for k, val := range m {
				out[k] = val
			}
			return out, nil
		case map[string]any:
			out := make(map[string]string, len(m))
			for k, val := range m {
				s, ok := val.(string)
				if !ok {
					return nil, fmt.Errorf("field %q: mapping value for %q is %T", name, k, val)
				}
				out[k] = s
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("field %q: expected %s, got %T", name, f.Kind, v)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case float64:
		// float64(math.MaxInt64) rounds up to 2^63, which is out of range.
		if n == math.Trunc(n) && n >= math.MinInt64 && n < math.MaxInt64 {
			return int64(n), true
		}
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return x, err == nil
	case interface{ Float64() (float64, error) }:
		x, err := n.Float64()
		return x, err == nil
	}
	return 0, false
}
