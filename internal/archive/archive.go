// Package archive reads and writes collection archives (.splz): a zip
// container holding a JSON index of records, a JSON metadata document and one
// PNG per record.
package archive

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ryanm101/spielpendium/internal/logging"
)

const (
	// Extension is the required archive file suffix.
	Extension = ".splz"
	// FormatVersion is written to the metadata bookkeeping.
	FormatVersion = "1.0"

	IndexEntry    = "data.json"
	MetadataEntry = "metadata.json"
	ImageDir      = "images/"

	versionKey  = "version"
	creationKey = "creation_date"
)

var bookkeepingNames = []string{versionKey, creationKey}

// Errors describing the specific cause of a corrupt archive. They are
// wrapped inside an apperr.ArchiveError whose kind is ErrCorruptArchive.
var (
	errMissingEntry       = errors.New("entry missing")
	errBadPosition        = errors.New("row position is not a non-negative integer")
	errBadIdentifier      = errors.New("invalid or missing identifier")
	errDuplicateID        = errors.New("duplicate identifier")
	errUnknownFields      = errors.New("unknown fields")
	errMissingImagePath   = errors.New("missing image path")
	errUnsupportedVersion = errors.New("unsupported archive version")
	errBadMetadata        = errors.New("metadata value is not a scalar")
)

// Info describes a decoded archive.
type Info struct {
	Version   string
	CreatedAt string
	Records   int
	Metadata  int
}

// Codec encodes and decodes collections.
type Codec struct {
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for boundary and diagnostic logging.
func WithLogger(l *slog.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the clock used for the creation date.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a codec.
func New(opts ...Option) *Codec {
	c := &Codec{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Component(c.logger, "archive")
	return c
}

// ImagePath returns the container path of the image for id.
func ImagePath(id string) string {
	return ImageDir + id + ".png"
}

// bookkeepingKey returns the key under which bookkeeping name is stored so
// that it cannot collide with caller metadata: name itself, or name prefixed
// with one more underscore than the deepest caller key of that form.
func bookkeepingKey(name string, meta map[string]any) string {
	depth := -1
	for k := range meta {
		if d, ok := underscoreDepth(k, name); ok && d > depth {
			depth = d
		}
	}
	return strings.Repeat("_", depth+1) + name
}

// storedBookkeepingKey finds the bookkeeping key for name in a decoded
// metadata document: the present variant with the most leading underscores.
func storedBookkeepingKey(name string, doc map[string]any) (string, bool) {
	best, depth := "", -1
	for k := range doc {
		if d, ok := underscoreDepth(k, name); ok && d > depth {
			best, depth = k, d
		}
	}
	return best, depth >= 0
}

func underscoreDepth(key, name string) (int, bool) {
	trimmed := strings.TrimLeft(key, "_")
	if trimmed != name {
		return 0, false
	}
	return len(key) - len(trimmed), true
}
