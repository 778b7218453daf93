// Package collection holds the in-memory game collection: ordered records
// keyed by catalog identifier plus free-form metadata, persisted through the
// archive codec.
package collection

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/archive"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
)

var (
	errDuplicateKey = errors.New("identifier already present")
	errInvalidKey   = errors.New("invalid identifier")
	errMissingImage = errors.New("record has no image")
	errSharedImage  = errors.New("image is owned by another record")
	errKeyReadOnly  = errors.New("identifier cannot be updated")
)

// Store is the ordered collection of records. It is not safe for concurrent
// mutation; callers own it exclusively.
type Store struct {
	records  []*record.Record
	index    map[string]int
	metadata map[string]any

	codec    *archive.Codec
	observer Observer
	logger   *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCodec sets the archive codec used by Load and Save.
func WithCodec(c *archive.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithObserver registers a change observer. Repeated use adds observers.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o == nil {
			return
		}
		if existing, ok := s.observer.(Observers); ok {
			s.observer = append(existing, o)
			return
		}
		if _, nop := s.observer.(NopObserver); nop {
			s.observer = o
			return
		}
		s.observer = Observers{s.observer, o}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		index:    make(map[string]int),
		metadata: make(map[string]any),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.Component(s.logger, "collection")
	if s.codec == nil {
		s.codec = archive.New(archive.WithLogger(s.logger))
	}
	return s
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Get returns the record with key, or nil. The record remains owned by the
// store.
func (s *Store) Get(key string) *record.Record {
	i, ok := s.index[key]
	if !ok {
		return nil
	}
	return s.records[i]
}

// At returns the record at position i, or nil when out of range.
func (s *Store) At(i int) *record.Record {
	if i < 0 || i >= len(s.records) {
		return nil
	}
	return s.records[i]
}

// Records returns shallow clones of every record in order. Images are
// shared with the store.
func (s *Store) Records() []*record.Record {
	out := make([]*record.Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone(false)
	}
	return out
}

// Keys returns the identifiers in order.
func (s *Store) Keys() []string {
	keys := make([]string, len(s.records))
	for i, r := range s.records {
		keys[i] = r.ID
	}
	return keys
}

// Append adds records at the end. The batch is validated as a whole and
// either every record is added or none is. The store takes ownership of the
// records and their images.
func (s *Store) Append(records ...*record.Record) error {
	const op = "append"
	if len(records) == 0 {
		return nil
	}

	batchKeys := make(map[string]bool, len(records))
	for _, r := range records {
		if r != nil && batchKeys[r.ID] {
			return apperr.Invalid(op, r.ID, errDuplicateKey, schema.KeyField)
		}
		if r != nil {
			batchKeys[r.ID] = true
		}
	}

	normalized, err := s.validate(op, records, func(id string) bool {
		_, exists := s.index[id]
		return exists
	})
	if err != nil {
		return err
	}

	first := len(s.records)
	for i, r := range records {
		r.Fields = normalized[i]
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
	}
	last := len(s.records) - 1

	s.logger.Debug("records appended", "count", len(records), "first", first, "last", last)
	s.observer.RowsInserted(first, last)
	return nil
}

// Upsert adds new records and replaces existing ones with the same key in
// place. The batch is all-or-nothing, like Append.
func (s *Store) Upsert(records ...*record.Record) (added, replaced int, err error) {
	const op = "upsert"

	latest := make(map[string]int, len(records))
	for i, r := range records {
		if r != nil {
			latest[r.ID] = i
		}
	}
	// Later entries for the same key win.
	batch := make([]*record.Record, 0, len(latest))
	for i, r := range records {
		if r == nil || latest[r.ID] == i {
			batch = append(batch, r)
		}
	}

	normalized, err := s.validate(op, batch, func(string) bool { return false })
	if err != nil {
		return 0, 0, err
	}

	first := len(s.records)
	for i, r := range batch {
		r.Fields = normalized[i]
		if pos, ok := s.index[r.ID]; ok {
			old := s.records[pos]
			s.records[pos] = r
			if old.Image != r.Image {
				old.Release()
			}
			replaced++
			s.observer.RecordChanged(r.ID, "")
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r)
		added++
	}
	if added > 0 {
		s.observer.RowsInserted(first, len(s.records)-1)
	}
	s.logger.Debug("records upserted", "added", added, "replaced", replaced)
	return added, replaced, nil
}

// validate checks a batch and returns the normalized field maps. exists
// reports identifiers that would clash with the store.
func (s *Store) validate(op string, records []*record.Record, exists func(string) bool) ([]map[string]any, error) {
	owned := make(map[*record.Image]string, len(s.records)+len(records))
	for _, r := range s.records {
		if r.Image != nil {
			owned[r.Image] = r.ID
		}
	}

	normalized := make([]map[string]any, len(records))
	for i, r := range records {
		if r == nil {
			return nil, apperr.Invalid(op, "", fmt.Errorf("record at position %d is nil", i))
		}
		if !schema.ValidID(r.ID) {
			return nil, apperr.Invalid(op, r.ID, errInvalidKey, schema.KeyField)
		}
		if exists(r.ID) {
			return nil, apperr.Invalid(op, r.ID, errDuplicateKey, schema.KeyField)
		}
		if r.Image.Released() {
			return nil, apperr.Invalid(op, r.ID, errMissingImage, schema.ImageField)
		}
		if owner, ok := owned[r.Image]; ok && owner != r.ID {
			return nil, apperr.Invalid(op, r.ID, errSharedImage, schema.ImageField)
		}
		owned[r.Image] = r.ID

		names := r.FieldNames()
		if unknown := schema.Unknown(names); len(unknown) > 0 {
			return nil, apperr.Invalid(op, r.ID, errors.New("unknown fields"), unknown...)
		}
		fields := make(map[string]any, len(r.Fields))
		for _, name := range names {
			if name == schema.KeyField || name == schema.ImageField {
				return nil, apperr.Invalid(op, r.ID, errors.New("reserved field in values"), name)
			}
			nv, err := schema.Normalize(name, r.Fields[name])
			if err != nil {
				return nil, apperr.Invalid(op, r.ID, err, name)
			}
			if nv != nil {
				fields[name] = nv
			}
		}
		normalized[i] = fields
	}
	return normalized, nil
}

// Update sets one field of the record with key. A nil value clears the
// field. The image may be replaced with a *record.Image; the previous image
// is released.
func (s *Store) Update(key, field string, value any) error {
	const op = "update"
	i, ok := s.index[key]
	if !ok {
		return apperr.NotFoundError("record", key)
	}
	r := s.records[i]

	switch field {
	case schema.KeyField:
		return apperr.Invalid(op, key, errKeyReadOnly, field)
	case schema.ImageField:
		img, ok := value.(*record.Image)
		if !ok || img.Released() {
			return apperr.Invalid(op, key, errMissingImage, field)
		}
		if img != r.Image {
			for _, other := range s.records {
				if other.Image == img {
					return apperr.Invalid(op, key, errSharedImage, field)
				}
			}
			r.Image.Release()
			r.Image = img
		}
	default:
		if _, known := schema.Lookup(field); !known {
			return apperr.Invalid(op, key, errors.New("unknown field"), field)
		}
		if err := r.Set(field, value); err != nil {
			return apperr.Invalid(op, key, err, field)
		}
	}

	s.observer.RecordChanged(key, field)
	return nil
}

// Remove deletes the record with key and releases its image.
func (s *Store) Remove(key string) error {
	i, ok := s.index[key]
	if !ok {
		return apperr.NotFoundError("record", key)
	}
	s.records[i].Release()
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, key)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].ID] = j
	}

	s.logger.Debug("record removed", "key", key, "position", i)
	s.observer.RowsRemoved(i, i)
	return nil
}

// Metadata returns a copy of the collection metadata.
func (s *Store) Metadata() map[string]any {
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

// MetadataKeys returns the metadata keys, sorted.
func (s *Store) MetadataKeys() []string {
	keys := make([]string, 0, len(s.metadata))
	for k := range s.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetMetadata inserts or replaces one metadata entry.
func (s *Store) SetMetadata(key string, value any) error {
	nv, err := archive.NormalizeMetaValue(value)
	if err != nil {
		return apperr.Invalid("set metadata", key, err)
	}
	s.metadata[key] = nv
	return nil
}

// DeleteMetadata removes one metadata entry.
func (s *Store) DeleteMetadata(key string) error {
	if _, ok := s.metadata[key]; !ok {
		return apperr.NotFoundError("metadata key", key)
	}
	delete(s.metadata, key)
	return nil
}

// Load replaces the store contents with the archive at path. On failure the
// store is left untouched.
func (s *Store) Load(path string) error {
	col, err := s.codec.ReadFile(path)
	if err != nil {
		s.logger.Warn("load failed", "path", path, "error", err)
		return err
	}

	index := make(map[string]int, len(col.Records))
	for i, r := range col.Records {
		index[r.ID] = i
	}
	for _, r := range s.records {
		r.Release()
	}
	s.records = col.Records
	s.index = index
	s.metadata = col.Metadata
	if s.metadata == nil {
		s.metadata = make(map[string]any)
	}

	s.observer.Reset()
	return nil
}

// Save writes the store to path.
func (s *Store) Save(path string) error {
	return s.codec.WriteFile(path, s.snapshot())
}

// Encode returns the archive bytes for the current contents.
func (s *Store) Encode() ([]byte, error) {
	return s.codec.Encode(s.snapshot())
}

func (s *Store) snapshot() record.Collection {
	return record.Collection{Records: s.records, Metadata: s.metadata}
}

// Equal reports whether both stores hold the same records in the same
// order, with identical images and metadata.
func (s *Store) Equal(o *Store) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.records) != len(o.records) || !reflect.DeepEqual(s.metadata, o.metadata) {
		return false
	}
	for i, r := range s.records {
		other := o.records[i]
		if !r.Equal(other) {
			return false
		}
		a, errA := r.Image.Encode()
		b, errB := other.Image.Encode()
		if (errA == nil) != (errB == nil) || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

var searchFields = []string{schema.Name, schema.Author, schema.Artist, schema.Category}

// Search returns the records whose name, authors, artists or category
// contain query, ignoring case. An empty query matches everything.
func (s *Store) Search(query string) []*record.Record {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))

	var out []*record.Record
	for _, r := range s.records {
		if q == "" {
			out = append(out, r)
			continue
		}
		for _, f := range searchFields {
			if strings.Contains(fold.String(r.Text(f)), q) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
