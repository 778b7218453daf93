// Package record holds the board game record, its image and the collection
// unit moved by the archive codec.
package record

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/ryanm101/spielpendium/internal/schema"
)

// Record is one game entry. Fields holds every schema value field except the
// identifier and the image; a missing key and a nil value both mean absent.
type Record struct {
	ID     string
	Image  *Image
	Fields map[string]any
}

// New creates a record with normalized field values.
func New(id string, img *Image, fields map[string]any) (*Record, error) {
	r := &Record{ID: id, Image: img, Fields: make(map[string]any, len(fields))}
	for name, v := range fields {
		if err := r.Set(name, v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Get returns the value of a field, nil when absent.
func (r *Record) Get(field string) any {
	switch field {
	case schema.KeyField:
		return r.ID
	case schema.ImageField:
		return r.Image
	}
	return r.Fields[field]
}

// Set normalizes and stores a value field.
func (r *Record) Set(field string, v any) error {
	nv, err := schema.Normalize(field, v)
	if err != nil {
		return err
	}
	if r.Fields == nil {
		r.Fields = make(map[string]any)
	}
	if nv == nil {
		delete(r.Fields, field)
		return nil
	}
	r.Fields[field] = nv
	return nil
}

// Text returns a text field or "" when absent or not text.
func (r *Record) Text(field string) string {
	s, _ := r.Fields[field].(string)
	return s
}

// FieldNames returns the keys present in Fields, sorted.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Clone copies the record. The image is shared unless deep is true.
func (r *Record) Clone(deep bool) *Record {
	c := &Record{ID: r.ID, Image: r.Image, Fields: make(map[string]any, len(r.Fields))}
	if deep {
		c.Image = r.Image.Clone()
	}
	for k, v := range r.Fields {
		if m, ok := v.(map[string]string); ok {
			cm := make(map[string]string, len(m))
			for mk, mv := range m {
				cm[mk] = mv
			}
			v = cm
		}
		c.Fields[k] = v
	}
	return c
}

// Equal compares the identifier and every value field. Images are not
// compared.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID {
		return false
	}
	for _, f := range schema.ValueFields() {
		if !reflect.DeepEqual(r.Fields[f.Name], o.Fields[f.Name]) {
			return false
		}
	}
	return true
}

// Release drops the record's image.
func (r *Record) Release() {
	if r.Image != nil {
		r.Image.Release()
	}
}

func (r *Record) String() string {
	return fmt.Sprintf("%s (%s)", r.Text(schema.Name), r.ID)
}

// Collection is the unit of persistence: ordered records plus metadata.
type Collection struct {
	Records  []*Record
	Metadata map[string]any
}
