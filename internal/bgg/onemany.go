package bgg

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// OneOrMany holds a field that the XML conversion renders as a single object
// when there is one value and as a list when there are several.
type OneOrMany[T any] struct {
	present bool
	many    bool
	items   []T
}

// One wraps a single value.
func One[T any](v T) OneOrMany[T] {
	return OneOrMany[T]{present: true, items: []T{v}}
}

// Many wraps a list of values.
func Many[T any](vs ...T) OneOrMany[T] {
	return OneOrMany[T]{present: true, many: true, items: vs}
}

// UnmarshalJSON accepts an object, an array or null.
func (o *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	o.present = true
	o.many = false
	o.items = nil

	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		o.many = true
		for _, r := range raw {
			if bytes.Equal(bytes.TrimSpace(r), []byte("null")) {
				continue
			}
			var v T
			if err := json.Unmarshal(r, &v); err != nil {
				return err
			}
			o.items = append(o.items, v)
		}
		return nil
	default:
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		o.items = []T{v}
		return nil
	}
}

// Present reports whether the field appeared in the document at all, even
// as an empty element.
func (o OneOrMany[T]) Present() bool { return o.present }

// IsMany reports whether the field was a list.
func (o OneOrMany[T]) IsMany() bool { return o.many }

// Len returns the number of values.
func (o OneOrMany[T]) Len() int { return len(o.items) }

// Items returns the values in document order.
func (o OneOrMany[T]) Items() []T { return o.items }

// First returns the first value.
func (o OneOrMany[T]) First() (T, bool) {
	var zero T
	if len(o.items) == 0 {
		return zero, false
	}
	return o.items[0], true
}

// Text is a scalar that may appear as a plain string, as an element with
// attributes whose content is "#text", or as an element carrying only a
// "value" attribute.
type Text string

// UnmarshalJSON accepts a string, number, object or null.
func (t *Text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Text(strings.TrimSpace(s))
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		for _, key := range []string{"#text", "@value"} {
			if raw, ok := obj[key]; ok {
				return t.UnmarshalJSON(raw)
			}
		}
		*t = ""
	case '[':
		return fmt.Errorf("text value is a list")
	default:
		*t = Text(data)
	}
	return nil
}

func (t Text) String() string { return string(t) }

// link is an entity reference such as a designer or publisher.
type link struct {
	ID   Text `json:"@objectid"`
	Name Text `json:"#text"`
}

// UnmarshalJSON also accepts a bare string for links without attributes.
func (l *link) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &l.Name)
	}
	type plain link
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*l = link(p)
	return nil
}

// joinNames joins the display names of a link list.
func joinNames(links OneOrMany[link]) string {
	names := make([]string, 0, links.Len())
	for _, l := range links.Items() {
		if l.Name != "" {
			names = append(names, l.Name.String())
		}
	}
	return strings.Join(names, ", ")
}

// linkMapping merges links into an id to name mapping. Later duplicates
// overwrite earlier ones.
func linkMapping(into map[string]string, links OneOrMany[link]) map[string]string {
	if into == nil {
		into = make(map[string]string, links.Len())
	}
	for _, l := range links.Items() {
		if l.ID != "" {
			into[l.ID.String()] = l.Name.String()
		}
	}
	return into
}

// decodeDocument converts a loosely typed document into a typed view.
func decodeDocument[T any](doc any) (T, error) {
	var out T
	raw, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
