package bgg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Document is a catalog response converted from XML: elements become maps
// keyed by child name, attributes are stored as "@name", mixed text as
// "#text", text-only elements as plain strings, empty elements as nil and
// repeated children as []any.
type Document map[string]any

// Root returns the name and value of the document's root element.
func (d Document) Root() (string, any) {
	for k, v := range d {
		return k, v
	}
	return "", nil
}

// ParseXML converts an XML response into a Document.
func ParseXML(data []byte) (Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("parse xml: no root element")
			}
			return nil, fmt.Errorf("parse xml: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			v, err := parseElement(dec, start)
			if err != nil {
				return nil, fmt.Errorf("parse xml: %w", err)
			}
			return Document{start.Name.Local: v}, nil
		}
	}
}

func parseElement(dec *xml.Decoder, start xml.StartElement) (any, error) {
	node := make(map[string]any, len(start.Attr))
	for _, a := range start.Attr {
		node["@"+a.Name.Local] = a.Value
	}

	var text strings.Builder
	children := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			addChild(node, t.Name.Local, child)
			children++
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			s := strings.TrimSpace(text.String())
			if children == 0 && len(start.Attr) == 0 {
				if s == "" {
					return nil, nil
				}
				return s, nil
			}
			if s != "" {
				node["#text"] = s
			}
			return node, nil
		}
	}
}

func addChild(node map[string]any, name string, child any) {
	existing, ok := node[name]
	if !ok {
		node[name] = child
		return
	}
	if list, isList := existing.([]any); isList {
		node[name] = append(list, child)
		return
	}
	node[name] = []any{existing, child}
}
