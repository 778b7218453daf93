package bgg

import (
	"fmt"

	"github.com/ryanm101/spielpendium/internal/apperr"
)

type collectionDocument struct {
	Items struct {
		Item OneOrMany[struct {
			ObjectID Text `json:"@objectid"`
		}] `json:"item"`
	} `json:"items"`
}

type errorsDocument struct {
	Errors struct {
		Error OneOrMany[struct {
			Message Text `json:"message"`
		}] `json:"error"`
	} `json:"errors"`
}

// CollectionIDs lists the distinct item identifiers in a collection
// document, in document order. A catalog error document (such as an unknown
// user) is reported as NotFound.
func CollectionIDs(doc Document) ([]string, error) {
	switch root, _ := doc.Root(); root {
	case "items":
	case "errors":
		parsed, err := decodeDocument[errorsDocument](doc)
		msg := "catalog returned an error"
		if err == nil {
			if e, ok := parsed.Errors.Error.First(); ok && e.Message != "" {
				msg = e.Message.String()
			}
		}
		return nil, fmt.Errorf("%s: %w", msg, apperr.ErrNotFound)
	default:
		return nil, fmt.Errorf("%w: root %q", errNotCollection, root)
	}

	parsed, err := decodeDocument[collectionDocument](doc)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, parsed.Items.Item.Len())
	var ids []string
	for _, it := range parsed.Items.Item.Items() {
		id := it.ObjectID.String()
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// SearchHit is one catalog search result.
type SearchHit struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Year string `json:"year,omitempty"`
}

type searchDocument struct {
	Boardgames struct {
		Boardgame OneOrMany[struct {
			ObjectID      Text            `json:"@objectid"`
			Names         OneOrMany[name] `json:"name"`
			YearPublished Text            `json:"yearpublished"`
		}] `json:"boardgame"`
	} `json:"boardgames"`
}

// SearchResults reads a search document.
func SearchResults(doc Document) ([]SearchHit, error) {
	if root, _ := doc.Root(); root != "boardgames" {
		return nil, fmt.Errorf("%w: root %q", errNotGames, root)
	}
	parsed, err := decodeDocument[searchDocument](doc)
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, parsed.Boardgames.Boardgame.Len())
	for _, g := range parsed.Boardgames.Boardgame.Items() {
		hits = append(hits, SearchHit{
			ID:   g.ObjectID.String(),
			Name: gameName(g.Names),
			Year: g.YearPublished.String(),
		})
	}
	return hits, nil
}
