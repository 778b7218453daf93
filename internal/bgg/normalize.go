package bgg

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
)

const (
	NoAuthors = "No Authors Listed"
	NoArtists = "No Artists Listed"

	overallRank   = "boardgame"
	playerPoll    = "suggested_numplayers"
	bestVoteLabel = "Best"
	notRanked     = "Not Ranked"
)

// Item is one normalized catalog entry. Record carries no image yet.
type Item struct {
	Record   *record.Record
	ImageURL string
}

// Skipped reports a catalog entry that could not be normalized.
type Skipped struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// Batch is the result of normalizing a detail document.
type Batch struct {
	Items   []Item
	Skipped []Skipped
}

type gamesDocument struct {
	Boardgames struct {
		Boardgame OneOrMany[json.RawMessage] `json:"boardgame"`
	} `json:"boardgames"`
}

// gameID reads only the identifier of an entry that failed to decode.
type gameID struct {
	ObjectID json.RawMessage `json:"@objectid"`
}

type rawGame struct {
	ObjectID      Text            `json:"@objectid"`
	Names         OneOrMany[name] `json:"name"`
	Designers     OneOrMany[link] `json:"boardgamedesigner"`
	Artists       OneOrMany[link] `json:"boardgameartist"`
	Categories    OneOrMany[link] `json:"boardgamecategory"`
	Publishers    OneOrMany[link] `json:"boardgamepublisher"`
	Versions      OneOrMany[link] `json:"boardgameversion"`
	Expansions    OneOrMany[link] `json:"boardgameexpansion"`
	Accessories   OneOrMany[link] `json:"boardgameaccessory"`
	YearPublished Text            `json:"yearpublished"`
	Description   Text            `json:"description"`
	MinPlayers    Text            `json:"minplayers"`
	MaxPlayers    Text            `json:"maxplayers"`
	Age           Text            `json:"age"`
	MinPlayTime   Text            `json:"minplaytime"`
	MaxPlayTime   Text            `json:"maxplaytime"`
	Image         Text            `json:"image"`
	Polls         OneOrMany[poll] `json:"poll"`
	Statistics    struct {
		Ratings struct {
			Average       Text `json:"average"`
			AverageWeight Text `json:"averageweight"`
			Ranks         struct {
				Rank OneOrMany[rank] `json:"rank"`
			} `json:"ranks"`
		} `json:"ratings"`
	} `json:"statistics"`
}

type name struct {
	Primary Text `json:"@primary"`
	Value   Text `json:"#text"`
}

func (n *name) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &n.Value)
	}
	type plain name
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*n = name(p)
	return nil
}

type poll struct {
	Name    Text                   `json:"@name"`
	Results OneOrMany[pollResults] `json:"results"`
}

type pollResults struct {
	NumPlayers Text                `json:"@numplayers"`
	Result     OneOrMany[pollVote] `json:"result"`
}

type pollVote struct {
	Value    Text `json:"@value"`
	NumVotes Text `json:"@numvotes"`
}

type rank struct {
	Name  Text `json:"@name"`
	Value Text `json:"@value"`
}

var (
	errNotGames      = errors.New("document is not a boardgames response")
	errNotCollection = errors.New("document is not a collection response")
)

// Normalize flattens a detail document into records. Entries without an
// identifier or a name are skipped and reported.
func Normalize(doc Document) (Batch, error) {
	if root, _ := doc.Root(); root != "boardgames" {
		return Batch{}, fmt.Errorf("%w: root %q", errNotGames, root)
	}
	parsed, err := decodeDocument[gamesDocument](doc)
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	for _, raw := range parsed.Boardgames.Boardgame.Items() {
		var g rawGame
		if err := json.Unmarshal(raw, &g); err != nil {
			batch.Skipped = append(batch.Skipped, Skipped{ID: malformedID(raw), Reason: "malformed entry: " + err.Error()})
			continue
		}
		id := g.ObjectID.String()
		title := gameName(g.Names)
		switch {
		case !schema.ValidID(id):
			batch.Skipped = append(batch.Skipped, Skipped{ID: id, Name: title, Reason: "missing identifier"})
			continue
		case title == "":
			batch.Skipped = append(batch.Skipped, Skipped{ID: id, Reason: "missing name"})
			continue
		}

		r, err := record.New(id, nil, gameFields(g, title))
		if err != nil {
			batch.Skipped = append(batch.Skipped, Skipped{ID: id, Name: title, Reason: err.Error()})
			continue
		}
		batch.Items = append(batch.Items, Item{Record: r, ImageURL: absoluteURL(g.Image.String())})
	}
	return batch, nil
}

func malformedID(raw json.RawMessage) string {
	var g gameID
	if err := json.Unmarshal(raw, &g); err != nil {
		return ""
	}
	var id Text
	if err := json.Unmarshal(g.ObjectID, &id); err != nil {
		return ""
	}
	return id.String()
}

func gameFields(g rawGame, title string) map[string]any {
	fields := map[string]any{
		schema.Name:               title,
		schema.Author:             entityNames(g.Designers, NoAuthors),
		schema.Artist:             entityNames(g.Artists, NoArtists),
		schema.Category:           joinNames(g.Categories),
		schema.Description:        html.UnescapeString(g.Description.String()),
		schema.ReleaseYear:        parseInt(g.YearPublished),
		schema.MinPlayers:         parseInt(g.MinPlayers),
		schema.MaxPlayers:         parseInt(g.MaxPlayers),
		schema.Age:                parseInt(g.Age),
		schema.MinPlayTime:        parseInt(g.MinPlayTime),
		schema.MaxPlayTime:        parseInt(g.MaxPlayTime),
		schema.RecommendedPlayers: recommendedPlayers(g.Polls),
		schema.Rating:             parseFloat(g.Statistics.Ratings.Average),
		schema.Complexity:         parseFloat(g.Statistics.Ratings.AverageWeight),
		schema.Rank:               overallRankValue(g.Statistics.Ratings.Ranks.Rank),
	}
	if g.Versions.Len() > 0 {
		fields[schema.Version] = linkMapping(nil, g.Versions)
	}
	if g.Publishers.Len() > 0 {
		fields[schema.Publisher] = linkMapping(nil, g.Publishers)
	}
	if g.Expansions.Len()+g.Accessories.Len() > 0 {
		related := linkMapping(nil, g.Expansions)
		fields[schema.RelatedGames] = linkMapping(related, g.Accessories)
	}
	for k, v := range fields {
		if s, ok := v.(string); ok && s == "" && k != schema.Author && k != schema.Artist {
			delete(fields, k)
		}
	}
	return fields
}

// gameName prefers the name flagged primary, then the first one.
func gameName(names OneOrMany[name]) string {
	for _, n := range names.Items() {
		if n.Primary != "" && !strings.EqualFold(n.Primary.String(), "false") {
			return n.Value.String()
		}
	}
	if first, ok := names.First(); ok {
		return first.Value.String()
	}
	return ""
}

// entityNames joins designer or artist names. An entirely absent field
// yields the placeholder.
func entityNames(links OneOrMany[link], placeholder string) string {
	if !links.Present() {
		return placeholder
	}
	return joinNames(links)
}

// recommendedPlayers returns the player count with the most "Best" votes.
// Ties keep the earliest candidate; a single candidate is used directly.
func recommendedPlayers(polls OneOrMany[poll]) any {
	for _, p := range polls.Items() {
		if p.Name != playerPoll {
			continue
		}
		candidates := p.Results.Items()
		if !p.Results.IsMany() {
			if c, ok := p.Results.First(); ok {
				return parsePlayers(c.NumPlayers)
			}
			return nil
		}

		best, top := -1, int64(-1)
		for i, c := range candidates {
			if votes := bestVotes(c); votes > top {
				best, top = i, votes
			}
		}
		if best < 0 {
			return nil
		}
		return parsePlayers(candidates[best].NumPlayers)
	}
	return nil
}

func bestVotes(c pollResults) int64 {
	for _, v := range c.Result.Items() {
		if v.Value == bestVoteLabel {
			n, err := strconv.ParseInt(v.NumVotes.String(), 10, 64)
			if err != nil {
				return 0
			}
			return n
		}
	}
	return 0
}

// parsePlayers reads a poll bucket such as "3" or "4+".
func parsePlayers(t Text) any {
	return parseInt(Text(strings.TrimSuffix(t.String(), "+")))
}

// overallRankValue picks the overall rank from a rank list, or the value of
// a single rank object directly.
func overallRankValue(ranks OneOrMany[rank]) any {
	if !ranks.IsMany() {
		if r, ok := ranks.First(); ok {
			return parseInt(r.Value)
		}
		return nil
	}
	for _, r := range ranks.Items() {
		if r.Name == overallRank {
			return parseInt(r.Value)
		}
	}
	return nil
}

func parseInt(t Text) any {
	s := strings.TrimSpace(t.String())
	if s == "" || s == notRanked {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return n
}

func parseFloat(t Text) any {
	s := strings.TrimSpace(t.String())
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// absoluteURL completes scheme-relative URLs.
func absoluteURL(u string) string {
	u = strings.TrimSpace(u)
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
