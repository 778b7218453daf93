package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
)

// recordView is the JSON form of a record.
type recordView struct {
	ID          string         `json:"bgg_id"`
	ImageWidth  int            `json:"image_width"`
	ImageHeight int            `json:"image_height"`
	Fields      map[string]any `json:"fields"`
}

func viewRecord(r *record.Record) recordView {
	v := recordView{ID: r.ID, Fields: r.Clone(false).Fields}
	if r.Image != nil && !r.Image.Released() {
		v.ImageWidth = r.Image.Width()
		v.ImageHeight = r.Image.Height()
	}
	return v
}

func viewRecords(rs []*record.Record) []recordView {
	out := make([]recordView, len(rs))
	for i, r := range rs {
		out[i] = viewRecord(r)
	}
	return out
}

var summaryHeaders = []string{"ID", "Name", "Year", "Players", "Time", "Rating"}

var summaryAligns = []columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight}

func summaryRow(r *record.Record) []string {
	return []string{
		r.ID,
		r.Text(schema.Name),
		formatValue(r.Get(schema.ReleaseYear)),
		formatRange(r.Get(schema.MinPlayers), r.Get(schema.MaxPlayers)),
		formatRange(r.Get(schema.MinPlayTime), r.Get(schema.MaxPlayTime)),
		formatValue(r.Get(schema.Rating)),
	}
}

func summaryRows(rs []*record.Record) [][]string {
	rows := make([][]string, len(rs))
	for i, r := range rs {
		rows[i] = summaryRow(r)
	}
	return rows
}

// detailRows lists every schema field of r with its display header.
func detailRows(r *record.Record) [][]string {
	rows := make([][]string, 0, len(schema.Fields()))
	for _, f := range schema.Fields() {
		var value string
		switch f.Kind {
		case schema.KindIdentifier:
			value = r.ID
		case schema.KindImage:
			if r.Image != nil && !r.Image.Released() {
				value = fmt.Sprintf("%dx%d PNG", r.Image.Width(), r.Image.Height())
			}
		default:
			value = formatValue(r.Get(f.Name))
		}
		rows = append(rows, []string{f.Header, value})
	}
	return rows
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]string:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + x[k]
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(x)
	}
}

func formatRange(lo, hi any) string {
	a, b := formatValue(lo), formatValue(hi)
	switch {
	case a == "" || a == b:
		return b
	case b == "":
		return a
	default:
		return a + "-" + b
	}
}

// parseMapping reads "id=name" pairs separated by commas.
func parseMapping(s string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(part, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("mapping entry %q is not id=name", part)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// parseScalar interprets a command line metadata value.
func parseScalar(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	case "null":
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
