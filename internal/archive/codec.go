package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
)

// Encode serializes a collection into archive bytes. Every record must carry
// a valid, unique identifier and an image; field values must conform to the
// schema. Nothing is returned on failure.
func (c *Codec) Encode(col record.Collection) ([]byte, error) {
	const op = "encode"

	index := make(map[string]map[string]any, len(col.Records))
	images := make([][]byte, len(col.Records))
	seen := make(map[string]bool, len(col.Records))

	for i, r := range col.Records {
		if r == nil {
			return nil, apperr.Invalid(op, "", fmt.Errorf("record at position %d is nil", i))
		}
		if !schema.ValidID(r.ID) {
			return nil, apperr.Invalid(op, r.ID, errBadIdentifier, schema.KeyField)
		}
		if seen[r.ID] {
			return nil, apperr.Invalid(op, r.ID, errDuplicateID, schema.KeyField)
		}
		seen[r.ID] = true

		png, err := r.Image.Encode()
		if err != nil {
			return nil, apperr.Invalid(op, r.ID, err, schema.ImageField)
		}
		images[i] = png

		row := map[string]any{
			schema.KeyField:   r.ID,
			schema.ImageField: ImagePath(r.ID),
		}
		for name, v := range r.Fields {
			nv, err := schema.Normalize(name, v)
			if err != nil {
				return nil, apperr.Invalid(op, r.ID, err, name)
			}
			if nv != nil {
				row[name] = nv
			}
		}
		index[strconv.Itoa(i)] = row
	}

	meta, err := c.metadataDocument(col.Metadata)
	if err != nil {
		return nil, err
	}

	indexJSON, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", IndexEntry, err)
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", MetadataEntry, err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if err := writeEntry(zw, IndexEntry, zip.Deflate, indexJSON); err != nil {
		return nil, err
	}
	if err := writeEntry(zw, MetadataEntry, zip.Deflate, metaJSON); err != nil {
		return nil, err
	}
	for i, r := range col.Records {
		// PNG data is already compressed.
		if err := writeEntry(zw, ImagePath(r.ID), zip.Store, images[i]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}

	c.logger.Debug("encoded archive", "records", len(col.Records), "metadata", len(col.Metadata), "bytes", buf.Len())
	return buf.Bytes(), nil
}

func (c *Codec) metadataDocument(meta map[string]any) (map[string]any, error) {
	doc := make(map[string]any, len(meta)+len(bookkeepingNames))
	for k, v := range meta {
		nv, err := NormalizeMetaValue(v)
		if err != nil {
			return nil, apperr.Invalid("encode", "", err, k)
		}
		doc[k] = toJSONValue(nv)
	}
	doc[bookkeepingKey(versionKey, meta)] = FormatVersion
	doc[bookkeepingKey(creationKey, meta)] = c.now().UTC().Format(time.RFC3339)
	return doc, nil
}

func writeEntry(zw *zip.Writer, name string, method uint16, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Decode parses archive bytes. Any structural problem is reported as a
// CorruptArchive error naming the offending entry.
func (c *Codec) Decode(data []byte) (record.Collection, error) {
	col, _, err := c.decode(data)
	return col, err
}

func (c *Codec) decode(data []byte) (record.Collection, Info, error) {
	const op = "decode"

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return c.corrupt(op, "", err)
	}
	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if _, dup := entries[f.Name]; !dup {
			entries[f.Name] = f
		}
	}

	rows, err := readIndex(entries)
	if err != nil {
		return c.corrupt(op, IndexEntry, err)
	}

	meta, info, err := readMetadata(entries)
	if err != nil {
		return c.corrupt(op, MetadataEntry, err)
	}
	if meta == nil {
		c.logger.Warn("archive has no metadata document", "entry", MetadataEntry)
		meta = map[string]any{}
	}

	records := make([]*record.Record, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	release := func() {
		for _, r := range records {
			r.Release()
		}
	}

	for _, row := range rows {
		r, path, err := rowRecord(row.values)
		if err != nil {
			release()
			return c.corrupt(op, IndexEntry, fmt.Errorf("row %d: %w", row.pos, err))
		}
		if seen[r.ID] {
			release()
			return c.corrupt(op, IndexEntry, fmt.Errorf("row %d: %w %s", row.pos, errDuplicateID, r.ID))
		}
		seen[r.ID] = true

		f, ok := entries[path]
		if !ok {
			release()
			return c.corrupt(op, path, errMissingEntry)
		}
		raw, err := readEntry(f)
		if err != nil {
			release()
			return c.corrupt(op, path, err)
		}
		img, err := record.DecodeImage(raw)
		if err != nil {
			release()
			return c.corrupt(op, path, err)
		}
		r.Image = img
		records = append(records, r)
	}

	info.Records = len(records)
	info.Metadata = len(meta)
	c.logger.Debug("decoded archive", "records", info.Records, "metadata", info.Metadata, "version", info.Version)
	return record.Collection{Records: records, Metadata: meta}, info, nil
}

func (c *Codec) corrupt(op, entry string, cause error) (record.Collection, Info, error) {
	c.logger.Warn("corrupt archive", "entry", entry, "error", cause)
	return record.Collection{}, Info{}, apperr.Corrupt(op, entry, cause)
}

type indexRow struct {
	pos    int
	values map[string]any
}

func readIndex(entries map[string]*zip.File) ([]indexRow, error) {
	f, ok := entries[IndexEntry]
	if !ok {
		return nil, errMissingEntry
	}
	raw, err := readEntry(f)
	if err != nil {
		return nil, err
	}

	var doc map[string]map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	rows := make([]indexRow, 0, len(doc))
	for key, values := range doc {
		pos, err := strconv.Atoi(key)
		if err != nil || pos < 0 {
			return nil, fmt.Errorf("%w: %q", errBadPosition, key)
		}
		if values == nil {
			return nil, fmt.Errorf("row %d is null", pos)
		}
		rows = append(rows, indexRow{pos: pos, values: values})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].pos < rows[j].pos })
	return rows, nil
}

// rowRecord builds a record (without its image) from one index row and
// returns the image path the row references.
func rowRecord(values map[string]any) (*record.Record, string, error) {
	names := make([]string, 0, len(values))
	for k := range values {
		names = append(names, k)
	}
	if unknown := schema.Unknown(names); len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, "", fmt.Errorf("%w: %s", errUnknownFields, strings.Join(unknown, ", "))
	}

	id, ok := identifier(values[schema.KeyField])
	if !ok {
		return nil, "", errBadIdentifier
	}
	path, _ := values[schema.ImageField].(string)
	if path == "" {
		return nil, "", fmt.Errorf("%s: %w", id, errMissingImagePath)
	}

	fields := make(map[string]any, len(values))
	for k, v := range values {
		if k != schema.KeyField && k != schema.ImageField {
			fields[k] = v
		}
	}
	r, err := record.New(id, nil, fields)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", id, err)
	}
	return r, path, nil
}

// identifier accepts the key as a string or as a bare JSON integer.
func identifier(v any) (string, bool) {
	var id string
	switch x := v.(type) {
	case string:
		id = x
	case json.Number:
		id = x.String()
	default:
		return "", false
	}
	return id, schema.ValidID(id)
}

// readMetadata returns the caller metadata with bookkeeping removed. A
// missing entry yields nil metadata and no error.
func readMetadata(entries map[string]*zip.File) (map[string]any, Info, error) {
	var info Info
	f, ok := entries[MetadataEntry]
	if !ok {
		return nil, info, nil
	}
	raw, err := readEntry(f)
	if err != nil {
		return nil, info, err
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, info, fmt.Errorf("parse: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	if k, ok := storedBookkeepingKey(versionKey, doc); ok {
		info.Version, _ = doc[k].(string)
		delete(doc, k)
		if major, _, _ := strings.Cut(info.Version, "."); major != "1" {
			return nil, info, fmt.Errorf("%w %q", errUnsupportedVersion, info.Version)
		}
	}
	if k, ok := storedBookkeepingKey(creationKey, doc); ok {
		info.CreatedAt, _ = doc[k].(string)
		delete(doc, k)
	}

	meta := make(map[string]any, len(doc))
	for k, v := range doc {
		nv, err := NormalizeMetaValue(v)
		if err != nil {
			return nil, info, fmt.Errorf("%w: %s", errBadMetadata, k)
		}
		meta[k] = nv
	}
	return meta, info, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// outcome maps an error to the metrics outcome label.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.Kind(err)
}

// withPath attaches the archive path to an ArchiveError.
func withPath(err error, path string) error {
	var ae *apperr.ArchiveError
	if errors.As(err, &ae) && ae.Path == "" {
		ae.Path = path
	}
	return err
}
