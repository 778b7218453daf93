package archive

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 0, 0, time.FixedZone("CET", 3600))

func newTestCodec() *Codec {
	return New(WithLogger(logging.Nop()), WithClock(func() time.Time { return fixedNow }))
}

func testImage(t *testing.T, seed uint8) *record.Image {
	t.Helper()
	raster := image.NewNRGBA(image.Rect(0, 0, 6, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			raster.SetNRGBA(x, y, color.NRGBA{R: seed, G: uint8(x * 30), B: uint8(y * 50), A: 0xff})
		}
	}
	img, err := record.NewImage(raster)
	require.NoError(t, err)
	return img
}

func testRecord(t *testing.T, id, name string, seed uint8) *record.Record {
	t.Helper()
	r, err := record.New(id, testImage(t, seed), map[string]any{
		schema.Name:       name,
		schema.MinPlayers: 2,
		schema.Rating:     7.0,
		schema.Publisher:  map[string]string{"37": "KOSMOS"},
	})
	require.NoError(t, err)
	return r
}

func testCollection(t *testing.T) record.Collection {
	return record.Collection{
		Records: []*record.Record{
			testRecord(t, "13", "Catan", 10),
			testRecord(t, "822", "Carcassonne", 20),
		},
		Metadata: map[string]any{"owner": "ryan", "count": 2, "score": 3.0},
	}
}

// rewrite builds a zip with the given entries, for corrupting archives.
func rewrite(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func unpack(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = b
	}
	return out
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := newTestCodec()
	col := testCollection(t)

	data, err := codec.Encode(col)
	require.NoError(t, err)

	got, err := codec.Decode(data)
	require.NoError(t, err)

	require.Len(t, got.Records, 2)
	for i := range col.Records {
		assert.True(t, col.Records[i].Equal(got.Records[i]), "record %d", i)
		want, _ := col.Records[i].Image.Encode()
		have, _ := got.Records[i].Image.Encode()
		assert.Equal(t, want, have)
	}
	assert.Equal(t, map[string]any{"owner": "ryan", "count": int64(2), "score": 3.0}, got.Metadata)
	assert.IsType(t, 0.0, got.Records[0].Get(schema.Rating))
}

func TestCodec_EncodeIsDeterministic(t *testing.T) {
	codec := newTestCodec()
	col := testCollection(t)

	first, err := codec.Encode(col)
	require.NoError(t, err)
	decoded, err := codec.Decode(first)
	require.NoError(t, err)
	second, err := codec.Encode(decoded)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCodec_Layout(t *testing.T) {
	data, err := newTestCodec().Encode(testCollection(t))
	require.NoError(t, err)
	entries := unpack(t, data)

	assert.Contains(t, entries, IndexEntry)
	assert.Contains(t, entries, MetadataEntry)
	assert.Contains(t, entries, "images/13.png")
	assert.Contains(t, entries, "images/822.png")

	var index map[string]map[string]any
	require.NoError(t, json.Unmarshal(entries[IndexEntry], &index))
	assert.Equal(t, "13", index["0"][schema.KeyField])
	assert.Equal(t, "images/822.png", index["1"][schema.ImageField])

	var meta map[string]any
	require.NoError(t, json.Unmarshal(entries[MetadataEntry], &meta))
	assert.Equal(t, "1.0", meta["version"])
	assert.Equal(t, "2024-03-09T13:05:00Z", meta["creation_date"])
	assert.Contains(t, string(entries[MetadataEntry]), `"score": 3.0`)
}

func TestCodec_EmptyCollection(t *testing.T) {
	codec := newTestCodec()
	data, err := codec.Encode(record.Collection{})
	require.NoError(t, err)

	got, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Empty(t, got.Records)
	assert.Empty(t, got.Metadata)
}

func TestCodec_BookkeepingCollision(t *testing.T) {
	tests := []struct {
		name     string
		meta     map[string]any
		wantKeys []string
	}{
		{"no collision", map[string]any{"a": "b"}, []string{"version", "creation_date"}},
		{"caller version", map[string]any{"version": "mine"}, []string{"_version", "creation_date"}},
		{"caller deeper", map[string]any{"version": 1, "__version": 2}, []string{"___version", "creation_date"}},
		{"caller creation date", map[string]any{"_creation_date": "x"}, []string{"version", "__creation_date"}},
	}

	codec := newTestCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Encode(record.Collection{Metadata: tt.meta})
			require.NoError(t, err)

			var doc map[string]any
			require.NoError(t, json.Unmarshal(unpack(t, data)[MetadataEntry], &doc))
			for _, k := range tt.wantKeys {
				assert.Contains(t, doc, k)
			}

			got, err := codec.Decode(data)
			require.NoError(t, err)
			want := make(map[string]any, len(tt.meta))
			for k, v := range tt.meta {
				nv, err := NormalizeMetaValue(v)
				require.NoError(t, err)
				want[k] = nv
			}
			assert.Equal(t, want, got.Metadata)
		})
	}
}

func TestCodec_EncodeValidation(t *testing.T) {
	codec := newTestCodec()

	noImage, err := record.New("5", nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name string
		col  record.Collection
	}{
		{"duplicate id", record.Collection{Records: []*record.Record{testRecord(t, "1", "a", 1), testRecord(t, "1", "b", 2)}}},
		{"bad id", record.Collection{Records: []*record.Record{testRecord(t, "x1", "a", 1)}}},
		{"missing image", record.Collection{Records: []*record.Record{noImage}}},
		{"nested metadata", record.Collection{Metadata: map[string]any{"k": map[string]any{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := codec.Encode(tt.col)
			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Nil(t, data)
		})
	}
}

func TestCodec_DecodeCorrupt(t *testing.T) {
	codec := newTestCodec()
	good := unpack(t, mustEncode(t, codec, testCollection(t)))

	without := func(name string) map[string][]byte {
		out := make(map[string][]byte, len(good))
		for k, v := range good {
			if k != name {
				out[k] = v
			}
		}
		return out
	}
	with := func(name string, data []byte) map[string][]byte {
		out := without(name)
		out[name] = data
		return out
	}

	tests := []struct {
		name      string
		data      []byte
		wantEntry string
	}{
		{"not a zip", []byte("plain text"), ""},
		{"missing index", rewrite(t, without(IndexEntry)), IndexEntry},
		{"malformed index", rewrite(t, with(IndexEntry, []byte("{"))), IndexEntry},
		{"unknown field", rewrite(t, with(IndexEntry, []byte(`{"0":{"bgg_id":"13","image":"images/13.png","colour":"red"}}`))), IndexEntry},
		{"bad position", rewrite(t, with(IndexEntry, []byte(`{"first":{"bgg_id":"13","image":"images/13.png"}}`))), IndexEntry},
		{"missing image", rewrite(t, without("images/822.png")), "images/822.png"},
		{"undecodable image", rewrite(t, with("images/13.png", []byte("nope"))), "images/13.png"},
		{"future version", rewrite(t, with(MetadataEntry, []byte(`{"version":"2.0"}`))), MetadataEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.data)
			require.ErrorIs(t, err, apperr.ErrCorruptArchive)

			var ae *apperr.ArchiveError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantEntry, ae.Entry)
		})
	}
}

func TestCodec_DecodeWithoutMetadata(t *testing.T) {
	codec := newTestCodec()
	entries := unpack(t, mustEncode(t, codec, testCollection(t)))
	delete(entries, MetadataEntry)

	got, err := codec.Decode(rewrite(t, entries))
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
	assert.Empty(t, got.Metadata)
}

func TestCodec_DecodeOrdersByPosition(t *testing.T) {
	codec := newTestCodec()
	col := record.Collection{}
	for i := 0; i < 12; i++ {
		col.Records = append(col.Records, testRecord(t, strconv.Itoa(100+i), "g", uint8(i)))
	}

	got, err := codec.Decode(mustEncode(t, codec, col))
	require.NoError(t, err)
	require.Len(t, got.Records, 12)
	for i := range col.Records {
		assert.Equal(t, col.Records[i].ID, got.Records[i].ID)
	}
}

func TestCodec_Files(t *testing.T) {
	codec := newTestCodec()
	dir := t.TempDir()
	path := filepath.Join(dir, "games.splz")

	require.NoError(t, codec.WriteFile(path, testCollection(t)))

	got, err := codec.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)

	info, err := codec.Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "1.0", info.Version)
	assert.Equal(t, 2, info.Records)
	assert.Equal(t, 3, info.Metadata)
}

func TestCodec_ReadFileErrors(t *testing.T) {
	codec := newTestCodec()
	dir := t.TempDir()

	_, err := codec.ReadFile(filepath.Join(dir, "missing.splz"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	wrongExt := filepath.Join(dir, "games.zip")
	require.NoError(t, os.WriteFile(wrongExt, mustEncode(t, codec, testCollection(t)), 0o644))
	_, err = codec.ReadFile(wrongExt)
	assert.ErrorIs(t, err, apperr.ErrCorruptArchive)

	garbage := filepath.Join(dir, "garbage.splz")
	require.NoError(t, os.WriteFile(garbage, []byte("garbage"), 0o644))
	_, err = codec.ReadFile(garbage)
	require.ErrorIs(t, err, apperr.ErrCorruptArchive)
	var ae *apperr.ArchiveError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, garbage, ae.Path)

	dirArchive := filepath.Join(dir, "folder.splz")
	require.NoError(t, os.Mkdir(dirArchive, 0o755))
	_, err = codec.ReadFile(dirArchive)
	require.ErrorIs(t, err, apperr.ErrCorruptArchive)
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, dirArchive, ae.Path)
}

func TestCodec_WriteFileRejectsExtension(t *testing.T) {
	err := newTestCodec().WriteFile(filepath.Join(t.TempDir(), "games.zip"), testCollection(t))
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestNormalizeMetaValue(t *testing.T) {
	tests := []struct {
		in      any
		want    any
		wantErr bool
	}{
		{3, int64(3), false},
		{uint8(4), int64(4), false},
		{float32(1.5), 1.5, false},
		{json.Number("7"), int64(7), false},
		{json.Number("7.0"), 7.0, false},
		{json.Number("1e3"), 1000.0, false},
		{"x", "x", false},
		{true, true, false},
		{nil, nil, false},
		{[]string{"a"}, nil, true},
		{uint64(1 << 63), nil, true},
	}
	for _, tt := range tests {
		got, err := NormalizeMetaValue(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func mustEncode(t *testing.T, c *Codec, col record.Collection) []byte {
	t.Helper()
	data, err := c.Encode(col)
	require.NoError(t, err)
	return data
}
