package collection

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ryanm101/spielpendium/internal/apperr"
	"github.com/ryanm101/spielpendium/internal/logging"
	"github.com/ryanm101/spielpendium/internal/record"
	"github.com/ryanm101/spielpendium/internal/schema"
)

// MockObserver is a mock implementation of Observer.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) RecordChanged(key, field string) { m.Called(key, field) }
func (m *MockObserver) RowsInserted(first, last int)    { m.Called(first, last) }
func (m *MockObserver) RowsRemoved(first, last int)     { m.Called(first, last) }
func (m *MockObserver) Reset()                          { m.Called() }

func newImage(t *testing.T, shade uint8) *record.Image {
	t.Helper()
	raster := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	for i := 0; i < len(raster.Pix); i += 4 {
		raster.Pix[i], raster.Pix[i+1], raster.Pix[i+2], raster.Pix[i+3] = shade, shade, 0, 0xff
	}
	img, err := record.NewImage(raster)
	require.NoError(t, err)
	return img
}

func newRecord(t *testing.T, id, name string) *record.Record {
	t.Helper()
	r, err := record.New(id, newImage(t, uint8(len(id)*20)), map[string]any{
		schema.Name:   name,
		schema.Author: "Klaus Teuber",
	})
	require.NoError(t, err)
	return r
}

func newTestStore(opts ...Option) *Store {
	return NewStore(append([]Option{WithLogger(logging.Nop())}, opts...)...)
}

func TestStore_Append(t *testing.T) {
	obs := &MockObserver{}
	obs.On("RowsInserted", 0, 1).Once()
	obs.On("RowsInserted", 2, 2).Once()

	s := newTestStore(WithObserver(obs))
	require.NoError(t, s.Append(newRecord(t, "13", "Catan"), newRecord(t, "822", "Carcassonne")))
	require.NoError(t, s.Append(newRecord(t, "9209", "Ticket to Ride")))

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"13", "822", "9209"}, s.Keys())
	assert.Equal(t, "Carcassonne", s.Get("822").Text(schema.Name))
	assert.Equal(t, "9209", s.At(2).ID)
	assert.Nil(t, s.At(3))
	obs.AssertExpectations(t)
}

func TestStore_AppendIsAtomic(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Append(newRecord(t, "13", "Catan")))

	shared := newRecord(t, "50", "Shared")
	sharing := newRecord(t, "51", "Sharing")
	sharing.Image = shared.Image

	unknown := newRecord(t, "60", "Unknown")
	unknown.Fields["colour"] = "red"

	badKind := newRecord(t, "61", "Bad")
	badKind.Fields[schema.MinPlayers] = "lots"

	noImage := newRecord(t, "62", "Blank")
	noImage.Image = nil

	tests := []struct {
		name   string
		batch  []*record.Record
		fields []string
	}{
		{"existing key", []*record.Record{newRecord(t, "14", "ok"), newRecord(t, "13", "dup")}, []string{schema.KeyField}},
		{"repeated in batch", []*record.Record{newRecord(t, "15", "a"), newRecord(t, "15", "b")}, []string{schema.KeyField}},
		{"invalid key", []*record.Record{newRecord(t, "abc", "a")}, []string{schema.KeyField}},
		{"shared image", []*record.Record{shared, sharing}, []string{schema.ImageField}},
		{"unknown field", []*record.Record{newRecord(t, "16", "ok"), unknown}, []string{"colour"}},
		{"wrong kind", []*record.Record{badKind}, []string{schema.MinPlayers}},
		{"missing image", []*record.Record{noImage}, []string{schema.ImageField}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Append(tt.batch...)
			require.ErrorIs(t, err, apperr.ErrValidation)

			var ve *apperr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.fields, ve.Fields)
			assert.Equal(t, []string{"13"}, s.Keys())
		})
	}
}

func TestStore_Update(t *testing.T) {
	obs := &MockObserver{}
	obs.On("RowsInserted", 0, 0)
	obs.On("RecordChanged", "13", schema.MinPlayers).Once()
	obs.On("RecordChanged", "13", schema.ImageField).Once()

	s := newTestStore(WithObserver(obs))
	r := newRecord(t, "13", "Catan")
	require.NoError(t, s.Append(r))

	require.NoError(t, s.Update("13", schema.MinPlayers, 3))
	assert.Equal(t, int64(3), s.Get("13").Get(schema.MinPlayers))

	old := r.Image
	fresh := newImage(t, 99)
	require.NoError(t, s.Update("13", schema.ImageField, fresh))
	assert.True(t, old.Released())
	assert.Same(t, fresh, s.Get("13").Image)

	assert.ErrorIs(t, s.Update("99", schema.Name, "x"), apperr.ErrNotFound)
	assert.ErrorIs(t, s.Update("13", "colour", "red"), apperr.ErrValidation)
	assert.ErrorIs(t, s.Update("13", schema.KeyField, "14"), apperr.ErrValidation)
	assert.ErrorIs(t, s.Update("13", schema.Rating, "great"), apperr.ErrValidation)
	assert.ErrorIs(t, s.Update("13", schema.ImageField, "not an image"), apperr.ErrValidation)

	obs.AssertExpectations(t)
}

func TestStore_Remove(t *testing.T) {
	obs := &MockObserver{}
	obs.On("RowsInserted", 0, 2)
	obs.On("RowsRemoved", 1, 1).Once()

	s := newTestStore(WithObserver(obs))
	middle := newRecord(t, "822", "Carcassonne")
	require.NoError(t, s.Append(newRecord(t, "13", "Catan"), middle, newRecord(t, "9209", "Ticket to Ride")))

	require.NoError(t, s.Remove("822"))
	assert.True(t, middle.Image.Released())
	assert.Equal(t, []string{"13", "9209"}, s.Keys())
	assert.Equal(t, "9209", s.Get("9209").ID)
	assert.Nil(t, s.Get("822"))

	assert.ErrorIs(t, s.Remove("822"), apperr.ErrNotFound)
	obs.AssertExpectations(t)
}

func TestStore_Upsert(t *testing.T) {
	s := newTestStore()
	original := newRecord(t, "13", "Catan")
	require.NoError(t, s.Append(original))

	added, replaced, err := s.Upsert(newRecord(t, "13", "Catan 5th Edition"), newRecord(t, "822", "Carcassonne"))
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, "Catan 5th Edition", s.Get("13").Text(schema.Name))
	assert.True(t, original.Image.Released())
	assert.Equal(t, []string{"13", "822"}, s.Keys())
}

func TestStore_Metadata(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetMetadata("owner", "ryan"))
	require.NoError(t, s.SetMetadata("games", 12))
	require.NoError(t, s.SetMetadata("owner", "sam"))

	assert.ErrorIs(t, s.SetMetadata("bad", []int{1}), apperr.ErrValidation)

	meta := s.Metadata()
	assert.Equal(t, map[string]any{"owner": "sam", "games": int64(12)}, meta)
	meta["owner"] = "changed"
	assert.Equal(t, "sam", s.Metadata()["owner"])
	assert.Equal(t, []string{"games", "owner"}, s.MetadataKeys())

	require.NoError(t, s.DeleteMetadata("games"))
	assert.ErrorIs(t, s.DeleteMetadata("games"), apperr.ErrNotFound)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.splz")

	s := newTestStore()
	require.NoError(t, s.Append(newRecord(t, "13", "Catan"), newRecord(t, "822", "Carcassonne")))
	require.NoError(t, s.Update("822", schema.Rating, 7.4))
	require.NoError(t, s.SetMetadata("owner", "ryan"))
	require.NoError(t, s.SetMetadata("version", "mine"))
	require.NoError(t, s.Save(path))

	obs := &MockObserver{}
	obs.On("Reset").Once()
	loaded := newTestStore(WithObserver(obs))
	require.NoError(t, loaded.Load(path))

	assert.True(t, s.Equal(loaded))
	assert.Equal(t, "mine", loaded.Metadata()["version"])
	obs.AssertExpectations(t)
}

func TestStore_LoadFailureLeavesStoreUntouched(t *testing.T) {
	dir := t.TempDir()
	corrupt := filepath.Join(dir, "broken.splz")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a zip"), 0o644))

	s := newTestStore()
	r := newRecord(t, "13", "Catan")
	require.NoError(t, s.Append(r))
	require.NoError(t, s.SetMetadata("owner", "ryan"))

	err := s.Load(corrupt)
	assert.ErrorIs(t, err, apperr.ErrCorruptArchive)

	err = s.Load(filepath.Join(dir, "missing.splz"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, []string{"13"}, s.Keys())
	assert.False(t, r.Image.Released())
	assert.Equal(t, "ryan", s.Metadata()["owner"])
}

func TestStore_Equal(t *testing.T) {
	a := newTestStore()
	b := newTestStore()
	require.NoError(t, a.Append(newRecord(t, "13", "Catan")))
	require.NoError(t, b.Append(newRecord(t, "13", "Catan")))
	assert.True(t, a.Equal(b))

	require.NoError(t, b.Update("13", schema.ImageField, newImage(t, 1)))
	assert.False(t, a.Equal(b), "images differ")

	c := newTestStore()
	require.NoError(t, c.Append(newRecord(t, "13", "Catan")))
	require.NoError(t, c.SetMetadata("k", "v"))
	assert.False(t, a.Equal(c), "metadata differs")
}

func TestStore_Search(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Append(newRecord(t, "13", "Die Siedler von CATAN"), newRecord(t, "822", "Carcassonne")))
	require.NoError(t, s.Update("822", schema.Author, "Klaus-Jürgen Wrede"))

	assert.Len(t, s.Search("catan"), 1)
	assert.Len(t, s.Search("KLAUS"), 2)
	assert.Len(t, s.Search("jürgen"), 1)
	assert.Len(t, s.Search(""), 2)
	assert.Empty(t, s.Search("gloomhaven"))
}

func TestStore_RecordsAreClones(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.Append(newRecord(t, "13", "Catan")))

	out := s.Records()
	out[0].Fields[schema.Name] = "changed"
	assert.Equal(t, "Catan", s.Get("13").Text(schema.Name))
}
