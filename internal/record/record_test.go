package record

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/ryanm101/spielpendium/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRaster(w, h int, alpha uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8(x + y), A: alpha})
		}
	}
	return img
}

func TestNewImage_RejectsEmpty(t *testing.T) {
	_, err := NewImage(image.NewNRGBA(image.Rect(0, 0, 0, 4)))
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = NewImage(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)

	_, err = DecodeImage(nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestDecodeImage_Garbage(t *testing.T) {
	_, err := DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestImage_EncodeIsStableAcrossRoundTrip(t *testing.T) {
	for _, alpha := range []uint8{0xff, 0x80, 0x01} {
		img, err := NewImage(testRaster(9, 5, alpha))
		require.NoError(t, err)

		first, err := img.Encode()
		require.NoError(t, err)

		decoded, err := DecodeImage(first)
		require.NoError(t, err)
		second, err := decoded.Encode()
		require.NoError(t, err)

		assert.Equal(t, first, second, "alpha %d", alpha)
	}
}

func TestImage_SubImageOffset(t *testing.T) {
	full := testRaster(10, 10, 0xff)
	sub := full.SubImage(image.Rect(3, 4, 6, 8))

	img, err := NewImage(sub)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width())
	assert.Equal(t, 4, img.Height())
	assert.Equal(t, full.NRGBAAt(3, 4), img.pix.NRGBAAt(0, 0))
}

func TestDecodeImage_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testRaster(16, 8, 0xff), nil))

	img, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width())

	encoded, err := img.Encode()
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(encoded))
	assert.NoError(t, err)
}

func TestImage_Fit(t *testing.T) {
	img, err := NewImage(testRaster(400, 200, 0xff))
	require.NoError(t, err)

	fitted := img.Fit(100)
	assert.Equal(t, 100, fitted.Width())
	assert.Equal(t, 50, fitted.Height())

	tall, err := NewImage(testRaster(10, 40, 0xff))
	require.NoError(t, err)
	fittedTall := tall.Fit(20)
	assert.Equal(t, 5, fittedTall.Width())
	assert.Equal(t, 20, fittedTall.Height())

	assert.Same(t, img, img.Fit(1000))
	assert.Same(t, img, img.Fit(0))
}

func TestImage_CloneAndRelease(t *testing.T) {
	img, err := NewImage(testRaster(4, 4, 0xff))
	require.NoError(t, err)

	clone := img.Clone()
	img.Release()

	assert.True(t, img.Released())
	assert.False(t, clone.Released())
	_, err = img.Encode()
	assert.ErrorIs(t, err, ErrEmptyImage)
	assert.Equal(t, 0, img.Width())
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder(32)
	assert.Equal(t, 32, p.Width())
	assert.Equal(t, 32, p.Height())

	assert.Equal(t, 64, Placeholder(0).Width())
}

func TestNew_NormalizesFields(t *testing.T) {
	r, err := New("13", nil, map[string]any{
		schema.Name:       "Catan",
		schema.MinPlayers: 3,
		schema.Rating:     "7.1",
		schema.Author:     nil,
	})
	require.NoError(t, err)

	assert.Equal(t, "Catan", r.Get(schema.Name))
	assert.Equal(t, int64(3), r.Get(schema.MinPlayers))
	assert.Equal(t, 7.1, r.Get(schema.Rating))
	assert.Nil(t, r.Get(schema.Author))
	assert.Equal(t, "13", r.Get(schema.KeyField))
	assert.NotContains(t, r.Fields, schema.Author)
}

func TestNew_RejectsUnknownField(t *testing.T) {
	_, err := New("13", nil, map[string]any{"colour": "red"})
	assert.Error(t, err)
}

func TestRecord_Equal(t *testing.T) {
	a, err := New("13", nil, map[string]any{schema.Name: "Catan", schema.Publisher: map[string]string{"37": "KOSMOS"}})
	require.NoError(t, err)
	b := a.Clone(false)

	assert.True(t, a.Equal(b))

	b.Fields[schema.Publisher].(map[string]string)["37"] = "Mayfair"
	assert.False(t, a.Equal(b), "clone must not share mappings")

	c := a.Clone(false)
	c.ID = "14"
	assert.False(t, a.Equal(c))

	// Absent and nil compare equal.
	d := a.Clone(false)
	d.Fields[schema.Author] = nil
	assert.True(t, a.Equal(d))
}

func TestRecord_CloneDeepCopiesImage(t *testing.T) {
	img, err := NewImage(testRaster(2, 2, 0xff))
	require.NoError(t, err)
	r := &Record{ID: "1", Image: img}

	shallow := r.Clone(false)
	deep := r.Clone(true)

	assert.Same(t, img, shallow.Image)
	assert.NotSame(t, img, deep.Image)

	r.Release()
	assert.False(t, deep.Image.Released())
}
