package record

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"

	"golang.org/x/image/draw"
)

// ErrEmptyImage is returned for rasters with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// pngEncoder is shared so every encode uses identical settings.
var pngEncoder = png.Encoder{CompressionLevel: png.DefaultCompression}

// Image is a raster owned by exactly one Record. Pixels are held as NRGBA so
// that encoding, decoding and re-encoding produce identical PNG bytes.
type Image struct {
	pix *image.NRGBA
}

// NewImage copies img into a canonical raster.
func NewImage(img image.Image) (*Image, error) {
	if img == nil {
		return nil, ErrEmptyImage
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrEmptyImage
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	if src, ok := img.(*image.NRGBA); ok {
		// Copy rows directly so translucent pixels stay exact.
		for y := 0; y < b.Dy(); y++ {
			so := src.PixOffset(b.Min.X, b.Min.Y+y)
			copy(dst.Pix[y*dst.Stride:y*dst.Stride+4*b.Dx()], src.Pix[so:so+4*b.Dx()])
		}
		return &Image{pix: dst}, nil
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Image{pix: dst}, nil
}

// DecodeImage decodes PNG, JPEG or GIF data.
func DecodeImage(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return NewImage(img)
}

// Placeholder returns a uniform grey square of the given size.
func Placeholder(size int) *Image {
	if size <= 0 {
		size = 64
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.NRGBA{R: 0xc0, G: 0xc0, B: 0xc0, A: 0xff}}, image.Point{}, draw.Src)
	return &Image{pix: dst}
}

// Encode returns the canonical PNG encoding.
func (i *Image) Encode() ([]byte, error) {
	if i == nil || i.pix == nil {
		return nil, ErrEmptyImage
	}
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, i.pix); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Width returns the raster width, or 0 after Release.
func (i *Image) Width() int {
	if i == nil || i.pix == nil {
		return 0
	}
	return i.pix.Bounds().Dx()
}

// Height returns the raster height, or 0 after Release.
func (i *Image) Height() int {
	if i == nil || i.pix == nil {
		return 0
	}
	return i.pix.Bounds().Dy()
}

// Fit scales the image down so neither side exceeds limit, keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func (i *Image) Fit(limit int) *Image {
	w, h := i.Width(), i.Height()
	if limit <= 0 || w == 0 || (w <= limit && h <= limit) {
		return i
	}
	nw, nh := limit, limit
	if w >= h {
		nh = h * limit / w
	} else {
		nw = w * limit / h
	}
	nw, nh = max(nw, 1), max(nh, 1)

	dst := image.NewNRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), i.pix, i.pix.Bounds(), draw.Src, nil)
	return &Image{pix: dst}
}

// Clone returns a deep copy.
func (i *Image) Clone() *Image {
	if i == nil || i.pix == nil {
		return nil
	}
	dst := image.NewNRGBA(i.pix.Bounds())
	copy(dst.Pix, i.pix.Pix)
	return &Image{pix: dst}
}

// Release drops the pixel buffer.
func (i *Image) Release() {
	if i != nil {
		i.pix = nil
	}
}

// Released reports whether Release has been called.
func (i *Image) Released() bool {
	return i == nil || i.pix == nil
}
