// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff" // register tiff format
	_ "golang.org/x/image/webp" // register webp format
	"willnorris.com/go/gifresize"
)

// default compression quality of resized jpegs
const defaultQuality = 95

// maximum distance into image to look for EXIF tags
const maxExifSize = 1 << 20

// default maximum number of pixels in a source image
const defaultMaxPixels = 50_000_000

// resampleFilter is used when resizing images.
var resampleFilter = imaging.Lanczos

// ImagingEngine is an Engine using the pure Go imaging library.  It decodes
// jpeg, png, gif, bmp, tiff and webp images and encodes jpeg, png, gif and
// bmp.  The zero value is ready to use.
type ImagingEngine struct {
	// Quality is the jpeg encoding quality, 1 to 100.  Zero means 95.
	Quality int

	// MaxPixels is the largest source image, in pixels, that will be
	// decoded, and the largest image that will be generated.  Zero means
	// 50 megapixels.
	MaxPixels int

	// SmartCrop selects the crop region of UniformFill resizes by image
	// content rather than centering it.
	SmartCrop bool
}

var _ Engine = ImagingEngine{}

// IsImage reports whether the header of b decodes as a registered image
// format.
func (e ImagingEngine) IsImage(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	_, _, err := image.DecodeConfig(bytes.NewReader(b))
	return err == nil
}

// Dimensions returns the size of b as displayed, with EXIF orientations that
// transpose the image applied.
func (e ImagingEngine) Dimensions(b []byte) (int, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrNullOrEmptyInput
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	switch exifOrientation(bytes.NewReader(b)) {
	case leftSideTop, rightSideTop, rightSideBottom, leftSideBottom:
		return cfg.Height, cfg.Width, nil
	}
	return cfg.Width, cfg.Height, nil
}

// Resize implements Engine.
func (e ImagingEngine) Resize(ctx context.Context, b []byte, w, h int, mode Mode, format Format) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrNullOrEmptyInput
	}
	if !format.Valid() {
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidRequest, format)
	}
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %dx%d", ErrInvalidRequest, w, h)
	}
	maxPixels := e.MaxPixels
	if maxPixels == 0 {
		maxPixels = defaultMaxPixels
	}
	if w > maxPixels/h {
		return nil, fmt.Errorf("%w: output too large (%dx%d)", ErrInvalidRequest, w, h)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, srcFormat, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, fmt.Errorf("%w: image too large (%dx%d)", ErrInvalidImage, cfg.Width, cfg.Height)
	}

	start := time.Now()
	defer func() { resizeSummary.Observe(time.Since(start).Seconds()) }()

	buf := new(bytes.Buffer)

	// resize animated gifs frame by frame
	if srcFormat == "gif" && format == GIF {
		fn := func(m image.Image) image.Image { return e.transformImage(m, w, h, mode) }
		if err := gifresize.Process(buf, bytes.NewReader(b), fn); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		return buf.Bytes(), nil
	}

	m, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	m = orient(m, exifOrientation(bytes.NewReader(b)))
	m = e.transformImage(m, w, h, mode)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.encode(buf, m, format); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func (e ImagingEngine) encode(w io.Writer, m image.Image, format Format) error {
	switch format {
	case JPEG:
		quality := e.Quality
		if quality == 0 {
			quality = defaultQuality
		}
		return jpeg.Encode(w, m, &jpeg.Options{Quality: quality})
	case PNG:
		return png.Encode(w, m)
	case GIF:
		return gif.Encode(w, m, nil)
	case BMP:
		return bmp.Encode(w, m)
	}
	return fmt.Errorf("unsupported format %q", format)
}

// transformImage resizes m to exactly w x h.  Dimensions are expected to
// come from Resolve, so only UniformFill needs to crop.
func (e ImagingEngine) transformImage(m image.Image, w, h int, mode Mode) image.Image {
	if b := m.Bounds(); b.Dx() == w && b.Dy() == h {
		return m
	}

	if mode != UniformFill {
		return imaging.Resize(m, w, h, resampleFilter)
	}

	if e.SmartCrop {
		analyzer := smartcrop.NewAnalyzer(nfnt.NewDefaultResizer())
		if r, err := analyzer.FindBestCrop(m, w, h); err == nil {
			return imaging.Resize(imaging.Crop(m, r), w, h, resampleFilter)
		}
	}
	return imaging.Fill(m, w, h, imaging.Center, resampleFilter)
}

// Exif Orientation Tag values
// http://sylvana.net/jpegcrop/exif_orientation.html
const (
	topLeftSide     = 1
	topRightSide    = 2
	bottomRightSide = 3
	bottomLeftSide  = 4
	leftSideTop     = 5
	rightSideTop    = 6
	rightSideBottom = 7
	leftSideBottom  = 8
)

// exifOrientation returns the EXIF orientation tag of the image in r, or
// zero if there is none.
func exifOrientation(r io.Reader) int {
	ex, err := exif.Decode(io.LimitReader(r, maxExifSize))
	if err != nil {
		return 0
	}
	tag, err := ex.Get(exif.Orientation)
	if err != nil {
		return 0
	}
	o, err := tag.Int(0)
	if err != nil {
		return 0
	}
	return o
}

// orient returns m displayed in the given EXIF orientation.
func orient(m image.Image, orientation int) image.Image {
	switch orientation {
	case topRightSide:
		return imaging.FlipH(m)
	case bottomRightSide:
		return imaging.Rotate180(m)
	case bottomLeftSide:
		return imaging.FlipV(m)
	case leftSideTop:
		return imaging.Transpose(m)
	case rightSideTop:
		return imaging.Rotate270(m)
	case rightSideBottom:
		return imaging.Transverse(m)
	case leftSideBottom:
		return imaging.Rotate90(m)
	}
	return m
}
