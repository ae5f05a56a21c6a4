// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

// Package dynimage provides on-demand image resizing backed by a cache that
// is invalidated when the source image changes.  For typical use of creating
// a Generator and serving it over HTTP, see cmd/dynimage/main.go.
package dynimage // import "willnorris.com/go/dynimage"

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// Mode specifies how the aspect ratio of a source image interacts with the
// requested target box.
type Mode string

const (
	// Fill stretches the source to exactly the target box.
	Fill Mode = "fill"

	// Uniform scales the source to fit entirely inside the target box.
	Uniform Mode = "uniform"

	// UniformFill scales the source to cover the target box, then crops
	// to exactly the target box.
	UniformFill Mode = "uniformfill"

	// UseHeight treats the target height as authoritative.
	UseHeight Mode = "useheight"

	// UseWidth treats the target width as authoritative.
	UseWidth Mode = "usewidth"
)

var modes = []Mode{Fill, Uniform, UniformFill, UseHeight, UseWidth}

// Valid reports whether m is a known resize mode.
func (m Mode) Valid() bool {
	for _, v := range modes {
		if m == v {
			return true
		}
	}
	return false
}

// Format is an output raster format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	BMP  Format = "bmp"
	GIF  Format = "gif"
)

var formats = map[Format]struct {
	ext         string
	contentType string
}{
	JPEG: {"jpg", "image/jpeg"},
	PNG:  {"png", "image/png"},
	BMP:  {"bmp", "image/bmp"},
	GIF:  {"gif", "image/gif"},
}

// Valid reports whether f is a supported output format.
func (f Format) Valid() bool {
	_, ok := formats[f]
	return ok
}

// Ext returns the file extension, without leading dot, used when persisting
// images of this format.
func (f Format) Ext() string {
	return formats[f].ext
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	return formats[f].contentType
}

// FormatFromExt returns the output format matching the extension of p.  If
// the extension is not recognized, ok is false.
func FormatFromExt(p string) (f Format, ok bool) {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "jpg", "jpeg":
		return JPEG, true
	case "png":
		return PNG, true
	case "bmp":
		return BMP, true
	case "gif":
		return GIF, true
	}
	return "", false
}

// Identity describes a requested transform of a source image.  Identities
// are values: two identities with equal fields are the same request and
// always produce the same cache key.
type Identity struct {
	SourcePath string // logical path of the original image
	Width      int    // target width, in pixels
	Height     int    // target height, in pixels
	Mode       Mode
	Format     Format
}

// NewIdentity returns a validated Identity.
func NewIdentity(sourcePath string, width, height int, mode Mode, format Format) (Identity, error) {
	id := Identity{
		SourcePath: sourcePath,
		Width:      width,
		Height:     height,
		Mode:       mode,
		Format:     format,
	}
	if err := id.Validate(); err != nil {
		return Identity{}, err
	}
	return id, nil
}

// Validate returns an error matching ErrInvalidRequest if id can not be
// generated.
func (id Identity) Validate() error {
	var msg string
	switch {
	case id.SourcePath == "":
		msg = "empty source path"
	case id.Width < 1 || id.Height < 1:
		msg = fmt.Sprintf("dimensions must be positive, got %dx%d", id.Width, id.Height)
	case !id.Mode.Valid():
		msg = fmt.Sprintf("unsupported resize mode %q", id.Mode)
	case !id.Format.Valid():
		msg = fmt.Sprintf("unsupported format %q", id.Format)
	default:
		return nil
	}
	return &Error{Op: "validate", Identity: id, Err: fmt.Errorf("%w: %s", ErrInvalidRequest, msg)}
}

// canonical returns the string that Key hashes.  Field order is fixed.
func (id Identity) canonical() string {
	return fmt.Sprintf("%d-W-%d-H-%s-M-%s-F-%s-P", id.Width, id.Height, id.Mode, id.Format, id.SourcePath)
}

// Key returns the cache key for id: the lowercase hex SHA-256 digest of its
// canonical string form.
func (id Identity) Key() string {
	sum := sha256.Sum256([]byte(id.canonical()))
	return hex.EncodeToString(sum[:])
}

// Filename returns the key with the extension of the output format, as used
// by stores that persist one object per identity.
func (id Identity) Filename() string {
	return id.Key() + "." + id.Format.Ext()
}

// Options returns the option string for id, of the form
// "{width}x{height},{mode},{format}".
func (id Identity) Options() string {
	return fmt.Sprintf("%dx%d,%s,%s", id.Width, id.Height, id.Mode, id.Format)
}

// Path returns the canonical request path for id, of the form
// "/{options}/{sourcePath}".  ParseIdentity is its inverse.
func (id Identity) Path() string {
	return "/" + id.Options() + "/" + strings.TrimPrefix(id.SourcePath, "/")
}

func (id Identity) String() string {
	return id.Options() + " " + id.SourcePath
}

// Options specifies a transform requested through the path representation,
// before it is bound to a source path.
type Options struct {
	Width  int
	Height int
	Mode   Mode
	Format Format
}

func (o Options) String() string {
	opts := []string{fmt.Sprintf("%dx%d", o.Width, o.Height)}
	if o.Mode != "" {
		opts = append(opts, string(o.Mode))
	}
	if o.Format != "" {
		opts = append(opts, string(o.Format))
	}
	return strings.Join(opts, ",")
}

// ParseOptions parses str as a list of comma separated transformation
// options.  The options can be specified in any order, and unknown options
// are ignored.  If an option is repeated, the last one wins.
//
// # Size
//
// The size option takes the general form "{width}x{height}".  If only one
// number is given without an "x", it is used for both width and height.
//
//	100x200 - 100 pixels wide, 200 pixels tall
//	100     - 100 pixels square
//
// Sizes that are not numbers between 0 and 65535 are treated as missing.
//
// # Mode
//
// One of "fill", "uniform", "uniformfill", "useheight" or "usewidth".
//
// # Format
//
// One of "jpeg" (or "jpg"), "png", "bmp" or "gif".
func ParseOptions(str string) Options {
	var o Options

	for _, opt := range strings.Split(str, ",") {
		switch {
		case Mode(opt).Valid():
			o.Mode = Mode(opt)
		case opt == "jpg":
			o.Format = JPEG
		case Format(opt).Valid():
			o.Format = Format(opt)
		case strings.ContainsRune(opt, 'x'):
			w, h, _ := strings.Cut(opt, "x")
			o.Width = parseSize(w)
			o.Height = parseSize(h)
		default:
			if size := parseSize(opt); size > 0 {
				o.Width = size
				o.Height = size
			}
		}
	}

	return o
}

// parseSize parses a single dimension, returning 0 if s is not a number in
// the range 0 to 65535.
func parseSize(s string) int {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0
	}
	return int(n)
}

// ParseIdentity parses a request path of the form "/{options}/{sourcePath}"
// into an Identity.  A density suffix on the source path such as "@2x" is
// stripped and multiplies the requested dimensions (see ParseRetina).  If
// the options name no mode, Uniform is used; if they name no format, it is
// inferred from the source extension.
func ParseIdentity(p string) (Identity, error) {
	opts, src, ok := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	if !ok || src == "" {
		return Identity{}, &Error{Op: "parse", Err: fmt.Errorf("%w: too few path segments in %q", ErrInvalidRequest, p)}
	}

	o := ParseOptions(opts)
	if o.Mode == "" {
		o.Mode = Uniform
	}

	src, w, h := ParseRetina("/"+src, o.Width, o.Height)
	if o.Format == "" {
		o.Format, _ = FormatFromExt(src)
	}

	return NewIdentity(src, w, h, o.Mode, o.Format)
}
