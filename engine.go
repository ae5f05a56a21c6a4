// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import "context"

// Engine decodes, validates and re-encodes images.  All pixel work is done
// by the engine; the rest of the package only handles encoded bytes.
//
// A deployment selects one Engine when constructing its Generator.
type Engine interface {
	// IsImage reports whether b looks like an image the engine can
	// decode.  It returns false, and never panics, for nil, empty or
	// non-image input.
	IsImage(b []byte) bool

	// Dimensions returns the display width and height of the encoded
	// image b, taking orientation metadata into account.
	Dimensions(b []byte) (width, height int, err error)

	// Resize decodes b and re-encodes it as a width x height image in
	// the given format, using mode to decide how the source is fit to
	// the output.  It returns ErrNullOrEmptyInput for empty b and
	// ErrInvalidImage if b can not be decoded.
	Resize(ctx context.Context, b []byte, width, height int, mode Mode, format Format) ([]byte, error)
}
