// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import (
	"math"
	"path"
	"strconv"
	"strings"
)

// ParseRetina translates a display path that may carry a density suffix,
// such as "/img@2x.png", into the path of the source image and the
// effective dimensions to generate.  The suffix must immediately precede the
// file extension.  If present, it is stripped from the path and width and
// height are multiplied by the density.  Paths without a suffix, or with a
// malformed one ("@x", "@0x", "@abcx"), or whose density would overflow the
// dimensions, are returned unchanged along with width and height.
func ParseRetina(displayPath string, width, height int) (sourcePath string, w, h int) {
	ext := path.Ext(displayPath)
	base := strings.TrimSuffix(displayPath, ext)

	i := strings.LastIndexByte(base, '@')
	if i < 0 || strings.ContainsRune(base[i:], '/') {
		return displayPath, width, height
	}

	suffix, ok := strings.CutSuffix(base[i+1:], "x")
	if !ok {
		return displayPath, width, height
	}
	n, err := strconv.ParseUint(suffix, 10, 16)
	if err != nil || n < 1 {
		return displayPath, width, height
	}
	if d := math.MaxInt / int(n); width > d || height > d || width < -d || height < -d {
		return displayPath, width, height
	}

	return base[:i] + ext, width * int(n), height * int(n)
}
