// Copyright 2026 The dynimage authors.
// SPDX-License-Identifier: Apache-2.0

package dynimage

import "math"

// Resolve computes the output dimensions of resizing a srcW x srcH image to
// the target box dstW x dstH using mode.
//
// Except for Fill, images are never resized larger than the original: a
// request that would upscale returns the source dimensions unchanged.  For
// UniformFill the result is the target box that the scaled source is cropped
// to.  Results are never smaller than 1x1.
//
// Resolve expects positive inputs; unknown modes resolve like Uniform.
func Resolve(srcW, srcH, dstW, dstH int, mode Mode) (w, h int) {
	sx := float64(dstW) / float64(srcW)
	sy := float64(dstH) / float64(srcH)

	switch mode {
	case Fill:
		return dstW, dstH

	case UniformFill:
		if math.Max(sx, sy) > 1 {
			return srcW, srcH
		}
		return dstW, dstH

	case UseHeight:
		if sy > 1 {
			return srcW, srcH
		}
		return scale(srcW, sy), dstH

	case UseWidth:
		if sx > 1 {
			return srcW, srcH
		}
		return dstW, scale(srcH, sx)

	default:
		if math.Min(sx, sy) >= 1 {
			return srcW, srcH
		}
		// the limiting axis matches the target exactly
		if sx <= sy {
			return dstW, scale(srcH, sx)
		}
		return scale(srcW, sy), dstH
	}
}

func scale(n int, f float64) int {
	v := int(math.Round(float64(n) * f))
	if v < 1 {
		return 1
	}
	return v
}
