package manipulator

import (
	"github.com/disintegration/imaging"
	"image"
	"math"
)

// rotatedExtent is the canvas needed to hold a w x h image rotated by deg
// degrees about its center. Right angles are exact.
func rotatedExtent(w, h int, deg float64) (int, int) {
	switch deg {
	case 0, 180:
		return w, h
	case 90, 270:
		return h, w
	}

	rad := deg * math.Pi / 180
	c := math.Abs(math.Cos(rad))
	s := math.Abs(math.Sin(rad))

	// the epsilon keeps float noise from adding a pixel
	rw := int(math.Ceil(float64(w)*c + float64(h)*s - 1e-9))
	rh := int(math.Ceil(float64(w)*s + float64(h)*c - 1e-9))

	return max(rw, 1), max(rh, 1)
}

// thumbnailSize fits w x h into maxEdge on the longer side.
func thumbnailSize(w, h, maxEdge int) (int, int) {
	long := max(w, h)
	if maxEdge <= 0 || long <= maxEdge {
		return w, h
	}

	ratio := float64(maxEdge) / float64(long)
	tw := int(math.Round(float64(w) * ratio))
	th := int(math.Round(float64(h) * ratio))

	return max(tw, 1), max(th, 1)
}

// maskAlpha extracts the alpha channel of mask, resized to w x h first when
// needed. Both backends gate with the same stencil.
func maskAlpha(mask image.Image, w, h int) *image.Alpha {
	src := imaging.Clone(mask)
	if src.Bounds().Dx() != w || src.Bounds().Dy() != h {
		src = imaging.Resize(src, w, h, imaging.Linear)
	}

	out := image.NewAlpha(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Pix[y*out.Stride+x] = src.Pix[y*src.Stride+x*4+3]
		}
	}

	return out
}
