package manipulator

import (
	"github.com/denismitr/mockup/internal/media"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"image"
)

// VectorBackend renders with Lanczos resampling and gg affine drawing.
type VectorBackend struct{}

func (*VectorBackend) Name() string {
	return BackendVector
}

func (*VectorBackend) Resize(img image.Image, w, h int) *image.NRGBA {
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

func (*VectorBackend) Rotate(img *image.NRGBA, deg float64, rw, rh int) (*image.NRGBA, error) {
	// imaging rotates counter-clockwise
	switch deg {
	case 0:
		return imaging.Clone(img), nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	}

	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	dc := gg.NewContext(rw, rh)
	dc.Translate(float64(rw)/2, float64(rh)/2)
	dc.Rotate(gg.Radians(deg))
	dc.Translate(-w/2, -h/2)
	dc.DrawImage(img, 0, 0)

	return imaging.Clone(dc.Image()), nil
}

func (*VectorBackend) Compose(dst, src *image.NRGBA, at image.Point, mask *image.Alpha) (*image.NRGBA, error) {
	if mask == nil {
		return imaging.Overlay(dst, src, at, 1.0), nil
	}

	dc := gg.NewContextForImage(dst)
	if err := dc.SetMask(mask); err != nil {
		return nil, errors.Wrapf(media.ErrComposeFailed, "vector backend: %v", err)
	}

	dc.DrawImage(src, at.X, at.Y)

	return imaging.Clone(dc.Image()), nil
}
