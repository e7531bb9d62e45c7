package manipulator

import (
	"github.com/denismitr/mockup/internal/media"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"image"
	"math"
)

// PixelBackend works pixel by pixel: bilinear resampling, nearest
// neighbour rotation and a plain source-over blend.
type PixelBackend struct{}

func (*PixelBackend) Name() string {
	return BackendPixel
}

func (*PixelBackend) Resize(img image.Image, w, h int) *image.NRGBA {
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}

	return imaging.Clone(resize.Resize(uint(w), uint(h), img, resize.Bilinear))
}

func (*PixelBackend) Rotate(img *image.NRGBA, deg float64, rw, rh int) (*image.NRGBA, error) {
	if deg == 0 {
		return imaging.Clone(img), nil
	}

	sb := img.Bounds()
	w, h := sb.Dx(), sb.Dy()

	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)

	out := image.NewNRGBA(image.Rect(0, 0, rw, rh))
	for y := 0; y < rh; y++ {
		dy := float64(y) + 0.5 - float64(rh)/2
		for x := 0; x < rw; x++ {
			dx := float64(x) + 0.5 - float64(rw)/2

			// inverse of a clockwise rotation in y-down space
			sx := int(math.Floor(cos*dx + sin*dy + float64(w)/2))
			sy := int(math.Floor(-sin*dx + cos*dy + float64(h)/2))
			if sx < 0 || sy < 0 || sx >= w || sy >= h {
				continue
			}

			si := sy*img.Stride + sx*4
			di := y*out.Stride + x*4
			copy(out.Pix[di:di+4], img.Pix[si:si+4])
		}
	}

	return out, nil
}

func (*PixelBackend) Compose(dst, src *image.NRGBA, at image.Point, mask *image.Alpha) (*image.NRGBA, error) {
	out := imaging.Clone(dst)
	ob := out.Bounds()

	if mask != nil && mask.Bounds().Size() != ob.Size() {
		return nil, errors.Wrapf(
			media.ErrComposeFailed,
			"pixel backend: mask is %v, canvas is %v", mask.Bounds().Size(), ob.Size(),
		)
	}

	sb := src.Bounds()
	for sy := 0; sy < sb.Dy(); sy++ {
		y := at.Y + sy
		if y < 0 || y >= ob.Dy() {
			continue
		}

		for sx := 0; sx < sb.Dx(); sx++ {
			x := at.X + sx
			if x < 0 || x >= ob.Dx() {
				continue
			}

			si := sy*src.Stride + sx*4
			sa := float64(src.Pix[si+3]) / 255
			if mask != nil {
				sa *= float64(mask.Pix[y*mask.Stride+x]) / 255
			}

			if sa == 0 {
				continue
			}

			di := y*out.Stride + x*4
			if sa == 1 {
				copy(out.Pix[di:di+4], src.Pix[si:si+4])
				continue
			}

			da := float64(out.Pix[di+3]) / 255
			oa := sa + da*(1-sa)
			for c := 0; c < 3; c++ {
				v := (float64(src.Pix[si+c])*sa + float64(out.Pix[di+c])*da*(1-sa)) / oa
				out.Pix[di+c] = clampUint8(v)
			}
			out.Pix[di+3] = clampUint8(oa * 255)
		}
	}

	return out, nil
}

func clampUint8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}

	if v > 255 {
		return 255
	}

	return uint8(v)
}
