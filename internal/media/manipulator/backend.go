package manipulator

import (
	"fmt"
	"github.com/pkg/errors"
	"image"
	"image/color"
	"strings"
)

const (
	BackendAuto   = "auto"
	BackendVector = "vector"
	BackendPixel  = "pixel"
)

var ErrUnknownBackend = errors.New("unknown render backend")

// Backend does the pixel work of a render. Geometry is decided by the
// caller, so every implementation places content identically.
type Backend interface {
	Name() string

	// Resize stretches img to exactly w x h.
	Resize(img image.Image, w, h int) *image.NRGBA

	// Rotate turns img clockwise by deg degrees about its center onto a
	// transparent rw x rh canvas.
	Rotate(img *image.NRGBA, deg float64, rw, rh int) (*image.NRGBA, error)

	// Compose draws src over a copy of dst with its top left corner at.
	// A non nil mask, sized like dst, gates src opacity pixel by pixel.
	Compose(dst, src *image.NRGBA, at image.Point, mask *image.Alpha) (*image.NRGBA, error)
}

// SelectBackend resolves a configured backend name. Auto prefers the
// vector backend and falls back to the pixel one when it does not work.
func SelectBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", BackendAuto:
		vector := &VectorBackend{}
		if err := probe(vector); err != nil {
			return &PixelBackend{}, nil
		}
		return vector, nil
	case BackendVector:
		return &VectorBackend{}, nil
	case BackendPixel:
		return &PixelBackend{}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", name)
	}
}

// probe runs a tiny masked render through b.
func probe(b Backend) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend %s panicked: %v", b.Name(), r)
		}
	}()

	dst := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})

	mask := image.NewAlpha(dst.Bounds())
	for i := range mask.Pix {
		mask.Pix[i] = 0xff
	}

	w, h := rotatedExtent(2, 2, 45)
	rotated, err := b.Rotate(b.Resize(src, 2, 2), 45, w, h)
	if err != nil {
		return err
	}

	_, err = b.Compose(dst, rotated, image.Pt(1, 1), mask)
	return err
}
