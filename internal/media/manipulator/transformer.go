package manipulator

import (
	"github.com/denismitr/mockup/internal/media"
	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	"image"
	"image/color"
)

// imageTransformer applies a user transform to a decoded photo and
// builds the thumbnail of a finished composite.
type imageTransformer struct {
	cfg     *Config
	backend Backend
	logger  *logrus.Logger
}

func newImageTransformer(cfg *Config, backend Backend, logger *logrus.Logger) *imageTransformer {
	return &imageTransformer{
		cfg:     cfg,
		backend: backend,
		logger:  logger,
	}
}

// place crops, scales and rotates the user photo. It returns the image
// ready to be drawn and the base pixel where its top left corner goes.
func (it *imageTransformer) place(user image.Image, b media.Bounds, t media.Transform) (*image.NRGBA, image.Point, error) {
	if err := t.Validate(); err != nil {
		return nil, image.Point{}, err
	}

	uw, uh := user.Bounds().Dx(), user.Bounds().Dy()
	if err := t.CropWithin(uw, uh); err != nil {
		return nil, image.Point{}, err
	}

	if dev := t.CropAspectDeviation(b); dev > media.AspectTolerance {
		it.logger.WithFields(logrus.Fields{
			"crop":      t.Crop,
			"bounds":    b,
			"deviation": dev,
		}).Warn("crop aspect differs from placement, photo will be stretched")
	}

	origin := user.Bounds().Min
	cropped := imaging.Crop(user, image.Rect(
		origin.X+t.Crop.X, origin.Y+t.Crop.Y,
		origin.X+t.Crop.X+t.Crop.W, origin.Y+t.Crop.Y+t.Crop.H,
	))

	sw, sh := t.ScaledSize(b)
	resized := it.backend.Resize(cropped, sw, sh)

	rw, rh := rotatedExtent(sw, sh, t.Rotation)
	rotated, err := it.backend.Rotate(resized, t.Rotation, rw, rh)
	if err != nil {
		return nil, image.Point{}, err
	}

	px, py := t.Origin(b)

	it.logger.WithFields(logrus.Fields{
		"backend": it.backend.Name(),
		"scaled":  image.Pt(sw, sh),
		"rotated": image.Pt(rw, rh),
		"origin":  image.Pt(px, py),
	}).Debug("user photo placed")

	return rotated, image.Pt(px, py), nil
}

// thumbnail downsizes the composite and flattens it onto white for JPEG.
func (it *imageTransformer) thumbnail(composite *image.NRGBA) *image.NRGBA {
	w, h := composite.Bounds().Dx(), composite.Bounds().Dy()
	tw, th := thumbnailSize(w, h, it.cfg.ThumbMaxEdge)

	small := composite
	if tw != w || th != h {
		small = it.backend.Resize(composite, tw, th)
	}

	bg := imaging.New(tw, th, color.White)

	return imaging.Overlay(bg, small, image.Pt(0, 0), 1.0)
}
