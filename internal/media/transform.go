package media

import (
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"math"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const MaxScale = 10

// MaxCropCoord bounds every crop field. Larger values cannot address a
// decodable image.
const MaxCropCoord = 1 << 30

// Bounds is the placement rectangle on the base mockup, in base image
// pixels.
type Bounds struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	W        float64 `json:"w"`
	H        float64 `json:"h"`
	Rotation float64 `json:"rotation"`
}

func (b Bounds) Validate() error {
	vErr := NewValidationError()

	if !finite(b.X) || !finite(b.Y) {
		vErr.Add("bounds", "offset must be a finite number")
	}

	if !(b.W > 0) || !finite(b.W) {
		vErr.Add("bounds.w", "must be greater than zero")
	}

	if !(b.H > 0) || !finite(b.H) {
		vErr.Add("bounds.h", "must be greater than zero")
	}

	if !vErr.Empty() {
		return vErr
	}

	return nil
}

func (b Bounds) Aspect() float64 {
	return b.W / b.H
}

// Rect is an integer rectangle in the user image pixel space.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

func (r Rect) Aspect() float64 {
	return float64(r.W) / float64(r.H)
}

// Transform is the normalized user placement. Build it with
// RawTransform.Normalize.
type Transform struct {
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	TX       float64 `json:"tx"`
	TY       float64 `json:"ty"`
	Crop     Rect    `json:"crop"`
}

// RawTransform is the transform as posted by the customizer, every
// field still a float.
type RawTransform struct {
	Scale    float64 `json:"scale"`
	Rotation float64 `json:"rotation"`
	TX       float64 `json:"tx"`
	TY       float64 `json:"ty"`
	Crop     struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
		W float64 `json:"w"`
		H float64 `json:"h"`
	} `json:"crop"`
}

// Normalize folds the rotation into [0,360), truncates the crop to
// integers and rejects anything a render could not honour.
func (r RawTransform) Normalize() (Transform, error) {
	vErr := NewValidationError()
	for field, v := range map[string]float64{
		"crop.x": r.Crop.X,
		"crop.y": r.Crop.Y,
		"crop.w": r.Crop.W,
		"crop.h": r.Crop.H,
	} {
		if !finite(v) || math.Abs(v) > MaxCropCoord {
			vErr.Add(field, fmt.Sprintf("must be a finite number within ±%d", MaxCropCoord))
		}
	}

	if !vErr.Empty() {
		return Transform{}, vErr
	}

	t := Transform{
		Scale:    r.Scale,
		Rotation: NormalizeRotation(r.Rotation),
		TX:       r.TX,
		TY:       r.TY,
		Crop: Rect{
			X: truncate(r.Crop.X),
			Y: truncate(r.Crop.Y),
			W: truncate(r.Crop.W),
			H: truncate(r.Crop.H),
		},
	}

	if err := t.Validate(); err != nil {
		return Transform{}, err
	}

	return t, nil
}

// Validate re-checks a transform that is about to be rendered.
func (t Transform) Validate() error {
	vErr := NewValidationError()

	if !finite(t.Scale) || t.Scale <= 0 || t.Scale > MaxScale {
		vErr.Add("scale", fmt.Sprintf("must be greater than 0 and at most %d", MaxScale))
	}

	if !finite(t.Rotation) || t.Rotation < 0 || t.Rotation >= 360 {
		vErr.Add("rotation", "must be within [0,360)")
	}

	if !finite(t.TX) || !finite(t.TY) {
		vErr.Add("translation", "must be a finite number")
	}

	if t.Crop.W <= 0 {
		vErr.Add("crop.w", "must be greater than zero")
	}

	if t.Crop.H <= 0 {
		vErr.Add("crop.h", "must be greater than zero")
	}

	if !vErr.Empty() {
		return vErr
	}

	return nil
}

// CropWithin rejects a crop that leaves the [0,w)x[0,h) source area.
// Crops are never clamped. Nothing is added so huge values cannot wrap.
func (t Transform) CropWithin(width, height int) error {
	c := t.Crop
	if c.X < 0 || c.Y < 0 || c.W <= 0 || c.H <= 0 || c.X > width-c.W || c.Y > height-c.H {
		vErr := NewValidationError()
		vErr.Add("crop", fmt.Sprintf(
			"rectangle %dx%d+%d+%d is outside of the %dx%d source image",
			c.W, c.H, c.X, c.Y, width, height,
		))
		return vErr
	}

	return nil
}

// CropAspectDeviation is the distance between the crop aspect ratio and
// the bounds aspect ratio. A large value means the placed photo will be
// stretched.
func (t Transform) CropAspectDeviation(b Bounds) float64 {
	if t.Crop.H == 0 || b.H == 0 {
		return 0
	}

	return math.Abs(t.Crop.Aspect() - b.Aspect())
}

// ScaledSize is the size of the cropped photo once fitted into the bounds.
func (t Transform) ScaledSize(b Bounds) (int, int) {
	w := int(math.Round(b.W * t.Scale))
	h := int(math.Round(b.H * t.Scale))

	if w < 1 {
		w = 1
	}

	if h < 1 {
		h = 1
	}

	return w, h
}

// Origin is where the top left corner of the transformed photo lands on
// the base image. Translation is in base pixels, independent of scale.
func (t Transform) Origin(b Bounds) (int, int) {
	return int(math.Round(b.X + t.TX)), int(math.Round(b.Y + t.TY))
}

func NormalizeRotation(deg float64) float64 {
	if !finite(deg) {
		return deg
	}

	r := math.Mod(deg, 360)
	if r < 0 {
		r += 360
	}

	if r >= 360 {
		r = 0
	}

	return r
}

// ParseTransform decodes and normalizes the customizer payload.
func ParseTransform(data []byte) (Transform, error) {
	var raw RawTransform
	if err := json.Unmarshal(data, &raw); err != nil {
		return Transform{}, errors.Wrapf(ErrInvalidTransform, "could not decode transform: %v", err)
	}

	return raw.Normalize()
}

func ParseBounds(data []byte) (Bounds, error) {
	var b Bounds
	if err := json.Unmarshal(data, &b); err != nil {
		return Bounds{}, errors.Wrapf(ErrInvalidTransform, "could not decode bounds: %v", err)
	}

	if err := b.Validate(); err != nil {
		return Bounds{}, err
	}

	return b, nil
}

func truncate(v float64) int {
	return int(math.Trunc(v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
