package codec

import (
	"bytes"
	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	"image"
)

// Exif Orientation tag values we act on
// http://sylvana.net/jpegcrop/exif_orientation.html
const (
	topLeftSide     = 1
	bottomRightSide = 3
	rightSideTop    = 6
	leftSideBottom  = 8
)

// Orientation reads the EXIF orientation tag, 1 when there is none.
func Orientation(raw []byte) int {
	x, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return topLeftSide
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return topLeftSide
	}

	orient, err := tag.Int(0)
	if err != nil {
		return topLeftSide
	}

	return orient
}

// AutoOrient rotates img upright according to the EXIF orientation found in
// raw. Mirrored orientations are left as they are.
func AutoOrient(img image.Image, raw []byte) image.Image {
	switch Orientation(raw) {
	case bottomRightSide:
		return imaging.Rotate180(img)
	case rightSideTop:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case leftSideBottom:
		return imaging.Rotate90(img)
	}

	return img
}
