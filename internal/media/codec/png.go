package codec

import (
	"bytes"
	"encoding/binary"
	"github.com/denismitr/mockup/internal/media"
	"github.com/pkg/errors"
	"hash/crc32"
	"io"
	"math"
)

const (
	pngSignature = "\x89PNG\r\n\x1a\n"
	inchInMeters = 0.0254

	// signature, then the IHDR chunk: length, type, 13 bytes of data, crc
	ihdrEnd = 8 + 4 + 4 + 13 + 4
)

// withDPI inserts a pHYs chunk right after IHDR.
func withDPI(data []byte, dpi int) ([]byte, error) {
	if len(data) < ihdrEnd || string(data[:8]) != pngSignature || string(data[12:16]) != "IHDR" {
		return nil, errors.Wrap(media.ErrEncodeFailed, "not a png stream")
	}

	ppm := uint32(math.Round(float64(dpi) / inchInMeters))

	chunk := make([]byte, 0, 21)
	chunk = binary.BigEndian.AppendUint32(chunk, 9)
	chunk = append(chunk, "pHYs"...)
	chunk = binary.BigEndian.AppendUint32(chunk, ppm)
	chunk = binary.BigEndian.AppendUint32(chunk, ppm)
	chunk = append(chunk, 1) // unit: meter
	chunk = binary.BigEndian.AppendUint32(chunk, crc32.ChecksumIEEE(chunk[4:]))

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:ihdrEnd]...)
	out = append(out, chunk...)
	out = append(out, data[ihdrEnd:]...)

	return out, nil
}

// DPI reads the horizontal resolution from the pHYs chunk of a PNG.
func DPI(data []byte) (int, bool) {
	if len(data) < 8 || string(data[:8]) != pngSignature {
		return 0, false
	}

	r := bytes.NewReader(data[8:])
	for {
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return 0, false
		}

		typ := make([]byte, 4)
		if _, err := io.ReadFull(r, typ); err != nil {
			return 0, false
		}

		// body and crc must fit in what is left
		if int64(length)+4 > int64(r.Len()) {
			return 0, false
		}

		body := make([]byte, int(length)+4)
		if _, err := io.ReadFull(r, body); err != nil {
			return 0, false
		}

		switch string(typ) {
		case "pHYs":
			if length != 9 || body[8] != 1 {
				return 0, false
			}
			ppm := binary.BigEndian.Uint32(body[:4])
			return int(math.Round(float64(ppm) * inchInMeters)), true
		case "IDAT", "IEND":
			return 0, false
		}
	}
}
