package codec

import (
	"bytes"
	"github.com/denismitr/mockup/internal/media"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
)

const DefaultQuality = 90

var formats = map[string]media.Mime{
	"jpeg": media.MimeJPEG,
	"png":  media.MimePNG,
	"gif":  media.MimeGIF,
	"webp": media.MimeWEBP,
}

type options struct {
	quality int
	dpi     int
}

type Option func(*options)

// WithQuality sets the JPEG quality, 1-100.
func WithQuality(q int) Option {
	return func(o *options) {
		o.quality = q
	}
}

// WithDPI makes PNG output carry a physical resolution.
func WithDPI(dpi int) Option {
	return func(o *options) {
		o.dpi = dpi
	}
}

// Sniff detects the mime type from the content, ignoring any file name.
func Sniff(raw []byte) (media.Mime, error) {
	detected := mimetype.Detect(raw)

	m := media.Mime(detected.String())
	if !m.Supported() {
		return "", errors.Wrapf(media.ErrUnsupportedMime, "content detected as %s", detected.String())
	}

	return m, nil
}

// Decode fully decodes an encoded image of at most DefaultMaxPixels. The
// returned mime is the format the decoder recognised.
func Decode(raw []byte) (image.Image, media.Mime, error) {
	return DecodeWithin(raw, media.DefaultMaxPixels)
}

// DecodeWithin refuses an image whose header claims more than maxPixels
// before allocating anything for it. Zero or less means no limit.
func DecodeWithin(raw []byte, maxPixels int64) (image.Image, media.Mime, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, "", errors.Wrapf(media.ErrUnsupportedFormat, "could not read image header: %v", err)
	}

	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, "", errors.Wrapf(
			media.ErrTooLarge,
			"image claims %dx%d pixels, at most %d allowed", cfg.Width, cfg.Height, maxPixels,
		)
	}

	m, ok := formats[format]
	if !ok {
		return nil, "", errors.Wrapf(media.ErrUnsupportedFormat, "format %s", format)
	}

	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", errors.Wrapf(media.ErrCorruptImage, "could not decode %s: %v", format, err)
	}

	return img, m, nil
}

func Dimensions(img image.Image) (int, int) {
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

// StorageFormat is the format an image of the given mime is persisted in.
// There is no WebP encoder, so WebP is kept as PNG.
func StorageFormat(m media.Mime) media.Mime {
	if m == media.MimeWEBP {
		return media.MimePNG
	}

	return m
}

// Encode writes img in the requested format. Metadata is never carried
// over from the source.
func Encode(w io.Writer, img image.Image, m media.Mime, opts ...Option) error {
	o := options{quality: DefaultQuality}
	for _, opt := range opts {
		opt(&o)
	}

	switch m {
	case media.MimeJPEG:
		if err := imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(o.quality)); err != nil {
			return errors.Wrapf(media.ErrEncodeFailed, "could not encode jpeg: %v", err)
		}
	case media.MimePNG:
		return encodePNG(w, img, o.dpi)
	case media.MimeGIF:
		if err := imaging.Encode(w, img, imaging.GIF); err != nil {
			return errors.Wrapf(media.ErrEncodeFailed, "could not encode gif: %v", err)
		}
	default:
		return errors.Wrapf(media.ErrEncodeFailed, "no encoder for %s", m)
	}

	return nil
}

// EncodeBytes is Encode into memory.
func EncodeBytes(img image.Image, m media.Mime, opts ...Option) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Encode(buf, img, m, opts...); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encodePNG(w io.Writer, img image.Image, dpi int) error {
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return errors.Wrapf(media.ErrEncodeFailed, "could not encode png: %v", err)
	}

	data := buf.Bytes()
	if dpi > 0 {
		var err error
		if data, err = withDPI(data, dpi); err != nil {
			return err
		}
	}

	if _, err := w.Write(data); err != nil {
		return errors.Wrapf(media.ErrIOFailure, "could not write png: %v", err)
	}

	return nil
}
