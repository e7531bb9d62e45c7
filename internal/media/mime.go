package media

import (
	"github.com/pkg/errors"
	"path/filepath"
	"strings"
)

var ErrInvalidExtension = errors.New("invalid extension")

type Mime string
type Extension string

const (
	MimeJPEG Mime = "image/jpeg"
	MimePNG  Mime = "image/png"
	MimeWEBP Mime = "image/webp"
	MimeGIF  Mime = "image/gif"
)

const (
	JPEG Extension = "jpg"
	PNG  Extension = "png"
	WEBP Extension = "webp"
	GIF  Extension = "gif"
)

var extensions = map[string]Extension{
	"png":  PNG,
	"jpg":  JPEG,
	"jpeg": JPEG,
	"webp": WEBP,
	"gif":  GIF,
}

var mimes = map[Extension]Mime{
	PNG:  MimePNG,
	JPEG: MimeJPEG,
	WEBP: MimeWEBP,
	GIF:  MimeGIF,
}

func (m Mime) String() string {
	return string(m)
}

// Extension returns the canonical file extension for the mime type.
func (m Mime) Extension() (Extension, error) {
	for ext, mime := range mimes {
		if mime == m {
			return ext, nil
		}
	}

	return "", errors.Wrapf(ErrInvalidExtension, "no extension for mime %s", m)
}

func (m Mime) Supported() bool {
	_, err := m.Extension()
	return err == nil
}

func GuessMimeFromExtension(ext string) (Mime, error) {
	e, err := NormalizeExtension(ext)
	if err != nil {
		return "", err
	}

	return mimes[e], nil
}

// GuessMimeFromFilename looks only at the extension of the name, never
// at the content.
func GuessMimeFromFilename(filename string) (Mime, error) {
	return GuessMimeFromExtension(strings.TrimPrefix(filepath.Ext(filename), "."))
}

func NormalizeExtension(ext string) (Extension, error) {
	if e, ok := extensions[strings.ToLower(ext)]; ok {
		return e, nil
	}

	return "", errors.Wrapf(ErrInvalidExtension, "extension unsupported: %s", ext)
}
