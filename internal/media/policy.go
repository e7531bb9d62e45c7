package media

import (
	"github.com/pkg/errors"
	"math"
	"strconv"
	"strings"
)

// AspectTolerance is the maximum allowed distance between the upload
// width/height ratio and the configured ratio.
const AspectTolerance = 0.01

const (
	DefaultMaxBytes  = 15 * 1024 * 1024
	DefaultOutputDPI = 300

	// DefaultMaxPixels caps decoded uploads at 100 megapixels.
	DefaultMaxPixels = 100_000_000
)

var DefaultAllowedMimes = []Mime{MimeJPEG, MimePNG, MimeWEBP}

var ErrBadPolicy = errors.New("bad variation policy")

type Resolution struct {
	Width  int `json:"w"`
	Height int `json:"h"`
}

// Policy is the per variation upload and render configuration.
type Policy struct {
	AllowedMimes  []Mime
	MaxBytes      int64
	MaxPixels     int64
	MinResolution *Resolution

	// AspectRatio is either "W:H" or a decimal like "1.5"
	AspectRatio string

	Bounds    Bounds
	OutputDPI int
}

func (p Policy) Allows(m Mime) bool {
	for _, allowed := range p.AllowedMimes {
		if allowed == m {
			return true
		}
	}

	return false
}

// ExpectedAspect returns the configured ratio and whether one is set.
func (p Policy) ExpectedAspect() (float64, bool, error) {
	if strings.TrimSpace(p.AspectRatio) == "" {
		return 0, false, nil
	}

	ratio, err := ParseAspectRatio(p.AspectRatio)
	if err != nil {
		return 0, false, err
	}

	return ratio, true, nil
}

// ParseResolution parses "1000x800" into a Resolution.
func ParseResolution(s string) (*Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, "x")
	if len(parts) != 2 {
		return nil, errors.Wrapf(ErrBadPolicy, "resolution %q must look like WxH", s)
	}

	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || w < 0 {
		return nil, errors.Wrapf(ErrBadPolicy, "resolution %q has an invalid width", s)
	}

	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || h < 0 {
		return nil, errors.Wrapf(ErrBadPolicy, "resolution %q has an invalid height", s)
	}

	return &Resolution{Width: w, Height: h}, nil
}

// ParseAspectRatio accepts "W:H" or a plain decimal.
func ParseAspectRatio(s string) (float64, error) {
	s = strings.TrimSpace(s)

	var ratio float64
	if strings.Contains(s, ":") {
		parts := strings.SplitN(s, ":", 2)
		w, errW := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		h, errH := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if errW != nil || errH != nil || h == 0 {
			return 0, errors.Wrapf(ErrBadPolicy, "aspect ratio %q must look like W:H", s)
		}
		ratio = w / h
	} else {
		r, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrBadPolicy, "aspect ratio %q is not a number", s)
		}
		ratio = r
	}

	if ratio <= 0 || math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		return 0, errors.Wrapf(ErrBadPolicy, "aspect ratio %q must be positive", s)
	}

	return ratio, nil
}
