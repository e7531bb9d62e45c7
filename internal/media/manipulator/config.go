package manipulator

import "github.com/denismitr/mockup/internal/media"

const (
	DefaultThumbMaxEdge = 800
	DefaultThumbQuality = 90
)

type Config struct {
	// Backend is auto, vector or pixel
	Backend string

	ThumbMaxEdge int
	ThumbQuality int

	// DefaultDPI is used when a job carries no output DPI
	DefaultDPI int
}

func (cfg *Config) withDefaults() {
	if cfg.ThumbMaxEdge == 0 {
		cfg.ThumbMaxEdge = DefaultThumbMaxEdge
	}

	if cfg.ThumbQuality == 0 {
		cfg.ThumbQuality = DefaultThumbQuality
	}

	if cfg.DefaultDPI == 0 {
		cfg.DefaultDPI = media.DefaultOutputDPI
	}
}
