package config

import (
	"github.com/denismitr/mockup/internal/media"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"strings"
	"time"
)

var (
	ErrConfig           = errors.New("bad configuration")
	ErrUnknownVariation = errors.New("unknown variation")
)

// PolicyProvider resolves the upload and render policy of a product
// variation.
type PolicyProvider interface {
	Policy(variationID string) (media.Policy, error)
}

type Config struct {
	Storage    Storage              `mapstructure:"storage"`
	Render     Render               `mapstructure:"render"`
	Thumbnail  Thumbnail            `mapstructure:"thumbnail"`
	Access     Access               `mapstructure:"access"`
	Upload     Upload               `mapstructure:"upload"`
	Variations map[string]Variation `mapstructure:"variations" validate:"dive"`
}

type Storage struct {
	Root string `mapstructure:"root" validate:"required"`
}

type Render struct {
	Backend string `mapstructure:"backend" validate:"oneof=auto vector pixel"`
	DPI     int    `mapstructure:"dpi" validate:"gt=0"`
}

type Thumbnail struct {
	MaxEdge int `mapstructure:"max_edge" validate:"gt=0"`
	Quality int `mapstructure:"quality" validate:"min=1,max=100"`
}

type Access struct {
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
}

// Upload holds the limits shared by every variation.
type Upload struct {
	MaxFileSize  int64    `mapstructure:"max_file_size" validate:"gt=0"`
	MaxPixels    int64    `mapstructure:"max_pixels" validate:"gt=0"`
	AllowedMimes []string `mapstructure:"allowed_mimes" validate:"required,dive,required"`
}

// Variation is the mockup setup of one product variation.
type Variation struct {
	Base string `mapstructure:"base" validate:"required"`
	Mask string `mapstructure:"mask"`

	X        float64 `mapstructure:"x"`
	Y        float64 `mapstructure:"y"`
	Width    float64 `mapstructure:"width" validate:"gt=0"`
	Height   float64 `mapstructure:"height" validate:"gt=0"`
	Rotation float64 `mapstructure:"rotation"`
	DPI      int     `mapstructure:"dpi" validate:"gte=0"`

	MinResolution string `mapstructure:"min_resolution"` // WxH
	AspectRatio   string `mapstructure:"aspect_ratio"`   // W:H or decimal
}

func (v Variation) Bounds() media.Bounds {
	return media.Bounds{X: v.X, Y: v.Y, W: v.Width, H: v.Height, Rotation: v.Rotation}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage.root", "./var/assets")
	v.SetDefault("render.backend", "auto")
	v.SetDefault("render.dpi", media.DefaultOutputDPI)
	v.SetDefault("thumbnail.max_edge", 800)
	v.SetDefault("thumbnail.quality", 90)
	v.SetDefault("access.ttl", time.Hour)
	v.SetDefault("upload.max_file_size", media.DefaultMaxBytes)
	v.SetDefault("upload.max_pixels", media.DefaultMaxPixels)

	mimes := make([]string, 0, len(media.DefaultAllowedMimes))
	for _, m := range media.DefaultAllowedMimes {
		mimes = append(mimes, m.String())
	}
	v.SetDefault("upload.allowed_mimes", mimes)
}

// Load reads a YAML config file. Every key can be overridden from the
// environment with the MOCKUP_ prefix, e.g. MOCKUP_STORAGE_ROOT. An empty
// path loads the defaults only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("mockup")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(ErrConfig, "could not read %s: %v", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(ErrConfig, "could not unmarshal config: %v", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (cfg *Config) validate() error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrapf(ErrConfig, "%v", err)
	}

	for _, m := range cfg.Upload.AllowedMimes {
		if !media.Mime(m).Supported() {
			return errors.Wrapf(ErrConfig, "upload.allowed_mimes: %s is not supported", m)
		}
	}

	for id := range cfg.Variations {
		if _, err := cfg.Policy(id); err != nil {
			return errors.Wrapf(ErrConfig, "variation %s: %v", id, err)
		}
	}

	return nil
}

// Variation returns the mockup setup of a variation.
func (cfg *Config) Variation(id string) (Variation, error) {
	v, ok := cfg.Variations[id]
	if !ok {
		return Variation{}, errors.Wrapf(ErrUnknownVariation, "%s", id)
	}

	return v, nil
}

func (cfg *Config) Policy(variationID string) (media.Policy, error) {
	v, err := cfg.Variation(variationID)
	if err != nil {
		return media.Policy{}, err
	}

	minRes, err := media.ParseResolution(v.MinResolution)
	if err != nil {
		return media.Policy{}, err
	}

	if v.AspectRatio != "" {
		if _, err := media.ParseAspectRatio(v.AspectRatio); err != nil {
			return media.Policy{}, err
		}
	}

	bounds := v.Bounds()
	if err := bounds.Validate(); err != nil {
		return media.Policy{}, err
	}

	dpi := v.DPI
	if dpi <= 0 {
		dpi = cfg.Render.DPI
	}

	mimes := make([]media.Mime, 0, len(cfg.Upload.AllowedMimes))
	for _, m := range cfg.Upload.AllowedMimes {
		mimes = append(mimes, media.Mime(m))
	}

	return media.Policy{
		AllowedMimes:  mimes,
		MaxBytes:      cfg.Upload.MaxFileSize,
		MaxPixels:     cfg.Upload.MaxPixels,
		MinResolution: minRes,
		AspectRatio:   v.AspectRatio,
		Bounds:        bounds,
		OutputDPI:     dpi,
	}, nil
}
