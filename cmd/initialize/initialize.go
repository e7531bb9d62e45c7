package initialize

import (
	"github.com/denismitr/goenv"
	"github.com/denismitr/mockup/internal/access"
	"github.com/denismitr/mockup/internal/config"
	"github.com/denismitr/mockup/internal/media/manipulator"
	"github.com/denismitr/mockup/internal/storage/fsstorage"
	"github.com/denismitr/mockup/internal/validator"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"os"
	"time"
)

// DotEnv loads .env files when they exist. Variables already set in the
// environment win.
func DotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			continue
		}

		if err := godotenv.Load(f); err != nil {
			panic("Error loading " + f + " file: " + err.Error())
		}
	}
}

func Logger() *logrus.Logger {
	log := logrus.New()
	log.Out = os.Stderr
	log.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.StampMilli,
		FullTimestamp:   true,
	}

	if goenv.IsTruthy("MOCKUP_DEBUG") {
		log.SetLevel(logrus.DebugLevel)
	}

	return log
}

// ConfigFromEnv loads the file named by MOCKUP_CONFIG, or defaults only.
func ConfigFromEnv() *config.Config {
	cfg, err := config.Load(os.Getenv("MOCKUP_CONFIG"))
	if err != nil {
		panic(err)
	}

	return cfg
}

func LocalStorage(cfg *config.Config) *fsstorage.LocalStorage {
	return fsstorage.New(fsstorage.Config{Root: cfg.Storage.Root})
}

func Validator(s *fsstorage.LocalStorage, log *logrus.Logger) *validator.Validator {
	return validator.New(validator.Config{}, s, log)
}

func Compositor(cfg *config.Config, s *fsstorage.LocalStorage, log *logrus.Logger) *manipulator.Compositor {
	c, err := manipulator.New(manipulator.Config{
		Backend:      cfg.Render.Backend,
		ThumbMaxEdge: cfg.Thumbnail.MaxEdge,
		ThumbQuality: cfg.Thumbnail.Quality,
		DefaultDPI:   cfg.Render.DPI,
	}, s, log)
	if err != nil {
		panic(err)
	}

	return c
}

// SignerFromEnv needs MOCKUP_SECRET.
func SignerFromEnv() *access.Signer {
	signer, err := access.New([]byte(goenv.MustString("MOCKUP_SECRET")), time.Now)
	if err != nil {
		panic(err)
	}

	return signer
}
