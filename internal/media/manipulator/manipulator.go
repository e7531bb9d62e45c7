package manipulator

import (
	"bytes"
	"context"
	"github.com/denismitr/mockup/internal/media"
	"github.com/denismitr/mockup/internal/media/codec"
	"github.com/denismitr/mockup/internal/storage"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"image"
	"os"
)

// Result of a successful render. Both files are published.
type Result struct {
	CompositePath string `json:"compositePath"`
	ThumbPath     string `json:"thumbPath"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Backend       string `json:"backend"`
}

// Compositor fits a user photo into a mockup and publishes the composite
// and its thumbnail into the asset directory.
type Compositor struct {
	cfg              *Config
	backend          Backend
	storage          storage.Storage
	logger           *logrus.Logger
	imageTransformer *imageTransformer
}

func New(cfg Config, s storage.Storage, logger *logrus.Logger) (*Compositor, error) {
	backend, err := SelectBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}

	return NewWithBackend(cfg, backend, s, logger), nil
}

func NewWithBackend(cfg Config, backend Backend, s storage.Storage, logger *logrus.Logger) *Compositor {
	cfg.withDefaults()

	return &Compositor{
		cfg:              &cfg,
		backend:          backend,
		storage:          s,
		logger:           logger,
		imageTransformer: newImageTransformer(&cfg, backend, logger),
	}
}

func (c *Compositor) Backend() string {
	return c.backend.Name()
}

// Render produces composite.png and thumb.jpg for the job. Nothing is
// published unless both were encoded and staged without error, and a
// failed render never replaces a published composite. Rendering the same
// job again yields the same files.
func (c *Compositor) Render(ctx context.Context, job media.RenderJob) (*Result, error) {
	lg := c.logger.WithFields(logrus.Fields{
		"asset":   job.AssetID,
		"backend": c.backend.Name(),
	})

	res, err := c.render(ctx, job, lg)
	if err != nil {
		lg.WithError(err).Error("render failed")
		return nil, err
	}

	lg.WithFields(logrus.Fields{
		"composite": res.CompositePath,
		"thumb":     res.ThumbPath,
	}).Debug("render published")

	return res, nil
}

func (c *Compositor) render(ctx context.Context, job media.RenderJob, lg *logrus.Entry) (*Result, error) {
	if job.AssetID.None() {
		return nil, &RenderError{Op: "job", Err: errors.Wrap(media.ErrInvalidTransform, "asset id is missing")}
	}

	if err := job.Bounds.Validate(); err != nil {
		return nil, &RenderError{Op: "bounds", Err: err}
	}

	base, _, err := load(job.BasePath)
	if err != nil {
		return nil, &RenderError{Op: "load base", Err: err}
	}

	user, raw, err := load(job.UserImagePath)
	if err != nil {
		return nil, &RenderError{Op: "load photo", Err: err}
	}
	user = codec.AutoOrient(user, raw)

	placed, at, err := c.imageTransformer.place(user, job.Bounds, job.Transform)
	if err != nil {
		return nil, &RenderError{Op: "transform", Err: err}
	}

	bw, bh := codec.Dimensions(base)

	var mask *image.Alpha
	if job.HasMask() {
		maskImg, _, err := load(job.MaskPath)
		if err != nil {
			return nil, &RenderError{Op: "load mask", Err: err}
		}

		if mw, mh := codec.Dimensions(maskImg); mw != bw || mh != bh {
			lg.WithFields(logrus.Fields{
				"mask": image.Pt(mw, mh),
				"base": image.Pt(bw, bh),
			}).WithError(media.ErrMaskSizeMismatch).Warn("mask resized to base")
		}

		mask = maskAlpha(maskImg, bw, bh)
	}

	composite, err := c.backend.Compose(imaging.Clone(base), placed, at, mask)
	if err != nil {
		return nil, &RenderError{Op: "compose", Err: err}
	}
	lg.Debug("composed")

	dpi := job.OutputDPI
	if dpi <= 0 {
		dpi = c.cfg.DefaultDPI
	}

	compositeData, err := codec.EncodeBytes(composite, media.MimePNG, codec.WithDPI(dpi))
	if err != nil {
		return nil, &RenderError{Op: "encode composite", Err: err}
	}

	thumbData, err := codec.EncodeBytes(
		c.imageTransformer.thumbnail(composite),
		media.MimeJPEG,
		codec.WithQuality(c.cfg.ThumbQuality),
	)
	if err != nil {
		return nil, &RenderError{Op: "encode thumbnail", Err: err}
	}

	compositeItem, thumbItem, err := c.publish(ctx, job.AssetID.String(), compositeData, thumbData)
	if err != nil {
		return nil, err
	}

	return &Result{
		CompositePath: compositeItem.Path,
		ThumbPath:     thumbItem.Path,
		Width:         bw,
		Height:        bh,
		Backend:       c.backend.Name(),
	}, nil
}

// publish stages both files before either becomes visible. The thumbnail
// is committed first so the composite is only replaced by a render that
// succeeds.
func (c *Compositor) publish(ctx context.Context, ns string, compositeData, thumbData []byte) (*storage.Item, *storage.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, &RenderError{Op: "publish", Err: errors.Wrapf(media.ErrIOFailure, "%v", err)}
	}

	compositeStaged, err := c.storage.Stage(ctx, ns, media.CompositeFilename, bytes.NewReader(compositeData))
	if err != nil {
		return nil, nil, &RenderError{Op: "stage composite", Err: errors.Wrapf(media.ErrMoveFailed, "%v", err)}
	}

	thumbStaged, err := c.storage.Stage(ctx, ns, media.ThumbFilename, bytes.NewReader(thumbData))
	if err != nil {
		c.discard(compositeStaged)
		return nil, nil, &RenderError{Op: "stage thumbnail", Err: errors.Wrapf(media.ErrMoveFailed, "%v", err)}
	}

	if err := ctx.Err(); err != nil {
		c.discard(compositeStaged, thumbStaged)
		return nil, nil, &RenderError{Op: "publish", Err: errors.Wrapf(media.ErrIOFailure, "%v", err)}
	}

	thumbItem, err := thumbStaged.Commit()
	if err != nil {
		c.discard(compositeStaged)
		return nil, nil, &RenderError{Op: "publish thumbnail", Err: errors.Wrapf(media.ErrMoveFailed, "%v", err)}
	}

	compositeItem, err := compositeStaged.Commit()
	if err != nil {
		return nil, nil, &RenderError{Op: "publish composite", Err: errors.Wrapf(media.ErrMoveFailed, "%v", err)}
	}

	return compositeItem, thumbItem, nil
}

func (c *Compositor) discard(staged ...storage.Staged) {
	for _, s := range staged {
		if err := s.Discard(); err != nil {
			c.logger.WithError(err).Warn("could not discard staged file")
		}
	}
}

func load(path string) (image.Image, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(media.ErrDecodeFailed, "could not read %s: %v", path, err)
	}

	img, _, err := codec.Decode(raw)
	if err != nil {
		return nil, nil, errors.Wrapf(media.ErrDecodeFailed, "%s: %v", path, err)
	}

	return img, raw, nil
}
