package validator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"github.com/denismitr/mockup/internal/media"
	"github.com/denismitr/mockup/internal/media/codec"
	"github.com/denismitr/mockup/internal/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"math"
	"path/filepath"
)

// aspect ratios are compared with a little slack for float rounding, so
// a deviation of exactly AspectTolerance is still accepted
const aspectEpsilon = 1e-9

type Config struct {
	// JPEGQuality of re-encoded originals
	JPEGQuality int

	// GenerateID defaults to a random UUID
	GenerateID func() media.ID
}

// Validator accepts or rejects customer uploads and stores accepted ones
// upright and without metadata.
type Validator struct {
	cfg     Config
	storage storage.Storage
	logger  *logrus.Logger
}

func New(cfg Config, s storage.Storage, logger *logrus.Logger) *Validator {
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = codec.DefaultQuality
	}

	if cfg.GenerateID == nil {
		cfg.GenerateID = func() media.ID {
			return media.ID(uuid.NewString())
		}
	}

	return &Validator{
		cfg:     cfg,
		storage: s,
		logger:  logger,
	}
}

// Validate runs the upload checks in order and stops at the first failure.
// The filename is only what the client claims; the content decides.
func (v *Validator) Validate(ctx context.Context, raw []byte, filename string, p media.Policy) (*media.ImageAsset, error) {
	if p.MaxBytes > 0 && int64(len(raw)) > p.MaxBytes {
		return nil, errors.Wrapf(media.ErrTooLarge, "%d bytes, at most %d allowed", len(raw), p.MaxBytes)
	}

	mime, err := v.checkMime(raw, filename, p)
	if err != nil {
		return nil, err
	}

	maxPixels := p.MaxPixels
	if maxPixels <= 0 {
		maxPixels = media.DefaultMaxPixels
	}

	img, _, err := codec.DecodeWithin(raw, maxPixels)
	if err != nil {
		if errors.Is(err, media.ErrTooLarge) {
			return nil, err
		}

		return nil, errors.Wrapf(media.ErrCorruptImage, "%s: %v", filename, err)
	}

	img = codec.AutoOrient(img, raw)
	w, h := codec.Dimensions(img)

	if p.MinResolution != nil && (w < p.MinResolution.Width || h < p.MinResolution.Height) {
		return nil, errors.Wrapf(
			media.ErrTooSmall,
			"image is %dx%d, at least %dx%d required",
			w, h, p.MinResolution.Width, p.MinResolution.Height,
		)
	}

	if err := checkAspect(w, h, p); err != nil {
		return nil, err
	}

	target := codec.StorageFormat(mime)
	data, err := codec.EncodeBytes(img, target, codec.WithQuality(v.cfg.JPEGQuality))
	if err != nil {
		return nil, err
	}

	ext, err := target.Extension()
	if err != nil {
		return nil, errors.Wrapf(media.ErrUnsupportedMime, "%v", err)
	}

	id := v.cfg.GenerateID()
	item, err := v.storage.Put(ctx, id.String(), media.OriginalFilename(ext), bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(media.ErrIOFailure, "could not persist original of %s: %v", id, err)
	}

	sum := sha256.Sum256(data)

	asset := &media.ImageAsset{
		ID:          id,
		Width:       w,
		Height:      h,
		Mime:        target,
		ContentHash: hex.EncodeToString(sum[:]),
		StoragePath: item.Path,
	}

	v.logger.WithFields(logrus.Fields{
		"asset":  asset.ID,
		"mime":   asset.Mime,
		"width":  asset.Width,
		"height": asset.Height,
		"bytes":  item.Size,
	}).Debug("upload accepted")

	return asset, nil
}

func (v *Validator) checkMime(raw []byte, filename string, p media.Policy) (media.Mime, error) {
	mime, err := codec.Sniff(raw)
	if err != nil {
		return "", err
	}

	if !p.Allows(mime) {
		return "", errors.Wrapf(media.ErrUnsupportedMime, "%s is not allowed", mime)
	}

	if filepath.Ext(filename) == "" {
		return mime, nil
	}

	declared, err := media.GuessMimeFromFilename(filename)
	if err != nil {
		return "", errors.Wrapf(media.ErrUnsupportedMime, "%s: %v", filename, err)
	}

	if declared != mime {
		v.logger.WithFields(logrus.Fields{
			"filename": filename,
			"declared": declared,
			"content":  mime,
		}).Warn("declared extension does not match content")

		return "", errors.Wrapf(media.ErrUnsupportedMime, "%s is declared as %s but contains %s", filename, declared, mime)
	}

	return mime, nil
}

func checkAspect(w, h int, p media.Policy) error {
	expected, ok, err := p.ExpectedAspect()
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	actual := float64(w) / float64(h)
	if math.Abs(actual-expected) > media.AspectTolerance+aspectEpsilon {
		return errors.Wrapf(
			media.ErrBadAspectRatio,
			"image ratio %.4f differs from %.4f by more than %.2f",
			actual, expected, media.AspectTolerance,
		)
	}

	return nil
}
