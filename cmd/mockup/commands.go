package main

import (
	"bytes"
	"context"
	"github.com/denismitr/mockup/internal/access"
	"github.com/denismitr/mockup/internal/config"
	"github.com/denismitr/mockup/internal/media"
	"github.com/denismitr/mockup/internal/media/codec"
	"github.com/denismitr/mockup/internal/media/manipulator"
	"github.com/denismitr/mockup/internal/storage/fsstorage"
	"github.com/denismitr/mockup/internal/validator"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrUsage        = errors.New("bad usage")
	ErrInvalidToken = errors.New("signed url is not valid")
)

type app struct {
	cfg        *config.Config
	log        *logrus.Logger
	storage    *fsstorage.LocalStorage
	validator  *validator.Validator
	compositor *manipulator.Compositor
	signer     *access.Signer
	out        io.Writer
}

type renderOutput struct {
	*manipulator.Result
	CompositeURL string `json:"compositeUrl,omitempty"`
	ThumbURL     string `json:"thumbUrl,omitempty"`
}

func (a *app) validate(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	variation := fs.String("variation", "", "variation id")
	file := fs.String("file", "", "uploaded file")
	name := fs.String("name", "", "file name declared by the client, defaults to the file base name")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}

	if *variation == "" || *file == "" {
		return errors.Wrap(ErrUsage, "--variation and --file are required")
	}

	policy, err := a.cfg.Policy(*variation)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		return errors.Wrapf(media.ErrIOFailure, "could not read %s: %v", *file, err)
	}

	declared := *name
	if declared == "" {
		declared = filepath.Base(*file)
	}

	asset, err := a.validator.Validate(ctx, raw, declared, policy)
	if err != nil {
		return err
	}

	return a.print(asset)
}

func (a *app) render(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("render", pflag.ContinueOnError)
	variationID := fs.String("variation", "", "variation id")
	assetID := fs.String("asset", "", "asset id returned by validate")
	transform := fs.String("transform", "", "transform json")
	transformFile := fs.String("transform-file", "", "file with the transform json")
	boundsOverride := fs.String("bounds", "", "bounds json overriding the variation placement")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}

	if *variationID == "" || *assetID == "" || (*transform == "" && *transformFile == "") {
		return errors.Wrap(ErrUsage, "--variation, --asset and --transform or --transform-file are required")
	}

	data := []byte(*transform)
	if *transformFile != "" {
		var err error
		if data, err = os.ReadFile(*transformFile); err != nil {
			return errors.Wrapf(media.ErrIOFailure, "could not read %s: %v", *transformFile, err)
		}
	}

	t, err := media.ParseTransform(data)
	if err != nil {
		return err
	}

	variation, err := a.cfg.Variation(*variationID)
	if err != nil {
		return err
	}

	policy, err := a.cfg.Policy(*variationID)
	if err != nil {
		return err
	}

	bounds := policy.Bounds
	if *boundsOverride != "" {
		if bounds, err = media.ParseBounds([]byte(*boundsOverride)); err != nil {
			return err
		}
	}

	original, err := a.findOriginal(media.ID(*assetID))
	if err != nil {
		return err
	}

	res, err := a.compositor.Render(ctx, media.RenderJob{
		AssetID:       media.ID(*assetID),
		BasePath:      variation.Base,
		MaskPath:      variation.Mask,
		UserImagePath: original,
		Bounds:        bounds,
		Transform:     t,
		OutputDPI:     policy.OutputDPI,
	})
	if err != nil {
		return err
	}

	out := renderOutput{Result: res}
	if a.cfg.Access.BaseURL != "" {
		if out.CompositeURL, err = a.signedURL(media.ID(*assetID), media.CompositeFilename, a.cfg.Access.TTL); err != nil {
			return err
		}

		if out.ThumbURL, err = a.signedURL(media.ID(*assetID), media.ThumbFilename, a.cfg.Access.TTL); err != nil {
			return err
		}
	}

	return a.print(out)
}

func (a *app) sign(args []string) error {
	fs := pflag.NewFlagSet("sign", pflag.ContinueOnError)
	assetID := fs.String("asset", "", "asset id")
	file := fs.String("file", media.CompositeFilename, "file inside the asset directory")
	ttl := fs.Duration("ttl", a.cfg.Access.TTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}

	if *assetID == "" {
		return errors.Wrap(ErrUsage, "--asset is required")
	}

	if a.cfg.Access.BaseURL == "" {
		tok := a.signer.Issue(media.ID(*assetID), *file, *ttl)
		return a.print(tok)
	}

	signed, err := a.signedURL(media.ID(*assetID), *file, *ttl)
	if err != nil {
		return err
	}

	return a.print(map[string]string{"url": signed})
}

type verifyOutput struct {
	Asset media.ID `json:"asset"`
	File  string   `json:"file"`
	Valid bool     `json:"valid"`
	Saved string   `json:"saved,omitempty"`
	Bytes int      `json:"bytes,omitempty"`
	DPI   int      `json:"dpi,omitempty"`
}

// verify checks a signed url and, with --out, serves the file it points to.
func (a *app) verify(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	rawURL := fs.String("url", "", "signed url")
	dst := fs.String("out", "", "write the signed file here when the token is valid")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}

	tok, err := parseSignedURL(*rawURL)
	if err != nil {
		return err
	}

	out := verifyOutput{
		Asset: tok.AssetID,
		File:  tok.FileName,
		Valid: a.signer.VerifyToken(tok),
	}

	if out.Valid && *dst != "" {
		buf := &bytes.Buffer{}
		if err := a.storage.Download(ctx, buf, tok.AssetID.String(), tok.FileName); err != nil {
			return err
		}

		if err := os.WriteFile(*dst, buf.Bytes(), 0o644); err != nil {
			return errors.Wrapf(media.ErrIOFailure, "could not write %s: %v", *dst, err)
		}

		out.Saved = *dst
		out.Bytes = buf.Len()
		if dpi, ok := codec.DPI(buf.Bytes()); ok {
			out.DPI = dpi
		}
	}

	if err := a.print(out); err != nil {
		return err
	}

	if !out.Valid {
		return ErrInvalidToken
	}

	return nil
}

func (a *app) purge(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("purge", pflag.ContinueOnError)
	assetID := fs.String("asset", "", "asset id")
	file := fs.String("file", "", "remove only this file of the asset")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(ErrUsage, err.Error())
	}

	if *assetID == "" {
		return errors.Wrap(ErrUsage, "--asset is required")
	}

	lg := a.log.WithField("asset", *assetID)

	if *file != "" {
		if err := a.storage.Remove(ctx, *assetID, *file); err != nil {
			return err
		}

		lg.WithField("file", *file).Info("asset file removed")

		return a.print(map[string]interface{}{"removed": *file})
	}

	if err := a.storage.Purge(ctx, *assetID); err != nil {
		return err
	}

	lg.Info("asset purged")

	return a.print(map[string]interface{}{"purged": true})
}

func (a *app) findOriginal(id media.ID) (string, error) {
	matches, err := filepath.Glob(a.storage.Path(id.String(), media.OriginalBasename+".*"))
	if err != nil || len(matches) == 0 {
		return "", errors.Wrapf(media.ErrDecodeFailed, "no original stored for asset %s", id)
	}

	return matches[0], nil
}

func (a *app) signedURL(id media.ID, file string, ttl time.Duration) (string, error) {
	return a.signer.SignedURL(a.cfg.Access.BaseURL, a.signer.Issue(id, file, ttl))
}

func (a *app) print(v interface{}) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// parseSignedURL splits .../<asset>/<file>?token=..&expires=..
func parseSignedURL(raw string) (media.AccessToken, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return media.AccessToken{}, errors.Wrapf(ErrUsage, "bad url: %v", err)
	}

	file := path.Base(u.Path)
	assetID := path.Base(path.Dir(u.Path))
	if file == "/" || file == "." || assetID == "/" || assetID == "." {
		return media.AccessToken{}, errors.Wrapf(ErrUsage, "url %s has no asset and file", raw)
	}

	mac, expiresAt, err := access.ParseQuery(u.Query())
	if err != nil {
		return media.AccessToken{}, err
	}

	return media.AccessToken{
		AssetID:   media.ID(assetID),
		FileName:  file,
		ExpiresAt: expiresAt,
		MAC:       mac,
	}, nil
}
