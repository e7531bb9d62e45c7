package manipulator

import (
	"bytes"
	"context"
	"fmt"
	"github.com/denismitr/mockup/internal/media"
	"github.com/denismitr/mockup/internal/media/codec"
	"github.com/denismitr/mockup/internal/media/mediatest"
	"github.com/denismitr/mockup/internal/storage"
	"github.com/denismitr/mockup/internal/storage/fsstorage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"
)

type fixture struct {
	dir        string
	compositor *Compositor
	job        media.RenderJob
}

func newFixture(t *testing.T, b Backend) *fixture {
	t.Helper()

	dir := t.TempDir()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	user := mediatest.Solid(200, 200, blue)
	user.SetNRGBA(0, 0, red)

	f := &fixture{
		dir: dir,
		compositor: NewWithBackend(
			Config{},
			b,
			fsstorage.New(fsstorage.Config{Root: filepath.Join(dir, "assets")}),
			logger,
		),
		job: media.RenderJob{
			AssetID:       "asset-1",
			BasePath:      writeImage(t, dir, "base.png", mediatest.Solid(300, 300, white)),
			UserImagePath: writeImage(t, dir, "user.png", user),
			Bounds:        media.Bounds{X: 10, Y: 10, W: 200, H: 200},
			Transform: media.Transform{
				Scale: 1,
				Crop:  media.Rect{W: 200, H: 200},
			},
		},
	}

	return f
}

func writeImage(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, mediatest.PNG(img), 0o644))

	return path
}

func decodeFile(t *testing.T, path string) (*image.NRGBA, []byte) {
	t.Helper()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	img, _, err := codec.Decode(raw)
	require.NoError(t, err)

	return toNRGBA(img), raw
}

func toNRGBA(img image.Image) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	for y := img.Bounds().Min.Y; y < img.Bounds().Max.Y; y++ {
		for x := img.Bounds().Min.X; x < img.Bounds().Max.X; x++ {
			out.Set(x, y, img.At(x, y))
		}
	}

	return out
}

func TestCompositor_Render(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.Name()+" places source origin at bounds origin", func(t *testing.T) {
			f := newFixture(t, b)

			res, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)

			assert.Equal(t, b.Name(), res.Backend)
			assert.Equal(t, 300, res.Width)
			assert.Equal(t, 300, res.Height)
			assert.Equal(t, filepath.Join(f.dir, "assets", "asset-1", "composite.png"), res.CompositePath)
			assert.Equal(t, filepath.Join(f.dir, "assets", "asset-1", "thumb.jpg"), res.ThumbPath)

			composite, raw := decodeFile(t, res.CompositePath)
			assert.Equal(t, image.Rect(0, 0, 300, 300), composite.Bounds())
			assert.Equal(t, red, composite.NRGBAAt(10, 10))
			assert.Equal(t, blue, composite.NRGBAAt(11, 11))
			assert.Equal(t, blue, composite.NRGBAAt(209, 209))
			assert.Equal(t, white, composite.NRGBAAt(9, 9))
			assert.Equal(t, white, composite.NRGBAAt(210, 210))

			dpi, ok := codec.DPI(raw)
			assert.True(t, ok)
			assert.Equal(t, media.DefaultOutputDPI, dpi)

			thumb, _ := decodeFile(t, res.ThumbPath)
			assert.Equal(t, image.Rect(0, 0, 300, 300), thumb.Bounds())
		})

		t.Run(b.Name()+" translation is added to the origin", func(t *testing.T) {
			f := newFixture(t, b)
			f.job.Transform.TX = 20.4
			f.job.Transform.TY = -4.6
			f.job.OutputDPI = 150

			res, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)

			composite, raw := decodeFile(t, res.CompositePath)
			assert.Equal(t, red, composite.NRGBAAt(30, 5))
			assert.Equal(t, white, composite.NRGBAAt(29, 5))

			dpi, _ := codec.DPI(raw)
			assert.Equal(t, 150, dpi)
		})

		t.Run(b.Name()+" fully transparent mask keeps the base", func(t *testing.T) {
			f := newFixture(t, b)
			base := mediatest.Noise(300, 300)
			f.job.BasePath = writeImage(t, f.dir, "noise.png", base)
			f.job.MaskPath = writeImage(t, f.dir, "mask.png", image.NewNRGBA(image.Rect(0, 0, 300, 300)))

			res, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)

			composite, _ := decodeFile(t, res.CompositePath)
			assert.Equal(t, base.Pix, composite.Pix)
		})

		t.Run(b.Name()+" mask of another size is resized", func(t *testing.T) {
			f := newFixture(t, b)

			mask := image.NewNRGBA(image.Rect(0, 0, 30, 30))
			for y := 0; y < 30; y++ {
				for x := 0; x < 15; x++ {
					mask.SetNRGBA(x, y, color.NRGBA{A: 255})
				}
			}
			f.job.MaskPath = writeImage(t, f.dir, "mask.png", mask)

			res, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)

			composite, _ := decodeFile(t, res.CompositePath)
			assert.Equal(t, image.Rect(0, 0, 300, 300), composite.Bounds())
			assert.Equal(t, red, composite.NRGBAAt(10, 10))
			assert.Equal(t, blue, composite.NRGBAAt(100, 100))
			assert.Equal(t, white, composite.NRGBAAt(200, 100))
		})

		t.Run(b.Name()+" rotated photo keeps base size", func(t *testing.T) {
			f := newFixture(t, b)
			f.job.Transform.Rotation = 33

			res, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)

			composite, _ := decodeFile(t, res.CompositePath)
			assert.Equal(t, image.Rect(0, 0, 300, 300), composite.Bounds())
		})

		t.Run(b.Name()+" re-render is idempotent", func(t *testing.T) {
			f := newFixture(t, b)
			f.job.Transform.Rotation = 12
			f.job.Transform.Scale = 0.75

			first, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)
			_, firstRaw := decodeFile(t, first.CompositePath)

			second, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)
			_, secondRaw := decodeFile(t, second.CompositePath)

			assert.Equal(t, firstRaw, secondRaw)
		})
	}
}

func TestCompositor_Thumbnail(t *testing.T) {
	f := newFixture(t, &PixelBackend{})
	f.job.BasePath = writeImage(t, f.dir, "wide.png", mediatest.Solid(1000, 500, white))

	res, err := f.compositor.Render(context.Background(), f.job)
	require.NoError(t, err)

	thumb, raw := decodeFile(t, res.ThumbPath)
	assert.Equal(t, image.Rect(0, 0, 800, 400), thumb.Bounds())

	m, err := codec.Sniff(raw)
	require.NoError(t, err)
	assert.Equal(t, media.MimeJPEG, m)
}

func TestCompositor_BackendsAgreeOnGeometry(t *testing.T) {
	// left half of the base lets the photo through
	halfMask := image.NewNRGBA(image.Rect(0, 0, 300, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 150; x++ {
			halfMask.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}

	render := func(t *testing.T, b Backend, deg, tx float64, masked bool) *image.NRGBA {
		t.Helper()

		f := newFixture(t, b)
		f.job.UserImagePath = writeImage(t, f.dir, "red.png", mediatest.Solid(200, 200, red))
		f.job.Transform.Scale = 0.5
		f.job.Transform.TX = tx
		f.job.Transform.Rotation = deg
		if masked {
			f.job.MaskPath = writeImage(t, f.dir, "half.png", halfMask)
		}

		res, err := f.compositor.Render(context.Background(), f.job)
		require.NoError(t, err)

		composite, _ := decodeFile(t, res.CompositePath)
		return composite
	}

	footprint := func(img *image.NRGBA, match func(c color.NRGBA) bool) image.Rectangle {
		var r image.Rectangle
		for y := 0; y < 300; y++ {
			for x := 0; x < 300; x++ {
				if match(img.NRGBAAt(x, y)) {
					r = r.Union(image.Rect(x, y, x+1, y+1))
				}
			}
		}

		return r
	}

	isRed := func(c color.NRGBA) bool { return c == red }
	touched := func(c color.NRGBA) bool { return c != white }

	tt := []struct {
		deg      float64
		tx       float64
		expected image.Rectangle
	}{
		{deg: 0, tx: 7, expected: image.Rect(17, 10, 117, 110)},
		{deg: 90, tx: 7, expected: image.Rect(17, 10, 117, 110)},
		{deg: 180, tx: 100, expected: image.Rect(110, 10, 210, 110)},
		{deg: 270, tx: 100, expected: image.Rect(110, 10, 210, 110)},
		{deg: 33, tx: 7},
		{deg: 135, tx: 100},
	}

	for _, tc := range tt {
		rightAngle := tc.expected != image.Rectangle{}
		rw, rh := rotatedExtent(100, 100, tc.deg)
		canvas := image.Rect(0, 0, rw, rh).Add(image.Pt(int(10+tc.tx), 10))

		t.Run(fmt.Sprintf("%v degrees", tc.deg), func(t *testing.T) {
			vector := render(t, &VectorBackend{}, tc.deg, tc.tx, false)
			pixel := render(t, &PixelBackend{}, tc.deg, tc.tx, false)

			for _, img := range []*image.NRGBA{vector, pixel} {
				assert.True(t, footprint(img, touched).In(canvas), "drawing leaks outside %v", canvas)
			}

			vr, pr := footprint(vector, isRed), footprint(pixel, isRed)
			if rightAngle {
				assert.Equal(t, tc.expected, vr)
				assert.Equal(t, vr, pr)
				return
			}

			// edge pixels are antialiased by the vector backend only
			assert.False(t, vr.Empty())
			assert.InDelta(t, pr.Min.X, vr.Min.X, 1)
			assert.InDelta(t, pr.Min.Y, vr.Min.Y, 1)
			assert.InDelta(t, pr.Max.X, vr.Max.X, 1)
			assert.InDelta(t, pr.Max.Y, vr.Max.Y, 1)
		})

		t.Run(fmt.Sprintf("%v degrees with half mask", tc.deg), func(t *testing.T) {
			gate := image.Rect(0, 0, 150, 300)

			for _, b := range backends() {
				open := render(t, b, tc.deg, tc.tx, false)
				masked := render(t, b, tc.deg, tc.tx, true)

				assert.True(t, footprint(masked, touched).In(gate), "%s draws outside the mask", b.Name())

				if rightAngle {
					assert.Equal(t, footprint(open, isRed).Intersect(gate), footprint(masked, isRed), b.Name())
				}
			}

			if rightAngle {
				vector := render(t, &VectorBackend{}, tc.deg, tc.tx, true)
				pixel := render(t, &PixelBackend{}, tc.deg, tc.tx, true)
				assert.Equal(t, footprint(vector, isRed), footprint(pixel, isRed))
			}
		})
	}
}

func TestCompositor_Failures(t *testing.T) {
	tt := []struct {
		name   string
		mutate func(f *fixture)
		err    error
	}{
		{
			name:   "zero scale",
			mutate: func(f *fixture) { f.job.Transform.Scale = 0 },
			err:    media.ErrInvalidTransform,
		},
		{
			name:   "crop outside the photo",
			mutate: func(f *fixture) { f.job.Transform.Crop = media.Rect{X: 50, Y: 0, W: 200, H: 200} },
			err:    media.ErrInvalidTransform,
		},
		{
			name: "crop offset overflowing int",
			mutate: func(f *fixture) {
				f.job.Transform.Crop = media.Rect{X: math.MaxInt - 10, Y: 0, W: 100, H: 200}
			},
			err: media.ErrInvalidTransform,
		},
		{
			name:   "empty bounds",
			mutate: func(f *fixture) { f.job.Bounds.W = 0 },
			err:    media.ErrInvalidTransform,
		},
		{
			name:   "missing base",
			mutate: func(f *fixture) { f.job.BasePath = filepath.Join(f.dir, "nope.png") },
			err:    media.ErrDecodeFailed,
		},
		{
			name: "corrupt photo",
			mutate: func(f *fixture) {
				path := filepath.Join(f.dir, "broken.png")
				require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
				f.job.UserImagePath = path
			},
			err: media.ErrDecodeFailed,
		},
		{
			name:   "missing mask",
			mutate: func(f *fixture) { f.job.MaskPath = filepath.Join(f.dir, "nope-mask.png") },
			err:    media.ErrDecodeFailed,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &PixelBackend{})

			prior, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)
			_, priorRaw := decodeFile(t, prior.CompositePath)

			tc.mutate(f)
			res, err := f.compositor.Render(context.Background(), f.job)
			require.Error(t, err)
			assert.Nil(t, res)

			var rErr *RenderError
			assert.True(t, errors.As(err, &rErr))
			assert.True(t, errors.Is(err, tc.err), "expected %v, got %v", tc.err, err)

			_, afterRaw := decodeFile(t, prior.CompositePath)
			assert.Equal(t, priorRaw, afterRaw, "failed render must not touch the published composite")
		})
	}
}

func TestCompositor_CancelledBeforePublish(t *testing.T) {
	f := newFixture(t, &PixelBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.compositor.Render(ctx, f.job)
	assert.True(t, errors.Is(err, media.ErrIOFailure))

	_, statErr := os.Stat(filepath.Join(f.dir, "assets", "asset-1", media.CompositeFilename))
	assert.True(t, os.IsNotExist(statErr))
}

var errDiskFull = errors.New("disk full")

// flakyStorage fails staging or committing a single file.
type flakyStorage struct {
	storage.Storage
	failStage  string
	failCommit string
	cancelOn   string
	cancel     context.CancelFunc
}

func (s *flakyStorage) Stage(ctx context.Context, namespace, filename string, source io.Reader) (storage.Staged, error) {
	if filename == s.failStage {
		return nil, errDiskFull
	}

	staged, err := s.Storage.Stage(ctx, namespace, filename, source)
	if err != nil {
		return nil, err
	}

	if filename == s.cancelOn {
		s.cancel()
	}

	if filename == s.failCommit {
		return &failingCommit{Staged: staged}, nil
	}

	return staged, nil
}

type failingCommit struct {
	storage.Staged
}

func (f *failingCommit) Commit() (*storage.Item, error) {
	_ = f.Staged.Discard()
	return nil, errDiskFull
}

func TestCompositor_PublishFailureKeepsComposite(t *testing.T) {
	tt := []struct {
		name    string
		storage func(s storage.Storage, cancel context.CancelFunc) storage.Storage
		err     error
	}{
		{
			name: "thumbnail cannot be written",
			storage: func(s storage.Storage, _ context.CancelFunc) storage.Storage {
				return &flakyStorage{Storage: s, failStage: media.ThumbFilename}
			},
			err: media.ErrMoveFailed,
		},
		{
			name: "composite cannot be written",
			storage: func(s storage.Storage, _ context.CancelFunc) storage.Storage {
				return &flakyStorage{Storage: s, failStage: media.CompositeFilename}
			},
			err: media.ErrMoveFailed,
		},
		{
			name: "thumbnail cannot be moved into place",
			storage: func(s storage.Storage, _ context.CancelFunc) storage.Storage {
				return &flakyStorage{Storage: s, failCommit: media.ThumbFilename}
			},
			err: media.ErrMoveFailed,
		},
		{
			name: "cancelled between the two writes",
			storage: func(s storage.Storage, cancel context.CancelFunc) storage.Storage {
				return &flakyStorage{Storage: s, cancelOn: media.ThumbFilename, cancel: cancel}
			},
			err: media.ErrIOFailure,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &PixelBackend{})

			prior, err := f.compositor.Render(context.Background(), f.job)
			require.NoError(t, err)
			_, priorComposite := decodeFile(t, prior.CompositePath)
			_, priorThumb := decodeFile(t, prior.ThumbPath)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			root := fsstorage.New(fsstorage.Config{Root: filepath.Join(f.dir, "assets")})
			flaky := NewWithBackend(Config{}, &PixelBackend{}, tc.storage(root, cancel), f.compositor.logger)

			f.job.Transform.TX = 40
			res, err := flaky.Render(ctx, f.job)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.True(t, errors.Is(err, tc.err), "expected %v, got %v", tc.err, err)

			_, afterComposite := decodeFile(t, prior.CompositePath)
			assert.True(t, bytes.Equal(priorComposite, afterComposite), "composite was replaced by a failed render")

			_, afterThumb := decodeFile(t, prior.ThumbPath)
			assert.True(t, bytes.Equal(priorThumb, afterThumb))

			entries, err := os.ReadDir(filepath.Join(f.dir, "assets", "asset-1"))
			require.NoError(t, err)
			assert.Len(t, entries, 2, "staged files must be cleaned up")
		})
	}
}
