package fsstorage

import (
	"context"
	"github.com/denismitr/mockup/internal/storage"
	"github.com/pkg/errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type Config struct {
	Root     string
	DirPerm  os.FileMode
	FilePerm os.FileMode
}

// LocalStorage keeps every namespace as a directory under Root.
type LocalStorage struct {
	cfg Config
}

func New(cfg Config) *LocalStorage {
	if cfg.DirPerm == 0 {
		cfg.DirPerm = 0o755
	}

	if cfg.FilePerm == 0 {
		cfg.FilePerm = 0o644
	}

	return &LocalStorage{cfg: cfg}
}

// Path is where namespace/filename lives on disk.
func (ls *LocalStorage) Path(namespace, filename string) string {
	return filepath.Join(ls.cfg.Root, namespace, filename)
}

func (ls *LocalStorage) Put(ctx context.Context, namespace, filename string, source io.Reader) (*storage.Item, error) {
	staged, err := ls.Stage(ctx, namespace, filename, source)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		_ = staged.Discard()
		return nil, errors.Wrapf(storage.ErrStorageFailed, "put %s/%s cancelled: %v", namespace, filename, err)
	}

	return staged.Commit()
}

// Stage writes the source into a temp file inside the namespace directory.
// The published file is untouched until Commit.
func (ls *LocalStorage) Stage(ctx context.Context, namespace, filename string, source io.Reader) (storage.Staged, error) {
	if err := validateKey(namespace, filename); err != nil {
		return nil, err
	}

	dir := filepath.Join(ls.cfg.Root, namespace)
	if err := os.MkdirAll(dir, ls.cfg.DirPerm); err != nil {
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not create namespace %s: %v", namespace, err)
	}

	// the temp file shares the directory so the rename never crosses devices
	tmp, err := os.CreateTemp(dir, "."+filename+".*.tmp")
	if err != nil {
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not create temp file in %s: %v", namespace, err)
	}

	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	n, err := io.Copy(tmp, source)
	if err != nil {
		cleanup()
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not write %s/%s: %v", namespace, filename, err)
	}

	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not sync %s/%s: %v", namespace, filename, err)
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not close %s/%s: %v", namespace, filename, err)
	}

	if err := os.Chmod(tmpName, ls.cfg.FilePerm); err != nil {
		_ = os.Remove(tmpName)
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not chmod %s/%s: %v", namespace, filename, err)
	}

	return &stagedFile{
		tmpName: tmpName,
		item: storage.Item{
			Namespace: namespace,
			Filename:  filename,
			Path:      ls.Path(namespace, filename),
			Size:      n,
		},
	}, nil
}

type stagedFile struct {
	tmpName string
	item    storage.Item
	done    bool
}

func (sf *stagedFile) Commit() (*storage.Item, error) {
	if sf.done {
		return nil, errors.Wrapf(storage.ErrStorageFailed, "%s/%s already committed or discarded", sf.item.Namespace, sf.item.Filename)
	}
	sf.done = true

	if err := os.Rename(sf.tmpName, sf.item.Path); err != nil {
		_ = os.Remove(sf.tmpName)
		return nil, errors.Wrapf(storage.ErrStorageFailed, "could not move %s into place: %v", sf.item.Path, err)
	}

	item := sf.item
	return &item, nil
}

func (sf *stagedFile) Discard() error {
	if sf.done {
		return nil
	}
	sf.done = true

	if err := os.Remove(sf.tmpName); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(storage.ErrStorageFailed, "could not discard %s: %v", sf.tmpName, err)
	}

	return nil
}

func (ls *LocalStorage) Download(ctx context.Context, dst io.Writer, namespace, filename string) error {
	if err := validateKey(namespace, filename); err != nil {
		return err
	}

	f, err := os.Open(ls.Path(namespace, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(storage.ErrNotFound, "%s/%s", namespace, filename)
		}

		return errors.Wrapf(storage.ErrStorageFailed, "could not open %s/%s: %v", namespace, filename, err)
	}
	defer f.Close()

	if _, err := io.Copy(dst, f); err != nil {
		return errors.Wrapf(storage.ErrStorageFailed, "could not read %s/%s: %v", namespace, filename, err)
	}

	return nil
}

// Remove file from namespace
func (ls *LocalStorage) Remove(ctx context.Context, namespace, filename string) error {
	if err := validateKey(namespace, filename); err != nil {
		return err
	}

	if err := os.Remove(ls.Path(namespace, filename)); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrapf(storage.ErrNotFound, "%s/%s", namespace, filename)
		}

		return errors.Wrapf(storage.ErrStorageFailed, "could not remove %s/%s: %v", namespace, filename, err)
	}

	return nil
}

func (ls *LocalStorage) Purge(ctx context.Context, namespace string) error {
	if !validName.MatchString(namespace) {
		return errors.Wrapf(storage.ErrBadKey, "namespace %q", namespace)
	}

	if err := os.RemoveAll(filepath.Join(ls.cfg.Root, namespace)); err != nil {
		return errors.Wrapf(storage.ErrStorageFailed, "could not purge %s: %v", namespace, err)
	}

	return nil
}

func validateKey(namespace, filename string) error {
	if !validName.MatchString(namespace) {
		return errors.Wrapf(storage.ErrBadKey, "namespace %q", namespace)
	}

	if !validName.MatchString(filename) {
		return errors.Wrapf(storage.ErrBadKey, "filename %q", filename)
	}

	return nil
}
