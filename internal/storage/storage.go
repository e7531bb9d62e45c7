package storage

import (
	"context"
	"github.com/pkg/errors"
	"io"
)

var (
	ErrStorageFailed = errors.New("storage failed")
	ErrNotFound      = errors.New("storage item not found")
	ErrBadKey        = errors.New("bad storage key")
)

// Item is a file published into a namespace. Every asset is its own
// namespace.
type Item struct {
	Namespace string
	Filename  string
	Path      string
	Size      int64
}

// Staged is a completely written file that is not visible yet. Commit
// moves it into place, Discard throws it away. Exactly one of them is
// called.
type Staged interface {
	Commit() (*Item, error)
	Discard() error
}

type Storage interface {
	// Put publishes the source under namespace/filename. Readers see either
	// the previous file or the complete new one, never a partial write.
	Put(ctx context.Context, namespace, filename string, source io.Reader) (*Item, error)
	// Stage writes the source next to namespace/filename without replacing
	// it, so several files can be published together.
	Stage(ctx context.Context, namespace, filename string, source io.Reader) (Staged, error)
	Download(ctx context.Context, dst io.Writer, namespace, filename string) error
	Remove(ctx context.Context, namespace, filename string) error
	// Purge removes the namespace with everything in it.
	Purge(ctx context.Context, namespace string) error
}
