package media

import (
	"fmt"
	"github.com/pkg/errors"
	"sort"
	"strings"
)

var (
	ErrUnsupportedMime   = errors.New("unsupported mime type")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptImage      = errors.New("corrupt image")
	ErrTooLarge          = errors.New("image file too large")
	ErrTooSmall          = errors.New("image resolution too small")
	ErrBadAspectRatio    = errors.New("bad aspect ratio")
	ErrInvalidTransform  = errors.New("invalid transform")
	ErrDecodeFailed      = errors.New("decode failed")
	ErrEncodeFailed      = errors.New("encode failed")
	ErrMaskSizeMismatch  = errors.New("mask size mismatch")
	ErrComposeFailed     = errors.New("compose failed")
	ErrMoveFailed        = errors.New("move failed")
	ErrIOFailure         = errors.New("io failure")
)

// ValidationError collects per field messages of a rejected transform
// or placement. It matches ErrInvalidTransform with errors.Is.
type ValidationError struct {
	errors map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{errors: make(map[string]string)}
}

func (err *ValidationError) Add(k, v string) {
	err.errors[k] = v
}

func (err *ValidationError) Empty() bool {
	return len(err.errors) == 0
}

func (err *ValidationError) Error() string {
	keys := make([]string, 0, len(err.errors))
	for k := range err.errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	segments := make([]string, 0, len(keys))
	for _, k := range keys {
		segments = append(segments, fmt.Sprintf("%s: %s", k, err.errors[k]))
	}

	return ErrInvalidTransform.Error() + ": " + strings.Join(segments, "; ")
}

func (err *ValidationError) Errors() map[string]string {
	return err.errors
}

func (err *ValidationError) Is(target error) bool {
	return target == ErrInvalidTransform
}
