package shm

import (
	"errors"

	internalshm "github.com/srediag/hftshm/internal/shm"
)

var (
	ErrInvalidName         = errors.New("invalid segment name")
	ErrInvalidSize         = errors.New("invalid segment size")
	ErrInvalidConfig       = errors.New("invalid buffer configuration")
	ErrInsufficientSpace   = errors.New("not enough free space for segment")
	ErrSegmentInUse        = errors.New("segment owned by a live process")
	ErrLockTimeout         = errors.New("timed out waiting for segment lock")
	ErrClosed              = errors.New("buffer closed")
	ErrUnsupportedPlatform = internalshm.ErrUnsupported
)

// SegmentError records a failed segment operation and the path it was
// applied to.
type SegmentError struct {
	Op   string
	Path string
	Err  error
}

func (e *SegmentError) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *SegmentError) Unwrap() error { return e.Err }

func segErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &SegmentError{Op: op, Path: path, Err: err}
}
