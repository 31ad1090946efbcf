package layout

import "errors"

var (
	ErrRegionTooSmall  = errors.New("region smaller than metadata block")
	ErrNotPowerOfTwo   = errors.New("buffer size is not a power of two")
	ErrBadMagic        = errors.New("metadata magic mismatch")
	ErrVersionMismatch = errors.New("unsupported metadata version")
)
