// Package shm contains the platform-specific syscalls behind the segment
// policies in pkg/shm. Functions take raw descriptors and paths and return
// the OS error unchanged; wrapping happens one layer up.
package shm

import "errors"

// ErrUnsupported is returned on platforms without file-backed shared mappings.
var ErrUnsupported = errors.New("shared memory segments are not supported on this platform")

// ErrWouldBlock is returned by TryLock when another descriptor holds a conflicting lock.
var ErrWouldBlock = errors.New("lock held by another process")

// FileMode is the mode new segment files are created with, before umask.
const FileMode = 0o666

// Function implementations are provided in platform-specific files (platform_unix.go, platform_other.go).
