//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package shm

import (
	"errors"

	"golang.org/x/sys/unix"
)

// CreateExclusive creates path for read/write, failing if it already exists.
func CreateExclusive(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC, FileMode)
}

// OpenReadWrite opens an existing path for read/write.
func OpenReadWrite(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
}

// OpenLock opens or creates a lock file.
func OpenLock(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, FileMode)
}

// IsExist reports whether err means the path already exists.
func IsExist(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

func Truncate(fd int, size int64) error {
	return unix.Ftruncate(fd, size)
}

// Size returns the current size of the file behind fd.
func Size(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

// Map maps size bytes of fd shared read/write. extraFlags are OR-ed into
// MAP_SHARED, see HugepageFlags.
func Map(fd int, size int, extraFlags int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|extraFlags)
}

func Unmap(b []byte) error {
	return unix.Munmap(b)
}

func Close(fd int) error {
	return unix.Close(fd)
}

func Unlink(path string) error {
	return unix.Unlink(path)
}

// TryLock takes a non-blocking flock on fd.
func TryLock(fd int, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	err := unix.Flock(fd, how|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) {
		return ErrWouldBlock
	}
	return err
}

// SameFile reports whether path still names the file open on fd.
func SameFile(fd int, path string) (bool, error) {
	var open, named unix.Stat_t
	if err := unix.Fstat(fd, &open); err != nil {
		return false, err
	}
	if err := unix.Stat(path, &named); err != nil {
		return false, err
	}
	return open.Dev == named.Dev && open.Ino == named.Ino, nil
}

func Unlock(fd int) error {
	return unix.Flock(fd, unix.LOCK_UN)
}
