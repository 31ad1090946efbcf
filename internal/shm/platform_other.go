//go:build !(linux || darwin || freebsd || openbsd || netbsd || dragonfly)

package shm

func CreateExclusive(path string) (int, error) { return -1, ErrUnsupported }

func OpenReadWrite(path string) (int, error) { return -1, ErrUnsupported }

func OpenLock(path string) (int, error) { return -1, ErrUnsupported }

func IsExist(err error) bool { return false }

func Truncate(fd int, size int64) error { return ErrUnsupported }

func Size(fd int) (int64, error) { return 0, ErrUnsupported }

func Map(fd int, size int, extraFlags int) ([]byte, error) { return nil, ErrUnsupported }

func Unmap(b []byte) error { return ErrUnsupported }

func Close(fd int) error { return ErrUnsupported }

func Unlink(path string) error { return ErrUnsupported }

func TryLock(fd int, exclusive bool) error { return ErrUnsupported }

func Unlock(fd int) error { return ErrUnsupported }

func HugepageFlags(size uint64) (int, bool) { return 0, false }

func SameFile(fd int, path string) (bool, error) { return false, ErrUnsupported }
