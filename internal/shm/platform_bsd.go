//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package shm

// HugepageFlags always reports false: these kernels have no MAP_HUGETLB.
func HugepageFlags(size uint64) (int, bool) {
	return 0, false
}
