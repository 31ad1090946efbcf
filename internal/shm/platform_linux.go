//go:build linux

package shm

import (
	"golang.org/x/sys/unix"

	"github.com/srediag/hftshm/pkg/layout"
)

// HugepageFlags returns the mmap flags requesting hugepages of the given
// size. Sizes other than 2 MiB and 1 GiB use the kernel default hugepage size.
func HugepageFlags(size uint64) (int, bool) {
	if size == 0 {
		return 0, false
	}
	flags := unix.MAP_HUGETLB
	switch size {
	case layout.HugePage2MB:
		flags |= unix.MAP_HUGE_2MB
	case layout.HugePage1GB:
		flags |= unix.MAP_HUGE_1GB
	}
	return flags, true
}
