package shm

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackingString(t *testing.T) {
	assert.Equal(t, "regular", BackingRegular.String())
	assert.Equal(t, "hugepage-2MB", BackingHugepage2MB.String())
	assert.Equal(t, "hugepage-1GB", BackingHugepage1GB.String())
	assert.Equal(t, "hugepage", BackingHugepage.String())
	assert.Equal(t, "Backing(9)", Backing(9).String())

	assert.False(t, BackingRegular.IsHugepage())
	assert.True(t, BackingHugepage2MB.IsHugepage())
	assert.True(t, BackingHugepage.IsHugepage())
}

func TestMappingFellBack(t *testing.T) {
	assert.False(t, Mapping{}.FellBack())
	assert.False(t, Mapping{Requested: 2 << 20, Backing: BackingHugepage2MB}.FellBack())
	assert.True(t, Mapping{Requested: 2 << 20, Backing: BackingRegular}.FellBack())
}

func TestSegmentHandle(t *testing.T) {
	h := InvalidHandle()
	assert.False(t, h.IsValid())
	assert.Equal(t, -1, h.FD)

	h = SegmentHandle{FD: 3, Data: make([]byte, 8), Size: 8}
	assert.True(t, h.IsValid())
	h.Size = 0
	assert.False(t, h.IsValid())
	h = SegmentHandle{FD: 0, Size: 8}
	assert.False(t, h.IsValid(), "no mapping")
}

func TestSegmentInfoString(t *testing.T) {
	info := SegmentInfo{Path: "/tmp/hft/ring.hdr"}
	assert.Equal(t, "/tmp/hft/ring.hdr (absent)", info.String())

	info = SegmentInfo{
		Path:         "/dev/shm/hft/ring.dat",
		Exists:       true,
		Size:         2 << 20,
		Permissions:  "rw-rw-rw-",
		HugepageSize: 2 << 20,
		LastModified: "2024-01-02 03:04:05",
	}
	assert.Equal(t, "rw-rw-rw- 2097152 2024-01-02 03:04:05 /dev/shm/hft/ring.dat hugepage=2097152", info.String())
}

func TestSegmentError(t *testing.T) {
	err := segErr("open", "/tmp/hft/ring.hdr", fs.ErrNotExist)
	assert.EqualError(t, err, "open /tmp/hft/ring.hdr: file does not exist")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	var se *SegmentError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, "open", se.Op)

	assert.EqualError(t, segErr("mmap", "", ErrInvalidSize), "mmap: invalid segment size")
	assert.NoError(t, segErr("close", "x", nil))
}
