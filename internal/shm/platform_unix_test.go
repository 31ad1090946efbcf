//go:build linux || darwin || freebsd || openbsd || netbsd || dragonfly

package shm

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateMapUnlink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg")

	fd, err := CreateExclusive(path)
	require.NoError(t, err)
	defer Close(fd)

	_, err = CreateExclusive(path)
	assert.True(t, IsExist(err))

	require.NoError(t, Truncate(fd, 8192))
	size, err := Size(fd)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), size)

	mem, err := Map(fd, 8192, 0)
	require.NoError(t, err)
	mem[0], mem[8191] = 1, 2

	fd2, err := OpenReadWrite(path)
	require.NoError(t, err)
	defer Close(fd2)
	mem2, err := Map(fd2, 8192, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), mem2[0])
	assert.Equal(t, byte(2), mem2[8191])

	require.NoError(t, Unmap(mem2))
	require.NoError(t, Unmap(mem))
	require.NoError(t, Unlink(path))
	_, err = OpenReadWrite(path)
	assert.Error(t, err)
}

func TestTryLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.lock")
	a, err := OpenLock(path)
	require.NoError(t, err)
	defer Close(a)
	b, err := OpenLock(path)
	require.NoError(t, err)
	defer Close(b)

	require.NoError(t, TryLock(a, true))
	assert.ErrorIs(t, TryLock(b, true), ErrWouldBlock)
	assert.ErrorIs(t, TryLock(b, false), ErrWouldBlock)
	require.NoError(t, Unlock(a))

	require.NoError(t, TryLock(a, false))
	require.NoError(t, TryLock(b, false))
	require.NoError(t, Unlock(a))
	require.NoError(t, Unlock(b))
}

func TestSameFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.lock")
	fd, err := OpenLock(path)
	require.NoError(t, err)
	defer Close(fd)

	same, err := SameFile(fd, path)
	require.NoError(t, err)
	assert.True(t, same)

	require.NoError(t, Unlink(path))
	_, err = SameFile(fd, path)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	fd2, err := OpenLock(path)
	require.NoError(t, err)
	defer Close(fd2)
	same, err = SameFile(fd, path)
	require.NoError(t, err)
	assert.False(t, same)
}

func TestHugepageFlagsZero(t *testing.T) {
	flags, ok := HugepageFlags(0)
	assert.False(t, ok)
	assert.Zero(t, flags)
}
