package shm

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	internalshm "github.com/srediag/hftshm/internal/shm"
)

// fileLock is an flock held on a buffer's lock file. Creators hold it
// exclusively while they (re)initialise the segments, openers hold it
// shared while they attach.
type fileLock struct {
	fd   int
	path string
}

func newRetryBackOff(ctx context.Context, timeout time.Duration) backoff.BackOff {
	if timeout <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 50 * time.Millisecond
	bo.MaxElapsedTime = timeout
	return backoff.WithContext(bo, ctx)
}

// tryLock makes a single non-blocking attempt.
func tryLock(p Policy, name string, exclusive bool) (*fileLock, error) {
	if err := os.MkdirAll(p.BaseDir(), 0o777); err != nil {
		return nil, segErr("mkdir", p.BaseDir(), err)
	}
	path := p.Path(lockName(name))
	fd, err := internalshm.OpenLock(path)
	if err != nil {
		return nil, segErr("open", path, err)
	}
	if err := internalshm.TryLock(fd, exclusive); err != nil {
		_ = internalshm.Close(fd)
		return nil, err
	}
	// the path was unlinked or replaced between open and flock; the lock
	// we hold excludes nobody
	if same, err := internalshm.SameFile(fd, path); err != nil || !same {
		_ = internalshm.Unlock(fd)
		_ = internalshm.Close(fd)
		return nil, internalshm.ErrWouldBlock
	}
	return &fileLock{fd: fd, path: path}, nil
}

// acquireLock retries tryLock until timeout or ctx is done.
func acquireLock(ctx context.Context, p Policy, name string, exclusive bool, timeout time.Duration) (*fileLock, error) {
	var l *fileLock
	err := backoff.Retry(func() error {
		var err error
		l, err = tryLock(p, name, exclusive)
		if err == nil || errors.Is(err, internalshm.ErrWouldBlock) {
			return err
		}
		return backoff.Permanent(err)
	}, newRetryBackOff(ctx, timeout))
	if errors.Is(err, internalshm.ErrWouldBlock) {
		return nil, segErr("flock", p.Path(lockName(name)), ErrLockTimeout)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (l *fileLock) release() error {
	if l == nil {
		return nil
	}
	err := internalshm.Unlock(l.fd)
	if cerr := internalshm.Close(l.fd); err == nil {
		err = cerr
	}
	return segErr("unlock", l.path, err)
}
