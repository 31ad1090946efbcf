// Package health exposes liveness and readiness checks for hftshm buffers
// through github.com/heptiolabs/healthcheck.
//
// Readiness of a named buffer means its header segment exists and carries
// a valid, self-consistent metadata block. Liveness covers the base
// directory and, for buffers opened in this process, the attached producer.
package health

import (
	"errors"
	"fmt"
	"os"

	"github.com/heptiolabs/healthcheck"

	"github.com/srediag/hftshm/pkg/shm"
)

var (
	ErrInvalidLayout = errors.New("buffer metadata sizes are inconsistent")
	ErrProducerGone  = errors.New("attached producer is not running")
)

// SegmentCheck fails while the named buffer has no valid header segment.
func SegmentCheck(p shm.Policy, name string) healthcheck.Check {
	return func() error {
		m, err := shm.ReadMetadata(p, name)
		if err != nil {
			return err
		}
		if !m.ValidateSizes() {
			return fmt.Errorf("%s: %w", name, ErrInvalidLayout)
		}
		return nil
	}
}

// ProducerCheck fails when b records a producer pid that is no longer
// running. A buffer without an attached producer passes.
func ProducerCheck(b *shm.Buffer) healthcheck.Check {
	return func() error {
		pid, err := b.ProducerPID()
		if err != nil {
			return fmt.Errorf("%s: %w", b.Name(), err)
		}
		if pid != 0 && !shm.PIDAlive(pid) {
			return fmt.Errorf("%s: pid %d: %w", b.Name(), pid, ErrProducerGone)
		}
		return nil
	}
}

// BaseDirCheck fails when the policy's base directory is missing.
func BaseDirCheck(p shm.Policy) healthcheck.Check {
	return func() error {
		st, err := os.Stat(p.BaseDir())
		if err != nil {
			return err
		}
		if !st.IsDir() {
			return fmt.Errorf("%s is not a directory", p.BaseDir())
		}
		return nil
	}
}

// NewHandler returns a handler with a liveness check on the base directory
// and one readiness check per named buffer.
func NewHandler(p shm.Policy, names ...string) healthcheck.Handler {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("base-dir", BaseDirCheck(p))
	for _, name := range names {
		h.AddReadinessCheck("segment-"+name, SegmentCheck(p, name))
	}
	return h
}

// AddRegistry adds a producer liveness check for every buffer currently in r.
func AddRegistry(h healthcheck.Handler, r *shm.Registry) {
	for _, name := range r.Names() {
		if b, ok := r.Get(name); ok {
			h.AddLivenessCheck("producer-"+name, ProducerCheck(b))
		}
	}
}
