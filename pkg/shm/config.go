package shm

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/srediag/hftshm/pkg/layout"
)

const (
	defaultMaxConsumers  = 4
	defaultEventSize     = 64
	defaultBufferSize    = 1 << 20
	defaultLockTimeout   = 5 * time.Second
	defaultAttachTimeout = 5 * time.Second
)

// Config describes a named buffer. Create uses every field; Open only
// needs Name, Policy, HugepageSize, AttachTimeout and Tracer since the
// sizes come from the stored metadata.
type Config struct {
	Name   string
	Policy Policy // nil selects DefaultPolicy()

	MaxConsumers uint8
	EventSize    uint16 // 0 for variable-size events
	BufferSize   uint32 // power of two
	HugepageSize uint64 // 0, layout.HugePage2MB or layout.HugePage1GB

	// Zero selects layout.DefaultProducerSectionSize / DefaultConsumerSectionSize.
	ProducerSectionSize uint32
	ConsumerSectionSize uint32

	// LockTimeout bounds the wait for the buffer's lock file. Zero tries once.
	LockTimeout time.Duration
	// AttachTimeout bounds how long Open waits for a creator to publish the buffer.
	AttachTimeout time.Duration
	// Adopt lets Create reinitialise a buffer whose owner is still alive.
	Adopt bool

	Tracer trace.Tracer
}

// DefaultConfig returns a config with default sizes and timeouts. Name must
// still be set.
func DefaultConfig() *Config {
	return &Config{
		MaxConsumers:  defaultMaxConsumers,
		EventSize:     defaultEventSize,
		BufferSize:    defaultBufferSize,
		LockTimeout:   defaultLockTimeout,
		AttachTimeout: defaultAttachTimeout,
	}
}

// VerifyConfig checks that config can create a buffer.
func VerifyConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := validName(config.Name); err != nil {
		return fmt.Errorf("%w: name %q", ErrInvalidConfig, config.Name)
	}
	if config.MaxConsumers == 0 {
		return fmt.Errorf("%w: max consumers must be at least 1", ErrInvalidConfig)
	}
	if !layout.IsPowerOf2(config.BufferSize) {
		return fmt.Errorf("%w: buffer size %d is not a power of two", ErrInvalidConfig, config.BufferSize)
	}
	if config.EventSize != 0 {
		if !layout.IsPowerOf2(uint32(config.EventSize)) {
			return fmt.Errorf("%w: event size %d is not a power of two", ErrInvalidConfig, config.EventSize)
		}
		if uint32(config.EventSize) > config.BufferSize {
			return fmt.Errorf("%w: event size %d exceeds buffer size %d", ErrInvalidConfig, config.EventSize, config.BufferSize)
		}
	}
	switch config.HugepageSize {
	case 0, layout.HugePage2MB, layout.HugePage1GB:
	default:
		return fmt.Errorf("%w: hugepage size %d is neither 2MB nor 1GB", ErrInvalidConfig, config.HugepageSize)
	}
	for _, s := range []uint32{config.ProducerSectionSize, config.ConsumerSectionSize} {
		if s%layout.CacheLine != 0 {
			return fmt.Errorf("%w: section size %d is not a multiple of the cache line", ErrInvalidConfig, s)
		}
	}
	if size := layout.HeaderSegmentSize(config.MaxConsumers, config.sections()); size > layout.MaxHeaderSize {
		return fmt.Errorf("%w: header segment of %d bytes exceeds %d", ErrInvalidConfig, size, layout.MaxHeaderSize)
	}
	if config.LockTimeout < 0 || config.AttachTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) policy() Policy {
	if c.Policy == nil {
		return DefaultPolicy()
	}
	return c.Policy
}

func (c *Config) tracer() trace.Tracer {
	if c.Tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return c.Tracer
}

func (c *Config) sections() layout.Sections {
	return layout.Sections{Producer: c.ProducerSectionSize, Consumer: c.ConsumerSectionSize}
}
