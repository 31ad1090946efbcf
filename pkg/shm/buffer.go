package shm

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/cenkalti/backoff/v4"
	"github.com/shirou/gopsutil/v3/process"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	internalshm "github.com/srediag/hftshm/internal/shm"
	"github.com/srediag/hftshm/pkg/layout"
)

// ErrCorruptHeader is returned by Open when the metadata block passes the
// magic/version gate but its sizes are inconsistent.
var ErrCorruptHeader = errors.New("inconsistent buffer metadata")

// Buffer is an open, mapped buffer. It is owned by the goroutine that
// created it; Close and Unlink are safe to call once from anywhere.
type Buffer struct {
	name   string
	policy Policy
	header SegmentHandle
	data   SegmentHandle
	meta   layout.Header
	owner  bool
	closed atomic.Bool

	// mu guards the mappings against Close. Readers on other goroutines
	// go through the methods that hold it.
	mu sync.RWMutex
}

// Create creates or reinitialises the buffer described by config and
// returns it mapped with a fresh metadata block.
//
// A buffer whose recorded owner is another live process is left alone and
// ErrSegmentInUse is returned, unless config.Adopt is set.
func Create(ctx context.Context, config *Config) (buf *Buffer, err error) {
	if err := VerifyConfig(config); err != nil {
		return nil, err
	}
	ctx, span := config.tracer().Start(ctx, "hftshm.Create",
		trace.WithAttributes(attribute.String("hftshm.name", config.Name)))
	defer func() { endSpan(span, err) }()

	p := config.policy()
	lock, err := acquireLock(ctx, p, config.Name, true, config.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := lock.release(); rerr != nil {
			internalLogger.warnf("release lock of %s: %v", config.Name, rerr)
		}
	}()

	prevGen, err := previousGeneration(p, config.Name, config.Adopt)
	if err != nil {
		return nil, err
	}

	params := layout.NewParams(config.MaxConsumers, config.EventSize, config.BufferSize, config.sections())
	params.Generation = prevGen + 1
	params.OwnerPID = uint32(os.Getpid())

	b := &Buffer{
		name:   config.Name,
		policy: p,
		header: InvalidHandle(),
		data:   InvalidHandle(),
		owner:  true,
	}
	b.header, err = createSegment(p, HeaderName(config.Name), int(params.HeaderSize), 0)
	if err != nil {
		return nil, err
	}
	// drop the old magic first so nobody validates a block mid-rewrite
	clear(b.header.Data[:layout.MetadataSize])

	dataSize := layout.DataSegmentSize(config.BufferSize, config.HugepageSize)
	b.data, err = createSegment(p, DataName(config.Name), int(dataSize), config.HugepageSize)
	if err != nil {
		_ = b.release()
		return nil, err
	}
	if err := layout.InitMetadata(b.header.Data, params); err != nil {
		_ = b.release()
		return nil, err
	}
	b.meta, _ = layout.NewHeader(b.header.Data)

	span.SetAttributes(
		attribute.String("hftshm.backing", b.data.Backing.String()),
		attribute.Int64("hftshm.generation", int64(params.Generation)),
	)
	if config.HugepageSize != 0 && !b.data.Backing.IsHugepage() {
		internalLogger.warnf("buffer %s: hugepages requested, data segment uses regular pages", config.Name)
	}
	internalLogger.infof("created buffer %s generation=%d header=%d data=%d backing=%s",
		config.Name, params.Generation, params.HeaderSize, dataSize, b.data.Backing)
	return b, nil
}

// Open attaches to an existing buffer. It retries until config.AttachTimeout
// while the header is missing or not yet initialised; a version mismatch or
// inconsistent sizes fail immediately.
func Open(ctx context.Context, config *Config) (buf *Buffer, err error) {
	if config == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if err := validName(config.Name); err != nil {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidConfig, config.Name)
	}
	ctx, span := config.tracer().Start(ctx, "hftshm.Open",
		trace.WithAttributes(attribute.String("hftshm.name", config.Name)))
	defer func() { endSpan(span, err) }()

	p := config.policy()
	err = backoff.Retry(func() error {
		var err error
		buf, err = attach(p, config.Name, config.HugepageSize)
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, newRetryBackOff(ctx, config.AttachTimeout))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("hftshm.backing", buf.data.Backing.String()))
	return buf, nil
}

func retryable(err error) bool {
	return errors.Is(err, fs.ErrNotExist) ||
		errors.Is(err, internalshm.ErrWouldBlock) ||
		errors.Is(err, layout.ErrRegionTooSmall) ||
		errors.Is(err, layout.ErrBadMagic)
}

func attach(p Policy, name string, hugepageSize uint64) (*Buffer, error) {
	lock, err := tryLock(p, name, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.release() }()

	b := &Buffer{
		name:   name,
		policy: p,
		header: InvalidHandle(),
		data:   InvalidHandle(),
	}
	b.header, err = openSegment(p, HeaderName(name), 0)
	if err != nil {
		return nil, err
	}
	headerPath := b.header.Path
	if err := layout.CheckMetadata(b.header.Data); err != nil {
		_ = b.release()
		return nil, segErr("validate", headerPath, err)
	}
	b.meta, _ = layout.NewHeader(b.header.Data)
	m := b.meta.Metadata()
	if !m.ValidateSizes() || int(m.HeaderSize) > b.header.Size {
		_ = b.release()
		return nil, segErr("validate", headerPath, ErrCorruptHeader)
	}

	b.data, err = openSegment(p, DataName(name), hugepageSize)
	if err != nil {
		_ = b.release()
		return nil, err
	}
	if dataPath := b.data.Path; uint64(b.data.Size) < uint64(m.BufferSize) {
		_ = b.release()
		return nil, segErr("validate", dataPath, ErrCorruptHeader)
	}
	return b, nil
}

func createSegment(p Policy, name string, size int, hugepageSize uint64) (SegmentHandle, error) {
	fd, err := p.Create(name, int64(size), hugepageSize)
	if err != nil {
		return InvalidHandle(), err
	}
	return mapSegment(p, name, fd, size, hugepageSize)
}

// openSegment maps the whole of an existing file.
func openSegment(p Policy, name string, hugepageSize uint64) (SegmentHandle, error) {
	fd, err := p.Open(name)
	if err != nil {
		return InvalidHandle(), err
	}
	size, err := p.Size(fd)
	if err != nil {
		_ = p.Close(fd)
		return InvalidHandle(), err
	}
	if size < layout.MetadataSize {
		_ = p.Close(fd)
		return InvalidHandle(), segErr("open", p.Path(name), layout.ErrRegionTooSmall)
	}
	return mapSegment(p, name, fd, int(size), hugepageSize)
}

func mapSegment(p Policy, name string, fd, size int, hugepageSize uint64) (SegmentHandle, error) {
	m, err := p.Map(fd, size, hugepageSize)
	if err != nil {
		_ = p.Close(fd)
		return InvalidHandle(), err
	}
	return SegmentHandle{
		FD:      fd,
		Data:    m.Data,
		Size:    len(m.Data),
		Path:    p.Path(name),
		Backing: m.Backing,
	}, nil
}

// ReadMetadata opens the named buffer's header segment, checks the
// magic/version gate and returns a copy of its metadata block.
func ReadMetadata(p Policy, name string) (layout.Metadata, error) {
	fd, err := p.Open(HeaderName(name))
	if err != nil {
		return layout.Metadata{}, err
	}
	defer func() { _ = p.Close(fd) }()

	path := p.HeaderPath(name)
	size, err := p.Size(fd)
	if err != nil {
		return layout.Metadata{}, err
	}
	if size < layout.MetadataSize {
		return layout.Metadata{}, segErr("validate", path, layout.ErrRegionTooSmall)
	}
	m, err := p.Map(fd, layout.MetadataSize, 0)
	if err != nil {
		return layout.Metadata{}, err
	}
	defer func() { _ = p.Unmap(m.Data) }()

	if err := layout.CheckMetadata(m.Data); err != nil {
		return layout.Metadata{}, segErr("validate", path, err)
	}
	h, _ := layout.NewHeader(m.Data)
	return h.Metadata(), nil
}

// previousGeneration returns the generation of an existing, valid header
// segment and refuses to go on when another live process owns it.
func previousGeneration(p Policy, name string, adopt bool) (uint32, error) {
	m, err := ReadMetadata(p, name)
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, layout.ErrRegionTooSmall) ||
		errors.Is(err, layout.ErrBadMagic) || errors.Is(err, layout.ErrVersionMismatch) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !adopt && m.OwnerPID != 0 && int(m.OwnerPID) != os.Getpid() && PIDAlive(m.OwnerPID) {
		return 0, segErr("create", p.HeaderPath(name), fmt.Errorf("%w: pid %d", ErrSegmentInUse, m.OwnerPID))
	}
	return m.Generation, nil
}

// PIDAlive reports whether pid names a running process. Lookup failures
// count as alive so an unknown owner is never clobbered. Pids past
// math.MaxInt32 cannot exist.
func PIDAlive(pid uint32) bool {
	if pid > math.MaxInt32 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return ok || err != nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (b *Buffer) Name() string { return b.name }

// Owner reports whether this process created the buffer.
func (b *Buffer) Owner() bool { return b.owner }

// Header is the live metadata view in the mapped header segment. It is
// nil after Close and must not be used concurrently with Close; use
// ProducerPID or Metadata from other goroutines.
func (b *Buffer) Header() layout.Header {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.meta
}

// Metadata is a decoded copy of the metadata block, zero after Close.
func (b *Buffer) Metadata() layout.Metadata {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.meta == nil {
		return layout.Metadata{}
	}
	return b.meta.Metadata()
}

// ProducerPID reads the attached producer pid from the live header.
func (b *Buffer) ProducerPID() (uint32, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.meta == nil {
		return 0, ErrClosed
	}
	return b.meta.ProducerPID(), nil
}

// HeaderRegion is the whole mapped header segment, nil after Close.
func (b *Buffer) HeaderRegion() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.header.Data
}

// Data is the mapped data segment, nil after Close.
func (b *Buffer) Data() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Data
}

func (b *Buffer) HeaderHandle() SegmentHandle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.header
}

func (b *Buffer) DataHandle() SegmentHandle {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

// Backing is the page size serving the data segment.
func (b *Buffer) Backing() Backing {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Backing
}

// Close unmaps both segments and closes their descriptors. The files stay.
func (b *Buffer) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.release()
}

func (b *Buffer) release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for _, h := range []*SegmentHandle{&b.data, &b.header} {
		errs = append(errs, b.policy.Unmap(h.Data), b.policy.Close(h.FD))
		*h = InvalidHandle()
	}
	b.meta = nil
	return errors.Join(errs...)
}

// Unlink removes the buffer's files. Mappings, including this buffer's if
// still open, stay valid until unmapped.
func (b *Buffer) Unlink() error {
	return Unlink(b.policy, b.name)
}

// Unlink removes the header and data files of the named buffer. Missing
// files are ignored. The lock file stays: another process may hold a lock
// on it, and a fresh inode under the same name would not exclude it.
func Unlink(p Policy, name string) error {
	var errs []error
	for _, n := range []string{HeaderName(name), DataName(name)} {
		if err := p.Unlink(n); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
