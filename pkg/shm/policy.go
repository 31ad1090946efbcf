package shm

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"go.opentelemetry.io/otel/metric"

	internalshm "github.com/srediag/hftshm/internal/shm"
	"github.com/srediag/hftshm/pkg/layout"
)

const (
	LinuxBaseDir    = "/dev/shm/hft"
	PortableBaseDir = "/tmp/hft"

	headerSuffix = ".hdr"
	dataSuffix   = ".dat"
	lockSuffix   = ".lock"
)

// Policy creates, maps, inspects and removes the files backing named
// segments. Every platform exposes the same capability set; hugepage
// support is reported by Hugepages.
//
// Names are relative to BaseDir and may not contain a path separator.
type Policy interface {
	// BaseDir is the directory holding every segment of this policy.
	BaseDir() string
	// Hugepages reports whether Map can honour hugepage requests at all.
	Hugepages() bool

	Path(name string) string
	HeaderPath(name string) string
	DataPath(name string) string

	// Create creates the named file with the given size. An existing file
	// is adopted: opened and resized to size whatever its contents.
	Create(name string, size int64, hugepageSize uint64) (int, error)
	// Map maps size bytes of fd shared read/write. A failed hugepage
	// request falls back to regular pages; Mapping.Backing says which.
	Map(fd int, size int, hugepageSize uint64) (Mapping, error)
	// Open opens an existing file read/write.
	Open(name string) (int, error)
	Size(fd int) (int64, error)
	// Unlink removes the named file. Existing mappings stay valid.
	Unlink(name string) error
	// Unmap and Close are no-ops on empty mappings and negative descriptors.
	Unmap(data []byte) error
	Close(fd int) error
	Info(name string) SegmentInfo
}

// HeaderName returns the policy name of a buffer's header segment.
func HeaderName(name string) string { return name + headerSuffix }

// DataName returns the policy name of a buffer's data segment.
func DataName(name string) string { return name + dataSuffix }

func lockName(name string) string { return name + lockSuffix }

// Option configures a FilePolicy.
type Option func(*FilePolicy)

// WithBaseDir relocates every segment of the policy under dir.
func WithBaseDir(dir string) Option {
	return func(p *FilePolicy) { p.baseDir = dir }
}

// WithMetrics makes the policy update m.
func WithMetrics(m *Metrics) Option {
	return func(p *FilePolicy) { p.metrics = m }
}

// WithMeter records OpenTelemetry measurements on meter.
func WithMeter(meter metric.Meter) Option {
	return func(p *FilePolicy) { p.meter = meter }
}

// WithLogOutput sends the policy's log lines to w instead of stderr.
func WithLogOutput(w io.Writer) Option {
	return func(p *FilePolicy) { p.log = newLogger("hftshm "+p.name, w) }
}

// WithSpaceCheck toggles the free space check done before creating a file.
func WithSpaceCheck(enabled bool) Option {
	return func(p *FilePolicy) { p.spaceCheck = enabled }
}

// FilePolicy is the file-backed Policy used on every supported platform.
type FilePolicy struct {
	name       string
	baseDir    string
	hugepages  bool
	spaceCheck bool
	metrics    *Metrics
	meter      metric.Meter
	otel       otelInstruments
	log        *logger
}

var _ Policy = (*FilePolicy)(nil)

// NewLinuxPolicy returns the policy rooted at /dev/shm/hft with hugepage
// support.
func NewLinuxPolicy(opts ...Option) *FilePolicy {
	return newFilePolicy("linux", LinuxBaseDir, true, opts)
}

// NewPortablePolicy returns the policy rooted at /tmp/hft that always maps
// regular pages.
func NewPortablePolicy(opts ...Option) *FilePolicy {
	return newFilePolicy("portable", PortableBaseDir, false, opts)
}

// DefaultPolicy returns the policy matching the running OS.
func DefaultPolicy(opts ...Option) *FilePolicy {
	if runtime.GOOS == "linux" {
		return NewLinuxPolicy(opts...)
	}
	return NewPortablePolicy(opts...)
}

func newFilePolicy(name, baseDir string, hugepages bool, opts []Option) *FilePolicy {
	p := &FilePolicy{
		name:       name,
		baseDir:    baseDir,
		hugepages:  hugepages,
		spaceCheck: true,
		log:        internalLogger,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.otel = newOtelInstruments(p.meter)
	return p
}

// Name is "linux" or "portable".
func (p *FilePolicy) Name() string { return p.name }

func (p *FilePolicy) BaseDir() string { return p.baseDir }

func (p *FilePolicy) Hugepages() bool {
	if !p.hugepages {
		return false
	}
	_, ok := internalshm.HugepageFlags(layout.HugePage2MB)
	return ok
}

func (p *FilePolicy) Path(name string) string { return filepath.Join(p.baseDir, name) }

func (p *FilePolicy) HeaderPath(name string) string { return p.Path(HeaderName(name)) }

func (p *FilePolicy) DataPath(name string) string { return p.Path(DataName(name)) }

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, os.PathSeparator) {
		return ErrInvalidName
	}
	return nil
}

func (p *FilePolicy) ensureBaseDir() error {
	return os.MkdirAll(p.baseDir, 0o777)
}

// checkSpace fails when the filesystem under BaseDir cannot hold size more
// bytes. A failed statfs does not block creation.
func (p *FilePolicy) checkSpace(size int64) error {
	if !p.spaceCheck {
		return nil
	}
	usage, err := disk.Usage(p.baseDir)
	if err != nil {
		p.log.debugf("disk usage of %s: %v", p.baseDir, err)
		return nil
	}
	if usage.Free < uint64(size) {
		return ErrInsufficientSpace
	}
	return nil
}

func (p *FilePolicy) Create(name string, size int64, hugepageSize uint64) (int, error) {
	if err := validName(name); err != nil {
		return -1, segErr("create", name, err)
	}
	path := p.Path(name)
	if size <= 0 {
		return -1, segErr("create", path, ErrInvalidSize)
	}
	if err := p.ensureBaseDir(); err != nil {
		return -1, segErr("mkdir", p.baseDir, err)
	}

	fd, err := internalshm.CreateExclusive(path)
	if err == nil {
		if err := p.checkSpace(size); err != nil {
			_ = internalshm.Close(fd)
			_ = internalshm.Unlink(path)
			return -1, segErr("create", path, err)
		}
		if err := internalshm.Truncate(fd, size); err != nil {
			_ = internalshm.Close(fd)
			_ = internalshm.Unlink(path)
			return -1, segErr("ftruncate", path, err)
		}
		p.metrics.segmentCreated(false)
		p.log.debugf("created %s size=%d hugepage=%d", path, size, hugepageSize)
		return fd, nil
	}
	if !internalshm.IsExist(err) {
		return -1, segErr("create", path, err)
	}

	fd, err = internalshm.OpenReadWrite(path)
	if err != nil {
		return -1, segErr("open", path, err)
	}
	if err := internalshm.Truncate(fd, size); err != nil {
		_ = internalshm.Close(fd)
		return -1, segErr("ftruncate", path, err)
	}
	p.metrics.segmentCreated(true)
	p.log.warnf("adopted existing %s, resized to %d", path, size)
	return fd, nil
}

func (p *FilePolicy) Map(fd int, size int, hugepageSize uint64) (Mapping, error) {
	if fd < 0 {
		return Mapping{}, segErr("mmap", "", fs.ErrInvalid)
	}
	if size <= 0 {
		return Mapping{}, segErr("mmap", "", ErrInvalidSize)
	}
	m := Mapping{Requested: hugepageSize}

	if hugepageSize != 0 && p.hugepages {
		if flags, ok := internalshm.HugepageFlags(hugepageSize); ok {
			data, err := internalshm.Map(fd, size, flags)
			if err == nil {
				m.Data, m.Backing = data, hugepageBacking(hugepageSize)
				p.recordMap(m)
				return m, nil
			}
			p.log.warnf("hugepage mapping of %d bytes (page %d) failed, using regular pages: %v", size, hugepageSize, err)
		}
	}

	data, err := internalshm.Map(fd, size, 0)
	if err != nil {
		p.metrics.mapFailed()
		return Mapping{}, segErr("mmap", "", err)
	}
	m.Data, m.Backing = data, BackingRegular
	p.recordMap(m)
	return m, nil
}

func (p *FilePolicy) recordMap(m Mapping) {
	p.metrics.mapped(m)
	p.otel.mapped(m.Backing)
	p.log.debugf("mapped %d bytes backing=%s", len(m.Data), m.Backing)
}

func hugepageBacking(size uint64) Backing {
	switch size {
	case layout.HugePage2MB:
		return BackingHugepage2MB
	case layout.HugePage1GB:
		return BackingHugepage1GB
	default:
		return BackingHugepage
	}
}

func (p *FilePolicy) Open(name string) (int, error) {
	if err := validName(name); err != nil {
		return -1, segErr("open", name, err)
	}
	path := p.Path(name)
	fd, err := internalshm.OpenReadWrite(path)
	if err != nil {
		return -1, segErr("open", path, err)
	}
	return fd, nil
}

func (p *FilePolicy) Size(fd int) (int64, error) {
	if fd < 0 {
		return 0, segErr("fstat", "", fs.ErrInvalid)
	}
	size, err := internalshm.Size(fd)
	if err != nil {
		return 0, segErr("fstat", "", err)
	}
	return size, nil
}

func (p *FilePolicy) Unlink(name string) error {
	if err := validName(name); err != nil {
		return segErr("unlink", name, err)
	}
	path := p.Path(name)
	if err := internalshm.Unlink(path); err != nil {
		return segErr("unlink", path, err)
	}
	p.log.debugf("unlinked %s", path)
	return nil
}

func (p *FilePolicy) Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := internalshm.Unmap(data); err != nil {
		return segErr("munmap", "", err)
	}
	p.metrics.unmapped(len(data))
	return nil
}

func (p *FilePolicy) Close(fd int) error {
	if fd < 0 {
		return nil
	}
	return segErr("close", "", internalshm.Close(fd))
}
