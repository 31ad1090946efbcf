package shm

import (
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// SegmentInfo is a snapshot of a named segment as seen on the filesystem.
// It is rebuilt on every Policy.Info call.
type SegmentInfo struct {
	Path         string
	Exists       bool
	Size         int64
	Permissions  string // rwxrwxrwx form, 9 characters
	HugepageSize uint64 // best effort; 0 means unknown
	LastModified string // "2006-01-02 15:04:05", local time
}

// String renders the snapshot on one line, ls style.
func (i SegmentInfo) String() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if !i.Exists {
		_, _ = buf.WriteString(i.Path)
		_, _ = buf.WriteString(" (absent)")
		return buf.String()
	}
	_, _ = buf.WriteString(i.Permissions)
	_ = buf.WriteByte(' ')
	buf.B = strconv.AppendInt(buf.B, i.Size, 10)
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(i.LastModified)
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(i.Path)
	if i.HugepageSize != 0 {
		_, _ = buf.WriteString(" hugepage=")
		buf.B = strconv.AppendUint(buf.B, i.HugepageSize, 10)
	}
	return buf.String()
}

// Backing tells which page size serves a mapping.
type Backing int

const (
	BackingRegular Backing = iota
	BackingHugepage2MB
	BackingHugepage1GB
	// BackingHugepage is a hugepage mapping of the kernel's default size.
	BackingHugepage
)

func (b Backing) String() string {
	switch b {
	case BackingRegular:
		return "regular"
	case BackingHugepage2MB:
		return "hugepage-2MB"
	case BackingHugepage1GB:
		return "hugepage-1GB"
	case BackingHugepage:
		return "hugepage"
	default:
		return "Backing(" + strconv.Itoa(int(b)) + ")"
	}
}

// IsHugepage reports whether b is any hugepage backing.
func (b Backing) IsHugepage() bool {
	return b != BackingRegular
}

// Mapping is the result of Policy.Map.
type Mapping struct {
	Data    []byte
	Backing Backing
	// Requested is the hugepage size the caller asked for, 0 for none.
	Requested uint64
}

// FellBack reports whether a hugepage request was served by regular pages.
func (m Mapping) FellBack() bool {
	return m.Requested != 0 && m.Backing == BackingRegular
}

// SegmentHandle is an open, possibly mapped segment. The holder owns both
// the descriptor and the mapping; nothing is reference counted.
type SegmentHandle struct {
	FD      int
	Data    []byte
	Size    int
	Path    string
	Backing Backing
}

// InvalidHandle returns a handle with no descriptor and no mapping.
func InvalidHandle() SegmentHandle {
	return SegmentHandle{FD: -1}
}

// IsValid reports whether the handle has a descriptor and a non-empty mapping.
func (h SegmentHandle) IsValid() bool {
	return h.FD >= 0 && h.Data != nil && h.Size > 0
}
