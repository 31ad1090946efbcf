package layout

import (
	"encoding/binary"
)

const (
	// Magic is "HFTSHM\x02\x00" read as a little-endian uint64.
	Magic uint64 = 0x00024D4853544648
	// Version 2 keeps header and data in separate segments.
	Version uint8 = 2

	// MetadataSize is the size of the metadata block.
	MetadataSize = CacheLine
	// MetadataFixedSize is the number of bytes used by fields; the rest is padding.
	MetadataFixedSize = 0x38
)

// Field offsets inside the metadata block.
const (
	offMagic           = 0x00
	offVersion         = 0x08
	offMaxConsumers    = 0x09
	offEventSize       = 0x0A
	offProducerPID     = 0x0C
	offBufferSize      = 0x10
	offProducerOffset  = 0x14
	offConsumer0Offset = 0x18
	offHeaderSize      = 0x1C
	offIndexMask       = 0x20
	offEventSizeLog2   = 0x24
	offBufferSizeLog2  = 0x25
	offHeaderSizeLog2  = 0x26
	offProducerSection = 0x28
	offConsumerSection = 0x2C
	offGeneration      = 0x30
	offOwnerPID        = 0x34
)

var le = binary.LittleEndian

// Params are the inputs of InitMetadata.
type Params struct {
	MaxConsumers    uint8
	EventSize       uint16 // 0 for variable-size events
	BufferSize      uint32 // must be a power of two
	ProducerOffset  uint32
	Consumer0Offset uint32
	HeaderSize      uint32

	// Section sizes are persisted so readers do not have to guess them.
	// Zero records "unknown" and readers fall back to the default layout.
	ProducerSectionSize uint32
	ConsumerSectionSize uint32

	Generation uint32
	OwnerPID   uint32
}

// NewParams returns Params for the standard layout: metadata, producer
// section, then maxConsumers consumer sections, page aligned.
// The header size is truncated when the layout exceeds MaxHeaderSize;
// callers check HeaderSegmentSize first.
func NewParams(maxConsumers uint8, eventSize uint16, bufferSize uint32, s Sections) Params {
	s = s.withDefaults()
	return Params{
		MaxConsumers:        maxConsumers,
		EventSize:           eventSize,
		BufferSize:          bufferSize,
		ProducerOffset:      DefaultProducerOffset(),
		Consumer0Offset:     DefaultConsumer0Offset(s.Producer),
		HeaderSize:          uint32(HeaderSegmentSize(maxConsumers, s)),
		ProducerSectionSize: s.Producer,
		ConsumerSectionSize: s.Consumer,
	}
}

// InitMetadata writes a metadata block at the start of region. The magic is
// written last so a concurrent reader never validates a partial block.
func InitMetadata(region []byte, p Params) error {
	if len(region) < MetadataSize {
		return ErrRegionTooSmall
	}
	if !IsPowerOf2(p.BufferSize) {
		return ErrNotPowerOfTwo
	}
	b := region[:MetadataSize]
	clear(b)

	b[offVersion] = Version
	b[offMaxConsumers] = p.MaxConsumers
	le.PutUint16(b[offEventSize:], p.EventSize)
	le.PutUint32(b[offProducerPID:], 0)
	le.PutUint32(b[offBufferSize:], p.BufferSize)
	le.PutUint32(b[offProducerOffset:], p.ProducerOffset)
	le.PutUint32(b[offConsumer0Offset:], p.Consumer0Offset)
	le.PutUint32(b[offHeaderSize:], p.HeaderSize)
	le.PutUint32(b[offIndexMask:], p.BufferSize-1)
	if p.EventSize != 0 {
		b[offEventSizeLog2] = SizeToLog2(uint32(p.EventSize))
	}
	b[offBufferSizeLog2] = SizeToLog2(p.BufferSize)
	b[offHeaderSizeLog2] = SizeToLog2(p.HeaderSize)
	le.PutUint32(b[offProducerSection:], p.ProducerSectionSize)
	le.PutUint32(b[offConsumerSection:], p.ConsumerSectionSize)
	le.PutUint32(b[offGeneration:], p.Generation)
	le.PutUint32(b[offOwnerPID:], p.OwnerPID)

	le.PutUint64(b[offMagic:], Magic)
	return nil
}

// ValidateMetadata reports whether region starts with a block carrying the
// expected magic and version. It does not check size consistency; see
// Metadata.ValidateSizes.
func ValidateMetadata(region []byte) bool {
	return CheckMetadata(region) == nil
}

// CheckMetadata is ValidateMetadata with the reason for rejection.
func CheckMetadata(region []byte) error {
	if len(region) < MetadataSize {
		return ErrRegionTooSmall
	}
	if le.Uint64(region[offMagic:]) != Magic {
		return ErrBadMagic
	}
	if region[offVersion] != Version {
		return ErrVersionMismatch
	}
	return nil
}

// Header is a view of a metadata block inside a mapped header segment.
// Reads and writes go straight to the underlying memory.
type Header []byte

// NewHeader returns a view over the first MetadataSize bytes of region.
func NewHeader(region []byte) (Header, error) {
	if len(region) < MetadataSize {
		return nil, ErrRegionTooSmall
	}
	return Header(region[:MetadataSize:MetadataSize]), nil
}

func (h Header) Magic() uint64           { return le.Uint64(h[offMagic:]) }
func (h Header) Version() uint8          { return h[offVersion] }
func (h Header) MaxConsumers() uint8     { return h[offMaxConsumers] }
func (h Header) EventSize() uint16       { return le.Uint16(h[offEventSize:]) }
func (h Header) ProducerPID() uint32     { return le.Uint32(h[offProducerPID:]) }
func (h Header) BufferSize() uint32      { return le.Uint32(h[offBufferSize:]) }
func (h Header) ProducerOffset() uint32  { return le.Uint32(h[offProducerOffset:]) }
func (h Header) Consumer0Offset() uint32 { return le.Uint32(h[offConsumer0Offset:]) }
func (h Header) HeaderSize() uint32      { return le.Uint32(h[offHeaderSize:]) }
func (h Header) IndexMask() uint32       { return le.Uint32(h[offIndexMask:]) }
func (h Header) EventSizeLog2() uint8    { return h[offEventSizeLog2] }
func (h Header) BufferSizeLog2() uint8   { return h[offBufferSizeLog2] }
func (h Header) HeaderSizeLog2() uint8   { return h[offHeaderSizeLog2] }
func (h Header) Generation() uint32      { return le.Uint32(h[offGeneration:]) }
func (h Header) OwnerPID() uint32        { return le.Uint32(h[offOwnerPID:]) }

// SetProducerPID records the attached producer. 0 means detached.
// This is the only field expected to change after initialisation.
func (h Header) SetProducerPID(pid uint32) {
	le.PutUint32(h[offProducerPID:], pid)
}

// Metadata returns a decoded copy of the block.
func (h Header) Metadata() Metadata {
	return Metadata{
		Magic:           h.Magic(),
		Version:         h.Version(),
		MaxConsumers:    h.MaxConsumers(),
		EventSize:       h.EventSize(),
		ProducerPID:     h.ProducerPID(),
		BufferSize:      h.BufferSize(),
		ProducerOffset:  h.ProducerOffset(),
		Consumer0Offset: h.Consumer0Offset(),
		HeaderSize:      h.HeaderSize(),
		IndexMask:       h.IndexMask(),
		EventSizeLog2:   h.EventSizeLog2(),
		BufferSizeLog2:  h.BufferSizeLog2(),
		HeaderSizeLog2:  h.HeaderSizeLog2(),
		ProducerSection: le.Uint32(h[offProducerSection:]),
		ConsumerSection: le.Uint32(h[offConsumerSection:]),
		Generation:      h.Generation(),
		OwnerPID:        h.OwnerPID(),
	}
}

// Metadata is a decoded metadata block.
type Metadata struct {
	Magic           uint64
	Version         uint8
	MaxConsumers    uint8
	EventSize       uint16
	ProducerPID     uint32
	BufferSize      uint32
	ProducerOffset  uint32
	Consumer0Offset uint32
	HeaderSize      uint32
	IndexMask       uint32
	EventSizeLog2   uint8
	BufferSizeLog2  uint8
	HeaderSizeLog2  uint8
	ProducerSection uint32
	ConsumerSection uint32
	Generation      uint32
	OwnerPID        uint32
}

// ValidateSizes checks that the buffer size is a power of two and the index
// mask matches it.
func (m Metadata) ValidateSizes() bool {
	return IsPowerOf2(m.BufferSize) && m.IndexMask == m.BufferSize-1
}

// ProducerSectionSize returns the persisted producer section size, or the
// distance between the producer and first consumer offsets for blocks
// written without one.
func (m Metadata) ProducerSectionSize() uint32 {
	if m.ProducerSection != 0 {
		return m.ProducerSection
	}
	return m.Consumer0Offset - m.ProducerOffset
}

// ConsumerSectionSize returns the persisted consumer section size. Blocks
// written without one are assumed to use the default section sizes.
func (m Metadata) ConsumerSectionSize() uint32 {
	if m.ConsumerSection != 0 {
		return m.ConsumerSection
	}
	if m.MaxConsumers == 0 {
		return 0
	}
	rawEnd := RawHeaderSize(m.MaxConsumers, DefaultSections())
	if rawEnd < uint64(m.Consumer0Offset) {
		return 0
	}
	return uint32((rawEnd - uint64(m.Consumer0Offset)) / uint64(m.MaxConsumers))
}

// ConsumerOffset returns the offset of consumer n's section in the header segment.
func (m Metadata) ConsumerOffset(n uint8) uint32 {
	return m.Consumer0Offset + uint32(n)*m.ConsumerSectionSize()
}

// EventOffset returns index*event_size using the cached shift.
func (m Metadata) EventOffset(index uint32) uint32 {
	return index << m.EventSizeLog2
}

// BufferIndex maps a sequence number onto a slot.
func (m Metadata) BufferIndex(seq uint64) uint32 {
	return uint32(seq) & m.IndexMask
}
