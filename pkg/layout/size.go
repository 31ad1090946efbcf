package layout

import "math"

const (
	// PageSize is the alignment of the header segment.
	PageSize     uint32 = 4096
	PageSizeLog2 uint8  = 12

	HugePage2MB uint64 = 2 << 20
	HugePage1GB uint64 = 1 << 30

	DefaultProducerSectionSize uint32 = 2 * CacheLine
	DefaultConsumerSectionSize uint32 = 2 * CacheLine
)

// IsPowerOf2 reports whether x is a non-zero power of two.
func IsPowerOf2(x uint32) bool {
	return x != 0 && x&(x-1) == 0
}

// SizeToLog2 returns log2(x). x must be a power of two; for any other value
// the result is the smallest n with 1<<n >= x.
func SizeToLog2(x uint32) uint8 {
	var n uint8
	for n < 32 && uint64(1)<<n < uint64(x) {
		n++
	}
	return n
}

// Log2ToSize returns 1<<n.
func Log2ToSize(n uint8) uint32 {
	return 1 << n
}

// Sections holds the sizes of the producer and per-consumer control
// sections of the header segment. A zero field selects the default.
type Sections struct {
	Producer uint32
	Consumer uint32
}

// DefaultSections returns the section sizes used when none are given.
func DefaultSections() Sections {
	return Sections{Producer: DefaultProducerSectionSize, Consumer: DefaultConsumerSectionSize}
}

func (s Sections) withDefaults() Sections {
	if s.Producer == 0 {
		s.Producer = DefaultProducerSectionSize
	}
	if s.Consumer == 0 {
		s.Consumer = DefaultConsumerSectionSize
	}
	return s
}

// MaxHeaderSize is the largest header segment the uint32 metadata fields
// can describe.
const MaxHeaderSize uint64 = math.MaxUint32 &^ uint64(PageSize-1)

// RawHeaderSize is the header size before page alignment: the metadata
// block, the producer section and maxConsumers consumer sections. It is
// computed in 64 bits so oversized sections never wrap.
func RawHeaderSize(maxConsumers uint8, s Sections) uint64 {
	s = s.withDefaults()
	return CacheLine + uint64(s.Producer) + uint64(maxConsumers)*uint64(s.Consumer)
}

// HeaderSegmentSize is RawHeaderSize rounded up to a multiple of PageSize.
// Layouts larger than MaxHeaderSize cannot be stored in a metadata block.
func HeaderSegmentSize(maxConsumers uint8, s Sections) uint64 {
	raw := RawHeaderSize(maxConsumers, s)
	return (raw + uint64(PageSize) - 1) / uint64(PageSize) * uint64(PageSize)
}

// DataSegmentSize returns bufferSize unchanged when hugepageSize is zero,
// otherwise the smallest multiple of hugepageSize that holds bufferSize.
func DataSegmentSize(bufferSize uint32, hugepageSize uint64) uint64 {
	if hugepageSize == 0 {
		return uint64(bufferSize)
	}
	return (uint64(bufferSize) + hugepageSize - 1) / hugepageSize * hugepageSize
}

// DefaultProducerOffset places the producer section right after the metadata block.
func DefaultProducerOffset() uint32 {
	return CacheLine
}

// DefaultConsumer0Offset places the first consumer section right after a
// producer section of the given size (0 selects the default).
func DefaultConsumer0Offset(producerSectionSize uint32) uint32 {
	if producerSectionSize == 0 {
		producerSectionSize = DefaultProducerSectionSize
	}
	return CacheLine + producerSectionSize
}
