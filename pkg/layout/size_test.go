package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLog2RoundTrip(t *testing.T) {
	for n := uint8(0); n < 32; n++ {
		assert.Equal(t, n, SizeToLog2(Log2ToSize(n)), "n=%d", n)
	}
}

func TestIsPowerOf2(t *testing.T) {
	assert.False(t, IsPowerOf2(0))
	assert.True(t, IsPowerOf2(1))
	assert.True(t, IsPowerOf2(4096))
	assert.True(t, IsPowerOf2(1<<31))
	assert.False(t, IsPowerOf2(3))
	assert.False(t, IsPowerOf2(1000))
	assert.False(t, IsPowerOf2(1<<31+1))
}

func TestSizeToLog2NonPowerOfTwo(t *testing.T) {
	// ceil(log2(x)) for inputs outside the precondition
	assert.Equal(t, uint8(10), SizeToLog2(1000))
	assert.Equal(t, uint8(0), SizeToLog2(0))
}

func TestHeaderSegmentSizeAligned(t *testing.T) {
	sections := []Sections{
		{},
		{Producer: 64, Consumer: 64},
		{Producer: 4096, Consumer: 192},
		{Producer: 1000, Consumer: 3000},
	}
	for _, s := range sections {
		for c := 0; c <= 255; c++ {
			raw := RawHeaderSize(uint8(c), s)
			size := HeaderSegmentSize(uint8(c), s)
			assert.Zero(t, size%uint64(PageSize))
			assert.GreaterOrEqual(t, size, raw)
			assert.Less(t, size-raw, uint64(PageSize))
		}
	}
}

func TestHeaderSegmentSizeDefault(t *testing.T) {
	if CacheLine != 64 {
		t.Skip("scenario assumes 64 byte cache lines")
	}
	assert.Equal(t, uint64(704), RawHeaderSize(4, Sections{Producer: 128, Consumer: 128}))
	assert.Equal(t, uint64(704), RawHeaderSize(4, DefaultSections()))
	assert.Equal(t, uint64(4096), HeaderSegmentSize(4, Sections{}))
}

func TestHeaderSegmentSizeNoWrap(t *testing.T) {
	s := Sections{Producer: 128, Consumer: 1 << 25}
	raw := RawHeaderSize(255, s)
	assert.Equal(t, uint64(CacheLine)+128+255<<25, raw)
	size := HeaderSegmentSize(255, s)
	assert.Greater(t, size, MaxHeaderSize)
	assert.GreaterOrEqual(t, size, raw)

	// rounding up near the uint32 limit
	s = Sections{Producer: math.MaxUint32 &^ (CacheLine - 1), Consumer: CacheLine}
	assert.Greater(t, HeaderSegmentSize(1, s), uint64(math.MaxUint32))

	assert.Zero(t, MaxHeaderSize%uint64(PageSize))
	assert.LessOrEqual(t, MaxHeaderSize, uint64(math.MaxUint32))
}

func TestDataSegmentSize(t *testing.T) {
	for _, size := range []uint32{1, 4096, 1 << 16, 1 << 20, 1 << 30} {
		assert.Equal(t, uint64(size), DataSegmentSize(size, 0))
	}
	assert.Equal(t, uint64(2_097_152), DataSegmentSize(1_048_576, HugePage2MB))
	assert.Equal(t, HugePage2MB, DataSegmentSize(hugePage2MB32(), HugePage2MB))
	assert.Equal(t, 2*HugePage2MB, DataSegmentSize(hugePage2MB32()+1, HugePage2MB))
	assert.Equal(t, HugePage1GB, DataSegmentSize(4096, HugePage1GB))
	assert.Equal(t, 2*HugePage1GB, DataSegmentSize(1<<31, HugePage1GB))

	for _, h := range []uint64{HugePage2MB, HugePage1GB} {
		for _, size := range []uint32{1, 1 << 12, 1 << 21, 3 << 20, 1 << 31} {
			got := DataSegmentSize(size, h)
			assert.Zero(t, got%h)
			assert.GreaterOrEqual(t, got, uint64(size))
			assert.Less(t, got-uint64(size), h)
		}
	}
}

func hugePage2MB32() uint32 { return uint32(HugePage2MB) }

func TestDefaultOffsets(t *testing.T) {
	assert.Equal(t, uint32(CacheLine), DefaultProducerOffset())
	assert.Equal(t, uint32(CacheLine)+DefaultProducerSectionSize, DefaultConsumer0Offset(0))
	assert.Equal(t, uint32(CacheLine)+512, DefaultConsumer0Offset(512))
}
