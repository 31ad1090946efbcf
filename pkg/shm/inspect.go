package shm

import (
	"fmt"
	"io"
)

// DebugBufferDetail prints the files and metadata block of the named buffer
// to w. It maps nothing but the first cache line of the header segment.
func DebugBufferDetail(w io.Writer, p Policy, name string) error {
	for _, n := range []string{HeaderName(name), DataName(name)} {
		if _, err := fmt.Fprintln(w, p.Info(n)); err != nil {
			return err
		}
	}
	m, err := ReadMetadata(p, name)
	if err != nil {
		_, _ = fmt.Fprintf(w, "name:%s metadata: %v\n", name, err)
		return err
	}
	_, err = fmt.Fprintf(w,
		"name:%s version:%d generation:%d owner:%d producer:%d consumers:%d event:%d buffer:%d mask:%#x header:%d producer_off:%d consumer0_off:%d sections:%d/%d\n",
		name, m.Version, m.Generation, m.OwnerPID, m.ProducerPID, m.MaxConsumers,
		m.EventSize, m.BufferSize, m.IndexMask, m.HeaderSize,
		m.ProducerOffset, m.Consumer0Offset, m.ProducerSectionSize(), m.ConsumerSectionSize())
	return err
}
