// Package layout defines the on-disk layout of an hftshm buffer: the fixed
// metadata block at the start of the header segment and the size arithmetic
// for the header and data segments.
//
// Everything in this package is pure. It never touches the filesystem; the
// segment policy in pkg/shm creates and maps the files, and this package
// interprets the mapped bytes.
//
// The metadata block is encoded little-endian at fixed offsets:
//
//	0x00 magic(8) 0x08 version(1) 0x09 max_consumers(1) 0x0A event_size(2)
//	0x0C producer_pid(4) 0x10 buffer_size(4) 0x14 producer_offset(4)
//	0x18 consumer_0_offset(4) 0x1C header_size(4) 0x20 index_mask(4)
//	0x24 event_size_log2(1) 0x25 buffer_size_log2(1) 0x26 header_size_log2(1)
//	0x28 producer_section_size(4) 0x2C consumer_section_size(4)
//	0x30 generation(4) 0x34 owner_pid(4), zero padding to CacheLine.
package layout
