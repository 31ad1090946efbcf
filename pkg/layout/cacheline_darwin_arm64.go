//go:build darwin && arm64

package layout

// CacheLine is the cache line size the metadata block is padded to.
// Apple Silicon uses 128 byte lines.
const CacheLine = 128
