//go:build !(darwin && arm64)

package layout

// CacheLine is the cache line size the metadata block is padded to.
const CacheLine = 64
