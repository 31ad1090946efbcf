// Package shm provides named, file-backed shared memory buffers for an SPMC
// ring: a header segment holding the layout.Metadata block and the
// producer/consumer control sections, and a data segment holding events.
//
// Policy is the raw, per-platform file capability. Create and Open add the
// coordination a live system needs: an advisory lock file so only one
// process ever resizes the segments, an owner pid and a generation counter
// in the metadata block, and attach-with-retry for readers that start
// before the writer.
//
// Example usage:
//
//	cfg := shm.DefaultConfig()
//	cfg.Name = "quotes"
//	cfg.BufferSize = 1 << 20
//	buf, err := shm.Create(ctx, cfg)
//	// ...
//	defer buf.Close()
//
// A reader in another process attaches with shm.Open(ctx, cfg) using the
// same Name and Policy.
package shm
