// Copyright 2025 Takhin Data, Inc.

package mempool

// Package mempool provides memory pooling for byte buffers to reduce GC pressure.
//
// It includes:
// - BufferPool: Pools byte slices in various size buckets (512B to 16MB)
//
// Records and record batches are not pooled.
//
// Usage example:
//
//	// Get a buffer
//	buf := mempool.GetBuffer(4096)
//	defer mempool.PutBuffer(buf)
