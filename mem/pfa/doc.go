// Package pfa implements the physical frame allocator: a single intrusive
// free list threaded through the free frames themselves.
//
// # Design
//
// Instead of keeping an out-of-band stack of free frame addresses, each free
// frame stores the physical address of the next free frame in its own first
// eight bytes. This costs no extra memory and - crucially - no extra
// mappings: a frame being allocated must be mapped by its caller anyway to be
// initialized, and a frame being freed was necessarily mapped already. The
// allocator therefore only ever touches frames its callers were touching
// regardless.
//
// The list head ("top") is either the null sentinel or the next frame to hand
// out. Frame 0 is reserved at init so the sentinel can never collide with a
// real free frame.
//
// # Concurrency
//
// One global mutex protects the list. Hold time is a single pointer
// read/write through the frame window, so contention is not a concern at
// this layer.
package pfa
