// Package mem provides the base types for the kmem memory-management core:
// physical and virtual addresses, page-granularity alignment helpers, the
// boot-loader memory map, and the RAM arena that stands in for physical
// memory.
//
// # Simulation model
//
// The kernel this code was designed for runs on x86_64 hardware where
// physical memory is accessed through a "physical map" window in the kernel's
// virtual address space. Here that window is the RAM type: a page-aligned
// byte arena (mmap-backed on unix) indexed by PhysAddr. Every component that
// would touch physical memory through the window on real hardware touches it
// through RAM.Frame instead, so the algorithms - including the intrusive
// free-list trick of storing linkage inside free memory - are exercised
// exactly as they would be on the metal.
//
// # Addresses
//
// PhysAddr is a byte offset into the RAM arena. VirtAddr is an address in a
// simulated 4-level-paged virtual address space (see mem/paging). Both are
// 64-bit and page-granular where the contract says so; helpers align up and
// down to the 4 KiB page size.
//
// # Error taxonomy
//
// The three error classes shared across the allocator packages live here:
//
//   - ErrOutOfMemory: no physical frame, no buddy order, no fitting slot
//   - ErrNoVirtualArea: no sufficiently large free gap in an address space
//   - ErrInvalidRange: operation outside a VMA's bounds, or size overflow
//
// All allocation entry points return these as values; none of the packages
// panic on exhaustion. Panics are reserved for programmer misuse caught by
// debug assertions.
//
// # Related packages
//
//   - github.com/kwast-os/kmem/mem/pfa: physical frame allocator
//   - github.com/kwast-os/kmem/mem/paging: page tables and address spaces
//   - github.com/kwast-os/kmem/mem/heap: slab heap over the buddy tree
//   - github.com/kwast-os/kmem/mem/vmarea: free virtual range bookkeeping
package mem
