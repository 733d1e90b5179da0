// Package paging implements 4-level page tables and the address-space
// mapper on top of them.
//
// # Tables and entries
//
// A table is exactly one physical frame holding 512 little-endian 64-bit
// entries. An entry encodes presence, writability, no-execute and cache-type
// bits plus the frame address, in the standard x86_64 layout. Bits 52-60 are
// ignored by the hardware; each table stores a 9-bit "used count" there, in
// its entry 0, counting how many of its own entries are present. The count is
// what lets teardown free a table the moment it empties, without scanning:
// address-space destruction stays proportional to the tables actually
// touched.
//
// # W^X
//
// A leaf mapping may never be writable and executable at once. Every mapping
// operation checks the flag combination and treats a violation as a
// programmer error (panic), not a recoverable condition.
//
// # TLB
//
// Overwriting or clearing a present entry must invalidate the translation
// for that virtual address; modifying the entry alone is not guaranteed to
// flush stale TLB content. The hardware interface is the TLB type, so tests
// substitute a recorder and the simulation a no-op.
//
// # Locking
//
// The mapper itself does not lock. Address spaces are externally serialized
// by their owning protection domain (see mem/space), which elides its lock
// entirely while it is exclusively referenced.
package paging
