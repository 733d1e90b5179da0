// Package vmarea manages the free virtual address space of one protection
// domain and the lifecycle of the areas carved out of it.
//
// # Free-space bookkeeping
//
// An AVL tree keyed by interval start tracks the *free* ranges only;
// occupied ranges are the gaps between nodes. Every node carries the usual
// height plus an augmented maxLen - the largest interval length anywhere in
// its subtree - so a best-fit query can steer directly toward the smallest
// interval that still fits, without visiting the rest of the tree. Fits are
// carved from the high end of the chosen interval, which in the common case
// just shrinks a node in place; only an exact fit removes one.
//
// Returning an interval coalesces on both sides: a neighbor ending exactly
// at the returned start is merged in, then a neighbor starting exactly at
// the returned end. The node count is therefore bounded by the current
// fragmentation, not by the call history.
//
// # Area lifecycle
//
// A Vma is a reserved but unbacked range. It becomes a MappedVma (whole
// range backed eagerly) or a LazilyMappedVma (an allocated prefix is
// fault-backed on demand, growable with Expand - this is how stacks and
// process heaps avoid pre-committing frames). Destroy unmaps whatever was
// backed and returns the range to the allocator.
//
// # Concurrency
//
// One allocator exists per protection domain and is guarded by the domain's
// lock (see mem/space); allocators of different domains never contend.
package vmarea
