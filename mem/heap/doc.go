// Package heap is the kernel's general-purpose dynamic allocator: a
// size-classed slab allocator whose backing pages come from a buddy tree
// over one fixed, pre-reserved virtual region.
//
// # Structure
//
// Requests up to 8 KiB are rounded to one of the size classes
// {32,64,128,256,512,1024,2048,4096,8192}; each class has a cache owning
// slabs of 2^order pages subdivided into equal slots. Larger requests
// bypass the caches and take a power-of-two page run straight from the
// buddy tree.
//
// A cache files its slabs in three states: partial (some slots free), free
// (all slots free) and full. Full slabs are unlinked from the lists; they
// are found again on dealloc by masking the pointer down to its slab-size
// boundary. A cache retains at most one idle free slab - the moment a
// second fully-free slab appears, the older one is unmapped and its pages
// go back to the buddy tree, bounding what an idle cache can hold on to.
//
// Each slab threads its free slots through the slots themselves (the same
// intrusive trick the frame allocator uses). Every slot sits on a
// class-size boundary, so a pointer satisfies the strongest alignment a
// request in its class can carry; successive slabs of a class start their
// first slot at a "color" offset rotating in class-size steps to spread
// cache-line pressure, in caches with enough slots to spare the room.
//
// # API shape
//
// Free and Realloc take the original size and alignment, mirroring an
// allocator that receives the layout from its language runtime. The size
// is what routes a pointer back to its class or big-allocation order.
//
// # Concurrency and the singleton
//
// One mutex guards the whole heap; slab operations are short and dominated
// by page-table work, so finer locking buys nothing here. The kernel-wide
// instance is installed once with Init and fetched with Get, which panics
// before Init - allocations before the heap exists are programming errors.
package heap
