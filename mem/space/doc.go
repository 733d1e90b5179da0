// Package space implements protection domains: the pairing of a page-table
// root with its own virtual-area allocator and ASID slot that represents
// one isolated memory context.
//
// # Lock elision
//
// Nearly every process is single threaded, so nearly every domain is
// referenced by exactly one execution context. The domain keeps an atomic
// reference count and skips its mutex entirely while the count is 1.
//
// The soundness argument is a standing invariant, not an assumption: only
// a context already holding a reference can create another one (Retain),
// so while the count is 1 the single holder is the only context that can
// possibly reach the domain - there is nobody to race with. The moment a
// second reference exists, every operation takes the mutex.
//
// # Page faults
//
// The interrupt layer calls PageFault with the faulting address. A fault
// inside a lazily mapped area's allocated prefix is satisfied by backing
// the page on demand; everything else reports unhandled and the caller
// escalates (kernel panic or thread termination - not this package's
// decision).
package space
