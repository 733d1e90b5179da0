package mem

import "errors"

var (
	// ErrOutOfMemory indicates that no physical frame, buddy order or heap
	// slot could satisfy the request.
	ErrOutOfMemory = errors.New("mem: out of memory")

	// ErrNoVirtualArea indicates that an address space has no free virtual
	// gap large enough for the request.
	ErrNoVirtualArea = errors.New("mem: no free virtual memory area")

	// ErrInvalidRange indicates an operation outside a memory area's bounds,
	// or a size computation that would overflow.
	ErrInvalidRange = errors.New("mem: invalid range")
)
