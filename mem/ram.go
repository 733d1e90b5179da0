package mem

import "fmt"

// RAM is the simulated physical memory: a fixed, page-aligned byte arena.
// It plays the role of the kernel's physical-map window - components read and
// write frame contents through Frame rather than holding raw pointers.
//
// A RAM is created once at "boot" and never resized. On unix platforms the
// arena is an anonymous mmap so large machines don't pay for their RAM until
// pages are touched; elsewhere it is a plain byte slice.
type RAM struct {
	data []byte
	size uint64
}

// NewRAM creates an arena of the given size, which must be a non-zero
// multiple of the page size.
func NewRAM(size uint64) (*RAM, error) {
	if size == 0 || size&PageMask != 0 {
		return nil, fmt.Errorf("mem: RAM size %#x not a multiple of the page size", size)
	}

	data, err := mapArena(size)
	if err != nil {
		return nil, fmt.Errorf("mem: failed to create RAM arena: %w", err)
	}

	return &RAM{data: data, size: size}, nil
}

// Close releases the arena. The RAM must not be used afterwards.
func (r *RAM) Close() error {
	err := unmapArena(r.data)
	r.data = nil
	r.size = 0
	return err
}

// Size returns the arena size in bytes.
func (r *RAM) Size() uint64 { return r.size }

// Contains reports whether pa names a frame inside the arena.
func (r *RAM) Contains(pa PhysAddr) bool {
	return uint64(pa) < r.size
}

// Frame returns the 4 KiB window of the frame containing pa. The window stays
// valid for the lifetime of the RAM. pa must be page-aligned and in bounds;
// violations are programmer errors and panic.
func (r *RAM) Frame(pa PhysAddr) []byte {
	if !pa.IsPageAligned() || uint64(pa)+PageSize > r.size {
		panic(fmt.Sprintf("mem: bad frame address %s (arena size %#x)", pa, r.size))
	}
	return r.data[pa : uint64(pa)+PageSize : uint64(pa)+PageSize]
}

// ZeroFrame clears the frame containing pa.
func (r *RAM) ZeroFrame(pa PhysAddr) {
	f := r.Frame(pa)
	for i := range f {
		f[i] = 0
	}
}
