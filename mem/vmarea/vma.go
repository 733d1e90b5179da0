package vmarea

import (
	"fmt"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/paging"
)

// Vma is a reserved, unbacked virtual range. Ownership of the range moves
// from the allocator to the Vma at carve-out and back on Destroy.
type Vma struct {
	start mem.VirtAddr
	size  uint64
}

// CreateVma reserves an area of the given size (rounded up to pages).
func (a *Allocator) CreateVma(size uint64) (*Vma, error) {
	if size == 0 {
		return nil, mem.ErrInvalidRange
	}
	aligned := (size + mem.PageMask) &^ uint64(mem.PageMask)
	if aligned < size {
		return nil, mem.ErrInvalidRange
	}

	start, err := a.AllocRegion(aligned)
	if err != nil {
		return nil, err
	}
	return &Vma{start: start, size: aligned}, nil
}

// Start returns the first address of the area.
func (v *Vma) Start() mem.VirtAddr { return v.start }

// Size returns the reserved size in bytes.
func (v *Vma) Size() uint64 { return v.size }

// Contains reports whether va falls inside the reserved range.
func (v *Vma) Contains(va mem.VirtAddr) bool {
	return va >= v.start && va < v.start+mem.VirtAddr(v.size)
}

// Destroy returns the still-unbacked reservation to the allocator. The Vma
// must not be used afterwards.
func (v *Vma) Destroy(a *Allocator) {
	a.FreeRegion(v.start, v.size)
	v.size = 0
}

// MapAll eagerly backs the whole range and converts the Vma to a MappedVma.
// On failure the Vma is untouched and still owns its range.
func (v *Vma) MapAll(space *paging.AddressSpace, flags paging.Flags) (*MappedVma, error) {
	if err := space.MapRange(v.start, v.size, flags); err != nil {
		return nil, fmt.Errorf("vmarea: backing area at %s: %w", v.start, err)
	}
	m := &MappedVma{vma: *v, space: space}
	v.size = 0
	return m, nil
}

// MapLazily converts the Vma to a LazilyMappedVma whose first initialSize
// bytes are allowed (fault-backed on demand); the rest of the reservation
// stays inert until Expand. Nothing is backed up front.
func (v *Vma) MapLazily(space *paging.AddressSpace, initialSize uint64, flags paging.Flags) (*LazilyMappedVma, error) {
	if initialSize > v.size || initialSize%mem.PageSize != 0 {
		return nil, mem.ErrInvalidRange
	}
	l := &LazilyMappedVma{
		vma:       *v,
		space:     space,
		allocated: initialSize,
		flags:     flags,
	}
	v.size = 0
	return l, nil
}

// MappedVma is a fully backed area.
type MappedVma struct {
	vma   Vma
	space *paging.AddressSpace
}

// Start returns the first address of the area.
func (m *MappedVma) Start() mem.VirtAddr { return m.vma.start }

// Size returns the backed size in bytes.
func (m *MappedVma) Size() uint64 { return m.vma.size }

// Contains reports whether va falls inside the area.
func (m *MappedVma) Contains(va mem.VirtAddr) bool { return m.vma.Contains(va) }

// Destroy unmaps the area, frees its frames and returns the range to the
// allocator.
func (m *MappedVma) Destroy(a *Allocator) {
	m.space.FreeAndUnmapRange(m.vma.start, m.vma.size)
	m.vma.Destroy(a)
}

// LazilyMappedVma is an area backed incrementally: faults inside the
// allocated prefix map-and-zero one page at a time. Growable stacks and
// process heaps are built on this, so frames are only committed for pages
// actually touched.
type LazilyMappedVma struct {
	vma       Vma
	space     *paging.AddressSpace
	allocated uint64
	flags     paging.Flags
}

// Start returns the first address of the reservation.
func (l *LazilyMappedVma) Start() mem.VirtAddr { return l.vma.start }

// Size returns the reserved size in bytes.
func (l *LazilyMappedVma) Size() uint64 { return l.vma.size }

// AllocatedSize returns the size of the fault-backed prefix.
func (l *LazilyMappedVma) AllocatedSize() uint64 { return l.allocated }

// Contains reports whether va falls inside the reservation.
func (l *LazilyMappedVma) Contains(va mem.VirtAddr) bool { return l.vma.Contains(va) }

// Expand grows the allocated prefix by extra bytes (page multiple).
// The reservation itself never grows: exceeding it is ErrInvalidRange.
func (l *LazilyMappedVma) Expand(extra uint64) error {
	if extra%mem.PageSize != 0 {
		return mem.ErrInvalidRange
	}
	newSize := l.allocated + extra
	if newSize < l.allocated || newSize > l.vma.size {
		return mem.ErrInvalidRange
	}
	l.allocated = newSize
	return nil
}

// PageFault handles a fault at va. A fault on an unbacked page inside the
// allocated prefix is satisfied by mapping a fresh zeroed frame; anything
// else is not ours and reports unhandled.
func (l *LazilyMappedVma) PageFault(va mem.VirtAddr) bool {
	page := va.AlignDown()
	if page < l.vma.start || page >= l.vma.start+mem.VirtAddr(l.allocated) {
		return false
	}
	if l.space.IsMapped(page) {
		// Backed already: a protection violation, not a demand-paging miss.
		return false
	}

	if _, err := l.space.GetAndMapSingle(page, l.flags); err != nil {
		// No frame left. The faulting thread gets the kill/OOM treatment
		// from the caller; nothing to do here.
		return false
	}

	// The frame still carries free-list residue; zero before handing the
	// page to whoever faulted.
	f, _ := l.space.Page(page)
	for i := range f {
		f[i] = 0
	}
	return true
}

// Destroy unmaps whatever the fault handler backed, frees those frames and
// returns the whole reservation to the allocator.
func (l *LazilyMappedVma) Destroy(a *Allocator) {
	for off := uint64(0); off < l.allocated; off += mem.PageSize {
		va := l.vma.start + mem.VirtAddr(off)
		if l.space.IsMapped(va) {
			l.space.FreeAndUnmapSingle(va)
		}
	}
	l.vma.Destroy(a)
}
