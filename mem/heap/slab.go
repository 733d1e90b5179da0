package heap

import (
	"encoding/binary"

	"github.com/kwast-os/kmem/mem"
)

const (
	pageSize = mem.PageSize

	// headerReserve is the minimum number of bytes kept out of slot use at
	// the start of every slab, so a slot offset of 0 can mean "none" and no
	// live pointer ever sits on a slab boundary. Caches round it up to their
	// object size to keep every slot on a class-size boundary.
	headerReserve = 64
)

// slab is the header of one backing-page run subdivided into equal slots.
// The header lives here; the free-slot linkage lives inside the slots
// themselves, as 32-bit "offset of next free slot" words (0 = none).
//
// Invariant: freeCount == 0 exactly when nextOff == 0; every real slot
// offset is >= headerReserve.
type slab struct {
	base  mem.VirtAddr
	slots int

	freeCount int
	nextOff   uint32

	// partial-list linkage (doubly, for O(1) unlink when a slab in the
	// middle becomes free); the free list reuses next only.
	next *slab
	prev *slab
}

// initSlots pre-links the free list across all slots. first is the offset
// of slot 0 (the cache's header plus the slab's color).
func (s *slab) initSlots(h *Heap, objSize int, first uint32) {
	s.freeCount = s.slots
	for i := 0; i < s.slots; i++ {
		off := first + uint32(i*objSize)
		next := uint32(0)
		if i+1 < s.slots {
			next = first + uint32((i+1)*objSize)
		}
		h.write32(s.base+mem.VirtAddr(off), next)
	}
	s.nextOff = first
}

// takeSlot pops the first free slot. The slab must not be full.
func (s *slab) takeSlot(h *Heap) mem.VirtAddr {
	if debugHeap && (s.freeCount == 0 || s.nextOff == 0) {
		panic("heap: takeSlot on full slab")
	}

	off := s.nextOff
	s.nextOff = h.read32(s.base + mem.VirtAddr(off))
	s.freeCount--

	if debugHeap && (s.freeCount == 0) != (s.nextOff == 0) {
		panic("heap: slab full-marker invariant broken")
	}
	return s.base + mem.VirtAddr(off)
}

// putSlot pushes a slot back onto the slab's free list.
func (s *slab) putSlot(h *Heap, va mem.VirtAddr) {
	off := uint32(va - s.base)
	if debugHeap && off < headerReserve {
		panic("heap: freeing pointer inside slab header")
	}

	h.write32(va, s.nextOff)
	s.nextOff = off
	s.freeCount++
}

// write32 stores a little-endian u32 at a heap virtual address. Link words
// are at least 8-byte aligned, so they never straddle a page.
func (h *Heap) write32(va mem.VirtAddr, v uint32) {
	page, ok := h.space.Page(va)
	if !ok {
		panic("heap: touching unmapped heap address")
	}
	binary.LittleEndian.PutUint32(page[va&mem.PageMask:], v)
}

// read32 loads a little-endian u32 from a heap virtual address.
func (h *Heap) read32(va mem.VirtAddr) uint32 {
	page, ok := h.space.Page(va)
	if !ok {
		panic("heap: touching unmapped heap address")
	}
	return binary.LittleEndian.Uint32(page[va&mem.PageMask:])
}
