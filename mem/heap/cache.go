package heap

import (
	"fmt"

	"github.com/kwast-os/kmem/mem"
)

// maxFreeSlabs is the number of fully free slabs a cache may retain; one
// more triggers release of the oldest back to the buddy tree.
const maxFreeSlabs = 1

// minSlotsForColoring is the slot count above which a cache gives up one
// slot's worth of space to the coloring rotation. Smaller caches keep the
// capacity.
const minSlotsForColoring = 8

// cache is the slab cache of one size class.
type cache struct {
	objSize   int
	slabOrder int // slab spans 2^slabOrder pages
	slotCount int

	// header is the offset of slot 0: headerReserve rounded up to the
	// object size, so every slot sits on a class-size boundary and
	// satisfies the strongest alignment a request in this class can carry.
	header uint32

	// Coloring: the first slot of successive slabs rotates through
	// [0, maxColor] in objSize steps.
	maxColor  uint32
	nextColor uint32

	partial *slab // head of the partial list (doubly linked)
	free    *slab // head of the free list (singly linked, newest first)
	nFree   int

	// byBase finds the owning slab from a masked pointer; full slabs are
	// reachable only through it.
	byBase map[mem.VirtAddr]*slab
}

// slabOrderForSize picks how many pages one slab of a class spans: enough
// that a slab holds several objects even for the big classes.
func slabOrderForSize(objSize int) int {
	switch {
	case objSize <= 512:
		return 0
	case objSize <= 2048:
		return 1
	case objSize <= 4096:
		return 2
	default:
		return 3
	}
}

func newCache(objSize int) *cache {
	order := slabOrderForSize(objSize)
	slabBytes := pageSize << order

	header := headerReserve
	if objSize > header {
		header = objSize
	}

	slots := (slabBytes - header) / objSize
	color := 0
	if slots >= minSlotsForColoring {
		slots--
		color = objSize
	}

	return &cache{
		objSize:   objSize,
		slabOrder: order,
		slotCount: slots,
		header:    uint32(header),
		maxColor:  uint32(color),
		byBase:    make(map[mem.VirtAddr]*slab),
	}
}

func (c *cache) slabBytes() uint64 {
	return uint64(pageSize) << c.slabOrder
}

// alloc hands out one object slot, provisioning a new slab if both lists
// are empty.
func (c *cache) alloc(h *Heap) (mem.VirtAddr, error) {
	// (1) Head of the partial list is guaranteed to have a free slot.
	if s := c.partial; s != nil {
		va := s.takeSlot(h)
		if s.freeCount == 0 {
			c.unlinkPartial(s)
		}
		return va, nil
	}

	// (2) A fully free slab becomes the new sole partial slab.
	if s := c.free; s != nil {
		c.free = s.next
		s.next = nil
		c.nFree--

		va := s.takeSlot(h)
		if s.freeCount > 0 {
			c.pushPartial(s)
		}
		return va, nil
	}

	// (3) Provision a fresh slab from the buddy tree.
	s, err := c.grow(h)
	if err != nil {
		return 0, err
	}
	va := s.takeSlot(h)
	if s.freeCount > 0 {
		c.pushPartial(s)
	}
	return va, nil
}

// dealloc returns an object slot and re-files its slab.
func (c *cache) dealloc(h *Heap, va mem.VirtAddr) {
	base := va &^ mem.VirtAddr(c.slabBytes()-1)
	s := c.byBase[base]
	if s == nil {
		panic(fmt.Sprintf("heap: free of %s which no slab of class %d owns", va, c.objSize))
	}

	wasFull := s.nextOff == 0
	s.putSlot(h, va)

	switch {
	case wasFull:
		c.pushPartial(s)
	case s.freeCount == c.slotCount:
		// Partial slab just became fully free.
		c.unlinkPartial(s)
		s.next = c.free
		c.free = s
		c.nFree++
		if c.nFree > maxFreeSlabs {
			c.releaseOldestFree(h)
		}
	}
}

// grow maps a fresh slab out of the buddy-managed region.
func (c *cache) grow(h *Heap) (*slab, error) {
	offset, err := h.tree.Alloc(c.slabOrder)
	if err != nil {
		return nil, err
	}

	base := h.base + mem.VirtAddr(offset)*pageSize
	if err := h.space.MapRange(base, c.slabBytes(), h.flags); err != nil {
		h.tree.Dealloc(c.slabOrder, offset)
		return nil, err
	}

	color := c.nextColor
	c.nextColor += uint32(c.objSize)
	if c.nextColor > c.maxColor {
		c.nextColor = 0
	}

	s := &slab{base: base, slots: c.slotCount}
	s.initSlots(h, c.objSize, c.header+color)
	c.byBase[base] = s
	h.stats.SlabsCreated++
	return s, nil
}

// releaseOldestFree unmaps the tail of the free list and returns its pages
// to the buddy tree.
func (c *cache) releaseOldestFree(h *Heap) {
	// Newest free slabs are prepended, so the oldest is the tail.
	var prev *slab
	s := c.free
	for s.next != nil {
		prev = s
		s = s.next
	}
	if prev == nil {
		c.free = nil
	} else {
		prev.next = nil
	}
	c.nFree--

	delete(c.byBase, s.base)
	h.space.FreeAndUnmapRange(s.base, c.slabBytes())
	h.tree.Dealloc(c.slabOrder, int((s.base-h.base)/pageSize))
	h.stats.SlabsReleased++
}

func (c *cache) pushPartial(s *slab) {
	s.prev = nil
	s.next = c.partial
	if c.partial != nil {
		c.partial.prev = s
	}
	c.partial = s
}

func (c *cache) unlinkPartial(s *slab) {
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		c.partial = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.next = nil
	s.prev = nil
}
