package vmarea

import (
	"fmt"

	"github.com/kwast-os/kmem/mem"
)

// Allocator hands out virtual memory areas from the free ranges of one
// address space. Not self-locking; the owning domain serializes access.
type Allocator struct {
	tree intervalTree
}

// NewAllocator creates an allocator with no free space. Seed it with
// InsertRegion before carving areas.
func NewAllocator() *Allocator {
	return &Allocator{}
}

// InsertRegion adds a page-aligned range to the free space. Used at domain
// setup to declare the usable windows of the address space.
func (a *Allocator) InsertRegion(start mem.VirtAddr, size uint64) {
	checkRegion(start, size)
	a.tree.insert(uint64(start), size)
}

// AllocRegion carves a page-aligned best-fit range out of the free space.
func (a *Allocator) AllocRegion(size uint64) (mem.VirtAddr, error) {
	if size == 0 || size%mem.PageSize != 0 {
		panic(fmt.Sprintf("vmarea: bad region size %#x", size))
	}
	start, ok := a.tree.findLen(size)
	if !ok {
		return 0, mem.ErrNoVirtualArea
	}
	return mem.VirtAddr(start), nil
}

// FreeRegion returns a range to the free space, coalescing with adjacent
// free ranges on both sides.
func (a *Allocator) FreeRegion(start mem.VirtAddr, size uint64) {
	checkRegion(start, size)
	a.tree.returnInterval(uint64(start), size)
}

// FreeCount returns the number of distinct free ranges. A measure of
// fragmentation; used by stats.
func (a *Allocator) FreeCount() int {
	return a.tree.nodeCount()
}

// LargestFree returns the size of the largest free range.
func (a *Allocator) LargestFree() uint64 {
	return maxLen(a.tree.root)
}

func checkRegion(start mem.VirtAddr, size uint64) {
	if !start.IsPageAligned() || size == 0 || size%mem.PageSize != 0 {
		panic(fmt.Sprintf("vmarea: bad region %s+%#x", start, size))
	}
}
