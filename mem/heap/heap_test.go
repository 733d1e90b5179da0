package heap

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kwast-os/kmem/internal/testutil"
	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/paging"
)

const heapBase = mem.VirtAddr(0xffff_9000_0000_0000)

func newTestHeap(t *testing.T, pages, maxLevel int) (*testutil.Machine, *Heap) {
	t.Helper()
	m := testutil.NewMachine(t, pages)
	space, err := paging.NewAddressSpace(m.RAM, m.Frames, paging.NopTLB{})
	require.NoError(t, err)
	return m, New(space, heapBase, maxLevel)
}

func Test_SizeToClass(t *testing.T) {
	cases := []struct {
		size  uint64
		align int
		class int
	}{
		{1, 1, 0},
		{32, 1, 0},
		{33, 1, 1},
		{100, 1, 2},
		{100, 256, 3}, // alignment dominates
		{8192, 1, 8},
		{8193, 1, -1},
		{100000, 1, -1},
	}
	for _, c := range cases {
		require.Equal(t, c.class, sizeToClass(c.size, c.align),
			"size=%d align=%d", c.size, c.align)
	}
}

func Test_BigOrder(t *testing.T) {
	require.Equal(t, 0, bigOrder(1))
	require.Equal(t, 0, bigOrder(pageSize))
	require.Equal(t, 1, bigOrder(pageSize+1))
	require.Equal(t, 2, bigOrder(3*pageSize))
	require.Equal(t, 3, bigOrder(8*pageSize))
	require.Equal(t, 4, bigOrder(9*pageSize))
}

func Test_AllocDistinctAndWritable(t *testing.T) {
	_, h := newTestHeap(t, 512, 8)

	seen := make(map[mem.VirtAddr]bool)
	for i := 0; i < 200; i++ {
		va, err := h.Alloc(64, 8)
		require.NoError(t, err)
		require.False(t, seen[va], "pointer %s returned twice", va)
		seen[va] = true

		// The slot is usable memory.
		h.write32(va, uint32(i))
	}
	for va := range seen {
		h.Free(va, 64, 8)
	}
}

func Test_SlabConservation(t *testing.T) {
	_, h := newTestHeap(t, 1024, 10)
	c := h.caches[sizeToClass(128, 8)]
	rng := rand.New(rand.NewSource(3))

	var live []mem.VirtAddr
	for i := 0; i < 3000; i++ {
		if len(live) == 0 || rng.Intn(3) > 0 {
			va, err := h.Alloc(128, 8)
			require.NoError(t, err)
			live = append(live, va)
		} else {
			j := rng.Intn(len(live))
			h.Free(live[j], 128, 8)
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		}

		// Conservation: free slots + live slots == provisioned slots.
		freeSlots := 0
		for _, s := range c.byBase {
			freeSlots += s.freeCount
		}
		require.Equal(t, len(c.byBase)*c.slotCount, freeSlots+len(live))
	}
}

func Test_FullSlabRefiledOnFree(t *testing.T) {
	_, h := newTestHeap(t, 512, 8)
	c := h.caches[sizeToClass(512, 8)]

	// Fill one slab completely: it must leave the partial list.
	var vas []mem.VirtAddr
	for i := 0; i < c.slotCount; i++ {
		va, err := h.Alloc(512, 8)
		require.NoError(t, err)
		vas = append(vas, va)
	}
	require.Nil(t, c.partial)
	require.Len(t, c.byBase, 1)

	// One free brings it back as the sole partial slab.
	h.Free(vas[0], 512, 8)
	require.NotNil(t, c.partial)
	require.Equal(t, 1, c.partial.freeCount)
}

func Test_IdleCacheBounded(t *testing.T) {
	m, h := newTestHeap(t, 1024, 10)
	c := h.caches[sizeToClass(64, 8)]
	baseline := m.Frames.FreeCount()

	// Fill three slabs worth of objects, then free everything.
	total := 3 * c.slotCount
	var vas []mem.VirtAddr
	for i := 0; i < total; i++ {
		va, err := h.Alloc(64, 8)
		require.NoError(t, err)
		vas = append(vas, va)
	}
	require.Len(t, c.byBase, 3)

	for _, va := range vas {
		h.Free(va, 64, 8)
	}

	// At most one idle slab is retained; the others went back to the
	// buddy tree and their frames to the allocator.
	require.Equal(t, 1, c.nFree)
	require.Len(t, c.byBase, 1)
	require.Equal(t, 2, h.Stats().SlabsReleased)
	require.Equal(t, baseline-m.Frames.FreeCount(), uint64(1)+3,
		"one slab page plus three page-table frames stay resident")
}

func Test_SlabColoringRotates(t *testing.T) {
	_, h := newTestHeap(t, 1024, 10)
	c := h.caches[sizeToClass(64, 8)]
	require.Equal(t, uint32(64), c.maxColor)

	// First allocation from each fresh slab reveals its color offset.
	var firstOffsets []uint32
	for slabN := 0; slabN < 3; slabN++ {
		for i := 0; i < c.slotCount; i++ {
			va, err := h.Alloc(64, 8)
			require.NoError(t, err)
			if i == 0 {
				firstOffsets = append(firstOffsets, uint32(va&mem.VirtAddr(c.slabBytes()-1)))
			}
		}
	}

	// The rotation steps by the class size and wraps back to color 0.
	require.NotEqual(t, firstOffsets[0], firstOffsets[1])
	require.Equal(t, firstOffsets[0], firstOffsets[2])
	for _, off := range firstOffsets {
		require.Zero(t, off%64, "colored slot offset %#x breaks class alignment", off)
	}
}

func Test_SlotsAlignedToClass(t *testing.T) {
	_, h := newTestHeap(t, 1024, 10)

	// The class is chosen from max(size, align), so a class-sized alignment
	// request must come back on a class-size boundary.
	for _, cs := range classSizes {
		for i := 0; i < 3; i++ {
			va, err := h.Alloc(uint64(cs), cs)
			require.NoError(t, err)
			require.Zero(t, uint64(va)%uint64(cs),
				"class %d returned misaligned pointer %s", cs, va)
		}
	}
}

func Test_BigAllocationAlignment(t *testing.T) {
	m, h := newTestHeap(t, 1024, 10)
	baseline := m.Frames.FreeCount()
	align := 16 * pageSize

	// Sub-page sizes with a multi-page alignment: the block order must come
	// from the alignment, not the size.
	va1, err := h.Alloc(100, align)
	require.NoError(t, err)
	va2, err := h.Alloc(100, align)
	require.NoError(t, err)
	require.NotEqual(t, va1, va2)
	require.Zero(t, uint64(va1)%uint64(align))
	require.Zero(t, uint64(va2)%uint64(align))

	h.Free(va1, 100, align)
	h.Free(va2, 100, align)
	require.Equal(t, baseline, m.Frames.FreeCount())

	// An alignment the region cannot provide is an error, not a misaligned
	// pointer.
	_, err = h.Alloc(100, 1024*pageSize)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
}

func Test_BigAllocationBypass(t *testing.T) {
	m, h := newTestHeap(t, 1024, 10)
	baseline := m.Frames.FreeCount()

	va, err := h.Alloc(3*pageSize+5, 8)
	require.NoError(t, err)
	require.True(t, va.IsPageAligned())
	require.Equal(t, 1, h.Stats().BigAllocs)

	// Rounded to the next power of two: 4 pages mapped.
	page, ok := h.space.Page(va + 3*pageSize)
	require.True(t, ok)
	page[0] = 0xcc

	h.Free(va, 3*pageSize+5, 8)
	require.Equal(t, 1, h.Stats().BigFrees)
	require.Equal(t, baseline, m.Frames.FreeCount())
}

func Test_BigAllocationTooLarge(t *testing.T) {
	_, h := newTestHeap(t, 256, 6) // 32-page region

	_, err := h.Alloc(64*pageSize, 8)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
}

func Test_ReallocSameClassReusesPointer(t *testing.T) {
	_, h := newTestHeap(t, 512, 8)

	va, err := h.Alloc(100, 8)
	require.NoError(t, err)

	// 100 and 120 both land in the 128 class.
	got, err := h.Realloc(va, 100, 120, 8)
	require.NoError(t, err)
	require.Equal(t, va, got)

	h.Free(got, 120, 8)
}

func Test_ReallocCopiesAcrossClasses(t *testing.T) {
	_, h := newTestHeap(t, 512, 8)

	va, err := h.Alloc(64, 8)
	require.NoError(t, err)
	h.write32(va, 0xdeadbeef)
	h.write32(va+60, 0x12345678)

	got, err := h.Realloc(va, 64, 4000, 8)
	require.NoError(t, err)
	require.NotEqual(t, va, got)
	require.Equal(t, uint32(0xdeadbeef), h.read32(got))
	require.Equal(t, uint32(0x12345678), h.read32(got+60))

	h.Free(got, 4000, 8)
}

func Test_ReallocBigSameOrder(t *testing.T) {
	_, h := newTestHeap(t, 1024, 10)

	va, err := h.Alloc(3*pageSize, 8)
	require.NoError(t, err)

	// 3 and 4 pages share the order-2 block.
	got, err := h.Realloc(va, 3*pageSize, 4*pageSize, 8)
	require.NoError(t, err)
	require.Equal(t, va, got)

	h.Free(got, 4*pageSize, 8)
}

func Test_AllocRejectsBadLayout(t *testing.T) {
	_, h := newTestHeap(t, 256, 8)

	_, err := h.Alloc(0, 8)
	require.ErrorIs(t, err, mem.ErrInvalidRange)
	_, err = h.Alloc(64, 3)
	require.ErrorIs(t, err, mem.ErrInvalidRange)
	_, err = h.Alloc(64, 0)
	require.ErrorIs(t, err, mem.ErrInvalidRange)
}

func Test_ExhaustionIsAnError(t *testing.T) {
	// Tiny machine: the heap runs out of frames, not virtual space.
	_, h := newTestHeap(t, 16, 10)

	var err error
	for i := 0; i < 1024; i++ {
		if _, err = h.Alloc(8192, 8); err != nil {
			break
		}
	}
	require.ErrorIs(t, err, mem.ErrOutOfMemory)
}

func Test_GlobalSingleton(t *testing.T) {
	// Get before Init, Init, Get, second Init - one test owns the global
	// state to keep ordering deterministic.
	require.Panics(t, func() { Get() })

	m := testutil.NewMachine(t, 256)
	space, err := paging.NewAddressSpace(m.RAM, m.Frames, paging.NopTLB{})
	require.NoError(t, err)

	Init(space, heapBase, 8)
	h := Get()
	require.NotNil(t, h)

	va, err := h.Alloc(64, 8)
	require.NoError(t, err)
	h.Free(va, 64, 8)

	require.Panics(t, func() { Init(space, heapBase, 8) })
}
