package pfa

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kwast-os/kmem/mem"
)

func newTestAllocator(t *testing.T, pages int, reservedEnd mem.PhysAddr) (*mem.RAM, *Allocator) {
	t.Helper()

	ram, err := mem.NewRAM(uint64(pages) * mem.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ram.Close() })

	bm := &mem.BootMap{Regions: []mem.BootRegion{
		{Start: 0, End: mem.PhysAddr(pages) * mem.PageSize},
	}}
	return ram, Init(ram, bm, reservedEnd)
}

func Test_InitReservesLowMemory(t *testing.T) {
	_, a := newTestAllocator(t, 16, 4*mem.PageSize)

	// 16 pages minus 4 reserved.
	require.Equal(t, uint64(12), a.FreeCount())

	for i := 0; i < 12; i++ {
		pa, err := a.Alloc()
		require.NoError(t, err)
		require.GreaterOrEqual(t, pa, mem.PhysAddr(4*mem.PageSize))
	}
}

func Test_AllocDistinctFrames(t *testing.T) {
	_, a := newTestAllocator(t, 32, mem.PageSize)

	total := a.FreeCount()
	seen := make(map[mem.PhysAddr]bool)
	for i := 0; i < 10; i++ {
		pa, err := a.Alloc()
		require.NoError(t, err)
		require.True(t, pa.IsPageAligned())
		require.False(t, seen[pa], "frame %s handed out twice", pa)
		seen[pa] = true
	}

	// Exactly n frames missing from the list.
	require.Equal(t, total-10, a.FreeCount())
}

func Test_Exhaustion(t *testing.T) {
	_, a := newTestAllocator(t, 4, mem.PageSize)

	require.Equal(t, uint64(3), a.FreeCount())
	for i := 0; i < 3; i++ {
		_, err := a.Alloc()
		require.NoError(t, err)
	}

	_, err := a.Alloc()
	require.ErrorIs(t, err, mem.ErrOutOfMemory)

	// Exhaustion is not sticky: a free makes the next alloc succeed.
	a.Free(2 * mem.PageSize)
	pa, err := a.Alloc()
	require.NoError(t, err)
	require.Equal(t, mem.PhysAddr(2*mem.PageSize), pa)
}

func Test_FreeRethreadsFrame(t *testing.T) {
	ram, a := newTestAllocator(t, 8, mem.PageSize)

	pa, err := a.Alloc()
	require.NoError(t, err)

	// Caller scribbles over the frame, as real users do.
	f := ram.Frame(pa)
	for i := range f {
		f[i] = 0xff
	}

	a.Free(pa)

	// Freed frame is the new top and comes back first.
	got, err := a.Alloc()
	require.NoError(t, err)
	require.Equal(t, pa, got)
}

func Test_MisalignedBootRegions(t *testing.T) {
	ram, err := mem.NewRAM(8 * mem.PageSize)
	require.NoError(t, err)
	defer ram.Close()

	// The loader reports sloppy edges; the allocator must align inward.
	bm := &mem.BootMap{Regions: []mem.BootRegion{
		{Start: 0x1010, End: 0x4ff0},
		{Start: 0x6000, End: 0x8000},
	}}
	a := Init(ram, bm, mem.PageSize)

	// First region yields frames 2 and 3, second yields 6 and 7.
	require.Equal(t, uint64(4), a.FreeCount())

	var frames []mem.PhysAddr
	for {
		pa, err := a.Alloc()
		if err != nil {
			break
		}
		frames = append(frames, pa)
	}
	require.ElementsMatch(t,
		[]mem.PhysAddr{0x2000, 0x3000, 0x6000, 0x7000}, frames)
}

func Test_FreeMisalignedPanics(t *testing.T) {
	_, a := newTestAllocator(t, 4, mem.PageSize)
	require.Panics(t, func() { a.Free(mem.PhysAddr(0x1008)) })
}
