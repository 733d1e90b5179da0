package paging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kwast-os/kmem/internal/testutil"
	"github.com/kwast-os/kmem/mem"
)

const testVA = mem.VirtAddr(0x0000_7f80_4020_0000)

func newSpace(t *testing.T, pages int) (*testutil.Machine, *testutil.RecordingTLB, *AddressSpace) {
	t.Helper()
	m := testutil.NewMachine(t, pages)
	tlb := &testutil.RecordingTLB{}
	s, err := NewAddressSpace(m.RAM, m.Frames, tlb)
	require.NoError(t, err)
	return m, tlb, s
}

func Test_MapAndTranslate(t *testing.T) {
	m, _, s := newSpace(t, 64)

	pa, err := m.Frames.Alloc()
	require.NoError(t, err)
	require.NoError(t, s.MapSingle(testVA, pa, FlagWritable|FlagNX))

	got, ok := s.Translate(testVA)
	require.True(t, ok)
	require.Equal(t, pa, got)

	// A neighboring page is not mapped.
	require.False(t, s.IsMapped(testVA+mem.PageSize))

	// The page window reaches the mapped frame.
	page, ok := s.Page(testVA + 0x123)
	require.True(t, ok)
	page[0] = 0x42
	require.Equal(t, byte(0x42), m.RAM.Frame(pa)[0])
}

func Test_TableTeardownReturnsFrames(t *testing.T) {
	m, _, s := newSpace(t, 64)
	before := m.Frames.FreeCount()

	// One mapping forces three intermediate tables plus the leaf frame.
	pa, err := s.GetAndMapSingle(testVA, FlagWritable|FlagNX)
	require.NoError(t, err)
	require.NotEqual(t, mem.PhysNull, pa)
	require.Equal(t, before-4, m.Frames.FreeCount())

	// Unmapping the only page cascades: L1, L2 and L3 empty out and are
	// freed the moment their used counts reach zero.
	s.FreeAndUnmapSingle(testVA)
	require.Equal(t, before, m.Frames.FreeCount())
	require.False(t, s.IsMapped(testVA))

	s.Destroy()
}

func Test_UsedCountSharedTables(t *testing.T) {
	m, _, s := newSpace(t, 64)
	before := m.Frames.FreeCount()

	// Two pages in the same L1 table: tables are created once.
	va2 := testVA + mem.PageSize
	_, err := s.GetAndMapSingle(testVA, FlagWritable|FlagNX)
	require.NoError(t, err)
	_, err = s.GetAndMapSingle(va2, FlagWritable|FlagNX)
	require.NoError(t, err)
	require.Equal(t, before-5, m.Frames.FreeCount())

	// Removing one keeps the shared tables alive.
	s.FreeAndUnmapSingle(testVA)
	require.Equal(t, before-4, m.Frames.FreeCount())
	require.True(t, s.IsMapped(va2))

	s.FreeAndUnmapSingle(va2)
	require.Equal(t, before, m.Frames.FreeCount())
}

func Test_OverwriteInvalidatesTLB(t *testing.T) {
	m, tlb, s := newSpace(t, 64)

	pa1, err := m.Frames.Alloc()
	require.NoError(t, err)
	pa2, err := m.Frames.Alloc()
	require.NoError(t, err)

	require.NoError(t, s.MapSingle(testVA, pa1, FlagWritable|FlagNX))
	require.Empty(t, tlb.Pages, "mapping a non-present entry must not invalidate")

	require.NoError(t, s.MapSingle(testVA, pa2, FlagNX))
	require.Equal(t, []mem.VirtAddr{testVA}, tlb.Pages)

	got, ok := s.Translate(testVA)
	require.True(t, ok)
	require.Equal(t, pa2, got)
}

func Test_UnmapInvalidatesTLB(t *testing.T) {
	_, tlb, s := newSpace(t, 64)

	_, err := s.GetAndMapSingle(testVA, FlagNX)
	require.NoError(t, err)
	tlb.Reset()

	s.FreeAndUnmapSingle(testVA)
	require.Equal(t, []mem.VirtAddr{testVA}, tlb.Pages)

	// Unmapping an absent page is a no-op.
	tlb.Reset()
	s.UnmapSingle(testVA)
	require.Empty(t, tlb.Pages)
}

func Test_WXViolationPanics(t *testing.T) {
	m, _, s := newSpace(t, 64)

	pa, err := m.Frames.Alloc()
	require.NoError(t, err)

	require.Panics(t, func() {
		// Writable without NX is writable+executable.
		_ = s.MapSingle(testVA, pa, FlagWritable)
	})

	// Either one alone is fine.
	require.NoError(t, s.MapSingle(testVA, pa, FlagWritable|FlagNX))
	require.NoError(t, s.MapSingle(testVA+mem.PageSize, pa, 0))
}

func Test_MapRangeRollsBackOnExhaustion(t *testing.T) {
	// 16 pages: 1 reserved, 1 root; the range below cannot fully fit once
	// intermediate tables are paid for.
	m, _, s := newSpace(t, 16)
	before := m.Frames.FreeCount()

	err := s.MapRange(testVA, 32*mem.PageSize, FlagWritable|FlagNX)
	require.ErrorIs(t, err, mem.ErrOutOfMemory)

	// Rollback returned every frame, tables included.
	require.Equal(t, before, m.Frames.FreeCount())
}

func Test_MapRangeAndFreeRange(t *testing.T) {
	m, _, s := newSpace(t, 128)
	before := m.Frames.FreeCount()

	const pages = 8
	require.NoError(t, s.MapRange(testVA, pages*mem.PageSize, FlagWritable|FlagNX))
	for i := 0; i < pages; i++ {
		require.True(t, s.IsMapped(testVA+mem.VirtAddr(i)*mem.PageSize))
	}

	s.FreeAndUnmapRange(testVA, pages*mem.PageSize)
	require.Equal(t, before, m.Frames.FreeCount())

	s.Destroy()
	require.Equal(t, before+1, m.Frames.FreeCount())
}

func Test_MisusePanics(t *testing.T) {
	m, _, s := newSpace(t, 64)
	pa, err := m.Frames.Alloc()
	require.NoError(t, err)

	require.Panics(t, func() { _ = s.MapSingle(testVA+1, pa, FlagNX) })
	require.Panics(t, func() { _ = s.MapSingle(testVA, pa+1, FlagNX) })
	require.Panics(t, func() { s.UnmapSingle(testVA + 1) })
}
