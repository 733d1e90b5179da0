package mem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_AddrAlignment(t *testing.T) {
	require.Equal(t, PhysAddr(0x1000), PhysAddr(0x1001).AlignDown())
	require.Equal(t, PhysAddr(0x2000), PhysAddr(0x1001).AlignUp())
	require.Equal(t, PhysAddr(0x1000), PhysAddr(0x1000).AlignUp())
	require.True(t, PhysAddr(0x3000).IsPageAligned())
	require.False(t, PhysAddr(0x3008).IsPageAligned())

	require.Equal(t, VirtAddr(0x7000), VirtAddr(0x7fff).AlignDown())
	require.Equal(t, VirtAddr(0x8000), VirtAddr(0x7fff).AlignUp())
}

func Test_AddrTableIndices(t *testing.T) {
	// 0x0000_7f80_4020_1000 decomposes into indices 255, 1, 1, 1.
	v := VirtAddr(255)<<39 | VirtAddr(1)<<30 | VirtAddr(1)<<21 | VirtAddr(1)<<12
	require.Equal(t, 255, v.L4Index())
	require.Equal(t, 1, v.L3Index())
	require.Equal(t, 1, v.L2Index())
	require.Equal(t, 1, v.L1Index())

	require.Equal(t, 0, VirtAddr(0).L4Index())
	require.Equal(t, 511, (VirtAddr(511) << 12).L1Index())
}

func Test_BootMapFrames(t *testing.T) {
	m := &BootMap{Regions: []BootRegion{
		{Start: 0x0, End: 0x5000},
		{Start: 0x8001, End: 0xa800}, // misaligned both ends
		{Start: 0xb000, End: 0xb000}, // empty
	}}

	var frames []PhysAddr
	m.Frames(0x2000, func(pa PhysAddr) { frames = append(frames, pa) })

	// Region 1 contributes 0x2000-0x4000 (below reservedEnd discarded),
	// region 2 aligns inward to [0x9000, 0xa000).
	require.Equal(t, []PhysAddr{0x2000, 0x3000, 0x4000, 0x9000}, frames)
}

func Test_RAMFrameWindow(t *testing.T) {
	r, err := NewRAM(4 * PageSize)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(4*PageSize), r.Size())
	require.True(t, r.Contains(3*PageSize))
	require.False(t, r.Contains(4*PageSize))

	f := r.Frame(PageSize)
	require.Len(t, f, PageSize)
	f[0] = 0xaa
	require.Equal(t, byte(0xaa), r.Frame(PageSize)[0])

	// Frames are distinct windows.
	require.Equal(t, byte(0), r.Frame(2*PageSize)[0])

	r.ZeroFrame(PageSize)
	require.Equal(t, byte(0), r.Frame(PageSize)[0])

	require.Panics(t, func() { r.Frame(PageSize + 8) })
	require.Panics(t, func() { r.Frame(4 * PageSize) })

	_, err = NewRAM(PageSize + 1)
	require.Error(t, err)
}
