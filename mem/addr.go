package mem

import "fmt"

const (
	// PageSize is the only page granularity this layer deals in.
	PageSize = 0x1000

	// PageMask masks the offset-within-page bits of an address.
	PageMask = PageSize - 1

	// EntriesPerTable is the number of entries in one page-table level.
	EntriesPerTable = 512
)

// PhysAddr is a physical address: a byte offset into the RAM arena.
type PhysAddr uint64

// VirtAddr is a virtual address in a simulated 4-level-paged address space.
type VirtAddr uint64

// PhysNull is the sentinel "no frame" physical address. Frame 0 is always
// inside the boot-reserved region, so no allocatable frame ever has it.
const PhysNull PhysAddr = 0

// AlignDown rounds p down to a page boundary.
func (p PhysAddr) AlignDown() PhysAddr {
	return p &^ PageMask
}

// AlignUp rounds p up to a page boundary.
func (p PhysAddr) AlignUp() PhysAddr {
	return (p + PageMask) &^ PageMask
}

// IsPageAligned reports whether p sits on a page boundary.
func (p PhysAddr) IsPageAligned() bool {
	return p&PageMask == 0
}

func (p PhysAddr) String() string {
	return fmt.Sprintf("phys:%#x", uint64(p))
}

// AlignDown rounds v down to a page boundary.
func (v VirtAddr) AlignDown() VirtAddr {
	return v &^ PageMask
}

// AlignUp rounds v up to a page boundary.
func (v VirtAddr) AlignUp() VirtAddr {
	return (v + PageMask) &^ PageMask
}

// IsPageAligned reports whether v sits on a page boundary.
func (v VirtAddr) IsPageAligned() bool {
	return v&PageMask == 0
}

func (v VirtAddr) String() string {
	return fmt.Sprintf("virt:%#x", uint64(v))
}

// L4Index returns the level-4 table index of v.
func (v VirtAddr) L4Index() int { return int(v>>39) & 0x1ff }

// L3Index returns the level-3 table index of v.
func (v VirtAddr) L3Index() int { return int(v>>30) & 0x1ff }

// L2Index returns the level-2 table index of v.
func (v VirtAddr) L2Index() int { return int(v>>21) & 0x1ff }

// L1Index returns the level-1 table index of v.
func (v VirtAddr) L1Index() int { return int(v>>12) & 0x1ff }
