package paging

import "github.com/kwast-os/kmem/mem"

// Flags are the page-table entry flag bits this layer uses.
type Flags uint64

const (
	// FlagPresent marks the entry as a live translation.
	FlagPresent Flags = 1 << 0

	// FlagWritable allows writes through this translation.
	FlagWritable Flags = 1 << 1

	// FlagHuge marks a 2 MiB mapping. The 4 KiB mapper rejects it; the flag
	// exists so a walk can refuse to descend into one.
	FlagHuge Flags = 1 << 7

	// FlagNX forbids instruction fetches through this translation.
	FlagNX Flags = 1 << 63

	// Cache types.
	FlagCacheWB    Flags = 0
	FlagCacheWT    Flags = 1 << 3
	FlagUncached   Flags = 1 << 4
	FlagCacheWC    Flags = 1 << 7
	FlagUncachable Flags = (1 << 3) | (1 << 4)
)

const (
	physAddrMask = 0x000ffffffffff000

	// The used count lives in ignored bits 52-60 of a table's entry 0.
	usedCountShift = 52
	usedCountMask  = uint64(0x1ff) << usedCountShift
)

// Entry is one 64-bit page-table entry.
type Entry uint64

// Flags returns the flag bits of the entry.
func (e Entry) Flags() Flags {
	return Flags(uint64(e) &^ (physAddrMask | usedCountMask))
}

// Present reports whether the entry holds a live translation.
func (e Entry) Present() bool {
	return e.Flags()&FlagPresent != 0
}

// PhysAddr returns the frame address of a present entry.
func (e Entry) PhysAddr() (mem.PhysAddr, bool) {
	if !e.Present() {
		return mem.PhysNull, false
	}
	return e.physAddrUnchecked(), true
}

func (e Entry) physAddrUnchecked() mem.PhysAddr {
	return mem.PhysAddr(uint64(e) & physAddrMask)
}

// withMapping returns the entry remapped to addr with the given flags,
// preserving the used-count bits.
func (e Entry) withMapping(addr mem.PhysAddr, flags Flags) Entry {
	return Entry(uint64(e)&usedCountMask | uint64(addr) | uint64(flags))
}

// cleared returns the entry with the mapping removed, used count kept.
func (e Entry) cleared() Entry {
	return Entry(uint64(e) & usedCountMask)
}

// usedCount reads the used-count field (meaningful on entry 0 only).
func (e Entry) usedCount() int {
	return int((uint64(e) & usedCountMask) >> usedCountShift)
}

// withUsedCount returns the entry with the used-count field replaced.
func (e Entry) withUsedCount(count int) Entry {
	return Entry(uint64(e)&^usedCountMask | uint64(count)<<usedCountShift)
}

// wxViolation reports whether the flag combination is simultaneously
// writable and executable.
func (f Flags) wxViolation() bool {
	return f&FlagWritable != 0 && f&FlagNX == 0
}
