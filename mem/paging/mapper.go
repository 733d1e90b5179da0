package paging

import (
	"fmt"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/pfa"
)

// Debug flag - set to true to enable paging invariant checks (compile-time
// toggle).
const debugPaging = false

// AddressSpace is one 4-level page-table tree rooted in a single frame.
//
// The mapper does not lock; callers serialize access (see mem/space for the
// exclusive-ownership fast path).
type AddressSpace struct {
	ram    *mem.RAM
	frames *pfa.Allocator
	tlb    TLB
	root   mem.PhysAddr
}

// NewAddressSpace allocates and zeroes a root table.
func NewAddressSpace(ram *mem.RAM, frames *pfa.Allocator, tlb TLB) (*AddressSpace, error) {
	root, err := frames.Alloc()
	if err != nil {
		return nil, fmt.Errorf("paging: allocating root table: %w", err)
	}
	ram.ZeroFrame(root)

	return &AddressSpace{ram: ram, frames: frames, tlb: tlb, root: root}, nil
}

// Root returns the physical address of the level-4 table.
func (s *AddressSpace) Root() mem.PhysAddr { return s.root }

// nextTable descends one level through a present entry.
func (s *AddressSpace) nextTable(t Table, index int) (Table, bool) {
	e := t.Entry(index)
	if !e.Present() {
		return Table{}, false
	}
	if debugPaging && e.Flags()&FlagHuge != 0 {
		panic("paging: walk hit a huge mapping")
	}
	return tableAt(s.ram, e.physAddrUnchecked()), true
}

// nextTableMayCreate descends one level, backing the child table with a
// fresh zeroed frame if the entry is not present. A new child starts with a
// zero used count and bumps the parent's.
func (s *AddressSpace) nextTableMayCreate(t Table, index int) (Table, error) {
	e := t.Entry(index)
	if e.Present() {
		if debugPaging && e.Flags()&FlagHuge != 0 {
			panic("paging: walk hit a huge mapping")
		}
		return tableAt(s.ram, e.physAddrUnchecked()), nil
	}

	pa, err := s.frames.Alloc()
	if err != nil {
		return Table{}, err
	}
	s.ram.ZeroFrame(pa)

	// Not present before, so no invalidation needed here. Intermediate
	// entries are writable; execute/write policy is enforced on the leaf.
	t.SetEntry(index, e.withMapping(pa, FlagPresent|FlagWritable))
	t.increaseUsedCount()

	return tableAt(s.ram, pa), nil
}

// ensureL1 walks to (creating as needed) the level-1 table covering va.
func (s *AddressSpace) ensureL1(va mem.VirtAddr) (Table, error) {
	l4 := tableAt(s.ram, s.root)
	l3, err := s.nextTableMayCreate(l4, va.L4Index())
	if err != nil {
		return Table{}, err
	}
	l2, err := s.nextTableMayCreate(l3, va.L3Index())
	if err != nil {
		return Table{}, err
	}
	return s.nextTableMayCreate(l2, va.L2Index())
}

// Translate returns the frame backing va, if mapped.
func (s *AddressSpace) Translate(va mem.VirtAddr) (mem.PhysAddr, bool) {
	t := tableAt(s.ram, s.root)
	for _, index := range []int{va.L4Index(), va.L3Index(), va.L2Index()} {
		next, ok := s.nextTable(t, index)
		if !ok {
			return mem.PhysNull, false
		}
		t = next
	}
	return t.Entry(va.L1Index()).PhysAddr()
}

// IsMapped reports whether va has a live translation.
func (s *AddressSpace) IsMapped(va mem.VirtAddr) bool {
	_, ok := s.Translate(va)
	return ok
}

// Page returns the byte window of the frame mapped at va's page. This is the
// simulation's stand-in for dereferencing a mapped virtual address.
func (s *AddressSpace) Page(va mem.VirtAddr) ([]byte, bool) {
	pa, ok := s.Translate(va.AlignDown())
	if !ok {
		return nil, false
	}
	return s.ram.Frame(pa), true
}

// MapSingle installs a translation va -> pa. FlagPresent is implied.
// Overwriting a present entry invalidates the stale translation, per the
// architecture's optional-invalidation rules.
func (s *AddressSpace) MapSingle(va mem.VirtAddr, pa mem.PhysAddr, flags Flags) error {
	if !va.IsPageAligned() || !pa.IsPageAligned() {
		panic(fmt.Sprintf("paging: misaligned mapping %s -> %s", va, pa))
	}
	flags |= FlagPresent
	if flags.wxViolation() {
		panic(fmt.Sprintf("paging: W^X violation mapping %s", va))
	}

	l1, err := s.ensureL1(va)
	if err != nil {
		return err
	}

	e := l1.Entry(va.L1Index())
	wasPresent := e.Present()
	l1.SetEntry(va.L1Index(), e.withMapping(pa, flags))
	if wasPresent {
		s.tlb.InvalidatePage(va)
	} else {
		l1.increaseUsedCount()
	}
	return nil
}

// GetAndMapSingle backs va with a fresh frame from the frame allocator and
// returns it. The frame contents are whatever the allocator left there;
// callers that need zeroed memory zero it through Page.
func (s *AddressSpace) GetAndMapSingle(va mem.VirtAddr, flags Flags) (mem.PhysAddr, error) {
	pa, err := s.frames.Alloc()
	if err != nil {
		return mem.PhysNull, err
	}
	if err := s.MapSingle(va, pa, flags); err != nil {
		s.frames.Free(pa)
		return mem.PhysNull, err
	}
	return pa, nil
}

// UnmapSingle removes the translation for va, if any. The backing frame is
// not released.
func (s *AddressSpace) UnmapSingle(va mem.VirtAddr) {
	s.unmapSingle(va, false)
}

// FreeAndUnmapSingle removes the translation for va and returns the backing
// frame to the frame allocator.
func (s *AddressSpace) FreeAndUnmapSingle(va mem.VirtAddr) {
	s.unmapSingle(va, true)
}

func (s *AddressSpace) unmapSingle(va mem.VirtAddr, freeFrame bool) {
	if !va.IsPageAligned() {
		panic(fmt.Sprintf("paging: unmapping misaligned address %s", va))
	}

	// Remember the walked path so empty tables can be freed bottom-up.
	var (
		tables  [4]Table
		physs   [4]mem.PhysAddr
		indices = [4]int{va.L4Index(), va.L3Index(), va.L2Index(), va.L1Index()}
	)

	tables[0] = tableAt(s.ram, s.root)
	physs[0] = s.root
	for lvl := 0; lvl < 3; lvl++ {
		e := tables[lvl].Entry(indices[lvl])
		if !e.Present() {
			return
		}
		physs[lvl+1] = e.physAddrUnchecked()
		tables[lvl+1] = tableAt(s.ram, physs[lvl+1])
	}

	l1 := tables[3]
	e := l1.Entry(indices[3])
	if !e.Present() {
		return
	}

	l1.SetEntry(indices[3], e.cleared())
	l1.decreaseUsedCount()
	s.tlb.InvalidatePage(va)
	if freeFrame {
		s.frames.Free(e.physAddrUnchecked())
	}

	// Free any table that just became empty and detach it from its parent.
	// The root is never freed.
	for lvl := 3; lvl >= 1; lvl-- {
		if tables[lvl].UsedCount() != 0 {
			break
		}
		parent := tables[lvl-1]
		parent.SetEntry(indices[lvl-1], parent.Entry(indices[lvl-1]).cleared())
		parent.decreaseUsedCount()
		s.frames.Free(physs[lvl])
	}
}

// MapRange eagerly backs [va, va+size) with fresh frames. On failure the
// partially mapped prefix is rolled back.
func (s *AddressSpace) MapRange(va mem.VirtAddr, size uint64, flags Flags) error {
	if !va.IsPageAligned() || size%mem.PageSize != 0 {
		panic(fmt.Sprintf("paging: misaligned range %s+%#x", va, size))
	}

	for off := uint64(0); off < size; off += mem.PageSize {
		if _, err := s.GetAndMapSingle(va+mem.VirtAddr(off), flags); err != nil {
			s.FreeAndUnmapRange(va, off)
			return err
		}
	}
	return nil
}

// UnmapRange removes the translations of [va, va+size) without releasing
// the backing frames.
func (s *AddressSpace) UnmapRange(va mem.VirtAddr, size uint64) {
	for off := uint64(0); off < size; off += mem.PageSize {
		s.UnmapSingle(va + mem.VirtAddr(off))
	}
}

// FreeAndUnmapRange removes the translations of [va, va+size) and returns
// the backing frames to the frame allocator.
func (s *AddressSpace) FreeAndUnmapRange(va mem.VirtAddr, size uint64) {
	for off := uint64(0); off < size; off += mem.PageSize {
		s.FreeAndUnmapSingle(va + mem.VirtAddr(off))
	}
}

// Destroy releases the root table. All mappings must have been unmapped
// first; the unmap cascade has then already freed every lower-level table.
func (s *AddressSpace) Destroy() {
	if debugPaging && tableAt(s.ram, s.root).UsedCount() != 0 {
		panic("paging: destroying address space with live mappings")
	}
	s.frames.Free(s.root)
	s.root = mem.PhysNull
}
