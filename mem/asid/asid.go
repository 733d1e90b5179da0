package asid

import (
	"fmt"
	"math/bits"

	"github.com/kwast-os/kmem/mem/paging"
)

// Debug flag - set to true to enable free/alloc consistency checks
// (compile-time toggle).
const debugASID = false

const (
	// groups * 64 slots = 4096 ASID numbers.
	groups = 64
	slots  = groups * 64
)

// Asid is an address-space identifier: a hardware tag number qualified by
// the generation it was issued in. Numbers are only comparable within one
// generation.
type Asid struct {
	Generation uint32
	Number     uint16
}

// Invalid returns the never-valid ASID (generation 0 is never issued).
func Invalid() Asid { return Asid{} }

func (a Asid) String() string {
	return fmt.Sprintf("asid:%d.%d", a.Generation, a.Number)
}

// Manager allocates ASID numbers out of 64 groups of 64 slots each.
type Manager struct {
	// globalMask has bit g set while group g still has a free slot.
	globalMask uint64
	generation uint32
	// entries: 1 = free, 0 = used.
	entries [groups]uint64
	// fresh: 1 = never handed out in this generation.
	fresh [groups]uint64
	tlb   paging.TLB
}

// NewManager creates a manager starting at generation 1 with every number
// free and fresh. Invalidation requests go to tlb.
func NewManager(tlb paging.TLB) *Manager {
	m := &Manager{
		globalMask: ^uint64(0),
		generation: 1,
		tlb:        tlb,
	}
	for i := range m.entries {
		m.entries[i] = ^uint64(0)
		m.fresh[i] = ^uint64(0)
	}
	return m
}

// Generation returns the current generation.
func (m *Manager) Generation() uint32 { return m.generation }

// IsValid reports whether a is still usable for TLB-tag purposes.
func (m *Manager) IsValid(a Asid) bool {
	return a.Generation == m.generation
}

// Alloc assigns an ASID for an address space about to run. old is the ASID
// the space held last time (or Invalid). If old belongs to the immediately
// previous generation and its number was never reassigned since, the same
// number is returned without any TLB invalidation. Any other assignment
// invalidates the chosen tag first.
func (m *Manager) Alloc(old Asid) Asid {
	if m.globalMask == 0 {
		m.rollOver()
	}

	var group, slot uint
	if old.Generation == m.generation-1 && old.Generation > 0 &&
		m.fresh[old.Number>>6]&(1<<(old.Number&63)) != 0 {
		// The previous holder's translations are still the only ones under
		// this tag: reuse it as-is.
		group = uint(old.Number >> 6)
		slot = uint(old.Number & 63)
	} else {
		group = uint(bits.TrailingZeros64(m.globalMask))
		slot = uint(bits.TrailingZeros64(m.entries[group]))
	}

	m.entries[group] ^= 1 << slot
	if m.entries[group] == 0 {
		m.globalMask &^= 1 << group
	}

	a := Asid{
		Generation: m.generation,
		Number:     uint16(group<<6 | slot),
	}

	if m.fresh[group]&(1<<slot) == 0 {
		// Used at least once this generation by someone else: stale
		// translations may exist under this tag.
		m.tlb.InvalidateASID(a.Number)
	} else {
		m.fresh[group] ^= 1 << slot
	}

	return a
}

// Free returns an ASID's number to the pool. A stale-generation free is a
// silent no-op: the rollover that outdated it already freed the slot in
// bulk, so there is nothing left to release.
func (m *Manager) Free(a Asid) {
	if a.Generation != m.generation {
		return
	}

	group := uint(a.Number >> 6)
	slot := uint(a.Number & 63)

	if debugASID && m.entries[group]&(1<<slot) != 0 {
		panic(fmt.Sprintf("asid: double free of %s", a))
	}

	m.entries[group] ^= 1 << slot
	if m.entries[group] != 0 {
		m.globalMask |= 1 << group
	}
}

// rollOver starts a new generation with every number free and fresh,
// implicitly invalidating all outstanding ASIDs.
func (m *Manager) rollOver() {
	m.globalMask = ^uint64(0)
	for i := range m.entries {
		m.entries[i] = ^uint64(0)
		m.fresh[i] = ^uint64(0)
	}
	m.generation++
}
