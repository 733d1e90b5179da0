package paging

import "github.com/kwast-os/kmem/mem"

// TLB is the hardware translation-cache boundary. The real kernel issues
// invlpg/invpcid here; the simulation plugs in a no-op, tests a recorder.
type TLB interface {
	// InvalidatePage flushes the translation for one virtual address in the
	// current address space.
	InvalidatePage(va mem.VirtAddr)

	// InvalidateASID flushes every translation tagged with the given ASID
	// number.
	InvalidateASID(number uint16)
}

// NopTLB discards all invalidations.
type NopTLB struct{}

func (NopTLB) InvalidatePage(mem.VirtAddr) {}

func (NopTLB) InvalidateASID(uint16) {}
