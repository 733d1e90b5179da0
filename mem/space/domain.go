package space

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/asid"
	"github.com/kwast-os/kmem/mem/paging"
	"github.com/kwast-os/kmem/mem/pfa"
	"github.com/kwast-os/kmem/mem/vmarea"
)

// Domain is one protection domain. All methods serialize through the
// domain's lock unless it is exclusively referenced (see package doc).
type Domain struct {
	mu   sync.Mutex
	refs atomic.Int32

	space *paging.AddressSpace
	vmas  *vmarea.Allocator
	asid  asid.Asid

	// Areas the domain owns, destroyed with it. Lazy areas are also the
	// page-fault dispatch targets.
	mapped []*vmarea.MappedVma
	lazy   []*vmarea.LazilyMappedVma
}

// New creates a domain whose free virtual space is the given window.
func New(ram *mem.RAM, frames *pfa.Allocator, tlb paging.TLB, start mem.VirtAddr, size uint64) (*Domain, error) {
	as, err := paging.NewAddressSpace(ram, frames, tlb)
	if err != nil {
		return nil, fmt.Errorf("space: creating address space: %w", err)
	}

	vmas := vmarea.NewAllocator()
	vmas.InsertRegion(start, size)

	d := &Domain{space: as, vmas: vmas, asid: asid.Invalid()}
	d.refs.Store(1)
	return d, nil
}

// Retain adds a reference. Only a context already holding a reference may
// call it; that is what keeps the count-of-1 fast path sound.
func (d *Domain) Retain() { d.refs.Add(1) }

// Release drops a reference and reports whether this was the last one.
// The last holder is responsible for calling Destroy.
func (d *Domain) Release() bool { return d.refs.Add(-1) == 0 }

// canAvoidLock reports whether the current context is provably the only
// one able to reach the domain.
func (d *Domain) canAvoidLock() bool { return d.refs.Load() == 1 }

func (d *Domain) lock() bool {
	if d.canAvoidLock() {
		return false
	}
	d.mu.Lock()
	return true
}

func (d *Domain) unlock(locked bool) {
	if locked {
		d.mu.Unlock()
	}
}

// AddressSpace exposes the underlying page tables.
func (d *Domain) AddressSpace() *paging.AddressSpace { return d.space }

// CreateMappedArea reserves and eagerly backs an area of the given size.
func (d *Domain) CreateMappedArea(size uint64, flags paging.Flags) (*vmarea.MappedVma, error) {
	locked := d.lock()
	defer d.unlock(locked)

	v, err := d.vmas.CreateVma(size)
	if err != nil {
		return nil, err
	}
	m, err := v.MapAll(d.space, flags)
	if err != nil {
		v.Destroy(d.vmas)
		return nil, err
	}
	d.mapped = append(d.mapped, m)
	return m, nil
}

// CreateLazyArea reserves an area of the given size whose first
// initialSize bytes are fault-backed on demand. Growable stacks and heaps
// are built on this.
func (d *Domain) CreateLazyArea(size, initialSize uint64, flags paging.Flags) (*vmarea.LazilyMappedVma, error) {
	locked := d.lock()
	defer d.unlock(locked)

	v, err := d.vmas.CreateVma(size)
	if err != nil {
		return nil, err
	}
	l, err := v.MapLazily(d.space, initialSize, flags)
	if err != nil {
		v.Destroy(d.vmas)
		return nil, err
	}
	d.lazy = append(d.lazy, l)
	return l, nil
}

// DestroyArea tears down an area created on this domain and returns its
// range to the free space.
func (d *Domain) DestroyArea(area any) {
	locked := d.lock()
	defer d.unlock(locked)

	switch a := area.(type) {
	case *vmarea.MappedVma:
		for i, m := range d.mapped {
			if m == a {
				d.mapped = append(d.mapped[:i], d.mapped[i+1:]...)
				a.Destroy(d.vmas)
				return
			}
		}
	case *vmarea.LazilyMappedVma:
		for i, l := range d.lazy {
			if l == a {
				d.lazy = append(d.lazy[:i], d.lazy[i+1:]...)
				a.Destroy(d.vmas)
				return
			}
		}
	}
	panic("space: DestroyArea of an area this domain does not own")
}

// PageFault is the interrupt layer's entry point. instructionPtr and
// isWrite travel with the fault for the caller's escalation report; the
// demand-paging decision needs only the address.
func (d *Domain) PageFault(faultAddr, instructionPtr mem.VirtAddr, isWrite bool) bool {
	locked := d.lock()
	defer d.unlock(locked)

	_ = instructionPtr
	_ = isWrite
	for _, l := range d.lazy {
		if l.Contains(faultAddr) {
			return l.PageFault(faultAddr)
		}
	}
	return false
}

// Activate returns the ASID to run the domain under. A tag from the
// current generation is still valid and kept; an outdated one is traded
// in, which reuses the same number without a TLB flush when the manager
// proves that is safe. Callers serialize activation around context
// switches.
func (d *Domain) Activate(mgr *asid.Manager) asid.Asid {
	if !mgr.IsValid(d.asid) {
		d.asid = mgr.Alloc(d.asid)
	}
	return d.asid
}

// Asid returns the domain's current ASID (possibly stale or Invalid).
func (d *Domain) Asid() asid.Asid { return d.asid }

// Destroy tears down every area the domain still owns, releases its ASID
// and frees the page tables. Must only be called after the last Release.
func (d *Domain) Destroy(mgr *asid.Manager) {
	if d.refs.Load() != 0 {
		panic("space: Destroy with live references")
	}

	for _, m := range d.mapped {
		m.Destroy(d.vmas)
	}
	d.mapped = nil
	for _, l := range d.lazy {
		l.Destroy(d.vmas)
	}
	d.lazy = nil

	if mgr != nil {
		mgr.Free(d.asid)
	}
	d.space.Destroy()
}
