// Package testutil provides shared fixtures for the allocator tests: a
// small simulated machine and a TLB that records invalidations.
package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/pfa"
)

// Machine is a booted simulation: a RAM arena with a frame allocator over
// all of it except the first page.
type Machine struct {
	RAM    *mem.RAM
	Frames *pfa.Allocator
}

// NewMachine boots a machine with the given number of physical pages.
// Cleanup is registered on t.
func NewMachine(t *testing.T, pages int) *Machine {
	t.Helper()

	ram, err := mem.NewRAM(uint64(pages) * mem.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ram.Close() })

	bm := &mem.BootMap{Regions: []mem.BootRegion{
		{Start: 0, End: mem.PhysAddr(pages) * mem.PageSize},
	}}
	return &Machine{
		RAM:    ram,
		Frames: pfa.Init(ram, bm, mem.PageSize),
	}
}

// RecordingTLB remembers every invalidation it is asked for.
type RecordingTLB struct {
	Pages []mem.VirtAddr
	ASIDs []uint16
}

func (r *RecordingTLB) InvalidatePage(va mem.VirtAddr) {
	r.Pages = append(r.Pages, va)
}

func (r *RecordingTLB) InvalidateASID(number uint16) {
	r.ASIDs = append(r.ASIDs, number)
}

// Reset forgets all recorded invalidations.
func (r *RecordingTLB) Reset() {
	r.Pages = nil
	r.ASIDs = nil
}
