package main

import (
	"fmt"
	"log/slog"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/asid"
	"github.com/kwast-os/kmem/mem/heap"
	"github.com/kwast-os/kmem/mem/paging"
	"github.com/kwast-os/kmem/mem/pfa"
	"github.com/kwast-os/kmem/mem/space"
)

const (
	// Kernel-half layout of the simulated machine.
	heapBase     = mem.VirtAddr(0xffff_9000_0000_0000)
	kernelVMBase = mem.VirtAddr(0xffff_a000_0000_0000)
	kernelVMSize = uint64(1) << 32

	// User-half window handed to each simulated process domain.
	userVMBase = mem.VirtAddr(0x0000_7000_0000_0000)
	userVMSize = uint64(1) << 32

	// Pages the "kernel image" occupies at the bottom of physical memory.
	bootReservedPages = 4
)

// machine is a fully booted simulation.
type machine struct {
	ram    *mem.RAM
	frames *pfa.Allocator
	asids  *asid.Manager
	kernel *space.Domain
	heap   *heap.Heap
}

// bootMachine brings up a machine with ramMB megabytes of physical memory.
// The boot map is deliberately messy: two regions with misaligned edges and
// a hole between them, the shape real loaders report.
func bootMachine(ramMB int) (*machine, error) {
	size := uint64(ramMB) << 20
	ram, err := mem.NewRAM(size)
	if err != nil {
		return nil, err
	}

	hole := mem.PhysAddr(size / 2).AlignDown()
	bm := &mem.BootMap{Regions: []mem.BootRegion{
		{Start: 0x13, End: hole - 0x20},
		{Start: hole + mem.PageSize + 0x7ff, End: mem.PhysAddr(size)},
	}}

	frames := pfa.Init(ram, bm, bootReservedPages*mem.PageSize)
	slog.Debug("physical memory online",
		"ram_bytes", size, "usable_frames", frames.FreeCount())

	kernel, err := space.New(ram, frames, paging.NopTLB{}, kernelVMBase, kernelVMSize)
	if err != nil {
		_ = ram.Close()
		return nil, fmt.Errorf("booting kernel domain: %w", err)
	}

	m := &machine{
		ram:    ram,
		frames: frames,
		asids:  asid.NewManager(paging.NopTLB{}),
		kernel: kernel,
		heap:   heap.New(kernel.AddressSpace(), heapBase, heap.DefaultMaxLevel),
	}
	slog.Debug("kernel domain online", "heap_base", heapBase)
	return m, nil
}

func (m *machine) shutdown() {
	// The kernel domain hosts the heap's mappings for the machine's whole
	// lifetime and is never destroyed, as on a real machine. Releasing the
	// arena is the only teardown the simulation needs.
	_ = m.ram.Close()
}
