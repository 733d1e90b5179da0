package pfa

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/kwast-os/kmem/mem"
)

// Debug flag - set to true to enable expensive double-free checks
// (compile-time toggle).
const debugPFA = false

// Allocator hands out individual 4 KiB physical frames from one intrusive
// free list. See the package documentation for the design rationale.
type Allocator struct {
	mu   sync.Mutex
	ram  *mem.RAM
	top  mem.PhysAddr
	free uint64
}

// Init builds the allocator from the boot loader's memory map, discarding
// everything below reservedEnd (already consumed by the kernel image and
// early boot structures). Frame 0 is always reserved: it backs the null
// sentinel of the free list.
func Init(ram *mem.RAM, bootmap *mem.BootMap, reservedEnd mem.PhysAddr) *Allocator {
	if reservedEnd < mem.PageSize {
		reservedEnd = mem.PageSize
	}

	a := &Allocator{ram: ram, top: mem.PhysNull}

	// Thread every usable frame onto the list. Each frame is written through
	// its window exactly once, the same single touch a classic stack-based
	// allocator would need to record the address out-of-band.
	bootmap.Frames(reservedEnd, func(pa mem.PhysAddr) {
		if !ram.Contains(pa) {
			return
		}
		writeNext(ram.Frame(pa), a.top)
		a.top = pa
		a.free++
	})

	return a
}

// Alloc pops the top frame off the free list. The returned frame still holds
// the stale link word; callers are expected to initialize the frame anyway.
// Returns mem.ErrOutOfMemory when the list is empty.
func (a *Allocator) Alloc() (mem.PhysAddr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.top == mem.PhysNull {
		return mem.PhysNull, mem.ErrOutOfMemory
	}

	pa := a.top
	a.top = readNext(a.ram.Frame(pa))
	a.free--
	return pa, nil
}

// Free pushes a frame back onto the free list. The frame's contents are
// clobbered by the link word, so the caller must be done with it.
func (a *Allocator) Free(pa mem.PhysAddr) {
	if !pa.IsPageAligned() {
		panic(fmt.Sprintf("pfa: freeing misaligned frame %s", pa))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if debugPFA {
		a.assertNotOnList(pa)
	}

	writeNext(a.ram.Frame(pa), a.top)
	a.top = pa
	a.free++
}

// FreeCount returns the number of frames currently on the free list.
func (a *Allocator) FreeCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free
}

// assertNotOnList walks the entire list looking for pa. Debug builds only:
// this is O(free frames).
func (a *Allocator) assertNotOnList(pa mem.PhysAddr) {
	for cur := a.top; cur != mem.PhysNull; cur = readNext(a.ram.Frame(cur)) {
		if cur == pa {
			panic(fmt.Sprintf("pfa: double free of frame %s", pa))
		}
	}
}

func readNext(frame []byte) mem.PhysAddr {
	return mem.PhysAddr(binary.LittleEndian.Uint64(frame))
}

func writeNext(frame []byte, next mem.PhysAddr) {
	binary.LittleEndian.PutUint64(frame, uint64(next))
}
