package heap

import (
	"fmt"
	"sync"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/buddy"
	"github.com/kwast-os/kmem/mem/paging"
)

// Debug flag - set to true to enable slab invariant checks (compile-time
// toggle).
const debugHeap = false

// DefaultMaxLevel gives the buddy tree 2^14 backing-page slots: a 64 MiB
// heap region.
const DefaultMaxLevel = 15

// Stats counts heap activity since Init. Monotonic; read them under the
// heap's own operations (Stats takes the lock).
type Stats struct {
	AllocCalls     int
	FreeCalls      int
	ReallocCalls   int
	BigAllocs      int
	BigFrees       int
	SlabsCreated   int
	SlabsReleased  int
	BytesRequested uint64
}

// Heap is the slab allocator. One mutex guards the space manager and every
// cache: heap operations are short and dominated by page-table work, so
// finer locking is not attempted.
type Heap struct {
	mu    sync.Mutex
	space *paging.AddressSpace
	tree  *buddy.Tree
	base  mem.VirtAddr
	flags paging.Flags

	caches [numClasses]*cache
	stats  Stats
}

// New builds a heap whose backing pages live in the fixed virtual region
// [base, base + 2^(maxLevel-1) pages), mapped on demand into space. base
// must be aligned to the region size: slab bases then mask back from any
// pointer, and every buddy block inherits its natural alignment.
func New(space *paging.AddressSpace, base mem.VirtAddr, maxLevel int) *Heap {
	region := uint64(pageSize) << (maxLevel - 1)
	if uint64(base)%region != 0 {
		panic(fmt.Sprintf("heap: region base %s not aligned to region size %#x", base, region))
	}

	h := &Heap{
		space: space,
		tree:  buddy.NewTree(maxLevel),
		base:  base,
		flags: paging.FlagWritable | paging.FlagNX,
	}
	for i, size := range classSizes {
		h.caches[i] = newCache(size)
	}
	return h
}

var (
	globalMu sync.Mutex
	global   *Heap
)

// Init installs the kernel-wide heap. May only be called once.
func Init(space *paging.AddressSpace, base mem.VirtAddr, maxLevel int) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global != nil {
		panic("heap: Init called twice")
	}
	global = New(space, base, maxLevel)
}

// Get returns the kernel-wide heap and panics before Init: allocating
// before the heap exists is a programming error, not a recoverable state.
func Get() *Heap {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		panic("heap: Get before Init")
	}
	return global
}

// Alloc returns the address of a zero-or-garbage block able to hold size
// bytes at the given alignment. align must be a power of two.
func (h *Heap) Alloc(size uint64, align int) (mem.VirtAddr, error) {
	if size == 0 || align <= 0 || align&(align-1) != 0 {
		return 0, mem.ErrInvalidRange
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.AllocCalls++
	h.stats.BytesRequested += size

	if class := sizeToClass(size, align); class >= 0 {
		return h.caches[class].alloc(h)
	}
	return h.allocBig(size, align)
}

// Free releases a block returned by Alloc with the same size and align.
func (h *Heap) Free(va mem.VirtAddr, size uint64, align int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stats.FreeCalls++

	if class := sizeToClass(size, align); class >= 0 {
		h.caches[class].dealloc(h, va)
		return
	}
	h.freeBig(va, size, align)
}

// Realloc resizes a block. When old and new sizes land in the same size
// class (or the same big order) the pointer is reused as-is; otherwise a
// new block is allocated, the payload copied, and the old block freed.
func (h *Heap) Realloc(va mem.VirtAddr, oldSize, newSize uint64, align int) (mem.VirtAddr, error) {
	if newSize == 0 {
		return 0, mem.ErrInvalidRange
	}

	h.mu.Lock()
	h.stats.ReallocCalls++
	oldClass := sizeToClass(oldSize, align)
	newClass := sizeToClass(newSize, align)
	if oldClass == newClass &&
		(oldClass >= 0 || blockOrder(oldSize, align) == blockOrder(newSize, align)) {
		h.mu.Unlock()
		return va, nil
	}
	h.mu.Unlock()

	newVA, err := h.Alloc(newSize, align)
	if err != nil {
		return 0, err
	}
	h.copyData(newVA, va, min(oldSize, newSize))
	h.Free(va, oldSize, align)
	return newVA, nil
}

// Stats returns a snapshot of the heap counters.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// allocBig takes a power-of-two page run straight from the buddy tree. The
// order covers both the size and the requested alignment.
func (h *Heap) allocBig(size uint64, align int) (mem.VirtAddr, error) {
	order := blockOrder(size, align)
	if order > h.tree.MaxOrder() {
		return 0, mem.ErrOutOfMemory
	}

	offset, err := h.tree.Alloc(order)
	if err != nil {
		return 0, err
	}

	va := h.base + mem.VirtAddr(offset)*pageSize
	if err := h.space.MapRange(va, uint64(pageSize)<<order, h.flags); err != nil {
		h.tree.Dealloc(order, offset)
		return 0, err
	}
	h.stats.BigAllocs++
	return va, nil
}

func (h *Heap) freeBig(va mem.VirtAddr, size uint64, align int) {
	order := blockOrder(size, align)
	h.space.FreeAndUnmapRange(va, uint64(pageSize)<<order)
	h.tree.Dealloc(order, int((va-h.base)/pageSize))
	h.stats.BigFrees++
}

// copyData copies n bytes between heap addresses through the page windows,
// chunked at page boundaries.
func (h *Heap) copyData(dst, src mem.VirtAddr, n uint64) {
	for n > 0 {
		sp, ok := h.space.Page(src)
		if !ok {
			panic("heap: copy from unmapped heap address")
		}
		dp, ok := h.space.Page(dst)
		if !ok {
			panic("heap: copy to unmapped heap address")
		}

		chunk := n
		if left := uint64(pageSize - src&mem.PageMask); left < chunk {
			chunk = left
		}
		if left := uint64(pageSize - dst&mem.PageMask); left < chunk {
			chunk = left
		}

		copy(dp[dst&mem.PageMask:][:chunk], sp[src&mem.PageMask:][:chunk])
		dst += mem.VirtAddr(chunk)
		src += mem.VirtAddr(chunk)
		n -= chunk
	}
}
