package buddy

import (
	"fmt"

	"github.com/kwast-os/kmem/mem"
)

// Tree is the buddy bookkeeping tree. Offsets are page indices within the
// managed region; order k spans 2^k pages. The zero Tree is not usable,
// construct with NewTree.
type Tree struct {
	maxLevel int
	nodes    []uint8
}

// NewTree creates a tree of maxLevel levels, managing 2^(maxLevel-1) pages,
// all free. maxLevel must be between 1 and 255 so node values fit a byte.
func NewTree(maxLevel int) *Tree {
	if maxLevel < 1 || maxLevel > 255 {
		panic(fmt.Sprintf("buddy: invalid maxLevel %d", maxLevel))
	}

	t := &Tree{
		maxLevel: maxLevel,
		nodes:    make([]uint8, (1<<maxLevel)-1),
	}

	// Node values start at their complete value: maxLevel at the root,
	// one less per level down.
	size := uint8(maxLevel + 1)
	for i := range t.nodes {
		if isPow2(i + 1) {
			size--
		}
		t.nodes[i] = size
	}
	return t
}

// Pages returns the number of pages the tree manages.
func (t *Tree) Pages() int { return 1 << (t.maxLevel - 1) }

// MaxOrder returns the largest allocatable order.
func (t *Tree) MaxOrder() int { return t.maxLevel - 1 }

// MaxFreeOrder returns the largest order currently allocatable, or -1 when
// the region is fully allocated.
func (t *Tree) MaxFreeOrder() int { return int(t.nodes[0]) - 1 }

func isPow2(x int) bool { return x&(x-1) == 0 }

func leftIndex(i int) int   { return i<<1 | 1 }
func rightIndex(i int) int  { return i<<1 + 2 }
func parentIndex(i int) int { return (i+1)>>1 - 1 }

// Alloc reserves a run of 2^order pages and returns its page offset.
// Returns mem.ErrOutOfMemory when no free run of that order exists.
func (t *Tree) Alloc(order int) (int, error) {
	if order < 0 || order > t.MaxOrder() {
		panic(fmt.Sprintf("buddy: invalid order %d", order))
	}

	size := uint8(order + 1)
	if t.nodes[0] < size {
		return 0, mem.ErrOutOfMemory
	}

	// Walk down to the level holding blocks of this order. The root check
	// guarantees at least one child on the path is big enough; prefer left.
	wantedLevel := t.maxLevel - int(size)
	index := 0
	for lvl := 0; lvl < wantedLevel; lvl++ {
		if left := leftIndex(index); t.nodes[left] >= size {
			index = left
		} else {
			index = rightIndex(index)
		}
	}

	firstInLevel := 1<<wantedLevel - 1
	offset := (index - firstInLevel) << order

	// Mark allocated and refresh the ancestors' largest-free values.
	t.nodes[index] = 0
	for index > 0 {
		index = parentIndex(index)
		t.nodes[index] = max(t.nodes[leftIndex(index)], t.nodes[rightIndex(index)])
	}

	return offset, nil
}

// Dealloc releases the run of 2^order pages at the given page offset. The
// (order, offset) pair must correspond to a live allocation.
func (t *Tree) Dealloc(order, offset int) {
	if order < 0 || order > t.MaxOrder() || offset < 0 ||
		offset&(1<<order-1) != 0 || offset>>order >= 1<<(t.maxLevel-1-order) {
		panic(fmt.Sprintf("buddy: invalid dealloc order=%d offset=%d", order, offset))
	}

	size := uint8(order + 1)
	firstInLevel := 1<<(t.maxLevel-int(size)) - 1
	index := firstInLevel + offset>>order

	if t.nodes[index] != 0 {
		panic(fmt.Sprintf("buddy: dealloc of free block order=%d offset=%d", order, offset))
	}

	// Restore the node, then walk up. A parent returns to its complete
	// value only when both children are back at theirs: that is the buddy
	// coalescing step. Otherwise it takes the plain max, never more.
	t.nodes[index] = size
	for index > 0 {
		index = parentIndex(index)
		size++

		left, right := t.nodes[leftIndex(index)], t.nodes[rightIndex(index)]
		if left == right && left == size-1 {
			t.nodes[index] = size
		} else {
			t.nodes[index] = max(left, right)
		}
	}
}
