package heap

import "math/bits"

// Size classes in bytes. Alignment never exceeds the class size, since
// every class is a power of two.
var classSizes = [...]int{32, 64, 128, 256, 512, 1024, 2048, 4096, 8192}

// MaxClassSize is the largest slab-managed allocation; bigger requests go
// straight to the buddy tree.
const MaxClassSize = 8192

// numClasses is the number of slab caches.
const numClasses = len(classSizes)

// sizeToClass maps a (size, align) layout to its class index, or -1 for a
// big allocation.
func sizeToClass(size uint64, align int) int {
	need := size
	if a := uint64(align); a > need {
		need = a
	}
	if need > MaxClassSize {
		return -1
	}
	for i, cs := range classSizes {
		if need <= uint64(cs) {
			return i
		}
	}
	return -1
}

// ClassInfo describes the slab geometry of one size class.
type ClassInfo struct {
	ObjectSize int
	SlabPages  int
	Slots      int
	MaxColor   int
}

// ClassLayout returns the slab geometry of every size class in ascending
// object-size order.
func ClassLayout() []ClassInfo {
	out := make([]ClassInfo, 0, numClasses)
	for _, size := range classSizes {
		c := newCache(size)
		out = append(out, ClassInfo{
			ObjectSize: c.objSize,
			SlabPages:  1 << c.slabOrder,
			Slots:      c.slotCount,
			MaxColor:   int(c.maxColor),
		})
	}
	return out
}

// bigOrder returns the buddy order for a big allocation: the next
// power-of-two page count covering size.
func bigOrder(size uint64) int {
	pages := (size + pageSize - 1) / pageSize
	if pages <= 1 {
		return 0
	}
	return bits.Len64(pages - 1)
}

// blockOrder returns the buddy order actually serving a big allocation:
// large enough for size, and high enough that the block's natural alignment
// satisfies align. An order-k block always sits on a 2^k-page boundary of
// the heap region, and the region base is aligned to the region size.
func blockOrder(size uint64, align int) int {
	order := bigOrder(size)
	if a := uint64(align); a > pageSize {
		if ao := bits.Len64(a/pageSize - 1); ao > order {
			order = ao
		}
	}
	return order
}
