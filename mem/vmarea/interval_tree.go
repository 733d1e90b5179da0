package vmarea

// intervalTree is an AVL tree over free intervals, keyed by start, augmented
// with the largest interval length per subtree for best-fit queries.
type intervalTree struct {
	root *node
}

type node struct {
	start  uint64
	length uint64
	left   *node
	right  *node
	maxLen uint64
	height uint8
}

func height(n *node) uint8 {
	if n == nil {
		return 0
	}
	return n.height
}

func maxLen(n *node) uint64 {
	if n == nil {
		return 0
	}
	return n.maxLen
}

func (n *node) balanceFactor() int {
	return int(height(n.left)) - int(height(n.right))
}

func (n *node) updateHeight() {
	n.height = 1 + max(height(n.left), height(n.right))
}

func (n *node) updateMaxLen() {
	n.maxLen = max(n.length, max(maxLen(n.left), maxLen(n.right)))
}

func (n *node) updateFields() {
	n.updateHeight()
	n.updateMaxLen()
}

func rotateLeft(root *node) *node {
	newRoot := root.right
	root.right = newRoot.left
	root.updateFields()
	newRoot.left = root
	newRoot.updateFields()
	return newRoot
}

func rotateRight(root *node) *node {
	newRoot := root.left
	root.left = newRoot.right
	root.updateFields()
	newRoot.right = root
	newRoot.updateFields()
	return newRoot
}

// fixup rebalances root after a child changed, recomputing height and maxLen
// bottom-up. Returns the new subtree root.
func fixup(root *node) *node {
	switch root.balanceFactor() {
	case 2:
		if root.left.balanceFactor() == -1 {
			root.left = rotateLeft(root.left)
		}
		return rotateRight(root)
	case -2:
		if root.right.balanceFactor() == 1 {
			root.right = rotateRight(root.right)
		}
		return rotateLeft(root)
	default:
		// Rotations update fields themselves; do it here otherwise.
		root.updateFields()
		return root
	}
}

func insertHelper(root *node, start, length uint64) *node {
	if root == nil {
		return &node{start: start, length: length, maxLen: length, height: 1}
	}
	if start < root.start {
		root.left = insertHelper(root.left, start, length)
	} else {
		root.right = insertHelper(root.right, start, length)
	}
	return fixup(root)
}

// insert adds a free interval without attempting any merging.
func (t *intervalTree) insert(start, length uint64) {
	t.root = insertHelper(t.root, start, length)
}

// extendIfFound grows by length the interval that ends exactly at end.
// Reports whether such an interval existed.
func extendIfFound(root *node, end, length uint64) bool {
	if root == nil {
		return false
	}

	nodeEnd := root.start + root.length
	switch {
	case end < nodeEnd:
		if extendIfFound(root.left, end, length) {
			root.updateMaxLen()
			return true
		}
	case end > nodeEnd:
		if extendIfFound(root.right, end, length) {
			root.updateMaxLen()
			return true
		}
	default:
		root.length += length
		root.updateMaxLen()
		return true
	}
	return false
}

// returnInterval gives a free interval back, merging with the interval that
// starts at its end and with the interval that ends at its start. Only when
// neither neighbor exists does a new node go in.
func (t *intervalTree) returnInterval(start, length uint64) {
	// Merge at the front of the next interval if possible.
	if removed, ok := t.remove(start + length); ok {
		length += removed
	}

	// Extend the end of the previous interval if possible.
	if !extendIfFound(t.root, start, length) {
		t.insert(start, length)
	}
}

// findLenHelper picks, among the current interval and the two subtree
// maxima, the smallest candidate that still fits; ties favor the current
// node over descending, and the left subtree over the right. The fit is
// carved from the high end of the found interval. Returns the new subtree
// root and the start of the carved range.
func findLenHelper(root *node, wanted uint64) (*node, uint64) {
	const (
		choiceMe = iota
		choiceLeft
		choiceRight
	)

	choice := -1
	var best uint64
	for c, length := range []uint64{root.length, maxLen(root.left), maxLen(root.right)} {
		if length >= wanted && (choice < 0 || length < best) {
			choice = c
			best = length
		}
	}

	switch choice {
	case choiceLeft:
		left, result := findLenHelper(root.left, wanted)
		root.left = left
		root.updateMaxLen()
		return root, result
	case choiceRight:
		right, result := findLenHelper(root.right, wanted)
		root.right = right
		root.updateMaxLen()
		return root, result
	case choiceMe:
		result := root.start + root.length - wanted
		if root.length > wanted {
			// Common case: shrink in place, no structural change.
			root.length -= wanted
			root.updateMaxLen()
			return root, result
		}
		// Exact fit: the interval disappears.
		newRoot, _ := removeHelper(root, root.start)
		return newRoot, result
	default:
		panic("vmarea: findLen descended into a subtree without a fit")
	}
}

// findLen carves a best-fit range of the wanted length out of the free
// space. Reports false when no interval is large enough.
func (t *intervalTree) findLen(wanted uint64) (uint64, bool) {
	if maxLen(t.root) < wanted {
		return 0, false
	}
	root, result := findLenHelper(t.root, wanted)
	t.root = root
	return result, true
}

// removeMin unlinks the minimum node of the subtree, returning the new
// subtree root and the detached minimum.
func removeMin(root *node) (*node, *node) {
	if root.left == nil {
		return root.right, root
	}
	left, min := removeMin(root.left)
	root.left = left
	return fixup(root), min
}

func removeHelper(root *node, start uint64) (*node, *uint64) {
	switch {
	case start < root.start:
		if root.left != nil {
			left, result := removeHelper(root.left, start)
			root.left = left
			return fixup(root), result
		}
	case start > root.start:
		if root.right != nil {
			right, result := removeHelper(root.right, start)
			root.right = right
			return fixup(root), result
		}
	default:
		length := root.length

		var replacement *node
		switch {
		case root.left == nil && root.right == nil:
			replacement = nil
		case root.left == nil:
			replacement = root.right
		case root.right == nil:
			replacement = root.left
		default:
			// Replace by the minimum of the right subtree.
			remaining, min := removeMin(root.right)
			min.left = root.left
			min.right = remaining
			replacement = fixup(min)
		}
		return replacement, &length
	}

	return root, nil
}

// remove deletes the interval starting exactly at start, returning its
// length.
func (t *intervalTree) remove(start uint64) (uint64, bool) {
	if t.root == nil {
		return 0, false
	}
	root, result := removeHelper(t.root, start)
	t.root = root
	if result == nil {
		return 0, false
	}
	return *result, true
}

// nodeCount walks the tree; used by tests and stats only.
func (t *intervalTree) nodeCount() int {
	var count func(*node) int
	count = func(n *node) int {
		if n == nil {
			return 0
		}
		return 1 + count(n.left) + count(n.right)
	}
	return count(t.root)
}
