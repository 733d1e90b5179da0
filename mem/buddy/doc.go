// Package buddy implements a power-of-two buddy tree over page-granularity
// offsets in one fixed virtual region. The heap uses it to obtain backing
// pages for slabs; it does not touch memory itself, it is pure bookkeeping.
//
// # Representation
//
// The tree is implicit: a flat byte array, one byte per node, children of
// node i at 2i+1 and 2i+2. A node's byte holds the largest free order
// available anywhere in its subtree, plus one (0 means fully allocated).
// A freshly initialized tree of maxLevel levels therefore has maxLevel at
// the root, decreasing by one per level, down to 1 at the leaves. A node
// equals its "complete" value exactly when its whole block is free.
//
// # Operations
//
// Alloc(order) fails fast when the root's value says no free run of 2^order
// pages exists anywhere; otherwise it walks down, preferring the left child,
// into any subtree whose value is sufficient, zeroes the found node and
// recomputes each ancestor as max(left, right). Dealloc(order, offset)
// restores the node's own value and walks up; a parent snaps back to its
// complete value only when both children report theirs - true buddy
// coalescing - and otherwise takes max(left, right), never more.
package buddy
