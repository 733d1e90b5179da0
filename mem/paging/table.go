package paging

import (
	"encoding/binary"

	"github.com/kwast-os/kmem/mem"
)

// Table is a view over the single frame holding one page-table level.
type Table struct {
	frame []byte
}

func tableAt(ram *mem.RAM, pa mem.PhysAddr) Table {
	return Table{frame: ram.Frame(pa)}
}

// Entry reads entry i.
func (t Table) Entry(i int) Entry {
	return Entry(binary.LittleEndian.Uint64(t.frame[i*8:]))
}

// SetEntry writes entry i.
func (t Table) SetEntry(i int, e Entry) {
	binary.LittleEndian.PutUint64(t.frame[i*8:], uint64(e))
}

// Zero clears the whole table, entry 0's used-count bits included.
func (t Table) Zero() {
	for i := range t.frame {
		t.frame[i] = 0
	}
}

// UsedCount returns the number of present entries in this table. The count
// is maintained incrementally in entry 0's ignored high bits.
func (t Table) UsedCount() int {
	return t.Entry(0).usedCount()
}

func (t Table) setUsedCount(count int) {
	t.SetEntry(0, t.Entry(0).withUsedCount(count))
}

func (t Table) increaseUsedCount() {
	t.setUsedCount(t.UsedCount() + 1)
}

func (t Table) decreaseUsedCount() {
	c := t.UsedCount()
	if debugPaging && c == 0 {
		panic("paging: used count underflow")
	}
	t.setUsedCount(c - 1)
}
