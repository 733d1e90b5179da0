package mem

// BootRegion is one usable-RAM range reported by the boot loader, in physical
// bytes. Loaders routinely report misaligned ranges; consumers must align
// start up and end down to page granularity themselves.
type BootRegion struct {
	Start PhysAddr
	End   PhysAddr // exclusive
}

// BootMap is the boot loader's view of usable physical memory. Regions are
// not required to be sorted, aligned or non-empty; the map is taken as-is
// from the loader and sanitized by whoever consumes it.
type BootMap struct {
	Regions []BootRegion
}

// Frames calls fn for every page-aligned frame in the map at or above
// reservedEnd, in map order. Misaligned region edges are clamped inward, so
// a partial page at either edge is never yielded.
func (m *BootMap) Frames(reservedEnd PhysAddr, fn func(PhysAddr)) {
	floor := reservedEnd.AlignUp()

	for _, reg := range m.Regions {
		start := reg.Start.AlignUp()
		end := reg.End.AlignDown()
		if start < floor {
			start = floor
		}

		for pa := start; pa < end; pa += PageSize {
			fn(pa)
		}
	}
}
