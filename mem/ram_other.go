//go:build !linux && !darwin && !freebsd

package mem

// mapArena allocates the RAM arena on the Go heap on platforms without an
// anonymous-mmap fast path.
func mapArena(size uint64) ([]byte, error) {
	return make([]byte, size), nil
}

func unmapArena([]byte) error { return nil }
