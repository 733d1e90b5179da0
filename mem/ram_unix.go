//go:build linux || darwin || freebsd

package mem

import "golang.org/x/sys/unix"

// mapArena reserves the RAM arena as an anonymous private mapping. The OS
// zero-fills and lazily commits the pages, so a multi-GiB simulated machine
// costs only what it actually touches.
func mapArena(size uint64) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmapArena(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
