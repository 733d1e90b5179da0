// memsim boots the simulated machine and drives the memory managers with
// configurable workloads. It exists to observe allocator behavior (slab
// retention, coloring, ASID rollover, fragmentation) at a scale the unit
// tests don't reach.
package main

func main() {
	execute()
}
