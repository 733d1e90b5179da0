package main

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/paging"
	"github.com/kwast-os/kmem/mem/space"
	"github.com/kwast-os/kmem/mem/vmarea"
)

var (
	runRAMMB int
	runOps   int
	runSeed  int64
	runProcs int
)

func init() {
	cmd := newRunCmd()
	cmd.Flags().IntVar(&runRAMMB, "ram", 64, "Physical memory in MiB")
	cmd.Flags().IntVar(&runOps, "ops", 200_000, "Number of workload operations")
	cmd.Flags().Int64Var(&runSeed, "seed", 1, "Workload RNG seed")
	cmd.Flags().IntVar(&runProcs, "procs", 8, "Number of simulated processes")
	rootCmd.AddCommand(cmd)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run a mixed allocator workload",
		Long: `The run command boots the machine and drives a randomized mix of
heap allocations, frees and reallocations, interleaved with simulated
process lifecycles: domain creation, lazy-stack page faults, context
switches (ASID churn) and teardown.

Example:
  memsim run --ram 128 --ops 1000000 --seed 7 -v`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkload()
		},
	}
}

// allocation remembers the layout a block was requested with; the heap needs
// it back on free, like a kernel call site would know its own type.
type allocation struct {
	va    mem.VirtAddr
	size  uint64
	align int
}

// proc is one simulated process: a domain with a lazily backed stack.
type proc struct {
	domain *space.Domain
	stack  *vmarea.LazilyMappedVma
}

type workloadStats struct {
	heapOps      int
	faults       int
	faultsDenied int
	switches     int
	procsSpawned int
	procsExited  int
	oomEvents    int
}

func runWorkload() error {
	m, err := bootMachine(runRAMMB)
	if err != nil {
		return err
	}
	defer m.shutdown()

	rng := rand.New(rand.NewSource(runSeed))
	framesAtBoot := m.frames.FreeCount()

	var (
		live  []allocation
		procs []*proc
		ws    workloadStats
	)

	spawn := func() error {
		d, err := space.New(m.ram, m.frames, paging.NopTLB{}, userVMBase, userVMSize)
		if err != nil {
			return err
		}
		stack, err := d.CreateLazyArea(64*mem.PageSize, 16*mem.PageSize,
			paging.FlagWritable|paging.FlagNX)
		if err != nil {
			d.Release()
			d.Destroy(m.asids)
			return err
		}
		d.Activate(m.asids)
		procs = append(procs, &proc{domain: d, stack: stack})
		ws.procsSpawned++
		return nil
	}

	exit := func(i int) {
		p := procs[i]
		procs = append(procs[:i], procs[i+1:]...)
		if p.domain.Release() {
			p.domain.Destroy(m.asids)
		}
		ws.procsExited++
	}

	for i := 0; i < runProcs; i++ {
		if err := spawn(); err != nil {
			return fmt.Errorf("spawning initial processes: %w", err)
		}
	}

	for op := 0; op < runOps; op++ {
		switch r := rng.Intn(100); {
		case r < 50: // allocate
			size := uint64(1 + rng.Intn(16*1024))
			align := 1 << rng.Intn(8)
			va, err := m.heap.Alloc(size, align)
			if err != nil {
				// Memory pressure: drop half the live set and retry once.
				ws.oomEvents++
				live = reclaim(m, live)
				if va, err = m.heap.Alloc(size, align); err != nil {
					slog.Warn("allocation failed after reclaim", "size", size)
					continue
				}
			}
			live = append(live, allocation{va, size, align})
			ws.heapOps++

		case r < 75: // free
			if len(live) == 0 {
				continue
			}
			i := rng.Intn(len(live))
			a := live[i]
			m.heap.Free(a.va, a.size, a.align)
			live[i] = live[len(live)-1]
			live = live[:len(live)-1]
			ws.heapOps++

		case r < 85: // realloc
			if len(live) == 0 {
				continue
			}
			i := rng.Intn(len(live))
			a := live[i]
			newSize := uint64(1 + rng.Intn(16*1024))
			va, err := m.heap.Realloc(a.va, a.size, newSize, a.align)
			if err != nil {
				ws.oomEvents++
				continue
			}
			live[i] = allocation{va, newSize, a.align}
			ws.heapOps++

		case r < 95: // stack fault on a random process
			p := procs[rng.Intn(len(procs))]
			if rng.Intn(16) == 0 {
				// Stacks also grow; past the reservation this just fails.
				_ = p.stack.Expand(4 * mem.PageSize)
			}
			addr := p.stack.Start() + mem.VirtAddr(rng.Intn(64))*mem.PageSize + 8
			if p.domain.PageFault(addr, 0, true) {
				ws.faults++
			} else {
				ws.faultsDenied++
			}

		default: // context switch, sometimes with process churn
			p := procs[rng.Intn(len(procs))]
			p.domain.Activate(m.asids)
			ws.switches++
			if rng.Intn(8) == 0 && len(procs) > 1 {
				exit(rng.Intn(len(procs)))
				if err := spawn(); err != nil {
					slog.Warn("respawn failed", "err", err)
				}
			}
		}
	}

	// Drain everything so leak accounting is exact.
	for _, a := range live {
		m.heap.Free(a.va, a.size, a.align)
	}
	for len(procs) > 0 {
		exit(0)
	}

	report(m, &ws, framesAtBoot)
	return nil
}

// reclaim frees the newer half of the live set, oldest allocations survive.
func reclaim(m *machine, live []allocation) []allocation {
	keep := len(live) / 2
	for _, a := range live[keep:] {
		m.heap.Free(a.va, a.size, a.align)
	}
	slog.Debug("memory pressure reclaim", "freed", len(live)-keep, "kept", keep)
	return live[:keep]
}

func report(m *machine, ws *workloadStats, framesAtBoot uint64) {
	if quiet {
		return
	}
	hs := m.heap.Stats()
	p := message.NewPrinter(language.English)

	p.Printf("Workload:\n")
	p.Printf("  Heap operations:    %d\n", ws.heapOps)
	p.Printf("  Stack faults:       %d handled, %d denied\n", ws.faults, ws.faultsDenied)
	p.Printf("  Context switches:   %d\n", ws.switches)
	p.Printf("  Processes:          %d spawned, %d exited\n", ws.procsSpawned, ws.procsExited)
	p.Printf("  OOM events:         %d\n", ws.oomEvents)

	p.Printf("\nHeap:\n")
	p.Printf("  Alloc / Free / Realloc:  %d / %d / %d\n", hs.AllocCalls, hs.FreeCalls, hs.ReallocCalls)
	p.Printf("  Big allocations:         %d (freed %d)\n", hs.BigAllocs, hs.BigFrees)
	p.Printf("  Slabs created:           %d (released %d)\n", hs.SlabsCreated, hs.SlabsReleased)
	p.Printf("  Bytes requested:         %d\n", hs.BytesRequested)

	p.Printf("\nMachine:\n")
	p.Printf("  ASID generation:    %d\n", m.asids.Generation())

	// After the drain the only resident frames are the idle slabs the caches
	// retain and the page tables still holding them.
	p.Printf("  Frames resident:    %d\n", framesAtBoot-m.frames.FreeCount())
}
