package main

import (
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kwast-os/kmem/mem"
	"github.com/kwast-os/kmem/mem/heap"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the simulated machine geometry and heap class layout",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			runInfo()
		},
	}
}

func runInfo() {
	p := message.NewPrinter(language.English)

	p.Printf("Machine geometry:\n")
	p.Printf("  Page size:          %d bytes\n", mem.PageSize)
	p.Printf("  Entries per table:  %d\n", mem.EntriesPerTable)
	p.Printf("  Heap region:        %d pages (%d MiB)\n",
		1<<(heap.DefaultMaxLevel-1), (uint64(mem.PageSize)<<(heap.DefaultMaxLevel-1))>>20)

	p.Printf("\nSlab classes:\n")
	p.Printf("  %8s  %6s  %6s  %9s\n", "object", "pages", "slots", "max color")
	for _, c := range heap.ClassLayout() {
		p.Printf("  %8d  %6d  %6d  %9d\n", c.ObjectSize, c.SlabPages, c.Slots, c.MaxColor)
	}
}
