// Command tbc drives the TB backend pipeline (IPO inlining, then the
// per-function peephole/SCCP/GCM/LSRA sequence) over a small built-in
// demo module, since the backend itself has no frontend (§1). It exists
// to exercise the pipeline end to end and report what it did, the way
// the teacher's cmd/z80opt exercises its own search pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/oisee/tb/pkg/ipo"
	"github.com/oisee/tb/pkg/ir"
	"github.com/oisee/tb/pkg/pipeline"
	"github.com/oisee/tb/pkg/report"
	"github.com/oisee/tb/pkg/target"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tbc",
		Short: "TB backend pipeline driver — inline, optimize, schedule, allocate",
	}

	var numWorkers int
	var threshold int
	var verbose bool
	var checkpointPath string
	var outputPath string

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full pipeline over a small built-in module",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := demoModule()

			fmt.Printf("TB pipeline demo\n")
			fmt.Printf("  Functions: %d\n", len(m.Funcs))
			fmt.Printf("  Inline threshold: %d nodes\n", threshold)
			fmt.Printf("  Workers: %d\n", numWorkers)
			fmt.Println()

			inliner := ipo.NewInliner(threshold)
			inlined := inliner.Run(m)
			fmt.Printf("IPO: inlined %d call site(s)\n\n", inlined)

			done := map[string]bool{}
			if checkpointPath != "" {
				if ckpt, err := report.LoadCheckpoint(checkpointPath); err == nil {
					done = ckpt.Completed
					fmt.Printf("Resuming: %d function(s) already compiled\n", len(done))
				}
			}

			pool := pipeline.NewPool(numWorkers, target.NewGeneric())
			pool.InlineCounts = inliner.Counts()
			pool.Run(m, done, verbose)

			compiled, failed := pool.Stats()
			fmt.Printf("\nCompiled %d function(s), %d failed\n", compiled, failed)

			if checkpointPath != "" {
				completed := map[string]bool{}
				for k := range done {
					completed[k] = true
				}
				for _, s := range pool.Reports.Stats() {
					if s.Err == "" {
						completed[s.Func] = true
					}
				}
				ckpt := &report.Checkpoint{Stats: pool.Reports.Stats(), Completed: completed}
				if err := report.SaveCheckpoint(checkpointPath, ckpt); err != nil {
					return fmt.Errorf("saving checkpoint: %w", err)
				}
				fmt.Printf("Checkpoint written to %s\n", checkpointPath)
			}

			if outputPath != "" {
				b, err := pool.Reports.WriteJSON()
				if err != nil {
					return fmt.Errorf("encoding report: %w", err)
				}
				if err := os.WriteFile(outputPath, b, 0o644); err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", outputPath)
			}

			if failed > 0 {
				return fmt.Errorf("%d function(s) failed to compile", failed)
			}
			return nil
		},
	}
	demoCmd.Flags().IntVar(&numWorkers, "workers", 0, "Number of workers (0 = NumCPU)")
	demoCmd.Flags().IntVar(&threshold, "inline-threshold", ipo.DefaultThreshold, "IPO inline node-count threshold")
	demoCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose per-function output")
	demoCmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "Checkpoint file to resume from / save to")
	demoCmd.Flags().StringVar(&outputPath, "output", "", "Write the compile report as JSON to this path")

	reportCmd := &cobra.Command{
		Use:   "report [checkpoint]",
		Short: "Print the stats recorded in a checkpoint file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ckpt, err := report.LoadCheckpoint(args[0])
			if err != nil {
				return err
			}
			for _, s := range ckpt.Stats {
				status := "ok"
				if s.Err != "" {
					status = "FAILED: " + s.Err
				}
				fmt.Printf("  %-20s nodes=%-5d vregs=%-5d rounds=%-3d spills=%-3d %s\n",
					s.Func, s.Nodes, s.VRegs, s.Rounds, s.SpillSlots, status)
			}
			fmt.Printf("\n%d function(s) recorded\n", len(ckpt.Stats))
			return nil
		},
	}

	rootCmd.AddCommand(demoCmd, reportCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// demoModule builds a tiny module exercising a direct call (inlined) and
// a self-recursive one (left alone), so the demo subcommand's IPO and
// pipeline stages both have real work to do.
func demoModule() *ir.Module {
	m := ir.NewModule()

	add := m.NewFunc("add")
	addStart := add.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	add.SetInput(addStart, add.Root, 0)
	x := add.Param(addStart, 0, ir.Int(32))
	y := add.Param(addStart, 1, ir.Int(32))
	add.Return(addStart, add.BinOp(ir.OpAdd, ir.Int(32), x, y))

	triple := m.NewFunc("triple")
	tStart := triple.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	triple.SetInput(tStart, triple.Root, 0)
	p := triple.Param(tStart, 0, ir.Int(32))
	_, cont, ret := triple.Call(tStart, "add", ir.Int(32), p, p)
	_, cont2, ret2 := triple.Call(cont, "add", ir.Int(32), ret, p)
	triple.Return(cont2, ret2)

	fact := m.NewFunc("fact")
	fStart := fact.NewNode(ir.OpStart, ir.Ctrl, 1, 0)
	fact.SetInput(fStart, fact.Root, 0)
	n := fact.Param(fStart, 0, ir.Int(32))
	_, fcont, fret := fact.Call(fStart, "fact", ir.Int(32), n)
	fact.Return(fcont, fret)

	return m
}
