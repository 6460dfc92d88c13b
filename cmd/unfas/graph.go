package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"unfas/internal/callgraph"
	"unfas/internal/output"
	"unfas/internal/render"
)

func newGraphCmd(a *app) *cobra.Command {
	var (
		outDir string
		cfg    bool
	)
	cmd := &cobra.Command{
		Use:   "graph <file.fas>",
		Short: "Emit the call graph, or per-function CFGs, as DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			prog := res.Program
			title := outputName(args[0])

			if outDir == "" {
				if cfg {
					fmt.Fprint(cmd.OutOrStdout(), lrender.DOTCFG(callgraph.BuildCFG(prog.Funcs, prog.Base), title))
				} else {
					fmt.Fprint(cmd.OutOrStdout(), lrender.DOT(callgraph.BuildCallGraph(prog.Funcs), title))
				}
				return nil
			}

			cg := callgraph.BuildCallGraph(prog.Funcs)
			if err := output.WriteDOT(outDir, "callgraph", lrender.DOT(cg, title)); err != nil {
				return err
			}
			a.log.Info("wrote call graph", "nodes", len(cg.Nodes), "edges", len(cg.Edges), "dir", outDir)
			if !cfg {
				return nil
			}
			n := 0
			for _, f := range prog.Funcs {
				lcfg, nblocks := callgraph.BuildFuncCFG(f.Name, f.Insts, f.CallEdges, prog.Base)
				if nblocks == 0 {
					continue
				}
				g := &lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}
				if err := output.WriteDOT(outDir, "cfg/"+render.SafeName(f.Name), lrender.DOTCFG(g, f.Name)); err != nil {
					return err
				}
				n++
			}
			a.log.Info("wrote function CFGs", "count", n, "dir", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write callgraph.dot (and cfg/*.dot) here instead of stdout")
	cmd.Flags().BoolVar(&cfg, "cfg", false, "emit per-function control flow graphs")
	return cmd
}
