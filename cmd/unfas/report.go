package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"
	lrender "github.com/zboralski/lattice/render"

	"unfas/internal/callgraph"
	"unfas/internal/decompiler"
	"unfas/internal/disasm"
	"unfas/internal/output"
	"unfas/internal/recovery"
	"unfas/internal/render"
)

func newReportCmd(a *app) *cobra.Command {
	var (
		outDir   string
		maxNodes int
		title    string
		svg      bool
		cfg      bool
		hops     int
	)
	cmd := &cobra.Command{
		Use:   "report <file.fas>",
		Short: "Write an HTML summary with call graph, reachability and CFG DOT files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			if title == "" {
				title = filepath.Base(args[0])
			}
			if outDir == "" {
				outDir = outputName(args[0]) + "_report"
			}
			return a.writeReport(res, reportOptions{
				dir: outDir, title: title, maxNodes: maxNodes, svg: svg, cfg: cfg, hops: hops,
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (default <name>_report)")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 0, "max function nodes in the call graph (0 = all)")
	cmd.Flags().StringVar(&title, "title", "", "report title (default: file name)")
	cmd.Flags().BoolVar(&svg, "svg", false, "render SVGs with graphviz dot")
	cmd.Flags().BoolVar(&cfg, "cfg", true, "write per-function CFGs for reachable functions")
	cmd.Flags().IntVar(&hops, "hops", 1, "call hops around signal functions marked as context")
	return cmd
}

type reportOptions struct {
	dir      string
	title    string
	maxNodes int
	svg      bool
	cfg      bool
	hops     int
}

func (a *app) writeReport(res *decompiler.Result, o reportOptions) error {
	funcs, edges := res.Program.Records()
	stats := render.ComputeStats(funcs, edges)
	entryPoints := render.FindEntryPoints(funcs, edges)
	reachable := render.ReachableSet(entryPoints, edges)
	a.log.Info("reachability", "entry_points", len(entryPoints), "reachable", len(reachable), "functions", len(funcs))

	graphs := []struct{ name, dot string }{
		{"callgraph", render.CallgraphDOT(funcs, edges, o.title, render.NASA, o.maxNodes)},
		{"reachable", render.ReachabilityDOT(edges, reachable, entryPoints, o.title+" (reachable)", render.NASA)},
	}
	var links []string
	for _, g := range graphs {
		if err := output.WriteDOT(o.dir, g.name, g.dot); err != nil {
			return err
		}
		links = append(links, g.name+".dot")
		if o.svg {
			dotPath := filepath.Join(o.dir, g.name+".dot")
			if err := runDot(dotPath, filepath.Join(o.dir, g.name+".svg"), "svg"); err != nil {
				a.log.Warn("svg failed", "graph", g.name, "err", err)
			} else {
				links = append(links, g.name+".svg")
			}
		}
	}

	cfgs := 0
	if o.cfg {
		for _, f := range res.Program.Funcs {
			if !reachable[f.Name] {
				continue
			}
			fc := disasm.BuildCFG(f.Name, f.Insts)
			if len(fc.Blocks) == 0 {
				continue
			}
			if err := output.WriteDOT(o.dir, "cfg/"+render.SafeName(f.Name), render.CFGDOT(fc, res.Base, render.NASA)); err != nil {
				return err
			}
			cfgs++
		}
	}

	sig := output.Signals(res, o.hops)
	if err := output.WriteSignalsJSON(o.dir, sig); err != nil {
		return err
	}
	if sig.Stats.SignalFuncs > 0 {
		dot := lrender.DOTCFG(callgraph.SignalCFG(sig), o.title+" (signals)")
		if err := output.WriteDOT(o.dir, "signals", dot); err != nil {
			return err
		}
		links = append(links, "signals.dot")
	}

	r := render.Report{
		Title:          o.title,
		Format:         res.Container.Header.Variant.String(),
		SHA256:         res.Hash,
		Percent:        100 * res.Coverage(),
		Total:          res.Total,
		Diags:          len(res.Diags),
		Stats:          stats,
		EntryPoints:    entryPoints,
		ReachableCount: len(reachable),
		CFGCount:       cfgs,
		Graphs:         links,
		Signals:        sig,
		Source:         res.Text(),
	}
	r.StringsRecovered, r.StringsTotal = countSlots(res.Tables.Strings)
	r.SymbolsRecovered, r.SymbolsTotal = countSlots(res.Tables.Symbols)

	htmlPath := filepath.Join(o.dir, "index.html")
	f, err := os.Create(htmlPath)
	if err != nil {
		return fmt.Errorf("create index.html: %w", err)
	}
	render.WriteReportHTML(f, r)
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index.html: %w", err)
	}
	a.log.Info("wrote report", "path", htmlPath, "cfgs", cfgs)
	return nil
}

func countSlots(tab []*recovery.String) (recovered, total int) {
	for _, s := range tab {
		if s != nil {
			recovered++
		}
	}
	return recovered, len(tab)
}

// runDot invokes graphviz dot to produce the given format.
func runDot(dotPath, outPath, format string) error {
	cmd := exec.Command("dot", "-T"+format, "-o", outPath, dotPath)
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
