package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"unfas/internal/output"
	"unfas/internal/query"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		outDir  string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "batch <file-or-dir>...",
		Short: "Decompile many files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workers > 0 {
				a.cfg.Workers = workers
			}
			paths, err := collectInputs(args)
			if err != nil {
				return err
			}
			f, err := a.facade(nil)
			if err != nil {
				return err
			}

			inputs := make([]query.Input, 0, len(paths))
			for _, p := range paths {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				inputs = append(inputs, query.Input{Name: p, Data: data})
			}
			results, err := f.DecompileBatch(cmd.Context(), inputs)
			if err != nil {
				return err
			}

			failed := 0
			w := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(w, "%-40s error: %v\n", r.Name, r.Err)
					continue
				}
				res := r.Result
				fmt.Fprintf(w, "%-40s %-8s %5.1f%%  %3d functions  %3d diags\n",
					r.Name, res.Container.Header.Variant, 100*res.Coverage(), len(res.Program.Funcs), len(res.Diags))
				if outDir != "" {
					if err := output.WriteLisp(outDir, outputName(r.Name), f.Text(res, filepath.Base(r.Name))); err != nil {
						return err
					}
				}
			}
			a.log.Info("batch done", "files", len(results), "failed", failed, "cached", f.Len())
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write <name>.lsp files here")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent decompilations (overrides config; 0 = GOMAXPROCS)")
	return cmd
}

// facade builds a query facade from the current configuration.
func (a *app) facade(reg prometheus.Registerer) (*query.Facade, error) {
	opts, err := a.options("")
	if err != nil {
		return nil, err
	}
	return query.New(query.Options{
		Decompile:  opts,
		Registerer: reg,
		Workers:    a.cfg.Workers,
		MaxEntries: a.cfg.CacheSize,
	})
}

func isFAS(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".fas")
}

// collectInputs expands directories to the .fas files below them.
func collectInputs(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			out = append(out, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isFAS(path) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no .fas files in %s", strings.Join(args, ", "))
	}
	return out, nil
}
