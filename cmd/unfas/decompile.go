package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unfas/internal/output"
)

func newDecompileCmd(a *app) *cobra.Command {
	var (
		outDir      string
		stringTable bool
		width       int
	)
	cmd := &cobra.Command{
		Use:   "decompile <file.fas>",
		Short: "Reconstruct AutoLISP source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("string-table") {
				a.cfg.Render.StringTable = stringTable
			}
			if cmd.Flags().Changed("width") {
				a.cfg.Render.Width = width
			}
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			if outDir == "" {
				fmt.Fprint(cmd.OutOrStdout(), res.Text())
				return nil
			}

			name := outputName(args[0])
			if err := output.WriteLisp(outDir, name, res.Text()); err != nil {
				return err
			}
			if err := output.WriteSummaryJSON(outDir, output.NewSummary(args[0], res)); err != nil {
				return err
			}
			if err := output.WriteRecords(outDir, res); err != nil {
				return err
			}
			a.log.Info("decompiled",
				"functions", len(res.Program.Funcs),
				"coverage", fmt.Sprintf("%.1f%%", 100*res.Coverage()),
				"dir", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write <name>.lsp, summary.json and JSONL records here")
	cmd.Flags().BoolVar(&stringTable, "string-table", false, "list the recovered string table in the header")
	cmd.Flags().IntVar(&width, "width", 100, "column at which long calls wrap")
	return cmd
}
