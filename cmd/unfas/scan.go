package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"unfas/internal/decompiler"
	"unfas/internal/output"
)

func newScanCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "scan <file.fas>",
		Short: "Print container layout, regions and recovery outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(output.NewSummary(args[0], res))
			}
			printScan(cmd.OutOrStdout(), args[0], res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

func printScan(w io.Writer, path string, res *decompiler.Result) {
	h := res.Container.Header
	p := res.Container.Profile
	fmt.Fprintf(w, "file:     %s\n", path)
	fmt.Fprintf(w, "format:   %s (%q, version %d)\n", h.Variant, h.Magic, h.Version)
	if h.Comment != "" {
		fmt.Fprintf(w, "comment:  %s\n", h.Comment)
	}
	if h.Marker != "" {
		fmt.Fprintf(w, "marker:   %s\n", h.Marker)
	}
	fmt.Fprintf(w, "size:     %d bytes, header %d, declared %d\n", h.TotalSize, h.HeaderSize, h.DeclaredSize)
	fmt.Fprintf(w, "sha256:   %s\n", h.SHA256)
	table := "none"
	if p.Table != "" {
		table = p.Table
	}
	fmt.Fprintf(w, "profile:  %s, opcode table %s (using %s v%d)\n", p.ID, table, res.Table.Name(), res.Table.Version())
	fmt.Fprintf(w, "code:     0x%x +%d\n", h.CodeOffset, h.CodeLength)
	if h.AuxLength > 0 {
		fmt.Fprintf(w, "aux:      0x%x +%d\n", h.AuxOffset, h.AuxLength)
	}

	fmt.Fprintf(w, "\nsections:\n")
	for _, s := range res.Container.Sections {
		fmt.Fprintf(w, "  0x%06x-0x%06x  %-9s %d bytes\n", s.Start, s.End, s.Kind, s.Len())
	}

	fmt.Fprintf(w, "\nregions:\n")
	for _, r := range res.Regions {
		fmt.Fprintf(w, "  0x%06x-0x%06x  %-12s %.2f  %s\n", r.Start, r.End, r.Kind, r.Confidence, r.Method)
	}

	if len(res.Tables.Regions) > 0 {
		fmt.Fprintf(w, "\nrecovery:\n")
		for _, rr := range res.Tables.Regions {
			enc := rr.Best.Label()
			if rr.Encoding != "" {
				enc = rr.Encoding
			}
			fmt.Fprintf(w, "  0x%06x-0x%06x  %-12s %-11s %-14s %.2f  %d slots, %d candidates\n",
				rr.Start, rr.End, rr.Kind, rr.Outcome, enc, rr.Best.Score, rr.Slots, rr.Tried)
		}
	}

	fmt.Fprintf(w, "\ninstructions: %d, functions: %d\n", len(res.Instructions), len(res.Program.Funcs))
	fmt.Fprintf(w, "reconstructed: %.1f%% of %d bytes\n", 100*res.Coverage(), res.Total)
	if res.Truncation != nil {
		fmt.Fprintf(w, "truncated: %v\n", res.Truncation)
	}
	fmt.Fprintf(w, "diagnostics: %d\n", len(res.Diags))
	for _, d := range res.Diags {
		fmt.Fprintf(w, "  %s\n", d)
	}
}
