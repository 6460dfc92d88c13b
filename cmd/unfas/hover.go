package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"unfas/internal/query"
)

func newHoverCmd(a *app) *cobra.Command {
	var (
		offset  int
		line    int
		col     int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "hover <file.fas>",
		Short: "Describe the symbol at a file offset or at a line of the rendered source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byOffset := cmd.Flags().Changed("offset")
			if byOffset == (line > 0) {
				return errors.New("give exactly one of --offset or --line")
			}
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}

			var (
				info *query.SymbolInfo
				ok   bool
			)
			if byOffset {
				info, ok = query.FindSymbolAt(res, offset)
			} else {
				info, ok = query.FindSymbolAtLine(res, line, col)
			}
			if !ok {
				return errors.New("no symbol at that position")
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			fmt.Fprint(cmd.OutOrStdout(), query.Describe(res, info))
			return nil
		},
	}
	cmd.Flags().IntVar(&offset, "offset", 0, "absolute file offset")
	cmd.Flags().IntVar(&line, "line", 0, "1-based line of the rendered source")
	cmd.Flags().IntVar(&col, "col", 0, "1-based column on --line (0 = whole line)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the symbol as JSON")
	return cmd
}

func newDefinitionCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "definition <file.fas> <name>",
		Short: "Locate the definition of a function or variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			d, ok := query.FindDefinition(res, args[1])
			if !ok {
				return fmt.Errorf("%s: no definition", args[1])
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(d)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s at 0x%x", d.Kind, d.Name, d.Offset)
			if d.Line > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", line %d", d.Line)
			}
			if d.Function != "" {
				fmt.Fprintf(cmd.OutOrStdout(), ", in %s", d.Function)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the definition as JSON")
	return cmd
}
