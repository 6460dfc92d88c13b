package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"unfas/internal/output"
	"unfas/internal/signal"
)

func newSignalsCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		hops    int
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "signals <file.fas>",
		Short: "Flag functions that touch startup files, the registry, the shell or COM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			g := output.Signals(res, hops)
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			}
			printSignals(cmd.OutOrStdout(), g, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output the signal graph as JSON")
	cmd.Flags().IntVar(&hops, "hops", 1, "call hops around signal functions marked as context")
	cmd.Flags().BoolVar(&all, "all", false, "list functions without signals too")
	return cmd
}

func printSignals(w io.Writer, g *signal.Graph, all bool) {
	st := g.Stats
	fmt.Fprintf(w, "functions: %d  signal: %d  context: %d  refs: %d\n",
		st.TotalFuncs, st.SignalFuncs, st.ContextFuncs, st.RefCount)
	for _, f := range g.Funcs {
		if f.Role == "" && !all {
			continue
		}
		role := f.Role
		if role == "" {
			role = "-"
		}
		entry := ""
		if f.IsEntryPoint {
			entry = " entry"
		}
		fmt.Fprintf(w, "  %-8s %-24s %-6s %s%s\n", role, f.Name, f.Severity, strings.Join(f.Categories, ","), entry)
		for _, r := range f.Refs {
			fmt.Fprintf(w, "      %s %-6s %q [%s]\n", r.Offset, r.Kind, r.Value, strings.Join(r.Categories, ","))
		}
	}
}
