package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"unfas/internal/output"
	"unfas/internal/recovery"
)

func newStringsCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "strings <file.fas>",
		Short: "List recovered strings and symbols with their provenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for _, s := range output.Strings(res.Tables) {
					if err := enc.Encode(s); err != nil {
						return err
					}
				}
				return nil
			}
			w := cmd.OutOrStdout()
			printStrings(w, "symbols", "sym", res.Tables.Symbols, all)
			printStrings(w, "strings", "str", res.Tables.Strings, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSONL records")
	cmd.Flags().BoolVar(&all, "all", false, "include unrecovered slots")
	return cmd
}

func printStrings(w io.Writer, title, prefix string, tab []*recovery.String, all bool) {
	recovered := 0
	for _, s := range tab {
		if s != nil {
			recovered++
		}
	}
	fmt.Fprintf(w, "%s: %d/%d recovered\n", title, recovered, len(tab))
	for i, s := range tab {
		if s == nil {
			if all {
				fmt.Fprintf(w, "  %s#%-4d <unrecovered>\n", prefix, i)
			}
			continue
		}
		flag := ""
		if s.Low {
			flag = "  low confidence"
		}
		fmt.Fprintf(w, "  %s#%-4d 0x%06x  %-40s %s%s\n", prefix, i, s.Offset, strconv.Quote(s.Text), s.Provenance(), flag)
	}
}
