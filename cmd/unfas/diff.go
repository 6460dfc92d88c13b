package main

import (
	"fmt"
	"strings"

	dmp "github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
)

func newDiffCmd(a *app) *cobra.Command {
	var header bool
	cmd := &cobra.Command{
		Use:   "diff <old.fas> <new.fas>",
		Short: "Compare the reconstructed source of two files line by line",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var texts [2]string
			for i, p := range args {
				res, err := a.decompileFile(p)
				if err != nil {
					return err
				}
				texts[i] = res.Text()
				if !header {
					texts[i] = stripHeader(texts[i])
				}
			}
			out, changed := lineDiff(texts[0], texts[1])
			if !changed {
				a.log.Info("no differences", "old", args[0], "new", args[1])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--- %s\n+++ %s\n%s", args[0], args[1], out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&header, "header", false, "include the ;;; summary header in the comparison")
	return cmd
}

// stripHeader drops the leading ;;; summary lines and the blank line after
// them.
func stripHeader(text string) string {
	lines := strings.SplitAfter(text, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ";;;") {
		i++
	}
	if i < len(lines) && lines[i] == "\n" {
		i++
	}
	return strings.Join(lines[i:], "")
}

// lineDiff returns before and after as a line diff with -, + and space markers,
// and whether they differ.
func lineDiff(before, after string) (string, bool) {
	d := dmp.New()
	a, b, lines := d.DiffLinesToChars(before, after)
	diffs := d.DiffCharsToLines(d.DiffMain(a, b, false), lines)

	var sb strings.Builder
	changed := false
	for _, df := range diffs {
		mark := " "
		switch df.Type {
		case dmp.DiffDelete:
			mark, changed = "-", true
		case dmp.DiffInsert:
			mark, changed = "+", true
		}
		for _, l := range strings.SplitAfter(df.Text, "\n") {
			if l == "" {
				continue
			}
			sb.WriteString(mark + l)
			if !strings.HasSuffix(l, "\n") {
				sb.WriteString("\n")
			}
		}
	}
	return sb.String(), changed
}
