package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"unfas/internal/syntax"
)

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree <file.fas>",
		Short: "Print the reconstructed syntax tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), syntax.Tree(filepath.Base(args[0]), res.Nodes))
			return nil
		},
	}
}
