package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"unfas/internal/output"
)

func newDisasmCmd(a *app) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "disasm <file.fas>",
		Short: "Print the annotated instruction listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.decompileFile(args[0])
			if err != nil {
				return err
			}
			if outDir == "" {
				fmt.Fprint(cmd.OutOrStdout(), res.Listing())
				return nil
			}
			if err := output.WriteASM(outDir, res); err != nil {
				return err
			}
			path := filepath.Join(outDir, "instructions.jsonl")
			if err := output.WriteJSONL(path, output.InstRecords(res.Instructions, res.Base)); err != nil {
				return err
			}
			a.log.Info("wrote listing", "instructions", len(res.Instructions), "dir", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write asm.txt and instructions.jsonl here instead of stdout")
	return cmd
}
