package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"unfas/internal/config"
	"unfas/internal/container"
	"unfas/internal/decompiler"
	"unfas/internal/opcode"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the global flags and the state they produce.
type app struct {
	configPath string
	logLevel   string
	mode       string
	maxSteps   int
	table      string

	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "unfas",
		Short: "AutoLISP FAS decompiler",
		Long: `unfas reads compiled AutoLISP (.fas) files and reconstructs readable
AutoLISP source, annotated with how every string and symbol was recovered.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&a.mode, "mode", "", "strict or best-effort (overrides config)")
	pf.IntVar(&a.maxSteps, "max-steps", 0, "instruction decode cap (overrides config)")
	pf.StringVar(&a.table, "table", "", "opcode table name[@version] to use instead of the container's")

	root.AddCommand(
		newScanCmd(a),
		newStringsCmd(a),
		newSignalsCmd(a),
		newDisasmCmd(a),
		newDecompileCmd(a),
		newTreeCmd(a),
		newGraphCmd(a),
		newReportCmd(a),
		newHoverCmd(a),
		newDefinitionCmd(a),
		newBatchCmd(a),
		newWatchCmd(a),
		newDiffCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	log, err := newLogger(a.logLevel, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = log

	a.cfg = config.Default()
	if a.configPath != "" {
		if a.cfg, err = config.Load(a.configPath); err != nil {
			return err
		}
		a.log.Debug("loaded config", "path", a.configPath)
	}
	if a.mode != "" {
		a.cfg.Mode = a.mode
	}
	if a.maxSteps > 0 {
		a.cfg.MaxSteps = a.maxSteps
	}
	return a.cfg.Validate()
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

// options builds pipeline options for one input.
func (a *app) options(title string) (decompiler.Options, error) {
	opts, err := a.cfg.DecompileOptions()
	if err != nil {
		return opts, err
	}
	opts.Title = title
	if a.table != "" {
		t, err := resolveTable(opts.Registry, a.table)
		if err != nil {
			return opts, err
		}
		opts.Table = t
	}
	return opts, nil
}

// resolveTable parses "name" or "name@vN".
func resolveTable(reg *opcode.Registry, ref string) (opcode.OpcodeTable, error) {
	name, ver := ref, 0
	if i := strings.LastIndex(ref, "@v"); i >= 0 {
		v, err := strconv.Atoi(ref[i+2:])
		if err != nil {
			return nil, fmt.Errorf("--table %q: bad version", ref)
		}
		name, ver = ref[:i], v
	}
	t, ok := reg.Resolve(name, ver)
	if !ok {
		return nil, fmt.Errorf("--table %q: not found (have %s)", ref, strings.Join(reg.Names(), ", "))
	}
	return t, nil
}

// decompileFile reads and decompiles path.
func (a *app) decompileFile(path string) (*decompiler.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	opts, err := a.options(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	res, err := decompiler.Decompile(data, opts)
	if err != nil {
		if at := container.FindMagic(data); at > 0 {
			return nil, fmt.Errorf("%s: %w (FAS signature at offset 0x%x)", path, err, at)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	a.logResult(path, res)
	return res, nil
}

func (a *app) logResult(path string, res *decompiler.Result) {
	a.log.Debug("decompiled",
		"file", path,
		"format", res.Container.Header.Variant,
		"instructions", len(res.Instructions),
		"functions", len(res.Program.Funcs),
		"coverage", fmt.Sprintf("%.1f%%", 100*res.Coverage()),
		"diags", len(res.Diags))
	if res.Truncation != nil {
		a.log.Warn("bytecode truncated", "file", path, "err", res.Truncation)
	}
	for _, d := range res.Diags {
		a.log.Debug("diagnostic", "file", path, "kind", d.Kind, "offset", fmt.Sprintf("0x%x", d.Offset), "msg", d.Msg)
	}
}

// outputName is the base name used for files derived from an input.
func outputName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
