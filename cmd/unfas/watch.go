package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"unfas/internal/output"
	"unfas/internal/query"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		outDir      string
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <file-or-dir>",
		Short: "Re-decompile .fas files whenever they change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			f, err := a.facade(reg)
			if err != nil {
				return err
			}
			if metricsAddr != "" {
				go serveMetrics(a, metricsAddr, reg)
			}

			w := &watcher{app: a, facade: f, outDir: outDir, last: map[string]string{}}
			initial, err := collectInputs(args)
			if err != nil {
				return err
			}
			w.process(initial)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a.log.Info("watching", "path", args[0])
			return watchPath(ctx, args[0], debounce, w.process)
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "write <name>.lsp here (default: next to each input)")
	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "quiet period before processing changes")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9102")
	return cmd
}

func serveMetrics(a *app, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	a.log.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("metrics server", "err", err)
	}
}

type watcher struct {
	app    *app
	facade *query.Facade
	outDir string
	last   map[string]string // path -> content key of the last rendering
}

// process decompiles changed .fas files. Files whose content matches their
// last rendering are skipped.
func (w *watcher) process(paths []string) {
	for _, p := range paths {
		if !isFAS(p) {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				w.app.log.Warn("read failed", "file", p, "err", err)
			}
			continue
		}
		key := query.Key(data)
		if w.last[p] == key {
			w.app.log.Debug("unchanged", "file", p)
			continue
		}
		res, err := w.facade.Decompile(data)
		if err != nil {
			w.app.log.Error("decompile failed", "file", p, "err", err)
			continue
		}
		w.app.logResult(p, res)

		dir := w.outDir
		if dir == "" {
			dir = filepath.Dir(p)
		}
		if err := output.WriteLisp(dir, outputName(p), w.facade.Text(res, filepath.Base(p))); err != nil {
			w.app.log.Error("write failed", "file", p, "err", err)
			continue
		}
		w.last[p] = key
		w.app.log.Info("decompiled", "file", p,
			"functions", len(res.Program.Funcs),
			"coverage", fmt.Sprintf("%.1f%%", 100*res.Coverage()))
	}
}

// watchPath calls onChange with the sorted set of paths touched during each
// quiet period of length debounce, until ctx is done.
func watchPath(ctx context.Context, target string, debounce time.Duration, onChange func([]string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	root := filepath.Clean(target)
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	dir := root
	if !info.IsDir() {
		dir = filepath.Dir(root)
	}
	if err := fw.Add(dir); err != nil {
		return err
	}

	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	pending := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			path := filepath.Clean(ev.Name)
			if !info.IsDir() && path != root {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			pending[path] = true
			timer.Reset(debounce)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			pending = map[string]bool{}
			onChange(changed)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
