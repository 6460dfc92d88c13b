// Package query is the editor-facing entry point: cached decompilation and
// position and name lookups over finished results.
package query

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"runtime"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"unfas/internal/decompiler"
	"unfas/internal/render"
)

// DefaultMaxEntries is the cache capacity when Options.MaxEntries is 0.
const DefaultMaxEntries = 256

// Options configures a Facade.
type Options struct {
	Decompile  decompiler.Options
	Registerer prometheus.Registerer // nil leaves the metrics unregistered
	Workers    int                   // DecompileBatch concurrency; 0 = GOMAXPROCS
	MaxEntries int                   // cached results; 0 = DefaultMaxEntries
}

// Facade decompiles inputs through a read-through cache keyed by content
// hash. The cache keeps the most recently used results up to its capacity.
// Failed decompilations are not cached. When two callers miss on the same
// input concurrently both run the pipeline; the first to finish is cached
// and the later result is discarded in its favor.
//
// Inputs with equal content share one result, so cached documents carry no
// title. Text renders a result under a caller-chosen title.
type Facade struct {
	opts    decompiler.Options
	workers int
	metrics *Metrics
	cache   *lru.Cache[string, *decompiler.Result]
}

// New creates a Facade.
func New(opts Options) (*Facade, error) {
	m, err := NewMetrics(opts.Registerer)
	if err != nil {
		return nil, fmt.Errorf("query: register metrics: %w", err)
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	size := opts.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	cache, err := lru.NewWithEvict(size, func(string, *decompiler.Result) { m.Evicted.Inc() })
	if err != nil {
		return nil, fmt.Errorf("query: cache: %w", err)
	}
	dopts := opts.Decompile
	dopts.Title = ""
	return &Facade{
		opts:    dopts,
		workers: workers,
		metrics: m,
		cache:   cache,
	}, nil
}

// Key returns the cache key for data.
func Key(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metrics returns the facade's collectors.
func (f *Facade) Metrics() *Metrics { return f.metrics }

// Decompile returns the cached result for data, running the pipeline on a
// miss.
func (f *Facade) Decompile(data []byte) (*decompiler.Result, error) {
	key := Key(data)
	if res, ok := f.lookup(key); ok {
		f.metrics.Hits.Inc()
		return res, nil
	}
	f.metrics.Misses.Inc()

	start := time.Now()
	res, err := decompiler.Decompile(data, f.opts)
	f.metrics.Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return f.store(key, res), nil
}

func (f *Facade) lookup(key string) (*decompiler.Result, bool) {
	return f.cache.Get(key)
}

func (f *Facade) store(key string, res *decompiler.Result) *decompiler.Result {
	if prev, ok, _ := f.cache.PeekOrAdd(key, res); ok {
		f.metrics.Discarded.Inc()
		return prev
	}
	return res
}

// Cached reports whether data has a cached result. It does not refresh the
// entry's recency.
func (f *Facade) Cached(data []byte) bool {
	return f.cache.Contains(Key(data))
}

// Len returns the number of cached results.
func (f *Facade) Len() int { return f.cache.Len() }

// Text renders res as AutoLISP under title with the facade's render options.
func (f *Facade) Text(res *decompiler.Result, title string) string {
	return render.Lisp(res.RenderInput(title), f.opts.Render).Text
}

// Input is one named file for DecompileBatch.
type Input struct {
	Name string
	Data []byte
}

// BatchResult pairs an input name with its outcome.
type BatchResult struct {
	Name   string
	Result *decompiler.Result
	Err    error
}

// DecompileBatch decompiles inputs concurrently. Per-file failures are
// reported in the matching BatchResult; only cancellation of ctx aborts the
// batch. Results are in input order.
func (f *Facade) DecompileBatch(ctx context.Context, inputs []Input) ([]BatchResult, error) {
	out := make([]BatchResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, in := range inputs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := f.Decompile(in.Data)
			out[i] = BatchResult{Name: in.Name, Result: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
