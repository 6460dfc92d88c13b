package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unfas/internal/decompiler"
	"unfas/internal/testfas"
)

func sampleData() []byte {
	code, aux := testfas.Sample()
	return testfas.FAS4(code, aux)
}

func newFacade(t *testing.T) *Facade {
	t.Helper()
	f, err := New(Options{Registerer: prometheus.NewRegistry(), Workers: 2})
	require.NoError(t, err)
	return f
}

func sampleResult(t *testing.T) *decompiler.Result {
	t.Helper()
	res, err := decompiler.Decompile(sampleData(), decompiler.Options{Title: "sample.fas"})
	require.NoError(t, err)
	require.Equal(t, 39, res.Base)
	return res
}

// lineOf returns the 1-based line starting with prefix after trimming
// indentation.
func lineOf(t *testing.T, text, prefix string) (int, string) {
	t.Helper()
	for i, l := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimLeft(l, " "), prefix) {
			return i + 1, l
		}
	}
	t.Fatalf("no line starting with %q in:\n%s", prefix, text)
	return 0, ""
}

func TestFacadeCache(t *testing.T) {
	f := newFacade(t)
	data := sampleData()

	first, err := f.Decompile(data)
	require.NoError(t, err)
	assert.False(t, f.Cached([]byte("other")))
	assert.True(t, f.Cached(data))

	second, err := f.Decompile(data)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.Len())

	m := f.Metrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Misses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Hits))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Discarded))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestFacadeFailuresNotCached(t *testing.T) {
	f := newFacade(t)
	for range 2 {
		_, err := f.Decompile([]byte("not a fas file"))
		require.Error(t, err)
	}
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 2.0, testutil.ToFloat64(f.Metrics().Misses))
}

func TestFacadeFirstWriterWins(t *testing.T) {
	f := newFacade(t)
	a := sampleResult(t)
	b := sampleResult(t)
	key := Key(sampleData())

	assert.Same(t, a, f.store(key, a))
	assert.Same(t, a, f.store(key, b))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.Metrics().Discarded))
}

func TestFacadeConcurrent(t *testing.T) {
	f := newFacade(t)
	data := sampleData()
	const n = 8
	results := make([]*decompiler.Result, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.Decompile(data)
			if err == nil {
				results[i] = res
			}
		}()
	}
	wg.Wait()
	for _, r := range results {
		require.NotNil(t, r)
		assert.Same(t, results[0], r)
	}
	m := f.Metrics()
	hits, misses := testutil.ToFloat64(m.Hits), testutil.ToFloat64(m.Misses)
	assert.Equal(t, float64(n), hits+misses)
	assert.Equal(t, misses-1, testutil.ToFloat64(m.Discarded))
}

func TestFacadeEvictsLeastRecentlyUsed(t *testing.T) {
	f, err := New(Options{MaxEntries: 2})
	require.NoError(t, err)
	code, aux := testfas.Sample()
	inputs := [][]byte{
		testfas.FAS4(code, aux),
		testfas.FAS4(code, nil),
		testfas.FAS4(code, append(append([]byte(nil), aux...), 0, 0)),
	}
	for _, in := range inputs[:2] {
		_, err := f.Decompile(in)
		require.NoError(t, err)
	}
	// Touch the first so the second is the oldest.
	_, err = f.Decompile(inputs[0])
	require.NoError(t, err)
	_, err = f.Decompile(inputs[2])
	require.NoError(t, err)

	assert.Equal(t, 2, f.Len())
	assert.True(t, f.Cached(inputs[0]))
	assert.False(t, f.Cached(inputs[1]))
	assert.True(t, f.Cached(inputs[2]))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.Metrics().Evicted))
}

func TestFacadeResultsCarryNoTitle(t *testing.T) {
	f, err := New(Options{Decompile: decompiler.Options{Title: "first.fas"}})
	require.NoError(t, err)
	res, err := f.Decompile(sampleData())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Text(), ";;; input\n"), res.Text())

	again, err := f.Decompile(sampleData())
	require.NoError(t, err)
	a, b := f.Text(again, "a.fas"), f.Text(again, "b.fas")
	assert.True(t, strings.HasPrefix(a, ";;; a.fas\n"))
	assert.True(t, strings.HasPrefix(b, ";;; b.fas\n"))
	assert.Equal(t, strings.SplitN(a, "\n", 2)[1], strings.SplitN(b, "\n", 2)[1])
}

func TestFacadeRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(Options{Registerer: reg})
	require.NoError(t, err)
	_, err = New(Options{Registerer: reg})
	require.Error(t, err)

	_, err = New(Options{})
	require.NoError(t, err)
}

func TestDecompileBatch(t *testing.T) {
	f := newFacade(t)
	inputs := []Input{
		{Name: "a.fas", Data: sampleData()},
		{Name: "bad.fas", Data: []byte("junk")},
		{Name: "b.fas", Data: sampleData()},
	}
	out, err := f.DecompileBatch(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, in := range inputs {
		assert.Equal(t, in.Name, out[i].Name)
	}
	assert.NoError(t, out[0].Err)
	assert.Error(t, out[1].Err)
	assert.Nil(t, out[1].Result)
	assert.Same(t, out[0].Result, out[2].Result)
	assert.Equal(t, 1, f.Len())
}

func TestDecompileBatchCanceled(t *testing.T) {
	f := newFacade(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.DecompileBatch(ctx, []Input{{Name: "a.fas", Data: sampleData()}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestFindSymbolAt(t *testing.T) {
	res := sampleResult(t)
	tests := []struct {
		rel      int
		name     string
		kind     SymbolKind
		function string
		index    int
	}{
		{0, "greet", SymFunction, "", 0},
		{4, "greet", SymFunction, "", 0},
		{6, "name", SymParameter, "greet", 1},
		{10, "msg", SymLocal, "greet", 2},
		{12, "HELLO", SymString, "greet", 0},
		{15, "msg", SymLocal, "greet", 2},
		{18, "msg", SymLocal, "greet", 2},
		{22, "princ", SymCall, "greet", 3},
		{25, "greet", SymFunction, "", 0},
		{26, "World", SymString, "", 1},
		{29, "greet", SymCall, "", 0},
		{33, "greet", SymCall, "", 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("0x%x", tt.rel), func(t *testing.T) {
			info, ok := FindSymbolAt(res, res.Base+tt.rel)
			require.True(t, ok)
			assert.Equal(t, tt.name, info.Name)
			assert.Equal(t, tt.kind, info.Kind)
			assert.Equal(t, tt.function, info.Function)
			assert.Equal(t, tt.index, info.Index)
			assert.True(t, info.Resolved)
			assert.Equal(t, res.Base+tt.rel, info.Offset)
		})
	}
}

func TestFindSymbolAtSetq(t *testing.T) {
	code := new(testfas.Asm).PushInt8(5).SetVar(0).Bytes()
	data := testfas.FAS4(code, testfas.SymbolTable("counter", "total", "items", "limit"))
	res, err := decompiler.Decompile(data, decompiler.Options{})
	require.NoError(t, err)

	info, ok := FindSymbolAt(res, res.Base)
	require.True(t, ok)
	assert.Equal(t, SymLiteral, info.Kind)
	assert.Equal(t, "5", info.Name)
	assert.Equal(t, -1, info.Index)

	info, ok = FindSymbolAt(res, res.Base+2)
	require.True(t, ok)
	assert.Equal(t, SymVariable, info.Kind)
	assert.Equal(t, "counter", info.Name)
}

func TestFindSymbolAtOutOfRange(t *testing.T) {
	res := sampleResult(t)
	for _, off := range []int{0, res.Base - 1, res.Base + res.Total, 1 << 20} {
		_, ok := FindSymbolAt(res, off)
		assert.False(t, ok, "offset %d", off)
	}
	_, ok := FindSymbolAt(nil, 0)
	assert.False(t, ok)
}

func TestFindSymbolAtOpaque(t *testing.T) {
	data := testfas.FAS4(make([]byte, 4), nil)
	res, err := decompiler.Decompile(data, decompiler.Options{})
	require.NoError(t, err)
	info, ok := FindSymbolAt(res, res.Base+2)
	require.True(t, ok)
	assert.Equal(t, SymOpaque, info.Kind)
	assert.Contains(t, info.Name, "op_00")
	assert.NotEmpty(t, info.Provenance)
}

func TestFindSymbolAtUnresolved(t *testing.T) {
	code, _ := testfas.Sample()
	res, err := decompiler.Decompile(testfas.FAS4(code, nil), decompiler.Options{})
	require.NoError(t, err)
	info, ok := FindSymbolAt(res, res.Base+22)
	require.True(t, ok)
	assert.Equal(t, "sym_3", info.Name)
	assert.False(t, info.Resolved)

	md, ok := Hover(res, res.Base+22)
	require.True(t, ok)
	assert.Contains(t, md, "sym#3 unresolved")
}

func TestFindSymbolAtLine(t *testing.T) {
	res := sampleResult(t)
	text := res.Document.Text

	line, s := lineOf(t, text, "(defun greet")
	info, ok := FindSymbolAtLine(res, line, strings.Index(s, "name")+1)
	require.True(t, ok)
	assert.Equal(t, SymParameter, info.Kind)
	assert.Equal(t, "name", info.Name)

	info, ok = FindSymbolAtLine(res, line, 0)
	require.True(t, ok)
	assert.Equal(t, SymFunction, info.Kind)

	line, s = lineOf(t, text, "(princ msg")
	info, ok = FindSymbolAtLine(res, line, strings.Index(s, "msg")+2)
	require.True(t, ok)
	assert.Equal(t, "msg", info.Name)
	assert.Equal(t, SymLocal, info.Kind)

	info, ok = FindSymbolAtLine(res, line, strings.Index(s, "princ")+1)
	require.True(t, ok)
	assert.Equal(t, SymCall, info.Kind)

	line, s = lineOf(t, text, "(greet \"World\"")
	info, ok = FindSymbolAtLine(res, line, strings.Index(s, "World")+1)
	require.True(t, ok)
	assert.Equal(t, SymString, info.Kind)
	assert.Equal(t, "World", info.Name)

	_, ok = FindSymbolAtLine(res, 1, 1) // header comment
	assert.False(t, ok)
	_, ok = FindSymbolAtLine(res, 0, 1)
	assert.False(t, ok)
	_, ok = FindSymbolAtLine(res, 10000, 1)
	assert.False(t, ok)
}

func TestTokenAt(t *testing.T) {
	s := `  (setq msg "HELLO")`
	assert.Equal(t, "setq", tokenAt(s, 5))
	assert.Equal(t, "msg", tokenAt(s, 10))
	assert.Equal(t, "HELLO", tokenAt(s, 15))
	assert.Equal(t, "", tokenAt(s, 3))
	assert.Equal(t, "", tokenAt(s, 0))
	assert.Equal(t, "", tokenAt(s, 100))
}

func TestFindDefinition(t *testing.T) {
	res := sampleResult(t)
	text := res.Document.Text

	d, ok := FindDefinition(res, "greet")
	require.True(t, ok)
	assert.Equal(t, SymFunction, d.Kind)
	assert.Equal(t, res.Base, d.Offset)
	line, _ := lineOf(t, text, "(defun greet")
	assert.Equal(t, line, d.Line)

	d, ok = FindDefinition(res, "msg")
	require.True(t, ok)
	assert.Equal(t, SymVariable, d.Kind)
	assert.Equal(t, res.Base+12, d.Offset)
	assert.Equal(t, "greet", d.Function)
	line, _ = lineOf(t, text, "(setq msg")
	assert.Equal(t, line, d.Line)

	d, ok = FindDefinition(res, "name")
	require.True(t, ok)
	assert.Equal(t, SymParameter, d.Kind)
	assert.Equal(t, res.Base+6, d.Offset)
	assert.Equal(t, "greet", d.Function)

	_, ok = FindDefinition(res, "princ")
	assert.False(t, ok)
	_, ok = FindDefinition(nil, "greet")
	assert.False(t, ok)
}

func TestHover(t *testing.T) {
	res := sampleResult(t)

	md, ok := Hover(res, res.Base+29)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(md, "```lisp\n(defun greet (name / msg))\n```\n"), md)
	assert.Contains(t, md, "call at 0x44")
	assert.Contains(t, md, "sym#0 recovered by direct")
	assert.Contains(t, md, "defined at 0x27")

	md, ok = Hover(res, res.Base+22)
	require.True(t, ok)
	assert.Contains(t, md, "call in `greet`")
	assert.Contains(t, md, "not defined in this file")

	md, ok = Hover(res, res.Base+12)
	require.True(t, ok)
	assert.Contains(t, md, "\"HELLO\"")
	assert.Contains(t, md, "str#0")

	_, ok = Hover(res, 0)
	assert.False(t, ok)
}

func TestHoverAtLine(t *testing.T) {
	res := sampleResult(t)
	line, s := lineOf(t, res.Document.Text, "(defun greet")
	md, ok := HoverAtLine(res, line, strings.Index(s, "msg")+1)
	require.True(t, ok)
	assert.Contains(t, md, "local in `greet`")
	assert.Contains(t, md, "defined at")
}
