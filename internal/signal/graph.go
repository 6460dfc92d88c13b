package signal

import (
	"fmt"
	"sort"

	"unfas/internal/disasm"
	"unfas/internal/syntax"
)

// TopLevel names code outside any function in the graph.
const TopLevel = "<top-level>"

// Ref is a classified string or call in a function.
type Ref struct {
	Func       string   `json:"func"`
	Offset     string   `json:"offset"`
	Kind       string   `json:"kind"` // "string" or "call"
	Value      string   `json:"value"`
	Categories []string `json:"categories,omitempty"`
}

// Func is a function in the signal graph.
type Func struct {
	Name         string   `json:"name"`
	Offset       string   `json:"offset,omitempty"`
	Size         int      `json:"size,omitempty"`
	Refs         []Ref    `json:"refs,omitempty"`
	Categories   []string `json:"categories"`
	Severity     string   `json:"severity,omitempty"` // "high", "medium", "low"
	Role         string   `json:"role"`               // "signal", "context", ""
	IsEntryPoint bool     `json:"is_entry_point,omitempty"`
}

// Edge is a call between two functions of the file.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the signal graph of one file.
type Graph struct {
	Funcs []Func `json:"funcs"`
	Edges []Edge `json:"edges"`
	Stats Stats  `json:"stats"`
}

// Stats holds summary statistics.
type Stats struct {
	TotalFuncs   int            `json:"total_funcs"`
	SignalFuncs  int            `json:"signal_funcs"`
	ContextFuncs int            `json:"context_funcs"`
	TotalEdges   int            `json:"total_edges"`
	RefCount     int            `json:"ref_count"`
	Categories   map[string]int `json:"categories"`
}

// StringRefs collects the recovered string literals of the tree, each
// attributed to its innermost enclosing function.
func StringRefs(nodes []syntax.Node, base int) []Ref {
	var refs []Ref
	var visit func(nodes []syntax.Node, fn string)
	visit = func(nodes []syntax.Node, fn string) {
		for _, n := range nodes {
			switch n := n.(type) {
			case *syntax.FunctionDef:
				visit(n.Body, n.Name.Text)
				continue
			case *syntax.Literal:
				if n.Type == syntax.LitString && n.Ref != nil {
					refs = append(refs, Ref{
						Func:   fn,
						Offset: fmt.Sprintf("0x%x", base+n.Extent.Start),
						Kind:   "string",
						Value:  n.Ref.Text,
					})
				}
			}
			visit(n.Children(), fn)
		}
	}
	visit(nodes, "")
	return refs
}

// Build classifies strings and call targets and marks every function that
// has one as a signal function. Functions within k call hops of a signal
// function, in either direction, are marked as context.
func Build(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, strs []Ref, k int) *Graph {
	type funcSignal struct {
		refs       []Ref
		categories map[string]bool
	}
	signals := make(map[string]*funcSignal)
	catCounts := make(map[string]int)
	refCount := 0

	add := func(r Ref, cats []string) {
		if len(cats) == 0 {
			return
		}
		if r.Func == "" {
			r.Func = TopLevel
		}
		r.Categories = cats
		refCount++
		fs, ok := signals[r.Func]
		if !ok {
			fs = &funcSignal{categories: make(map[string]bool)}
			signals[r.Func] = fs
		}
		fs.refs = append(fs.refs, r)
		for _, c := range cats {
			if !fs.categories[c] {
				fs.categories[c] = true
				catCounts[c]++
			}
		}
	}
	for _, s := range strs {
		add(s, ClassifyString(s.Value))
	}
	for _, e := range edges {
		add(Ref{Func: e.FromFunc, Offset: e.FromPC, Kind: "call", Value: e.Target}, ClassifyCall(e.Target))
	}

	known := make(map[string]bool, len(funcs))
	for _, f := range funcs {
		known[f.Name] = true
	}

	// Edges between functions of this file, deduped.
	var graphEdges []Edge
	seen := make(map[Edge]bool)
	fwd := make(map[string][]string)
	rev := make(map[string][]string)
	called := make(map[string]bool)
	for _, e := range edges {
		if !known[e.Target] {
			continue
		}
		from := e.FromFunc
		if from == "" {
			from = TopLevel
		}
		ge := Edge{From: from, To: e.Target}
		if seen[ge] {
			continue
		}
		seen[ge] = true
		graphEdges = append(graphEdges, ge)
		fwd[ge.From] = append(fwd[ge.From], ge.To)
		rev[ge.To] = append(rev[ge.To], ge.From)
		if from != TopLevel && from != e.Target {
			called[e.Target] = true
		}
	}

	// BFS k hops from signal functions.
	contextSet := make(map[string]bool)
	visited := make(map[string]bool)
	type queueItem struct {
		name  string
		depth int
	}
	var queue []queueItem
	for name := range signals {
		visited[name] = true
		queue = append(queue, queueItem{name, 0})
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].name < queue[j].name })
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= k {
			continue
		}
		for _, adj := range [][]string{fwd[item.name], rev[item.name]} {
			for _, next := range adj {
				if !visited[next] {
					visited[next] = true
					contextSet[next] = true
					queue = append(queue, queueItem{next, item.depth + 1})
				}
			}
		}
	}

	all := make([]Func, 0, len(funcs)+1)
	for _, f := range funcs {
		all = append(all, Func{
			Name:         f.Name,
			Offset:       f.Offset,
			Size:         f.Size,
			IsEntryPoint: !called[f.Name],
		})
	}
	if signals[TopLevel] != nil || contextSet[TopLevel] {
		all = append(all, Func{Name: TopLevel, IsEntryPoint: true})
	}
	for i := range all {
		f := &all[i]
		f.Categories = []string{}
		switch {
		case signals[f.Name] != nil:
			f.Role = "signal"
		case contextSet[f.Name]:
			f.Role = "context"
		}
		if fs, ok := signals[f.Name]; ok {
			f.Refs = fs.refs
			for c := range fs.categories {
				f.Categories = append(f.Categories, c)
			}
			sort.Strings(f.Categories)
			f.Severity = MaxSeverity(f.Categories)
		}
	}

	// Sort: signal, context, other. Within signal: entry points first, then
	// severity, then category count.
	roleOrd := map[string]int{"signal": 0, "context": 1, "": 2}
	sevOrd := map[string]int{SeverityHigh: 0, SeverityMedium: 1, SeverityLow: 2, "": 3}
	sort.SliceStable(all, func(i, j int) bool {
		si, sj := &all[i], &all[j]
		if si.Role != sj.Role {
			return roleOrd[si.Role] < roleOrd[sj.Role]
		}
		if si.Role == "signal" && si.IsEntryPoint != sj.IsEntryPoint {
			return si.IsEntryPoint
		}
		if si.Severity != sj.Severity {
			return sevOrd[si.Severity] < sevOrd[sj.Severity]
		}
		if len(si.Categories) != len(sj.Categories) {
			return len(si.Categories) > len(sj.Categories)
		}
		return si.Name < sj.Name
	})

	signalFuncs := 0
	for _, f := range all {
		if f.Role == "signal" {
			signalFuncs++
		}
	}
	return &Graph{
		Funcs: all,
		Edges: graphEdges,
		Stats: Stats{
			TotalFuncs:   len(funcs),
			SignalFuncs:  signalFuncs,
			ContextFuncs: len(contextSet),
			TotalEdges:   len(graphEdges),
			RefCount:     refCount,
			Categories:   catCounts,
		},
	}
}
