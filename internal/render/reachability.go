package render

import (
	"fmt"
	"sort"
	"strings"

	"unfas/internal/disasm"
)

// FindEntryPoints returns functions that are called from top-level code or
// are never called by another function in the file. AutoLISP command
// functions (c:name) are invoked by the host, so they are always entry
// points.
func FindEntryPoints(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) []string {
	fromTop := make(map[string]bool)
	calledByFunc := make(map[string]bool)
	for _, e := range edges {
		if e.Target == "" {
			continue
		}
		if e.FromFunc == "" {
			fromTop[e.Target] = true
		} else if e.FromFunc != e.Target {
			calledByFunc[e.Target] = true
		}
	}

	var entries []string
	for _, f := range funcs {
		if fromTop[f.Name] || !calledByFunc[f.Name] || strings.HasPrefix(strings.ToLower(f.Name), "c:") {
			entries = append(entries, f.Name)
		}
	}
	sort.Strings(entries)
	return entries
}

// ReachableSet performs BFS from entry points following call edges and
// returns the set of all reachable names, external callees included.
func ReachableSet(entryPoints []string, edges []disasm.CallEdgeRecord) map[string]bool {
	adj := make(map[string][]string)
	for _, e := range edges {
		if e.FromFunc != "" && e.Target != "" {
			adj[e.FromFunc] = append(adj[e.FromFunc], e.Target)
		}
	}

	reachable := make(map[string]bool)
	queue := make([]string, 0, len(entryPoints))
	for _, ep := range entryPoints {
		if !reachable[ep] {
			reachable[ep] = true
			queue = append(queue, ep)
		}
	}

	for len(queue) > 0 {
		fn := queue[0]
		queue = queue[1:]
		for _, target := range adj[fn] {
			if !reachable[target] {
				reachable[target] = true
				queue = append(queue, target)
			}
		}
	}
	return reachable
}

// ReachabilityDOT renders a callgraph filtered to the reachable set.
// Entry points are highlighted. Only edges between reachable names are
// shown.
func ReachabilityDOT(edges []disasm.CallEdgeRecord, reachable map[string]bool, entryPoints []string, title string, t Theme) string {
	entrySet := make(map[string]bool, len(entryPoints))
	for _, ep := range entryPoints {
		entrySet[ep] = true
	}

	var reach []disasm.CallEdgeRecord
	for _, e := range edges {
		if e.FromFunc != "" && reachable[e.FromFunc] && reachable[e.Target] {
			reach = append(reach, e)
		}
	}
	keys, counts := dedupEdges(reach)

	refNodes := make(map[string]bool)
	for _, k := range keys {
		refNodes[k.from] = true
		refNodes[k.to] = true
	}
	for _, ep := range entryPoints {
		refNodes[ep] = true
	}
	names := make([]string, 0, len(refNodes))
	for name := range refNodes {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	graphPreamble(&b, "reachable", title, t)
	for _, name := range names {
		id := dotID(name)
		label := truncLabel(name, 50)
		if entrySet[name] {
			fmt.Fprintf(&b, "  %s [label=%q, penwidth=1.5, color=%q];\n", id, label, t.EntryBorder)
		} else {
			fmt.Fprintf(&b, "  %s [label=%q];\n", id, label)
		}
	}
	b.WriteByte('\n')

	for _, k := range keys {
		attrs := fmt.Sprintf("color=%q", t.EdgeResolved)
		if count := counts[k]; count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
