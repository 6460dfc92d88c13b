package render

import (
	"fmt"
	"sort"
	"strings"

	"unfas/internal/disasm"
)

// TopLevel names the pseudo-function that makes calls outside any defun.
const TopLevel = "(top level)"

// Provenance categories of a call edge.
const (
	ProvResolved   = "resolved"
	ProvUnresolved = "unresolved"
	ProvTopLevel   = "toplevel"
)

// ClassifyEdgeProv returns the provenance category for a call edge.
func ClassifyEdgeProv(e disasm.CallEdgeRecord) string {
	switch {
	case !e.Resolved:
		return ProvUnresolved
	case e.FromFunc == "":
		return ProvTopLevel
	default:
		return ProvResolved
	}
}

// edgeColor returns the DOT color for an edge provenance category.
func edgeColor(prov string, t Theme) string {
	switch prov {
	case ProvUnresolved:
		return t.EdgeUnresolved
	case ProvTopLevel:
		return t.EdgeTopLevel
	default:
		return t.EdgeResolved
	}
}

// edgeStyle returns dot style attributes for provenance.
func edgeStyle(prov string) string {
	if prov == ProvUnresolved {
		return "dashed"
	}
	return "solid"
}

func caller(e disasm.CallEdgeRecord) string {
	if e.FromFunc == "" {
		return TopLevel
	}
	return e.FromFunc
}

type edgeKey struct{ from, to, prov string }

// dedupEdges counts call edges per caller, callee and provenance, in a
// stable order.
func dedupEdges(edges []disasm.CallEdgeRecord) ([]edgeKey, map[edgeKey]int) {
	counts := make(map[edgeKey]int)
	var keys []edgeKey
	for _, e := range edges {
		if e.Target == "" {
			continue
		}
		k := edgeKey{caller(e), e.Target, ClassifyEdgeProv(e)}
		if counts[k] == 0 {
			keys = append(keys, k)
		}
		counts[k]++
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		if keys[i].to != keys[j].to {
			return keys[i].to < keys[j].to
		}
		return keys[i].prov < keys[j].prov
	})
	return keys, counts
}

func graphPreamble(b *strings.Builder, name, title string, t Theme) {
	fmt.Fprintf(b, "digraph %s {\n", name)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.4;\n")
	b.WriteString("  ranksep=0.6;\n")
	fmt.Fprintf(b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=9, fontcolor=%q, height=0.3, margin=\"0.12,0.06\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee];\n")
	if title != "" {
		fmt.Fprintf(b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')
}

// CallgraphDOT renders a callgraph from functions and call edges as DOT.
// Callees with no function body in the file (builtins such as princ) are
// shown as plaintext nodes. maxNodes limits the number of function nodes
// rendered (0 = all).
func CallgraphDOT(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	keys, counts := dedupEdges(edges)

	renderFuncs := funcs
	if maxNodes > 0 && len(renderFuncs) > maxNodes {
		renderFuncs = renderFuncs[:maxNodes]
	}
	funcSet := make(map[string]bool, len(renderFuncs)+1)
	for _, f := range renderFuncs {
		funcSet[f.Name] = true
	}
	hasTop := false
	for _, k := range keys {
		if k.from == TopLevel {
			hasTop = true
		}
	}
	if hasTop {
		funcSet[TopLevel] = true
	}

	var b strings.Builder
	graphPreamble(&b, "callgraph", title, t)

	if hasTop {
		fmt.Fprintf(&b, "  %s [label=%q, shape=oval, penwidth=1.5, color=%q];\n", dotID(TopLevel), TopLevel, t.EntryBorder)
	}
	for _, f := range renderFuncs {
		label := truncLabel(f.Name, 60)
		if f.Confidence == "low" {
			fmt.Fprintf(&b, "  %s [label=%q, fillcolor=%q];\n", dotID(f.Name), label, t.LowFill)
		} else {
			fmt.Fprintf(&b, "  %s [label=%q];\n", dotID(f.Name), label)
		}
	}
	b.WriteByte('\n')

	external := make(map[string]bool)
	var externals []string
	for _, k := range keys {
		if funcSet[k.from] && !funcSet[k.to] && !external[k.to] {
			external[k.to] = true
			externals = append(externals, k.to)
		}
	}
	for _, name := range externals {
		fmt.Fprintf(&b, "  %s [label=%q, shape=plaintext, style=\"\", fillcolor=none, fontcolor=%q, fontsize=8];\n",
			dotID(name), truncLabel(name, 50), t.ExternalText)
	}
	b.WriteByte('\n')

	for _, k := range keys {
		if !funcSet[k.from] {
			continue
		}
		count := counts[k]
		color := edgeColor(k.prov, t)
		attrs := fmt.Sprintf("color=%q, style=%q", color, edgeStyle(k.prov))
		if count > 1 {
			attrs += fmt.Sprintf(", penwidth=%.1f", 0.5+float64(count)*0.1)
			if count > 2 {
				attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%dx</font>>", color, count)
			}
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(k.from), dotID(k.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}

// CallgraphStats computes summary statistics from edges.
type CallgraphStats struct {
	TotalFunctions int
	LowConfidence  int
	TotalEdges     int
	Resolved       int
	Unresolved     int
	TopLevelCalls  int
	ProvCounts     map[string]int
	TopCallers     []NameCount // sorted desc
	TopCallees     []NameCount // sorted desc
}

// NameCount pairs a name with a count.
type NameCount struct {
	Name  string
	Count int
}

// ComputeStats computes callgraph statistics.
func ComputeStats(funcs []disasm.FuncRecord, edges []disasm.CallEdgeRecord) CallgraphStats {
	stats := CallgraphStats{
		TotalFunctions: len(funcs),
		TotalEdges:     len(edges),
		ProvCounts:     make(map[string]int),
	}
	for _, f := range funcs {
		if f.Confidence == "low" {
			stats.LowConfidence++
		}
	}

	callerCount := make(map[string]int)
	calleeCount := make(map[string]int)
	for _, e := range edges {
		stats.ProvCounts[ClassifyEdgeProv(e)]++
		if e.Resolved {
			stats.Resolved++
		} else {
			stats.Unresolved++
		}
		if e.FromFunc == "" {
			stats.TopLevelCalls++
		}
		callerCount[caller(e)]++
		if e.Target != "" {
			calleeCount[e.Target]++
		}
	}

	stats.TopCallers = topNMap(callerCount, 20)
	stats.TopCallees = topNMap(calleeCount, 20)
	return stats
}

// topNMap returns the top N entries from a map, sorted descending by count
// then by name.
func topNMap(m map[string]int, n int) []NameCount {
	entries := make([]NameCount, 0, len(m))
	for name, count := range m {
		entries = append(entries, NameCount{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
