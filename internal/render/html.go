package render

import (
	"fmt"
	"io"
	"strings"

	"unfas/internal/signal"
)

// Report is the data behind the HTML summary page.
type Report struct {
	Title   string
	Format  string
	SHA256  string
	Percent float64 // bytecode folded into named constructs
	Total   int     // bytecode bytes
	Diags   int

	StringsRecovered, StringsTotal int
	SymbolsRecovered, SymbolsTotal int

	Stats          CallgraphStats
	EntryPoints    []string
	ReachableCount int
	CFGCount       int
	Graphs         []string // graph files written next to the page, e.g. callgraph.dot
	Signals        *signal.Graph

	Source string // rendered AutoLISP
}

// WriteReportHTML writes a small HTML page summarizing a decompilation.
func WriteReportHTML(w io.Writer, r Report) {
	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: "Helvetica Neue", Helvetica, Arial, sans-serif; font-size: 14px; color: #1A1A1A; background: #F5F5F5; margin: 2em; max-width: 900px; }
h1 { font-size: 18px; font-weight: 600; margin-bottom: 0.5em; }
h2 { font-size: 14px; font-weight: 600; margin-top: 1.5em; border-bottom: 1px solid #ddd; padding-bottom: 4px; }
table { border-collapse: collapse; margin: 0.5em 0; }
th, td { text-align: left; padding: 3px 12px 3px 0; font-size: 13px; }
th { font-weight: 600; }
td.num { text-align: right; font-variant-numeric: tabular-nums; }
.prov { display: inline-block; width: 10px; height: 10px; border-radius: 2px; margin-right: 4px; vertical-align: middle; }
a { color: #0B3D91; }
.bar { height: 8px; border-radius: 2px; display: inline-block; vertical-align: middle; }
.ep { font-family: "Courier New", monospace; font-size: 12px; }
pre { background: white; border: 1px solid #ddd; padding: 1em; font-size: 12px; overflow-x: auto; }
</style>
</head>
<body>
`, htmlEscape(r.Title))

	fmt.Fprintf(w, "<h1>%s</h1>\n", htmlEscape(r.Title))

	fmt.Fprintln(w, "<h2>Summary</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintf(w, "<tr><td>Format</td><td>%s</td></tr>\n", htmlEscape(r.Format))
	if r.SHA256 != "" {
		fmt.Fprintf(w, "<tr><td>SHA-256</td><td class=\"ep\">%s</td></tr>\n", htmlEscape(r.SHA256))
	}
	fmt.Fprintf(w, "<tr><td>Reconstructed</td><td class=\"num\">%.1f%% of %d bytes</td></tr>\n", r.Percent, r.Total)
	fmt.Fprintf(w, "<tr><td>Strings recovered</td><td class=\"num\">%d / %d</td></tr>\n", r.StringsRecovered, r.StringsTotal)
	fmt.Fprintf(w, "<tr><td>Symbols recovered</td><td class=\"num\">%d / %d</td></tr>\n", r.SymbolsRecovered, r.SymbolsTotal)
	fmt.Fprintf(w, "<tr><td>Functions</td><td class=\"num\">%d</td></tr>\n", r.Stats.TotalFunctions)
	fmt.Fprintf(w, "<tr><td>Low-confidence names</td><td class=\"num\">%d</td></tr>\n", r.Stats.LowConfidence)
	fmt.Fprintf(w, "<tr><td>Call sites</td><td class=\"num\">%d</td></tr>\n", r.Stats.TotalEdges)
	fmt.Fprintf(w, "<tr><td>Entry points</td><td class=\"num\">%d</td></tr>\n", len(r.EntryPoints))
	fmt.Fprintf(w, "<tr><td>Reachable names</td><td class=\"num\">%d</td></tr>\n", r.ReachableCount)
	fmt.Fprintf(w, "<tr><td>Diagnostics</td><td class=\"num\">%d</td></tr>\n", r.Diags)
	if r.CFGCount > 0 {
		fmt.Fprintf(w, "<tr><td>CFGs generated</td><td class=\"num\">%d</td></tr>\n", r.CFGCount)
	}
	fmt.Fprintln(w, "</table>")

	fmt.Fprintln(w, "<h2>Call Provenance</h2>")
	fmt.Fprintln(w, "<table>")
	fmt.Fprintln(w, "<tr><th></th><th>Category</th><th>Count</th><th></th></tr>")
	provOrder := []string{ProvResolved, ProvTopLevel, ProvUnresolved}
	provLabels := map[string]string{
		ProvResolved:   "Resolved callee",
		ProvTopLevel:   "Top-level call",
		ProvUnresolved: "Unresolved callee",
	}
	for _, prov := range provOrder {
		count := r.Stats.ProvCounts[prov]
		if count == 0 {
			continue
		}
		color := edgeColor(prov, NASA)
		barW := 0
		if r.Stats.TotalEdges > 0 {
			barW = max(count*200/r.Stats.TotalEdges, 2)
		}
		fmt.Fprintf(w, "<tr><td><span class=\"prov\" style=\"background:%s\"></span></td><td>%s</td><td class=\"num\">%d</td><td><span class=\"bar\" style=\"width:%dpx;background:%s\"></span></td></tr>\n",
			color, provLabels[prov], count, barW, color)
	}
	fmt.Fprintln(w, "</table>")

	if len(r.Graphs) > 0 || r.CFGCount > 0 {
		fmt.Fprintln(w, "<h2>Graphs</h2>")
		fmt.Fprint(w, "<p>")
		for i, g := range r.Graphs {
			if i > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprintf(w, `<a href="%s">%s</a>`, htmlEscape(g), htmlEscape(g))
		}
		if r.CFGCount > 0 {
			if len(r.Graphs) > 0 {
				fmt.Fprint(w, " | ")
			}
			fmt.Fprint(w, `<a href="cfg/">Per-function CFGs</a>`)
		}
		fmt.Fprintln(w, "</p>")
	}

	if len(r.EntryPoints) > 0 {
		fmt.Fprintln(w, "<h2>Entry Points</h2>")
		fmt.Fprintln(w, "<table>")
		fmt.Fprintln(w, "<tr><th>Function</th></tr>")
		limit := min(len(r.EntryPoints), 50)
		for _, ep := range r.EntryPoints[:limit] {
			cfgLink := ""
			if r.CFGCount > 0 {
				cfgLink = fmt.Sprintf(` <a href="cfg/%s.dot" style="font-size:11px">[cfg]</a>`, htmlEscape(SafeName(ep)))
			}
			fmt.Fprintf(w, "<tr><td class=\"ep\">%s%s</td></tr>\n", htmlEscape(ep), cfgLink)
		}
		if len(r.EntryPoints) > limit {
			fmt.Fprintf(w, "<tr><td>... and %d more</td></tr>\n", len(r.EntryPoints)-limit)
		}
		fmt.Fprintln(w, "</table>")
	}

	if r.Signals != nil && r.Signals.Stats.SignalFuncs > 0 {
		fmt.Fprintln(w, "<h2>Signals</h2>")
		fmt.Fprintln(w, "<table>")
		fmt.Fprintln(w, "<tr><th>Function</th><th>Severity</th><th>Categories</th><th>Evidence</th></tr>")
		for _, f := range r.Signals.Funcs {
			if f.Role != "signal" {
				break
			}
			var ev []string
			for _, ref := range f.Refs[:min(len(f.Refs), 5)] {
				ev = append(ev, fmt.Sprintf("%s %q", ref.Kind, ref.Value))
			}
			fmt.Fprintf(w, "<tr><td class=\"ep\">%s</td><td>%s</td><td>%s</td><td class=\"ep\">%s</td></tr>\n",
				htmlEscape(f.Name), f.Severity, htmlEscape(strings.Join(f.Categories, ", ")), htmlEscape(strings.Join(ev, "; ")))
		}
		fmt.Fprintln(w, "</table>")
	}

	writeTop := func(heading, col string, list []NameCount) {
		if len(list) == 0 {
			return
		}
		fmt.Fprintf(w, "<h2>%s</h2>\n", heading)
		fmt.Fprintln(w, "<table>")
		fmt.Fprintf(w, "<tr><th>Function</th><th>%s</th></tr>\n", col)
		for _, nc := range list[:min(len(list), 15)] {
			fmt.Fprintf(w, "<tr><td>%s</td><td class=\"num\">%d</td></tr>\n", htmlEscape(nc.Name), nc.Count)
		}
		fmt.Fprintln(w, "</table>")
	}
	writeTop("Top Callers", "Outgoing", r.Stats.TopCallers)
	writeTop("Top Callees", "Incoming", r.Stats.TopCallees)

	if r.Source != "" {
		fmt.Fprintln(w, "<h2>Source</h2>")
		fmt.Fprintf(w, "<pre>%s</pre>\n", htmlEscape(r.Source))
	}

	fmt.Fprintln(w, "</body></html>")
}
