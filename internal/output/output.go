// Package output writes unfas results to files.
package output

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"unfas/internal/container"
	"unfas/internal/decompiler"
	"unfas/internal/disasm"
	"unfas/internal/fasfmt"
	"unfas/internal/recovery"
	"unfas/internal/region"
	"unfas/internal/signal"
)

// Summary is the content of summary.json.
type Summary struct {
	Name         string                  `json:"name"`
	Header       container.Header        `json:"header"`
	Profile      container.Profile       `json:"profile"`
	Table        string                  `json:"opcode_table"`
	Regions      []region.Region         `json:"regions"`
	Recovery     []recovery.RegionResult `json:"recovery"`
	Instructions int                     `json:"instructions"`
	Functions    int                     `json:"functions"`
	Folded       int                     `json:"folded"`
	Total        int                     `json:"total"`
	Coverage     float64                 `json:"coverage"`
	Truncated    string                  `json:"truncated,omitempty"`
	Diags        []fasfmt.Diag           `json:"diags,omitempty"`
}

// NewSummary describes res.
func NewSummary(name string, res *decompiler.Result) *Summary {
	s := &Summary{
		Name:         name,
		Header:       res.Container.Header,
		Profile:      res.Container.Profile,
		Table:        res.Table.Name(),
		Regions:      res.Regions,
		Recovery:     res.Tables.Regions,
		Instructions: len(res.Instructions),
		Functions:    len(res.Program.Funcs),
		Folded:       res.Folded,
		Total:        res.Total,
		Coverage:     res.Coverage(),
		Diags:        res.Diags,
	}
	if res.Truncation != nil {
		s.Truncated = res.Truncation.Error()
	}
	return s
}

// Signals builds the signal graph of res with k context hops.
func Signals(res *decompiler.Result, k int) *signal.Graph {
	funcs, edges := res.Program.Records()
	return signal.Build(funcs, edges, signal.StringRefs(res.Nodes, res.Base), k)
}

// WriteSignalsJSON writes signals.json.
func WriteSignalsJSON(dir string, g *signal.Graph) error {
	return writeJSON(filepath.Join(dir, "signals.json"), g)
}

// WriteSummaryJSON writes summary.json.
func WriteSummaryJSON(dir string, s *Summary) error {
	return writeJSON(filepath.Join(dir, "summary.json"), s)
}

// WriteLisp writes the rendered source to <name>.lsp.
func WriteLisp(dir, name, text string) error {
	return writeFile(filepath.Join(dir, name+".lsp"), []byte(text))
}

// WriteASM writes the instruction listing to asm.txt.
func WriteASM(dir string, res *decompiler.Result) error {
	return writeFile(filepath.Join(dir, "asm.txt"), []byte(res.Listing()))
}

// WriteDOT writes a graph to <name>.dot. name may contain path separators
// (e.g. "cfg/greet") for directory grouping.
func WriteDOT(dir, name, dot string) error {
	return writeFile(filepath.Join(dir, name+".dot"), []byte(dot))
}

// InstRecords converts instructions to instructions.jsonl records.
func InstRecords(insts []disasm.Inst, base int) []disasm.InstRecord {
	out := make([]disasm.InstRecord, len(insts))
	for i, in := range insts {
		rec := disasm.InstRecord{
			Offset:   fmt.Sprintf("0x%x", base+in.Offset),
			Bytes:    hex.EncodeToString(in.Raw),
			Mnemonic: in.Mnemonic,
			Known:    in.Known,
			Text:     in.Text(),
		}
		for _, o := range in.Operands {
			if o.Unresolved {
				rec.Unresolved = append(rec.Unresolved, fmt.Sprintf("%s#%d", o.Kind, o.Value))
			}
		}
		out[i] = rec
	}
	return out
}

// Strings returns every recovered string and symbol, skipping unrecovered
// slots.
func Strings(t *recovery.Tables) []*recovery.String {
	var out []*recovery.String
	for _, tab := range [][]*recovery.String{t.Symbols, t.Strings} {
		for _, s := range tab {
			if s != nil {
				out = append(out, s)
			}
		}
	}
	return out
}

// WriteRecords writes functions.jsonl, call_edges.jsonl, instructions.jsonl
// and strings.jsonl.
func WriteRecords(dir string, res *decompiler.Result) error {
	funcs, edges := res.Program.Records()
	if err := WriteJSONL(filepath.Join(dir, "functions.jsonl"), funcs); err != nil {
		return err
	}
	if err := WriteJSONL(filepath.Join(dir, "call_edges.jsonl"), edges); err != nil {
		return err
	}
	if err := WriteJSONL(filepath.Join(dir, "instructions.jsonl"), InstRecords(res.Instructions, res.Base)); err != nil {
		return err
	}
	return WriteJSONL(filepath.Join(dir, "strings.jsonl"), Strings(res.Tables))
}

// WriteJSONL writes one JSON document per line.
func WriteJSONL[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("output: encode %s: %w", path, err)
		}
	}
	return f.Close()
}

// ReadJSONL reads records written by WriteJSONL.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []T
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			return records, fmt.Errorf("output: %s line %d: %w", path, len(records)+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
