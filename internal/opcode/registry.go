package opcode

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"sync"
)

//go:embed tables/*.yaml
var builtinFS embed.FS

// Registry resolves table names and versions. User tables registered later
// shadow built-ins with the same name and version.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]map[int]*Table
}

// NewRegistry returns a registry holding the built-in tables.
func NewRegistry() (*Registry, error) {
	r := &Registry{tables: make(map[string]map[int]*Table)}
	entries, err := fs.ReadDir(builtinFS, "tables")
	if err != nil {
		return nil, fmt.Errorf("opcode: builtin tables: %w", err)
	}
	for _, e := range entries {
		f, err := builtinFS.Open("tables/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("opcode: builtin %s: %w", e.Name(), err)
		}
		t, err := LoadYAML(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("opcode: builtin %s: %w", e.Name(), err)
		}
		r.Register(t)
	}
	return r, nil
}

// Register adds t, replacing any table with the same name and version.
func (r *Registry) Register(t *Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byVer := r.tables[t.name]
	if byVer == nil {
		byVer = make(map[int]*Table)
		r.tables[t.name] = byVer
	}
	byVer[t.version] = t
}

// LoadFile reads a YAML table from path and registers it.
func (r *Registry) LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opcode: %w", err)
	}
	defer f.Close()
	t, err := LoadYAML(f)
	if err != nil {
		return nil, fmt.Errorf("opcode: %s: %w", path, err)
	}
	r.Register(t)
	return t, nil
}

// Resolve returns the named table. Version 0 selects the highest version.
func (r *Registry) Resolve(name string, version int) (OpcodeTable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byVer := r.tables[name]
	if len(byVer) == 0 {
		return nil, false
	}
	if version != 0 {
		t, ok := byVer[version]
		return t, ok
	}
	best := -1
	for v := range byVer {
		if v > best {
			best = v
		}
	}
	return byVer[best], true
}

// Names lists registered table names with their versions, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, byVer := range r.tables {
		for v := range byVer {
			out = append(out, fmt.Sprintf("%s@v%d", name, v))
		}
	}
	sort.Strings(out)
	return out
}
