package opcode

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// tableFile is the on-disk YAML form of a table.
//
//	name: fas4-observed
//	version: 1
//	opcodes:
//	  - op: 0x35
//	    mnemonic: call
//	    operands: [u8, sym]
//	    role: call
type tableFile struct {
	Name    string `yaml:"name"`
	Version int    `yaml:"version"`
	Opcodes []Spec `yaml:"opcodes"`
}

// LoadYAML reads one table definition.
func LoadYAML(r io.Reader) (*Table, error) {
	var f tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("opcode: decode yaml: %w", err)
	}
	return NewTable(f.Name, f.Version, f.Opcodes)
}

// MarshalYAML writes t in the form LoadYAML reads.
func (t *Table) MarshalYAML() (any, error) {
	return tableFile{Name: t.name, Version: t.version, Opcodes: t.Specs()}, nil
}
