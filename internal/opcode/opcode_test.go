package opcode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestBuiltinTables(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Equal(t, []string{"fas4-observed@v1", "standard@v1"}, r.Names())

	tab, ok := r.Resolve("fas4-observed", 0)
	require.True(t, ok)
	assert.Equal(t, 1, tab.Version())
	assert.True(t, tab.HasRole(RoleEntry))
	assert.True(t, tab.HasRole(RoleCall))

	_, ok = tab.Lookup(0x00)
	assert.False(t, ok, "opcode 0 is unmapped")

	call, ok := tab.Lookup(0x35)
	require.True(t, ok)
	assert.Equal(t, "call", call.Mnemonic)
	assert.Equal(t, []OperandKind{U8, Sym}, call.Operands)
	assert.Equal(t, 4, call.Size())

	pc, _ := tab.Lookup(0x15)
	assert.Equal(t, 3, pc.Size())
	i32, _ := tab.Lookup(0x33)
	assert.Equal(t, 5, i32.Size())
}

func TestRegistryOverride(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	custom, err := NewTable("fas4-observed", 1, []Spec{{Op: 0x00, Mnemonic: "nop"}})
	require.NoError(t, err)
	r.Register(custom)

	tab, ok := r.Resolve("fas4-observed", 1)
	require.True(t, ok)
	s, ok := tab.Lookup(0x00)
	require.True(t, ok)
	assert.Equal(t, "nop", s.Mnemonic)

	v2, err := NewTable("fas4-observed", 2, nil)
	require.NoError(t, err)
	r.Register(v2)
	latest, _ := r.Resolve("fas4-observed", 0)
	assert.Equal(t, 2, latest.Version())

	_, ok = r.Resolve("fas2", 0)
	assert.False(t, ok)
}

func TestLoadYAMLErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"duplicate", "name: x\nopcodes:\n  - {op: 1, mnemonic: a}\n  - {op: 1, mnemonic: b}\n", "duplicate"},
		{"no-mnemonic", "name: x\nopcodes:\n  - {op: 1}\n", "no mnemonic"},
		{"bad-operand", "name: x\nopcodes:\n  - {op: 1, mnemonic: a, operands: [u64]}\n", "operand kind"},
		{"bad-role", "name: x\nopcodes:\n  - {op: 1, mnemonic: a, role: jump}\n", "unknown role"},
		{"no-name", "opcodes: []\n", "no name"},
		{"unknown-field", "name: x\nopcode: []\n", "not found"},
		{"op-overflow", "name: x\nopcodes:\n  - {op: 0x100, mnemonic: a}\n", "decode yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadYAML(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTableYAMLRoundTrip(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	orig, _ := r.Resolve("standard", 1)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	require.NoError(t, enc.Encode(orig.(*Table)))
	require.NoError(t, enc.Close())

	back, err := LoadYAML(&buf)
	require.NoError(t, err)
	assert.Equal(t, orig.(*Table).Specs(), back.Specs())
}

func TestEmptyTable(t *testing.T) {
	e := Empty("none")
	_, ok := e.Lookup(0x35)
	assert.False(t, ok)
	assert.False(t, e.HasRole(RoleEntry))
}
