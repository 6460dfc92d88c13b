// Package opcode defines FAS opcode tables. The instruction encoding is
// inferred, not documented, so tables are versioned data rather than code
// and can be replaced without touching the disassembler.
package opcode

import "fmt"

// OperandKind is the encoding of one operand.
type OperandKind string

const (
	U8  OperandKind = "u8"
	I8  OperandKind = "i8"
	U16 OperandKind = "u16"
	I16 OperandKind = "i16"
	U32 OperandKind = "u32"
	I32 OperandKind = "i32"
	Str OperandKind = "str" // u16 string-table index
	Sym OperandKind = "sym" // u16 symbol-table index
	Rel OperandKind = "rel" // i16 jump displacement from the next instruction
)

// Size returns the encoded width of k in bytes, or 0 if k is not valid.
func (k OperandKind) Size() int {
	switch k {
	case U8, I8:
		return 1
	case U16, I16, Str, Sym, Rel:
		return 2
	case U32, I32:
		return 4
	}
	return 0
}

// Signed reports whether k decodes as a two's complement value.
func (k OperandKind) Signed() bool {
	return k == I8 || k == I16 || k == I32 || k == Rel
}

// Role tells the reconstructor what an instruction does.
type Role string

const (
	RoleNone       Role = ""
	RoleLiteral    Role = "literal"     // pushes a constant
	RoleVariable   Role = "variable"    // pushes a variable's value
	RoleAssign     Role = "assign"      // pops into a variable
	RoleDiscard    Role = "discard"     // pops and drops
	RoleBranch     Role = "branch"      // unconditional jump
	RoleCondBranch Role = "cond-branch" // jump if top of stack is nil
	RoleEntry      Role = "entry"       // function entry, names the function
	RoleParams     Role = "params"      // parameter and local counts
	RoleExit       Role = "exit"        // function exit
	RoleBind       Role = "bind"        // binds a parameter or local name
	RoleCall       Role = "call"        // invokes a function
)

var validRoles = map[Role]bool{
	RoleNone: true, RoleLiteral: true, RoleVariable: true, RoleAssign: true,
	RoleDiscard: true, RoleBranch: true, RoleCondBranch: true, RoleEntry: true,
	RoleParams: true, RoleExit: true, RoleBind: true, RoleCall: true,
}

// Spec describes one opcode.
type Spec struct {
	Op       byte          `yaml:"op" json:"op"`
	Mnemonic string        `yaml:"mnemonic" json:"mnemonic"`
	Operands []OperandKind `yaml:"operands,omitempty" json:"operands,omitempty"`
	Role     Role          `yaml:"role,omitempty" json:"role,omitempty"`
	Doc      string        `yaml:"doc,omitempty" json:"doc,omitempty"`
}

// Size returns the total encoded width including the opcode byte.
func (s Spec) Size() int {
	n := 1
	for _, k := range s.Operands {
		n += k.Size()
	}
	return n
}

// OpcodeTable maps opcode bytes to their shape.
type OpcodeTable interface {
	Name() string
	Version() int
	Lookup(op byte) (Spec, bool)
	// HasRole reports whether any opcode in the table plays r.
	HasRole(r Role) bool
}

// Table is the standard OpcodeTable implementation.
type Table struct {
	name    string
	version int
	specs   [256]*Spec
	roles   map[Role]bool
}

// NewTable builds a table from specs. Duplicate opcodes, empty mnemonics,
// unknown operand kinds and unknown roles are rejected.
func NewTable(name string, version int, specs []Spec) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("opcode: table has no name")
	}
	t := &Table{name: name, version: version, roles: make(map[Role]bool)}
	for i := range specs {
		s := specs[i]
		if t.specs[s.Op] != nil {
			return nil, fmt.Errorf("opcode: %s: duplicate opcode 0x%02x", name, s.Op)
		}
		if s.Mnemonic == "" {
			return nil, fmt.Errorf("opcode: %s: opcode 0x%02x has no mnemonic", name, s.Op)
		}
		for _, k := range s.Operands {
			if k.Size() == 0 {
				return nil, fmt.Errorf("opcode: %s: %s: unknown operand kind %q", name, s.Mnemonic, k)
			}
		}
		if !validRoles[s.Role] {
			return nil, fmt.Errorf("opcode: %s: %s: unknown role %q", name, s.Mnemonic, s.Role)
		}
		t.specs[s.Op] = &s
		if s.Role != RoleNone {
			t.roles[s.Role] = true
		}
	}
	return t, nil
}

func (t *Table) Name() string { return t.name }
func (t *Table) Version() int { return t.version }

func (t *Table) Lookup(op byte) (Spec, bool) {
	if s := t.specs[op]; s != nil {
		return *s, true
	}
	return Spec{}, false
}

func (t *Table) HasRole(r Role) bool { return t.roles[r] }

// Specs returns the defined opcodes in ascending order.
func (t *Table) Specs() []Spec {
	var out []Spec
	for _, s := range t.specs {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// Empty returns a table with no opcodes. Every byte decodes as unknown.
func Empty(name string) *Table {
	return &Table{name: name, roles: map[Role]bool{}}
}
