package disasm

import (
	"errors"
	"strings"
	"testing"

	"unfas/internal/fasfmt"
	"unfas/internal/opcode"
	"unfas/internal/recovery"
	"unfas/internal/region"
	"unfas/internal/testfas"
)

func fas4Table(t *testing.T) opcode.OpcodeTable {
	t.Helper()
	r, err := opcode.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	tab, ok := r.Resolve("fas4-observed", 0)
	if !ok {
		t.Fatal("fas4-observed table missing")
	}
	return tab
}

func sampleTables(t *testing.T) *recovery.Tables {
	t.Helper()
	_, aux := testfas.Sample()
	tab, _ := recovery.Recover(aux, region.Classify(aux, 0), recovery.DefaultOptions())
	return tab
}

func TestDisassembleSample(t *testing.T) {
	code, _ := testfas.Sample()
	insts, diags, err := Disassemble(code, fas4Table(t), Options{Resolver: sampleTables(t)})
	if err != nil {
		t.Fatal(err)
	}
	if len(diags) != 0 {
		t.Errorf("unexpected diags: %v", diags)
	}
	want := []string{
		"func-entry sym#0 <greet>",
		"param-count 1, 1",
		"bind sym#1 <name>",
		"bind sym#2 <msg>",
		`push-str str#0 "HELLO"`,
		"set-var sym#2 <msg>",
		"push-var sym#2 <msg>",
		"call 1, sym#3 <princ>",
		"func-exit",
		`push-str str#1 "World"`,
		"call 1, sym#0 <greet>",
		"pop",
	}
	if len(insts) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(insts), len(want))
	}
	off := 0
	for i, in := range insts {
		if got := in.Text(); got != want[i] {
			t.Errorf("inst %d = %q, want %q", i, got, want[i])
		}
		if in.Offset != off {
			t.Errorf("inst %d offset = %d, want %d", i, in.Offset, off)
		}
		off = in.End()
	}
	if off != len(code) {
		t.Errorf("decoded %d bytes, want %d", off, len(code))
	}
}

func TestDisassembleUnknownOpcodes(t *testing.T) {
	code := []byte{0x00, 0x00, 0x00, 0x01, 0xff}
	insts, diags, err := Disassemble(code, fas4Table(t), Options{Base: 0x40})
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 5 {
		t.Fatalf("got %d instructions, want 5", len(insts))
	}
	for i, in := range insts {
		if in.Size != 1 {
			t.Errorf("inst %d size = %d", i, in.Size)
		}
	}
	if insts[0].Known || insts[0].Mnemonic != "op_00" || insts[0].Operands[0].Kind != RawByte {
		t.Errorf("inst 0 = %+v", insts[0])
	}
	if !insts[3].Known {
		t.Error("push-nil not decoded")
	}
	// One diagnostic per run of unknown bytes.
	if len(diags) != 2 || diags[0].Kind != fasfmt.DiagUnknownOpcode || diags[0].Offset != 0x40 || diags[1].Offset != 0x44 {
		t.Errorf("diags = %v", diags)
	}
}

func TestDisassembleTruncated(t *testing.T) {
	var a testfas.Asm
	a.PushNil().PushInt8(5)
	full := a.Len()
	a.Raw(0x35, 0x01, 0x02) // call missing a byte
	insts, diags, err := Disassemble(a.Bytes(), fas4Table(t), Options{Base: 0x100})

	if !errors.Is(err, fasfmt.ErrTruncatedBytecode) {
		t.Fatalf("err = %v, want ErrTruncatedBytecode", err)
	}
	if off, _ := fasfmt.OffsetOf(err); off != 0x100+full {
		t.Errorf("error offset = 0x%x, want 0x%x", off, 0x100+full)
	}
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want the 2 complete ones", len(insts))
	}
	if insts[1].End() != full {
		t.Errorf("last complete inst ends at %d, want %d", insts[1].End(), full)
	}
	if len(diags) != 1 || diags[0].Kind != fasfmt.DiagTruncatedBytecode {
		t.Errorf("diags = %v", diags)
	}
}

func TestDisassembleNeverOverruns(t *testing.T) {
	tab := fas4Table(t)
	for n := 0; n < 64; n++ {
		code := make([]byte, n)
		for i := range code {
			code[i] = byte(0x33 + i*7)
		}
		insts, _, _ := Disassemble(code, tab, Options{})
		for _, in := range insts {
			if in.End() > len(code) {
				t.Fatalf("len %d: inst at %d ends past slice (%d)", n, in.Offset, in.End())
			}
		}
	}
}

func TestDisassembleMaxSteps(t *testing.T) {
	code := make([]byte, 100)
	insts, diags, err := Disassemble(code, fas4Table(t), Options{MaxSteps: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(insts) != 10 {
		t.Fatalf("got %d instructions, want 10", len(insts))
	}
	var clamped bool
	for _, d := range diags {
		clamped = clamped || d.Kind == fasfmt.DiagClamped
	}
	if !clamped {
		t.Error("missing clamp diagnostic")
	}
}

func TestDisassembleUnresolved(t *testing.T) {
	var a testfas.Asm
	a.PushVar(9).PushStr(0)
	insts, diags, err := Disassemble(a.Bytes(), fas4Table(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range insts {
		if !in.HasUnresolved() {
			t.Errorf("%s: expected unresolved operand", in.Text())
		}
	}
	if insts[0].Operands[0].Value != 9 {
		t.Errorf("raw index lost: %+v", insts[0].Operands[0])
	}
	if len(diags) != 2 || diags[0].Kind != fasfmt.DiagUnresolvedOperand {
		t.Errorf("diags = %v", diags)
	}
}

func TestDisassembleEmpty(t *testing.T) {
	insts, diags, err := Disassemble(nil, fas4Table(t), Options{})
	if err != nil || len(insts) != 0 || len(diags) != 0 {
		t.Fatalf("got %d insts, %v, %v", len(insts), diags, err)
	}
}

func TestSignedOperands(t *testing.T) {
	var a testfas.Asm
	a.PushInt8(-3).PushInt32(-70000).Jump(-4)
	insts, _, err := Disassemble(a.Bytes(), fas4Table(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int64{-3, -70000, -4} {
		if got := insts[i].Operands[0].Value; got != want {
			t.Errorf("inst %d operand = %d, want %d", i, got, want)
		}
	}
}

func TestFormat(t *testing.T) {
	code, _ := testfas.Sample()
	insts, _, _ := Disassemble(code, fas4Table(t), Options{Resolver: sampleTables(t)})
	text := Format(insts, 0x30, PlaceholderLookup(EntryLabels(insts, 0x30)), UnresolvedAnnotator())
	if !strings.HasPrefix(text, "greet:\n0x000030  14 00 00") {
		t.Errorf("unexpected listing head:\n%s", text)
	}
	if !strings.Contains(text, `push-str str#0 "HELLO"`) {
		t.Errorf("missing resolved string:\n%s", text)
	}
	if Format(insts, 0x30, nil) != Format(insts, 0x30, nil) {
		t.Error("non-deterministic output")
	}
}

func TestAnnotators(t *testing.T) {
	low := &recovery.String{Text: "pr1nc", Strategy: recovery.StrategyXOR, Param: 0x55, Confidence: 0.6, Low: true}
	in := Inst{
		Mnemonic: "call", Role: opcode.RoleCall, Known: true,
		Operands: []Operand{{Kind: opcode.U8, Value: 1}, {Kind: opcode.Sym, Value: 4, Ref: low}},
	}
	if got := ProvenanceAnnotator(false)(in); got != "sym#4 xor 0x55, 0.60" {
		t.Errorf("provenance = %q", got)
	}
	if got := UnresolvedAnnotator()(in); got != "" {
		t.Errorf("unresolved = %q", got)
	}
	un := Inst{Operands: []Operand{{Kind: opcode.Str, Value: 7, Unresolved: true}}}
	if got := UnresolvedAnnotator()(un); got != "unresolved str#7" {
		t.Errorf("unresolved = %q", got)
	}
	if got := UnknownAnnotator()(Inst{Mnemonic: "op_00"}); got != "unmapped opcode" {
		t.Errorf("unknown = %q", got)
	}
	jmp := Inst{Offset: 4, Size: 3, Role: opcode.RoleBranch, Operands: []Operand{{Kind: opcode.Rel, Value: 5}}}
	if got := BranchAnnotator(0x100)(jmp); got != "-> 0x00010c" {
		t.Errorf("branch = %q", got)
	}
}

func TestExtractCallEdges(t *testing.T) {
	code, _ := testfas.Sample()
	insts, _, _ := Disassemble(code, fas4Table(t), Options{Resolver: sampleTables(t)})
	edges := ExtractCallEdges(insts, 0)
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	if e := edges[0]; e.Caller != "greet" || e.Callee != "princ" || e.Argc != 1 || !e.Resolved {
		t.Errorf("edge 0 = %+v", e)
	}
	if e := edges[1]; e.Caller != "" || e.Callee != "greet" {
		t.Errorf("edge 1 = %+v", e)
	}

	var a testfas.Asm
	a.FuncEntry(7).Call(0, 9).FuncExit()
	insts, _, _ = Disassemble(a.Bytes(), fas4Table(t), Options{Base: 0x20})
	edges = ExtractCallEdges(insts, 0x20)
	if len(edges) != 1 || edges[0].Caller != "sub_20" || edges[0].Callee != "sym_9" || edges[0].Resolved {
		t.Errorf("unresolved edge = %+v", edges)
	}
}
