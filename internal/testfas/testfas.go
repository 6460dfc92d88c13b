// Package testfas builds synthetic FAS containers and bytecode for tests.
package testfas

import (
	"encoding/binary"
	"fmt"
)

// Signature is the first line of a FAS4 text container.
const Signature = "FAS4-FILE ; Do not change it!"

// FAS4 wraps code and aux in a FAS4 text container. The payload opens with
// the aux offset word; an empty aux gets offset 0.
func FAS4(code, aux []byte) []byte {
	return FAS4Marker("", code, aux)
}

// FAS4Marker is FAS4 with a "<digits> $" marker ahead of the payload body.
func FAS4Marker(marker string, code, aux []byte) []byte {
	body := make([]byte, 4, 4+len(code)+len(aux))
	if len(aux) > 0 {
		binary.LittleEndian.PutUint32(body, uint32(4+len(code)))
	}
	body = append(body, code...)
	body = append(body, aux...)
	payload := append([]byte(marker), body...)
	out := fmt.Appendf(nil, "%s\r\n%d\r\n", Signature, len(payload))
	return append(out, payload...)
}

// Standard builds a binary container: header, code, aux, in that order.
func Standard(version uint32, code, aux []byte) []byte {
	const hdr = 0x18
	out := make([]byte, hdr, hdr+len(code)+len(aux))
	copy(out, "FAS\x00")
	binary.LittleEndian.PutUint32(out[4:], version)
	binary.LittleEndian.PutUint32(out[8:], hdr)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(code)))
	auxOff := uint32(0)
	if len(aux) > 0 {
		auxOff = uint32(hdr + len(code))
	}
	binary.LittleEndian.PutUint32(out[16:], auxOff)
	binary.LittleEndian.PutUint32(out[20:], uint32(len(aux)))
	out = append(out, code...)
	return append(out, aux...)
}

// SymbolTable encodes names as u8 length-prefixed records closed by a zero
// length byte.
func SymbolTable(names ...string) []byte {
	var out []byte
	for _, n := range names {
		out = append(out, byte(len(n)))
		out = append(out, n...)
	}
	return append(out, 0)
}

// StringTable encodes strings NUL-terminated.
func StringTable(strs ...string) []byte {
	var out []byte
	for _, s := range strs {
		out = append(out, s...)
		out = append(out, 0)
	}
	return out
}

// XOR returns a copy of b with every byte XORed with key.
func XOR(b []byte, key byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ key
	}
	return out
}

// Asm assembles bytecode for the fas4-observed opcode table.
type Asm struct {
	buf []byte
}

func (a *Asm) Bytes() []byte { return a.buf }
func (a *Asm) Len() int      { return len(a.buf) }

// Raw appends bytes verbatim.
func (a *Asm) Raw(b ...byte) *Asm {
	a.buf = append(a.buf, b...)
	return a
}

func (a *Asm) u16(op byte, v uint16) *Asm {
	a.buf = append(a.buf, op)
	a.buf = binary.LittleEndian.AppendUint16(a.buf, v)
	return a
}

func (a *Asm) PushNil() *Asm           { return a.Raw(0x01) }
func (a *Asm) PushT() *Asm             { return a.Raw(0x02) }
func (a *Asm) PushVar(sym uint16) *Asm { return a.u16(0x03, sym) }
func (a *Asm) SetVar(sym uint16) *Asm  { return a.u16(0x06, sym) }
func (a *Asm) PushStr(idx uint16) *Asm { return a.u16(0x09, idx) }
func (a *Asm) Pop() *Asm               { return a.Raw(0x0A) }
func (a *Asm) Jump(rel int16) *Asm     { return a.u16(0x0D, uint16(rel)) }
func (a *Asm) JumpIfNil(rel int16) *Asm {
	return a.u16(0x0E, uint16(rel))
}
func (a *Asm) FuncEntry(sym uint16) *Asm { return a.u16(0x14, sym) }
func (a *Asm) ParamCount(params, locals uint8) *Asm {
	return a.Raw(0x15, params, locals)
}
func (a *Asm) FuncExit() *Asm       { return a.Raw(0x16) }
func (a *Asm) Bind(sym uint16) *Asm { return a.u16(0x18, sym) }
func (a *Asm) PushInt8(v int8) *Asm { return a.Raw(0x32, byte(v)) }
func (a *Asm) PushInt32(v int32) *Asm {
	a.buf = append(a.buf, 0x33)
	a.buf = binary.LittleEndian.AppendUint32(a.buf, uint32(v))
	return a
}

// Call appends an invoke of sym with argc arguments.
func (a *Asm) Call(argc uint8, sym uint16) *Asm {
	a.buf = append(a.buf, 0x35, argc)
	a.buf = binary.LittleEndian.AppendUint16(a.buf, sym)
	return a
}

// Sample returns a small, fully recoverable program:
//
//	(defun greet (name / msg)
//	  (setq msg "HELLO")
//	  (princ msg))
//	(greet "World")
//
// Symbols: 0 greet, 1 name, 2 msg, 3 princ. Strings: 0 HELLO, 1 World.
func Sample() (code, aux []byte) {
	var a Asm
	a.FuncEntry(0).ParamCount(1, 1).Bind(1).Bind(2).
		PushStr(0).SetVar(2).
		PushVar(2).Call(1, 3).
		FuncExit().
		PushStr(1).Call(1, 0).Pop()
	aux = append(SymbolTable("greet", "name", "msg", "princ"), StringTable("HELLO", "World")...)
	return a.Bytes(), aux
}
