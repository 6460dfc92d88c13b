// Package fasfmt provides shared types, diagnostics and errors for FAS parsing.
package fasfmt

import "fmt"

// DiagKind classifies a diagnostic message.
type DiagKind string

const (
	DiagTruncated         DiagKind = "truncated"
	DiagTruncatedBytecode DiagKind = "truncated_bytecode"
	DiagInvalid           DiagKind = "invalid"
	DiagUnknownOpcode     DiagKind = "unknown_opcode"
	DiagUnrecoveredRegion DiagKind = "unrecovered_region"
	DiagUnresolvedOperand DiagKind = "unresolved_operand"
	DiagUnknownEncoding   DiagKind = "unknown_encoding"
	DiagClamped           DiagKind = "clamped"
	DiagNoFunctionEntry   DiagKind = "no_function_entry"
)

// Diag records a non-fatal issue encountered during decompilation.
type Diag struct {
	Offset uint64   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint64, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint64, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

// Merge appends all items of other.
func (d *Diags) Merge(other []Diag) {
	d.items = append(d.items, other...)
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }

// Count returns how many diagnostics of the given kind were recorded.
func (d *Diags) Count(kind DiagKind) int {
	n := 0
	for _, it := range d.items {
		if it.Kind == kind {
			n++
		}
	}
	return n
}

// Mode controls error handling behavior.
type Mode int

const (
	ModeBestEffort Mode = iota // continue with placeholders, accumulate diags
	ModeStrict                 // first structural error returns error
)

func (m Mode) String() string {
	if m == ModeStrict {
		return "strict"
	}
	return "best-effort"
}

// ParseMode maps a config or flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "best-effort", "besteffort":
		return ModeBestEffort, nil
	case "strict":
		return ModeStrict, nil
	}
	return ModeBestEffort, fmt.Errorf("unknown mode %q (want strict or best-effort)", s)
}

// Options controls parsing behavior across packages.
type Options struct {
	Mode     Mode
	MaxSteps int // instruction cap; 0 = use default
	MaxBytes int // input size cap; 0 = unlimited
}

// DefaultMaxSteps is the global default loop cap.
const DefaultMaxSteps = 10_000_000

func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return DefaultMaxSteps
}
