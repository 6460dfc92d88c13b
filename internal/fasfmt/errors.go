package fasfmt

import (
	"errors"
	"fmt"
)

// Error taxonomy. Fatal kinds abort decompilation; the others are recorded
// as diagnostics and only surface as errors in strict mode.
var (
	ErrUnknownFormat      = errors.New("unknown format")
	ErrTruncatedOrCorrupt = errors.New("truncated or corrupt container")
	ErrTruncatedBytecode  = errors.New("truncated bytecode")
	ErrUnrecoveredRegion  = errors.New("unrecovered region")
	ErrUnresolvedOperand  = errors.New("unresolved operand")
)

// Error is a typed failure pinned to a byte offset in the input.
type Error struct {
	Kind   error // one of the Err* sentinels
	Offset int
	Msg    string
}

// Errorf builds an *Error for kind at offset.
func Errorf(kind error, offset int, format string, args ...any) *Error {
	return &Error{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%v at offset 0x%x", e.Kind, e.Offset)
	}
	return fmt.Sprintf("%v at offset 0x%x: %s", e.Kind, e.Offset, e.Msg)
}

func (e *Error) Unwrap() error { return e.Kind }

// OffsetOf extracts the failing offset from err, if it carries one.
func OffsetOf(err error) (int, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Offset, true
	}
	return 0, false
}
