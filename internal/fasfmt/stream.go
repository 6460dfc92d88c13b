// FAS byte stream reader.
// Little-endian fixed-width reads plus the line-oriented reads needed by the
// text container.
package fasfmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrStreamEOF     = errors.New("stream: unexpected end of data")
	ErrStreamOverrun = errors.New("stream: value too large")
)

// Stream reads FAS container data without copying the underlying buffer.
type Stream struct {
	data []byte
	pos  int
	end  int
}

// NewStream creates a stream over the given data.
func NewStream(data []byte) *Stream {
	return &Stream{data: data, pos: 0, end: len(data)}
}

// NewStreamAt creates a stream starting at offset within data.
func NewStreamAt(data []byte, offset int) *Stream {
	if offset > len(data) {
		offset = len(data)
	}
	if offset < 0 {
		offset = 0
	}
	return &Stream{data: data, pos: offset, end: len(data)}
}

// Position returns the current read position.
func (s *Stream) Position() int { return s.pos }

// SetPosition sets the read position.
func (s *Stream) SetPosition(pos int) {
	if pos > s.end {
		pos = s.end
	}
	if pos < 0 {
		pos = 0
	}
	s.pos = pos
}

// Remaining returns bytes left to read.
func (s *Stream) Remaining() int { return s.end - s.pos }

// ReadByte reads a single byte.
func (s *Stream) ReadByte() (byte, error) {
	if s.pos >= s.end {
		return 0, ErrStreamEOF
	}
	b := s.data[s.pos]
	s.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (s *Stream) PeekByte() (byte, error) {
	if s.pos >= s.end {
		return 0, ErrStreamEOF
	}
	return s.data[s.pos], nil
}

// Slice returns the next n bytes as a view into the underlying buffer.
func (s *Stream) Slice(n int) ([]byte, error) {
	if n < 0 || s.pos+n > s.end {
		return nil, ErrStreamEOF
	}
	out := s.data[s.pos : s.pos+n : s.pos+n]
	s.pos += n
	return out, nil
}

// ReadUint16 reads a little-endian uint16.
func (s *Stream) ReadUint16() (uint16, error) {
	if s.pos+2 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint16(s.data[s.pos:])
	s.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (s *Stream) ReadUint32() (uint32, error) {
	if s.pos+4 > s.end {
		return 0, ErrStreamEOF
	}
	v := binary.LittleEndian.Uint32(s.data[s.pos:])
	s.pos += 4
	return v, nil
}

// ReadInt32 reads a little-endian int32.
func (s *Stream) ReadInt32() (int32, error) {
	v, err := s.ReadUint32()
	return int32(v), err
}

// SkipSpace advances past ASCII whitespace (space, tab, CR, LF).
func (s *Stream) SkipSpace() {
	for s.pos < s.end {
		switch s.data[s.pos] {
		case ' ', '\t', '\r', '\n':
			s.pos++
		default:
			return
		}
	}
}

// ReadLine reads up to the next LF and returns the line without its CRLF or
// LF terminator. A final unterminated line is an error.
func (s *Stream) ReadLine() (string, error) {
	start := s.pos
	for s.pos < s.end {
		if s.data[s.pos] == '\n' {
			line := s.data[start:s.pos]
			s.pos++
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line = line[:n-1]
			}
			return string(line), nil
		}
		s.pos++
		if s.pos-start > maxLineLen {
			return "", fmt.Errorf("stream: line at offset %d: %w", start, ErrStreamOverrun)
		}
	}
	return "", fmt.Errorf("stream: unterminated line at offset %d: %w", start, ErrStreamEOF)
}

const maxLineLen = 4096

// ReadDecimal reads an unsigned decimal integer line.
func (s *Stream) ReadDecimal() (int, error) {
	start := s.pos
	line, err := s.ReadLine()
	if err != nil {
		return 0, err
	}
	if line == "" {
		return 0, fmt.Errorf("stream: empty number at offset %d", start)
	}
	v := 0
	for _, c := range []byte(line) {
		if c == ' ' || c == '\t' {
			continue
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("stream: invalid digit %q at offset %d", c, start)
		}
		v = v*10 + int(c-'0')
		if v > 1<<31 {
			return 0, ErrStreamOverrun
		}
	}
	return v, nil
}

// Skip advances the position by n bytes.
func (s *Stream) Skip(n int) error {
	if n < 0 || s.pos+n > s.end {
		return ErrStreamEOF
	}
	s.pos += n
	return nil
}
