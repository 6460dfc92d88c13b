// Package container validates FAS file headers and splits the input into
// bytecode, auxiliary and padding sections.
package container

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"unfas/internal/fasfmt"
)

// Variant identifies a container layout.
type Variant int

const (
	VariantUnknown  Variant = iota
	VariantStandard         // binary "FAS\0" header
	Variant4                // "FAS4-FILE" text header
)

func (v Variant) String() string {
	switch v {
	case VariantStandard:
		return "standard"
	case Variant4:
		return "fas4"
	default:
		return "unknown"
	}
}

func (v Variant) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Variant) UnmarshalText(b []byte) error {
	switch string(b) {
	case "standard":
		*v = VariantStandard
	case "fas4":
		*v = Variant4
	case "unknown":
		*v = VariantUnknown
	default:
		return fmt.Errorf("container: unknown variant %q", b)
	}
	return nil
}

var (
	standardMagic = []byte{'F', 'A', 'S', 0}
	textPrefix    = []byte("FAS")
	textSuffix    = []byte("-FILE")
)

// Standard header layout (little-endian):
//
//	+0x00: magic   [4]byte "FAS\0"
//	+0x04: version uint32
//	+0x08: codeOff uint32
//	+0x0c: codeLen uint32
//	+0x10: auxOff  uint32
//	+0x14: auxLen  uint32
const standardHeaderSize = 0x18

// offsetWordSize is the width of the aux offset that opens a text payload.
const offsetWordSize = 4

// Header holds the parsed container header. All offsets are absolute
// positions in the input buffer.
type Header struct {
	Magic        string  `json:"magic"`
	Variant      Variant `json:"variant"`
	Version      uint32  `json:"version"`
	Comment      string  `json:"comment,omitempty"` // text after the signature
	Marker       string  `json:"marker,omitempty"`  // "<digits> $" payload prefix
	HeaderSize   int     `json:"header_size"`
	TotalSize    int     `json:"total_size"`    // physical input length
	DeclaredSize int     `json:"declared_size"` // payload size (text) or end of last section (standard)
	CodeOffset   int     `json:"code_offset"`
	CodeLength   int     `json:"code_length"`
	AuxOffset    int     `json:"aux_offset"`
	AuxLength    int     `json:"aux_length"`
	SHA256       string  `json:"sha256"`
}

// SectionKind names a container section.
type SectionKind string

const (
	SectionHeader   SectionKind = "header"
	SectionBytecode SectionKind = "bytecode"
	SectionAux      SectionKind = "aux"
	SectionTrailer  SectionKind = "trailer"
	SectionPadding  SectionKind = "padding"
)

// Section is one contiguous byte range of the input. Sections returned by
// Read are sorted and cover the whole input without overlap.
type Section struct {
	Kind  SectionKind `json:"kind"`
	Start int         `json:"start"`
	End   int         `json:"end"`
	Data  []byte      `json:"-"`
}

func (s Section) Len() int { return s.End - s.Start }

// Container is a parsed FAS file. Byte slices are views into the input.
type Container struct {
	Header   Header    `json:"header"`
	Profile  Profile   `json:"profile"`
	Sections []Section `json:"sections"`
	Bytecode []byte    `json:"-"`
	Aux      []byte    `json:"-"`
	Trailer  []byte    `json:"-"`
}

// Read validates data and parses its container header.
func Read(data []byte, opts fasfmt.Options) (*Container, error) {
	if opts.MaxBytes > 0 && len(data) > opts.MaxBytes {
		return nil, fmt.Errorf("container: input is %d bytes, limit %d", len(data), opts.MaxBytes)
	}

	var (
		c   *Container
		err error
	)
	switch {
	case bytes.HasPrefix(data, standardMagic):
		c, err = readStandard(data)
	default:
		start := skipSpace(data)
		if _, ok := textSignature(data[start:]); !ok {
			return nil, fasfmt.Errorf(fasfmt.ErrUnknownFormat, start, "no FAS signature (got %q)", headOf(data[start:], 8))
		}
		c, err = readText(data, start)
	}
	if err != nil {
		return nil, err
	}

	h := sha256.Sum256(data)
	c.Header.SHA256 = hex.EncodeToString(h[:])
	c.Header.TotalSize = len(data)
	c.Profile = DetectProfile(c.Header)
	return c, nil
}

// readStandard parses the binary layout.
func readStandard(data []byte) (*Container, error) {
	s := fasfmt.NewStream(data)
	if err := s.Skip(len(standardMagic)); err != nil {
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, 0, "magic")
	}
	var fields [5]uint32
	for i := range fields {
		v, err := s.ReadUint32()
		if err != nil {
			return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, s.Position(),
				"header needs %d bytes, have %d", standardHeaderSize, len(data))
		}
		fields[i] = v
	}

	hdr := Header{
		Magic:      string(standardMagic[:3]),
		Variant:    VariantStandard,
		Version:    fields[0],
		HeaderSize: standardHeaderSize,
		CodeOffset: int(fields[1]),
		CodeLength: int(fields[2]),
		AuxOffset:  int(fields[3]),
		AuxLength:  int(fields[4]),
	}
	if err := checkRange(data, "bytecode", 0x08, hdr.CodeOffset, hdr.CodeLength); err != nil {
		return nil, err
	}
	if err := checkRange(data, "aux", 0x10, hdr.AuxOffset, hdr.AuxLength); err != nil {
		return nil, err
	}
	if hdr.AuxLength > 0 && hdr.CodeLength > 0 &&
		hdr.AuxOffset < hdr.CodeOffset+hdr.CodeLength && hdr.CodeOffset < hdr.AuxOffset+hdr.AuxLength {
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, 0x10,
			"aux [0x%x,0x%x) overlaps bytecode [0x%x,0x%x)",
			hdr.AuxOffset, hdr.AuxOffset+hdr.AuxLength, hdr.CodeOffset, hdr.CodeOffset+hdr.CodeLength)
	}
	hdr.DeclaredSize = max(hdr.CodeOffset+hdr.CodeLength, hdr.AuxOffset+hdr.AuxLength)

	c := &Container{
		Header:   hdr,
		Bytecode: view(data, hdr.CodeOffset, hdr.CodeLength),
		Aux:      view(data, hdr.AuxOffset, hdr.AuxLength),
	}
	c.Sections = layout(data, standardHeaderSize, []Section{
		{Kind: SectionBytecode, Start: hdr.CodeOffset, End: hdr.CodeOffset + hdr.CodeLength},
		{Kind: SectionAux, Start: hdr.AuxOffset, End: hdr.AuxOffset + hdr.AuxLength},
	})
	return c, nil
}

// checkRange validates one declared section. fieldOff is where the offset
// field lives in the header, reported on failure.
func checkRange(data []byte, name string, fieldOff, off, n int) error {
	if n == 0 {
		return nil
	}
	if off < standardHeaderSize {
		return fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, fieldOff,
			"%s offset 0x%x inside header", name, off)
	}
	if off > len(data) || n > len(data)-off {
		return fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, fieldOff,
			"%s [0x%x,+0x%x) exceeds input size 0x%x", name, off, n, len(data))
	}
	return nil
}

// readText parses a "FASn-FILE" container whose signature starts at start.
func readText(data []byte, start int) (*Container, error) {
	s := fasfmt.NewStreamAt(data, start)
	line, err := s.ReadLine()
	if err != nil {
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, start, "signature line: %v", err)
	}
	version, _ := textSignature([]byte(line))
	sig := fmt.Sprintf("FAS%d-FILE", version)

	hdr := Header{
		Magic:   sig,
		Variant: VariantUnknown,
		Version: uint32(version),
		Comment: strings.TrimSpace(strings.TrimPrefix(line, sig)),
	}
	if version == 4 {
		hdr.Variant = Variant4
	}

	sizeAt := s.Position()
	size, err := s.ReadDecimal()
	if err != nil {
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, sizeAt, "payload size: %v", err)
	}
	payloadAt := s.Position()
	if size > s.Remaining() {
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, sizeAt,
			"declared payload %d bytes, %d available", size, s.Remaining())
	}
	hdr.DeclaredSize = size
	payloadEnd := payloadAt + size

	body := data[payloadAt:payloadEnd]
	if m := markerLen(body); m > 0 {
		hdr.Marker = string(body[:m])
		body = body[m:]
	}
	bodyAt := payloadEnd - len(body)
	if len(body) < offsetWordSize {
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, bodyAt,
			"payload has %d bytes, need %d for aux offset", len(body), offsetWordSize)
	}
	auxRel := int(binary.LittleEndian.Uint32(body))
	switch {
	case auxRel == 0:
		auxRel = len(body)
	case auxRel < offsetWordSize || auxRel > len(body):
		return nil, fasfmt.Errorf(fasfmt.ErrTruncatedOrCorrupt, bodyAt,
			"aux offset 0x%x outside payload [0x%x,0x%x]", auxRel, offsetWordSize, len(body))
	}

	hdr.HeaderSize = bodyAt + offsetWordSize
	hdr.CodeOffset = hdr.HeaderSize
	hdr.CodeLength = bodyAt + auxRel - hdr.CodeOffset
	hdr.AuxOffset = bodyAt + auxRel
	hdr.AuxLength = payloadEnd - hdr.AuxOffset

	c := &Container{
		Header:   hdr,
		Bytecode: view(data, hdr.CodeOffset, hdr.CodeLength),
		Aux:      view(data, hdr.AuxOffset, hdr.AuxLength),
		Trailer:  view(data, payloadEnd, len(data)-payloadEnd),
	}
	c.Sections = layout(data, hdr.HeaderSize, []Section{
		{Kind: SectionBytecode, Start: hdr.CodeOffset, End: hdr.CodeOffset + hdr.CodeLength},
		{Kind: SectionAux, Start: hdr.AuxOffset, End: hdr.AuxOffset + hdr.AuxLength},
		{Kind: SectionTrailer, Start: payloadEnd, End: len(data)},
	})
	return c, nil
}

// textSignature reports whether b starts with "FAS<digits>-FILE" and
// returns the digits.
func textSignature(b []byte) (int, bool) {
	if !bytes.HasPrefix(b, textPrefix) {
		return 0, false
	}
	i := len(textPrefix)
	for i < len(b) && i < len(textPrefix)+3 && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	if i == len(textPrefix) || !bytes.HasPrefix(b[i:], textSuffix) {
		return 0, false
	}
	v, err := strconv.Atoi(string(b[len(textPrefix):i]))
	if err != nil {
		return 0, false
	}
	return v, true
}

// markerLen returns the length of a leading "<digits> $" marker, or 0.
func markerLen(b []byte) int {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	for i < len(b) && b[i] == ' ' {
		i++
	}
	if i < len(b) && b[i] == '$' {
		return i + 1
	}
	return 0
}

// layout builds the full section list: the header, the given sections
// (empty ones dropped) and padding for every uncovered byte.
func layout(data []byte, headerSize int, secs []Section) []Section {
	var present []Section
	for _, s := range secs {
		if s.End > s.Start {
			present = append(present, s)
		}
	}
	// Insertion sort; at most three entries.
	for i := 1; i < len(present); i++ {
		for j := i; j > 0 && present[j].Start < present[j-1].Start; j-- {
			present[j], present[j-1] = present[j-1], present[j]
		}
	}

	out := []Section{{Kind: SectionHeader, Start: 0, End: headerSize}}
	pos := headerSize
	for _, s := range present {
		if s.Start > pos {
			out = append(out, Section{Kind: SectionPadding, Start: pos, End: s.Start})
		}
		out = append(out, s)
		pos = s.End
	}
	if pos < len(data) {
		out = append(out, Section{Kind: SectionPadding, Start: pos, End: len(data)})
	}
	for i := range out {
		out[i].Data = view(data, out[i].Start, out[i].End-out[i].Start)
	}
	return out
}

// view returns data[off:off+n] with its capacity clipped so appends cannot
// write into the neighbouring section.
func view(data []byte, off, n int) []byte {
	if n <= 0 {
		return nil
	}
	return data[off : off+n : off+n]
}

func skipSpace(data []byte) int {
	s := fasfmt.NewStream(data)
	s.SkipSpace()
	return s.Position()
}

func headOf(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
