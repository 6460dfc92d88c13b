// Package region classifies auxiliary container bytes into string tables,
// symbol tables and unknown data.
package region

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Kind tags a classified byte range.
type Kind string

const (
	KindBytecode    Kind = "bytecode"
	KindStringTable Kind = "string_table"
	KindSymbolTable Kind = "symbol_table"
	KindUnknown     Kind = "unknown"
)

// Span is a half-open byte range [Start, End) in input coordinates.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s Span) Len() int { return s.End - s.Start }

// Region is a classified byte range. Records, when set, are the payload
// spans of the entries the classifier found inside the region.
type Region struct {
	Kind       Kind    `json:"kind"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method,omitempty"`
	Records    []Span  `json:"records,omitempty"`
}

func (r Region) Len() int { return r.End - r.Start }

func (r Region) String() string {
	return fmt.Sprintf("[0x%x,0x%x) %s %.2f %s", r.Start, r.End, r.Kind, r.Confidence, r.Method)
}

// Classification methods.
const (
	MethodPrefix8    = "prefix-u8"
	MethodPrefix16   = "prefix-u16"
	MethodPrefix32   = "prefix-u32"
	MethodDelimited  = "nul-delimited"
	MethodPrintable  = "printable-run"
	MethodXZ         = "xz"
	MethodZlib       = "zlib"
	MethodContainer  = "container" // placed by the container header
	MethodPadding    = "padding"
	MethodUnassigned = ""
)

// Tuning constants.
const (
	PrintableThreshold = 0.60 // minimum printable ratio for a string run
	MinRun             = 4    // shortest unprefixed run worth tagging
	maxRecord          = 1024 // longest plausible length-prefixed record
	maxNonPrintStreak  = 3    // non-printable bytes tolerated inside a run
	minOpaqueRecords   = 4    // records needed to trust a non-printable chain
)

// Classify partitions data into regions. base is the absolute offset of
// data[0]; returned regions use absolute offsets and cover
// [base, base+len(data)) with no gaps or overlaps.
func Classify(data []byte, base int) []Region {
	var out []Region
	unknownStart := -1
	flush := func(end int) {
		if unknownStart >= 0 {
			out = append(out, Region{Kind: KindUnknown, Start: base + unknownStart, End: base + end})
			unknownStart = -1
		}
	}

	dead := make(deadEnds)
	p := 0
	for p < len(data) {
		r, ok := compressedStream(data, p)
		if !ok {
			r, ok = prefixChain(data, p, dead)
		}
		if !ok {
			r, ok = delimitedRun(data, p)
		}
		if !ok {
			r, ok = printableRun(data, p)
		}
		if !ok {
			if unknownStart < 0 {
				unknownStart = p
			}
			p++
			continue
		}
		flush(p)
		p = r.End
		r.Start += base
		r.End += base
		for i := range r.Records {
			r.Records[i].Start += base
			r.Records[i].End += base
		}
		out = append(out, r)
	}
	flush(len(data))
	return out
}

var xzMagic = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}

// Compression names the compression format b starts with: MethodXZ,
// MethodZlib or "".
func Compression(b []byte) string {
	switch {
	case bytes.HasPrefix(b, xzMagic):
		return MethodXZ
	case len(b) >= 2 && b[0] == 0x78 && (b[1] == 0x01 || b[1] == 0x9c || b[1] == 0xda):
		// Deflate, 32K window, fastest/default/best levels. "x^" is skipped
		// as it is also plain text.
		return MethodZlib
	}
	return ""
}

// compressedStream claims the rest of data as one Unknown region when it
// opens with a compression header. A bare zlib header is only trusted at
// the start of the slice; two bytes are too weak a signal elsewhere.
func compressedStream(data []byte, p int) (Region, bool) {
	m := Compression(data[p:])
	if m == "" || (m == MethodZlib && p != 0) {
		return Region{}, false
	}
	return Region{Kind: KindUnknown, Start: p, End: len(data), Method: m}, true
}

// prefixChain looks for consecutive length-prefixed records starting at p,
// trying u8, u16 and u32 prefixes. The longest chain wins; ties go to the
// narrower prefix.
func prefixChain(data []byte, p int, dead deadEnds) (Region, bool) {
	var (
		best   Region
		found  bool
		widths = []struct {
			w      int
			method string
		}{{1, MethodPrefix8}, {2, MethodPrefix16}, {4, MethodPrefix32}}
	)
	for _, w := range widths {
		r, ok := chainOf(data, p, w.w, dead)
		if !ok {
			continue
		}
		r.Method = w.method
		if !found || r.End > best.End {
			best, found = r, true
		}
	}
	return best, found
}

func chainOf(data []byte, p, width int, dead deadEnds) (Region, bool) {
	if r, ok := walkChain(data, p, width, true, nil); ok {
		return r, true
	}
	return walkChain(data, p, width, false, dead)
}

// deadEnds holds, per prefix width, the record starts of opaque chains that
// ran into a bad length. A later walk reaching one of them fails the same
// way and stops there, so every start is walked past at most once.
type deadEnds map[int]map[int]bool

func (d deadEnds) has(width, pos int) bool { return d[width][pos] }

func (d deadEnds) mark(width int, recs []Span) {
	m := d[width]
	if m == nil {
		m = make(map[int]bool)
		d[width] = m
	}
	for _, r := range recs {
		m[r.Start-width] = true
	}
}

// walkChain follows records of the given prefix width. In printable mode a
// record must be printable text (an optional trailing NUL allowed); in
// opaque mode only lengths are checked and the chain must end exactly at a
// zero-length terminator or at the end of data. Opaque walks consult and
// extend dead.
func walkChain(data []byte, p, width int, printable bool, dead deadEnds) (Region, bool) {
	var recs []Span
	pos := p
	terminated := false
	hitDead := false
	for pos+width <= len(data) {
		if dead.has(width, pos) {
			hitDead = true
			break
		}
		n := readLen(data[pos:], width)
		if n == 0 {
			if len(recs) > 0 {
				pos += width
				terminated = true
			}
			break
		}
		if n > maxRecord || pos+width+n > len(data) {
			break
		}
		payload := data[pos+width : pos+width+n]
		if printable && !isPrintableRecord(payload) {
			break
		}
		recs = append(recs, Span{Start: pos + width, End: pos + width + n})
		pos += width + n
	}

	if printable {
		switch {
		case len(recs) >= 2:
		case len(recs) == 1 && recs[0].Len() >= 3 && (terminated || pos == len(data)):
		default:
			return Region{}, false
		}
		conf := 0.75 + 0.05*float64(min(len(recs), 3))
		return Region{Kind: KindSymbolTable, Start: p, End: pos, Confidence: conf, Records: recs}, true
	}
	if hitDead || !(terminated || pos == len(data)) {
		if dead != nil {
			dead.mark(width, recs)
		}
		return Region{}, false
	}
	if len(recs) < minOpaqueRecords {
		return Region{}, false
	}
	return Region{Kind: KindSymbolTable, Start: p, End: pos, Confidence: 0.45, Records: recs}, true
}

func readLen(b []byte, width int) int {
	switch width {
	case 1:
		return int(b[0])
	case 2:
		return int(binary.LittleEndian.Uint16(b))
	default:
		v := binary.LittleEndian.Uint32(b)
		if v > maxRecord {
			return maxRecord + 1
		}
		return int(v)
	}
}

func isPrintableRecord(b []byte) bool {
	if n := len(b); n > 1 && b[n-1] == 0 {
		b = b[:n-1]
	}
	for _, c := range b {
		if !IsPrintable(c) {
			return false
		}
	}
	return len(b) > 0
}

// delimitedRun looks for printable segments separated by NUL bytes.
func delimitedRun(data []byte, p int) (Region, bool) {
	var recs []Span
	pos := p
	for pos < len(data) {
		s := pos
		for pos < len(data) && IsPrintable(data[pos]) {
			pos++
		}
		if pos == s {
			break
		}
		if pos == len(data) {
			recs = append(recs, Span{Start: s, End: pos})
			break
		}
		if data[pos] != 0 {
			pos = s
			break
		}
		recs = append(recs, Span{Start: s, End: pos})
		for pos < len(data) && data[pos] == 0 {
			pos++
		}
	}
	// A single unterminated run is left to printableRun.
	if len(recs) == 0 || (len(recs) == 1 && (recs[0].Len() < MinRun || recs[0].End == pos)) {
		return Region{}, false
	}
	conf := 0.55
	if len(recs) >= 2 {
		conf = 0.75
	}
	return Region{Kind: KindStringTable, Start: p, End: pos, Confidence: conf,
		Method: MethodDelimited, Records: recs}, true
}

// printableRun finds the longest run starting at p whose printable ratio
// stays at or above PrintableThreshold and which ends on a printable byte.
func printableRun(data []byte, p int) (Region, bool) {
	if p >= len(data) || !IsPrintable(data[p]) {
		return Region{}, false
	}
	printable, streak := 0, 0
	bestEnd, bestPrintable := -1, 0
	for i := p; i < len(data); i++ {
		if IsPrintable(data[i]) {
			printable++
			streak = 0
			if float64(printable) >= PrintableThreshold*float64(i+1-p) {
				bestEnd, bestPrintable = i+1, printable
			}
			continue
		}
		streak++
		if streak > maxNonPrintStreak {
			break
		}
	}
	if bestEnd-p < MinRun {
		return Region{}, false
	}
	ratio := float64(bestPrintable) / float64(bestEnd-p)
	return Region{Kind: KindStringTable, Start: p, End: bestEnd,
		Confidence: 0.3 + 0.4*ratio, Method: MethodPrintable}, true
}

// IsPrintable reports whether c is printable ASCII or common whitespace.
func IsPrintable(c byte) bool {
	return (c >= 0x20 && c <= 0x7e) || c == '\t' || c == '\n' || c == '\r'
}

// PrintableRatio returns the fraction of printable bytes in b.
func PrintableRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	n := 0
	for _, c := range b {
		if IsPrintable(c) {
			n++
		}
	}
	return float64(n) / float64(len(b))
}
