// Package recovery decodes string and symbol tables whose encoding is not
// known in advance. Every region is tried against an ordered list of
// strategies; the best-scoring candidate above the acceptance threshold
// wins and every recovered string keeps its strategy and confidence.
package recovery

import (
	"bytes"
	"fmt"

	"unfas/internal/fasfmt"
	"unfas/internal/region"
)

// Outcome is the tagged result of recovering one region.
type Outcome int

const (
	Unrecovered Outcome = iota
	Partial
	Recovered
)

func (o Outcome) String() string {
	switch o {
	case Recovered:
		return "recovered"
	case Partial:
		return "partial"
	default:
		return "unrecovered"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "recovered":
		*o = Recovered
	case "partial":
		*o = Partial
	case "unrecovered":
		*o = Unrecovered
	default:
		return fmt.Errorf("recovery: unknown outcome %q", b)
	}
	return nil
}

// UnknownEncoding is the encoding reported for regions no strategy decoded.
const UnknownEncoding = "unknown encoding"

// Options tunes recovery.
type Options struct {
	AcceptThreshold float64 `yaml:"accept_threshold" json:"accept_threshold"`
	HighConfidence  float64 `yaml:"high_confidence" json:"high_confidence"`
	MaxXORKeys      int     `yaml:"max_xor_keys" json:"max_xor_keys"`
	MinStringLen    int     `yaml:"min_string_len" json:"min_string_len"`
}

// DefaultOptions returns the standard thresholds.
func DefaultOptions() Options {
	return Options{
		AcceptThreshold: 0.55,
		HighConfidence:  0.80,
		MaxXORKeys:      16,
		MinStringLen:    2,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AcceptThreshold <= 0 {
		o.AcceptThreshold = d.AcceptThreshold
	}
	if o.HighConfidence <= 0 {
		o.HighConfidence = d.HighConfidence
	}
	if o.MaxXORKeys <= 0 {
		o.MaxXORKeys = d.MaxXORKeys
	}
	if o.MinStringLen <= 0 {
		o.MinStringLen = d.MinStringLen
	}
	return o
}

// Space is an operand index space.
type Space string

const (
	SpaceString Space = "string"
	SpaceSymbol Space = "symbol"
)

// String is one recovered string or symbol name.
type String struct {
	Space      Space    `json:"space"`
	Index      int      `json:"index"`
	Region     int      `json:"region"` // index into the region list
	Offset     int      `json:"offset"` // absolute offset of the encoded bytes
	Length     int      `json:"length"`
	Text       string   `json:"text"`
	Strategy   Strategy `json:"strategy"`
	Param      int      `json:"param,omitempty"`
	Confidence float64  `json:"confidence"`
	Low        bool     `json:"low_confidence,omitempty"` // below the high-confidence threshold
}

// Provenance describes how the string was decoded, e.g. "xor 0x55, 0.71".
func (s *String) Provenance() string {
	return fmt.Sprintf("%s, %.2f", label(s.Strategy, s.Param), s.Confidence)
}

func label(st Strategy, p int) string {
	switch st {
	case StrategyXOR:
		return fmt.Sprintf("xor 0x%02x", p)
	case StrategyRotate:
		return fmt.Sprintf("rotate %d", p)
	case StrategyShift:
		return fmt.Sprintf("shift +%d", p)
	default:
		return string(st)
	}
}

// RegionResult records the recovery of one data region.
type RegionResult struct {
	Region     int         `json:"region"`
	Kind       region.Kind `json:"kind"`
	Start      int         `json:"start"`
	End        int         `json:"end"`
	Outcome    Outcome     `json:"outcome"`
	Best       Candidate   `json:"best"`
	Tried      int         `json:"tried"`
	Space      Space       `json:"space"`
	FirstIndex int         `json:"first_index"`
	Slots      int         `json:"slots"`
	Strings    []*String   `json:"strings,omitempty"`
	Encoding   string      `json:"encoding,omitempty"` // UnknownEncoding when nothing decoded
}

// Tables holds every recovered string, addressable by index space.
// Unrecovered slots are nil.
type Tables struct {
	Regions []RegionResult `json:"regions"`
	Strings []*String      `json:"strings"`
	Symbols []*String      `json:"symbols"`
}

// LookupString returns string-table entry i.
func (t *Tables) LookupString(i int) (*String, bool) { return lookup(t.Strings, i) }

// LookupSymbol returns symbol-table entry i.
func (t *Tables) LookupSymbol(i int) (*String, bool) { return lookup(t.Symbols, i) }

func lookup(tab []*String, i int) (*String, bool) {
	if i < 0 || i >= len(tab) || tab[i] == nil {
		return nil, false
	}
	return tab[i], true
}

// Counts returns recovered and total slots across both spaces.
func (t *Tables) Counts() (recovered, total int) {
	for _, tab := range [][]*String{t.Strings, t.Symbols} {
		total += len(tab)
		for _, s := range tab {
			if s != nil {
				recovered++
			}
		}
	}
	return recovered, total
}

// Minimum size and entropy at which an unclassified region is reported as
// data in an unknown encoding rather than padding.
const (
	unknownEncodingMinLen  = 16
	unknownEncodingEntropy = 6.0
)

// Recover decodes every data region. data is the whole input and regions
// use absolute offsets into it.
func Recover(data []byte, regions []region.Region, opts Options) (*Tables, []fasfmt.Diag) {
	opts = opts.withDefaults()
	var diags fasfmt.Diags
	t := &Tables{}

	for i, r := range regions {
		raw := data[r.Start:r.End]
		var space Space
		switch r.Kind {
		case region.KindSymbolTable:
			space = SpaceSymbol
		case region.KindStringTable:
			space = SpaceString
		case region.KindUnknown:
			if IdentifyCompression(raw) == "" {
				if len(raw) >= unknownEncodingMinLen && Entropy(raw) >= unknownEncodingEntropy {
					diags.Addf(uint64(r.Start), fasfmt.DiagUnknownEncoding,
						"%d bytes of high-entropy data (%.2f bits/byte), encoding not identified", len(raw), Entropy(raw))
				}
				continue
			}
			space = SpaceString
		default:
			continue
		}

		rr := recoverRegion(data, r, r.Kind == region.KindUnknown, opts)
		rr.Region = i
		rr.Space = space
		tab := &t.Strings
		if space == SpaceSymbol {
			tab = &t.Symbols
		}
		rr.FirstIndex = len(*tab)
		for j, p := range rr.pieces {
			var s *String
			if rr.Outcome != Unrecovered && p.conf >= opts.AcceptThreshold {
				s = &String{
					Space:      space,
					Index:      rr.FirstIndex + j,
					Region:     i,
					Offset:     p.offset,
					Length:     p.length,
					Text:       latin1(p.data),
					Strategy:   rr.Best.Strategy,
					Param:      rr.Best.Param,
					Confidence: p.conf,
					Low:        p.conf < opts.HighConfidence,
				}
				rr.Strings = append(rr.Strings, s)
			}
			*tab = append(*tab, s)
		}
		rr.Slots = len(rr.pieces)

		switch {
		case r.Kind == region.KindUnknown && rr.Outcome == Unrecovered:
			diags.Addf(uint64(r.Start), fasfmt.DiagUnknownEncoding,
				"%s stream did not decode to text", IdentifyCompression(raw))
		case rr.Outcome == Unrecovered:
			diags.Addf(uint64(r.Start), fasfmt.DiagUnrecoveredRegion,
				"%s [0x%x,0x%x): best %s scored %.2f", r.Kind, r.Start, r.End, rr.Best.Label(), rr.Best.Score)
		}
		t.Regions = append(t.Regions, rr.RegionResult)
	}
	return t, diags.Items()
}

type piece struct {
	data   []byte
	offset int
	length int
	conf   float64
}

type regionWork struct {
	RegionResult
	pieces []piece
}

// Scores closer than scoreTolerance are ties, settled by strategy order.
// Transforms that permute byte values, such as a case flip, score equal up to
// floating-point rounding.
const scoreTolerance = 1e-9

// recoverRegion runs every strategy over r and keeps the best candidate.
// Unclassified regions only get the decompressors: byte-wise transforms of
// data that was never text-like produce plausible noise.
func recoverRegion(data []byte, r region.Region, decodersOnly bool, opts Options) regionWork {
	raw := data[r.Start:r.End]
	recs := r.Records
	whole := len(recs) == 0
	if whole {
		recs = []region.Span{{Start: r.Start, End: r.End}}
	}
	parts := make([][]byte, len(recs))
	for i, s := range recs {
		parts[i] = data[s.Start:s.End]
	}
	sample := bytes.Join(parts, nil)

	w := regionWork{RegionResult: RegionResult{Kind: r.Kind, Start: r.Start, End: r.End}}
	var bestParts [][]byte
	bijective := false
	consider := func(c Candidate, decoded [][]byte, bij bool) {
		w.Tried++
		if bestParts == nil || c.Score > w.Best.Score+scoreTolerance {
			w.Best, bestParts, bijective = c, decoded, bij
		}
	}

	for _, st := range strategies {
		if st.bijections != nil && !decodersOnly {
			for _, p := range st.bijections(sample, opts) {
				decoded := make([][]byte, len(parts))
				for i, part := range parts {
					decoded[i] = p.fn(part)
				}
				joined := bytes.Join(decoded, []byte{0})
				consider(Candidate{Strategy: st.name, Param: p.value, Data: joined, Score: Score(joined)}, decoded, true)
			}
		}
		if st.decode != nil && whole {
			if out, ok := st.decode(raw, opts); ok {
				consider(Candidate{Strategy: st.name, Data: out, Score: Score(out)}, [][]byte{out}, false)
			}
		}
	}

	switch {
	case bestParts == nil:
		w.Outcome = Unrecovered
		w.Encoding = UnknownEncoding
		return w
	case w.Best.Score >= opts.HighConfidence:
		w.Outcome = Recovered
	case w.Best.Score >= opts.AcceptThreshold:
		w.Outcome = Partial
	default:
		w.Outcome = Unrecovered
		w.Encoding = UnknownEncoding
	}

	if !whole {
		for i, d := range bestParts {
			d = bytes.TrimRight(d, "\x00")
			w.pieces = append(w.pieces, piece{data: d, offset: recs[i].Start, length: recs[i].Len(), conf: Score(d)})
		}
		return w
	}
	// Whole-region decode: split on NUL into pieces.
	out := bestParts[0]
	start := 0
	for i := 0; i <= len(out); i++ {
		if i < len(out) && out[i] != 0 {
			continue
		}
		if i-start >= opts.MinStringLen {
			d := out[start:i]
			p := piece{data: d, offset: r.Start, length: r.Len(), conf: Score(d)}
			if bijective {
				p.offset, p.length = r.Start+start, i-start
			}
			w.pieces = append(w.pieces, p)
		}
		start = i + 1
	}
	return w
}

// latin1 converts bytes to a string, mapping bytes >= 0x80 to the code
// point of the same value.
func latin1(b []byte) string {
	if !hasHigh(b) {
		return string(b)
	}
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return string(rs)
}

func hasHigh(b []byte) bool {
	for _, c := range b {
		if c >= 0x80 {
			return true
		}
	}
	return false
}
