package recovery

import (
	"math/bits"
	"slices"
)

// Strategy names a decoding strategy.
type Strategy string

const (
	StrategyDirect Strategy = "direct"
	StrategyXOR    Strategy = "xor"
	StrategyRotate Strategy = "rotate"
	StrategyShift  Strategy = "shift"
	StrategyRLE    Strategy = "rle"
	StrategyXZ     Strategy = "xz"
	StrategyZlib   Strategy = "zlib"
	StrategyRaw    Strategy = "raw"
)

// Candidate is one decode attempt.
type Candidate struct {
	Strategy Strategy `json:"strategy"`
	Param    int      `json:"param,omitempty"` // XOR key, rotation or shift
	Data     []byte   `json:"-"`
	Score    float64  `json:"score"`
}

// Label is a short provenance tag such as "xor 0x55" or "direct".
func (c Candidate) Label() string { return label(c.Strategy, c.Param) }

// transform is a byte-wise bijection. Strategies that have one can be
// applied record by record.
type transform func(b []byte) []byte

// strategy produces candidate decodes for a region. Entries are tried in
// slice order, which is also the tie-break priority.
type strategy struct {
	name Strategy
	// bijections returns parameterised byte transforms, or nil.
	bijections func(sample []byte, opts Options) []param
	// decode handles whole-buffer strategies (decompressors).
	decode func(b []byte, opts Options) ([]byte, bool)
}

type param struct {
	value int
	fn    transform
}

var strategies = []strategy{
	{name: StrategyDirect, bijections: directParams},
	{name: StrategyXOR, bijections: xorParams},
	{name: StrategyRotate, bijections: rotateParams},
	{name: StrategyShift, bijections: shiftParams},
	{name: StrategyRLE, decode: decodeRLE},
	{name: StrategyXZ, decode: decodeXZ},
	{name: StrategyZlib, decode: decodeZlib},
	{name: StrategyRaw, bijections: rawParams},
}

// directParams interprets the bytes as ASCII text. Not offered when any byte
// is outside 7-bit ASCII.
func directParams(sample []byte, _ Options) []param {
	for _, c := range sample {
		if c >= 0x80 {
			return nil
		}
	}
	return []param{{fn: identity}}
}

func rawParams([]byte, Options) []param { return []param{{fn: identity}} }

func identity(b []byte) []byte { return b }

// Plaintext bytes assumed to dominate decoded data: delimiter, space and the
// most common letters.
var plainGuesses = []byte{0x00, ' ', 'e', 'A'}

// Keys observed in obfuscated FAS string tables.
var fixedKeys = []byte{0x38, 0x24, 0x13, 0x5A, 0x20, 0x55, 0xAA, 0xFF}

// peaks returns the three most frequent bytes of sample, most frequent
// first, skipping bytes that never occur.
func peaks(sample []byte) []byte {
	var freq [256]int
	for _, c := range sample {
		freq[c]++
	}
	order := make([]int, 256)
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return freq[b] - freq[a] })
	var out []byte
	for _, p := range order[:3] {
		if freq[p] == 0 {
			break
		}
		out = append(out, byte(p))
	}
	return out
}

// XORKeys derives candidate single-byte keys from the byte-frequency peaks
// of sample, then adds the fixed keys. Derived keys are kept first when
// limit truncates. The result is sorted, free of duplicates and never
// contains 0.
func XORKeys(sample []byte, limit int) []byte {
	var keys []byte
	for _, peak := range peaks(sample) {
		for _, g := range plainGuesses {
			keys = append(keys, peak^g)
		}
	}
	return candidates(append(keys, fixedKeys...), limit)
}

// ShiftKeys derives additive shifts k such that (b+k) mod 256 maps a
// frequency peak of sample onto a likely plaintext byte.
func ShiftKeys(sample []byte, limit int) []byte {
	var keys []byte
	for _, peak := range peaks(sample) {
		for _, g := range plainGuesses {
			keys = append(keys, g-peak)
		}
	}
	return candidates(keys, limit)
}

// candidates drops 0 and duplicates keeping first occurrences, truncates to
// limit and sorts.
func candidates(in []byte, limit int) []byte {
	seen := map[byte]bool{0: true}
	var keys []byte
	for _, k := range in {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	slices.Sort(keys)
	return keys
}

func xorParams(sample []byte, opts Options) []param {
	keys := XORKeys(sample, opts.MaxXORKeys)
	out := make([]param, len(keys))
	for i, k := range keys {
		out[i] = param{value: int(k), fn: func(b []byte) []byte { return xorBytes(b, k) }}
	}
	return out
}

func xorBytes(b []byte, k byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c ^ k
	}
	return out
}

// rotateParams undoes a left rotation of every byte by 1 to 7 bits.
func rotateParams([]byte, Options) []param {
	out := make([]param, 0, 7)
	for r := 1; r <= 7; r++ {
		out = append(out, param{value: r, fn: func(b []byte) []byte { return rotateBytes(b, r) }})
	}
	return out
}

func rotateBytes(b []byte, r int) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = bits.RotateLeft8(c, -r)
	}
	return out
}

// shiftParams undoes an additive byte shift.
func shiftParams(sample []byte, opts Options) []param {
	keys := ShiftKeys(sample, opts.MaxXORKeys)
	out := make([]param, len(keys))
	for i, k := range keys {
		out[i] = param{value: int(k), fn: func(b []byte) []byte { return shiftBytes(b, k) }}
	}
	return out
}

func shiftBytes(b []byte, k byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c + k
	}
	return out
}
