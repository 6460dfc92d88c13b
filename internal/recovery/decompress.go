package recovery

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/ulikunitz/xz"

	"unfas/internal/region"
)

// maxInflate caps decompressed output.
const maxInflate = 1 << 20

// IdentifyCompression names the decompression strategy for b, or "".
func IdentifyCompression(b []byte) Strategy {
	switch region.Compression(b) {
	case region.MethodXZ:
		return StrategyXZ
	case region.MethodZlib:
		return StrategyZlib
	}
	return ""
}

func decodeXZ(b []byte, _ Options) ([]byte, bool) {
	if IdentifyCompression(b) != StrategyXZ {
		return nil, false
	}
	r, err := xz.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	return readCapped(r)
}

func decodeZlib(b []byte, _ Options) ([]byte, bool) {
	if IdentifyCompression(b) != StrategyZlib {
		return nil, false
	}
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, false
	}
	defer r.Close()
	return readCapped(r)
}

func readCapped(r io.Reader) ([]byte, bool) {
	out, err := io.ReadAll(io.LimitReader(r, maxInflate))
	if err != nil || len(out) == 0 {
		return nil, false
	}
	return out, true
}

// decodeRLE expands PackBits: a header n in [0,127] copies n+1 literal
// bytes, n in [-127,-1] repeats the next byte 1-n times, -128 is a no-op.
// The input must be consumed exactly and must expand.
func decodeRLE(b []byte, _ Options) ([]byte, bool) {
	var out []byte
	i := 0
	for i < len(b) {
		n := int(int8(b[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(b) {
				return nil, false
			}
			out = append(out, b[i:i+n+1]...)
			i += n + 1
		case n == -128:
		default:
			if i >= len(b) {
				return nil, false
			}
			for range 1 - n {
				out = append(out, b[i])
			}
			i++
		}
		if len(out) > maxInflate {
			return nil, false
		}
	}
	if len(out) <= len(b) {
		return nil, false
	}
	return out, true
}
