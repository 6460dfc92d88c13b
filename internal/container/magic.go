package container

import "bytes"

// FindMagic scans data for the first FAS signature, binary or text.
// Returns the byte offset of the first occurrence, or -1 if not found.
func FindMagic(data []byte) int {
	best := bytes.Index(data, standardMagic)
	for off := 0; off < len(data); {
		i := bytes.Index(data[off:], textPrefix)
		if i < 0 {
			break
		}
		at := off + i
		if best >= 0 && at >= best {
			break
		}
		if _, ok := textSignature(data[at:]); ok {
			return at
		}
		off = at + 1
	}
	return best
}

// FindAll returns the offsets of every FAS signature in data, in order.
// Useful for archives that bundle several compiled files.
func FindAll(data []byte) []int {
	var out []int
	for off := 0; off < len(data); {
		i := FindMagic(data[off:])
		if i < 0 {
			break
		}
		out = append(out, off+i)
		off += i + 1
	}
	return out
}
