package consensus

import "encoding/binary"

const (
	outPointSize  = 32 + 4
	cellInputSize = 8 + outPointSize
	cellDepSize   = outPointSize + 1
)

func appendU32le(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU64le(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// serializeBytes encodes a molecule Bytes (fixvec<byte>).
func serializeBytes(b []byte) []byte {
	return serializeFixvec(len(b), b)
}

// serializeFixvec prefixes already-concatenated fixed-size items with their count.
func serializeFixvec(count int, items []byte) []byte {
	out := make([]byte, 0, 4+len(items))
	// #nosec G115 -- item counts are bounded by in-memory slice lengths.
	out = appendU32le(out, uint32(count))
	return append(out, items...)
}

// serializeTable encodes a molecule table: full size, one offset per
// field, then the fields back to back. A dynvec has the same layout.
func serializeTable(fields ...[]byte) []byte {
	header := 4 * (1 + len(fields))
	total := header
	for _, f := range fields {
		total += len(f)
	}
	out := make([]byte, 0, total)
	// #nosec G115 -- total is bounded by in-memory slice lengths.
	out = appendU32le(out, uint32(total))
	off := header
	for _, f := range fields {
		// #nosec G115 -- off <= total.
		out = appendU32le(out, uint32(off))
		off += len(f)
	}
	for _, f := range fields {
		out = append(out, f...)
	}
	return out
}

func serializeDynvec(items [][]byte) []byte {
	return serializeTable(items...)
}
