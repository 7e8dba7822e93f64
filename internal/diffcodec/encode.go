package diffcodec

import "encoding/binary"

// Encode computes the run-length XOR diff that turns prev into cur.
// prev and cur must have equal length; the caller is responsible for
// padding both to whatever boundary it cares about before calling in
// (the codec itself tolerates any length, including one not a
// multiple of 4, via the partial trailing word below).
//
// The output is an alternating (count uint32, xor uint32) stream,
// little-endian, such that replaying it onto prev with Decode
// reproduces cur exactly. A final (count, xor) pair is always emitted,
// even when count is 0; callers decoding this stream must tolerate a
// zero-count terminator.
func Encode(prev, cur []byte) []byte {
	return AppendEncode(nil, prev, cur)
}

// AppendEncode is Encode writing into dst, so per-tick callers can
// reuse a scratch buffer instead of allocating a fresh diff every
// tick. It appends the pair stream to dst and returns the extended
// slice.
func AppendEncode(dst, prev, cur []byte) []byte {
	if len(prev) != len(cur) {
		panic("diffcodec: Encode requires prev and cur of equal length")
	}

	out := dst
	var c, n uint32

	nWords := len(cur) / 4
	for i := 0; i < nWords; i++ {
		off := i * 4
		a := binary.LittleEndian.Uint32(prev[off:off+4]) ^ binary.LittleEndian.Uint32(cur[off:off+4])
		if a == c {
			n++
		} else {
			if n > 0 {
				out = appendPair(out, n, c)
			}
			n = 1
			c = a
		}
	}

	if rem := len(cur) % 4; rem != 0 {
		off := nWords * 4
		var pw, cw [4]byte
		copy(pw[:], prev[off:])
		copy(cw[:], cur[off:])
		a := binary.LittleEndian.Uint32(pw[:]) ^ binary.LittleEndian.Uint32(cw[:])
		if a == c {
			n++
		} else {
			if n > 0 {
				out = appendPair(out, n, c)
			}
			n = 1
			c = a
		}
	}

	// unconditional trailing emit, per the wire contract
	out = appendPair(out, n, c)

	return out
}

func appendPair(out []byte, n, c uint32) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], n)
	binary.LittleEndian.PutUint32(buf[4:8], c)
	return append(out, buf[:]...)
}
