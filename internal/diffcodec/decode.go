package diffcodec

import "encoding/binary"

// Decode replays a diff stream produced by Encode onto prev, returning
// a new byte slice of the same length holding the reconstructed cur.
// It is normative for interop with the wire protocol but is not used
// on the server's hot path (the server only ever encodes); within this
// module only the tests call it.
func Decode(prev []byte, diff []byte) []byte {
	cur := make([]byte, len(prev))
	copy(cur, prev)

	var word uint32 // word index into cur
	off := 0
	for off+8 <= len(diff) {
		n := binary.LittleEndian.Uint32(diff[off : off+4])
		c := binary.LittleEndian.Uint32(diff[off+4 : off+8])
		off += 8

		for i := uint32(0); i < n; i++ {
			byteOff := int(word) * 4
			if byteOff >= len(cur) {
				break
			}
			if byteOff+4 > len(cur) {
				rem := len(cur) - byteOff
				var buf [4]byte
				copy(buf[:], cur[byteOff:])
				v := binary.LittleEndian.Uint32(buf[:]) ^ c
				binary.LittleEndian.PutUint32(buf[:], v)
				copy(cur[byteOff:], buf[:rem])
			} else {
				v := binary.LittleEndian.Uint32(cur[byteOff:byteOff+4]) ^ c
				binary.LittleEndian.PutUint32(cur[byteOff:byteOff+4], v)
			}
			word++
		}
	}

	return cur
}
