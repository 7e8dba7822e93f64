package diffcodec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func words(vs ...uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		prev []byte
		cur  []byte
	}{
		{"empty", []byte{}, []byte{}},
		{"single word no change", words(42), words(42)},
		{"single word changed", words(42), words(43)},
		{"single run", words(1, 1, 1, 1), words(2, 2, 2, 2)},
		{"alternating", words(1, 2, 1, 2), words(9, 2, 9, 2)},
		{"trailing partial word", append(words(1, 2), 0xAA, 0xBB), append(words(1, 9), 0xAA, 0xCC)},
		{"trailing partial word unchanged", append(words(5), 0x01, 0x02, 0x03), append(words(5), 0x01, 0x02, 0x03)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, len(tc.prev), len(tc.cur), "test case must supply equal-length prev/cur")
			diff := Encode(tc.prev, tc.cur)
			got := Decode(tc.prev, diff)
			assert.Equal(t, tc.cur, got)
		})
	}
}

func TestEncodeIdempotentSendIsAllZeroRuns(t *testing.T) {
	cur := make([]byte, 512)
	for i := range cur {
		cur[i] = byte(i)
	}
	prev := make([]byte, len(cur))
	copy(prev, cur)

	diff := Encode(prev, cur)

	// a single trailing (n, 0) pair covering every word
	require.Len(t, diff, 8)
	n := binary.LittleEndian.Uint32(diff[0:4])
	c := binary.LittleEndian.Uint32(diff[4:8])
	assert.Equal(t, uint32(0), c)
	assert.Equal(t, uint32(len(cur)/4), n)
}

func TestEncodeAlwaysEmitsTrailingPairEvenWhenZero(t *testing.T) {
	diff := Encode(nil, nil)
	require.Len(t, diff, 8)
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(diff[0:4]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(diff[4:8]))
}

func TestEncodePanicsOnLengthMismatch(t *testing.T) {
	assert.Panics(t, func() {
		Encode([]byte{1, 2, 3, 4}, []byte{1, 2, 3})
	})
}
