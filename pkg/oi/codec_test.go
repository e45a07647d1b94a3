package oi

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWordByteOrder(t *testing.T) {
	require.Equal(t, [2]byte{0x12, 0x34}, EncodeUnsignedWord(0x1234))
	require.Equal(t, [2]byte{0xff, 0xfe}, EncodeSignedWord(-2))
	require.Equal(t, [2]byte{0x80, 0x00}, EncodeSignedWord(math.MinInt16))
	require.Equal(t, int16(-32768), DecodeSignedWord(0x80, 0x00))
	require.Equal(t, uint16(0x8000), DecodeUnsignedWord(0x80, 0x00))
	require.Equal(t, int16(1), DecodeSignedWord(0x00, 0x01))
}

func TestWordRoundTrip(t *testing.T) {
	for v := math.MinInt16; v <= math.MaxInt16; v++ {
		p := EncodeSignedWord(int16(v))
		if got := DecodeSignedWord(p[0], p[1]); got != int16(v) {
			t.Fatalf("signed %d decoded as %d", v, got)
		}
		// signed and unsigned share the same bit pattern.
		if p != EncodeUnsignedWord(uint16(int16(v))) {
			t.Fatalf("signed %d encoded differently", v)
		}
	}
	for v := 0; v <= math.MaxUint16; v++ {
		p := EncodeUnsignedWord(uint16(v))
		if got := DecodeUnsignedWord(p[0], p[1]); got != uint16(v) {
			t.Fatalf("unsigned %d decoded as %d", v, got)
		}
	}
}
