package oi

import "encoding/binary"

// PutWord encodes a 16-bit value into p, high byte first.
func PutWord(p []byte, v uint16) {
	binary.BigEndian.PutUint16(p, v)
}

// Word decodes a big-endian 16-bit value from the first two bytes of p.
func Word(p []byte) uint16 {
	return binary.BigEndian.Uint16(p)
}

// EncodeSignedWord returns the two bytes of v, high byte first.
func EncodeSignedWord(v int16) [2]byte {
	var p [2]byte
	PutWord(p[:], uint16(v))
	return p
}

// EncodeUnsignedWord returns the two bytes of v, high byte first.
func EncodeUnsignedWord(v uint16) [2]byte {
	var p [2]byte
	PutWord(p[:], v)
	return p
}

// DecodeSignedWord interprets high and low bytes as a two's complement value.
func DecodeSignedWord(high, low byte) int16 {
	return int16(Word([]byte{high, low}))
}

// DecodeUnsignedWord interprets high and low bytes as an unsigned value.
func DecodeUnsignedWord(high, low byte) uint16 {
	return Word([]byte{high, low})
}
