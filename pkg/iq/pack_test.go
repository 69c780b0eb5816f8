package iq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPack12(t *testing.T) {
	tests := []struct {
		name  string
		pairs []Pair
		want  []byte
	}{
		{"empty", nil, []byte{}},
		{"single", []Pair{{I: 0x123, Q: 0x456}}, []byte{0x12, 0x34, 0x56}},
		{"masks high bits", []Pair{{I: 0x7123, Q: 0x0456}}, []byte{0x12, 0x34, 0x56}},
		{"negative", []Pair{{I: -1, Q: -2048}}, []byte{0xFF, 0xF8, 0x00}},
		{"two", []Pair{{I: 1, Q: 2}, {I: 3, Q: 4}}, []byte{0x00, 0x10, 0x02, 0x00, 0x30, 0x04}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pack12(tt.pairs)
			assert.Equal(t, tt.want, got)
			assert.Len(t, got, 3*len(tt.pairs))
		})
	}
}

func TestUnpack12(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want []uint16
	}{
		{"empty", nil, []uint16{}},
		{"full group", []byte{0x12, 0x34, 0x56}, []uint16{0x123, 0x456}},
		{"one trailing byte", []byte{0x12, 0x34, 0x56, 0xAB}, []uint16{0x123, 0x456, 0xAB0}},
		{"two trailing bytes", []byte{0x12, 0x34, 0x56, 0xAB, 0xCD}, []uint16{0x123, 0x456, 0xABC}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Unpack12(tt.buf))
		})
	}
}

func TestPack12_RoundTripModulo12Bits(t *testing.T) {
	var pairs []Pair
	for v := -4096; v < 4096; v += 37 {
		pairs = append(pairs, Pair{I: int16(v), Q: int16(-v)})
	}

	got := Unpack12(Pack12(pairs))
	assert.Len(t, got, 2*len(pairs))
	for n, p := range pairs {
		assert.Equal(t, uint16(p.I)&0xFFF, got[2*n])
		assert.Equal(t, uint16(p.Q)&0xFFF, got[2*n+1])
	}
}
