package iq

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerSize(t *testing.T) {
	tests := []struct {
		bits int
		want int
	}{
		{8, 1}, {12, 2}, {16, 2}, {24, 4}, {32, 4}, {64, 8},
	}
	for _, tt := range tests {
		got, err := ContainerSize(tt.bits)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "bits=%d", tt.bits)
	}

	for _, bits := range []int{0, 4, 10, 48, 128} {
		_, err := ContainerSize(bits)
		assert.ErrorIs(t, err, ErrUnsupportedBitResolution, "bits=%d", bits)
	}
}

func TestConverter_SixteenBit(t *testing.T) {
	c, err := NewConverter(16)
	require.NoError(t, err)

	raw := make([]byte, 0, 8)
	raw = binary.LittleEndian.AppendUint16(raw, uint16(0x0123))
	raw = binary.LittleEndian.AppendUint16(raw, 0xFFFF)
	raw = binary.LittleEndian.AppendUint16(raw, uint16(0x7FFF))
	raw = binary.LittleEndian.AppendUint16(raw, 0x8000)

	assert.Equal(t, []Pair{{I: 0x0123, Q: -1}, {I: 0x7FFF, Q: -0x8000}}, c.Feed(raw))
	assert.Zero(t, c.Pending())
}

func TestConverter_CarriesPartialPairs(t *testing.T) {
	c, err := NewConverter(8)
	require.NoError(t, err)

	assert.Empty(t, c.Feed([]byte{0x01}))
	assert.Equal(t, 1, c.Pending())

	got := c.Feed([]byte{0xFF, 0x02, 0x03, 0x04})
	assert.Equal(t, []Pair{{I: 1, Q: -1}, {I: 2, Q: 3}}, got)
	assert.Equal(t, 1, c.Pending())
}

func TestConverter_WideContainersTruncate(t *testing.T) {
	c, err := NewConverter(32)
	require.NoError(t, err)

	raw := binary.LittleEndian.AppendUint32(nil, 0x00012345)
	raw = binary.LittleEndian.AppendUint32(raw, 0xFFFFFFFE)
	assert.Equal(t, []Pair{{I: 0x2345, Q: -2}}, c.Feed(raw))

	c64, err := NewConverter(64)
	require.NoError(t, err)
	raw = binary.LittleEndian.AppendUint64(nil, 0x1_0000_0042)
	raw = binary.LittleEndian.AppendUint64(raw, 7)
	assert.Equal(t, []Pair{{I: 0x42, Q: 7}}, c64.Feed(raw))
	assert.Equal(t, 16, c64.PairSize())
}
