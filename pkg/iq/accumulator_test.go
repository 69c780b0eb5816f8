package iq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(from, n int) []Pair {
	out := make([]Pair, n)
	for i := range out {
		out[i] = Pair{I: int16(from + i), Q: int16(-(from + i))}
	}
	return out
}

func TestNewAccumulator_InvalidSize(t *testing.T) {
	_, err := NewAccumulator(0)
	assert.Error(t, err)
}

func TestAccumulator_Reframes(t *testing.T) {
	acc, err := NewAccumulator(4)
	require.NoError(t, err)

	assert.Empty(t, acc.Push(ramp(0, 3)))
	assert.Equal(t, 3, acc.Pending())

	blocks := acc.Push(ramp(3, 6))
	require.Len(t, blocks, 2)
	assert.Equal(t, ramp(0, 4), blocks[0])
	assert.Equal(t, ramp(4, 4), blocks[1])
	assert.Equal(t, 1, acc.Pending())

	assert.Empty(t, acc.Push(nil))
	blocks = acc.Push(ramp(9, 3))
	require.Len(t, blocks, 1)
	assert.Equal(t, ramp(8, 4), blocks[0])
	assert.Zero(t, acc.Pending())
}

func TestAccumulator_NoLossNoReorder(t *testing.T) {
	acc, err := NewAccumulator(7)
	require.NoError(t, err)

	var out []Pair
	next := 0
	for _, size := range []int{1, 0, 13, 7, 2, 30, 5, 6} {
		for _, b := range acc.Push(ramp(next, size)) {
			require.Len(t, b, 7)
			out = append(out, b...)
		}
		next += size
	}
	assert.Equal(t, ramp(0, len(out)), out)
	assert.Equal(t, next, len(out)+acc.Pending())
}

func TestAccumulator_BlocksDoNotAlias(t *testing.T) {
	acc, err := NewAccumulator(2)
	require.NoError(t, err)

	first := acc.Push(ramp(0, 3))
	require.Len(t, first, 1)
	acc.Push(ramp(3, 5))
	assert.Equal(t, ramp(0, 2), first[0])
}
