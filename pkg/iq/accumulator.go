package iq

import "fmt"

// Accumulator reframes chunks of arbitrary length into blocks of a fixed
// number of pairs, preserving order.
type Accumulator struct {
	blockSize int
	buf       []Pair
}

// NewAccumulator returns an accumulator emitting blocks of blockSize pairs.
func NewAccumulator(blockSize int) (*Accumulator, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("iq: block size must be positive, got %d", blockSize)
	}
	return &Accumulator{blockSize: blockSize, buf: make([]Pair, 0, blockSize)}, nil
}

// Push appends chunk and returns every block that became complete, oldest
// first. Returned blocks are owned by the caller.
func (a *Accumulator) Push(chunk []Pair) [][]Pair {
	a.buf = append(a.buf, chunk...)
	if len(a.buf) < a.blockSize {
		return nil
	}

	n := len(a.buf) / a.blockSize
	blocks := make([][]Pair, n)
	for i := range blocks {
		block := make([]Pair, a.blockSize)
		copy(block, a.buf[i*a.blockSize:])
		blocks[i] = block
	}

	rest := copy(a.buf, a.buf[n*a.blockSize:])
	a.buf = a.buf[:rest]
	return blocks
}

// Pending returns the number of buffered pairs not yet emitted.
func (a *Accumulator) Pending() int {
	return len(a.buf)
}

// BlockSize returns the configured block size.
func (a *Accumulator) BlockSize() int {
	return a.blockSize
}
