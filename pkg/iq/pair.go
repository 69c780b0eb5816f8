// Package iq holds I/Q sample pairs and the transforms applied to them before
// packetization: container decoding, 12-bit packing and block framing.
package iq

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnsupportedBitResolution is returned for a sample width without a
// known container type.
var ErrUnsupportedBitResolution = errors.New("iq: unsupported bit resolution")

// Pair is one complex sample: in-phase and quadrature components.
type Pair struct {
	I int16
	Q int16
}

// ContainerSize returns the byte width of the little-endian integer that
// carries one component at the given resolution.
func ContainerSize(bitResolution int) (int, error) {
	switch bitResolution {
	case 8:
		return 1, nil
	case 12, 16:
		return 2, nil
	case 24, 32:
		return 4, nil
	case 64:
		return 8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedBitResolution, bitResolution)
	}
}

// Converter turns a raw byte stream of interleaved I/Q components into
// pairs. Bytes that do not yet form a full pair are kept for the next Feed.
// A Converter is not safe for concurrent use.
type Converter struct {
	width   int
	pending []byte
}

// NewConverter returns a converter for the given bit resolution.
func NewConverter(bitResolution int) (*Converter, error) {
	width, err := ContainerSize(bitResolution)
	if err != nil {
		return nil, err
	}
	return &Converter{width: width}, nil
}

// PairSize is the number of raw bytes consumed per pair.
func (c *Converter) PairSize() int {
	return 2 * c.width
}

// Feed appends raw to the carried-over bytes and returns every complete pair.
// Components wider than 16 bits keep their low 16 bits.
func (c *Converter) Feed(raw []byte) []Pair {
	buf := raw
	if len(c.pending) > 0 {
		buf = append(c.pending, raw...)
	}

	step := c.PairSize()
	n := len(buf) / step
	pairs := make([]Pair, n)
	for i := range pairs {
		off := i * step
		pairs[i] = Pair{
			I: c.component(buf[off:]),
			Q: c.component(buf[off+c.width:]),
		}
	}

	c.pending = append(c.pending[:0:0], buf[n*step:]...)
	return pairs
}

// Pending returns the number of carried-over bytes.
func (c *Converter) Pending() int {
	return len(c.pending)
}

func (c *Converter) component(b []byte) int16 {
	switch c.width {
	case 1:
		return int16(int8(b[0]))
	case 2:
		return int16(binary.LittleEndian.Uint16(b))
	case 4:
		return int16(binary.LittleEndian.Uint32(b))
	default:
		return int16(binary.LittleEndian.Uint64(b))
	}
}
