// Package core defines the values exchanged between the bridge stages.
package core

import "firestige.xyz/vrtbridge/pkg/iq"

// Chunk is a batch of I/Q pairs as delivered by a source. Its length is
// arbitrary; the packetizer reframes it into fixed-size blocks.
type Chunk []iq.Pair

// FrameKind tells data packets from context packets on the output path.
type FrameKind uint8

const (
	FrameData FrameKind = iota
	FrameContext
)

func (k FrameKind) String() string {
	switch k {
	case FrameData:
		return "data"
	case FrameContext:
		return "context"
	default:
		return "unknown"
	}
}

// Frame is one encoded VRT packet on its way to a sink.
type Frame struct {
	Kind  FrameKind
	Bytes []byte
}
