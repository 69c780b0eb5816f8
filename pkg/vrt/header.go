package vrt

import "fmt"

// Header field names.
const (
	fieldPacketType = "packet_type"
	fieldHasClassID = "has_class_id"
	fieldHasTrailer = "has_trailer"
	fieldTSM        = "tsm"
	fieldTSI        = "tsi"
	fieldTSF        = "tsf"
	fieldCount      = "count"
	fieldSize       = "size"
)

// HeaderLayout is the bit layout of the first word of every packet.
var HeaderLayout = MustLayout(
	Field{fieldPacketType, 4},
	Field{fieldHasClassID, 1},
	Field{fieldHasTrailer, 1},
	Field{"", 1},
	Field{fieldTSM, 1},
	Field{fieldTSI, 2},
	Field{fieldTSF, 2},
	Field{fieldCount, 4},
	Field{fieldSize, 16},
)

// Header is the decoded form of the header word.
type Header struct {
	PacketType PacketType
	HasClassID bool
	HasTrailer bool
	TSM        bool
	TSI        TSI
	TSF        TSF
	Count      uint8
	Size       uint16 // total packet length in 32-bit words
}

// Encode packs the header into its wire word.
func (h Header) Encode() (uint32, error) {
	return HeaderLayout.Encode(map[string]uint32{
		fieldPacketType: uint32(h.PacketType),
		fieldHasClassID: boolBit(h.HasClassID),
		fieldHasTrailer: boolBit(h.HasTrailer),
		fieldTSM:        boolBit(h.TSM),
		fieldTSI:        uint32(h.TSI),
		fieldTSF:        uint32(h.TSF),
		fieldCount:      uint32(h.Count),
		fieldSize:       uint32(h.Size),
	})
}

// DecodeHeader unpacks a header word.
func DecodeHeader(word uint32) Header {
	v := HeaderLayout.Decode(word)
	return Header{
		PacketType: PacketType(v[fieldPacketType]),
		HasClassID: v[fieldHasClassID] == 1,
		HasTrailer: v[fieldHasTrailer] == 1,
		TSM:        v[fieldTSM] == 1,
		TSI:        TSI(v[fieldTSI]),
		TSF:        TSF(v[fieldTSF]),
		Count:      uint8(v[fieldCount]),
		Size:       uint16(v[fieldSize]),
	}
}

func (h Header) String() string {
	return fmt.Sprintf("Header(type=%s, class_id=%t, trailer=%t, tsm=%t, tsi=%s, tsf=%s, count=%d, size=%d)",
		h.PacketType, h.HasClassID, h.HasTrailer, h.TSM, h.TSI, h.TSF, h.Count, h.Size)
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
