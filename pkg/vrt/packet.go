package vrt

import (
	"encoding/binary"
	"fmt"
)

// ClassID identifies the vendor and semantic class of a packet. The three
// parts are present or absent together.
type ClassID struct {
	OUI         uint32 // 24-bit IEEE organizationally unique identifier
	InfoClass   uint16
	PacketClass uint16
}

// NewClassID validates the OUI width.
func NewClassID(oui uint32, infoClass, packetClass uint16) (*ClassID, error) {
	c := &ClassID{OUI: oui, InfoClass: infoClass, PacketClass: packetClass}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *ClassID) validate() error {
	if c.OUI > 0xFFFFFF {
		return fmt.Errorf("%w: oui 0x%x wider than 24 bits", ErrInvalidClassID, c.OUI)
	}
	return nil
}

// Packet is a single VRT packet. Presence of the optional words is derived:
// the stream id follows from Type, the class id from ClassID != nil, the
// timestamp words from TSI/TSF and the trailer from Trailer != nil.
type Packet struct {
	Type      PacketType
	TSI       TSI
	TSF       TSF
	TSM       bool
	Count     uint8
	StreamID  uint32
	Timestamp *Timestamp
	ClassID   *ClassID
	Data      []byte
	Trailer   *Trailer
}

// HasStreamID reports whether the packet type carries a stream identifier.
func (p *Packet) HasStreamID() bool {
	return p.Type == IFDataWithID || p.Type == ExtDataWithID
}

// HasClassID reports whether a class identifier is emitted.
func (p *Packet) HasClassID() bool {
	return p.ClassID != nil
}

// HasTrailer reports whether a trailer word is emitted.
func (p *Packet) HasTrailer() bool {
	return p.Trailer != nil
}

// Size returns the packet length in 32-bit words, header included.
func (p *Packet) Size() int {
	size := p.prologueWords() + len(p.Data)/4
	if p.HasTrailer() {
		size++
	}
	return size
}

// prologueWords counts every word before the payload.
func (p *Packet) prologueWords() int {
	words := 1
	if p.HasStreamID() {
		words++
	}
	if p.HasClassID() {
		words += 2
	}
	if p.TSI != TSINone {
		words++
	}
	if p.TSF != TSFNone {
		words += 2
	}
	return words
}

// Header returns the header that Encode would emit.
func (p *Packet) Header() Header {
	return Header{
		PacketType: p.Type,
		HasClassID: p.HasClassID(),
		HasTrailer: p.HasTrailer(),
		TSM:        p.TSM,
		TSI:        p.TSI,
		TSF:        p.TSF,
		Count:      p.Count,
		Size:       uint16(p.Size()),
	}
}

// Encode serializes the packet in network byte order.
func (p *Packet) Encode() ([]byte, error) {
	if p.Count > 15 {
		return nil, fmt.Errorf("%w: %d", ErrCountRange, p.Count)
	}
	if len(p.Data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadAlignment, len(p.Data))
	}
	size := p.Size()
	if size > 0xFFFF {
		return nil, fmt.Errorf("%w: %d words", ErrPacketTooLarge, size)
	}
	if (p.TSI != TSINone || p.TSF != TSFNone) && p.Timestamp == nil {
		return nil, fmt.Errorf("%w: tsi=%s tsf=%s", ErrMissingTimestamp, p.TSI, p.TSF)
	}

	header, err := p.Header().Encode()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, size*4)
	buf = binary.BigEndian.AppendUint32(buf, header)

	if p.HasStreamID() {
		buf = binary.BigEndian.AppendUint32(buf, p.StreamID)
	}

	if p.HasClassID() {
		if err := p.ClassID.validate(); err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, p.ClassID.OUI)
		buf = binary.BigEndian.AppendUint16(buf, p.ClassID.InfoClass)
		buf = binary.BigEndian.AppendUint16(buf, p.ClassID.PacketClass)
	}

	if p.TSI != TSINone {
		integer, err := p.Timestamp.Integer()
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, integer)
	}

	if p.TSF != TSFNone {
		frac := p.Timestamp.Fractional()
		if p.TSF == TSFReal && frac >= PicoDivisor {
			return nil, fmt.Errorf("%w: fractional word %d is not below one second", ErrTimestampRange, frac)
		}
		buf = binary.BigEndian.AppendUint64(buf, frac)
	}

	buf = append(buf, p.Data...)

	if p.HasTrailer() {
		trailer, err := p.Trailer.Encode()
		if err != nil {
			return nil, err
		}
		buf = binary.BigEndian.AppendUint32(buf, trailer)
	}

	return buf, nil
}

// Decode parses exactly one packet from buf. The buffer length must match the
// size announced by the header.
func Decode(buf []byte) (*Packet, error) {
	if len(buf) < 4 {
		return nil, newDecodeError(0, "need 4 bytes for header, have %d", len(buf))
	}
	h := DecodeHeader(binary.BigEndian.Uint32(buf))
	if h.Size == 0 {
		return nil, newDecodeError(0, "header announces zero-length packet")
	}
	if want := int(h.Size) * 4; len(buf) != want {
		return nil, newDecodeError(0, "header announces %d bytes, have %d", want, len(buf))
	}

	p := &Packet{
		Type:  h.PacketType,
		TSI:   h.TSI,
		TSF:   h.TSF,
		TSM:   h.TSM,
		Count: h.Count,
	}
	if h.HasTrailer {
		p.Trailer = &Trailer{}
	}
	if h.HasClassID {
		p.ClassID = &ClassID{}
	}

	prologue := p.prologueWords()
	trailerWords := 0
	if h.HasTrailer {
		trailerWords = 1
	}
	payloadWords := int(h.Size) - prologue - trailerWords
	if payloadWords < 0 {
		return nil, newDecodeError(0, "size %d smaller than %d prologue and trailer words", h.Size, prologue+trailerWords)
	}

	off := 4
	if p.HasStreamID() {
		p.StreamID = binary.BigEndian.Uint32(buf[off:])
		off += 4
	}

	if h.HasClassID {
		oui := binary.BigEndian.Uint32(buf[off:])
		if oui > 0xFFFFFF {
			return nil, newDecodeError(off, "class id reserved bits set: 0x%08x", oui)
		}
		p.ClassID.OUI = oui
		p.ClassID.InfoClass = binary.BigEndian.Uint16(buf[off+4:])
		p.ClassID.PacketClass = binary.BigEndian.Uint16(buf[off+6:])
		off += 8
	}

	var integer uint32
	var frac uint64
	if h.TSI != TSINone {
		integer = binary.BigEndian.Uint32(buf[off:])
		off += 4
	}
	if h.TSF != TSFNone {
		frac = binary.BigEndian.Uint64(buf[off:])
		if h.TSF == TSFReal && frac >= PicoDivisor {
			return nil, newDecodeError(off, "fractional timestamp %d exceeds one second", frac)
		}
		off += 8
	}
	switch {
	case h.TSF == TSFCount || h.TSF == TSFFree:
		ts := TimestampFromCount(integer, frac)
		p.Timestamp = &ts
	case h.TSI != TSINone || h.TSF != TSFNone:
		ts := TimestampFromParts(integer, frac)
		p.Timestamp = &ts
	}

	end := off + payloadWords*4
	p.Data = append([]byte(nil), buf[off:end]...)
	off = end

	if h.HasTrailer {
		*p.Trailer = DecodeTrailer(binary.BigEndian.Uint32(buf[off:]))
	}

	return p, nil
}

func (p *Packet) String() string {
	ts := "none"
	if p.Timestamp != nil {
		ts = p.Timestamp.String()
	}
	class := "none"
	if p.ClassID != nil {
		class = fmt.Sprintf("oui=0x%06X info=%d packet=%d", p.ClassID.OUI, p.ClassID.InfoClass, p.ClassID.PacketClass)
	}
	trailer := "none"
	if p.Trailer != nil {
		trailer = p.Trailer.String()
	}
	return fmt.Sprintf("Packet(type=%s, count=%d, stream_id=%d, tsi=%s, tsf=%s, tsm=%t, timestamp=%s, class=[%s], payload=%dB, trailer=%s)",
		p.Type, p.Count, p.StreamID, p.TSI, p.TSF, p.TSM, ts, class, len(p.Data), trailer)
}
