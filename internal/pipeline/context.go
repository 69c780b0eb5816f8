package pipeline

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"firestige.xyz/vrtbridge/pkg/vrt"
)

// contextTemplate is the measurement-info payload receivers expect. Only
// bandwidth, frequency and sample rate vary; they sit at nibble offsets and
// are substituted as 8-digit hex. Every other digit is fixed.
const contextTemplate = "39A18000000" + "%08X" +
	"000000000000000000000000" + "%08X" +
	"000000000E30000001F80000" + "%08X" +
	"00000A0000000A00002CB00000000"

// Nibble offsets of the substituted fields within the payload hex string.
const (
	ctxBandwidthNibble  = 11
	ctxFrequencyNibble  = 43
	ctxSampleRateNibble = 75
)

// contextPrefix replaces the first 12 encoded bytes of a context packet:
// header (IF context, class id, TSM, TSI other, TSF real, count 1, 21
// words), a zero stream id and the class id (OUI 0x7C386C, classes 0).
var contextPrefix = []byte{
	0x49, 0xE1, 0x00, 0x15,
	0x00, 0x00, 0x00, 0x00,
	0x00, 0x7C, 0x38, 0x6C,
	0x00, 0x00, 0x00, 0x00,
}

const (
	contextPrefixSkip = 12 // encoded bytes replaced by contextPrefix
	contextWireSize   = 84 // 21 words
)

// ContextInfo is the signal description carried by a context packet.
type ContextInfo struct {
	Bandwidth  uint32
	Frequency  uint32
	SampleRate uint32
	Timestamp  vrt.Timestamp
}

// ContextPayload renders the context payload for the given signal.
func ContextPayload(bandwidth, frequency, sampleRate uint32) []byte {
	payload, err := hex.DecodeString(fmt.Sprintf(contextTemplate, bandwidth, frequency, sampleRate))
	if err != nil {
		// The template is constant and always even-length hex.
		panic(err)
	}
	return payload
}

// NewContextPacket builds the wire bytes of a context packet stamped at now.
func NewContextPacket(bandwidth, frequency, sampleRate uint32, now time.Time) ([]byte, error) {
	ts := vrt.TimestampFromTime(now)
	class, err := vrt.NewClassID(DataOUI, 0, 0)
	if err != nil {
		return nil, err
	}
	p := &vrt.Packet{
		Type:      vrt.IFContext,
		TSI:       vrt.TSIOther,
		TSF:       vrt.TSFReal,
		TSM:       true,
		Count:     1,
		Timestamp: &ts,
		ClassID:   class,
		Data:      ContextPayload(bandwidth, frequency, sampleRate),
	}
	encoded, err := p.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode context packet: %w", err)
	}

	out := make([]byte, 0, len(contextPrefix)+len(encoded)-contextPrefixSkip)
	out = append(out, contextPrefix...)
	return append(out, encoded[contextPrefixSkip:]...), nil
}

// ParseContextPacket reads back the fields written by NewContextPacket.
func ParseContextPacket(buf []byte) (ContextInfo, error) {
	if len(buf) != contextWireSize {
		return ContextInfo{}, fmt.Errorf("%w: context packet is %d bytes, want %d", vrt.ErrMalformedPacket, len(buf), contextWireSize)
	}
	h := vrt.DecodeHeader(binary.BigEndian.Uint32(buf))
	if !h.PacketType.IsContext() {
		return ContextInfo{}, fmt.Errorf("%w: packet type %s is not a context type", vrt.ErrMalformedPacket, h.PacketType)
	}

	info := ContextInfo{
		Timestamp: vrt.TimestampFromParts(binary.BigEndian.Uint32(buf[16:]), binary.BigEndian.Uint64(buf[20:])),
	}
	digits := hex.EncodeToString(buf[28:])
	for _, f := range []struct {
		dst    *uint32
		nibble int
	}{
		{&info.Bandwidth, ctxBandwidthNibble},
		{&info.Frequency, ctxFrequencyNibble},
		{&info.SampleRate, ctxSampleRateNibble},
	} {
		v, err := strconv.ParseUint(digits[f.nibble:f.nibble+8], 16, 32)
		if err != nil {
			return ContextInfo{}, fmt.Errorf("%w: %v", vrt.ErrMalformedPacket, err)
		}
		*f.dst = uint32(v)
	}
	return info, nil
}
