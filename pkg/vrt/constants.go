// Package vrt implements the subset of the VITA-49 (VRT) packet format used by
// the bridge: header and trailer words, class identifiers, integer and
// fractional timestamps, and opaque payloads.
package vrt

import (
	"fmt"
	"strings"
)

// PicoDivisor is the number of picoseconds in one second.
const PicoDivisor = 1_000_000_000_000

// PacketType is the 4-bit packet type carried in the header.
type PacketType uint8

const (
	IFDataNoID    PacketType = 0
	IFDataWithID  PacketType = 1
	ExtDataNoID   PacketType = 2
	ExtDataWithID PacketType = 3
	IFContext     PacketType = 4
	ExtContext    PacketType = 5
)

func (t PacketType) String() string {
	switch t {
	case IFDataNoID:
		return "IF_DATA_NO_ID"
	case IFDataWithID:
		return "IF_DATA_WITH_ID"
	case ExtDataNoID:
		return "EXT_DATA_NO_ID"
	case ExtDataWithID:
		return "EXT_DATA_WITH_ID"
	case IFContext:
		return "IF_CONTEXT"
	case ExtContext:
		return "EXT_CONTEXT"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// IsContext reports whether the type carries context rather than signal data.
func (t PacketType) IsContext() bool {
	return t == IFContext || t == ExtContext
}

// TSI describes the meaning of the integer timestamp word.
type TSI uint8

const (
	TSINone  TSI = 0
	TSIUTC   TSI = 1
	TSIGPS   TSI = 2
	TSIOther TSI = 3
)

func (t TSI) String() string {
	switch t {
	case TSINone:
		return "NONE"
	case TSIUTC:
		return "UTC"
	case TSIGPS:
		return "GPS"
	case TSIOther:
		return "OTHER"
	default:
		return fmt.Sprintf("TSI(%d)", uint8(t))
	}
}

// TSF describes the meaning of the fractional timestamp words.
type TSF uint8

const (
	TSFNone  TSF = 0
	TSFCount TSF = 1
	TSFReal  TSF = 2
	TSFFree  TSF = 3
)

func (t TSF) String() string {
	switch t {
	case TSFNone:
		return "NONE"
	case TSFCount:
		return "COUNT"
	case TSFReal:
		return "REAL"
	case TSFFree:
		return "FREE"
	default:
		return fmt.Sprintf("TSF(%d)", uint8(t))
	}
}

// InfoClass is the information class code of a class identifier.
type InfoClass uint16

const (
	InfoSingleSpanInt32     InfoClass = 1
	InfoMultiSpanInt32      InfoClass = 2
	InfoSingleSpanFreqInt32 InfoClass = 3
	InfoMultiSpanFreqInt32  InfoClass = 4
	InfoSingleOctaveInt32   InfoClass = 5
	InfoThirdOctaveInt32    InfoClass = 6
	InfoTimestampInt32      InfoClass = 7
	InfoSystemContext       InfoClass = 8
	InfoSingleSpanFloat32   InfoClass = 9
)

// PacketClass is the packet class code of a class identifier.
type PacketClass uint16

const (
	ClassMeasInt32         PacketClass = 1
	ClassMeasInfo          PacketClass = 2
	ClassExMeasInfo        PacketClass = 3
	ClassFreqInt32         PacketClass = 4
	ClassRealFreqInt32     PacketClass = 5
	ClassFreqInfo          PacketClass = 6
	ClassSingleOctaveInt32 PacketClass = 7
	ClassThirdOctaveInt32  PacketClass = 8
	ClassOctaveInfo        PacketClass = 9
	ClassTimestampInt32    PacketClass = 10
	ClassTachInfo          PacketClass = 11
	ClassMFuncInfo         PacketClass = 12
	ClassMeasFloat32       PacketClass = 13
)

// TrailerEvents is the 12-bit flag set used by trailer enables and indicators.
type TrailerEvents uint16

const (
	EventUser1             TrailerEvents = 1 << 0
	EventUser2             TrailerEvents = 1 << 1
	EventUser3             TrailerEvents = 1 << 2
	EventUser4             TrailerEvents = 1 << 3
	EventSampleLoss        TrailerEvents = 1 << 4
	EventOverRange         TrailerEvents = 1 << 5
	EventSpectralInversion TrailerEvents = 1 << 6
	EventDetectedSignal    TrailerEvents = 1 << 7
	EventAGCMGC            TrailerEvents = 1 << 8
	EventReferenceLock     TrailerEvents = 1 << 9
	EventValidData         TrailerEvents = 1 << 10
	EventCalibratedTime    TrailerEvents = 1 << 11
)

var trailerEventNames = []string{
	"USER1", "USER2", "USER3", "USER4",
	"SAMPLE_LOSS", "OVER_RANGE", "SPECTRAL_INVERSION", "DETECTED_SIGNAL",
	"AGC_MGC", "REFERENCE_LOCK", "VALID_DATA", "CALIBRATED_TIME",
}

func (e TrailerEvents) String() string {
	if e == 0 {
		return "0"
	}
	var names []string
	for i, name := range trailerEventNames {
		if e&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if rest := e &^ 0x0FFF; rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint16(rest)))
	}
	return strings.Join(names, "|")
}

// MeasInfoContextIndicator flags of the measurement info context packet.
type MeasInfoContextIndicator uint32

const (
	CtxFieldChanged   MeasInfoContextIndicator = 0x80000000
	CtxBandwidth      MeasInfoContextIndicator = 0x20000000
	CtxReferenceLevel MeasInfoContextIndicator = 0x01000000
	CtxOverRangeCount MeasInfoContextIndicator = 0x00400000
	CtxSampleRate     MeasInfoContextIndicator = 0x00200000
	CtxTemperature    MeasInfoContextIndicator = 0x00040000
	CtxEvents         MeasInfoContextIndicator = 0x00010000
)

// LogicalEvents are the event enable/indicator flags of a measurement info
// context packet.
type LogicalEvents uint32

const (
	LogicalSampleLoss  LogicalEvents = 1 << 4
	LogicalOverRange   LogicalEvents = 1 << 5
	LogicalSpectralInv LogicalEvents = 1 << 6
	LogicalDetectedSig LogicalEvents = 1 << 7
	LogicalAGCMGC      LogicalEvents = 1 << 8
	LogicalRefLock     LogicalEvents = 1 << 9
	LogicalValidData   LogicalEvents = 1 << 10
	LogicalCalibTime   LogicalEvents = 1 << 11
)
