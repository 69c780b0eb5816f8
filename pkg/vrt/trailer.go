package vrt

import "fmt"

const (
	fieldEnables      = "enables"
	fieldIndicators   = "indicators"
	fieldContextEn    = "context_en"
	fieldContextCount = "context_count"
)

// TrailerLayout is the bit layout of the optional trailer word.
var TrailerLayout = MustLayout(
	Field{fieldEnables, 12},
	Field{fieldIndicators, 12},
	Field{fieldContextEn, 1},
	Field{fieldContextCount, 7},
)

// Trailer carries status flags and the associated context packet count.
// An indicator bit is only meaningful when the same bit is set in Enables.
// ContextCount is nil when the context-enable bit is clear.
type Trailer struct {
	ContextCount *uint8
	Enables      TrailerEvents
	Indicators   TrailerEvents
}

// Encode packs the trailer into its wire word.
func (t Trailer) Encode() (uint32, error) {
	values := map[string]uint32{
		fieldEnables:    uint32(t.Enables),
		fieldIndicators: uint32(t.Indicators),
	}
	if t.ContextCount != nil {
		values[fieldContextEn] = 1
		values[fieldContextCount] = uint32(*t.ContextCount)
	}
	return TrailerLayout.Encode(values)
}

// DecodeTrailer unpacks a trailer word.
func DecodeTrailer(word uint32) Trailer {
	v := TrailerLayout.Decode(word)
	t := Trailer{
		Enables:    TrailerEvents(v[fieldEnables]),
		Indicators: TrailerEvents(v[fieldIndicators]),
	}
	if v[fieldContextEn] == 1 {
		count := uint8(v[fieldContextCount])
		t.ContextCount = &count
	}
	return t
}

// Active returns the indicator flags whose enable bit is set.
func (t Trailer) Active() TrailerEvents {
	return t.Indicators & t.Enables
}

func (t Trailer) String() string {
	count := "none"
	if t.ContextCount != nil {
		count = fmt.Sprint(*t.ContextCount)
	}
	return fmt.Sprintf("Trailer(context_count=%s, enables=%s, indicators=%s)", count, t.Enables, t.Indicators)
}
