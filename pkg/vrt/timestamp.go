package vrt

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	picoDivisor = decimal.NewFromInt(PicoDivisor)
	maxInteger  = decimal.NewFromInt(math.MaxUint32)
)

// Timestamp is a non-negative decimal number of seconds since the Unix epoch.
// The integer word carries floor(seconds); the fractional word carries the
// remainder as truncated picoseconds.
//
// Sample-count and free-running fractional words are not picoseconds. Such
// timestamps keep the raw word next to the integer seconds.
type Timestamp struct {
	seconds decimal.Decimal
	raw     uint64
	hasRaw  bool
}

// NewTimestamp wraps a decimal number of seconds.
func NewTimestamp(seconds decimal.Decimal) (Timestamp, error) {
	if seconds.Sign() < 0 {
		return Timestamp{}, ErrNegativeTime
	}
	return Timestamp{seconds: seconds}, nil
}

// TimestampFromTime converts a wall-clock time with nanosecond precision.
func TimestampFromTime(t time.Time) Timestamp {
	secs := decimal.NewFromInt(t.Unix()).Add(decimal.New(int64(t.Nanosecond()), -9))
	return Timestamp{seconds: secs}
}

// TimestampFromParts rebuilds a timestamp from its wire words.
func TimestampFromParts(integer uint32, picoseconds uint64) Timestamp {
	frac := decimal.New(int64(picoseconds), -12)
	return Timestamp{seconds: decimal.NewFromInt(int64(integer)).Add(frac)}
}

// TimestampFromCount rebuilds a timestamp whose fractional word is a sample
// count or a free-running counter.
func TimestampFromCount(integer uint32, fractional uint64) Timestamp {
	return Timestamp{seconds: decimal.NewFromInt(int64(integer)), raw: fractional, hasRaw: true}
}

// Counter returns the raw fractional word of a count or free-running
// timestamp. ok is false for timestamps measured in seconds.
func (ts Timestamp) Counter() (value uint64, ok bool) {
	return ts.raw, ts.hasRaw
}

// Fractional returns the fractional word as it goes on the wire.
func (ts Timestamp) Fractional() uint64 {
	if ts.hasRaw {
		return ts.raw
	}
	return ts.Picoseconds()
}

// Seconds returns the exact decimal value.
func (ts Timestamp) Seconds() decimal.Decimal {
	return ts.seconds
}

// Add returns ts shifted by the given number of seconds.
func (ts Timestamp) Add(seconds decimal.Decimal) Timestamp {
	return Timestamp{seconds: ts.seconds.Add(seconds), raw: ts.raw, hasRaw: ts.hasRaw}
}

// Integer returns the integer-seconds word.
func (ts Timestamp) Integer() (uint32, error) {
	floor := ts.seconds.Floor()
	if floor.GreaterThan(maxInteger) {
		return 0, ErrTimestampRange
	}
	return uint32(floor.IntPart()), nil
}

// Picoseconds returns the fractional part of the timestamp in picoseconds,
// truncated toward zero. It is zero for count and free-running timestamps.
func (ts Timestamp) Picoseconds() uint64 {
	if ts.hasRaw {
		return 0
	}
	frac := ts.seconds.Sub(ts.seconds.Floor())
	return uint64(frac.Mul(picoDivisor).IntPart())
}

// Time converts back to a wall-clock time, truncated to nanoseconds.
func (ts Timestamp) Time() time.Time {
	floor := ts.seconds.Floor()
	nanos := ts.seconds.Sub(floor).Mul(decimal.New(1, 9)).IntPart()
	return time.Unix(floor.IntPart(), nanos).UTC()
}

// Equal reports whether both timestamps denote the same instant.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.seconds.Equal(other.seconds) && ts.hasRaw == other.hasRaw && ts.raw == other.raw
}

func (ts Timestamp) String() string {
	if ts.hasRaw {
		return fmt.Sprintf("%s+%d", ts.seconds, ts.raw)
	}
	return ts.seconds.String()
}
