package vrt

import (
	"errors"
	"fmt"
)

var (
	// Layout errors
	ErrLayoutWidth    = errors.New("vrt: bit field widths must sum to 32")
	ErrFieldOverflow  = errors.New("vrt: value does not fit in bit field")
	ErrUnknownField   = errors.New("vrt: unknown bit field")
	ErrDuplicateField = errors.New("vrt: duplicate bit field name")

	// Encoding preconditions
	ErrMissingTimestamp = errors.New("vrt: timestamp field requested but no timestamp set")
	ErrInvalidClassID   = errors.New("vrt: invalid class identifier")
	ErrCountRange       = errors.New("vrt: packet count out of range 0-15")
	ErrPayloadAlignment = errors.New("vrt: payload is not a whole number of 32-bit words")
	ErrPacketTooLarge   = errors.New("vrt: packet exceeds 65535 words")
	ErrNegativeTime     = errors.New("vrt: timestamp before the epoch")
	ErrTimestampRange   = errors.New("vrt: timestamp word out of range")

	// Decoding
	ErrMalformedPacket = errors.New("vrt: malformed packet")
)

// DecodeError describes why a byte sequence could not be decoded as a packet.
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("vrt: malformed packet at offset %d: %s", e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return ErrMalformedPacket
}

func newDecodeError(offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}
