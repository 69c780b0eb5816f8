package vrt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Reader splits a byte stream of back-to-back packets (a raw capture file or
// a TCP stream) into individual packets.
type Reader struct {
	r   io.Reader
	off int64
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the raw bytes of the next packet. It returns io.EOF at a clean
// packet boundary and io.ErrUnexpectedEOF if the stream ends mid-packet.
func (pr *Reader) Next() ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(pr.r, hdr[:]); err != nil {
		return nil, err
	}
	size := int(DecodeHeader(binary.BigEndian.Uint32(hdr[:])).Size)
	if size == 0 {
		return nil, &DecodeError{Offset: int(pr.off), Reason: "header announces zero-length packet"}
	}
	buf := make([]byte, size*4)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(pr.r, buf[4:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("packet at offset %d: %w", pr.off, err)
	}
	pr.off += int64(len(buf))
	return buf, nil
}

// Offset returns the stream offset of the next packet.
func (pr *Reader) Offset() int64 {
	return pr.off
}
