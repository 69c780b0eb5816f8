package capture

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ipv4Fragment builds a bare IPv4 header followed by payload.
func ipv4Fragment(id uint16, offset int, more bool, payload []byte) []byte {
	b := make([]byte, 20+len(payload))
	b[0] = 0x45
	binary.BigEndian.PutUint16(b[2:], uint16(len(b)))
	binary.BigEndian.PutUint16(b[4:], id)
	flags := uint16(offset / 8)
	if more {
		flags |= 0x2000
	}
	binary.BigEndian.PutUint16(b[6:], flags)
	b[8] = 64
	b[9] = 17
	copy(b[12:], []byte{10, 0, 0, 1})
	copy(b[16:], []byte{10, 0, 0, 2})
	copy(b[20:], payload)
	return b
}

func sequence(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

var t0 = time.Unix(1700000000, 0)

func TestReassembler_Unfragmented(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	payload, ok, err := r.Process(ipv4Fragment(1, 0, false, []byte{1, 2, 3}), t0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, payload)
	assert.Equal(t, 0, r.Pending())
}

func TestReassembler_OutOfOrder(t *testing.T) {
	data := sequence(40)
	tests := []struct {
		name  string
		order []int
	}{
		{"in order", []int{0, 1, 2}},
		{"reversed", []int{2, 1, 0}},
		{"last first", []int{2, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := [][]byte{
				ipv4Fragment(7, 0, true, data[0:16]),
				ipv4Fragment(7, 16, true, data[16:32]),
				ipv4Fragment(7, 32, false, data[32:40]),
			}
			r := NewReassembler(ReassemblyConfig{})
			var got []byte
			for i, idx := range tt.order {
				payload, ok, err := r.Process(frags[idx], t0)
				require.NoError(t, err)
				if i < len(tt.order)-1 {
					assert.False(t, ok)
					continue
				}
				require.True(t, ok)
				got = payload
			}
			assert.Equal(t, data, got)
			assert.Equal(t, 0, r.Pending())
		})
	}
}

func TestReassembler_OverlapKeepsFirstArrival(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{})
	first := bytes.Repeat([]byte{0xAA}, 16)
	second := bytes.Repeat([]byte{0xBB}, 24)

	_, ok, err := r.Process(ipv4Fragment(9, 8, true, first), t0)
	require.NoError(t, err)
	require.False(t, ok)

	// Spans the whole datagram; only bytes 0-7 and 24-31 are new.
	_, ok, err = r.Process(ipv4Fragment(9, 0, true, append(second, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB, 0xBB)), t0)
	require.NoError(t, err)
	require.False(t, ok)

	payload, ok, err := r.Process(ipv4Fragment(9, 32, false, []byte{0xCC}), t0)
	require.NoError(t, err)
	require.True(t, ok)

	want := append(append(append(bytes.Repeat([]byte{0xBB}, 8), first...), bytes.Repeat([]byte{0xBB}, 8)...), 0xCC)
	assert.Equal(t, want, payload)
}

func TestReassembler_Expiry(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{Timeout: time.Second})
	_, _, err := r.Process(ipv4Fragment(3, 0, true, sequence(8)), t0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pending())

	_, ok, err := r.Process(ipv4Fragment(3, 8, false, sequence(8)), t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "first half expired, datagram cannot complete")
	assert.Equal(t, 1, r.Expired())
}

func TestReassembler_Rejects(t *testing.T) {
	tests := []struct {
		name string
		pkt  []byte
	}{
		{"short", make([]byte, 10)},
		{"ipv6", append([]byte{0x60}, make([]byte, 39)...)},
		{"unaligned middle", ipv4Fragment(1, 0, true, sequence(10))},
		{"beyond max size", ipv4Fragment(1, 65528, false, sequence(16))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewReassembler(ReassemblyConfig{}).Process(tt.pkt, t0)
			assert.Error(t, err)
		})
	}
}

func TestReassembler_FragmentLimit(t *testing.T) {
	r := NewReassembler(ReassemblyConfig{MaxFragments: 2})
	for i := 0; i < 2; i++ {
		_, _, err := r.Process(ipv4Fragment(5, i*8, true, sequence(8)), t0)
		require.NoError(t, err)
	}
	_, _, err := r.Process(ipv4Fragment(5, 16, true, sequence(8)), t0)
	assert.Error(t, err)
	assert.Equal(t, 0, r.Pending())
}
