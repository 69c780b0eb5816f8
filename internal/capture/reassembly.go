// Package capture extracts UDP datagrams from pcap captures, reassembling
// IPv4 fragments on the way. VRT data packets are usually larger than the
// link MTU, so a capture taken on the wire holds them as fragments.
package capture

import (
	"encoding/binary"
	"fmt"
	"sort"
	"time"
)

const (
	ipv4MinHeader     = 20
	ipv4MaxSize       = 65535
	ipv4MaxFragOffset = 8183 // 8-byte units
)

// ReassemblyConfig bounds the memory held for incomplete datagrams.
type ReassemblyConfig struct {
	MaxFragments int           // per datagram, default 100
	Timeout      time.Duration // capture time without a new fragment, default 30s
}

// fragmentKey identifies one fragmented IPv4 datagram.
type fragmentKey struct {
	srcIP    [4]byte
	dstIP    [4]byte
	protocol uint8
	id       uint16
}

type fragment struct {
	offset  int
	payload []byte
}

func (f fragment) end() int { return f.offset + len(f.payload) }

// fragmentList keeps fragments sorted by offset without overlap. On overlap
// the bytes that arrived first win.
type fragmentList struct {
	frags    []fragment
	covered  int
	total    int // datagram payload length, known once the last fragment arrives
	lastSeen time.Time
}

// Reassembler rebuilds fragmented IPv4 datagrams. Expiry runs on capture
// timestamps, so replaying an old capture behaves like the live traffic
// did. A Reassembler is not safe for concurrent use.
type Reassembler struct {
	flows  map[fragmentKey]*fragmentList
	config ReassemblyConfig

	expired int
}

// NewReassembler creates a new IP fragment reassembler.
func NewReassembler(cfg ReassemblyConfig) *Reassembler {
	if cfg.MaxFragments <= 0 {
		cfg.MaxFragments = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Reassembler{
		flows:  make(map[fragmentKey]*fragmentList),
		config: cfg,
	}
}

// Process takes one IPv4 packet, header included. It returns the IP payload
// and true for an unfragmented packet or a completed datagram, and nil and
// false while fragments are still missing.
func (r *Reassembler) Process(ipData []byte, ts time.Time) ([]byte, bool, error) {
	if len(ipData) < ipv4MinHeader {
		return nil, false, fmt.Errorf("IP packet too short: %d bytes", len(ipData))
	}
	if v := ipData[0] >> 4; v != 4 {
		return nil, false, fmt.Errorf("not an IPv4 packet: version %d", v)
	}
	ihl := int(ipData[0]&0x0F) * 4
	if ihl < ipv4MinHeader || len(ipData) < ihl {
		return nil, false, fmt.Errorf("invalid IHL: %d", ihl)
	}
	totalLen := int(binary.BigEndian.Uint16(ipData[2:4]))
	if totalLen < ihl || totalLen > len(ipData) {
		totalLen = len(ipData)
	}

	flagsOffset := binary.BigEndian.Uint16(ipData[6:8])
	moreFragments := flagsOffset&0x2000 != 0
	fragOffset := int(flagsOffset & 0x1FFF)

	r.expire(ts)

	if !moreFragments && fragOffset == 0 {
		return ipData[ihl:totalLen], true, nil
	}

	payloadLen := totalLen - ihl
	if payloadLen < 1 {
		return nil, false, fmt.Errorf("empty fragment")
	}
	if fragOffset > ipv4MaxFragOffset || fragOffset*8+payloadLen > ipv4MaxSize-ihl {
		return nil, false, fmt.Errorf("fragment at offset %d would exceed the IPv4 maximum size", fragOffset*8)
	}
	if moreFragments && payloadLen%8 != 0 {
		return nil, false, fmt.Errorf("non-final fragment of %d bytes is not a multiple of 8", payloadLen)
	}

	key := fragmentKey{protocol: ipData[9], id: binary.BigEndian.Uint16(ipData[4:6])}
	copy(key.srcIP[:], ipData[12:16])
	copy(key.dstIP[:], ipData[16:20])

	fl, ok := r.flows[key]
	if !ok {
		fl = &fragmentList{}
		r.flows[key] = fl
	}
	fl.lastSeen = ts

	if len(fl.frags) >= r.config.MaxFragments {
		delete(r.flows, key)
		return nil, false, fmt.Errorf("fragment count exceeded limit %d", r.config.MaxFragments)
	}

	start := fragOffset * 8
	if !moreFragments {
		end := start + payloadLen
		if fl.total != 0 && fl.total != end {
			delete(r.flows, key)
			return nil, false, fmt.Errorf("conflicting final fragments: %d and %d bytes", fl.total, end)
		}
		fl.total = end
	}
	// The input buffer belongs to the pcap reader.
	fl.insert(start, append([]byte(nil), ipData[ihl:totalLen]...))

	if fl.total == 0 || fl.covered < fl.total {
		return nil, false, nil
	}
	delete(r.flows, key)
	return fl.build(), true, nil
}

// insert adds the parts of payload not already covered.
func (fl *fragmentList) insert(offset int, payload []byte) {
	end := offset + len(payload)
	pos := offset
	var added []fragment
	for _, f := range fl.frags {
		if f.end() <= pos {
			continue
		}
		if f.offset >= end {
			break
		}
		if f.offset > pos {
			added = append(added, fragment{offset: pos, payload: payload[pos-offset : f.offset-offset]})
		}
		pos = max(pos, f.end())
	}
	if pos < end {
		added = append(added, fragment{offset: pos, payload: payload[pos-offset:]})
	}
	for _, f := range added {
		fl.covered += len(f.payload)
	}
	fl.frags = append(fl.frags, added...)
	sort.Slice(fl.frags, func(i, j int) bool { return fl.frags[i].offset < fl.frags[j].offset })
}

func (fl *fragmentList) build() []byte {
	out := make([]byte, fl.total)
	for _, f := range fl.frags {
		if f.offset < fl.total {
			copy(out[f.offset:], f.payload)
		}
	}
	return out
}

func (r *Reassembler) expire(now time.Time) {
	for key, fl := range r.flows {
		if now.Sub(fl.lastSeen) > r.config.Timeout {
			delete(r.flows, key)
			r.expired++
		}
	}
}

// Pending returns the number of incomplete datagrams held.
func (r *Reassembler) Pending() int {
	return len(r.flows)
}

// Expired returns how many incomplete datagrams timed out.
func (r *Reassembler) Expired() int {
	return r.expired
}
