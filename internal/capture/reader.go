package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const udpHeaderLen = 8

// Datagram is one reassembled UDP payload.
type Datagram struct {
	Timestamp time.Time
	Src       netip.AddrPort
	Dst       netip.AddrPort
	Payload   []byte
}

// Stats counts what the reader skipped.
type Stats struct {
	Frames     int // link-layer frames read
	NonUDP     int // frames without an IPv4 UDP datagram
	Fragments  int // fragments absorbed into a later datagram
	Malformed  int // frames the reassembler rejected
	Incomplete int // datagrams still missing fragments at end of capture
}

// Reader yields the UDP datagrams of a pcap capture.
type Reader struct {
	pcap        *pcapgo.Reader
	reassembler *Reassembler
	stats       Stats
}

// NewReader reads the pcap file header from r.
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("read pcap header: %w", err)
	}
	return &Reader{
		pcap:        pr,
		reassembler: NewReassembler(ReassemblyConfig{}),
	}, nil
}

// Next returns the next complete datagram, or io.EOF at the end of the
// capture.
func (r *Reader) Next() (Datagram, error) {
	for {
		data, ci, err := r.pcap.ReadPacketData()
		if errors.Is(err, io.EOF) {
			r.stats.Incomplete = r.reassembler.Pending()
			return Datagram{}, io.EOF
		}
		if err != nil {
			return Datagram{}, err
		}
		r.stats.Frames++

		pkt := gopacket.NewPacket(data, r.pcap.LinkType(), gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		if !ok || ip.Protocol != layers.IPProtocolUDP {
			r.stats.NonUDP++
			continue
		}

		raw := make([]byte, 0, len(ip.Contents)+len(ip.Payload))
		raw = append(append(raw, ip.Contents...), ip.Payload...)
		payload, complete, err := r.reassembler.Process(raw, ci.Timestamp)
		if err != nil {
			r.stats.Malformed++
			continue
		}
		if !complete {
			r.stats.Fragments++
			continue
		}
		if len(payload) < udpHeaderLen {
			r.stats.Malformed++
			continue
		}

		src, _ := netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ := netip.AddrFromSlice(ip.DstIP.To4())
		return Datagram{
			Timestamp: ci.Timestamp,
			Src:       netip.AddrPortFrom(src, binary.BigEndian.Uint16(payload[0:2])),
			Dst:       netip.AddrPortFrom(dst, binary.BigEndian.Uint16(payload[2:4])),
			Payload:   payload[udpHeaderLen:],
		}, nil
	}
}

// Stats returns the counters so far.
func (r *Reader) Stats() Stats {
	return r.stats
}
