package sink

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"firestige.xyz/vrtbridge/internal/core"
)

const PcapName = "pcap"

// maxUDPPayload is the largest payload one IPv4 datagram can carry.
const maxUDPPayload = 65535 - 20 - 8

func init() {
	Register(PcapName, func(opts map[string]any) (Sink, error) {
		var o PcapOptions
		if err := decode(PcapName, opts, &o); err != nil {
			return nil, err
		}
		return NewPcap(o)
	})
}

// PcapOptions describes the synthetic UDP flow the packets are framed in.
type PcapOptions struct {
	Path    string `mapstructure:"path"`
	SrcIP   string `mapstructure:"src_ip"`
	DstIP   string `mapstructure:"dst_ip"`
	SrcPort uint16 `mapstructure:"src_port"`
	DstPort uint16 `mapstructure:"dst_port"`
}

// Pcap records packets as Ethernet/IPv4/UDP frames so capture tools can
// dissect them as VITA-49.
type Pcap struct {
	opts   PcapOptions
	src    net.IP
	dst    net.IP
	fh     *os.File
	buf    *bufio.Writer
	w      *pcapgo.Writer
	nextID uint16
	now    func() time.Time
}

func NewPcap(opts PcapOptions) (*Pcap, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: pcap path is required", core.ErrConfigInvalid)
	}
	if opts.SrcIP == "" {
		opts.SrcIP = "127.0.0.1"
	}
	if opts.DstIP == "" {
		opts.DstIP = "127.0.0.1"
	}
	if opts.SrcPort == 0 {
		opts.SrcPort = 4991
	}
	if opts.DstPort == 0 {
		opts.DstPort = 4991
	}
	src := net.ParseIP(opts.SrcIP).To4()
	dst := net.ParseIP(opts.DstIP).To4()
	if src == nil || dst == nil {
		return nil, fmt.Errorf("%w: pcap addresses must be IPv4", core.ErrConfigInvalid)
	}
	return &Pcap{opts: opts, src: src, dst: dst, now: time.Now}, nil
}

func (p *Pcap) String() string {
	return fmt.Sprintf("VRT Pcap [%s]", p.opts.Path)
}

func (p *Pcap) Open(_ context.Context) error {
	fh, err := os.Create(p.opts.Path)
	if err != nil {
		return fmt.Errorf("create %s: %w", p.opts.Path, err)
	}
	buf := bufio.NewWriterSize(fh, 64*1024)
	w := pcapgo.NewWriter(buf)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		_ = fh.Close()
		return fmt.Errorf("write pcap header: %w", err)
	}
	p.fh, p.buf, p.w = fh, buf, w
	return nil
}

func (p *Pcap) Write(frame core.Frame) error {
	if p.w == nil {
		return fmt.Errorf("%s: %w", p, core.ErrSinkClosed)
	}
	if len(frame.Bytes) > maxUDPPayload {
		return fmt.Errorf("%s: %d byte packet does not fit a datagram", p, len(frame.Bytes))
	}
	data, err := p.frame(frame.Bytes)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     p.now(),
		CaptureLength: len(data),
		Length:        len(data),
	}
	return p.w.WritePacket(ci, data)
}

func (p *Pcap) frame(payload []byte) ([]byte, error) {
	p.nextID++
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Id:       p.nextID,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    p.src,
		DstIP:    p.dst,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(p.opts.SrcPort),
		DstPort: layers.UDPPort(p.opts.DstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("set network layer for checksum: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize frame: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *Pcap) Close() error {
	if p.fh == nil {
		return nil
	}
	flushErr := p.buf.Flush()
	closeErr := p.fh.Close()
	p.fh, p.buf, p.w = nil, nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
