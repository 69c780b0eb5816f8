package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/ipv4"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
	"firestige.xyz/vrtbridge/internal/metrics"
	"firestige.xyz/vrtbridge/pkg/iq"
)

// EndpointOptions configures a network input.
type EndpointOptions struct {
	Protocol       string `mapstructure:"protocol"` // udp | tcp
	Address        string `mapstructure:"address"`
	MulticastGroup string `mapstructure:"multicast_group"` // udp only
	Interface      string `mapstructure:"interface"`       // multicast interface, empty for system default
	BitResolution  int    `mapstructure:"bit_resolution"`
	ReadBuffer     int    `mapstructure:"read_buffer"` // socket receive buffer in bytes, 0 keeps the OS default
	MaxDatagram    int    `mapstructure:"max_datagram"`
}

// Endpoint receives raw interleaved I/Q components over UDP or TCP.
type Endpoint struct {
	opts   EndpointOptions
	logger log.Logger
	pairs  interface{ Add(float64) }

	mu       sync.Mutex
	conn     net.PacketConn
	pconn    *ipv4.PacketConn
	listener net.Listener
	group    *net.UDPAddr
	iface    *net.Interface
}

// NewEndpoint validates opts.
func NewEndpoint(opts EndpointOptions) (*Endpoint, error) {
	opts.Protocol = strings.ToLower(opts.Protocol)
	if opts.Protocol == "" {
		opts.Protocol = "udp"
	}
	if opts.Protocol != "udp" && opts.Protocol != "tcp" {
		return nil, fmt.Errorf("%w: endpoint protocol %q", core.ErrConfigInvalid, opts.Protocol)
	}
	if opts.Address == "" {
		return nil, fmt.Errorf("%w: endpoint address is required", core.ErrConfigInvalid)
	}
	if _, err := iq.ContainerSize(opts.BitResolution); err != nil {
		return nil, err
	}
	if opts.MulticastGroup != "" && opts.Protocol != "udp" {
		return nil, fmt.Errorf("%w: multicast requires udp", core.ErrConfigInvalid)
	}
	if opts.MaxDatagram <= 0 {
		opts.MaxDatagram = 65536
	}

	e := &Endpoint{
		opts:  opts,
		pairs: metrics.IQPairsTotal.WithLabelValues(string(KindEndpoint)),
	}
	e.logger = log.GetLogger().WithField("input", e.String())
	return e, nil
}

func (e *Endpoint) Kind() Kind { return KindEndpoint }

func (e *Endpoint) String() string {
	s := fmt.Sprintf("I/Q Endpoint [%s://%s]", e.opts.Protocol, e.opts.Address)
	if e.opts.MulticastGroup != "" {
		s += " group " + e.opts.MulticastGroup
	}
	return s
}

// Open binds the socket and joins the multicast group if one is set.
func (e *Endpoint) Open(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var lc net.ListenConfig
	if e.opts.Protocol == "tcp" {
		ln, err := lc.Listen(ctx, "tcp", e.opts.Address)
		if err != nil {
			return fmt.Errorf("listen %s: %w", e.opts.Address, err)
		}
		e.listener = ln
		e.logger.Infof("listening on %s", ln.Addr())
		return nil
	}

	conn, err := lc.ListenPacket(ctx, "udp4", e.opts.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", e.opts.Address, err)
	}
	e.conn = conn
	if e.opts.ReadBuffer > 0 {
		if uc, ok := conn.(*net.UDPConn); ok {
			if err := uc.SetReadBuffer(e.opts.ReadBuffer); err != nil {
				e.logger.WithError(err).Warn("could not set socket receive buffer")
			}
		}
	}
	e.pconn = ipv4.NewPacketConn(conn)

	if e.opts.MulticastGroup != "" {
		ip := net.ParseIP(e.opts.MulticastGroup)
		if ip == nil || !ip.IsMulticast() {
			return fmt.Errorf("%w: %q is not a multicast address", core.ErrConfigInvalid, e.opts.MulticastGroup)
		}
		if e.opts.Interface != "" {
			iface, err := net.InterfaceByName(e.opts.Interface)
			if err != nil {
				return fmt.Errorf("multicast interface %s: %w", e.opts.Interface, err)
			}
			e.iface = iface
		}
		e.group = &net.UDPAddr{IP: ip}
		if err := e.pconn.JoinGroup(e.iface, e.group); err != nil {
			return fmt.Errorf("join multicast group %s: %w", ip, err)
		}
	}

	e.logger.Infof("listening on %s", conn.LocalAddr())
	return nil
}

// Addr returns the bound local address, or nil before Open.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return e.listener.Addr()
	}
	if e.conn != nil {
		return e.conn.LocalAddr()
	}
	return nil
}

// Run receives until ctx is cancelled. Received bytes are reassembled into
// whole pairs; a full queue drops the chunk.
func (e *Endpoint) Run(ctx context.Context, out ChunkQueue) error {
	e.mu.Lock()
	conn, listener := e.pconn, e.listener
	e.mu.Unlock()
	if conn == nil && listener == nil {
		return fmt.Errorf("%s: not open", e)
	}

	// Unblock reads when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = e.Close() })
	defer stop()

	var err error
	if listener != nil {
		err = e.serveTCP(ctx, listener, out)
	} else {
		err = e.receiveUDP(ctx, conn, out)
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (e *Endpoint) receiveUDP(ctx context.Context, conn *ipv4.PacketConn, out ChunkQueue) error {
	conv, _ := iq.NewConverter(e.opts.BitResolution)
	buf := make([]byte, e.opts.MaxDatagram)
	for {
		n, _, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("udp receive: %w", err)
		}
		e.deliver(conv.Feed(buf[:n]), out)
	}
}

// serveTCP handles one sender at a time; a new connection starts with an
// empty reassembly buffer.
func (e *Endpoint) serveTCP(ctx context.Context, ln net.Listener, out ChunkQueue) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("tcp accept: %w", err)
		}
		e.logger.Infof("sender connected from %s", conn.RemoteAddr())

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		err = e.readStream(conn, out)
		stop()
		_ = conn.Close()

		if err != nil && ctx.Err() == nil {
			e.logger.WithError(err).Warn("sender connection failed")
		} else {
			e.logger.Infof("sender %s disconnected", conn.RemoteAddr())
		}
	}
}

func (e *Endpoint) readStream(r io.Reader, out ChunkQueue) error {
	conv, _ := iq.NewConverter(e.opts.BitResolution)
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			e.deliver(conv.Feed(buf[:n]), out)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if p := conv.Pending(); p > 0 {
					e.logger.Debugf("discarding %d bytes of an incomplete pair", p)
				}
				return nil
			}
			return err
		}
	}
}

func (e *Endpoint) deliver(pairs []iq.Pair, out ChunkQueue) {
	if len(pairs) == 0 {
		return
	}
	e.pairs.Add(float64(len(pairs)))
	out.TryPush(core.Chunk(pairs))
}

// Close leaves the multicast group and closes the socket.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	if e.pconn != nil {
		if e.group != nil {
			_ = e.pconn.LeaveGroup(e.iface, e.group)
			e.group = nil
		}
		err = e.pconn.Close()
		e.pconn, e.conn = nil, nil
	}
	if e.listener != nil {
		err = e.listener.Close()
		e.listener = nil
	}
	return err
}
