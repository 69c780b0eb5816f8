package sink

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
)

const UDPName = "udp"

func init() {
	Register(UDPName, func(opts map[string]any) (Sink, error) {
		var o UDPOptions
		if err := decode(UDPName, opts, &o); err != nil {
			return nil, err
		}
		return NewUDP(o)
	})
}

// UDPOptions configures datagram output. Multicast settings apply only when
// the destination is a multicast group.
type UDPOptions struct {
	Address            string `mapstructure:"address"`
	TTL                int    `mapstructure:"ttl"`
	MulticastInterface string `mapstructure:"multicast_interface"`
	MulticastLoopback  bool   `mapstructure:"multicast_loopback"`
}

// UDP sends one packet per datagram.
type UDP struct {
	opts UDPOptions

	mu   sync.Mutex
	conn *net.UDPConn
}

func NewUDP(opts UDPOptions) (*UDP, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("%w: udp address is required", core.ErrConfigInvalid)
	}
	if opts.TTL < 0 || opts.TTL > 255 {
		return nil, fmt.Errorf("%w: udp ttl %d out of range", core.ErrConfigInvalid, opts.TTL)
	}
	return &UDP{opts: opts}, nil
}

func (u *UDP) String() string {
	return fmt.Sprintf("VRT UDP [%s]", u.opts.Address)
}

func (u *UDP) Open(ctx context.Context) error {
	var d net.Dialer
	c, err := d.DialContext(ctx, "udp4", u.opts.Address)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.opts.Address, err)
	}
	conn := c.(*net.UDPConn)

	if err := u.configure(conn); err != nil {
		_ = conn.Close()
		return err
	}

	u.mu.Lock()
	u.conn = conn
	u.mu.Unlock()
	log.GetLogger().WithField("output", u.String()).Infof("sending from %s", conn.LocalAddr())
	return nil
}

func (u *UDP) configure(conn *net.UDPConn) error {
	raddr := conn.RemoteAddr().(*net.UDPAddr)
	if !raddr.IP.IsMulticast() {
		if u.opts.TTL > 0 {
			if err := ipv4.NewConn(conn).SetTTL(u.opts.TTL); err != nil {
				return fmt.Errorf("set ttl: %w", err)
			}
		}
		return nil
	}

	pc := ipv4.NewPacketConn(conn)
	if u.opts.TTL > 0 {
		if err := pc.SetMulticastTTL(u.opts.TTL); err != nil {
			return fmt.Errorf("set multicast ttl: %w", err)
		}
	}
	if u.opts.MulticastInterface != "" {
		iface, err := net.InterfaceByName(u.opts.MulticastInterface)
		if err != nil {
			return fmt.Errorf("multicast interface %s: %w", u.opts.MulticastInterface, err)
		}
		if err := pc.SetMulticastInterface(iface); err != nil {
			return fmt.Errorf("set multicast interface: %w", err)
		}
	}
	if err := pc.SetMulticastLoopback(u.opts.MulticastLoopback); err != nil {
		return fmt.Errorf("set multicast loopback: %w", err)
	}
	return nil
}

func (u *UDP) Write(frame core.Frame) error {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%s: %w", u, core.ErrSinkClosed)
	}
	_, err := conn.Write(frame.Bytes)
	return err
}

func (u *UDP) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}
