package sink

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
)

const TCPName = "tcp"

func init() {
	Register(TCPName, func(opts map[string]any) (Sink, error) {
		var o TCPOptions
		if err := decode(TCPName, opts, &o); err != nil {
			return nil, err
		}
		return NewTCP(o)
	})
}

type TCPOptions struct {
	Address        string        `mapstructure:"address"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// TCP streams packets back to back over one connection. A failed write
// drops the connection; the next write after ReconnectDelay dials again.
// Reconnect dials run without the lock and end when the sink is closed or
// the context given to Open is done.
type TCP struct {
	opts   TCPOptions
	logger log.Logger
	dial   func(ctx context.Context, network, address string) (net.Conn, error)

	mu         sync.Mutex
	conn       net.Conn
	life       context.Context
	stop       context.CancelFunc
	lastDial   time.Time
	closed     bool
	reconnects int
}

func NewTCP(opts TCPOptions) (*TCP, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("%w: tcp address is required", core.ErrConfigInvalid)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = time.Second
	}
	d := &net.Dialer{Timeout: opts.DialTimeout}
	t := &TCP{opts: opts, dial: d.DialContext}
	t.logger = log.GetLogger().WithField("output", t.String())
	return t, nil
}

func (t *TCP) String() string {
	return fmt.Sprintf("VRT TCP [%s]", t.opts.Address)
}

// Open dials the receiver. The receiver must be up when the bridge starts;
// later outages are handled by reconnecting.
func (t *TCP) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		t.stop()
	}
	t.life, t.stop = context.WithCancel(ctx)
	t.closed = false
	t.lastDial = time.Now()
	conn, err := t.connect(t.life)
	if err != nil {
		return err
	}
	t.conn = conn
	return nil
}

func (t *TCP) connect(ctx context.Context) (net.Conn, error) {
	conn, err := t.dial(ctx, "tcp", t.opts.Address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.opts.Address, err)
	}
	t.logger.Infof("connected to %s", conn.RemoteAddr())
	return conn, nil
}

// reconnect dials outside the lock. It is entered and left with t.mu held.
func (t *TCP) reconnect() error {
	t.reconnects++
	t.lastDial = time.Now()
	life := t.life
	t.mu.Unlock()
	conn, err := t.connect(life)
	t.mu.Lock()
	if err != nil {
		return err
	}
	if t.closed {
		_ = conn.Close()
		return fmt.Errorf("%s: %w", t, core.ErrSinkClosed)
	}
	t.conn = conn
	return nil
}

func (t *TCP) Write(frame core.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.life == nil {
		return fmt.Errorf("%s: %w", t, core.ErrSinkClosed)
	}
	if t.conn == nil {
		if time.Since(t.lastDial) < t.opts.ReconnectDelay {
			return fmt.Errorf("%s: not connected", t)
		}
		if err := t.reconnect(); err != nil {
			return err
		}
	}

	if t.opts.WriteTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	}
	if _, err := t.conn.Write(frame.Bytes); err != nil {
		t.logger.WithError(err).Warn("write failed, dropping connection")
		_ = t.conn.Close()
		t.conn = nil
		return err
	}
	return nil
}

// Reconnects returns how many times the sink re-dialled after a failure.
func (t *TCP) Reconnects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnects
}

func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	if t.stop != nil {
		t.stop()
	}
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
