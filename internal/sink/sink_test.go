package sink

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/vrtbridge/internal/config"
	"firestige.xyz/vrtbridge/internal/core"
)

func frame(b ...byte) core.Frame {
	return core.Frame{Kind: core.FrameData, Bytes: b}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"file", "kafka", "pcap", "tcp", "udp"}, Names())

	dir := t.TempDir()
	tests := []struct {
		typ  string
		opts map[string]any
	}{
		{"udp", map[string]any{"address": "127.0.0.1:4991", "ttl": 4}},
		{"tcp", map[string]any{"address": "127.0.0.1:4991", "dial_timeout": "2s"}},
		{"file", map[string]any{"path": filepath.Join(dir, "out.vrt")}},
		{"pcap", map[string]any{"path": filepath.Join(dir, "out.pcap"), "dst_port": 5000}},
		{"kafka", map[string]any{"brokers": []any{"127.0.0.1:9092"}, "topic": "vrt", "compression": "lz4"}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			s, err := New(config.VRTOutputConfig{Type: tt.typ, Options: tt.opts})
			require.NoError(t, err)
			assert.NotEmpty(t, s.String())
		})
	}
}

func TestRegistry_Errors(t *testing.T) {
	_, err := New(config.VRTOutputConfig{Type: "amqp"})
	assert.ErrorIs(t, err, core.ErrUnsupportedOutput)

	_, err = New(config.VRTOutputConfig{Type: "udp", Options: map[string]any{"address": "x:1", "mtu": 1500}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(config.VRTOutputConfig{Type: "udp", Options: map[string]any{"address": "x:1", "ttl": 300}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(config.VRTOutputConfig{Type: "pcap", Options: map[string]any{"path": "x.pcap", "dst_ip": "::1"}})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)

	_, err = New(config.VRTOutputConfig{Type: "tcp"})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestUDP_SendsOneDatagramPerFrame(t *testing.T) {
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer pc.Close()

	u, err := NewUDP(UDPOptions{Address: pc.LocalAddr().String(), TTL: 8})
	require.NoError(t, err)
	require.NoError(t, u.Open(context.Background()))
	defer u.Close()

	require.NoError(t, u.Write(frame(1, 2, 3, 4)))
	require.NoError(t, u.Write(frame(5, 6, 7, 8, 9, 10, 11, 12)))

	buf := make([]byte, 64)
	require.NoError(t, pc.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])
	n, _, err = pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8, 9, 10, 11, 12}, buf[:n])
}

func TestUDP_WriteAfterClose(t *testing.T) {
	u, err := NewUDP(UDPOptions{Address: "127.0.0.1:9"})
	require.NoError(t, err)
	require.NoError(t, u.Open(context.Background()))
	require.NoError(t, u.Close())
	assert.ErrorIs(t, u.Write(frame(0, 0, 0, 0)), core.ErrSinkClosed)
	assert.NoError(t, u.Close())
}

func acceptWithin(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	require.NoError(t, ln.(*net.TCPListener).SetDeadline(time.Now().Add(2*time.Second)))
	conn, err := ln.Accept()
	require.NoError(t, err)
	return conn
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	total := 0
	for total < n {
		m, err := conn.Read(buf[total:])
		require.NoError(t, err)
		total += m
	}
	return buf
}

func TestTCP_StreamsAndReconnects(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s, err := NewTCP(TCPOptions{Address: ln.Addr().String(), ReconnectDelay: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))
	defer s.Close()

	server := acceptWithin(t, ln)
	defer server.Close()

	require.NoError(t, s.Write(frame(1, 2, 3, 4)))
	require.NoError(t, s.Write(frame(5, 6, 7, 8)))
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, readN(t, server, 8))

	// Break the client side; the failed write drops the connection.
	s.mu.Lock()
	_ = s.conn.Close()
	s.mu.Unlock()
	assert.Error(t, s.Write(frame(9, 9, 9, 9)))

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.Write(frame(0xA, 0xB, 0xC, 0xD)))
	again := acceptWithin(t, ln)
	defer again.Close()
	assert.Equal(t, []byte{0xA, 0xB, 0xC, 0xD}, readN(t, again, 4))
	assert.Equal(t, 1, s.Reconnects())

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write(frame(0, 0, 0, 0)), core.ErrSinkClosed)
}

// hangingDialer connects the first time and then blocks until the dial
// context ends, as a receiver behind a dropped route would.
func hangingDialer(t *testing.T) func(ctx context.Context, network, address string) (net.Conn, error) {
	calls := 0
	return func(ctx context.Context, network, address string) (net.Conn, error) {
		calls++
		if calls == 1 {
			client, server := net.Pipe()
			t.Cleanup(func() { _ = server.Close() })
			return client, nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestTCP_CloseInterruptsReconnect(t *testing.T) {
	s, err := NewTCP(TCPOptions{Address: "192.0.2.1:4991", DialTimeout: time.Minute, ReconnectDelay: time.Nanosecond})
	require.NoError(t, err)
	s.dial = hangingDialer(t)
	require.NoError(t, s.Open(context.Background()))

	s.mu.Lock()
	_ = s.conn.Close()
	s.conn = nil
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Write(frame(1, 2, 3, 4)) }()

	require.Eventually(t, func() bool { return s.Reconnects() == 1 }, time.Second, time.Millisecond)
	closed := make(chan error, 1)
	go func() { closed <- s.Close() }()

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close blocked behind the reconnect dial")
	}
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("reconnect dial was not cancelled")
	}
}

func TestTCP_OpenContextBoundsReconnect(t *testing.T) {
	s, err := NewTCP(TCPOptions{Address: "192.0.2.1:4991", DialTimeout: time.Minute, ReconnectDelay: time.Nanosecond})
	require.NoError(t, err)
	s.dial = hangingDialer(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	s.mu.Lock()
	_ = s.conn.Close()
	s.conn = nil
	s.mu.Unlock()

	cancel()
	start := time.Now()
	assert.ErrorIs(t, s.Write(frame(1, 2, 3, 4)), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTCP_OpenFailsWithoutReceiver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s, err := NewTCP(TCPOptions{Address: addr, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Error(t, s.Open(context.Background()))
	assert.NoError(t, s.Close())
}

func TestFile_AppendsRawPackets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.vrt")
	require.NoError(t, os.WriteFile(path, []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0o644))

	f, err := NewFile(FileOptions{Path: path})
	require.NoError(t, err)
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.Write(frame(1, 2, 3, 4)))
	require.NoError(t, f.Write(frame(5, 6, 7, 8)))
	require.NoError(t, f.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 1, 2, 3, 4, 5, 6, 7, 8}, got)

	f, err = NewFile(FileOptions{Path: path, Truncate: true})
	require.NoError(t, err)
	require.NoError(t, f.Open(context.Background()))
	require.NoError(t, f.Write(frame(9, 9, 9, 9)))
	require.NoError(t, f.Close())

	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 9, 9, 9}, got)
	assert.ErrorIs(t, f.Write(frame(0, 0, 0, 0)), core.ErrSinkClosed)
}

func TestPcap_FramesPacketsAsUDP(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.pcap")
	p, err := NewPcap(PcapOptions{Path: path, SrcIP: "10.0.0.1", DstIP: "239.1.2.3", DstPort: 5000})
	require.NoError(t, err)
	stamp := time.Unix(1700000000, 0)
	p.now = func() time.Time { return stamp }

	require.NoError(t, p.Open(context.Background()))
	payloads := [][]byte{{1, 2, 3, 4}, {5, 6, 7, 8, 9, 10, 11, 12}}
	for _, b := range payloads {
		require.NoError(t, p.Write(frame(b...)))
	}
	assert.Error(t, p.Write(frame(make([]byte, maxUDPPayload+4)...)))
	require.NoError(t, p.Close())

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	r, err := pcapgo.NewReader(fh)
	require.NoError(t, err)
	assert.Equal(t, layers.LinkTypeEthernet, r.LinkType())

	for _, want := range payloads {
		data, ci, err := r.ReadPacketData()
		require.NoError(t, err)
		assert.True(t, ci.Timestamp.Equal(stamp))

		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		ip, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", ip.SrcIP.String())
		assert.Equal(t, "239.1.2.3", ip.DstIP.String())

		udp, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		require.True(t, ok)
		assert.Equal(t, layers.UDPPort(4991), udp.SrcPort)
		assert.Equal(t, layers.UDPPort(5000), udp.DstPort)
		assert.Equal(t, want, udp.Payload)
	}
}
