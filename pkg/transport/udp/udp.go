package udp

import (
    "errors"
    "fmt"
    "log"
    "net"
    "net/netip"
    "os"
    "sync"
    "time"

    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/message"
    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

// MaxPacketSize is the largest datagram written or read. It stays below the
// minimum IPv4 reassembly size so packets are never fragmented.
const MaxPacketSize = 548

// Transport is a UDP implementation of transport.PacketTransport.
type Transport struct {
    conn   *net.UDPConn
    local  netip.AddrPort
    logger *log.Logger

    rmu  sync.Mutex
    rbuf [MaxPacketSize]byte
}

var _ transport.PacketTransport = (*Transport)(nil)

// Bind resolves addr ("host:port") and listens on it. Failures are returned as
// *transport.BindError.
func Bind(addr string, logger *log.Logger) (*Transport, error) {
    if logger == nil { logger = log.Default() }
    ua, err := net.ResolveUDPAddr("udp", addr)
    if err != nil { return nil, &transport.BindError{Addr: addr, Err: err} }
    conn, err := net.ListenUDP("udp", ua)
    if err != nil { return nil, &transport.BindError{Addr: addr, Err: err} }
    local := conn.LocalAddr().(*net.UDPAddr).AddrPort()
    return &Transport{conn: conn, local: local, logger: logger}, nil
}

func (t *Transport) LocalAddr() netip.AddrPort { return t.local }

// Send encodes msg and writes it to the given address. Encode failures,
// oversized payloads and socket errors are logged and dropped.
func (t *Transport) Send(msg message.Message, to netip.AddrPort) {
    b, err := message.Encode(msg)
    if err != nil {
        metrics.PacketsDropped.WithLabelValues(metrics.DropEncode).Inc()
        logutil.Warnf(t.logger, "udp: drop send to %s: %v", to, err)
        return
    }
    if err := t.write(b, to); err != nil {
        reason := metrics.DropWrite
        if errors.Is(err, transport.ErrPacketTooLarge) { reason = metrics.DropTooLarge }
        metrics.PacketsDropped.WithLabelValues(reason).Inc()
        logutil.Warnf(t.logger, "udp: drop %s to %s: %v", msg.Type(), to, err)
        return
    }
    metrics.PacketsSent.WithLabelValues(msg.Type().String()).Inc()
    if logutil.DebugEnabled() {
        logutil.Debugf(t.logger, "udp: sent %s (%d bytes) to %s", msg.Type(), len(b), to)
    }
}

func (t *Transport) write(b []byte, to netip.AddrPort) error {
    if len(b) > MaxPacketSize {
        return fmt.Errorf("%w: %d > %d bytes", transport.ErrPacketTooLarge, len(b), MaxPacketSize)
    }
    _, err := t.conn.WriteToUDPAddrPort(b, to)
    return err
}

// Receive waits up to timeout for one datagram and decodes it. A timeout or an
// undecodable datagram yields transport.ErrNoPacket.
func (t *Transport) Receive(timeout time.Duration) (transport.Packet, error) {
    t.rmu.Lock()
    defer t.rmu.Unlock()

    var deadline time.Time
    if timeout > 0 { deadline = time.Now().Add(timeout) }
    if err := t.conn.SetReadDeadline(deadline); err != nil {
        return transport.Packet{}, fmt.Errorf("udp: set deadline: %w", err)
    }
    n, from, err := t.conn.ReadFromUDPAddrPort(t.rbuf[:])
    if err != nil {
        if errors.Is(err, os.ErrDeadlineExceeded) { return transport.Packet{}, transport.ErrNoPacket }
        if errors.Is(err, net.ErrClosed) { return transport.Packet{}, fmt.Errorf("udp: receive: %w", err) }
        // ICMP-driven errors on some platforms; not fatal for a datagram socket.
        logutil.Warnf(t.logger, "udp: read: %v", err)
        return transport.Packet{}, transport.ErrNoPacket
    }
    msg, err := message.Decode(t.rbuf[:n])
    if err != nil {
        metrics.PacketsDropped.WithLabelValues(metrics.DropDecode).Inc()
        logutil.Warnf(t.logger, "udp: drop %d bytes from %s: %v", n, from, err)
        return transport.Packet{}, transport.ErrNoPacket
    }
    metrics.PacketsReceived.WithLabelValues(msg.Type().String()).Inc()
    return transport.Packet{Msg: msg, From: unmap(from)}, nil
}

func (t *Transport) Close() error { return t.conn.Close() }

// unmap turns IPv4-mapped IPv6 senders (dual-stack sockets) back into plain
// IPv4 so replies and comparisons use one form.
func unmap(ap netip.AddrPort) netip.AddrPort {
    return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
