package transport

import (
    "errors"
    "fmt"
    "net/netip"
    "time"

    "github.com/amirimatin/go-erosion/pkg/message"
)

var (
    // ErrNoPacket is returned by Receive when nothing usable arrived within
    // the poll timeout (including datagrams that failed to decode).
    ErrNoPacket = errors.New("transport: no packet")

    // ErrPacketTooLarge reports an encoded message above the datagram limit.
    ErrPacketTooLarge = errors.New("transport: packet too large")
)

// BindError is returned when the local address cannot be acquired. The caller
// owns any retry policy.
type BindError struct {
    Addr string
    Err  error
}

func (e *BindError) Error() string { return fmt.Sprintf("transport: bind %s: %v", e.Addr, e.Err) }
func (e *BindError) Unwrap() error { return e.Err }

// Packet is one decoded inbound message and its sender.
type Packet struct {
    Msg  message.Message
    From netip.AddrPort
}

// PacketTransport is a best-effort, fire-and-forget datagram transport used by
// the membership engine.
type PacketTransport interface {
    // Send encodes and sends msg. Failures are logged and swallowed.
    Send(msg message.Message, to netip.AddrPort)
    // Receive waits up to timeout for one packet. It returns ErrNoPacket when
    // nothing usable arrived and an error wrapping net.ErrClosed once closed.
    Receive(timeout time.Duration) (Packet, error)
    // LocalAddr returns the bound address.
    LocalAddr() netip.AddrPort
    Close() error
}
