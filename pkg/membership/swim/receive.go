package swim

import (
    "context"
    "errors"
    "net"
    "time"

    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/message"
    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

func (m *Membership) receiveLoop(ctx context.Context) {
    defer m.wg.Done()
    for {
        if ctx.Err() != nil { return }
        pkt, err := m.tr.Receive(m.opts.PollInterval)
        switch {
        case err == nil:
            m.handle(pkt)
        case errors.Is(err, transport.ErrNoPacket):
        case errors.Is(err, net.ErrClosed):
            if ctx.Err() == nil { logutil.Errorf(m.logger, "swim: transport closed: %v", err) }
            return
        default:
            logutil.Warnf(m.logger, "swim: receive: %v", err)
            select {
            case <-ctx.Done():
                return
            case <-time.After(m.opts.PollInterval):
            }
        }
    }
}

// handle dispatches one inbound message. Every variant is listed; the ones
// without behaviour yet are explicit no-ops.
func (m *Membership) handle(pkt transport.Packet) {
    switch msg := pkt.Msg.(type) {
    case message.Ping:
        if msg.Name != m.cfg.Name {
            metrics.PacketsDropped.WithLabelValues(metrics.DropIdentity).Inc()
            logutil.Warnf(m.logger, "swim: ping %d from %s is for %q, not %q; dropping", msg.Seq, pkt.From, msg.Name, m.cfg.Name)
            return
        }
        m.tr.Send(message.Ack{Seq: msg.Seq}, pkt.From)
    case message.Ack:
        if !m.acks.resolve(msg.Seq) {
            logutil.Debugf(m.logger, "swim: ignoring ack %d from %s: no probe waiting", msg.Seq, pkt.From)
        }
    case message.IndirectPing:
        // not implemented: indirect probing
    case message.Suspect:
        // not implemented: suspicion dissemination
    case message.Alive:
        // not implemented: alive dissemination
    case message.Dead:
        // not implemented: dead dissemination
    case message.None:
        // reserved type on the wire
    default:
        logutil.Warnf(m.logger, "swim: unhandled message %T from %s", pkt.Msg, pkt.From)
    }
}
