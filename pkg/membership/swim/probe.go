package swim

import (
    "context"
    "math/rand/v2"
    "time"

    "go.opentelemetry.io/otel/attribute"

    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/membership"
    "github.com/amirimatin/go-erosion/pkg/message"
    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
    "github.com/amirimatin/go-erosion/pkg/observability/tracing"
)

func (m *Membership) probeLoop(ctx context.Context) {
    defer m.wg.Done()
    ticker := time.NewTicker(m.cfg.ProbeInterval)
    defer ticker.Stop()
    for {
        select {
        case <-ctx.Done():
            return
        case <-ticker.C:
        }
        m.tick(ctx)
    }
}

// tick runs one probe round: pick the next target in the sweep and, if there
// is one, ping it and wait for the ack.
func (m *Membership) tick(ctx context.Context) {
    target, ok := m.nextTarget()
    if !ok { return }
    p := m.probeMember(ctx, target)
    if m.opts.OnProbe != nil { m.opts.OnProbe(p) }
}

// nextTarget advances the cursor past self and dead members and returns the
// first eligible member. When the cursor reaches the end of the list, dead
// members are reaped, the list is reshuffled and the sweep restarts.
func (m *Membership) nextTarget() (membership.Member, bool) {
    m.cursorMu.Lock()
    defer m.cursorMu.Unlock()

    m.mu.RLock()
    n := len(m.members)
    m.mu.RUnlock()
    if m.cursor >= n {
        reaped := m.resetSweep()
        m.cursor = 0
        for _, r := range reaped {
            logutil.Infof(m.logger, "swim: reaped dead member %s (%s)", r.Name, r.Addr)
            m.emit(membership.Event{Type: membership.EventReap, Member: r, At: time.Now()})
        }
    }

    m.mu.RLock()
    defer m.mu.RUnlock()
    for m.cursor < len(m.members) {
        c := m.members[m.cursor]
        m.cursor++
        if c.Name == m.cfg.Name || c.State == membership.StateDead { continue }
        return c, true
    }
    return membership.Member{}, false
}

// resetSweep drops Dead members and shuffles the rest in place.
func (m *Membership) resetSweep() []membership.Member {
    m.mu.Lock()
    defer m.mu.Unlock()
    var reaped []membership.Member
    kept := m.members[:0]
    for _, mem := range m.members {
        if mem.State == membership.StateDead {
            reaped = append(reaped, mem)
            continue
        }
        kept = append(kept, mem)
    }
    clear(m.members[len(kept):])
    m.members = kept

    swap := func(i, j int) { kept[i], kept[j] = kept[j], kept[i] }
    if m.opts.Rand != nil {
        m.opts.Rand.Shuffle(len(kept), swap)
    } else {
        rand.Shuffle(len(kept), swap)
    }
    return reaped
}

// probeMember pings target and waits up to ProbeTimeout for its ack. The
// outcome is logged and recorded but does not change the member's state.
func (m *Membership) probeMember(ctx context.Context, target membership.Member) Probe {
    seq := m.seq.Add(1)
    ctx, end := tracing.StartSpan(ctx, "swim.probe",
        attribute.String("target", target.Name),
        attribute.String("addr", target.Addr.String()),
        attribute.Int64("seq", int64(seq)))

    p := Probe{Seq: seq, Target: target}
    wait, ok := m.acks.register(seq)
    if !ok {
        // an older probe still owns this seq; treat this round as lost
        logutil.Warnf(m.logger, "swim: seq %d still pending, skipping probe of %s", seq, target.Name)
        p.Result = ResultTimeout
        end(attribute.String("result", p.Result.String()))
        return p
    }

    logutil.Debugf(m.logger, "swim: probing %s (%s) seq=%d", target.Name, target.Addr, seq)
    start := time.Now()
    m.tr.Send(message.Ping{Seq: seq, Name: target.Name}, target.Addr)
    p.Result = m.awaitAck(ctx, seq, wait)
    p.RTT = time.Since(start)

    metrics.ProbesTotal.WithLabelValues(p.Result.String()).Inc()
    switch p.Result {
    case ResultAck:
        m.missed.Store(0)
        metrics.ProbeRTT.Observe(p.RTT.Seconds())
        logutil.Debugf(m.logger, "swim: ack %d confirmed by %s in %s", seq, target.Name, p.RTT)
    case ResultTimeout:
        m.missed.Add(1)
        logutil.Infof(m.logger, "swim: ack %d from %s timed out after %s", seq, target.Name, m.cfg.ProbeTimeout)
    case ResultCancelled:
        logutil.Debugf(m.logger, "swim: probe %d of %s cancelled", seq, target.Name)
    }
    end(attribute.String("result", p.Result.String()))
    return p
}

// awaitAck races the ack signal for seq against ProbeTimeout and ctx. The
// losing side never touches the table: when the timer or ctx fires but cancel
// finds the entry gone, resolve already removed it and the ack counts.
func (m *Membership) awaitAck(ctx context.Context, seq uint32, wait <-chan struct{}) Result {
    timer := time.NewTimer(m.cfg.ProbeTimeout)
    defer timer.Stop()
    select {
    case <-wait:
        return ResultAck
    case <-timer.C:
        if m.acks.cancel(seq) { return ResultTimeout }
        return ResultAck
    case <-ctx.Done():
        if m.acks.cancel(seq) { return ResultCancelled }
        return ResultAck
    }
}
