// Package swim implements the direct-probe core of the SWIM failure detector
// over the UDP packet transport: a shuffled round-robin probe loop, a receive
// loop answering pings, and the ack-wait table joining the two.
package swim

import (
    "context"
    "errors"
    "fmt"
    "log"
    "net/netip"
    "sync"
    "sync/atomic"
    "time"

    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/membership"
    "github.com/amirimatin/go-erosion/pkg/transport"
    "github.com/amirimatin/go-erosion/pkg/transport/udp"
)

var (
    // ErrStopped is returned by Start and Join after Stop.
    ErrStopped = errors.New("swim: stopped")
)

// Membership is a SWIM engine bound to one local address.
type Membership struct {
    cfg    config.Config
    tr     transport.PacketTransport
    opts   Options
    logger *log.Logger

    mu      sync.RWMutex
    members []membership.Member

    // cursorMu serializes target selection; taken before mu when both are held.
    cursorMu sync.Mutex
    cursor   int

    seq    atomic.Uint32
    acks   *ackTable
    missed atomic.Int32

    evMu     sync.RWMutex
    evts     chan membership.Event
    evClosed bool

    // runMu guards the lifecycle flags; taken before mu when both are held.
    runMu   sync.Mutex
    started bool
    stopped bool
    cancel  context.CancelFunc
    wg      sync.WaitGroup
}

var (
    _ membership.Membership     = (*Membership)(nil)
    _ membership.HealthReporter = (*Membership)(nil)
)

// Bind validates cfg and listens on cfg.BindAddr. A bind failure is returned
// as *transport.BindError; retry policy belongs to the caller.
func Bind(cfg config.Config, opts Options) (*Membership, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    if opts.Logger == nil { opts.Logger = log.Default() }
    tr, err := udp.Bind(cfg.BindAddr, opts.Logger)
    if err != nil { return nil, err }
    return New(cfg, tr, opts)
}

// New builds an engine over an already bound transport. The engine owns tr
// and closes it on Stop.
func New(cfg config.Config, tr transport.PacketTransport, opts Options) (*Membership, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    if tr == nil { return nil, fmt.Errorf("swim: nil transport") }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.PollInterval <= 0 { opts.PollInterval = DefaultPollInterval }
    return &Membership{
        cfg:    cfg,
        tr:     tr,
        opts:   opts,
        logger: opts.Logger,
        acks:   newAckTable(),
        evts:   make(chan membership.Event, 64),
    }, nil
}

// Config returns the configuration the engine was built with.
func (m *Membership) Config() config.Config { return m.cfg }

// Start launches the probe loop (unless ProbeInterval is zero) and the receive
// loop. Both stop when ctx is cancelled or Stop is called. Calling Start on a
// running engine is a no-op.
func (m *Membership) Start(ctx context.Context) error {
    m.runMu.Lock()
    defer m.runMu.Unlock()
    return m.startLocked(ctx)
}

// startLocked is Start with runMu held.
func (m *Membership) startLocked(ctx context.Context) error {
    if m.stopped { return ErrStopped }
    if m.started { return nil }
    m.started = true

    ctx, cancel := context.WithCancel(ctx)
    m.cancel = cancel

    m.wg.Add(1)
    go m.receiveLoop(ctx)
    if m.cfg.ProbeInterval > 0 {
        m.wg.Add(1)
        go m.probeLoop(ctx)
    } else {
        logutil.Infof(m.logger, "swim: probing disabled (probe interval is zero)")
    }
    logutil.Infof(m.logger, "swim: %s listening on %s", m.cfg.Name, m.tr.LocalAddr())
    return nil
}

// Join appends the seed to the local view as Alive with incarnation 0 and
// starts the engine. Joins are not deduplicated. A Join racing Stop either
// adds the member and returns nil, or adds nothing and returns ErrStopped.
func (m *Membership) Join(name string, addr netip.AddrPort) error {
    if !addr.IsValid() { return fmt.Errorf("swim: invalid address for %q", name) }
    mem := membership.Member{Name: name, Addr: addr, State: membership.StateAlive}

    m.runMu.Lock()
    if m.stopped {
        m.runMu.Unlock()
        return ErrStopped
    }
    m.mu.Lock()
    m.members = append(m.members, mem)
    m.mu.Unlock()
    err := m.startLocked(context.Background())
    m.runMu.Unlock()
    if err != nil { return err }

    logutil.Infof(m.logger, "swim: joined %s at %s", name, addr)
    m.emit(membership.Event{Type: membership.EventJoin, Member: mem, At: time.Now()})
    return nil
}

// Local describes this node.
func (m *Membership) Local() membership.Member {
    return membership.Member{Name: m.cfg.Name, Addr: m.tr.LocalAddr(), State: membership.StateAlive}
}

// Members returns a copy of the local view in its current probe order.
func (m *Membership) Members() []membership.Member {
    m.mu.RLock()
    defer m.mu.RUnlock()
    out := make([]membership.Member, len(m.members))
    copy(out, m.members)
    return out
}

// Events delivers join and reap notifications. Events are dropped when the
// channel is full. The channel is closed by Stop.
func (m *Membership) Events() <-chan membership.Event { return m.evts }

// HealthScore is the number of consecutive probes that went unanswered, or -1
// when the engine is not running.
func (m *Membership) HealthScore() int {
    m.runMu.Lock()
    running := m.started && !m.stopped
    m.runMu.Unlock()
    if !running { return -1 }
    return int(m.missed.Load())
}

// Stop cancels both loops, waits for them to exit, then closes the transport
// and the event channel. It is safe to call more than once.
func (m *Membership) Stop() error {
    m.runMu.Lock()
    if m.stopped {
        m.runMu.Unlock()
        return nil
    }
    m.stopped = true
    cancel := m.cancel
    m.runMu.Unlock()

    if cancel != nil { cancel() }
    m.wg.Wait()
    err := m.tr.Close()

    m.evMu.Lock()
    m.evClosed = true
    close(m.evts)
    m.evMu.Unlock()
    logutil.Infof(m.logger, "swim: %s stopped", m.cfg.Name)
    return err
}

func (m *Membership) emit(e membership.Event) {
    m.evMu.RLock()
    defer m.evMu.RUnlock()
    if m.evClosed { return }
    select {
    case m.evts <- e:
    default:
        logutil.Warnf(m.logger, "swim: dropping %s event for %s: channel full", e.Type, e.Member.Name)
    }
}
