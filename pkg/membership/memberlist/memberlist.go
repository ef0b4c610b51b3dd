// Package memberlist runs the membership contract on HashiCorp memberlist,
// which implements the full SWIM protocol (indirect probes, suspicion,
// push/pull sync, gossip fan-out and compression) that the native engine
// leaves as configuration knobs.
package memberlist

import (
    "context"
    "fmt"
    "io"
    "log"
    "net"
    "net/netip"
    "strconv"
    "sync"
    "time"

    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    base "github.com/amirimatin/go-erosion/pkg/membership"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

// Options configures the memberlist-backed engine.
type Options struct {
    // Advertise is the address (host:port) peers should use to reach this
    // node. If empty, memberlist derives it from the bind address.
    Advertise string

    // Logger is optional. If nil, log.Default() is used. memberlist's own
    // output goes to it only when debug logging is enabled.
    Logger *log.Logger
}

// Engine implements base.Membership using HashiCorp memberlist.
type Engine struct {
    mu     sync.RWMutex
    cfg    config.Config
    logger *log.Logger
    ml     *memberlist.Memberlist
    evts   chan base.Event
    closed bool
}

var (
    _ base.Membership     = (*Engine)(nil)
    _ base.HealthReporter = (*Engine)(nil)
)

// Bind maps cfg onto a memberlist configuration and creates the instance,
// which binds its UDP and TCP listeners immediately.
func Bind(cfg config.Config, opts Options) (*Engine, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    if opts.Logger == nil { opts.Logger = log.Default() }

    mc, err := buildConfig(cfg, opts)
    if err != nil { return nil, err }

    e := &Engine{cfg: cfg, logger: opts.Logger, evts: make(chan base.Event, 64)}
    mc.Events = &eventDelegate{emit: e.emit}

    ml, err := memberlist.Create(mc)
    if err != nil { return nil, &transport.BindError{Addr: cfg.BindAddr, Err: err} }
    e.ml = ml
    return e, nil
}

func buildConfig(cfg config.Config, opts Options) (*memberlist.Config, error) {
    mc := memberlist.DefaultLANConfig()
    mc.Name = cfg.Name
    host, port, err := splitHostPort(cfg.BindAddr)
    if err != nil { return nil, fmt.Errorf("memberlist: invalid bind address %q: %w", cfg.BindAddr, err) }
    mc.BindAddr = host
    mc.BindPort = port
    if opts.Advertise != "" {
        ahost, aport, err := splitHostPort(opts.Advertise)
        if err != nil { return nil, fmt.Errorf("memberlist: invalid advertise address %q: %w", opts.Advertise, err) }
        mc.AdvertiseAddr = ahost
        mc.AdvertisePort = aport
    }

    mc.TCPTimeout = cfg.TCPTimeout
    mc.IndirectChecks = cfg.IndirectChecks
    mc.RetransmitMult = cfg.RetransmitMult
    mc.SuspicionMult = cfg.SuspicionMult
    mc.PushPullInterval = cfg.PushPullInterval
    mc.ProbeInterval = cfg.ProbeInterval
    mc.ProbeTimeout = cfg.ProbeTimeout
    mc.GossipInterval = cfg.GossipInterval
    mc.GossipNodes = cfg.GossipNodes
    mc.EnableCompression = cfg.EnableCompression

    mc.Logger = opts.Logger
    if !logutil.DebugEnabled() {
        // memberlist logs every probe at [DEBUG]; keep it quiet unless asked
        mc.Logger = log.New(io.Discard, "", 0)
    }
    return mc, nil
}

// Start ties the engine's lifetime to ctx. memberlist is already running
// once Bind returns.
func (e *Engine) Start(ctx context.Context) error {
    e.mu.RLock()
    closed := e.closed
    e.mu.RUnlock()
    if closed { return fmt.Errorf("memberlist: stopped") }
    go func() {
        <-ctx.Done()
        _ = e.Stop()
    }()
    return nil
}

// Join contacts the seed at addr and merges its view. memberlist learns the
// seed's name from the exchange; name is only used for logging.
func (e *Engine) Join(name string, addr netip.AddrPort) error {
    e.mu.RLock()
    ml := e.ml
    e.mu.RUnlock()
    if ml == nil { return fmt.Errorf("memberlist: stopped") }
    n, err := ml.Join([]string{addr.String()})
    if err != nil { return fmt.Errorf("memberlist: join %s (%s): %w", name, addr, err) }
    logutil.Infof(e.logger, "memberlist: joined %s at %s (%d contacted)", name, addr, n)
    return nil
}

func (e *Engine) Local() base.Member {
    e.mu.RLock()
    defer e.mu.RUnlock()
    if e.ml == nil { return base.Member{Name: e.cfg.Name} }
    return toMember(e.ml.LocalNode())
}

func (e *Engine) Members() []base.Member {
    e.mu.RLock()
    defer e.mu.RUnlock()
    if e.ml == nil { return nil }
    nodes := e.ml.Members()
    out := make([]base.Member, 0, len(nodes))
    for _, n := range nodes {
        out = append(out, toMember(n))
    }
    return out
}

func (e *Engine) Events() <-chan base.Event { return e.evts }

// Leave broadcasts an intent to leave and waits up to timeout for it to
// propagate.
func (e *Engine) Leave(timeout time.Duration) error {
    e.mu.RLock()
    ml := e.ml
    e.mu.RUnlock()
    if ml == nil { return nil }
    return ml.Leave(timeout)
}

// Stop shuts memberlist down without a leave broadcast; call Leave first for
// a graceful exit. It is safe to call more than once.
func (e *Engine) Stop() error {
    e.mu.Lock()
    if e.closed {
        e.mu.Unlock()
        return nil
    }
    e.closed = true
    ml := e.ml
    e.ml = nil
    close(e.evts)
    e.mu.Unlock()
    if ml == nil { return nil }
    return ml.Shutdown()
}

// HealthScore exposes memberlist's awareness score.
func (e *Engine) HealthScore() int {
    e.mu.RLock()
    defer e.mu.RUnlock()
    if e.ml == nil { return -1 }
    return e.ml.GetHealthScore()
}

func (e *Engine) emit(ev base.Event) {
    e.mu.RLock()
    defer e.mu.RUnlock()
    if e.closed { return }
    select {
    case e.evts <- ev:
    default:
        logutil.Warnf(e.logger, "memberlist: dropping %s event for %s: channel full", ev.Type, ev.Member.Name)
    }
}

// eventDelegate adapts memberlist notifications to base.Event.
type eventDelegate struct {
    emit func(base.Event)
}

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
    if n == nil { return }
    d.emit(base.Event{Type: base.EventJoin, Member: toMember(n), At: time.Now()})
}

// NotifyLeave fires for both graceful leaves and failures; memberlist's node
// state tells them apart.
func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
    if n == nil { return }
    t := base.EventFailed
    if n.State == memberlist.StateLeft { t = base.EventLeave }
    d.emit(base.Event{Type: t, Member: toMember(n), At: time.Now()})
}

func (d *eventDelegate) NotifyUpdate(*memberlist.Node) {}

func toMember(n *memberlist.Node) base.Member {
    m := base.Member{Name: n.Name, State: toState(n.State)}
    if ip, ok := netip.AddrFromSlice(n.Addr); ok {
        m.Addr = netip.AddrPortFrom(ip.Unmap(), n.Port)
    }
    return m
}

func toState(s memberlist.NodeStateType) base.State {
    switch s {
    case memberlist.StateSuspect:
        return base.StateSuspect
    case memberlist.StateDead, memberlist.StateLeft:
        return base.StateDead
    default:
        return base.StateAlive
    }
}

func splitHostPort(addr string) (string, int, error) {
    host, p, err := net.SplitHostPort(addr)
    if err != nil { return "", 0, err }
    port, err := strconv.Atoi(p)
    if err != nil || port < 0 || port > 65535 { return "", 0, fmt.Errorf("invalid port %q", p) }
    return host, port, nil
}
