package cluster

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "sync"
    "time"

    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/membership"
    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
    "github.com/amirimatin/go-erosion/pkg/observability/tracing"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

// Facade exposes the high-level API for consumers.
type Facade interface {
    Start(ctx context.Context) error
    Status(ctx context.Context) (*Status, error)
    Subscribe(ctx context.Context) <-chan Event
    Stop(ctx context.Context) error
}

// leaver is implemented by engines that can announce a graceful departure.
type leaver interface {
    Leave(timeout time.Duration) error
}

// Node wires a membership engine, seed discovery and the management endpoint
// into one embeddable runtime.
type Node struct {
    opts   Options
    logger *log.Logger
    mem    membership.Membership
    rpcS   transport.RPCServer
    eb     eventBus

    mu  sync.Mutex
    run struct {
        started bool
        closed  bool
    }
    stopHooks []func(context.Context) error
    done      chan struct{}

    // set when the discovery backend is a discovery.Watcher
    unwatch   context.CancelFunc
    watchDone chan struct{}
}

// New constructs a Node from validated options. It performs no network
// activity; call Start to launch the node.
func New(opts Options) (*Node, error) {
    if err := opts.Validate(); err != nil { return nil, err }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.Name == "" { opts.Name = opts.Membership.Local().Name }
    if opts.MaxHealthScore == 0 { opts.MaxHealthScore = DefaultMaxHealthScore }
    if opts.LeaveTimeout == 0 { opts.LeaveTimeout = time.Second }
    return &Node{opts: opts, logger: opts.Logger, mem: opts.Membership, rpcS: opts.RPCServer, done: make(chan struct{})}, nil
}

// Discovery returns the configured seed source, or nil.
func (n *Node) Discovery() discovery.Discovery { return n.opts.Discovery }

// OnStop registers fn to run after the engine has stopped, in registration
// order. Hooks registered after Stop are ignored.
func (n *Node) OnStop(fn func(context.Context) error) {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.run.closed { return }
    n.stopHooks = append(n.stopHooks, fn)
}

// Close is a convenience alias for Stop with a background context.
func (n *Node) Close() error { return n.Stop(context.Background()) }

// Start launches the engine, joins every discovered seed (or runs alone when
// none is known) and starts the management endpoint. It is idempotent.
func (n *Node) Start(ctx context.Context) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    if n.run.closed { return ErrStopped }
    if n.run.started { return nil }
    n.run.started = true
    metrics.Register()

    ctx, end := tracing.StartSpan(ctx, "cluster.start")
    defer end()

    // forward before Start so join events of the first seeds are observed
    go n.forwardEvents(n.mem.Events())
    if err := n.mem.Start(ctx); err != nil { return fmt.Errorf("cluster: start membership: %w", err) }
    if n.opts.Discovery != nil {
        if err := n.joinSeeds(n.opts.Discovery.Seeds()); err != nil {
            logutil.Warnf(n.logger, "%v; running alone until a peer joins", err)
        }
    }
    n.updateGauge()
    if w, ok := n.opts.Discovery.(discovery.Watcher); ok {
        wctx, cancel := context.WithCancel(ctx)
        ch, err := w.Watch(wctx)
        if err != nil {
            cancel()
            logutil.Warnf(n.logger, "watch seeds: %v; later registrations are not joined", err)
        } else {
            n.unwatch, n.watchDone = cancel, make(chan struct{})
            go n.watchSeeds(ch)
        }
    }

    if n.rpcS != nil {
        h := transport.Handlers{Status: n.statusJSON, Members: n.membersJSON, Healthy: n.healthy}
        if err := n.rpcS.Start(ctx, h); err != nil {
            if n.unwatch != nil { n.unwatch() }
            _ = n.mem.Stop()
            return fmt.Errorf("cluster: start management: %w", err)
        }
        logutil.Infof(n.logger, "management endpoint listening at %s (status/members/healthz/metrics)", n.rpcS.Addr())
    }
    logutil.Infof(n.logger, "node %s started at %s", n.opts.Name, n.mem.Local().Addr)
    return nil
}

// joinSeeds joins every seed except ourselves. The first node of a cluster
// has no seeds (or only itself) and simply runs.
func (n *Node) joinSeeds(seeds []discovery.Seed) error {
    var tried, joined int
    for _, s := range seeds {
        if s.Name == n.opts.Name { continue }
        tried++
        addr, err := discovery.Resolve(s)
        if err != nil {
            logutil.Warnf(n.logger, "seed %s: %v", s, err)
            continue
        }
        if err := n.mem.Join(s.Name, addr); err != nil {
            logutil.Warnf(n.logger, "join %s: %v", s, err)
            continue
        }
        joined++
    }
    if tried > 0 && joined == 0 { return ErrNoSeeds }
    if joined > 0 { logutil.Infof(n.logger, "joined %d/%d seeds", joined, tried) }
    return nil
}

// watchSeeds joins every seed that appears in a discovery update and is not
// yet part of the local view.
func (n *Node) watchSeeds(ch <-chan []discovery.Seed) {
    defer close(n.watchDone)
    for seeds := range ch {
        known := make(map[string]struct{})
        for _, m := range n.mem.Members() { known[m.Name] = struct{}{} }
        for _, s := range seeds {
            if s.Name == n.opts.Name { continue }
            if _, ok := known[s.Name]; ok { continue }
            if err := n.Join(s); err != nil {
                logutil.Warnf(n.logger, "join discovered %s: %v", s, err)
                continue
            }
            known[s.Name] = struct{}{}
            logutil.Infof(n.logger, "joined discovered seed %s", s)
        }
    }
}

// Join adds one peer at runtime.
func (n *Node) Join(s discovery.Seed) error {
    addr, err := discovery.Resolve(s)
    if err != nil { return err }
    if err := n.mem.Join(s.Name, addr); err != nil { return err }
    n.updateGauge()
    return nil
}

func (n *Node) forwardEvents(ch <-chan membership.Event) {
    defer close(n.done)
    for e := range ch {
        ev, ok := eventFor(e)
        if !ok { continue }
        logutil.Debugf(n.logger, "membership event %s: %s (%s)", ev.Type, e.Member.Name, e.Member.Addr)
        n.updateGauge()
        n.eb.publish(ev)
    }
}

func (n *Node) updateGauge() {
    var live int
    for _, m := range n.mem.Members() {
        if m.State != membership.StateDead { live++ }
    }
    metrics.Members.Set(float64(live))
}

// Status returns a snapshot of the local view.
func (n *Node) Status(ctx context.Context) (*Status, error) {
    s := &Status{
        Name:        n.opts.Name,
        Engine:      n.opts.Engine,
        Members:     n.mem.Members(),
        HealthScore: n.healthScore(),
    }
    if s.Members == nil { s.Members = []membership.Member{} }
    if local := n.mem.Local(); local.Addr.IsValid() { s.Addr = local.Addr.String() }
    if n.rpcS != nil { s.MgmtAddr = n.rpcS.Addr() }
    s.Healthy = s.HealthScore >= 0 && s.HealthScore < n.opts.MaxHealthScore
    switch {
    case s.HealthScore < 0:
        s.Warnings = append(s.Warnings, "membership engine not running")
    case s.HealthScore > 0:
        s.Warnings = append(s.Warnings, fmt.Sprintf("health score %d (missed probes)", s.HealthScore))
    }
    if peers(s.Members, n.opts.Name) == 0 {
        s.Warnings = append(s.Warnings, "no peers known")
    }
    return s, nil
}

func peers(ms []membership.Member, self string) int {
    var c int
    for _, m := range ms {
        if m.Name != self && m.State != membership.StateDead { c++ }
    }
    return c
}

func (n *Node) healthScore() int {
    n.mu.Lock()
    started, closed := n.run.started, n.run.closed
    n.mu.Unlock()
    if !started || closed { return -1 }
    if hr, ok := n.mem.(membership.HealthReporter); ok { return hr.HealthScore() }
    return 0
}

func (n *Node) healthy() bool {
    s := n.healthScore()
    return s >= 0 && s < n.opts.MaxHealthScore
}

func (n *Node) statusJSON(ctx context.Context) ([]byte, error) {
    s, err := n.Status(ctx)
    if err != nil { return nil, err }
    return json.Marshal(s)
}

func (n *Node) membersJSON(context.Context) ([]byte, error) {
    ms := n.mem.Members()
    if ms == nil { ms = []membership.Member{} }
    return json.Marshal(ms)
}

// Stop gracefully shuts down the management server and the engine. It is
// idempotent.
func (n *Node) Stop(ctx context.Context) error {
    n.mu.Lock()
    if n.run.closed {
        n.mu.Unlock()
        return nil
    }
    n.run.closed = true
    started, hooks := n.run.started, n.stopHooks
    unwatch, watchDone := n.unwatch, n.watchDone
    n.mu.Unlock()

    if unwatch != nil {
        unwatch()
        select {
        case <-watchDone:
        case <-ctx.Done():
        }
    }
    if n.rpcS != nil && started { _ = n.rpcS.Stop(ctx) }
    if l, ok := n.mem.(leaver); ok && started {
        if err := l.Leave(n.opts.LeaveTimeout); err != nil {
            logutil.Warnf(n.logger, "leave: %v", err)
        }
    }
    err := n.mem.Stop()
    if started {
        select {
        case <-n.done:
        case <-ctx.Done():
        }
    }
    for _, fn := range hooks {
        if herr := fn(ctx); herr != nil { logutil.Warnf(n.logger, "stop hook: %v", herr) }
    }
    metrics.Members.Set(0)
    logutil.Infof(n.logger, "node %s stopped", n.opts.Name)
    return err
}

var _ Facade = (*Node)(nil)
