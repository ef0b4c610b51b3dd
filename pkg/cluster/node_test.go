package cluster

import (
    "context"
    "encoding/json"
    "errors"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/discovery/static"
    "github.com/amirimatin/go-erosion/pkg/membership"
    "github.com/amirimatin/go-erosion/pkg/membership/swim"
    "github.com/amirimatin/go-erosion/pkg/transport/httpjson"
)

func bindSwim(t *testing.T, name string) *swim.Membership {
    t.Helper()
    cfg := config.Local(name)
    cfg.BindAddr = "127.0.0.1:0"
    cfg.ProbeInterval = 50 * time.Millisecond
    m, err := swim.Bind(cfg, swim.Options{})
    require.NoError(t, err)
    return m
}

func newNode(t *testing.T, name string, seeds ...discovery.Seed) *Node {
    t.Helper()
    n, err := New(Options{Engine: "swim", Membership: bindSwim(t, name), Discovery: static.New(seeds...)})
    require.NoError(t, err)
    t.Cleanup(func() { _ = n.Close() })
    return n
}

func seedOf(n *Node) discovery.Seed {
    local := n.mem.Local()
    return discovery.Seed{Name: local.Name, Addr: local.Addr.String()}
}

func TestValidate(t *testing.T) {
    _, err := New(Options{})
    assert.True(t, errors.Is(err, ErrNoMembership))
    _, err = New(Options{Membership: bindSwim(t, "x"), MaxHealthScore: -1})
    assert.Error(t, err)
}

func TestNameDefaultsToEngine(t *testing.T) {
    n := newNode(t, "n1")
    assert.Equal(t, "n1", n.opts.Name)
}

func TestJoinSeedAndStatus(t *testing.T) {
    a := newNode(t, "a")
    require.NoError(t, a.Start(context.Background()))

    b := newNode(t, "b", seedOf(a))
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    evs := b.Subscribe(ctx)
    require.NoError(t, b.Start(context.Background()))

    select {
    case ev := <-evs:
        assert.Equal(t, EventMemberJoin, ev.Type)
        assert.Equal(t, "a", ev.Member.Name)
    case <-time.After(2 * time.Second):
        t.Fatalf("no join event")
    }

    // b probes a several times; every probe is acked so the score stays 0
    time.Sleep(300 * time.Millisecond)
    st, err := b.Status(context.Background())
    require.NoError(t, err)
    assert.Equal(t, "b", st.Name)
    assert.Equal(t, "swim", st.Engine)
    assert.True(t, st.Healthy)
    assert.Equal(t, 0, st.HealthScore)
    require.Len(t, st.Members, 1)
    assert.Equal(t, "a", st.Members[0].Name)
    assert.Empty(t, st.Warnings)

    st, err = a.Status(context.Background())
    require.NoError(t, err)
    assert.Contains(t, st.Warnings, "no peers known")
}

func TestSelfSeedStartsAlone(t *testing.T) {
    n := newNode(t, "solo")
    n.opts.Discovery = static.New(discovery.Seed{Name: "solo", Addr: "127.0.0.1:1"})
    require.NoError(t, n.Start(context.Background()))
    assert.Empty(t, n.mem.Members())
}

func TestUnresolvableSeedDoesNotFailStart(t *testing.T) {
    n := newNode(t, "n1", discovery.Seed{Name: "ghost", Addr: "no-such-host.invalid:7201"})
    require.NoError(t, n.Start(context.Background()))
    st, err := n.Status(context.Background())
    require.NoError(t, err)
    assert.Contains(t, st.Warnings, "no peers known")
}

func TestDeadPeerDegradesHealth(t *testing.T) {
    // 127.0.0.1:9 (discard) never answers; every probe times out
    n := newNode(t, "n1", discovery.Seed{Name: "ghost", Addr: "127.0.0.1:9"})
    n.opts.MaxHealthScore = 2
    require.NoError(t, n.Start(context.Background()))
    require.Eventually(t, func() bool { return !n.healthy() }, 5*time.Second, 50*time.Millisecond)
    st, _ := n.Status(context.Background())
    assert.False(t, st.Healthy)
    assert.GreaterOrEqual(t, st.HealthScore, 2)
}

func TestStopIsIdempotent(t *testing.T) {
    n := newNode(t, "n1")
    require.NoError(t, n.Start(context.Background()))
    require.NoError(t, n.Stop(context.Background()))
    require.NoError(t, n.Stop(context.Background()))
    assert.Equal(t, -1, n.healthScore())
    assert.True(t, errors.Is(n.Start(context.Background()), ErrStopped))

    st, err := n.Status(context.Background())
    require.NoError(t, err)
    assert.False(t, st.Healthy)
    assert.Contains(t, st.Warnings, "membership engine not running")
}

func TestSubscribeClosesOnCancel(t *testing.T) {
    n := newNode(t, "n1")
    ctx, cancel := context.WithCancel(context.Background())
    ch := n.Subscribe(ctx)
    cancel()
    require.Eventually(t, func() bool {
        select {
        case _, ok := <-ch:
            return !ok
        default:
            return false
        }
    }, time.Second, 10*time.Millisecond)
}

func TestManagementEndpoint(t *testing.T) {
    a := newNode(t, "a")
    require.NoError(t, a.Start(context.Background()))

    srv := httpjson.NewServer("127.0.0.1:0", nil)
    n, err := New(Options{Engine: "swim", Membership: bindSwim(t, "b"), Discovery: static.New(seedOf(a)), RPCServer: srv})
    require.NoError(t, err)
    defer n.Close()
    require.NoError(t, n.Start(context.Background()))

    cli := httpjson.NewClient(time.Second)
    b, err := cli.GetStatus(context.Background(), srv.Addr())
    require.NoError(t, err)
    var st Status
    require.NoError(t, json.Unmarshal(b, &st))
    assert.Equal(t, "b", st.Name)
    assert.Equal(t, srv.Addr(), st.MgmtAddr)

    b, err = cli.GetMembers(context.Background(), srv.Addr())
    require.NoError(t, err)
    var ms []membership.Member
    require.NoError(t, json.Unmarshal(b, &ms))
    require.Len(t, ms, 1)
    assert.Equal(t, "a", ms[0].Name)
    assert.Equal(t, membership.StateAlive, ms[0].State)
}

// pushDiscovery is a discovery.Watcher fed by the test through updates.
type pushDiscovery struct {
    updates  chan []discovery.Seed
    watchErr error
}

func (p *pushDiscovery) Seeds() []discovery.Seed { return nil }

func (p *pushDiscovery) Watch(ctx context.Context) (<-chan []discovery.Seed, error) {
    if p.watchErr != nil { return nil, p.watchErr }
    out := make(chan []discovery.Seed)
    go func() {
        defer close(out)
        for {
            select {
            case seeds := <-p.updates:
                select {
                case out <- seeds:
                case <-ctx.Done():
                    return
                }
            case <-ctx.Done():
                return
            }
        }
    }()
    return out, nil
}

func TestWatchJoinsLaterSeeds(t *testing.T) {
    pd := &pushDiscovery{updates: make(chan []discovery.Seed)}
    a, err := New(Options{Engine: "swim", Membership: bindSwim(t, "a"), Discovery: pd})
    require.NoError(t, err)
    defer a.Close()
    require.NoError(t, a.Start(context.Background()))
    assert.Empty(t, a.mem.Members())

    // b registers after a is already running
    b := newNode(t, "b")
    require.NoError(t, b.Start(context.Background()))
    list := []discovery.Seed{seedOf(a), seedOf(b)}
    pd.updates <- list
    pd.updates <- list
    // each send completes only after the previous update was handled
    pd.updates <- nil
    pd.updates <- nil

    ms := a.mem.Members()
    require.Len(t, ms, 1, "self skipped, b joined once")
    assert.Equal(t, "b", ms[0].Name)
    require.Eventually(t, func() bool {
        st, err := a.Status(context.Background())
        return err == nil && st.Healthy && st.HealthScore == 0 && len(st.Warnings) == 0
    }, 2*time.Second, 20*time.Millisecond)

    require.NoError(t, a.Stop(context.Background()))
    select {
    case <-a.watchDone:
    default:
        t.Fatalf("watch goroutine still running after Stop")
    }
}

func TestWatchErrorDoesNotFailStart(t *testing.T) {
    pd := &pushDiscovery{watchErr: errors.New("etcd down")}
    n, err := New(Options{Engine: "swim", Membership: bindSwim(t, "n1"), Discovery: pd})
    require.NoError(t, err)
    defer n.Close()
    require.NoError(t, n.Start(context.Background()))
    assert.Nil(t, n.watchDone)
}
