package memberlist

import (
    "context"
    "io"
    "log"
    "testing"
    "time"

    "github.com/amirimatin/go-erosion/pkg/config"
    base "github.com/amirimatin/go-erosion/pkg/membership"
)

func testConfig(name string) config.Config {
    c := config.Local(name)
    c.BindAddr = "127.0.0.1:0"
    c.ProbeInterval = 100 * time.Millisecond
    c.SuspicionMult = 2
    return c
}

func TestBuildConfig_MapsEveryKnob(t *testing.T) {
    cfg := config.WAN("n1")
    cfg.BindAddr = "127.0.0.1:7300"
    mc, err := buildConfig(cfg, Options{Advertise: "10.0.0.1:7400", Logger: log.New(io.Discard, "", 0)})
    if err != nil { t.Fatalf("buildConfig: %v", err) }

    if mc.Name != "n1" || mc.BindAddr != "127.0.0.1" || mc.BindPort != 7300 {
        t.Fatalf("identity/bind not mapped: %s %s:%d", mc.Name, mc.BindAddr, mc.BindPort)
    }
    if mc.AdvertiseAddr != "10.0.0.1" || mc.AdvertisePort != 7400 {
        t.Fatalf("advertise not mapped: %s:%d", mc.AdvertiseAddr, mc.AdvertisePort)
    }
    if mc.TCPTimeout != cfg.TCPTimeout || mc.PushPullInterval != cfg.PushPullInterval ||
        mc.ProbeInterval != cfg.ProbeInterval || mc.ProbeTimeout != cfg.ProbeTimeout ||
        mc.GossipInterval != cfg.GossipInterval {
        t.Fatalf("durations not mapped: %+v", mc)
    }
    if mc.IndirectChecks != cfg.IndirectChecks || mc.RetransmitMult != cfg.RetransmitMult ||
        mc.SuspicionMult != cfg.SuspicionMult || mc.GossipNodes != cfg.GossipNodes ||
        mc.EnableCompression != cfg.EnableCompression {
        t.Fatalf("counts not mapped: %+v", mc)
    }
}

func TestBuildConfig_BadAdvertise(t *testing.T) {
    cfg := testConfig("n1")
    if _, err := buildConfig(cfg, Options{Advertise: "nope"}); err == nil {
        t.Fatalf("expected error for bad advertise address")
    }
}

func TestEngine_StartLocal(t *testing.T) {
    e := startEngine(t, "t1")
    defer e.Stop()

    if got := e.Local().Name; got != "t1" { t.Fatalf("local name = %q, want t1", got) }
    if !e.Local().Addr.IsValid() || e.Local().Addr.Port() == 0 { t.Fatalf("local addr not resolved: %v", e.Local().Addr) }
    if s := e.HealthScore(); s < 0 { t.Fatalf("unexpected health score: %d", s) }

    if err := e.Stop(); err != nil { t.Fatalf("stop: %v", err) }
    if err := e.Stop(); err != nil { t.Fatalf("second stop: %v", err) }
    if s := e.HealthScore(); s != -1 { t.Fatalf("health score after stop = %d, want -1", s) }
}

func TestEngine_MultiNodeJoinLeave(t *testing.T) {
    n1 := startEngine(t, "n1")
    defer n1.Stop()
    n2 := startEngine(t, "n2")
    defer n2.Stop()
    n3 := startEngine(t, "n3")
    defer n3.Stop()

    if err := n2.Join("n1", n1.Local().Addr); err != nil { t.Fatalf("n2 join: %v", err) }
    if err := n3.Join("n1", n1.Local().Addr); err != nil { t.Fatalf("n3 join: %v", err) }

    awaitMembers(t, n1, 3, 5*time.Second)
    awaitMembers(t, n2, 3, 5*time.Second)
    awaitMembers(t, n3, 3, 5*time.Second)

    _ = n2.Leave(time.Second)
    _ = n2.Stop()

    awaitMembers(t, n1, 2, 5*time.Second)
    awaitMembers(t, n3, 2, 5*time.Second)
    awaitEvent(t, n1, base.EventLeave, "n2", 5*time.Second)
}

func TestEngine_JoinUnreachable(t *testing.T) {
    e := startEngine(t, "lonely")
    defer e.Stop()
    dead := startEngine(t, "gone")
    addr := dead.Local().Addr
    _ = dead.Stop()
    if err := e.Join("gone", addr); err == nil { t.Fatalf("expected join error") }
}

func startEngine(t *testing.T, name string) *Engine {
    t.Helper()
    e, err := Bind(testConfig(name), Options{Logger: log.New(io.Discard, "", 0)})
    if err != nil { t.Fatalf("bind %s: %v", name, err) }
    if err := e.Start(context.Background()); err != nil { t.Fatalf("start %s: %v", name, err) }
    return e
}

func awaitMembers(t *testing.T, m base.Membership, want int, timeout time.Duration) {
    t.Helper()
    deadline := time.Now().Add(timeout)
    for {
        got := m.Members()
        alive := 0
        for _, mem := range got {
            if mem.State != base.StateDead { alive++ }
        }
        if alive == want { return }
        if time.Now().After(deadline) {
            t.Fatalf("members timeout: got=%d want=%d list=%v", alive, want, got)
        }
        time.Sleep(100 * time.Millisecond)
    }
}

func awaitEvent(t *testing.T, m base.Membership, typ base.EventType, name string, timeout time.Duration) {
    t.Helper()
    deadline := time.After(timeout)
    for {
        select {
        case ev, ok := <-m.Events():
            if !ok { t.Fatalf("events closed before %s %s", typ, name) }
            if ev.Type == typ && ev.Member.Name == name { return }
        case <-deadline:
            t.Fatalf("no %s event for %s", typ, name)
        }
    }
}
