package config

import (
    "errors"
    "fmt"
    "net"
    "strings"
    "time"
)

// DefaultPort is the membership port used by every preset.
const DefaultPort = 7201

// Config carries the tunables of a membership engine. It is treated as
// immutable once handed to an engine.
type Config struct {
    // Name is the node identity. Pings carry the target name so a node can
    // reject probes meant for a previous occupant of its address.
    Name string

    // BindAddr is the UDP host:port to listen on.
    BindAddr string

    // TCPTimeout bounds the TCP connection used for a full state sync.
    TCPTimeout time.Duration

    // IndirectChecks is the number of peers asked to probe a target on our
    // behalf when a direct probe fails.
    IndirectChecks int

    // RetransmitMult scales gossip retransmissions:
    //   retransmits = RetransmitMult * log(N+1)
    RetransmitMult int

    // SuspicionMult scales how long a member stays suspect before it is
    // declared dead:
    //   suspicion_timeout = SuspicionMult * log(N+1) * ProbeInterval
    SuspicionMult int

    // PushPullInterval is the period between complete state syncs. Zero
    // disables push/pull.
    PushPullInterval time.Duration

    // ProbeInterval is the period between probe rounds. Zero disables probing.
    ProbeInterval time.Duration

    // ProbeTimeout is how long to wait for an ack before a probe is
    // considered failed. It should be around the 99th percentile RTT.
    ProbeTimeout time.Duration

    // GossipInterval is the period between gossip rounds that could not
    // piggyback on probes. Zero disables standalone gossip.
    GossipInterval time.Duration

    // GossipNodes is the fan-out of each gossip round.
    GossipNodes int

    // EnableCompression compresses gossip payloads.
    EnableCompression bool
}

// LAN returns conservative values suitable for most LAN environments. They
// favour convergence over bandwidth.
func LAN(name string) Config {
    return Config{
        Name:              name,
        BindAddr:          fmt.Sprintf("0.0.0.0:%d", DefaultPort),
        TCPTimeout:        10 * time.Second,
        IndirectChecks:    3,
        RetransmitMult:    4,
        SuspicionMult:     5,
        PushPullInterval:  30 * time.Second,
        ProbeInterval:     1 * time.Second,
        ProbeTimeout:      500 * time.Millisecond,
        GossipInterval:    200 * time.Millisecond,
        GossipNodes:       3,
        EnableCompression: true,
    }
}

// WAN is LAN tuned for higher latency links.
func WAN(name string) Config {
    c := LAN(name)
    c.TCPTimeout = 30 * time.Second
    c.SuspicionMult = 6
    c.PushPullInterval = 60 * time.Second
    c.ProbeInterval = 5 * time.Second
    c.ProbeTimeout = 3 * time.Second
    c.GossipInterval = 500 * time.Millisecond
    c.GossipNodes = 4
    return c
}

// Local is LAN tuned for loopback clusters.
func Local(name string) Config {
    c := LAN(name)
    c.TCPTimeout = 1 * time.Second
    c.IndirectChecks = 1
    c.RetransmitMult = 2
    c.SuspicionMult = 3
    c.PushPullInterval = 15 * time.Second
    c.ProbeTimeout = 200 * time.Millisecond
    c.GossipInterval = 100 * time.Millisecond
    return c
}

// Preset returns the named preset ("lan", "wan" or "local").
func Preset(kind, name string) (Config, error) {
    switch strings.ToLower(strings.TrimSpace(kind)) {
    case "", "lan":
        return LAN(name), nil
    case "wan":
        return WAN(name), nil
    case "local":
        return Local(name), nil
    default:
        return Config{}, fmt.Errorf("config: unknown preset %q", kind)
    }
}

// Validate checks the load-bearing fields. The SWIM extension knobs are only
// checked for negative values.
func (c Config) Validate() error {
    if c.Name == "" {
        return errors.New("config: empty Name")
    }
    if len(c.Name) > 255 {
        return fmt.Errorf("config: Name is %d bytes, limit is 255", len(c.Name))
    }
    if c.BindAddr == "" {
        return errors.New("config: empty BindAddr")
    }
    if _, _, err := net.SplitHostPort(c.BindAddr); err != nil {
        return fmt.Errorf("config: invalid BindAddr %q: %w", c.BindAddr, err)
    }
    if c.ProbeInterval < 0 || c.ProbeTimeout < 0 {
        return errors.New("config: negative probe interval/timeout")
    }
    if c.ProbeInterval > 0 && c.ProbeTimeout <= 0 {
        return errors.New("config: ProbeTimeout must be positive when probing is enabled")
    }
    if c.IndirectChecks < 0 || c.RetransmitMult < 0 || c.SuspicionMult < 0 || c.GossipNodes < 0 {
        return errors.New("config: negative multiplier or count")
    }
    if c.TCPTimeout < 0 || c.PushPullInterval < 0 || c.GossipInterval < 0 {
        return errors.New("config: negative interval")
    }
    return nil
}
