package discovery

import (
    "context"
    "fmt"
    "net"
    "net/netip"
    "sort"
    "strings"
)

// Seed is a peer to join: its node name and membership address (host:port).
// The name matters because probes are addressed to a name, not just a socket.
type Seed struct {
    Name string `json:"name"`
    Addr string `json:"addr"`
}

func (s Seed) String() string { return s.Name + "=" + s.Addr }

// Discovery abstracts how seed nodes are provided.
type Discovery interface {
    Seeds() []Seed
}

// Watcher is implemented by backends that push changes. Watch emits the full
// seed list on every change until ctx ends, then closes the channel.
type Watcher interface {
    Watch(ctx context.Context) (<-chan []Seed, error)
}

// ParseSeed parses "name=host:port".
func ParseSeed(s string) (Seed, error) {
    s = strings.TrimSpace(s)
    name, addr, ok := strings.Cut(s, "=")
    name, addr = strings.TrimSpace(name), strings.TrimSpace(addr)
    if !ok || name == "" || addr == "" {
        return Seed{}, fmt.Errorf("discovery: seed %q: want name=host:port", s)
    }
    if _, _, err := net.SplitHostPort(addr); err != nil {
        return Seed{}, fmt.Errorf("discovery: seed %q: %w", s, err)
    }
    return Seed{Name: name, Addr: addr}, nil
}

// ParseList parses a comma-separated list of seeds, skipping empty entries.
func ParseList(csv string) ([]Seed, error) {
    var out []Seed
    for _, p := range strings.Split(csv, ",") {
        if strings.TrimSpace(p) == "" { continue }
        s, err := ParseSeed(p)
        if err != nil { return nil, err }
        out = append(out, s)
    }
    return out, nil
}

// Normalize de-duplicates seeds and sorts them by name then address.
func Normalize(seeds []Seed) []Seed {
    set := make(map[Seed]struct{}, len(seeds))
    out := make([]Seed, 0, len(seeds))
    for _, s := range seeds {
        if _, dup := set[s]; dup { continue }
        set[s] = struct{}{}
        out = append(out, s)
    }
    sort.Slice(out, func(i, j int) bool {
        if out[i].Name != out[j].Name { return out[i].Name < out[j].Name }
        return out[i].Addr < out[j].Addr
    })
    return out
}

// Resolve turns a seed address into a UDP endpoint, looking up host names.
func Resolve(s Seed) (netip.AddrPort, error) {
    ua, err := net.ResolveUDPAddr("udp", s.Addr)
    if err != nil { return netip.AddrPort{}, fmt.Errorf("discovery: resolve %s: %w", s, err) }
    ap := ua.AddrPort()
    return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}
