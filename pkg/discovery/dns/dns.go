package dns

import (
    "context"
    "log"
    "net"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
)

// Options configures DNS-based discovery.
//
// Node names are taken from DNS: the first label of an SRV target or of a
// plain host name is used as the seed's node name, so hosts must be named
// after the node running on them (node1.example.com runs "node1").
type Options struct {
    // Names are SRV records, host names or explicit name=host:port seeds.
    // Examples: "_erosion._udp.example.com" (SRV), "node1.example.com" (A/AAAA).
    Names []string

    // Port used for plain host names (no port info in an A/AAAA answer).
    Port int

    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration

    // Resolver optionally overrides the DNS resolver used.
    Resolver *net.Resolver

    Logger *log.Logger
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    cache []discovery.Seed
}

// New returns a DNS-backed discovery that resolves SRV and A/AAAA names
// and caches results for the Refresh duration.
func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Port == 0 { opts.Port = config.DefaultPort }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &impl{opts: opts}
}

func (d *impl) Seeds() []discovery.Seed {
    d.mu.Lock()
    defer d.mu.Unlock()
    if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
        return append([]discovery.Seed(nil), d.cache...)
    }
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    d.cache = d.resolveAll(ctx)
    d.last = time.Now()
    return append([]discovery.Seed(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []discovery.Seed {
    var out []discovery.Seed
    for _, name := range d.opts.Names {
        name = strings.TrimSpace(name)
        if name == "" { continue }
        if strings.Contains(name, "=") {
            s, err := discovery.ParseSeed(name)
            if err != nil {
                logutil.Warnf(d.opts.Logger, "discovery/dns: %v", err)
                continue
            }
            out = append(out, s)
            continue
        }
        if strings.HasPrefix(name, "_") && strings.Contains(name, "._") {
            if recs := d.lookupSRV(ctx, name); len(recs) > 0 {
                out = append(out, recs...)
                continue
            }
        }
        if s, ok := d.lookupHost(ctx, name); ok { out = append(out, s) }
    }
    return discovery.Normalize(out)
}

func (d *impl) lookupSRV(ctx context.Context, fqdn string) []discovery.Seed {
    svc, proto, domain := parseSRVName(fqdn)
    if svc == "" || proto == "" || domain == "" { return nil }
    _, addrs, err := d.opts.Resolver.LookupSRV(ctx, svc, proto, domain)
    if err != nil {
        logutil.Warnf(d.opts.Logger, "discovery/dns: SRV %s: %v", fqdn, err)
        return nil
    }
    var out []discovery.Seed
    for _, a := range addrs {
        host := strings.TrimSuffix(a.Target, ".")
        out = append(out, discovery.Seed{Name: nodeName(host), Addr: net.JoinHostPort(host, strconv.Itoa(int(a.Port)))})
    }
    return out
}

// lookupHost checks that host resolves; the address stays a host name so a
// later Resolve picks up DNS changes.
func (d *impl) lookupHost(ctx context.Context, host string) (discovery.Seed, bool) {
    if _, err := d.opts.Resolver.LookupHost(ctx, host); err != nil {
        logutil.Warnf(d.opts.Logger, "discovery/dns: %s: %v", host, err)
        return discovery.Seed{}, false
    }
    return discovery.Seed{Name: nodeName(host), Addr: net.JoinHostPort(host, strconv.Itoa(d.opts.Port))}, true
}

// nodeName is the first label of a host name ("node1.example.com" -> "node1").
// IP literals are used whole.
func nodeName(host string) string {
    if net.ParseIP(host) != nil { return host }
    if i := strings.IndexByte(host, '.'); i > 0 { return host[:i] }
    return host
}

func parseSRVName(fqdn string) (service, proto, name string) {
    // Expect pattern: _service._proto.name
    parts := strings.SplitN(fqdn, ".", 3)
    if len(parts) < 3 { return "", "", "" }
    s := strings.TrimPrefix(parts[0], "_")
    p := strings.TrimPrefix(parts[1], "_")
    n := parts[2]
    return s, p, n
}
