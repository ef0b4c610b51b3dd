package bootstrap

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "log"
    "net"
    "net/netip"
    "strconv"
    "strings"
    "time"

    "github.com/cenkalti/backoff/v4"
    "github.com/google/uuid"

    "github.com/amirimatin/go-erosion/pkg/cluster"
    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/discovery"
    dDNS "github.com/amirimatin/go-erosion/pkg/discovery/dns"
    dEtcd "github.com/amirimatin/go-erosion/pkg/discovery/etcd"
    dFile "github.com/amirimatin/go-erosion/pkg/discovery/file"
    dStatic "github.com/amirimatin/go-erosion/pkg/discovery/static"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
    "github.com/amirimatin/go-erosion/pkg/membership"
    ml "github.com/amirimatin/go-erosion/pkg/membership/memberlist"
    "github.com/amirimatin/go-erosion/pkg/membership/swim"
    tlsx "github.com/amirimatin/go-erosion/pkg/security/tlsconfig"
    "github.com/amirimatin/go-erosion/pkg/transport"
    mgmtgrpc "github.com/amirimatin/go-erosion/pkg/transport/grpc"
    "github.com/amirimatin/go-erosion/pkg/transport/httpjson"
)

const (
    EngineSwim       = "swim"
    EngineMemberlist = "memberlist"
)

// bindRetryDelay is the pause between bind attempts on successive ports.
const bindRetryDelay = 50 * time.Millisecond

// Config defines high-level inputs to assemble a node with sensible defaults.
// Applications embed the node by providing this structure and calling
// Build/Run.
type Config struct {
    // Identity and addresses
    Name      string // empty → "node-<random>"
    Bind      string // membership bind host:port; empty → ":7201"
    Advertise string // optional advertise host:port (memberlist, etcd registration); required when no interface address is routable
    // BindRetries is how many following ports are tried when Bind is taken.
    BindRetries uint64

    // Engine selects the failure detector: "swim" (default) or "memberlist".
    Engine string
    // Preset selects the tuning profile: "lan" (default), "wan" or "local".
    Preset string
    // Optional overrides of the preset probe timing.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration

    // Management API (status/members/healthz/metrics)
    MgmtAddr  string // host:port; empty disables the endpoint
    MgmtProto string // "http" (default) or "grpc"

    // Discovery settings
    DiscoveryKind string        // "static" (default), "dns", "file" or "etcd"
    SeedsCSV      string        // kind=static: name=host:port,...
    DNSNamesCSV   string        // kind=dns
    DNSPort       int           // kind=dns (A/AAAA)
    DiscRefresh   time.Duration // cache/refresh duration for discovery
    FilePath      string        // kind=file
    FileEnv       string        // kind=file
    EtcdEndpoints string        // kind=etcd: comma-separated endpoints
    EtcdPrefix    string        // kind=etcd
    // EtcdRegisterTTL > 0 registers this node under the etcd prefix with a
    // lease of that TTL for as long as it runs.
    EtcdRegisterTTL time.Duration

    // TLS (optional) for the management API
    TLSEnable     bool
    TLSCA         string
    TLSCert       string
    TLSKey        string
    TLSServerName string
    TLSSkipVerify bool

    // Logger (optional). If nil, log.Default() is used.
    Logger *log.Logger
}

// DefaultName returns a random node name.
func DefaultName() string { return "node-" + strings.SplitN(uuid.NewString(), "-", 2)[0] }

func (cfg *Config) defaults() {
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    if cfg.Name == "" { cfg.Name = DefaultName() }
    if cfg.Bind == "" { cfg.Bind = ":" + strconv.Itoa(config.DefaultPort) }
    if cfg.Engine == "" { cfg.Engine = EngineSwim }
}

// MembershipConfig resolves the preset and overrides into a config.Config.
func (cfg Config) MembershipConfig() (config.Config, error) {
    c, err := config.Preset(cfg.Preset, cfg.Name)
    if err != nil { return config.Config{}, err }
    c.BindAddr = cfg.Bind
    if cfg.ProbeInterval > 0 { c.ProbeInterval = cfg.ProbeInterval }
    if cfg.ProbeTimeout > 0 { c.ProbeTimeout = cfg.ProbeTimeout }
    return c, c.Validate()
}

// Build assembles a cluster.Node from Config without starting it. The
// membership socket is bound here, so address conflicts surface early.
func Build(cfg Config) (*cluster.Node, error) {
    cfg.defaults()
    mc, err := cfg.MembershipConfig()
    if err != nil { return nil, err }

    disc, err := buildDiscovery(cfg)
    if err != nil { return nil, err }

    mem, err := bindEngine(cfg, mc)
    if err != nil {
        closeDiscovery(disc)
        return nil, err
    }

    srv, err := buildServer(cfg)
    if err != nil {
        _ = mem.Stop()
        closeDiscovery(disc)
        return nil, err
    }

    n, err := cluster.New(cluster.Options{
        Name:       cfg.Name,
        Engine:     cfg.Engine,
        Membership: mem,
        Discovery:  disc,
        RPCServer:  srv,
        Logger:     cfg.Logger,
    })
    if err != nil {
        _ = mem.Stop()
        closeDiscovery(disc)
        return nil, err
    }
    if ed, ok := disc.(*dEtcd.Discovery); ok {
        n.OnStop(func(context.Context) error { return ed.Close() })
    }
    return n, nil
}

// Run builds and starts the node, returning it for lifecycle control. The
// caller is responsible for calling Close() when finished.
func Run(ctx context.Context, cfg Config) (*cluster.Node, error) {
    cfg.defaults()
    n, err := Build(cfg)
    if err != nil { return nil, err }
    if err := n.Start(ctx); err != nil {
        _ = n.Close()
        return nil, err
    }
    if err := register(ctx, cfg, n); err != nil {
        _ = n.Close()
        return nil, err
    }
    return n, nil
}

// register publishes this node in etcd when requested, and withdraws it on Stop.
func register(ctx context.Context, cfg Config, n *cluster.Node) error {
    ed, ok := n.Discovery().(*dEtcd.Discovery)
    if !ok || cfg.EtcdRegisterTTL <= 0 { return nil }
    st, err := n.Status(ctx)
    if err != nil { return err }
    addr, err := advertiseAddr(cfg, st.Addr)
    if err != nil { return err }
    deregister, err := ed.Register(ctx, discovery.Seed{Name: cfg.Name, Addr: addr}, cfg.EtcdRegisterTTL)
    if err != nil { return err }
    n.OnStop(deregister)
    logutil.Infof(cfg.Logger, "registered %s=%s in etcd", cfg.Name, addr)
    return nil
}

// interfaceAddrs lists local interface addresses; replaced in tests.
var interfaceAddrs = net.InterfaceAddrs

// advertiseAddr returns the address peers should use to reach a node bound
// at bound. Advertise wins; a wildcard host is replaced by the first global
// unicast interface address, IPv4 preferred.
func advertiseAddr(cfg Config, bound string) (string, error) {
    if cfg.Advertise != "" { return cfg.Advertise, nil }
    ap, err := netip.ParseAddrPort(bound)
    if err != nil { return "", fmt.Errorf("bootstrap: advertise address from %q: %w", bound, err) }
    if !ap.Addr().Unmap().IsUnspecified() { return bound, nil }
    ip, err := routableAddr()
    if err != nil { return "", fmt.Errorf("bootstrap: bound to wildcard %s and %w; set Advertise (--advertise)", bound, err) }
    return netip.AddrPortFrom(ip, ap.Port()).String(), nil
}

func routableAddr() (netip.Addr, error) {
    addrs, err := interfaceAddrs()
    if err != nil { return netip.Addr{}, fmt.Errorf("list interfaces: %w", err) }
    var v6 netip.Addr
    for _, a := range addrs {
        pfx, err := netip.ParsePrefix(a.String())
        if err != nil { continue }
        ip := pfx.Addr().Unmap()
        // excludes loopback, link-local and unspecified
        if !ip.IsGlobalUnicast() { continue }
        if ip.Is4() { return ip, nil }
        if !v6.IsValid() { v6 = ip }
    }
    if v6.IsValid() { return v6, nil }
    return netip.Addr{}, errors.New("no routable interface address")
}

func bindEngine(cfg Config, mc config.Config) (membership.Membership, error) {
    switch cfg.Engine {
    case EngineSwim:
        return BindWithRetry(mc, cfg.BindRetries, cfg.Logger, func(c config.Config) (membership.Membership, error) {
            return swim.Bind(c, swim.Options{Logger: cfg.Logger})
        })
    case EngineMemberlist:
        return BindWithRetry(mc, cfg.BindRetries, cfg.Logger, func(c config.Config) (membership.Membership, error) {
            return ml.Bind(c, ml.Options{Advertise: cfg.Advertise, Logger: cfg.Logger})
        })
    default:
        return nil, fmt.Errorf("bootstrap: unknown engine %q", cfg.Engine)
    }
}

// BindWithRetry calls bind with cfg and, while the address is taken, with the
// following ports, up to retries extra attempts. Port 0 is never retried.
func BindWithRetry[M any](cfg config.Config, retries uint64, logger *log.Logger, bind func(config.Config) (M, error)) (M, error) {
    var zero M
    if logger == nil { logger = log.Default() }
    host, portStr, err := net.SplitHostPort(cfg.BindAddr)
    if err != nil { return zero, fmt.Errorf("bootstrap: bind address %q: %w", cfg.BindAddr, err) }
    port, err := strconv.Atoi(portStr)
    if err != nil { return zero, fmt.Errorf("bootstrap: bind port %q: %w", portStr, err) }
    if port == 0 { retries = 0 }

    var (
        out     M
        attempt int
    )
    op := func() error {
        c := cfg
        p := port + attempt
        attempt++
        if p > 65535 { return backoff.Permanent(fmt.Errorf("bootstrap: no free port after %d", port)) }
        c.BindAddr = net.JoinHostPort(host, strconv.Itoa(p))
        m, err := bind(c)
        if err == nil {
            out = m
            if p != port { logutil.Warnf(logger, "bind %s taken, using %s", cfg.BindAddr, c.BindAddr) }
            return nil
        }
        var be *transport.BindError
        if !errors.As(err, &be) { return backoff.Permanent(err) }
        logutil.Debugf(logger, "bind attempt %d: %v", attempt, err)
        return err
    }
    b := backoff.WithMaxRetries(backoff.NewConstantBackOff(bindRetryDelay), retries)
    if err := backoff.Retry(op, b); err != nil { return zero, err }
    return out, nil
}

func buildDiscovery(cfg Config) (discovery.Discovery, error) {
    switch cfg.DiscoveryKind {
    case "", "static":
        return dStatic.Parse(cfg.SeedsCSV)
    case "dns":
        opts := dDNS.Options{Names: splitCSV(cfg.DNSNamesCSV), Port: cfg.DNSPort, Refresh: cfg.DiscRefresh, Logger: cfg.Logger}
        return dDNS.New(opts), nil
    case "file":
        opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv, Refresh: cfg.DiscRefresh, Logger: cfg.Logger}
        return dFile.New(opts), nil
    case "etcd":
        return dEtcd.New(dEtcd.Options{Endpoints: splitCSV(cfg.EtcdEndpoints), Prefix: cfg.EtcdPrefix, Logger: cfg.Logger})
    default:
        return nil, fmt.Errorf("bootstrap: unknown discovery kind %q", cfg.DiscoveryKind)
    }
}

func closeDiscovery(d discovery.Discovery) {
    if ed, ok := d.(*dEtcd.Discovery); ok { _ = ed.Close() }
}

func buildServer(cfg Config) (transport.RPCServer, error) {
    if cfg.MgmtAddr == "" { return nil, nil }
    srvTLS, err := ServerTLS(cfg)
    if err != nil { return nil, err }
    switch cfg.MgmtProto {
    case "", "http":
        s := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        return s, nil
    case "grpc":
        s := mgmtgrpc.NewServer(cfg.MgmtAddr)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        return s, nil
    default:
        return nil, fmt.Errorf("bootstrap: unknown management protocol %q", cfg.MgmtProto)
    }
}

func (cfg Config) tlsOptions() tlsx.Options {
    return tlsx.Options{Enable: cfg.TLSEnable, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
}

// ServerTLS returns the hot-reloading management server TLS config, or nil
// when TLS is disabled.
func ServerTLS(cfg Config) (*tls.Config, error) { return cfg.tlsOptions().ServerHotReload() }

// ClientTLS returns the hot-reloading management client TLS config, or nil
// when TLS is disabled.
func ClientTLS(cfg Config) (*tls.Config, error) { return cfg.tlsOptions().ClientHotReload() }

// NewClient returns a management client for cfg.MgmtProto.
func NewClient(cfg Config, timeout time.Duration) (transport.RPCClient, error) {
    cliTLS, err := ClientTLS(cfg)
    if err != nil { return nil, err }
    switch cfg.MgmtProto {
    case "", "http":
        c := httpjson.NewClient(timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        return c, nil
    case "grpc":
        c := mgmtgrpc.NewClient(timeout)
        if cliTLS != nil { c.UseTLS(cliTLS) }
        return c, nil
    default:
        return nil, fmt.Errorf("bootstrap: unknown management protocol %q", cfg.MgmtProto)
    }
}

func splitCSV(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}
