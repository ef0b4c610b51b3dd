// Package etcd discovers seeds from an etcd key prefix. Each node is stored
// as <prefix>/<name> with its membership address (host:port) as the value,
// optionally attached to a lease so crashed nodes disappear on their own.
package etcd

import (
    "context"
    "errors"
    "fmt"
    "log"
    "strings"
    "sync"
    "time"

    "go.etcd.io/etcd/api/v3/mvccpb"
    clientv3 "go.etcd.io/etcd/client/v3"

    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
)

// DefaultPrefix is the key prefix used when Options.Prefix is empty.
const DefaultPrefix = "/erosion/members"

// minLeaseTTL is the smallest TTL etcd grants.
const minLeaseTTL = 5 * time.Second

// Options configures etcd discovery. Either Client or Endpoints must be set.
type Options struct {
    Client    *clientv3.Client
    Endpoints []string
    Prefix    string
    // Timeout bounds each etcd request; if zero, defaults to 3s.
    Timeout time.Duration
    Logger  *log.Logger
}

// Discovery lists seeds under a prefix and can register the local node.
type Discovery struct {
    cli     *clientv3.Client
    owned   bool
    prefix  string
    timeout time.Duration
    logger  *log.Logger

    mu    sync.Mutex
    cache []discovery.Seed
}

var (
    _ discovery.Discovery = (*Discovery)(nil)
    _ discovery.Watcher   = (*Discovery)(nil)
)

func New(opts Options) (*Discovery, error) {
    if opts.Timeout <= 0 { opts.Timeout = 3 * time.Second }
    if opts.Logger == nil { opts.Logger = log.Default() }
    prefix := strings.TrimRight(opts.Prefix, "/")
    if prefix == "" { prefix = DefaultPrefix }

    d := &Discovery{cli: opts.Client, prefix: prefix, timeout: opts.Timeout, logger: opts.Logger}
    if d.cli == nil {
        if len(opts.Endpoints) == 0 { return nil, errors.New("discovery/etcd: no client or endpoints") }
        cli, err := clientv3.New(clientv3.Config{Endpoints: opts.Endpoints, DialTimeout: opts.Timeout})
        if err != nil { return nil, fmt.Errorf("discovery/etcd: connect %v: %w", opts.Endpoints, err) }
        d.cli = cli
        d.owned = true
    }
    return d, nil
}

func (d *Discovery) key(name string) string { return d.prefix + "/" + name }

// Seeds lists registered nodes. When etcd is unreachable the last successful
// listing is returned.
func (d *Discovery) Seeds() []discovery.Seed {
    ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
    defer cancel()
    resp, err := d.cli.Get(ctx, d.prefix+"/", clientv3.WithPrefix())
    d.mu.Lock()
    defer d.mu.Unlock()
    if err != nil {
        logutil.Warnf(d.logger, "discovery/etcd: list %s: %v", d.prefix, err)
        return append([]discovery.Seed(nil), d.cache...)
    }
    d.cache = seedsFromKVs(d.prefix, resp.Kvs, d.logger)
    return append([]discovery.Seed(nil), d.cache...)
}

// Register publishes self under the prefix, attached to a lease of ttl that
// is kept alive until ctx ends or the returned function is called. The
// returned function revokes the lease.
func (d *Discovery) Register(ctx context.Context, self discovery.Seed, ttl time.Duration) (func(context.Context) error, error) {
    if ttl < minLeaseTTL { ttl = minLeaseTTL }
    rctx, cancel := context.WithTimeout(ctx, d.timeout)
    defer cancel()
    lease, err := d.cli.Grant(rctx, int64(ttl/time.Second))
    if err != nil { return nil, fmt.Errorf("discovery/etcd: grant lease: %w", err) }
    if _, err := d.cli.Put(rctx, d.key(self.Name), self.Addr, clientv3.WithLease(lease.ID)); err != nil {
        return nil, fmt.Errorf("discovery/etcd: register %s: %w", self, err)
    }

    kctx, stop := context.WithCancel(ctx)
    ka, err := d.cli.KeepAlive(kctx, lease.ID)
    if err != nil {
        stop()
        return nil, fmt.Errorf("discovery/etcd: keepalive: %w", err)
    }
    go func() {
        for range ka {
        }
        if kctx.Err() == nil {
            logutil.Warnf(d.logger, "discovery/etcd: keepalive for %s ended", self.Name)
        }
    }()
    logutil.Infof(d.logger, "discovery/etcd: registered %s (lease %x, ttl %s)", self, lease.ID, ttl)

    return func(ctx context.Context) error {
        stop()
        rctx, cancel := context.WithTimeout(ctx, d.timeout)
        defer cancel()
        _, err := d.cli.Revoke(rctx, lease.ID)
        return err
    }, nil
}

// Watch emits the full seed list on every change under the prefix until ctx
// ends. The first value is the current listing.
func (d *Discovery) Watch(ctx context.Context) (<-chan []discovery.Seed, error) {
    gctx, cancel := context.WithTimeout(ctx, d.timeout)
    resp, err := d.cli.Get(gctx, d.prefix+"/", clientv3.WithPrefix())
    cancel()
    if err != nil { return nil, fmt.Errorf("discovery/etcd: list %s: %w", d.prefix, err) }

    kvs := make(map[string]*mvccpb.KeyValue, len(resp.Kvs))
    for _, kv := range resp.Kvs { kvs[string(kv.Key)] = kv }
    snapshot := func() []discovery.Seed {
        list := make([]*mvccpb.KeyValue, 0, len(kvs))
        for _, kv := range kvs { list = append(list, kv) }
        return seedsFromKVs(d.prefix, list, d.logger)
    }

    out := make(chan []discovery.Seed, 1)
    out <- snapshot()
    wch := d.cli.Watch(ctx, d.prefix+"/", clientv3.WithPrefix(), clientv3.WithRev(resp.Header.Revision+1))
    go func() {
        defer close(out)
        for wr := range wch {
            if err := wr.Err(); err != nil {
                logutil.Warnf(d.logger, "discovery/etcd: watch %s: %v", d.prefix, err)
                continue
            }
            for _, ev := range wr.Events {
                switch ev.Type {
                case mvccpb.PUT:
                    kvs[string(ev.Kv.Key)] = ev.Kv
                case mvccpb.DELETE:
                    delete(kvs, string(ev.Kv.Key))
                }
            }
            select {
            case out <- snapshot():
            case <-ctx.Done():
                return
            }
        }
    }()
    return out, nil
}

// Close releases the etcd client if New created it.
func (d *Discovery) Close() error {
    if d.owned { return d.cli.Close() }
    return nil
}

func seedsFromKVs(prefix string, kvs []*mvccpb.KeyValue, logger *log.Logger) []discovery.Seed {
    out := make([]discovery.Seed, 0, len(kvs))
    for _, kv := range kvs {
        name := strings.TrimPrefix(string(kv.Key), prefix+"/")
        if name == "" || strings.Contains(name, "/") { continue }
        seed, err := discovery.ParseSeed(name + "=" + string(kv.Value))
        if err != nil {
            logutil.Warnf(logger, "discovery/etcd: skip %s: %v", kv.Key, err)
            continue
        }
        out = append(out, seed)
    }
    return discovery.Normalize(out)
}
