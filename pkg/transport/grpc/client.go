package grpc

import (
    "context"
    "crypto/tls"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"

    "github.com/amirimatin/go-erosion/pkg/transport"
)

// Client queries the management service of other nodes. Connections are
// cached per address until Close.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config

    mu    sync.Mutex
    conns map[string]*grpc.ClientConn
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{timeout: timeout, conns: make(map[string]*grpc.ClientConn)}
}

// UseTLS sets TLS config for the client.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dial(target string) (*grpc.ClientConn, error) {
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodec{}.Name())),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.NewClient(target, opts...)
}

func (c *Client) conn(addr string) (*grpc.ClientConn, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if cc, ok := c.conns[addr]; ok { return cc, nil }
    cc, err := c.dial(addr)
    if err != nil { return nil, err }
    c.conns[addr] = cc
    return cc, nil
}

func (c *Client) invoke(ctx context.Context, addr, method string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.conn(addr)
    if err != nil { return nil, err }
    out := new(blob)
    if err := cc.Invoke(cctx, "/"+ServiceName+"/"+method, &empty{}, out, grpc.WaitForReady(true)); err != nil { return nil, err }
    return out.Data, nil
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    return c.invoke(ctx, addr, "GetStatus")
}

func (c *Client) GetMembers(ctx context.Context, addr string) ([]byte, error) {
    return c.invoke(ctx, addr, "GetMembers")
}

// Health runs a grpc.health.v1 check against addr for the management service.
func (c *Client) Health(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.conn(addr)
    if err != nil { return healthpb.HealthCheckResponse_UNKNOWN, err }
    // health messages stay protobuf so standard probes interoperate
    resp, err := healthpb.NewHealthClient(cc).Check(cctx, &healthpb.HealthCheckRequest{Service: ServiceName},
        grpc.CallContentSubtype("proto"), grpc.WaitForReady(true))
    if err != nil { return healthpb.HealthCheckResponse_UNKNOWN, err }
    return resp.GetStatus(), nil
}

// Close closes all cached connections.
func (c *Client) Close() error {
    c.mu.Lock()
    defer c.mu.Unlock()
    for addr, cc := range c.conns {
        _ = cc.Close()
        delete(c.conns, addr)
    }
    return nil
}

var _ transport.RPCClient = (*Client)(nil)
