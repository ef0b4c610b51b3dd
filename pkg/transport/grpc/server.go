package grpc

import (
    "context"
    "crypto/tls"
    "fmt"
    "net"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/codes"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/health"
    healthpb "google.golang.org/grpc/health/grpc_health_v1"
    "google.golang.org/grpc/keepalive"
    "google.golang.org/grpc/status"

    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
    "github.com/amirimatin/go-erosion/pkg/observability/tracing"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

// ServiceName is the fully-qualified management service name.
const ServiceName = "erosion.v1.Management"

// healthInterval is how often the health service re-evaluates Handlers.Healthy.
const healthInterval = time.Second

// Server implements transport.RPCServer over gRPC. Management calls use the
// "json" content subtype; the standard grpc.health.v1 service stays protobuf
// and is driven by the node's health callback.
type Server struct {
    bind   string
    tlsCfg *tls.Config

    mu     sync.Mutex
    lis    net.Listener
    srv    *grpc.Server
    cancel context.CancelFunc
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over the JSON codec
type empty struct{}
type blob struct{ Data []byte `json:"data"` }

type managementServer interface {
    GetStatus(ctx context.Context, in *empty) (*blob, error)
    GetMembers(ctx context.Context, in *empty) (*blob, error)
}

type mgmtImpl struct{ h transport.Handlers }

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*blob, error) {
    return call(ctx, "status", m.h.Status)
}

func (m *mgmtImpl) GetMembers(ctx context.Context, _ *empty) (*blob, error) {
    return call(ctx, "members", m.h.Members)
}

func call(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) (*blob, error) {
    if fn == nil { return nil, status.Errorf(codes.Unimplemented, "%s not supported", name) }
    metrics.StatusRequests.WithLabelValues("grpc").Inc()
    ctx, end := tracing.StartSpan(ctx, "grpc."+name)
    defer end()
    b, err := fn(ctx)
    if err != nil { return nil, status.Errorf(codes.Internal, "%s: %v", name, err) }
    return &blob{Data: b}, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var managementServiceDesc = grpc.ServiceDesc{
    ServiceName: ServiceName,
    HandlerType: (*managementServer)(nil),
    Methods: []grpc.MethodDesc{
        {MethodName: "GetStatus", Handler: unaryHandler("GetStatus", managementServer.GetStatus)},
        {MethodName: "GetMembers", Handler: unaryHandler("GetMembers", managementServer.GetMembers)},
    },
}

func unaryHandler(method string, fn func(managementServer, context.Context, *empty) (*blob, error)) grpc.MethodHandler {
    full := "/" + ServiceName + "/" + method
    return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
        in := new(empty)
        if err := dec(in); err != nil { return nil, err }
        if interceptor == nil { return fn(srv.(managementServer), ctx, in) }
        info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
        handler := func(ctx context.Context, req any) (any, error) {
            return fn(srv.(managementServer), ctx, req.(*empty))
        }
        return interceptor(ctx, in, info, handler)
    }
}

func (s *Server) Start(ctx context.Context, h transport.Handlers) error {
    lis, err := net.Listen("tcp", s.bind)
    if err != nil { return fmt.Errorf("grpc: listen %s: %w", s.bind, err) }
    opts := []grpc.ServerOption{
        grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}),
        grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}),
    }
    if s.tlsCfg != nil { opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg))) }
    srv := grpc.NewServer(opts...)
    hs := health.NewServer()
    healthpb.RegisterHealthServer(srv, hs)
    srv.RegisterService(&managementServiceDesc, &mgmtImpl{h: h})

    ctx, cancel := context.WithCancel(ctx)
    s.mu.Lock()
    s.lis, s.srv, s.cancel = lis, srv, cancel
    s.mu.Unlock()

    go s.watchHealth(ctx, hs, h.Healthy)
    go func() {
        <-ctx.Done()
        stopCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
        defer c()
        _ = s.Stop(stopCtx)
    }()
    go func() { _ = srv.Serve(lis) }()
    return nil
}

// watchHealth mirrors the node's health onto the grpc.health.v1 service for
// both the overall server ("") and the management service.
func (s *Server) watchHealth(ctx context.Context, hs *health.Server, healthy transport.HealthFunc) {
    set := func() {
        st := healthpb.HealthCheckResponse_SERVING
        if healthy != nil && !healthy() { st = healthpb.HealthCheckResponse_NOT_SERVING }
        hs.SetServingStatus("", st)
        hs.SetServingStatus(ServiceName, st)
    }
    set()
    t := time.NewTicker(healthInterval)
    defer t.Stop()
    for {
        select {
        case <-ctx.Done():
            hs.Shutdown()
            return
        case <-t.C:
            set()
        }
    }
}

func (s *Server) Addr() string {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.lis != nil { return s.lis.Addr().String() }
    return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
    s.mu.Lock()
    srv, cancel := s.srv, s.cancel
    s.srv, s.cancel = nil, nil
    s.mu.Unlock()
    if srv == nil { return nil }
    cancel()
    ch := make(chan struct{})
    go func() { srv.GracefulStop(); close(ch) }()
    select {
    case <-ch:
    case <-ctx.Done():
        srv.Stop()
    }
    return nil
}

var _ transport.RPCServer = (*Server)(nil)
