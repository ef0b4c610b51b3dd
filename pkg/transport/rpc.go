package transport

import "context"

// StatusFunc returns a JSON-encoded status payload for management /status.
// Using []byte avoids import cycles on cluster types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// MembersFunc returns the JSON-encoded local membership view.
type MembersFunc func(ctx context.Context) ([]byte, error)

// HealthFunc reports whether the node considers itself healthy.
type HealthFunc func() bool

// Handlers are the callbacks a management server exposes. Nil handlers are
// answered with "not supported".
type Handlers struct {
    Status  StatusFunc
    Members MembersFunc
    Healthy HealthFunc
}

// RPCServer exposes management endpoints (status, members, health) for
// operators and tooling. It is separate from the membership datagram path.
type RPCServer interface {
    Start(ctx context.Context, h Handlers) error
    // Addr is the listening address once started, else the configured bind.
    Addr() string
    Stop(ctx context.Context) error
}

// RPCClient queries another node's management endpoint using the matching
// protocol (HTTP/JSON or gRPC JSON codec).
type RPCClient interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
    GetMembers(ctx context.Context, addr string) ([]byte, error)
}
