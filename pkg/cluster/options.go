package cluster

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/membership"
    "github.com/amirimatin/go-erosion/pkg/transport"
)

// DefaultMaxHealthScore is the health score at which a node reports itself
// unhealthy.
const DefaultMaxHealthScore = 3

// Options carries dependency-injected components used to assemble a Node.
// Instances are typically produced from bootstrap.Config.
type Options struct {
    // Name is the local node name; defaults to Membership.Local().Name.
    Name       string
    // Engine labels the membership engine in Status.
    Engine     string
    // Membership implementation (required), already bound to its address.
    Membership membership.Membership
    // Discovery provides seed nodes to join; nil means start alone.
    Discovery  discovery.Discovery
    // Optional management endpoint (status/members/healthz/metrics).
    RPCServer  transport.RPCServer
    // MaxHealthScore marks the node unhealthy once reached; 0 means
    // DefaultMaxHealthScore.
    MaxHealthScore int
    // LeaveTimeout bounds a graceful leave on Stop for engines that support it.
    LeaveTimeout time.Duration
    // Logger is used to report operational messages; nil means log.Default().
    Logger     *log.Logger
}

// Validate performs a minimal validation of Options. It does not start any
// network activity and is safe to call before New.
func (o Options) Validate() error {
    if o.Membership == nil { return ErrNoMembership }
    if o.MaxHealthScore < 0 { return errors.New("cluster: negative MaxHealthScore") }
    if o.LeaveTimeout < 0 { return errors.New("cluster: negative LeaveTimeout") }
    return nil
}
