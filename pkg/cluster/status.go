package cluster

import (
    "github.com/amirimatin/go-erosion/pkg/membership"
)

// Status is a JSON-serializable snapshot of the local node suitable for the
// management /status endpoint and tooling.
type Status struct {
    // Name is the local node name.
    Name        string              `json:"name"`
    // Addr is the membership (UDP) address of the local node.
    Addr        string              `json:"addr"`
    // Engine names the failure-detection engine ("swim" or "memberlist").
    Engine      string              `json:"engine"`
    // Healthy reports whether the engine is running with an acceptable
    // health score.
    Healthy     bool                `json:"healthy"`
    Members     []membership.Member `json:"members"`
    // HealthScore is the engine's local health score; -1 when not running.
    HealthScore int                 `json:"healthScore"`
    // MgmtAddr is the management endpoint address, when one is running.
    MgmtAddr    string              `json:"mgmtAddr,omitempty"`
    Warnings    []string            `json:"warnings,omitempty"`
}
