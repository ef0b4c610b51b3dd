package membership

import (
    "context"
    "fmt"
    "net/netip"
    "time"
)

// State is the liveness state recorded for a member.
type State uint8

const (
    StateAlive State = iota
    StateSuspect
    StateDead
)

func (s State) String() string {
    switch s {
    case StateAlive:
        return "alive"
    case StateSuspect:
        return "suspect"
    case StateDead:
        return "dead"
    default:
        return fmt.Sprintf("state(%d)", uint8(s))
    }
}

// MarshalText renders the state by name so status payloads stay readable.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
    switch string(b) {
    case "alive":
        *s = StateAlive
    case "suspect":
        *s = StateSuspect
    case "dead":
        *s = StateDead
    default:
        return fmt.Errorf("membership: unknown state %q", string(b))
    }
    return nil
}

// Member describes a cluster participant as seen by the local node.
type Member struct {
    Name        string         `json:"name"`
    Addr        netip.AddrPort `json:"addr"`
    State       State          `json:"state"`
    // Incarnation is the last known incarnation number of the member.
    Incarnation uint32         `json:"incarnation"`
}

type EventType string

const (
    // EventJoin indicates a member was added to the local view.
    EventJoin   EventType = "join"
    // EventLeave indicates a member left the cluster.
    EventLeave  EventType = "leave"
    // EventFailed indicates the engine marked a member as failed/unreachable.
    EventFailed EventType = "failed"
    // EventReap indicates a dead member was removed from the local view.
    EventReap   EventType = "reap"
)

// Event is a membership change notification.
type Event struct {
    Type   EventType
    Member Member
    At     time.Time
}

// Membership is the abstraction over a failure-detection engine. Engines are
// constructed already bound to their local address (see swim.Bind and
// memberlist.Bind); Start launches background activity and Join adds a seed
// peer to the local view.
type Membership interface {
    Start(ctx context.Context) error
    Join(name string, addr netip.AddrPort) error
    Local() Member
    Members() []Member
    Events() <-chan Event
    Stop() error
}
