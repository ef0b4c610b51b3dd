package cluster

import (
    "context"
    "sync"
    "time"

    "github.com/amirimatin/go-erosion/pkg/membership"
)

type EventType string

const (
    EventMemberJoin   EventType = "member_join"
    EventMemberLeave  EventType = "member_leave"
    EventMemberFailed EventType = "member_failed"
    EventMemberReaped EventType = "member_reaped"
)

// Event is an application-consumable event describing membership changes.
type Event struct {
    Type   EventType
    At     time.Time
    Member membership.Member
}

func eventFor(e membership.Event) (Event, bool) {
    var t EventType
    switch e.Type {
    case membership.EventJoin:
        t = EventMemberJoin
    case membership.EventLeave:
        t = EventMemberLeave
    case membership.EventFailed:
        t = EventMemberFailed
    case membership.EventReap:
        t = EventMemberReaped
    default:
        return Event{}, false
    }
    return Event{Type: t, At: e.At, Member: e.Member}, true
}

// Subscribe returns a channel of events. The returned channel is buffered and
// closed automatically when ctx is done. Events may be dropped if the consumer
// is too slow (best-effort delivery) to avoid back-pressuring internals.
func (n *Node) Subscribe(ctx context.Context) <-chan Event {
    ch := make(chan Event, 64)
    n.eb.add(ch)
    go func() {
        <-ctx.Done()
        n.eb.remove(ch)
        close(ch)
    }()
    return ch
}

// internal event bus
type eventBus struct {
    mu   sync.Mutex
    subs map[chan Event]struct{}
}

func (e *eventBus) add(ch chan Event) {
    e.mu.Lock()
    if e.subs == nil { e.subs = make(map[chan Event]struct{}) }
    e.subs[ch] = struct{}{}
    e.mu.Unlock()
}

func (e *eventBus) remove(ch chan Event) {
    e.mu.Lock()
    if e.subs != nil { delete(e.subs, ch) }
    e.mu.Unlock()
}

func (e *eventBus) publish(ev Event) {
    e.mu.Lock()
    for ch := range e.subs {
        select {
        case ch <- ev:
        default:
            // drop if receiver is slow
        }
    }
    e.mu.Unlock()
}
