package swim

import (
    "sync"

    "github.com/amirimatin/go-erosion/pkg/observability/metrics"
)

// ackTable tracks in-flight probes by sequence number. Every registered entry
// is removed exactly once, either by resolve (an Ack arrived) or by cancel
// (the prober gave up), whichever takes the lock first.
type ackTable struct {
    mu      sync.Mutex
    waiters map[uint32]chan struct{}
}

func newAckTable() *ackTable {
    return &ackTable{waiters: make(map[uint32]chan struct{})}
}

// register installs a one-shot signal for seq. It reports false if seq is
// already pending, which can only happen after the counter wrapped while an
// old probe was still waiting; the existing wait is left untouched.
func (a *ackTable) register(seq uint32) (<-chan struct{}, bool) {
    a.mu.Lock()
    defer a.mu.Unlock()
    if _, dup := a.waiters[seq]; dup {
        return nil, false
    }
    ch := make(chan struct{}, 1)
    a.waiters[seq] = ch
    metrics.AckWaiters.Inc()
    return ch, true
}

// resolve removes the entry for seq and fires its signal. Unknown or already
// resolved sequence numbers are ignored.
func (a *ackTable) resolve(seq uint32) bool {
    a.mu.Lock()
    defer a.mu.Unlock()
    ch, ok := a.waiters[seq]
    if !ok { return false }
    delete(a.waiters, seq)
    metrics.AckWaiters.Dec()
    // buffered; the signal is in place before the lock is released
    ch <- struct{}{}
    return true
}

// cancel removes the entry for seq without signalling. It reports false when
// resolve already won the race.
func (a *ackTable) cancel(seq uint32) bool {
    a.mu.Lock()
    defer a.mu.Unlock()
    if _, ok := a.waiters[seq]; !ok { return false }
    delete(a.waiters, seq)
    metrics.AckWaiters.Dec()
    return true
}

func (a *ackTable) pending(seq uint32) bool {
    a.mu.Lock()
    defer a.mu.Unlock()
    _, ok := a.waiters[seq]
    return ok
}

func (a *ackTable) len() int {
    a.mu.Lock()
    defer a.mu.Unlock()
    return len(a.waiters)
}
