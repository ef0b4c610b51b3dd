package swim

import (
    "log"
    "math/rand/v2"
    "time"

    "github.com/amirimatin/go-erosion/pkg/membership"
)

// DefaultPollInterval bounds how long the receive loop blocks on the socket
// before re-checking for cancellation.
const DefaultPollInterval = 100 * time.Millisecond

// Options configures optional collaborators of the SWIM engine.
type Options struct {
    // Logger is optional. If nil, log.Default() is used.
    Logger *log.Logger

    // PollInterval is the receive poll timeout. Zero means DefaultPollInterval.
    PollInterval time.Duration

    // Rand drives the sweep shuffle. If nil, the global source is used. The
    // engine only touches it from the probe loop.
    Rand *rand.Rand

    // OnProbe, when set, is called synchronously from the probe loop after
    // every completed probe round.
    OnProbe func(Probe)
}

// Result is the outcome of one probe round.
type Result uint8

const (
    // ResultAck means the matching Ack arrived before the timeout.
    ResultAck Result = iota
    // ResultTimeout means no Ack arrived within ProbeTimeout.
    ResultTimeout
    // ResultCancelled means the engine stopped while the probe was pending.
    ResultCancelled
)

func (r Result) String() string {
    switch r {
    case ResultAck:
        return "ack"
    case ResultTimeout:
        return "timeout"
    case ResultCancelled:
        return "cancelled"
    default:
        return "unknown"
    }
}

// Probe describes a completed probe round.
type Probe struct {
    Seq    uint32
    Target membership.Member
    Result Result
    // RTT is the time from send to outcome.
    RTT time.Duration
}
