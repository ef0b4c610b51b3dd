package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    Members = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "erosion",
        Name:      "members",
        Help:      "Current number of members in the local view",
    })

    ProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "erosion",
        Subsystem: "probe",
        Name:      "total",
        Help:      "Probe rounds by outcome (ack, timeout, cancelled)",
    }, []string{"result"})

    ProbeRTT = prometheus.NewHistogram(prometheus.HistogramOpts{
        Namespace: "erosion",
        Subsystem: "probe",
        Name:      "rtt_seconds",
        Help:      "Round-trip time of acknowledged probes",
        // 0.5ms .. ~4s
        Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
    })

    AckWaiters = prometheus.NewGauge(prometheus.GaugeOpts{
        Namespace: "erosion",
        Subsystem: "probe",
        Name:      "ack_waiters",
        Help:      "Probes currently waiting for an ack",
    })

    PacketsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "erosion",
        Subsystem: "udp",
        Name:      "packets_sent_total",
        Help:      "Datagrams written by message type",
    }, []string{"type"})

    PacketsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "erosion",
        Subsystem: "udp",
        Name:      "packets_received_total",
        Help:      "Datagrams decoded by message type",
    }, []string{"type"})

    PacketsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "erosion",
        Subsystem: "udp",
        Name:      "packets_dropped_total",
        Help:      "Datagrams dropped on send or receive by reason",
    }, []string{"reason"})

    StatusRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
        Namespace: "erosion",
        Subsystem: "mgmt",
        Name:      "status_requests_total",
        Help:      "Status requests served by management protocol",
    }, []string{"proto"})
)

// Drop reasons used with PacketsDropped.
const (
    DropEncode   = "encode"
    DropTooLarge = "too_large"
    DropWrite    = "write"
    DropDecode   = "decode"
    DropIdentity = "identity"
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
    once.Do(func() {
        prometheus.MustRegister(Members)
        prometheus.MustRegister(ProbesTotal)
        prometheus.MustRegister(ProbeRTT)
        prometheus.MustRegister(AckWaiters)
        prometheus.MustRegister(PacketsSent)
        prometheus.MustRegister(PacketsReceived)
        prometheus.MustRegister(PacketsDropped)
        prometheus.MustRegister(StatusRequests)
    })
}
