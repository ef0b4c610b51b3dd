package metrics

import (
    "testing"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegister_Idempotent(t *testing.T) {
    Register()
    Register()

    PacketsDropped.WithLabelValues(DropTooLarge).Inc()
    if got := testutil.ToFloat64(PacketsDropped.WithLabelValues(DropTooLarge)); got < 1 {
        t.Fatalf("dropped counter = %v, want >= 1", got)
    }

    mfs, err := prometheus.DefaultGatherer.Gather()
    if err != nil { t.Fatalf("gather: %v", err) }
    found := false
    for _, mf := range mfs {
        if mf.GetName() == "erosion_udp_packets_dropped_total" { found = true }
    }
    if !found { t.Fatalf("erosion_udp_packets_dropped_total not registered") }
}
