// Command memdemo runs a bare SWIM engine and prints every probe round and
// membership event, for watching the failure detector without the
// management plane.
package main

import (
    "context"
    "flag"
    "fmt"
    "log"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/amirimatin/go-erosion/pkg/config"
    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/membership/swim"
)

func main() {
    var (
        name    = flag.String("name", "node-1", "node name")
        bind    = flag.String("bind", fmt.Sprintf(":%d", config.DefaultPort), "bind host:port")
        preset  = flag.String("preset", "local", "timing preset: lan|wan|local")
        joinCSV = flag.String("join", "", "comma-separated seeds (name=host:port)")
    )
    flag.Parse()

    ctx, cancel := signalContext()
    defer cancel()

    cfg, err := config.Preset(*preset, *name)
    if err != nil { log.Fatal(err) }
    cfg.BindAddr = *bind

    m, err := swim.Bind(cfg, swim.Options{
        Logger: log.Default(),
        OnProbe: func(p swim.Probe) {
            fmt.Printf("probe: seq=%d target=%s result=%s rtt=%s\n", p.Seq, p.Target.Name, p.Result, p.RTT)
        },
    })
    if err != nil { log.Fatal(err) }
    if err := m.Start(ctx); err != nil { log.Fatal(err) }

    seeds, err := discovery.ParseList(*joinCSV)
    if err != nil { log.Fatal(err) }
    for _, s := range seeds {
        addr, err := discovery.Resolve(s)
        if err != nil { log.Printf("seed %s: %v", s, err); continue }
        if err := m.Join(s.Name, addr); err != nil { log.Printf("join error: %v", err) }
    }

    fmt.Printf("memdemo %s listening on %s. Press Ctrl+C to exit.\n", *name, m.Local().Addr)
    go func() {
        for e := range m.Events() {
            fmt.Printf("event: %-6s name=%s addr=%s at=%s\n", e.Type, e.Member.Name, e.Member.Addr, e.At.Format(time.RFC3339))
        }
    }()

    <-ctx.Done()
    _ = m.Stop()
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
