package logutil

import (
    "encoding/json"
    "fmt"
    "log"
    "os"
    "sync/atomic"
    "time"
)

var (
    jsonMode  atomic.Bool
    debugMode atomic.Bool
)

func init() {
    if os.Getenv("EROSION_LOG_JSON") == "1" || os.Getenv("EROSION_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
    if os.Getenv("EROSION_LOG_DEBUG") == "1" {
        debugMode.Store(true)
    }
}

// SetJSON switches every logger routed through this package to one JSON
// object per line.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// SetDebug enables Debugf output (per-packet diagnostics).
func SetDebug(enabled bool) { debugMode.Store(enabled) }

// DebugEnabled reports whether Debugf lines are emitted.
func DebugEnabled() bool { return debugMode.Load() }

func Debugf(l *log.Logger, f string, args ...any) {
    if !debugMode.Load() { return }
    logf(l, "debug", f, args...)
}

func Infof(l *log.Logger, f string, args ...any)  { logf(l, "info", f, args...) }
func Warnf(l *log.Logger, f string, args ...any)  { logf(l, "warn", f, args...) }
func Errorf(l *log.Logger, f string, args ...any) { logf(l, "error", f, args...) }

func logf(l *log.Logger, level, f string, args ...any) {
    if l == nil { l = log.Default() }
    msg := fmt.Sprintf(f, args...)
    if jsonMode.Load() {
        b, _ := json.Marshal(map[string]any{
            "ts":    time.Now().UTC().Format(time.RFC3339Nano),
            "level": level,
            "msg":   msg,
        })
        l.Println(string(b))
        return
    }
    // Prefix is placed after the logger's own prefix so "[node1] " style
    // prefixes set by callers stay first.
    switch level {
    case "debug":
        l.Print("DEBUG " + msg)
    case "info":
        l.Print("INFO " + msg)
    case "warn":
        l.Print("WARN " + msg)
    default:
        l.Print("ERROR " + msg)
    }
}
