package logutil

import (
    "bytes"
    "encoding/json"
    "log"
    "strings"
    "testing"
)

func TestTextAndDebug(t *testing.T) {
    SetJSON(false)
    SetDebug(false)
    defer SetDebug(false)
    var buf bytes.Buffer
    l := log.New(&buf, "[n1] ", 0)

    Debugf(l, "hidden %d", 1)
    if buf.Len() != 0 { t.Fatalf("debug written while disabled: %q", buf.String()) }
    Warnf(l, "probe %s", "timeout")
    if got := buf.String(); got != "[n1] WARN probe timeout\n" { t.Fatalf("unexpected line %q", got) }

    buf.Reset()
    SetDebug(true)
    Debugf(l, "shown")
    if !strings.Contains(buf.String(), "DEBUG shown") { t.Fatalf("debug missing: %q", buf.String()) }
}

func TestJSONMode(t *testing.T) {
    SetJSON(true)
    defer SetJSON(false)
    var buf bytes.Buffer
    Errorf(log.New(&buf, "", 0), "bind %s failed", ":7201")
    var rec map[string]any
    if err := json.Unmarshal(buf.Bytes(), &rec); err != nil { t.Fatalf("not json: %v (%q)", err, buf.String()) }
    if rec["level"] != "error" || rec["msg"] != "bind :7201 failed" { t.Fatalf("unexpected record %v", rec) }
    if _, ok := rec["ts"]; !ok { t.Fatalf("missing ts") }
}
