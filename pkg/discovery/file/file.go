package file

import (
    "bufio"
    "log"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-erosion/pkg/discovery"
    "github.com/amirimatin/go-erosion/pkg/internal/logutil"
)

// Options configures file/ENV-based discovery.
type Options struct {
    // Path to a file (or glob) with one name=host:port seed per line, or a
    // comma-separated list per line. Lines starting with # are ignored.
    Path string
    // Env names an environment variable that overrides the file when set.
    Env string
    // Refresh controls cache staleness; if zero, defaults to 5s.
    Refresh time.Duration
    // Logger reports malformed entries. If nil, log.Default() is used.
    Logger *log.Logger
}

type impl struct {
    opts  Options
    mu    sync.Mutex
    last  time.Time
    mtime time.Time
    cache []discovery.Seed
}

func New(opts Options) discovery.Discovery {
    if opts.Refresh <= 0 { opts.Refresh = 5 * time.Second }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &impl{opts: opts}
}

func (i *impl) Seeds() []discovery.Seed {
    i.mu.Lock(); defer i.mu.Unlock()
    // ENV takes precedence
    if v := strings.TrimSpace(os.Getenv(i.opts.Env)); i.opts.Env != "" && v != "" {
        return discovery.Normalize(i.parseLine(v, i.opts.Env))
    }
    if i.opts.Path == "" {
        return nil
    }
    stat, err := os.Stat(i.opts.Path)
    now := time.Now()
    if err == nil {
        if stat.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
            i.cache = i.loadFile(i.opts.Path)
            i.last = now
            i.mtime = stat.ModTime()
        }
        return append([]discovery.Seed(nil), i.cache...)
    }
    // try glob
    matches, _ := filepath.Glob(i.opts.Path)
    if len(matches) > 0 {
        var all []discovery.Seed
        for _, m := range matches {
            all = append(all, i.loadFile(m)...)
        }
        i.cache = discovery.Normalize(all)
        i.last = now
    }
    return append([]discovery.Seed(nil), i.cache...)
}

func (i *impl) loadFile(path string) []discovery.Seed {
    f, err := os.Open(path)
    if err != nil {
        logutil.Warnf(i.opts.Logger, "discovery/file: %v", err)
        return nil
    }
    defer f.Close()
    var seeds []discovery.Seed
    s := bufio.NewScanner(f)
    for s.Scan() {
        line := strings.TrimSpace(s.Text())
        if line == "" || strings.HasPrefix(line, "#") { continue }
        seeds = append(seeds, i.parseLine(line, path)...)
    }
    if err := s.Err(); err != nil {
        logutil.Warnf(i.opts.Logger, "discovery/file: read %s: %v", path, err)
        return nil
    }
    return discovery.Normalize(seeds)
}

// parseLine accepts a comma-separated list; malformed entries are skipped.
func (i *impl) parseLine(line, source string) []discovery.Seed {
    var out []discovery.Seed
    for _, p := range strings.Split(line, ",") {
        if strings.TrimSpace(p) == "" { continue }
        seed, err := discovery.ParseSeed(p)
        if err != nil {
            logutil.Warnf(i.opts.Logger, "discovery/file: %s: %v", source, err)
            continue
        }
        out = append(out, seed)
    }
    return out
}
