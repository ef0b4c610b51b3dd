package static

import (
    "github.com/amirimatin/go-erosion/pkg/discovery"
)

type staticSeeds struct {
    seeds []discovery.Seed
}

func (s *staticSeeds) Seeds() []discovery.Seed { return append([]discovery.Seed(nil), s.seeds...) }

// New returns a Discovery that always returns the given seeds. Seeds with an
// empty name or address are dropped.
func New(seeds ...discovery.Seed) discovery.Discovery {
    cleaned := make([]discovery.Seed, 0, len(seeds))
    for _, s := range seeds {
        if s.Name != "" && s.Addr != "" {
            cleaned = append(cleaned, s)
        }
    }
    return &staticSeeds{seeds: cleaned}
}

// Parse builds a static Discovery from "name=host:port,name=host:port".
func Parse(csv string) (discovery.Discovery, error) {
    seeds, err := discovery.ParseList(csv)
    if err != nil { return nil, err }
    return New(seeds...), nil
}
