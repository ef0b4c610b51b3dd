package config

import (
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestPresets(t *testing.T) {
    lan := LAN("n1")
    assert.Equal(t, "n1", lan.Name)
    assert.Equal(t, "0.0.0.0:7201", lan.BindAddr)
    assert.Equal(t, time.Second, lan.ProbeInterval)
    assert.Equal(t, 500*time.Millisecond, lan.ProbeTimeout)
    assert.Equal(t, 3, lan.IndirectChecks)
    assert.True(t, lan.EnableCompression)

    wan := WAN("n1")
    assert.Equal(t, 5*time.Second, wan.ProbeInterval)
    assert.Equal(t, 3*time.Second, wan.ProbeTimeout)
    assert.Equal(t, 6, wan.SuspicionMult)
    assert.Equal(t, 4, wan.GossipNodes)
    assert.Equal(t, lan.IndirectChecks, wan.IndirectChecks)

    local := Local("n1")
    assert.Equal(t, time.Second, local.ProbeInterval)
    assert.Equal(t, 200*time.Millisecond, local.ProbeTimeout)
    assert.Equal(t, 1, local.IndirectChecks)
    assert.Equal(t, 15*time.Second, local.PushPullInterval)

    for _, c := range []Config{lan, wan, local} {
        require.NoError(t, c.Validate())
    }
}

func TestPreset_ByName(t *testing.T) {
    c, err := Preset("WAN", "x")
    require.NoError(t, err)
    assert.Equal(t, WAN("x"), c)

    c, err = Preset("", "x")
    require.NoError(t, err)
    assert.Equal(t, LAN("x"), c)

    _, err = Preset("mars", "x")
    assert.Error(t, err)
}

func TestValidate(t *testing.T) {
    cases := []struct{
        name string
        mut  func(*Config)
    }{
        {"empty name", func(c *Config) { c.Name = "" }},
        {"long name", func(c *Config) { c.Name = strings.Repeat("a", 256) }},
        {"empty bind", func(c *Config) { c.BindAddr = "" }},
        {"bad bind", func(c *Config) { c.BindAddr = "localhost" }},
        {"negative interval", func(c *Config) { c.ProbeInterval = -time.Second }},
        {"zero timeout", func(c *Config) { c.ProbeTimeout = 0 }},
        {"negative gossip nodes", func(c *Config) { c.GossipNodes = -1 }},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            c := Local("n1")
            tc.mut(&c)
            assert.Error(t, c.Validate())
        })
    }

    // probing disabled tolerates a zero timeout
    c := Local("n1")
    c.ProbeInterval, c.ProbeTimeout = 0, 0
    assert.NoError(t, c.Validate())
}
