package discovery

import (
    "net/netip"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestParseSeed(t *testing.T) {
    s, err := ParseSeed(" a = 127.0.0.1:7201 ")
    require.NoError(t, err)
    assert.Equal(t, Seed{Name: "a", Addr: "127.0.0.1:7201"}, s)
    assert.Equal(t, "a=127.0.0.1:7201", s.String())

    for _, bad := range []string{"", "a", "=1.2.3.4:1", "a=", "a=1.2.3.4"} {
        _, err := ParseSeed(bad)
        assert.Error(t, err, "%q", bad)
    }
}

func TestParseList(t *testing.T) {
    got, err := ParseList(",a=h1:1, ,b=h2:2,")
    require.NoError(t, err)
    assert.Equal(t, []Seed{{"a", "h1:1"}, {"b", "h2:2"}}, got)

    got, err = ParseList("")
    require.NoError(t, err)
    assert.Empty(t, got)

    _, err = ParseList("a=h1:1,broken")
    assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
    in := []Seed{{"b", "h:2"}, {"a", "h:1"}, {"b", "h:2"}, {"a", "h:0"}}
    assert.Equal(t, []Seed{{"a", "h:0"}, {"a", "h:1"}, {"b", "h:2"}}, Normalize(in))
}

func TestResolve(t *testing.T) {
    ap, err := Resolve(Seed{Name: "a", Addr: "127.0.0.1:7201"})
    require.NoError(t, err)
    assert.Equal(t, netip.MustParseAddrPort("127.0.0.1:7201"), ap)

    ap, err = Resolve(Seed{Name: "a", Addr: "localhost:7201"})
    require.NoError(t, err)
    assert.True(t, ap.Addr().IsLoopback())

    _, err = Resolve(Seed{Name: "a", Addr: "127.0.0.1:notaport"})
    assert.Error(t, err)
}
