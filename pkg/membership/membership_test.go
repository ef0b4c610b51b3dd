package membership

import (
    "encoding/json"
    "net/netip"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestState_TextRoundTrip(t *testing.T) {
    for _, s := range []State{StateAlive, StateSuspect, StateDead} {
        b, err := s.MarshalText()
        require.NoError(t, err)
        var got State
        require.NoError(t, got.UnmarshalText(b))
        assert.Equal(t, s, got)
    }
    var s State
    assert.Error(t, s.UnmarshalText([]byte("zombie")))
    assert.Equal(t, "state(9)", State(9).String())
}

func TestMember_JSON(t *testing.T) {
    m := Member{Name: "node1", Addr: netip.MustParseAddrPort("127.0.0.1:7201"), State: StateAlive}
    b, err := json.Marshal(m)
    require.NoError(t, err)
    assert.JSONEq(t, `{"name":"node1","addr":"127.0.0.1:7201","state":"alive","incarnation":0}`, string(b))

    var back Member
    require.NoError(t, json.Unmarshal(b, &back))
    assert.Equal(t, m, back)
}
