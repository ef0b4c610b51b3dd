package message

import (
    "errors"
    "math"
    "math/rand/v2"
    "net/netip"
    "strings"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestEncode_WireLayout(t *testing.T) {
    b, err := Encode(Ping{Seq: 0x01020304, Name: "ab"})
    require.NoError(t, err)
    assert.Equal(t, []byte{0, 1, 2, 3, 4, 2, 'a', 'b'}, b)

    b, err = Encode(Ack{Seq: 0xdeadbeef})
    require.NoError(t, err)
    assert.Equal(t, []byte{2, 0xde, 0xad, 0xbe, 0xef}, b)
}

func TestRoundTrip(t *testing.T) {
    names := []string{"", "a", "node1", "ノード", strings.Repeat("x", MaxNameLen)}
    seqs := []uint32{0, 1, 255, 256, math.MaxUint32 - 1, math.MaxUint32}
    for _, seq := range seqs {
        for _, name := range names {
            in := Ping{Seq: seq, Name: name}
            b, err := Encode(in)
            require.NoError(t, err)
            out, err := Decode(b)
            require.NoError(t, err)
            assert.Equal(t, in, out)
        }
        b, err := Encode(Ack{Seq: seq})
        require.NoError(t, err)
        out, err := Decode(b)
        require.NoError(t, err)
        assert.Equal(t, Ack{Seq: seq}, out)
    }
}

func TestRoundTrip_Random(t *testing.T) {
    r := rand.New(rand.NewPCG(1, 2))
    for i := 0; i < 1000; i++ {
        name := make([]byte, r.IntN(MaxNameLen+1))
        for j := range name {
            name[j] = byte('a' + r.IntN(26))
        }
        in := Ping{Seq: r.Uint32(), Name: string(name)}
        b, err := Encode(in)
        require.NoError(t, err)
        out, err := Decode(b)
        require.NoError(t, err)
        require.Equal(t, in, out)
    }
}

func TestEncode_NameTooLong(t *testing.T) {
    b, err := Encode(Ping{Seq: 1, Name: strings.Repeat("x", MaxNameLen+1)})
    require.Error(t, err)
    assert.Empty(t, b)
    assert.ErrorIs(t, err, ErrNameTooLong)
    var ee *EncodeError
    require.True(t, errors.As(err, &ee))
    assert.Equal(t, TypePing, ee.Type)

    // AppendEncode leaves dst untouched on failure
    dst := []byte{9, 9}
    out, err := AppendEncode(dst, Ping{Name: strings.Repeat("x", 300)})
    require.Error(t, err)
    assert.Equal(t, []byte{9, 9}, out)
}

func TestEncode_Unsupported(t *testing.T) {
    msgs := []Message{
        IndirectPing{Addr: netip.MustParseAddrPort("127.0.0.1:1"), Seq: 1, Name: "x"},
        Suspect{}, Alive{}, Dead{}, None{}, nil,
    }
    for _, m := range msgs {
        b, err := Encode(m)
        assert.ErrorIs(t, err, ErrUnsupported, "%T", m)
        assert.Empty(t, b)
    }
}

func TestEncode_RejectsPointers(t *testing.T) {
    var nilPing *Ping
    for _, m := range []Message{&Ping{Seq: 1, Name: "a"}, &Ack{Seq: 1}, nilPing, (*Ack)(nil), (*Suspect)(nil)} {
        var (
            b   []byte
            err error
        )
        require.NotPanics(t, func() { b, err = Encode(m) }, "%T", m)
        assert.ErrorIs(t, err, ErrUnsupported, "%T", m)
        assert.Empty(t, b)
    }
}

func TestDecode_UnknownType(t *testing.T) {
    for _, tag := range []byte{6, 7, 42, 0xff} {
        _, err := Decode([]byte{tag, 0, 0, 0, 1})
        assert.ErrorIs(t, err, ErrUnknownType, "tag %d", tag)
        var de *DecodeError
        require.True(t, errors.As(err, &de))
        assert.Equal(t, Type(tag), de.Type)
    }
}

func TestDecode_ReservedTypesAreNone(t *testing.T) {
    for _, tag := range []Type{TypeIndirectPing, TypeSuspect, TypeAlive, TypeDead} {
        m, err := Decode([]byte{byte(tag)})
        require.NoError(t, err)
        assert.Equal(t, None{}, m)
    }
}

func TestDecode_Truncated(t *testing.T) {
    full, err := Encode(Ping{Seq: 7, Name: "node-b"})
    require.NoError(t, err)
    // every strict prefix of a ping is truncated, including the empty buffer
    for i := 0; i < len(full); i++ {
        _, err := Decode(full[:i])
        assert.ErrorIs(t, err, ErrTruncated, "prefix len %d", i)
    }
    // declared length beyond the buffer
    _, err = Decode([]byte{0, 0, 0, 0, 1, 200, 'a'})
    assert.ErrorIs(t, err, ErrTruncated)

    ack, err := Encode(Ack{Seq: 7})
    require.NoError(t, err)
    for i := 0; i < len(ack); i++ {
        _, err := Decode(ack[:i])
        assert.ErrorIs(t, err, ErrTruncated, "ack prefix len %d", i)
    }
}

func TestDecode_InvalidText(t *testing.T) {
    _, err := Decode([]byte{0, 0, 0, 0, 1, 2, 0xc3, 0x28})
    assert.ErrorIs(t, err, ErrInvalidText)
}

func TestDecode_IgnoresTrailingBytes(t *testing.T) {
    b, err := Encode(Ack{Seq: 3})
    require.NoError(t, err)
    m, err := Decode(append(b, 1, 2, 3))
    require.NoError(t, err)
    assert.Equal(t, Ack{Seq: 3}, m)
}
