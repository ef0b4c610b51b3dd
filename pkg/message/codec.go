package message

import (
    "encoding/binary"
    "errors"
    "fmt"
    "unicode/utf8"
)

// MaxNameLen is the longest identity a Ping can carry (one length byte).
const MaxNameLen = 255

var (
    ErrNameTooLong = errors.New("name longer than 255 bytes")
    ErrUnsupported = errors.New("no wire encoding for message type")
    ErrUnknownType = errors.New("unknown message type")
    ErrInvalidText = errors.New("name is not valid UTF-8")
    ErrTruncated   = errors.New("truncated message")
)

// EncodeError reports why a message could not be serialized.
type EncodeError struct {
    Type Type
    Err  error
}

func (e *EncodeError) Error() string { return fmt.Sprintf("message: encode %s: %v", e.Type, e.Err) }
func (e *EncodeError) Unwrap() error { return e.Err }

// DecodeError reports why a buffer could not be parsed. Type is the leading
// byte when one was present.
type DecodeError struct {
    Type Type
    Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("message: decode %s: %v", e.Type, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes msg. On error no bytes are returned.
func Encode(msg Message) ([]byte, error) {
    return AppendEncode(nil, msg)
}

// AppendEncode appends the encoding of msg to dst. On error dst is returned
// unchanged.
//
//   Ping: [0][seq u32 BE][len u8][name]
//   Ack:  [2][seq u32 BE]
func AppendEncode(dst []byte, msg Message) ([]byte, error) {
    switch m := msg.(type) {
    case Ping:
        if len(m.Name) > MaxNameLen {
            return dst, &EncodeError{Type: TypePing, Err: ErrNameTooLong}
        }
        dst = append(dst, byte(TypePing))
        dst = binary.BigEndian.AppendUint32(dst, m.Seq)
        dst = append(dst, byte(len(m.Name)))
        return append(dst, m.Name...), nil
    case Ack:
        dst = append(dst, byte(TypeAck))
        return binary.BigEndian.AppendUint32(dst, m.Seq), nil
    case nil, *Ping, *IndirectPing, *Ack, *Suspect, *Alive, *Dead, *None:
        // pointers satisfy Message through the value method set and may be
        // nil; only values are encoded
        return dst, &EncodeError{Type: typeNone, Err: ErrUnsupported}
    default:
        return dst, &EncodeError{Type: msg.Type(), Err: ErrUnsupported}
    }
}

// Decode parses one message from b. Bytes following a complete message are
// ignored. Reserved types decode to None.
func Decode(b []byte) (Message, error) {
    if len(b) == 0 {
        return nil, &DecodeError{Type: typeNone, Err: ErrTruncated}
    }
    t := Type(b[0])
    body := b[1:]
    switch t {
    case TypePing:
        if len(body) < 5 {
            return nil, &DecodeError{Type: t, Err: ErrTruncated}
        }
        seq := binary.BigEndian.Uint32(body)
        n := int(body[4])
        name := body[5:]
        if len(name) < n {
            return nil, &DecodeError{Type: t, Err: ErrTruncated}
        }
        name = name[:n]
        if !utf8.Valid(name) {
            return nil, &DecodeError{Type: t, Err: ErrInvalidText}
        }
        return Ping{Seq: seq, Name: string(name)}, nil
    case TypeAck:
        if len(body) < 4 {
            return nil, &DecodeError{Type: t, Err: ErrTruncated}
        }
        return Ack{Seq: binary.BigEndian.Uint32(body)}, nil
    case TypeIndirectPing, TypeSuspect, TypeAlive, TypeDead:
        return None{}, nil
    default:
        return nil, &DecodeError{Type: t, Err: ErrUnknownType}
    }
}
