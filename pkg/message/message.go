package message

import (
    "fmt"
    "net/netip"
)

// Type is the leading byte of every datagram.
type Type uint8

const (
    TypePing Type = iota
    TypeIndirectPing
    TypeAck
    TypeSuspect
    TypeAlive
    TypeDead
)

// typeNone is never written on the wire; it tags the None marker returned
// for reserved types.
const typeNone Type = 0xff

func (t Type) String() string {
    switch t {
    case TypePing:
        return "ping"
    case TypeIndirectPing:
        return "indirect-ping"
    case TypeAck:
        return "ack"
    case TypeSuspect:
        return "suspect"
    case TypeAlive:
        return "alive"
    case TypeDead:
        return "dead"
    case typeNone:
        return "none"
    default:
        return fmt.Sprintf("type(%d)", uint8(t))
    }
}

// Message is implemented by every protocol message. The set is closed: only
// types in this package satisfy it. Messages are passed by value; Encode
// rejects pointers to them.
type Message interface {
    Type() Type
    isMessage()
}

// Ping is a direct probe. Name is the identity of the intended recipient so
// a node restarted under a new name at the same address can reject it.
type Ping struct {
    Seq  uint32
    Name string
}

// IndirectPing asks the receiver to probe Addr on the sender's behalf.
// Reserved: it has no wire encoding yet.
type IndirectPing struct {
    Addr netip.AddrPort
    Seq  uint32
    Name string
}

// Ack acknowledges the Ping carrying the same Seq.
type Ack struct {
    Seq uint32
}

// Suspect, Alive and Dead are reserved for state dissemination.
type Suspect struct{}
type Alive struct{}
type Dead struct{}

// None is what Decode returns for reserved message types it recognises but
// cannot interpret.
type None struct{}

func (Ping) Type() Type         { return TypePing }
func (IndirectPing) Type() Type { return TypeIndirectPing }
func (Ack) Type() Type          { return TypeAck }
func (Suspect) Type() Type      { return TypeSuspect }
func (Alive) Type() Type        { return TypeAlive }
func (Dead) Type() Type         { return TypeDead }
func (None) Type() Type         { return typeNone }

func (Ping) isMessage()         {}
func (IndirectPing) isMessage() {}
func (Ack) isMessage()          {}
func (Suspect) isMessage()      {}
func (Alive) isMessage()        {}
func (Dead) isMessage()         {}
func (None) isMessage()         {}
