// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

// PayloadKind names the active variant of a Command payload.
type PayloadKind int

// Payload kinds
const (
	KindNone PayloadKind = iota
	KindAck
	KindLed
	KindMove
	KindSound
)

// Payload is the closed set of Command variants: Ack, Led, Move and Sound.
type Payload interface {
	Kind() PayloadKind
	fieldNumber() int
	appendFields(b []byte) []byte
}

// Ack acknowledges (or negatively acknowledges) the Command with the same id.
type Ack struct {
	Acknowledged bool
	Reason       string // empty when absent
}

// Led drives an LED animation.
type Led struct {
	Start    uint32
	End      uint32
	Duration uint32
}

// Move drives an actuator to a position.
type Move struct {
	Target Actuator
	X      uint32
	Y      uint32
	Z      uint32
}

// Sound starts or stops a sound clip.
type Sound struct {
	ID         uint32
	Play       bool
	SyncToLeds bool
}

func (Ack) Kind() PayloadKind   { return KindAck }
func (Led) Kind() PayloadKind   { return KindLed }
func (Move) Kind() PayloadKind  { return KindMove }
func (Sound) Kind() PayloadKind { return KindSound }

func (Ack) fieldNumber() int   { return fieldAck }
func (Led) fieldNumber() int   { return fieldLed }
func (Move) fieldNumber() int  { return fieldMove }
func (Sound) fieldNumber() int { return fieldSound }

// Command is the unit of exchange between two endpoints.
type Command struct {
	ID      uint32
	Source  Region
	Target  Region
	Payload Payload
}

// Kind returns the kind of the command's payload, or KindNone.
func (c Command) Kind() PayloadKind {
	if c.Payload == nil {
		return KindNone
	}
	return c.Payload.Kind()
}

// String returns the lowercase name of the kind.
func (k PayloadKind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindLed:
		return "led"
	case KindMove:
		return "move"
	case KindSound:
		return "sound"
	default:
		return "none"
	}
}

// ParsePayloadKind maps a lowercase kind name back to its PayloadKind.
func ParsePayloadKind(s string) (PayloadKind, bool) {
	switch s {
	case "ack":
		return KindAck, true
	case "led":
		return KindLed, true
	case "move":
		return KindMove, true
	case "sound":
		return KindSound, true
	}
	return KindNone, false
}
