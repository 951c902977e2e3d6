// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Encode serializes a Command into its wire payload.
// Fields holding their zero value are omitted.
func Encode(cmd Command) ([]byte, error) {
	return AppendCommand(nil, cmd)
}

// AppendCommand appends the wire payload of cmd to b.
func AppendCommand(b []byte, cmd Command) ([]byte, error) {
	payload, ok := normalizePayload(cmd.Payload)
	if !ok {
		if cmd.Payload == nil {
			return nil, fmt.Errorf("%w: command %d has no payload", ErrEncode, cmd.ID)
		}
		return nil, fmt.Errorf("%w: command %d has unrecognized payload %T", ErrEncode, cmd.ID, cmd.Payload)
	}

	b = appendUint32(b, fieldID, cmd.ID)
	b = appendUint32(b, fieldSource, uint32(cmd.Source))
	b = appendUint32(b, fieldTarget, uint32(cmd.Target))

	// The variant is always emitted, even when its body is empty,
	// so the decoder can tell which one is active.
	b = protowire.AppendTag(b, protowire.Number(payload.fieldNumber()), protowire.BytesType)
	b = protowire.AppendBytes(b, payload.appendFields(nil))
	return b, nil
}

// normalizePayload dereferences pointer variants and rejects anything else.
func normalizePayload(p Payload) (Payload, bool) {
	switch v := p.(type) {
	case Ack, Led, Move, Sound:
		return v, true
	case *Ack:
		if v != nil {
			return *v, true
		}
	case *Led:
		if v != nil {
			return *v, true
		}
	case *Move:
		if v != nil {
			return *v, true
		}
	case *Sound:
		if v != nil {
			return *v, true
		}
	}
	return nil, false
}

func appendUint32(b []byte, num protowire.Number, v uint32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func (a Ack) appendFields(b []byte) []byte {
	b = appendBool(b, fieldAckAcknowledged, a.Acknowledged)
	return appendString(b, fieldAckReason, a.Reason)
}

func (l Led) appendFields(b []byte) []byte {
	b = appendUint32(b, fieldLedStart, l.Start)
	b = appendUint32(b, fieldLedEnd, l.End)
	return appendUint32(b, fieldLedDuration, l.Duration)
}

func (m Move) appendFields(b []byte) []byte {
	b = appendUint32(b, fieldMoveTarget, uint32(m.Target))
	b = appendUint32(b, fieldMoveX, m.X)
	b = appendUint32(b, fieldMoveY, m.Y)
	return appendUint32(b, fieldMoveZ, m.Z)
}

func (s Sound) appendFields(b []byte) []byte {
	b = appendUint32(b, fieldSoundID, s.ID)
	b = appendBool(b, fieldSoundPlay, s.Play)
	return appendBool(b, fieldSoundSyncToLeds, s.SyncToLeds)
}

// Decode parses a wire payload into a Command.
//
// Unknown fields are skipped by wire type. When the payload carries no
// recognized variant the returned error is a *DecodeError and the returned
// Command still holds whatever id was parsed.
func Decode(data []byte) (Command, error) {
	var cmd Command
	hasID := false

	err := walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldID:
			n := consumeUint32(typ, b, &cmd.ID)
			if n > 0 {
				hasID = true
			}
			return n, nil
		case fieldSource:
			var v uint32
			n := consumeUint32(typ, b, &v)
			if n > 0 {
				cmd.Source = Region(v)
			}
			return n, nil
		case fieldTarget:
			var v uint32
			n := consumeUint32(typ, b, &v)
			if n > 0 {
				cmd.Target = Region(v)
			}
			return n, nil
		case fieldAck, fieldLed, fieldMove, fieldSound:
			if typ != protowire.BytesType {
				return 0, nil
			}
			body, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			p, err := decodePayload(num, body)
			if err != nil {
				return 0, err
			}
			// Last variant on the wire wins.
			cmd.Payload = p
			return n, nil
		}
		return 0, nil
	})
	if err != nil {
		return cmd, &DecodeError{ID: cmd.ID, HasID: hasID, Reason: "malformed payload", Err: err}
	}
	if cmd.Payload == nil {
		return cmd, &DecodeError{ID: cmd.ID, HasID: hasID, Reason: "missing payload variant: ack, led, move, sound"}
	}
	return cmd, nil
}

func decodePayload(num protowire.Number, body []byte) (Payload, error) {
	switch num {
	case fieldAck:
		return decodeAck(body)
	case fieldLed:
		return decodeLed(body)
	case fieldMove:
		return decodeMove(body)
	default:
		return decodeSound(body)
	}
}

func decodeAck(body []byte) (Ack, error) {
	var a Ack
	err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldAckAcknowledged:
			return consumeBool(typ, b, &a.Acknowledged), nil
		case fieldAckReason:
			if typ != protowire.BytesType {
				return 0, nil
			}
			v, n := protowire.ConsumeString(b)
			if n > 0 {
				a.Reason = v
			}
			return n, nil
		}
		return 0, nil
	})
	return a, err
}

func decodeLed(body []byte) (Led, error) {
	var l Led
	err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldLedStart:
			return consumeUint32(typ, b, &l.Start), nil
		case fieldLedEnd:
			return consumeUint32(typ, b, &l.End), nil
		case fieldLedDuration:
			return consumeUint32(typ, b, &l.Duration), nil
		}
		return 0, nil
	})
	return l, err
}

func decodeMove(body []byte) (Move, error) {
	var m Move
	err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldMoveTarget:
			var v uint32
			n := consumeUint32(typ, b, &v)
			if n > 0 {
				m.Target = Actuator(v)
			}
			return n, nil
		case fieldMoveX:
			return consumeUint32(typ, b, &m.X), nil
		case fieldMoveY:
			return consumeUint32(typ, b, &m.Y), nil
		case fieldMoveZ:
			return consumeUint32(typ, b, &m.Z), nil
		}
		return 0, nil
	})
	return m, err
}

func decodeSound(body []byte) (Sound, error) {
	var s Sound
	err := walkFields(body, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case fieldSoundID:
			return consumeUint32(typ, b, &s.ID), nil
		case fieldSoundPlay:
			return consumeBool(typ, b, &s.Play), nil
		case fieldSoundSyncToLeds:
			return consumeBool(typ, b, &s.SyncToLeds), nil
		}
		return 0, nil
	})
	return s, err
}

// fieldFunc consumes the value of one field from b. It returns the number
// of bytes consumed, 0 to have the field skipped by wire type, or a negative
// protowire error code.
type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walkFields(data []byte, fn fieldFunc) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		m, err := fn(num, typ, data)
		if err != nil {
			return err
		}
		if m == 0 {
			m = protowire.ConsumeFieldValue(num, typ, data)
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}

// consumeUint32 reads a varint into dst. A mismatched wire type returns 0
// so the field is skipped instead of misread.
func consumeUint32(typ protowire.Type, b []byte, dst *uint32) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = uint32(v)
	}
	return n
}

func consumeBool(typ protowire.Type, b []byte, dst *bool) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n
}
