// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"errors"

	"go.uber.org/zap"
)

// receiveFrame decodes a checksum-valid payload and hands it on.
// Undecodable payloads are negatively acknowledged when their id survived.
func (e *Engine) receiveFrame(payload []byte) {
	cmd, err := Decode(payload)
	if err != nil {
		e.stats.DecodeErrors++
		e.lastErr = err

		var de *DecodeError
		if errors.As(err, &de) && de.HasID {
			e.log.Warn("decode failed, sending nack", zap.Uint32("id", de.ID), zap.Error(err))
			_ = e.SendNack(de.ID, nackReasonDecode)
			return
		}
		e.log.Warn("decode failed, dropping frame", zap.Error(err))
		return
	}
	e.receiveMessage(cmd)
}

// receiveMessage deduplicates, acknowledges and dispatches a decoded Command.
//
// Ack payloads are recorded but bypass deduplication and are never
// acknowledged themselves: removing a pending entry is idempotent, and
// acknowledging an ack would start an endless exchange between two engines.
func (e *Engine) receiveMessage(cmd Command) {
	if ack, ok := asAck(cmd.Payload); ok {
		e.received.Add(cmd)
		e.handleAck(cmd.ID, ack)
		return
	}

	if e.received.Contains(cmd.ID) {
		e.stats.Duplicates++
		e.log.Debug("duplicate command", zap.Uint32("id", cmd.ID))
		_ = e.SendAck(cmd.ID)
		return
	}

	e.received.Add(cmd)
	_ = e.SendAck(cmd.ID)
	e.dispatch(cmd)
}

func (e *Engine) dispatch(cmd Command) {
	kind := cmd.Kind()
	if kind < KindLed || kind > KindSound {
		return
	}
	h := e.handlers[kind]
	if h == nil {
		e.log.Debug("no handler registered", zap.Stringer("kind", kind), zap.Uint32("id", cmd.ID))
		return
	}
	e.stats.Dispatched++
	h(cmd)
}

func (e *Engine) handleAck(id uint32, ack Ack) {
	if ack.Acknowledged {
		e.stats.AcksReceived++
		if e.pending.remove(id) {
			e.log.Debug("acknowledged", zap.Uint32("id", id))
		}
		return
	}

	e.stats.NacksReceived++
	e.log.Debug("negative acknowledgement", zap.Uint32("id", id), zap.String("reason", ack.Reason))
	if _, ok := e.pending.get(id); !ok {
		return
	}
	if msg, ok := e.sent.Get(id); ok {
		e.resend(msg)
	}
}

func asAck(p Payload) (Ack, bool) {
	switch v := p.(type) {
	case Ack:
		return v, true
	case *Ack:
		if v != nil {
			return *v, true
		}
	}
	return Ack{}, false
}
