// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"fmt"

	"go.uber.org/zap"
)

// EncodeFrame builds the wire frame START | LENGTH | PAYLOAD | CRC for cmd.
func EncodeFrame(cmd Command) ([]byte, error) {
	frame := make([]byte, 2, MaxFrameSize+frameOverhead)
	frame[0] = StartByte

	frame, err := AppendCommand(frame, cmd)
	if err != nil {
		return nil, err
	}

	n := len(frame) - 2
	if n > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrOverSize, n, MaxPayloadSize)
	}
	frame[1] = byte(n)

	return append(frame, CalculateCRC(frame[2:])), nil
}

// Send writes cmd as a frame and tracks it until it is acknowledged.
//
// Sending an id that is already pending counts as a resend: the pending
// entry's timestamp is refreshed and its retry count incremented. The
// sent-history keeps the first Command stored under an id, so retries always
// replay the original payload.
func (e *Engine) Send(cmd Command) error {
	if err := e.writeCommand(cmd); err != nil {
		return err
	}

	e.sent.Add(cmd)
	if evicted, ok := e.pending.touch(cmd.ID, e.clock.Now()); ok {
		e.drop(evicted.ID, "pending table full")
	}
	return nil
}

// SendAck acknowledges id. Acknowledgements are not tracked.
func (e *Engine) SendAck(id uint32) error {
	err := e.writeCommand(Command{ID: id, Payload: Ack{Acknowledged: true}})
	if err == nil {
		e.stats.AcksSent++
	}
	return err
}

// SendNack negatively acknowledges id, asking the peer to resend it.
func (e *Engine) SendNack(id uint32, reason string) error {
	err := e.writeCommand(Command{ID: id, Payload: Ack{Acknowledged: false, Reason: reason}})
	if err == nil {
		e.stats.NacksSent++
	}
	return err
}

func (e *Engine) resend(cmd Command) {
	if err := e.Send(cmd); err != nil {
		e.log.Warn("resend failed", zap.Uint32("id", cmd.ID), zap.Error(err))
		return
	}
	e.stats.Resends++
	if p, ok := e.pending.get(cmd.ID); ok {
		e.log.Debug("resent", zap.Uint32("id", cmd.ID), zap.Int("retry", p.RetryCount))
	}
}

// writeCommand frames and writes cmd without any bookkeeping.
func (e *Engine) writeCommand(cmd Command) error {
	frame, err := EncodeFrame(cmd)
	if err != nil {
		e.stats.EncodeErrors++
		e.lastErr = err
		e.log.Warn("encode failed", zap.Uint32("id", cmd.ID), zap.Error(err))
		return err
	}

	n, err := e.stream.Write(frame)
	if err == nil && n != len(frame) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrWrite, err)
		e.stats.WriteErrors++
		e.lastErr = err
		e.log.Warn("write failed", zap.Uint32("id", cmd.ID), zap.Error(err))
		return err
	}

	e.stats.FramesSent++
	e.log.Debug("frame sent",
		zap.Uint32("id", cmd.ID),
		zap.Stringer("kind", cmd.Kind()),
		zap.Int("len", len(frame)-frameOverhead),
		zap.Uint8("crc", frame[len(frame)-1]),
	)
	return nil
}
