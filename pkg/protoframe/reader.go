// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"fmt"

	"go.uber.org/zap"
)

// ReadFrame consumes the bytes that are available right now, assembling
// and dispatching every complete frame among them. It stops when the stream
// runs dry or when the configured timeout has elapsed since the call began,
// and returns true if at least one valid frame was received.
//
// A partial frame is kept across calls.
func (e *Engine) ReadFrame() bool {
	start := e.clock.Now()
	complete := false

	for {
		avail := e.stream.Available()
		if avail <= 0 {
			break
		}
		if elapsed(e.clock.Now(), start) > e.cfg.Timeout {
			e.stats.ReadBudgetHits++
			e.log.Debug("read budget exhausted", zap.Int("available", avail))
			break
		}

		n, err := e.stream.Read(e.rx[:min(avail, len(e.rx))])
		if err != nil {
			e.log.Warn("stream read failed", zap.Error(err))
			break
		}
		if n == 0 {
			break
		}
		e.stats.BytesRead += uint64(n)

		for _, b := range e.rx[:n] {
			if e.feed(b) {
				complete = true
			}
		}
	}

	return complete
}

// feed advances the frame assembly state machine by one byte.
// Returns true when b completed a frame with a valid checksum.
func (e *Engine) feed(b byte) bool {
	f := &e.frame

	switch f.state {
	case stateWaitStart:
		if b == StartByte {
			f.state = stateReadLength
		} else {
			e.stats.DiscardedBytes++
		}
		return false

	case stateReadLength:
		if int(b) > MaxPayloadSize {
			e.stats.LengthErrors++
			e.frameError(fmt.Errorf("%w: %d (max %d)", ErrLength, b, MaxPayloadSize))
			return false
		}
		f.length = int(b)
		f.index = 0
		if f.length == 0 {
			f.state = stateReadCRC
		} else {
			f.state = stateReadPayload
		}
		return false

	case stateReadPayload:
		f.buf[f.index] = b
		f.index++
		if f.index >= f.length {
			f.state = stateReadCRC
		}
		return false

	case stateReadCRC:
		f.crc = b
		payload := f.buf[:f.length]
		if calculated := e.crc.Calculate(payload); calculated != f.crc {
			e.stats.ChecksumErrors++
			e.frameError(fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksum, calculated, f.crc))
			return false
		}

		data := append([]byte(nil), payload...)
		f.reset()
		e.stats.FramesReceived++
		e.log.Debug("frame received", zap.Int("len", len(data)), zap.Binary("payload", data))
		e.receiveFrame(data)
		return true

	default:
		e.frameError(fmt.Errorf("protoframe: invalid frame state %d", f.state))
		return false
	}
}

// frameError discards the partial frame so the next byte is scanned for a
// start marker.
func (e *Engine) frameError(err error) {
	e.frame.reset()
	e.lastErr = err
	e.log.Warn("frame discarded", zap.Error(err))
}
