// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Clock supplies 32-bit millisecond timestamps. Values wrap; the Engine
// only ever compares them by modular difference.
type Clock interface {
	Now() uint32
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() uint32

func (f ClockFunc) Now() uint32 { return f() }

// wallClock is Unix time in milliseconds truncated to 32 bits, so ids
// stamped by separately started engines do not repeat.
type wallClock struct{}

func (wallClock) Now() uint32 {
	return uint32(time.Now().UnixMilli())
}

// Handler receives a dispatched Command.
type Handler func(cmd Command)

// Config configures an Engine. Zero values select the defaults.
type Config struct {
	Region     Region // stamped as Source by the command constructors
	Timeout    uint32 // ms; read budget per tick and retry interval
	MaxRetries int
	MaxPending int // pending-ack table capacity
	Clock      Clock
	Logger     *zap.Logger
	Handlers   map[PayloadKind]Handler

	// OnDrop is called when a sent Command is abandoned, either because it
	// ran out of retries or because the pending table overflowed.
	OnDrop func(cmd Command)
}

// DefaultConfig returns the protocol defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    DefaultTimeout,
		MaxRetries: DefaultMaxRetries,
		MaxPending: HistoryCapacity,
	}
}

// frameState is the partially assembled inbound frame.
type frameState struct {
	state  int
	buf    [MaxFrameSize]byte
	index  int
	length int
	crc    byte
}

func (f *frameState) reset() {
	f.state = stateWaitStart
	f.index = 0
	f.length = 0
	f.crc = 0
}

// Engine runs the protocol over a Stream.
//
// An Engine is not safe for concurrent use. All progress happens inside
// Tick (or ReadFrame/Retry) and Send, driven by the caller.
type Engine struct {
	stream   Stream
	cfg      Config
	clock    Clock
	log      *zap.Logger
	crc      *CRC8
	sent     *History
	received *History
	pending  *pendingTable
	handlers [KindSound + 1]Handler
	frame    frameState
	rx       [MaxFrameSize]byte
	stats    Statistics
	lastErr  error
}

// NewEngine creates an Engine reading from and writing to stream.
func NewEngine(stream Stream, cfg Config) (*Engine, error) {
	if stream == nil {
		return nil, errors.New("protoframe: nil stream")
	}

	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = def.MaxPending
	}
	if cfg.Clock == nil {
		cfg.Clock = wallClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	e := &Engine{
		stream:   stream,
		cfg:      cfg,
		clock:    cfg.Clock,
		log:      cfg.Logger.Named("protoframe"),
		crc:      NewCRC8(),
		sent:     NewHistory(),
		received: NewHistory(),
		pending:  newPendingTable(cfg.MaxPending),
		stats:    Statistics{StartTime: time.Now()},
	}
	for kind, h := range cfg.Handlers {
		if err := e.Handle(kind, h); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Handle registers h for commands of the given kind, replacing any previous
// handler. Only led, move and sound can be handled; acks are consumed by the
// Engine itself.
func (e *Engine) Handle(kind PayloadKind, h Handler) error {
	switch kind {
	case KindLed, KindMove, KindSound:
		e.handlers[kind] = h
		return nil
	}
	return fmt.Errorf("%w: %s", ErrKind, kind)
}

// Tick drains the bytes currently available and then runs the retry sweep.
// It returns true if at least one valid frame was received.
func (e *Engine) Tick() bool {
	received := e.ReadFrame()
	e.Retry()
	return received
}

// Retry resends every pending Command whose timeout has elapsed and drops
// those that have used up their retries.
func (e *Engine) Retry() {
	now := e.clock.Now()
	for _, snap := range e.pending.snapshot() {
		// OnDrop and resends may have changed the table since the snapshot.
		entry, ok := e.pending.get(snap.ID)
		if !ok {
			continue
		}
		if entry.RetryCount >= e.cfg.MaxRetries {
			e.pending.remove(entry.ID)
			e.drop(entry.ID, "retry budget exhausted")
			continue
		}
		if elapsed(now, entry.LastProcessedTimestamp) < e.cfg.Timeout {
			continue
		}
		msg, ok := e.sent.Get(entry.ID)
		if !ok {
			e.pending.remove(entry.ID)
			e.drop(entry.ID, "no longer in sent history")
			continue
		}
		e.resend(msg)
	}
}

func (e *Engine) drop(id uint32, reason string) {
	e.stats.Dropped++
	e.log.Warn("abandoning delivery", zap.Uint32("id", id), zap.String("reason", reason))
	if e.cfg.OnDrop == nil {
		return
	}
	cmd, ok := e.sent.Get(id)
	if !ok {
		cmd = Command{ID: id}
	}
	e.cfg.OnDrop(cmd)
}

// Reset discards both histories, the pending table, the partial frame and
// the statistics.
func (e *Engine) Reset() {
	e.sent.Reset()
	e.received.Reset()
	e.pending.reset()
	e.frame.reset()
	e.stats.Reset()
	e.lastErr = nil
}

// SafeTimestamp returns the current 32-bit timestamp.
func (e *Engine) SafeTimestamp() uint32 {
	return e.clock.Now()
}

// Region returns the engine's own region.
func (e *Engine) Region() Region {
	return e.cfg.Region
}

// SentHistorySize returns the number of Commands in the sent-history.
func (e *Engine) SentHistorySize() int {
	return e.sent.Len()
}

// ReceivedHistorySize returns the number of Commands in the received-history.
func (e *Engine) ReceivedHistorySize() int {
	return e.received.Len()
}

// PendingCount returns the number of unacknowledged Commands.
func (e *Engine) PendingCount() int {
	return e.pending.len()
}

// Pending looks up the pending-ack entry for id.
func (e *Engine) Pending(id uint32) (PendingAck, bool) {
	return e.pending.get(id)
}

// PendingEntries returns a copy of the pending-ack table, oldest first.
func (e *Engine) PendingEntries() []PendingAck {
	return e.pending.snapshot()
}

// LastSent returns the most recent Command in the sent-history.
func (e *Engine) LastSent() (Command, bool) {
	return e.sent.MostRecent()
}

// LastReceived returns the most recent Command in the received-history.
func (e *Engine) LastReceived() (Command, bool) {
	return e.received.MostRecent()
}

// SentMessage returns the sent-history entry for id.
func (e *Engine) SentMessage(id uint32) (Command, bool) {
	return e.sent.Get(id)
}

// ReceivedMessage returns the received-history entry for id.
func (e *Engine) ReceivedMessage(id uint32) (Command, bool) {
	return e.received.Get(id)
}

// Stats returns a copy of the engine statistics.
func (e *Engine) Stats() Statistics {
	return e.stats
}

// LastError returns the most recent framing or write error, if any.
func (e *Engine) LastError() error {
	return e.lastErr
}

// elapsed is the wraparound-safe difference now - since.
func elapsed(now, since uint32) uint32 {
	return now - since
}
