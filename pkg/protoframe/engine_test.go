// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

// ============================================================
// Test Helpers
// ============================================================

type manualClock struct {
	now uint32
}

func (c *manualClock) Now() uint32 { return c.now }

func (c *manualClock) Advance(ms uint32) { c.now += ms }

type handlerLog struct {
	led   []Command
	move  []Command
	sound []Command
}

func (h *handlerLog) total() int {
	return len(h.led) + len(h.move) + len(h.sound)
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *BufferStream, *manualClock, *handlerLog) {
	t.Helper()
	stream := NewBufferStream()
	clock, ok := cfg.Clock.(*manualClock)
	if !ok {
		clock = &manualClock{}
		cfg.Clock = clock
	}
	calls := &handlerLog{}
	cfg.Handlers = map[PayloadKind]Handler{
		KindLed:   func(cmd Command) { calls.led = append(calls.led, cmd) },
		KindMove:  func(cmd Command) { calls.move = append(calls.move, cmd) },
		KindSound: func(cmd Command) { calls.sound = append(calls.sound, cmd) },
	}
	e, err := NewEngine(stream, cfg)
	require.NoError(t, err)
	return e, stream, clock, calls
}

func mustFrame(t *testing.T, cmd Command) []byte {
	t.Helper()
	frame, err := EncodeFrame(cmd)
	require.NoError(t, err)
	return frame
}

// rawFrame frames an arbitrary payload with a correct checksum.
func rawFrame(payload []byte) []byte {
	frame := []byte{StartByte, byte(len(payload))}
	frame = append(frame, payload...)
	return append(frame, CalculateCRC(payload))
}

// readFrames splits written bytes back into decoded commands.
func readFrames(t *testing.T, data []byte) []Command {
	t.Helper()
	var out []Command
	for len(data) > 0 {
		require.Equal(t, byte(StartByte), data[0], "written data must be frame aligned")
		require.GreaterOrEqual(t, len(data), 2)
		n := int(data[1])
		require.GreaterOrEqual(t, len(data), n+frameOverhead)
		payload := data[2 : 2+n]
		require.Equal(t, CalculateCRC(payload), data[2+n])
		cmd, err := Decode(payload)
		require.NoError(t, err)
		out = append(out, cmd)
		data = data[n+frameOverhead:]
	}
	return out
}

var ackFrame42 = []byte{0xAA, 0x06, 0x08, 0x2A, 0x22, 0x02, 0x08, 0x01, 0x6D}

// ============================================================
// Construction
// ============================================================

func TestNewEngine_Defaults(t *testing.T) {
	e, err := NewEngine(NewBufferStream(), Config{})
	require.NoError(t, err)
	assert.Equal(t, uint32(DefaultTimeout), e.cfg.Timeout)
	assert.Equal(t, DefaultMaxRetries, e.cfg.MaxRetries)
	assert.Equal(t, HistoryCapacity, e.cfg.MaxPending)
	assert.NotNil(t, e.log)

	now := uint32(time.Now().UnixMilli())
	assert.LessOrEqual(t, elapsed(e.SafeTimestamp(), now), uint32(1000), "default clock follows wall time")
}

func TestEngine_FreshEnginesStampDistinctIDs(t *testing.T) {
	receiver, stream, _, calls := newTestEngine(t, Config{})

	var ids []uint32
	for i := uint32(1); i <= 2; i++ {
		if i > 1 {
			time.Sleep(5 * time.Millisecond)
		}
		out := NewBufferStream()
		sender, err := NewEngine(out, Config{Region: RegionBody})
		require.NoError(t, err)

		cmd := sender.NewLedCommand(RegionDome, i, 2, 10)
		require.NoError(t, sender.Send(cmd))
		ids = append(ids, cmd.ID)

		stream.Feed(out.TakeWritten())
		assert.True(t, receiver.ReadFrame())
	}

	assert.NotEqual(t, ids[0], ids[1])
	require.Len(t, calls.led, 2)
	assert.Equal(t, Led{Start: 2, End: 2, Duration: 10}, calls.led[1].Payload)
	assert.Equal(t, uint64(0), receiver.Stats().Duplicates)
	assert.Equal(t, uint64(2), receiver.Stats().AcksSent)
}

func TestNewEngine_NilStream(t *testing.T) {
	_, err := NewEngine(nil, Config{})
	assert.Error(t, err)
}

func TestEngine_HandleRejectsAck(t *testing.T) {
	e, _, _, _ := newTestEngine(t, Config{})
	assert.ErrorIs(t, e.Handle(KindAck, func(Command) {}), ErrKind)
	assert.ErrorIs(t, e.Handle(KindNone, func(Command) {}), ErrKind)
	assert.NoError(t, e.Handle(KindLed, nil))

	_, err := NewEngine(NewBufferStream(), Config{Handlers: map[PayloadKind]Handler{KindAck: func(Command) {}}})
	assert.ErrorIs(t, err, ErrKind)
}

// ============================================================
// Frame Assembly
// ============================================================

func TestEngine_EndToEndByteByByte(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	frame := mustFrame(t, Command{ID: 42, Payload: Led{Start: 1, End: 2, Duration: 10}})

	completed := 0
	for _, b := range frame {
		stream.Feed([]byte{b})
		if e.Tick() {
			completed++
		}
	}

	assert.Equal(t, 1, completed)
	assert.Equal(t, 1, e.ReceivedHistorySize())
	got, ok := e.ReceivedMessage(42)
	require.True(t, ok)
	assert.Equal(t, Led{Start: 1, End: 2, Duration: 10}, got.Payload)

	require.Len(t, calls.led, 1)
	assert.Equal(t, uint32(42), calls.led[0].ID)

	assert.Equal(t, ackFrame42, stream.Written())
	assert.Equal(t, 0, e.PendingCount(), "acks are not tracked")
	assert.Equal(t, 0, e.SentHistorySize())
}

func TestEngine_FrameSpansReads(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	frame := mustFrame(t, Command{ID: 5, Payload: Sound{ID: 1, Play: true}})

	stream.Feed(frame[:3])
	assert.False(t, e.ReadFrame())
	stream.Feed(frame[3:])
	assert.True(t, e.ReadFrame())
	assert.Len(t, calls.sound, 1)
}

func TestEngine_ResyncOnLeadingNoise(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	stream.Feed([]byte{0x00, 0x13, 0x7E, 0x0A})
	stream.Feed(mustFrame(t, Command{ID: 42, Payload: Led{Start: 1, End: 2, Duration: 10}}))

	assert.True(t, e.ReadFrame())
	assert.Len(t, calls.led, 1)
	assert.Equal(t, uint64(4), e.Stats().DiscardedBytes)
	assert.Equal(t, uint64(1), e.Stats().FramesReceived)
}

func TestEngine_OversizeLength(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	stream.Feed([]byte{StartByte, MaxPayloadSize + 1})

	assert.False(t, e.ReadFrame())
	assert.Equal(t, 0, calls.total())
	assert.ErrorIs(t, e.LastError(), ErrLength)
	assert.Equal(t, uint64(1), e.Stats().LengthErrors)
	assert.Equal(t, stateWaitStart, e.frame.state)

	stream.Feed(mustFrame(t, Command{ID: 8, Payload: Move{X: 3}}))
	assert.True(t, e.ReadFrame())
	assert.Len(t, calls.move, 1)
}

func TestEngine_MaxLengthFrameAccepted(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})

	payload, err := Encode(Command{ID: 42, Payload: Led{Start: 1}})
	require.NoError(t, err)
	// Pad with an unknown field up to the largest accepted length.
	pad := protowire.AppendTag(nil, 20, protowire.BytesType)
	padLen := MaxPayloadSize - len(payload) - len(pad) - 1
	payload = append(payload, pad...)
	payload = protowire.AppendBytes(payload, make([]byte, padLen))
	require.Len(t, payload, MaxPayloadSize)

	stream.Feed(rawFrame(payload))
	assert.True(t, e.ReadFrame())
	require.Len(t, calls.led, 1)
	assert.Equal(t, Led{Start: 1}, calls.led[0].Payload)
	_, ok := e.ReceivedMessage(42)
	assert.True(t, ok)
	assert.Equal(t, uint64(0), e.Stats().LengthErrors)
	assert.Equal(t, ackFrame42, stream.Written())
}

func TestEngine_ChecksumMismatch(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	frame := mustFrame(t, Command{ID: 42, Payload: Led{Start: 1}})
	frame[len(frame)-1] ^= 0xFF
	stream.Feed(frame)

	assert.False(t, e.ReadFrame())
	assert.Equal(t, 0, calls.total())
	assert.Equal(t, 0, e.ReceivedHistorySize())
	assert.Empty(t, stream.Written())
	assert.ErrorIs(t, e.LastError(), ErrChecksum)
	assert.Equal(t, uint64(1), e.Stats().ChecksumErrors)
}

func TestEngine_MultipleFramesInOneTick(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	stream.Feed(mustFrame(t, Command{ID: 1, Payload: Led{Start: 1}}))
	stream.Feed([]byte{0x55})
	stream.Feed(mustFrame(t, Command{ID: 2, Payload: Move{Y: 2}}))
	stream.Feed(mustFrame(t, Command{ID: 3, Payload: Sound{ID: 3}}))

	assert.True(t, e.Tick())
	assert.Equal(t, 3, calls.total())
	assert.Equal(t, 3, e.ReceivedHistorySize())
	assert.Len(t, readFrames(t, stream.Written()), 3)
}

func TestEngine_ZeroLengthFrameIsDropped(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	stream.Feed([]byte{StartByte, 0x00, 0x00})

	assert.True(t, e.ReadFrame(), "frame is valid even though it decodes to nothing")
	assert.Equal(t, 0, calls.total())
	assert.Empty(t, stream.Written())
	assert.Equal(t, uint64(1), e.Stats().DecodeErrors)
}

func TestEngine_ReadBudget(t *testing.T) {
	var now uint32
	clock := ClockFunc(func() uint32 {
		now += 600
		return now
	})
	stream := NewBufferStream()
	e, err := NewEngine(stream, Config{Clock: clock, Timeout: 1000})
	require.NoError(t, err)

	stream.Feed(make([]byte, 300))
	assert.False(t, e.ReadFrame())
	assert.Equal(t, 300-MaxFrameSize, stream.Available(), "one chunk read before the budget ran out")
	assert.Equal(t, uint64(1), e.Stats().ReadBudgetHits)
}

func TestEngine_EmptyStreamReturnsImmediately(t *testing.T) {
	e, _, _, _ := newTestEngine(t, Config{})
	assert.False(t, e.Tick())
}

// ============================================================
// Receive
// ============================================================

func TestEngine_DuplicateDispatchedOnce(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	frame := mustFrame(t, Command{ID: 42, Payload: Led{Start: 1, End: 2, Duration: 10}})

	stream.Feed(frame)
	e.Tick()
	stream.Feed(frame)
	e.Tick()

	assert.Len(t, calls.led, 1)
	acks := readFrames(t, stream.Written())
	require.Len(t, acks, 2)
	for _, ack := range acks {
		assert.Equal(t, Command{ID: 42, Payload: Ack{Acknowledged: true}}, ack)
	}
	assert.Equal(t, uint64(1), e.Stats().Duplicates)
	assert.Equal(t, uint64(2), e.Stats().AcksSent)
}

func TestEngine_DecodeErrorWithIDSendsNack(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	stream.Feed(rawFrame([]byte{0x08, 0x2A}))

	assert.True(t, e.ReadFrame())
	assert.Equal(t, 0, calls.total())
	assert.Equal(t, 0, e.ReceivedHistorySize())
	assert.ErrorIs(t, e.LastError(), ErrDecode)

	sent := readFrames(t, stream.Written())
	require.Len(t, sent, 1)
	assert.Equal(t, Command{ID: 42, Payload: Ack{Acknowledged: false, Reason: "Invalid message"}}, sent[0])
	assert.Equal(t, 0, e.PendingCount())
}

func TestEngine_DecodeErrorWithoutIDIsSilent(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	stream.Feed(rawFrame([]byte{0x10, 0x20}))

	assert.True(t, e.ReadFrame())
	assert.Empty(t, stream.Written())
}

func TestEngine_UnhandledKindIsAcknowledged(t *testing.T) {
	stream := NewBufferStream()
	e, err := NewEngine(stream, Config{Clock: &manualClock{}})
	require.NoError(t, err)

	stream.Feed(mustFrame(t, Command{ID: 42, Payload: Led{}}))
	assert.True(t, e.Tick())
	assert.Equal(t, ackFrame42, stream.Written())
	assert.Equal(t, uint64(0), e.Stats().Dispatched)
}

func TestEngine_HandlerSeesSourceAndTarget(t *testing.T) {
	e, stream, _, calls := newTestEngine(t, Config{})
	cmd := Command{ID: 11, Source: RegionDome, Target: RegionBody, Payload: Move{Target: ActuatorBodyNeck, X: 1, Y: 2, Z: 3}}
	stream.Feed(mustFrame(t, cmd))

	e.Tick()
	require.Len(t, calls.move, 1)
	assert.Equal(t, cmd, calls.move[0])
	last, ok := e.LastReceived()
	require.True(t, ok)
	assert.Equal(t, cmd, last)
}

// ============================================================
// Send
// ============================================================

func TestEngine_SendTracksPending(t *testing.T) {
	e, stream, clock, _ := newTestEngine(t, Config{})
	clock.now = 500
	cmd := Command{ID: 42, Payload: Led{Start: 1, End: 2, Duration: 10}}

	require.NoError(t, e.Send(cmd))
	assert.Equal(t, mustFrame(t, cmd), stream.Written())
	assert.Equal(t, 1, e.SentHistorySize())
	last, ok := e.LastSent()
	require.True(t, ok)
	assert.Equal(t, cmd, last)

	p, ok := e.Pending(42)
	require.True(t, ok)
	assert.Equal(t, PendingAck{ID: 42, LastProcessedTimestamp: 500, RetryCount: 0}, p)

	clock.now = 700
	require.NoError(t, e.Send(cmd))
	p, _ = e.Pending(42)
	assert.Equal(t, PendingAck{ID: 42, LastProcessedTimestamp: 700, RetryCount: 1}, p)
	assert.Equal(t, 1, e.PendingCount())
}

func TestEngine_SendWriteError(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	stream.FailWrites(errors.New("port gone"))

	err := e.Send(Command{ID: 1, Payload: Led{Start: 1}})
	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, 0, e.SentHistorySize())
	assert.Equal(t, uint64(1), e.Stats().WriteErrors)
}

func TestEngine_SendShortWrite(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	stream.LimitWrites(2)

	err := e.Send(Command{ID: 1, Payload: Led{Start: 1}})
	assert.ErrorIs(t, err, ErrWrite)
	assert.Equal(t, 0, e.PendingCount())
}

func TestEngine_SendOversize(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	reason := make([]byte, MaxPayloadSize)
	for i := range reason {
		reason[i] = 'r'
	}

	err := e.Send(Command{ID: 1, Payload: Ack{Reason: string(reason)}})
	assert.ErrorIs(t, err, ErrOverSize)
	assert.Empty(t, stream.Written())
	assert.Equal(t, 0, e.SentHistorySize())
}

func TestEngine_SendWithoutPayload(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	assert.ErrorIs(t, e.Send(Command{ID: 1}), ErrEncode)
	assert.Empty(t, stream.Written())
}

func TestEngine_ResendReplaysOriginal(t *testing.T) {
	e, stream, clock, _ := newTestEngine(t, Config{})
	original := Command{ID: 9, Payload: Led{Start: 1}}
	require.NoError(t, e.Send(original))

	// A different payload under the same id is written but not stored.
	require.NoError(t, e.Send(Command{ID: 9, Payload: Led{Start: 2}}))
	stream.TakeWritten()

	clock.Advance(DefaultTimeout)
	e.Retry()
	assert.Equal(t, mustFrame(t, original), stream.Written())
}

// ============================================================
// Acknowledgement and Retry
// ============================================================

func TestEngine_AckRemovesPending(t *testing.T) {
	e, stream, clock, _ := newTestEngine(t, Config{})
	require.NoError(t, e.Send(Command{ID: 42, Payload: Led{Start: 1}}))
	stream.TakeWritten()

	stream.Feed(ackFrame42)
	assert.True(t, e.Tick())
	assert.Equal(t, 0, e.PendingCount())
	assert.Empty(t, stream.Written(), "acks are never acknowledged")

	clock.Advance(10 * DefaultTimeout)
	e.Tick()
	assert.Empty(t, stream.Written(), "no resend after ack")
	assert.Equal(t, uint64(1), e.Stats().AcksReceived)
}

func TestEngine_RepeatedAcksAreHarmless(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	require.NoError(t, e.Send(Command{ID: 42, Payload: Led{Start: 1}}))
	stream.TakeWritten()

	stream.Feed(ackFrame42)
	stream.Feed(ackFrame42)
	e.Tick()

	assert.Equal(t, 0, e.PendingCount())
	assert.Empty(t, stream.Written())
	assert.Equal(t, uint64(2), e.Stats().AcksReceived)
	assert.Equal(t, uint64(0), e.Stats().Duplicates)
}

func TestEngine_NackResendsImmediately(t *testing.T) {
	e, stream, clock, _ := newTestEngine(t, Config{})
	cmd := Command{ID: 42, Payload: Led{Start: 1}}
	require.NoError(t, e.Send(cmd))
	stream.TakeWritten()

	clock.Advance(10)
	stream.Feed(mustFrame(t, Command{ID: 42, Payload: Ack{Reason: "Invalid message"}}))
	e.ReadFrame()

	assert.Equal(t, mustFrame(t, cmd), stream.TakeWritten())
	p, ok := e.Pending(42)
	require.True(t, ok)
	assert.Equal(t, 1, p.RetryCount)
	assert.Equal(t, uint32(10), p.LastProcessedTimestamp)

	// Nack followed by ack for the same id still clears the entry.
	stream.Feed(ackFrame42)
	e.ReadFrame()
	assert.Equal(t, 0, e.PendingCount())
}

func TestEngine_NackForUnknownIDIsIgnored(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	stream.Feed(mustFrame(t, Command{ID: 555, Payload: Ack{}}))
	e.Tick()
	assert.Empty(t, stream.Written())
	assert.Equal(t, uint64(1), e.Stats().NacksReceived)
}

func TestEngine_RetryLifecycle(t *testing.T) {
	var dropped []Command
	e, stream, clock, _ := newTestEngine(t, Config{
		Timeout:    1000,
		MaxRetries: 3,
		OnDrop:     func(cmd Command) { dropped = append(dropped, cmd) },
	})
	cmd := Command{ID: 42, Payload: Led{Start: 1}}
	frame := mustFrame(t, cmd)
	require.NoError(t, e.Send(cmd))
	stream.TakeWritten()

	for retry := 1; retry <= 3; retry++ {
		clock.Advance(999)
		e.Tick()
		assert.Empty(t, stream.Written(), "no resend before timeout (retry %d)", retry)

		clock.Advance(1)
		e.Tick()
		assert.Equal(t, frame, stream.TakeWritten(), "resend %d", retry)

		p, ok := e.Pending(42)
		require.True(t, ok)
		assert.Equal(t, retry, p.RetryCount)
	}

	e.Tick()
	assert.Equal(t, 0, e.PendingCount())
	require.Len(t, dropped, 1)
	assert.Equal(t, cmd, dropped[0])

	clock.Advance(5000)
	e.Tick()
	assert.Empty(t, stream.Written())
	assert.Equal(t, uint64(3), e.Stats().Resends)
	assert.Equal(t, uint64(1), e.Stats().Dropped)
}

func TestEngine_RetryAcrossTimestampWrap(t *testing.T) {
	clock := &manualClock{now: 0xFFFFFF00}
	e, stream, _, _ := newTestEngine(t, Config{Clock: clock, Timeout: 1000})
	require.NoError(t, e.Send(Command{ID: 7, Payload: Sound{ID: 1}}))
	stream.TakeWritten()

	clock.now = 0x000002E7 // 999 ms later, after wrapping
	e.Retry()
	assert.Empty(t, stream.Written())

	clock.now = 0x000002E8 // 1000 ms later
	e.Retry()
	assert.NotEmpty(t, stream.Written())
	p, _ := e.Pending(7)
	assert.Equal(t, 1, p.RetryCount)
	assert.Equal(t, uint32(0x000002E8), p.LastProcessedTimestamp)
}

func TestElapsedWraparound(t *testing.T) {
	assert.Equal(t, uint32(0x20), elapsed(0x10, 0xFFFFFFF0))
	assert.Equal(t, uint32(0), elapsed(0xFFFFFFFF, 0xFFFFFFFF))
	assert.Equal(t, uint32(1), elapsed(0, 0xFFFFFFFF))
	assert.Equal(t, uint32(1000), elapsed(2000, 1000))
}

func TestEngine_RetryFailedWriteKeepsEntry(t *testing.T) {
	e, stream, clock, _ := newTestEngine(t, Config{Timeout: 100})
	require.NoError(t, e.Send(Command{ID: 3, Payload: Led{End: 1}}))

	stream.FailWrites(errors.New("busy"))
	clock.Advance(100)
	e.Retry()
	p, ok := e.Pending(3)
	require.True(t, ok)
	assert.Equal(t, 0, p.RetryCount)
	assert.Equal(t, uint64(0), e.Stats().Resends)
	assert.Equal(t, uint64(1), e.Stats().WriteErrors)

	stream.FailWrites(nil)
	e.Retry()
	p, _ = e.Pending(3)
	assert.Equal(t, 1, p.RetryCount)
	assert.Equal(t, uint64(1), e.Stats().Resends)
}

func TestEngine_PendingTableBounded(t *testing.T) {
	var dropped []uint32
	e, _, _, _ := newTestEngine(t, Config{
		MaxPending: 2,
		OnDrop:     func(cmd Command) { dropped = append(dropped, cmd.ID) },
	})

	for id := uint32(1); id <= 3; id++ {
		require.NoError(t, e.Send(Command{ID: id, Payload: Led{Start: id}}))
	}

	assert.Equal(t, 2, e.PendingCount())
	_, ok := e.Pending(1)
	assert.False(t, ok)
	assert.Equal(t, []uint32{1}, dropped)
	assert.Equal(t, []PendingAck{{ID: 2}, {ID: 3}}, e.PendingEntries())
}

func TestEngine_RetrySkipsEntriesEvictedDuringSweep(t *testing.T) {
	var (
		e       *Engine
		dropped []uint32
	)
	e, stream, clock, _ := newTestEngine(t, Config{
		Timeout:    100,
		MaxRetries: 1,
		MaxPending: 2,
		OnDrop: func(cmd Command) {
			dropped = append(dropped, cmd.ID)
			if cmd.ID == 1 {
				// Refilling the table evicts id 2 while the sweep is running.
				require.NoError(t, e.Send(Command{ID: 3, Payload: Led{Start: 3}}))
				require.NoError(t, e.Send(Command{ID: 4, Payload: Led{Start: 4}}))
			}
		},
	})
	require.NoError(t, e.Send(Command{ID: 1, Payload: Led{Start: 1}}))
	require.NoError(t, e.Send(Command{ID: 2, Payload: Led{Start: 2}}))

	clock.Advance(100)
	e.Retry()
	stream.TakeWritten()

	e.Retry()

	assert.Equal(t, []uint32{1, 2}, dropped)
	assert.Equal(t, uint64(2), e.Stats().Dropped)
	assert.Equal(t, []PendingAck{
		{ID: 3, LastProcessedTimestamp: 100},
		{ID: 4, LastProcessedTimestamp: 100},
	}, e.PendingEntries())

	var written []uint32
	for _, cmd := range readFrames(t, stream.Written()) {
		written = append(written, cmd.ID)
	}
	assert.Equal(t, []uint32{3, 4}, written)
}

// ============================================================
// Reset and Peers
// ============================================================

func TestEngine_Reset(t *testing.T) {
	e, stream, _, _ := newTestEngine(t, Config{})
	require.NoError(t, e.Send(Command{ID: 1, Payload: Led{Start: 1}}))
	stream.Feed(mustFrame(t, Command{ID: 2, Payload: Led{Start: 2}}))
	e.Tick()
	stream.Feed([]byte{StartByte, 0x05, 0x01})
	e.Tick()

	e.Reset()
	assert.Equal(t, 0, e.SentHistorySize())
	assert.Equal(t, 0, e.ReceivedHistorySize())
	assert.Equal(t, 0, e.PendingCount())
	assert.Equal(t, stateWaitStart, e.frame.state)
	assert.Equal(t, uint64(0), e.Stats().FramesReceived)
	assert.NoError(t, e.LastError())
}

func TestEngine_TwoPeers(t *testing.T) {
	a, streamA, _, _ := newTestEngine(t, Config{Region: RegionBody, Clock: &manualClock{now: 77}})
	b, streamB, _, callsB := newTestEngine(t, Config{Region: RegionDome})

	pump := func() {
		for i := 0; i < 5; i++ {
			streamB.Feed(streamA.TakeWritten())
			b.Tick()
			streamA.Feed(streamB.TakeWritten())
			a.Tick()
		}
	}

	cmd := a.NewSoundCommand(RegionDome, 4, true, false)
	require.NoError(t, a.Send(cmd))
	pump()

	require.Len(t, callsB.sound, 1)
	assert.Equal(t, uint32(77), callsB.sound[0].ID)
	assert.Equal(t, RegionBody, callsB.sound[0].Source)
	assert.Equal(t, 0, a.PendingCount())
	assert.Empty(t, streamA.Written(), "exchange must quiesce")
	assert.Empty(t, streamB.Written(), "exchange must quiesce")
	assert.Equal(t, uint64(1), b.Stats().AcksSent)
}

func TestEngine_CommandConstructors(t *testing.T) {
	clock := &manualClock{now: 1234}
	e, _, _, _ := newTestEngine(t, Config{Clock: clock, Region: RegionNeck})

	led := e.NewLedCommand(RegionDome, 1, 2, 3)
	assert.Equal(t, Command{ID: 1234, Source: RegionNeck, Target: RegionDome, Payload: Led{Start: 1, End: 2, Duration: 3}}, led)

	clock.Advance(1)
	move := e.NewMoveCommand(RegionBody, ActuatorBodyNeck, 4, 5, 6)
	assert.Equal(t, uint32(1235), move.ID)
	assert.Equal(t, Move{Target: ActuatorBodyNeck, X: 4, Y: 5, Z: 6}, move.Payload)

	sound := e.NewSoundCommand(RegionLeg, 9, true, true)
	assert.Equal(t, Sound{ID: 9, Play: true, SyncToLeds: true}, sound.Payload)
	assert.Equal(t, RegionNeck, e.Region())
}
