// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/protoframe/internal/config"
	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort hands out queued chunks one Read at a time
type fakePort struct {
	mu      sync.Mutex
	chunks  [][]byte
	written bytes.Buffer
	readErr error
	timeout time.Duration
	closed  bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.chunks) == 0 {
		return 0, p.readErr
	}
	n := copy(b, p.chunks[0])
	p.chunks[0] = p.chunks[0][n:]
	if len(p.chunks[0]) == 0 {
		p.chunks = p.chunks[1:]
	}
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func TestSerialStream_AvailableAndRead(t *testing.T) {
	port := &fakePort{chunks: [][]byte{{0xAA, 0x01}, {0x02}}}
	s, err := NewSerialStream(port)
	require.NoError(t, err)
	assert.Equal(t, pollTimeout, port.timeout)

	assert.Equal(t, 2, s.Available())
	assert.Equal(t, 2, s.Available(), "buffered bytes are not polled again")

	buf := make([]byte, 1)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0xAA), buf[0])

	assert.Equal(t, 1, s.Available())
	buf = make([]byte, 8)
	n, _ = s.Read(buf)
	assert.Equal(t, []byte{0x01}, buf[:n])

	assert.Equal(t, 1, s.Available())
	n, _ = s.Read(buf)
	assert.Equal(t, []byte{0x02}, buf[:n])

	assert.Equal(t, 0, s.Available())
	n, err = s.Read(buf)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)
}

func TestSerialStream_PortError(t *testing.T) {
	portErr := errors.New("device unplugged")
	port := &fakePort{readErr: portErr}
	s, err := NewSerialStream(port)
	require.NoError(t, err)

	assert.Equal(t, 0, s.Available())
	_, err = s.Read(make([]byte, 4))
	assert.ErrorIs(t, err, portErr)
	assert.ErrorIs(t, s.Err(), portErr)
}

func TestSerialStream_DrivesEngine(t *testing.T) {
	frame, err := protoframe.EncodeFrame(protoframe.Command{ID: 42, Payload: protoframe.Led{Start: 1, End: 2, Duration: 10}})
	require.NoError(t, err)
	port := &fakePort{chunks: [][]byte{frame[:4], frame[4:]}}
	s, err := NewSerialStream(port)
	require.NoError(t, err)

	var got []protoframe.Command
	e, err := protoframe.NewEngine(s, protoframe.Config{
		Handlers: map[protoframe.PayloadKind]protoframe.Handler{
			protoframe.KindLed: func(cmd protoframe.Command) { got = append(got, cmd) },
		},
	})
	require.NoError(t, err)

	assert.True(t, e.Tick())
	require.Len(t, got, 1)
	assert.Equal(t, []byte{0xAA, 0x06, 0x08, 0x2A, 0x22, 0x02, 0x08, 0x01, 0x6D}, port.written.Bytes())

	require.NoError(t, s.Close())
	assert.True(t, port.closed)
}

// echoServer echoes binary messages and drops text messages
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, pass, ok := r.BasicAuth(); ok && (user != "admin" || pass != "secret") {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				if err := conn.WriteMessage(mt, data); err != nil {
					return
				}
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitAvailable(t *testing.T, s *WebSocketStream, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Available() >= n }, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketStream_Echo(t *testing.T) {
	srv := echoServer(t)
	s, err := DialWebSocket(context.Background(), wsURL(srv), "", "", false)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, s.conn.WriteMessage(websocket.TextMessage, []byte("ignored")))
	_, err = s.Write([]byte{4})
	require.NoError(t, err)

	waitAvailable(t, s, 4)
	buf := make([]byte, 16)
	n, err = s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, buf[:n])
}

func TestWebSocketStream_EngineExchange(t *testing.T) {
	srv := echoServer(t)
	s, err := DialWebSocket(context.Background(), wsURL(srv), "admin", "secret", false)
	require.NoError(t, err)
	defer s.Close()

	// The echo server loops our own command back, so the engine receives it,
	// acknowledges it and then consumes its own ack.
	var got []protoframe.Command
	e, err := protoframe.NewEngine(s, protoframe.Config{
		Handlers: map[protoframe.PayloadKind]protoframe.Handler{
			protoframe.KindSound: func(cmd protoframe.Command) { got = append(got, cmd) },
		},
	})
	require.NoError(t, err)

	require.NoError(t, e.Send(protoframe.Command{ID: 9, Payload: protoframe.Sound{ID: 2, Play: true}}))
	require.Eventually(t, func() bool {
		e.Tick()
		return len(got) == 1 && e.PendingCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWebSocketStream_ClosedByPeer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0xAA})
		conn.Close()
	}))
	defer srv.Close()

	s, err := DialWebSocket(context.Background(), wsURL(srv), "", "", false)
	require.NoError(t, err)

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
	assert.Error(t, s.Err())

	buf := make([]byte, 4)
	n, err := s.Read(buf)
	require.NoError(t, err, "buffered bytes are still delivered")
	assert.Equal(t, 1, n)

	_, err = s.Read(buf)
	assert.ErrorIs(t, err, ErrConnectionClosed)
	s.Close()
}

func TestDialWebSocket_Errors(t *testing.T) {
	_, err := DialWebSocket(context.Background(), "http://example.com", "", "", false)
	assert.ErrorContains(t, err, "unsupported URL scheme")

	srv := echoServer(t)
	_, err = DialWebSocket(context.Background(), wsURL(srv), "admin", "wrong", false)
	assert.ErrorContains(t, err, "HTTP 401")
}

func TestOpen_NoConnection(t *testing.T) {
	_, _, err := Open(context.Background(), &config.Config{})
	assert.ErrorIs(t, err, ErrNoConnection)
}

func TestOpen_WebSocketWithPasswordEnv(t *testing.T) {
	srv := echoServer(t)
	t.Setenv(PasswordEnv, "secret")

	conn, info, err := Open(context.Background(), &config.Config{URL: wsURL(srv), Username: "admin"})
	require.NoError(t, err)
	defer conn.Close()
	assert.Contains(t, info, "WebSocket")
}
