// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned once the WebSocket reader has stopped and
// every buffered byte has been consumed
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocketStream adapts a WebSocket carrying binary messages to
// protoframe.Stream. A background goroutine moves incoming messages into a
// buffer so Read and Available never block.
type WebSocketStream struct {
	conn *websocket.Conn

	mu  sync.Mutex
	buf []byte
	err error

	writeMu sync.Mutex
	done    chan struct{}
}

// NewWebSocketStream starts reading from conn
func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	w := &WebSocketStream{
		conn: conn,
		done: make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketStream) readLoop() {
	defer close(w.done)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}

		// Only binary messages carry frames
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.mu.Lock()
		w.buf = append(w.buf, data...)
		w.mu.Unlock()
	}
}

// Available returns the number of buffered bytes
func (w *WebSocketStream) Available() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buf)
}

// Read drains buffered bytes. It returns ErrConnectionClosed once the
// connection is gone and the buffer is empty.
func (w *WebSocketStream) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		if w.err != nil {
			return 0, ErrConnectionClosed
		}
		return 0, nil
	}
	n := copy(p, w.buf)
	w.buf = w.buf[n:]
	return n, nil
}

// Write sends p as one binary message
func (w *WebSocketStream) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Err returns the error that stopped the reader, if any
func (w *WebSocketStream) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed when the reader stops
func (w *WebSocketStream) Done() <-chan struct{} {
	return w.done
}

// Close closes the connection and waits for the reader to stop
func (w *WebSocketStream) Close() error {
	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	w.writeMu.Unlock()

	err := w.conn.Close()
	<-w.done
	return err
}

// DialWebSocket connects to wsURL, with HTTP Basic auth when username and
// password are both set
func DialWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*WebSocketStream, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return NewWebSocketStream(conn), nil
}
