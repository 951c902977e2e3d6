// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"bytes"
	"io"
	"sync"
)

// Stream is the byte transport the Engine runs over.
//
// Read must not block waiting for data: it returns 0 bytes when nothing is
// ready. Available reports how many bytes can be read right now.
type Stream interface {
	io.Reader
	io.Writer
	Available() int
}

// BufferStream is an in-memory Stream. Bytes passed to Feed become readable;
// bytes written by the Engine are collected for inspection.
type BufferStream struct {
	mu  sync.Mutex
	rx  bytes.Buffer
	tx  bytes.Buffer
	err error // returned by Write when set
	max int   // short-write limit per Write call, 0 = unlimited
}

// NewBufferStream creates an empty in-memory stream.
func NewBufferStream() *BufferStream {
	return &BufferStream{}
}

// Feed queues bytes for the reader side.
func (s *BufferStream) Feed(p []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx.Write(p)
}

// Read drains queued bytes. It never blocks and returns 0, nil when empty.
func (s *BufferStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rx.Len() == 0 {
		return 0, nil
	}
	return s.rx.Read(p)
}

// Write records p, honoring any injected failure.
func (s *BufferStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	if s.max > 0 && len(p) > s.max {
		s.tx.Write(p[:s.max])
		return s.max, nil
	}
	return s.tx.Write(p)
}

// Available returns the number of queued reader bytes.
func (s *BufferStream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Len()
}

// Written returns a copy of everything written so far.
func (s *BufferStream) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.tx.Bytes())
}

// TakeWritten returns everything written so far and clears it.
func (s *BufferStream) TakeWritten() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := bytes.Clone(s.tx.Bytes())
	s.tx.Reset()
	return out
}

// FailWrites makes every following Write return err. Pass nil to clear.
func (s *BufferStream) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// LimitWrites truncates every following Write to n bytes. Pass 0 to clear.
func (s *BufferStream) LimitWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.max = n
}
