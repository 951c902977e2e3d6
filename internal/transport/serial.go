// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// pollTimeout bounds how long Available may block on the port
const pollTimeout = time.Millisecond

// Port is the part of serial.Port a SerialStream needs
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// SerialStream adapts a serial port to protoframe.Stream. The port has no
// way to report buffered bytes, so Available performs a short timed read
// and holds on to what it got.
type SerialStream struct {
	mu      sync.Mutex
	port    Port
	buf     []byte
	scratch [256]byte
	err     error
}

// NewSerialStream wraps an already opened port
func NewSerialStream(port Port) (*SerialStream, error) {
	if err := port.SetReadTimeout(pollTimeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &SerialStream{port: port}, nil
}

// OpenSerial opens portName at baudRate, 8N1
func OpenSerial(portName string, baudRate int) (*SerialStream, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}

	s, err := NewSerialStream(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return s, nil
}

// Available polls the port and returns the number of buffered bytes
func (s *SerialStream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 && s.err == nil {
		n, err := s.port.Read(s.scratch[:])
		if n > 0 {
			s.buf = append(s.buf, s.scratch[:n]...)
		}
		if err != nil {
			s.err = err
		}
	}
	return len(s.buf)
}

// Read drains buffered bytes without blocking. A port error seen while
// polling is returned once the buffer is empty.
func (s *SerialStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.buf) == 0 {
		return 0, s.err
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *SerialStream) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Err returns the port error that stopped polling, if any
func (s *SerialStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SerialStream) Close() error {
	return s.port.Close()
}
