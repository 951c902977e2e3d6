// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw stream traffic as a sequence of CBOR records
// so a session can be replayed through a fresh engine later.
package capture

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"github.com/fxamacker/cbor/v2"
)

// Direction of captured bytes relative to the local engine
type Direction uint8

const (
	DirIn  Direction = 1
	DirOut Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return "RX"
	case DirOut:
		return "TX"
	default:
		return fmt.Sprintf("DIR(%d)", uint8(d))
	}
}

// Record is one chunk of bytes read from or written to the stream
type Record struct {
	At   time.Time `cbor:"1,keyasint"`
	Dir  Direction `cbor:"2,keyasint"`
	Data []byte    `cbor:"3,keyasint"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Writer appends records to an underlying writer
type Writer struct {
	mu  sync.Mutex
	enc *cbor.Encoder
}

// NewWriter creates a Writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: encMode.NewEncoder(w)}
}

// Write encodes one record
func (w *Writer) Write(r Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(r); err != nil {
		return fmt.Errorf("capture: encode record: %w", err)
	}
	return nil
}

// Reader decodes records written by a Writer
type Reader struct {
	dec *cbor.Decoder
}

// NewReader creates a Reader on r
func NewReader(r io.Reader) *Reader {
	return &Reader{dec: cbor.NewDecoder(r)}
}

// Next returns the next record, or io.EOF at the end of the capture
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("capture: decode record: %w", err)
	}
	return rec, nil
}

// ReadAll decodes every record in r
func ReadAll(r io.Reader) ([]Record, error) {
	rd := NewReader(r)
	var out []Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// TeeStream wraps a protoframe.Stream and records every chunk that passes
// through it. Capture failures are reported through OnError and never
// interrupt the stream.
type TeeStream struct {
	protoframe.Stream
	w       *Writer
	now     func() time.Time
	OnError func(error)
}

// NewTeeStream records traffic on s to w
func NewTeeStream(s protoframe.Stream, w *Writer) *TeeStream {
	return &TeeStream{Stream: s, w: w, now: time.Now}
}

func (t *TeeStream) Read(p []byte) (int, error) {
	n, err := t.Stream.Read(p)
	if n > 0 {
		t.record(DirIn, p[:n])
	}
	return n, err
}

func (t *TeeStream) Write(p []byte) (int, error) {
	n, err := t.Stream.Write(p)
	if n > 0 {
		t.record(DirOut, p[:n])
	}
	return n, err
}

func (t *TeeStream) record(dir Direction, data []byte) {
	rec := Record{At: t.now(), Dir: dir, Data: append([]byte(nil), data...)}
	if err := t.w.Write(rec); err != nil && t.OnError != nil {
		t.OnError(err)
	}
}

// Replay feeds every inbound record in r to feed in order, calling after
// once per record. It returns the number of records replayed.
func Replay(r io.Reader, feed func([]byte), after func(Record)) (int, error) {
	rd := NewReader(r)
	n := 0
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if rec.Dir != DirIn {
			continue
		}
		feed(rec.Data)
		n++
		if after != nil {
			after(rec)
		}
	}
}
