// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"errors"
	"fmt"
)

var (
	ErrEncode   = errors.New("protoframe: encode failed")
	ErrOverSize = errors.New("protoframe: payload exceeds maximum frame size")
	ErrWrite    = errors.New("protoframe: stream write failed")
	ErrLength   = errors.New("protoframe: declared length exceeds maximum")
	ErrChecksum = errors.New("protoframe: checksum mismatch")
	ErrDecode   = errors.New("protoframe: decode failed")
	ErrKind     = errors.New("protoframe: no handler slot for payload kind")
)

// DecodeError describes a payload that could not be turned into a Command.
// ID is populated when the id field was parsed before the failure, so the
// caller can negatively acknowledge that specific message.
type DecodeError struct {
	ID     uint32
	HasID  bool
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "protoframe: decode failed: " + e.Reason
	if e.HasID {
		msg = fmt.Sprintf("%s (id=%d)", msg, e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrDecode as a match so callers can use errors.Is.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
