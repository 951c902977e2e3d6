// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package protoframe implements a small ARQ protocol for exchanging commands
// over an unreliable serial byte stream.
//
// Frames are START | LENGTH | PAYLOAD | CRC8. The payload is a compact
// tag/varint encoding of a Command. The Engine assembles frames from a
// non-blocking Stream, acknowledges and deduplicates inbound commands, and
// retries unacknowledged outbound commands on a caller-driven tick.
package protoframe

// Protocol framing bytes
const (
	StartByte = 0xAA
)

// Frame size limits
const (
	MaxFrameSize   = 128 // frame assembly buffer
	MaxPayloadSize = 127 // largest LENGTH byte accepted on the wire
	frameOverhead  = 3   // START + LENGTH + CRC
)

// CRC-8 configuration
const (
	crcPolynomial = 0x07
	crcInitial    = 0x00
	crcXorOut     = 0x00
)

// Engine defaults
const (
	HistoryCapacity   = 25
	DefaultTimeout    = 1000 // milliseconds
	DefaultMaxRetries = 3
)

// Top-level Command field numbers
const (
	fieldID     = 1
	fieldSource = 2
	fieldTarget = 3
	fieldAck    = 4
	fieldLed    = 5
	fieldMove   = 6
	fieldSound  = 7
)

// Submessage field numbers
const (
	fieldAckAcknowledged = 1
	fieldAckReason       = 2

	fieldLedStart    = 1
	fieldLedEnd      = 2
	fieldLedDuration = 3

	fieldMoveTarget = 1
	fieldMoveX      = 2
	fieldMoveY      = 3
	fieldMoveZ      = 4

	fieldSoundID         = 1
	fieldSoundPlay       = 2
	fieldSoundSyncToLeds = 3
)

// Frame assembly states (internal)
const (
	stateWaitStart = iota
	stateReadLength
	stateReadPayload
	stateReadCRC
)

// Region identifies the origin or destination of a Command.
type Region uint32

// Region values
const (
	RegionUnspecified Region = 0
	RegionBody        Region = 1
	RegionLeg         Region = 2
	RegionNeck        Region = 3
	RegionDome        Region = 4
)

// Actuator identifies the target of a Move payload.
type Actuator uint32

// Actuator values
const (
	ActuatorUnspecified Actuator = 0
	ActuatorBodyNeck    Actuator = 1
)

// nackReasonDecode is sent when an inbound frame cannot be decoded.
const nackReasonDecode = "Invalid message"
