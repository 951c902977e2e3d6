// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"fmt"
	"time"
)

// Statistics tracks frame traffic and error counts for an Engine
type Statistics struct {
	StartTime time.Time

	// Inbound
	FramesReceived uint64
	ChecksumErrors uint64
	LengthErrors   uint64
	DecodeErrors   uint64
	Duplicates     uint64
	AcksReceived   uint64
	NacksReceived  uint64
	Dispatched     uint64
	DiscardedBytes uint64
	BytesRead      uint64
	ReadBudgetHits uint64

	// Outbound
	FramesSent   uint64
	AcksSent     uint64
	NacksSent    uint64
	Resends      uint64
	Dropped      uint64
	WriteErrors  uint64
	EncodeErrors uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// Errors returns the sum of all inbound framing and outbound write errors.
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.LengthErrors + s.DecodeErrors + s.WriteErrors + s.EncodeErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.FramesReceived+s.FramesSent) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Frames In:       %8d\n", s.FramesReceived)
	result += fmt.Sprintf("Frames Out:      %8d\n", s.FramesSent)
	result += fmt.Sprintf("Dispatched:      %8d\n", s.Dispatched)
	result += fmt.Sprintf("Acks In/Out:     %8d / %d\n", s.AcksReceived, s.AcksSent)

	if s.NacksReceived > 0 || s.NacksSent > 0 {
		result += fmt.Sprintf("Nacks In/Out:    %8d / %d\n", s.NacksReceived, s.NacksSent)
	}
	if s.Duplicates > 0 {
		result += fmt.Sprintf("Duplicates:      %8d\n", s.Duplicates)
	}
	if s.Resends > 0 {
		result += fmt.Sprintf("Resends:         %8d\n", s.Resends)
	}
	if s.Dropped > 0 {
		result += fmt.Sprintf("Dropped:         %8d\n", s.Dropped)
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.ChecksumErrors)
	}
	if s.LengthErrors > 0 {
		result += fmt.Sprintf("Length Errors:   %8d\n", s.LengthErrors)
	}
	if s.DecodeErrors > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.DecodeErrors)
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	if s.DiscardedBytes > 0 {
		result += fmt.Sprintf("Resync Bytes:    %8d\n", s.DiscardedBytes)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{StartTime: time.Now()}
}
