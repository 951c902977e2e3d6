// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

// CRC8 is a table-driven 8-bit checksum.
type CRC8 struct {
	table  [256]byte
	init   byte
	xorOut byte
}

// NewCRC8 builds a checksum engine with the protocol's parameters
// (polynomial 0x07, initial value 0x00, output XOR 0x00).
func NewCRC8() *CRC8 {
	return NewCRC8WithParams(crcPolynomial, crcInitial, crcXorOut)
}

// NewCRC8WithParams builds a checksum engine for an arbitrary non-reflected
// CRC-8 definition.
func NewCRC8WithParams(poly, init, xorOut byte) *CRC8 {
	c := &CRC8{init: init, xorOut: xorOut}
	for i := 0; i < 256; i++ {
		crc := byte(i)
		for bit := 0; bit < 8; bit++ {
			if crc&0x80 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		c.table[i] = crc
	}
	return c
}

// Calculate computes the checksum of data.
func (c *CRC8) Calculate(data []byte) byte {
	crc := c.init
	for _, b := range data {
		crc = c.table[crc^b]
	}
	return crc ^ c.xorOut
}

var defaultCRC = NewCRC8()

// CalculateCRC computes the protocol CRC-8 for the given data
func CalculateCRC(data []byte) byte {
	return defaultCRC.Calculate(data)
}
