// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

// ControllerChecksum sums a controller frame from the 0xA5 start byte through
// the last payload byte; the FF 00 FF lead-in is not part of the span.
func ControllerChecksum(span []byte) uint16 {
	var sum uint32
	for _, b := range span {
		sum += uint32(b)
	}
	return uint16(sum & 0xFFFF)
}

// ChlorinatorChecksum computes the 8-bit additive checksum of a chlorinator
// frame. The span starts at the 0x10 0x02 marker and ends with the last payload
// byte.
func ChlorinatorChecksum(span []byte) uint8 {
	var sum uint32
	for _, b := range span {
		sum += uint32(b)
	}
	return uint8(sum & 0xFF)
}

// DecodeChecksum reads the trailing big-endian checksum of a serialized
// controller frame.
func DecodeChecksum(wire []byte) (uint16, error) {
	if len(wire) < 2 {
		return 0, ErrShortFrame
	}
	return uint16(wire[len(wire)-2])<<8 | uint16(wire[len(wire)-1]), nil
}
