// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"time"
)

// FrameKind tells the two wire protocols apart.
type FrameKind int

const (
	KindController FrameKind = iota
	KindChlorinator
)

func (k FrameKind) String() string {
	if k == KindChlorinator {
		return "chlorinator"
	}
	return "controller"
}

// WireFrame is a validated frame of either protocol.
type WireFrame interface {
	Kind() FrameKind
	Dest() uint8
	Action() uint8
	Payload() []byte
	Bytes() []byte
	Timestamp() time.Time
}

// Frame is one controller protocol frame
type Frame struct {
	preamble  uint8
	dest      uint8
	source    uint8
	action    uint8
	payload   []byte
	checksum  uint16
	timestamp time.Time
}

// NewFrame builds a frame for the write path.
func NewFrame(preamble, dest, source, action uint8, payload []byte) (*Frame, error) {
	if len(payload) > ControllerMaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadLength, len(payload), ControllerMaxPayload)
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	f := &Frame{
		preamble:  preamble,
		dest:      dest,
		source:    source,
		action:    action,
		payload:   p,
		timestamp: time.Now(),
	}
	f.checksum = ControllerChecksum(append(f.Header(), p...))
	return f, nil
}

// MustNewFrame is NewFrame for payloads known to fit.
func MustNewFrame(preamble, dest, source, action uint8, payload []byte) *Frame {
	f, err := NewFrame(preamble, dest, source, action, payload)
	if err != nil {
		panic(err)
	}
	return f
}

// Kind implements WireFrame
func (f *Frame) Kind() FrameKind {
	return KindController
}

// Preamble returns the byte following 0xA5
func (f *Frame) Preamble() uint8 {
	return f.preamble
}

// Dest returns the destination bus address
func (f *Frame) Dest() uint8 {
	return f.dest
}

// Source returns the source bus address
func (f *Frame) Source() uint8 {
	return f.source
}

// Action returns the action code
func (f *Frame) Action() uint8 {
	return f.action
}

// Length returns the declared payload length
func (f *Frame) Length() uint8 {
	return uint8(len(f.payload))
}

// Payload returns a copy of the payload bytes
func (f *Frame) Payload() []byte {
	p := make([]byte, len(f.payload))
	copy(p, f.payload)
	return p
}

// Byte returns payload byte i, or 0 past the end of the payload.
func (f *Frame) Byte(i int) uint8 {
	if i < 0 || i >= len(f.payload) {
		return 0
	}
	return f.payload[i]
}

// Checksum returns the frame checksum
func (f *Frame) Checksum() uint16 {
	return f.checksum
}

// Timestamp returns when the frame was built or decoded
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}

// Header returns A5 preamble dest source action len.
func (f *Frame) Header() []byte {
	return []byte{ControllerStart, f.preamble, f.dest, f.source, f.action, uint8(len(f.payload))}
}

// Bytes serializes the frame including the idle lead-in and checksum.
func (f *Frame) Bytes() []byte {
	out := make([]byte, 0, 3+ControllerHeaderSize+len(f.payload)+2)
	out = append(out, IdleByte, IdleGap, IdleByte)
	out = append(out, f.Header()...)
	out = append(out, f.payload...)
	sum := ControllerChecksum(out[3:])
	return append(out, byte(sum>>8), byte(sum))
}

// WithPreamble returns a copy of the frame carrying a different preamble.
func (f *Frame) WithPreamble(preamble uint8) *Frame {
	return MustNewFrame(preamble, f.dest, f.source, f.action, f.payload)
}

// String renders the header and payload as hex
func (f *Frame) String() string {
	return fmt.Sprintf("% X | % X", f.Header(), f.payload)
}

// ParseFrame validates one complete controller frame. Leading idle bytes
// (FF 00 FF) are optional.
func ParseFrame(raw []byte) (*Frame, error) {
	i := 0
	for i < len(raw) && (raw[i] == IdleByte || raw[i] == IdleGap) {
		i++
	}
	raw = raw[i:]
	if len(raw) < ControllerHeaderSize+2 {
		return nil, ErrShortFrame
	}
	if raw[0] != ControllerStart {
		return nil, ErrMarker
	}
	n := int(raw[5])
	if len(raw) != ControllerHeaderSize+n+2 {
		return nil, fmt.Errorf("%w: declared %d, frame carries %d", ErrPayloadLength, n, len(raw)-ControllerHeaderSize-2)
	}
	want := ControllerChecksum(raw[:ControllerHeaderSize+n])
	got, _ := DecodeChecksum(raw)
	if got != want {
		return nil, fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrChecksum, want, got)
	}
	f, err := DecodeFrameBody(raw[:ControllerHeaderSize+n])
	if err != nil {
		return nil, err
	}
	f.checksum = got
	return f, nil
}

// DecodeFrameBody builds a frame from its header and payload without a
// checksum, as captured by bus sniffers that strip it.
func DecodeFrameBody(body []byte) (*Frame, error) {
	if len(body) < ControllerHeaderSize {
		return nil, ErrShortFrame
	}
	if body[0] != ControllerStart {
		return nil, ErrMarker
	}
	n := int(body[5])
	if len(body) != ControllerHeaderSize+n {
		return nil, fmt.Errorf("%w: declared %d, body carries %d", ErrPayloadLength, n, len(body)-ControllerHeaderSize)
	}
	return NewFrame(body[1], body[2], body[3], body[4], body[ControllerHeaderSize:])
}

// ChlorinatorFrame is one salt chlorinator protocol frame
type ChlorinatorFrame struct {
	dest      uint8
	action    uint8
	payload   []byte
	checksum  uint8
	timestamp time.Time
}

// NewChlorinatorFrame builds a chlorinator frame. The payload length must
// match the length table for the action.
func NewChlorinatorFrame(dest, action uint8, payload []byte) (*ChlorinatorFrame, error) {
	want, ok := ChlorinatorPayloadLength(action)
	if !ok {
		return nil, fmt.Errorf("%w: chlorinator action 0x%02X", ErrUnknownAction, action)
	}
	if len(payload) != want {
		return nil, fmt.Errorf("%w: action 0x%02X wants %d bytes, got %d", ErrPayloadLength, action, want, len(payload))
	}
	p := make([]byte, len(payload))
	copy(p, payload)
	c := &ChlorinatorFrame{dest: dest, action: action, payload: p, timestamp: time.Now()}
	c.checksum = ChlorinatorChecksum(c.span())
	return c, nil
}

// Kind implements WireFrame
func (c *ChlorinatorFrame) Kind() FrameKind {
	return KindChlorinator
}

// Dest returns the destination address (0x50 for the cell, 0x00 for the controller)
func (c *ChlorinatorFrame) Dest() uint8 {
	return c.dest
}

// Action returns the action code
func (c *ChlorinatorFrame) Action() uint8 {
	return c.action
}

// Payload returns a copy of the payload bytes
func (c *ChlorinatorFrame) Payload() []byte {
	p := make([]byte, len(c.payload))
	copy(p, c.payload)
	return p
}

// Checksum returns the 8-bit checksum
func (c *ChlorinatorFrame) Checksum() uint8 {
	return c.checksum
}

// Timestamp returns when the frame was built or decoded
func (c *ChlorinatorFrame) Timestamp() time.Time {
	return c.timestamp
}

func (c *ChlorinatorFrame) span() []byte {
	out := make([]byte, 0, ChlorinatorHeaderSize+len(c.payload))
	out = append(out, ChlorinatorDLE, ChlorinatorSTX, c.dest, c.action)
	return append(out, c.payload...)
}

// Bytes serializes the frame with checksum and the 10 03 trailer.
func (c *ChlorinatorFrame) Bytes() []byte {
	out := c.span()
	out = append(out, ChlorinatorChecksum(out))
	return append(out, ChlorinatorDLE, ChlorinatorETX)
}

// String renders the frame as hex
func (c *ChlorinatorFrame) String() string {
	return fmt.Sprintf("% X", c.span())
}

// ParseChlorinatorFrame validates one complete chlorinator frame. The 10 03
// trailer is optional.
func ParseChlorinatorFrame(raw []byte) (*ChlorinatorFrame, error) {
	if len(raw) < ChlorinatorHeaderSize+1 {
		return nil, ErrShortFrame
	}
	if raw[0] != ChlorinatorDLE || raw[1] != ChlorinatorSTX {
		return nil, ErrMarker
	}
	n, ok := ChlorinatorPayloadLength(raw[3])
	if !ok {
		return nil, fmt.Errorf("%w: chlorinator action 0x%02X", ErrUnknownAction, raw[3])
	}
	end := ChlorinatorHeaderSize + n
	if len(raw) != end+1 && len(raw) != end+3 {
		return nil, fmt.Errorf("%w: action 0x%02X wants %d bytes", ErrPayloadLength, raw[3], n)
	}
	want := ChlorinatorChecksum(raw[:end])
	if raw[end] != want {
		return nil, fmt.Errorf("%w: expected 0x%02X, got 0x%02X", ErrChecksum, want, raw[end])
	}
	return NewChlorinatorFrame(raw[2], raw[3], raw[ChlorinatorHeaderSize:end])
}

// DecodeChlorinatorBody builds a chlorinator frame from marker, header and
// payload without the checksum.
func DecodeChlorinatorBody(body []byte) (*ChlorinatorFrame, error) {
	if len(body) < ChlorinatorHeaderSize {
		return nil, ErrShortFrame
	}
	if body[0] != ChlorinatorDLE || body[1] != ChlorinatorSTX {
		return nil, ErrMarker
	}
	return NewChlorinatorFrame(body[2], body[3], body[ChlorinatorHeaderSize:])
}
