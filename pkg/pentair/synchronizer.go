// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"context"
	"errors"
	"io"
	"time"
)

// FrameHandler receives validated frames from a Synchronizer
type FrameHandler interface {
	OnFrame(f *Frame)
	OnChlorinatorFrame(f *ChlorinatorFrame)
}

// FrameHandlerFuncs adapts a pair of functions to FrameHandler. Nil
// functions drop the frames of that kind.
type FrameHandlerFuncs struct {
	Frame       func(*Frame)
	Chlorinator func(*ChlorinatorFrame)
}

// OnFrame implements FrameHandler
func (h FrameHandlerFuncs) OnFrame(f *Frame) {
	if h.Frame != nil {
		h.Frame(f)
	}
}

// OnChlorinatorFrame implements FrameHandler
func (h FrameHandlerFuncs) OnChlorinatorFrame(f *ChlorinatorFrame) {
	if h.Chlorinator != nil {
		h.Chlorinator(f)
	}
}

// Dispatch hands a frame of either kind to a FrameHandler.
func Dispatch(h FrameHandler, f WireFrame) {
	switch v := f.(type) {
	case *Frame:
		h.OnFrame(v)
	case *ChlorinatorFrame:
		h.OnChlorinatorFrame(v)
	}
}

// Reject describes a marker match that was thrown away
type Reject struct {
	Kind   FrameKind
	Reason error // ErrChecksum or ErrUnknownAction
	Raw    []byte
}

// RejectHandler observes rejected marker matches
type RejectHandler func(Reject)

// SyncStats counts what the synchronizer has seen
type SyncStats struct {
	BytesIn             uint64
	BytesSkipped        uint64
	Markers             uint64
	ChecksumErrors      uint64
	UnknownChlorActions uint64
	Frames              uint64
	ChlorinatorFrames   uint64
}

type matchResult int

const (
	matchNone matchResult = iota
	matchPartial
	matchFrame
)

// Synchronizer finds controller and chlorinator frames in a raw byte stream.
//
// Pending bytes are kept in a rolling buffer. At the head of the buffer the
// controller marker is tried first, then the chlorinator marker. When neither
// matches, or a matched frame fails its checksum, exactly one byte is dropped
// and matching restarts, so a frame starting inside a rejected span is still
// found.
type Synchronizer struct {
	buf      []byte
	stats    SyncStats
	onReject RejectHandler
}

// NewSynchronizer creates a synchronizer with an empty buffer
func NewSynchronizer() *Synchronizer {
	return &Synchronizer{
		buf: make([]byte, 0, 2*(ControllerHeaderSize+ControllerMaxPayload+3)),
	}
}

// OnReject installs a callback for rejected marker matches.
func (s *Synchronizer) OnReject(h RejectHandler) {
	s.onReject = h
}

// Stats returns a copy of the counters
func (s *Synchronizer) Stats() SyncStats {
	return s.stats
}

// Pending returns the number of buffered bytes not yet resolved
func (s *Synchronizer) Pending() int {
	return len(s.buf)
}

// Reset drops buffered bytes and clears the counters
func (s *Synchronizer) Reset() {
	s.buf = s.buf[:0]
	s.stats = SyncStats{}
}

// Feed processes one byte and returns any frames it completed.
func (s *Synchronizer) Feed(b byte) []WireFrame {
	s.stats.BytesIn++
	s.buf = append(s.buf, b)
	return s.process(false)
}

// FeedBytes processes a chunk and returns the frames it completed, in order.
func (s *Synchronizer) FeedBytes(p []byte) []WireFrame {
	s.stats.BytesIn += uint64(len(p))
	s.buf = append(s.buf, p...)
	return s.process(false)
}

// Flush resolves everything still buffered as if no more bytes will arrive.
// Incomplete candidates are given up one byte at a time so that complete
// frames behind them are still emitted.
func (s *Synchronizer) Flush() []WireFrame {
	return s.process(true)
}

// Scan reads r until it fails, handing every validated frame to h. Buffered
// bytes are flushed when r reports io.EOF. The returned error is always the
// reader's error or the context's; frame corruption never ends the scan.
func (s *Synchronizer) Scan(ctx context.Context, r io.Reader, h FrameHandler) error {
	chunk := make([]byte, 512)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			for _, f := range s.FeedBytes(chunk[:n]) {
				Dispatch(h, f)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				for _, f := range s.Flush() {
					Dispatch(h, f)
				}
			}
			return err
		}
	}
}

func (s *Synchronizer) process(final bool) []WireFrame {
	var out []WireFrame
	for len(s.buf) > 0 {
		f, n, result := s.match()
		switch result {
		case matchFrame:
			out = append(out, f)
			s.consume(n)
		case matchPartial:
			if !final {
				return out
			}
			s.skip()
		default:
			s.skip()
		}
	}
	return out
}

func (s *Synchronizer) match() (WireFrame, int, matchResult) {
	switch s.buf[0] {
	case IdleByte:
		return s.matchController()
	case ChlorinatorDLE:
		return s.matchChlorinator()
	default:
		return nil, 0, matchNone
	}
}

// matchController tries FF A5 pre dst src act len payload chkH chkL at the
// head of the buffer.
func (s *Synchronizer) matchController() (WireFrame, int, matchResult) {
	buf := s.buf
	if len(buf) < 2 {
		return nil, 0, matchPartial
	}
	if buf[1] != ControllerStart {
		return nil, 0, matchNone
	}
	if len(buf) < 1+ControllerHeaderSize {
		return nil, 0, matchPartial
	}

	n := int(buf[6])
	end := 1 + ControllerHeaderSize + n
	total := end + 2
	if len(buf) < total {
		return nil, 0, matchPartial
	}

	s.stats.Markers++
	want := ControllerChecksum(buf[1:end])
	got := uint16(buf[end])<<8 | uint16(buf[end+1])
	if got != want {
		s.stats.ChecksumErrors++
		s.reject(KindController, ErrChecksum, buf[:total])
		return nil, 0, matchNone
	}

	payload := make([]byte, n)
	copy(payload, buf[1+ControllerHeaderSize:end])
	s.stats.Frames++
	return &Frame{
		preamble:  buf[2],
		dest:      buf[3],
		source:    buf[4],
		action:    buf[5],
		payload:   payload,
		checksum:  got,
		timestamp: time.Now(),
	}, total, matchFrame
}

// matchChlorinator tries 10 02 dst act payload sum at the head of the buffer.
func (s *Synchronizer) matchChlorinator() (WireFrame, int, matchResult) {
	buf := s.buf
	if len(buf) < 2 {
		return nil, 0, matchPartial
	}
	if buf[1] != ChlorinatorSTX {
		return nil, 0, matchNone
	}
	if len(buf) < ChlorinatorHeaderSize {
		return nil, 0, matchPartial
	}

	n, ok := ChlorinatorPayloadLength(buf[3])
	if !ok {
		s.stats.UnknownChlorActions++
		s.reject(KindChlorinator, ErrUnknownAction, buf[:ChlorinatorHeaderSize])
		return nil, 0, matchNone
	}
	end := ChlorinatorHeaderSize + n
	total := end + 1
	if len(buf) < total {
		return nil, 0, matchPartial
	}

	s.stats.Markers++
	if want := ChlorinatorChecksum(buf[:end]); buf[end] != want {
		s.stats.ChecksumErrors++
		s.reject(KindChlorinator, ErrChecksum, buf[:total])
		return nil, 0, matchNone
	}

	payload := make([]byte, n)
	copy(payload, buf[ChlorinatorHeaderSize:end])
	s.stats.ChlorinatorFrames++
	return &ChlorinatorFrame{
		dest:      buf[2],
		action:    buf[3],
		payload:   payload,
		checksum:  buf[end],
		timestamp: time.Now(),
	}, total, matchFrame
}

func (s *Synchronizer) reject(kind FrameKind, reason error, raw []byte) {
	if s.onReject == nil {
		return
	}
	cp := make([]byte, len(raw))
	copy(cp, raw)
	s.onReject(Reject{Kind: kind, Reason: reason, Raw: cp})
}

func (s *Synchronizer) skip() {
	s.stats.BytesSkipped++
	s.consume(1)
}

func (s *Synchronizer) consume(n int) {
	s.buf = append(s.buf[:0], s.buf[n:]...)
}
