// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

// collector records frames handed to it by a Synchronizer
type collector struct {
	frames []WireFrame
}

func (c *collector) OnFrame(f *Frame)                        { c.frames = append(c.frames, f) }
func (c *collector) OnChlorinatorFrame(f *ChlorinatorFrame) { c.frames = append(c.frames, f) }

// feedAll pushes data one byte at a time and flushes
func feedAll(s *Synchronizer, data []byte) []WireFrame {
	var out []WireFrame
	for _, b := range data {
		out = append(out, s.Feed(b)...)
	}
	return append(out, s.Flush()...)
}

func TestSynchronizer_SingleControllerFrame(t *testing.T) {
	f := frameFromBody(t, statusSpaPoolHeater)
	s := NewSynchronizer()

	frames := feedAll(s, f.Bytes())
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	got, ok := frames[0].(*Frame)
	if !ok {
		t.Fatalf("got %T, want *Frame", frames[0])
	}
	if !bytes.Equal(got.Bytes(), f.Bytes()) {
		t.Errorf("frame = % X, want % X", got.Bytes(), f.Bytes())
	}
	if got.Preamble() != 0x1E || got.Source() != 0x10 || got.Dest() != 0x0F {
		t.Errorf("header = %s", got)
	}

	st := s.Stats()
	if st.Frames != 1 || st.ChecksumErrors != 0 {
		t.Errorf("stats = %+v", st)
	}
	// FF 00 lead-in is skipped, the final FF opens the marker
	if st.BytesSkipped != 2 {
		t.Errorf("BytesSkipped = %d, want 2", st.BytesSkipped)
	}
}

func TestSynchronizer_ChlorinatorFrames(t *testing.T) {
	stream := mustHex(t, "10 02 50 11 50 C3 10 03 10 02 00 12 4C 81 F1 10 03")
	frames := feedAll(NewSynchronizer(), stream)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, want := range []uint8{ChlorActionSetOutput, ChlorActionStatus} {
		c, ok := frames[i].(*ChlorinatorFrame)
		if !ok {
			t.Fatalf("frame %d is %T", i, frames[i])
		}
		if c.Action() != want {
			t.Errorf("frame %d action = 0x%02X, want 0x%02X", i, c.Action(), want)
		}
	}
}

func TestSynchronizer_MixedStreamInOrder(t *testing.T) {
	a := frameFromBody(t, statusSpaPoolHeater)
	b := chlorFromBody(t, "10 02 50 11 50")
	c := frameFromBody(t, pumpRunning1750)

	var stream []byte
	stream = append(stream, 0x00, 0x33, 0x44)
	stream = append(stream, a.Bytes()...)
	stream = append(stream, b.Bytes()...)
	stream = append(stream, 0x7E)
	stream = append(stream, c.Bytes()...)

	frames := NewSynchronizer().FeedBytes(stream)
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	wantKinds := []FrameKind{KindController, KindChlorinator, KindController}
	for i, f := range frames {
		if f.Kind() != wantKinds[i] {
			t.Errorf("frame %d kind = %s, want %s", i, f.Kind(), wantKinds[i])
		}
	}
	if frames[2].Action() != ActionPumpStatus {
		t.Errorf("third frame action = 0x%02X", frames[2].Action())
	}
}

func TestSynchronizer_CorruptedFrameRecovers(t *testing.T) {
	a := frameFromBody(t, statusSpaPoolHeater).Bytes()
	b := frameFromBody(t, statusAuxCircuits).Bytes()

	// Flip one payload byte of the first frame
	a[20] ^= 0x40

	var rejects []Reject
	s := NewSynchronizer()
	s.OnReject(func(r Reject) { rejects = append(rejects, r) })

	frames := feedAll(s, append(a, b...))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].(*Frame).Preamble() != 0x24 {
		t.Errorf("recovered wrong frame: %s", frames[0])
	}
	if s.Stats().ChecksumErrors != 1 {
		t.Errorf("ChecksumErrors = %d, want 1", s.Stats().ChecksumErrors)
	}
	// The source byte 0x10 followed by action 0x02 also looks like a
	// chlorinator marker while the rejected frame is rescanned
	if len(rejects) == 0 || !errors.Is(rejects[0].Reason, ErrChecksum) || rejects[0].Kind != KindController {
		t.Errorf("rejects = %+v", rejects)
	}
}

func TestSynchronizer_FrameInsideRejectedSpan(t *testing.T) {
	// A bogus header declares a long payload; a real frame starts inside it
	inner := frameFromBody(t, pumpRunning2005).Bytes()
	bogus := []byte{0xFF, 0xA5, 0x00, 0x10, 0x22, 0x86, 0x08}

	stream := append(append([]byte(nil), bogus...), inner...)
	frames := feedAll(NewSynchronizer(), stream)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Action() != ActionPumpStatus {
		t.Errorf("frame = %v", frames[0])
	}
}

func TestSynchronizer_UnknownChlorinatorAction(t *testing.T) {
	var rejects []Reject
	s := NewSynchronizer()
	s.OnReject(func(r Reject) { rejects = append(rejects, r) })

	stream := mustHex(t, "10 02 50 42 10 02 50 11 50 C3")
	frames := feedAll(s, stream)
	if len(frames) != 1 || frames[0].Action() != ChlorActionSetOutput {
		t.Fatalf("frames = %v", frames)
	}
	if s.Stats().UnknownChlorActions != 1 {
		t.Errorf("UnknownChlorActions = %d, want 1", s.Stats().UnknownChlorActions)
	}
	if len(rejects) != 1 || !errors.Is(rejects[0].Reason, ErrUnknownAction) {
		t.Errorf("rejects = %+v", rejects)
	}
}

func TestSynchronizer_PartialWaitsForMore(t *testing.T) {
	raw := frameFromBody(t, statusCircuit1Only).Bytes()
	s := NewSynchronizer()

	if frames := s.FeedBytes(raw[:10]); len(frames) != 0 {
		t.Fatalf("emitted %d frames from a partial", len(frames))
	}
	if s.Pending() == 0 {
		t.Fatalf("partial frame was not buffered")
	}
	frames := s.FeedBytes(raw[10:])
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after complete frame", s.Pending())
	}
}

func TestSynchronizer_FlushGivesUpPartial(t *testing.T) {
	good := chlorFromBody(t, "10 02 50 14 00").Bytes()
	// Truncated controller header ahead of a complete chlorinator frame
	stream := append([]byte{0xFF, 0xA5, 0x00, 0x10}, good...)

	s := NewSynchronizer()
	if frames := s.FeedBytes(stream); len(frames) != 0 {
		t.Fatalf("got %d frames before flush", len(frames))
	}
	frames := s.Flush()
	if len(frames) != 1 || frames[0].Kind() != KindChlorinator {
		t.Fatalf("Flush() = %v", frames)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after flush", s.Pending())
	}
}

func TestSynchronizer_GarbageOnly(t *testing.T) {
	rng := newFuzzRng(t)
	s := NewSynchronizer()

	garbage := make([]byte, 4096)
	for i := range garbage {
		b := byte(rng.Intn(256))
		for b == IdleByte || b == ChlorinatorDLE {
			b = byte(rng.Intn(256))
		}
		garbage[i] = b
	}

	if frames := feedAll(s, garbage); len(frames) != 0 {
		t.Fatalf("garbage produced %d frames", len(frames))
	}
	st := s.Stats()
	if st.BytesSkipped != uint64(len(garbage)) || st.BytesIn != uint64(len(garbage)) {
		t.Errorf("stats = %+v", st)
	}
	if st.Markers != 0 {
		t.Errorf("Markers = %d, want 0", st.Markers)
	}
}

func TestSynchronizer_Reset(t *testing.T) {
	s := NewSynchronizer()
	s.FeedBytes([]byte{0xFF, 0xA5, 0x00})
	s.Reset()
	if s.Pending() != 0 || s.Stats() != (SyncStats{}) {
		t.Errorf("Reset() left state: pending=%d stats=%+v", s.Pending(), s.Stats())
	}
}

func TestSynchronizer_Scan(t *testing.T) {
	var stream []byte
	stream = append(stream, frameFromBody(t, statusSpaPoolHeater).Bytes()...)
	stream = append(stream, chlorFromBody(t, "10 02 00 12 67 80").Bytes()...)
	// Truncated tail ends with a complete chlorinator frame, flushed at EOF
	stream = append(stream, 0xFF, 0xA5, 0x00)
	stream = append(stream, chlorFromBody(t, "10 02 50 11 00").Bytes()[:6]...)

	c := &collector{}
	err := NewSynchronizer().Scan(context.Background(), bytes.NewReader(stream), c)
	if !errors.Is(err, io.EOF) {
		t.Fatalf("Scan() error = %v, want io.EOF", err)
	}
	if len(c.frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(c.frames))
	}
	if c.frames[2].Action() != ChlorActionSetOutput {
		t.Errorf("flushed frame action = 0x%02X", c.frames[2].Action())
	}
}

func TestSynchronizer_ScanCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSynchronizer().Scan(ctx, bytes.NewReader([]byte{0xFF}), FrameHandlerFuncs{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Scan() error = %v, want context.Canceled", err)
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestSynchronizer_ScanReaderError(t *testing.T) {
	boom := errors.New("port closed")
	err := NewSynchronizer().Scan(context.Background(), failingReader{boom}, FrameHandlerFuncs{})
	if !errors.Is(err, boom) {
		t.Errorf("Scan() error = %v, want %v", err, boom)
	}
}

func TestFrameHandlerFuncs_NilDrops(t *testing.T) {
	var got int
	h := FrameHandlerFuncs{Chlorinator: func(*ChlorinatorFrame) { got++ }}
	Dispatch(h, frameFromBody(t, pumpStopped))
	Dispatch(h, chlorFromBody(t, "10 02 50 14 00"))
	if got != 1 {
		t.Errorf("chlorinator handler called %d times, want 1", got)
	}
}
