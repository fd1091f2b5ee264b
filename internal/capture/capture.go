// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package capture records raw bus traffic to a file and plays it back.
//
// A capture file is a CBOR sequence: one Header followed by one Chunk per
// transport read. Replaying the chunks through a Synchronizer reproduces the
// original frame stream, including the noise between frames.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/poolstat/pkg/bus"
)

// Format identifies capture files.
const (
	Format  = "poolstat-capture"
	Version = 1
)

var ErrFormat = errors.New("not a poolstat capture")

// Header is the first item of a capture file.
type Header struct {
	Format  string `cbor:"1,keyasint"`
	Version int    `cbor:"2,keyasint"`
	Started int64  `cbor:"3,keyasint"` // unix nanoseconds
	Source  string `cbor:"4,keyasint,omitempty"`
}

// Chunk is the data returned by one transport read.
type Chunk struct {
	Offset time.Duration `cbor:"1,keyasint"` // since Header.Started
	Data   []byte        `cbor:"2,keyasint"`
}

// Writer appends chunks to a capture. It is safe for concurrent use and
// implements io.Writer, so it can sit behind an io.TeeReader.
type Writer struct {
	mu     sync.Mutex
	enc    *cbor.Encoder
	start  time.Time
	now    func() time.Time
	chunks int
	bytes  int
	err    error
}

// NewWriter writes the header and returns a Writer. source describes the
// transport, e.g. the serial port name.
func NewWriter(w io.Writer, source string) (*Writer, error) {
	return newWriter(w, source, time.Now)
}

func newWriter(w io.Writer, source string, now func() time.Time) (*Writer, error) {
	cw := &Writer{enc: cbor.NewEncoder(w), start: now(), now: now}
	h := Header{Format: Format, Version: Version, Started: cw.start.UnixNano(), Source: source}
	if err := cw.enc.Encode(h); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return cw, nil
}

// Write records p as one chunk. After the first error every call fails.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return 0, w.err
	}
	c := Chunk{Offset: w.now().Sub(w.start), Data: p}
	if err := w.enc.Encode(c); err != nil {
		w.err = fmt.Errorf("write capture chunk: %w", err)
		return 0, w.err
	}
	w.chunks++
	w.bytes += len(p)
	return len(p), nil
}

// Stats returns the chunk and byte counts written so far.
func (w *Writer) Stats() (chunks, bytes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chunks, w.bytes
}

// Err returns the first write error.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// tap records everything read from a transport.
type tap struct {
	bus.Transport
	w *Writer
}

func (t *tap) Read(p []byte) (int, error) {
	n, err := t.Transport.Read(p)
	if n > 0 {
		// a failed capture must not take the bus down; see Writer.Err
		_, _ = t.w.Write(p[:n])
	}
	return n, err
}

// Tap returns a transport that records every read into w.
func Tap(t bus.Transport, w *Writer) bus.Transport {
	return &tap{Transport: t, w: w}
}

// Reader reads a capture file.
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and checks the header.
func NewReader(r io.Reader) (*Reader, error) {
	cr := &Reader{dec: cbor.NewDecoder(r)}
	if err := cr.dec.Decode(&cr.header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if cr.header.Format != Format {
		return nil, fmt.Errorf("%w: format %q", ErrFormat, cr.header.Format)
	}
	if cr.header.Version != Version {
		return nil, fmt.Errorf("%w: version %d", ErrFormat, cr.header.Version)
	}
	return cr, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// Started returns the capture start time.
func (r *Reader) Started() time.Time {
	return time.Unix(0, r.header.Started)
}

// Next returns the next chunk, or io.EOF after the last one.
func (r *Reader) Next() (Chunk, error) {
	var c Chunk
	if err := r.dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, io.EOF
		}
		return Chunk{}, fmt.Errorf("read capture chunk: %w", err)
	}
	return c, nil
}

// Replay writes every chunk to w and returns the number of bytes written.
// With speed > 0 the recorded spacing is reproduced, divided by speed; with
// speed 0 chunks are written back to back.
func Replay(ctx context.Context, r *Reader, w io.Writer, speed float64) (int, error) {
	var (
		total int
		start = time.Now()
	)
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		if speed > 0 {
			due := start.Add(time.Duration(float64(c.Offset) / speed))
			if wait := time.Until(due); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return total, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := w.Write(c.Data)
		total += n
		if err != nil {
			return total, err
		}
	}
}
