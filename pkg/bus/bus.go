// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bus binds a byte transport to the frame synchronizer and the write
// coordinator. One reader goroutine per connection feeds validated frames to
// the registered handlers.
package bus

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// Transport is a connected serial port, TCP bridge or WebSocket bridge.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Bus owns one transport at a time. Handlers run on the reader goroutine and
// must not wait for a write response themselves.
type Bus struct {
	coord  *Coordinator
	logger *zap.Logger

	mu        sync.Mutex
	transport Transport
	cancel    context.CancelFunc
	done      chan struct{}
	readerErr error
	handlers  []pentair.FrameHandler
	onReject  []pentair.RejectHandler

	syncMu sync.Mutex
	sync   *pentair.Synchronizer
}

// Option configures a Bus
type Option func(*Bus)

// WithBusLogger sets the bus logger.
func WithBusLogger(l *zap.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithCoordinator replaces the default write coordinator.
func WithCoordinator(c *Coordinator) Option {
	return func(b *Bus) {
		b.coord = c
	}
}

// New creates a disconnected bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger: zap.NewNop(),
		sync:   pentair.NewSynchronizer(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.coord == nil {
		b.coord = NewCoordinator(WithLogger(b.logger))
	}
	b.sync.OnReject(b.reject)
	return b
}

// Coordinator returns the write coordinator
func (b *Bus) Coordinator() *Coordinator {
	return b.coord
}

// AddHandler registers a frame handler. Handlers are called in registration
// order.
func (b *Bus) AddHandler(h pentair.FrameHandler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// OnReject registers an observer for rejected marker matches.
func (b *Bus) OnReject(h pentair.RejectHandler) {
	b.mu.Lock()
	b.onReject = append(b.onReject, h)
	b.mu.Unlock()
}

// Connect binds t and starts the reader. An existing transport is
// disconnected first.
func (b *Bus) Connect(t Transport) {
	b.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	b.mu.Lock()
	b.transport = t
	b.cancel = cancel
	b.done = done
	b.readerErr = nil
	b.mu.Unlock()

	b.syncMu.Lock()
	b.sync.Reset()
	b.syncMu.Unlock()

	b.coord.Bind(t)
	go b.read(ctx, t, done)
	b.logger.Info("bus connected")
}

// Disconnect closes the transport and waits for the reader to stop. Writers
// waiting for a response are released with ErrBusClosed.
func (b *Bus) Disconnect() error {
	b.mu.Lock()
	t, cancel, done := b.transport, b.cancel, b.done
	b.transport, b.cancel = nil, nil
	b.mu.Unlock()

	if t == nil {
		return nil
	}

	b.coord.Unbind()
	cancel()
	err := t.Close()
	<-done
	b.logger.Info("bus disconnected")
	return err
}

// Connected reports whether a transport is bound and its reader is alive.
func (b *Bus) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transport != nil && b.readerAliveLocked()
}

// ReaderAlive reports whether the reader goroutine is still running.
func (b *Bus) ReaderAlive() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readerAliveLocked()
}

func (b *Bus) readerAliveLocked() bool {
	if b.done == nil {
		return false
	}
	select {
	case <-b.done:
		return false
	default:
		return true
	}
}

// Err returns the error that stopped the last reader, if any.
func (b *Bus) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readerErr
}

// Stats returns the synchronizer counters of the current connection.
func (b *Bus) Stats() pentair.SyncStats {
	b.syncMu.Lock()
	defer b.syncMu.Unlock()
	return b.sync.Stats()
}

// Write transmits w through the coordinator.
func (b *Bus) Write(ctx context.Context, w Writable, expected int, retries int) (bool, error) {
	return b.coord.Write(ctx, w, expected, retries)
}

// Send transmits a command and waits for its response.
func (b *Bus) Send(ctx context.Context, cmd pentair.Command, retries int) (bool, error) {
	return b.coord.Send(ctx, cmd, retries)
}

// Ack forwards the response key of a processed frame to the coordinator.
func (b *Bus) Ack(response int) {
	b.coord.Ack(response)
}

func (b *Bus) read(ctx context.Context, r io.Reader, done chan struct{}) {
	defer close(done)

	chunk := make([]byte, 512)
	for {
		if ctx.Err() != nil {
			b.stop(nil)
			return
		}

		n, err := r.Read(chunk)
		if n > 0 {
			b.syncMu.Lock()
			frames := b.sync.FeedBytes(chunk[:n])
			b.syncMu.Unlock()
			b.dispatch(frames)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.syncMu.Lock()
				frames := b.sync.Flush()
				b.syncMu.Unlock()
				b.dispatch(frames)
			}
			if ctx.Err() != nil {
				err = nil
			}
			b.stop(err)
			return
		}
	}
}

func (b *Bus) stop(err error) {
	b.mu.Lock()
	b.readerErr = err
	b.mu.Unlock()
	if err != nil {
		b.logger.Warn("bus reader stopped", zap.Error(err))
		b.coord.Unbind()
	}
}

func (b *Bus) dispatch(frames []pentair.WireFrame) {
	if len(frames) == 0 {
		return
	}
	b.mu.Lock()
	handlers := append([]pentair.FrameHandler(nil), b.handlers...)
	b.mu.Unlock()

	for _, f := range frames {
		for _, h := range handlers {
			pentair.Dispatch(h, f)
		}
	}
}

// reject runs on the reader goroutine with syncMu held.
func (b *Bus) reject(r pentair.Reject) {
	b.mu.Lock()
	observers := append([]pentair.RejectHandler(nil), b.onReject...)
	b.mu.Unlock()

	b.logger.Debug("frame rejected",
		zap.Stringer("kind", r.Kind),
		zap.Error(r.Reason),
		zap.Binary("raw", r.Raw))
	for _, h := range observers {
		h(r)
	}
}
