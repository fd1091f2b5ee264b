// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// DefaultAckTimeout is how long one write attempt waits for its response.
const DefaultAckTimeout = time.Second

var (
	ErrBusClosed   = errors.New("bus closed")
	ErrNoTransport = errors.New("no transport bound")
)

// Writable is anything that serializes to wire bytes. Both frame kinds
// implement it.
type Writable interface {
	Bytes() []byte
}

// WriteObserver is told about every attempt and every finished write.
type WriteObserver interface {
	WriteAttempt(expected int)
	WriteDone(expected int, ok bool, elapsed time.Duration)
}

// Coordinator serializes writes on the half-duplex bus and pairs each write
// with its response.
//
// One writer at a time owns the bus for its whole transmit, wait and retry
// cycle. The response slot is armed before the bytes go out, so a reply that
// arrives before the writer starts waiting is still counted.
type Coordinator struct {
	writeMu sync.Mutex

	mu       sync.Mutex
	cond     *sync.Cond
	w        io.Writer
	expected int
	acked    bool
	closed   bool

	ackTimeout time.Duration
	logger     *zap.Logger
	observer   WriteObserver
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithAckTimeout sets the per-attempt response timeout.
func WithAckTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver installs a write observer, typically bus metrics.
func WithObserver(o WriteObserver) CoordinatorOption {
	return func(c *Coordinator) {
		c.observer = o
	}
}

// NewCoordinator creates a coordinator with no transport bound.
func NewCoordinator(opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		expected:   pentair.NoResponse,
		ackTimeout: DefaultAckTimeout,
		logger:     zap.NewNop(),
	}
	c.cond = sync.NewCond(&c.mu)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AckTimeout returns the per-attempt response timeout
func (c *Coordinator) AckTimeout() time.Duration {
	return c.ackTimeout
}

// Bind attaches the transport writer. Binding reopens a closed coordinator.
func (c *Coordinator) Bind(w io.Writer) {
	c.mu.Lock()
	c.w = w
	c.closed = false
	c.mu.Unlock()
}

// Unbind detaches the transport. A writer waiting for a response is released
// with ErrBusClosed.
func (c *Coordinator) Unbind() {
	c.mu.Lock()
	c.w = nil
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Close releases any waiting writer with ErrBusClosed and refuses further
// writes until the next Bind.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Ack records a response seen on the bus, keyed by pentair.ResponseOf. It
// only counts when a write is waiting for exactly that key, so chlorinator
// and controller replies with the same action code never satisfy each other.
func (c *Coordinator) Ack(response int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.expected == pentair.NoResponse || c.expected != response {
		return
	}
	c.acked = true
	c.cond.Broadcast()
}

// Send writes a command and waits for the response it names.
func (c *Coordinator) Send(ctx context.Context, cmd pentair.Command, retries int) (bool, error) {
	return c.Write(ctx, cmd.Frame, cmd.Response, retries)
}

// Write transmits w and waits for a frame with the expected response action.
// A write with pentair.NoResponse returns true once the bytes are written.
// Otherwise the write is attempted up to retries+1 times, each attempt
// waiting up to the ack timeout. Running out of attempts returns false and a
// nil error.
func (c *Coordinator) Write(ctx context.Context, w Writable, expected int, retries int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if retries < 0 {
		retries = 0
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	start := time.Now()
	raw := w.Bytes()
	for attempt := 0; attempt <= retries; attempt++ {
		ok, err := c.attempt(ctx, raw, expected)
		if err != nil || ok {
			c.done(expected, ok, start)
			return ok, err
		}
		c.logger.Debug("no response",
			zap.Int("expected", expected),
			zap.Int("attempt", attempt+1),
			zap.Int("attempts", retries+1))
	}

	c.logger.Warn("write unacknowledged",
		zap.Int("expected", expected),
		zap.Int("attempts", retries+1),
		zap.Binary("frame", raw))
	c.done(expected, false, start)
	return false, nil
}

func (c *Coordinator) done(expected int, ok bool, start time.Time) {
	if c.observer != nil {
		c.observer.WriteDone(expected, ok, time.Since(start))
	}
}

// attempt arms the response slot, transmits and waits once.
func (c *Coordinator) attempt(ctx context.Context, raw []byte, expected int) (bool, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false, ErrBusClosed
	}
	w := c.w
	if w == nil {
		c.mu.Unlock()
		return false, ErrNoTransport
	}
	c.expected = expected
	c.acked = false
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.WriteAttempt(expected)
	}

	if _, err := w.Write(raw); err != nil {
		c.disarm()
		return false, fmt.Errorf("write: %w", err)
	}
	if expected == pentair.NoResponse {
		return true, nil
	}
	return c.await(ctx)
}

// await blocks until the armed response arrives, the attempt times out, the
// context ends or the transport goes away.
func (c *Coordinator) await(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expired := false
	timer := time.AfterFunc(c.ackTimeout, func() {
		c.mu.Lock()
		expired = true
		c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer timer.Stop()

	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.cond.Broadcast()
	})
	defer stop()

	for !c.acked && !expired && !c.closed && c.w != nil && ctx.Err() == nil {
		c.cond.Wait()
	}

	acked := c.acked
	c.expected = pentair.NoResponse
	c.acked = false

	switch {
	case acked:
		return true, nil
	case c.closed || c.w == nil:
		return false, ErrBusClosed
	case ctx.Err() != nil:
		return false, ctx.Err()
	default:
		return false, nil
	}
}

func (c *Coordinator) disarm() {
	c.mu.Lock()
	c.expected = pentair.NoResponse
	c.acked = false
	c.mu.Unlock()
}
