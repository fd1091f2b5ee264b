// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/bus"
)

// Monitor defaults
const (
	DefaultCheckInterval = 30 * time.Second
	DefaultMinBackoff    = time.Second
	DefaultMaxBackoff    = 30 * time.Second
)

// State is the connection state of the bus transport
type State int

const (
	StateInit State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateConfigError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConfigError:
		return "CONFIGERROR"
	default:
		return "UNKNOWN"
	}
}

// Dialer opens a new transport for the bus.
type Dialer func(ctx context.Context) (bus.Transport, error)

// Monitor keeps the bus connected. It checks the transport periodically and
// reconnects when the connection failed, was dropped, or its reader died.
// Failed reconnects are retried with exponential backoff.
type Monitor struct {
	bus    *bus.Bus
	dial   Dialer
	logger *zap.Logger

	interval   time.Duration
	minBackoff time.Duration
	maxBackoff time.Duration

	mu        sync.Mutex
	state     State
	observers []func(State)
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithCheckInterval sets how often a healthy connection is checked.
func WithCheckInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithBackoff sets the reconnect backoff range.
func WithBackoff(min, max time.Duration) MonitorOption {
	return func(m *Monitor) {
		if min > 0 && max >= min {
			m.minBackoff, m.maxBackoff = min, max
		}
	}
}

// WithMonitorLogger sets the monitor logger.
func WithMonitorLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithStateObserver is called on every state change.
func WithStateObserver(fn func(State)) MonitorOption {
	return func(m *Monitor) {
		m.observers = append(m.observers, fn)
	}
}

// NewMonitor creates a monitor for b that opens transports with dial.
func NewMonitor(b *bus.Bus, dial Dialer, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		bus:        b,
		dial:       dial,
		logger:     zap.NewNop(),
		interval:   DefaultCheckInterval,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		state:      StateInit,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current connection state
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	observers := append([]func(State){}, m.observers...)
	m.mu.Unlock()

	m.logger.Debug("connection state", zap.Stringer("state", s))
	for _, fn := range observers {
		fn(s)
	}
}

// Connect dials a transport and binds it to the bus.
func (m *Monitor) Connect(ctx context.Context) error {
	m.setState(StateConnecting)
	t, err := m.dial(ctx)
	if err != nil {
		m.setState(StateConfigError)
		return fmt.Errorf("connect: %w", err)
	}
	m.bus.Connect(t)
	m.setState(StateConnected)
	m.logger.Info("bus transport connected")
	return nil
}

// Check runs one monitoring step.
func (m *Monitor) Check(ctx context.Context) error {
	switch m.State() {
	case StateInit, StateDisconnected, StateConfigError:
		return m.Connect(ctx)
	case StateConnected:
		if m.bus.ReaderAlive() {
			return nil
		}
		m.logger.Warn("bus reader stopped, reconnecting", zap.Error(m.bus.Err()))
		m.bus.Disconnect()
		m.setState(StateDisconnected)
		return m.Connect(ctx)
	default:
		return nil
	}
}

// Run checks the connection until ctx ends, then disconnects the bus. A
// monitor that has never connected connects immediately.
func (m *Monitor) Run(ctx context.Context) error {
	delay := m.interval
	if m.State() == StateInit {
		delay = 0
	}
	backoff := m.minBackoff

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.bus.Disconnect()
			m.setState(StateDisconnected)
			return ctx.Err()
		case <-timer.C:
		}

		if err := m.Check(ctx); err != nil {
			m.logger.Warn("reconnect failed", zap.Error(err), zap.Duration("retry_in", backoff))
			delay = backoff
			backoff = min(backoff*2, m.maxBackoff)
		} else {
			delay = m.interval
			backoff = m.minBackoff
		}
		timer.Reset(delay)
	}
}
