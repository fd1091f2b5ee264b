// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// Chlorinator is the IntelliChlor salt cell. It speaks the chlorinator
// protocol and is always registered under id 0.
type Chlorinator struct {
	base

	mu         sync.Mutex
	seen       bool
	version    *pentair.ChlorinatorVersion
	saltOutput int
	status     *pentair.ChlorinatorStatus
}

// NewChlorinator creates the chlorinator device.
func NewChlorinator(opts Options) *Chlorinator {
	return &Chlorinator{base: newBase(pentair.AddressChlorinator, KindChlorinator, opts)}
}

// HandleFrame implements Device
func (c *Chlorinator) HandleFrame(f pentair.WireFrame, rec pentair.Record) {
	c.mu.Lock()
	c.seen = true
	c.mu.Unlock()

	switch r := rec.(type) {
	case *pentair.ChlorinatorVersion:
		c.mu.Lock()
		c.version = r
		c.mu.Unlock()
		c.log.Debug("version", zap.Int("version", r.Version), zap.String("model", r.Model))
		c.publish(r, nil)

	case *pentair.ChlorinatorSaltOutput:
		c.mu.Lock()
		c.saltOutput = r.Percent
		c.mu.Unlock()
		c.log.Debug("salt output", zap.Int("percent", r.Percent))
		c.publish(r, nil)

	case *pentair.ChlorinatorStatus:
		c.mu.Lock()
		c.status = r
		c.mu.Unlock()
		c.log.Debug("status", zap.Stringer("status", r))
		c.publish(r, nil)

	default:
		c.log.Debug("unhandled frame", zap.Uint8("action", f.Action()))
	}
}

// Present reports whether the cell has been heard on the bus.
func (c *Chlorinator) Present() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen
}

// Version returns the model and firmware version, or nil.
func (c *Chlorinator) Version() *pentair.ChlorinatorVersion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// SaltOutput returns the last requested output percentage.
func (c *Chlorinator) SaltOutput() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saltOutput
}

// Status returns the last salinity and alarm report, or nil.
func (c *Chlorinator) Status() *pentair.ChlorinatorStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetOutput requests a salt output percentage (0..100). The cell answers
// with its status.
func (c *Chlorinator) SetOutput(ctx context.Context, percent int) (bool, error) {
	cmd, err := pentair.NewChlorinatorSetOutput(percent)
	if err != nil {
		return false, err
	}
	return c.send(ctx, "salt output", cmd)
}
