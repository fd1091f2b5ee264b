// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// DerivedSaturationIndex is the Event.Derived key for the saturation index.
const DerivedSaturationIndex = "saturation_index"

// ChemEnvironment supplies what the saturation index needs from other
// equipment. The registry implements it.
type ChemEnvironment interface {
	// WaterTemp is the pool temperature, or nil if unknown.
	WaterTemp() *pentair.WaterTemp
	// SaltChlorinator reports whether a salt cell is on the bus.
	SaltChlorinator() bool
}

// IntelliChem is a chemistry controller (bus ids 0x90..0x9F).
type IntelliChem struct {
	base
	env ChemEnvironment

	mu         sync.Mutex
	status     *pentair.IntelliChemStatus
	saturation float64
}

// NewIntelliChem creates a chemistry controller device. env may be nil, in
// which case the index uses the fixed temperature term and fresh water.
func NewIntelliChem(id uint8, opts Options, env ChemEnvironment) *IntelliChem {
	return &IntelliChem{base: newBase(id, KindIntelliChem, opts), env: env}
}

// HandleFrame implements Device
func (c *IntelliChem) HandleFrame(f pentair.WireFrame, rec pentair.Record) {
	r, ok := rec.(*pentair.IntelliChemStatus)
	if !ok {
		c.log.Debug("unhandled frame", zap.Uint8("action", f.Action()))
		return
	}

	var temp *pentair.WaterTemp
	salt := false
	if c.env != nil {
		temp = c.env.WaterTemp()
		salt = c.env.SaltChlorinator()
	}
	si := r.SaturationIndex(temp, salt)

	c.mu.Lock()
	c.status, c.saturation = r, si
	c.mu.Unlock()

	c.log.Debug("status", zap.Stringer("status", r), zap.Float64("saturation_index", si))
	c.publish(r, map[string]float64{DerivedSaturationIndex: si})
}

// Status returns the last reading and its saturation index.
func (c *IntelliChem) Status() (*pentair.IntelliChemStatus, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.saturation
}

// RequestStatus asks the chemistry controller for a reading. The preamble is
// the controller's when one has been learned.
func (c *IntelliChem) RequestStatus(ctx context.Context, preamble uint8) (bool, error) {
	a := pentair.Addressing{Preamble: preamble, Dest: c.id, Source: c.opts.Source}
	return c.send(ctx, "request status", pentair.NewChemRequest(a))
}
