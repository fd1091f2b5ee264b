// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"errors"
	"fmt"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// ErrNotManaged is returned for a command aimed at a device that is not
// registered.
var ErrNotManaged = errors.New("device not managed")

// Commander is the command surface offered to the HTTP API and MQTT.
// *Registry implements it.
type Commander interface {
	SetCircuit(ctx context.Context, id int, on bool) (bool, error)
	SetSetpoint(ctx context.Context, pool bool, degrees int, celsius bool) (bool, error)
	SetLightMode(ctx context.Context, mode pentair.LightMode) (bool, error)
	SetPumpRPM(ctx context.Context, id uint8, rpm int) (bool, error)
	RunPumpProgram(ctx context.Context, id uint8, program int) (bool, error)
	SetSaltOutput(ctx context.Context, percent int) (bool, error)
}

var _ Commander = (*Registry)(nil)

func (r *Registry) mustController() (*Controller, error) {
	c := r.Controller()
	if c == nil {
		return nil, fmt.Errorf("controller: %w", ErrNotManaged)
	}
	return c, nil
}

func (r *Registry) pump(id uint8) (*Pump, error) {
	d, ok := r.Device(id)
	if p, isPump := d.(*Pump); ok && isPump {
		return p, nil
	}
	return nil, fmt.Errorf("pump %s: %w", hexID(id), ErrNotManaged)
}

// SetCircuit implements Commander
func (r *Registry) SetCircuit(ctx context.Context, id int, on bool) (bool, error) {
	c, err := r.mustController()
	if err != nil {
		return false, err
	}
	return c.SetCircuit(ctx, id, on)
}

// SetSetpoint implements Commander
func (r *Registry) SetSetpoint(ctx context.Context, pool bool, degrees int, celsius bool) (bool, error) {
	c, err := r.mustController()
	if err != nil {
		return false, err
	}
	return c.SetSetpoint(ctx, pool, degrees, celsius)
}

// SetLightMode implements Commander
func (r *Registry) SetLightMode(ctx context.Context, mode pentair.LightMode) (bool, error) {
	c, err := r.mustController()
	if err != nil {
		return false, err
	}
	return c.SetLightMode(ctx, mode)
}

// SetPumpRPM implements Commander
func (r *Registry) SetPumpRPM(ctx context.Context, id uint8, rpm int) (bool, error) {
	p, err := r.pump(id)
	if err != nil {
		return false, err
	}
	return p.SetRPM(ctx, rpm)
}

// RunPumpProgram implements Commander
func (r *Registry) RunPumpProgram(ctx context.Context, id uint8, program int) (bool, error) {
	p, err := r.pump(id)
	if err != nil {
		return false, err
	}
	return p.RunProgram(ctx, program)
}

// SetSaltOutput implements Commander
func (r *Registry) SetSaltOutput(ctx context.Context, percent int) (bool, error) {
	c := r.Chlorinator()
	if c == nil {
		return false, fmt.Errorf("chlorinator: %w", ErrNotManaged)
	}
	return c.SetOutput(ctx, percent)
}
