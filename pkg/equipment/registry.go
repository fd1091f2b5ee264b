// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// UnknownHandler is told about the first frame from each unregistered id.
type UnknownHandler func(id uint8, kind Kind)

// Registry maps bus ids to devices and routes frames to them. It implements
// pentair.FrameHandler so it can be added to a bus directly.
type Registry struct {
	acker  Acker
	logger *zap.Logger

	mu          sync.RWMutex
	devices     map[uint8]Device
	controller  *Controller
	chlorinator *Chlorinator
	unknown     map[uint8]bool
	onUnknown   []UnknownHandler
}

// NewRegistry creates an empty registry. acker receives the response key of
// every frame a registered device processed; it is normally the bus.
func NewRegistry(acker Acker, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		acker:   acker,
		logger:  logger,
		devices: make(map[uint8]Device),
		unknown: make(map[uint8]bool),
	}
}

// OnUnknown registers a handler for ids first seen without a device.
func (r *Registry) OnUnknown(h UnknownHandler) {
	r.mu.Lock()
	r.onUnknown = append(r.onUnknown, h)
	r.mu.Unlock()
}

// Register adds a device. Ids are unique, and only one controller and one
// chlorinator may be registered.
func (r *Registry) Register(d Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[d.ID()]; exists {
		return fmt.Errorf("%w: id 0x%02X", ErrDuplicateDevice, d.ID())
	}
	switch v := d.(type) {
	case *Controller:
		if r.controller != nil {
			return fmt.Errorf("%w: a controller is already registered at 0x%02X", ErrDuplicateDevice, r.controller.ID())
		}
		r.controller = v
	case *Chlorinator:
		if r.chlorinator != nil {
			return fmt.Errorf("%w: a chlorinator is already registered", ErrDuplicateDevice)
		}
		r.chlorinator = v
	}

	r.devices[d.ID()] = d
	delete(r.unknown, d.ID())
	r.logger.Info("device registered", zap.String("kind", string(d.Kind())), zap.Uint8("id", d.ID()))
	return nil
}

// Unregister removes the device at id.
func (r *Registry) Unregister(id uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return
	}
	delete(r.devices, id)
	if d == Device(r.controller) {
		r.controller = nil
	}
	if d == Device(r.chlorinator) {
		r.chlorinator = nil
	}
}

// Device returns the device registered at id.
func (r *Registry) Device(id uint8) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.devices[id]
	return d, ok
}

// Devices returns every registered device ordered by id.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Controller returns the registered controller, or nil.
func (r *Registry) Controller() *Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.controller
}

// Chlorinator returns the registered chlorinator, or nil.
func (r *Registry) Chlorinator() *Chlorinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chlorinator
}

// Pumps returns the registered pumps ordered by id.
func (r *Registry) Pumps() []*Pump {
	var out []*Pump
	for _, d := range r.Devices() {
		if p, ok := d.(*Pump); ok {
			out = append(out, p)
		}
	}
	return out
}

// IntelliChems returns the registered chemistry controllers ordered by id.
func (r *Registry) IntelliChems() []*IntelliChem {
	var out []*IntelliChem
	for _, d := range r.Devices() {
		if c, ok := d.(*IntelliChem); ok {
			out = append(out, c)
		}
	}
	return out
}

// OtherMaster reports whether a controller is registered and not in service
// mode. Pumps refuse commands while it is true.
func (r *Registry) OtherMaster() bool {
	c := r.Controller()
	return c != nil && !c.ServiceMode()
}

// WaterTemp implements ChemEnvironment
func (r *Registry) WaterTemp() *pentair.WaterTemp {
	if c := r.Controller(); c != nil {
		return c.WaterTemp()
	}
	return nil
}

// SaltChlorinator implements ChemEnvironment
func (r *Registry) SaltChlorinator() bool {
	c := r.Chlorinator()
	return c != nil && c.Present()
}

// OnFrame implements pentair.FrameHandler
func (r *Registry) OnFrame(f *pentair.Frame) {
	src := f.Source()
	if pentair.DeviceTypeOf(src) == pentair.DeviceTypeControlPanel {
		return
	}
	d, ok := r.Device(src)
	if !ok {
		kind, _ := KindOf(src)
		r.unregistered(src, kind, f)
		return
	}
	r.deliver(d, f)
}

// OnChlorinatorFrame implements pentair.FrameHandler
func (r *Registry) OnChlorinatorFrame(f *pentair.ChlorinatorFrame) {
	d, ok := r.Device(pentair.AddressChlorinator)
	if !ok {
		r.unregistered(pentair.AddressChlorinator, KindChlorinator, f)
		return
	}
	r.deliver(d, f)
}

func (r *Registry) deliver(d Device, f pentair.WireFrame) {
	rec, err := pentair.Decode(f)
	if err != nil {
		r.logger.Debug("decode failed", zap.Uint8("id", d.ID()), zap.Error(err))
	}
	d.HandleFrame(f, rec)
	if r.acker != nil {
		r.acker.Ack(pentair.ResponseOf(f))
	}
}

func (r *Registry) unregistered(id uint8, kind Kind, f pentair.WireFrame) {
	r.mu.Lock()
	if r.unknown[id] {
		r.mu.Unlock()
		return
	}
	r.unknown[id] = true
	handlers := append([]UnknownHandler(nil), r.onUnknown...)
	haveController := r.controller != nil
	r.mu.Unlock()

	r.logger.Info("first frame from unregistered device",
		zap.Uint8("id", id),
		zap.String("kind", string(kind)),
		zap.Uint8("action", f.Action()))

	if kind == "" || (kind == KindController && haveController) {
		return
	}
	for _, h := range handlers {
		h(id, kind)
	}
}
