// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// Found is a device seen on the bus
type Found struct {
	ID        uint8
	Kind      Kind
	FirstSeen time.Time
	LastSeen  time.Time
	Frames    int
	Actions   map[uint8]int
}

// Discovery watches traffic and records every equipment id it hears. It can
// be added to a bus as a pentair.FrameHandler, or fed by a registry's
// unknown-device hook.
type Discovery struct {
	now func() time.Time

	mu     sync.Mutex
	found  map[uint8]*Found
	notify []func(Found)
}

// NewDiscovery creates an empty discovery table
func NewDiscovery() *Discovery {
	return &Discovery{now: time.Now, found: make(map[uint8]*Found)}
}

// OnFound registers a callback for each newly seen id.
func (d *Discovery) OnFound(fn func(Found)) {
	d.mu.Lock()
	d.notify = append(d.notify, fn)
	d.mu.Unlock()
}

// OnFrame implements pentair.FrameHandler
func (d *Discovery) OnFrame(f *pentair.Frame) {
	kind, ok := KindOf(f.Source())
	if !ok {
		return
	}
	d.observe(f.Source(), kind, f.Action())
}

// OnChlorinatorFrame implements pentair.FrameHandler
func (d *Discovery) OnChlorinatorFrame(f *pentair.ChlorinatorFrame) {
	d.observe(pentair.AddressChlorinator, KindChlorinator, f.Action())
}

// Observe records id as seen. It matches UnknownHandler.
func (d *Discovery) Observe(id uint8, kind Kind) {
	d.observe(id, kind, 0)
}

func (d *Discovery) observe(id uint8, kind Kind, action uint8) {
	now := d.now()

	d.mu.Lock()
	f, seen := d.found[id]
	if !seen {
		f = &Found{ID: id, Kind: kind, FirstSeen: now, Actions: make(map[uint8]int)}
		d.found[id] = f
	}
	f.LastSeen = now
	f.Frames++
	f.Actions[action]++
	snapshot := f.clone()
	notify := append([]func(Found){}, d.notify...)
	d.mu.Unlock()

	if seen {
		return
	}
	for _, fn := range notify {
		fn(snapshot)
	}
}

// Found returns a copy of every device seen, ordered by id.
func (d *Discovery) Found() []Found {
	d.mu.Lock()
	out := make([]Found, 0, len(d.found))
	for _, f := range d.found {
		out = append(out, f.clone())
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *Found) clone() Found {
	c := *f
	c.Actions = make(map[uint8]int, len(f.Actions))
	for k, v := range f.Actions {
		c.Actions[k] = v
	}
	return c
}
