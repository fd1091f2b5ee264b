// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"sort"
	"sync"
	"time"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// Snapshot is the latest record of each name published by one device.
type Snapshot struct {
	ID      uint8
	Kind    Kind
	Updated time.Time
	Records map[string]Event
}

// Store is a Sink that keeps the most recent event per device and record
// name. The HTTP API and the TUI read from it.
type Store struct {
	mu      sync.RWMutex
	devices map[uint8]*Snapshot
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{devices: make(map[uint8]*Snapshot)}
}

// Publish implements Sink
func (s *Store) Publish(e Event) {
	if e.Record == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.devices[e.Device]
	if !ok {
		snap = &Snapshot{ID: e.Device, Kind: e.Kind, Records: make(map[string]Event)}
		s.devices[e.Device] = snap
	}
	snap.Updated = e.Time
	snap.Records[e.Record.Name()] = e
}

// Latest returns the newest record called name from device id.
func (s *Store) Latest(id uint8, name string) (pentair.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.devices[id]
	if !ok {
		return nil, false
	}
	e, ok := snap.Records[name]
	return e.Record, ok
}

// Snapshot returns a copy of every device's records ordered by id.
func (s *Store) Snapshot() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.devices))
	for _, snap := range s.devices {
		c := *snap
		c.Records = make(map[string]Event, len(snap.Records))
		for k, v := range snap.Records {
			c.Records[k] = v
		}
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
