// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/equipment"
)

// stack is the bus, the managed equipment and the connection monitor built
// from one configuration.
type stack struct {
	cfg      *config.Config
	logger   *zap.Logger
	bus      *bus.Bus
	registry *equipment.Registry
	monitor  *equipment.Monitor
	poller   *equipment.Poller
	opts     equipment.Options

	controller  *equipment.Controller
	chlorinator *equipment.Chlorinator
	pumps       []*equipment.Pump
	chems       []*equipment.IntelliChem
}

// stackOptions are the hooks a command plugs into the stack
type stackOptions struct {
	sink     equipment.Sink
	observer bus.WriteObserver
	onState  func(equipment.State)
	// tap wraps every transport the monitor opens
	tap func(bus.Transport) bus.Transport
}

func newStack(cfg *config.Config, logger *zap.Logger, so stackOptions) (*stack, error) {
	dial, err := transportDialer(cfg.Transport)
	if err != nil {
		return nil, err
	}
	if so.tap != nil {
		inner := dial
		dial = func(ctx context.Context) (bus.Transport, error) {
			t, err := inner(ctx)
			if err != nil {
				return nil, err
			}
			return so.tap(t), nil
		}
	}

	coordOpts := []bus.CoordinatorOption{
		bus.WithAckTimeout(cfg.Bus.AckTimeout),
		bus.WithLogger(logger.Named("coordinator")),
	}
	if so.observer != nil {
		coordOpts = append(coordOpts, bus.WithObserver(so.observer))
	}
	b := bus.New(
		bus.WithBusLogger(logger.Named("bus")),
		bus.WithCoordinator(bus.NewCoordinator(coordOpts...)),
	)

	s := &stack{
		cfg:      cfg,
		logger:   logger,
		bus:      b,
		registry: equipment.NewRegistry(b, logger.Named("registry")),
		poller:   equipment.NewPoller(cfg.Poll.Rate, logger.Named("poller")),
		opts: equipment.Options{
			Sender:  b,
			Source:  uint8(cfg.Bus.Source),
			Retries: cfg.Bus.Retries,
			Sink:    so.sink,
			Logger:  logger.Named("equipment"),
		},
	}
	b.AddHandler(s.registry)

	s.controller = equipment.NewController(uint8(cfg.Bus.Controller), s.opts)
	if err := s.registry.Register(s.controller); err != nil {
		return nil, err
	}
	if cfg.Bus.Chlorinator {
		s.chlorinator = equipment.NewChlorinator(s.opts)
		if err := s.registry.Register(s.chlorinator); err != nil {
			return nil, err
		}
	}
	for _, id := range cfg.Bus.Pumps {
		if _, err := s.addPump(uint8(id)); err != nil {
			return nil, err
		}
	}
	for _, id := range cfg.Bus.IntelliChems {
		chem := equipment.NewIntelliChem(uint8(id), s.opts, s.registry)
		if err := s.registry.Register(chem); err != nil {
			return nil, err
		}
		s.chems = append(s.chems, chem)
		s.poller.AddIntelliChem(chem, s.controller, cfg.Poll.Chem)
	}
	if cfg.Poll.Heat > 0 {
		s.poller.AddHeat(s.controller, cfg.Poll.Heat)
	}

	monOpts := []equipment.MonitorOption{
		equipment.WithCheckInterval(cfg.Poll.Reconnect),
		equipment.WithMonitorLogger(logger.Named("monitor")),
	}
	if so.onState != nil {
		monOpts = append(monOpts, equipment.WithStateObserver(so.onState))
	}
	s.monitor = equipment.NewMonitor(b, dial, monOpts...)
	return s, nil
}

// addPump registers a pump. Pumps added after the poller started are not
// polled.
func (s *stack) addPump(id uint8) (*equipment.Pump, error) {
	pump := equipment.NewPump(id, s.opts, s.registry.OtherMaster)
	if err := s.registry.Register(pump); err != nil {
		return nil, err
	}
	s.pumps = append(s.pumps, pump)
	s.poller.AddPump(pump)
	return pump, nil
}
