// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/logging"
	"github.com/Thermoquad/poolstat/pkg/equipment"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling pool equipment",
	Long: `Control pool equipment via an interactive terminal UI.

This command provides a TUI for monitoring and controlling the controller,
IntelliFlo pumps and IntelliChlor cell on the bus.

Features:
  - Equipment discovery from bus traffic
  - Latest decoded readings per device
  - Circuit toggling, pump speed and salt output
  - Event logging
  - Automatic reconnection on connection loss

Equipment listed in the configuration is available immediately; anything
else is added as soon as it is heard. Tab switches between the device list
and the control panel. Arrow keys navigate the device list.

Log output goes to the configured log file only, since the terminal belongs
to the TUI.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// feed carries bus side updates to the TUI. The bus reader never blocks on
// it; updates are dropped when the TUI falls behind.
type feed struct {
	events chan equipment.Event
	states chan equipment.State
	found  chan equipment.Found
}

func newFeed() *feed {
	return &feed{
		events: make(chan equipment.Event, 256),
		states: make(chan equipment.State, 16),
		found:  make(chan equipment.Found, 16),
	}
}

// Publish implements equipment.Sink
func (f *feed) Publish(e equipment.Event) {
	select {
	case f.events <- e:
	default:
	}
}

func (f *feed) state(s equipment.State) {
	select {
	case f.states <- s:
	default:
	}
}

// run batches updates to the TUI at a fixed rate until ctx ends
func (f *feed) run(ctx context.Context, p *tea.Program) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		var batch controlBatchMsg
	drainLoop:
		for {
			select {
			case e := <-f.events:
				batch.events = append(batch.events, e)
			case s := <-f.states:
				batch.states = append(batch.states, s)
			case d := <-f.found:
				batch.found = append(batch.found, d)
			default:
				break drainLoop
			}
		}
		if len(batch.events) > 0 || len(batch.states) > 0 || len(batch.found) > 0 {
			p.Send(batch)
		}
	}
}

func runControl(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := logging.NewWithWriter(cfg.Logging, io.Discard)
	if err != nil {
		return err
	}
	defer logger.Sync()

	f := newFeed()
	store := equipment.NewStore()
	s, err := newStack(cfg, logger, stackOptions{
		sink:    equipment.Sinks{store, f},
		onState: f.state,
	})
	if err != nil {
		return err
	}

	// Equipment that was not configured is picked up from traffic. The
	// devices are passive until registered, so register them on first sight.
	disc := equipment.NewDiscovery()
	s.registry.OnUnknown(disc.Observe)
	disc.OnFound(func(d equipment.Found) {
		if err := adopt(s, d); err != nil {
			logger.Warn("adopt device", zap.Uint8("id", d.ID), zap.Error(err))
			return
		}
		select {
		case f.found <- d:
		default:
		}
	})

	m := initialControlModel(s, store, describeTransport(cfg.Transport))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitorDone := make(chan struct{})
	go f.run(ctx, p)
	go s.poller.Run(ctx)
	go func() {
		defer close(monitorDone)
		s.monitor.Run(ctx)
	}()

	_, err = p.Run()
	// the monitor closes the transport on the way out
	cancel()
	<-monitorDone
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// adopt registers a device first heard on the bus
func adopt(s *stack, d equipment.Found) error {
	var dev equipment.Device
	switch d.Kind {
	case equipment.KindPump:
		dev = equipment.NewPump(d.ID, s.opts, s.registry.OtherMaster)
	case equipment.KindChlorinator:
		dev = equipment.NewChlorinator(s.opts)
	case equipment.KindIntelliChem:
		dev = equipment.NewIntelliChem(d.ID, s.opts, s.registry)
	default:
		return fmt.Errorf("no device for kind %q", d.Kind)
	}
	return s.registry.Register(dev)
}
