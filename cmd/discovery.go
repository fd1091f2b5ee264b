// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/equipment"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	discoveryTimeout int
	discoveryWake    bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover equipment on the bus",
	Long: `Listen to bus traffic and list every piece of equipment heard.

Modes:
  Passive (default): Only listen. The controller broadcasts status every few
                     seconds and polls the pumps and chlorinator it manages,
                     so most equipment shows up without sending anything.

  Wake (--wake):     Also send a version request to the controller and a
                     status request to each pump address 0x60..0x63. Use this
                     when no controller is polling the pumps.

Examples:
  # Passive discovery on a serial adapter
  poolstat discovery --port /dev/ttyUSB0

  # Wake quiet equipment through an RS-485 to TCP bridge
  poolstat discovery --tcp bridge.local:9801 --wake

Exit codes:
  0 - At least one device found
  1 - No devices heard before the timeout
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 10, "Seconds to listen")
	discoveryCmd.Flags().BoolVar(&discoveryWake, "wake", false, "Send requests to wake up quiet equipment")
}

// ackAll releases the write coordinator on every frame. Ad hoc commands have
// no registry to do it for them.
func ackAll(b *bus.Bus) pentair.FrameHandler {
	return pentair.FrameHandlerFuncs{
		Frame:       func(f *pentair.Frame) { b.Ack(pentair.ResponseOf(f)) },
		Chlorinator: func(f *pentair.ChlorinatorFrame) { b.Ack(pentair.ResponseOf(f)) },
	}
}

// openBus connects a bus to the configured transport
func openBus(cfg *config.Config) (*bus.Bus, string, error) {
	conn, connInfo, err := OpenConnection(cfg.Transport)
	if err != nil {
		return nil, "", err
	}
	b := bus.New(bus.WithCoordinator(bus.NewCoordinator(bus.WithAckTimeout(cfg.Bus.AckTimeout))))
	b.Connect(conn)
	return b, connInfo, nil
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(2)
	}
	b, connInfo, err := openBus(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Disconnect()

	mode := "passive"
	if discoveryWake {
		mode = "wake"
	}

	fmt.Printf("Poolstat - Equipment Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Mode: %s\n", mode)
	fmt.Printf("Timeout: %d seconds\n\n", discoveryTimeout)

	disc := equipment.NewDiscovery()
	disc.OnFound(func(f equipment.Found) {
		fmt.Printf("Device found: 0x%02X (%s)\n", f.ID, f.Kind)
	})
	b.AddHandler(disc)
	b.AddHandler(ackAll(b))

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(discoveryTimeout)*time.Second)
	defer cancel()

	if discoveryWake {
		wakeEquipment(ctx, b, uint8(cfg.Bus.Source), uint8(cfg.Bus.Controller))
	}

	<-ctx.Done()
	if err := b.Err(); err != nil {
		fmt.Printf("READ FAILED: %v\n", err)
		os.Exit(2)
	}

	found := disc.Found()
	fmt.Printf("\n--- Discovery summary ---\n")
	fmt.Printf("Devices found: %d\n", len(found))
	for _, f := range found {
		fmt.Printf("  0x%02X %-12s frames=%d actions=%s\n", f.ID, f.Kind, f.Frames, formatActions(f.Actions))
	}

	if len(found) == 0 {
		fmt.Printf("No devices heard. Check wiring, termination and baud rate.\n")
		os.Exit(1)
	}
	return nil
}

// wakeEquipment asks the controller and the first four pump addresses to speak up
func wakeEquipment(ctx context.Context, b *bus.Bus, source, controller uint8) {
	cmds := []pentair.Command{
		pentair.NewVersionRequest(pentair.Addressing{Dest: controller, Source: source}),
	}
	for id := uint8(pentair.AddressPumpFirst); id < pentair.AddressPumpFirst+4; id++ {
		cmds = append(cmds, pentair.NewPumpStatusRequest(source, id))
	}
	for _, c := range cmds {
		ok, err := b.Send(ctx, c, 0)
		switch {
		case err != nil:
			fmt.Printf("Wake 0x%02X: %v\n", c.Frame.Dest(), err)
			return
		case !ok:
			fmt.Printf("Wake 0x%02X: no reply\n", c.Frame.Dest())
		}
	}
}

func formatActions(actions map[uint8]int) string {
	keys := make([]int, 0, len(actions))
	for a := range actions {
		keys = append(keys, int(a))
	}
	sort.Ints(keys)
	out := ""
	for i, a := range keys {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%02X:%d", a, actions[uint8(a)])
	}
	return out
}
