// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid Pentair frame",
	Long: `Wait for a valid Pentair frame on the connection until timeout.

This command connects to the bus and waits for any controller or chlorinator
frame that passes its checksum. Noise between frames is skipped.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error

Useful for checking RS-485 wiring, baud rate and bridge connectivity.`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(2)
	}
	conn, connInfo, err := OpenConnection(cfg.Transport)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Poolstat - Frame Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid Pentair frame...\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := pentair.NewSynchronizer()
	frameChan := make(chan pentair.WireFrame, 1)
	errChan := make(chan error, 1)
	found := func(f pentair.WireFrame) {
		select {
		case frameChan <- f:
		default:
		}
		cancel()
	}

	go func() {
		errChan <- sync.Scan(ctx, conn, pentair.FrameHandlerFuncs{
			Frame:       func(f *pentair.Frame) { found(f) },
			Chlorinator: func(f *pentair.ChlorinatorFrame) { found(f) },
		})
	}()

	select {
	case f := <-frameChan:
		stats := sync.Stats()
		if stats.BytesSkipped > 0 {
			fmt.Printf("(skipped %d bytes before sync)\n", stats.BytesSkipped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Kind: %s\n", f.Kind())
		switch v := f.(type) {
		case *pentair.Frame:
			fmt.Printf("  Action: %s (0x%02X)\n", pentair.FormatAction(v.Source(), v.Action()), v.Action())
			fmt.Printf("  Route: 0x%02X -> 0x%02X\n", v.Source(), v.Dest())
			fmt.Printf("  Checksum: 0x%04X\n", v.Checksum())
		case *pentair.ChlorinatorFrame:
			fmt.Printf("  Action: %s (0x%02X)\n", pentair.FormatChlorinatorAction(v.Action()), v.Action())
			fmt.Printf("  Dest: 0x%02X\n", v.Dest())
			fmt.Printf("  Checksum: 0x%02X\n", v.Checksum())
		}
		fmt.Printf("  Length: %d bytes\n", len(f.Payload()))
		os.Exit(0)

	case err := <-errChan:
		fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		os.Exit(1)
	}

	return nil
}
