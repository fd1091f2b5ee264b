// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var errorDetectionCmd = &cobra.Command{
	Use:   "error_detection",
	Short: "Detect and analyze corrupt frames and anomalous values",
	Long: `Track frame errors, malformed data, and anomalous values with statistics.

This command validates each frame and detects:
  - Checksum failures and unknown chlorinator actions
  - Payloads whose length does not match the action
  - Anomalous values (pump RPM > 3450, implausible temperatures, unknown codes)
  - Statistics and trends (frame rate, error rate, success rate)

By default, only errors are displayed. Use --show-all to display valid frames too.

Frames are validated in real-time, with errors highlighted immediately and
periodic statistics summaries displayed at configurable intervals.`,
	RunE: runErrorDetection,
}

func init() {
	rootCmd.AddCommand(errorDetectionCmd)
	errorDetectionCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	errorDetectionCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	errorDetectionCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runErrorDetection(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection(cfg.Transport)
	if err != nil {
		return err
	}
	defer conn.Close()

	if useTUI {
		return runTUIMode(conn, connInfo)
	}
	return runTextMode(conn, connInfo)
}

// printReject prints a frame the synchronizer threw away
func printReject(r pentair.Reject) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mREJECTED %s:\033[0m %v\n", timestamp, r.Kind, r.Reason)
	fmt.Printf("  Raw: % X\n", r.Raw)
	fmt.Printf("  >>> FRAME DROPPED <<<\n\n")
}

// frameName returns the action name for either frame kind
func frameName(f pentair.WireFrame) string {
	if c, ok := f.(*pentair.Frame); ok {
		return pentair.FormatAction(c.Source(), c.Action())
	}
	return pentair.FormatChlorinatorAction(f.Action())
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f pentair.WireFrame, errors []pentair.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, frameName(f), f.Action())
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, err := range errors {
		switch err.Type {
		case pentair.AnomalyLengthMismatch, pentair.AnomalyDecodeError:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if length, ok := err.Details["length"].(int); ok {
				fmt.Printf("    Payload: %d bytes % X\n", length, f.Payload())
			}

		case pentair.AnomalyHighRPM:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)

		case pentair.AnomalyInvalidTemp:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
			if sensor, ok := err.Details["sensor"].(string); ok {
				fmt.Printf("    Sensor=%s value=%v max=%v\n", sensor, err.Details["value"], err.Details["max"])
			}

		case pentair.AnomalyUnknownCode:
			fmt.Printf("  Issue %d: \033[1;36m%s\033[0m\n", i+1, err.Message)

		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	if c, ok := f.(*pentair.Frame); ok {
		fmt.Printf("  Route: 0x%02X -> 0x%02X, preamble 0x%02X\n", c.Source(), c.Dest(), c.Preamble())
	}

	fmt.Printf("  >>> FRAME FLAGGED <<<\n\n")
}

// scanFrames runs the synchronizer over conn, calling frame for every frame.
// Returned events arrive on the reader goroutine.
func scanFrames(ctx context.Context, conn bus.Transport, sync *pentair.Synchronizer, frame func(pentair.WireFrame)) error {
	return sync.Scan(ctx, conn, pentair.FrameHandlerFuncs{
		Frame:       func(f *pentair.Frame) { frame(f) },
		Chlorinator: func(f *pentair.ChlorinatorFrame) { frame(f) },
	})
}

// runTUIMode runs error detection in TUI mode
func runTUIMode(conn bus.Transport, connInfo string) error {
	m := initialModel(connInfo, statsInterval, showAll)
	p := tea.NewProgram(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sync := pentair.NewSynchronizer()
	synchronized := false
	sync.OnReject(func(r pentair.Reject) {
		if synchronized {
			p.Send(rejectMsg{reject: r})
		}
	})

	go func() {
		err := scanFrames(ctx, conn, sync, func(f pentair.WireFrame) {
			if !synchronized {
				synchronized = true
				p.Send(syncMsg{skipped: sync.Stats().BytesSkipped})
			}
			p.Send(frameMsg{
				frame:            f,
				validationErrors: pentair.ValidateFrame(f),
			})
		})
		if ctx.Err() == nil {
			p.Send(linkErrMsg{err: err})
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode runs error detection in text mode
func runTextMode(conn bus.Transport, connInfo string) error {
	fmt.Printf("Poolstat - Error Detection Mode\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	stats := pentair.NewStatistics()
	sync := pentair.NewSynchronizer()
	synchronized := false

	// Frames are handed over to the main loop so stats has one owner.
	frames := make(chan pentair.WireFrame, 64)
	rejects := make(chan pentair.Reject, 64)
	scanErr := make(chan error, 1)

	sync.OnReject(func(r pentair.Reject) { rejects <- r })
	go func() {
		scanErr <- scanFrames(ctx, conn, sync, func(f pentair.WireFrame) { frames <- f })
	}()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case f := <-frames:
			if !synchronized {
				synchronized = true
				if skipped := sync.Stats().BytesSkipped; skipped > 0 {
					fmt.Printf("[SYNC] Synchronized after skipping %d bytes\n\n", skipped)
				} else {
					fmt.Printf("[SYNC] Synchronized\n\n")
				}
			}

			validationErrors := pentair.ValidateFrame(f)
			stats.Update(f, validationErrors)

			if len(validationErrors) > 0 {
				printValidationErrors(f, validationErrors)
			} else if showAll {
				fmt.Print(pentair.FormatFrame(f))
			}

		case r := <-rejects:
			if synchronized {
				stats.Reject(r)
				printReject(r)
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()

		case err := <-scanErr:
			fmt.Println()
			fmt.Print(stats.String())
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}
