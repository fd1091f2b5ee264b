// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/poolstat/internal/capture"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	replaySpeed   float64
	replayRejects bool
	replayStats   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Decode a capture file",
	Long: `Play a capture file back through the frame synchronizer and print every
frame the way raw_log does.

--speed 1 reproduces the recorded timing, --speed 10 plays ten times faster
and --speed 0 (the default) decodes as fast as possible. No bus connection is
needed.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayRejects, "rejects", false, "Show rejected frames")
	replayCmd.Flags().BoolVar(&replayStats, "stats", true, "Print statistics at the end")
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r, err := capture.NewReader(f)
	if err != nil {
		return err
	}
	h := r.Header()
	fmt.Printf("Poolstat - Replay\n")
	fmt.Printf("Capture: %s (source %s, recorded %s)\n\n", args[0], h.Source, r.Started().Format(time.RFC3339))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pr, pw := io.Pipe()
	go func() {
		_, err := capture.Replay(ctx, r, pw, replaySpeed)
		pw.CloseWithError(err)
	}()

	stats := pentair.NewStatistics()
	sync := pentair.NewSynchronizer()
	sync.OnReject(func(rj pentair.Reject) {
		stats.Reject(rj)
		if replayRejects {
			fmt.Printf("[REJECT] %s: %v\n  Raw: % X\n", rj.Kind, rj.Reason, rj.Raw)
		}
	})
	print := func(f pentair.WireFrame) {
		stats.Update(f, pentair.ValidateFrame(f))
		fmt.Print(pentair.FormatFrame(f))
	}

	// Scan returns io.EOF once the pipe is drained.
	err = sync.Scan(ctx, pr, pentair.FrameHandlerFuncs{
		Frame:       func(f *pentair.Frame) { print(f) },
		Chlorinator: func(f *pentair.ChlorinatorFrame) { print(f) },
	})
	if replayStats {
		stats.CalculateRates()
		fmt.Printf("\n%s", stats.String())
	}
	if ctx.Err() != nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
