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

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	captureOutput   string
	captureDuration int
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Record raw bus traffic to a capture file",
	Long: `Record every byte read from the bus, with its arrival time, to a capture
file. The file can be played back later with the replay command, which
reproduces the original frame stream including noise and timing.

Recording stops after --duration seconds, or on Ctrl+C when the duration is 0.`,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	captureCmd.Flags().StringVarP(&captureOutput, "output", "o", "poolstat.cap", "Capture file to write")
	captureCmd.Flags().IntVar(&captureDuration, "duration", 0, "Recording length in seconds (0 = until interrupted)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection(cfg.Transport)
	if err != nil {
		return err
	}
	defer conn.Close()

	w, closeCapture, err := openCapture(captureOutput, connInfo)
	if err != nil {
		return err
	}
	defer closeCapture()

	fmt.Printf("Poolstat - Bus Capture\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Output: %s\n", captureOutput)
	fmt.Printf("Press Ctrl+C to stop\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if captureDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(captureDuration)*time.Second)
		defer cancel()
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	// Count frames while recording so the summary says whether the capture
	// holds anything useful.
	sync := pentair.NewSynchronizer()
	start := time.Now()
	_, err = io.Copy(io.MultiWriter(w, syncWriter{sync}), conn)

	chunks, bytes := w.Stats()
	stats := sync.Stats()
	fmt.Printf("\nRecorded %d bytes in %d chunks over %s\n", bytes, chunks, time.Since(start).Round(time.Second))
	fmt.Printf("Frames: %d controller, %d chlorinator, %d checksum errors\n",
		stats.Frames, stats.ChlorinatorFrames, stats.ChecksumErrors)

	if werr := w.Err(); werr != nil {
		return werr
	}
	if ctx.Err() != nil || err == nil || errors.Is(err, ErrConnectionClosed) {
		return nil
	}
	return err
}

// syncWriter feeds written bytes to a Synchronizer and drops the frames;
// only its counters are used.
type syncWriter struct {
	s *pentair.Synchronizer
}

func (w syncWriter) Write(p []byte) (int, error) {
	w.s.FeedBytes(p)
	return len(p), nil
}
