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

	"github.com/spf13/cobra"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var rawLogRejects bool

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display raw frame log in human-readable format",
	Long: `Continuously decode and display Pentair bus frames as they arrive.

Each frame is shown with timestamp, action name, addressing and its decoded
record. Controller (FF A5) and chlorinator (10 02) frames are both shown.

With --rejects, checksum failures and malformed chlorinator frames are printed
as well.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
	rawLogCmd.Flags().BoolVar(&rawLogRejects, "rejects", false, "Show rejected frames")
}

func runRawLog(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	conn, connInfo, err := OpenConnection(cfg.Transport)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Poolstat - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	sync := pentair.NewSynchronizer()
	if rawLogRejects {
		sync.OnReject(func(r pentair.Reject) {
			fmt.Printf("[REJECT] %s: %v\n  Raw: % X\n", r.Kind, r.Reason, r.Raw)
		})
	}
	print := func(f pentair.WireFrame) { fmt.Print(pentair.FormatFrame(f)) }

	err = sync.Scan(ctx, conn, pentair.FrameHandlerFuncs{
		Frame:       func(f *pentair.Frame) { print(f) },
		Chlorinator: func(f *pentair.ChlorinatorFrame) { print(f) },
	})
	if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, ErrConnectionClosed) {
		fmt.Println("Connection closed")
		return nil
	}
	return err
}
