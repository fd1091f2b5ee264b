// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	pingTimeout int
	pingCount   int
	pingPump    string
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test round trips by sending requests to the controller or a pump",
	Long: `Send a request and wait for the reply, measuring the round trip time.

By default a software version request (0xFD) goes to the controller, which
answers with its firmware revision (0xFC). With --pump, the pump is put in
remote mode and sent status requests (0x07); it is returned to local control
afterwards.

This is useful for verifying:
  - The RS-485 adapter can transmit, not just listen
  - Bridge connections carry writes in both directions
  - The controller or pump answers at this bus address

Exit codes:
  0 - All pings answered
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingTimeout, "timeout", 2, "Timeout in seconds for each ping")
	pingCmd.Flags().IntVar(&pingCount, "count", 3, "Number of pings to send")
	pingCmd.Flags().StringVar(&pingPump, "pump", "", "Ping a pump address (e.g. 0x60) instead of the controller")
}

// replies passes decoded records of one action to the waiting pinger
type replies struct {
	action uint8
	ch     chan pentair.Record
}

func (r *replies) OnFrame(f *pentair.Frame) {
	if f.Action() != r.action {
		return
	}
	rec, err := pentair.Decode(f)
	if err != nil {
		return
	}
	select {
	case r.ch <- rec:
	default:
	}
}

func (r *replies) OnChlorinatorFrame(*pentair.ChlorinatorFrame) {}

func (r *replies) drain() {
	for {
		select {
		case <-r.ch:
		default:
			return
		}
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(2)
	}
	cfg.Bus.AckTimeout = time.Duration(pingTimeout) * time.Second

	source := uint8(cfg.Bus.Source)
	target := "controller"
	request := pentair.NewVersionRequest(pentair.Addressing{Dest: uint8(cfg.Bus.Controller), Source: source})
	var pump uint8
	if pingPump != "" {
		id, err := strconv.ParseUint(pingPump, 0, 8)
		if err != nil || pentair.DeviceTypeOf(uint8(id)) != pentair.DeviceTypePump {
			fmt.Fprintf(os.Stderr, "Invalid pump address %q (want 0x60..0x6F)\n", pingPump)
			os.Exit(2)
		}
		pump = uint8(id)
		target = fmt.Sprintf("pump 0x%02X", pump)
		request = pentair.NewPumpStatusRequest(source, pump)
	}

	b, connInfo, err := openBus(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer b.Disconnect()

	rep := &replies{action: uint8(request.Response), ch: make(chan pentair.Record, 1)}
	b.AddHandler(rep)
	b.AddHandler(ackAll(b))

	fmt.Printf("Poolstat - Ping\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Target: %s\n", target)
	fmt.Printf("Timeout: %d seconds per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	ctx := context.Background()
	if pingPump != "" {
		if ok, err := b.Send(ctx, pentair.NewPumpControl(source, pump, true), cfg.Bus.Retries); err != nil || !ok {
			fmt.Printf("Pump did not accept remote control (err=%v)\n", err)
		}
	}

	successCount := 0
	failCount := 0
	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)
		rep.drain()

		start := time.Now()
		ok, err := b.Send(ctx, request, 0)
		rtt := time.Since(start)
		switch {
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		case !ok:
			fmt.Printf("TIMEOUT (no response in %ds)\n", pingTimeout)
			failCount++
		default:
			fmt.Printf("reply from %s, %s, rtt=%v\n", target, describeReply(rep), rtt.Round(time.Millisecond))
			successCount++
		}

		if i < pingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)

	if pingPump != "" {
		releasePump(b, cfg, source, pump)
	}
	if failCount > 0 {
		b.Disconnect()
		os.Exit(1)
	}
	return nil
}

func releasePump(b *bus.Bus, cfg *config.Config, source, pump uint8) {
	if _, err := b.Send(context.Background(), pentair.NewPumpControl(source, pump, false), cfg.Bus.Retries); err != nil {
		fmt.Printf("Failed to return pump to local control: %v\n", err)
	}
}

func describeReply(rep *replies) string {
	select {
	case rec := <-rep.ch:
		switch r := rec.(type) {
		case *pentair.SoftwareVersion:
			return "firmware " + r.String()
		case *pentair.PumpStatus:
			return fmt.Sprintf("%d rpm %dW", r.RPM, r.Power)
		}
		return rec.Name()
	case <-time.After(100 * time.Millisecond):
		return "no payload"
	}
}
