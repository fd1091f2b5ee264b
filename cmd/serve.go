// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/api"
	"github.com/Thermoquad/poolstat/internal/capture"
	"github.com/Thermoquad/poolstat/internal/logging"
	"github.com/Thermoquad/poolstat/internal/metrics"
	"github.com/Thermoquad/poolstat/internal/publish"
	"github.com/Thermoquad/poolstat/pkg/bus"
	"github.com/Thermoquad/poolstat/pkg/equipment"
)

const (
	clockSyncDelay    = time.Minute
	clockSyncInterval = 6 * time.Hour
	shutdownTimeout   = 5 * time.Second
)

var (
	serveAPIAddr string
	serveMQTT    string
	serveCapture string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bus bridge (HTTP API, MQTT and metrics)",
	Long: `Run poolstat as a long lived bridge between the pool bus and the network.

The bridge keeps the bus connection alive, polls pumps, IntelliChem and heat
status, keeps the controller clock in sync and publishes every decoded record:

  HTTP:    GET /api/status, /api/devices, /api/devices/:id
           POST /api/circuits/:id, /api/pumps/:id/rpm, /api/salt, ...
  MQTT:    <prefix>/<kind>/<id>/<record> state topics and
           <prefix>/set/... command topics
  Metrics: Prometheus exposition on the API server

With a capture file configured, every byte read from the bus is recorded for
later use with the replay command.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAPIAddr, "api-addr", "", "HTTP listen address (overrides api.addr)")
	serveCmd.Flags().StringVar(&serveMQTT, "mqtt-broker", "", "MQTT broker URL, enables MQTT (overrides mqtt.broker)")
	serveCmd.Flags().StringVar(&serveCapture, "capture", "", "Record raw bus traffic to this file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, map[string]string{
		"api-addr": "api.addr",
		"capture":  "capture.file",
	})
	if err != nil {
		return err
	}
	if serveMQTT != "" {
		cfg.MQTT.Enable = true
		cfg.MQTT.Broker = serveMQTT
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := equipment.NewStore()
	sinks := equipment.Sinks{store}
	so := stackOptions{}

	// Metrics
	var (
		reg *prometheus.Registry
		bm  *metrics.BusMetrics
	)
	if cfg.Metrics.Enable {
		reg = metrics.NewRegistry()
		bm = metrics.NewBusMetrics(reg)
		sinks = append(sinks, bm)
		so.observer = bm
		so.onState = bm.ObserveState
	}

	// Capture
	if cfg.Capture.File != "" {
		w, closeCapture, err := openCapture(cfg.Capture.File, describeTransport(cfg.Transport))
		if err != nil {
			return err
		}
		defer closeCapture()
		so.tap = func(t bus.Transport) bus.Transport { return capture.Tap(t, w) }
		logger.Info("capturing bus traffic", zap.String("file", cfg.Capture.File))
	}

	// MQTT state publishing; the subscriber needs the registry, so it is
	// attached once the stack exists.
	var (
		client mqtt.Client
		sub    atomic.Pointer[publish.Subscriber]
	)
	if cfg.MQTT.Enable {
		client, err = publish.Connect(cfg.MQTT, logger.Named("mqtt"), func(mqtt.Client) {
			if s := sub.Load(); s != nil {
				if err := s.Subscribe(); err != nil {
					logger.Warn("mqtt subscribe failed", zap.Error(err))
				}
			}
		})
		if err != nil {
			return err
		}
		defer publish.Disconnect(client, cfg.MQTT.Prefix, byte(cfg.MQTT.QoS))
		sinks = append(sinks, publish.NewPublisher(client, cfg.MQTT, logger.Named("mqtt")))
	}

	so.sink = sinks
	s, err := newStack(cfg, logger, so)
	if err != nil {
		return err
	}

	if bm != nil {
		s.bus.AddHandler(bm)
		s.bus.OnReject(bm.Reject)
		metrics.RegisterSyncStats(reg, s.bus.Stats)
	}
	s.registry.OnUnknown(func(id uint8, kind equipment.Kind) {
		logger.Info("unmanaged device on bus", zap.String("id", fmt.Sprintf("0x%02X", id)), zap.String("kind", string(kind)))
	})

	if client != nil {
		subscriber := publish.NewSubscriber(client, cfg.MQTT, s.registry, logger.Named("mqtt"))
		sub.Store(subscriber)
		if err := subscriber.Subscribe(); err != nil {
			logger.Warn("mqtt subscribe failed", zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	// HTTP API
	var srv *api.Server
	if cfg.API.Enable {
		srv = api.New(cfg.API, apiDeps(s, store, reg, logger))
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("api listening", zap.String("addr", cfg.API.Addr))
			if err := srv.Start(); err != nil {
				errs <- fmt.Errorf("api: %w", err)
			}
		}()
	}

	logger.Info("poolstat bridge starting",
		zap.String("transport", describeTransport(cfg.Transport)),
		zap.Int("devices", len(s.registry.Devices())))

	run := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	run("monitor", s.monitor.Run)
	run("poller", s.poller.Run)
	if cfg.Bus.ClockSync {
		run("clock sync", func(ctx context.Context) error {
			return s.controller.RunClockSync(ctx, clockSyncDelay, clockSyncInterval)
		})
	}
	run("settings", func(ctx context.Context) error {
		return readSettings(ctx, s, logger)
	})

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
		logger.Error("bridge failed", zap.Error(runErr))
		stop()
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api shutdown", zap.Error(err))
		}
		cancel()
	}
	wg.Wait()
	return runErr
}

// readSettings waits for the first controller status and then loads the
// controller configuration once.
func readSettings(ctx context.Context, s *stack, logger *zap.Logger) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.controller.Ready():
	}
	if err := s.controller.ReadSettings(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("reading controller settings", zap.Error(err))
		return nil
	}
	if v := s.controller.Version(); v != nil {
		logger.Info("controller settings loaded", zap.String("firmware", v.String()))
	}
	return nil
}

func apiDeps(s *stack, store *equipment.Store, reg *prometheus.Registry, logger *zap.Logger) api.Deps {
	deps := api.Deps{
		Store:    store,
		Commands: s.registry,
		Status: func() api.Status {
			return api.Status{
				Connected: s.bus.Connected(),
				State:     s.monitor.State().String(),
				Sync:      s.bus.Stats(),
				Devices:   len(s.registry.Devices()),
			}
		},
		Ready: func() bool {
			if s.monitor.State() != equipment.StateConnected {
				return false
			}
			select {
			case <-s.controller.Ready():
				return true
			default:
				return false
			}
		},
		Logger: logger.Named("api"),
	}
	if reg != nil {
		deps.Metrics = metrics.Handler(reg)
		deps.MetricsPath = s.cfg.Metrics.Path
	}
	return deps
}

// openCapture creates path and writes the capture header.
func openCapture(path, source string) (*capture.Writer, func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create capture: %w", err)
	}
	w, err := capture.NewWriter(f, source)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return w, func() { f.Close() }, nil
}
