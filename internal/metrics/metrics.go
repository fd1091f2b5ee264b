// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports bus and equipment counters to Prometheus.
package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/poolstat/pkg/equipment"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

const namespace = "poolstat"

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves reg in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// BusMetrics counts frames, rejects, writes and connection changes.
//
// It is a pentair.FrameHandler, a bus.WriteObserver and an equipment.Sink,
// and its Reject and ObserveState methods fit Bus.OnReject and
// equipment.WithStateObserver.
type BusMetrics struct {
	Frames       *prometheus.CounterVec // labels: kind, action
	Rejects      *prometheus.CounterVec // labels: kind, reason
	Attempts     *prometheus.CounterVec // labels: response
	Writes       *prometheus.CounterVec // labels: result=ok|timeout
	WriteLatency prometheus.Histogram
	Events       *prometheus.CounterVec // labels: kind, record
	State        prometheus.Gauge
	Reconnects   prometheus.Counter
}

// NewBusMetrics registers and returns the bus metrics.
func NewBusMetrics(reg prometheus.Registerer) *BusMetrics {
	m := &BusMetrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Validated frames by protocol and action.",
		}, []string{"kind", "action"}),
		Rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejects_total",
			Help:      "Marker matches thrown away by the synchronizer.",
		}, []string{"kind", "reason"}),
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_attempts_total",
			Help:      "Frames transmitted, retries included, by expected response action.",
		}, []string{"response"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Finished writes by result.",
		}, []string{"result"}),
		WriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Time from first transmit to response or give up.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		Events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_total",
			Help:      "Records published by managed devices.",
		}, []string{"kind", "record"}),
		State: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection monitor state (0 init, 1 connecting, 2 connected, 3 disconnected, 4 config error).",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Successful transport connections.",
		}),
	}
	reg.MustRegister(m.Frames, m.Rejects, m.Attempts, m.Writes, m.WriteLatency, m.Events, m.State, m.Reconnects)
	return m
}

// OnFrame implements pentair.FrameHandler
func (m *BusMetrics) OnFrame(f *pentair.Frame) {
	m.Frames.WithLabelValues(f.Kind().String(), actionLabel(f.Action())).Inc()
}

// OnChlorinatorFrame implements pentair.FrameHandler
func (m *BusMetrics) OnChlorinatorFrame(f *pentair.ChlorinatorFrame) {
	m.Frames.WithLabelValues(f.Kind().String(), actionLabel(f.Action())).Inc()
}

// Reject counts a rejected marker match.
func (m *BusMetrics) Reject(r pentair.Reject) {
	reason := "other"
	switch {
	case errors.Is(r.Reason, pentair.ErrChecksum):
		reason = "checksum"
	case errors.Is(r.Reason, pentair.ErrUnknownAction):
		reason = "unknown_action"
	}
	m.Rejects.WithLabelValues(r.Kind.String(), reason).Inc()
}

// WriteAttempt implements bus.WriteObserver
func (m *BusMetrics) WriteAttempt(expected int) {
	m.Attempts.WithLabelValues(responseLabel(expected)).Inc()
}

// WriteDone implements bus.WriteObserver
func (m *BusMetrics) WriteDone(expected int, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "timeout"
	}
	m.Writes.WithLabelValues(result).Inc()
	m.WriteLatency.Observe(elapsed.Seconds())
}

// Publish implements equipment.Sink
func (m *BusMetrics) Publish(e equipment.Event) {
	if e.Record == nil {
		return
	}
	m.Events.WithLabelValues(string(e.Kind), e.Record.Name()).Inc()
}

// ObserveState records a connection monitor state change.
func (m *BusMetrics) ObserveState(s equipment.State) {
	m.State.Set(float64(s))
	if s == equipment.StateConnected {
		m.Reconnects.Inc()
	}
}

// RegisterSyncStats exports the synchronizer counters returned by stats.
func RegisterSyncStats(reg prometheus.Registerer, stats func() pentair.SyncStats) {
	counter := func(name, help string, field func(pentair.SyncStats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(field(stats())) })
	}
	reg.MustRegister(
		counter("bytes_in_total", "Bytes read from the transport.",
			func(s pentair.SyncStats) uint64 { return s.BytesIn }),
		counter("bytes_skipped_total", "Bytes discarded while hunting for a marker.",
			func(s pentair.SyncStats) uint64 { return s.BytesSkipped }),
		counter("markers_total", "Start markers matched.",
			func(s pentair.SyncStats) uint64 { return s.Markers }),
		counter("checksum_errors_total", "Candidate frames with a bad checksum.",
			func(s pentair.SyncStats) uint64 { return s.ChecksumErrors }),
		counter("unknown_chlorinator_actions_total", "Chlorinator markers with an unknown action.",
			func(s pentair.SyncStats) uint64 { return s.UnknownChlorActions }),
		counter("frames_total", "Controller frames delivered.",
			func(s pentair.SyncStats) uint64 { return s.Frames }),
		counter("chlorinator_frames_total", "Chlorinator frames delivered.",
			func(s pentair.SyncStats) uint64 { return s.ChlorinatorFrames }),
	)
}

func actionLabel(action uint8) string {
	return fmt.Sprintf("0x%02X", action)
}

func responseLabel(expected int) string {
	return pentair.FormatResponse(expected)
}
