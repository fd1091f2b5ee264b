// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "poolstat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 9600, cfg.Transport.Baud)
	assert.Equal(t, time.Second, cfg.Bus.AckTimeout)
	assert.Equal(t, 1, cfg.Bus.Retries)
	assert.Equal(t, 0x22, cfg.Bus.Source)
	assert.Equal(t, 0x10, cfg.Bus.Controller)
	assert.Equal(t, 30*time.Second, cfg.Poll.Reconnect)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "poolstat", cfg.MQTT.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := writeYAML(t, `
transport:
  port: /dev/ttyUSB0
bus:
  ackTimeout: 750ms
  retries: 3
  chlorinator: true
  pumps: [0x60, 0x61]
  intellichems: [0x90]
mqtt:
  enable: true
  broker: tcp://broker:1883
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Transport.Port)
	assert.Equal(t, 9600, cfg.Transport.Baud, "unset keys keep defaults")
	assert.Equal(t, 750*time.Millisecond, cfg.Bus.AckTimeout)
	assert.Equal(t, 3, cfg.Bus.Retries)
	assert.True(t, cfg.Bus.Chlorinator)
	assert.Equal(t, []int{0x60, 0x61}, cfg.Bus.Pumps)
	assert.Equal(t, []int{0x90}, cfg.Bus.IntelliChems)
	assert.True(t, cfg.MQTT.Enable)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, "bus:\n  retries: 3\n")
	t.Setenv("POOLSTAT_BUS_RETRIES", "5")
	t.Setenv("POOLSTAT_TRANSPORT_TCP", "bridge.local:9801")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Bus.Retries)
	assert.Equal(t, "bridge.local:9801", cfg.Transport.TCP)
}

func TestLoad_Option(t *testing.T) {
	path := writeYAML(t, "transport:\n  baud: 19200\n")

	cfg, err := Load(path, func(v *viper.Viper) error {
		v.Set("transport.baud", 4800)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4800, cfg.Transport.Baud)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero ack timeout", "bus:\n  ackTimeout: 0s\n"},
		{"negative retries", "bus:\n  retries: -1\n"},
		{"pump out of range", "bus:\n  pumps: [0x50]\n"},
		{"chem out of range", "bus:\n  intellichems: [0x60]\n"},
		{"bad qos", "mqtt:\n  qos: 3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeYAML(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestWriteFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolstat.yaml")
	want := Default()
	want.Bus.Pumps = []int{0x60}
	want.Transport.Port = "/dev/ttyAMA0"

	require.NoError(t, want.WriteFile(path, false))
	assert.Error(t, want.WriteFile(path, false), "existing file is kept")
	require.NoError(t, want.WriteFile(path, true))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
