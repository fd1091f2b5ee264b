// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads poolstat settings from a YAML file, POOLSTAT_*
// environment variables and command line flags, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g.
// POOLSTAT_TRANSPORT_PORT or POOLSTAT_BUS_ACKTIMEOUT.
const EnvPrefix = "POOLSTAT"

// TransportConfig selects how the RS-485 bus is reached. Exactly one of
// Port, URL and TCP should be set.
type TransportConfig struct {
	Port        string        `mapstructure:"port" yaml:"port"`
	Baud        int           `mapstructure:"baud" yaml:"baud"`
	URL         string        `mapstructure:"url" yaml:"url"`
	Username    string        `mapstructure:"username" yaml:"username"`
	NoSSLVerify bool          `mapstructure:"noSSLVerify" yaml:"noSSLVerify"`
	TCP         string        `mapstructure:"tcp" yaml:"tcp"`
	DialTimeout time.Duration `mapstructure:"dialTimeout" yaml:"dialTimeout"`
}

// BusConfig controls the write coordinator and which equipment is managed.
type BusConfig struct {
	AckTimeout   time.Duration `mapstructure:"ackTimeout" yaml:"ackTimeout"`
	Retries      int           `mapstructure:"retries" yaml:"retries"`
	Source       int           `mapstructure:"source" yaml:"source"`
	Controller   int           `mapstructure:"controller" yaml:"controller"`
	Chlorinator  bool          `mapstructure:"chlorinator" yaml:"chlorinator"`
	Pumps        []int         `mapstructure:"pumps" yaml:"pumps"`
	IntelliChems []int         `mapstructure:"intellichems" yaml:"intellichems"`
	ClockSync    bool          `mapstructure:"clockSync" yaml:"clockSync"`
}

// PollConfig sets the periodic request intervals.
type PollConfig struct {
	Rate      float64       `mapstructure:"rate" yaml:"rate"`
	Heat      time.Duration `mapstructure:"heat" yaml:"heat"`
	Chem      time.Duration `mapstructure:"chem" yaml:"chem"`
	Reconnect time.Duration `mapstructure:"reconnect" yaml:"reconnect"`
}

// LumberjackConfig is the rotating log file.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// LoggingConfig sets level, encoder and optional file output.
type LoggingConfig struct {
	Level  string           `mapstructure:"level" yaml:"level"`
	Format string           `mapstructure:"format" yaml:"format"`
	File   LumberjackConfig `mapstructure:"file" yaml:"file"`
}

// MetricsConfig exposes Prometheus metrics on the API server.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Path   string `mapstructure:"path" yaml:"path"`
}

// MQTTConfig publishes device state and accepts commands.
type MQTTConfig struct {
	Enable   bool   `mapstructure:"enable" yaml:"enable"`
	Broker   string `mapstructure:"broker" yaml:"broker"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	ClientID string `mapstructure:"clientID" yaml:"clientID"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	QoS      int    `mapstructure:"qos" yaml:"qos"`
	Retain   bool   `mapstructure:"retain" yaml:"retain"`
}

// APIConfig is the HTTP status and command server.
type APIConfig struct {
	Enable       bool          `mapstructure:"enable" yaml:"enable"`
	Addr         string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout" yaml:"writeTimeout"`
}

// CaptureConfig records raw bus traffic for later replay.
type CaptureConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// Config is the top level configuration
type Config struct {
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`
	Bus       BusConfig       `mapstructure:"bus" yaml:"bus"`
	Poll      PollConfig      `mapstructure:"poll" yaml:"poll"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	MQTT      MQTTConfig      `mapstructure:"mqtt" yaml:"mqtt"`
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Capture   CaptureConfig   `mapstructure:"capture" yaml:"capture"`
}

// Option adjusts the viper instance before the configuration is read, for
// example to bind command line flags.
type Option func(v *viper.Viper) error

// Load reads configuration from path, the environment and opts. An empty path
// looks for poolstat.yaml in the working directory and ~/.config/poolstat; a
// missing file there is not an error.
func Load(path string, opts ...Option) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("poolstat")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/poolstat")
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks the values the bus layers depend on.
func (c *Config) Validate() error {
	if c.Bus.AckTimeout <= 0 {
		return fmt.Errorf("bus.ackTimeout must be positive, got %s", c.Bus.AckTimeout)
	}
	if c.Bus.Retries < 0 {
		return fmt.Errorf("bus.retries must not be negative, got %d", c.Bus.Retries)
	}
	for _, id := range []int{c.Bus.Source, c.Bus.Controller} {
		if id < 0 || id > 0xFF {
			return fmt.Errorf("bus id %d out of range", id)
		}
	}
	for _, id := range c.Bus.Pumps {
		if id < 0x60 || id > 0x6F {
			return fmt.Errorf("pump id 0x%02X not in [0x60..0x6F]", id)
		}
	}
	for _, id := range c.Bus.IntelliChems {
		if id < 0x90 || id > 0x9F {
			return fmt.Errorf("intellichem id 0x%02X not in [0x90..0x9F]", id)
		}
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// WriteFile writes c as YAML to path. Existing files are not overwritten
// unless force is set.
func (c *Config) WriteFile(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.port", "")
	v.SetDefault("transport.baud", 9600)
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.username", "")
	v.SetDefault("transport.noSSLVerify", false)
	v.SetDefault("transport.tcp", "")
	v.SetDefault("transport.dialTimeout", "15s")

	v.SetDefault("bus.ackTimeout", "1s")
	v.SetDefault("bus.retries", 1)
	v.SetDefault("bus.source", 0x22)
	v.SetDefault("bus.controller", 0x10)
	v.SetDefault("bus.chlorinator", false)
	v.SetDefault("bus.pumps", []int{})
	v.SetDefault("bus.intellichems", []int{})
	v.SetDefault("bus.clockSync", true)

	v.SetDefault("poll.rate", 2.0)
	v.SetDefault("poll.heat", "1m")
	v.SetDefault("poll.chem", "1m")
	v.SetDefault("poll.reconnect", "30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("mqtt.enable", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.clientID", "")
	v.SetDefault("mqtt.prefix", "poolstat")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.retain", true)

	v.SetDefault("api.enable", true)
	v.SetDefault("api.addr", ":8080")
	v.SetDefault("api.readTimeout", "5s")
	v.SetDefault("api.writeTimeout", "10s")

	v.SetDefault("capture.file", "")
}
