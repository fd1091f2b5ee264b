// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Thermoquad/poolstat/internal/config"
)

var (
	configFile string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// TCP bridge flag
	tcpAddr string

	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "poolstat",
	Short: "Pentair RS-485 Pool Bus Monitor and Bridge",
	Long: `Poolstat - A CLI tool for monitoring, analyzing and controlling a Pentair
pool equipment bus (EasyTouch/IntelliTouch controllers, IntelliFlo pumps,
IntelliChlor salt cells and IntelliChem controllers).

Provides commands for raw frame logging, error detection, device discovery,
interactive control and a long running bridge (serve) that publishes device
state over HTTP and MQTT.

Connection modes:
  Serial:     --port /dev/ttyUSB0 [--baud 9600]
  TCP bridge: --tcp host:port
  WebSocket:  --url ws://host/path [--username user]

Settings can also come from a YAML file (--config, default ./poolstat.yaml
or ~/.config/poolstat/poolstat.yaml) and POOLSTAT_* environment variables.
Flags take precedence.

For WebSocket authentication, the password is read from the POOLSTAT_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 9600, "Baud rate (serial only)")

	// TCP bridge
	rootCmd.PersistentFlags().StringVar(&tcpAddr, "tcp", "", "RS-485 to TCP bridge address (host:port)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"port":          "transport.port",
	"baud":          "transport.baud",
	"tcp":           "transport.tcp",
	"url":           "transport.url",
	"username":      "transport.username",
	"no-ssl-verify": "transport.noSSLVerify",
	"log-level":     "logging.level",
}

// loadConfig reads the configuration with command line flags on top. extra
// binds command specific flags.
func loadConfig(cmd *cobra.Command, extra map[string]string) (*config.Config, error) {
	return config.Load(configFile, func(v *viper.Viper) error {
		for _, keys := range []map[string]string{flagKeys, extra} {
			for name, key := range keys {
				f := cmd.Flags().Lookup(name)
				if f == nil {
					continue
				}
				if err := v.BindPFlag(key, f); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
