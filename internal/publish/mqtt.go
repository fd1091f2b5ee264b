// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package publish mirrors device state to an MQTT broker and applies
// commands received from it.
//
// State is published retained under <prefix>/<kind>/<id>/<record>, for
// example poolstat/intelliflo/0x60/pump_status. Commands are accepted under
// <prefix>/set/...; see Subscriber.Handle for the topic layout.
package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/config"
)

// Availability payloads published on <prefix>/status.
const (
	Online  = "online"
	Offline = "offline"
)

// Client is the part of mqtt.Client used by the publisher and subscriber.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// ClientID returns the configured client id, or poolstat-<random>.
func ClientID(cfg config.MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "poolstat-" + uuid.NewString()[:8]
}

// StatusTopic is the retained availability topic.
func StatusTopic(prefix string) string {
	return prefix + "/status"
}

// Connect dials the broker. onConnect runs after the first connection and
// after every automatic reconnect; use it to (re)subscribe.
func Connect(cfg config.MQTTConfig, logger *zap.Logger, onConnect func(mqtt.Client)) (mqtt.Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientID := ClientID(cfg)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWriteTimeout(10 * time.Second)
	opts.SetWill(StatusTopic(cfg.Prefix), Offline, byte(cfg.QoS), true)

	opts.OnConnect = func(c mqtt.Client) {
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))
		c.Publish(StatusTopic(cfg.Prefix), byte(cfg.QoS), true, Online)
		if onConnect != nil {
			onConnect(c)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", zap.Error(err))
	}
	opts.OnReconnecting = func(mqtt.Client, *mqtt.ClientOptions) {
		logger.Info("mqtt reconnecting")
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return client, nil
}

// Disconnect marks the bridge offline and closes the connection.
func Disconnect(c mqtt.Client, prefix string, qos byte) {
	token := c.Publish(StatusTopic(prefix), qos, true, Offline)
	token.WaitTimeout(time.Second)
	c.Disconnect(250)
}
