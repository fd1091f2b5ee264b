// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/equipment"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

const publishTimeout = 5 * time.Second

// Message is the JSON body of a state topic.
type Message struct {
	Time    time.Time          `json:"time"`
	Device  string             `json:"device"`
	Kind    equipment.Kind     `json:"kind"`
	Record  pentair.Record     `json:"record"`
	Derived map[string]float64 `json:"derived,omitempty"`
}

// Publisher is an equipment.Sink that forwards events to MQTT.
type Publisher struct {
	client Client
	prefix string
	qos    byte
	retain bool
	logger *zap.Logger
}

// NewPublisher creates a publisher on an already connected client.
func NewPublisher(client Client, cfg config.MQTTConfig, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		client: client,
		prefix: cfg.Prefix,
		qos:    byte(cfg.QoS),
		retain: cfg.Retain,
		logger: logger.Named("mqtt"),
	}
}

// Topic returns the state topic for an event.
func (p *Publisher) Topic(e equipment.Event) string {
	return fmt.Sprintf("%s/%s/%s/%s", p.prefix, e.Kind, deviceID(e.Device), e.Record.Name())
}

// Publish implements equipment.Sink. It does not wait for the broker;
// delivery failures are logged.
func (p *Publisher) Publish(e equipment.Event) {
	if e.Record == nil {
		return
	}
	if _, ok := e.Record.(pentair.Unrecognized); ok {
		return
	}

	body, err := json.Marshal(Message{
		Time:    e.Time,
		Device:  deviceID(e.Device),
		Kind:    e.Kind,
		Record:  e.Record,
		Derived: e.Derived,
	})
	if err != nil {
		p.logger.Warn("encode event", zap.String("record", e.Record.Name()), zap.Error(err))
		return
	}

	topic := p.Topic(e)
	token := p.client.Publish(topic, p.qos, p.retain, body)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Debug("publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn("publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func deviceID(id uint8) string {
	return fmt.Sprintf("0x%02X", id)
}
