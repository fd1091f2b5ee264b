// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/internal/config"
	"github.com/Thermoquad/poolstat/pkg/equipment"
	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	ErrUnknownTopic = errors.New("unknown command topic")
	ErrBadPayload   = errors.New("bad command payload")
)

// DefaultCommandTimeout bounds one command including its bus retries.
const DefaultCommandTimeout = 10 * time.Second

// Subscriber applies commands received under <prefix>/set/.
type Subscriber struct {
	client  Client
	prefix  string
	qos     byte
	cmd     equipment.Commander
	logger  *zap.Logger
	timeout time.Duration
}

// NewSubscriber creates a command subscriber. Call Subscribe after every
// (re)connect.
func NewSubscriber(client Client, cfg config.MQTTConfig, cmd equipment.Commander, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		client:  client,
		prefix:  cfg.Prefix,
		qos:     byte(cfg.QoS),
		cmd:     cmd,
		logger:  logger.Named("mqtt"),
		timeout: DefaultCommandTimeout,
	}
}

// Topic is the subscription filter.
func (s *Subscriber) Topic() string {
	return s.prefix + "/set/#"
}

// Subscribe registers the command filter with the broker.
func (s *Subscriber) Subscribe() error {
	token := s.client.Subscribe(s.Topic(), s.qos, s.onMessage)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", s.Topic(), token.Error())
	}
	return nil
}

// onMessage runs the command off the paho router goroutine because a bus
// write can take seconds.
func (s *Subscriber) onMessage(_ mqtt.Client, msg mqtt.Message) {
	topic, payload := msg.Topic(), msg.Payload()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		ok, err := s.Handle(ctx, topic, payload)
		switch {
		case err != nil:
			s.logger.Warn("command failed", zap.String("topic", topic), zap.ByteString("payload", payload), zap.Error(err))
		case !ok:
			s.logger.Warn("command not acknowledged", zap.String("topic", topic))
		default:
			s.logger.Info("command applied", zap.String("topic", topic), zap.ByteString("payload", payload))
		}
	}()
}

// Handle applies one command. Topics below <prefix>/set/ are:
//
//	circuit/<n>        on|off|true|false|1|0
//	setpoint/pool      degrees, optional C or F suffix (F by default)
//	setpoint/spa       same as pool
//	light              mode key such as PARTY, or the numeric code
//	pump/<id>/rpm      400..3450
//	pump/<id>/program  1..4
//	salt               0..100
//
// Pump ids may be decimal or 0x prefixed.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) (bool, error) {
	rel, ok := strings.CutPrefix(topic, s.prefix+"/set/")
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	parts := strings.Split(rel, "/")
	value := strings.TrimSpace(string(payload))

	switch {
	case len(parts) == 2 && parts[0] == "circuit":
		id, err := strconv.Atoi(parts[1])
		if err != nil {
			return false, fmt.Errorf("%w: circuit %q", ErrUnknownTopic, parts[1])
		}
		on, err := parseSwitch(value)
		if err != nil {
			return false, err
		}
		return s.cmd.SetCircuit(ctx, id, on)

	case len(parts) == 2 && parts[0] == "setpoint":
		if parts[1] != "pool" && parts[1] != "spa" {
			return false, fmt.Errorf("%w: setpoint %q", ErrUnknownTopic, parts[1])
		}
		degrees, celsius, err := parseTemp(value)
		if err != nil {
			return false, err
		}
		return s.cmd.SetSetpoint(ctx, parts[1] == "pool", degrees, celsius)

	case len(parts) == 1 && parts[0] == "light":
		mode, err := parseLightMode(value)
		if err != nil {
			return false, err
		}
		return s.cmd.SetLightMode(ctx, mode)

	case len(parts) == 3 && parts[0] == "pump":
		id, err := strconv.ParseUint(parts[1], 0, 8)
		if err != nil {
			return false, fmt.Errorf("%w: pump %q", ErrUnknownTopic, parts[1])
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrBadPayload, value)
		}
		switch parts[2] {
		case "rpm":
			return s.cmd.SetPumpRPM(ctx, uint8(id), n)
		case "program":
			return s.cmd.RunPumpProgram(ctx, uint8(id), n)
		}

	case len(parts) == 1 && parts[0] == "salt":
		n, err := strconv.Atoi(value)
		if err != nil {
			return false, fmt.Errorf("%w: %q", ErrBadPayload, value)
		}
		return s.cmd.SetSaltOutput(ctx, n)
	}
	return false, fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: switch %q", ErrBadPayload, s)
}

func parseTemp(s string) (int, bool, error) {
	celsius := false
	switch {
	case strings.HasSuffix(strings.ToUpper(s), "C"):
		celsius = true
		s = s[:len(s)-1]
	case strings.HasSuffix(strings.ToUpper(s), "F"):
		s = s[:len(s)-1]
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false, fmt.Errorf("%w: temperature %q", ErrBadPayload, s)
	}
	return n, celsius, nil
}

func parseLightMode(s string) (pentair.LightMode, error) {
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return pentair.LightMode(n), nil
	}
	mode, err := pentair.ParseLightMode(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBadPayload, err)
	}
	return mode, nil
}
