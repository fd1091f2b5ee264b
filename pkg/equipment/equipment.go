// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package equipment routes decoded bus traffic to the devices we manage and
// issues their commands through the bus write coordinator.
//
// A Registry is keyed by bus id. Each registered device keeps the latest
// decoded state of one piece of equipment and publishes changes to a Sink.
// Frames from unregistered ids are reported once and otherwise dropped.
package equipment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

var (
	ErrDuplicateDevice = errors.New("device already registered")
	ErrNoPreamble      = errors.New("controller preamble not yet observed")
	ErrOtherMaster     = errors.New("another bus master is active")
	ErrUnavailable     = errors.New("value not yet received")
	ErrNoSender        = errors.New("no sender configured")
)

// DefaultRetries is the retry count used for device commands.
const DefaultRetries = 1

// Kind names a class of equipment
type Kind string

const (
	KindController  Kind = "controller"
	KindChlorinator Kind = "intellichlor"
	KindPump        Kind = "intelliflo"
	KindIntelliChem Kind = "intellichem"
)

// KindOf maps a controller protocol source address to the equipment kind it
// belongs to. Control panels and unknown nibbles report false.
func KindOf(address uint8) (Kind, bool) {
	switch pentair.DeviceTypeOf(address) {
	case pentair.DeviceTypeController:
		return KindController, true
	case pentair.DeviceTypePump:
		return KindPump, true
	case pentair.DeviceTypeIntelliChem:
		return KindIntelliChem, true
	default:
		return "", false
	}
}

// Sender is the write side of the bus. *bus.Bus and *bus.Coordinator both
// satisfy it.
type Sender interface {
	Send(ctx context.Context, cmd pentair.Command, retries int) (bool, error)
}

// Acker receives the response key (pentair.ResponseOf) of every frame a
// device has processed.
type Acker interface {
	Ack(response int)
}

// Device is one piece of equipment on the bus.
type Device interface {
	ID() uint8
	Kind() Kind
	// HandleFrame is called on the bus reader goroutine. It must not wait
	// for a bus write.
	HandleFrame(f pentair.WireFrame, rec pentair.Record)
}

// Event is a decoded record published by a device
type Event struct {
	Time   time.Time
	Device uint8
	Kind   Kind
	Record pentair.Record
	// Derived holds values computed from more than one device, such as the
	// saturation index.
	Derived map[string]float64
}

// Sink receives device events. Publish is called on the bus reader goroutine.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Publish implements Sink
func (f SinkFunc) Publish(e Event) { f(e) }

// Sinks fans an event out to several sinks in order.
type Sinks []Sink

// Publish implements Sink
func (s Sinks) Publish(e Event) {
	for _, sink := range s {
		sink.Publish(e)
	}
}

// Options are shared by every device constructor.
type Options struct {
	Sender  Sender
	Source  uint8 // our bus id, placed in the source byte of every command
	Retries int
	Sink    Sink
	Logger  *zap.Logger
	Now     func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Source == 0 {
		o.Source = pentair.AddressWireless
	}
	if o.Retries < 0 {
		o.Retries = 0
	}
	if o.Sink == nil {
		o.Sink = Sinks(nil)
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// base carries what every device needs to talk and publish.
type base struct {
	id   uint8
	kind Kind
	opts Options
	log  *zap.Logger
}

func newBase(id uint8, kind Kind, opts Options) base {
	opts = opts.withDefaults()
	return base{
		id:   id,
		kind: kind,
		opts: opts,
		log:  opts.Logger.With(zap.String("device", string(kind)), zap.Uint8("id", id)),
	}
}

// ID implements Device
func (b *base) ID() uint8 { return b.id }

// Kind implements Device
func (b *base) Kind() Kind { return b.kind }

func (b *base) publish(rec pentair.Record, derived map[string]float64) {
	b.opts.Sink.Publish(Event{
		Time:    b.opts.Now(),
		Device:  b.id,
		Kind:    b.kind,
		Record:  rec,
		Derived: derived,
	})
}

// send transmits one command. A missing response is logged and reported as
// false; only transport and context failures are errors.
func (b *base) send(ctx context.Context, what string, cmd pentair.Command) (bool, error) {
	if b.opts.Sender == nil {
		return false, ErrNoSender
	}
	ok, err := b.opts.Sender.Send(ctx, cmd, b.opts.Retries)
	if err != nil {
		b.log.Debug("command failed", zap.String("command", what), zap.Error(err))
		return false, err
	}
	if !ok {
		b.log.Debug("command timed out", zap.String("command", what), zap.Stringer("frame", cmd))
	}
	return ok, nil
}

// sequence sends commands in order. It stops at the first error and reports
// whether every step was acknowledged.
func (b *base) sequence(ctx context.Context, steps ...step) (bool, error) {
	all := true
	for _, s := range steps {
		ok, err := b.send(ctx, s.what, s.cmd)
		if err != nil {
			return false, err
		}
		all = all && ok
	}
	return all, nil
}

type step struct {
	what string
	cmd  pentair.Command
}
