// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// PumpPollInterval is how often the poller services each pump.
const PumpPollInterval = 30 * time.Second

// MasterCheck reports whether another master owns the pumps. The registry
// answers true when a controller is registered and not in service mode.
type MasterCheck func() bool

// Pump is an IntelliFlo variable speed pump (bus ids 0x60..0x6F).
//
// Every command runs as a sequence: take remote control, command, run,
// request status, release to local control. While the pump is in run mode the
// poller resends the run command as a watchdog, otherwise it just asks for
// status.
type Pump struct {
	base
	otherMaster MasterCheck

	mu      sync.Mutex
	status  *pentair.PumpStatus
	remote  bool
	runMode bool
	program int
}

// NewPump creates a pump device. master may be nil when no controller
// shares the bus.
func NewPump(id uint8, opts Options, master MasterCheck) *Pump {
	if master == nil {
		master = func() bool { return false }
	}
	return &Pump{base: newBase(id, KindPump, opts), otherMaster: master}
}

// HandleFrame implements Device
func (p *Pump) HandleFrame(f pentair.WireFrame, rec pentair.Record) {
	switch r := rec.(type) {
	case *pentair.PumpStatus:
		p.mu.Lock()
		p.status = r
		p.mu.Unlock()
		p.log.Debug("status", zap.Stringer("status", r))
		p.publish(r, nil)

	case *pentair.PumpReply:
		if r.Action == pentair.ActionPumpRemote {
			p.mu.Lock()
			p.remote = r.Remote()
			p.mu.Unlock()
		}
		p.log.Debug("command reply", zap.Uint8("action", r.Action), zap.Binary("data", r.Data))

	default:
		p.log.Debug("unhandled frame", zap.Uint8("action", f.Action()))
	}
}

// Status returns the last telemetry, or nil.
func (p *Pump) Status() *pentair.PumpStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// RunMode reports whether we last told the pump to run.
func (p *Pump) RunMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runMode
}

// Program returns the running program (1..4) or 0.
func (p *Pump) Program() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.program
}

// Remote reports whether the last panel reply put the pump under remote
// control.
func (p *Pump) Remote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *Pump) setMode(run bool, program int) {
	p.mu.Lock()
	p.runMode, p.program = run, program
	p.mu.Unlock()
}

func (p *Pump) checkMaster() error {
	if p.otherMaster() {
		p.log.Debug("refusing pump command, another master is on the bus")
		return fmt.Errorf("pump 0x%02X: %w", p.id, ErrOtherMaster)
	}
	return nil
}

func (p *Pump) control(remote bool) step {
	what := "local control"
	if remote {
		what = "remote control"
	}
	return step{what, pentair.NewPumpControl(p.opts.Source, p.id, remote)}
}

func (p *Pump) statusRequest() step {
	return step{"status", pentair.NewPumpStatusRequest(p.opts.Source, p.id)}
}

func (p *Pump) run(on bool) step {
	return step{"run", pentair.NewPumpRun(p.opts.Source, p.id, on)}
}

// RequestStatus takes remote control and asks for telemetry.
func (p *Pump) RequestStatus(ctx context.Context) (bool, error) {
	return p.sequence(ctx, p.control(true), p.statusRequest())
}

// SetRun starts or stops the motor.
func (p *Pump) SetRun(ctx context.Context, on bool) (bool, error) {
	if err := p.checkMaster(); err != nil {
		return false, err
	}
	p.setMode(on, 0)
	p.log.Debug("set run", zap.Bool("on", on))
	return p.sequence(ctx, p.control(true), p.run(on), p.statusRequest(), p.control(false))
}

// SetRPM runs the pump at a fixed speed in MinPumpRPM..MaxPumpRPM.
func (p *Pump) SetRPM(ctx context.Context, rpm int) (bool, error) {
	cmd, err := pentair.NewPumpRPM(p.opts.Source, p.id, rpm)
	if err != nil {
		return false, err
	}
	if err := p.checkMaster(); err != nil {
		return false, err
	}
	p.setMode(true, 0)
	p.log.Debug("set rpm", zap.Int("rpm", rpm))
	return p.sequence(ctx, p.control(true), step{"rpm", cmd}, p.run(true), p.statusRequest(), p.control(false))
}

// RunProgram runs stored program 1..4.
func (p *Pump) RunProgram(ctx context.Context, program int) (bool, error) {
	cmd, err := pentair.NewPumpProgram(p.opts.Source, p.id, program)
	if err != nil {
		return false, err
	}
	if err := p.checkMaster(); err != nil {
		return false, err
	}
	p.setMode(true, program)
	p.log.Debug("run program", zap.Int("program", program))
	return p.sequence(ctx, p.control(true), step{"program", cmd}, p.run(true), p.statusRequest(), p.control(false))
}

// Poll is the periodic pump service: a run watchdog in run mode, a status
// request otherwise.
func (p *Pump) Poll(ctx context.Context) error {
	if p.RunMode() {
		if err := p.checkMaster(); err != nil {
			return err
		}
		p.log.Debug("pump watchdog")
		_, err := p.sequence(ctx, p.run(true))
		return err
	}
	_, err := p.RequestStatus(ctx)
	return err
}
