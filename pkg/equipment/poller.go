// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPollRate bounds how many poll tasks may start per second across the
// whole bus.
const DefaultPollRate = 2

// Poller runs periodic device services such as pump watchdogs and chemistry
// requests. All tasks share one rate limiter so they do not crowd the bus.
type Poller struct {
	limiter *rate.Limiter
	logger  *zap.Logger

	mu    sync.Mutex
	tasks []pollTask
}

type pollTask struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context) error
}

// NewPoller creates a poller that starts at most perSecond tasks per second.
func NewPoller(perSecond float64, logger *zap.Logger) *Poller {
	if perSecond <= 0 {
		perSecond = DefaultPollRate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

// Every schedules fn to run every interval once Run has started. Tasks added
// after Run are not picked up.
func (p *Poller) Every(name string, interval time.Duration, fn func(ctx context.Context) error) {
	p.mu.Lock()
	p.tasks = append(p.tasks, pollTask{name: name, interval: interval, fn: fn})
	p.mu.Unlock()
}

// AddPump polls a pump every PumpPollInterval.
func (p *Poller) AddPump(pump *Pump) {
	p.Every("pump "+hexID(pump.ID()), PumpPollInterval, pump.Poll)
}

// AddIntelliChem requests chemistry readings every interval, addressed with
// the controller's preamble when one is known.
func (p *Poller) AddIntelliChem(chem *IntelliChem, controller *Controller, interval time.Duration) {
	p.Every("intellichem "+hexID(chem.ID()), interval, func(ctx context.Context) error {
		var preamble uint8
		if controller != nil {
			preamble, _ = controller.Preamble()
		}
		_, err := chem.RequestStatus(ctx, preamble)
		return err
	})
}

// AddHeat refreshes the controller heat status every interval.
func (p *Poller) AddHeat(controller *Controller, interval time.Duration) {
	p.Every("heat", interval, func(ctx context.Context) error {
		if _, ok := controller.Preamble(); !ok {
			return nil
		}
		_, err := controller.RequestHeat(ctx)
		return err
	})
}

// Run starts every task and blocks until ctx ends.
func (p *Poller) Run(ctx context.Context) error {
	p.mu.Lock()
	tasks := append([]pollTask(nil), p.tasks...)
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, t)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Poller) loop(ctx context.Context, t pollTask) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		if err := t.fn(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll failed", zap.String("task", t.name), zap.Error(err))
		}
	}
}

func hexID(id uint8) string {
	const digits = "0123456789ABCDEF"
	return "0x" + string([]byte{digits[id>>4], digits[id&0xF]})
}
