// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

func newTestController(t *testing.T) (*Controller, *fakeSender, *eventSink, *manualClock) {
	t.Helper()
	sender := &fakeSender{ack: true}
	sink := &eventSink{}
	clock := newManualClock()
	c := NewController(pentair.AddressController, Options{Sender: sender, Sink: sink, Now: clock.Now})
	return c, sender, sink, clock
}

func feedStatus(t *testing.T, c *Controller, preamble uint8, payload []byte) {
	t.Helper()
	f, rec := statusFrame(t, preamble, payload)
	c.HandleFrame(f, rec)
}

func controllerFrame(action uint8) *pentair.Frame {
	return pentair.MustNewFrame(0x24, pentair.AddressBroadcast, pentair.AddressController, action, nil)
}

func TestController_NoPreambleUntilStatus(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	ctx := context.Background()

	_, ok := c.Preamble()
	assert.False(t, ok)
	_, err := c.SetCircuit(ctx, 6, true)
	assert.ErrorIs(t, err, ErrNoPreamble)
	assert.ErrorIs(t, c.ReadSettings(ctx), ErrNoPreamble)
	assert.Empty(t, sender.sent())

	select {
	case <-c.Ready():
		t.Fatal("ready before any status")
	default:
	}

	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	p, ok := c.Preamble()
	require.True(t, ok)
	assert.Equal(t, uint8(0x24), p)
	select {
	case <-c.Ready():
	default:
		t.Fatal("ready not closed after status")
	}

	ok, err = c.SetCircuit(ctx, 6, true)
	require.NoError(t, err)
	assert.True(t, ok)

	sent := sender.sent()
	require.Len(t, sent, 1)
	f, isFrame := sent[0].Frame.(*pentair.Frame)
	require.True(t, isFrame)
	assert.Equal(t, uint8(0x24), f.Preamble())
	assert.Equal(t, uint8(pentair.AddressController), f.Dest())
	assert.Equal(t, uint8(pentair.AddressWireless), f.Source())
	assert.Equal(t, uint8(pentair.ActionSetCircuit), f.Action())
	assert.Equal(t, []byte{6, 1}, f.Payload())
	assert.Equal(t, pentair.ActionAck, sent[0].Response)
}

func TestController_PreambleFollowsLatestStatus(t *testing.T) {
	c, _, _, _ := newTestController(t)

	feedStatus(t, c, 0x24, statusPayload(80, false, false))
	feedStatus(t, c, 0x29, statusPayload(80, false, false))

	p, ok := c.Preamble()
	require.True(t, ok)
	assert.Equal(t, uint8(0x29), p)
}

func TestController_StatusChangeEvents(t *testing.T) {
	c, _, sink, _ := newTestController(t)

	feedStatus(t, c, 0x24, statusPayload(80, false, false))
	feedStatus(t, c, 0x24, statusPayload(80, false, false))
	assert.Len(t, sink.all(), 1, "unchanged status must not publish")

	feedStatus(t, c, 0x24, statusPayload(81, false, false))
	events := sink.all()
	require.Len(t, events, 2)

	last, ok := events[1].Record.(*pentair.ControllerStatus)
	require.True(t, ok)
	assert.Equal(t, 81, last.PoolTemp)
	assert.Equal(t, KindController, events[1].Kind)
	assert.Equal(t, uint8(pentair.AddressController), events[1].Device)
}

func TestController_ServiceModeAndWaterTemp(t *testing.T) {
	c, _, _, _ := newTestController(t)
	assert.Nil(t, c.WaterTemp())
	assert.False(t, c.ServiceMode())

	feedStatus(t, c, 0x24, statusPayload(28, true, true))

	assert.True(t, c.ServiceMode())
	require.NotNil(t, c.WaterTemp())
	assert.Equal(t, pentair.WaterTemp{Degrees: 28, Celsius: true}, *c.WaterTemp())
}

func TestController_StatusCache(t *testing.T) {
	c, sender, _, clock := newTestController(t)
	ctx := context.Background()
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	s, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 80, s.PoolTemp)
	assert.Empty(t, sender.sent(), "fresh status must come from the cache")

	clock.Advance(ShortExpiry + time.Second)
	_, err = c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint8{pentair.ActionRequestStatus}, sender.actions())
}

func TestController_HeatUnavailable(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	_, err := c.Heat(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, []uint8{pentair.ActionRequestHeat}, sender.actions())
}

func TestController_SetSetpoint(t *testing.T) {
	tests := []struct {
		name        string
		controlC    bool
		pool        bool
		degrees     int
		celsius     bool
		wantPayload []byte
	}{
		{"pool F on F controller", false, true, 84, false, []byte{84, 100, 0x01, 0}},
		{"spa clamped high", false, false, 120, false, []byte{80, 105, 0x01, 0}},
		{"pool C on F controller", false, true, 30, true, []byte{86, 100, 0x01, 0}},
		{"pool C clamped low", false, true, 2, true, []byte{50, 100, 0x01, 0}},
		{"pool F on C controller", true, true, 90, false, []byte{32, 100, 0x01, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, sender, _, _ := newTestController(t)
			feedStatus(t, c, 0x24, statusPayload(80, tt.controlC, false))

			_, err := c.SetSetpoint(context.Background(), true, 80, false)
			assert.ErrorIs(t, err, ErrUnavailable, "setpoint without heat status")

			c.HandleFrame(controllerFrame(pentair.ActionHeatStatus), &pentair.HeatStatus{
				PoolSetpoint: 80, SpaSetpoint: 100, PoolHeatMode: 1,
			})

			ok, err := c.SetSetpoint(context.Background(), tt.pool, tt.degrees, tt.celsius)
			require.NoError(t, err)
			assert.True(t, ok)

			sent := sender.sent()
			require.Len(t, sent, 1)
			assert.Equal(t, uint8(pentair.ActionSetHeat), sent[0].Frame.Action())
			assert.Equal(t, tt.wantPayload, sent[0].Frame.Payload())
		})
	}
}

func TestController_ScheduleTypeDoubleWrite(t *testing.T) {
	c, sender, _, clock := newTestController(t)
	ctx := context.Background()
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	c.HandleFrame(controllerFrame(pentair.ActionSchedule), &pentair.Schedule{
		ID: 3, Circuit: 6, Type: pentair.ScheduleNormal, Start: 480, End: 600, Days: 0x7F,
	})

	saved, err := c.SetScheduleType(ctx, 3, pentair.ScheduleEggTimer)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Empty(t, sender.sent())

	clock.Advance(2 * time.Second)
	saved, err = c.SetScheduleType(ctx, 3, pentair.ScheduleEggTimer)
	require.NoError(t, err)
	assert.True(t, saved)

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint8(pentair.ActionSaveSchedule), sent[0].Frame.Action())
	assert.Equal(t, []byte{3, 6, 25, 0, 10, 0, 0}, sent[0].Frame.Payload())

	s, err := c.Schedule(ctx, 3)
	require.NoError(t, err)
	assert.False(t, s.Dirty)
	assert.Equal(t, pentair.ScheduleEggTimer, s.Type)
}

func TestController_ScheduleTypeOutsideWindow(t *testing.T) {
	c, sender, _, clock := newTestController(t)
	ctx := context.Background()
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	c.HandleFrame(controllerFrame(pentair.ActionSchedule), &pentair.Schedule{
		ID: 1, Circuit: 6, Type: pentair.ScheduleNormal, Start: 480, End: 600, Days: 0x7F,
	})

	_, err := c.SetScheduleType(ctx, 1, pentair.ScheduleOnceOnly)
	require.NoError(t, err)

	clock.Advance(ScheduleConfirmWindow + time.Second)
	saved, err := c.SetScheduleType(ctx, 1, pentair.ScheduleOnceOnly)
	require.NoError(t, err)
	assert.False(t, saved, "a late second write only restarts the window")

	clock.Advance(time.Second)
	saved, err = c.SetScheduleType(ctx, 1, pentair.ScheduleOnceOnly)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Len(t, sender.sent(), 1)
}

func TestController_ScheduleErrors(t *testing.T) {
	c, _, _, _ := newTestController(t)
	ctx := context.Background()

	_, err := c.SetScheduleType(ctx, 0, pentair.ScheduleNormal)
	assert.ErrorIs(t, err, pentair.ErrOutOfRange)

	_, err = c.SetScheduleType(ctx, 2, pentair.ScheduleNormal)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = c.EditSchedule(10, func(*pentair.Schedule) error { return nil })
	assert.ErrorIs(t, err, pentair.ErrOutOfRange)
}

func TestController_EditSchedule(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	c.HandleFrame(controllerFrame(pentair.ActionSchedule), &pentair.Schedule{
		ID: 2, Circuit: 6, Type: pentair.ScheduleNormal, Start: 480, End: 600, Days: 0x7F,
	})

	s, err := c.EditSchedule(2, func(s *pentair.Schedule) error { return s.SetStart(540) })
	require.NoError(t, err)
	assert.Equal(t, 540, s.Start)
	assert.True(t, s.Dirty)
	assert.Empty(t, sender.sent(), "edits stay local")

	all := c.Schedules()
	require.Len(t, all, 1)
	assert.Equal(t, 540, all[0].Start)
}

func TestController_ReadSettings(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	require.NoError(t, c.ReadSettings(context.Background()))

	actions := sender.actions()
	require.Len(t, actions, 3+pentair.NumCircuits+pentair.NumSchedules+2)
	assert.Equal(t, uint8(pentair.ActionRequestVersion), actions[0])
	assert.Equal(t, uint8(pentair.ActionRequestHeat), actions[1])
	assert.Equal(t, uint8(pentair.ActionRequestClock), actions[2])
	assert.Equal(t, uint8(pentair.ActionRequestCircuit), actions[3])
	assert.Equal(t, uint8(pentair.ActionRequestSchedule), actions[3+pentair.NumCircuits])
	assert.Equal(t, uint8(pentair.ActionRequestValves), actions[len(actions)-1])
}

func TestController_ReadSettingsStopsOnError(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	feedStatus(t, c, 0x24, statusPayload(80, false, false))
	sender.err = context.Canceled

	err := c.ReadSettings(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sender.sent(), 1)
}

func TestController_LightMode(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	_, set := c.LightMode()
	assert.False(t, set)

	ok, err := c.SetLightMode(context.Background(), pentair.LightParty)
	require.NoError(t, err)
	assert.True(t, ok)
	mode, set := c.LightMode()
	assert.True(t, set)
	assert.Equal(t, pentair.LightParty, mode)

	sender.ack = false
	_, err = c.SetLightMode(context.Background(), pentair.LightMode(178))
	require.NoError(t, err)
	mode, _ = c.LightMode()
	assert.Equal(t, pentair.LightParty, mode, "unacknowledged mode must not be remembered")
}

func TestClockFromTime(t *testing.T) {
	// Saturday
	ct := ClockFromTime(time.Date(2025, 3, 15, 9, 41, 0, 0, time.UTC))
	assert.Equal(t, pentair.ClockTime{Hour: 9, Minute: 41, DayOfWeek: 7, Day: 15, Month: 3, Year: 25}, ct)
	assert.NoError(t, ct.Validate())
}

func TestController_SyncClock(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	_, err := c.SyncClock(context.Background(), time.Date(2025, 3, 15, 9, 41, 0, 0, time.UTC))
	require.NoError(t, err)

	sent := sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, uint8(pentair.ActionSetClock), sent[0].Frame.Action())
	assert.Equal(t, pentair.NoResponse, sent[0].Response)
	assert.Equal(t, []byte{9, 41, 7, 15, 3, 25, 0, 0}, sent[0].Frame.Payload())
}

func TestController_RunClockSync(t *testing.T) {
	c, sender, _, _ := newTestController(t)
	feedStatus(t, c, 0x24, statusPayload(80, false, false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.RunClockSync(ctx, 10*time.Millisecond, 20*time.Millisecond) }()

	require.Eventually(t, func() bool { return len(sender.sent()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestConvertTemp(t *testing.T) {
	assert.Equal(t, 86, convertTemp(30, true, false))
	assert.Equal(t, 30, convertTemp(86, false, true))
	assert.Equal(t, 40, convertTemp(40, true, true))
	assert.Equal(t, 104, convertTemp(104, false, false))
}
