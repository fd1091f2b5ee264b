// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package equipment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

const testPump = pentair.AddressPumpFirst

func pumpFrame(action uint8, payload []byte) *pentair.Frame {
	return pentair.MustNewFrame(0x00, pentair.AddressWireless, testPump, action, payload)
}

func TestPump_SetRPMSequence(t *testing.T) {
	sender := &fakeSender{ack: true}
	p := NewPump(testPump, Options{Sender: sender}, nil)

	ok, err := p.SetRPM(context.Background(), 2200)
	require.NoError(t, err)
	assert.True(t, ok)

	sent := sender.sent()
	require.Len(t, sent, 5)
	assert.Equal(t, []uint8{
		pentair.ActionPumpRemote,
		pentair.ActionPumpCommand,
		pentair.ActionPumpRun,
		pentair.ActionPumpStatus,
		pentair.ActionPumpRemote,
	}, sender.actions())

	assert.Equal(t, []byte{pentair.PumpRemote}, sent[0].Frame.Payload())
	assert.Equal(t, []byte{0x02, 0xC4, 0x08, 0x98}, sent[1].Frame.Payload())
	assert.Equal(t, []byte{pentair.PumpRunning}, sent[2].Frame.Payload())
	assert.Equal(t, []byte{pentair.PumpLocal}, sent[4].Frame.Payload())
	for _, c := range sent {
		assert.Equal(t, uint8(testPump), c.Frame.Dest())
	}

	assert.True(t, p.RunMode())
	assert.Equal(t, 0, p.Program())
}

func TestPump_RunProgram(t *testing.T) {
	sender := &fakeSender{ack: true}
	p := NewPump(testPump, Options{Sender: sender}, nil)

	_, err := p.RunProgram(context.Background(), 5)
	assert.ErrorIs(t, err, pentair.ErrOutOfRange)
	assert.Empty(t, sender.sent())

	_, err = p.RunProgram(context.Background(), 2)
	require.NoError(t, err)
	sent := sender.sent()
	require.Len(t, sent, 5)
	assert.Equal(t, []byte{0x03, 0x21, 0x00, 0x10}, sent[1].Frame.Payload())
	assert.Equal(t, pentair.ActionPumpRun, sent[1].Response)
	assert.Equal(t, 2, p.Program())
}

func TestPump_RPMOutOfRange(t *testing.T) {
	sender := &fakeSender{ack: true}
	p := NewPump(testPump, Options{Sender: sender}, nil)

	for _, rpm := range []int{0, pentair.MinPumpRPM - 1, pentair.MaxPumpRPM + 1} {
		_, err := p.SetRPM(context.Background(), rpm)
		assert.ErrorIs(t, err, pentair.ErrOutOfRange, "rpm %d", rpm)
	}
	assert.Empty(t, sender.sent())
	assert.False(t, p.RunMode())
}

func TestPump_RefusesWithOtherMaster(t *testing.T) {
	sender := &fakeSender{ack: true}
	master := true
	p := NewPump(testPump, Options{Sender: sender}, func() bool { return master })
	ctx := context.Background()

	_, err := p.SetRun(ctx, true)
	assert.ErrorIs(t, err, ErrOtherMaster)
	_, err = p.SetRPM(ctx, 1500)
	assert.ErrorIs(t, err, ErrOtherMaster)
	_, err = p.RunProgram(ctx, 1)
	assert.ErrorIs(t, err, ErrOtherMaster)
	assert.Empty(t, sender.sent())
	assert.False(t, p.RunMode())

	// status requests are still allowed
	_, err = p.RequestStatus(ctx)
	require.NoError(t, err)
	assert.Len(t, sender.sent(), 2)

	master = false
	_, err = p.SetRun(ctx, true)
	assert.NoError(t, err)
}

func TestPump_RegistryServiceModeReleasesPumps(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sender := &fakeSender{ack: true}
	c := NewController(pentair.AddressController, Options{Sender: sender})
	p := NewPump(testPump, Options{Sender: sender}, reg.OtherMaster)
	require.NoError(t, reg.Register(c))
	require.NoError(t, reg.Register(p))

	f, _ := statusFrame(t, 0x24, statusPayload(80, false, false))
	reg.OnFrame(f)
	_, err := p.SetRun(context.Background(), true)
	assert.ErrorIs(t, err, ErrOtherMaster)

	f, _ = statusFrame(t, 0x24, statusPayload(80, false, true))
	reg.OnFrame(f)
	_, err = p.SetRun(context.Background(), true)
	assert.NoError(t, err)
}

func TestPump_Poll(t *testing.T) {
	sender := &fakeSender{ack: true}
	p := NewPump(testPump, Options{Sender: sender}, nil)
	ctx := context.Background()

	require.NoError(t, p.Poll(ctx))
	assert.Equal(t, []uint8{pentair.ActionPumpRemote, pentair.ActionPumpStatus}, sender.actions())

	_, err := p.SetRun(ctx, true)
	require.NoError(t, err)
	before := len(sender.sent())

	require.NoError(t, p.Poll(ctx))
	after := sender.sent()[before:]
	require.Len(t, after, 1, "watchdog resends run only")
	assert.Equal(t, uint8(pentair.ActionPumpRun), after[0].Frame.Action())
	assert.Equal(t, []byte{pentair.PumpRunning}, after[0].Frame.Payload())
}

func TestPump_HandleFrame(t *testing.T) {
	sink := &eventSink{}
	p := NewPump(testPump, Options{Sink: sink}, nil)

	reply := pumpFrame(pentair.ActionPumpRemote, []byte{pentair.PumpRemote})
	rec, err := pentair.Decode(reply)
	require.NoError(t, err)
	p.HandleFrame(reply, rec)
	assert.True(t, p.Remote())
	assert.Empty(t, sink.all(), "command replies are not published")

	payload := []byte{pentair.PumpRunning, 0x01, 0x02, 0x03, 0xE8, 0x08, 0x98, 40, 0, 0, 0, 0, 0, 9, 15}
	status := pumpFrame(pentair.ActionPumpStatus, payload)
	rec, err = pentair.Decode(status)
	require.NoError(t, err)
	p.HandleFrame(status, rec)

	s := p.Status()
	require.NotNil(t, s)
	assert.True(t, s.Run)
	assert.Equal(t, 2200, s.RPM)
	assert.Equal(t, 1000, s.Power)
	require.Len(t, sink.all(), 1)
	assert.Equal(t, KindPump, sink.all()[0].Kind)
}
