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

const testChem = pentair.AddressChemFirst

func chemReading() *pentair.IntelliChemStatus {
	return &pentair.IntelliChemStatus{
		PHReading:       7.5,
		ORPReading:      650,
		CalciumHardness: 300,
		CYAReading:      30,
		TotalAlkalinity: 100,
	}
}

func chemFrame() *pentair.Frame {
	return pentair.MustNewFrame(0x24, pentair.AddressController, testChem, pentair.ActionIntelliChem, nil)
}

func TestIntelliChem_SaturationIndexUsesEnvironment(t *testing.T) {
	reg := NewRegistry(nil, nil)
	sink := &eventSink{}
	chem := NewIntelliChem(testChem, Options{Sink: sink}, reg)
	chlor := NewChlorinator(Options{})
	require.NoError(t, reg.Register(NewController(pentair.AddressController, Options{})))
	require.NoError(t, reg.Register(chlor))
	require.NoError(t, reg.Register(chem))

	reading := chemReading()

	// no status and no cell heard yet
	chem.HandleFrame(chemFrame(), reading)
	_, si := chem.Status()
	assert.InDelta(t, reading.SaturationIndex(nil, false), si, 1e-9)

	f, _ := statusFrame(t, 0x24, statusPayload(82, false, false))
	reg.OnFrame(f)
	reg.OnChlorinatorFrame(chlorFrame(t, pentair.ChlorActionStatus, []byte{60, 0x80}))

	chem.HandleFrame(chemFrame(), reading)
	status, si := chem.Status()
	require.NotNil(t, status)
	want := reading.SaturationIndex(&pentair.WaterTemp{Degrees: 82, Celsius: false}, true)
	assert.InDelta(t, want, si, 1e-9)

	events := sink.all()
	require.Len(t, events, 2)
	assert.InDelta(t, want, events[1].Derived[DerivedSaturationIndex], 1e-9)
	assert.Equal(t, KindIntelliChem, events[1].Kind)
}

func TestIntelliChem_NilEnvironment(t *testing.T) {
	chem := NewIntelliChem(testChem, Options{}, nil)
	reading := chemReading()

	chem.HandleFrame(chemFrame(), reading)

	_, si := chem.Status()
	assert.InDelta(t, reading.SaturationIndex(nil, false), si, 1e-9)
}

func TestIntelliChem_IgnoresOtherRecords(t *testing.T) {
	sink := &eventSink{}
	chem := NewIntelliChem(testChem, Options{Sink: sink}, nil)

	chem.HandleFrame(chemFrame(), &pentair.Ack{Action: 0xD2})

	status, _ := chem.Status()
	assert.Nil(t, status)
	assert.Empty(t, sink.all())
}

func TestIntelliChem_RequestStatus(t *testing.T) {
	sender := &fakeSender{ack: true}
	chem := NewIntelliChem(testChem, Options{Sender: sender}, nil)

	_, err := chem.RequestStatus(context.Background(), 0x24)
	require.NoError(t, err)

	sent := sender.sent()
	require.Len(t, sent, 1)
	f, ok := sent[0].Frame.(*pentair.Frame)
	require.True(t, ok)
	assert.Equal(t, uint8(0x24), f.Preamble())
	assert.Equal(t, uint8(testChem), f.Dest())
	assert.Equal(t, uint8(pentair.ActionRequestChem), f.Action())
	assert.Equal(t, pentair.ActionIntelliChem, sent[0].Response)
}
