// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package pentair implements the two framing protocols multiplexed on a
// Pentair pool automation RS-485 bus.
//
// The controller protocol carries addressed, variable length frames with a
// 16-bit additive checksum. The salt chlorinator protocol carries short frames
// whose payload length is fixed per action, with an 8-bit checksum. Both share
// one wire and are separated by their start markers and checksums only.
//
// This package provides the frame model, the stream synchronizer, command
// builders and the payload codecs. It performs no I/O.
package pentair

// Controller protocol framing bytes
const (
	IdleByte        = 0xFF
	IdleGap         = 0x00
	ControllerStart = 0xA5
)

// ControllerMarker is the two byte sequence that opens every controller frame.
// The bus always sends FF 00 FF before the start byte; the last idle byte and
// the start byte together form the marker.
var ControllerMarker = [2]byte{IdleByte, ControllerStart}

// Chlorinator protocol framing bytes
const (
	ChlorinatorDLE = 0x10
	ChlorinatorSTX = 0x02
	ChlorinatorETX = 0x03
)

// ChlorinatorMarker opens every chlorinator frame.
var ChlorinatorMarker = [2]byte{ChlorinatorDLE, ChlorinatorSTX}

// Frame size limits
const (
	ControllerHeaderSize  = 6 // A5 preamble dest src action len
	ControllerMaxPayload  = 255
	ChlorinatorHeaderSize = 4 // 10 02 dest action
	ChlorinatorMaxPayload = 17
)

// NoResponse tells the write coordinator that a command has no reply.
const NoResponse = -1

// Bus addresses
const (
	AddressBroadcast   = 0x0F
	AddressController  = 0x10
	AddressRemote      = 0x20
	AddressWireless    = 0x22
	AddressChlorinator = 0x00
	AddressPumpFirst   = 0x60
	AddressChemFirst   = 0x90
)

// DeviceType is the high nibble of a bus address.
type DeviceType uint8

// Device types by address nibble
const (
	DeviceTypeController   DeviceType = 0x01
	DeviceTypeControlPanel DeviceType = 0x02
	DeviceTypePump         DeviceType = 0x06
	DeviceTypeIntelliChem  DeviceType = 0x09
)

// DeviceTypeOf returns the device type nibble of a bus address.
func DeviceTypeOf(address uint8) DeviceType {
	return DeviceType(address >> 4)
}

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeController:
		return "controller"
	case DeviceTypeControlPanel:
		return "control panel"
	case DeviceTypePump:
		return "intelliflo"
	case DeviceTypeIntelliChem:
		return "intellichem"
	default:
		return "unknown"
	}
}

// Controller protocol actions (controller and its peripherals → bus)
const (
	ActionAck              = 0x01
	ActionStatus           = 0x02
	ActionPumpRemote       = 0x04
	ActionClock            = 0x05
	ActionPumpRun          = 0x06
	ActionPumpStatus       = 0x07
	ActionHeatStatus       = 0x08
	ActionCustomNames      = 0x0A
	ActionCircuitName      = 0x0B
	ActionSchedule         = 0x11
	ActionIntelliChem      = 0x12
	ActionChlorStatus      = 0x19
	ActionPumpConfig       = 0x1B
	ActionValves           = 0x1D
	ActionHighSpeed        = 0x1E
	ActionSpaRemotes       = 0x20
	ActionQuickTouch       = 0x21
	ActionSolarHeatPump    = 0x22
	ActionDelay            = 0x23
	ActionLightGroups      = 0x27
	ActionSettings         = 0x28
	ActionLightMode        = 0x60
	ActionSoftwareVersion  = 0xFC
	ActionSetCircuit       = 0x86
	ActionCancelDelay      = 0x83
	ActionSetClock         = 0x85
	ActionSetHeat          = 0x88
	ActionSaveSchedule     = 0x91
	ActionRequestStatus    = 0xC2
	ActionRequestClock     = 0xC5
	ActionRequestHeat      = 0xC8
	ActionRequestCircuit   = 0xCB
	ActionRequestSchedule  = 0xD1
	ActionRequestChem      = 0xD2
	ActionRequestValves    = 0xDD
	ActionRequestLightGrps = 0xE7
	ActionRequestVersion   = 0xFD
)

// Pump actions share the low action space with a different meaning.
const (
	ActionPumpCommand = 0x01
	ActionPumpMode    = 0x05
)

// Chlorinator protocol actions
const (
	ChlorActionQuery     = 0x00
	ChlorActionPoll      = 0x01
	ChlorActionVersion   = 0x03
	ChlorActionSetOutput = 0x11
	ChlorActionStatus    = 0x12
	ChlorActionPresence  = 0x14
)

// chlorinatorPayloadLength maps a chlorinator action to its payload size.
var chlorinatorPayloadLength = map[uint8]int{
	ChlorActionVersion:   17,
	ChlorActionQuery:     1,
	ChlorActionSetOutput: 1,
	ChlorActionPresence:  1,
	ChlorActionPoll:      2,
	ChlorActionStatus:    2,
}

// ChlorinatorPayloadLength returns the payload size for a chlorinator action.
// The second result is false for actions the table does not know.
func ChlorinatorPayloadLength(action uint8) (int, bool) {
	n, ok := chlorinatorPayloadLength[action]
	return n, ok
}
