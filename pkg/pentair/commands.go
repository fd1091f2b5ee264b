// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "fmt"

// Command builder functions create frames ready for the bus write
// coordinator. Each Command names the response action that acknowledges it,
// or NoResponse.

// Command is one outbound frame and the action of its expected reply
type Command struct {
	Frame    WireFrame
	Response int
}

func (c Command) String() string {
	return fmt.Sprintf("%s action 0x%02X to 0x%02X (response %s)", c.Frame.Kind(), c.Frame.Action(), c.Frame.Dest(), FormatResponse(c.Response))
}

// Chlorinator actions live above the controller action space in the
// response keys, so a cell reply never matches a controller expectation
// with the same action code.
const chlorinatorResponse = 0x100

// ChlorinatorResponse is the response key of a chlorinator action.
func ChlorinatorResponse(action uint8) int {
	return chlorinatorResponse | int(action)
}

// ResponseOf returns the response key a received frame satisfies.
func ResponseOf(f WireFrame) int {
	if f.Kind() == KindChlorinator {
		return ChlorinatorResponse(f.Action())
	}
	return int(f.Action())
}

// FormatResponse renders a response key for logs and labels.
func FormatResponse(response int) string {
	switch {
	case response == NoResponse:
		return "none"
	case response&chlorinatorResponse != 0:
		return fmt.Sprintf("chlor 0x%02X", response&0xFF)
	}
	return fmt.Sprintf("0x%02X", response)
}

// Addressing is the header every controller command carries. Preamble is the
// value last observed on a controller status frame; Source is our bus id.
type Addressing struct {
	Preamble uint8
	Dest     uint8
	Source   uint8
}

func (a Addressing) command(action uint8, response int, payload ...byte) Command {
	return Command{Frame: MustNewFrame(a.Preamble, a.Dest, a.Source, action, payload), Response: response}
}

////////////////////////////////////////////////////////////////
// Controller commands
////////////////////////////////////////////////////////////////

// NewCircuitSwitch turns circuit (1..18) on or off (0x86).
func NewCircuitSwitch(a Addressing, circuit int, on bool) (Command, error) {
	if circuit < 1 || circuit > NumCircuits {
		return Command{}, fmt.Errorf("%w: circuit %d not in [1..%d]", ErrOutOfRange, circuit, NumCircuits)
	}
	var state byte
	if on {
		state = 1
	}
	return a.command(ActionSetCircuit, ActionAck, byte(circuit), state), nil
}

// NewStatusRequest asks for a status broadcast (0xC2). The controller sends
// status unprompted every few seconds, so this is rarely needed.
func NewStatusRequest(a Addressing) Command {
	return a.command(ActionRequestStatus, ActionStatus, 0)
}

// NewClockRequest asks for the controller clock (0xC5).
func NewClockRequest(a Addressing) Command {
	return a.command(ActionRequestClock, ActionClock, 0)
}

// NewSetClock sets the controller clock (0x85). The controller does not reply.
func NewSetClock(a Addressing, c ClockTime) (Command, error) {
	payload, err := c.Encode()
	if err != nil {
		return Command{}, err
	}
	return a.command(ActionSetClock, NoResponse, payload...), nil
}

// NewHeatRequest asks for setpoints and heat modes (0xC8).
func NewHeatRequest(a Addressing) Command {
	return a.command(ActionRequestHeat, ActionHeatStatus, 0)
}

// NewSetHeat writes both setpoints and both heat modes (0x88).
func NewSetHeat(a Addressing, h HeatStatus) (Command, error) {
	payload, err := h.Encode()
	if err != nil {
		return Command{}, err
	}
	return a.command(ActionSetHeat, ActionAck, payload...), nil
}

// NewCircuitRequest asks for the name and function of circuit (0xCB).
func NewCircuitRequest(a Addressing, circuit int) (Command, error) {
	if circuit < 1 || circuit > NumCircuits {
		return Command{}, fmt.Errorf("%w: circuit %d not in [1..%d]", ErrOutOfRange, circuit, NumCircuits)
	}
	return a.command(ActionRequestCircuit, ActionCircuitName, byte(circuit)), nil
}

// NewScheduleRequest asks for schedule id (0xD1).
func NewScheduleRequest(a Addressing, id int) (Command, error) {
	if id < 1 || id > NumSchedules {
		return Command{}, fmt.Errorf("%w: schedule %d not in [1..%d]", ErrOutOfRange, id, NumSchedules)
	}
	return a.command(ActionRequestSchedule, ActionSchedule, byte(id)), nil
}

// NewSaveSchedule writes a schedule (0x91).
func NewSaveSchedule(a Addressing, s *Schedule) (Command, error) {
	payload, err := s.Encode()
	if err != nil {
		return Command{}, err
	}
	return a.command(ActionSaveSchedule, ActionAck, payload...), nil
}

// NewVersionRequest asks for the firmware revision (0xFD).
func NewVersionRequest(a Addressing) Command {
	return a.command(ActionRequestVersion, ActionSoftwareVersion, 0)
}

// NewCancelDelay cancels a running heater or valve delay (0x83).
func NewCancelDelay(a Addressing) Command {
	return a.command(ActionCancelDelay, ActionAck, 0)
}

// NewSetLightMode selects an IntelliBrite mode (0x60).
func NewSetLightMode(a Addressing, mode LightMode) (Command, error) {
	if !mode.Known() {
		return Command{}, fmt.Errorf("%w: light mode %d", ErrOutOfRange, mode)
	}
	return a.command(ActionLightMode, ActionAck, byte(mode), 0), nil
}

// NewLightGroupsRequest asks for light group positions (0xE7).
func NewLightGroupsRequest(a Addressing) Command {
	return a.command(ActionRequestLightGrps, ActionLightGroups, 0)
}

// NewValvesRequest asks for valve assignments (0xDD).
func NewValvesRequest(a Addressing) Command {
	return a.command(ActionRequestValves, ActionValves, 0)
}

// NewChemRequest asks a chemistry controller for its status (0xD2). Dest is
// the chemistry controller's bus id.
func NewChemRequest(a Addressing) Command {
	return a.command(ActionRequestChem, ActionIntelliChem, 0)
}

////////////////////////////////////////////////////////////////
// IntelliFlo commands
////////////////////////////////////////////////////////////////

// Pumps ignore the preamble; commands to them always carry zero.
func pumpAddressing(source, pump uint8) Addressing {
	return Addressing{Preamble: 0x00, Dest: pump, Source: source}
}

// NewPumpStatusRequest asks a pump for telemetry (0x07, empty payload).
func NewPumpStatusRequest(source, pump uint8) Command {
	return pumpAddressing(source, pump).command(ActionPumpStatus, ActionPumpStatus)
}

// NewPumpControl takes (remote) or releases (local) the pump panel (0x04).
func NewPumpControl(source, pump uint8, remote bool) Command {
	v := byte(PumpLocal)
	if remote {
		v = PumpRemote
	}
	return pumpAddressing(source, pump).command(ActionPumpRemote, ActionPumpRemote, v)
}

// NewPumpRun starts or stops the pump motor (0x06).
func NewPumpRun(source, pump uint8, on bool) Command {
	v := byte(PumpStopped)
	if on {
		v = PumpRunning
	}
	return pumpAddressing(source, pump).command(ActionPumpRun, ActionPumpRun, v)
}

// NewPumpRPM sets a target speed in 400..3450 rpm (0x01).
func NewPumpRPM(source, pump uint8, rpm int) (Command, error) {
	if rpm < MinPumpRPM || rpm > MaxPumpRPM {
		return Command{}, fmt.Errorf("%w: rpm %d not in [%d..%d]", ErrOutOfRange, rpm, MinPumpRPM, MaxPumpRPM)
	}
	return pumpAddressing(source, pump).command(ActionPumpCommand, ActionPumpCommand,
		0x02, 0xC4, byte(rpm>>8), byte(rpm)), nil
}

// NewPumpProgram runs stored program 1..4 (0x01). The pump answers with 0x06.
func NewPumpProgram(source, pump uint8, program int) (Command, error) {
	if program < MinPumpProgram || program > MaxPumpProgram {
		return Command{}, fmt.Errorf("%w: program %d not in [%d..%d]", ErrOutOfRange, program, MinPumpProgram, MaxPumpProgram)
	}
	return pumpAddressing(source, pump).command(ActionPumpCommand, ActionPumpRun,
		0x03, 0x21, 0x00, byte(program<<3)), nil
}

////////////////////////////////////////////////////////////////
// Chlorinator commands
////////////////////////////////////////////////////////////////

// NewChlorinatorSetOutput requests a salt output percentage (0..100). The
// cell replies with its salinity and status.
func NewChlorinatorSetOutput(percent int) (Command, error) {
	if percent < 0 || percent > 100 {
		return Command{}, fmt.Errorf("%w: salt output %d not in [0..100]", ErrOutOfRange, percent)
	}
	f, err := NewChlorinatorFrame(ChlorinatorCell, ChlorActionSetOutput, []byte{byte(percent)})
	if err != nil {
		return Command{}, err
	}
	return Command{Frame: f, Response: ChlorinatorResponse(ChlorActionStatus)}, nil
}
