// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "fmt"

// Pump status payload layout (action 0x07 from a pump)
const (
	pumpStatusLength = 15
	pumpRun          = 0
	pumpMode         = 1
	pumpDriveState   = 2
	pumpWattsH       = 3
	pumpWattsL       = 4
	pumpRPMH         = 5
	pumpRPML         = 6
	pumpGPM          = 7
	pumpPPC          = 8
	pumpStatus1      = 11
	pumpStatus2      = 12
	pumpHour         = 13
	pumpMinute       = 14
)

// Pump command values
const (
	PumpRunning    = 0x0A
	PumpStopped    = 0x04
	PumpRemote     = 0xFF
	PumpLocal      = 0x00
	MinPumpRPM     = 400
	MaxPumpRPM     = 3450
	MinPumpProgram = 1
	MaxPumpProgram = 4
)

// PumpStatus is IntelliFlo telemetry.
type PumpStatus struct {
	Run        bool
	Mode       int
	DriveState int
	Power      int // watts
	RPM        int
	GPM        int
	PPC        int
	Status1    int
	Status2    int
	Hour       int
	Minute     int
}

// Name implements Record
func (*PumpStatus) Name() string { return "pump_status" }
func (*PumpStatus) isRecord()    {}

// DecodePumpStatus decodes a 15 byte pump status payload.
func DecodePumpStatus(p []byte) (*PumpStatus, error) {
	if err := checkLength("pump status", p, pumpStatusLength); err != nil {
		return nil, err
	}
	return &PumpStatus{
		Run:        p[pumpRun] == PumpRunning,
		Mode:       int(p[pumpMode]),
		DriveState: int(p[pumpDriveState]),
		Power:      be16(p[pumpWattsH], p[pumpWattsL]),
		RPM:        be16(p[pumpRPMH], p[pumpRPML]),
		GPM:        int(p[pumpGPM]),
		PPC:        int(p[pumpPPC]),
		Status1:    int(p[pumpStatus1]),
		Status2:    int(p[pumpStatus2]),
		Hour:       int(p[pumpHour]),
		Minute:     int(p[pumpMinute]),
	}, nil
}

func (s *PumpStatus) String() string {
	return fmt.Sprintf("%02d:%02d run:%t mode:%d power:%d rpm:%d gpm:%d status1:0x%02X status2:0x%02X",
		s.Hour, s.Minute, s.Run, s.Mode, s.Power, s.RPM, s.GPM, s.Status1, s.Status2)
}

// PumpReply is a pump's echo of a command (actions 0x01, 0x04, 0x05, 0x06).
type PumpReply struct {
	Action uint8
	Data   []byte
}

// Name implements Record
func (*PumpReply) Name() string { return "pump_reply" }
func (*PumpReply) isRecord()    {}

// Remote reports whether a 0x04 reply put the pump under remote control.
func (r *PumpReply) Remote() bool {
	return r.Action == ActionPumpRemote && len(r.Data) > 0 && r.Data[0] == PumpRemote
}
