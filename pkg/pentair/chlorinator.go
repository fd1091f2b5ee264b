// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"strings"
)

// Chlorinator status bits (action 0x12, payload byte 1)
const (
	ChlorLowFlow      = 0x01
	ChlorLowSalt      = 0x02
	ChlorVeryLowSalt  = 0x04
	ChlorHighCurrent  = 0x08
	ChlorCleanCell    = 0x10
	ChlorLowVoltage   = 0x20
	ChlorLowWaterTemp = 0x40
	ChlorStatusOK     = 0x80
)

// SalinityScale converts the raw salinity byte to ppm.
const SalinityScale = 50

// Chlorinator bus addresses
const (
	ChlorinatorCell       = 0x50
	ChlorinatorController = 0x00
)

// ChlorinatorVersion identifies the cell (action 0x03).
type ChlorinatorVersion struct {
	Version int
	Model   string
}

// Name implements Record
func (*ChlorinatorVersion) Name() string { return "chlorinator_version" }
func (*ChlorinatorVersion) isRecord()    {}

// DecodeChlorinatorVersion decodes [version, 16 byte ASCII name].
func DecodeChlorinatorVersion(p []byte) (*ChlorinatorVersion, error) {
	if err := checkLength("chlorinator version", p, 17); err != nil {
		return nil, err
	}
	return &ChlorinatorVersion{
		Version: int(p[0]),
		Model:   strings.TrimRight(string(p[1:17]), "\x00 "),
	}, nil
}

// ChlorinatorSaltOutput is the controller's requested output (action 0x11).
type ChlorinatorSaltOutput struct {
	Percent int
}

// Name implements Record
func (*ChlorinatorSaltOutput) Name() string { return "chlorinator_salt_output" }
func (*ChlorinatorSaltOutput) isRecord()    {}

// DecodeChlorinatorSaltOutput decodes the one byte output percentage.
func DecodeChlorinatorSaltOutput(p []byte) (*ChlorinatorSaltOutput, error) {
	if err := checkLength("chlorinator salt output", p, 1); err != nil {
		return nil, err
	}
	return &ChlorinatorSaltOutput{Percent: int(p[0])}, nil
}

// ChlorinatorStatus is the cell's reply to a salt output command (action 0x12).
type ChlorinatorStatus struct {
	Salinity int // ppm
	Status   uint8
}

// Name implements Record
func (*ChlorinatorStatus) Name() string { return "chlorinator_status" }
func (*ChlorinatorStatus) isRecord()    {}

// DecodeChlorinatorStatus decodes [salinity/50, status bits].
func DecodeChlorinatorStatus(p []byte) (*ChlorinatorStatus, error) {
	if err := checkLength("chlorinator status", p, 2); err != nil {
		return nil, err
	}
	return &ChlorinatorStatus{
		Salinity: int(p[0]) * SalinityScale,
		Status:   p[1],
	}, nil
}

// OK is true when no alarm bit is set.
func (s *ChlorinatorStatus) OK() bool {
	return s.Status == 0 || s.Status == ChlorStatusOK
}

func (s *ChlorinatorStatus) LowFlow() bool      { return s.Status&ChlorLowFlow != 0 }
func (s *ChlorinatorStatus) LowSalt() bool      { return s.Status&ChlorLowSalt != 0 }
func (s *ChlorinatorStatus) VeryLowSalt() bool  { return s.Status&ChlorVeryLowSalt != 0 }
func (s *ChlorinatorStatus) HighCurrent() bool  { return s.Status&ChlorHighCurrent != 0 }
func (s *ChlorinatorStatus) CleanCell() bool    { return s.Status&ChlorCleanCell != 0 }
func (s *ChlorinatorStatus) LowVoltage() bool   { return s.Status&ChlorLowVoltage != 0 }
func (s *ChlorinatorStatus) LowWaterTemp() bool { return s.Status&ChlorLowWaterTemp != 0 }

// Alarms lists the names of the alarm bits that are set.
func (s *ChlorinatorStatus) Alarms() []string {
	bits := []struct {
		set  bool
		name string
	}{
		{s.LowFlow(), "low_flow"},
		{s.LowSalt(), "low_salt"},
		{s.VeryLowSalt(), "very_low_salt"},
		{s.HighCurrent(), "high_current"},
		{s.CleanCell(), "clean_cell"},
		{s.LowVoltage(), "low_voltage"},
		{s.LowWaterTemp(), "low_water_temp"},
	}
	var out []string
	for _, b := range bits {
		if b.set {
			out = append(out, b.name)
		}
	}
	return out
}

func (s *ChlorinatorStatus) String() string {
	return fmt.Sprintf("salinity:%d ok:%t alarms:%v", s.Salinity, s.OK(), s.Alarms())
}

// ChlorinatorPresence is a bare presence or status query (actions 0x00 and 0x14).
type ChlorinatorPresence struct {
	Action uint8
	Value  uint8
}

// Name implements Record
func (*ChlorinatorPresence) Name() string { return "chlorinator_presence" }
func (*ChlorinatorPresence) isRecord()    {}
