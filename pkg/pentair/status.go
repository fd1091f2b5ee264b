// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"strings"
)

// Controller status payload layout (action 0x02)
const (
	statusLength      = 29
	statusHour        = 0
	statusMinute      = 1
	statusEquip1      = 2 // circuits 1-8, then 9-16 and 17-24 in the next two bytes
	statusUOM         = 9
	statusHeaterSolar = 10
	statusDelay       = 12
	statusPoolTemp    = 14
	statusSpaTemp     = 15
	statusAirTemp     = 18
	statusSolarTemp   = 19
)

// Controller status bit masks
const (
	StatusServiceMode = 0x01
	StatusCelsius     = 0x04
	StatusHeaterOn    = 0x0C
	StatusSolarOn     = 0x30
	StatusHeaterDelay = 0x02
)

// StatusCircuits is the number of circuit bits a status frame carries
const StatusCircuits = 24

// ControllerStatus is the periodic controller broadcast. It is a comparable
// value; == detects a change.
type ControllerStatus struct {
	Hour        int
	Minute      int
	Circuits    [StatusCircuits]bool // index 0 is circuit 1
	Pool        bool
	Spa         bool
	PoolTemp    int
	SpaTemp     int
	AirTemp     int
	SolarTemp   int
	Celsius     bool
	ServiceMode bool
	HeaterOn    bool
	SolarOn     bool
	HeaterDelay bool
}

// Name implements Record
func (*ControllerStatus) Name() string { return "controller_status" }
func (*ControllerStatus) isRecord()    {}

// DecodeControllerStatus decodes a 29 byte status payload.
func DecodeControllerStatus(p []byte) (*ControllerStatus, error) {
	if err := checkLength("controller status", p, statusLength); err != nil {
		return nil, err
	}

	s := &ControllerStatus{
		Hour:        int(p[statusHour]),
		Minute:      int(p[statusMinute]),
		PoolTemp:    int(p[statusPoolTemp]),
		SpaTemp:     int(p[statusSpaTemp]),
		AirTemp:     int(p[statusAirTemp]),
		SolarTemp:   int(p[statusSolarTemp]),
		Celsius:     p[statusUOM]&StatusCelsius != 0,
		ServiceMode: p[statusUOM]&StatusServiceMode != 0,
		HeaterOn:    p[statusHeaterSolar]&StatusHeaterOn != 0,
		SolarOn:     p[statusHeaterSolar]&StatusSolarOn != 0,
		HeaterDelay: p[statusDelay]&StatusHeaterDelay != 0,
	}
	for i := 0; i < StatusCircuits; i++ {
		s.Circuits[i] = p[statusEquip1+i/8]&(1<<(i%8)) != 0
	}
	s.Spa = s.Circuits[CircuitSpa-1]
	s.Pool = s.Circuits[CircuitPool-1]
	return s, nil
}

// Circuit reports the state of circuit id (1-based).
func (s *ControllerStatus) Circuit(id int) bool {
	if id < 1 || id > StatusCircuits {
		return false
	}
	return s.Circuits[id-1]
}

// Equal reports whether two snapshots are identical.
func (s *ControllerStatus) Equal(o *ControllerStatus) bool {
	if s == nil || o == nil {
		return s == o
	}
	return *s == *o
}

// Unit returns "C" or "F"
func (s *ControllerStatus) Unit() string {
	if s.Celsius {
		return "C"
	}
	return "F"
}

func (s *ControllerStatus) String() string {
	var on []string
	for i, v := range s.Circuits {
		if v {
			on = append(on, fmt.Sprint(i+1))
		}
	}
	return fmt.Sprintf("%02d:%02d circuits[%s] pool:%d%s spa:%d%s air:%d%s solar:%d%s service:%t heater:%t solarOn:%t delay:%t",
		s.Hour, s.Minute, strings.Join(on, ","),
		s.PoolTemp, s.Unit(), s.SpaTemp, s.Unit(), s.AirTemp, s.Unit(), s.SolarTemp, s.Unit(),
		s.ServiceMode, s.HeaterOn, s.SolarOn, s.HeaterDelay)
}

// ClockTime is the controller clock (action 0x05).
type ClockTime struct {
	Hour      int
	Minute    int
	DayOfWeek int // 1..7, Sunday first
	Day       int
	Month     int
	Year      int // years since 2000
}

// Name implements Record
func (*ClockTime) Name() string { return "clock" }
func (*ClockTime) isRecord()    {}

// DecodeClockTime decodes an 8 byte clock payload.
func DecodeClockTime(p []byte) (*ClockTime, error) {
	if err := checkLength("clock", p, 8); err != nil {
		return nil, err
	}
	return &ClockTime{
		Hour:      int(p[0]),
		Minute:    int(p[1]),
		DayOfWeek: int(p[2]),
		Day:       int(p[3]),
		Month:     int(p[4]),
		Year:      int(p[5]),
	}, nil
}

// Validate checks every field against its calendar range.
func (c ClockTime) Validate() error {
	checks := []struct {
		name     string
		v        int
		min, max int
	}{
		{"hour", c.Hour, 0, 23},
		{"minute", c.Minute, 0, 59},
		{"day of week", c.DayOfWeek, 1, 7},
		{"day", c.Day, 1, 31},
		{"month", c.Month, 1, 12},
		{"year", c.Year, 0, 99},
	}
	for _, ck := range checks {
		if ck.v < ck.min || ck.v > ck.max {
			return fmt.Errorf("%w: %s %d not in [%d..%d]", ErrOutOfRange, ck.name, ck.v, ck.min, ck.max)
		}
	}
	return nil
}

// Encode returns the 8 byte set-clock payload.
func (c ClockTime) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return []byte{
		byte(c.Hour), byte(c.Minute), byte(c.DayOfWeek),
		byte(c.Day), byte(c.Month), byte(c.Year), 0, 0,
	}, nil
}

func (c *ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d dow %d %02d/%02d/%02d", c.Hour, c.Minute, c.DayOfWeek, c.Month, c.Day, c.Year)
}

// SoftwareVersion is the controller firmware revision (action 0xFC).
type SoftwareVersion struct {
	Major int
	Minor int
}

// Name implements Record
func (*SoftwareVersion) Name() string { return "software_version" }
func (*SoftwareVersion) isRecord()    {}

// DecodeSoftwareVersion reads the revision from payload bytes 1 and 2.
func DecodeSoftwareVersion(p []byte) (*SoftwareVersion, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("%w: software version wants at least 3 bytes, got %d", ErrPayloadLength, len(p))
	}
	return &SoftwareVersion{Major: int(p[1]), Minor: int(p[2])}, nil
}

func (v *SoftwareVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}
