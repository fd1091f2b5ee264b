// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Schedule payload layout (action 0x11 read, 0x91 write)
const (
	scheduleLength  = 7
	scheduleID      = 0
	scheduleCircuit = 1
	scheduleStartH  = 2
	scheduleStartM  = 3
	scheduleEndH    = 4
	scheduleEndM    = 5
	scheduleDays    = 6
)

// Hour values that mark a special schedule type instead of a time
const (
	EggTimerHour = 25
	OnceOnlyHour = 26
)

// Schedule limits
const (
	NumSchedules   = 9
	MinutesPerDay  = 1440
	dayLetters     = "SMTWRFY"
	allDaysMask    = 0x7F
	minutesPerHour = 60
)

// ScheduleType selects how a schedule's start and end are interpreted
type ScheduleType int

const (
	ScheduleNone ScheduleType = iota
	ScheduleNormal
	ScheduleEggTimer
	ScheduleOnceOnly
	ScheduleUnknown
)

var scheduleTypeNames = [...]string{"NONE", "NORMAL", "EGGTIMER", "ONCEONLY", "UNKNOWN"}
var scheduleTypeLabels = [...]string{"None", "Normal", "Egg Timer", "Once Only", "Unknown"}

func (t ScheduleType) String() string {
	if t < ScheduleNone || t > ScheduleUnknown {
		return "UNKNOWN"
	}
	return scheduleTypeNames[t]
}

// Label returns the display name, e.g. "Egg Timer"
func (t ScheduleType) Label() string {
	if t < ScheduleNone || t > ScheduleUnknown {
		return "Unknown"
	}
	return scheduleTypeLabels[t]
}

// ParseScheduleType accepts NONE, NORMAL, EGGTIMER or ONCEONLY in any case.
func ParseScheduleType(s string) (ScheduleType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range scheduleTypeNames[:ScheduleUnknown] {
		if name == s {
			return ScheduleType(i), nil
		}
	}
	return ScheduleUnknown, fmt.Errorf("%w: %q", ErrUnknownScheduleType, s)
}

// Schedule is one of the controller's nine weekly schedules. Start and End
// are minutes since midnight. Dirty marks local edits not yet saved.
type Schedule struct {
	ID      int
	Circuit int
	Type    ScheduleType
	Start   int
	End     int
	Days    uint8 // bit 0 is Sunday
	Dirty   bool
}

// Name implements Record
func (*Schedule) Name() string { return "schedule" }
func (*Schedule) isRecord()    {}

// DecodeSchedule decodes a 7 byte schedule payload.
//
// A start hour of 25 marks an egg timer and only the end is kept. An end hour
// of 26 marks a once-only schedule and only the start is kept. Circuit 0 marks
// an unused slot.
func DecodeSchedule(p []byte) (*Schedule, error) {
	if err := checkLength("schedule", p, scheduleLength); err != nil {
		return nil, err
	}

	s := &Schedule{
		ID:      int(p[scheduleID]),
		Circuit: int(p[scheduleCircuit]),
		Days:    p[scheduleDays],
	}
	if s.ID < 1 || s.ID > NumSchedules {
		return nil, fmt.Errorf("%w: schedule id %d", ErrOutOfRange, s.ID)
	}

	start := int(p[scheduleStartH])*minutesPerHour + int(p[scheduleStartM])
	end := int(p[scheduleEndH])*minutesPerHour + int(p[scheduleEndM])

	switch {
	case p[scheduleStartH] == EggTimerHour:
		s.Type = ScheduleEggTimer
		s.End = end
	case p[scheduleEndH] == OnceOnlyHour:
		s.Type = ScheduleOnceOnly
		s.Start = start
	case s.Circuit == 0:
		s.Type = ScheduleNone
	default:
		s.Type = ScheduleNormal
		s.Start = start
		s.End = end
	}
	return s, nil
}

// Validate checks the fields the write payload needs.
func (s *Schedule) Validate() error {
	if s.ID < 1 || s.ID > NumSchedules {
		return fmt.Errorf("%w: schedule id %d not in [1..%d]", ErrOutOfRange, s.ID, NumSchedules)
	}
	switch s.Type {
	case ScheduleNone:
		return nil
	case ScheduleNormal, ScheduleEggTimer, ScheduleOnceOnly:
	default:
		return fmt.Errorf("%w: schedule %d", ErrUnknownScheduleType, s.ID)
	}
	if s.Circuit < 1 || s.Circuit > NumCircuits {
		return fmt.Errorf("%w: schedule circuit %d not in [1..%d]", ErrOutOfRange, s.Circuit, NumCircuits)
	}
	if err := checkMinutes("start", s.Start); err != nil {
		return err
	}
	if err := checkMinutes("end", s.End); err != nil {
		return err
	}
	if s.Days > allDaysMask {
		return fmt.Errorf("%w: days mask 0x%02X", ErrOutOfRange, s.Days)
	}
	return nil
}

func checkMinutes(what string, min int) error {
	if min < 0 || min > MinutesPerDay {
		return fmt.Errorf("%w: %s %d not in [0..%d]", ErrOutOfRange, what, min, MinutesPerDay)
	}
	return nil
}

// Encode returns the 7 byte write payload, with the sentinel hours for the
// special types and the fields they make meaningless zeroed.
func (s *Schedule) Encode() ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	p := []byte{
		byte(s.ID), byte(s.Circuit),
		byte(s.Start / minutesPerHour), byte(s.Start % minutesPerHour),
		byte(s.End / minutesPerHour), byte(s.End % minutesPerHour),
		s.Days,
	}
	switch s.Type {
	case ScheduleNone:
		for i := scheduleCircuit; i <= scheduleDays; i++ {
			p[i] = 0
		}
	case ScheduleOnceOnly:
		p[scheduleEndH] = OnceOnlyHour
		p[scheduleEndM] = 0
	case ScheduleEggTimer:
		p[scheduleStartH] = EggTimerHour
		p[scheduleStartM] = 0
		p[scheduleDays] = 0
	}
	return p, nil
}

// Normalized returns the schedule as the controller would echo it back after
// a save: the fields the type ignores are zeroed and Dirty is cleared.
func (s Schedule) Normalized() Schedule {
	s.Dirty = false
	switch s.Type {
	case ScheduleNone:
		s.Circuit, s.Start, s.End, s.Days = 0, 0, 0, 0
	case ScheduleOnceOnly:
		s.End = 0
	case ScheduleEggTimer:
		s.Start, s.Days = 0, 0
	}
	return s
}

// SetCircuit changes the circuit and marks the schedule dirty.
func (s *Schedule) SetCircuit(c int) error {
	if c == s.Circuit {
		return nil
	}
	if c < 1 || c > NumCircuits {
		return fmt.Errorf("%w: circuit %d", ErrOutOfRange, c)
	}
	s.Circuit = c
	s.Dirty = true
	return nil
}

// SetStart changes the start minute and marks the schedule dirty.
func (s *Schedule) SetStart(min int) error {
	if min == s.Start {
		return nil
	}
	if err := checkMinutes("start", min); err != nil {
		return err
	}
	s.Start = min
	s.Dirty = true
	return nil
}

// SetEnd changes the end minute and marks the schedule dirty.
func (s *Schedule) SetEnd(min int) error {
	if min == s.End {
		return nil
	}
	if err := checkMinutes("end", min); err != nil {
		return err
	}
	s.End = min
	s.Dirty = true
	return nil
}

// SetType changes the type and marks the schedule dirty.
func (s *Schedule) SetType(t ScheduleType) error {
	if t < ScheduleNone || t >= ScheduleUnknown {
		return fmt.Errorf("%w: %d", ErrUnknownScheduleType, t)
	}
	if t != s.Type {
		s.Type = t
		s.Dirty = true
	}
	return nil
}

// SetDays replaces the day mask from letters in "SMTWRFY".
func (s *Schedule) SetDays(days string) {
	s.Days = ParseDays(days)
	s.Dirty = true
}

// ParseDays converts day letters ("SMTWRFY", any order, any case) to a mask.
// Unknown letters are ignored.
func ParseDays(days string) uint8 {
	days = strings.ToUpper(days)
	var mask uint8
	for i := 0; i < len(dayLetters); i++ {
		if strings.IndexByte(days, dayLetters[i]) >= 0 {
			mask |= 1 << i
		}
	}
	return mask
}

// FormatDays converts a mask to day letters, Sunday first.
func FormatDays(mask uint8) string {
	var b strings.Builder
	for i := 0; i < len(dayLetters); i++ {
		if mask&(1<<i) != 0 {
			b.WriteByte(dayLetters[i])
		}
	}
	return b.String()
}

// String renders TYPE,circuit,HH:MM,HH:MM,DAYS
func (s *Schedule) String() string {
	return fmt.Sprintf("%s,%d,%02d:%02d,%02d:%02d,%s", s.Type, s.Circuit,
		s.Start/minutesPerHour, s.Start%minutesPerHour,
		s.End/minutesPerHour, s.End%minutesPerHour, FormatDays(s.Days))
}

var schedulePattern = regexp.MustCompile(`^(NONE|NORMAL|EGGTIMER|ONCEONLY),(\d+),(\d+):(\d+),(\d+):(\d+),([SMTWRFY]*)$`)

// Apply updates s from the String() form. Nothing changes unless the whole
// string is valid.
func (s *Schedule) Apply(str string) error {
	m := schedulePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(str)))
	if m == nil {
		return fmt.Errorf("%w: schedule %q", ErrOutOfRange, str)
	}

	n := make([]int, 7)
	for i := 2; i <= 6; i++ {
		v, err := strconv.Atoi(m[i])
		if err != nil {
			return fmt.Errorf("%w: schedule %q: %v", ErrOutOfRange, str, err)
		}
		n[i] = v
	}

	next := *s
	t, err := ParseScheduleType(m[1])
	if err != nil {
		return err
	}
	if err := next.SetType(t); err != nil {
		return err
	}
	if n[4] > 59 || n[6] > 59 {
		return fmt.Errorf("%w: schedule %q minutes", ErrOutOfRange, str)
	}
	if t != ScheduleNone {
		if err := next.SetCircuit(n[2]); err != nil {
			return err
		}
	}
	if err := next.SetStart(n[3]*minutesPerHour + n[4]); err != nil {
		return err
	}
	if err := next.SetEnd(n[5]*minutesPerHour + n[6]); err != nil {
		return err
	}
	next.SetDays(m[7])

	*s = next
	return nil
}

// ParseSchedule builds schedule id from the String() form.
func ParseSchedule(id int, str string) (*Schedule, error) {
	s := &Schedule{ID: id, Type: ScheduleUnknown}
	if id < 1 || id > NumSchedules {
		return nil, fmt.Errorf("%w: schedule id %d", ErrOutOfRange, id)
	}
	if err := s.Apply(str); err != nil {
		return nil, err
	}
	return s, nil
}
