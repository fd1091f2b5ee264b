// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"errors"
	"testing"
)

func TestDecodeSchedule(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    Schedule
	}{
		{
			name:    "normal",
			payload: []byte{1, 6, 8, 0, 17, 30, 0x7F},
			want:    Schedule{ID: 1, Circuit: 6, Type: ScheduleNormal, Start: 480, End: 1050, Days: 0x7F},
		},
		{
			name:    "egg timer keeps only the duration",
			payload: []byte{2, 5, EggTimerHour, 0, 2, 0, 0},
			want:    Schedule{ID: 2, Circuit: 5, Type: ScheduleEggTimer, End: 120},
		},
		{
			name:    "once only keeps only the start",
			payload: []byte{3, 5, 9, 30, OnceOnlyHour, 0, 0x01},
			want:    Schedule{ID: 3, Circuit: 5, Type: ScheduleOnceOnly, Start: 570, Days: 0x01},
		},
		{
			name:    "unused slot",
			payload: []byte{4, 0, 0, 0, 0, 0, 0},
			want:    Schedule{ID: 4, Type: ScheduleNone},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeSchedule(tt.payload)
			if err != nil {
				t.Fatalf("DecodeSchedule() error: %v", err)
			}
			if *s != tt.want {
				t.Errorf("DecodeSchedule() = %+v, want %+v", *s, tt.want)
			}
		})
	}
}

func TestDecodeSchedule_Errors(t *testing.T) {
	if _, err := DecodeSchedule([]byte{1, 2, 3}); !errors.Is(err, ErrPayloadLength) {
		t.Errorf("short payload error = %v, want ErrPayloadLength", err)
	}
	if _, err := DecodeSchedule([]byte{10, 6, 8, 0, 17, 0, 0}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("schedule 10 error = %v, want ErrOutOfRange", err)
	}
}

func TestSchedule_EncodeDecodeRoundTrip(t *testing.T) {
	schedules := []Schedule{
		{ID: 1, Circuit: 6, Type: ScheduleNormal, Start: 480, End: 1050, Days: 0x3E},
		{ID: 2, Circuit: 1, Type: ScheduleEggTimer, Start: 300, End: 90, Days: 0x7F, Dirty: true},
		{ID: 3, Circuit: 18, Type: ScheduleOnceOnly, Start: 1439, End: 600, Days: 0x40},
		{ID: 9, Circuit: 7, Type: ScheduleNone, Start: 60, End: 120, Days: 0x01},
		{ID: 5, Circuit: 3, Type: ScheduleNormal, Start: 0, End: MinutesPerDay, Days: 0},
	}

	for _, s := range schedules {
		t.Run(s.String(), func(t *testing.T) {
			p, err := s.Encode()
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			got, err := DecodeSchedule(p)
			if err != nil {
				t.Fatalf("DecodeSchedule() error: %v", err)
			}
			if want := s.Normalized(); *got != want {
				t.Errorf("round trip = %+v, want %+v", *got, want)
			}
		})
	}
}

func TestSchedule_EncodeSentinels(t *testing.T) {
	egg := Schedule{ID: 2, Circuit: 1, Type: ScheduleEggTimer, Start: 300, End: 90, Days: 0x7F}
	p, err := egg.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if want := []byte{2, 1, EggTimerHour, 0, 1, 30, 0}; string(p) != string(want) {
		t.Errorf("egg timer Encode() = % X, want % X", p, want)
	}

	once := Schedule{ID: 3, Circuit: 2, Type: ScheduleOnceOnly, Start: 570, End: 600, Days: 0x02}
	p, err = once.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if want := []byte{3, 2, 9, 30, OnceOnlyHour, 0, 0x02}; string(p) != string(want) {
		t.Errorf("once only Encode() = % X, want % X", p, want)
	}
}

func TestSchedule_Validate(t *testing.T) {
	tests := []struct {
		name string
		s    Schedule
		want error
	}{
		{"id zero", Schedule{ID: 0, Type: ScheduleNone}, ErrOutOfRange},
		{"unknown type", Schedule{ID: 1, Circuit: 1, Type: ScheduleUnknown}, ErrUnknownScheduleType},
		{"circuit 19", Schedule{ID: 1, Circuit: 19, Type: ScheduleNormal}, ErrOutOfRange},
		{"start past midnight", Schedule{ID: 1, Circuit: 1, Type: ScheduleNormal, Start: 1441}, ErrOutOfRange},
		{"days mask", Schedule{ID: 1, Circuit: 1, Type: ScheduleNormal, Days: 0x80}, ErrOutOfRange},
		{"none ignores fields", Schedule{ID: 1, Circuit: 40, Type: ScheduleNone}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.s.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSchedule_Setters(t *testing.T) {
	s := Schedule{ID: 1, Circuit: 6, Type: ScheduleNormal, Start: 480, End: 1050}

	if err := s.SetStart(480); err != nil || s.Dirty {
		t.Fatalf("SetStart(same) dirty=%t err=%v", s.Dirty, err)
	}
	if err := s.SetEnd(2000); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("SetEnd(2000) error = %v, want ErrOutOfRange", err)
	}
	if s.Dirty {
		t.Errorf("failed setter marked schedule dirty")
	}
	if err := s.SetCircuit(7); err != nil || !s.Dirty {
		t.Errorf("SetCircuit(7) dirty=%t err=%v", s.Dirty, err)
	}
	if err := s.SetType(ScheduleUnknown); !errors.Is(err, ErrUnknownScheduleType) {
		t.Errorf("SetType(unknown) error = %v", err)
	}
}

func TestSchedule_String(t *testing.T) {
	s := Schedule{ID: 1, Circuit: 6, Type: ScheduleNormal, Start: 480, End: 1050, Days: 0x7F}
	if got, want := s.String(), "NORMAL,6,08:00,17:30,SMTWRFY"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestParseSchedule(t *testing.T) {
	s, err := ParseSchedule(4, "eggtimer,3,00:00,02:15,")
	if err != nil {
		t.Fatalf("ParseSchedule() error: %v", err)
	}
	want := Schedule{ID: 4, Circuit: 3, Type: ScheduleEggTimer, End: 135, Dirty: true}
	if *s != want {
		t.Errorf("ParseSchedule() = %+v, want %+v", *s, want)
	}

	if _, err := ParseSchedule(10, "NONE,0,00:00,00:00,"); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("ParseSchedule(10) error = %v, want ErrOutOfRange", err)
	}
}

func TestSchedule_ApplyIsAtomic(t *testing.T) {
	orig := Schedule{ID: 1, Circuit: 6, Type: ScheduleNormal, Start: 480, End: 1050, Days: 0x7F}

	for _, bad := range []string{
		"BOGUS,6,08:00,17:30,SMTWRFY",
		"NORMAL,6,08:61,17:30,SMTWRFY",
		"NORMAL,42,08:00,17:30,SMTWRFY",
		"NORMAL,6,25:00,17:30,SMTWRFY",
		"NORMAL,6,08:00",
	} {
		s := orig
		if err := s.Apply(bad); err == nil {
			t.Errorf("Apply(%q) accepted", bad)
		}
		if s != orig {
			t.Errorf("Apply(%q) modified schedule: %+v", bad, s)
		}
	}
}

func TestParseScheduleType(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want ScheduleType
	}{
		{"NONE", ScheduleNone}, {"normal", ScheduleNormal}, {" EggTimer ", ScheduleEggTimer}, {"ONCEONLY", ScheduleOnceOnly},
	} {
		got, err := ParseScheduleType(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseScheduleType(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}

	got, err := ParseScheduleType("UNKNOWN")
	if !errors.Is(err, ErrUnknownScheduleType) || got != ScheduleUnknown {
		t.Errorf("ParseScheduleType(UNKNOWN) = %v, %v", got, err)
	}
	if ScheduleEggTimer.Label() != "Egg Timer" {
		t.Errorf("Label() = %q", ScheduleEggTimer.Label())
	}
}

func TestDays(t *testing.T) {
	if got := ParseDays("mwf"); got != 0x2A {
		t.Errorf("ParseDays(mwf) = 0x%02X, want 0x2A", got)
	}
	if got := ParseDays("SMTWRFY"); got != 0x7F {
		t.Errorf("ParseDays(all) = 0x%02X, want 0x7F", got)
	}
	if got := ParseDays("xz"); got != 0 {
		t.Errorf("ParseDays(xz) = 0x%02X, want 0", got)
	}
	if got := FormatDays(0x41); got != "SY" {
		t.Errorf("FormatDays(0x41) = %q, want SY", got)
	}
}
