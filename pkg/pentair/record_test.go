// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"errors"
	"math"
	"testing"
)

func decodeAs[T Record](t *testing.T, f WireFrame) T {
	t.Helper()
	rec, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	v, ok := rec.(T)
	if !ok {
		t.Fatalf("Decode() = %T, want %T", rec, v)
	}
	return v
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============================================================
// Controller Status Tests
// ============================================================

func TestDecode_ControllerStatus(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		hour     int
		minute   int
		on       []int
		pool     bool
		spa      bool
		air      int
		heaterOn bool
		solarOn  bool
	}{
		{"spa and pool heating", statusSpaPoolHeater, 9, 32, []int{1, 6}, true, true, 65, true, false},
		{"aux circuits", statusAuxCircuits, 9, 4, []int{9, 13, 14}, false, false, 69, false, false},
		{"circuit 9 only", statusCircuit1Only, 8, 59, []int{9}, false, false, 68, false, false},
		{"solar", statusSolar, 10, 11, nil, false, false, 63, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := decodeAs[*ControllerStatus](t, frameFromBody(t, tt.body))

			if s.Hour != tt.hour || s.Minute != tt.minute {
				t.Errorf("time = %02d:%02d, want %02d:%02d", s.Hour, s.Minute, tt.hour, tt.minute)
			}
			if s.Pool != tt.pool || s.Spa != tt.spa {
				t.Errorf("pool=%t spa=%t, want pool=%t spa=%t", s.Pool, s.Spa, tt.pool, tt.spa)
			}
			if s.AirTemp != tt.air {
				t.Errorf("AirTemp = %d, want %d", s.AirTemp, tt.air)
			}
			if s.HeaterOn != tt.heaterOn || s.SolarOn != tt.solarOn {
				t.Errorf("heater=%t solar=%t, want heater=%t solar=%t", s.HeaterOn, s.SolarOn, tt.heaterOn, tt.solarOn)
			}
			if s.Celsius || s.Unit() != "F" {
				t.Errorf("unit = %s, want F", s.Unit())
			}

			want := map[int]bool{}
			for _, c := range tt.on {
				want[c] = true
			}
			for id := 1; id <= StatusCircuits; id++ {
				if s.Circuit(id) != want[id] {
					t.Errorf("Circuit(%d) = %t, want %t", id, s.Circuit(id), want[id])
				}
			}
		})
	}
}

func TestControllerStatus_Equal(t *testing.T) {
	a := decodeAs[*ControllerStatus](t, frameFromBody(t, statusAuxCircuits))
	b := decodeAs[*ControllerStatus](t, frameFromBody(t, statusAuxCircuits))
	c := decodeAs[*ControllerStatus](t, frameFromBody(t, statusCircuit1Only))

	if !a.Equal(b) {
		t.Errorf("identical snapshots not equal")
	}
	if a.Equal(c) {
		t.Errorf("different snapshots equal")
	}
	if a.Equal(nil) {
		t.Errorf("snapshot equal to nil")
	}
}

func TestDecodeControllerStatus_Flags(t *testing.T) {
	p := make([]byte, 29)
	p[9] = StatusCelsius | StatusServiceMode
	p[12] = StatusHeaterDelay

	s, err := DecodeControllerStatus(p)
	if err != nil {
		t.Fatalf("DecodeControllerStatus() error: %v", err)
	}
	if !s.Celsius || !s.ServiceMode || !s.HeaterDelay {
		t.Errorf("flags = %+v", s)
	}
	if s.Circuit(0) || s.Circuit(25) {
		t.Errorf("Circuit() out of range should be false")
	}
}

func TestDecodeControllerStatus_WrongLength(t *testing.T) {
	f := MustNewFrame(0x24, 0x0F, 0x10, ActionStatus, make([]byte, 28))
	rec, err := Decode(f)
	if !errors.Is(err, ErrPayloadLength) {
		t.Fatalf("Decode() error = %v, want ErrPayloadLength", err)
	}
	if _, ok := rec.(Unrecognized); !ok {
		t.Errorf("Decode() = %T, want Unrecognized", rec)
	}
}

// ============================================================
// Pump Tests
// ============================================================

func TestDecode_PumpStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		run    bool
		power  int
		rpm    int
		hour   int
		minute int
	}{
		{"running 1750", pumpRunning1750, true, 231, 1750, 2, 3},
		{"running 2005", pumpRunning2005, true, 505, 2005, 10, 58},
		{"stopped", pumpStopped, false, 0, 0, 20, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := decodeAs[*PumpStatus](t, frameFromBody(t, tt.body))
			if s.Run != tt.run || s.Power != tt.power || s.RPM != tt.rpm {
				t.Errorf("got run=%t power=%d rpm=%d, want run=%t power=%d rpm=%d",
					s.Run, s.Power, s.RPM, tt.run, tt.power, tt.rpm)
			}
			if s.Hour != tt.hour || s.Minute != tt.minute {
				t.Errorf("clock = %02d:%02d, want %02d:%02d", s.Hour, s.Minute, tt.hour, tt.minute)
			}
		})
	}
}

func TestDecode_PumpReply(t *testing.T) {
	f := MustNewFrame(0x00, 0x22, 0x60, ActionPumpRemote, []byte{PumpRemote})
	r := decodeAs[*PumpReply](t, f)
	if !r.Remote() || r.Action != ActionPumpRemote {
		t.Errorf("PumpReply = %+v", r)
	}

	// 0x01 from a pump is a command echo, not a controller ack
	f = MustNewFrame(0x00, 0x22, 0x60, ActionPumpCommand, []byte{0x06, 0xD6})
	r = decodeAs[*PumpReply](t, f)
	if r.Remote() || len(r.Data) != 2 {
		t.Errorf("PumpReply = %+v", r)
	}
}

// ============================================================
// IntelliChem Tests
// ============================================================

func TestDecode_IntelliChem(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		ph        float64
		orp       int
		phSet     float64
		orpSet    int
		tank1     int
		tank2     int
		cya       int
		ta        int
		ch        int
		flowAlarm bool
		mode1     int
		mode2     int
		chFactor  float64
	}{
		{"from chem controller", chemFlowAlarm, 7.70, 675, 7.20, 710, 0, 6, 63, 0, 0, true, 0x06, 0xA5, 1.0},
		{"relayed by controller", chemRelayed, 7.39, 687, 7.50, 700, 6, 5, 0, 150, 400, false, 0x65, 0x20, 2.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Captures carry one byte past the declared payload
			raw := mustHex(t, tt.body)
			f, err := DecodeFrameBody(raw[:ControllerHeaderSize+chemLength])
			if err != nil {
				t.Fatalf("DecodeFrameBody() error: %v", err)
			}
			c := decodeAs[*IntelliChemStatus](t, f)

			if !approx(c.PHReading, tt.ph) || !approx(c.PHSetpoint, tt.phSet) {
				t.Errorf("pH = %.2f/%.2f, want %.2f/%.2f", c.PHReading, c.PHSetpoint, tt.ph, tt.phSet)
			}
			if c.ORPReading != tt.orp || c.ORPSetpoint != tt.orpSet {
				t.Errorf("ORP = %d/%d, want %d/%d", c.ORPReading, c.ORPSetpoint, tt.orp, tt.orpSet)
			}
			if c.Tank1 != tt.tank1 || c.Tank2 != tt.tank2 {
				t.Errorf("tanks = %d/%d, want %d/%d", c.Tank1, c.Tank2, tt.tank1, tt.tank2)
			}
			if c.CYAReading != tt.cya || c.TotalAlkalinity != tt.ta || c.CalciumHardness != tt.ch {
				t.Errorf("CYA=%d TA=%d CH=%d, want CYA=%d TA=%d CH=%d",
					c.CYAReading, c.TotalAlkalinity, c.CalciumHardness, tt.cya, tt.ta, tt.ch)
			}
			if c.WaterFlowAlarm != tt.flowAlarm {
				t.Errorf("WaterFlowAlarm = %t, want %t", c.WaterFlowAlarm, tt.flowAlarm)
			}
			if c.Mode1 != tt.mode1 || c.Mode2 != tt.mode2 {
				t.Errorf("modes = 0x%02X/0x%02X, want 0x%02X/0x%02X", c.Mode1, c.Mode2, tt.mode1, tt.mode2)
			}
			if !approx(c.CalciumHardnessFactor(), tt.chFactor) {
				t.Errorf("CalciumHardnessFactor() = %v, want %v", c.CalciumHardnessFactor(), tt.chFactor)
			}
		})
	}
}

func TestIntelliChem_SaturationIndex(t *testing.T) {
	flowAlarm := &IntelliChemStatus{PHReading: 7.70, CalciumHardness: 0, CYAReading: 63, TotalAlkalinity: 0}
	relayed := &IntelliChemStatus{PHReading: 7.39, CalciumHardness: 400, CYAReading: 0, TotalAlkalinity: 150}

	tests := []struct {
		name string
		c    *IntelliChemStatus
		temp *WaterTemp
		salt bool
		want float64
	}{
		{"unknown temp fresh", flowAlarm, nil, false, 7.70 + 1.0 + 1.4 + 0.4 - 12.1},
		{"unknown temp fresh", relayed, nil, false, 7.39 + 2.2 + 2.2 + 0.4 - 12.1},
		{"80F salt", relayed, &WaterTemp{Degrees: 80}, true, 7.39 + 2.2 + 2.2 + 0.7 - 12.2},
		{"27C fresh", relayed, &WaterTemp{Degrees: 27, Celsius: true}, false, 7.39 + 2.2 + 2.2 + 0.7 - 12.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.c.SaturationIndex(tt.temp, tt.salt)
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("SaturationIndex() = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestIntelliChem_Factors(t *testing.T) {
	c := &IntelliChemStatus{TotalAlkalinity: 100, CYAReading: 31}
	if got := c.CorrectedAlkalinity(); got != 90 {
		t.Errorf("CorrectedAlkalinity() = %d, want 90", got)
	}
	if got := c.AlkalinityFactor(); !approx(got, 2.0) {
		t.Errorf("AlkalinityFactor() = %v, want 2.0", got)
	}

	c.CalciumHardness = 801
	if got := c.CalciumHardnessFactor(); got != 0 {
		t.Errorf("CalciumHardnessFactor() above table = %v, want 0", got)
	}

	temps := []struct {
		temp WaterTemp
		want float64
	}{
		{WaterTemp{Degrees: 32}, 0.0},
		{WaterTemp{Degrees: 33}, 0.1},
		{WaterTemp{Degrees: 105}, 0.9},
		{WaterTemp{Degrees: 106}, 0},
		{WaterTemp{Degrees: 0, Celsius: true}, 0.0},
		{WaterTemp{Degrees: 40, Celsius: true}, 0.9},
	}
	for _, tt := range temps {
		if got := TemperatureFactor(tt.temp); !approx(got, tt.want) {
			t.Errorf("TemperatureFactor(%+v) = %v, want %v", tt.temp, got, tt.want)
		}
	}
}

// ============================================================
// Other Controller Record Tests
// ============================================================

func TestDecode_Ack(t *testing.T) {
	a := decodeAs[*Ack](t, MustNewFrame(0x24, 0x22, 0x10, ActionAck, []byte{ActionSetCircuit}))
	if a.Action != ActionSetCircuit {
		t.Errorf("Ack.Action = 0x%02X, want 0x86", a.Action)
	}

	_, err := Decode(MustNewFrame(0x24, 0x22, 0x10, ActionAck, nil))
	if !errors.Is(err, ErrPayloadLength) {
		t.Errorf("empty ack error = %v, want ErrPayloadLength", err)
	}
}

func TestDecode_ClockTime(t *testing.T) {
	f := MustNewFrame(0x24, 0x0F, 0x10, ActionClock, []byte{13, 45, 3, 17, 10, 25, 0, 0})
	c := decodeAs[*ClockTime](t, f)
	want := ClockTime{Hour: 13, Minute: 45, DayOfWeek: 3, Day: 17, Month: 10, Year: 25}
	if *c != want {
		t.Errorf("ClockTime = %+v, want %+v", *c, want)
	}

	p, err := c.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if string(p) != string([]byte{13, 45, 3, 17, 10, 25, 0, 0}) {
		t.Errorf("Encode() = % X", p)
	}

	c.Month = 13
	if _, err := c.Encode(); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Encode(month 13) error = %v, want ErrOutOfRange", err)
	}
}

func TestDecode_HeatStatus(t *testing.T) {
	p := []byte{0, 78, 70, 82, 100, 0x07, 0, 0, 75, 0, 0, 0, 0}
	h := decodeAs[*HeatStatus](t, MustNewFrame(0x24, 0x0F, 0x10, ActionHeatStatus, p))

	if h.PoolTemp != 78 || h.AirTemp != 70 || h.SolarTemp != 75 {
		t.Errorf("temps = %d/%d/%d", h.PoolTemp, h.AirTemp, h.SolarTemp)
	}
	if h.PoolSetpoint != 82 || h.SpaSetpoint != 100 {
		t.Errorf("setpoints = %d/%d", h.PoolSetpoint, h.SpaSetpoint)
	}
	if h.PoolHeatMode != HeatModeSolar || h.SpaHeatMode != HeatModeHeater {
		t.Errorf("modes = %s/%s", h.PoolHeatMode, h.SpaHeatMode)
	}

	enc, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if string(enc) != string([]byte{82, 100, 0x07, 0}) {
		t.Errorf("Encode() = % X", enc)
	}
}

func TestClampSetpoint(t *testing.T) {
	tests := []struct {
		temp    int
		celsius bool
		want    int
	}{
		{30, false, 50}, {80, false, 80}, {120, false, 105},
		{5, true, 10}, {28, true, 28}, {45, true, 41},
	}
	for _, tt := range tests {
		if got := ClampSetpoint(tt.temp, tt.celsius); got != tt.want {
			t.Errorf("ClampSetpoint(%d, %t) = %d, want %d", tt.temp, tt.celsius, got, tt.want)
		}
	}
}

func TestPackHeatModes(t *testing.T) {
	b, err := PackHeatModes(HeatModeHeater, HeatModeSolarPreferred)
	if err != nil || b != 0x09 {
		t.Errorf("PackHeatModes() = 0x%02X, %v, want 0x09", b, err)
	}
	if _, err := PackHeatModes(HeatMode(4), HeatModeNone); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("PackHeatModes(4) error = %v, want ErrOutOfRange", err)
	}
}

func TestDecode_Circuit(t *testing.T) {
	c := decodeAs[*Circuit](t, MustNewFrame(0x24, 0x0F, 0x10, ActionCircuitName, []byte{6, 2, 61, 0, 0}))
	if c.ID != 6 || c.Function != CircuitFunctionPool || c.NameCode != CircuitNamePool {
		t.Errorf("Circuit = %+v", c)
	}
	if c.Group() != "pool" {
		t.Errorf("Group() = %q, want pool", c.Group())
	}

	_, err := Decode(MustNewFrame(0x24, 0x0F, 0x10, ActionCircuitName, []byte{19, 0, 0}))
	if !errors.Is(err, ErrOutOfRange) {
		t.Errorf("circuit 19 error = %v, want ErrOutOfRange", err)
	}
}

func TestDecode_SoftwareVersion(t *testing.T) {
	v := decodeAs[*SoftwareVersion](t, MustNewFrame(0x24, 0x0F, 0x10, ActionSoftwareVersion, []byte{0, 2, 80, 0}))
	if v.String() != "2.80" {
		t.Errorf("SoftwareVersion = %s, want 2.80", v)
	}
}

func TestDecode_UnknownActionIsUnrecognized(t *testing.T) {
	f := MustNewFrame(0x24, 0x0F, 0x10, ActionSettings, []byte{1, 2, 3})
	rec, err := Decode(f)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	u, ok := rec.(Unrecognized)
	if !ok {
		t.Fatalf("Decode() = %T, want Unrecognized", rec)
	}
	if u.Frame != f {
		t.Errorf("Unrecognized.Frame is not the input frame")
	}
}

func TestDecode_ChemFromPumpIsNotChem(t *testing.T) {
	// Action 0x12 from a pump has no codec
	f := MustNewFrame(0x00, 0x10, 0x60, ActionIntelliChem, make([]byte, 41))
	if _, ok := decodeAs[Unrecognized](t, f).Frame.(*Frame); !ok {
		t.Errorf("Unrecognized.Frame lost its type")
	}
}

// ============================================================
// Chlorinator Record Tests
// ============================================================

func TestDecode_Chlorinator(t *testing.T) {
	out := decodeAs[*ChlorinatorSaltOutput](t, chlorFromBody(t, "10 02 50 11 50"))
	if out.Percent != 80 {
		t.Errorf("Percent = %d, want 80", out.Percent)
	}
	out = decodeAs[*ChlorinatorSaltOutput](t, chlorFromBody(t, "10 02 50 11 00"))
	if out.Percent != 0 {
		t.Errorf("Percent = %d, want 0", out.Percent)
	}

	st := decodeAs[*ChlorinatorStatus](t, chlorFromBody(t, "10 02 00 12 67 80"))
	if st.Salinity != 5150 || !st.OK() || len(st.Alarms()) != 0 {
		t.Errorf("status = %s", st)
	}

	st = decodeAs[*ChlorinatorStatus](t, chlorFromBody(t, "10 02 00 12 4C 81"))
	if st.Salinity != 3800 || st.OK() || !st.LowFlow() {
		t.Errorf("status = %s", st)
	}
	if alarms := st.Alarms(); len(alarms) != 1 || alarms[0] != "low_flow" {
		t.Errorf("Alarms() = %v", alarms)
	}

	pres := decodeAs[*ChlorinatorPresence](t, chlorFromBody(t, "10 02 50 14 00"))
	if pres.Action != ChlorActionPresence {
		t.Errorf("presence action = 0x%02X", pres.Action)
	}

	version := decodeAs[*ChlorinatorVersion](t, chlorFromBody(t, "10 02 00 03 00 49 6E 74 65 6C 6C 69 63 68 6C 6F 72 2D 2D 34 30"))
	if version.Version != 0 || version.Model != "Intellichlor--40" {
		t.Errorf("version = %+v", version)
	}

	if _, ok := decodeAs[Unrecognized](t, chlorFromBody(t, "10 02 50 01 00 00")).Frame.(*ChlorinatorFrame); !ok {
		t.Errorf("poll frame should be Unrecognized")
	}
}
