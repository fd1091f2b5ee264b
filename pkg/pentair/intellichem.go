// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "fmt"

// IntelliChem status payload layout (action 0x12)
const (
	chemLength       = 41
	chemPHReadingH   = 0
	chemPHReadingL   = 1
	chemORPReadingH  = 2
	chemORPReadingL  = 3
	chemPHSetpointH  = 4
	chemPHSetpointL  = 5
	chemORPSetpointH = 6
	chemORPSetpointL = 7
	chemTank1        = 20
	chemTank2        = 21
	chemHardnessH    = 23
	chemHardnessL    = 24
	chemCYA          = 27
	chemAlkalinity   = 28
	chemWaterFlow    = 30
	chemMode1        = 34
	chemMode2        = 35
)

// Dissolved solids terms of the saturation index
const (
	DissolvedSolidsSalt  = 12.2
	DissolvedSolidsFresh = 12.1
)

// unknownTemperatureFactor stands in when no water temperature is known
const unknownTemperatureFactor = 0.4

// IntelliChemStatus is chemistry controller telemetry.
type IntelliChemStatus struct {
	PHReading       float64
	ORPReading      int
	PHSetpoint      float64
	ORPSetpoint     int
	Tank1           int
	Tank2           int
	CalciumHardness int
	CYAReading      int
	TotalAlkalinity int
	WaterFlowAlarm  bool
	Mode1           int
	Mode2           int
}

// Name implements Record
func (*IntelliChemStatus) Name() string { return "intellichem_status" }
func (*IntelliChemStatus) isRecord()    {}

// DecodeIntelliChemStatus decodes a 41 byte chemistry payload.
func DecodeIntelliChemStatus(p []byte) (*IntelliChemStatus, error) {
	if err := checkLength("intellichem status", p, chemLength); err != nil {
		return nil, err
	}
	return &IntelliChemStatus{
		PHReading:       float64(be16(p[chemPHReadingH], p[chemPHReadingL])) / 100,
		ORPReading:      be16(p[chemORPReadingH], p[chemORPReadingL]),
		PHSetpoint:      float64(be16(p[chemPHSetpointH], p[chemPHSetpointL])) / 100,
		ORPSetpoint:     be16(p[chemORPSetpointH], p[chemORPSetpointL]),
		Tank1:           int(p[chemTank1]),
		Tank2:           int(p[chemTank2]),
		CalciumHardness: be16(p[chemHardnessH], p[chemHardnessL]),
		CYAReading:      int(p[chemCYA]),
		TotalAlkalinity: int(p[chemAlkalinity]),
		WaterFlowAlarm:  p[chemWaterFlow] != 0,
		Mode1:           int(p[chemMode1]),
		Mode2:           int(p[chemMode2]),
	}, nil
}

// step is one band of a piecewise-constant table: values <= upTo map to factor.
type step struct {
	upTo   float64
	factor float64
}

func lookupStep(table []step, v float64) float64 {
	for _, s := range table {
		if v <= s.upTo {
			return s.factor
		}
	}
	return 0
}

var calciumHardnessSteps = []step{
	{25, 1.0}, {50, 1.3}, {75, 1.5}, {100, 1.6}, {125, 1.7}, {150, 1.8},
	{200, 1.9}, {250, 2.0}, {300, 2.1}, {400, 2.2}, {800, 2.5},
}

var alkalinitySteps = []step{
	{25, 1.4}, {50, 1.7}, {75, 1.9}, {100, 2.0}, {125, 2.1}, {150, 2.2},
	{200, 2.3}, {250, 2.4}, {300, 2.5}, {400, 2.6}, {800, 2.9},
}

var temperatureStepsC = []step{
	{0, 0.0}, {2.8, 0.1}, {7.8, 0.2}, {11.7, 0.3}, {15.6, 0.4}, {18.9, 0.5},
	{24.4, 0.6}, {28.9, 0.7}, {34.4, 0.8}, {40.6, 0.9},
}

var temperatureStepsF = []step{
	{32, 0.0}, {37, 0.1}, {46, 0.2}, {53, 0.3}, {60, 0.4}, {66, 0.5},
	{76, 0.6}, {84, 0.7}, {94, 0.8}, {105, 0.9},
}

// CalciumHardnessFactor is the hardness term of the saturation index.
// Readings above 800 ppm contribute 0.
func (c *IntelliChemStatus) CalciumHardnessFactor() float64 {
	return lookupStep(calciumHardnessSteps, float64(c.CalciumHardness))
}

// CorrectedAlkalinity is total alkalinity less a third of the cyanuric acid
// reading, with integer division.
func (c *IntelliChemStatus) CorrectedAlkalinity() int {
	return c.TotalAlkalinity - c.CYAReading/3
}

// AlkalinityFactor is the alkalinity term of the saturation index.
func (c *IntelliChemStatus) AlkalinityFactor() float64 {
	return lookupStep(alkalinitySteps, float64(c.CorrectedAlkalinity()))
}

// WaterTemp is a whole-degree water temperature in the controller's unit
type WaterTemp struct {
	Degrees int
	Celsius bool
}

// TemperatureFactor is the temperature term of the saturation index.
func TemperatureFactor(t WaterTemp) float64 {
	if t.Celsius {
		return lookupStep(temperatureStepsC, float64(t.Degrees))
	}
	return lookupStep(temperatureStepsF, float64(t.Degrees))
}

// SaturationIndex computes the Langelier-style index from this reading. A nil
// temp uses a fixed 0.4 temperature term. saltChlorinator selects the 12.2
// dissolved solids term instead of 12.1.
func (c *IntelliChemStatus) SaturationIndex(temp *WaterTemp, saltChlorinator bool) float64 {
	tf := unknownTemperatureFactor
	if temp != nil {
		tf = TemperatureFactor(*temp)
	}
	tds := DissolvedSolidsFresh
	if saltChlorinator {
		tds = DissolvedSolidsSalt
	}
	return c.PHReading + c.CalciumHardnessFactor() + c.AlkalinityFactor() + tf - tds
}

func (c *IntelliChemStatus) String() string {
	return fmt.Sprintf("pH:%.2f ORP:%d pH set:%.2f ORP set:%d tank1:%d tank2:%d CH:%d CYA:%d TA:%d flowAlarm:%t mode1:0x%02X mode2:0x%02X",
		c.PHReading, c.ORPReading, c.PHSetpoint, c.ORPSetpoint, c.Tank1, c.Tank2,
		c.CalciumHardness, c.CYAReading, c.TotalAlkalinity, c.WaterFlowAlarm, c.Mode1, c.Mode2)
}
