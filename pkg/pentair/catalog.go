// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"strings"
)

// UnknownCode is the String() of any catalog code the tables do not know.
const UnknownCode = "unrecognized"

type catalogEntry struct {
	key   string
	label string
}

func lookupKey(table map[uint8]catalogEntry, key string) (uint8, bool) {
	key = strings.ToUpper(strings.TrimSpace(key))
	for code, e := range table {
		if e.key == key {
			return code, true
		}
	}
	return 0, false
}

////////////////////////////////////////////////////////////////
// Circuit names
////////////////////////////////////////////////////////////////

// CircuitName is the name code a controller assigns to a circuit
type CircuitName uint8

// Name codes referenced directly
const (
	CircuitNameNotUsed  CircuitName = 0
	CircuitNamePool     CircuitName = 61
	CircuitNameSpa      CircuitName = 72
	CircuitNameFeature1 CircuitName = 94
)

var circuitNames = map[uint8]catalogEntry{
	0: {"NOTUSED", "NOT USED"}, 1: {"AERATOR", "AERATOR"}, 2: {"AIRBLOWER", "AIR BLOWER"},
	3: {"AUX1", "AUX 1"}, 4: {"AUX2", "AUX 2"}, 5: {"AUX3", "AUX 3"}, 6: {"AUX4", "AUX 4"},
	7: {"AUX5", "AUX 5"}, 8: {"AUX6", "AUX 6"}, 9: {"AUX7", "AUX 7"}, 10: {"AUX8", "AUX 8"},
	11: {"AUX9", "AUX 9"}, 12: {"AUX10", "AUX 10"}, 13: {"BACKWASH", "BACKWASH"},
	14: {"BACKLIGHT", "BACK LIGHT"}, 15: {"BBQLIGHT", "BBQ LIGHT"}, 16: {"BEACHLIGHT", "BEACH LIGHT"},
	17: {"BOOSTERPUMP", "BOOSTER PUMP"}, 18: {"BUGLIGHT", "BUG LIGHT"}, 19: {"CABANALTS", "CABANA LTS"},
	20: {"CHEMFEEDER", "CHEM. FEEDER"}, 21: {"CHLORINATOR", "CHLORINATOR"}, 22: {"CLEANER", "CLEANER"},
	23: {"COLORWHEEL", "COLOR WHEEL"}, 24: {"DECKLIGHT", "DECK LIGHT"}, 25: {"DRAINLINE", "DRAIN LINE"},
	26: {"DRIVELIGHT", "DRIVE LIGHT"}, 27: {"EDGEPUMP", "EDGE PUMP"}, 28: {"ENTRYLIGHT", "ENTRY LIGHT"},
	29: {"FAN", "FAN"}, 30: {"FIBEROPTIC", "FIBER OPTIC"}, 31: {"FIBERWORKS", "FIBER WORKS"},
	32: {"FILLLINE", "FILL LINE"}, 33: {"FLOORCLNR", "FLOOR CLNR"}, 34: {"FOGGER", "FOGGER"},
	35: {"FOUNTAIN", "FOUNTAIN"}, 36: {"FOUNTAIN1", "FOUNTAIN 1"}, 37: {"FOUNTAIN2", "FOUNTAIN 2"},
	38: {"FOUNTAIN3", "FOUNTAIN 3"}, 39: {"FOUNTAINS", "FOUNTAINS"}, 40: {"FRONTLIGHT", "FRONT LIGHT"},
	41: {"GARDENLTS", "GARDEN LTS"}, 42: {"GAZEBOLTS", "GAZEBO LTS"}, 43: {"HIGHSPEED", "HIGH SPEED"},
	44: {"HITEMP", "HI-TEMP"}, 45: {"HOUSELIGHT", "HOUSE LIGHT"}, 46: {"JETS", "JETS"},
	47: {"LIGHTS", "LIGHTS"}, 48: {"LOWSPEED", "LOW SPEED"}, 49: {"LOTEMP", "LO-TEMP"},
	50: {"MALIBULTS", "MALIBU LTS"}, 51: {"MIST", "MIST"}, 52: {"MUSIC", "MUSIC"},
	53: {"NOTUSED2", "NOT USED"}, 54: {"OZONATOR", "OZONATOR"}, 55: {"PATHLIGHTS", "PATH LIGHTS"},
	56: {"PATIOLTS", "PATIO LTS"}, 57: {"PERIMETERL", "PERIMETER L"}, 58: {"PG2000", "PG2000"},
	59: {"PONDLIGHT", "POND LIGHT"}, 60: {"POOLPUMP", "POOL PUMP"}, 61: {"POOL", "POOL"},
	62: {"POOLHIGH", "POOL HIGH"}, 63: {"POOLLIGHT", "POOL LIGHT"}, 64: {"POOLLOW", "POOL LOW"},
	65: {"SAM", "SAM"}, 66: {"POOLSAM1", "POOL SAM 1"}, 67: {"POOLSAM2", "POOL SAM 2"},
	68: {"POOLSAM3", "POOL SAM 3"}, 69: {"SECURITYLT", "SECURITY LT"}, 70: {"SLIDE", "SLIDE"},
	71: {"SOLAR", "SOLAR"}, 72: {"SPA", "SPA"}, 73: {"SPAHIGH", "SPA HIGH"},
	74: {"SPALIGHT", "SPA LIGHT"}, 75: {"SPALOW", "SPA LOW"}, 76: {"SPASAL", "SPA SAL"},
	77: {"SPASAM", "SPA SAM"}, 78: {"SPAWTRFLL", "SPA WTRFLL"}, 79: {"SPILLWAY", "SPILLWAY"},
	80: {"SPRINKLERS", "SPRINKLERS"}, 81: {"STREAM", "STREAM"}, 82: {"STATUELT", "STATUE LT"},
	83: {"SWIMJETS", "SWIM JETS"}, 84: {"WTRFEATURE", "WTR FEATURE"}, 85: {"WTRFEATLT", "WTR FEAT LT"},
	86: {"WATERFALL", "WATERFALL"}, 87: {"WATERFALL1", "WATERFALL 1"}, 88: {"WATERFALL2", "WATERFALL 2"},
	89: {"WATERFALL3", "WATERFALL 3"}, 90: {"WHIRLPOOL", "WHIRLPOOL"}, 91: {"WTRFLLGHT", "WTRFL LGHT"},
	92: {"YARDLIGHT", "YARD LIGHT"}, 93: {"AUXEXTRA", "AUX EXTRA"}, 94: {"FEATURE1", "FEATURE 1"},
	95: {"FEATURE2", "FEATURE 2"}, 96: {"FEATURE3", "FEATURE 3"}, 97: {"FEATURE4", "FEATURE 4"},
	98: {"FEATURE5", "FEATURE 5"}, 99: {"FEATURE6", "FEATURE 6"}, 100: {"FEATURE7", "FEATURE 7"},
	101: {"FEATURE8", "FEATURE 8"},
	200: {"USERNAME01", "USERNAME-01"}, 201: {"USERNAME02", "USERNAME-02"}, 202: {"USERNAME03", "USERNAME-03"},
	203: {"USERNAME04", "USERNAME-04"}, 204: {"USERNAME05", "USERNAME-05"}, 205: {"USERNAME06", "USERNAME-06"},
	206: {"USERNAME07", "USERNAME-07"}, 207: {"USERNAME08", "USERNAME-08"}, 208: {"USERNAME09", "USERNAME-09"},
	209: {"USERNAME10", "USERNAME-10"},
}

// LookupCircuitName reports whether code is a known circuit name.
func LookupCircuitName(code uint8) (CircuitName, bool) {
	_, ok := circuitNames[code]
	return CircuitName(code), ok
}

// Known reports whether the catalog has this code
func (n CircuitName) Known() bool {
	_, ok := circuitNames[uint8(n)]
	return ok
}

// Key returns the upper-case identifier, e.g. "POOLLIGHT"
func (n CircuitName) Key() string {
	if e, ok := circuitNames[uint8(n)]; ok {
		return e.key
	}
	return UnknownCode
}

func (n CircuitName) String() string {
	if e, ok := circuitNames[uint8(n)]; ok {
		return e.label
	}
	return UnknownCode
}

////////////////////////////////////////////////////////////////
// Circuit functions
////////////////////////////////////////////////////////////////

// CircuitFunction is the function code a controller assigns to a circuit
type CircuitFunction uint8

// Function codes referenced directly
const (
	CircuitFunctionGeneric      CircuitFunction = 0
	CircuitFunctionSpa          CircuitFunction = 1
	CircuitFunctionPool         CircuitFunction = 2
	CircuitFunctionLight        CircuitFunction = 7
	CircuitFunctionIntelliBrite CircuitFunction = 16
)

var circuitFunctions = map[uint8]catalogEntry{
	0:  {"GENERIC", "GENERIC"},
	1:  {"SPA", "SPA"},
	2:  {"POOL", "POOL"},
	5:  {"MASTERCLEANER", "MASTER CLEANER"},
	7:  {"LIGHT", "LIGHT"},
	9:  {"SAMLIGHT", "SAM LIGHT"},
	10: {"SALLIGHT", "SAL LIGHT"},
	11: {"PHOTONGEN", "PHOTON GEN"},
	12: {"COLORWHEEL", "COLOR WHEEL"},
	13: {"VALVES", "VALVES"},
	14: {"SPILLWAY", "SPILLWAY"},
	15: {"FLOORCLEANER", "FLOOR CLEANER"},
	16: {"INTELLIBRITE", "INTELLIBRITE"},
	17: {"MAGICSTREAM", "MAGICSTREAM"},
	19: {"NOTUSED", "NOT USED"},
	64: {"FREEZEPROTECT", "FREEZE PROTECTION ON"},
}

// LookupCircuitFunction reports whether code is a known circuit function.
func LookupCircuitFunction(code uint8) (CircuitFunction, bool) {
	_, ok := circuitFunctions[code]
	return CircuitFunction(code), ok
}

// Known reports whether the catalog has this code
func (f CircuitFunction) Known() bool {
	_, ok := circuitFunctions[uint8(f)]
	return ok
}

func (f CircuitFunction) String() string {
	if e, ok := circuitFunctions[uint8(f)]; ok {
		return e.label
	}
	return UnknownCode
}

////////////////////////////////////////////////////////////////
// Circuit groups
////////////////////////////////////////////////////////////////

// NumCircuits is the number of named circuits on a controller
const NumCircuits = 18

// Circuit ids with a fixed role
const (
	CircuitSpa  = 1
	CircuitPool = 6
)

var circuitGroups = [NumCircuits]string{
	"spa", "aux1", "aux2", "aux3", "aux4", "pool", "aux5", "aux6", "aux7", "aux8",
	"feature1", "feature2", "feature3", "feature4", "feature5", "feature6", "feature7", "feature8",
}

// CircuitGroup returns the group identifier of circuit id (1..18).
func CircuitGroup(id int) (string, bool) {
	if id < 1 || id > NumCircuits {
		return "", false
	}
	return circuitGroups[id-1], true
}

// CircuitByGroup is the inverse of CircuitGroup
func CircuitByGroup(group string) (int, bool) {
	group = strings.ToLower(strings.TrimSpace(group))
	for i, g := range circuitGroups {
		if g == group {
			return i + 1, true
		}
	}
	return 0, false
}

////////////////////////////////////////////////////////////////
// Light modes
////////////////////////////////////////////////////////////////

// LightMode is an IntelliBrite light show or color
type LightMode uint8

// Light modes referenced directly
const (
	LightOff   LightMode = 0
	LightOn    LightMode = 1
	LightParty LightMode = 177
)

var lightModes = map[uint8]catalogEntry{
	0:   {"OFF", "Off"},
	1:   {"ON", "On"},
	128: {"COLORSYNC", "Color Sync"},
	144: {"COLORSWIM", "Color Swim"},
	160: {"COLORSET", "Color Set"},
	177: {"PARTY", "Party"},
	178: {"ROMANCE", "Romance"},
	179: {"CARIBBEAN", "Caribbean"},
	180: {"AMERICAN", "American"},
	181: {"SUNSET", "Sunset"},
	182: {"ROYAL", "Royal"},
	193: {"BLUE", "Blue"},
	194: {"GREEN", "Green"},
	195: {"RED", "Red"},
	196: {"WHITE", "White"},
	197: {"MAGENTA", "Magenta"},
}

// LookupLightMode reports whether code is a known light mode.
func LookupLightMode(code uint8) (LightMode, bool) {
	_, ok := lightModes[code]
	return LightMode(code), ok
}

// ParseLightMode accepts a mode key such as "PARTY" or "colorsync".
func ParseLightMode(s string) (LightMode, error) {
	code, ok := lookupKey(lightModes, s)
	if !ok {
		return 0, fmt.Errorf("%w: light mode %q", ErrOutOfRange, s)
	}
	return LightMode(code), nil
}

// Known reports whether the catalog has this code
func (m LightMode) Known() bool {
	_, ok := lightModes[uint8(m)]
	return ok
}

// Key returns the upper-case identifier, e.g. "PARTY"
func (m LightMode) Key() string {
	if e, ok := lightModes[uint8(m)]; ok {
		return e.key
	}
	return UnknownCode
}

func (m LightMode) String() string {
	if e, ok := lightModes[uint8(m)]; ok {
		return e.label
	}
	return UnknownCode
}

////////////////////////////////////////////////////////////////
// Heat modes
////////////////////////////////////////////////////////////////

// HeatMode is the 2-bit heat source selection of one body of water
type HeatMode uint8

// Heat modes
const (
	HeatModeNone           HeatMode = 0
	HeatModeHeater         HeatMode = 1
	HeatModeSolarPreferred HeatMode = 2
	HeatModeSolar          HeatMode = 3
)

var heatModes = map[uint8]catalogEntry{
	0: {"NONE", "None"},
	1: {"HEATER", "Heater"},
	2: {"SOLAR_PREFERRED", "Solar Preferred"},
	3: {"SOLAR", "Solar"},
}

// LookupHeatMode reports whether code is a known heat mode.
func LookupHeatMode(code uint8) (HeatMode, bool) {
	_, ok := heatModes[code]
	return HeatMode(code), ok
}

// ParseHeatMode accepts a mode key such as "HEATER" or "solar_preferred".
func ParseHeatMode(s string) (HeatMode, error) {
	code, ok := lookupKey(heatModes, s)
	if !ok {
		return 0, fmt.Errorf("%w: heat mode %q", ErrOutOfRange, s)
	}
	return HeatMode(code), nil
}

// Known reports whether the catalog has this code
func (m HeatMode) Known() bool {
	_, ok := heatModes[uint8(m)]
	return ok
}

// Key returns the upper-case identifier, e.g. "SOLAR_PREFERRED"
func (m HeatMode) Key() string {
	if e, ok := heatModes[uint8(m)]; ok {
		return e.key
	}
	return UnknownCode
}

func (m HeatMode) String() string {
	if e, ok := heatModes[uint8(m)]; ok {
		return e.label
	}
	return UnknownCode
}
