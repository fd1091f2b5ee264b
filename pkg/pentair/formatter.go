// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f WireFrame) string {
	timestamp := f.Timestamp().Format("15:04:05.000")

	var result string
	switch v := f.(type) {
	case *Frame:
		result = fmt.Sprintf("[%s] %s (0x%02X) pre=%02X %02X -> %02X len=%d\n",
			timestamp, FormatAction(v.source, v.action), v.action, v.preamble, v.source, v.dest, len(v.payload))
	case *ChlorinatorFrame:
		result = fmt.Sprintf("[%s] %s (0x%02X) -> %02X len=%d\n",
			timestamp, FormatChlorinatorAction(v.action), v.action, v.dest, len(v.payload))
	default:
		return fmt.Sprintf("[%s] unknown frame\n", timestamp)
	}

	rec, err := Decode(f)
	switch {
	case err != nil:
		result += fmt.Sprintf("  Decode error: %v\n", err)
		result += fmt.Sprintf("  Payload: % X\n", f.Payload())
	default:
		result += FormatRecord(rec)
	}
	return result
}

// FormatAction returns the human-readable name for a controller protocol
// action. Pump actions reuse low codes, so the source address selects the
// table.
func FormatAction(source, action uint8) string {
	if DeviceTypeOf(source) == DeviceTypePump {
		switch action {
		case ActionPumpCommand:
			return "PUMP_COMMAND"
		case ActionPumpRemote:
			return "PUMP_REMOTE"
		case ActionPumpMode:
			return "PUMP_MODE"
		case ActionPumpRun:
			return "PUMP_RUN"
		case ActionPumpStatus:
			return "PUMP_STATUS"
		}
	}

	switch action {
	// Broadcasts and replies
	case ActionAck:
		return "ACK"
	case ActionStatus:
		return "STATUS"
	case ActionPumpRemote:
		return "PUMP_REMOTE"
	case ActionClock:
		return "CLOCK"
	case ActionPumpRun:
		return "PUMP_RUN"
	case ActionPumpStatus:
		return "PUMP_STATUS"
	case ActionHeatStatus:
		return "HEAT_STATUS"
	case ActionCustomNames:
		return "CUSTOM_NAMES"
	case ActionCircuitName:
		return "CIRCUIT_NAME"
	case ActionSchedule:
		return "SCHEDULE"
	case ActionIntelliChem:
		return "INTELLICHEM"
	case ActionChlorStatus:
		return "CHLOR_STATUS"
	case ActionPumpConfig:
		return "PUMP_CONFIG"
	case ActionValves:
		return "VALVES"
	case ActionHighSpeed:
		return "HIGH_SPEED"
	case ActionSpaRemotes:
		return "SPA_REMOTES"
	case ActionQuickTouch:
		return "QUICKTOUCH"
	case ActionSolarHeatPump:
		return "SOLAR_HEAT_PUMP"
	case ActionDelay:
		return "DELAY"
	case ActionLightGroups:
		return "LIGHT_GROUPS"
	case ActionSettings:
		return "SETTINGS"
	case ActionLightMode:
		return "LIGHT_MODE"
	case ActionSoftwareVersion:
		return "SOFTWARE_VERSION"

	// Commands
	case ActionCancelDelay:
		return "CANCEL_DELAY"
	case ActionSetClock:
		return "SET_CLOCK"
	case ActionSetCircuit:
		return "SET_CIRCUIT"
	case ActionSetHeat:
		return "SET_HEAT"
	case ActionSaveSchedule:
		return "SAVE_SCHEDULE"

	// Requests
	case ActionRequestStatus:
		return "REQUEST_STATUS"
	case ActionRequestClock:
		return "REQUEST_CLOCK"
	case ActionRequestHeat:
		return "REQUEST_HEAT"
	case ActionRequestCircuit:
		return "REQUEST_CIRCUIT"
	case ActionRequestSchedule:
		return "REQUEST_SCHEDULE"
	case ActionRequestChem:
		return "REQUEST_CHEM"
	case ActionRequestValves:
		return "REQUEST_VALVES"
	case ActionRequestLightGrps:
		return "REQUEST_LIGHT_GROUPS"
	case ActionRequestVersion:
		return "REQUEST_VERSION"

	default:
		return "UNKNOWN"
	}
}

// FormatChlorinatorAction returns the human-readable name for a chlorinator
// protocol action
func FormatChlorinatorAction(action uint8) string {
	switch action {
	case ChlorActionQuery:
		return "CHLOR_QUERY"
	case ChlorActionPoll:
		return "CHLOR_POLL"
	case ChlorActionVersion:
		return "CHLOR_VERSION"
	case ChlorActionSetOutput:
		return "CHLOR_SET_OUTPUT"
	case ChlorActionStatus:
		return "CHLOR_STATUS"
	case ChlorActionPresence:
		return "CHLOR_PRESENCE"
	default:
		return "UNKNOWN"
	}
}

// FormatRecord formats the decoded fields of a record, one indented line
func FormatRecord(rec Record) string {
	switch r := rec.(type) {
	case *Ack:
		return fmt.Sprintf("  Acknowledges: 0x%02X\n", r.Action)
	case *ControllerStatus:
		return formatControllerStatus(r)
	case *ClockTime:
		return fmt.Sprintf("  Clock: %s\n", r)
	case *HeatStatus:
		return fmt.Sprintf("  Pool: set %d mode %s, Spa: set %d mode %s, Water: %d, Air: %d, Solar: %d\n",
			r.PoolSetpoint, r.PoolHeatMode, r.SpaSetpoint, r.SpaHeatMode, r.PoolTemp, r.AirTemp, r.SolarTemp)
	case *Circuit:
		return fmt.Sprintf("  Circuit %d (%s): Name=%s, Function=%s\n", r.ID, r.Group(), r.NameCode, r.Function)
	case *Schedule:
		return fmt.Sprintf("  Schedule %d: %s\n", r.ID, r)
	case *SoftwareVersion:
		return fmt.Sprintf("  Version: %s\n", r)
	case *PumpStatus:
		runStr := "Off"
		if r.Run {
			runStr = "On"
		}
		return fmt.Sprintf("  Pump: %s, RPM=%d, Power=%dW, GPM=%d, Clock=%02d:%02d\n",
			runStr, r.RPM, r.Power, r.GPM, r.Hour, r.Minute)
	case *PumpReply:
		return fmt.Sprintf("  Pump reply: % X\n", r.Data)
	case *IntelliChemStatus:
		return fmt.Sprintf("  pH: %.2f (set %.2f), ORP: %d (set %d), Tanks: %d/%d, Flow alarm: %t\n",
			r.PHReading, r.PHSetpoint, r.ORPReading, r.ORPSetpoint, r.Tank1, r.Tank2, r.WaterFlowAlarm)
	case *ChlorinatorVersion:
		return fmt.Sprintf("  Model: %q, Version: %d\n", r.Model, r.Version)
	case *ChlorinatorSaltOutput:
		return fmt.Sprintf("  Salt output: %d%%\n", r.Percent)
	case *ChlorinatorStatus:
		alarms := "none"
		if a := r.Alarms(); len(a) > 0 {
			alarms = strings.Join(a, ",")
		}
		return fmt.Sprintf("  Salinity: %d ppm, OK: %t, Alarms: %s\n", r.Salinity, r.OK(), alarms)
	case *ChlorinatorPresence:
		return fmt.Sprintf("  Presence: 0x%02X\n", r.Value)
	case Unrecognized:
		return fmt.Sprintf("  Payload: % X\n", r.Frame.Payload())
	default:
		return ""
	}
}

func formatControllerStatus(s *ControllerStatus) string {
	var on []string
	for i, v := range s.Circuits {
		if v {
			on = append(on, fmt.Sprint(i+1))
		}
	}
	circuits := "none"
	if len(on) > 0 {
		circuits = strings.Join(on, ",")
	}

	result := fmt.Sprintf("  Time: %02d:%02d, Circuits on: %s\n", s.Hour, s.Minute, circuits)
	result += fmt.Sprintf("  Pool: %d%s, Spa: %d%s, Air: %d%s, Solar: %d%s\n",
		s.PoolTemp, s.Unit(), s.SpaTemp, s.Unit(), s.AirTemp, s.Unit(), s.SolarTemp, s.Unit())

	var flags []string
	if s.ServiceMode {
		flags = append(flags, "SERVICE")
	}
	if s.HeaterOn {
		flags = append(flags, "HEATER")
	}
	if s.SolarOn {
		flags = append(flags, "SOLAR")
	}
	if s.HeaterDelay {
		flags = append(flags, "DELAY")
	}
	if len(flags) > 0 {
		result += fmt.Sprintf("  Flags: %s\n", strings.Join(flags, " "))
	}
	return result
}
