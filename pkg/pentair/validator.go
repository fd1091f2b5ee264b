// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"errors"
	"fmt"
)

// AnomalyType represents different types of frame anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyHighRPM
	AnomalyInvalidTemp
	AnomalyInvalidValue
	AnomalyUnknownCode
	AnomalyChecksumError
	AnomalyDecodeError
)

func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "LENGTH_MISMATCH"
	case AnomalyHighRPM:
		return "HIGH_RPM"
	case AnomalyInvalidTemp:
		return "INVALID_TEMP"
	case AnomalyInvalidValue:
		return "INVALID_VALUE"
	case AnomalyUnknownCode:
		return "UNKNOWN_CODE"
	case AnomalyChecksumError:
		return "CHECKSUM_ERROR"
	case AnomalyDecodeError:
		return "DECODE_ERROR"
	default:
		return "UNKNOWN"
	}
}

// ValidationError represents a frame validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Plausibility limits for decoded values
const (
	maxPlausibleTempF = 130
	maxPlausibleTempC = 55
	maxPlausibleWatts = 3500
	maxPlausiblePH    = 14.0
)

// ValidateFrame decodes f and reports semantic anomalies.
// Returns a slice of validation errors (empty if the frame is plausible).
func ValidateFrame(f WireFrame) []ValidationError {
	rec, err := Decode(f)
	if err != nil {
		anomaly := AnomalyDecodeError
		if errors.Is(err, ErrPayloadLength) {
			anomaly = AnomalyLengthMismatch
		}
		return []ValidationError{{
			Type:    anomaly,
			Message: err.Error(),
			Details: map[string]interface{}{"action": f.Action(), "length": len(f.Payload())},
		}}
	}

	switch r := rec.(type) {
	case *ControllerStatus:
		return validateControllerStatus(r)
	case *PumpStatus:
		return validatePumpStatus(r)
	case *Circuit:
		return validateCircuit(r)
	case *IntelliChemStatus:
		return validateIntelliChem(r)
	case *ClockTime:
		if err := r.Validate(); err != nil {
			return []ValidationError{{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Invalid clock: %v", err),
				Details: map[string]interface{}{"clock": r.String()},
			}}
		}
	}
	return nil
}

// validateControllerStatus checks the clock and temperature readings
func validateControllerStatus(s *ControllerStatus) []ValidationError {
	errs := []ValidationError{}

	if s.Hour > 23 || s.Minute > 59 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid time %02d:%02d", s.Hour, s.Minute),
			Details: map[string]interface{}{"hour": s.Hour, "minute": s.Minute},
		})
	}

	limit := maxPlausibleTempF
	if s.Celsius {
		limit = maxPlausibleTempC
	}
	temps := []struct {
		name string
		v    int
	}{
		{"pool", s.PoolTemp}, {"spa", s.SpaTemp}, {"air", s.AirTemp}, {"solar", s.SolarTemp},
	}
	for _, t := range temps {
		if t.v > limit {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidTemp,
				Message: fmt.Sprintf("Implausible %s temperature %d%s (max %d)", t.name, t.v, s.Unit(), limit),
				Details: map[string]interface{}{"sensor": t.name, "value": t.v, "max": limit},
			})
		}
	}

	return errs
}

// validatePumpStatus checks speed and power
func validatePumpStatus(s *PumpStatus) []ValidationError {
	errs := []ValidationError{}

	if s.RPM > MaxPumpRPM {
		errs = append(errs, ValidationError{
			Type:    AnomalyHighRPM,
			Message: fmt.Sprintf("High RPM (rpm=%d, max %d)", s.RPM, MaxPumpRPM),
			Details: map[string]interface{}{"rpm": s.RPM, "max": MaxPumpRPM},
		})
	}
	if s.Power > maxPlausibleWatts {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Implausible power %dW (max %d)", s.Power, maxPlausibleWatts),
			Details: map[string]interface{}{"watts": s.Power, "max": maxPlausibleWatts},
		})
	}
	if !s.Run && s.RPM > 0 {
		errs = append(errs, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Pump stopped but reports %d rpm", s.RPM),
			Details: map[string]interface{}{"rpm": s.RPM},
		})
	}

	return errs
}

// validateCircuit flags catalog codes the tables do not know
func validateCircuit(c *Circuit) []ValidationError {
	errs := []ValidationError{}

	if !c.NameCode.Known() {
		errs = append(errs, ValidationError{
			Type:    AnomalyUnknownCode,
			Message: fmt.Sprintf("Circuit %d has unknown name code %d", c.ID, c.NameCode),
			Details: map[string]interface{}{"circuit": c.ID, "name": uint8(c.NameCode)},
		})
	}
	if !c.Function.Known() {
		errs = append(errs, ValidationError{
			Type:    AnomalyUnknownCode,
			Message: fmt.Sprintf("Circuit %d has unknown function code %d", c.ID, c.Function),
			Details: map[string]interface{}{"circuit": c.ID, "function": uint8(c.Function)},
		})
	}

	return errs
}

// validateIntelliChem checks the pH readings
func validateIntelliChem(c *IntelliChemStatus) []ValidationError {
	errs := []ValidationError{}

	for _, v := range []struct {
		name string
		ph   float64
	}{{"reading", c.PHReading}, {"setpoint", c.PHSetpoint}} {
		if v.ph > maxPlausiblePH {
			errs = append(errs, ValidationError{
				Type:    AnomalyInvalidValue,
				Message: fmt.Sprintf("Implausible pH %s %.2f", v.name, v.ph),
				Details: map[string]interface{}{v.name: v.ph},
			})
		}
	}

	return errs
}
