// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame statistics and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames       uint64
	ValidFrames       uint64
	ControllerFrames  uint64
	ChlorinatorFrames uint64
	ChecksumErrors    uint64
	UnknownActions    uint64
	DecodeErrors      uint64
	MalformedFrames   uint64
	LengthMismatches  uint64
	AnomalousValues   uint64
	HighRPM           uint64
	InvalidTemp       uint64
	UnknownCodes      uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update updates statistics based on a frame and its validation errors
func (s *Statistics) Update(f WireFrame, validationErrors []ValidationError) {
	s.TotalFrames++
	if f.Kind() == KindChlorinator {
		s.ChlorinatorFrames++
	} else {
		s.ControllerFrames++
	}

	if len(validationErrors) > 0 {
		for _, err := range validationErrors {
			switch err.Type {
			case AnomalyLengthMismatch:
				s.LengthMismatches++
				s.MalformedFrames++
			case AnomalyDecodeError:
				s.DecodeErrors++
				s.MalformedFrames++
			case AnomalyHighRPM:
				s.HighRPM++
				s.AnomalousValues++
			case AnomalyInvalidTemp:
				s.InvalidTemp++
				s.AnomalousValues++
			case AnomalyUnknownCode:
				s.UnknownCodes++
				s.AnomalousValues++
			case AnomalyInvalidValue:
				s.AnomalousValues++
			}
		}
	} else {
		s.ValidFrames++
	}

	s.LastUpdateTime = time.Now()
}

// Reject counts a marker match the synchronizer threw away
func (s *Statistics) Reject(r Reject) {
	switch {
	case errors.Is(r.Reason, ErrChecksum):
		s.ChecksumErrors++
	case errors.Is(r.Reason, ErrUnknownAction):
		s.UnknownActions++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.errorCount()) / elapsed
	}
}

func (s *Statistics) errorCount() uint64 {
	return s.ChecksumErrors + s.UnknownActions + s.MalformedFrames + s.AnomalousValues
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	pct := func(n uint64) float64 {
		if s.TotalFrames == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("  Controller:       %5d\n", s.ControllerFrames)
	result += fmt.Sprintf("  Chlorinator:      %5d\n", s.ChlorinatorFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, pct(s.ValidFrames))

	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d\n", s.ChecksumErrors)
	}
	if s.UnknownActions > 0 {
		result += fmt.Sprintf("Unknown Chlor:   %8d\n", s.UnknownActions)
	}
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, pct(s.MalformedFrames))
		if s.LengthMismatches > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", s.LengthMismatches)
		}
		if s.DecodeErrors > 0 {
			result += fmt.Sprintf("  Decode Errors:    %5d\n", s.DecodeErrors)
		}
	}
	if s.AnomalousValues > 0 {
		result += fmt.Sprintf("Anomalous Values:%8d (%.1f%%)\n", s.AnomalousValues, pct(s.AnomalousValues))
		if s.HighRPM > 0 {
			result += fmt.Sprintf("  High RPM (>%d): %5d\n", MaxPumpRPM, s.HighRPM)
		}
		if s.InvalidTemp > 0 {
			result += fmt.Sprintf("  Invalid Temp:     %5d\n", s.InvalidTemp)
		}
		if s.UnknownCodes > 0 {
			result += fmt.Sprintf("  Unknown Codes:    %5d\n", s.UnknownCodes)
		}
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
