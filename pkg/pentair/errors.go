// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "errors"

var (
	ErrShortFrame          = errors.New("short frame")
	ErrMarker              = errors.New("invalid start marker")
	ErrChecksum            = errors.New("checksum mismatch")
	ErrPayloadLength       = errors.New("unexpected payload length")
	ErrUnknownAction       = errors.New("unknown action")
	ErrOutOfRange          = errors.New("value out of range")
	ErrUnknownScheduleType = errors.New("unknown schedule type")
)
