// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "fmt"

// Record is a decoded frame payload. The set of implementations is closed;
// switch on the concrete type to consume one.
type Record interface {
	Name() string
	isRecord()
}

// Ack is a one byte acknowledgment; Action echoes the acknowledged request.
type Ack struct {
	Action uint8
}

// Name implements Record
func (*Ack) Name() string { return "ack" }
func (*Ack) isRecord()    {}

// Unrecognized carries a frame that has no codec, or whose payload failed to
// decode. The raw frame stays available for logging.
type Unrecognized struct {
	Frame WireFrame
}

// Name implements Record
func (Unrecognized) Name() string { return "unrecognized" }
func (Unrecognized) isRecord()    {}

func (u Unrecognized) String() string {
	return fmt.Sprintf("unrecognized %s action 0x%02X: % X", u.Frame.Kind(), u.Frame.Action(), u.Frame.Payload())
}

// Decode selects a codec by sender type and action and decodes the payload.
//
// Frames without a codec return Unrecognized and a nil error. A known action
// with a malformed payload returns Unrecognized together with the decode
// error.
func Decode(f WireFrame) (Record, error) {
	switch v := f.(type) {
	case *Frame:
		return decodeController(v)
	case *ChlorinatorFrame:
		return decodeChlorinator(v)
	default:
		return Unrecognized{Frame: f}, nil
	}
}

func decodeController(f *Frame) (Record, error) {
	var (
		rec Record
		err error
	)

	p := f.payload
	switch DeviceTypeOf(f.source) {
	case DeviceTypePump:
		switch f.action {
		case ActionPumpStatus:
			rec, err = DecodePumpStatus(p)
		case ActionPumpCommand, ActionPumpRemote, ActionPumpMode, ActionPumpRun:
			rec = &PumpReply{Action: f.action, Data: f.Payload()}
		}
	case DeviceTypeIntelliChem:
		if f.action == ActionIntelliChem {
			rec, err = DecodeIntelliChemStatus(p)
		}
	default:
		switch f.action {
		case ActionAck:
			rec, err = decodeAck(p)
		case ActionStatus:
			rec, err = DecodeControllerStatus(p)
		case ActionClock:
			rec, err = DecodeClockTime(p)
		case ActionHeatStatus:
			rec, err = DecodeHeatStatus(p)
		case ActionCircuitName:
			rec, err = DecodeCircuit(p)
		case ActionSchedule:
			rec, err = DecodeSchedule(p)
		case ActionIntelliChem:
			rec, err = DecodeIntelliChemStatus(p)
		case ActionSoftwareVersion:
			rec, err = DecodeSoftwareVersion(p)
		}
	}

	if err != nil {
		return Unrecognized{Frame: f}, fmt.Errorf("action 0x%02X from 0x%02X: %w", f.action, f.source, err)
	}
	if rec == nil {
		return Unrecognized{Frame: f}, nil
	}
	return rec, nil
}

func decodeChlorinator(f *ChlorinatorFrame) (Record, error) {
	var (
		rec Record
		err error
	)

	p := f.payload
	switch f.action {
	case ChlorActionVersion:
		rec, err = DecodeChlorinatorVersion(p)
	case ChlorActionSetOutput:
		rec, err = DecodeChlorinatorSaltOutput(p)
	case ChlorActionStatus:
		rec, err = DecodeChlorinatorStatus(p)
	case ChlorActionPresence, ChlorActionQuery:
		rec = &ChlorinatorPresence{Action: f.action, Value: p[0]}
	}

	if err != nil {
		return Unrecognized{Frame: f}, fmt.Errorf("chlorinator action 0x%02X: %w", f.action, err)
	}
	if rec == nil {
		return Unrecognized{Frame: f}, nil
	}
	return rec, nil
}

func decodeAck(p []byte) (*Ack, error) {
	if len(p) < 1 {
		return nil, fmt.Errorf("%w: ack wants at least 1 byte", ErrPayloadLength)
	}
	return &Ack{Action: p[0]}, nil
}

func checkLength(what string, p []byte, want int) error {
	if len(p) != want {
		return fmt.Errorf("%w: %s wants %d bytes, got %d", ErrPayloadLength, what, want, len(p))
	}
	return nil
}

func be16(hi, lo byte) int {
	return int(hi)<<8 | int(lo)
}
