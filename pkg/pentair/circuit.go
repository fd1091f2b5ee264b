// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import "fmt"

// Circuit is a circuit's name and function (action 0x0B).
type Circuit struct {
	ID       int
	Function CircuitFunction
	NameCode CircuitName
}

// Name implements Record
func (*Circuit) Name() string { return "circuit" }
func (*Circuit) isRecord()    {}

// DecodeCircuit decodes [circuit, function, name]. Unknown name or function
// codes are kept; their String() is "unrecognized".
func DecodeCircuit(p []byte) (*Circuit, error) {
	if len(p) < 3 {
		return nil, fmt.Errorf("%w: circuit wants at least 3 bytes, got %d", ErrPayloadLength, len(p))
	}
	id := int(p[0])
	if id < 1 || id > NumCircuits {
		return nil, fmt.Errorf("%w: circuit %d", ErrOutOfRange, id)
	}
	return &Circuit{
		ID:       id,
		Function: CircuitFunction(p[1]),
		NameCode: CircuitName(p[2]),
	}, nil
}

// Group returns the circuit's fixed group identifier, e.g. "aux3".
func (c *Circuit) Group() string {
	g, _ := CircuitGroup(c.ID)
	return g
}

func (c *Circuit) String() string {
	return fmt.Sprintf("circuit %d (%s): %s, %s", c.ID, c.Group(), c.NameCode, c.Function)
}
