// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package can implements classic (11-bit ID) CAN frame types and the
// JSON/binary wire encoders used by the MQTT bridge, grounded on the
// tagged-variant Frame shape of gocanopen's bus.Frame (ID/DLC/Data/Flags)
// adapted to a Data/Remote/Error variant with optional bridging metadata.
package can

import "fmt"

// Kind is the tag of a CAN frame's variant.
type Kind int

const (
	Data Kind = iota
	Remote
	Error
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Remote:
		return "remote"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// MaxPayload is the largest payload a classic (non-FD) CAN data frame may
// carry.
const MaxPayload = 8

// MaxCobID is the largest legal 11-bit CAN identifier.
const MaxCobID = 0x7FF

// Frame is a classic CAN message, optionally carrying bridge-only metadata
// (PubID/PubCnt/TimeStamp) used to recognize a bridge's own publications and
// to timestamp/sequence outbound traffic (spec §3/§4.3).
type Frame struct {
	Kind    Kind
	CobID   uint16
	Payload []byte

	PubID     *uint32
	PubCnt    *uint32
	TimeStamp *uint64 // microseconds since Unix epoch
}

// NewDataFrame builds a validated Data frame.
func NewDataFrame(cobID uint16, payload []byte) (Frame, error) {
	f := Frame{Kind: Data, CobID: cobID, Payload: payload}
	return f, f.Validate()
}

// NewRemoteFrame builds a validated Remote frame.
func NewRemoteFrame(cobID uint16) (Frame, error) {
	f := Frame{Kind: Remote, CobID: cobID}
	return f, f.Validate()
}

// NewErrorFrame builds an Error frame, which carries neither a cobId nor a
// payload.
func NewErrorFrame() Frame {
	return Frame{Kind: Error}
}

// Validate checks the invariants of spec §3: cobId <= 0x7FF, payload length
// <= 8, Error frames carry no cobId/payload, Remote frames carry no payload.
func (f Frame) Validate() error {
	if f.CobID > MaxCobID {
		return fmt.Errorf("can: cobId %#x exceeds 11-bit range", f.CobID)
	}
	if len(f.Payload) > MaxPayload {
		return fmt.Errorf("can: payload length %d exceeds %d bytes", len(f.Payload), MaxPayload)
	}

	switch f.Kind {
	case Error:
		if f.CobID != 0 || len(f.Payload) != 0 {
			return fmt.Errorf("can: error frame must not carry cobId or payload")
		}
	case Remote:
		if len(f.Payload) != 0 {
			return fmt.Errorf("can: remote frame must not carry a payload")
		}
	case Data:
		// no further constraint beyond the general ones above
	default:
		return fmt.Errorf("can: unknown frame kind %d", f.Kind)
	}

	return nil
}

// Equal reports whether two frames carry the same wire-relevant content,
// ignoring nothing — used by the encoder round-trip tests in spec §8.
func (f Frame) Equal(other Frame) bool {
	if f.Kind != other.Kind || f.CobID != other.CobID {
		return false
	}
	if len(f.Payload) != len(other.Payload) {
		return false
	}
	for i := range f.Payload {
		if f.Payload[i] != other.Payload[i] {
			return false
		}
	}
	return optEqual(f.PubID, other.PubID) &&
		optEqual(f.PubCnt, other.PubCnt) &&
		optEqual(f.TimeStamp, other.TimeStamp)
}

func optEqual[T comparable](a, b *T) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}
