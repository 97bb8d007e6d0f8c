// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package can

// OptionalField identifies one of the bridge-only metadata fields a Frame
// may carry. Encoders advertise which subset they can carry via
// SupportsOptionalField, so the bridge only populates fields its configured
// encoder can actually transmit.
type OptionalField int

const (
	PubID OptionalField = 1 << iota
	PubCnt
	TimeStamp
)

// Encoder turns Frames into wire bytes and back. Two concrete encoders are
// provided: JSON (json.go) and a compact binary form
// (binary.go), per spec §4.3.
type Encoder interface {
	Encode(f Frame) ([]byte, error)
	Decode(b []byte) (Frame, error)
	// SupportsOptionalField reports whether this encoder's wire format can
	// carry the given optional field.
	SupportsOptionalField(field OptionalField) bool
}
