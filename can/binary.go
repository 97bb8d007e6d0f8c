// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package can

import (
	"encoding/binary"
	"fmt"
)

// Binary magic byte and type tags (spec §4.3, §9 — byte-exact, load-bearing).
const (
	binaryMagic = 0x42

	binaryTypeData   = 0
	binaryTypeRemote = 1
	binaryTypeError  = 2
)

// BinaryEncoder implements Encoder as the compact 12-byte-max record of
// spec §4.3. It carries none of the optional metadata fields.
type BinaryEncoder struct{}

var _ Encoder = BinaryEncoder{}

func (BinaryEncoder) SupportsOptionalField(OptionalField) bool {
	return false
}

// Encode renders f as the binary record: byte 0 magic, byte 1
// (type:2 low bits | length:6 high bits), bytes 2-3 big-endian cobId (error
// frames omit cobId and payload entirely), bytes 4.. payload (data only).
func (BinaryEncoder) Encode(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if f.PubID != nil || f.PubCnt != nil || f.TimeStamp != nil {
		return nil, fmt.Errorf("can/binary: optional fields are not supported")
	}

	switch f.Kind {
	case Error:
		return []byte{binaryMagic, binaryTypeError}, nil
	case Remote:
		b := make([]byte, 4)
		b[0] = binaryMagic
		b[1] = byte(binaryTypeRemote)
		binary.BigEndian.PutUint16(b[2:4], f.CobID)
		return b, nil
	case Data:
		length := len(f.Payload)
		b := make([]byte, 4+length)
		b[0] = binaryMagic
		b[1] = byte(binaryTypeData) | byte(length<<2)
		binary.BigEndian.PutUint16(b[2:4], f.CobID)
		copy(b[4:], f.Payload)
		return b, nil
	default:
		return nil, fmt.Errorf("can/binary: unknown frame kind %d", f.Kind)
	}
}

// Decode parses a binary record into a Frame, enforcing the exact lengths
// spec §4.3 mandates per frame type.
func (BinaryEncoder) Decode(b []byte) (Frame, error) {
	if len(b) < 2 {
		return Frame{}, fmt.Errorf("can/binary: record too short")
	}
	if b[0] != binaryMagic {
		return Frame{}, fmt.Errorf("can/binary: bad magic byte %#x", b[0])
	}

	typ := b[1] & 0x3
	length := int(b[1] >> 2)

	switch typ {
	case binaryTypeError:
		if len(b) != 2 {
			return Frame{}, fmt.Errorf("can/binary: error record must be exactly 2 bytes")
		}
		return NewErrorFrame(), nil

	case binaryTypeRemote:
		if len(b) != 4 {
			return Frame{}, fmt.Errorf("can/binary: remote record must be exactly 4 bytes")
		}
		if length != 0 {
			return Frame{}, fmt.Errorf("can/binary: remote record must encode length 0")
		}
		cobID := binary.BigEndian.Uint16(b[2:4])
		return NewRemoteFrame(cobID)

	case binaryTypeData:
		if len(b) != 4+length {
			return Frame{}, fmt.Errorf("can/binary: data record length mismatch: got %d want %d", len(b), 4+length)
		}
		cobID := binary.BigEndian.Uint16(b[2:4])
		payload := make([]byte, length)
		copy(payload, b[4:])
		return NewDataFrame(cobID, payload)

	default:
		return Frame{}, fmt.Errorf("can/binary: unknown type tag %d", typ)
	}
}
