// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package can

import (
	"bytes"
	"testing"
)

func TestBinaryRoundTrip(t *testing.T) {
	enc := BinaryEncoder{}

	cases := []Frame{
		{Kind: Data, CobID: 0x123, Payload: []byte{1, 2, 3}},
		{Kind: Data, CobID: 0, Payload: nil},
		{Kind: Remote, CobID: 0x7FF},
		{Kind: Error},
	}

	for _, f := range cases {
		b, err := enc.Encode(f)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", f, err)
		}

		got, err := enc.Decode(b)
		if err != nil {
			t.Fatalf("Decode(% x): %v", b, err)
		}

		if f.Kind == Error {
			if got.Kind != Error {
				t.Fatalf("decoded kind = %v, want Error", got.Kind)
			}
			continue
		}
		if !f.Equal(got) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
		}
	}
}

func TestBinaryExactBytes(t *testing.T) {
	enc := BinaryEncoder{}

	f, _ := NewDataFrame(0x123, []byte{0xAA, 0xBB})
	b, err := enc.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// magic=0x42, byte1 = type(0) | length(2)<<2 = 0x08, cobId=0x0123 BE, payload
	want := []byte{0x42, 0x08, 0x01, 0x23, 0xAA, 0xBB}
	if !bytes.Equal(b, want) {
		t.Fatalf("Encode() = % x, want % x", b, want)
	}
}

func TestBinaryRejectsOptionalFields(t *testing.T) {
	enc := BinaryEncoder{}
	pubID := uint32(1)
	f := Frame{Kind: Error, PubID: &pubID}

	if _, err := enc.Encode(f); err == nil {
		t.Fatalf("expected error when optional field set on binary encode")
	}
	for _, o := range []OptionalField{PubID, PubCnt, TimeStamp} {
		if enc.SupportsOptionalField(o) {
			t.Fatalf("binary encoder must not support optional field %d", o)
		}
	}
}

func TestBinaryDecodeLengthMismatches(t *testing.T) {
	enc := BinaryEncoder{}

	cases := [][]byte{
		{0x42, 0x02, 0x00}, // error record must be exactly 2 bytes
		{0x42, 0x01, 0x00}, // remote record must be exactly 4 bytes
		{0x42, 0x08, 0x00, 0x01, 0xAA}, // data record says length 2 but only 1 payload byte
		{0x43, 0x02}, // bad magic
	}

	for _, b := range cases {
		if _, err := enc.Decode(b); err == nil {
			t.Fatalf("expected decode error for % x", b)
		}
	}
}
