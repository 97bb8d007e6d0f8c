// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package can

import "testing"

func TestJSONRoundTrip(t *testing.T) {
	enc := JSONEncoder{}

	pubID := uint32(42)
	pubCnt := uint32(7)
	ts := uint64(1700000000000000)

	cases := []Frame{
		{Kind: Data, CobID: 0x123, Payload: []byte{1, 2, 3}, PubID: &pubID, PubCnt: &pubCnt, TimeStamp: &ts},
		{Kind: Remote, CobID: 0x10},
		{Kind: Error},
	}

	for _, f := range cases {
		b, err := enc.Encode(f)
		if err != nil {
			t.Fatalf("Encode(%v): %v", f, err)
		}

		got, err := enc.Decode(b)
		if err != nil {
			t.Fatalf("Decode(%s): %v", b, err)
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

func TestJSONDecodeRejectsBadData(t *testing.T) {
	enc := JSONEncoder{}

	if _, err := enc.Decode([]byte(`{"type":"data","cobId":1,"data":[1,2,300]}`)); err == nil {
		t.Fatalf("expected error for out-of-range data byte")
	}
	if _, err := enc.Decode([]byte(`{"type":"bogus"}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestJSONSupportsOnlyItsConfiguredFields(t *testing.T) {
	enc := JSONEncoder{Fields: PubID | TimeStamp}

	if !enc.SupportsOptionalField(PubID) {
		t.Error("expected PubID to be supported, it is configured")
	}
	if !enc.SupportsOptionalField(TimeStamp) {
		t.Error("expected TimeStamp to be supported, it is configured")
	}
	if enc.SupportsOptionalField(PubCnt) {
		t.Error("expected PubCnt to be unsupported, it is not configured")
	}
}

func TestJSONZeroValueSupportsNoOptionalFields(t *testing.T) {
	enc := JSONEncoder{}
	for _, f := range []OptionalField{PubID, PubCnt, TimeStamp} {
		if enc.SupportsOptionalField(f) {
			t.Fatalf("zero-value JSON encoder should support no optional fields, got field %d supported", f)
		}
	}
}
