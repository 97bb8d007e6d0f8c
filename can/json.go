// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package can

import (
	"encoding/json"
	"fmt"
)

// JSONEncoder implements Encoder as UTF-8 JSON objects. Fields selects which
// of the three optional metadata fields SupportsOptionalField reports, and
// so which ones the bridge attaches to outbound frames; the zero value
// reports none. Encode and Decode themselves carry whichever optional
// fields a frame holds, regardless of Fields.
type JSONEncoder struct {
	Fields OptionalField
}

var _ Encoder = JSONEncoder{}

// wireFrame is the JSON-visible shape of a Frame. Data is decoded as plain
// integers (not Go's default base64-string []byte encoding) so that
// out-of-range byte values can be rejected explicitly.
type wireFrame struct {
	Type   string  `json:"type"`
	CobID  *uint16 `json:"cobId,omitempty"`
	Data   []int   `json:"data,omitempty"`
	PubID  *uint32 `json:"pubId,omitempty"`
	PubCnt *uint32 `json:"pubCnt,omitempty"`
	TS     *uint64 `json:"ts,omitempty"`
}

func (e JSONEncoder) SupportsOptionalField(field OptionalField) bool {
	return e.Fields&field != 0
}

// Encode renders f as a JSON object per spec §4.3.
func (JSONEncoder) Encode(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	w := wireFrame{Type: f.Kind.String(), PubID: f.PubID, PubCnt: f.PubCnt, TS: f.TimeStamp}

	switch f.Kind {
	case Data:
		cobID := f.CobID
		w.CobID = &cobID
		w.Data = make([]int, len(f.Payload))
		for i, b := range f.Payload {
			w.Data[i] = int(b)
		}
	case Remote:
		cobID := f.CobID
		w.CobID = &cobID
	case Error:
		// no cobId, no data
	}

	return json.Marshal(w)
}

// Decode parses a JSON object into a Frame, rejecting any `type` outside
// {"data","remote","error"} and any `data` value outside 0..255.
func (JSONEncoder) Decode(b []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(b, &w); err != nil {
		return Frame{}, fmt.Errorf("can/json: %w", err)
	}

	f := Frame{PubID: w.PubID, PubCnt: w.PubCnt, TimeStamp: w.TS}

	switch w.Type {
	case "data":
		f.Kind = Data
	case "remote":
		f.Kind = Remote
	case "error":
		f.Kind = Error
	default:
		return Frame{}, fmt.Errorf("can/json: unknown frame type %q", w.Type)
	}

	if w.CobID != nil {
		f.CobID = *w.CobID
	}

	if w.Data != nil {
		payload := make([]byte, len(w.Data))
		for i, v := range w.Data {
			if v < 0 || v > 0xff {
				return Frame{}, fmt.Errorf("can/json: data byte %d out of range: %d", i, v)
			}
			payload[i] = byte(v)
		}
		f.Payload = payload
	}

	return f, f.Validate()
}
