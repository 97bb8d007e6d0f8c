// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package bridge implements the MQTT v5 <-> CAN bridge: it encodes CAN
// frames received from the emulated bus, publishes them per channel/cobId,
// subscribes non-locally to the rest of the channel's traffic, and decodes
// inbound messages back onto the bus, reconnecting on broker loss.
//
// The connect/retry/re-subscribe state machine is delegated to
// autopaho.ConnectionManager rather than hand-rolled, since it already
// implements exactly the "retry after 5s, resubscribe on reconnect" contract
// this bridge needs.
package bridge

import (
	"fmt"
	"net/url"

	"github.com/buerkert/renode-infrastructure/can"
)

// Format selects the wire encoder.
type Format int

const (
	JSON Format = iota
	Binary
)

func (f Format) String() string {
	switch f {
	case JSON:
		return "json"
	case Binary:
		return "binary"
	default:
		return "unknown"
	}
}

// Config is the bridge's configuration surface (spec §6). Validated fatally
// at construction, following soc/nxp/i2c's pattern of plain exported struct
// fields checked once inside a constructor rather than a dedicated
// config-file parser.
type Config struct {
	// BrokerURI is the MQTT broker endpoint, e.g. "mqtt://localhost:1883".
	BrokerURI string
	// Channel appears in the topic scheme bus/can/{channel}/{cobId}.
	Channel uint8
	// Format selects JSON or Binary encoding.
	Format Format
	// OptionalFields selects which bridge metadata the JSON encoder
	// attaches to outbound frames. Any bit set together with Binary is a
	// configuration error (the binary wire format has no room for it).
	OptionalFields can.OptionalField
	// ClientID, if empty, is generated from the channel and a random
	// suffix.
	ClientID string
}

func (cfg Config) validate() (*url.URL, can.Encoder, error) {
	if cfg.BrokerURI == "" {
		return nil, nil, fmt.Errorf("bridge: broker URI must not be empty")
	}

	u, err := url.Parse(cfg.BrokerURI)
	if err != nil {
		return nil, nil, fmt.Errorf("bridge: invalid broker URI %q: %w", cfg.BrokerURI, err)
	}
	if u.Host == "" {
		return nil, nil, fmt.Errorf("bridge: broker URI %q has no host", cfg.BrokerURI)
	}

	var enc can.Encoder

	switch cfg.Format {
	case JSON:
		enc = can.JSONEncoder{Fields: cfg.OptionalFields}
	case Binary:
		if cfg.OptionalFields != 0 {
			return nil, nil, fmt.Errorf("bridge: optional fields %d set with binary format, which supports none", cfg.OptionalFields)
		}
		enc = can.BinaryEncoder{}
	default:
		return nil, nil, fmt.Errorf("bridge: unknown encoder format %d", cfg.Format)
	}

	return u, enc, nil
}
