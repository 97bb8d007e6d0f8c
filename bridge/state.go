// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package bridge

import "sync/atomic"

// ConnState is the bridge's connection state machine (spec §4.3 "State
// machine (connection)"). autopaho.ConnectionManager owns the actual
// connect/retry/reconnect loop; ConnState is this package's own
// externally-observable projection of it, advanced from the
// OnConnectionUp/OnConnectError/OnServerDisconnect callbacks.
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Connected
	Subscribed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Subscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// connState is an atomically-updated ConnState, read by State() without
// taking any lock shared with the register/bus-facing packages (this
// package has none; it exists purely to make the bridge's state observable
// from tests and diagnostics).
type connState struct {
	v atomic.Int32
}

func (c *connState) set(s ConnState) {
	c.v.Store(int32(s))
}

func (c *connState) get() ConnState {
	return ConnState(c.v.Load())
}
