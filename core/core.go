// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package core defines the narrow interfaces this module expects from its
// external collaborators (spec §1): the bus fabric, the interrupt
// controller, the virtual-time source and the CAN peripheral host. These are
// deliberately out of scope for this repository; the peripherals here are
// built and tested against the small surface they actually touch.
package core

import "github.com/buerkert/renode-infrastructure/can"

// Bus is the memory/peripheral bus fabric: word-addressed read/write plus a
// bulk copy primitive used by the DMA controller to move data between
// peripheral and memory addresses without staging it through Go slices.
type Bus interface {
	// ReadMemory reads size bytes (1, 2 or 4) from addr.
	ReadMemory(addr uint32, size int) uint32
	// WriteMemory writes the low size bytes (1, 2 or 4) of val to addr.
	WriteMemory(addr uint32, size int, val uint32)
	// CopyMemory moves n bytes from src to dst, one size-sized item at a
	// time, optionally advancing src/dst by size between items.
	CopyMemory(dst, src uint32, n int, size int, incDst, incSrc bool)
}

// IRQController accepts edge-triggered interrupt lines from peripherals.
type IRQController interface {
	AssertIRQ(line int)
	DeassertIRQ(line int)
}

// Clock is the virtual-time tick scheduler. ExecuteInNearestSyncedState
// defers fn to the next virtual-time synchronization point, used to avoid
// delivering an interrupt re-entrantly during the bus write that caused it
// (spec §5).
type Clock interface {
	ExecuteInNearestSyncedState(fn func())
}

// CANHost is the emulated CAN peripheral the bridge exchanges frames with:
// DeliverFrame hands it frames received from the MQTT side. Frames going
// the other way do not pass through this interface; the host calls the
// bridge's OnFrameReceived hook with them.
type CANHost interface {
	// DeliverFrame injects a frame received over MQTT onto the emulated
	// CAN bus.
	DeliverFrame(frame can.Frame)
}
