// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i2c

import "fmt"

// ChildDevice is an I2C slave peripheral addressable by the controller
// (spec §6 "Child-device interface (I2C slave)"). Write delivers one
// committed batch from a master-mode write transaction; Read is pulled
// eagerly on entry to ReceivingData and again whenever the receive queue
// drains; FinishTransmission marks the end of the current transaction
// (STOP or repeated START).
type ChildDevice interface {
	Write(data []byte)
	Read() []byte
	FinishTransmission()
}

// MaxChildAddress is the highest legal 7-bit I2C address (no 10-bit
// addressing, per the non-goals).
const MaxChildAddress = 0x7F

// RegisterChild binds dev at the given 7-bit address. Registering an
// out-of-range or already-occupied address is a configuration error and
// panics at construction time, the natural extension of the controller's
// own fail-fast Init pattern to its child registry.
func (c *Controller) RegisterChild(addr uint8, dev ChildDevice) {
	c.Lock()
	defer c.Unlock()

	if addr > MaxChildAddress {
		panic(fmt.Sprintf("i2c: child address %#x exceeds 7-bit range", addr))
	}
	if _, exists := c.children[addr]; exists {
		panic(fmt.Sprintf("i2c: duplicate child registration at address %#x", addr))
	}

	c.children[addr] = dev
}
