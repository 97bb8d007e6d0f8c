// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package i2c implements a register-mapped, master-mode STM32F4-style I2C
// controller whose software-visible state is driven entirely by the bus
// writes and reads a CPU makes into it: start/stop/data-register writes,
// and the mandatory SR1-then-SR2 status read order that the real hardware
// contract requires to clear the address phase.
//
// The register/constant shape follows soc/nxp/i2c.I2C (a hardware-instance
// struct holding Base plus named sub-register offsets, built once in a
// constructor that panics on misconfiguration) with the control direction
// inverted: that driver issues bus cycles to a real device, this one is the
// device side, its registers backed by the shared regbank plane instead of
// soc/nxp/i2c's unsafe.Pointer MMIO.
package i2c

import (
	"log"
	"sync"

	"github.com/buerkert/renode-infrastructure/core"
	"github.com/buerkert/renode-infrastructure/internal/line"
	"github.com/buerkert/renode-infrastructure/internal/regbank"
)

// Region is the size of the I2C controller's memory-mapped register region.
const Region = 0x400

// Register offsets.
const (
	RegCR1 = 0x00
	RegCR2 = 0x04
	RegDR  = 0x08
	RegSR1 = 0x0C
	RegSR2 = 0x10
)

// CR1 bit positions.
const (
	cr1START = 8
	cr1STOP  = 9
	cr1ACK   = 10
	cr1SWRST = 15
)

// CR2 bit positions.
const (
	cr2ITERREN = 8
	cr2ITEVTEN = 9
	cr2ITBUFEN = 10
	cr2DMAEN   = 11
	cr2LAST    = 12
)

// SR1/SR2 bit positions.
const (
	sr1SB   = 0
	sr1ADDR = 1
	sr1BTF  = 2
	sr1AF   = 4
	sr1RxNE = 6
	sr1TxE  = 7

	sr2MSL = 0
	sr2BUSY = 1
	sr2TRA  = 2
)

// eventLine and errorLine index the outgoing interrupt lines on the shared
// core.IRQController owned by this controller instance.
const (
	eventLine = 0
	errorLine = 1
)

// Controller is an STM32F4-style master I2C engine.
type Controller struct {
	sync.Mutex

	irq   core.IRQController
	clock core.Clock

	bank *regbank.Bank
	cr1  *regbank.Register
	cr2  *regbank.Register
	dr   *regbank.Register
	sr1  *regbank.Register
	sr2  *regbank.Register

	state State

	children map[uint8]ChildDevice
	selected ChildDevice
	rw       bool // true = read from slave, false = write to slave

	txQueue []byte
	rxQueue []byte

	eventIRQ *line.Line
	errorIRQ *line.Line
	dmaTx    *line.Line
	dmaRx    *line.Line
}

// NewController builds an I2C controller wired to the given interrupt
// controller and virtual-time clock.
func NewController(irq core.IRQController, clock core.Clock) *Controller {
	c := &Controller{
		irq:      irq,
		clock:    clock,
		bank:     regbank.NewBank("i2c"),
		children: make(map[uint8]ChildDevice),
		eventIRQ: &line.Line{},
		errorIRQ: &line.Line{},
		dmaTx:    &line.Line{},
		dmaRx:    &line.Line{},
	}

	if irq != nil {
		c.eventIRQ.OnRisingEdge(func() { c.sync(func() { irq.AssertIRQ(eventLine) }) })
		c.eventIRQ.OnFallingEdge(func() { irq.DeassertIRQ(eventLine) })
		c.errorIRQ.OnRisingEdge(func() { c.sync(func() { irq.AssertIRQ(errorLine) }) })
		c.errorIRQ.OnFallingEdge(func() { irq.DeassertIRQ(errorLine) })
	}

	c.defineRegisters()

	return c
}

// sync runs fn at the next virtual-time synchronization point, avoiding
// re-entrant interrupt delivery during the register access that caused it
// (spec §5), falling back to a direct call when no clock is wired.
func (c *Controller) sync(fn func()) {
	if c.clock != nil {
		c.clock.ExecuteInNearestSyncedState(fn)
		return
	}
	fn()
}

// EventIRQLine is the event-interrupt output (SB/ADDR/BTF/buffer conditions).
func (c *Controller) EventIRQLine() *line.Line { return c.eventIRQ }

// ErrorIRQLine is the error-interrupt output (AF).
func (c *Controller) ErrorIRQLine() *line.Line { return c.errorIRQ }

// DMATransmitLine is asserted while a DMA-driven transmit byte is wanted.
func (c *Controller) DMATransmitLine() *line.Line { return c.dmaTx }

// DMAReceiveLine is asserted while a DMA-driven receive byte is available.
func (c *Controller) DMAReceiveLine() *line.Line { return c.dmaRx }

// Read32 services a bus word read of the given offset.
func (c *Controller) Read32(offset uint32) uint32 {
	c.Lock()
	defer c.Unlock()
	return c.bank.Read32(offset)
}

// Write32 services a bus word write of the given offset.
func (c *Controller) Write32(offset uint32, val uint32) {
	c.Lock()
	defer c.Unlock()
	c.bank.Write32(offset, val)
}

// ReadByte projects a byte out of the word at its 4-byte-aligned base,
// never triggering the word's side effects more than once per real access
// (spec §4.2 "Byte-access translation").
func (c *Controller) ReadByte(offset uint32) uint8 {
	base := offset &^ 3
	shift := (offset % 4) * 8
	word := c.Read32(base)
	return uint8(word >> shift)
}

// WriteByte accepts a byte write only at a 4-byte-aligned offset; any other
// offset is rejected and logged, preventing the data register from being
// read as a side effect of an unaligned byte write.
func (c *Controller) WriteByte(offset uint32, val uint8) {
	if offset%4 != 0 {
		log.Printf("i2c: byte write to unaligned offset %#x ignored", offset)
		return
	}
	c.Write32(offset, uint32(val))
}

// Reset restores every register and the state machine to power-on values.
func (c *Controller) Reset() {
	c.Lock()
	defer c.Unlock()
	c.fullResetLocked()
}
