// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package dma implements an STM32-style multi-stream DMA controller: 8
// independent transfer streams sharing a 4-register interrupt status/clear
// block, driven by CPU register accesses and by external peripheral request
// lines (spec §4.1).
//
// The register layout and CR bit map follow soc/nxp/i2c's hardware-instance
// shape (a struct of Base + named sub-register offsets, initialized once in
// a constructor) generalized to 8 repeated stream blocks; the field-level
// dispatch is built on the shared regbank package instead of raw
// unsafe.Pointer MMIO helpers, since this controller is emulated rather
// than driving real silicon.
package dma

import (
	"log"
	"sync"

	"github.com/buerkert/renode-infrastructure/core"
	"github.com/buerkert/renode-infrastructure/internal/line"
	"github.com/buerkert/renode-infrastructure/internal/regbank"
)

// Region is the size of the DMA controller's memory-mapped register region.
const Region = 0x400

// Shared interrupt-status/clear block offsets (spec §4.1).
const (
	RegLISR  = 0x00
	RegHISR  = 0x04
	RegLIFCR = 0x08
	RegHIFCR = 0x0C
)

// StreamBase and StreamSize lay out the 8 per-stream register blocks
// starting at 0x10, each 0x18 bytes wide.
const (
	StreamBase = 0x10
	StreamSize = 0x18

	streamRegCR   = 0x00
	streamRegNDTR = 0x04
	streamRegPAR  = 0x08
	streamRegM0AR = 0x0C
	streamRegM1AR = 0x10
	streamRegFCR  = 0x14
)

// NumStreams is the number of independent transfer streams.
const NumStreams = 8

// statusBit maps a stream index (0-3 within its half) to its bit position in
// the shared status/clear registers, per spec §3's non-contiguous mapping.
var statusBit = [4]int{5, 11, 21, 27}

// Direction enumerates the CR DIR field's 2-bit encoding.
type Direction uint32

const (
	PeripheralToMemory Direction = 0
	MemoryToPeripheral Direction = 1
	MemoryToMemory     Direction = 2
	directionReserved  Direction = 3
)

// TransferSize enumerates the CR PSIZE/MSIZE field's 2-bit encoding.
type TransferSize uint32

const (
	Size1 TransferSize = 0
	Size2 TransferSize = 1
	Size4 TransferSize = 2
	sizeReserved TransferSize = 3
)

// Bytes returns the transfer size in bytes, substituting 1 byte (with a
// logged warning) for the reserved encoding 3, per spec §4.1.
func (s TransferSize) Bytes() int {
	switch s {
	case Size1:
		return 1
	case Size2:
		return 2
	case Size4:
		return 4
	default:
		log.Printf("dma: reserved transfer size encoding treated as 1 byte")
		return 1
	}
}

// Controller is an 8-stream DMA engine.
type Controller struct {
	bus   core.Bus
	irq   core.IRQController
	clock core.Clock

	bank    *regbank.Bank
	streams [NumStreams]*Stream

	// finishedMu guards the shared finished-bit array and per-stream IRQ
	// line toggling, the controller's one cross-stream shared resource
	// (spec §5).
	finishedMu sync.Mutex
	finished   [NumStreams]bool

	// clearRegs mirrors the finished bit into the IFCR/HIFCR register word
	// itself, so a write-to-clear write has a real 1-bit to observe and
	// clear rather than acting on a field the bank never sets.
	clearRegs [NumStreams]*regbank.Register

	irqLines [NumStreams]*line.Line
	reqLines [NumStreams]*line.Line
}

// NewController builds an 8-stream DMA controller wired to the given bus,
// interrupt controller and virtual-time clock.
func NewController(bus core.Bus, irq core.IRQController, clock core.Clock) *Controller {
	c := &Controller{
		bus:   bus,
		irq:   irq,
		clock: clock,
		bank:  regbank.NewBank("dma"),
	}

	for i := range c.irqLines {
		s := i
		c.irqLines[i] = &line.Line{}
		c.reqLines[i] = &line.Line{}

		if irq != nil {
			c.irqLines[s].OnRisingEdge(func() { irq.AssertIRQ(s) })
			c.irqLines[s].OnFallingEdge(func() { irq.DeassertIRQ(s) })
		}
	}

	c.defineInterruptBlock()

	for i := 0; i < NumStreams; i++ {
		c.streams[i] = c.newStream(i)
	}

	return c
}

// IRQLine returns the outgoing, level-sensitive interrupt line for stream s.
func (c *Controller) IRQLine(s int) *line.Line {
	return c.irqLines[s]
}

// RequestLine returns the incoming peripheral request line for stream s. An
// external peripheral pulses this line to request a transfer item.
func (c *Controller) RequestLine(s int) *line.Line {
	return c.reqLines[s]
}

// Stream returns stream s (0-7) for direct inspection in tests.
func (c *Controller) Stream(s int) *Stream {
	return c.streams[s]
}

// Read32 services a bus read of the given offset.
func (c *Controller) Read32(offset uint32) uint32 {
	return c.bank.Read32(offset)
}

// Write32 services a bus write of the given offset.
func (c *Controller) Write32(offset uint32, val uint32) {
	c.bank.Write32(offset, val)
}

// Reset restores every register to its power-on value. FCR resets to 0x21,
// every other register resets to 0 (spec §4.1).
func (c *Controller) Reset() {
	c.bank.Reset()

	c.finishedMu.Lock()
	defer c.finishedMu.Unlock()

	for i := range c.finished {
		c.finished[i] = false
		c.irqLines[i].Set(false)
	}
}

func (c *Controller) defineInterruptBlock() {
	for half := 0; half < 2; half++ {
		statusOff := uint32(RegLISR)
		clearOff := uint32(RegLIFCR)
		base := 0
		if half == 1 {
			statusOff = RegHISR
			clearOff = RegHIFCR
			base = 4
		}

		var statusFields []*regbank.Field
		var clearFields []*regbank.Field

		for i := 0; i < 4; i++ {
			s := base + i
			pos := statusBit[i]

			statusFields = append(statusFields, &regbank.Field{
				Name:   streamFieldName(s),
				Pos:    pos,
				Width:  1,
				Kind:   regbank.Flag,
				Access: regbank.AccessR,
				OnRead: c.readFinishedFn(s),
			})

			clearFields = append(clearFields, &regbank.Field{
				Name:         streamFieldName(s),
				Pos:          pos,
				Width:        1,
				Kind:         regbank.Flag,
				Access:       regbank.AccessWriteToClear,
				ClearOnWrite: 1,
				OnWrite:      c.clearFinishedFn(s),
			})
		}

		c.bank.Define(statusOff, registerName("ISR", half), statusFields...)
		clearReg := c.bank.Define(clearOff, registerName("IFCR", half), clearFields...)

		for i := 0; i < 4; i++ {
			c.clearRegs[base+i] = clearReg
		}
	}
}

func (c *Controller) readFinishedFn(s int) func(uint32) uint32 {
	return func(uint32) uint32 {
		c.finishedMu.Lock()
		defer c.finishedMu.Unlock()
		if c.finished[s] {
			return 1
		}
		return 0
	}
}

// clearFinishedFn fires on every IFCR/HIFCR write-to-clear field write,
// unconditionally (OnWrite, not OnChange). It only acts on an actual 1->0
// transition: old==1 (the bit was mirrored set by setFinished) and new==0
// (this write's value matched ClearOnWrite, so Bank.Write32 actually
// cleared it). A non-matching write, or a write to an already-clear bit,
// leaves old==new and does nothing.
func (c *Controller) clearFinishedFn(s int) func(old, new uint32) {
	return func(old, new uint32) {
		if old != 1 || new != 0 {
			return
		}
		c.finishedMu.Lock()
		c.finished[s] = false
		c.finishedMu.Unlock()
		c.irqLines[s].Set(false)
	}
}

// setFinished records stream s's completion, mirrors it into the
// corresponding IFCR/HIFCR bit so a subsequent clear write has a real 1 to
// clear, and raises its IRQ line, after a synchronized tick, iff tcie is set
// (spec §4.1/§5). A line still high from an earlier, uncleared completion is
// dropped and raised again, so every completion produces a fresh edge.
func (c *Controller) setFinished(s int, tcie bool) {
	c.finishedMu.Lock()
	c.finished[s] = true
	c.finishedMu.Unlock()
	c.clearRegs[s].Set(streamFieldName(s), 1)

	if !tcie {
		return
	}

	assert := func() {
		c.irqLines[s].Set(false)
		c.irqLines[s].Set(true)
	}
	if c.clock != nil {
		c.clock.ExecuteInNearestSyncedState(assert)
	} else {
		assert()
	}
}

func streamFieldName(s int) string {
	return "FINISHED" + itoa(s)
}

func registerName(suffix string, half int) string {
	if half == 0 {
		return "L" + suffix
	}
	return "H" + suffix
}

func itoa(n int) string {
	return string(rune('0' + n))
}
