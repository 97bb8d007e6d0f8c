// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import (
	"log"

	"github.com/buerkert/renode-infrastructure/internal/regbank"
)

// CR bit positions (spec §4.1).
const (
	crEN    = 0
	crTCIE  = 4
	crDIR   = 6
	crCIRC  = 8
	crPINC  = 9
	crMINC  = 10
	crPSIZE = 11
	crMSIZE = 13
)

// Stream is one of the controller's 8 independent transfer contexts.
type Stream struct {
	index int
	ctrl  *Controller

	cr   *regbank.Register
	ndtr *regbank.Register
	par  *regbank.Register
	m0ar *regbank.Register
	m1ar *regbank.Register
	fcr  *regbank.Register

	// latch is the NDT snapshot taken at the rising edge of EN, restored
	// into NDT on circular wrap (spec §3/§4.1).
	latch uint16
}

func (c *Controller) newStream(index int) *Stream {
	s := &Stream{index: index, ctrl: c}
	base := uint32(StreamBase + index*StreamSize)

	s.cr = c.bank.Define(base+streamRegCR, "CR",
		&regbank.Field{Name: "EN", Pos: crEN, Width: 1, Kind: regbank.Flag, Access: regbank.AccessRW, OnWrite: s.onEN},
		&regbank.Field{Name: "TCIE", Pos: crTCIE, Width: 1, Kind: regbank.Flag, Access: regbank.AccessRW},
		&regbank.Field{Name: "DIR", Pos: crDIR, Width: 2, Kind: regbank.Enum, Access: regbank.AccessRW},
		&regbank.Field{Name: "CIRC", Pos: crCIRC, Width: 1, Kind: regbank.Flag, Access: regbank.AccessRW},
		&regbank.Field{Name: "PINC", Pos: crPINC, Width: 1, Kind: regbank.Flag, Access: regbank.AccessRW},
		&regbank.Field{Name: "MINC", Pos: crMINC, Width: 1, Kind: regbank.Flag, Access: regbank.AccessRW},
		&regbank.Field{Name: "PSIZE", Pos: crPSIZE, Width: 2, Kind: regbank.Enum, Access: regbank.AccessRW},
		&regbank.Field{Name: "MSIZE", Pos: crMSIZE, Width: 2, Kind: regbank.Enum, Access: regbank.AccessRW},
	)

	s.ndtr = c.bank.Define(base+streamRegNDTR, "NDTR",
		&regbank.Field{Name: "NDT", Pos: 0, Width: 16, Kind: regbank.Value, Access: regbank.AccessRW, WriteGuard: s.writableWhileDisabled("NDTR")},
	)

	s.par = c.bank.Define(base+streamRegPAR, "PAR",
		&regbank.Field{Name: "ADDR", Pos: 0, Width: 32, Kind: regbank.Value, Access: regbank.AccessRW, WriteGuard: s.writableWhileDisabled("PAR")},
	)

	s.m0ar = c.bank.Define(base+streamRegM0AR, "M0AR",
		&regbank.Field{Name: "ADDR", Pos: 0, Width: 32, Kind: regbank.Value, Access: regbank.AccessRW, WriteGuard: s.writableWhileDisabled("M0AR")},
	)

	s.m1ar = c.bank.Define(base+streamRegM1AR, "M1AR",
		&regbank.Field{Name: "ADDR", Pos: 0, Width: 32, Kind: regbank.Value, Access: regbank.AccessRW, WriteGuard: s.writableWhileDisabled("M1AR")},
	)

	s.fcr = c.bank.Define(base+streamRegFCR, "FCR",
		&regbank.Field{Name: "FCR", Pos: 0, Width: 32, Kind: regbank.Value, Access: regbank.AccessRW, ResetValue: 0x21},
	)

	c.reqLines[index].OnRisingEdge(s.onRequestPulse)

	return s
}

// writableWhileDisabled implements the open question resolved in spec §9:
// NDTR/PAR/M0AR/M1AR writes while EN=1 are ignored and logged.
func (s *Stream) writableWhileDisabled(reg string) func() bool {
	return func() bool {
		if s.cr.Get("EN") == 1 {
			log.Printf("dma: stream %d write to %s ignored while enabled", s.index, reg)
			return false
		}
		return true
	}
}

func (s *Stream) direction() Direction {
	return Direction(s.cr.Get("DIR"))
}

func (s *Stream) peripheralSize() int {
	return TransferSize(s.cr.Get("PSIZE")).Bytes()
}

func (s *Stream) memorySize() int {
	return TransferSize(s.cr.Get("MSIZE")).Bytes()
}

// NDT returns the current number-of-data-to-transfer value.
func (s *Stream) NDT() uint16 {
	return uint16(s.ndtr.Get("NDT"))
}

// Latch returns the latched NDT snapshot taken at the last EN rising edge.
func (s *Stream) Latch() uint16 {
	return s.latch
}

// Enabled reports the stream's current EN bit.
func (s *Stream) Enabled() bool {
	return s.cr.Get("EN") == 1
}

// Finished reports the stream's shared-register finished bit.
func (s *Stream) Finished() bool {
	s.ctrl.finishedMu.Lock()
	defer s.ctrl.finishedMu.Unlock()
	return s.ctrl.finished[s.index]
}

// onEN handles writes to the CR EN bit: the rising edge latches NDT and
// fires immediately for M→M with a request already pending; otherwise the
// stream simply waits for its next peripheral request pulse (gated by
// Enabled() in onRequestPulse). The falling edge needs no action beyond the
// bank's own bit update: it never touches finished/IRQ state (spec §4.1/§5).
func (s *Stream) onEN(old, new uint32) {
	if old != 0 || new != 1 {
		return
	}

	s.latch = uint16(s.ndtr.Get("NDT"))

	if s.direction() == MemoryToMemory && s.ctrl.reqLines[s.index].Value() {
		s.selectTransfer()
	}
}

// onRequestPulse is the DMA request line's rising-edge callback: it
// dispatches a transfer when the stream is enabled, and logs and ignores the
// pulse otherwise (spec §4.1).
func (s *Stream) onRequestPulse() {
	if !s.Enabled() {
		log.Printf("dma: stream %d request pulse ignored, stream disabled", s.index)
		return
	}
	s.selectTransfer()
}

// selectTransfer is the per-stream dispatcher: a full burst for M→M, exactly
// one item otherwise (spec §4.1).
func (s *Stream) selectTransfer() {
	if !s.checkPreconditions() {
		return
	}

	if s.direction() == MemoryToMemory {
		s.doMemoryTransfer()
		return
	}
	s.doPeripheralTransfer()
}

// checkPreconditions implements the CreateRequest failure semantics of
// spec §4.1/§7: NDT=0 logs and disables the stream, leaving finished clear.
func (s *Stream) checkPreconditions() bool {
	if s.NDT() == 0 {
		log.Printf("dma: stream %d CreateRequest failed: NDT=0", s.index)
		s.cr.Set("EN", 0)
		return false
	}
	return true
}

// doMemoryTransfer executes one full M→M burst of latch×peripheral-size
// bytes (spec §4.1).
func (s *Stream) doMemoryTransfer() {
	psize := s.peripheralSize()
	n := int(s.latch) * psize

	src := uint32(s.par.Get("ADDR"))
	dst := uint32(s.m0ar.Get("ADDR"))
	incSrc := s.cr.Get("PINC") == 1
	incDst := s.cr.Get("MINC") == 1

	s.ctrl.bus.CopyMemory(dst, src, n, psize, incDst, incSrc)

	circ := s.cr.Get("CIRC") == 1
	if circ {
		s.ndtr.Set("NDT", uint32(s.latch))
	} else {
		s.ndtr.Set("NDT", 0)
		s.cr.Set("EN", 0)
	}

	tcie := s.cr.Get("TCIE") == 1
	s.ctrl.setFinished(s.index, tcie)
}

// doPeripheralTransfer executes exactly one peripheral-sized item of a P↔M
// transfer, advancing addresses per the already-transferred count and
// completing the stream (with optional circular reload) once NDT reaches 0
// (spec §4.1).
func (s *Stream) doPeripheralTransfer() {
	ndt := s.NDT()
	alreadyTransferred := int(s.latch - ndt)

	psize := s.peripheralSize()
	msize := s.memorySize()

	var srcAddr, dstAddr uint32
	var srcSize, dstSize int
	var incSrc, incDst bool

	switch s.direction() {
	case PeripheralToMemory:
		srcAddr, srcSize, incSrc = uint32(s.par.Get("ADDR")), psize, s.cr.Get("PINC") == 1
		dstAddr, dstSize, incDst = uint32(s.m0ar.Get("ADDR")), msize, s.cr.Get("MINC") == 1
	default: // MemoryToPeripheral
		srcAddr, srcSize, incSrc = uint32(s.m0ar.Get("ADDR")), msize, s.cr.Get("MINC") == 1
		dstAddr, dstSize, incDst = uint32(s.par.Get("ADDR")), psize, s.cr.Get("PINC") == 1
	}

	if incSrc {
		srcAddr += uint32(alreadyTransferred * srcSize)
	}
	if incDst {
		dstAddr += uint32(alreadyTransferred * dstSize)
	}

	s.ctrl.bus.CopyMemory(dstAddr, srcAddr, psize, psize, false, false)

	ndt--
	s.ndtr.Set("NDT", uint32(ndt))

	if ndt > 0 {
		return
	}

	circ := s.cr.Get("CIRC") == 1
	if circ {
		s.ndtr.Set("NDT", uint32(s.latch))
	} else {
		s.cr.Set("EN", 0)
	}

	tcie := s.cr.Get("TCIE") == 1
	s.ctrl.setFinished(s.index, tcie)
}
