// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package dma

import "testing"

// fakeBus is a minimal core.Bus recording every CopyMemory call's per-item
// destination addresses, enough to assert the scenarios of spec §8.
type fakeBus struct {
	calls []copyCall
}

type copyCall struct {
	dst, src       uint32
	n, size        int
	incDst, incSrc bool
	itemDsts       []uint32
	itemSrcs       []uint32
}

func (b *fakeBus) ReadMemory(addr uint32, size int) uint32    { return 0 }
func (b *fakeBus) WriteMemory(addr uint32, size int, val uint32) {}

func (b *fakeBus) CopyMemory(dst, src uint32, n, size int, incDst, incSrc bool) {
	call := copyCall{dst: dst, src: src, n: n, size: size, incDst: incDst, incSrc: incSrc}

	items := n / size
	for i := 0; i < items; i++ {
		d, s := dst, src
		if incDst {
			d += uint32(i * size)
		}
		if incSrc {
			s += uint32(i * size)
		}
		call.itemDsts = append(call.itemDsts, d)
		call.itemSrcs = append(call.itemSrcs, s)
	}

	b.calls = append(b.calls, call)
}

type fakeClock struct{ synced int }

func (c *fakeClock) ExecuteInNearestSyncedState(fn func()) {
	c.synced++
	fn()
}

type fakeIRQ struct {
	asserted   map[int]bool
	assertCnt  map[int]int
}

func newFakeIRQ() *fakeIRQ {
	return &fakeIRQ{asserted: map[int]bool{}, assertCnt: map[int]int{}}
}

func (f *fakeIRQ) AssertIRQ(line int) {
	f.asserted[line] = true
	f.assertCnt[line]++
}

func (f *fakeIRQ) DeassertIRQ(line int) {
	f.asserted[line] = false
}

func writeCR(s *Stream, dir Direction, psize, msize TransferSize, circ, pinc, minc, tcie bool) uint32 {
	var v uint32
	v |= uint32(dir) << crDIR
	v |= uint32(psize) << crPSIZE
	v |= uint32(msize) << crMSIZE
	if circ {
		v |= 1 << crCIRC
	}
	if pinc {
		v |= 1 << crPINC
	}
	if minc {
		v |= 1 << crMINC
	}
	if tcie {
		v |= 1 << crTCIE
	}
	return v
}

// Scenario 1: DMA P->M non-circular, NDT=4, PSIZE=byte, MINC=1, PINC=0.
func TestScenarioPeripheralToMemoryNonCircular(t *testing.T) {
	bus := &fakeBus{}
	clk := &fakeClock{}
	irq := newFakeIRQ()
	c := NewController(bus, irq, clk)

	s := c.Stream(0)
	cr := writeCR(s, PeripheralToMemory, Size1, Size1, false, false, true, true)

	c.Write32(StreamBase+streamRegPAR, 0x40000000)
	c.Write32(StreamBase+streamRegM0AR, 0x20000000)
	c.Write32(StreamBase+streamRegNDTR, 4)
	c.Write32(StreamBase+streamRegCR, cr|1) // EN=1

	for i := 0; i < 4; i++ {
		c.RequestLine(0).Pulse()
	}

	if got := s.NDT(); got != 0 {
		t.Fatalf("NDT after 4 pulses = %d, want 0", got)
	}
	if !s.Finished() {
		t.Fatalf("stream not finished after 4 pulses")
	}
	if !irq.asserted[0] {
		t.Fatalf("IRQ not raised with TCIE set")
	}

	if len(bus.calls) != 4 {
		t.Fatalf("got %d copies, want 4", len(bus.calls))
	}
	wantDst := []uint32{0x20000000, 0x20000001, 0x20000002, 0x20000003}
	for i, call := range bus.calls {
		if len(call.itemDsts) != 1 || call.itemDsts[0] != wantDst[i] {
			t.Fatalf("copy %d dst = %v, want %#x", i, call.itemDsts, wantDst[i])
		}
	}
}

// Scenario 2: DMA P->M circular, NDT=2, PSIZE=halfword, MINC=1: 5 pulses.
func TestScenarioPeripheralToMemoryCircular(t *testing.T) {
	bus := &fakeBus{}
	clk := &fakeClock{}
	irq := newFakeIRQ()
	c := NewController(bus, irq, clk)

	s := c.Stream(1)
	cr := writeCR(s, PeripheralToMemory, Size2, Size2, true, false, true, true)

	c.Write32(StreamBase+StreamSize+streamRegPAR, 0x40000000)
	c.Write32(StreamBase+StreamSize+streamRegM0AR, 0x20000000)
	c.Write32(StreamBase+StreamSize+streamRegNDTR, 2)
	c.Write32(StreamBase+StreamSize+streamRegCR, cr|1)

	var ndtSeq []uint16
	for i := 0; i < 5; i++ {
		c.RequestLine(1).Pulse()
		ndtSeq = append(ndtSeq, s.NDT())
	}

	want := []uint16{1, 2, 1, 2, 1}
	for i := range want {
		if ndtSeq[i] != want[i] {
			t.Fatalf("NDT sequence = %v, want %v", ndtSeq, want)
		}
	}

	if irq.assertCnt[1] != 2 {
		t.Fatalf("IRQ asserted %d times, want 2 (every second pulse)", irq.assertCnt[1])
	}
	if !s.Enabled() {
		t.Fatalf("circular stream should remain enabled")
	}
}

// Scenario 3: DMA M->M, NDT=16, PSIZE=word: enable with request already
// asserted.
func TestScenarioMemoryToMemory(t *testing.T) {
	bus := &fakeBus{}
	clk := &fakeClock{}
	irq := newFakeIRQ()
	c := NewController(bus, irq, clk)

	s := c.Stream(2)
	cr := writeCR(s, MemoryToMemory, Size4, Size4, false, true, true, true)

	c.Write32(StreamBase+2*StreamSize+streamRegPAR, 0x10000000)
	c.Write32(StreamBase+2*StreamSize+streamRegM0AR, 0x20000000)
	c.Write32(StreamBase+2*StreamSize+streamRegNDTR, 16)

	c.RequestLine(2).Set(true) // pending before enable

	c.Write32(StreamBase+2*StreamSize+streamRegCR, cr|1)

	if len(bus.calls) != 1 {
		t.Fatalf("got %d copies, want 1", len(bus.calls))
	}
	if bus.calls[0].n != 64 {
		t.Fatalf("copy size = %d, want 64", bus.calls[0].n)
	}
	if s.NDT() != 0 {
		t.Fatalf("NDT = %d, want 0", s.NDT())
	}
	if s.Enabled() {
		t.Fatalf("stream should be disabled after one-shot M->M burst")
	}
	if !s.Finished() {
		t.Fatalf("stream should be finished")
	}
}

func TestEnableEdgeLatchesNDT(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus, newFakeIRQ(), &fakeClock{})
	s := c.Stream(3)

	cr := writeCR(s, PeripheralToMemory, Size1, Size1, false, false, false, false)
	c.Write32(StreamBase+3*StreamSize+streamRegNDTR, 7)
	c.Write32(StreamBase+3*StreamSize+streamRegCR, cr|1)

	if s.Latch() != 7 {
		t.Fatalf("latch = %d, want 7 immediately after EN rising edge", s.Latch())
	}
}

func TestNDTRWriteIgnoredWhileEnabled(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus, newFakeIRQ(), &fakeClock{})
	s := c.Stream(4)

	cr := writeCR(s, PeripheralToMemory, Size1, Size1, false, false, false, false)
	c.Write32(StreamBase+4*StreamSize+streamRegNDTR, 3)
	c.Write32(StreamBase+4*StreamSize+streamRegCR, cr|1)

	c.Write32(StreamBase+4*StreamSize+streamRegNDTR, 99)

	if s.NDT() != 3 {
		t.Fatalf("NDT = %d, want unchanged 3 while stream enabled", s.NDT())
	}
}

func TestRequestPulseIgnoredWhileDisabled(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus, newFakeIRQ(), &fakeClock{})

	c.RequestLine(5).Pulse()

	if len(bus.calls) != 0 {
		t.Fatalf("expected no copies for a disabled stream")
	}
}

func TestStatusRegisterBitMapping(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus, newFakeIRQ(), &fakeClock{})

	s := c.Stream(0)
	cr := writeCR(s, PeripheralToMemory, Size1, Size1, false, false, false, false)
	c.Write32(StreamBase+streamRegNDTR, 1)
	c.Write32(StreamBase+streamRegCR, cr|1)
	c.RequestLine(0).Pulse()

	lisr := c.Read32(RegLISR)
	if lisr&(1<<5) == 0 {
		t.Fatalf("LISR = %#x, expected bit 5 set for stream 0", lisr)
	}

	c.Write32(RegLIFCR, 1<<5)
	if s.Finished() {
		t.Fatalf("stream 0 should be cleared after LIFCR write")
	}
	if lisr2 := c.Read32(RegLISR); lisr2&(1<<5) != 0 {
		t.Fatalf("LISR bit 5 still set after clear: %#x", lisr2)
	}
}
