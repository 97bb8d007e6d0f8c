// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package i2c

// deriveSB reports the start-condition-generated flag: true for as long as
// the address byte has not yet been written.
func (c *Controller) deriveSB() bool {
	return c.state == AwaitingAddress
}

// deriveADDR is true from the address write until the SR2 read that
// completes the SR1-then-SR2 sequence: it stays set in both
// AwaitingSr1Read and AwaitingSr2Read (spec §4.2).
func (c *Controller) deriveADDR() bool {
	return c.state == AwaitingSr1Read || c.state == AwaitingSr2Read
}

func (c *Controller) deriveRxNE() bool {
	return c.state == ReceivingData && len(c.rxQueue) > 0
}

func (c *Controller) deriveTxE() bool {
	if c.state == AwaitingData && len(c.txQueue) == 0 {
		return true
	}
	if !c.rw && (c.state == AwaitingSr1Read || c.state == AwaitingSr2Read) {
		return true
	}
	return false
}

func (c *Controller) deriveBTF() bool {
	if c.state != AwaitingData && c.state != ReceivingData {
		return false
	}
	if c.rw {
		return c.deriveRxNE()
	}
	return c.deriveTxE()
}

func (c *Controller) deriveMSL() bool {
	return c.state != Idle
}

func (c *Controller) deriveBUSY() bool {
	return c.state != Idle
}

func (c *Controller) deriveTRA() bool {
	return c.state != Idle && !c.rw
}

// recomputeLines re-evaluates every outgoing line predicate from current
// state and queue contents (spec §4.2 "Interrupts and DMA requests": run
// after every state or queue mutation).
func (c *Controller) recomputeLines() {
	itevten := c.cr2.Get("ITEVTEN") == 1
	itbufen := c.cr2.Get("ITBUFEN") == 1
	iterren := c.cr2.Get("ITERREN") == 1
	dmaen := c.cr2.Get("DMAEN") == 1

	sb := c.deriveSB()
	addr := c.deriveADDR()
	btf := c.deriveBTF()
	rxne := c.deriveRxNE()
	txe := c.deriveTxE()
	af := c.sr1.Get("AF") == 1

	event := itevten && (sb || addr || btf || (itbufen && (txe || rxne)))
	errLine := iterren && af
	dmaRx := dmaen && rxne && c.state == ReceivingData
	dmaTx := dmaen && txe && c.state == AwaitingData

	c.eventIRQ.Set(event)
	c.errorIRQ.Set(errLine)
	c.dmaRx.Set(dmaRx)
	c.dmaTx.Set(dmaTx)
}
