// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package line models a single level-sensitive GPIO-style signal line, the
// shape shared by the DMA controller's per-stream peripheral request pins
// and IRQ outputs and the I2C controller's event/error/DMA-request outputs
// (spec §6 "GPIO lines"). It generalizes the pin-level Set/Clear/Value shape
// of soc/imx6/gpio.Pin and the interrupt-pending bookkeeping of arm/gic.GIC
// to an in-memory signal with edge-triggered callbacks, since there is no
// physical pad to mux here.
package line

import "sync"

// Line is a single level-sensitive boolean signal with edge detection.
type Line struct {
	mu      sync.Mutex
	value   bool
	onRise  []func()
	onFall  []func()
}

// Value reports the line's current level.
func (l *Line) Value() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// OnRisingEdge registers a callback fired synchronously whenever Set(true)
// transitions the line from low to high.
func (l *Line) OnRisingEdge(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRise = append(l.onRise, fn)
}

// OnFallingEdge registers a callback fired synchronously whenever Set(false)
// transitions the line from high to low.
func (l *Line) OnFallingEdge(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onFall = append(l.onFall, fn)
}

// Set drives the line to the given level. Edge callbacks run outside the
// line's lock so they may themselves call back into Value/Set without
// deadlocking.
func (l *Line) Set(high bool) {
	l.mu.Lock()
	rising := high && !l.value
	falling := !high && l.value
	l.value = high
	callbacks := l.onRise
	fallCallbacks := l.onFall
	l.mu.Unlock()

	if rising {
		for _, fn := range callbacks {
			fn()
		}
	}
	if falling {
		for _, fn := range fallCallbacks {
			fn()
		}
	}
}

// Pulse asserts then immediately de-asserts the line, the shape of an
// external peripheral request pulse in spec §4.1.
func (l *Line) Pulse() {
	l.Set(true)
	l.Set(false)
}
