// Copyright (c) Buerkert
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package regbank

import (
	"log"
	"sync"

	"github.com/buerkert/renode-infrastructure/bits"
)

// Register is one 32-bit word of a Bank, composed of disjoint Fields.
type Register struct {
	// Offset is the register's byte offset within the owning Bank,
	// always a multiple of 4.
	Offset uint32
	Name   string

	word   uint32
	fields []*Field
}

// Value returns the register's raw backing word, bypassing field callbacks.
// Intended for diagnostics and for peripherals that need to snapshot state
// for assertions in tests.
func (r *Register) Value() uint32 {
	return r.word
}

// Field looks up a field by name, returning nil if not present.
func (r *Register) Field(name string) *Field {
	for _, f := range r.fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Get reads a single field's current value without triggering its OnRead
// callback or any access-mode side effect. Used by owning peripherals to
// inspect their own state outside of the bus-facing Read32/Write32 path.
func (r *Register) Get(name string) uint32 {
	f := r.Field(name)
	if f == nil {
		return 0
	}
	return f.extract(r.word)
}

// Set writes a single field's value directly, invoking OnChange (not
// OnWrite) if the value actually changes. Used by the owning peripheral to
// update software-visible state as a side effect of its own logic (e.g. a
// DMA stream clearing its enable bit on completion), as opposed to a write
// arriving from the bus.
func (r *Register) Set(name string, val uint32) {
	f := r.Field(name)
	if f == nil {
		return
	}

	old := f.extract(r.word)
	v := val & f.mask()
	bits.SetN(&r.word, f.Pos, int(f.mask()), v)

	if v != old && f.OnChange != nil {
		f.OnChange(old, v)
	}
}

// Bank is a named collection of Registers addressed by byte offset.
type Bank struct {
	mu   sync.Mutex
	Name string

	regs map[uint32]*Register
}

// NewBank creates an empty register bank. Name is used as the log prefix for
// diagnostics (unhandled offsets, misaligned accesses).
func NewBank(name string) *Bank {
	return &Bank{Name: name, regs: make(map[uint32]*Register)}
}

// Define declares a new register at offset, composed of fields, and resets
// it to its declared values. Offsets must be distinct and a multiple of 4;
// violating either is a configuration error and panics, mirroring the
// teacher's fail-fast Init() pattern for malformed hardware instances.
func (b *Bank) Define(offset uint32, name string, fields ...*Field) *Register {
	b.mu.Lock()
	defer b.mu.Unlock()

	if offset%4 != 0 {
		panic("regbank: register offset must be 4-byte aligned")
	}
	if _, exists := b.regs[offset]; exists {
		panic("regbank: duplicate register offset")
	}

	r := &Register{Offset: offset, Name: name, fields: fields}
	b.resetLocked(r)
	b.regs[offset] = r

	return r
}

func (b *Bank) resetLocked(r *Register) {
	var word uint32
	for _, f := range r.fields {
		word |= (f.ResetValue & f.mask()) << f.Pos
	}
	r.word = word
}

// Reset restores every defined register to its declared reset value.
func (b *Bank) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, r := range b.regs {
		b.resetLocked(r)
	}
}

// register looks up the register owning offset, logging and returning nil
// when none is defined there.
func (b *Bank) register(offset uint32) *Register {
	r, ok := b.regs[offset]
	if !ok {
		log.Printf("%s: unhandled register offset 0x%03x", b.Name, offset)
		return nil
	}
	return r
}

// Read32 performs a full-word read at offset, applying each field's access
// mode and OnRead callback. Unhandled offsets log and return 0.
func (b *Bank) Read32(offset uint32) uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.register(offset)
	if r == nil {
		return 0
	}

	var out uint32
	for _, f := range r.fields {
		if f.Access == AccessW {
			continue
		}

		cur := f.extract(r.word)
		v := cur

		if f.OnRead != nil {
			v = f.OnRead(cur) & f.mask()
		}

		out |= v << f.Pos

		if f.Access == AccessReadToClear && cur != 0 {
			bits.ClearN(&r.word, f.Pos, int(f.mask()))
			if f.OnChange != nil {
				f.OnChange(cur, 0)
			}
		}
	}

	return out
}

// Write32 performs a full-word write at offset, applying each field's access
// mode, invoking OnWrite unconditionally and OnChange only when the field's
// value actually changed. Unhandled offsets log and are ignored.
func (b *Bank) Write32(offset uint32, val uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.register(offset)
	if r == nil {
		return
	}

	// Two passes: first settle every field's new value into the register
	// word, then fire callbacks. A field's OnWrite/OnChange callback may
	// read a sibling field of the same register (e.g. the DMA stream's EN
	// callback reading DIR) and must observe the word as it will be after
	// this write completes, not mid-update.
	type pending struct {
		field    *Field
		old, new uint32
	}
	var fired []pending

	for _, f := range r.fields {
		if f.Access == AccessR || f.Kind == Reserved || f.Kind == Unimplemented {
			continue
		}
		if f.WriteGuard != nil && !f.WriteGuard() {
			continue
		}

		in := f.extract(val)
		old := f.extract(r.word)
		new := old

		switch f.Access {
		case AccessWriteToClear:
			if in == (f.ClearOnWrite & f.mask()) {
				new = 0
			}
		default:
			new = in
		}

		if new != old {
			bits.SetN(&r.word, f.Pos, int(f.mask()), new)
		}

		fired = append(fired, pending{f, old, new})
	}

	for _, p := range fired {
		if p.field.OnWrite != nil {
			p.field.OnWrite(p.old, p.new)
		}
		if p.new != p.old && p.field.OnChange != nil {
			p.field.OnChange(p.old, p.new)
		}
	}
}

// Dump returns every defined register's name keyed by its offset, for
// diagnostics in tests and trace sinks. Register values are not included.
func (b *Bank) Dump() map[uint32]string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[uint32]string, len(b.regs))
	for off, r := range b.regs {
		out[off] = r.Name
	}
	return out
}
