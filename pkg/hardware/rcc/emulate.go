// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/mmio"
)

// NeverSettles makes emulated status bits stay busy forever.
const NeverSettles = -1

// Emulator is the hardware side of a simulated clock controller.
type Emulator struct {
	sim     *mmio.Sim
	cat     *Catalog
	latency int
	// Status reads left before a busy bit settles, by status address
	// and bit.
	left map[uintptr]map[uint32]int
}

// Emulate installs the clock controller and descriptor hardware on sim.
// Oscillators become ready, PLLs lock and dividers settle after latency
// reads of their status bit.
func Emulate(sim *mmio.Sim, cat *Catalog, latency int) *Emulator {
	e := &Emulator{sim: sim, cat: cat, latency: latency, left: map[uintptr]map[uint32]int{}}
	sim.OnReset(func() { e.left = map[uintptr]map[uint32]int{} })
	rif.Emulate(sim, cat.RIF)

	for _, o := range cat.Oscillators {
		e.oscillator(o)
	}
	for _, p := range cat.PLLs {
		e.pll(p)
	}
	x := cat.Crossbar
	srs := map[uintptr]bool{}
	for _, ch := range cat.Channels {
		sa, sb := x.predivSR(ch.Num)
		e.divider(x.prediv(ch.Num), sa, sb)
		srs[sa] = true
		sa, sb = x.findivSR(ch.Num)
		e.divider(x.findiv(ch.Num), sa, sb)
		srs[sa] = true
	}
	for a := range srs {
		e.status(a)
	}
	return e
}

func (e *Emulator) arm(a uintptr, bit uint32) {
	if e.left[a] == nil {
		e.left[a] = map[uint32]int{}
	}
	e.left[a][bit] = e.latency
}

func (e *Emulator) disarm(a uintptr, bit uint32) {
	delete(e.left[a], bit)
}

// tick counts one status read and reports whether bit settled.
func (e *Emulator) tick(a uintptr, bit uint32) bool {
	n, ok := e.left[a][bit]
	if !ok || n < 0 {
		return false
	}
	if n == 0 {
		delete(e.left[a], bit)
		return true
	}
	e.left[a][bit] = n - 1
	return false
}

func (e *Emulator) oscillator(o OscEntry) {
	hse := o.Type == HSE
	e.sim.OnWrite(o.Addr, func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
		v := req&^(oscRDY|oscCSSD) | old&(oscRDY|oscCSSD)
		if hse {
			v |= old & oscCSSON
		}
		switch {
		case v&oscON == 0:
			v &^= oscRDY
			e.disarm(a, oscRDY)
		case old&oscON == 0:
			e.arm(a, oscRDY)
		}
		return v
	})
	e.sim.OnRead(o.Addr, func(b mmio.Bank, a uintptr, v uint32) uint32 {
		if v&oscON != 0 && v&oscRDY == 0 && e.tick(a, oscRDY) {
			v |= oscRDY
		}
		return v
	})
}

func (e *Emulator) pll(p PLLEntry) {
	a1 := p.Base + pllCFGR1
	e.sim.OnWrite(a1, func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
		v := req&^pllRDY | old&pllRDY
		switch {
		case v&pllEN == 0:
			v &^= pllRDY
			e.disarm(a, pllRDY)
		case old&pllEN == 0:
			e.arm(a, pllRDY)
		}
		return v
	})
	e.sim.OnRead(a1, func(b mmio.Bank, a uintptr, v uint32) uint32 {
		if v&pllEN == 0 || v&pllRDY != 0 {
			return v
		}
		// No lock without a running reference.
		sel := int(v & pllSRC)
		if sel == 0 || sel > len(p.Sources) {
			return v
		}
		src := e.cat.oscillator(p.Sources[sel-1].Num)
		if src == nil {
			return v
		}
		// The reference keeps starting up whether or not anyone
		// looks at it.
		ov := b.Peek(src.Addr)
		if ov&oscON != 0 && ov&oscRDY == 0 && e.tick(src.Addr, oscRDY) {
			ov |= oscRDY
			b.Poke(src.Addr, ov)
		}
		if ov&(oscON|oscRDY) != oscON|oscRDY {
			return v
		}
		if e.tick(a, pllRDY) {
			v |= pllRDY
		}
		return v
	})
}

func (e *Emulator) divider(cfg, sr uintptr, bit uint32) {
	e.sim.OnWrite(cfg, func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
		b.Poke(sr, b.Peek(sr)|bit)
		e.arm(sr, bit)
		return req
	})
}

func (e *Emulator) status(sr uintptr) {
	// Software cannot write busy flags.
	e.sim.OnWrite(sr, func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
		return old
	})
	e.sim.OnRead(sr, func(b mmio.Bank, a uintptr, v uint32) uint32 {
		for bit := range e.left[a] {
			if v&bit != 0 && e.tick(a, bit) {
				v &^= bit
			}
		}
		return v
	})
}

// TripCSS reports a clock failure on an external oscillator: the
// failure flag is raised and the oscillator loses readiness.
func (e *Emulator) TripCSS(n int) {
	o := e.cat.oscillator(n)
	if o == nil {
		return
	}
	v := e.sim.Peek(o.Addr)
	if v&oscCSSON == 0 {
		return
	}
	e.sim.Poke(o.Addr, v&^oscRDY|oscCSSD)
}
