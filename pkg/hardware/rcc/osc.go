// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"go.uber.org/zap"
)

type Bypass int

const (
	BypassNone Bypass = iota
	BypassAnalog
	BypassDigital
)

func (b Bypass) String() string {
	switch b {
	case BypassAnalog:
		return "analog"
	case BypassDigital:
		return "digital"
	}
	return "none"
}

// OscillatorState is the decoded control register of an oscillator.
type OscillatorState struct {
	Enabled    bool
	Ready      bool
	Bypass     Bypass
	CSSArmed   bool
	CSSTripped bool
	// AltFreq is set when an msi runs at its alternative frequency.
	AltFreq bool
}

func (r *Rcc) osc(op string, n int) (*OscEntry, error) {
	o := r.cat.oscillator(n)
	if o == nil {
		return nil, r.unknown(op, Osc(n))
	}
	return o, nil
}

func (r *Rcc) mutableOsc(op string, who rif.Caller, n int) (*OscEntry, error) {
	o, err := r.osc(op, n)
	if err != nil {
		return nil, err
	}
	if err := r.gate(op, Osc(n), who); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Rcc) Oscillator(n int) (OscillatorState, error) {
	o, err := r.osc("oscillator", n)
	if err != nil {
		return OscillatorState{}, err
	}
	v := r.mem.MustRead32(o.Addr)
	s := OscillatorState{
		Enabled:    v&oscON != 0,
		Ready:      v&oscRDY != 0,
		CSSArmed:   v&oscCSSON != 0,
		CSSTripped: v&oscCSSD != 0,
		AltFreq:    o.Type == MSI && v&oscFREQSEL != 0,
	}
	switch {
	case v&oscDIGBYP != 0:
		s.Bypass = BypassDigital
	case v&oscBYP != 0:
		s.Bypass = BypassAnalog
	}
	return s, nil
}

// EnableOscillator starts an oscillator. Readiness is polled with
// IsOscillatorReady.
func (r *Rcc) EnableOscillator(who rif.Caller, n int) error {
	o, err := r.mutableOsc("enable_osc", who, n)
	if err != nil {
		return err
	}
	r.mem.MustModify32(o.Addr, oscON, oscON)
	r.changed("osc_enable", Osc(n))
	return nil
}

// DisableOscillator stops an oscillator that no enabled PLL or channel
// is fed from.
func (r *Rcc) DisableOscillator(who rif.Caller, n int) error {
	o, err := r.mutableOsc("disable_osc", who, n)
	if err != nil {
		return err
	}
	id := Osc(n)
	for _, p := range r.cat.PLLs {
		src, ok := r.pllSource(&p)
		if ok && src == id && r.mem.MustRead32(p.Base+pllCFGR1)&pllEN != 0 {
			return r.fail("disable_osc", id, hwerr.ResourceInUse, "feeds enabled %s", p.Name)
		}
	}
	for _, ch := range r.cat.Channels {
		src, ok := r.channelSource(&ch)
		if ok && src == id && r.mem.MustRead32(r.cat.Crossbar.xbar(ch.Num))&xbarEN != 0 {
			return r.fail("disable_osc", id, hwerr.ResourceInUse, "feeds enabled %s", ch.Name)
		}
	}
	r.mem.MustModify32(o.Addr, oscON, 0)
	r.changed("osc_disable", id)
	return nil
}

func (r *Rcc) IsOscillatorReady(n int) (bool, error) {
	s, err := r.Oscillator(n)
	return s.Ready, err
}

// SetBypass selects an external clock input instead of a crystal. It is
// only accepted while the oscillator is stopped.
func (r *Rcc) SetBypass(who rif.Caller, n int, mode Bypass) error {
	o, err := r.mutableOsc("set_bypass", who, n)
	if err != nil {
		return err
	}
	if !o.Type.External() {
		return r.fail("set_bypass", Osc(n), hwerr.InvalidArgument, "%v has no bypass", o.Type)
	}
	if r.mem.MustRead32(o.Addr)&oscON != 0 {
		return r.fail("set_bypass", Osc(n), hwerr.InvalidState, "oscillator running")
	}
	var v uint32
	switch mode {
	case BypassNone:
	case BypassAnalog:
		v = oscBYP
	case BypassDigital:
		v = oscBYP | oscDIGBYP
	default:
		return r.fail("set_bypass", Osc(n), hwerr.InvalidArgument, "bypass mode %d", mode)
	}
	r.mem.MustModify32(o.Addr, oscBYP|oscDIGBYP, v)
	r.changed("osc_bypass", Osc(n), zap.Stringer("mode", mode))
	return nil
}

func (r *Rcc) external(op string, who rif.Caller, n int) (*OscEntry, error) {
	o, err := r.mutableOsc(op, who, n)
	if err != nil {
		return nil, err
	}
	if !o.Type.External() {
		return nil, r.fail(op, Osc(n), hwerr.InvalidArgument, "%v has no clock security system", o.Type)
	}
	return o, nil
}

// EnableCSS arms the clock security system. On hse it stays armed until
// the next reset.
func (r *Rcc) EnableCSS(who rif.Caller, n int) error {
	o, err := r.external("css_enable", who, n)
	if err != nil {
		return err
	}
	r.mem.MustModify32(o.Addr, oscCSSON, oscCSSON)
	r.changed("css_enable", Osc(n))
	return nil
}

func (r *Rcc) DisableCSS(who rif.Caller, n int) error {
	o, err := r.external("css_disable", who, n)
	if err != nil {
		return err
	}
	if o.Type == HSE {
		return r.fail("css_disable", Osc(n), hwerr.InvalidState, "hse css is cleared by reset only")
	}
	r.mem.MustModify32(o.Addr, oscCSSON, 0)
	r.changed("css_disable", Osc(n))
	return nil
}

func (r *Rcc) CSSTripped(n int) (bool, error) {
	o, err := r.osc("css_tripped", n)
	if err != nil {
		return false, err
	}
	if !o.Type.External() {
		return false, r.fail("css_tripped", Osc(n), hwerr.InvalidArgument, "%v has no clock security system", o.Type)
	}
	return r.mem.MustRead32(o.Addr)&oscCSSD != 0, nil
}

// SetMSIFrequency picks the base or alternative frequency of a
// multi-speed oscillator. The oscillator must be stopped.
func (r *Rcc) SetMSIFrequency(who rif.Caller, n int, alt bool) error {
	o, err := r.mutableOsc("set_msi_freq", who, n)
	if err != nil {
		return err
	}
	if o.Type != MSI || o.AltFreq == 0 {
		return r.fail("set_msi_freq", Osc(n), hwerr.InvalidArgument, "not a multi-speed oscillator")
	}
	if r.mem.MustRead32(o.Addr)&oscON != 0 {
		return r.fail("set_msi_freq", Osc(n), hwerr.InvalidState, "oscillator running")
	}
	r.setBits(o.Addr, oscFREQSEL, alt)
	r.changed("msi_freq", Osc(n), zap.Bool("alt", alt))
	return nil
}
