// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/mmio"
	"go.uber.org/zap"
)

// PLLPhase is where a PLL is in its bring-up, derived from registers.
type PLLPhase int

const (
	PLLDisabled PLLPhase = iota
	PLLConfiguringReference
	PLLConfiguringFeedback
	PLLWaitingLock
	PLLLocked
)

var pllPhaseNames = []string{"disabled", "configuring reference", "configuring feedback", "waiting for lock", "locked"}

func (p PLLPhase) String() string {
	if int(p) < len(pllPhaseNames) {
		return pllPhaseNames[p]
	}
	return "unknown"
}

// PLLOutput selects what drives the PLL output.
type PLLOutput int

const (
	OutputOff PLLOutput = iota
	// OutputPostDiv is the VCO through both post-dividers.
	OutputPostDiv
	// OutputBypass forwards the reference clock.
	OutputBypass
)

func (o PLLOutput) String() string {
	switch o {
	case OutputPostDiv:
		return "postdiv"
	case OutputBypass:
		return "bypass"
	}
	return "off"
}

// Spread configures spread spectrum clock generation.
type Spread struct {
	// ModDiv sets the modulation frequency, 0..15.
	ModDiv uint32
	// Step is the spread amplitude, 0..31.
	Step uint32
	// Down spreads below the nominal frequency instead of around it.
	Down bool
}

// PLLConfig is the programmable part of a PLL.
type PLLConfig struct {
	Source    NodeID
	HasSource bool
	RefDiv    uint32
	FbDiv     uint32
	FracIn    uint32
	PostDiv1  uint32
	PostDiv2  uint32
	Output    PLLOutput
	Spread    *Spread
}

func (r *Rcc) pll(op string, n int) (*PLLEntry, error) {
	p := r.cat.pll(n)
	if p == nil {
		return nil, r.unknown(op, PLL(n))
	}
	return p, nil
}

func (r *Rcc) pllSource(p *PLLEntry) (NodeID, bool) {
	sel := int(r.mem.MustRead32(p.Base+pllCFGR1) & pllSRC)
	if sel == 0 || sel > len(p.Sources) {
		return NodeID{}, false
	}
	return p.Sources[sel-1], true
}

// pllPhase reads the phase back from registers. A stopped PLL is
// Disabled both before any setup and once fully configured, so a
// DisablePLL always lands there. Only a partial setup reports one of
// the configuring phases.
func (r *Rcc) pllPhase(p *PLLEntry) PLLPhase {
	c1 := r.mem.MustRead32(p.Base + pllCFGR1)
	switch {
	case c1&pllEN != 0 && c1&pllRDY != 0:
		return PLLLocked
	case c1&pllEN != 0:
		return PLLWaitingLock
	case c1&pllSRC == 0:
		return PLLDisabled
	}
	c := r.pllConfig(p)
	switch {
	case c.complete():
		return PLLDisabled
	case c.RefDiv == 0 || c.FbDiv == 0:
		return PLLConfiguringReference
	}
	return PLLConfiguringFeedback
}

func (r *Rcc) PLLState(n int) (PLLPhase, error) {
	p, err := r.pll("pll_state", n)
	if err != nil {
		return PLLDisabled, err
	}
	return r.pllPhase(p), nil
}

func (r *Rcc) PLLConfig(n int) (PLLConfig, error) {
	p, err := r.pll("pll_config", n)
	if err != nil {
		return PLLConfig{}, err
	}
	return r.pllConfig(p), nil
}

func (c PLLConfig) complete() bool {
	return c.HasSource && c.RefDiv != 0 && c.FbDiv != 0 && c.PostDiv1 != 0 && c.PostDiv2 != 0
}

func (r *Rcc) pllConfig(p *PLLEntry) PLLConfig {
	var c PLLConfig
	c.Source, c.HasSource = r.pllSource(p)
	c2 := r.mem.MustRead32(p.Base + pllCFGR2)
	c.RefDiv = c2 & pllFREFDIV
	c.FbDiv = mmio.Field(c2, pllFBDIV, pllFBDIVSh)
	c3 := r.mem.MustRead32(p.Base + pllCFGR3)
	c.FracIn = c3 & pllFRACIN
	c4 := r.mem.MustRead32(p.Base + pllCFGR4)
	switch {
	case c4&pllFOUTPOSTDIVEN != 0:
		c.Output = OutputPostDiv
	case c4&pllBYPASS != 0:
		c.Output = OutputBypass
	}
	c5 := r.mem.MustRead32(p.Base + pllCFGR5)
	if c5&pllSSCGEN != 0 {
		c.Spread = &Spread{
			ModDiv: c5 & pllDIVVAL,
			Step:   mmio.Field(c5, pllSPREAD, pllSPREADSh),
			Down:   c3&pllDOWNSPREAD != 0,
		}
	}
	c.PostDiv1 = r.mem.MustRead32(p.Base+pllCFGR6) & pllPOSTDIV
	c.PostDiv2 = r.mem.MustRead32(p.Base+pllCFGR7) & pllPOSTDIV
	return c
}

// configurable admits a PLL setter: the PLL must exist, be stopped and
// may be changed by who.
func (r *Rcc) configurable(op string, who rif.Caller, n int) (*PLLEntry, error) {
	p, err := r.pll(op, n)
	if err != nil {
		return nil, err
	}
	if err := r.gate(op, PLL(n), who); err != nil {
		return nil, err
	}
	if r.mem.MustRead32(p.Base+pllCFGR1)&pllEN != 0 {
		return nil, r.fail(op, PLL(n), hwerr.InvalidState, "pll is %v", r.pllPhase(p))
	}
	return p, nil
}

func (r *Rcc) SetPLLSource(who rif.Caller, n int, src NodeID) error {
	p, err := r.configurable("set_pll_source", who, n)
	if err != nil {
		return err
	}
	sel := -1
	for i, s := range p.Sources {
		if s == src {
			sel = i + 1
		}
	}
	if sel < 0 {
		return r.fail("set_pll_source", PLL(n), hwerr.InvalidArgument, "%s is not a source", r.name(src))
	}
	r.mem.MustModify32(p.Base+pllCFGR1, pllSRC, uint32(sel))
	r.changed("pll_source", PLL(n), zap.String("source", r.name(src)))
	return nil
}

func (r *Rcc) inRange(op string, n int, what string, v, lo, hi uint32) error {
	if v < lo || v > hi {
		return r.fail(op, PLL(n), hwerr.InvalidArgument, "%s %d outside %d..%d", what, v, lo, hi)
	}
	return nil
}

func (r *Rcc) SetPLLRefDiv(who rif.Caller, n int, div uint32) error {
	p, err := r.configurable("set_pll_refdiv", who, n)
	if err != nil {
		return err
	}
	if err := r.inRange("set_pll_refdiv", n, "ref_div", div, 1, refDivMax); err != nil {
		return err
	}
	r.mem.MustModify32(p.Base+pllCFGR2, pllFREFDIV, div)
	r.changed("pll_refdiv", PLL(n), zap.Uint32("div", div))
	return nil
}

func (r *Rcc) SetPLLFeedbackDiv(who rif.Caller, n int, div uint32) error {
	p, err := r.configurable("set_pll_fbdiv", who, n)
	if err != nil {
		return err
	}
	if err := r.inRange("set_pll_fbdiv", n, "feedback_div", div, 1, fbDivMax); err != nil {
		return err
	}
	r.mem.MustModify32(p.Base+pllCFGR2, pllFBDIV, div<<pllFBDIVSh)
	r.changed("pll_fbdiv", PLL(n), zap.Uint32("div", div))
	return nil
}

// SetPLLFracIn sets the fractional part of the feedback divider in
// 1/2^24 steps. A non-zero value turns the delta-sigma modulator on.
func (r *Rcc) SetPLLFracIn(who rif.Caller, n int, frac uint32) error {
	p, err := r.configurable("set_pll_fracin", who, n)
	if err != nil {
		return err
	}
	if err := r.inRange("set_pll_fracin", n, "frac_in", frac, 0, fracInModulo-1); err != nil {
		return err
	}
	r.mem.MustModify32(p.Base+pllCFGR3, pllFRACIN, frac)
	r.setBits(p.Base+pllCFGR4, pllDSMEN, frac != 0)
	r.changed("pll_fracin", PLL(n), zap.Uint32("frac", frac))
	return nil
}

func (r *Rcc) SetPLLPostDiv1(who rif.Caller, n int, div uint32) error {
	return r.setPostDiv("set_pll_postdiv1", who, n, pllCFGR6, div)
}

func (r *Rcc) SetPLLPostDiv2(who rif.Caller, n int, div uint32) error {
	return r.setPostDiv("set_pll_postdiv2", who, n, pllCFGR7, div)
}

func (r *Rcc) setPostDiv(op string, who rif.Caller, n int, off uintptr, div uint32) error {
	p, err := r.configurable(op, who, n)
	if err != nil {
		return err
	}
	if err := r.inRange(op, n, "post_div", div, 1, postDivMax); err != nil {
		return err
	}
	r.mem.MustModify32(p.Base+off, pllPOSTDIV, div)
	r.changed(op[4:], PLL(n), zap.Uint32("div", div))
	return nil
}

// SetPLLSpread configures spread spectrum, nil turns it off.
func (r *Rcc) SetPLLSpread(who rif.Caller, n int, s *Spread) error {
	p, err := r.configurable("set_pll_spread", who, n)
	if err != nil {
		return err
	}
	if s == nil {
		r.mem.MustModify32(p.Base+pllCFGR5, pllSSCGEN, 0)
		r.changed("pll_spread", PLL(n), zap.Bool("enabled", false))
		return nil
	}
	if err := r.inRange("set_pll_spread", n, "modulation divider", s.ModDiv, 0, pllDIVVAL); err != nil {
		return err
	}
	if err := r.inRange("set_pll_spread", n, "spread step", s.Step, 0, pllSPREAD>>pllSPREADSh); err != nil {
		return err
	}
	r.setBits(p.Base+pllCFGR3, pllDOWNSPREAD, s.Down)
	r.mem.MustWrite32(p.Base+pllCFGR5, pllSSCGEN|s.Step<<pllSPREADSh|s.ModDiv)
	r.changed("pll_spread", PLL(n), zap.Bool("enabled", true), zap.Uint32("step", s.Step))
	return nil
}

// ConfigurePLL applies every field of c in turn. It is not atomic; the
// first failing setter stops it.
func (r *Rcc) ConfigurePLL(who rif.Caller, n int, c PLLConfig) error {
	if c.HasSource {
		if err := r.SetPLLSource(who, n, c.Source); err != nil {
			return err
		}
	}
	steps := []func() error{
		func() error { return r.SetPLLRefDiv(who, n, c.RefDiv) },
		func() error { return r.SetPLLFeedbackDiv(who, n, c.FbDiv) },
		func() error { return r.SetPLLFracIn(who, n, c.FracIn) },
		func() error { return r.SetPLLPostDiv1(who, n, c.PostDiv1) },
		func() error { return r.SetPLLPostDiv2(who, n, c.PostDiv2) },
		func() error { return r.SetPLLSpread(who, n, c.Spread) },
		func() error { return r.SetPLLOutput(who, n, c.Output) },
	}
	for _, s := range steps {
		if err := s(); err != nil {
			return err
		}
	}
	return nil
}

// EnablePLL starts a fully configured PLL. The returned Pending settles
// once the PLL reports lock.
func (r *Rcc) EnablePLL(who rif.Caller, n int) (*Pending, error) {
	p, err := r.configurable("enable_pll", who, n)
	if err != nil {
		return nil, err
	}
	if c := r.pllConfig(p); !c.complete() {
		return nil, r.fail("enable_pll", PLL(n), hwerr.InvalidState, "configuration incomplete, pll is %v", r.pllPhase(p))
	}
	r.mem.MustModify32(p.Base+pllCFGR1, pllEN, pllEN)
	r.changed("pll_enable", PLL(n))
	return r.pending("pll_lock", PLL(n), p.Base+pllCFGR1, pllRDY, pllRDY), nil
}

// DisablePLL stops a PLL in any phase, unless a crossbar channel still
// selects it. Channels must be pointed elsewhere first, enabled or not.
func (r *Rcc) DisablePLL(who rif.Caller, n int) error {
	p, err := r.pll("disable_pll", n)
	if err != nil {
		return err
	}
	if err := r.gate("disable_pll", PLL(n), who); err != nil {
		return err
	}
	for _, ch := range r.cat.Channels {
		if src, ok := r.channelSource(&ch); ok && src == PLL(n) {
			return r.fail("disable_pll", PLL(n), hwerr.ResourceInUse, "selected by %s", ch.Name)
		}
	}
	r.mem.MustModify32(p.Base+pllCFGR1, pllEN, 0)
	r.changed("pll_disable", PLL(n))
	return nil
}

// SetPLLOutput switches the output between post-divided VCO, bypassed
// reference and off. It is accepted in any phase.
func (r *Rcc) SetPLLOutput(who rif.Caller, n int, o PLLOutput) error {
	p, err := r.pll("set_pll_output", n)
	if err != nil {
		return err
	}
	if err := r.gate("set_pll_output", PLL(n), who); err != nil {
		return err
	}
	var v uint32
	switch o {
	case OutputOff:
	case OutputPostDiv:
		v = pllFOUTPOSTDIVEN
	case OutputBypass:
		v = pllBYPASS
	default:
		return r.fail("set_pll_output", PLL(n), hwerr.InvalidArgument, "output %d", o)
	}
	r.mem.MustModify32(p.Base+pllCFGR4, pllFOUTPOSTDIVEN|pllBYPASS, v)
	r.changed("pll_output", PLL(n), zap.Stringer("output", o))
	return nil
}
