// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"math/bits"

	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/metric"
	"github.com/u-root/u-clk/pkg/mmio"
)

// Resolve computes the output frequency of a node from the current
// register state. It only reads registers.
//
// An error of kind SourceDisabled means some node on the path is off,
// NotLocked that a PLL on the path has not locked yet and
// ChangeInProgress that a divider on the path has not settled.
func (r *Rcc) Resolve(id NodeID) (Frequency, error) {
	if !r.cat.Has(id) {
		return 0, hwerr.New("resolve", id.String(), hwerr.InvalidArgument, "unknown node")
	}
	return r.resolve(id, id)
}

func (r *Rcc) resolveErr(top, at NodeID, k hwerr.Kind, what string) error {
	msg := what
	if at != top {
		msg = r.name(at) + " " + what
	}
	return hwerr.New("resolve", r.name(top), k, "%s", msg)
}

func (r *Rcc) resolve(top, id NodeID) (Frequency, error) {
	switch id.Kind {
	case KindOscillator:
		return r.resolveOsc(top, r.cat.oscillator(id.Num))
	case KindPLL:
		return r.resolvePLL(top, r.cat.pll(id.Num))
	default:
		return r.resolveChannel(top, r.cat.channel(id.Num))
	}
}

func (r *Rcc) resolveOsc(top NodeID, o *OscEntry) (Frequency, error) {
	v := r.mem.MustRead32(o.Addr)
	if v&oscON == 0 {
		return 0, r.resolveErr(top, Osc(o.Num), hwerr.SourceDisabled, "disabled")
	}
	if o.Type == MSI && o.AltFreq != 0 && v&oscFREQSEL != 0 {
		return o.AltFreq, nil
	}
	return o.Freq, nil
}

func (r *Rcc) resolvePLL(top NodeID, p *PLLEntry) (Frequency, error) {
	id := PLL(p.Num)
	c1 := r.mem.MustRead32(p.Base + pllCFGR1)
	if c1&pllEN == 0 {
		return 0, r.resolveErr(top, id, hwerr.SourceDisabled, "disabled")
	}
	src, ok := r.pllSource(p)
	if !ok {
		return 0, r.resolveErr(top, id, hwerr.SourceDisabled, "no source")
	}
	c4 := r.mem.MustRead32(p.Base + pllCFGR4)
	switch {
	case c4&pllFOUTPOSTDIVEN != 0:
		if c1&pllRDY == 0 {
			return 0, r.resolveErr(top, id, hwerr.NotLocked, "not locked")
		}
		ref, err := r.resolve(top, src)
		if err != nil {
			return 0, err
		}
		return r.vco(p, ref), nil
	case c4&pllBYPASS != 0:
		return r.resolve(top, src)
	}
	return 0, r.resolveErr(top, id, hwerr.SourceDisabled, "output off")
}

// vco is ref * (fbdiv + fracin/2^24) / (refdiv * postdiv1 * postdiv2),
// computed in 128 bits and truncated.
func (r *Rcc) vco(p *PLLEntry, ref Frequency) Frequency {
	c2 := r.mem.MustRead32(p.Base + pllCFGR2)
	refDiv := uint64(c2 & pllFREFDIV)
	fbDiv := uint64(mmio.Field(c2, pllFBDIV, pllFBDIVSh))
	frac := uint64(r.mem.MustRead32(p.Base+pllCFGR3) & pllFRACIN)
	pd1 := uint64(r.mem.MustRead32(p.Base+pllCFGR6) & pllPOSTDIV)
	pd2 := uint64(r.mem.MustRead32(p.Base+pllCFGR7) & pllPOSTDIV)
	for _, d := range []*uint64{&refDiv, &pd1, &pd2} {
		if *d == 0 {
			*d = 1
		}
	}
	hi, lo := bits.Mul64(uint64(ref), fbDiv<<24+frac)
	den := refDiv * pd1 * pd2 << 24
	if hi >= den {
		return Frequency(^uint64(0))
	}
	q, _ := bits.Div64(hi, lo, den)
	return Frequency(q)
}

func (r *Rcc) resolveChannel(top NodeID, ch *ChannelEntry) (Frequency, error) {
	id := Channel(ch.Num)
	s, _ := r.CrossbarChannel(ch.Num)
	switch {
	case !s.Enabled:
		return 0, r.resolveErr(top, id, hwerr.SourceDisabled, "disabled")
	case !s.HasSource:
		return 0, r.resolveErr(top, id, hwerr.SourceDisabled, "no source")
	case !s.FineEnabled:
		return 0, r.resolveErr(top, id, hwerr.SourceDisabled, "output gated")
	case s.PredivPending || s.FinePending:
		return 0, r.resolveErr(top, id, hwerr.ChangeInProgress, "divider settling")
	}
	up, err := r.resolve(top, s.Source)
	if err != nil {
		return 0, err
	}
	pre := uint64(1)
	if s.PredivEnabled {
		pre = uint64(s.Prediv.Ratio())
	}
	return Frequency(uint64(up) / pre / uint64(s.Fine+1)), nil
}

// NodeFrequency is one entry of a tree snapshot.
type NodeFrequency struct {
	ID   NodeID
	Name string
	Freq Frequency
	Err  error
}

// ResolveAll resolves every node of the catalog, oscillators first.
func (r *Rcc) ResolveAll() []NodeFrequency {
	var out []NodeFrequency
	for _, id := range r.cat.Nodes() {
		f, err := r.Resolve(id)
		out = append(out, NodeFrequency{ID: id, Name: r.name(id), Freq: f, Err: err})
	}
	return out
}

// Samples implements metric.TreeSource.
func (r *Rcc) Samples() []metric.NodeSample {
	var out []metric.NodeSample
	for _, nf := range r.ResolveAll() {
		s := metric.NodeSample{Node: nf.Name, Kind: nf.ID.Kind.String(), Hertz: float64(nf.Freq), Active: nf.Err == nil}
		if nf.Err != nil {
			s.Reason = hwerr.KindOf(nf.Err).String()
		}
		out = append(out, s)
	}
	return out
}
