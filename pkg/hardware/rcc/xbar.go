// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"fmt"

	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"go.uber.org/zap"
)

// Prediv is a coarse divider setting. The ratio is the register value
// plus one.
type Prediv uint32

const (
	Div1    Prediv = 0x0
	Div2    Prediv = 0x1
	Div4    Prediv = 0x3
	Div1024 Prediv = 0x3ff
)

func (p Prediv) Valid() bool {
	switch p {
	case Div1, Div2, Div4, Div1024:
		return true
	}
	return false
}

func (p Prediv) Ratio() uint32 {
	return uint32(p) + 1
}

func (p Prediv) String() string {
	if !p.Valid() {
		return fmt.Sprintf("prediv(%#x)", uint32(p))
	}
	return fmt.Sprintf("div%d", p.Ratio())
}

// ParsePrediv accepts a ratio of 1, 2, 4 or 1024.
func ParsePrediv(ratio uint32) (Prediv, bool) {
	p := Prediv(ratio - 1)
	return p, ratio != 0 && p.Valid()
}

// ChannelState is the decoded selector and divider pair of a channel.
type ChannelState struct {
	Source        NodeID
	HasSource     bool
	Enabled       bool
	Prediv        Prediv
	PredivEnabled bool
	PredivPending bool
	// Fine is the fine divider field; the ratio is Fine+1.
	Fine        uint32
	FineEnabled bool
	FinePending bool
}

func (r *Rcc) channel(op string, n int) (*ChannelEntry, error) {
	ch := r.cat.channel(n)
	if ch == nil {
		return nil, r.unknown(op, Channel(n))
	}
	return ch, nil
}

func (r *Rcc) mutableChannel(op string, who rif.Caller, n int) (*ChannelEntry, error) {
	ch, err := r.channel(op, n)
	if err != nil {
		return nil, err
	}
	if err := r.gate(op, Channel(n), who); err != nil {
		return nil, err
	}
	return ch, nil
}

func (r *Rcc) channelSource(ch *ChannelEntry) (NodeID, bool) {
	sel := int(r.mem.MustRead32(r.cat.Crossbar.xbar(ch.Num)) & xbarSEL)
	if sel == 0 || sel > len(ch.Sources) {
		return NodeID{}, false
	}
	return ch.Sources[sel-1], true
}

func (r *Rcc) bit(a uintptr, b uint32) bool {
	return r.mem.MustRead32(a)&b != 0
}

func (r *Rcc) CrossbarChannel(n int) (ChannelState, error) {
	ch, err := r.channel("channel", n)
	if err != nil {
		return ChannelState{}, err
	}
	x := r.cat.Crossbar
	var s ChannelState
	s.Source, s.HasSource = r.channelSource(ch)
	s.Enabled = r.bit(x.xbar(n), xbarEN)
	s.Prediv = Prediv(r.mem.MustRead32(x.prediv(n)) & predivVAL)
	s.PredivEnabled = r.bit(x.predivEn(n))
	s.PredivPending = r.bit(x.predivSR(n))
	s.Fine = r.mem.MustRead32(x.findiv(n)) & findivVAL
	s.FineEnabled = r.bit(x.findivEn(n))
	s.FinePending = r.bit(x.findivSR(n))
	return s, nil
}

// SelectSource points a stopped channel at one of its legal sources.
// The hardware does not guarantee a glitch-free switch, so a running
// channel is refused.
func (r *Rcc) SelectSource(who rif.Caller, n int, src NodeID) error {
	ch, err := r.mutableChannel("select_source", who, n)
	if err != nil {
		return err
	}
	a := r.cat.Crossbar.xbar(n)
	if r.bit(a, xbarEN) {
		return r.fail("select_source", Channel(n), hwerr.InvalidState, "channel enabled")
	}
	sel := -1
	for i, s := range ch.Sources {
		if s == src {
			sel = i + 1
		}
	}
	if sel < 0 {
		return r.fail("select_source", Channel(n), hwerr.InvalidArgument, "%s is not a source", r.name(src))
	}
	r.mem.MustModify32(a, xbarSEL, uint32(sel))
	r.changed("xbar_source", Channel(n), zap.String("source", r.name(src)))
	return nil
}

func (r *Rcc) EnableChannel(who rif.Caller, n int) error {
	ch, err := r.mutableChannel("enable_channel", who, n)
	if err != nil {
		return err
	}
	if _, ok := r.channelSource(ch); !ok {
		return r.fail("enable_channel", Channel(n), hwerr.InvalidState, "no source selected")
	}
	r.mem.MustModify32(r.cat.Crossbar.xbar(n), xbarEN, xbarEN)
	r.changed("xbar_enable", Channel(n))
	return nil
}

func (r *Rcc) DisableChannel(who rif.Caller, n int) error {
	if _, err := r.mutableChannel("disable_channel", who, n); err != nil {
		return err
	}
	r.mem.MustModify32(r.cat.Crossbar.xbar(n), xbarEN, 0)
	r.changed("xbar_disable", Channel(n))
	return nil
}

// SetPreDividerEnabled bypasses the coarse divider when off.
func (r *Rcc) SetPreDividerEnabled(who rif.Caller, n int, on bool) error {
	if _, err := r.mutableChannel("prediv_enable", who, n); err != nil {
		return err
	}
	a, b := r.cat.Crossbar.predivEn(n)
	r.setBits(a, b, on)
	r.changed("prediv_enable", Channel(n), zap.Bool("on", on))
	return nil
}

// SetFineDividerEnabled gates the channel output.
func (r *Rcc) SetFineDividerEnabled(who rif.Caller, n int, on bool) error {
	if _, err := r.mutableChannel("findiv_enable", who, n); err != nil {
		return err
	}
	a, b := r.cat.Crossbar.findivEn(n)
	r.setBits(a, b, on)
	r.changed("findiv_enable", Channel(n), zap.Bool("on", on))
	return nil
}

// RequestPreDivider writes a new coarse divider. Until the returned
// Pending settles the value is not effective and no further request is
// accepted, not even for the same value.
func (r *Rcc) RequestPreDivider(who rif.Caller, n int, p Prediv) (*Pending, error) {
	if _, err := r.mutableChannel("request_prediv", who, n); err != nil {
		return nil, err
	}
	if !p.Valid() {
		return nil, r.fail("request_prediv", Channel(n), hwerr.InvalidArgument, "%v", p)
	}
	x := r.cat.Crossbar
	sa, sb := x.predivSR(n)
	if r.bit(sa, sb) {
		return nil, r.fail("request_prediv", Channel(n), hwerr.ChangeInProgress, "")
	}
	r.mem.MustWrite32(x.prediv(n), uint32(p))
	r.changed("prediv", Channel(n), zap.Stringer("div", p))
	return r.pending("prediv", Channel(n), sa, sb, 0), nil
}

// RequestFineDivider writes a new fine divider field, ratio value+1,
// with the same handshake as RequestPreDivider.
func (r *Rcc) RequestFineDivider(who rif.Caller, n int, value uint32) (*Pending, error) {
	if _, err := r.mutableChannel("request_findiv", who, n); err != nil {
		return nil, err
	}
	if value > fineMax {
		return nil, r.fail("request_findiv", Channel(n), hwerr.InvalidArgument, "%d outside 0..%d", value, fineMax)
	}
	x := r.cat.Crossbar
	sa, sb := x.findivSR(n)
	if r.bit(sa, sb) {
		return nil, r.fail("request_findiv", Channel(n), hwerr.ChangeInProgress, "")
	}
	r.mem.MustWrite32(x.findiv(n), value)
	r.changed("findiv", Channel(n), zap.Uint32("value", value))
	return r.pending("findiv", Channel(n), sa, sb, 0), nil
}

// SplitDivider turns an overall ratio into a coarse divider and a fine
// divider field. Ratios above 64 lose their remainder the way the vendor
// driver does; ratios that cannot be reached at all are refused.
func SplitDivider(total uint32) (Prediv, uint32, error) {
	switch {
	case total == 0:
		return 0, 0, hwerr.New("split_divider", "", hwerr.InvalidArgument, "ratio 0")
	case total <= 64:
		return Div1, total - 1, nil
	case total <= 128:
		return Div2, total/2 - 1, nil
	case total <= 256:
		return Div4, total/4 - 1, nil
	case total >= 1024 && total <= 1024*(fineMax+1):
		return Div1024, total/1024 - 1, nil
	}
	return 0, 0, hwerr.New("split_divider", "", hwerr.InvalidArgument, "ratio %d not reachable", total)
}
