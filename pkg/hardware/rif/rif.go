// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rif implements the per-resource access control of the clock
// controller: security and privilege gates, compartment (CID) filtering,
// a configuration lock and, for dynamically filtered resources, a
// hardware semaphore.
//
// Every descriptor lives in registers. The controller keeps no shadow
// state, so several processes sharing one register window observe the
// same descriptors.
package rif

import (
	"fmt"

	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/metric"
	"github.com/u-root/u-clk/pkg/mmio"
	"go.uber.org/zap"
)

// CID identifies a compartment, 0..7.
type CID uint8

const (
	CIDApplication CID = 1
	CIDRealTime    CID = 2

	MaxCID CID = 7
)

func (c CID) String() string {
	return fmt.Sprintf("cid%d", uint8(c))
}

// Whitelist is a bitset of CIDs.
type Whitelist uint8

func WhitelistOf(cids ...CID) Whitelist {
	var w Whitelist
	for _, c := range cids {
		w |= 1 << c
	}
	return w
}

func (w Whitelist) Contains(c CID) bool {
	return c <= MaxCID && w&(1<<c) != 0
}

// Caller is the identity an operation is performed as.
type Caller struct {
	CID        CID
	Secure     bool
	Privileged bool
}

// Trusted callers may change descriptors.
func (c Caller) Trusted() bool {
	return c.Secure && c.Privileged
}

func (c Caller) String() string {
	s := c.CID.String()
	if c.Secure {
		s += "/sec"
	}
	if c.Privileged {
		s += "/priv"
	}
	return s
}

type Mode int

const (
	ModeNone Mode = iota
	ModeStatic
	ModeDynamic
)

func (m Mode) String() string {
	switch m {
	case ModeStatic:
		return "static"
	case ModeDynamic:
		return "dynamic"
	}
	return "none"
}

// Descriptor is the decoded access-control state of one resource.
// StaticCID is only meaningful in ModeStatic, Whitelist and the
// semaphore fields only in ModeDynamic.
type Descriptor struct {
	Secure     bool
	Privileged bool
	Mode       Mode
	StaticCID  CID
	Whitelist  Whitelist
	Held       bool
	Holder     CID
	Locked     bool
}

// Layout places the descriptor register banks.
type Layout struct {
	SecBase      uintptr
	PrivBase     uintptr
	LockBase     uintptr
	CIDBase      uintptr
	NumResources int
}

const (
	cidcfgrCFEN   = 1 << 0
	cidcfgrSEMEN  = 1 << 1
	cidcfgrSCID   = 0x7 << 4
	cidcfgrSCIDSh = 4
	cidcfgrSEMWLC = 0xff << 16
	cidcfgrWLCSh  = 16

	semcrMUTEX   = 1 << 0
	semcrSEMCID  = 0x7 << 4
	semcrCIDSh   = 4
	cidcfgrWidth = 8
)

func bitWord(base uintptr, idx int) (uintptr, uint32) {
	return base + uintptr(idx/32)*4, 1 << uint(idx%32)
}

func (l Layout) sec(idx int) (uintptr, uint32)  { return bitWord(l.SecBase, idx) }
func (l Layout) priv(idx int) (uintptr, uint32) { return bitWord(l.PrivBase, idx) }
func (l Layout) lock(idx int) (uintptr, uint32) { return bitWord(l.LockBase, idx) }

func (l Layout) cidcfgr(idx int) uintptr {
	return l.CIDBase + uintptr(idx)*cidcfgrWidth
}

func (l Layout) semcr(idx int) uintptr {
	return l.cidcfgr(idx) + 4
}

// End is one past the highest register offset the layout touches.
func (l Layout) End() uintptr {
	if l.NumResources <= 0 {
		return 0
	}
	last := l.NumResources - 1
	end := l.semcr(last) + 4
	for _, b := range []uintptr{l.SecBase, l.PrivBase, l.LockBase} {
		if a, _ := bitWord(b, last); a+4 > end {
			end = a + 4
		}
	}
	return end
}

// Controller reads and writes access descriptors through a register port.
type Controller struct {
	mem mmio.Port
	l   Layout
	log *zap.Logger
}

func New(mem mmio.Port, l Layout, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{mem: mem, l: l, log: log.Named("rif")}
}

func (c *Controller) NumResources() int {
	return c.l.NumResources
}

func (c *Controller) name(idx int) string {
	return fmt.Sprintf("resource %d", idx)
}

func (c *Controller) fail(op string, idx int, k hwerr.Kind, format string, args ...interface{}) error {
	metric.Rejected.WithLabelValues(op, k.String()).Inc()
	err := hwerr.New(op, c.name(idx), k, format, args...)
	c.log.Info("rejected", zap.Error(err))
	return err
}

func (c *Controller) check(op string, idx int) error {
	if idx < 0 || idx >= c.l.NumResources {
		return c.fail(op, idx, hwerr.InvalidArgument, "out of range 0..%d", c.l.NumResources-1)
	}
	return nil
}

// Get decodes the descriptor of a resource. Anyone may read descriptors.
func (c *Controller) Get(idx int) (Descriptor, error) {
	if err := c.check("get", idx); err != nil {
		return Descriptor{}, err
	}
	return c.read(idx), nil
}

func (c *Controller) read(idx int) Descriptor {
	var d Descriptor
	a, b := c.l.sec(idx)
	d.Secure = c.mem.MustRead32(a)&b != 0
	a, b = c.l.priv(idx)
	d.Privileged = c.mem.MustRead32(a)&b != 0
	a, b = c.l.lock(idx)
	d.Locked = c.mem.MustRead32(a)&b != 0

	cfg := c.mem.MustRead32(c.l.cidcfgr(idx))
	switch {
	case cfg&cidcfgrCFEN == 0:
		d.Mode = ModeNone
	case cfg&cidcfgrSEMEN != 0:
		d.Mode = ModeDynamic
		d.Whitelist = Whitelist(mmio.Field(cfg, cidcfgrSEMWLC, cidcfgrWLCSh))
		sem := c.mem.MustRead32(c.l.semcr(idx))
		if sem&semcrMUTEX != 0 {
			d.Held = true
			d.Holder = CID(mmio.Field(sem, semcrSEMCID, semcrCIDSh))
		}
	default:
		d.Mode = ModeStatic
		d.StaticCID = CID(mmio.Field(cfg, cidcfgrSCID, cidcfgrSCIDSh))
	}
	return d
}

// Check gates a clock mutation on resource idx made by who. Reads are
// never gated and must not call it.
func (c *Controller) Check(op string, idx int, who Caller) error {
	if err := c.check(op, idx); err != nil {
		return err
	}
	d := c.read(idx)
	if d.Secure && !who.Secure {
		return c.fail(op, idx, hwerr.NotPermitted, "secure resource, %v is non-secure", who)
	}
	if d.Privileged && !who.Privileged {
		return c.fail(op, idx, hwerr.NotPermitted, "privileged resource, %v is unprivileged", who)
	}
	switch d.Mode {
	case ModeStatic:
		if d.StaticCID != who.CID {
			return c.fail(op, idx, hwerr.NotPermitted, "owned by %v", d.StaticCID)
		}
	case ModeDynamic:
		if !d.Held || d.Holder != who.CID {
			return c.fail(op, idx, hwerr.NotPermitted, "%v does not hold the semaphore", who.CID)
		}
	}
	return nil
}
