// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rif

import (
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"go.uber.org/zap"
)

func (c *Controller) writable(op string, idx int, who Caller) error {
	if err := c.check(op, idx); err != nil {
		return err
	}
	a, b := c.l.lock(idx)
	if c.mem.MustRead32(a)&b != 0 {
		return c.fail(op, idx, hwerr.Locked, "")
	}
	if !who.Trusted() {
		return c.fail(op, idx, hwerr.NotPermitted, "%v is not trusted", who)
	}
	return nil
}

func (c *Controller) setBit(a uintptr, b uint32, on bool) {
	var v uint32
	if on {
		v = b
	}
	c.mem.MustModify32(a, b, v)
}

func (c *Controller) SetSecurity(idx int, who Caller, secure bool) error {
	if err := c.writable("set_security", idx, who); err != nil {
		return err
	}
	a, b := c.l.sec(idx)
	c.setBit(a, b, secure)
	c.log.Debug("security", zap.Int("resource", idx), zap.Bool("secure", secure))
	return nil
}

func (c *Controller) SetPrivilege(idx int, who Caller, privileged bool) error {
	if err := c.writable("set_privilege", idx, who); err != nil {
		return err
	}
	a, b := c.l.priv(idx)
	c.setBit(a, b, privileged)
	c.log.Debug("privilege", zap.Int("resource", idx), zap.Bool("privileged", privileged))
	return nil
}

// SetStaticCID makes cid the only compartment allowed to configure the
// resource. Any dynamic whitelist is replaced.
func (c *Controller) SetStaticCID(idx int, who Caller, cid CID) error {
	if err := c.writable("set_static_cid", idx, who); err != nil {
		return err
	}
	if cid > MaxCID {
		return c.fail("set_static_cid", idx, hwerr.InvalidArgument, "cid %d out of range", cid)
	}
	d := c.read(idx)
	c.mem.MustWrite32(c.l.cidcfgr(idx), cidcfgrCFEN|uint32(cid)<<cidcfgrSCIDSh)
	if d.Held {
		c.mem.MustWrite32(c.l.semcr(idx), 0)
	}
	c.log.Debug("static cid", zap.Int("resource", idx), zap.Stringer("cid", cid))
	return nil
}

// SetDynamicCID lets the whitelisted compartments share the resource
// through its semaphore. A current holder that is not in the new
// whitelist loses the semaphore.
func (c *Controller) SetDynamicCID(idx int, who Caller, wl Whitelist) error {
	if err := c.writable("set_dynamic_cid", idx, who); err != nil {
		return err
	}
	if wl == 0 {
		return c.fail("set_dynamic_cid", idx, hwerr.InvalidArgument, "empty whitelist")
	}
	d := c.read(idx)
	c.mem.MustWrite32(c.l.cidcfgr(idx), cidcfgrCFEN|cidcfgrSEMEN|uint32(wl)<<cidcfgrWLCSh)
	if d.Mode == ModeDynamic && d.Held && !wl.Contains(d.Holder) {
		c.mem.MustWrite32(c.l.semcr(idx), 0)
	}
	c.log.Debug("dynamic cid", zap.Int("resource", idx), zap.Uint8("whitelist", uint8(wl)))
	return nil
}

// ClearFilter disables compartment filtering. A held semaphore is dropped.
func (c *Controller) ClearFilter(idx int, who Caller) error {
	if err := c.writable("clear_filter", idx, who); err != nil {
		return err
	}
	c.dropFilter(idx)
	c.log.Debug("filter cleared", zap.Int("resource", idx))
	return nil
}

func (c *Controller) dropFilter(idx int) {
	d := c.read(idx)
	c.mem.MustWrite32(c.l.cidcfgr(idx), 0)
	if d.Held {
		c.mem.MustWrite32(c.l.semcr(idx), 0)
	}
}

// Lock freezes the descriptor until the next domain reset. Locking an
// already locked resource succeeds.
func (c *Controller) Lock(idx int, who Caller) error {
	if err := c.check("lock", idx); err != nil {
		return err
	}
	a, b := c.l.lock(idx)
	if c.mem.MustRead32(a)&b != 0 {
		return nil
	}
	if !who.Trusted() {
		return c.fail("lock", idx, hwerr.NotPermitted, "%v is not trusted", who)
	}
	c.mem.MustModify32(a, b, b)
	c.log.Info("descriptor locked", zap.Int("resource", idx))
	return nil
}

// Provision applies a whole descriptor in one trusted call. Holder and
// Held are ignored; Locked set means lock after applying.
func (c *Controller) Provision(idx int, who Caller, d Descriptor) error {
	if err := c.writable("provision", idx, who); err != nil {
		return err
	}
	switch d.Mode {
	case ModeStatic:
		if d.StaticCID > MaxCID {
			return c.fail("provision", idx, hwerr.InvalidArgument, "cid %d out of range", d.StaticCID)
		}
	case ModeDynamic:
		if d.Whitelist == 0 {
			return c.fail("provision", idx, hwerr.InvalidArgument, "empty whitelist")
		}
	}
	a, b := c.l.sec(idx)
	c.setBit(a, b, d.Secure)
	a, b = c.l.priv(idx)
	c.setBit(a, b, d.Privileged)
	var err error
	switch d.Mode {
	case ModeNone:
		c.dropFilter(idx)
	case ModeStatic:
		err = c.SetStaticCID(idx, who, d.StaticCID)
	case ModeDynamic:
		err = c.SetDynamicCID(idx, who, d.Whitelist)
	}
	if err != nil {
		return err
	}
	if d.Locked {
		return c.Lock(idx, who)
	}
	return nil
}
