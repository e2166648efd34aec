// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/metric"
	"go.uber.org/zap"
)

// Pending is a change the hardware has not acknowledged yet. It settles
// when the masked status bits read as want. Issued changes cannot be
// cancelled.
type Pending struct {
	r     *Rcc
	what  string
	node  NodeID
	addr  uintptr
	mask  uint32
	want  uint32
	start time.Time
}

func (r *Rcc) pending(what string, id NodeID, addr uintptr, mask, want uint32) *Pending {
	return &Pending{r: r, what: what, node: id, addr: addr, mask: mask, want: want, start: r.clk.Now()}
}

// Node is the clock node the change was issued on.
func (p *Pending) Node() NodeID {
	return p.node
}

// What names the awaited condition, e.g. "pll_lock".
func (p *Pending) What() string {
	return p.what
}

// Poll reads the status once and reports whether the change settled.
func (p *Pending) Poll() bool {
	return p.r.mem.MustRead32(p.addr)&p.mask == p.want
}

// BlockUntilReady polls with exponential backoff until the change
// settles or timeout passes. A zero timeout uses the poll policy.
func (p *Pending) BlockUntilReady(timeout time.Duration) error {
	pol := p.r.poll
	if timeout <= 0 {
		timeout = pol.Timeout
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     pol.MinInterval,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         pol.MaxInterval,
		MaxElapsedTime:      timeout,
		Stop:                backoff.Stop,
		Clock:               p.r.clk,
	}
	b.Reset()
	polls := 0
	for {
		polls++
		if p.Poll() {
			metric.SettleSeconds.Observe(p.r.clk.Now().Sub(p.start).Seconds())
			p.r.log.Debug("settled", zap.String("node", p.r.name(p.node)), zap.String("what", p.what), zap.Int("polls", polls))
			return nil
		}
		d := b.NextBackOff()
		if d == backoff.Stop {
			return p.r.fail("block_until_ready", p.node, hwerr.Timeout, "%s not settled after %v", p.what, timeout)
		}
		p.r.clk.Sleep(d)
	}
}
