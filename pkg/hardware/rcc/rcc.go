// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rcc drives the clock tree of the reset and clock controller:
// oscillators, fractional PLLs and the crossbar of kernel clock channels
// with their divider pairs.
//
// The package keeps no state of its own. Everything is read back from
// registers, so several compartments sharing one controller see the same
// tree. Mutations of a node protected by an access descriptor are gated
// by the caller identity; reads and frequency resolution never are.
//
// Changes that the hardware acknowledges asynchronously (PLL lock and
// divider updates) return a *Pending. Poll it, or block on it with a
// bounded wait.
package rcc

import (
	"fmt"
	"time"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/metric"
	"github.com/u-root/u-clk/pkg/mmio"
	"go.uber.org/zap"
)

// PollPolicy bounds BlockUntilReady.
type PollPolicy struct {
	Timeout     time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
}

// DefaultPollPolicy matches the few milliseconds the hardware needs to
// lock a PLL or settle a divider.
var DefaultPollPolicy = PollPolicy{
	Timeout:     2 * time.Millisecond,
	MinInterval: 10 * time.Microsecond,
	MaxInterval: 500 * time.Microsecond,
}

type Rcc struct {
	mem  mmio.Port
	cat  *Catalog
	acl  *rif.Controller
	clk  clock.Clock
	log  *zap.Logger
	poll PollPolicy
}

type Option func(*Rcc)

func WithClock(c clock.Clock) Option {
	return func(r *Rcc) { r.clk = c }
}

func WithLogger(l *zap.Logger) Option {
	return func(r *Rcc) { r.log = l }
}

func WithPollPolicy(p PollPolicy) Option {
	return func(r *Rcc) { r.poll = p }
}

// Open maps the register window of the catalog from physical memory.
func Open(cat *Catalog, opts ...Option) (*Rcc, error) {
	if cat.RegisterSize == 0 {
		return nil, fmt.Errorf("catalog %q has no register window", cat.Name)
	}
	mem, err := mmio.OpenHostMemory(cat.RegisterBase, cat.RegisterSize)
	if err != nil {
		return nil, err
	}
	r, err := OpenWithMemory(mem, cat, opts...)
	if err != nil {
		mem.Close()
		return nil, err
	}
	return r, nil
}

// OpenWithMemory drives the clock tree described by cat through mem.
func OpenWithMemory(mem mmio.Port, cat *Catalog, opts ...Option) (*Rcc, error) {
	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog %q: %v", cat.Name, err)
	}
	r := &Rcc{
		mem:  mem,
		cat:  cat,
		clk:  clock.New(),
		log:  zap.NewNop(),
		poll: DefaultPollPolicy,
	}
	for _, o := range opts {
		o(r)
	}
	r.log = r.log.Named("rcc")
	r.acl = rif.New(mem, cat.RIF, r.log)
	return r, nil
}

func (r *Rcc) Close() {
	r.mem.Close()
}

func (r *Rcc) Catalog() *Catalog {
	return r.cat
}

// Access is the descriptor controller sharing this register window.
func (r *Rcc) Access() *rif.Controller {
	return r.acl
}

func (r *Rcc) name(id NodeID) string {
	return r.cat.NodeName(id)
}

func (r *Rcc) fail(op string, id NodeID, k hwerr.Kind, format string, args ...interface{}) error {
	metric.Rejected.WithLabelValues(op, k.String()).Inc()
	err := hwerr.New(op, r.name(id), k, format, args...)
	r.log.Info("rejected", zap.Error(err))
	return err
}

func (r *Rcc) unknown(op string, id NodeID) error {
	return r.fail(op, id, hwerr.InvalidArgument, "unknown node")
}

// gate admits a mutation of id by who.
func (r *Rcc) gate(op string, id NodeID, who rif.Caller) error {
	res := r.cat.Resource(id)
	if res == Unprotected {
		return nil
	}
	return r.acl.Check(op, res, who)
}

func (r *Rcc) changed(field string, id NodeID, fields ...zap.Field) {
	metric.ChangesRequested.WithLabelValues(field).Inc()
	r.log.Debug(field, append([]zap.Field{zap.String("node", r.name(id))}, fields...)...)
}

func (r *Rcc) setBits(a uintptr, mask uint32, on bool) {
	var v uint32
	if on {
		v = mask
	}
	r.mem.MustModify32(a, mask, v)
}
