// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mmio

import (
	"sync"
)

// Bank is the raw register view handed to hooks. It bypasses hooks and
// must only be used from inside one.
type Bank interface {
	Peek(uintptr) uint32
	Poke(uintptr, uint32)
}

// ReadHook may rewrite the value a read observes. The returned value is
// stored back, which lets hardware-owned status bits change over time.
type ReadHook func(b Bank, addr uintptr, v uint32) uint32

// WriteHook decides what a software write actually leaves in the
// register, given the previous content and the requested value.
type WriteHook func(b Bank, addr uintptr, old, req uint32) uint32

// Sim is a register file whose hardware behaviour is supplied by hooks.
// Unhooked registers behave like plain memory reading zero at reset.
type Sim struct {
	mu     sync.Mutex
	regs   map[uintptr]uint32
	reads  map[uintptr]ReadHook
	writes map[uintptr]WriteHook
	resets []func()
}

func NewSim() *Sim {
	return &Sim{
		regs:   make(map[uintptr]uint32),
		reads:  make(map[uintptr]ReadHook),
		writes: make(map[uintptr]WriteHook),
	}
}

type rawBank map[uintptr]uint32

func (r rawBank) Peek(a uintptr) uint32 {
	return r[a]
}

func (r rawBank) Poke(a uintptr, v uint32) {
	r[a] = v
}

// OnRead installs the read hook for addr, replacing any earlier one.
func (s *Sim) OnRead(addr uintptr, h ReadHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[addr] = h
}

// OnWrite installs the write hook for addr, replacing any earlier one.
func (s *Sim) OnWrite(addr uintptr, h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[addr] = h
}

// OnReset registers f to run, under the register lock, on every Reset.
func (s *Sim) OnReset(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, f)
}

func (s *Sim) MustRead32(a uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.regs[a]
	if h, ok := s.reads[a]; ok {
		v = h(rawBank(s.regs), a, v)
		s.regs[a] = v
	}
	return v
}

func (s *Sim) MustWrite32(a uintptr, d uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(a, d)
}

func (s *Sim) MustModify32(a uintptr, mask, value uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(a, s.regs[a]&^mask|value&mask)
}

func (s *Sim) store(a uintptr, d uint32) {
	if h, ok := s.writes[a]; ok {
		d = h(rawBank(s.regs), a, s.regs[a], d)
	}
	s.regs[a] = d
}

// Peek reads a register without running hooks.
func (s *Sim) Peek(a uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[a]
}

// Poke sets a register without running hooks, the way hardware sets a
// status flag behind software's back.
func (s *Sim) Poke(a uintptr, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs[a] = v
}

// Reset models a domain reset: every register returns to zero.
func (s *Sim) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regs = make(map[uintptr]uint32)
	for _, f := range s.resets {
		f()
	}
}

func (s *Sim) Close() {
}
