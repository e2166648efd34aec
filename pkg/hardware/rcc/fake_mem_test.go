// Copyright 2018 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"fmt"
	"testing"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
	opModify
)

type op struct {
	kind    opKind
	address uintptr
	mask    uint32
	data32  uint32
}

// fakeMem checks that registers are accessed in exactly the expected
// order.
type fakeMem struct {
	t   *testing.T
	ops []op
}

func opstr(o *op) string {
	switch o.kind {
	case opWrite:
		return fmt.Sprintf("{write @ %08x = %08x}", o.address, o.data32)
	case opModify:
		return fmt.Sprintf("{modify @ %08x mask %08x = %08x}", o.address, o.mask, o.data32)
	}
	return fmt.Sprintf("{read @ %08x = %08x}", o.address, o.data32)
}

func (m *fakeMem) next(what string, a uintptr) (op, bool) {
	m.t.Helper()
	if len(m.ops) == 0 {
		m.t.Errorf("Unexpected %s on %08x, no more operations expected", what, a)
		return op{}, false
	}
	o := m.ops[0]
	m.ops = m.ops[1:]
	return o, true
}

func (m *fakeMem) MustRead32(a uintptr) uint32 {
	m.t.Helper()
	o, ok := m.next("read", a)
	if !ok {
		return 0
	}
	if o.kind != opRead || o.address != a {
		m.t.Errorf("Expected %s, got 32 bit read on %08x", opstr(&o), a)
	}
	return o.data32
}

func (m *fakeMem) MustWrite32(a uintptr, d uint32) {
	m.t.Helper()
	o, ok := m.next("write", a)
	if !ok {
		return
	}
	if o.kind != opWrite || o.address != a || o.data32 != d {
		m.t.Errorf("Expected %s, got 32 bit write of %08x on %08x", opstr(&o), d, a)
	}
}

func (m *fakeMem) MustModify32(a uintptr, mask, value uint32) {
	m.t.Helper()
	o, ok := m.next("modify", a)
	if !ok {
		return
	}
	if o.kind != opModify || o.address != a || o.mask != mask || o.data32 != value {
		m.t.Errorf("Expected %s, got modify of %08x mask %08x on %08x", opstr(&o), value, mask, a)
	}
}

func (m *fakeMem) ExpectWrite32(a uintptr, d uint32) {
	m.ops = append(m.ops, op{opWrite, a, 0, d})
}

func (m *fakeMem) ExpectModify32(a uintptr, mask, value uint32) {
	m.ops = append(m.ops, op{opModify, a, mask, value})
}

func (m *fakeMem) FakeRead32(a uintptr, d uint32) {
	m.ops = append(m.ops, op{opRead, a, 0, d})
}

func (m *fakeMem) Close() {
}

// Done fails the test if expected operations were not performed.
func (m *fakeMem) Done() {
	m.t.Helper()
	for i := range m.ops {
		m.t.Errorf("Expected %s, never happened", opstr(&m.ops[i]))
	}
}

func fakeMemory(t *testing.T) *fakeMem {
	return &fakeMem{t, make([]op, 0)}
}
