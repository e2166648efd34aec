// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mmio provides the 32-bit register ports the clock controller is
// driven through: the real register window mapped from /dev/mem, and a
// simulated register file for tests and emulation.
package mmio

// Port is atomic per call. Nothing is atomic across calls.
type Port interface {
	MustRead32(uintptr) uint32
	MustWrite32(uintptr, uint32)
	// MustModify32 replaces the bits selected by mask with value.
	MustModify32(addr uintptr, mask, value uint32)
	Close()
}

// Field extracts a right-aligned bit field.
func Field(v, mask uint32, shift uint) uint32 {
	return (v & mask) >> shift
}
