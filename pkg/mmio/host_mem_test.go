// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package mmio

import (
	"testing"

	"github.com/edsrzf/mmap-go"
)

func TestHostMemOffsets(t *testing.T) {
	// A page mapped at an unaligned base keeps the base offset in front.
	h := &HostMem{base: 0x44200010, size: 0x20, off: 0x10, m: make(mmap.MMap, 0x30)}
	h.MustWrite32(0x0, 0x11)
	h.MustWrite32(0x1c, 0x22)
	h.MustModify32(0x1c, 0xf0, 0x50)
	if v := h.MustRead32(0x0); v != 0x11 {
		t.Errorf("Expected 0x11 at offset 0, got %#x", v)
	}
	if v := h.MustRead32(0x1c); v != 0x52 {
		t.Errorf("Expected 0x52 at offset 0x1c, got %#x", v)
	}
	for i, b := range h.m[:0x10] {
		if b != 0 {
			t.Fatalf("Expected the page offset untouched, byte %d is %#x", i, b)
		}
	}

	for _, a := range []uintptr{0x20, 0x1e, 0x44200010} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Expected access at %#x to panic", a)
				}
			}()
			h.MustRead32(a)
		}()
	}
}
