// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package mmio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"golang.org/x/sys/unix"
)

const memFile = "/dev/mem"

// HostMem is a register window of physical memory mapped once through
// /dev/mem. Addresses passed to it are offsets into the window, the
// same addresses a Sim is driven with.
type HostMem struct {
	base uintptr
	size uintptr
	off  uintptr
	m    mmap.MMap
	// Serialises read-modify-write within this process. Other bus
	// masters are not excluded.
	mu sync.Mutex
}

// OpenHostMemory maps [base, base+size) of physical memory.
func OpenHostMemory(base uintptr, size int) (*HostMem, error) {
	f, err := os.OpenFile(memFile, os.O_RDWR|os.O_SYNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", memFile, err)
	}
	defer f.Close()

	ps := uintptr(unix.Getpagesize())
	page := base &^ (ps - 1)
	off := base - page
	m, err := mmap.MapRegion(f, size+int(off), mmap.RDWR, 0, int64(page))
	if err != nil {
		return nil, fmt.Errorf("couldn't map region (%#x, %v): %v", base, size, err)
	}
	return &HostMem{base: base, size: uintptr(size), off: off, m: m}, nil
}

func (h *HostMem) reg(a uintptr) *uint32 {
	if a+4 > h.size || a%4 != 0 {
		panic(fmt.Sprintf("register %#x outside mapped window %#08x+%#x", a, h.base, h.size))
	}
	return (*uint32)(unsafe.Pointer(&h.m[h.off+a]))
}

func (h *HostMem) MustRead32(a uintptr) uint32 {
	return atomic.LoadUint32(h.reg(a))
}

func (h *HostMem) MustWrite32(a uintptr, d uint32) {
	atomic.StoreUint32(h.reg(a), d)
}

func (h *HostMem) MustModify32(a uintptr, mask, value uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.reg(a)
	atomic.StoreUint32(r, atomic.LoadUint32(r)&^mask|value&mask)
}

func (h *HostMem) Close() {
	if err := h.m.Unmap(); err != nil {
		panic(err)
	}
}
