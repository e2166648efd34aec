// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rif

import (
	"github.com/u-root/u-clk/pkg/mmio"
)

// Emulate installs the hardware side of the descriptor banks on a
// simulated register file: lock bits are sticky, locked descriptors
// ignore writes, and a semaphore is only granted when free to a
// whitelisted compartment.
func Emulate(sim *mmio.Sim, l Layout) {
	words := (l.NumResources + 31) / 32
	for w := 0; w < words; w++ {
		lockAddr := l.LockBase + uintptr(w)*4
		guarded := func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
			lk := b.Peek(lockAddr)
			return old&lk | req&^lk
		}
		sim.OnWrite(l.SecBase+uintptr(w)*4, guarded)
		sim.OnWrite(l.PrivBase+uintptr(w)*4, guarded)
		sim.OnWrite(lockAddr, func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
			return old | req
		})
	}

	for i := 0; i < l.NumResources; i++ {
		idx := i
		lockAddr, lockBit := l.lock(idx)
		sim.OnWrite(l.cidcfgr(idx), func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
			if b.Peek(lockAddr)&lockBit != 0 {
				return old
			}
			return req
		})
		sim.OnWrite(l.semcr(idx), func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
			if req&semcrMUTEX == 0 {
				return 0
			}
			if old&semcrMUTEX != 0 {
				return old
			}
			cfg := b.Peek(l.cidcfgr(idx))
			wl := Whitelist(mmio.Field(cfg, cidcfgrSEMWLC, cidcfgrWLCSh))
			cid := CID(mmio.Field(req, semcrSEMCID, semcrCIDSh))
			if cfg&(cidcfgrCFEN|cidcfgrSEMEN) != cidcfgrCFEN|cidcfgrSEMEN || !wl.Contains(cid) {
				return old
			}
			return req & (semcrMUTEX | semcrSEMCID)
		})
	}
}
