// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rif

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/metric"
	"github.com/u-root/u-clk/pkg/mmio"
)

var (
	testLayout = Layout{
		SecBase:      0x1000,
		PrivBase:     0x1010,
		LockBase:     0x1020,
		CIDBase:      0x2000,
		NumResources: 40,
	}
	trusted = Caller{CID: 1, Secure: true, Privileged: true}
	nsApp   = Caller{CID: CIDApplication, Privileged: true}
	nsRT    = Caller{CID: CIDRealTime, Privileged: true}
)

func newTestController() (*Controller, *mmio.Sim) {
	sim := mmio.NewSim()
	Emulate(sim, testLayout)
	return New(sim, testLayout, nil), sim
}

func mustGet(t *testing.T, c *Controller, idx int) Descriptor {
	t.Helper()
	d, err := c.Get(idx)
	if err != nil {
		t.Fatalf("Get(%d): %v", idx, err)
	}
	return d
}

func TestRegisterPlacement(t *testing.T) {
	tests := []struct {
		idx    int
		word   uintptr
		bit    uint32
		cidcfg uintptr
	}{
		{0, 0x1000, 1 << 0, 0x2000},
		{31, 0x1000, 1 << 31, 0x2000 + 31*8},
		{33, 0x1004, 1 << 1, 0x2000 + 33*8},
	}
	for _, tt := range tests {
		a, b := testLayout.sec(tt.idx)
		if a != tt.word || b != tt.bit {
			t.Errorf("sec(%d) = %#x/%#x, want %#x/%#x", tt.idx, a, b, tt.word, tt.bit)
		}
		if a := testLayout.cidcfgr(tt.idx); a != tt.cidcfg {
			t.Errorf("cidcfgr(%d) = %#x, want %#x", tt.idx, a, tt.cidcfg)
		}
		if a := testLayout.semcr(tt.idx); a != tt.cidcfg+4 {
			t.Errorf("semcr(%d) = %#x, want %#x", tt.idx, a, tt.cidcfg+4)
		}
	}
}

func TestDescriptorEncoding(t *testing.T) {
	c, _ := newTestController()
	if err := c.SetSecurity(5, trusted, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetStaticCID(5, trusted, CIDRealTime); err != nil {
		t.Fatal(err)
	}
	want := Descriptor{Secure: true, Mode: ModeStatic, StaticCID: CIDRealTime}
	if diff := cmp.Diff(want, mustGet(t, c, 5)); diff != "" {
		t.Errorf("static descriptor mismatch (-want +got):\n%s", diff)
	}

	// Static and dynamic share one field, the last setter wins.
	wl := WhitelistOf(CIDApplication, CIDRealTime)
	if err := c.SetDynamicCID(5, trusted, wl); err != nil {
		t.Fatal(err)
	}
	want = Descriptor{Secure: true, Mode: ModeDynamic, Whitelist: wl}
	if diff := cmp.Diff(want, mustGet(t, c, 5)); diff != "" {
		t.Errorf("dynamic descriptor mismatch (-want +got):\n%s", diff)
	}

	if err := c.ClearFilter(5, trusted); err != nil {
		t.Fatal(err)
	}
	want = Descriptor{Secure: true}
	if diff := cmp.Diff(want, mustGet(t, c, 5)); diff != "" {
		t.Errorf("cleared descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestSettersRequireTrust(t *testing.T) {
	c, _ := newTestController()
	for _, who := range []Caller{nsApp, {CID: 1, Secure: true}, {CID: 1}} {
		errs := []error{
			c.SetSecurity(1, who, true),
			c.SetPrivilege(1, who, true),
			c.SetStaticCID(1, who, 1),
			c.SetDynamicCID(1, who, 0x6),
			c.ClearFilter(1, who),
			c.Lock(1, who),
		}
		for i, err := range errs {
			if !errors.Is(err, hwerr.NotPermitted) {
				t.Errorf("setter %d as %v: expected NotPermitted, got %v", i, who, err)
			}
		}
	}
}

func TestLockOneWay(t *testing.T) {
	c, sim := newTestController()
	for _, idx := range []int{0, 7, 32, 39} {
		if err := c.SetDynamicCID(idx, trusted, WhitelistOf(1, 2)); err != nil {
			t.Fatal(err)
		}
		if err := c.Lock(idx, trusted); err != nil {
			t.Fatalf("Lock(%d): %v", idx, err)
		}
		before := mustGet(t, c, idx)
		for _, who := range []Caller{trusted, nsApp} {
			for _, on := range []bool{false, true} {
				errs := []error{
					c.SetSecurity(idx, who, on),
					c.SetPrivilege(idx, who, on),
					c.SetStaticCID(idx, who, 3),
					c.SetDynamicCID(idx, who, 0x80),
					c.ClearFilter(idx, who),
					c.Provision(idx, who, Descriptor{}),
				}
				for i, err := range errs {
					if !errors.Is(err, hwerr.Locked) {
						t.Errorf("resource %d setter %d as %v: expected Locked, got %v", idx, i, who, err)
					}
				}
			}
		}
		if diff := cmp.Diff(before, mustGet(t, c, idx)); diff != "" {
			t.Errorf("locked descriptor changed (-before +after):\n%s", diff)
		}
		if err := c.Lock(idx, nsApp); err != nil {
			t.Errorf("re-lock of locked resource: %v", err)
		}
	}

	// Neighbours in the same register word are unaffected.
	if err := c.SetSecurity(1, trusted, true); err != nil {
		t.Errorf("SetSecurity on unlocked neighbour: %v", err)
	}

	// Writes that bypass the controller are ignored by the hardware too.
	sim.MustWrite32(testLayout.LockBase, 0)
	sim.MustWrite32(testLayout.cidcfgr(7), 0)
	if d := mustGet(t, c, 7); !d.Locked || d.Mode != ModeDynamic {
		t.Errorf("Expected raw writes to be ignored, got %+v", d)
	}

	sim.Reset()
	if d := mustGet(t, c, 7); d.Locked {
		t.Errorf("Expected domain reset to clear lock")
	}
	if err := c.SetStaticCID(7, trusted, 2); err != nil {
		t.Errorf("SetStaticCID after reset: %v", err)
	}
}

func TestSemaphoreMutualExclusion(t *testing.T) {
	c, _ := newTestController()
	const r = 12
	a, b := CIDApplication, CIDRealTime
	if err := c.SetDynamicCID(r, trusted, WhitelistOf(a, b)); err != nil {
		t.Fatal(err)
	}
	if err := c.Take(r, a); err != nil {
		t.Fatalf("Take(A): %v", err)
	}
	if err := c.Take(r, b); !errors.Is(err, hwerr.AlreadyHeld) {
		t.Errorf("Take(B) while A holds: expected AlreadyHeld, got %v", err)
	}
	if err := c.Take(r, a); !errors.Is(err, hwerr.AlreadyHeld) {
		t.Errorf("Take(A) again: expected AlreadyHeld, got %v", err)
	}
	if err := c.Release(r, b); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Release by non-holder: expected NotPermitted, got %v", err)
	}
	if err := c.Release(r, a); err != nil {
		t.Fatalf("Release(A): %v", err)
	}
	if err := c.Release(r, a); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Release of unheld: expected NotPermitted, got %v", err)
	}
	if err := c.Take(r, b); err != nil {
		t.Fatalf("Take(B) after release: %v", err)
	}
	if err := c.Release(r, a); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Release(B's) by A: expected NotPermitted, got %v", err)
	}
	if h, held, err := c.CurrentHolder(r); err != nil || !held || h != b {
		t.Errorf("CurrentHolder = %v, %v, %v; want %v, true, nil", h, held, err, b)
	}
}

func TestTakeRequiresDynamicWhitelist(t *testing.T) {
	c, _ := newTestController()
	if err := c.Take(3, CIDApplication); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Take without filter: expected NotPermitted, got %v", err)
	}
	if err := c.SetStaticCID(3, trusted, CIDApplication); err != nil {
		t.Fatal(err)
	}
	if err := c.Take(3, CIDApplication); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Take on static: expected NotPermitted, got %v", err)
	}
	if err := c.SetDynamicCID(3, trusted, WhitelistOf(CIDRealTime)); err != nil {
		t.Fatal(err)
	}
	if err := c.Take(3, CIDApplication); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Take by non-whitelisted: expected NotPermitted, got %v", err)
	}
	if _, held, _ := c.CurrentHolder(3); held {
		t.Errorf("Expected no holder")
	}
}

func TestTakeRace(t *testing.T) {
	c, _ := newTestController()
	const r = 20
	if err := c.SetDynamicCID(r, trusted, 0xff); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	errs := make([]error, MaxCID+1)
	for cid := CID(0); cid <= MaxCID; cid++ {
		wg.Add(1)
		go func(cid CID) {
			defer wg.Done()
			errs[cid] = c.Take(r, cid)
		}(cid)
	}
	wg.Wait()

	winners := 0
	for cid, err := range errs {
		switch {
		case err == nil:
			winners++
			if h, _, _ := c.CurrentHolder(r); h != CID(cid) {
				t.Errorf("winner %d but holder is %v", cid, h)
			}
		case !errors.Is(err, hwerr.AlreadyHeld):
			t.Errorf("cid %d: expected AlreadyHeld, got %v", cid, err)
		}
	}
	if winners != 1 {
		t.Errorf("Expected exactly one winner, got %d", winners)
	}
}

func TestFilterChangeDropsHolder(t *testing.T) {
	c, _ := newTestController()
	const r = 9
	if err := c.SetDynamicCID(r, trusted, WhitelistOf(1, 2)); err != nil {
		t.Fatal(err)
	}
	if err := c.Take(r, 1); err != nil {
		t.Fatal(err)
	}
	// Holder stays listed.
	if err := c.SetDynamicCID(r, trusted, WhitelistOf(1, 3)); err != nil {
		t.Fatal(err)
	}
	if h, held, _ := c.CurrentHolder(r); !held || h != 1 {
		t.Errorf("Expected cid1 to keep the semaphore, got %v %v", h, held)
	}
	// Holder dropped from the list.
	if err := c.SetDynamicCID(r, trusted, WhitelistOf(3)); err != nil {
		t.Fatal(err)
	}
	if _, held, _ := c.CurrentHolder(r); held {
		t.Errorf("Expected semaphore released when holder leaves whitelist")
	}
	if err := c.Take(r, 3); err != nil {
		t.Fatal(err)
	}
	if err := c.SetStaticCID(r, trusted, 3); err != nil {
		t.Fatal(err)
	}
	if err := c.SetDynamicCID(r, trusted, WhitelistOf(3)); err != nil {
		t.Fatal(err)
	}
	if _, held, _ := c.CurrentHolder(r); held {
		t.Errorf("Expected static mode to have cleared the semaphore")
	}
}

func TestCheck(t *testing.T) {
	c, _ := newTestController()
	if err := c.Check("test", 0, nsApp); err != nil {
		t.Errorf("unfiltered resource: %v", err)
	}

	if err := c.SetSecurity(1, trusted, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Check("test", 1, nsApp); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("secure resource from non-secure: expected NotPermitted, got %v", err)
	}

	if err := c.SetPrivilege(2, trusted, true); err != nil {
		t.Fatal(err)
	}
	if err := c.Check("test", 2, Caller{CID: 1}); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("privileged resource from unprivileged: expected NotPermitted, got %v", err)
	}

	if err := c.SetStaticCID(3, trusted, CIDRealTime); err != nil {
		t.Fatal(err)
	}
	if err := c.Check("test", 3, nsApp); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("static owned by other: expected NotPermitted, got %v", err)
	}
	if err := c.Check("test", 3, nsRT); err != nil {
		t.Errorf("static owner: %v", err)
	}

	if err := c.SetDynamicCID(4, trusted, WhitelistOf(CIDApplication, CIDRealTime)); err != nil {
		t.Fatal(err)
	}
	if err := c.Check("test", 4, nsApp); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("dynamic without semaphore: expected NotPermitted, got %v", err)
	}
	if err := c.Take(4, CIDApplication); err != nil {
		t.Fatal(err)
	}
	if err := c.Check("test", 4, nsApp); err != nil {
		t.Errorf("dynamic holder: %v", err)
	}
	if err := c.Check("test", 4, nsRT); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("dynamic non-holder: expected NotPermitted, got %v", err)
	}

	if err := c.Check("test", 40, nsApp); !errors.Is(err, hwerr.InvalidArgument) {
		t.Errorf("out of range: expected InvalidArgument, got %v", err)
	}
}

func TestProvision(t *testing.T) {
	c, _ := newTestController()
	d := Descriptor{Privileged: true, Mode: ModeDynamic, Whitelist: WhitelistOf(1, 2), Locked: true}
	if err := c.Provision(30, trusted, d); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(d, mustGet(t, c, 30)); diff != "" {
		t.Errorf("provisioned descriptor mismatch (-want +got):\n%s", diff)
	}
	if err := c.Provision(31, trusted, Descriptor{Mode: ModeDynamic}); !errors.Is(err, hwerr.InvalidArgument) {
		t.Errorf("empty whitelist: expected InvalidArgument, got %v", err)
	}
	if err := c.Provision(31, nsApp, Descriptor{}); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("untrusted provision: expected NotPermitted, got %v", err)
	}
}

func TestReleaseReadBack(t *testing.T) {
	c, sim := newTestController()
	const r = 21
	if err := c.SetDynamicCID(r, trusted, WhitelistOf(CIDApplication)); err != nil {
		t.Fatal(err)
	}
	if err := c.Take(r, CIDApplication); err != nil {
		t.Fatal(err)
	}
	// A semaphore that ignores the release write.
	sim.OnWrite(testLayout.semcr(r), func(b mmio.Bank, a uintptr, old, req uint32) uint32 {
		return old
	})
	if err := c.Release(r, CIDApplication); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("Expected NotPermitted for an ignored release, got %v", err)
	}
	if h, held, _ := c.CurrentHolder(r); !held || h != CIDApplication {
		t.Errorf("Expected %v to still hold, got %v %v", CIDApplication, h, held)
	}
}

func TestSemaphoreMetrics(t *testing.T) {
	c, _ := newTestController()
	granted := metric.SemaphoreOps.WithLabelValues("take", "granted")
	contended := metric.SemaphoreOps.WithLabelValues("take", "contended")
	g0, c0 := testutil.ToFloat64(granted), testutil.ToFloat64(contended)

	if err := c.SetDynamicCID(0, trusted, WhitelistOf(1, 2)); err != nil {
		t.Fatal(err)
	}
	c.Take(0, 1)
	c.Take(0, 2)
	if got := testutil.ToFloat64(granted) - g0; got != 1 {
		t.Errorf("Expected 1 granted take, got %v", got)
	}
	if got := testutil.ToFloat64(contended) - c0; got != 1 {
		t.Errorf("Expected 1 contended take, got %v", got)
	}
}
