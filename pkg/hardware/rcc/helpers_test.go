// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"testing"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/mmio"
)

const (
	hsi = 0
	hse = 1
	msi = 2
	lsi = 3
	lse = 4

	// Resource guarding pll4, channels use 10+n.
	pll4Res = 4
)

var (
	trusted = rif.Caller{CID: 1, Secure: true, Privileged: true}
	app     = rif.Caller{CID: rif.CIDApplication, Privileged: true}
	rt      = rif.Caller{CID: rif.CIDRealTime, Privileged: true}
)

func testCatalog() *Catalog {
	oscs := []OscEntry{
		{Num: hsi, Name: "hsi", Type: HSI, Addr: 0x000, Freq: 64 * MHz, Resource: Unprotected},
		{Num: hse, Name: "hse", Type: HSE, Addr: 0x004, Freq: 40 * MHz, Resource: 0},
		{Num: msi, Name: "msi", Type: MSI, Addr: 0x008, Freq: 4 * MHz, AltFreq: 16 * MHz, Resource: Unprotected},
		{Num: lsi, Name: "lsi", Type: LSI, Addr: 0x00c, Freq: 32 * KHz, Resource: Unprotected},
		{Num: lse, Name: "lse", Type: LSE, Addr: 0x010, Freq: 32768, Resource: Unprotected},
	}
	pllSrc := []NodeID{Osc(hsi), Osc(hse), Osc(msi)}
	plls := []PLLEntry{
		{Num: 4, Name: "pll4", Base: 0x180, Sources: pllSrc, Resource: pll4Res},
		{Num: 5, Name: "pll5", Base: 0x1a0, Sources: pllSrc, Resource: Unprotected},
	}
	chSrc := []NodeID{PLL(4), PLL(5), Osc(hsi), Osc(hse), Osc(msi), Osc(lsi), Osc(lse)}
	var chans []ChannelEntry
	for n := 0; n < 10; n++ {
		chans = append(chans, ChannelEntry{Num: n, Name: "ch" + string(rune('0'+n)), Sources: chSrc, Resource: 10 + n})
	}
	return &Catalog{
		Name:        "test",
		Oscillators: oscs,
		PLLs:        plls,
		Channels:    chans,
		Crossbar: Crossbar{
			XbarBase:     0x400,
			PredivBase:   0x500,
			FindivBase:   0x600,
			PredivEnBase: 0x700,
			FindivEnBase: 0x708,
			PredivSR:     0x710,
			FindivSR:     0x718,
		},
		RIF: rif.Layout{
			SecBase:      0x800,
			PrivBase:     0x810,
			LockBase:     0x820,
			CIDBase:      0x900,
			NumResources: 32,
		},
		Peripherals: map[string]int{"SPI1": 7, "UART2_4": 3},
	}
}

type testRig struct {
	r   *Rcc
	sim *mmio.Sim
	emu *Emulator
	clk clock.FakeClock
}

func newTestRig(t *testing.T, latency int) *testRig {
	t.Helper()
	cat := testCatalog()
	sim := mmio.NewSim()
	emu := Emulate(sim, cat, latency)
	clk := clock.NewFake()
	r, err := OpenWithMemory(sim, cat, WithClock(clk))
	if err != nil {
		t.Fatalf("OpenWithMemory: %v", err)
	}
	return &testRig{r: r, sim: sim, emu: emu, clk: clk}
}

// settle blocks on p and fails the test if it does not settle.
func settle(t *testing.T, p *Pending, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := p.BlockUntilReady(0); err != nil {
		t.Fatalf("BlockUntilReady: %v", err)
	}
}

// startPLL4 runs hse at 40 MHz into pll4 configured for 500 MHz.
func (rig *testRig) startPLL4(t *testing.T) {
	t.Helper()
	r := rig.r
	if err := r.EnableOscillator(trusted, hse); err != nil {
		t.Fatalf("EnableOscillator: %v", err)
	}
	err := r.ConfigurePLL(trusted, 4, PLLConfig{
		Source: Osc(hse), HasSource: true,
		RefDiv: 2, FbDiv: 50, PostDiv1: 2, PostDiv2: 1,
		Output: OutputPostDiv,
	})
	if err != nil {
		t.Fatalf("ConfigurePLL: %v", err)
	}
	p, err := r.EnablePLL(trusted, 4)
	settle(t, p, err)
}

// routeChannel points a channel at src with the given dividers and
// starts it.
func (rig *testRig) routeChannel(t *testing.T, n int, src NodeID, pre Prediv, fine uint32) {
	t.Helper()
	r := rig.r
	if err := r.SelectSource(trusted, n, src); err != nil {
		t.Fatalf("SelectSource: %v", err)
	}
	p, err := r.RequestPreDivider(trusted, n, pre)
	settle(t, p, err)
	p, err = r.RequestFineDivider(trusted, n, fine)
	settle(t, p, err)
	if err := r.SetPreDividerEnabled(trusted, n, true); err != nil {
		t.Fatal(err)
	}
	if err := r.SetFineDividerEnabled(trusted, n, true); err != nil {
		t.Fatal(err)
	}
	if err := r.EnableChannel(trusted, n); err != nil {
		t.Fatal(err)
	}
}
