// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"testing"

	"github.com/jmhodges/clock"
	"github.com/u-root/u-clk/pkg/hardware/rcc"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/mmio"
	"github.com/u-root/u-clk/platform/stm32mp25/pkg/flexgen"
)

var boot = rif.Caller{CID: 1, Secure: true, Privileged: true}

func TestCatalogs(t *testing.T) {
	for _, d := range flexgen.Derivatives() {
		cat, err := Catalog(d)
		if err != nil {
			t.Fatalf("Catalog(%s): %v", d, err)
		}
		if err := cat.Validate(); err != nil {
			t.Errorf("%s: %v", d, err)
		}
		if len(cat.Channels) != 64 || len(cat.PLLs) != 8 || len(cat.Oscillators) != 5 {
			t.Errorf("%s: unexpected shape %d/%d/%d", d, len(cat.Oscillators), len(cat.PLLs), len(cat.Channels))
		}
		if cat.RIF.NumResources != 114 {
			t.Errorf("%s: expected 114 resources, got %d", d, cat.RIF.NumResources)
		}
		if id, ok := cat.Lookup("SDMMC1"); !ok || id != rcc.Channel(51) {
			t.Errorf("%s: SDMMC1 should be on ch51, got %v", d, id)
		}
	}
	if _, err := Catalog("stm32mp99xx"); err == nil {
		t.Errorf("Expected unknown derivative to fail")
	}
}

func TestDerivativeTables(t *testing.T) {
	tests := []struct {
		d    string
		name string
		ch   int
		ok   bool
	}{
		{"stm32mp25xx", "SPI2_3", 10, true},
		{"stm32mp21xx", "SPI3", 11, true},
		{"stm32mp21xx", "SPI2_3", 0, false},
		{"stm32mp23xx", "UART9", 0, false},
		{"stm32mp25xx", "UART9", 22, true},
		{"stm32mp25xx", "CPU1_EXT2F", 63, true},
	}
	for _, tt := range tests {
		ch, ok := flexgen.PeripheralToChannel(tt.d, tt.name)
		if ok != tt.ok || ch != tt.ch {
			t.Errorf("%s %s: got %d %v, want %d %v", tt.d, tt.name, ch, ok, tt.ch, tt.ok)
		}
	}
	names, ok := flexgen.ChannelToPeripherals("stm32mp25xx", 12)
	if !ok || len(names) != 2 || names[0] != "I2C1_2" || names[1] != "I3C1_2" {
		t.Errorf("Expected ch12 shared by I2C1_2 and I3C1_2, got %v", names)
	}
}

func TestHSEToSPI1(t *testing.T) {
	cat, err := Catalog("stm32mp25xx")
	if err != nil {
		t.Fatal(err)
	}
	sim := mmio.NewSim()
	rcc.Emulate(sim, cat, 2)
	r, err := rcc.OpenWithMemory(sim, cat, rcc.WithClock(clock.NewFake()))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	if err := r.EnableOscillator(boot, HSE); err != nil {
		t.Fatal(err)
	}
	err = r.ConfigurePLL(boot, 4, rcc.PLLConfig{
		Source: rcc.Osc(HSE), HasSource: true,
		RefDiv: 2, FbDiv: 50, PostDiv1: 2, PostDiv2: 1,
		Output: rcc.OutputPostDiv,
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := r.EnablePLL(boot, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.BlockUntilReady(0); err != nil {
		t.Fatalf("pll4 lock: %v", err)
	}
	if f, err := r.Resolve(rcc.PLL(4)); err != nil || f != 500*rcc.MHz {
		t.Fatalf("Expected pll4 at 500 MHz, got %v, %v", f, err)
	}

	id, ok := r.Catalog().Lookup("SPI1")
	if !ok {
		t.Fatal("SPI1 not mapped")
	}
	n := id.Num
	if err := r.SelectSource(boot, n, rcc.PLL(4)); err != nil {
		t.Fatal(err)
	}
	pre, fine, err := rcc.SplitDivider(5)
	if err != nil {
		t.Fatal(err)
	}
	p, err = r.RequestPreDivider(boot, n, pre)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.BlockUntilReady(0); err != nil {
		t.Fatal(err)
	}
	p, err = r.RequestFineDivider(boot, n, fine)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.BlockUntilReady(0); err != nil {
		t.Fatal(err)
	}
	for _, f := range []func() error{
		func() error { return r.SetPreDividerEnabled(boot, n, true) },
		func() error { return r.SetFineDividerEnabled(boot, n, true) },
		func() error { return r.EnableChannel(boot, n) },
	} {
		if err := f(); err != nil {
			t.Fatal(err)
		}
	}
	f, err := r.Resolve(id)
	if err != nil {
		t.Fatal(err)
	}
	if f != 100*rcc.MHz {
		t.Errorf("Expected SPI1 at 100 MHz, got %v", f)
	}
}
