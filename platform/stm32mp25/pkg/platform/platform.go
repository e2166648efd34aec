// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package platform

import (
	"fmt"

	"github.com/u-root/u-clk/pkg/hardware/rcc"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/platform/stm32mp25/pkg/flexgen"
)

const (
	rccBase = 0x44200000
	rccSize = 0x10000

	numChannels  = 64
	numResources = 114

	pllBase   = 0x828
	pllStride = 0x28
)

// Oscillator numbers.
const (
	HSI = iota
	HSE
	MSI
	LSI
	LSE
)

// Access descriptor indices. Channel n is guarded by resource n.
const (
	resHSI = 64 + iota
	resHSE
	resMSI
	resLSI
	resLSE
	// pll2..pll8 use resPLL+n, pll1 belongs to the application
	// processor subsystem.
	resPLL = 71
)

var oscillators = []rcc.OscEntry{
	{Num: HSI, Name: "hsi", Type: rcc.HSI, Addr: 0x800, Freq: 64 * rcc.MHz, Resource: resHSI},
	{Num: HSE, Name: "hse", Type: rcc.HSE, Addr: 0x804, Freq: 40 * rcc.MHz, Resource: resHSE},
	{Num: MSI, Name: "msi", Type: rcc.MSI, Addr: 0x808, Freq: 4 * rcc.MHz, AltFreq: 16 * rcc.MHz, Resource: resMSI},
	{Num: LSI, Name: "lsi", Type: rcc.LSI, Addr: 0x80c, Freq: 32 * rcc.KHz, Resource: resLSI},
	{Num: LSE, Name: "lse", Type: rcc.LSE, Addr: 0x810, Freq: 32768, Resource: resLSE},
}

func plls() []rcc.PLLEntry {
	src := []rcc.NodeID{rcc.Osc(HSI), rcc.Osc(HSE), rcc.Osc(MSI)}
	var ps []rcc.PLLEntry
	for n := 1; n <= 8; n++ {
		res := resPLL + n
		if n == 1 {
			res = rcc.Unprotected
		}
		ps = append(ps, rcc.PLLEntry{
			Num:      n,
			Name:     fmt.Sprintf("pll%d", n),
			Base:     uintptr(pllBase + pllStride*(n-1)),
			Sources:  src,
			Resource: res,
		})
	}
	return ps
}

// Crossbar inputs in selector order. Only pll4 to pll8 reach the
// crossbar.
var channelSources = []rcc.NodeID{
	rcc.PLL(4), rcc.PLL(5), rcc.PLL(6), rcc.PLL(7), rcc.PLL(8),
	rcc.Osc(HSI), rcc.Osc(HSE), rcc.Osc(MSI), rcc.Osc(LSI), rcc.Osc(LSE),
}

func channels() []rcc.ChannelEntry {
	var cs []rcc.ChannelEntry
	for n := 0; n < numChannels; n++ {
		cs = append(cs, rcc.ChannelEntry{
			Num:      n,
			Name:     fmt.Sprintf("ch%d", n),
			Sources:  channelSources,
			Resource: n,
		})
	}
	return cs
}

// Catalog describes the stm32mp2 clock tree with the peripheral table
// of derivative.
func Catalog(derivative string) (*rcc.Catalog, error) {
	periph, ok := flexgen.Peripherals(derivative)
	if !ok {
		return nil, fmt.Errorf("unknown derivative %q, known: %v", derivative, flexgen.Derivatives())
	}
	return &rcc.Catalog{
		Name:         derivative,
		RegisterBase: rccBase,
		RegisterSize: rccSize,
		Oscillators:  append([]rcc.OscEntry(nil), oscillators...),
		PLLs:         plls(),
		Channels:     channels(),
		Crossbar: rcc.Crossbar{
			XbarBase:     0x1018,
			PredivBase:   0x1118,
			PredivSR:     0x1218,
			FindivBase:   0x1224,
			FindivSR:     0x1324,
			PredivEnBase: 0x1340,
			FindivEnBase: 0x1348,
		},
		RIF: rif.Layout{
			SecBase:      0x000,
			PrivBase:     0x010,
			LockBase:     0x020,
			CIDBase:      0x030,
			NumResources: numResources,
		},
		Peripherals: periph,
	}, nil
}
