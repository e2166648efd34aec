// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

// Oscillator control register, one per oscillator.
const (
	oscON      = 1 << 0
	oscRDY     = 1 << 1 // hw
	oscBYP     = 1 << 2
	oscDIGBYP  = 1 << 3
	oscCSSON   = 1 << 4
	oscCSSD    = 1 << 5 // hw
	oscFREQSEL = 1 << 8 // msi only
)

// PLL register block offsets from PLLEntry.Base.
const (
	pllCFGR1 = 0x00
	pllCFGR2 = 0x04
	pllCFGR3 = 0x08
	pllCFGR4 = 0x0c
	pllCFGR5 = 0x10
	pllCFGR6 = 0x14
	pllCFGR7 = 0x18
)

const (
	// CFGR1
	pllSRC = 0x7
	srcMax = 7
	pllEN  = 1 << 8
	pllRDY = 1 << 24 // hw

	// CFGR2
	pllFREFDIV   = 0x3f
	pllFBDIV     = 0xfff << 16
	pllFBDIVSh   = 16
	refDivMax    = 63
	fbDivMax     = 4095
	fracInModulo = 1 << 24

	// CFGR3
	pllFRACIN     = 0xffffff
	pllDOWNSPREAD = 1 << 24

	// CFGR4
	pllFOUTPOSTDIVEN = 1 << 8
	pllBYPASS        = 1 << 9
	pllDSMEN         = 1 << 10

	// CFGR5
	pllDIVVAL   = 0xf
	pllSPREAD   = 0x1f << 16
	pllSPREADSh = 16
	pllSSCGEN   = 1 << 31

	// CFGR6, CFGR7
	pllPOSTDIV = 0x7
	postDivMax = 7
)

// Crossbar registers.
const (
	xbarSEL = 0xf
	selMax  = 15
	xbarEN  = 1 << 6

	predivVAL = 0x3ff
	findivVAL = 0x3f
	fineMax   = 63
)

func chanReg(base uintptr, ch int) uintptr {
	return base + uintptr(ch)*4
}

func chanBit(base uintptr, ch int) (uintptr, uint32) {
	return base + uintptr(ch/32)*4, 1 << uint(ch%32)
}

func (x Crossbar) xbar(ch int) uintptr   { return chanReg(x.XbarBase, ch) }
func (x Crossbar) prediv(ch int) uintptr { return chanReg(x.PredivBase, ch) }
func (x Crossbar) findiv(ch int) uintptr { return chanReg(x.FindivBase, ch) }

func (x Crossbar) predivEn(ch int) (uintptr, uint32) { return chanBit(x.PredivEnBase, ch) }
func (x Crossbar) findivEn(ch int) (uintptr, uint32) { return chanBit(x.FindivEnBase, ch) }
func (x Crossbar) predivSR(ch int) (uintptr, uint32) { return chanBit(x.PredivSR, ch) }
func (x Crossbar) findivSR(ch int) (uintptr, uint32) { return chanBit(x.FindivSR, ch) }
