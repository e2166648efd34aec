// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/u-root/u-clk/pkg/hardware/rif"
)

type NodeKind int

const (
	KindOscillator NodeKind = iota + 1
	KindPLL
	KindChannel
)

func (k NodeKind) String() string {
	switch k {
	case KindOscillator:
		return "oscillator"
	case KindPLL:
		return "pll"
	case KindChannel:
		return "channel"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// NodeID names one clock node. Identities are fixed by the catalog.
type NodeID struct {
	Kind NodeKind
	Num  int
}

func Osc(n int) NodeID     { return NodeID{KindOscillator, n} }
func PLL(n int) NodeID     { return NodeID{KindPLL, n} }
func Channel(n int) NodeID { return NodeID{KindChannel, n} }

func (id NodeID) String() string {
	switch id.Kind {
	case KindOscillator:
		return fmt.Sprintf("osc%d", id.Num)
	case KindPLL:
		return fmt.Sprintf("pll%d", id.Num)
	case KindChannel:
		return fmt.Sprintf("ch%d", id.Num)
	}
	return fmt.Sprintf("node(%d,%d)", int(id.Kind), id.Num)
}

// Frequency in Hz.
type Frequency uint64

const (
	Hz  Frequency = 1
	KHz           = 1000 * Hz
	MHz           = 1000 * KHz
)

func (f Frequency) String() string {
	switch {
	case f >= MHz && f%KHz == 0:
		return fmt.Sprintf("%g MHz", float64(f)/float64(MHz))
	case f >= KHz && f%KHz == 0:
		return fmt.Sprintf("%d kHz", f/KHz)
	}
	return fmt.Sprintf("%d Hz", uint64(f))
}

type OscType int

const (
	HSI OscType = iota + 1
	HSE
	MSI
	LSI
	LSE
)

var oscTypeNames = map[OscType]string{HSI: "hsi", HSE: "hse", MSI: "msi", LSI: "lsi", LSE: "lse"}

func (t OscType) String() string {
	if s, ok := oscTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("osctype(%d)", int(t))
}

// External oscillators can be bypassed and carry a security system.
func (t OscType) External() bool {
	return t == HSE || t == LSE
}

// Unprotected marks a node not covered by any access descriptor.
const Unprotected = -1

type OscEntry struct {
	Num  int
	Name string
	Type OscType
	Addr uintptr
	Freq Frequency
	// AltFreq is the frequency with FREQSEL set, MSI only.
	AltFreq  Frequency
	Resource int
}

type PLLEntry struct {
	Num  int
	Name string
	Base uintptr
	// Sources are oscillators; the source field holds index+1.
	Sources  []NodeID
	Resource int
}

type ChannelEntry struct {
	Num  int
	Name string
	// Sources are oscillators or PLLs; the select field holds index+1.
	Sources  []NodeID
	Resource int
}

// Crossbar places the channel selector and divider banks. Per-channel
// registers are 4 bytes apart, bit banks hold 32 channels per word.
type Crossbar struct {
	XbarBase     uintptr
	PredivBase   uintptr
	FindivBase   uintptr
	PredivEnBase uintptr
	FindivEnBase uintptr
	PredivSR     uintptr
	FindivSR     uintptr
}

// Catalog is the fixed description of one SoC clock tree.
type Catalog struct {
	Name         string
	RegisterBase uintptr
	RegisterSize int
	Oscillators  []OscEntry
	PLLs         []PLLEntry
	Channels     []ChannelEntry
	Crossbar     Crossbar
	RIF          rif.Layout
	// Peripherals maps a peripheral clock name to its channel.
	Peripherals map[string]int
}

// Nodes lists every node, oscillators first.
func (c *Catalog) Nodes() []NodeID {
	var ids []NodeID
	for _, o := range c.Oscillators {
		ids = append(ids, Osc(o.Num))
	}
	for _, p := range c.PLLs {
		ids = append(ids, PLL(p.Num))
	}
	for _, ch := range c.Channels {
		ids = append(ids, Channel(ch.Num))
	}
	return ids
}

func (c *Catalog) oscillator(n int) *OscEntry {
	for i := range c.Oscillators {
		if c.Oscillators[i].Num == n {
			return &c.Oscillators[i]
		}
	}
	return nil
}

func (c *Catalog) pll(n int) *PLLEntry {
	for i := range c.PLLs {
		if c.PLLs[i].Num == n {
			return &c.PLLs[i]
		}
	}
	return nil
}

func (c *Catalog) channel(n int) *ChannelEntry {
	for i := range c.Channels {
		if c.Channels[i].Num == n {
			return &c.Channels[i]
		}
	}
	return nil
}

// Has reports whether id names a node of the catalog.
func (c *Catalog) Has(id NodeID) bool {
	switch id.Kind {
	case KindOscillator:
		return c.oscillator(id.Num) != nil
	case KindPLL:
		return c.pll(id.Num) != nil
	case KindChannel:
		return c.channel(id.Num) != nil
	}
	return false
}

// NodeName returns the catalog name of id.
func (c *Catalog) NodeName(id NodeID) string {
	switch id.Kind {
	case KindOscillator:
		if o := c.oscillator(id.Num); o != nil {
			return o.Name
		}
	case KindPLL:
		if p := c.pll(id.Num); p != nil {
			return p.Name
		}
	case KindChannel:
		if ch := c.channel(id.Num); ch != nil {
			return ch.Name
		}
	}
	return id.String()
}

// Lookup finds a node by catalog name, or a peripheral by its name.
func (c *Catalog) Lookup(name string) (NodeID, bool) {
	for _, id := range c.Nodes() {
		if c.NodeName(id) == name {
			return id, true
		}
	}
	if ch, ok := c.Peripherals[name]; ok {
		return Channel(ch), true
	}
	return NodeID{}, false
}

// Resource returns the access descriptor index guarding id.
func (c *Catalog) Resource(id NodeID) int {
	switch id.Kind {
	case KindOscillator:
		if o := c.oscillator(id.Num); o != nil {
			return o.Resource
		}
	case KindPLL:
		if p := c.pll(id.Num); p != nil {
			return p.Resource
		}
	case KindChannel:
		if ch := c.channel(id.Num); ch != nil {
			return ch.Resource
		}
	}
	return Unprotected
}

// Upstream lists the legal sources of id. Oscillators have none.
func (c *Catalog) Upstream(id NodeID) []NodeID {
	switch id.Kind {
	case KindPLL:
		if p := c.pll(id.Num); p != nil {
			return p.Sources
		}
	case KindChannel:
		if ch := c.channel(id.Num); ch != nil {
			return ch.Sources
		}
	}
	return nil
}

// maxDepth is oscillator, PLL, channel.
const maxDepth = 3

// Depth is the longest source path from id down to an oscillator,
// counting id itself. It fails on cycles.
func (c *Catalog) Depth(id NodeID) (int, error) {
	return c.depth(id, map[NodeID]bool{})
}

func (c *Catalog) depth(id NodeID, seen map[NodeID]bool) (int, error) {
	if seen[id] {
		return 0, fmt.Errorf("cycle through %v", c.NodeName(id))
	}
	if len(seen) > maxDepth {
		return 0, fmt.Errorf("%v is deeper than %d", c.NodeName(id), maxDepth)
	}
	seen[id] = true
	defer delete(seen, id)
	d := 0
	for _, up := range c.Upstream(id) {
		n, err := c.depth(up, seen)
		if err != nil {
			return 0, err
		}
		if n > d {
			d = n
		}
	}
	return d + 1, nil
}

// PeripheralNames lists the mapped peripherals in name order.
func (c *Catalog) PeripheralNames() []string {
	names := make([]string, 0, len(c.Peripherals))
	for n := range c.Peripherals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate reports every inconsistency of the catalog at once.
func (c *Catalog) Validate() error {
	var result *multierror.Error
	names := map[string]NodeID{}
	addName := func(id NodeID, name string) {
		if name == "" {
			result = multierror.Append(result, errors.Errorf("%v has no name", id))
			return
		}
		if prev, ok := names[name]; ok {
			result = multierror.Append(result, errors.Errorf("name %q used by %v and %v", name, prev, id))
			return
		}
		names[name] = id
	}
	checkRes := func(id NodeID, r int) {
		if r != Unprotected && (r < 0 || r >= c.RIF.NumResources) {
			result = multierror.Append(result, errors.Errorf("%v: resource %d outside 0..%d", id, r, c.RIF.NumResources-1))
		}
	}
	// Register addresses are offsets into the window. A catalog without
	// a window size is only ever driven through a Sim.
	inWindow := func(what interface{}, a uintptr) {
		if c.RegisterSize != 0 && a+4 > uintptr(c.RegisterSize) {
			result = multierror.Append(result, errors.Errorf("%v: register %#x outside the %#x byte window", what, a, c.RegisterSize))
		}
	}
	checkAddr := func(id NodeID, a uintptr) {
		if a%4 != 0 {
			result = multierror.Append(result, errors.Errorf("%v: register %#x is not word aligned", id, a))
		}
		inWindow(id, a)
	}

	seen := map[NodeID]bool{}
	dup := func(id NodeID) bool {
		if seen[id] {
			result = multierror.Append(result, errors.Errorf("%v defined twice", id))
			return true
		}
		seen[id] = true
		return false
	}

	for _, o := range c.Oscillators {
		id := Osc(o.Num)
		if dup(id) {
			continue
		}
		addName(id, o.Name)
		checkRes(id, o.Resource)
		checkAddr(id, o.Addr)
		if _, ok := oscTypeNames[o.Type]; !ok {
			result = multierror.Append(result, errors.Errorf("%v: unknown oscillator type %d", id, o.Type))
		}
		if o.Freq == 0 {
			result = multierror.Append(result, errors.Errorf("%v: no base frequency", id))
		}
		if o.AltFreq != 0 && o.Type != MSI {
			result = multierror.Append(result, errors.Errorf("%v: only msi has a selectable frequency", id))
		}
	}
	for _, p := range c.PLLs {
		id := PLL(p.Num)
		if dup(id) {
			continue
		}
		addName(id, p.Name)
		checkRes(id, p.Resource)
		checkAddr(id, p.Base)
		inWindow(id, p.Base+pllCFGR7)
		if len(p.Sources) == 0 || len(p.Sources) > srcMax {
			result = multierror.Append(result, errors.Errorf("%v: needs 1..%d sources, has %d", id, srcMax, len(p.Sources)))
		}
		for _, s := range p.Sources {
			if s.Kind != KindOscillator || c.oscillator(s.Num) == nil {
				result = multierror.Append(result, errors.Errorf("%v: source %v is not a known oscillator", id, s))
			}
		}
	}
	for _, ch := range c.Channels {
		id := Channel(ch.Num)
		if dup(id) {
			continue
		}
		addName(id, ch.Name)
		checkRes(id, ch.Resource)
		if ch.Num < 0 || ch.Num >= 64 {
			result = multierror.Append(result, errors.Errorf("%v: channel number outside 0..63", id))
		} else {
			x := c.Crossbar
			for _, a := range []uintptr{x.xbar(ch.Num), x.prediv(ch.Num), x.findiv(ch.Num)} {
				inWindow(id, a)
			}
			for _, bank := range []func(int) (uintptr, uint32){x.predivEn, x.findivEn, x.predivSR, x.findivSR} {
				a, _ := bank(ch.Num)
				inWindow(id, a)
			}
		}
		if len(ch.Sources) == 0 || len(ch.Sources) > selMax {
			result = multierror.Append(result, errors.Errorf("%v: needs 1..%d sources, has %d", id, selMax, len(ch.Sources)))
		}
		for _, s := range ch.Sources {
			if s.Kind == KindChannel || !c.Has(s) {
				result = multierror.Append(result, errors.Errorf("%v: source %v is not a known oscillator or pll", id, s))
			}
		}
	}
	if c.RIF.NumResources > 0 {
		inWindow("access descriptors", c.RIF.End()-4)
	}
	for name, n := range c.Peripherals {
		if c.channel(n) == nil {
			result = multierror.Append(result, errors.Errorf("peripheral %s: unknown channel %d", name, n))
		}
	}
	if result.ErrorOrNil() != nil {
		return result.ErrorOrNil()
	}

	for _, id := range c.Nodes() {
		if _, err := c.Depth(id); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "%v", id))
		}
	}
	return result.ErrorOrNil()
}
