// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/metric"
)

func TestDynamicResourceNeedsSemaphore(t *testing.T) {
	rig := newTestRig(t, 0)
	r := rig.r
	err := r.Access().Provision(pll4Res, trusted, rif.Descriptor{
		Mode:      rif.ModeDynamic,
		Whitelist: rif.WhitelistOf(rif.CIDApplication, rif.CIDRealTime),
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.SetPLLRefDiv(app, 4, 2); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("without semaphore: expected NotPermitted, got %v", err)
	}
	if err := r.Access().Take(pll4Res, app.CID); err != nil {
		t.Fatal(err)
	}
	if err := r.SetPLLRefDiv(app, 4, 2); err != nil {
		t.Errorf("holder: %v", err)
	}
	if err := r.SetPLLRefDiv(rt, 4, 3); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("non-holder: expected NotPermitted, got %v", err)
	}
	// Reads are never gated.
	c, err := r.PLLConfig(4)
	if err != nil {
		t.Fatal(err)
	}
	if c.RefDiv != 2 {
		t.Errorf("Expected refdiv 2, got %d", c.RefDiv)
	}
	if _, err := r.Resolve(PLL(4)); !errors.Is(err, hwerr.SourceDisabled) {
		t.Errorf("Expected SourceDisabled, got %v", err)
	}

	if err := r.Access().Release(pll4Res, app.CID); err != nil {
		t.Fatal(err)
	}
	if err := r.Access().Take(pll4Res, rt.CID); err != nil {
		t.Fatal(err)
	}
	if err := r.SetPLLRefDiv(rt, 4, 3); err != nil {
		t.Errorf("new holder: %v", err)
	}
	if err := r.SetPLLRefDiv(app, 4, 4); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("previous holder: expected NotPermitted, got %v", err)
	}
}

func TestSecureOscillator(t *testing.T) {
	rig := newTestRig(t, 0)
	r := rig.r
	if err := r.Access().SetSecurity(0, trusted, true); err != nil {
		t.Fatal(err)
	}
	if err := r.EnableOscillator(app, hse); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("non-secure caller: expected NotPermitted, got %v", err)
	}
	if err := r.EnableOscillator(trusted, hse); err != nil {
		t.Errorf("secure caller: %v", err)
	}
	if _, err := r.Oscillator(hse); err != nil {
		t.Errorf("reading a secure oscillator: %v", err)
	}
	// Unprotected nodes accept anyone.
	if err := r.EnableOscillator(rif.Caller{CID: 5}, hsi); err != nil {
		t.Errorf("unprotected oscillator: %v", err)
	}
	if err := r.SetPLLRefDiv(rif.Caller{CID: 5}, 5, 1); err != nil {
		t.Errorf("unprotected pll: %v", err)
	}
}

func TestStaticChannelOwner(t *testing.T) {
	rig := newTestRig(t, 0)
	r := rig.r
	if err := r.Access().Provision(17, trusted, rif.Descriptor{Mode: rif.ModeStatic, StaticCID: rif.CIDRealTime, Locked: true}); err != nil {
		t.Fatal(err)
	}
	if err := r.SelectSource(app, 7, Osc(hsi)); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("other compartment: expected NotPermitted, got %v", err)
	}
	if err := r.SelectSource(rt, 7, Osc(hsi)); err != nil {
		t.Errorf("owner: %v", err)
	}
	if _, err := r.RequestFineDivider(app, 7, 1); !errors.Is(err, hwerr.NotPermitted) {
		t.Errorf("divider from other compartment: expected NotPermitted, got %v", err)
	}
	// The lock freezes the descriptor, not the clock.
	if err := r.Access().SetStaticCID(17, trusted, rif.CIDApplication); !errors.Is(err, hwerr.Locked) {
		t.Errorf("Expected Locked, got %v", err)
	}
}

func TestResolveAllAndCollector(t *testing.T) {
	rig := newTestRig(t, 0)
	rig.startPLL4(t)
	rig.routeChannel(t, 7, PLL(4), Div1, 4)

	byName := map[string]NodeFrequency{}
	for _, nf := range rig.r.ResolveAll() {
		byName[nf.Name] = nf
	}
	if len(byName) != 17 {
		t.Errorf("Expected 17 nodes, got %d", len(byName))
	}
	if nf := byName["ch7"]; nf.Err != nil || nf.Freq != 100*MHz {
		t.Errorf("ch7: %v, %v", nf.Freq, nf.Err)
	}
	if nf := byName["pll4"]; nf.Err != nil || nf.Freq != 500*MHz {
		t.Errorf("pll4: %v, %v", nf.Freq, nf.Err)
	}
	if nf := byName["pll5"]; !errors.Is(nf.Err, hwerr.SourceDisabled) {
		t.Errorf("pll5: expected SourceDisabled, got %v", nf.Err)
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(metric.NewTreeCollector(rig.r))
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]float64{}
	inactive := map[string]string{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			switch mf.GetName() {
			case "uclk_node_frequency_hertz":
				got[labels["node"]] = m.GetGauge().GetValue()
			case "uclk_node_active":
				if m.GetGauge().GetValue() == 0 {
					inactive[labels["node"]] = labels["reason"]
				}
			}
		}
	}
	if got["ch7"] != 1e8 || got["hse"] != 4e7 {
		t.Errorf("Unexpected frequencies %v", got)
	}
	if _, ok := got["ch0"]; ok {
		t.Errorf("Expected no frequency for idle ch0")
	}
	if inactive["ch0"] != hwerr.SourceDisabled.String() {
		t.Errorf("Expected ch0 inactive with reason %q, got %q", hwerr.SourceDisabled, inactive["ch0"])
	}
}
