// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rcc

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/u-root/u-clk/pkg/hardware/rif"
)

// Provision is a boot-time access descriptor for one resource.
type Provision struct {
	Resource   int
	Descriptor rif.Descriptor
}

// addr accepts a JSON number or a string in any base strconv knows.
type addr uint64

func (a *addr) UnmarshalJSON(b []byte) error {
	var s string
	if bytes.HasPrefix(b, []byte(`"`)) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return errors.Wrapf(err, "bad address %s", b)
	}
	*a = addr(v)
	return nil
}

type oscFile struct {
	Num      int    `json:"num"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Addr     addr   `json:"addr"`
	Freq     uint64 `json:"freq"`
	AltFreq  uint64 `json:"alt_freq"`
	Resource *int   `json:"resource"`
}

type pllFile struct {
	Num      int      `json:"num"`
	Name     string   `json:"name"`
	Base     addr     `json:"base"`
	Sources  []string `json:"sources"`
	Resource *int     `json:"resource"`
}

type channelFile struct {
	Num      int      `json:"num"`
	Name     string   `json:"name"`
	Sources  []string `json:"sources"`
	Resource *int     `json:"resource"`
}

type crossbarFile struct {
	Xbar     addr `json:"xbar"`
	Prediv   addr `json:"prediv"`
	Findiv   addr `json:"findiv"`
	PredivEn addr `json:"prediv_en"`
	FindivEn addr `json:"findiv_en"`
	PredivSR addr `json:"prediv_sr"`
	FindivSR addr `json:"findiv_sr"`
}

type rifFile struct {
	Sec       addr `json:"sec"`
	Priv      addr `json:"priv"`
	Lock      addr `json:"lock"`
	CID       addr `json:"cid"`
	Resources int  `json:"resources"`
}

type provisionFile struct {
	Resource   int    `json:"resource"`
	Secure     bool   `json:"secure"`
	Privileged bool   `json:"privileged"`
	Mode       string `json:"mode"`
	CID        int    `json:"cid"`
	Whitelist  []int  `json:"whitelist"`
	Lock       bool   `json:"lock"`
}

type catalogFile struct {
	Name         string          `json:"name"`
	RegisterBase addr            `json:"register_base"`
	RegisterSize addr            `json:"register_size"`
	Oscillators  []oscFile       `json:"oscillators"`
	PLLs         []pllFile       `json:"plls"`
	Channels     []channelFile   `json:"channels"`
	Crossbar     crossbarFile    `json:"crossbar"`
	RIF          rifFile         `json:"rif"`
	Peripherals  map[string]int  `json:"peripherals"`
	Provision    []provisionFile `json:"provision"`
}

var oscTypes = map[string]OscType{"hsi": HSI, "hse": HSE, "msi": MSI, "lsi": LSI, "lse": LSE}

func resource(r *int) int {
	if r == nil {
		return Unprotected
	}
	return *r
}

// LoadCatalog reads a JSON catalog and its provisioning table from fs.
func LoadCatalog(fs afero.Fs, path string) (*Catalog, []Provision, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading catalog")
	}
	var f catalogFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, nil, errors.Wrapf(err, "parsing catalog %s", path)
	}
	cat, prov, err := f.build()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "catalog %s", path)
	}
	if err := cat.Validate(); err != nil {
		return nil, nil, errors.Wrapf(err, "catalog %s", path)
	}
	return cat, prov, nil
}

func (f *catalogFile) build() (*Catalog, []Provision, error) {
	var result *multierror.Error
	cat := &Catalog{
		Name:         f.Name,
		RegisterBase: uintptr(f.RegisterBase),
		RegisterSize: int(f.RegisterSize),
		Crossbar: Crossbar{
			XbarBase:     uintptr(f.Crossbar.Xbar),
			PredivBase:   uintptr(f.Crossbar.Prediv),
			FindivBase:   uintptr(f.Crossbar.Findiv),
			PredivEnBase: uintptr(f.Crossbar.PredivEn),
			FindivEnBase: uintptr(f.Crossbar.FindivEn),
			PredivSR:     uintptr(f.Crossbar.PredivSR),
			FindivSR:     uintptr(f.Crossbar.FindivSR),
		},
		RIF: rif.Layout{
			SecBase:      uintptr(f.RIF.Sec),
			PrivBase:     uintptr(f.RIF.Priv),
			LockBase:     uintptr(f.RIF.Lock),
			CIDBase:      uintptr(f.RIF.CID),
			NumResources: f.RIF.Resources,
		},
		Peripherals: f.Peripherals,
	}
	byName := map[string]NodeID{}
	for _, o := range f.Oscillators {
		t, ok := oscTypes[o.Type]
		if !ok {
			result = multierror.Append(result, errors.Errorf("oscillator %s: unknown type %q", o.Name, o.Type))
		}
		cat.Oscillators = append(cat.Oscillators, OscEntry{
			Num: o.Num, Name: o.Name, Type: t, Addr: uintptr(o.Addr),
			Freq: Frequency(o.Freq), AltFreq: Frequency(o.AltFreq), Resource: resource(o.Resource),
		})
		byName[o.Name] = Osc(o.Num)
	}
	for _, p := range f.PLLs {
		byName[p.Name] = PLL(p.Num)
	}
	sources := func(owner string, names []string) []NodeID {
		var ids []NodeID
		for _, n := range names {
			id, ok := byName[n]
			if !ok {
				result = multierror.Append(result, errors.Errorf("%s: unknown source %q", owner, n))
				continue
			}
			ids = append(ids, id)
		}
		return ids
	}
	for _, p := range f.PLLs {
		cat.PLLs = append(cat.PLLs, PLLEntry{
			Num: p.Num, Name: p.Name, Base: uintptr(p.Base),
			Sources: sources(p.Name, p.Sources), Resource: resource(p.Resource),
		})
	}
	for _, ch := range f.Channels {
		cat.Channels = append(cat.Channels, ChannelEntry{
			Num: ch.Num, Name: ch.Name,
			Sources: sources(ch.Name, ch.Sources), Resource: resource(ch.Resource),
		})
	}

	cid := func(res, c int) (rif.CID, bool) {
		if c < 0 || c > int(rif.MaxCID) {
			result = multierror.Append(result, errors.Errorf("provision %d: cid %d outside 0..%d", res, c, rif.MaxCID))
			return 0, false
		}
		return rif.CID(c), true
	}
	var prov []Provision
	for _, p := range f.Provision {
		d := rif.Descriptor{Secure: p.Secure, Privileged: p.Privileged, Locked: p.Lock}
		switch p.Mode {
		case "", "none":
		case "static":
			d.Mode = rif.ModeStatic
			d.StaticCID, _ = cid(p.Resource, p.CID)
		case "dynamic":
			d.Mode = rif.ModeDynamic
			for _, c := range p.Whitelist {
				if v, ok := cid(p.Resource, c); ok {
					d.Whitelist |= rif.WhitelistOf(v)
				}
			}
		default:
			result = multierror.Append(result, errors.Errorf("provision %d: unknown mode %q", p.Resource, p.Mode))
		}
		prov = append(prov, Provision{Resource: p.Resource, Descriptor: d})
	}
	return cat, prov, result.ErrorOrNil()
}

// Provision applies a provisioning table as who. Every entry is tried;
// the failures are returned together.
func (r *Rcc) Provision(who rif.Caller, table []Provision) error {
	var result *multierror.Error
	for _, p := range table {
		if err := r.acl.Provision(p.Resource, who, p.Descriptor); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
