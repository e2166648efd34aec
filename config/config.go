// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"time"

	"github.com/u-root/u-clk/pkg/hardware/rcc"
	"go.uber.org/zap/zapcore"
)

// Set with -ldflags "-X github.com/u-root/u-clk/config.gitVersion=..."
var (
	gitVersion = "dev"
	gitHash    = "unknown"
)

type Version struct {
	Version string
	GitHash string
}

// Memory selects the register backend.
type Memory string

const (
	// MemorySim runs against an emulated register file.
	MemorySim Memory = "sim"
	// MemoryDevMem maps the controller from /dev/mem.
	MemoryDevMem Memory = "devmem"
)

type Poll struct {
	Timeout     time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
}

func (p Poll) Policy() rcc.PollPolicy {
	return rcc.PollPolicy{Timeout: p.Timeout, MinInterval: p.MinInterval, MaxInterval: p.MaxInterval}
}

type Config struct {
	// CatalogPath is a JSON catalog. Empty uses the built-in platform.
	CatalogPath string
	// Derivative picks the peripheral map of the built-in platform.
	Derivative  string
	Memory      Memory
	SimLatency  int
	GRPCAddr    string
	MetricsAddr string
	LogFile     string
	LogLevel    zapcore.Level
	Poll        Poll
	Version     Version
}

var DefaultConfig = &Config{
	Derivative: "stm32mp25xx",
	Memory:     MemorySim,
	// A handful of status reads, so clients see pending changes.
	SimLatency: 3,
	GRPCAddr:   "[::]:9371",
	// 9370 is allocated to u-bmc in the prometheus exporter list.
	MetricsAddr: "[::]:9370",
	LogLevel:    zapcore.InfoLevel,
	Poll: Poll{
		Timeout:     rcc.DefaultPollPolicy.Timeout,
		MinInterval: rcc.DefaultPollPolicy.MinInterval,
		MaxInterval: rcc.DefaultPollPolicy.MaxInterval,
	},
	Version: Version{
		Version: gitVersion,
		GitHash: gitHash,
	},
}

// Check reports settings the daemon cannot start with.
func (c *Config) Check() error {
	switch c.Memory {
	case MemorySim, MemoryDevMem:
	default:
		return fmt.Errorf("unknown memory backend %q", c.Memory)
	}
	if c.Memory == MemorySim && c.SimLatency < 0 {
		return fmt.Errorf("negative simulated latency %d", c.SimLatency)
	}
	if c.Poll.Timeout <= 0 {
		return fmt.Errorf("poll timeout must be positive, got %v", c.Poll.Timeout)
	}
	if c.Poll.MinInterval <= 0 || c.Poll.MaxInterval < c.Poll.MinInterval {
		return fmt.Errorf("bad poll interval %v..%v", c.Poll.MinInterval, c.Poll.MaxInterval)
	}
	return nil
}
