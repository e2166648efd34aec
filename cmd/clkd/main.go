// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// clkd owns the clock controller and serves it over gRPC.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/u-root/u-clk/config"
	"github.com/u-root/u-clk/pkg/hardware/rcc"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/logger"
	"github.com/u-root/u-clk/pkg/metric"
	"github.com/u-root/u-clk/pkg/mmio"
	"github.com/u-root/u-clk/pkg/service/grpc"
	"github.com/u-root/u-clk/platform/stm32mp25/pkg/platform"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// The boot stage provisions access control as the trusted compartment.
var bootCaller = rif.Caller{CID: 1, Secure: true, Privileged: true}

func main() {
	conf := *config.DefaultConfig
	level := conf.LogLevel.String()
	memory := string(conf.Memory)
	flag.StringVar(&conf.CatalogPath, "catalog", conf.CatalogPath, "JSON clock catalog, empty for the built-in platform")
	flag.StringVar(&conf.Derivative, "derivative", conf.Derivative, "SoC derivative of the built-in platform")
	flag.StringVar(&memory, "memory", memory, "register backend: sim or devmem")
	flag.IntVar(&conf.SimLatency, "sim-latency", conf.SimLatency, "status reads before an emulated change settles")
	flag.StringVar(&conf.GRPCAddr, "grpc", conf.GRPCAddr, "gRPC listen address")
	flag.StringVar(&conf.MetricsAddr, "metrics", conf.MetricsAddr, "prometheus listen address, empty to disable")
	flag.StringVar(&conf.LogFile, "log-file", conf.LogFile, "also log JSON to this file")
	flag.StringVar(&level, "log-level", level, "debug, info, warn or error")
	flag.DurationVar(&conf.Poll.Timeout, "poll-timeout", conf.Poll.Timeout, "how long to wait for a change to settle")
	flag.Parse()
	conf.Memory = config.Memory(memory)

	if err := conf.LogLevel.Set(level); err != nil {
		fmt.Fprintf(os.Stderr, "bad -log-level: %v\n", err)
		os.Exit(2)
	}
	if err := conf.Check(); err != nil {
		fmt.Fprintf(os.Stderr, "bad configuration: %v\n", err)
		os.Exit(2)
	}
	logger.LogContainer.Configure(conf.LogFile, conf.LogLevel)
	log := logger.LogContainer.GetLogger()
	defer log.Sync()

	if err := run(&conf, log); err != nil {
		log.Fatal("clkd failed", zap.Error(err))
	}
}

func loadCatalog(conf *config.Config) (*rcc.Catalog, []rcc.Provision, error) {
	if conf.CatalogPath != "" {
		return rcc.LoadCatalog(afero.NewOsFs(), conf.CatalogPath)
	}
	cat, err := platform.Catalog(conf.Derivative)
	return cat, nil, err
}

func openRcc(conf *config.Config, cat *rcc.Catalog, log *zap.Logger) (*rcc.Rcc, error) {
	opts := []rcc.Option{rcc.WithLogger(log), rcc.WithPollPolicy(conf.Poll.Policy())}
	if conf.Memory == config.MemoryDevMem {
		return rcc.Open(cat, opts...)
	}
	sim := mmio.NewSim()
	rcc.Emulate(sim, cat, conf.SimLatency)
	return rcc.OpenWithMemory(sim, cat, opts...)
}

func run(conf *config.Config, log *zap.Logger) error {
	log.Info("starting clkd",
		zap.String("version", conf.Version.Version),
		zap.String("git_hash", conf.Version.GitHash),
		zap.String("memory", string(conf.Memory)))

	cat, prov, err := loadCatalog(conf)
	if err != nil {
		return fmt.Errorf("loading catalog: %v", err)
	}
	r, err := openRcc(conf, cat, log)
	if err != nil {
		return fmt.Errorf("opening clock controller: %v", err)
	}
	defer r.Close()

	if len(prov) > 0 {
		// A partial table still leaves the rest of the resources usable.
		if err := r.Provision(bootCaller, prov); err != nil {
			log.Warn("provisioning incomplete", zap.Error(err))
		} else {
			log.Info("provisioned access control", zap.Int("entries", len(prov)))
		}
	}

	prometheus.MustRegister(metric.NewTreeCollector(r))
	if conf.MetricsAddr != "" {
		addr, err := metric.StartMetrics(conf.MetricsAddr, log)
		if err != nil {
			return fmt.Errorf("starting metrics: %v", err)
		}
		log.Info("serving metrics", zap.Stringer("addr", addr))
	}

	l, err := net.Listen("tcp", conf.GRPCAddr)
	if err != nil {
		return fmt.Errorf("could not listen: %v", err)
	}
	srv := grpc.NewServer(r, &conf.Version, log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	done := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		defer close(done)
		return srv.Serve(l)
	})
	g.Go(func() error {
		select {
		case s := <-sig:
			log.Info("shutting down", zap.Stringer("signal", s))
			srv.Stop()
		case <-done:
		}
		return nil
	})
	return g.Wait()
}
