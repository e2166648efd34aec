// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metric

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MetricOpts contains naming pieces of the exposed metric
type MetricOpts struct {
	Namespace string
	Subsystem string
	Name      string
	Help      string
}

const namespace = "uclk"

var (
	// ChangesRequested counts register changes issued, by field.
	ChangesRequested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rcc",
		Name:      "changes_requested_total",
		Help:      "Clock tree changes issued, by field.",
	}, []string{"field"})

	// Rejected counts refused operations by operation and error kind.
	Rejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_rejected_total",
		Help:      "Operations refused by the clock tree or access control.",
	}, []string{"op", "kind"})

	// SemaphoreOps counts semaphore takes and releases by outcome.
	SemaphoreOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rif",
		Name:      "semaphore_operations_total",
		Help:      "Semaphore operations by outcome.",
	}, []string{"op", "outcome"})

	// SettleSeconds observes how long BlockUntilReady waited.
	SettleSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rcc",
		Name:      "settle_seconds",
		Help:      "Time spent waiting for a pending change to settle.",
		Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
	})
)

func init() {
	prometheus.MustRegister(ChangesRequested, Rejected, SemaphoreOps, SettleSeconds)
}

// NodeSample is the resolved state of one clock node.
type NodeSample struct {
	Node   string
	Kind   string
	Hertz  float64
	Active bool
	// Reason is why the node has no frequency, empty when active.
	Reason string
}

// TreeSource is anything that can snapshot the whole clock tree.
type TreeSource interface {
	Samples() []NodeSample
}

// TreeCollector resolves the tree on every scrape.
type TreeCollector struct {
	src    TreeSource
	freq   *prometheus.Desc
	active *prometheus.Desc
}

func NewTreeCollector(src TreeSource) *TreeCollector {
	labels := []string{"node", "kind"}
	return &TreeCollector{
		src: src,
		freq: prometheus.NewDesc(
			optsToString(MetricOpts{Namespace: namespace, Subsystem: "node", Name: "frequency_hertz"}),
			"Resolved output frequency of a clock node.", labels, nil),
		active: prometheus.NewDesc(
			optsToString(MetricOpts{Namespace: namespace, Subsystem: "node", Name: "active"}),
			"Whether a clock node currently resolves to a frequency.", append(labels, "reason"), nil),
	}
}

func (c *TreeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.freq
	ch <- c.active
}

func (c *TreeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.src.Samples() {
		a := 0.0
		if s.Active {
			a = 1
			ch <- prometheus.MustNewConstMetric(c.freq, prometheus.GaugeValue, s.Hertz, s.Node, s.Kind)
		}
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, a, s.Node, s.Kind, s.Reason)
	}
}

// StartMetrics serves the default registry on addr in the background
func StartMetrics(addr string, log *zap.Logger) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		err := http.Serve(l, mux)
		if err != nil {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return l.Addr(), nil
}

func optsToString(opts MetricOpts) string {
	if opts.Name == "" {
		return ""
	}
	switch {
	case opts.Namespace != "" && opts.Subsystem != "":
		return strings.Join([]string{opts.Namespace, opts.Subsystem, opts.Name}, "_")
	case opts.Namespace != "":
		return strings.Join([]string{opts.Namespace, opts.Name}, "_")
	case opts.Subsystem != "":
		return strings.Join([]string{opts.Subsystem, opts.Name}, "_")
	}
	return opts.Name
}
