// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// clkctl queries and changes a clock tree served by clkd.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/u-root/u-clk/pkg/hardware/rcc"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"github.com/u-root/u-clk/pkg/logger"
	"github.com/u-root/u-clk/pkg/service/grpc"
)

var (
	addr       = flag.String("addr", "[::1]:9371", "clkd address")
	cid        = flag.Uint("cid", uint(rif.CIDApplication), "compartment to act as")
	secure     = flag.Bool("secure", false, "act as a secure caller")
	privileged = flag.Bool("privileged", true, "act as a privileged caller")
	timeout    = flag.Duration("timeout", 10*time.Second, "deadline for the whole command")

	log = logger.LogContainer.GetSimpleLogger()
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: clkctl [flags] command [args]

Commands:
  list                                 resolve every node
  resolve NAME                         frequency of a node or peripheral
  access RESOURCE                      access descriptor of a resource
  divider CHANNEL prediv|findiv VALUE  change a divider and wait for it
  take RESOURCE                        take a resource semaphore
  release RESOURCE                     release a resource semaphore
  version                              clkd version
  services                             services registered on the server

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	if *cid > uint(rif.MaxCID) {
		log.Fatalf("-cid %d out of range 0..%d", *cid, rif.MaxCID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if args[0] == "services" {
		for _, s := range listServices(ctx, *addr) {
			fmt.Println(s)
		}
		return
	}

	who := rif.Caller{CID: rif.CID(*cid), Secure: *secure, Privileged: *privileged}
	c, err := grpc.Dial(*addr, who)
	if err != nil {
		log.Fatalf("Could not open connection: %v", err)
	}
	defer c.Close()
	if err := callRPC(ctx, c, args); err != nil {
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func need(args []string, n int) {
	if len(args) != n+1 {
		usage()
		os.Exit(2)
	}
}

func resource(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("Not a resource number: %s", s)
	}
	return n
}

func callRPC(ctx context.Context, c *grpc.Client, args []string) error {
	switch args[0] {
	case "list":
		nodes, err := c.ListNodes(ctx)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			if n.Active {
				fmt.Printf("%-8s %-10s %v\n", n.Name, n.Kind, rcc.Frequency(n.Hertz))
			} else {
				fmt.Printf("%-8s %-10s off (%s)\n", n.Name, n.Kind, n.Reason)
			}
		}
	case "resolve":
		need(args, 1)
		f, err := c.Resolve(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %v\n", args[1], rcc.Frequency(f))
	case "access":
		need(args, 1)
		d, err := c.GetAccess(ctx, resource(args[1]))
		if err != nil {
			return err
		}
		fmt.Printf("%+v\n", d)
	case "divider":
		need(args, 3)
		v, err := strconv.ParseUint(args[3], 0, 32)
		if err != nil {
			return fmt.Errorf("not a divider value: %s", args[3])
		}
		var ch interface{} = args[1]
		if n, err := strconv.Atoi(args[1]); err == nil {
			ch = float64(n)
		}
		h, err := c.RequestDivider(ctx, ch, args[2], uint32(v))
		if err != nil {
			return err
		}
		if err := c.WaitSettled(ctx, h, time.Millisecond); err != nil {
			return err
		}
		fmt.Printf("%s %s set to %d\n", args[1], args[2], v)
	case "take":
		need(args, 1)
		return c.TakeSemaphore(ctx, resource(args[1]))
	case "release":
		need(args, 1)
		return c.ReleaseSemaphore(ctx, resource(args[1]))
	case "version":
		v, h, err := c.GetVersion(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Version: %s Hash: %s\n", v, h)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}
