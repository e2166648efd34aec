// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grpc

import (
	"context"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/jmhodges/clock"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client talks to a clock service as one compartment.
type Client struct {
	cc  *grpc.ClientConn
	who rif.Caller
	clk clock.Clock
}

// Dial connects to addr. The service is meant for a local socket or a
// trusted management network and runs without transport security.
func Dial(addr string, who rif.Caller) (*Client, error) {
	cc, err := grpc.Dial(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpc_prometheus.UnaryClientInterceptor),
	)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, who: who, clk: clock.New()}, nil
}

func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) call(ctx context.Context, name string, req, resp proto.Message) error {
	return c.cc.Invoke(withCaller(ctx, c.who), "/"+serviceName+"/"+name, req, resp)
}

// NodeInfo is one entry of ListNodes.
type NodeInfo struct {
	Name   string
	Kind   string
	Hertz  uint64
	Active bool
	Reason string
}

func (c *Client) ListNodes(ctx context.Context) ([]NodeInfo, error) {
	var resp structpb.ListValue
	if err := c.call(ctx, "ListNodes", &emptypb.Empty{}, &resp); err != nil {
		return nil, err
	}
	var out []NodeInfo
	for _, v := range resp.GetValues() {
		f := v.GetStructValue().GetFields()
		out = append(out, NodeInfo{
			Name:   f["name"].GetStringValue(),
			Kind:   f["kind"].GetStringValue(),
			Hertz:  uint64(f["hertz"].GetNumberValue()),
			Active: f["active"].GetBoolValue(),
			Reason: f["reason"].GetStringValue(),
		})
	}
	return out, nil
}

// Resolve returns the frequency in Hz of a node or peripheral.
func (c *Client) Resolve(ctx context.Context, name string) (uint64, error) {
	var resp wrapperspb.UInt64Value
	if err := c.call(ctx, "Resolve", wrapperspb.String(name), &resp); err != nil {
		return 0, err
	}
	return resp.GetValue(), nil
}

func (c *Client) GetAccess(ctx context.Context, resource int) (rif.Descriptor, error) {
	var resp structpb.Struct
	if err := c.call(ctx, "GetAccess", wrapperspb.Int64(int64(resource)), &resp); err != nil {
		return rif.Descriptor{}, err
	}
	f := resp.GetFields()
	d := rif.Descriptor{
		Secure:     f["secure"].GetBoolValue(),
		Privileged: f["privileged"].GetBoolValue(),
		StaticCID:  rif.CID(f["static_cid"].GetNumberValue()),
		Held:       f["held"].GetBoolValue(),
		Holder:     rif.CID(f["holder"].GetNumberValue()),
		Locked:     f["locked"].GetBoolValue(),
	}
	switch f["mode"].GetStringValue() {
	case rif.ModeStatic.String():
		d.Mode = rif.ModeStatic
	case rif.ModeDynamic.String():
		d.Mode = rif.ModeDynamic
	}
	for _, v := range f["whitelist"].GetListValue().GetValues() {
		d.Whitelist |= rif.WhitelistOf(rif.CID(v.GetNumberValue()))
	}
	return d, nil
}

// RequestDivider starts a change of the "prediv" or "findiv" divider of
// a channel, given by number or peripheral name. It returns a handle for
// Poll.
func (c *Client) RequestDivider(ctx context.Context, channel interface{}, divider string, value uint32) (uint64, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"channel": channel,
		"divider": divider,
		"value":   float64(value),
	})
	if err != nil {
		return 0, err
	}
	var resp wrapperspb.UInt64Value
	if err := c.call(ctx, "RequestDivider", req, &resp); err != nil {
		return 0, err
	}
	return resp.GetValue(), nil
}

func (c *Client) Poll(ctx context.Context, handle uint64) (bool, error) {
	var resp wrapperspb.BoolValue
	if err := c.call(ctx, "Poll", wrapperspb.UInt64(handle), &resp); err != nil {
		return false, err
	}
	return resp.GetValue(), nil
}

// WaitSettled polls handle every interval until it settles or ctx ends.
func (c *Client) WaitSettled(ctx context.Context, handle uint64, interval time.Duration) error {
	for {
		done, err := c.Poll(ctx, handle)
		if err != nil || done {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.clk.Sleep(interval)
	}
}

func (c *Client) TakeSemaphore(ctx context.Context, resource int) error {
	return c.call(ctx, "TakeSemaphore", wrapperspb.Int64(int64(resource)), &emptypb.Empty{})
}

func (c *Client) ReleaseSemaphore(ctx context.Context, resource int) error {
	return c.call(ctx, "ReleaseSemaphore", wrapperspb.Int64(int64(resource)), &emptypb.Empty{})
}

func (c *Client) GetVersion(ctx context.Context) (version, gitHash string, err error) {
	var resp structpb.Struct
	if err := c.call(ctx, "GetVersion", &emptypb.Empty{}, &resp); err != nil {
		return "", "", err
	}
	f := resp.GetFields()
	return f["version"].GetStringValue(), f["git_hash"].GetStringValue(), nil
}
