// Copyright 2018-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package grpc exposes a clock tree over gRPC. Messages are protobuf
// well-known types, so the service needs no generated code.
package grpc

import (
	"context"
	"math"
	"net"
	"sync"
	"time"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/jmhodges/clock"
	"github.com/u-root/u-clk/config"
	"github.com/u-root/u-clk/pkg/hardware/rcc"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const serviceName = "uclk.ClockService"

// Handles nobody polls are dropped after pendingTTL, and at most
// maxPending are kept, oldest evicted first.
const (
	pendingTTL = time.Minute
	maxPending = 1024
)

type pendingEntry struct {
	p      *rcc.Pending
	issued time.Time
}

type clockServer struct {
	r       *rcc.Rcc
	log     *zap.Logger
	version *config.Version
	clk     clock.Clock

	mu      sync.Mutex
	next    uint64
	pending map[uint64]pendingEntry
}

func newClockServer(r *rcc.Rcc, v *config.Version, log *zap.Logger) *clockServer {
	return &clockServer{
		r:       r,
		log:     log.Named("grpc"),
		version: v,
		clk:     clock.New(),
		pending: map[uint64]pendingEntry{},
	}
}

// track stores p under a new handle.
func (s *clockServer) track(p *rcc.Pending) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clk.Now()
	for h, e := range s.pending {
		if now.Sub(e.issued) > pendingTTL {
			delete(s.pending, h)
		}
	}
	for len(s.pending) >= maxPending {
		oldest := s.next
		for h := range s.pending {
			if h < oldest {
				oldest = h
			}
		}
		delete(s.pending, oldest)
	}
	s.next++
	s.pending[s.next] = pendingEntry{p: p, issued: now}
	return s.next
}

// Server is a running clock service.
type Server struct {
	*clockServer
	gs *grpc.Server
}

func (s *clockServer) ListNodes(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	var vals []*structpb.Value
	for _, n := range s.r.Samples() {
		st, err := structpb.NewStruct(map[string]interface{}{
			"name":   n.Node,
			"kind":   n.Kind,
			"hertz":  n.Hertz,
			"active": n.Active,
			"reason": n.Reason,
		})
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}
		vals = append(vals, structpb.NewStructValue(st))
	}
	return &structpb.ListValue{Values: vals}, nil
}

func (s *clockServer) lookup(name string) (rcc.NodeID, error) {
	id, ok := s.r.Catalog().Lookup(name)
	if !ok {
		return rcc.NodeID{}, status.Errorf(codes.NotFound, "no clock node or peripheral %q", name)
	}
	return id, nil
}

func (s *clockServer) Resolve(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	id, err := s.lookup(req.GetValue())
	if err != nil {
		return nil, err
	}
	f, err := s.r.Resolve(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt64(uint64(f)), nil
}

func (s *clockServer) GetAccess(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {
	d, err := s.r.Access().Get(int(req.GetValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	var wl []interface{}
	for c := rif.CID(0); c <= rif.MaxCID; c++ {
		if d.Whitelist.Contains(c) {
			wl = append(wl, float64(c))
		}
	}
	st, err := structpb.NewStruct(map[string]interface{}{
		"secure":     d.Secure,
		"privileged": d.Privileged,
		"mode":       d.Mode.String(),
		"static_cid": float64(d.StaticCID),
		"whitelist":  wl,
		"held":       d.Held,
		"holder":     float64(d.Holder),
		"locked":     d.Locked,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

// RequestDivider starts a divider change and returns a handle for Poll.
// The request carries "channel" (number or peripheral name), "divider"
// ("prediv" or "findiv") and "value". A prediv value is the ratio.
func (s *clockServer) RequestDivider(ctx context.Context, req *structpb.Struct) (*wrapperspb.UInt64Value, error) {
	who, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	f := req.GetFields()
	n, err := s.channelArg(f["channel"])
	if err != nil {
		return nil, err
	}
	v := f["value"].GetNumberValue()
	if v < 0 || v != float64(uint32(v)) {
		return nil, status.Errorf(codes.InvalidArgument, "bad divider value %v", v)
	}
	var p *rcc.Pending
	switch d := f["divider"].GetStringValue(); d {
	case "prediv":
		pre, ok := rcc.ParsePrediv(uint32(v))
		if !ok {
			return nil, status.Errorf(codes.InvalidArgument, "pre-divider ratio %v is not 1, 2, 4 or 1024", v)
		}
		p, err = s.r.RequestPreDivider(who, n, pre)
	case "findiv":
		p, err = s.r.RequestFineDivider(who, n, uint32(v))
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown divider %q", d)
	}
	if err != nil {
		return nil, toStatus(err)
	}
	h := s.track(p)
	s.log.Debug("divider change pending", zap.Uint64("handle", h), zap.Stringer("node", p.Node()), zap.String("divider", p.What()))
	return wrapperspb.UInt64(h), nil
}

func (s *clockServer) channelArg(v *structpb.Value) (int, error) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		v := k.NumberValue
		if v < 0 || v != math.Trunc(v) || v > math.MaxInt32 {
			return 0, status.Errorf(codes.InvalidArgument, "bad channel number %v", v)
		}
		return int(v), nil
	case *structpb.Value_StringValue:
		id, err := s.lookup(k.StringValue)
		if err != nil {
			return 0, err
		}
		if id.Kind != rcc.KindChannel {
			return 0, status.Errorf(codes.InvalidArgument, "%s is not a channel", k.StringValue)
		}
		return id.Num, nil
	}
	return 0, status.Error(codes.InvalidArgument, "missing channel")
}

// Poll reports whether the change behind a handle settled. Settled
// and expired handles are forgotten.
func (s *clockServer) Poll(ctx context.Context, req *wrapperspb.UInt64Value) (*wrapperspb.BoolValue, error) {
	s.mu.Lock()
	e, ok := s.pending[req.GetValue()]
	if ok && s.clk.Now().Sub(e.issued) > pendingTTL {
		delete(s.pending, req.GetValue())
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return nil, status.Errorf(codes.NotFound, "no pending change %d", req.GetValue())
	}
	done := e.p.Poll()
	if done {
		s.mu.Lock()
		delete(s.pending, req.GetValue())
		s.mu.Unlock()
	}
	return wrapperspb.Bool(done), nil
}

func (s *clockServer) TakeSemaphore(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	who, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.r.Access().Take(int(req.GetValue()), who.CID); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *clockServer) ReleaseSemaphore(ctx context.Context, req *wrapperspb.Int64Value) (*emptypb.Empty, error) {
	who, err := callerFrom(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.r.Access().Release(int(req.GetValue()), who.CID); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

func (s *clockServer) GetVersion(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"version":  s.version.Version,
		"git_hash": s.version.GitHash,
	})
}

type unaryFunc func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error)

func method(name string, newReq func() proto.Message, call unaryFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			req := newReq()
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*clockServer)
			if interceptor == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			return interceptor(ctx, req, info, func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(s, ctx, req.(proto.Message))
			})
		},
	}
}

func newEmpty() proto.Message  { return &emptypb.Empty{} }
func newString() proto.Message { return &wrapperspb.StringValue{} }
func newInt64() proto.Message  { return &wrapperspb.Int64Value{} }
func newUint64() proto.Message { return &wrapperspb.UInt64Value{} }
func newStruct() proto.Message { return &structpb.Struct{} }

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*interface{})(nil),
	Methods: []grpc.MethodDesc{
		method("ListNodes", newEmpty, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.ListNodes(ctx, req.(*emptypb.Empty))
		}),
		method("Resolve", newString, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.Resolve(ctx, req.(*wrapperspb.StringValue))
		}),
		method("GetAccess", newInt64, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.GetAccess(ctx, req.(*wrapperspb.Int64Value))
		}),
		method("RequestDivider", newStruct, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.RequestDivider(ctx, req.(*structpb.Struct))
		}),
		method("Poll", newUint64, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.Poll(ctx, req.(*wrapperspb.UInt64Value))
		}),
		method("TakeSemaphore", newInt64, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.TakeSemaphore(ctx, req.(*wrapperspb.Int64Value))
		}),
		method("ReleaseSemaphore", newInt64, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.ReleaseSemaphore(ctx, req.(*wrapperspb.Int64Value))
		}),
		method("GetVersion", newEmpty, func(s *clockServer, ctx context.Context, req proto.Message) (proto.Message, error) {
			return s.GetVersion(ctx, req.(*emptypb.Empty))
		}),
	},
	Metadata: "uclk.proto",
}

// NewServer registers the clock service for r. Call Serve to accept
// connections.
func NewServer(r *rcc.Rcc, v *config.Version, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if v == nil {
		v = &config.DefaultConfig.Version
	}
	gServ := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_prometheus.UnaryServerInterceptor),
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	)
	s := newClockServer(r, v, log)
	gServ.RegisterService(&serviceDesc, s)
	reflection.Register(gServ)
	grpc_prometheus.Register(gServ)
	return &Server{clockServer: s, gs: gServ}
}

// Serve blocks until l fails or Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("serving clock service", zap.Stringer("addr", l.Addr()))
	return s.gs.Serve(l)
}

func (s *Server) Stop() {
	s.gs.GracefulStop()
}
