// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package grpc

import (
	"context"
	"strconv"

	"github.com/u-root/u-clk/pkg/hardware/hwerr"
	"github.com/u-root/u-clk/pkg/hardware/rif"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Caller identity travels in request metadata.
const (
	mdCID        = "uclk-cid"
	mdSecure     = "uclk-secure"
	mdPrivileged = "uclk-privileged"
)

var kindCodes = map[hwerr.Kind]codes.Code{
	hwerr.InvalidArgument:  codes.InvalidArgument,
	hwerr.InvalidState:     codes.FailedPrecondition,
	hwerr.ResourceInUse:    codes.FailedPrecondition,
	hwerr.SourceDisabled:   codes.FailedPrecondition,
	hwerr.NotLocked:        codes.Unavailable,
	hwerr.ChangeInProgress: codes.Unavailable,
	hwerr.NotPermitted:     codes.PermissionDenied,
	hwerr.Locked:           codes.PermissionDenied,
	hwerr.AlreadyHeld:      codes.AlreadyExists,
	hwerr.Timeout:          codes.DeadlineExceeded,
}

func toStatus(err error) error {
	c, ok := kindCodes[hwerr.KindOf(err)]
	if !ok {
		c = codes.Unknown
	}
	return status.Error(c, err.Error())
}

func callerFrom(ctx context.Context) (rif.Caller, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	one := func(k string) string {
		if v := md.Get(k); len(v) > 0 {
			return v[0]
		}
		return ""
	}
	var who rif.Caller
	if s := one(mdCID); s != "" {
		n, err := strconv.ParseUint(s, 10, 8)
		if err != nil || rif.CID(n) > rif.MaxCID {
			return who, status.Errorf(codes.InvalidArgument, "bad %s %q", mdCID, s)
		}
		who.CID = rif.CID(n)
	}
	for _, f := range []struct {
		key string
		dst *bool
	}{{mdSecure, &who.Secure}, {mdPrivileged, &who.Privileged}} {
		s := one(f.key)
		if s == "" {
			continue
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return who, status.Errorf(codes.InvalidArgument, "bad %s %q", f.key, s)
		}
		*f.dst = b
	}
	return who, nil
}

func withCaller(ctx context.Context, who rif.Caller) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		mdCID, strconv.Itoa(int(who.CID)),
		mdSecure, strconv.FormatBool(who.Secure),
		mdPrivileged, strconv.FormatBool(who.Privileged))
}
