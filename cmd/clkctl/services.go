// Copyright 2021-2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	reflect "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

func listServices(ctx context.Context, addr string) []string {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithBlock(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		log.Fatalf("Could not open connection: %v", err)
	}
	defer conn.Close()

	refClient, err := reflect.NewServerReflectionClient(conn).ServerReflectionInfo(ctx)
	if err != nil {
		log.Fatalf("Failed to create reflection client: %v", err)
	}
	err = refClient.Send(&reflect.ServerReflectionRequest{
		MessageRequest: &reflect.ServerReflectionRequest_ListServices{
			ListServices: "*",
		},
	})
	if err != nil {
		log.Fatalf("Failed sending request: %v", err)
	}

	resp, err := refClient.Recv()
	if err != nil {
		log.Fatalf("Failed to read response: %v", err)
	}
	if errResp := resp.GetErrorResponse(); errResp != nil {
		log.Fatalf("Got error response code: %d %s", codes.Code(errResp.ErrorCode), errResp.ErrorMessage)
	}

	listResp := resp.GetListServicesResponse()
	if listResp == nil {
		log.Warn("No remote services found!")
		return nil
	}
	names := make([]string, len(listResp.Service))
	for i, s := range listResp.Service {
		names[i] = s.Name
	}
	return names
}
