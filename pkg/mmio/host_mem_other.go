// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package mmio

import (
	"fmt"
	"runtime"
)

// HostMem is only available on linux.
type HostMem struct{ Port }

func OpenHostMemory(base uintptr, size int) (*HostMem, error) {
	return nil, fmt.Errorf("physical memory access is not supported on %s", runtime.GOOS)
}
