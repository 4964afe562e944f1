// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"fmt"
	"unsafe"
)

// DMA translates transfer buffers to bus addresses and provides the
// cache maintenance around DMA. The platform glue supplies one wired to
// its bus-translation handle.
type DMA interface {
	// Map pins p and returns its bus address. The address must fit the
	// 32-bit channel DMA register and be word aligned.
	Map(p []byte) (uint32, error)

	// Flush writes p back to memory before the engine reads it.
	Flush(p []byte)

	// Invalidate discards cached lines over p after the engine wrote it.
	Invalidate(p []byte)
}

// coherentDMA is the default mapper for cache-coherent platforms where
// bus addresses equal virtual addresses. Addresses beyond 32 bits are
// rejected rather than silently truncated.
type coherentDMA struct{}

func (coherentDMA) Map(p []byte) (uint32, error) {
	if len(p) == 0 {
		return 0, nil
	}
	addr := uintptr(unsafe.Pointer(&p[0]))
	if uint64(addr) > 0xffffffff {
		return 0, fmt.Errorf("dwc2: buffer 0x%x beyond 32-bit bus space", addr)
	}
	return uint32(addr), nil
}

func (coherentDMA) Flush(p []byte)      {}
func (coherentDMA) Invalidate(p []byte) {}
