// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import "github.com/go-lpc/dwc2/hcd/internal/regs"

type config struct {
	base int64 // MMIO window offset into devmem
	span int   // MMIO window size

	dma DMA
	bti uint64
}

func newConfig() config {
	return config{
		base: regs.Base,
		span: regs.Span,
		dma:  coherentDMA{},
	}
}

// Option configures a Driver.
type Option func(*config)

// WithMMIOWindow sets the offset and size of the core register file
// inside the devmem device.
func WithMMIOWindow(base int64, span int) Option {
	return func(cfg *config) {
		cfg.base = base
		cfg.span = span
	}
}

// WithDMA sets the bus-address mapper and cache-maintenance hooks used
// when programming channel DMA.
func WithDMA(dma DMA) Option {
	return func(cfg *config) {
		cfg.dma = dma
	}
}

// WithBTI sets the bus-translation handle reported to the bus layer.
func WithBTI(bti uint64) Option {
	return func(cfg *config) {
		cfg.bti = bti
	}
}
