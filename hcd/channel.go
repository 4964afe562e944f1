// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"math/bits"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
)

// acquireChannel blocks until a host channel is free and returns its
// index. Fairness is not guaranteed: with few channels and short
// transfers, starvation is bounded in practice.
func (drv *Driver) acquireChannel() int {
	for {
		drv.chans.mu.Lock()

		if drv.chans.free&allChannelsFree != drv.chans.free {
			panic("dwc2: free-channel mask names a channel beyond the pool")
		}

		next := -1
		if drv.chans.free != 0 {
			next = bits.TrailingZeros32(drv.chans.free)
			drv.chans.free &^= 1 << next
		}

		if next == -1 {
			drv.chans.avail.Reset()
		}

		drv.chans.mu.Unlock()

		if next >= 0 {
			return next
		}

		drv.chans.avail.Wait()
	}
}

func (drv *Driver) releaseChannel(ch int) {
	if ch < 0 || ch >= NumHostChannels {
		panic("dwc2: release of channel beyond the pool")
	}

	drv.chans.mu.Lock()
	drv.chans.free |= 1 << ch
	drv.chans.mu.Unlock()

	drv.chans.avail.Signal()
}

// awaitChannelHalt blocks until the IRQ side reports a halt on ch and
// returns the interrupt snapshot captured at IRQ time. The snapshot
// slot needs no lock: only the scheduler holding ch reads it.
func (drv *Driver) awaitChannelHalt(ch int) regs.HCInt {
	drv.chans.halt[ch].Wait()
	drv.chans.halt[ch].Reset()
	return drv.chans.irqs[ch]
}
