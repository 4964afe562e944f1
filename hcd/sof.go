// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

// awaitSOFIfNecessary parks the caller until the next usable start of
// frame before it programs a low- or full-speed interrupt transfer.
// The SOF core interrupt is only enabled while at least one waiter is
// parked.
func (drv *Driver) awaitSOFIfNecessary(ch int, req *request, ep *endpoint) {
	if ep.desc.Type() != usb.EndpointInterrupt ||
		req.completeSplit || ep.dev.speed == usb.SpeedHigh {
		return
	}

	drv.sof.mu.Lock()
	if drv.sof.waiters == 0 {
		drv.hw.gintmsk.w(drv.hw.gintmsk.r() | regs.GIntSOF)
	}
	drv.sof.waiters++
	drv.sof.mu.Unlock()

	drv.chans.sof[ch].Reset()
	drv.chans.sof[ch].Wait()

	drv.sof.mu.Lock()
	drv.sof.waiters--
	if drv.sof.waiters == 0 {
		drv.hw.gintmsk.w(drv.hw.gintmsk.r() &^ regs.GIntSOF)
	}
	drv.sof.mu.Unlock()
}
