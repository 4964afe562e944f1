// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

// ServeIRQ demultiplexes one core interrupt. The platform glue calls
// it from the goroutine servicing the controller's IRQ line.
func (drv *Driver) ServeIRQ() {
	ints := drv.hw.gintsts.r()

	if ints&regs.GIntPort != 0 {
		drv.handlePortIRQ()
	}
	if ints&regs.GIntSOF != 0 {
		drv.handleSOFIRQ()
	}
	if ints&regs.GIntHChannel != 0 {
		drv.handleChannelIRQ()
	}
}

// handlePortIRQ rebuilds the root-port status mirror from the port
// register and flushes any parked root-hub interrupt request.
func (drv *Driver) handlePortIRQ() {
	hprt := regs.HPrt(drv.hw.hprt.r())

	var port usb.PortStatus

	// This controller has a single port.
	if hprt.Connected() {
		port.Status |= usb.PortConnection
	}
	if hprt.Enabled() {
		port.Status |= usb.PortEnable
	}
	if hprt.Suspended() {
		port.Status |= usb.PortSuspend
	}
	if hprt.Overcurrent() {
		port.Status |= usb.PortOverCurrent
	}
	if hprt.Reset() {
		port.Status |= usb.PortReset
	}

	switch hprt.Speed() {
	case regs.PortSpeedLow:
		port.Status |= usb.PortLowSpeed
	case regs.PortSpeedHigh:
		port.Status |= usb.PortHighSpeed
	}

	if hprt.ConnectedChanged() {
		port.Change |= usb.CPortConnection
	}
	if hprt.EnabledChanged() {
		port.Change |= usb.CPortEnable
	}
	if hprt.OvercurrentChanged() {
		port.Change |= usb.CPortOverCurrent
	}

	drv.rh.mu.Lock()
	drv.rh.port = port
	drv.rh.mu.Unlock()

	// Write the register back to ack the latched change bits. The
	// enable bit is write-1-to-clear: keep it low so the port stays up.
	hprt.SetEnabled(false)
	drv.hw.hprt.w(uint32(hprt))

	drv.completeRootPortStatusReq()
}

// handleSOFIRQ wakes every parked SOF waiter, except during microframe
// 6, which is reserved for host-initiated complete-splits.
func (drv *Driver) handleSOFIRQ() {
	if drv.hw.hfnum.r()&0x7 == 6 {
		return
	}
	for _, c := range drv.chans.sof {
		c.Signal()
	}
}

// handleChannelIRQ snapshots and acks every halted channel, then wakes
// the scheduler owning it.
func (drv *Driver) handleChannelIRQ() {
	chints := drv.hw.haint.r()

	for ch := 0; ch < NumHostChannels; ch++ {
		if chints&(1<<ch) == 0 {
			continue
		}

		chregs := &drv.hw.ch[ch]
		drv.chans.irqs[ch] = regs.HCInt(chregs.hcint.r())

		chregs.intmsk.w(0)
		chregs.hcint.w(0xffffffff)

		drv.chans.halt[ch].Signal()
	}
}
