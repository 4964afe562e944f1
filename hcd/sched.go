// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"fmt"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

// serveEndpoint is the scheduler of one endpoint. It is the sole
// consumer of the endpoint's request queue and the sole user of
// whatever channel it holds.
func (drv *Driver) serveEndpoint(ep *endpoint) {
	var (
		nextToggle uint32
		channel    = -1
	)

	for {
		ep.pending.Wait()

		ep.mu.Lock()
		if len(ep.reqs) == 0 {
			ep.pending.Reset()
			ep.mu.Unlock()
			continue
		}
		req := ep.reqs[0]
		ep.reqs = ep.reqs[1:]
		if len(ep.reqs) == 0 {
			ep.pending.Reset()
		}
		ep.mu.Unlock()

		switch ep.desc.Type() {
		case usb.EndpointControl:
			switch req.phase {
			case phaseSetup:
				// One channel carries all three phases of the
				// transfer; acquire it here and hold it until the
				// STATUS phase completes.
				channel = drv.acquireChannel()

				req.setup = make([]byte, usb.SetupPacketSize)
				copy(req.setup, req.usb.Setup.Bytes())
				drv.cfg.dma.Flush(req.setup)
			case phaseData, phaseStatus:
				// Later phases reuse the channel acquired for SETUP.
			}

		case usb.EndpointIsochronous:
			drv.msg.Printf("isochronous endpoints not implemented (dev=%d, ep=0x%02x)",
				ep.dev.id, ep.address)
			drv.completeRequest(req, usb.ErrNotSupported, 0)
			continue

		case usb.EndpointBulk:
			req.nextDataToggle = nextToggle
			channel = drv.acquireChannel()

		case usb.EndpointInterrupt:
			req.nextDataToggle = nextToggle
			channel = drv.acquireChannel()
			drv.awaitSOFIfNecessary(channel, req, ep)
		}

		err := drv.startTransfer(channel, req, ep)
		if err != nil {
			drv.msg.Printf("could not program transfer %d: %+v", req.id, err)
			drv.releaseChannel(channel)
			drv.completeRequest(req, usb.ErrIO, 0)
			continue
		}

		for {
			ints := drv.awaitChannelHalt(channel)

			// Latch the data toggle the hardware arrived at; it
			// seeds the next transfer of this endpoint.
			nextToggle = regs.HCTSiz(drv.hw.ch[channel].tsiz.r()).PacketID()

			if drv.handleChannelHalt(channel, req, ep, ints) {
				break
			}
		}
	}
}

func divRoundUp(n, d uint32) uint32 {
	return (n + d - 1) / d
}

// startTransfer programs channel ch with the next transaction attempt
// of req and enables it.
func (drv *Driver) startTransfer(ch int, req *request, ep *endpoint) error {
	var (
		chregs = &drv.hw.ch[ch]
		char   regs.HCChar
		splt   regs.HCSplt
		tsiz   regs.HCTSiz
		data   []byte
	)

	dev := ep.dev
	usbReq := req.usb
	req.shortAttempt = false

	char.SetMaxPacketSize(uint32(ep.desc.MaxPacketSize()))
	char.SetEndpointNumber(uint32(ep.desc.Number()))
	char.SetEndpointType(uint32(ep.desc.Type()))
	char.SetDeviceAddress(dev.id)

	ppf := uint32(1)
	if dev.speed == usb.SpeedHigh {
		// High-bandwidth transaction count rides in bits 11-12 of
		// wMaxPacketSize.
		ppf += uint32(ep.desc.WMaxPacketSize>>11) & 0x3
	}
	char.SetPacketsPerFrame(ppf)

	switch {
	case ep.desc.Type() == usb.EndpointControl && req.phase == phaseSetup:
		char.SetEndpointDir(regs.EpOut)
		data = req.setup
		tsiz.SetSize(usb.SetupPacketSize)
		tsiz.SetPacketID(regs.ToggleSetup)

	case ep.desc.Type() == usb.EndpointControl && req.phase == phaseData:
		if usbReq.Setup.In() {
			char.SetEndpointDir(regs.EpIn)
		} else {
			char.SetEndpointDir(regs.EpOut)
		}
		data = usbReq.Data[req.bytesTransferred:]
		tsiz.SetSize(uint32(usbReq.Length()) - req.bytesTransferred)
		drv.cfg.dma.Flush(data)

		// The DATA phase always opens on DATA1.
		if req.bytesTransferred == 0 {
			tsiz.SetPacketID(regs.ToggleData1)
		} else {
			tsiz.SetPacketID(req.nextDataToggle)
		}

	case ep.desc.Type() == usb.EndpointControl && req.phase == phaseStatus:
		// With no DATA phase the status transaction is IN; otherwise
		// it runs opposite to the DATA phase.
		switch {
		case usbReq.Setup.WLength == 0:
			char.SetEndpointDir(regs.EpIn)
		case !usbReq.Setup.In():
			char.SetEndpointDir(regs.EpIn)
		default:
			char.SetEndpointDir(regs.EpOut)
		}
		data = nil
		tsiz.SetSize(0)
		tsiz.SetPacketID(regs.ToggleData1)

	default:
		if ep.desc.In() {
			char.SetEndpointDir(regs.EpIn)
		} else {
			char.SetEndpointDir(regs.EpOut)
		}
		data = usbReq.Data[req.bytesTransferred:]
		tsiz.SetSize(uint32(usbReq.Length()) - req.bytesTransferred)
		tsiz.SetPacketID(req.nextDataToggle)
	}

	if dev.speed != usb.SpeedHigh {
		splt.SetPortAddress(uint32(dev.port))
		splt.SetHubAddress(dev.hubAddress)
		splt.SetSplitEnable(true)

		// A split transaction moves at most one packet; trim the
		// attempt and come back for the rest.
		if tsiz.Size() > char.MaxPacketSize() {
			tsiz.SetSize(char.MaxPacketSize())
			req.shortAttempt = true
		}

		if dev.speed == usb.SpeedLow {
			char.SetLowSpeed(true)
		}
	}

	// Channels read 0xffffff00 when a transaction carries no data.
	addr := uint32(0xffffff00)
	if len(data) != 0 {
		var err error
		addr, err = drv.cfg.dma.Map(data)
		if err != nil {
			return fmt.Errorf("dwc2: could not map transfer buffer: %w", err)
		}
	}
	if addr%4 != 0 {
		return fmt.Errorf("dwc2: transfer buffer 0x%x is not word aligned", addr)
	}
	chregs.dma.w(addr)

	pktcnt := divRoundUp(tsiz.Size(), char.MaxPacketSize())
	switch {
	case pktcnt == 0:
		pktcnt = 1
	case usbReq.ZeroLengthPacket && tsiz.Size()%char.MaxPacketSize() == 0:
		pktcnt++
	}
	tsiz.SetPacketCount(pktcnt)

	req.bytesQueued = tsiz.Size()
	req.totalBytesQueued = tsiz.Size()
	req.packetsQueued = pktcnt

	chregs.char.w(uint32(char))
	chregs.splt.w(uint32(splt))
	chregs.tsiz.w(uint32(tsiz))

	drv.startTransaction(ch, req)
	return nil
}

// startTransaction fires (or refires) the transaction currently
// programmed on ch.
func (drv *Driver) startTransaction(ch int, req *request) {
	chregs := &drv.hw.ch[ch]

	chregs.intmsk.w(0)
	chregs.hcint.w(0xffffffff)

	splt := regs.HCSplt(chregs.splt.r())
	splt.SetCompleteSplit(req.completeSplit)
	chregs.splt.w(uint32(splt))

	nextFrame := drv.hw.hfnum.r()&0xffff + 1

	if !splt.CompleteSplit() {
		req.cspltRetries = 0
	}

	char := regs.HCChar(chregs.char.r())
	char.SetOddFrame(nextFrame&1 == 1)
	char.SetEnabled(true)
	chregs.char.w(uint32(char))

	chregs.intmsk.w(regs.HCIntHalted)
	drv.hw.haintmsk.w(drv.hw.haintmsk.r() | 1<<ch)
}
