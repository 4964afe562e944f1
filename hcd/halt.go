// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"sync/atomic"
	"time"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

// handleChannelHalt classifies a channel halt and decides the fate of
// the in-flight request. It reports true when the scheduler is done
// with the request on this channel: completed, failed, or requeued at
// the head of the endpoint queue. A false return means a follow-up
// transaction was programmed on the same channel.
func (drv *Driver) handleChannelHalt(ch int, req *request, ep *endpoint, ints regs.HCInt) bool {
	chregs := &drv.hw.ch[ch]

	switch {
	case ints.Stall() || ints.AHBError() || ints.TransactionError() ||
		ints.BabbleError() || ints.ExcessTransaction() ||
		ints.FrameListRollover() ||
		(ints.NYET() && !req.completeSplit) ||
		(ints.DataToggleError() &&
			regs.HCChar(chregs.char.r()).EndpointDir() == regs.EpOut):

		// The bus reported an error. A stall is a legitimate answer
		// from the endpoint, so it is not logged.
		if !ints.Stall() {
			drv.msg.Printf("transfer %d failed, hcint=0x%08x (dev=%d, ep=0x%02x)",
				req.id, uint32(ints), ep.dev.id, ep.address)
		}

		drv.releaseChannel(ch)
		drv.completeRequest(req, usb.ErrIO, 0)
		return true

	case ints.FrameOverrun():
		if n := atomic.AddUint32(&drv.overruns, 1); n%frameOverrunThreshold == 0 {
			drv.msg.Printf("requeued %d frame overruns, last one on ep=0x%02x, dev=%d",
				frameOverrunThreshold, ep.address, ep.dev.id)
		}

		drv.releaseChannel(ch)
		ep.pushHead(req)
		return true

	case ints.NAK():
		req.nextDataToggle = regs.HCTSiz(chregs.tsiz.r()).PacketID()

		// Control transfers keep their channel across phases, so it
		// only goes back to the pool while still in the SETUP phase.
		if ep.desc.Type() != usb.EndpointControl || req.phase == phaseSetup {
			drv.releaseChannel(ch)
		}

		time.Sleep(nakDelay(ep))
		drv.awaitSOFIfNecessary(ch, req, ep)

		req.completeSplit = false
		ep.pushHead(req)
		return true

	case ints.NYET():
		if req.cspltRetries++; req.cspltRetries >= 8 {
			// The hub never came back with data; start the split over.
			req.completeSplit = false
		}

		// Retry half a microframe later; interrupt endpoints go through
		// the SOF gate instead, which only holds them once the split
		// has been started over.
		if ep.desc.Type() != usb.EndpointInterrupt {
			time.Sleep(62500 * time.Nanosecond)
		}
		drv.awaitSOFIfNecessary(ch, req, ep)

		drv.startTransaction(ch, req)
		return false
	}

	return drv.handleNormalHalt(ch, req, ep, ints)
}

// nakDelay is how long a NAK parks the endpoint: its polling interval,
// and never less than a millisecond.
func nakDelay(ep *endpoint) time.Duration {
	var (
		bInterval = ep.desc.BInterval
		d         time.Duration
	)
	switch {
	case ep.dev.speed == usb.SpeedHigh && bInterval > 0:
		d = time.Duration(1<<(bInterval-1)) * 125 * time.Microsecond
	default:
		d = time.Duration(bInterval) * time.Millisecond
	}
	if d == 0 {
		d = 1 * time.Millisecond
	}
	return d
}

// handleNormalHalt accounts a halt that carried no error flags.
func (drv *Driver) handleNormalHalt(ch int, req *request, ep *endpoint, ints regs.HCInt) bool {
	var (
		chregs = &drv.hw.ch[ch]
		tsiz   = regs.HCTSiz(chregs.tsiz.r())
		char   = regs.HCChar(chregs.char.r())
		splt   = regs.HCSplt(chregs.splt.r())
	)

	packetsRemaining := tsiz.PacketCount()
	packetsTransferred := req.packetsQueued - packetsRemaining

	if packetsTransferred == 0 {
		// Nothing moved. An ACK on an uncompleted split means the
		// start-split went through: follow up with the complete-split.
		if ints.ACK() && splt.SplitEnable() && !req.completeSplit {
			req.completeSplit = true
			drv.startTransaction(ch, req)
			return false
		}

		drv.releaseChannel(ch)
		drv.completeRequest(req, usb.ErrIO, 0)
		return true
	}

	var (
		maxPacketSize    = char.MaxPacketSize()
		isIn             = char.EndpointDir() == regs.EpIn
		bytesTransferred uint32
	)

	if isIn {
		// The engine counts the transfer size down as data lands.
		bytesTransferred = req.bytesQueued - tsiz.Size()
	} else {
		if packetsTransferred > 1 {
			bytesTransferred += maxPacketSize * (packetsTransferred - 1)
		}
		if packetsRemaining == 0 &&
			(req.totalBytesQueued%maxPacketSize != 0 || req.totalBytesQueued == 0) {
			bytesTransferred += req.totalBytesQueued % maxPacketSize
		} else {
			bytesTransferred += maxPacketSize
		}
	}

	req.packetsQueued -= packetsTransferred
	req.bytesQueued -= bytesTransferred
	req.bytesTransferred += bytesTransferred

	if req.packetsQueued == 0 ||
		(isIn && bytesTransferred < packetsTransferred*maxPacketSize) {
		// The transaction attempt is over: every queued packet went
		// through, or the device cut an IN short.
		if !ints.TransferCompleted() {
			drv.msg.Printf("transfer %d failed, hcint=0x%08x (dev=%d, ep=0x%02x)",
				req.id, uint32(ints), ep.dev.id, ep.address)
			drv.releaseChannel(ch)
			drv.completeRequest(req, usb.ErrIO, 0)
			return true
		}

		if req.shortAttempt && req.bytesQueued == 0 &&
			req.bytesTransferred < uint32(req.usb.Length()) {
			// The attempt was trimmed to one packet for a split and
			// the request still has data to move: schedule the rest.
			req.completeSplit = false
			req.nextDataToggle = tsiz.PacketID()

			// A control transfer keeps the channel for its next
			// attempt; everything else re-acquires one.
			if ep.desc.Type() != usb.EndpointControl || req.phase == phaseSetup {
				drv.releaseChannel(ch)
			}
			ep.pushHead(req)
			return true
		}

		if ep.desc.Type() == usb.EndpointControl && req.phase < phaseStatus {
			req.completeSplit = false

			if req.phase == phaseSetup {
				req.bytesTransferred = 0
				req.nextDataToggle = regs.ToggleData1
			}

			req.phase++

			// Without data to move, go straight to the STATUS phase.
			if req.phase == phaseData && req.usb.Length() == 0 {
				req.phase++
			}

			// The channel stays with the request for the next phase.
			ep.pushHead(req)
			return true
		}

		drv.releaseChannel(ch)
		drv.completeRequest(req, nil, int(req.bytesTransferred))
		return true
	}

	// More packets to move on this channel.
	if splt.SplitEnable() {
		req.completeSplit = !req.completeSplit
	}
	drv.startTransaction(ch, req)
	return false
}
