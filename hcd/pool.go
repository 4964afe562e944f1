// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"sync/atomic"

	"github.com/go-lpc/dwc2/usb"
)

// getFreeRequest takes a zeroed wrapper from the free cache, or
// allocates a new one when the cache is empty. The cache absorbs
// enumeration bursts without growing without bound.
func (drv *Driver) getFreeRequest() *request {
	var req *request

	drv.pool.mu.Lock()
	if n := len(drv.pool.free); n > 0 {
		req = drv.pool.free[n-1]
		drv.pool.free[n-1] = nil
		drv.pool.free = drv.pool.free[:n-1]
		*req = request{}
	} else {
		req = new(request)
	}
	drv.pool.mu.Unlock()

	req.id = atomic.AddUint32(&drv.reqID, 1)
	return req
}

// putFreeRequest returns a wrapper to the free cache, unless the cache
// already holds freeReqCacheThreshold entries.
func (drv *Driver) putFreeRequest(req *request) {
	drv.pool.mu.Lock()
	if len(drv.pool.free) < freeReqCacheThreshold {
		*req = request{}
		drv.pool.free = append(drv.pool.free, req)
	}
	drv.pool.mu.Unlock()
}

// inbound reports whether the request moved data device-to-host: the
// endpoint direction bit, or the SETUP direction for a control
// transfer.
func inbound(req *usb.Request) bool {
	if req.EndpointAddress&usb.EndpointNumMask == 0 {
		return req.Setup.In()
	}
	return req.EndpointAddress&usb.EndpointDirIn != 0
}

// completeRequest completes the upstream request and recycles its
// wrapper.
func (drv *Driver) completeRequest(req *request, status error, n int) {
	// Only a buffer the engine wrote needs its cache lines dropped;
	// root-hub replies never touch the engine.
	if status == nil && n > 0 && inbound(req.usb) &&
		req.usb.DeviceID != RootHubDeviceID {
		drv.cfg.dma.Invalidate(req.usb.Data[:n])
	}

	usbReq := req.usb
	usbReq.Complete(status, n)

	req.usb = nil
	drv.putFreeRequest(req)
}
