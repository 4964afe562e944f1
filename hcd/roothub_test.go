// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

func rootHubRequest(t *testing.T, drv *Driver, epAddress uint8, setup usb.SetupPacket, n int) *usb.Request {
	t.Helper()

	done := make(chan struct{})
	req := &usb.Request{
		DeviceID:        RootHubDeviceID,
		EndpointAddress: epAddress,
		Data:            make([]byte, n),
		Setup:           setup,
		Done:            func(*usb.Request) { close(done) },
	}
	drv.RequestQueue(req)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for root-hub request")
	}
	return req
}

func TestRootHubStandardRequests(t *testing.T) {
	drv, _ := newTestDriver(t)
	if err := drv.Start(); err != nil {
		t.Fatalf("could not start driver: %+v", err)
	}

	getDesc := func(value, index, length uint16) usb.SetupPacket {
		return usb.SetupPacket{
			BMRequestType: usb.EndpointDirIn | usb.TypeStandard,
			BRequest:      usb.ReqGetDescriptor,
			WValue:        value,
			WIndex:        index,
			WLength:       length,
		}
	}

	t.Run("device-descriptor", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, getDesc(usb.DTDevice<<8, 0, 64), 64)
		if req.Status != nil {
			t.Fatalf("could not get device descriptor: %+v", req.Status)
		}
		if got, want := req.Actual, usb.DeviceDescriptorSize; got != want {
			t.Fatalf("invalid descriptor length: got=%d, want=%d", got, want)
		}
		if got, want := binary.LittleEndian.Uint16(req.Data[8:10]), uint16(0x18d1); got != want {
			t.Fatalf("invalid idVendor: got=0x%04x, want=0x%04x", got, want)
		}
		if got, want := binary.LittleEndian.Uint16(req.Data[10:12]), uint16(0xa002); got != want {
			t.Fatalf("invalid idProduct: got=0x%04x, want=0x%04x", got, want)
		}
	})

	t.Run("device-descriptor-truncated", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, getDesc(usb.DTDevice<<8, 0, 8), 8)
		if req.Status != nil {
			t.Fatalf("could not get device descriptor: %+v", req.Status)
		}
		if got, want := req.Actual, 8; got != want {
			t.Fatalf("invalid descriptor length: got=%d, want=%d", got, want)
		}
		if !bytes.Equal(req.Data[:8], rhDeviceDescriptor[:8]) {
			t.Fatalf("invalid descriptor prefix:\ngot= %x\nwant=%x", req.Data[:8], rhDeviceDescriptor[:8])
		}
	})

	t.Run("config-descriptor", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, getDesc(usb.DTConfig<<8, 0, 255), 255)
		if req.Status != nil {
			t.Fatalf("could not get config descriptor: %+v", req.Status)
		}
		if got, want := req.Actual, 25; got != want {
			t.Fatalf("invalid bundle length: got=%d, want=%d", got, want)
		}
		if got, want := binary.LittleEndian.Uint16(req.Data[2:4]), uint16(25); got != want {
			t.Fatalf("invalid wTotalLength: got=%d, want=%d", got, want)
		}
		// interrupt-IN endpoint closes the bundle
		endp := req.Data[18:25]
		if got, want := endp[2], uint8(usb.EndpointDirIn|1); got != want {
			t.Fatalf("invalid bEndpointAddress: got=0x%02x, want=0x%02x", got, want)
		}
		if got, want := usb.EndpointType(endp[3]&0x3), usb.EndpointInterrupt; got != want {
			t.Fatalf("invalid endpoint type: got=%v, want=%v", got, want)
		}
	})

	t.Run("string-descriptor", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, getDesc(usb.DTString<<8|2, 0, 255), 255)
		if req.Status != nil {
			t.Fatalf("could not get string descriptor: %+v", req.Status)
		}
		if got, want := req.Actual, 36; got != want {
			t.Fatalf("invalid string length: got=%d, want=%d", got, want)
		}

		var u16 []uint16
		for i := 2; i < 34; i += 2 {
			u16 = append(u16, binary.LittleEndian.Uint16(req.Data[i:i+2]))
		}
		if got, want := string(utf16.Decode(u16)), "USB 2.0 Root Hub"; got != want {
			t.Fatalf("invalid product string: got=%q, want=%q", got, want)
		}
	})

	t.Run("string-descriptor-unknown", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, getDesc(usb.DTString<<8|3, 0, 255), 255)
		if !errors.Is(req.Status, usb.ErrNotSupported) {
			t.Fatalf("invalid status: got=%+v, want=%+v", req.Status, usb.ErrNotSupported)
		}
	})

	t.Run("set-address", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeStandard,
			BRequest:      usb.ReqSetAddress,
			WValue:        1,
		}, 0)
		if req.Status != nil || req.Actual != 0 {
			t.Fatalf("invalid outcome: status=%+v, actual=%d", req.Status, req.Actual)
		}
	})

	t.Run("unknown-request", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeStandard,
			BRequest:      0x42,
		}, 0)
		if !errors.Is(req.Status, usb.ErrNotSupported) {
			t.Fatalf("invalid status: got=%+v, want=%+v", req.Status, usb.ErrNotSupported)
		}
	})
}

func TestRootHubClassRequests(t *testing.T) {
	drv, f := newTestDriver(t)
	if err := drv.Start(); err != nil {
		t.Fatalf("could not start driver: %+v", err)
	}

	t.Run("hub-descriptor", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.EndpointDirIn | usb.TypeClass,
			BRequest:      usb.ReqGetDescriptor,
			WValue:        usb.DTHub << 8,
			WLength:       255,
		}, 255)
		if req.Status != nil {
			t.Fatalf("could not get hub descriptor: %+v", req.Status)
		}
		if got, want := req.Actual, usb.HubDescriptorSize; got != want {
			t.Fatalf("invalid hub descriptor length: got=%d, want=%d", got, want)
		}
		if got, want := req.Data[2], uint8(1); got != want {
			t.Fatalf("invalid bNbrPorts: got=%d, want=%d", got, want)
		}
	})

	t.Run("set-feature-port-power", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeClass,
			BRequest:      usb.ReqSetFeature,
			WValue:        usb.FeaturePortPower,
		}, 0)
		if req.Status != nil {
			t.Fatalf("could not power port: %+v", req.Status)
		}
		if hprt := regs.HPrt(f.get32(regs.HPRT)); !hprt.Powered() {
			t.Fatalf("port not powered: hprt=0x%08x", uint32(hprt))
		}
	})

	t.Run("set-feature-port-reset", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeClass,
			BRequest:      usb.ReqSetFeature,
			WValue:        usb.FeaturePortReset,
		}, 0)
		if req.Status != nil {
			t.Fatalf("could not reset port: %+v", req.Status)
		}
		if hprt := regs.HPrt(f.get32(regs.HPRT)); hprt.Reset() {
			t.Fatalf("port reset still asserted: hprt=0x%08x", uint32(hprt))
		}
	})

	t.Run("set-feature-unknown", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeClass,
			BRequest:      usb.ReqSetFeature,
			WValue:        usb.FeaturePortSuspend,
		}, 0)
		if !errors.Is(req.Status, usb.ErrNotSupported) {
			t.Fatalf("invalid status: got=%+v, want=%+v", req.Status, usb.ErrNotSupported)
		}
	})

	t.Run("clear-feature", func(t *testing.T) {
		drv.rh.mu.Lock()
		drv.rh.port.Change = usb.CPortConnection | usb.CPortEnable
		drv.rh.mu.Unlock()

		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeClass,
			BRequest:      usb.ReqClearFeature,
			WValue:        usb.FeatureCPortConnection,
		}, 0)
		if req.Status != nil {
			t.Fatalf("could not clear feature: %+v", req.Status)
		}

		drv.rh.mu.Lock()
		change := drv.rh.port.Change
		drv.rh.port.Change = 0
		drv.rh.mu.Unlock()

		if got, want := change, uint16(usb.CPortEnable); got != want {
			t.Fatalf("invalid wPortChange: got=0x%04x, want=0x%04x", got, want)
		}
	})

	t.Run("get-status", func(t *testing.T) {
		drv.rh.mu.Lock()
		drv.rh.port = usb.PortStatus{
			Status: usb.PortConnection | usb.PortPower,
			Change: usb.CPortConnection,
		}
		drv.rh.mu.Unlock()

		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.EndpointDirIn | usb.TypeClass,
			BRequest:      usb.ReqGetStatus,
			WLength:       4,
		}, 4)
		if req.Status != nil {
			t.Fatalf("could not get port status: %+v", req.Status)
		}
		if got, want := binary.LittleEndian.Uint16(req.Data[0:2]), uint16(usb.PortConnection|usb.PortPower); got != want {
			t.Fatalf("invalid wPortStatus: got=0x%04x, want=0x%04x", got, want)
		}
		if got, want := binary.LittleEndian.Uint16(req.Data[2:4]), uint16(usb.CPortConnection); got != want {
			t.Fatalf("invalid wPortChange: got=0x%04x, want=0x%04x", got, want)
		}

		drv.rh.mu.Lock()
		drv.rh.port = usb.PortStatus{}
		drv.rh.mu.Unlock()
	})

	t.Run("unknown-class-request", func(t *testing.T) {
		req := rootHubRequest(t, drv, 0, usb.SetupPacket{
			BMRequestType: usb.TypeClass,
			BRequest:      0x42,
		}, 0)
		if !errors.Is(req.Status, usb.ErrNotSupported) {
			t.Fatalf("invalid status: got=%+v, want=%+v", req.Status, usb.ErrNotSupported)
		}
	})
}

func TestRootHubPortChange(t *testing.T) {
	drv, f := newTestDriver(t)
	if err := drv.Start(); err != nil {
		t.Fatalf("could not start driver: %+v", err)
	}

	// Park an interrupt-IN request on endpoint 1.
	done := make(chan struct{})
	req := &usb.Request{
		DeviceID:        RootHubDeviceID,
		EndpointAddress: usb.EndpointDirIn | 1,
		Data:            make([]byte, 2),
		Done:            func(*usb.Request) { close(done) },
	}
	drv.RequestQueue(req)

	// The request stays parked while nothing changes.
	select {
	case <-done:
		t.Fatalf("interrupt request completed with no port change")
	case <-time.After(50 * time.Millisecond):
	}

	// Plug a high-speed device into the port.
	var hprt regs.HPrt
	hprt |= 1 << 0 // connected
	hprt.SetConnectedChanged(true)
	hprt.SetSpeed(regs.PortSpeedHigh)
	f.set32(regs.HPRT, uint32(hprt))
	f.set32(regs.GINTSTS, regs.GIntPort)

	drv.ServeIRQ()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for port-change interrupt request")
	}

	if req.Status != nil {
		t.Fatalf("invalid status: %+v", req.Status)
	}
	if got, want := req.Actual, 2; got != want {
		t.Fatalf("invalid length: got=%d, want=%d", got, want)
	}
	if got, want := req.Data[0], byte(0x02); got != want {
		t.Fatalf("invalid change bitmap: got=0x%02x, want=0x%02x", got, want)
	}
	if got, want := req.Data[1], byte(0x00); got != want {
		t.Fatalf("invalid change bitmap: got=0x%02x, want=0x%02x", got, want)
	}

	// The write-back acked the latched change bit.
	if hprt := regs.HPrt(f.get32(regs.HPRT)); hprt.ConnectedChanged() {
		t.Fatalf("connect change not acked: hprt=0x%08x", uint32(hprt))
	}

	drv.rh.mu.Lock()
	port := drv.rh.port
	drv.rh.mu.Unlock()
	if got, want := port.Status, uint16(usb.PortConnection|usb.PortHighSpeed); got != want {
		t.Fatalf("invalid wPortStatus: got=0x%04x, want=0x%04x", got, want)
	}
	if got, want := port.Change, uint16(usb.CPortConnection); got != want {
		t.Fatalf("invalid wPortChange: got=0x%04x, want=0x%04x", got, want)
	}
}
