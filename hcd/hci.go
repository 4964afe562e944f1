// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"fmt"
	"time"

	"github.com/go-lpc/dwc2/usb"
)

// RequestQueue validates an upstream request and routes it to the root
// hub or to the target endpoint's scheduler.
func (drv *Driver) RequestQueue(usbReq *usb.Request) {
	if usbReq.Length() > drv.MaxTransferSize() {
		usbReq.Complete(usb.ErrInvalidArgs, 0)
		return
	}

	req := drv.getFreeRequest()
	req.usb = usbReq

	if isRootHubRequest(req) {
		drv.queueRootHubRequest(req)
		return
	}
	drv.queueHardwareRequest(req)
}

func (drv *Driver) queueHardwareRequest(req *request) {
	usbReq := req.usb

	dev := drv.deviceByID(usbReq.DeviceID)
	if dev == nil {
		drv.completeRequest(req, usb.ErrInvalidArgs, 0)
		return
	}

	ep := dev.endpointFor(usbReq.EndpointAddress)
	if ep == nil {
		drv.completeRequest(req, usb.ErrInvalidArgs, 0)
		return
	}

	if usbReq.EndpointAddress == 0 {
		req.phase = phaseSetup
	}

	// Write pending cache lines back before the engine walks the
	// buffer.
	drv.cfg.dma.Flush(usbReq.Data)

	ep.push(req)
}

// SetBusInterface wires the upstream bus layer. A non-nil bus is
// immediately told about the root hub, at high speed.
func (drv *Driver) SetBusInterface(bus usb.Bus) {
	drv.busmu.Lock()
	drv.bus = bus
	drv.busmu.Unlock()

	if bus != nil {
		bus.AddDevice(RootHubDeviceID, 0, usb.SpeedHigh)
	}
}

func (drv *Driver) busAddDevice(deviceID, hubID uint32, speed usb.Speed) {
	drv.busmu.Lock()
	bus := drv.bus
	drv.busmu.Unlock()

	if bus != nil {
		bus.AddDevice(deviceID, hubID, speed)
	}
}

// MaxDeviceCount returns the size of the device table, default device
// included. The root hub's id lies just past the table.
func (drv *Driver) MaxDeviceCount() int { return MaxDeviceCount }

// MaxTransferSize returns the longest transfer RequestQueue accepts.
// Transfers are limited to a single page until scatter/gather support
// is implemented.
func (drv *Driver) MaxTransferSize() int { return maxTransferSize }

// BTI returns the bus-translation handle backing DMA buffers.
func (drv *Driver) BTI() uint64 { return drv.cfg.bti }

// CurrentFrame returns the (micro)frame number the host is currently
// transmitting.
func (drv *Driver) CurrentFrame() uint32 {
	return drv.hw.hfnum.r() & 0xffff
}

// EnableEndpoint registers an endpoint of an enumerated device and
// spawns its scheduler.
func (drv *Driver) EnableEndpoint(deviceID uint32, desc usb.EndpointDescriptor) error {
	if deviceID == RootHubDeviceID {
		// Nothing to be done for the root hub.
		return nil
	}

	dev := drv.deviceByID(deviceID)
	if dev == nil {
		return fmt.Errorf("dwc2: enable-endpoint on unknown device %d", deviceID)
	}

	ep := newEndpoint(dev, desc)

	dev.mu.Lock()
	dev.endpoints = append(dev.endpoints, ep)
	dev.mu.Unlock()

	go drv.serveEndpoint(ep)
	return nil
}

// ConfigureHub is a no-op: the controller needs no per-hub setup.
func (drv *Driver) ConfigureHub(deviceID uint32, speed usb.Speed, desc *usb.HubDescriptor) error {
	return nil
}

// HubDeviceAdded enumerates the new device dangling off (hub, port):
// it learns the control packet size, assigns the next free bus address
// and announces the device upstream.
func (drv *Driver) HubDeviceAdded(hubAddress uint32, port int, speed usb.Speed) error {
	drv.msg.Printf("hub device added, hub=%d, port=%d, speed=%v", hubAddress, port, speed)

	// Until it is addressed, the new device answers on the default
	// device slot.
	newDev := drv.deviceByID(0)
	if newDev == nil {
		return fmt.Errorf("dwc2: driver not started")
	}

	newDev.mu.Lock()
	newDev.hubAddress = hubAddress
	newDev.port = port
	newDev.speed = speed
	newDev.mu.Unlock()

	ep0 := newDev.endpointFor(0)
	if ep0 == nil {
		return fmt.Errorf("dwc2: default device has no control endpoint")
	}

	// Every device accepts 8-byte control packets before its real
	// limit is known.
	ep0.desc.WMaxPacketSize = defaultMaxPacketSize0

	ctl := newCompletion()

	getDesc := &usb.Request{
		DeviceID: 0,
		Data:     make([]byte, 8),
		Setup: usb.SetupPacket{
			BMRequestType: usb.EndpointDirIn,
			BRequest:      usb.ReqGetDescriptor,
			WValue:        usb.DTDevice << 8,
			WLength:       8,
		},
		Done: func(*usb.Request) { ctl.Signal() },
	}

	drv.RequestQueue(getDesc)
	ctl.Wait()
	ctl.Reset()

	if getDesc.Status != nil {
		return fmt.Errorf("dwc2: could not read device descriptor: %w", getDesc.Status)
	}
	if getDesc.Actual < 8 {
		return fmt.Errorf("dwc2: short device descriptor (got=%d bytes)", getDesc.Actual)
	}

	// bMaxPacketSize0 closes the 8-byte descriptor prefix.
	maxPacketSize0 := getDesc.Data[7]
	ep0.desc.WMaxPacketSize = uint16(maxPacketSize0)

	drv.devmu.Lock()
	address := drv.nextAddress
	drv.devmu.Unlock()

	setAddr := &usb.Request{
		DeviceID: 0,
		Setup: usb.SetupPacket{
			BMRequestType: usb.EndpointDirOut,
			BRequest:      usb.ReqSetAddress,
			WValue:        uint16(address),
		},
		Done: func(*usb.Request) { ctl.Signal() },
	}

	drv.RequestQueue(setAddr)
	ctl.Wait()

	if setAddr.Status != nil {
		return fmt.Errorf("dwc2: could not address device: %w", setAddr.Status)
	}

	// Let the device settle into its new address.
	time.Sleep(10 * time.Millisecond)

	dev := &device{
		id:         address,
		speed:      speed,
		hubAddress: hubAddress,
		port:       port,
	}
	ctrl := newEndpoint(dev, usb.EndpointDescriptor{
		BLength:          usb.EndpointDescriptorSize,
		BDescriptorType:  usb.DTEndpoint,
		BEndpointAddress: 0,
		BMAttributes:     uint8(usb.EndpointControl),
		WMaxPacketSize:   uint16(maxPacketSize0),
	})
	dev.endpoints = append(dev.endpoints, ctrl)

	drv.devmu.Lock()
	drv.devices[address] = dev
	drv.nextAddress++
	drv.devmu.Unlock()

	go drv.serveEndpoint(ctrl)

	drv.busAddDevice(address, hubAddress, speed)
	return nil
}

// HubDeviceRemoved would tear the device down; removal is not
// supported yet.
func (drv *Driver) HubDeviceRemoved(hubAddress uint32, port int) error {
	return usb.ErrNotSupported
}

// ResetEndpoint is not supported.
func (drv *Driver) ResetEndpoint(deviceID uint32, epAddress uint8) error {
	return usb.ErrNotSupported
}

// CancelAll is not supported: every wait in the driver is unbounded.
func (drv *Driver) CancelAll(deviceID uint32, epAddress uint8) error {
	return usb.ErrNotSupported
}
