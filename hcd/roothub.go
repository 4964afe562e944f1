// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"encoding/binary"
	"time"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

// The driver emulates a single-port USB 2.0 hub so the bus layer can
// discover the root port like any other hub port.

const (
	manufacturerString = 1
	productString      = 2
)

var rhLanguageList = []byte{
	4, usb.DTString, 0x09, 0x04, // en-US
}

var rhManufacturerString = []byte{ // "Zircon"
	16, usb.DTString,
	'Z', 0, 'i', 0, 'r', 0, 'c', 0, 'o', 0, 'n', 0, 0, 0,
}

var rhProductString = []byte{ // "USB 2.0 Root Hub"
	36, usb.DTString,
	'U', 0, 'S', 0, 'B', 0, ' ', 0, '2', 0, '.', 0, '0', 0, ' ', 0,
	'R', 0, 'o', 0, 'o', 0, 't', 0, ' ', 0, 'H', 0, 'u', 0, 'b', 0, 0, 0,
}

var rhStringTable = [][]byte{
	rhLanguageList,
	rhManufacturerString,
	rhProductString,
}

var rhDeviceDescriptor = usb.DeviceDescriptor{
	BLength:            usb.DeviceDescriptorSize,
	BDescriptorType:    usb.DTDevice,
	BCDUSB:             0x0200,
	BDeviceClass:       usb.ClassHub,
	BDeviceSubClass:    0,
	BDeviceProtocol:    1, // single TT
	BMaxPacketSize0:    64,
	IDVendor:           0x18d1,
	IDProduct:          0xa002,
	BCDDevice:          0x0100,
	IManufacturer:      manufacturerString,
	IProduct:           productString,
	ISerialNumber:      0,
	BNumConfigurations: 1,
}.Bytes()

// rhConfigDescriptor is the packed configuration + interface +
// interrupt-endpoint bundle returned for GET_DESCRIPTOR(CONFIG).
var rhConfigDescriptor = rhConfigBundle()

func rhConfigBundle() []byte {
	total := usb.ConfigDescriptorSize + usb.InterfaceDescriptorSize + usb.EndpointDescriptorSize
	var buf []byte
	buf = append(buf, usb.ConfigurationDescriptor{
		BLength:             usb.ConfigDescriptorSize,
		BDescriptorType:     usb.DTConfig,
		WTotalLength:        uint16(total),
		BNumInterfaces:      1,
		BConfigurationValue: 1,
		BMAttributes:        0xe0, // self powered
		BMaxPower:           0,
	}.Bytes()...)
	buf = append(buf, usb.InterfaceDescriptor{
		BLength:         usb.InterfaceDescriptorSize,
		BDescriptorType: usb.DTInterface,
		BNumEndpoints:   1,
		BInterfaceClass: usb.ClassHub,
	}.Bytes()...)
	buf = append(buf, usb.EndpointDescriptor{
		BLength:          usb.EndpointDescriptorSize,
		BDescriptorType:  usb.DTEndpoint,
		BEndpointAddress: usb.EndpointDirIn | 1,
		BMAttributes:     uint8(usb.EndpointInterrupt),
		WMaxPacketSize:   4,
		BInterval:        12,
	}.Bytes()...)
	return buf
}

func isControlRequest(req *request) bool {
	return req.usb.EndpointAddress == 0
}

func isRootHubRequest(req *request) bool {
	return req.usb.DeviceID == RootHubDeviceID
}

func (drv *Driver) queueRootHubRequest(req *request) {
	drv.rh.reqmu.Lock()
	drv.rh.reqs = append(drv.rh.reqs, req)
	drv.rh.reqmu.Unlock()

	drv.rh.pending.Signal()
}

// rootHubWorker drains the root-hub request list, one request per
// wake-up.
func (drv *Driver) rootHubWorker() {
	for {
		drv.rh.pending.Wait()

		drv.rh.reqmu.Lock()
		if len(drv.rh.reqs) == 0 {
			drv.rh.pending.Reset()
			drv.rh.reqmu.Unlock()
			continue
		}
		req := drv.rh.reqs[0]
		drv.rh.reqs = drv.rh.reqs[1:]
		if len(drv.rh.reqs) == 0 {
			drv.rh.pending.Reset()
		}
		drv.rh.reqmu.Unlock()

		drv.processRootHubRequest(req)
	}
}

func (drv *Driver) processRootHubRequest(req *request) {
	if isControlRequest(req) {
		drv.processRootHubCtrlReq(req)
		return
	}

	// Park the interrupt-IN request until a port change shows up.
	drv.rh.mu.Lock()
	drv.rh.intr = req
	drv.rh.mu.Unlock()

	drv.completeRootPortStatusReq()
}

// completeRootPortStatusReq flushes a pending port change into the
// parked interrupt-IN request, if both exist.
func (drv *Driver) completeRootPortStatusReq() {
	drv.rh.mu.Lock()
	defer drv.rh.mu.Unlock()

	if drv.rh.port.Change == 0 || drv.rh.intr == nil {
		return
	}

	req := drv.rh.intr
	drv.rh.intr = nil

	// Bitmap with bit 1 set: port 1 changed.
	binary.LittleEndian.PutUint16(req.usb.Data[:2], 0x0002)
	drv.completeRequest(req, nil, 2)
}

func (drv *Driver) processRootHubCtrlReq(req *request) {
	switch req.usb.Setup.Type() {
	case usb.TypeStandard:
		drv.processRootHubStdReq(req)
	case usb.TypeClass:
		drv.processRootHubClassReq(req)
	default:
		drv.completeRequest(req, usb.ErrNotSupported, 0)
	}
}

func (drv *Driver) processRootHubStdReq(req *request) {
	switch req.usb.Setup.BRequest {
	case usb.ReqSetAddress, usb.ReqSetConfiguration:
		drv.completeRequest(req, nil, 0)
	case usb.ReqGetDescriptor:
		drv.rootHubGetDescriptor(req)
	default:
		drv.completeRequest(req, usb.ErrNotSupported, 0)
	}
}

func (drv *Driver) rootHubGetDescriptor(req *request) {
	var (
		setup  = req.usb.Setup
		value  = setup.WValue
		index  = setup.WIndex
		length = int(setup.WLength)
	)

	switch {
	case value == usb.DTDevice<<8 && index == 0:
		n := copyDescriptor(req.usb.Data, rhDeviceDescriptor, length)
		drv.completeRequest(req, nil, n)
	case value == usb.DTConfig<<8 && index == 0:
		n := copyDescriptor(req.usb.Data, rhConfigDescriptor, length)
		drv.completeRequest(req, nil, n)
	case value>>8 == usb.DTString:
		i := int(value & 0xff)
		if i >= len(rhStringTable) {
			drv.completeRequest(req, usb.ErrNotSupported, 0)
			return
		}
		str := rhStringTable[i]
		n := copyDescriptor(req.usb.Data, str, length)
		drv.completeRequest(req, nil, n)
	default:
		drv.completeRequest(req, usb.ErrNotSupported, 0)
	}
}

// copyDescriptor copies desc into dst, truncated to the wLength the
// host asked for, and returns the number of bytes copied.
func copyDescriptor(dst, desc []byte, length int) int {
	if length > len(desc) {
		length = len(desc)
	}
	return copy(dst[:length], desc[:length])
}

func (drv *Driver) processRootHubClassReq(req *request) {
	var (
		setup  = req.usb.Setup
		value  = setup.WValue
		index  = setup.WIndex
		length = int(setup.WLength)
	)

	switch setup.BRequest {
	case usb.ReqGetDescriptor:
		if value == usb.DTHub<<8 && index == 0 {
			desc := usb.HubDescriptor{
				BDescLength:     usb.HubDescriptorSize,
				BDescriptorType: usb.DTHub,
				BNbrPorts:       1,
			}
			n := copyDescriptor(req.usb.Data, desc.Bytes(), length)
			drv.completeRequest(req, nil, n)
			return
		}
		drv.completeRequest(req, usb.ErrNotSupported, 0)

	case usb.ReqSetFeature:
		drv.completeRequest(req, drv.setPortFeature(value), 0)

	case usb.ReqClearFeature:
		drv.rh.mu.Lock()
		switch value {
		case usb.FeatureCPortConnection:
			drv.rh.port.Change &^= usb.CPortConnection
		case usb.FeatureCPortEnable:
			drv.rh.port.Change &^= usb.CPortEnable
		case usb.FeatureCPortSuspend:
			drv.rh.port.Change &^= usb.CPortSuspend
		case usb.FeatureCPortOverCurrent:
			drv.rh.port.Change &^= usb.CPortOverCurrent
		case usb.FeatureCPortReset:
			drv.rh.port.Change &^= usb.CPortReset
		}
		drv.rh.mu.Unlock()
		drv.completeRequest(req, nil, 0)

	case usb.ReqGetStatus:
		n := req.usb.Length()
		if n > 4 {
			n = 4
		}
		var status [4]byte
		drv.rh.mu.Lock()
		binary.LittleEndian.PutUint16(status[0:2], drv.rh.port.Status)
		binary.LittleEndian.PutUint16(status[2:4], drv.rh.port.Change)
		drv.rh.mu.Unlock()
		copy(req.usb.Data[:n], status[:n])
		drv.completeRequest(req, nil, n)

	default:
		drv.completeRequest(req, usb.ErrNotSupported, 0)
	}
}

func (drv *Driver) setPortFeature(feature uint16) error {
	switch feature {
	case usb.FeaturePortPower:
		drv.portPowerOn()
		return nil
	case usb.FeaturePortReset:
		drv.resetHostPort()
		return nil
	}
	return usb.ErrNotSupported
}

// scrubPortWrite clears the write-1-to-clear change bits and the
// enable bit so writing the register back does not disable the port or
// ack a change behind the IRQ handler's back.
func scrubPortWrite(hprt regs.HPrt) regs.HPrt {
	hprt.SetEnabled(false)
	hprt.SetConnectedChanged(false)
	hprt.SetEnabledChanged(false)
	hprt.SetOvercurrentChanged(false)
	return hprt
}

func (drv *Driver) portPowerOn() {
	hprt := scrubPortWrite(regs.HPrt(drv.hw.hprt.r()))
	hprt.SetPowered(true)
	drv.hw.hprt.w(uint32(hprt))
}

// resetHostPort drives the port reset signalling. The USB 2.0 spec
// wants the reset held for at least 50 ms on a root port; 60 ms leaves
// margin.
func (drv *Driver) resetHostPort() {
	hprt := scrubPortWrite(regs.HPrt(drv.hw.hprt.r()))

	hprt.SetReset(true)
	drv.hw.hprt.w(uint32(hprt))

	time.Sleep(60 * time.Millisecond)

	hprt.SetReset(false)
	drv.hw.hprt.w(uint32(hprt))
}
