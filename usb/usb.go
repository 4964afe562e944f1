// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package usb holds the USB 2.0 protocol types and constants shared by
// the dwc2 host-controller driver and the USB bus layer sitting above it.
package usb // import "github.com/go-lpc/dwc2/usb"

import "errors"

// Speed is the signalling speed of a USB device.
type Speed uint8

const (
	SpeedLow Speed = iota
	SpeedFull
	SpeedHigh
)

func (sp Speed) String() string {
	switch sp {
	case SpeedLow:
		return "low-speed"
	case SpeedFull:
		return "full-speed"
	case SpeedHigh:
		return "high-speed"
	}
	return "usb-speed-invalid"
}

// EndpointType is the transfer type of an endpoint, as encoded in the
// low two bits of bmAttributes.
type EndpointType uint8

const (
	EndpointControl EndpointType = iota
	EndpointIsochronous
	EndpointBulk
	EndpointInterrupt
)

func (et EndpointType) String() string {
	switch et {
	case EndpointControl:
		return "control"
	case EndpointIsochronous:
		return "isochronous"
	case EndpointBulk:
		return "bulk"
	case EndpointInterrupt:
		return "interrupt"
	}
	return "usb-endpoint-type-invalid"
}

// Endpoint address encoding (bEndpointAddress).
const (
	EndpointNumMask = 0x0f
	EndpointDirMask = 0x80
	EndpointDirIn   = 0x80
	EndpointDirOut  = 0x00
)

// bmRequestType encoding.
const (
	TypeStandard = 0 << 5
	TypeClass    = 1 << 5
	TypeVendor   = 2 << 5
	TypeMask     = 0x60
)

// Standard device requests (bRequest).
const (
	ReqGetStatus        = 0x00
	ReqClearFeature     = 0x01
	ReqSetFeature       = 0x03
	ReqSetAddress       = 0x05
	ReqGetDescriptor    = 0x06
	ReqSetDescriptor    = 0x07
	ReqGetConfiguration = 0x08
	ReqSetConfiguration = 0x09
)

// Descriptor types (bDescriptorType).
const (
	DTDevice    = 0x01
	DTConfig    = 0x02
	DTString    = 0x03
	DTInterface = 0x04
	DTEndpoint  = 0x05
	DTHub       = 0x29
)

// ClassHub is the USB device class of a hub.
const ClassHub = 0x09

// Hub-class feature selectors.
const (
	FeaturePortConnection  = 0
	FeaturePortEnable      = 1
	FeaturePortSuspend     = 2
	FeaturePortOverCurrent = 3
	FeaturePortReset       = 4
	FeaturePortPower       = 8

	FeatureCPortConnection  = 16
	FeatureCPortEnable      = 17
	FeatureCPortSuspend     = 18
	FeatureCPortOverCurrent = 19
	FeatureCPortReset       = 20
)

// wPortStatus bits.
const (
	PortConnection  = 1 << 0
	PortEnable      = 1 << 1
	PortSuspend     = 1 << 2
	PortOverCurrent = 1 << 3
	PortReset       = 1 << 4
	PortPower       = 1 << 8
	PortLowSpeed    = 1 << 9
	PortHighSpeed   = 1 << 10
)

// wPortChange bits.
const (
	CPortConnection  = 1 << 0
	CPortEnable      = 1 << 1
	CPortSuspend     = 1 << 2
	CPortOverCurrent = 1 << 3
	CPortReset       = 1 << 4
)

// PortStatus mirrors the hub-class port status/change pair.
type PortStatus struct {
	Status uint16
	Change uint16
}

// Error kinds surfaced by the host-controller driver.
var (
	ErrIO           = errors.New("usb: i/o error")
	ErrNoMemory     = errors.New("usb: no memory")
	ErrInvalidArgs  = errors.New("usb: invalid arguments")
	ErrNotSupported = errors.New("usb: not supported")
)

// Bus is the upstream USB bus layer. The driver announces devices to it
// as they are enumerated; the bus layer calls back into the HCI surface.
type Bus interface {
	// AddDevice announces a newly addressed device to the bus layer.
	AddDevice(deviceID, hubID uint32, speed Speed)
}
