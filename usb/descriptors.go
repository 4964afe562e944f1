// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import "encoding/binary"

// Wire sizes of the standard descriptors.
const (
	DeviceDescriptorSize    = 18
	ConfigDescriptorSize    = 9
	InterfaceDescriptorSize = 9
	EndpointDescriptorSize  = 7
	HubDescriptorSize       = 9
)

// DeviceDescriptor is the standard USB device descriptor.
type DeviceDescriptor struct {
	BLength            uint8
	BDescriptorType    uint8
	BCDUSB             uint16
	BDeviceClass       uint8
	BDeviceSubClass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize0    uint8
	IDVendor           uint16
	IDProduct          uint16
	BCDDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

// Bytes returns the 18-byte wire encoding of the descriptor.
func (d DeviceDescriptor) Bytes() []byte {
	buf := make([]byte, DeviceDescriptorSize)
	buf[0] = d.BLength
	buf[1] = d.BDescriptorType
	binary.LittleEndian.PutUint16(buf[2:4], d.BCDUSB)
	buf[4] = d.BDeviceClass
	buf[5] = d.BDeviceSubClass
	buf[6] = d.BDeviceProtocol
	buf[7] = d.BMaxPacketSize0
	binary.LittleEndian.PutUint16(buf[8:10], d.IDVendor)
	binary.LittleEndian.PutUint16(buf[10:12], d.IDProduct)
	binary.LittleEndian.PutUint16(buf[12:14], d.BCDDevice)
	buf[14] = d.IManufacturer
	buf[15] = d.IProduct
	buf[16] = d.ISerialNumber
	buf[17] = d.BNumConfigurations
	return buf
}

// ConfigurationDescriptor is the standard USB configuration descriptor.
type ConfigurationDescriptor struct {
	BLength             uint8
	BDescriptorType     uint8
	WTotalLength        uint16
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8
}

func (d ConfigurationDescriptor) Bytes() []byte {
	buf := make([]byte, ConfigDescriptorSize)
	buf[0] = d.BLength
	buf[1] = d.BDescriptorType
	binary.LittleEndian.PutUint16(buf[2:4], d.WTotalLength)
	buf[4] = d.BNumInterfaces
	buf[5] = d.BConfigurationValue
	buf[6] = d.IConfiguration
	buf[7] = d.BMAttributes
	buf[8] = d.BMaxPower
	return buf
}

// InterfaceDescriptor is the standard USB interface descriptor.
type InterfaceDescriptor struct {
	BLength            uint8
	BDescriptorType    uint8
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (d InterfaceDescriptor) Bytes() []byte {
	return []byte{
		d.BLength, d.BDescriptorType,
		d.BInterfaceNumber, d.BAlternateSetting, d.BNumEndpoints,
		d.BInterfaceClass, d.BInterfaceSubClass, d.BInterfaceProtocol,
		d.IInterface,
	}
}

// EndpointDescriptor is the standard USB endpoint descriptor.
type EndpointDescriptor struct {
	BLength          uint8
	BDescriptorType  uint8
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}

func (d EndpointDescriptor) Bytes() []byte {
	buf := make([]byte, EndpointDescriptorSize)
	buf[0] = d.BLength
	buf[1] = d.BDescriptorType
	buf[2] = d.BEndpointAddress
	buf[3] = d.BMAttributes
	binary.LittleEndian.PutUint16(buf[4:6], d.WMaxPacketSize)
	buf[6] = d.BInterval
	return buf
}

// Type returns the transfer type encoded in bmAttributes.
func (d EndpointDescriptor) Type() EndpointType {
	return EndpointType(d.BMAttributes & 0x3)
}

// In reports whether the endpoint moves data device-to-host.
func (d EndpointDescriptor) In() bool {
	return d.BEndpointAddress&EndpointDirMask != 0
}

// Number returns the endpoint number encoded in bEndpointAddress.
func (d EndpointDescriptor) Number() uint8 {
	return d.BEndpointAddress & EndpointNumMask
}

// MaxPacketSize returns the packet payload size in bytes, without the
// high-bandwidth transaction bits.
func (d EndpointDescriptor) MaxPacketSize() int {
	return int(d.WMaxPacketSize & 0x7ff)
}

// HubDescriptor is the hub-class descriptor (single-port form).
type HubDescriptor struct {
	BDescLength         uint8
	BDescriptorType     uint8
	BNbrPorts           uint8
	WHubCharacteristics uint16
	BPowerOn2PwrGood    uint8
	BHubContrCurrent    uint8
	DeviceRemovable     uint8
	PortPwrCtrlMask     uint8
}

func (d HubDescriptor) Bytes() []byte {
	buf := make([]byte, HubDescriptorSize)
	buf[0] = d.BDescLength
	buf[1] = d.BDescriptorType
	buf[2] = d.BNbrPorts
	binary.LittleEndian.PutUint16(buf[3:5], d.WHubCharacteristics)
	buf[5] = d.BPowerOn2PwrGood
	buf[6] = d.BHubContrCurrent
	buf[7] = d.DeviceRemovable
	buf[8] = d.PortPwrCtrlMask
	return buf
}
