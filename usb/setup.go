// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

import (
	"encoding/binary"

	"golang.org/x/xerrors"
)

// SetupPacketSize is the wire size of a SETUP packet.
const SetupPacketSize = 8

// SetupPacket is the 8-byte packet opening the SETUP phase of a control
// transfer.
type SetupPacket struct {
	BMRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16
}

// In reports whether the data phase moves device-to-host.
func (st SetupPacket) In() bool { return st.BMRequestType&EndpointDirMask != 0 }

// Type returns the request type bits of bmRequestType.
func (st SetupPacket) Type() uint8 { return st.BMRequestType & TypeMask }

// Bytes returns the little-endian wire encoding of the packet.
func (st SetupPacket) Bytes() []byte {
	buf := make([]byte, SetupPacketSize)
	buf[0] = st.BMRequestType
	buf[1] = st.BRequest
	binary.LittleEndian.PutUint16(buf[2:4], st.WValue)
	binary.LittleEndian.PutUint16(buf[4:6], st.WIndex)
	binary.LittleEndian.PutUint16(buf[6:8], st.WLength)
	return buf
}

// SetupFrom decodes a SETUP packet from its wire encoding.
func SetupFrom(p []byte) (SetupPacket, error) {
	var st SetupPacket
	if len(p) < SetupPacketSize {
		return st, xerrors.Errorf("usb: setup packet too short (got=%d, want=%d)", len(p), SetupPacketSize)
	}
	st.BMRequestType = p[0]
	st.BRequest = p[1]
	st.WValue = binary.LittleEndian.Uint16(p[2:4])
	st.WIndex = binary.LittleEndian.Uint16(p[4:6])
	st.WLength = binary.LittleEndian.Uint16(p[6:8])
	return st, nil
}
