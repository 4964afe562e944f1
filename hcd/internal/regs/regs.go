// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regs holds the offsets and bit-level views of the DWC2 core
// registers used in host mode.
package regs // import "github.com/go-lpc/dwc2/hcd/internal/regs"

// MMIO span of the core register file.
const (
	Base = 0x0
	Span = 0x1000
)

// Register offsets, relative to Base.
const (
	GINTSTS = 0x014 // core interrupt status
	GINTMSK = 0x018 // core interrupt mask

	HFNUM    = 0x408 // host frame number
	HAINT    = 0x414 // host all-channels interrupt
	HAINTMSK = 0x418 // host all-channels interrupt mask
	HPRT     = 0x440 // host port control/status

	HCBase   = 0x500 // first host-channel register block
	HCSpan   = 0x020 // per-channel register block stride
	HCCHAR   = 0x000 // channel characteristics
	HCSPLT   = 0x004 // channel split control
	HCINT    = 0x008 // channel interrupts
	HCINTMSK = 0x00c // channel interrupt mask
	HCTSIZ   = 0x010 // channel transfer size
	HCDMA    = 0x014 // channel DMA address
)

// HC returns the offset of a per-channel register.
func HC(ch int, reg int64) int64 {
	return HCBase + int64(ch)*HCSpan + reg
}

// Core interrupt bits (GINTSTS/GINTMSK).
const (
	GIntSOF      = 1 << 3  // start of (micro)frame
	GIntPort     = 1 << 24 // host port interrupt
	GIntHChannel = 1 << 25 // host channel interrupt
)

// Endpoint directions as encoded in HCCHAR.
const (
	EpOut = 0
	EpIn  = 1
)

// Packet IDs (data toggles) as encoded in HCTSIZ.
const (
	ToggleData0 = 0
	ToggleData2 = 1
	ToggleData1 = 2
	ToggleMData = 3 // MDATA for splits, SETUP for control
	ToggleSetup = 3
)

// Port speeds as encoded in HPRT.
const (
	PortSpeedHigh = 0
	PortSpeedFull = 1
	PortSpeedLow  = 2
)

func get(v uint32, shift, width uint) uint32 {
	return (v >> shift) & (1<<width - 1)
}

func set(v uint32, shift, width uint, x uint32) uint32 {
	mask := uint32(1<<width-1) << shift
	return v&^mask | (x<<shift)&mask
}

func setBit(v uint32, shift uint, on bool) uint32 {
	if on {
		return v | 1<<shift
	}
	return v &^ (1 << shift)
}

// HCChar is the bit-level view of a channel characteristics register.
type HCChar uint32

func (v HCChar) MaxPacketSize() uint32   { return get(uint32(v), 0, 11) }
func (v HCChar) EndpointNumber() uint32  { return get(uint32(v), 11, 4) }
func (v HCChar) EndpointDir() uint32     { return get(uint32(v), 15, 1) }
func (v HCChar) LowSpeed() bool          { return uint32(v)&(1<<17) != 0 }
func (v HCChar) EndpointType() uint32    { return get(uint32(v), 18, 2) }
func (v HCChar) PacketsPerFrame() uint32 { return get(uint32(v), 20, 2) }
func (v HCChar) DeviceAddress() uint32   { return get(uint32(v), 22, 7) }
func (v HCChar) OddFrame() bool          { return uint32(v)&(1<<29) != 0 }
func (v HCChar) Enabled() bool           { return uint32(v)&(1<<31) != 0 }

func (v *HCChar) SetMaxPacketSize(x uint32)   { *v = HCChar(set(uint32(*v), 0, 11, x)) }
func (v *HCChar) SetEndpointNumber(x uint32)  { *v = HCChar(set(uint32(*v), 11, 4, x)) }
func (v *HCChar) SetEndpointDir(x uint32)     { *v = HCChar(set(uint32(*v), 15, 1, x)) }
func (v *HCChar) SetLowSpeed(on bool)         { *v = HCChar(setBit(uint32(*v), 17, on)) }
func (v *HCChar) SetEndpointType(x uint32)    { *v = HCChar(set(uint32(*v), 18, 2, x)) }
func (v *HCChar) SetPacketsPerFrame(x uint32) { *v = HCChar(set(uint32(*v), 20, 2, x)) }
func (v *HCChar) SetDeviceAddress(x uint32)   { *v = HCChar(set(uint32(*v), 22, 7, x)) }
func (v *HCChar) SetOddFrame(on bool)         { *v = HCChar(setBit(uint32(*v), 29, on)) }
func (v *HCChar) SetEnabled(on bool)          { *v = HCChar(setBit(uint32(*v), 31, on)) }

// HCSplt is the bit-level view of a channel split control register.
type HCSplt uint32

func (v HCSplt) PortAddress() uint32 { return get(uint32(v), 0, 7) }
func (v HCSplt) HubAddress() uint32  { return get(uint32(v), 7, 7) }
func (v HCSplt) CompleteSplit() bool { return uint32(v)&(1<<16) != 0 }
func (v HCSplt) SplitEnable() bool   { return uint32(v)&(1<<31) != 0 }

func (v *HCSplt) SetPortAddress(x uint32)  { *v = HCSplt(set(uint32(*v), 0, 7, x)) }
func (v *HCSplt) SetHubAddress(x uint32)   { *v = HCSplt(set(uint32(*v), 7, 7, x)) }
func (v *HCSplt) SetCompleteSplit(on bool) { *v = HCSplt(setBit(uint32(*v), 16, on)) }
func (v *HCSplt) SetSplitEnable(on bool)   { *v = HCSplt(setBit(uint32(*v), 31, on)) }

// HCTSiz is the bit-level view of a channel transfer size register.
type HCTSiz uint32

func (v HCTSiz) Size() uint32        { return get(uint32(v), 0, 19) }
func (v HCTSiz) PacketCount() uint32 { return get(uint32(v), 19, 10) }
func (v HCTSiz) PacketID() uint32    { return get(uint32(v), 29, 2) }

func (v *HCTSiz) SetSize(x uint32)        { *v = HCTSiz(set(uint32(*v), 0, 19, x)) }
func (v *HCTSiz) SetPacketCount(x uint32) { *v = HCTSiz(set(uint32(*v), 19, 10, x)) }
func (v *HCTSiz) SetPacketID(x uint32)    { *v = HCTSiz(set(uint32(*v), 29, 2, x)) }

// HCInt is the bit-level view of a channel interrupt register.
type HCInt uint32

const (
	hcintXferCompl  = 1 << 0
	hcintChHltd     = 1 << 1
	hcintAHBErr     = 1 << 2
	hcintStall      = 1 << 3
	hcintNAK        = 1 << 4
	hcintACK        = 1 << 5
	hcintNYET       = 1 << 6
	hcintXactErr    = 1 << 7
	hcintBblErr     = 1 << 8
	hcintFrmOvrun   = 1 << 9
	hcintDTglErr    = 1 << 10
	hcintXCSXact    = 1 << 12
	hcintFrListRoll = 1 << 13
)

func (v HCInt) TransferCompleted() bool { return uint32(v)&hcintXferCompl != 0 }
func (v HCInt) Halted() bool            { return uint32(v)&hcintChHltd != 0 }
func (v HCInt) AHBError() bool          { return uint32(v)&hcintAHBErr != 0 }
func (v HCInt) Stall() bool             { return uint32(v)&hcintStall != 0 }
func (v HCInt) NAK() bool               { return uint32(v)&hcintNAK != 0 }
func (v HCInt) ACK() bool               { return uint32(v)&hcintACK != 0 }
func (v HCInt) NYET() bool              { return uint32(v)&hcintNYET != 0 }
func (v HCInt) TransactionError() bool  { return uint32(v)&hcintXactErr != 0 }
func (v HCInt) BabbleError() bool       { return uint32(v)&hcintBblErr != 0 }
func (v HCInt) FrameOverrun() bool      { return uint32(v)&hcintFrmOvrun != 0 }
func (v HCInt) DataToggleError() bool   { return uint32(v)&hcintDTglErr != 0 }
func (v HCInt) ExcessTransaction() bool { return uint32(v)&hcintXCSXact != 0 }
func (v HCInt) FrameListRollover() bool { return uint32(v)&hcintFrListRoll != 0 }

func (v *HCInt) SetTransferCompleted(on bool) { *v = HCInt(setBit(uint32(*v), 0, on)) }
func (v *HCInt) SetHalted(on bool)            { *v = HCInt(setBit(uint32(*v), 1, on)) }
func (v *HCInt) SetStall(on bool)             { *v = HCInt(setBit(uint32(*v), 3, on)) }
func (v *HCInt) SetNAK(on bool)               { *v = HCInt(setBit(uint32(*v), 4, on)) }
func (v *HCInt) SetACK(on bool)               { *v = HCInt(setBit(uint32(*v), 5, on)) }
func (v *HCInt) SetNYET(on bool)              { *v = HCInt(setBit(uint32(*v), 6, on)) }
func (v *HCInt) SetFrameOverrun(on bool)      { *v = HCInt(setBit(uint32(*v), 9, on)) }

// HCIntHalted is the mask enabling only the channel-halted interrupt.
const HCIntHalted = hcintChHltd

// HPrt is the bit-level view of the host port control/status register.
type HPrt uint32

func (v HPrt) Connected() bool          { return uint32(v)&(1<<0) != 0 }
func (v HPrt) ConnectedChanged() bool   { return uint32(v)&(1<<1) != 0 }
func (v HPrt) Enabled() bool            { return uint32(v)&(1<<2) != 0 }
func (v HPrt) EnabledChanged() bool     { return uint32(v)&(1<<3) != 0 }
func (v HPrt) Overcurrent() bool        { return uint32(v)&(1<<4) != 0 }
func (v HPrt) OvercurrentChanged() bool { return uint32(v)&(1<<5) != 0 }
func (v HPrt) Suspended() bool          { return uint32(v)&(1<<7) != 0 }
func (v HPrt) Reset() bool              { return uint32(v)&(1<<8) != 0 }
func (v HPrt) Powered() bool            { return uint32(v)&(1<<12) != 0 }
func (v HPrt) Speed() uint32            { return get(uint32(v), 17, 2) }

func (v *HPrt) SetConnectedChanged(on bool)   { *v = HPrt(setBit(uint32(*v), 1, on)) }
func (v *HPrt) SetEnabled(on bool)            { *v = HPrt(setBit(uint32(*v), 2, on)) }
func (v *HPrt) SetEnabledChanged(on bool)     { *v = HPrt(setBit(uint32(*v), 3, on)) }
func (v *HPrt) SetOvercurrentChanged(on bool) { *v = HPrt(setBit(uint32(*v), 5, on)) }
func (v *HPrt) SetReset(on bool)              { *v = HPrt(setBit(uint32(*v), 8, on)) }
func (v *HPrt) SetPowered(on bool)            { *v = HPrt(setBit(uint32(*v), 12, on)) }
func (v *HPrt) SetSpeed(x uint32)             { *v = HPrt(set(uint32(*v), 17, 2, x)) }
