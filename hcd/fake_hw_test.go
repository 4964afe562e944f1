// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/usb"
)

// haltScript reacts to one channel-enable write: it mutates the
// register file the way the engine would and raises the halt
// interrupt.
type haltScript func(f *fakeHW, ch int)

// fakeHW is an in-memory register file standing in for a DWC2 core.
// Writes enabling a channel pop the next entry of the scripted
// responses; write-1-to-clear registers behave like the hardware's.
type fakeHW struct {
	t *testing.T

	mu     sync.Mutex
	mem    []byte
	script []haltScript

	dma *testDMA
	drv *Driver
}

func newFakeHW(t *testing.T, script ...haltScript) *fakeHW {
	return &fakeHW{
		t:      t,
		mem:    make([]byte, regs.Span),
		script: script,
		dma:    newTestDMA(),
	}
}

// newTestDriver wires a driver to a fake core and a recording DMA
// mapper.
func newTestDriver(t *testing.T, script ...haltScript) (*Driver, *fakeHW) {
	t.Helper()

	f := newFakeHW(t, script...)
	drv := newDriver(WithDMA(f.dma))
	drv.msg.SetOutput(testWriter{t})
	drv.bind(f)
	f.drv = drv
	return drv, f
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func (f *fakeHW) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(p, f.mem[off:]), nil
}

const (
	hprtW1C = 1<<1 | 1<<2 | 1<<3 | 1<<5   // change bits + enable
	hprtRO  = 1<<0 | 1<<4 | 1<<17 | 1<<18 // connected, overcurrent, speed
)

func (f *fakeHW) WriteAt(p []byte, off int64) (int, error) {
	v := binary.LittleEndian.Uint32(p)

	f.mu.Lock()
	old := binary.LittleEndian.Uint32(f.mem[off:])

	var (
		fire = false
		ch   = -1
	)
	switch {
	case off == regs.HPRT:
		v = old&hprtRO | old&hprtW1C&^v | v&^(hprtRO|hprtW1C)
	case off >= regs.HCBase && off < regs.HCBase+NumHostChannels*regs.HCSpan:
		ch = int((off - regs.HCBase) / regs.HCSpan)
		switch off - regs.HCBase - int64(ch)*regs.HCSpan {
		case regs.HCINT:
			v = old &^ v // write 1 to clear
			if v == 0 {
				haint := binary.LittleEndian.Uint32(f.mem[regs.HAINT:])
				binary.LittleEndian.PutUint32(f.mem[regs.HAINT:], haint&^(1<<ch))
			}
		case regs.HCCHAR:
			fire = regs.HCChar(v).Enabled()
		}
	}

	binary.LittleEndian.PutUint32(f.mem[off:], v)

	var next haltScript
	if fire {
		if len(f.script) == 0 {
			f.mu.Unlock()
			panic(fmt.Sprintf("unexpected transaction on channel %d", ch))
		}
		next = f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()

	if next != nil {
		go next(f, ch)
	}
	return len(p), nil
}

func (f *fakeHW) get32(off int64) uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return binary.LittleEndian.Uint32(f.mem[off:])
}

func (f *fakeHW) set32(off int64, v uint32) {
	f.mu.Lock()
	binary.LittleEndian.PutUint32(f.mem[off:], v)
	f.mu.Unlock()
}

// haltWith latches ints as the channel interrupt state and delivers
// the core interrupt.
func (f *fakeHW) haltWith(ch int, ints regs.HCInt) {
	f.set32(regs.HC(ch, regs.HCINT), uint32(ints))
	f.set32(regs.HAINT, f.get32(regs.HAINT)|1<<ch)
	f.drv.handleChannelIRQ()
}

func flipN(pid, n uint32) uint32 {
	if pid == regs.ToggleSetup {
		// A SETUP transaction always hands over to DATA1.
		return regs.ToggleData1
	}
	if n%2 == 1 {
		switch pid {
		case regs.ToggleData0:
			return regs.ToggleData1
		case regs.ToggleData1:
			return regs.ToggleData0
		}
	}
	return pid
}

// ack answers the programmed transaction with success, handing payload
// to IN transactions.
func ack(payload ...byte) haltScript {
	return func(f *fakeHW, ch int) {
		var (
			tsiz = regs.HCTSiz(f.get32(regs.HC(ch, regs.HCTSIZ)))
			char = regs.HCChar(f.get32(regs.HC(ch, regs.HCCHAR)))
			mps  = char.MaxPacketSize()
			pkts uint32
		)

		switch char.EndpointDir() {
		case regs.EpIn:
			n := uint32(len(payload))
			pkts = 1 // a zero-length IN still moves one empty packet
			if n > 0 {
				buf := f.dma.buffer(f.t, f.get32(regs.HC(ch, regs.HCDMA)))
				copy(buf, payload)
				pkts = (n + mps - 1) / mps
			}
			tsiz.SetSize(tsiz.Size() - n)
			tsiz.SetPacketCount(tsiz.PacketCount() - pkts)
		default:
			pkts = tsiz.PacketCount()
			if pkts == 0 {
				pkts = 1
			}
			tsiz.SetPacketCount(0)
		}

		tsiz.SetPacketID(flipN(tsiz.PacketID(), pkts))
		f.set32(regs.HC(ch, regs.HCTSIZ), uint32(tsiz))

		var ints regs.HCInt
		ints.SetTransferCompleted(true)
		ints.SetHalted(true)
		ints.SetACK(true)
		f.haltWith(ch, ints)
	}
}

// ackSplitStart acknowledges a start-split: no data moved yet.
func ackSplitStart() haltScript {
	return func(f *fakeHW, ch int) {
		var ints regs.HCInt
		ints.SetHalted(true)
		ints.SetACK(true)
		f.haltWith(ch, ints)
	}
}

func nak() haltScript {
	return func(f *fakeHW, ch int) {
		var ints regs.HCInt
		ints.SetHalted(true)
		ints.SetNAK(true)
		f.haltWith(ch, ints)
	}
}

func nyet() haltScript {
	return func(f *fakeHW, ch int) {
		var ints regs.HCInt
		ints.SetHalted(true)
		ints.SetNYET(true)
		f.haltWith(ch, ints)
	}
}

func stall() haltScript {
	return func(f *fakeHW, ch int) {
		var ints regs.HCInt
		ints.SetHalted(true)
		ints.SetStall(true)
		f.haltWith(ch, ints)
	}
}

// testDMA hands out fake bus addresses and remembers which buffer each
// one maps.
type testDMA struct {
	mu   sync.Mutex
	next uint32
	bufs map[uint32][]byte
}

func newTestDMA() *testDMA {
	return &testDMA{
		next: 0x1000,
		bufs: make(map[uint32][]byte),
	}
}

func (d *testDMA) Map(p []byte) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := d.next
	d.next += 0x1000
	d.bufs[addr] = p
	return addr, nil
}

func (d *testDMA) Flush(p []byte)      {}
func (d *testDMA) Invalidate(p []byte) {}

func (d *testDMA) buffer(t *testing.T, addr uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.bufs[addr]
	if !ok {
		t.Errorf("no buffer mapped at bus address 0x%08x", addr)
		return nil
	}
	return buf
}

// testBus records the devices the driver announces.
type testBus struct {
	mu    sync.Mutex
	added []busDevice
}

type busDevice struct {
	id    uint32
	hub   uint32
	speed usb.Speed
}

func (b *testBus) AddDevice(deviceID, hubID uint32, speed usb.Speed) {
	b.mu.Lock()
	b.added = append(b.added, busDevice{id: deviceID, hub: hubID, speed: speed})
	b.mu.Unlock()
}

func (b *testBus) devices() []busDevice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]busDevice(nil), b.added...)
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	for beg := time.Now(); time.Since(beg) < 5*time.Second; {
		if cond() {
			return
		}
		time.Sleep(1 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", what)
}

// addTestDevice plants an enumerated device into the driver's table
// and enables one of its endpoints.
func addTestDevice(t *testing.T, drv *Driver, id uint32, speed usb.Speed, hub uint32, port int, desc usb.EndpointDescriptor) {
	t.Helper()

	drv.devmu.Lock()
	drv.devices[id] = &device{
		id:         id,
		speed:      speed,
		hubAddress: hub,
		port:       port,
	}
	drv.devmu.Unlock()

	err := drv.EnableEndpoint(id, desc)
	if err != nil {
		t.Fatalf("could not enable endpoint: %+v", err)
	}
}
