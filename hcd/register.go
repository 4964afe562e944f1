// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/internal/mmap"
)

var _ word32 = (*mmap.Handle)(nil)

type rwer interface {
	io.ReaderAt
	io.WriterAt
}

// word32 is the access path for backings that move whole 32-bit words,
// the way an mmap'd register window must be driven. Backings without
// it fall back to byte-wise ReadAt/WriteAt.
type word32 interface {
	Uint32At(off int64) uint32
	SetUint32At(off int64, v uint32)
}

type reg32 struct {
	r func() uint32
	w func(v uint32)
}

func newReg32(drv *Driver, rw rwer, offset int64) reg32 {
	if w, ok := rw.(word32); ok {
		return reg32{
			r: func() uint32 {
				return w.Uint32At(offset)
			},
			w: func(v uint32) {
				w.SetUint32At(offset, v)
			},
		}
	}
	return reg32{
		r: func() uint32 {
			return drv.readU32(rw, offset)
		},
		w: func(v uint32) {
			drv.writeU32(rw, offset, v)
		},
	}
}

// chanRegs is the per-channel register block of one DWC2 host channel.
type chanRegs struct {
	char   reg32 // characteristics
	splt   reg32 // split control
	hcint  reg32 // interrupts
	intmsk reg32 // interrupt mask
	tsiz   reg32 // transfer size
	dma    reg32 // DMA address
}

// bank is the host-mode register surface of the core.
type bank struct {
	gintsts  reg32
	gintmsk  reg32
	hfnum    reg32
	haint    reg32
	haintmsk reg32
	hprt     reg32

	ch [NumHostChannels]chanRegs
}

func (drv *Driver) bind(rw rwer) {
	drv.hw.gintsts = newReg32(drv, rw, regs.GINTSTS)
	drv.hw.gintmsk = newReg32(drv, rw, regs.GINTMSK)
	drv.hw.hfnum = newReg32(drv, rw, regs.HFNUM)
	drv.hw.haint = newReg32(drv, rw, regs.HAINT)
	drv.hw.haintmsk = newReg32(drv, rw, regs.HAINTMSK)
	drv.hw.hprt = newReg32(drv, rw, regs.HPRT)

	for i := range drv.hw.ch {
		drv.hw.ch[i] = chanRegs{
			char:   newReg32(drv, rw, regs.HC(i, regs.HCCHAR)),
			splt:   newReg32(drv, rw, regs.HC(i, regs.HCSPLT)),
			hcint:  newReg32(drv, rw, regs.HC(i, regs.HCINT)),
			intmsk: newReg32(drv, rw, regs.HC(i, regs.HCINTMSK)),
			tsiz:   newReg32(drv, rw, regs.HC(i, regs.HCTSIZ)),
			dma:    newReg32(drv, rw, regs.HC(i, regs.HCDMA)),
		}
	}
}

func (drv *Driver) readU32(r io.ReaderAt, off int64) uint32 {
	var buf [4]byte
	_, err := r.ReadAt(buf[:4], off)
	if err != nil {
		drv.setErr(fmt.Errorf("dwc2: could not read register 0x%x: %w", off, err))
		return 0
	}
	return binary.LittleEndian.Uint32(buf[:4])
}

func (drv *Driver) writeU32(w io.WriterAt, off int64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:4], v)
	_, err := w.WriteAt(buf[:4], off)
	if err != nil {
		drv.setErr(fmt.Errorf("dwc2: could not write register 0x%x: %w", off, err))
	}
}

func (drv *Driver) setErr(err error) {
	drv.errmu.Lock()
	if drv.err == nil {
		drv.err = err
	}
	drv.errmu.Unlock()
}

// Err returns the first register access error recorded by the driver.
func (drv *Driver) Err() error {
	drv.errmu.Lock()
	defer drv.errmu.Unlock()
	return drv.err
}

// DumpRegisters writes the state of the core registers to w.
func (drv *Driver) DumpRegisters(w io.Writer) error {
	fmt.Fprintf(w, "gintsts=  0x%08x\n", drv.hw.gintsts.r())
	fmt.Fprintf(w, "gintmsk=  0x%08x\n", drv.hw.gintmsk.r())
	fmt.Fprintf(w, "hfnum=    0x%08x\n", drv.hw.hfnum.r())
	fmt.Fprintf(w, "haint=    0x%08x\n", drv.hw.haint.r())
	fmt.Fprintf(w, "haintmsk= 0x%08x\n", drv.hw.haintmsk.r())
	fmt.Fprintf(w, "hprt=     0x%08x\n", drv.hw.hprt.r())
	for i := range drv.hw.ch {
		ch := &drv.hw.ch[i]
		fmt.Fprintf(w, "hc[%d]: char=0x%08x splt=0x%08x tsiz=0x%08x int=0x%08x\n",
			i, ch.char.r(), ch.splt.r(), ch.tsiz.r(), ch.hcint.r(),
		)
	}
	return drv.Err()
}
