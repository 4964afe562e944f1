// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/go-lpc/dwc2/hcd/internal/regs"
	"github.com/go-lpc/dwc2/internal/mmap"
	"github.com/go-lpc/dwc2/usb"
	"golang.org/x/sys/unix"
)

const (
	// MaxDeviceCount bounds the device table; bus addresses are
	// indices into it.
	MaxDeviceCount = 64

	// RootHubDeviceID is the device id the software root hub answers
	// to. It lives outside the device table.
	RootHubDeviceID = MaxDeviceCount

	// NumHostChannels is the number of host channels of the core.
	NumHostChannels = 8

	allChannelsFree = 1<<NumHostChannels - 1

	// freeReqCacheThreshold bounds the free request cache.
	freeReqCacheThreshold = 1024

	// frameOverrunThreshold rate-limits frame-overrun logging.
	frameOverrunThreshold = 512

	// maxTransferSize is one page, until scatter/gather is supported.
	maxTransferSize = 4096

	// defaultMaxPacketSize0 is the control-endpoint packet size every
	// device answers with before enumeration learns the real one.
	defaultMaxPacketSize0 = 8
)

// ctrlPhase is the phase of a three-phase control transfer.
type ctrlPhase uint8

const (
	phaseSetup ctrlPhase = iota + 1
	phaseData
	phaseStatus
)

// request wraps an upstream usb request while it is inside the driver.
type request struct {
	usb *usb.Request
	id  uint32

	phase ctrlPhase
	setup []byte // 8-byte SETUP buffer, owned by the driver

	bytesTransferred uint32
	bytesQueued      uint32
	totalBytesQueued uint32
	packetsQueued    uint32

	nextDataToggle uint32
	completeSplit  bool
	shortAttempt   bool
	cspltRetries   int
}

// endpoint is one live (device, endpoint) pair, served by its own
// scheduler goroutine which is the sole consumer of its request queue.
type endpoint struct {
	address uint8
	dev     *device // back-reference; the device table owns both
	desc    usb.EndpointDescriptor

	mu      sync.Mutex
	reqs    []*request
	pending *completion
}

func newEndpoint(dev *device, desc usb.EndpointDescriptor) *endpoint {
	return &endpoint{
		address: desc.BEndpointAddress,
		dev:     dev,
		desc:    desc,
		pending: newCompletion(),
	}
}

func (ep *endpoint) push(req *request) {
	ep.mu.Lock()
	ep.reqs = append(ep.reqs, req)
	ep.mu.Unlock()
	ep.pending.Signal()
}

// pushHead requeues a request for retry ahead of everything else.
func (ep *endpoint) pushHead(req *request) {
	ep.mu.Lock()
	ep.reqs = append([]*request{req}, ep.reqs...)
	ep.mu.Unlock()
	ep.pending.Signal()
}

// device is one slot of the device table. Slot 0 is the default device
// used for address-assignment dialogues.
type device struct {
	mu         sync.Mutex
	id         uint32
	speed      usb.Speed
	hubAddress uint32
	port       int
	endpoints  []*endpoint
}

func (dev *device) endpointFor(address uint8) *endpoint {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	for _, ep := range dev.endpoints {
		if ep.address == address {
			return ep
		}
	}
	return nil
}

// Driver drives one DWC2 core in host mode.
type Driver struct {
	msg *log.Logger
	cfg config

	mem struct {
		fd *os.File
		h  *mmap.Handle
	}
	hw bank

	errmu sync.Mutex
	err   error

	busmu sync.Mutex
	bus   usb.Bus

	devmu       sync.Mutex
	devices     [MaxDeviceCount]*device
	nextAddress uint32

	pool struct {
		mu   sync.Mutex
		free []*request
	}
	reqID uint32

	chans struct {
		mu    sync.Mutex
		free  uint32
		avail *completion

		irqs [NumHostChannels]regs.HCInt
		halt [NumHostChannels]*completion
		sof  [NumHostChannels]*completion
	}

	sof struct {
		mu      sync.Mutex
		waiters int
	}

	rh struct {
		mu   sync.Mutex // guards port and intr
		port usb.PortStatus
		intr *request

		reqmu   sync.Mutex
		reqs    []*request
		pending *completion
	}

	overruns uint32 // frame-overrun log limiter
}

// New opens the MMIO window of a DWC2 core through the devmem device
// file and returns a driver bound to it.
func New(devmem string, opts ...Option) (*Driver, error) {
	mem, err := os.OpenFile(devmem, os.O_RDWR|os.O_SYNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("dwc2: could not open %q: %w", devmem, err)
	}
	defer func() {
		if err != nil {
			_ = mem.Close()
		}
	}()

	drv := newDriver(opts...)
	drv.mem.fd = mem

	data, err := unix.Mmap(
		int(mem.Fd()),
		drv.cfg.base, drv.cfg.span,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED,
	)
	if err != nil {
		return nil, fmt.Errorf("dwc2: could not mmap core registers: %w", err)
	}
	if data == nil || len(data) != drv.cfg.span {
		return nil, fmt.Errorf("dwc2: invalid mmap'd data: %d", len(data))
	}
	drv.mem.h = mmap.HandleFrom(data)
	drv.bind(drv.mem.h)

	return drv, nil
}

func newDriver(opts ...Option) *Driver {
	drv := &Driver{
		msg:         log.New(os.Stdout, "dwc2: ", 0),
		cfg:         newConfig(),
		nextAddress: 1,
	}
	for _, opt := range opts {
		opt(&drv.cfg)
	}

	drv.chans.free = allChannelsFree
	drv.chans.avail = newCompletion()
	for i := range drv.chans.halt {
		drv.chans.halt[i] = newCompletion()
		drv.chans.sof[i] = newCompletion()
	}
	drv.rh.pending = newCompletion()

	return drv
}

// Start creates the default device used for enumeration and spawns the
// root-hub worker. It must be called once before the bus layer submits
// requests.
func (drv *Driver) Start() error {
	if err := drv.createDefaultDevice(); err != nil {
		return fmt.Errorf("dwc2: could not create default device: %w", err)
	}
	go drv.rootHubWorker()
	return nil
}

// createDefaultDevice populates slot 0 of the device table with a
// high-speed control endpoint. Devices dialogue through it while they
// still answer to address 0.
func (drv *Driver) createDefaultDevice() error {
	dev := &device{
		id:    0,
		speed: usb.SpeedHigh,
	}

	ep0 := newEndpoint(dev, usb.EndpointDescriptor{
		BLength:          usb.EndpointDescriptorSize,
		BDescriptorType:  usb.DTEndpoint,
		BEndpointAddress: 0,
		BMAttributes:     uint8(usb.EndpointControl),
		WMaxPacketSize:   defaultMaxPacketSize0,
	})
	dev.endpoints = append(dev.endpoints, ep0)

	drv.devmu.Lock()
	drv.devices[0] = dev
	drv.devmu.Unlock()

	go drv.serveEndpoint(ep0)
	return nil
}

func (drv *Driver) deviceByID(id uint32) *device {
	drv.devmu.Lock()
	defer drv.devmu.Unlock()
	if id >= MaxDeviceCount {
		return nil
	}
	return drv.devices[id]
}

// Close unmaps the MMIO window and releases the devmem handle.
func (drv *Driver) Close() error {
	if drv.mem.fd == nil {
		return nil
	}

	var (
		errH   = drv.mem.h.Close()
		errMem = drv.mem.fd.Close()
	)
	drv.mem.fd = nil
	drv.mem.h = nil

	if errMem != nil {
		return fmt.Errorf("dwc2: could not close devmem file: %w", errMem)
	}
	if errH != nil {
		return fmt.Errorf("dwc2: could not close register mmap: %w", errH)
	}
	return nil
}
