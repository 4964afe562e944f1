// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"time"

	"github.com/go-daq/tdaq"
	"golang.org/x/xerrors"
)

// Server exposes a bench driver instance to a TDAQ run-control
// network: the usual bring-up sequence maps onto /config (open the
// MMIO window), /init (start the driver), /start (power the root
// port) and /stop.
type Server struct {
	name   string
	devmem string
	opts   []Option

	newDriver func(devmem string, opts ...Option) (*Driver, error)

	drv *Driver
}

// NewServer returns a server controlling the DWC2 core reachable
// through devmem.
func NewServer(name, devmem string, opts ...Option) *Server {
	return &Server{
		name:   name,
		devmem: devmem,
		opts:   opts,
		newDriver: func(devmem string, opts ...Option) (*Driver, error) {
			return New(devmem, opts...)
		},
	}
}

func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")

	if srv.drv != nil {
		ctx.Msg.Errorf("driver for %q already configured", srv.devmem)
		return xerrors.Errorf("dwc2: driver for %q already configured", srv.devmem)
	}

	drv, err := srv.newDriver(srv.devmem, srv.opts...)
	if err != nil {
		ctx.Msg.Errorf("could not open DWC2 core %q: %+v", srv.devmem, err)
		return xerrors.Errorf("dwc2: could not open DWC2 core %q: %w", srv.devmem, err)
	}
	srv.drv = drv

	return nil
}

func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")

	if srv.drv == nil {
		return xerrors.Errorf("dwc2: driver not configured")
	}

	err := srv.drv.Start()
	if err != nil {
		ctx.Msg.Errorf("could not start driver: %+v", err)
		return xerrors.Errorf("dwc2: could not start driver: %w", err)
	}

	return nil
}

func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return nil
}

func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")

	if srv.drv == nil {
		return xerrors.Errorf("dwc2: driver not configured")
	}

	srv.drv.portPowerOn()
	return nil
}

func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return nil
}

func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")

	if srv.drv == nil {
		return nil
	}

	err := srv.drv.Close()
	srv.drv = nil
	if err != nil {
		ctx.Msg.Errorf("could not close driver: %+v", err)
		return xerrors.Errorf("dwc2: could not close driver: %w", err)
	}
	return nil
}

// Run polls the core interrupt status in place of a wired IRQ line.
// Bench setups rarely have the interrupt routed to userland.
func (srv *Server) Run(ctx tdaq.Context) error {
	tick := time.NewTicker(125 * time.Microsecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Ctx.Done():
			return nil
		case <-tick.C:
			if srv.drv == nil {
				continue
			}
			srv.drv.ServeIRQ()
		}
	}
}
