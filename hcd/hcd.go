// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hcd implements a USB 2.0 host-controller driver for the
// Synopsys DesignWare DWC2 OTG block.
package hcd // import "github.com/go-lpc/dwc2/hcd"
