// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package usb

// Request is a transfer request submitted by the bus layer to a host
// controller. The driver completes it exactly once by calling Complete,
// which fires the Done continuation with Status and Actual filled in.
type Request struct {
	// DeviceID is the bus address of the target device.
	DeviceID uint32

	// EndpointAddress is the target endpoint (number in bits 0-3,
	// direction in bit 7). Zero addresses the control endpoint.
	EndpointAddress uint8

	// Setup is the SETUP packet of a control transfer. It is ignored
	// for non-control endpoints.
	Setup SetupPacket

	// Data is the transfer buffer. Its length is the requested
	// transfer length.
	Data []byte

	// ZeroLengthPacket requests a trailing zero-length packet when the
	// transfer length is a multiple of the endpoint packet size.
	ZeroLengthPacket bool

	// Done is invoked exactly once when the request completes.
	Done func(*Request)

	// Status and Actual carry the outcome: Status is nil on success
	// and one of the usb error kinds otherwise; Actual is the number
	// of bytes transferred.
	Status error
	Actual int
}

// Length returns the requested transfer length.
func (req *Request) Length() int { return len(req.Data) }

// Complete records the outcome of the request and fires the Done
// continuation.
func (req *Request) Complete(status error, n int) {
	req.Status = status
	req.Actual = n
	if req.Done != nil {
		req.Done(req)
	}
}
