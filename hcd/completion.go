// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import "sync"

// completion is a single-slot event. Signal latches the event until
// Reset; Wait blocks while the event is unlatched. A Wait racing a
// Signal returns as soon as the event latches.
type completion struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func newCompletion() *completion {
	return &completion{ch: make(chan struct{})}
}

func (c *completion) Signal() {
	c.mu.Lock()
	if !c.set {
		c.set = true
		close(c.ch)
	}
	c.mu.Unlock()
}

func (c *completion) Reset() {
	c.mu.Lock()
	if c.set {
		c.set = false
		c.ch = make(chan struct{})
	}
	c.mu.Unlock()
}

func (c *completion) Wait() {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()
	<-ch
}
