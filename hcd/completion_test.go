// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"testing"
	"time"
)

func TestCompletion(t *testing.T) {
	c := newCompletion()

	t.Run("wait-after-signal", func(t *testing.T) {
		c.Signal()
		done := make(chan struct{})
		go func() {
			c.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("wait on a signalled completion blocked")
		}
	})

	t.Run("signal-idempotent", func(t *testing.T) {
		c.Signal()
		c.Signal()
		c.Wait()
	})

	t.Run("reset-blocks", func(t *testing.T) {
		c.Reset()
		done := make(chan struct{})
		go func() {
			c.Wait()
			close(done)
		}()
		select {
		case <-done:
			t.Fatalf("wait on a reset completion did not block")
		case <-time.After(50 * time.Millisecond):
		}

		c.Signal()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("signal did not release the waiter")
		}
	})
}
