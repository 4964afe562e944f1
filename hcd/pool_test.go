// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import "testing"

func TestRequestPool(t *testing.T) {
	drv, _ := newTestDriver(t)

	t.Run("recycle", func(t *testing.T) {
		req := drv.getFreeRequest()
		req.phase = phaseData
		req.bytesTransferred = 42
		drv.putFreeRequest(req)

		got := drv.getFreeRequest()
		if got != req {
			t.Fatalf("wrapper not recycled")
		}
		if got.phase != 0 || got.bytesTransferred != 0 {
			t.Fatalf("recycled wrapper not zeroed: %+v", got)
		}
	})

	t.Run("ids-increase", func(t *testing.T) {
		a := drv.getFreeRequest()
		b := drv.getFreeRequest()
		if a.id >= b.id {
			t.Fatalf("request ids not increasing: %d then %d", a.id, b.id)
		}
	})

	t.Run("bounded", func(t *testing.T) {
		for i := 0; i < freeReqCacheThreshold+100; i++ {
			drv.putFreeRequest(new(request))
		}

		drv.pool.mu.Lock()
		n := len(drv.pool.free)
		drv.pool.mu.Unlock()

		if n > freeReqCacheThreshold {
			t.Fatalf("free cache beyond threshold: got=%d, want<=%d", n, freeReqCacheThreshold)
		}
	})
}
