// Copyright 2022 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hcd

import (
	"math/bits"
	"testing"
	"time"
)

func TestChannelAllocator(t *testing.T) {
	drv, _ := newTestDriver(t)

	var (
		seen  = make(map[int]bool)
		chans []int
	)
	for i := 0; i < NumHostChannels; i++ {
		ch := drv.acquireChannel()
		if seen[ch] {
			t.Fatalf("channel %d handed out twice", ch)
		}
		seen[ch] = true
		chans = append(chans, ch)

		drv.chans.mu.Lock()
		free := drv.chans.free
		drv.chans.mu.Unlock()
		if got, want := bits.OnesCount32(free), NumHostChannels-i-1; got != want {
			t.Fatalf("invalid free count after %d acquires: got=%d, want=%d", i+1, got, want)
		}
	}

	// The pool is dry: the next acquire blocks until a release.
	acquired := make(chan int, 1)
	go func() {
		acquired <- drv.acquireChannel()
	}()

	select {
	case ch := <-acquired:
		t.Fatalf("acquired channel %d from an empty pool", ch)
	case <-time.After(50 * time.Millisecond):
	}

	drv.releaseChannel(chans[3])

	select {
	case ch := <-acquired:
		if got, want := ch, chans[3]; got != want {
			t.Fatalf("invalid channel: got=%d, want=%d", got, want)
		}
		drv.releaseChannel(ch)
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for blocked acquire")
	}

	for _, ch := range chans {
		if ch == chans[3] {
			continue
		}
		drv.releaseChannel(ch)
	}

	drv.chans.mu.Lock()
	free := drv.chans.free
	drv.chans.mu.Unlock()
	if got, want := free, uint32(allChannelsFree); got != want {
		t.Fatalf("invalid free mask: got=0x%02x, want=0x%02x", got, want)
	}
}

func TestChannelReleaseBounds(t *testing.T) {
	drv, _ := newTestDriver(t)

	defer func() {
		if recover() == nil {
			t.Fatalf("release of out-of-range channel did not panic")
		}
	}()
	drv.releaseChannel(NumHostChannels)
}
