// Copyright 2026 The ResourceTracker Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	clk := Fake(time.Unix(0, 0))
	ch := clk.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("fired before Advance")
	default:
	}

	clk.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before the deadline")
	default:
	}

	clk.Advance(time.Second)
	select {
	case got := <-ch:
		if want := time.Unix(5, 0); !got.Equal(want) {
			t.Errorf("fired with %v, want %v", got, want)
		}
	default:
		t.Fatal("did not fire at the deadline")
	}
}

func TestFakeAfterImmediateForNonPositive(t *testing.T) {
	clk := Fake(time.Unix(0, 0))
	select {
	case <-clk.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	clk := Fake(time.Unix(0, 0))
	ticker := clk.NewTicker(10 * time.Second)
	defer ticker.Stop()

	clk.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one interval")
	}

	clk.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after the second interval")
	}
}

func TestFakeTickerStop(t *testing.T) {
	clk := Fake(time.Unix(0, 0))
	ticker := clk.NewTicker(time.Second)
	ticker.Stop()

	clk.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker still ticked")
	default:
	}
	if clk.Pending() != 0 {
		t.Errorf("pending = %d after stop, want 0", clk.Pending())
	}
}

func TestFakeNowTracksAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	clk := Fake(start)
	clk.Advance(90 * time.Second)
	if got, want := clk.Now(), start.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now = %v, want %v", got, want)
	}
}

func TestWaitForWaiters(t *testing.T) {
	clk := Fake(time.Unix(0, 0))
	fired := make(chan struct{})
	go func() {
		<-clk.After(time.Second)
		close(fired)
	}()

	clk.WaitForWaiters(1)
	clk.Advance(time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never fired")
	}
}
